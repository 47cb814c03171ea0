package models

import "time"

// SyncStatus is the terminal state of a sync cycle.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
)

// OutcomeKind classifies what happened to one repository during a cycle.
type OutcomeKind string

const (
	OutcomeAdded   OutcomeKind = "added"
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// SyncRun is the recorded history of one sync cycle.
type SyncRun struct {
	ID           string     `json:"id"`
	Trigger      string     `json:"trigger"`
	Status       SyncStatus `json:"status"`
	ReposTotal   int        `json:"reposTotal"`
	Added        int        `json:"added"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	Professional int        `json:"professional"`
	Personal     int        `json:"personal"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// RepoOutcome is the per-repository line of a SyncRun.
type RepoOutcome struct {
	RunID    string      `json:"runId"`
	RepoID   int64       `json:"repoId"`
	RepoName string      `json:"repoName"`
	Outcome  OutcomeKind `json:"outcome"`
	Reason   string      `json:"reason,omitempty"`
}
