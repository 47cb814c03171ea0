package store

import (
	"context"

	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
)

// ConfigStore reads and writes the hand-edited configuration directory.
type ConfigStore interface {
	// ReadPortfolio fails if the portfolio file is missing or malformed.
	ReadPortfolio(ctx context.Context) (*models.Portfolio, error)
	// ReadProjects returns an empty list when projects.json is missing or unparsable.
	ReadProjects(ctx context.Context) ([]models.Project, error)
	// WriteProjects atomically replaces projects.json.
	WriteProjects(ctx context.Context, projects []models.Project) error
	// ReadCustomCSS returns "" when no custom stylesheet exists.
	ReadCustomCSS(ctx context.Context) (string, error)
}

// HistoryStore records sync cycles and their per-repository outcomes.
type HistoryStore interface {
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	FinishSyncRun(ctx context.Context, run *models.SyncRun, outcomes []models.RepoOutcome) error
	GetSyncRun(ctx context.Context, id string) (*models.SyncRun, error)
	LastSyncRun(ctx context.Context) (*models.SyncRun, error)
	ListSyncRuns(ctx context.Context, limit int) ([]*models.SyncRun, error)
	ListRepoOutcomes(ctx context.Context, runID string) ([]models.RepoOutcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
