// Package refresh rebuilds the personal project list from GitHub.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaCuaBan77/Portfolio-generator/internal/github"
	"github.com/BaCuaBan77/Portfolio-generator/internal/markdown"
	"github.com/BaCuaBan77/Portfolio-generator/internal/metrics"
	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
	"github.com/BaCuaBan77/Portfolio-generator/internal/store"
)

// Skip reasons.
const (
	ReasonNotAccessible = "repository not accessible"
	ReasonNoReadme      = "no README found"
	ReasonNoSections    = "no Abstract/Overview/Description/Project Description section"
)

// Outcome is what happened to one repository during a sync.
type Outcome struct {
	Kind     models.OutcomeKind `json:"kind"`
	RepoID   int64              `json:"repoId"`
	RepoName string             `json:"repoName"`
	Project  *models.Project    `json:"project,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Err      error              `json:"-"`
}

// Result summarizes a completed sync.
type Result struct {
	RunID        string        `json:"runId,omitempty"`
	Trigger      string        `json:"trigger"`
	DryRun       bool          `json:"dryRun,omitempty"`
	Total        int           `json:"total"`
	Professional int           `json:"professional"`
	Personal     int           `json:"personal"`
	Added        int           `json:"added"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Outcomes     []Outcome     `json:"outcomes"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
}

// Option configures a Service.
type Option func(*Service)

// WithHistory records every run in h.
func WithHistory(h store.HistoryStore) Option {
	return func(s *Service) { s.history = h }
}

// WithMetrics reports runs and outcomes to m.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency processes up to n repositories at once. Values below 2
// process them one at a time.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithDryRun runs the whole cycle but writes neither projects.json nor
// history.
func WithDryRun(dryRun bool) Option {
	return func(s *Service) { s.dryRun = dryRun }
}

// Service runs sync cycles.
type Service struct {
	config      store.ConfigStore
	gh          github.Client
	history     store.HistoryStore
	metrics     *metrics.Collector
	logger      *slog.Logger
	concurrency int
	dryRun      bool
}

// NewService returns a Service reading and writing config through cfg.
func NewService(cfg store.ConfigStore, gh github.Client, opts ...Option) *Service {
	s := &Service{
		config:      cfg,
		gh:          gh,
		logger:      slog.Default(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one full cycle. Per-repository problems are recorded as skipped
// or failed outcomes; only config I/O, repository listing, rate-limit
// exhaustion and cancellation abort the cycle, in which case nothing is
// written.
func (s *Service) Sync(ctx context.Context, trigger string) (*Result, error) {
	res := &Result{Trigger: trigger, DryRun: s.dryRun, StartedAt: time.Now().UTC()}
	run := s.beginRun(ctx, res)

	s.logger.Info("sync started", "trigger", trigger)
	err := s.sync(ctx, res)
	res.Duration = time.Since(res.StartedAt)

	s.finishRun(ctx, run, res, err)
	if err != nil {
		s.logger.Error("sync aborted", "outcome", "fatal", "trigger", trigger, "error", err)
		if s.metrics != nil {
			s.metrics.RecordSyncFailure(res.Duration)
		}
		return nil, err
	}

	s.logger.Info("sync complete",
		"total", res.Professional+res.Personal,
		"professional", res.Professional,
		"personal", res.Personal,
		"added", res.Added,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"duration", res.Duration.Round(time.Millisecond),
	)
	if s.metrics != nil {
		s.metrics.RecordSyncSuccess(res.Duration, res.Professional, res.Personal)
	}
	return res, nil
}

func (s *Service) sync(ctx context.Context, res *Result) error {
	portfolio, err := s.config.ReadPortfolio(ctx)
	if err != nil {
		return fmt.Errorf("load portfolio: %w", err)
	}
	existing, err := s.config.ReadProjects(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	professional, personal := s.partition(existing)

	s.logger.Info("fetching repositories", "user", portfolio.GitHubUsername)
	repos, err := s.gh.ListUserRepos(ctx, portfolio.GitHubUsername)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}
	repos = dedupe(repos)
	res.Total = len(repos)
	s.logger.Info("found repositories", "count", len(repos))

	outcomes, procErr := s.processAll(ctx, repos, personal)
	res.Outcomes = outcomes

	all := make([]models.Project, 0, len(professional)+len(outcomes))
	all = append(all, professional...)
	for _, o := range outcomes {
		switch o.Kind {
		case models.OutcomeAdded:
			res.Added++
			all = append(all, *o.Project)
		case models.OutcomeUpdated:
			res.Updated++
			all = append(all, *o.Project)
		case models.OutcomeSkipped:
			res.Skipped++
		case models.OutcomeFailed:
			res.Failed++
		}
	}
	res.Professional = len(professional)
	res.Personal = res.Added + res.Updated
	if procErr != nil {
		return procErr
	}

	if s.dryRun {
		s.logger.Info("dry run, projects not written", "projects", len(all))
		return nil
	}
	if err := s.config.WriteProjects(ctx, all); err != nil {
		return fmt.Errorf("write projects: %w", err)
	}
	return nil
}

// partition splits stored projects into the professional pass-through list
// and the personal records indexed by ID.
func (s *Service) partition(projects []models.Project) ([]models.Project, map[string]*models.Project) {
	var professional []models.Project
	personal := make(map[string]*models.Project)
	for i := range projects {
		p := &projects[i]
		switch p.Category {
		case models.CategoryProfessional:
			professional = append(professional, *p)
		case models.CategoryPersonal:
			personal[p.ID] = p
		default:
			s.logger.Warn("dropping project with unknown category", "id", p.ID, "name", p.Name, "category", p.Category)
		}
	}
	return professional, personal
}

// dedupe drops repeated repository IDs, which can appear when a repository is
// pushed while the listing pages through updated-at order.
func dedupe(repos []github.Repo) []github.Repo {
	seen := make(map[int64]bool, len(repos))
	out := repos[:0:0]
	for _, r := range repos {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// abortsCycle reports whether err from a single repository must stop the
// whole cycle.
func abortsCycle(ctx context.Context, err error) bool {
	var rl *github.RateLimitError
	return errors.As(err, &rl) || ctx.Err() != nil
}

func (s *Service) processAll(ctx context.Context, repos []github.Repo, existing map[string]*models.Project) ([]Outcome, error) {
	if s.concurrency < 2 {
		outcomes := make([]Outcome, 0, len(repos))
		for _, repo := range repos {
			if err := ctx.Err(); err != nil {
				return outcomes, err
			}
			o := s.processRepo(ctx, repo, existing)
			outcomes = append(outcomes, o)
			if o.Err != nil && abortsCycle(ctx, o.Err) {
				return outcomes, o.Err
			}
		}
		return outcomes, nil
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]Outcome, len(repos))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var once sync.Once
	var abortErr error

dispatch:
	for i, repo := range repos {
		select {
		case sem <- struct{}{}:
		case <-workCtx.Done():
			break dispatch
		}
		wg.Add(1)
		go func(i int, repo github.Repo) {
			defer wg.Done()
			defer func() { <-sem }()
			o := s.processRepo(workCtx, repo, existing)
			outcomes[i] = o
			if o.Err != nil && abortsCycle(workCtx, o.Err) {
				once.Do(func() {
					abortErr = o.Err
					cancel()
				})
			}
		}(i, repo)
	}
	wg.Wait()

	// Keep listing order; slots never dispatched stay empty.
	done := outcomes[:0]
	for _, o := range outcomes {
		if o.Kind != "" {
			done = append(done, o)
		}
	}
	if err := ctx.Err(); err != nil {
		return done, err
	}
	return done, abortErr
}

// processRepo turns one repository into an outcome. It never returns an
// error directly; failures are carried in Outcome.Err.
func (s *Service) processRepo(ctx context.Context, repo github.Repo, existing map[string]*models.Project) (o Outcome) {
	o = Outcome{RepoID: repo.ID, RepoName: repo.Name}
	defer func() {
		if r := recover(); r != nil {
			o = s.failed(o, fmt.Errorf("panic: %v", r))
		}
		s.record(o)
	}()

	branch, err := s.gh.DefaultBranch(ctx, repo.FullName)
	if errors.Is(err, github.ErrNotFound) {
		return skipped(o, ReasonNotAccessible)
	}
	if err != nil {
		return s.failed(o, fmt.Errorf("default branch: %w", err))
	}

	readme, err := s.gh.Readme(ctx, repo.FullName, branch)
	if errors.Is(err, github.ErrNotFound) {
		return skipped(o, ReasonNoReadme)
	}
	if err != nil {
		return s.failed(o, fmt.Errorf("readme: %w", err))
	}
	if strings.TrimSpace(readme) == "" {
		return skipped(o, ReasonNoReadme)
	}

	owner, name, err := github.SplitFullName(repo.FullName)
	if err != nil {
		return s.failed(o, err)
	}
	parsed := markdown.ParseReadme(readme, owner, name, branch)
	if !parsed.HasContent() {
		return skipped(o, ReasonNoSections)
	}

	prev := existing[strconv.FormatInt(repo.ID, 10)]
	project := Merge(BuildProject(repo, parsed), prev)
	o.Project = &project
	o.Kind = models.OutcomeAdded
	if prev != nil {
		o.Kind = models.OutcomeUpdated
	}
	return o
}

func skipped(o Outcome, reason string) Outcome {
	o.Kind = models.OutcomeSkipped
	o.Reason = reason
	return o
}

func (s *Service) failed(o Outcome, err error) Outcome {
	o.Kind = models.OutcomeFailed
	o.Reason = err.Error()
	o.Err = err
	return o
}

// record logs o and counts it.
func (s *Service) record(o Outcome) {
	switch o.Kind {
	case models.OutcomeSkipped:
		s.logger.Info("skipping repository", "repo", o.RepoName, "outcome", o.Kind, "reason", o.Reason)
	case models.OutcomeFailed:
		s.logger.Error("repository failed", "repo", o.RepoName, "outcome", o.Kind, "error", o.Err)
	case models.OutcomeAdded:
		s.logger.Info("adding new project", "repo", o.RepoName, "outcome", o.Kind)
	case models.OutcomeUpdated:
		s.logger.Info("updating project", "repo", o.RepoName, "outcome", o.Kind)
	}
	if s.metrics != nil {
		s.metrics.RecordRepoOutcome(string(o.Kind))
	}
}

func (s *Service) beginRun(ctx context.Context, res *Result) *models.SyncRun {
	if s.history == nil || s.dryRun {
		return nil
	}
	run := &models.SyncRun{Trigger: res.Trigger, StartedAt: res.StartedAt}
	if err := s.history.CreateSyncRun(ctx, run); err != nil {
		s.logger.Warn("failed to record sync run", "error", err)
		return nil
	}
	res.RunID = run.ID
	return run
}

func (s *Service) finishRun(ctx context.Context, run *models.SyncRun, res *Result, syncErr error) {
	if run == nil {
		return
	}
	run.Status = models.SyncStatusSucceeded
	if syncErr != nil {
		run.Status = models.SyncStatusFailed
		run.Error = syncErr.Error()
	}
	run.ReposTotal = res.Total
	run.Added = res.Added
	run.Updated = res.Updated
	run.Skipped = res.Skipped
	run.Failed = res.Failed
	run.Professional = res.Professional
	run.Personal = res.Personal

	outcomes := make([]models.RepoOutcome, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		outcomes = append(outcomes, models.RepoOutcome{
			RunID:    run.ID,
			RepoID:   o.RepoID,
			RepoName: o.RepoName,
			Outcome:  o.Kind,
			Reason:   o.Reason,
		})
	}

	// The cycle's context may already be cancelled; history is still written.
	if err := s.history.FinishSyncRun(context.WithoutCancel(ctx), run, outcomes); err != nil {
		s.logger.Warn("failed to record sync outcome", "run", run.ID, "error", err)
	}
}
