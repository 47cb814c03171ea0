package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/BaCuaBan77/Portfolio-generator/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoRuns is returned by LastSyncRun before the first cycle has been recorded.
var ErrNoRuns = errors.New("no sync runs recorded")

// SQLiteStore implements HistoryStore using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; the sync and the API share this handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sync runs ---

const syncRunColumns = `id, trigger_name, status, repos_total, added, updated, skipped, failed, professional, personal, error, started_at, finished_at`

// CreateSyncRun inserts run in the running state, assigning an ID and start
// time when they are unset.
func (s *SQLiteStore) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = newULID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.SyncStatusRunning
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, trigger_name, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Trigger, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create sync run: %w", err)
	}
	return nil
}

// FinishSyncRun stores the final counters of run together with its outcomes.
func (s *SQLiteStore) FinishSyncRun(ctx context.Context, run *models.SyncRun, outcomes []models.RepoOutcome) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE sync_runs SET status=?, repos_total=?, added=?, updated=?, skipped=?, failed=?, professional=?, personal=?, error=?, finished_at=?
		WHERE id=?`,
		string(run.Status), run.ReposTotal, run.Added, run.Updated, run.Skipped, run.Failed,
		run.Professional, run.Personal, run.Error, *run.FinishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sync run not found: %s", run.ID)
	}

	for i, o := range outcomes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sync_repo_outcomes (run_id, position, repo_id, repo_name, outcome, reason) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, i, o.RepoID, o.RepoName, string(o.Outcome), o.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert outcome for %s: %w", o.RepoName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRun(row rowScanner) (*models.SyncRun, error) {
	run := &models.SyncRun{}
	var status string
	var finishedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.Trigger, &status, &run.ReposTotal, &run.Added, &run.Updated,
		&run.Skipped, &run.Failed, &run.Professional, &run.Personal, &run.Error,
		&run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Status = models.SyncStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

// GetSyncRun returns the run with the given ID.
func (s *SQLiteStore) GetSyncRun(ctx context.Context, id string) (*models.SyncRun, error) {
	run, err := scanSyncRun(s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sync run: %w", err)
	}
	return run, nil
}

// LastSyncRun returns the most recently started run, or ErrNoRuns.
func (s *SQLiteStore) LastSyncRun(ctx context.Context) (*models.SyncRun, error) {
	run, err := scanSyncRun(s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("last sync run: %w", err)
	}
	return run, nil
}

// ListSyncRuns returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRepoOutcomes returns the outcomes of a run in processing order.
func (s *SQLiteStore) ListRepoOutcomes(ctx context.Context, runID string) ([]models.RepoOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, repo_id, repo_name, outcome, reason FROM sync_repo_outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list repo outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []models.RepoOutcome
	for rows.Next() {
		var o models.RepoOutcome
		var kind string
		if err := rows.Scan(&o.RunID, &o.RepoID, &o.RepoName, &kind, &o.Reason); err != nil {
			return nil, fmt.Errorf("scan repo outcome: %w", err)
		}
		o.Outcome = models.OutcomeKind(kind)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
