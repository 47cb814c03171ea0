package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaCuaBan77/Portfolio-generator/internal/github"
	"github.com/BaCuaBan77/Portfolio-generator/internal/metrics"
	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
	"github.com/BaCuaBan77/Portfolio-generator/internal/store"
)

// fakeGitHub is an in-memory github.Client keyed by full name.
type fakeGitHub struct {
	mu        sync.Mutex
	repos     []github.Repo
	listErr   error
	branches  map[string]string
	branchErr map[string]error
	readmes   map[string]string
	readmeErr map[string]error
	calls     []string
}

func newFakeGitHub(repos ...github.Repo) *fakeGitHub {
	return &fakeGitHub{
		repos:     repos,
		branches:  map[string]string{},
		branchErr: map[string]error{},
		readmes:   map[string]string{},
		readmeErr: map[string]error{},
	}
}

func (f *fakeGitHub) ListUserRepos(_ context.Context, username string) ([]github.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list:"+username)
	return f.repos, f.listErr
}

func (f *fakeGitHub) DefaultBranch(_ context.Context, fullName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "branch:"+fullName)
	if err := f.branchErr[fullName]; err != nil {
		return "", err
	}
	if b, ok := f.branches[fullName]; ok {
		return b, nil
	}
	return "main", nil
}

func (f *fakeGitHub) Readme(_ context.Context, fullName, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "readme:"+fullName+"@"+branch)
	if err := f.readmeErr[fullName]; err != nil {
		return "", err
	}
	if md, ok := f.readmes[fullName]; ok {
		return md, nil
	}
	return "", fmt.Errorf("readme %s: %w", fullName, github.ErrNotFound)
}

func (f *fakeGitHub) RateLimit() github.RateLimitInfo {
	return github.RateLimitInfo{Remaining: 60}
}

func repo(id int64, name string) github.Repo {
	return github.Repo{
		ID:              id,
		Name:            name,
		FullName:        "octo/" + name,
		Description:     name + " description",
		HTMLURL:         "https://github.com/octo/" + name,
		Language:        "Go",
		StargazersCount: int(id),
		Topics:          []string{"topic-" + name},
		UpdatedAt:       "2026-01-02T03:04:05Z",
		CreatedAt:       "2025-01-01T00:00:00Z",
	}
}

const readmeWithAbstract = "# Title\n\n![screenshot](./docs/shot.png)\n\n## Abstract\nA useful tool.\n\n## Technologies\n- Go\n- SQLite\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupConfig(t *testing.T, projectsJSON string) (string, *store.FileStore) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.PortfolioJSON),
		[]byte(`{"name":"Octo","githubUsername":"octo"}`), 0644))
	if projectsJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, store.ProjectsFile), []byte(projectsJSON), 0644))
	}
	return dir, store.NewFileStore(dir)
}

func readProjects(t *testing.T, s *store.FileStore) []models.Project {
	t.Helper()
	projects, err := s.ReadProjects(context.Background())
	require.NoError(t, err)
	return projects
}

func TestSync_AddsNewProject(t *testing.T) {
	_, cfg := setupConfig(t, "")
	gh := newFakeGitHub(repo(101, "tool"))
	gh.branches["octo/tool"] = "develop"
	gh.readmes["octo/tool"] = readmeWithAbstract

	svc := NewService(cfg, gh, WithLogger(quietLogger()))
	res, err := svc.Sync(context.Background(), "manual")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Personal)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, models.OutcomeAdded, res.Outcomes[0].Kind)
	assert.Contains(t, gh.calls, "readme:octo/tool@develop")

	projects := readProjects(t, cfg)
	require.Len(t, projects, 1)
	p := projects[0]
	assert.Equal(t, "101", p.ID)
	assert.Equal(t, "tool", p.Name)
	assert.Equal(t, models.CategoryPersonal, p.Category)
	assert.Equal(t, "A useful tool.", p.Abstract)
	assert.Equal(t, "tool description", p.Description)
	assert.Equal(t, "https://raw.githubusercontent.com/octo/tool/develop/docs/shot.png", p.Image)
	assert.Equal(t, []string{"Go", "SQLite"}, p.Technologies)
	assert.Equal(t, []string{"topic-tool"}, p.Topics)
	assert.Equal(t, 101, p.Stars)
	assert.Equal(t, "https://github.com/octo/tool", p.GitHubURL)
}

func TestSync_UpdatePreservesManualFields(t *testing.T) {
	_, cfg := setupConfig(t, `[
  {"id":"101","name":"old-name","category":"personal","description":"stale","githubUrl":"","updatedAt":"","createdAt":"","abstract":"old","technologies":[],"liveUrl":"https://x","featured":true}
]`)
	gh := newFakeGitHub(repo(101, "tool"))
	gh.readmes["octo/tool"] = readmeWithAbstract

	res, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Added)

	projects := readProjects(t, cfg)
	require.Len(t, projects, 1)
	p := projects[0]
	assert.Equal(t, "tool", p.Name)
	assert.Equal(t, "tool description", p.Description)
	assert.Equal(t, "A useful tool.", p.Abstract)
	assert.Equal(t, "https://x", p.LiveURL)
	assert.JSONEq(t, `true`, string(p.Extra["featured"]))
}

func TestSync_ProfessionalPassThrough(t *testing.T) {
	_, cfg := setupConfig(t, `[
  {"id":"101","name":"stale","category":"personal","description":"","githubUrl":"","updatedAt":"","createdAt":"","abstract":"","technologies":[]},
  {"id":"acme","name":"Acme Portal","category":"professional","description":"Client work","githubUrl":"","updatedAt":"","createdAt":"","abstract":"Built the portal","technologies":["Java"],"client":"ACME"}
]`)
	gh := newFakeGitHub(repo(202, "fresh"))
	gh.readmes["octo/fresh"] = "## Overview\nFresh project.\n"

	res, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Professional)
	assert.Equal(t, 1, res.Personal)

	projects := readProjects(t, cfg)
	require.Len(t, projects, 2)
	assert.Equal(t, "acme", projects[0].ID)
	assert.Equal(t, models.CategoryProfessional, projects[0].Category)
	assert.Equal(t, "Built the portal", projects[0].Abstract)
	assert.JSONEq(t, `"ACME"`, string(projects[0].Extra["client"]))
	// The stale personal project no longer qualifies and is dropped.
	assert.Equal(t, "202", projects[1].ID)
	assert.Equal(t, "Fresh project.", projects[1].Overview)
}

// recordsJSON returns each element of projects.json in compact form.
func recordsJSON(t *testing.T, dir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, store.ProjectsFile))
	require.NoError(t, err)
	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &records))
	out := make([]string, 0, len(records))
	for _, r := range records {
		var buf bytes.Buffer
		require.NoError(t, json.Compact(&buf, r))
		out = append(out, buf.String())
	}
	return out
}

func TestSync_SparseProfessionalUnchanged(t *testing.T) {
	sparse := `{"id":"pro-1","name":"Acme","category":"professional","description":"d","abstract":"a & b","stars":0}`
	dir, cfg := setupConfig(t, "["+sparse+"]")
	gh := newFakeGitHub(repo(1, "alpha"))
	gh.readmes["octo/alpha"] = readmeWithAbstract

	_, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)

	records := recordsJSON(t, dir)
	require.Len(t, records, 2)
	assert.Equal(t, sparse, records[0])
}

func TestSync_MistypedProfessionalKept(t *testing.T) {
	pro1 := `{"id":"pro-1","name":"One","category":"professional","stars":"5"}`
	pro2 := `{"id":"pro-2","name":"Other","category":"professional"}`
	dir, cfg := setupConfig(t, "["+pro1+","+pro2+"]")
	gh := newFakeGitHub(repo(1, "alpha"))
	gh.readmes["octo/alpha"] = readmeWithAbstract

	res, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Professional)

	records := recordsJSON(t, dir)
	require.Len(t, records, 3)
	assert.Equal(t, pro1, records[0])
	assert.Equal(t, pro2, records[1])
	assert.Contains(t, records[2], `"id":"1"`)
}

func TestSync_DryRunWritesNothing(t *testing.T) {
	dir, cfg := setupConfig(t, "")
	gh := newFakeGitHub(repo(1, "alpha"), repo(2, "beta"))
	gh.readmes["octo/alpha"] = readmeWithAbstract
	history, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })
	require.NoError(t, history.Migrate(context.Background()))

	res, err := NewService(cfg, gh, WithDryRun(true), WithHistory(history), WithLogger(quietLogger())).
		Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Outcomes, 2)

	_, statErr := os.Stat(filepath.Join(dir, store.ProjectsFile))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
	runs, err := history.ListSyncRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSync_SkipsNonQualifyingRepos(t *testing.T) {
	_, cfg := setupConfig(t, "")
	gh := newFakeGitHub(repo(1, "gone"), repo(2, "no-readme"), repo(3, "no-sections"), repo(4, "empty-readme"))
	gh.branchErr["octo/gone"] = &github.APIError{StatusCode: 404, Status: "404 Not Found"}
	gh.readmes["octo/no-sections"] = "# Title\n\nJust a paragraph with ![img](a.png).\n\n## Technologies\n- Go\n"
	gh.readmes["octo/empty-readme"] = "   \n"

	res, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, 0, res.Failed)

	reasons := make([]string, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		assert.Equal(t, models.OutcomeSkipped, o.Kind)
		assert.NoError(t, o.Err)
		reasons = append(reasons, o.Reason)
	}
	assert.Equal(t, []string{ReasonNotAccessible, ReasonNoReadme, ReasonNoSections, ReasonNoReadme}, reasons)
	assert.Empty(t, readProjects(t, cfg))
}

func TestSync_PartialFailureIsolated(t *testing.T) {
	_, cfg := setupConfig(t, "")
	gh := newFakeGitHub(repo(1, "alpha"), repo(2, "broken"), repo(3, "gamma"))
	gh.readmes["octo/alpha"] = readmeWithAbstract
	gh.readmes["octo/gamma"] = "## Description\nGamma.\n"
	gh.branchErr["octo/broken"] = &github.APIError{StatusCode: 500, Status: "500 Internal Server Error"}

	res, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, models.OutcomeFailed, res.Outcomes[1].Kind)
	assert.Error(t, res.Outcomes[1].Err)

	projects := readProjects(t, cfg)
	require.Len(t, projects, 2)
	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, "gamma", projects[1].Name)
	assert.Equal(t, "Gamma.", projects[1].ReadmeDescription)
}

func TestSync_TopicsFallback(t *testing.T) {
	_, cfg := setupConfig(t, "")
	gh := newFakeGitHub(repo(5, "lib"))
	gh.readmes["octo/lib"] = "## Abstract\nA library.\n"

	_, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)

	projects := readProjects(t, cfg)
	require.Len(t, projects, 1)
	assert.Equal(t, []string{"topic-lib"}, projects[0].Technologies)
	assert.Empty(t, projects[0].Image)
}

func TestSync_Idempotent(t *testing.T) {
	dir, cfg := setupConfig(t, `[
  {"id":"acme","name":"Acme & Co","category":"professional","description":"<b>Client</b>","githubUrl":"","updatedAt":"","createdAt":"","abstract":"","technologies":["Java"]}
]`)
	gh := newFakeGitHub(repo(1, "alpha"), repo(2, "beta"))
	gh.readmes["octo/alpha"] = readmeWithAbstract
	gh.readmes["octo/beta"] = "## Project Description\nBeta & friends.\n"

	svc := NewService(cfg, gh, WithLogger(quietLogger()))
	path := filepath.Join(dir, store.ProjectsFile)

	_, err := svc.Sync(context.Background(), "manual")
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = svc.Sync(context.Background(), "manual")
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSync_RateLimitAbortsCycle(t *testing.T) {
	original := `[{"id":"1","name":"keep","category":"personal"}]`
	dir, cfg := setupConfig(t, original)
	gh := newFakeGitHub(repo(1, "alpha"), repo(2, "beta"), repo(3, "gamma"))
	gh.readmes["octo/alpha"] = readmeWithAbstract
	gh.readmeErr["octo/beta"] = &github.RateLimitError{Reset: time.Now().Add(time.Hour)}
	gh.readmes["octo/gamma"] = readmeWithAbstract

	res, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "schedule")
	require.Error(t, err)
	assert.Nil(t, res)

	var rl *github.RateLimitError
	assert.ErrorAs(t, err, &rl)
	assert.NotContains(t, gh.calls, "branch:octo/gamma")

	data, err := os.ReadFile(filepath.Join(dir, store.ProjectsFile))
	require.NoError(t, err)
	assert.Equal(t, original, string(data), "nothing is written when the cycle aborts")
}

func TestSync_FatalErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing portfolio", func(t *testing.T) {
		dir := t.TempDir()
		gh := newFakeGitHub()
		_, err := NewService(store.NewFileStore(dir), gh, WithLogger(quietLogger())).Sync(ctx, "manual")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load portfolio")
		assert.Empty(t, gh.calls)
		_, statErr := os.Stat(filepath.Join(dir, store.ProjectsFile))
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
	})

	t.Run("list failure", func(t *testing.T) {
		dir, cfg := setupConfig(t, "")
		gh := newFakeGitHub()
		gh.listErr = errors.New("connection refused")
		_, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(ctx, "manual")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list repositories")
		_, statErr := os.Stat(filepath.Join(dir, store.ProjectsFile))
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
	})
}

func TestSync_UnknownCategoryDropped(t *testing.T) {
	_, cfg := setupConfig(t, `[{"id":"x","name":"odd","category":"hobby"}]`)
	res, err := NewService(cfg, newFakeGitHub(), WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Professional+res.Personal)
	assert.Empty(t, readProjects(t, cfg))
}

func TestSync_DuplicateListingProcessedOnce(t *testing.T) {
	_, cfg := setupConfig(t, "")
	gh := newFakeGitHub(repo(1, "alpha"), repo(1, "alpha"))
	gh.readmes["octo/alpha"] = readmeWithAbstract

	res, err := NewService(cfg, gh, WithLogger(quietLogger())).Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Len(t, readProjects(t, cfg), 1)
}

func TestSync_ConcurrentKeepsListingOrder(t *testing.T) {
	_, cfg := setupConfig(t, "")
	var repos []github.Repo
	for i := int64(1); i <= 12; i++ {
		repos = append(repos, repo(i, fmt.Sprintf("repo-%02d", i)))
	}
	gh := newFakeGitHub(repos...)
	for _, r := range repos {
		gh.readmes[r.FullName] = readmeWithAbstract
	}
	gh.branchErr["octo/repo-05"] = errors.New("boom")

	res, err := NewService(cfg, gh, WithLogger(quietLogger()), WithConcurrency(4)).Sync(context.Background(), "manual")
	require.NoError(t, err)
	assert.Equal(t, 11, res.Added)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Outcomes, 12)
	for i, o := range res.Outcomes {
		assert.Equal(t, repos[i].Name, o.RepoName)
	}

	projects := readProjects(t, cfg)
	require.Len(t, projects, 11)
	assert.Equal(t, "repo-01", projects[0].Name)
	assert.Equal(t, "repo-04", projects[3].Name)
	assert.Equal(t, "repo-06", projects[4].Name)
	assert.Equal(t, "repo-12", projects[10].Name)
}

func TestSync_ConcurrentRateLimitAborts(t *testing.T) {
	original := `[]`
	dir, cfg := setupConfig(t, original)
	gh := newFakeGitHub(repo(1, "alpha"), repo(2, "beta"))
	gh.readmes["octo/alpha"] = readmeWithAbstract
	gh.branchErr["octo/beta"] = &github.RateLimitError{Reset: time.Now()}

	_, err := NewService(cfg, gh, WithLogger(quietLogger()), WithConcurrency(2)).Sync(context.Background(), "manual")
	var rl *github.RateLimitError
	require.ErrorAs(t, err, &rl)

	data, readErr := os.ReadFile(filepath.Join(dir, store.ProjectsFile))
	require.NoError(t, readErr)
	assert.Equal(t, original, string(data))
}

func TestSync_RecordsHistory(t *testing.T) {
	_, cfg := setupConfig(t, "")
	history, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })
	require.NoError(t, history.Migrate(context.Background()))

	gh := newFakeGitHub(repo(1, "alpha"), repo(2, "beta"))
	gh.readmes["octo/alpha"] = readmeWithAbstract

	res, err := NewService(cfg, gh, WithLogger(quietLogger()), WithHistory(history)).Sync(context.Background(), "startup")
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := history.LastSyncRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, "startup", run.Trigger)
	assert.Equal(t, models.SyncStatusSucceeded, run.Status)
	assert.Equal(t, 2, run.ReposTotal)
	assert.Equal(t, 1, run.Added)
	assert.Equal(t, 1, run.Skipped)

	outcomes, err := history.ListRepoOutcomes(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, models.OutcomeAdded, outcomes[0].Outcome)
	assert.Equal(t, ReasonNoReadme, outcomes[1].Reason)

	// A failed cycle is recorded as failed.
	gh.listErr = errors.New("offline")
	_, err = NewService(cfg, gh, WithLogger(quietLogger()), WithHistory(history)).Sync(context.Background(), "schedule")
	require.Error(t, err)
	run, err = history.LastSyncRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, run.Status)
	assert.Contains(t, run.Error, "offline")
}

func TestSync_RecordsMetrics(t *testing.T) {
	_, cfg := setupConfig(t, "")
	gh := newFakeGitHub(repo(1, "alpha"))
	gh.readmes["octo/alpha"] = readmeWithAbstract

	reg := prometheus.NewRegistry()
	_, err := NewService(cfg, gh, WithLogger(quietLogger()), WithMetrics(metrics.NewCollector(reg))).Sync(context.Background(), "manual")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["portfolio_sync_runs_total"])
	assert.True(t, names["portfolio_sync_repo_outcomes_total"])
	assert.True(t, names["portfolio_projects"])
}

func TestOutcome_JSONOmitsError(t *testing.T) {
	data, err := json.Marshal(Outcome{Kind: models.OutcomeFailed, RepoName: "x", Reason: "boom", Err: errors.New("boom")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"failed","repoId":0,"repoName":"x","reason":"boom"}`, string(data))
}
