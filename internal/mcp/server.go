package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/BaCuaBan77/Portfolio-generator/internal/github"
	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
	"github.com/BaCuaBan77/Portfolio-generator/internal/refresh"
	"github.com/BaCuaBan77/Portfolio-generator/internal/scheduler"
	"github.com/BaCuaBan77/Portfolio-generator/internal/store"
)

// Syncer runs one sync cycle.
type Syncer interface {
	Sync(ctx context.Context, trigger string) (*refresh.Result, error)
}

// Server exposes the portfolio config and sync history as MCP tools.
type Server struct {
	config  store.ConfigStore
	history store.HistoryStore
	syncer  Syncer
	gh      github.Client
	version string

	syncing atomic.Bool
}

// NewServer creates the MCP server wrapper. history may be nil.
func NewServer(cfg store.ConfigStore, history store.HistoryStore, syncer Syncer, gh github.Client, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{
		config:  cfg,
		history: history,
		syncer:  syncer,
		gh:      gh,
		version: version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("portfolio", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.getProjectTool())
	srv.AddTool(s.syncStatusTool())
	srv.AddTool(s.runSyncTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// portfolio_list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("portfolio_list_projects",
		mcp.WithDescription("List portfolio projects in display order. Returns a JSON array with id, name, category, summary, stars, technologies and githubUrl."),
		mcp.WithString("category", mcp.Description("Filter by category: professional or personal")),
	)
	return tool, s.handleListProjects
}

type projectOut struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Summary      string   `json:"summary"`
	Stars        int      `json:"stars"`
	Technologies []string `json:"technologies"`
	GitHubURL    string   `json:"githubUrl,omitempty"`
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := models.ProjectCategory(request.GetString("category", ""))
	if category != "" && !category.Valid() {
		return mcp.NewToolResultError("category must be professional or personal"), nil
	}

	projects, err := s.config.ReadProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read projects: %v", err)), nil
	}

	out := []projectOut{}
	for _, p := range models.SortForDisplay(projects) {
		if category != "" && p.Category != category {
			continue
		}
		techs := p.Technologies
		if techs == nil {
			techs = []string{}
		}
		out = append(out, projectOut{
			ID:           p.ID,
			Name:         p.Name,
			Category:     string(p.Category),
			Summary:      p.Summary(),
			Stars:        p.Stars,
			Technologies: techs,
			GitHubURL:    p.GitHubURL,
		})
	}
	return jsonResult(out)
}

// portfolio_get_project
func (s *Server) getProjectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("portfolio_get_project",
		mcp.WithDescription("Get one project record exactly as stored in projects.json. Resolves by id, then by name."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or name")),
	)
	return tool, s.handleGetProject
}

func (s *Server) handleGetProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	projects, err := s.config.ReadProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read projects: %v", err)), nil
	}
	p, ok := models.FindProject(projects, key)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", key)), nil
	}
	return jsonResult(p)
}

// portfolio_sync_status
func (s *Server) syncStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("portfolio_sync_status",
		mcp.WithDescription("Show the most recent sync run with its per-repository outcomes and the current GitHub rate limit."),
	)
	return tool, s.handleSyncStatus
}

type syncStatusOut struct {
	LastRun   *models.SyncRun      `json:"lastRun"`
	Outcomes  []models.RepoOutcome `json:"outcomes"`
	RateLimit github.RateLimitInfo `json:"rateLimit"`
}

func (s *Server) handleSyncStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := syncStatusOut{Outcomes: []models.RepoOutcome{}}
	if s.gh != nil {
		out.RateLimit = s.gh.RateLimit()
	}

	if s.history != nil {
		run, err := s.history.LastSyncRun(ctx)
		switch {
		case errors.Is(err, store.ErrNoRuns):
		case err != nil:
			return mcp.NewToolResultError(fmt.Sprintf("failed to load sync history: %v", err)), nil
		default:
			out.LastRun = run
			outcomes, err := s.history.ListRepoOutcomes(ctx, run.ID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to load outcomes: %v", err)), nil
			}
			if outcomes != nil {
				out.Outcomes = outcomes
			}
		}
	}
	return jsonResult(out)
}

// portfolio_run_sync
func (s *Server) runSyncTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("portfolio_run_sync",
		mcp.WithDescription("Run one GitHub sync cycle now and return the summary counts. Rewrites projects.json on success."),
	)
	return tool, s.handleRunSync
}

type syncResultOut struct {
	RunID        string `json:"runId,omitempty"`
	Total        int    `json:"total"`
	Professional int    `json:"professional"`
	Personal     int    `json:"personal"`
	Added        int    `json:"added"`
	Updated      int    `json:"updated"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	Duration     string `json:"duration"`
}

func (s *Server) handleRunSync(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		slog.Info("sync already in progress, skipping", "trigger", scheduler.TriggerManual)
		return mcp.NewToolResultError("sync already in progress"), nil
	}
	defer s.syncing.Store(false)

	res, err := s.syncer.Sync(ctx, scheduler.TriggerManual)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}
	return jsonResult(syncResultOut{
		RunID:        res.RunID,
		Total:        res.Total,
		Professional: res.Professional,
		Personal:     res.Personal,
		Added:        res.Added,
		Updated:      res.Updated,
		Skipped:      res.Skipped,
		Failed:       res.Failed,
		Duration:     res.Duration.Round(time.Millisecond).String(),
	})
}
