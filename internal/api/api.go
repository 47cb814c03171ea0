package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BaCuaBan77/Portfolio-generator/internal/github"
	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
	"github.com/BaCuaBan77/Portfolio-generator/internal/scheduler"
	"github.com/BaCuaBan77/Portfolio-generator/internal/store"
)

const defaultRunsLimit = 20

// SyncController is the scheduler surface the API needs.
type SyncController interface {
	TriggerNow(trigger string) bool
	Status() scheduler.Status
}

// Server provides the REST API handlers.
type Server struct {
	config  store.ConfigStore
	history store.HistoryStore
	sync    SyncController
	gh      github.Client
	metrics http.Handler
	logger  *slog.Logger

	syncToken string
}

// Option configures a Server.
type Option func(*Server)

// WithSyncToken requires "Authorization: Bearer <token>" on POST
// /api/v1/sync. Without a token the route answers 403.
func WithSyncToken(token string) Option {
	return func(s *Server) { s.syncToken = token }
}

// NewServer creates a new API server. history and metrics may be nil.
func NewServer(cfg store.ConfigStore, history store.HistoryStore, sync SyncController, gh github.Client, metrics http.Handler, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		history: history,
		sync:    sync,
		gh:      gh,
		metrics: metrics,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/portfolio", s.getPortfolio)
	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("GET /api/v1/projects/{id}", s.getProject)
	mux.HandleFunc("GET /api/v1/custom.css", s.customCSS)

	mux.HandleFunc("GET /api/v1/sync/status", s.syncStatus)
	mux.HandleFunc("GET /api/v1/sync/runs", s.listSyncRuns)
	mux.HandleFunc("GET /api/v1/sync/runs/{id}", s.getSyncRun)
	mux.HandleFunc("POST /api/v1/sync", s.triggerSync)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Portfolio ---

func (s *Server) getPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.config.ReadPortfolio(r.Context())
	if err != nil {
		s.logger.Error("read portfolio", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) customCSS(w http.ResponseWriter, r *http.Request) {
	css, err := s.config.ReadCustomCSS(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if css == "" {
		writeError(w, http.StatusNotFound, "no custom stylesheet")
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(css))
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	category := models.ProjectCategory(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, "category must be professional or personal")
		return
	}

	projects, err := s.config.ReadProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sorted := models.SortForDisplay(projects)
	if category != "" {
		filtered := sorted[:0]
		for _, p := range sorted {
			if p.Category == category {
				filtered = append(filtered, p)
			}
		}
		sorted = filtered
	}
	writeJSON(w, http.StatusOK, sorted)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	projects, err := s.config.ReadProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p, ok := models.FindProject(projects, r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Sync ---

type syncStatusResponse struct {
	Scheduler scheduler.Status     `json:"scheduler"`
	RateLimit github.RateLimitInfo `json:"rateLimit"`
	LastRun   *models.SyncRun      `json:"lastRun,omitempty"`
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	resp := syncStatusResponse{
		Scheduler: s.sync.Status(),
		RateLimit: s.gh.RateLimit(),
	}
	if s.history != nil {
		run, err := s.history.LastSyncRun(r.Context())
		switch {
		case err == nil:
			resp.LastRun = run
		case !errors.Is(err, store.ErrNoRuns):
			s.logger.Warn("load last sync run", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs := []*models.SyncRun{}
	if s.history != nil {
		list, err := s.history.ListSyncRuns(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list != nil {
			runs = list
		}
	}
	writeJSON(w, http.StatusOK, runs)
}

type syncRunDetail struct {
	*models.SyncRun
	Outcomes []models.RepoOutcome `json:"outcomes"`
}

func (s *Server) getSyncRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "sync history is disabled")
		return
	}
	id := r.PathValue("id")
	run, err := s.history.GetSyncRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	outcomes, err := s.history.ListRepoOutcomes(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if outcomes == nil {
		outcomes = []models.RepoOutcome{}
	}
	writeJSON(w, http.StatusOK, syncRunDetail{SyncRun: run, Outcomes: outcomes})
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if s.syncToken == "" {
		writeError(w, http.StatusForbidden, "sync trigger disabled: set serve.sync_token")
		return
	}
	if !bearerMatches(r, s.syncToken) {
		s.logger.Warn("rejected sync trigger", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid or missing sync token")
		return
	}
	if !s.sync.TriggerNow(scheduler.TriggerManual) {
		writeError(w, http.StatusConflict, "sync already in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

func bearerMatches(r *http.Request, token string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
