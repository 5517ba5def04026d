package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/diagnostic"
	"github.com/repolens/repolens/internal/github"
	"github.com/repolens/repolens/internal/model"
	"github.com/repolens/repolens/internal/prefs"
	"github.com/repolens/repolens/internal/syncer"
	"github.com/repolens/repolens/internal/visuals"
)

// DashboardStream is the diagnostic stream API handlers report into
const DashboardStream = "dashboard.api"

// RepositoryService is the slice of the GitHub client the handlers use,
// normally *github.Client
type RepositoryService interface {
	GetRepository(ctx context.Context, owner, name string) (*model.Repository, error)
	ListVisualFiles(ctx context.Context, owner, name string) ([]string, error)
	GetFileContent(ctx context.Context, owner, name, path string) (string, error)
}

// Server wires the dashboard HTTP endpoints to the aggregator, the GitHub
// client, and the preferences store. The repository service may be nil when
// no token is configured; affected routes render a configuration message
// instead of failing.
type Server struct {
	logger     *zap.Logger
	mux        *http.ServeMux
	aggregator *diagnostic.Aggregator
	gh         RepositoryService
	syncer     *syncer.Syncer
	parser     *visuals.Parser
	prefs      *prefs.Store
}

// NewServer assembles the routes with their dependencies
func NewServer(logger *zap.Logger, aggregator *diagnostic.Aggregator, gh RepositoryService, sync *syncer.Syncer, parser *visuals.Parser, store *prefs.Store) *Server {
	s := &Server{
		logger:     logger.Named("api"),
		mux:        http.NewServeMux(),
		aggregator: aggregator,
		gh:         gh,
		syncer:     sync,
		parser:     parser,
		prefs:      store,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /api/repos", s.handleListRepos)
	s.mux.HandleFunc("GET /api/repos/{owner}/{name}", s.handleGetRepo)
	s.mux.HandleFunc("GET /api/repos/{owner}/{name}/visuals", s.handleGetVisuals)
	s.mux.HandleFunc("GET /api/diagnostics/streams", s.handleListStreams)
	s.mux.HandleFunc("GET /api/diagnostics/streams/{stream}", s.handleStreamSummary)
	s.mux.HandleFunc("GET /api/diagnostics/streams/{stream}/events", s.handleStreamEvents)
	s.mux.HandleFunc("GET /api/diagnostics/report", s.handleReport)
	s.mux.HandleFunc("GET /api/prefs", s.handleGetPrefs)
	s.mux.HandleFunc("PUT /api/prefs", s.handlePutPrefs)
	s.mux.HandleFunc("POST /api/prefs/recent", s.handleTouchRecent)
}

// Handler returns the root handler with request logging attached
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(started)))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRepos serves the syncer's snapshot: the dashboard keeps showing
// the last good list when GitHub is down
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	if s.gh == nil {
		s.writeConfigError(w)
		return
	}

	repos, syncedAt := s.syncer.Repositories()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"repositories": repos,
		"synced_at":    syncedAt,
	})
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	if s.gh == nil {
		s.writeConfigError(w)
		return
	}

	owner := r.PathValue("owner")
	name := r.PathValue("name")

	repo, err := s.gh.GetRepository(r.Context(), owner, name)
	if err != nil {
		s.aggregator.Record(DashboardStream, "dashboard.repo.fetch.failure", fetchSeverity(err),
			fmt.Sprintf("failed to fetch %s/%s: %v", owner, name, err), nil)

		switch {
		case errors.Is(err, github.ErrNotFound):
			s.writeNotFound(w, fmt.Sprintf("repository %s/%s", owner, name))
		case errors.Is(err, github.ErrUnauthorized):
			s.writeConfigError(w)
		default:
			s.writeInternal(w, err)
		}
		return
	}

	s.aggregator.Record(DashboardStream, "dashboard.repo.fetch.success", model.SeverityInfo,
		fmt.Sprintf("fetched %s/%s", owner, name), nil)

	if err := s.prefs.TouchRecent(repo.FullName); err != nil {
		s.logger.Warn("Failed to update recent repositories", zap.Error(err))
	}

	s.writeJSON(w, http.StatusOK, repo)
}

// handleGetVisuals lists and parses the repo's VISUALS/ files. Lookup and
// parse failures degrade to an empty or partial document list; only a
// missing repository is an error.
func (s *Server) handleGetVisuals(w http.ResponseWriter, r *http.Request) {
	if s.gh == nil {
		s.writeConfigError(w)
		return
	}

	owner := r.PathValue("owner")
	name := r.PathValue("name")

	paths, err := s.gh.ListVisualFiles(r.Context(), owner, name)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			// Not-found is ambiguous here: the folder may be absent from a
			// real repository, or the repository itself may not exist.
			if _, repoErr := s.gh.GetRepository(r.Context(), owner, name); repoErr != nil {
				if errors.Is(repoErr, github.ErrNotFound) {
					s.writeNotFound(w, fmt.Sprintf("repository %s/%s", owner, name))
					return
				}
				s.writeInternal(w, repoErr)
				return
			}
			// No VISUALS/ folder is not an error condition
			s.writeJSON(w, http.StatusOK, map[string]interface{}{"visuals": []model.VisualDoc{}})
			return
		}
		s.writeInternal(w, err)
		return
	}

	docs := make([]model.VisualDoc, 0, len(paths))
	for _, path := range paths {
		content, err := s.gh.GetFileContent(r.Context(), owner, name, path)
		if err != nil {
			s.aggregator.Record(DashboardStream, "dashboard.visuals.fetch.failure", model.SeverityWarning,
				fmt.Sprintf("failed to fetch %s: %v", path, err), nil)
			continue
		}

		doc, err := s.parser.Parse(path, content)
		if err != nil {
			s.aggregator.Record(DashboardStream, "dashboard.visuals.parse.failure", model.SeverityWarning,
				fmt.Sprintf("failed to parse %s: %v", path, err), nil)
			continue
		}
		docs = append(docs, *doc)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"visuals": docs})
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"streams": s.aggregator.Streams()})
}

func (s *Server) handleStreamSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.aggregator.Summarize(r.PathValue("stream")))
}

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	filter := diagnostic.Filter{
		Code:     r.URL.Query().Get("code"),
		Severity: model.Severity(r.URL.Query().Get("severity")),
	}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since parameter", "use RFC 3339, e.g. 2026-01-02T15:04:05Z")
			return
		}
		filter.Since = since
	}

	events := s.aggregator.Query(r.PathValue("stream"), filter)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.aggregator.Report())
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.prefs.Get())
}

func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body", "")
		return
	}

	if err := s.prefs.Import(body); err != nil {
		s.aggregator.Record(DashboardStream, "dashboard.prefs.validation.failure", model.SeverityWarning,
			fmt.Sprintf("rejected preferences payload: %v", err), nil)
		s.writeError(w, http.StatusBadRequest, "invalid preferences payload", "")
		return
	}

	s.writeJSON(w, http.StatusOK, s.prefs.Get())
}

func (s *Server) handleTouchRecent(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		s.writeError(w, http.StatusBadRequest, "missing repo parameter", "pass ?repo=owner/name")
		return
	}

	if err := s.prefs.TouchRecent(repo); err != nil {
		s.writeInternal(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.prefs.Get())
}

// ListenAndServe runs the HTTP server until the context is canceled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// fetchSeverity maps a GitHub fetch error to the severity it is recorded at
func fetchSeverity(err error) model.Severity {
	if errors.Is(err, github.ErrNotFound) {
		return model.SeverityWarning
	}
	return model.SeverityDegraded
}
