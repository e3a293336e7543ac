// Package web provides the HTTP API server for carevisit.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/evcraddock/carevisit/internal/auth"
	"github.com/evcraddock/carevisit/internal/db"
	"github.com/evcraddock/carevisit/internal/logging"
	"github.com/evcraddock/carevisit/internal/visit"
)

const shutdownTimeout = 10 * time.Second

// Server is the carevisit API server.
type Server struct {
	visits  *visit.Repository
	apiKeys *auth.APIKeyStore
	cfg     auth.Config
	logger  zerolog.Logger
	now     func() time.Time

	mux     *http.ServeMux
	handler http.Handler
}

// NewServer creates an API server backed by the given database.
func NewServer(d *db.DB, cfg auth.Config) *Server {
	s := &Server{
		visits:  visit.NewRepository(d),
		apiKeys: auth.NewAPIKeyStore(d),
		cfg:     cfg,
		logger:  logging.Component("web"),
		now:     time.Now,
		mux:     http.NewServeMux(),
	}

	keys := &apikeyHandlers{apiKeys: s.apiKeys}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/me", s.handleMe)
	s.mux.HandleFunc("/api/schedules", s.handleAPISchedules)
	s.mux.HandleFunc("/api/schedules/", s.handleAPISchedules)
	s.mux.HandleFunc("/api/tasks/", s.handleAPITasks)
	s.mux.HandleFunc("/api/keys", keys.handleAPIKeysRoute)
	s.mux.HandleFunc("/api/keys/", keys.handleAPIKeysRoute)
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		apiError(w, "not found", http.StatusNotFound)
	})

	var h http.Handler = s.mux
	if !cfg.DevMode {
		h = auth.RequireAPIKey(s.apiKeys, auth.NewFailureLimiter(cfg.MaxFailuresPerMinute), h)
	}
	s.handler = logging.RequestLogger(h)

	return s
}

// Visits returns the repository the server serves from.
func (s *Server) Visits() *visit.Repository {
	return s.visits
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Bool("dev_mode", s.cfg.DevMode).Msg("starting api server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
