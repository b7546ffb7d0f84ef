// Package server exposes the ledger, the milestone approval flow and the
// operational jobs over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/programmer4yugal/buildchain/pkg/api"
	"github.com/programmer4yugal/buildchain/pkg/auth"
	"github.com/programmer4yugal/buildchain/pkg/ledger"
	"github.com/programmer4yugal/buildchain/pkg/lifecycle"
	"github.com/programmer4yugal/buildchain/pkg/snapshot"
)

const maxBodyBytes = 1 << 20

// Deps are the components served by the API. Exporter, Limiter and Clock
// are optional.
type Deps struct {
	Writer     *ledger.Writer
	Verifier   *ledger.Verifier
	Strict     *ledger.Verifier
	Reconciler *ledger.Reconciler
	Lifecycle  *lifecycle.Service
	Exporter   *snapshot.Exporter
	Validator  *auth.Validator
	Limiter    *api.RateLimiter

	// Clock stamps creation times on new records; nil uses time.Now.
	Clock func() time.Time
}

// Server routes API requests.
type Server struct {
	deps    Deps
	schemas *SchemaSet
	logger  *slog.Logger
}

// New validates deps and compiles the request schemas.
func New(deps Deps) (*Server, error) {
	if deps.Writer == nil || deps.Verifier == nil || deps.Reconciler == nil || deps.Lifecycle == nil {
		return nil, errors.New("server: writer, verifier, reconciler and lifecycle are required")
	}
	if deps.Strict == nil {
		deps.Strict = deps.Verifier
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	schemas, err := LoadSchemas()
	if err != nil {
		return nil, err
	}
	return &Server{
		deps:    deps,
		schemas: schemas,
		logger:  slog.Default().With("component", "server"),
	}, nil
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.deps.Limiter != nil {
		r.Use(s.deps.Limiter.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteNotFound(w, r, "No such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, r, http.StatusMethodNotAllowed, "Method not supported for this route")
	})

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// Transparency reads: open to anonymous callers and the public role.
		r.Group(func(r chi.Router) {
			r.Use(auth.NewOptionalMiddleware(s.deps.Validator))
			r.Get("/ledger/tip", s.handleTip)
			r.Get("/ledger/verify", s.handleVerify)
			r.Get("/ledger/blocks", s.handleTimeline)
			r.Get("/blocks/{category}", s.handleListBlocks)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.NewMiddleware(s.deps.Validator))
			r.Post("/blocks/{category}", s.handleAppendBlock)

			r.With(auth.RequireRole(auth.RoleAdmin, auth.RoleContractor)).Get("/submissions", s.handleListSubmissions)
			r.With(auth.RequireRole(auth.RoleContractor)).Post("/submissions", s.handleSubmit)
			r.With(auth.RequireRole(auth.RoleAdmin)).Post("/submissions/{id}/approve", s.handleApprove)

			r.With(auth.RequireRole(auth.RoleAdmin)).Post("/projections/reconcile", s.handleReconcile)
			r.With(auth.RequireRole(auth.RoleAdmin)).Post("/snapshots", s.handleSnapshot)
		})
	})
	return r
}

func (s *Server) now() time.Time { return s.deps.Clock() }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
