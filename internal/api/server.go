// Package api is the HTTP surface fronting the Pool, Script Store, Metrics,
// and Audit log (spec §4.6). Routing follows go-chi/chi/v5, adopted from
// the richer dependency stack available in the retrieved examples, in
// place of GonzoDMX's bare http.ServeMux.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pyhostd/pyhostd/internal/audit"
	"github.com/pyhostd/pyhostd/internal/auth"
	"github.com/pyhostd/pyhostd/internal/executor"
	"github.com/pyhostd/pyhostd/internal/metrics"
	"github.com/pyhostd/pyhostd/internal/pool"
	"github.com/pyhostd/pyhostd/internal/protocol"
	"github.com/pyhostd/pyhostd/internal/store"
)

// Limits bounds request payload sizes (spec §6.5).
type Limits struct {
	CodeBytes     int
	RequestTimeout time.Duration
	BorrowTimeout  time.Duration
}

// Server holds every dependency the HTTP surface dispatches to.
type Server struct {
	pool     *pool.Pool
	store    *store.Store
	metrics  *metrics.Recorder
	limiter  metrics.Limiter
	auditLog *audit.Log
	verifier *auth.Verifier
	limits   Limits
	logger   *slog.Logger
}

// NewServer wires the HTTP surface to its dependencies.
func NewServer(p *pool.Pool, st *store.Store, rec *metrics.Recorder, limiter metrics.Limiter,
	auditLog *audit.Log, verifier *auth.Verifier, limits Limits, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pool: p, store: st, metrics: rec, limiter: limiter, auditLog: auditLog, verifier: verifier, limits: limits, logger: logger}
}

// Router builds the chi router with the full middleware chain and route
// table from spec §4.6.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.securityHeaders)
	r.Use(s.corsMiddleware)
	r.Use(s.requestLog)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Post("/exec", s.handleExec)
		r.Post("/eval", s.handleEval)
		r.Post("/call-module", s.handleCallModule)
		r.Post("/check-syntax", s.handleCheckSyntax)
		r.Post("/completions", s.handleCompletions)

		r.Get("/pool-stats", s.handlePoolStats)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/metrics/historical", s.handleMetricsHistorical)
		r.Get("/metrics/alerts", s.handleMetricsAlerts)

		r.Route("/scripts", func(r chi.Router) {
			r.Get("/folders", s.handleScriptsFolders)
			r.Get("/", s.handleScriptsList)
			r.Post("/", s.handleScriptsSave)
			r.Get("/{name}", s.handleScriptsLoad)
			r.Delete("/{name}", s.handleScriptsDelete)
			r.Post("/{name}/call", s.handleScriptsCall)
			r.Post("/{name}/rename", s.handleScriptsRename)
			r.Post("/{name}/move", s.handleScriptsMove)
		})
	})

	return r
}

// dispatch borrows an Executor, runs one protocol.Request against it, and
// returns it, per the per-request pipeline in spec §4.6.
func (s *Server) dispatch(ctx context.Context, identity auth.Identity, scriptName string, req protocol.Request) (protocol.Response, error) {
	req.Mode = identity.Mode

	borrowCtx, cancel := context.WithTimeout(ctx, s.limits.BorrowTimeout)
	defer cancel()

	ex, err := s.pool.Borrow(borrowCtx)
	if err != nil {
		return protocol.Response{}, err
	}

	started := time.Now()
	resp, err := ex.Execute(ctx, req, s.limits.RequestTimeout)
	duration := time.Since(started)
	s.pool.Return(ex)

	outcome := metrics.OutcomeSuccess
	var kind protocol.ErrorKind
	if err != nil {
		outcome = metrics.OutcomeFailure
		kind = classifyDispatchErr(err)
	} else if !resp.Success && resp.Error != nil {
		outcome = metrics.OutcomeFailure
		kind = resp.Error.Kind
	}
	s.metrics.RecordExecution(scriptName, duration, outcome, kind)

	return resp, err
}

func classifyDispatchErr(err error) protocol.ErrorKind {
	switch {
	case errors.Is(err, executor.ErrTimeout):
		return protocol.KindTimeout
	case errors.Is(err, executor.ErrWorkerUnavailable):
		return protocol.KindWorkerUnavailable
	default:
		return protocol.KindInternalError
	}
}
