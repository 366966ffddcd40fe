// Package server exposes stored corpus snapshots over HTTP so they can be
// re-sliced by file, language, note, and event type without re-running
// alignment.
//
// Routes:
//
//	GET    /v1/runs                 list runs, newest first (?limit=N)
//	GET    /v1/runs/{id}            full corpus report of a run
//	POST   /v1/runs/{id}/reslice    aggregate a [metrics.Selection] body
//	DELETE /v1/runs/{id}            drop a run
//	GET    /healthz, /readyz        probes
//	GET    /metrics                 Prometheus scrape
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/asreval/internal/health"
	"github.com/MrWong99/asreval/internal/metrics"
	"github.com/MrWong99/asreval/internal/observe"
	"github.com/MrWong99/asreval/internal/report"
	"github.com/MrWong99/asreval/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
	maxBodyBytes    = 1 << 20
)

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the instruments used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer sets the registry served on /metrics. Defaults to
// [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCheckers adds readiness checks to /readyz.
func WithCheckers(c ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, c...) }
}

// Server serves the re-slicing API on top of a [store.Store].
type Server struct {
	store    store.Store
	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	checkers []health.Checker
	handler  http.Handler
}

// New builds a Server on st. A store readiness check is always registered.
func New(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:    st,
		metrics:  observe.DefaultMetrics(),
		gatherer: prometheus.DefaultGatherer,
		checkers: []health.Checker{health.ListChecker[store.Run]("store", st)},
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/runs", s.listRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.getRun)
	mux.HandleFunc("POST /v1/runs/{id}/reslice", s.reslice)
	mux.HandleFunc("DELETE /v1/runs/{id}", s.deleteRun)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	health.New(s.checkers...).Register(mux)

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the root handler with tracing and request metrics applied.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := report.WriteCorpus(w, c); err != nil {
		observe.Logger(r.Context()).Error("server: write corpus", "err", err)
	}
}

func (s *Server) reslice(w http.ResponseWriter, r *http.Request) {
	var sel metrics.Selection
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode selection: %w", err))
		return
	}

	c, _, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics.Reslice(c, sel))
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps store errors to a status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	observe.Logger(r.Context()).Error("server: store failure", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}
