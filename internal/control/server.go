// Package control exposes a running workflow's signals, queries, result and
// metrics over HTTP, and provides the matching client.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/pbvs/internal/orchestrator"
)

// Workflow is the part of an orchestrator the control surface drives.
type Workflow interface {
	ProjectID() string
	Signal(name, payload string) error
	Query(name string) (any, error)
	Result() (*orchestrator.Result, bool)
}

var _ Workflow = (*orchestrator.Orchestrator)(nil)

// SignalRequest is the body of POST /api/signals/{name}.
type SignalRequest struct {
	Payload string `json:"payload,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	workflow Workflow
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a control server. gatherer may be nil, in which case
// /metrics is not served.
func NewServer(wf Workflow, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{workflow: wf, gatherer: gatherer, logger: logger}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(slogMiddleware(s.logger))
		r.Post("/signals/{name}", s.handleSignal)
		r.Get("/queries/{name}", s.handleQuery)
		r.Get("/result", s.handleResult)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- s.server.ListenAndServe() }()
	s.logger.Info("control server listening", "addr", addr, "project_id", s.workflow.ProjectID())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.workflow.Signal(name, req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "signal": name})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	v, err := s.workflow.Query(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.workflow.Result()
	if !ok {
		writeError(w, http.StatusNotFound, "workflow has not finished")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
