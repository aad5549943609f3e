// Package server exposes the tool dispatcher, pending confirmations, the
// event feed and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/logger"
	"github.com/julianstephens/flux/internal/metrics"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/state"
	"github.com/julianstephens/flux/internal/tools"
	"github.com/julianstephens/flux/internal/workflow"
)

const maxBodyBytes = 1 << 20

// Viewer reads a user's State through the runtime.
type Viewer interface {
	View(ctx context.Context, userID string, fn func(models.State)) error
}

type Server struct {
	addr       string
	state      Viewer
	dispatcher *tools.Dispatcher
	reporter   *workflow.Reporter
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(addr string, v Viewer, d *tools.Dispatcher, r *workflow.Reporter, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		state:      v,
		dispatcher: d,
		reporter:   r,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /v1/tools", s.handleCatalog)
	mux.HandleFunc("POST /v1/users/{user}/tools/{name}", s.handleDispatch)
	mux.HandleFunc("GET /v1/users/{user}/tool-calls", s.handlePending)
	mux.HandleFunc("POST /v1/users/{user}/tool-calls/{callId}", s.handleResolve)
	mux.HandleFunc("DELETE /v1/users/{user}/session", s.handleEndSession)
	mux.HandleFunc("GET /v1/users/{user}/events", s.handleEvents)
	mux.HandleFunc("GET /v1/users/{user}/plans", s.handlePlans)
	mux.HandleFunc("GET /v1/users/{user}/workflow", s.handleWorkflow)
	mux.HandleFunc("POST /v1/users/{user}/workflow/dismiss", s.handleDismiss)
	mux.HandleFunc("GET /v1/users/{user}/prompt", s.handlePrompt)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return logRequests(mux)
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve handles connections on ln and shuts down gracefully when ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tools.Catalog())
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return
	}

	res, err := s.dispatcher.Dispatch(r.Context(), r.PathValue("user"), r.PathValue("name"), body)
	if errors.Is(err, tools.ErrUnknownTool) {
		writeJSONError(w, http.StatusNotFound, "unknown_tool", err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "dispatch_failed", err.Error())
		return
	}

	status := http.StatusOK
	if res.Status == tools.StatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Pending(r.PathValue("user")))
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	res, err := s.dispatcher.Resolve(r.Context(), r.PathValue("user"), r.PathValue("callId"), req.Decision)
	switch {
	case errors.Is(err, tools.ErrNoPendingCall):
		writeJSONError(w, http.StatusNotFound, "no_pending_call", err.Error())
	case errors.Is(err, tools.ErrInvalidDecision):
		writeJSONError(w, http.StatusBadRequest, "invalid_decision", err.Error())
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, "resolve_failed", err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	n := s.dispatcher.EndSession(r.PathValue("user"))
	writeJSON(w, http.StatusOK, map[string]int{"discarded": n})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := constants.EventFeedLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	var events []models.Event
	if !s.view(w, r, func(st models.State) { events = st.RecentEvents(limit) }) {
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	var plans []models.PlanSummary
	if !s.view(w, r, func(st models.State) { plans = state.New(&st).ListPlans() }) {
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf models.WorkflowStatus
	if !s.view(w, r, func(st models.State) { wf = state.New(&st).Workflow() }) {
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	dismissed, err := s.reporter.Dismiss(r.Context(), r.PathValue("user"))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "dismiss_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": dismissed})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var prompt string
	if !s.view(w, r, func(st models.State) { prompt = tools.SystemPrompt(st, s.now()) }) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, prompt)
}

// view runs fn against the user's State and reports whether it succeeded.
// On failure the error response has already been written.
func (s *Server) view(w http.ResponseWriter, r *http.Request, fn func(models.State)) bool {
	if err := s.state.View(r.Context(), r.PathValue("user"), fn); err != nil {
		logger.Error("Failed to read state", "user", r.PathValue("user"), "error", err)
		writeJSONError(w, http.StatusInternalServerError, "state_unavailable", err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code. Data is
// encoded before the header goes out, so encoding failures become a 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal_error","message":"failed to encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}
