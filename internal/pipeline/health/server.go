package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/pipeline/recovery"
)

// ErrorQuerier is the read side of the error store.
type ErrorQuerier interface {
	Query(ctx context.Context, filter domain.ErrorFilter) ([]*domain.ErrorRecord, error)
	AnalyzePatterns(ctx context.Context, since time.Time) (*domain.PatternAnalysis, error)
}

// Recoverer is the recovery engine as seen by the HTTP surface.
type Recoverer interface {
	Actions(ctx context.Context) ([]*domain.RecoveryAction, error)
	HandleError(ctx context.Context, err error, rc recovery.Context) *domain.RecoveryAction
}

// handleErrorRequest is the body of POST /recovery/handle.
type handleErrorRequest struct {
	Message       string           `json:"message"`
	Code          string           `json:"code,omitempty"`
	AgentID       string           `json:"agent_id,omitempty"`
	TaskID        string           `json:"task_id,omitempty"`
	FilePath      string           `json:"file_path,omitempty"`
	RetryCount    int              `json:"retry_count,omitempty"`
	Category      domain.ErrorKind `json:"category,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	monitor *Monitor
	errors  ErrorQuerier
	actions Recoverer
	server  *http.Server
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, errs ErrorQuerier, actions Recoverer, port int) *Server {
	s := &Server{
		monitor: monitor,
		errors:  errs,
		actions: actions,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleDetailed)
	r.Get("/health/{agentID}", s.handleAgent)
	r.Get("/errors", s.handleErrors)
	r.Get("/patterns", s.handlePatterns)
	r.Get("/recovery/actions", s.handleActions)
	r.Post("/agents/{agentID}/metrics", s.handleRecordMetrics)
	r.Post("/recovery/handle", s.handleRecover)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	slog.Info("Health server listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	for _, agentID := range s.monitor.Agents() {
		if !s.monitor.PerformHealthCheck(r.Context(), agentID).Healthy {
			status = "unhealthy"
			break
		}
	}

	if status != "healthy" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, map[string]string{"status": status})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	agents := s.monitor.Agents()
	report := make([]*domain.HealthCheckResult, 0, len(agents))
	for _, agentID := range agents {
		report = append(report, s.monitor.PerformHealthCheck(r.Context(), agentID))
	}
	render.JSON(w, r, report)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	result := s.monitor.PerformHealthCheck(r.Context(), agentID)
	if !result.Healthy {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, result)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ErrorFilter{
		Kind:     domain.ErrorKind(q.Get("type")),
		Severity: domain.Severity(q.Get("severity")),
		Category: q.Get("category"),
		FilePath: q.Get("file"),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: "since must be RFC3339"})
			return
		}
		filter.Since = t
	}

	records, err := s.errors.Query(r.Context(), filter)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, records)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.errors.AnalyzePatterns(r.Context(), time.Time{})
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, analysis)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.actions.Actions(r.Context())
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, actions)
}

func (s *Server) handleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var update domain.MetricsUpdate
	if err := render.DecodeJSON(r.Body, &update); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "invalid metrics body"})
		return
	}
	if !update.Status.Valid() {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: fmt.Sprintf("unknown status %q", update.Status)})
		return
	}

	snap, err := s.monitor.RecordMetrics(r.Context(), agentID, update)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Error: err.Error()})
		return
	}
	render.JSON(w, r, snap)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req handleErrorRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Message == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Error: "message is required"})
		return
	}

	failure := errors.New(req.Message)
	if req.Code != "" {
		failure = recovery.NewError(req.Code, failure)
	}
	action := s.actions.HandleError(r.Context(), failure, recovery.Context{
		AgentID:       req.AgentID,
		TaskID:        req.TaskID,
		FilePath:      req.FilePath,
		RetryCount:    req.RetryCount,
		Category:      req.Category,
		CorrelationID: req.CorrelationID,
	})
	render.JSON(w, r, action)
}
