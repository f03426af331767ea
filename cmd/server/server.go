package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/liamcoop/ruleeval/internal/logger"
	"github.com/liamcoop/ruleeval/internal/metrics"
	"github.com/liamcoop/ruleeval/rules"
)

const (
	defaultMaxBodySize    = 1 << 20
	defaultRequestTimeout = 60 * time.Second
)

// Pinger reports whether the backing database is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ServerOptions carries the optional collaborators of a Server
type ServerOptions struct {
	DB             Pinger
	Metrics        *metrics.Metrics
	Production     bool
	MaxBodySize    int64
	RequestTimeout time.Duration
}

type Server struct {
	engine      *rules.Engine
	db          Pinger
	metrics     *metrics.Metrics
	production  bool
	maxBodySize int64
	router      *chi.Mux
}

// NewServer builds the HTTP API over an engine
func NewServer(engine *rules.Engine, opts ServerOptions) *Server {
	s := &Server{
		engine:      engine,
		db:          opts.DB,
		metrics:     opts.Metrics,
		production:  opts.Production,
		maxBodySize: opts.MaxBodySize,
	}
	if s.maxBodySize <= 0 {
		s.maxBodySize = defaultMaxBodySize
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s.setupRoutes(timeout)

	return s
}

func (s *Server) setupRoutes(timeout time.Duration) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Timeout(timeout))

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/evaluation", s.handleEvaluate)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{id}", s.handleGetRule)
			r.Post("/{id}", s.handleCreateRule)
			r.Put("/{id}", s.handleUpdateRule)
			r.Delete("/{id}", s.handleDeleteRule)
		})

		r.Route("/variables", func(r chi.Router) {
			r.Get("/", s.handleListVariables)
			r.Post("/", s.handleCreateVariable)
			r.Get("/{id}", s.handleGetVariable)
			r.Post("/{id}", s.handleCreateVariable)
			r.Put("/{id}", s.handleUpdateVariable)
			r.Delete("/{id}", s.handleDeleteVariable)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp := HealthResponse{Status: "unhealthy"}
			if !s.production {
				resp.Error = err.Error()
			}
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// Evaluation handler: GET /api/v1/evaluation?variable=<base64 JSON>
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	encoded := r.URL.Query().Get("variable")
	if encoded == "" {
		s.respondError(w, r, http.StatusBadRequest, "variable query parameter is required", nil)
		return
	}

	evaluationID := uuid.NewString()
	w.Header().Set("X-Evaluation-ID", evaluationID)

	start := time.Now()
	results, err := s.engine.EvaluateEncoded(r.Context(), encoded)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveEvaluation(elapsed)
	}
	logger.Debug("Evaluation completed",
		"evaluation_id", evaluationID,
		"request_id", middleware.GetReqID(r.Context()),
		"matched", len(results),
		"duration", elapsed.String(),
	)

	respondJSON(w, http.StatusOK, results)
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListRules(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	rule, err := s.engine.GetRule(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Create rule handler, POST / generates the id and POST /{id} uses it
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.optionalID(w, r)
	if !ok {
		return
	}

	var req RuleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	rule := req.toRule(id)
	if err := s.engine.CreateRule(r.Context(), rule); err != nil {
		s.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	var req RuleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	rule := req.toRule(id)
	if err := s.engine.UpdateRule(r.Context(), rule); err != nil {
		s.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	if err := s.engine.DeleteRule(r.Context(), id); err != nil {
		s.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List variables handler
func (s *Server) handleListVariables(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListVariables(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, VariablesListResponse{Variables: list})
}

// Get variable handler
func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	v, err := s.engine.GetVariable(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, v)
}

// Create variable handler
func (s *Server) handleCreateVariable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.optionalID(w, r)
	if !ok {
		return
	}

	var req VariableRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	v := req.toVariable(id)
	if err := s.engine.CreateVariable(r.Context(), v); err != nil {
		s.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, v)
}

// Update variable handler
func (s *Server) handleUpdateVariable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	var req VariableRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	v := req.toVariable(id)
	if err := s.engine.UpdateVariable(r.Context(), v); err != nil {
		s.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, v)
}

// Delete variable handler
func (s *Server) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	if err := s.engine.DeleteVariable(r.Context(), id); err != nil {
		s.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid id %q: must be a positive integer", raw), nil)
		return 0, false
	}
	return id, true
}

// optionalID is parseID for routes that also exist without an {id}
func (s *Server) optionalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if chi.URLParam(r, "id") == "" {
		return 0, true
	}
	return s.parseID(w, r)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		s.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// handleError maps domain errors to HTTP statuses
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var decodeErr *rules.DecodeError
	var validationErr *rules.ValidationError

	switch {
	case errors.As(err, &decodeErr):
		s.respondError(w, r, http.StatusBadRequest, "invalid evaluation payload", err)
	case errors.As(err, &validationErr):
		s.respondError(w, r, http.StatusBadRequest, validationErr.Error(), nil)
	case errors.Is(err, rules.ErrNotFound):
		s.respondError(w, r, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, rules.ErrConflict):
		s.respondError(w, r, http.StatusConflict, err.Error(), nil)
	default:
		s.respondError(w, r, http.StatusInternalServerError, "internal server error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	response := ErrorResponse{Error: message}

	if status >= http.StatusInternalServerError {
		logger.ErrorHttp5xx()
		logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		if err != nil && !s.production {
			response.Details = err.Error()
		}
	} else {
		logger.WarnHttp4xx(status)
		if err != nil {
			response.Details = err.Error()
		}
	}

	respondJSON(w, status, response)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}
