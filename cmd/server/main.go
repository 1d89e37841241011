package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/myscheduling/validation/internal/config"
	"github.com/myscheduling/validation/internal/logger"
	"github.com/myscheduling/validation/validation"
)

type Server struct {
	db     *sql.DB
	store  validation.RuleStore
	engine *validation.Engine
	router *chi.Mux
}

func NewServer(cfg *config.Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := validation.NewPostgresRuleStore(db)
	cache := validation.NewInMemoryRuleSetCache(validation.CacheConfig{TTL: cfg.RuleCacheTTL})
	engine := validation.NewEngineWithCache(store, cache, nil)

	s := &Server{
		db:     db,
		store:  store,
		engine: engine,
	}
	s.setupRoutes(cfg)
	return s, nil
}

// NewServerWithStore builds a server around an existing rule store. Tests
// and embedders that bring their own persistence use it; there is no
// database, so the health check only reports process liveness.
func NewServerWithStore(store validation.RuleStore, cfg *config.Config) *Server {
	s := &Server{
		store:  store,
		engine: validation.NewEngine(store),
	}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg *config.Config) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/api/v1/health", s.handleHealth)

	// Validation
	r.Post("/api/v1/validate", s.handleValidate)
	r.Post("/api/v1/validate-field", s.handleValidateField)
	r.Post("/api/v1/rules/test", s.handleTestRule)
	r.Post("/api/v1/expression/validate", s.handleValidateExpression)

	// Rule administration
	r.Route("/api/v1/tenants/{tenantId}/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Put("/", s.handleUpdateRule)
			r.Delete("/", s.handleDeleteRule)
			r.Post("/activate", s.handleActivateRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "unhealthy", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TenantID == "" || req.EntityType == "" {
		respondError(w, http.StatusBadRequest, "tenantId and entityType are required", nil)
		return
	}
	if req.Data == nil {
		respondError(w, http.StatusBadRequest, "data is required", nil)
		return
	}

	result, err := s.engine.Validate(req.EntityType, req.Data, req.TenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "validation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleValidateField(w http.ResponseWriter, r *http.Request) {
	var req ValidateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TenantID == "" || req.EntityType == "" || req.FieldName == "" {
		respondError(w, http.StatusBadRequest, "tenantId, entityType and fieldName are required", nil)
		return
	}

	result, err := s.engine.ValidateField(req.EntityType, req.FieldName, req.FieldValue, req.Data, req.TenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "validation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	var req TestRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Rule.RuleType == "" {
		respondError(w, http.StatusBadRequest, "rule.ruleType is required", nil)
		return
	}

	rule := req.Rule.toRule("", "preview")
	respondJSON(w, http.StatusOK, s.engine.TestRule(rule, req.TestData))
}

func (s *Server) handleValidateExpression(w http.ResponseWriter, r *http.Request) {
	var req ValidateExpressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	respondJSON(w, http.StatusOK, ValidateExpressionResponse{
		Valid: s.engine.ValidateExpression(req.RuleType, req.Expression),
	})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	entityType := r.URL.Query().Get("entityType")
	if entityType == "" {
		respondError(w, http.StatusBadRequest, "entityType query parameter is required", nil)
		return
	}

	rules, err := s.store.List(tenantID, entityType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rules == nil {
		rules = []*validation.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: rules})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var body RuleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if msg := s.checkRuleBody(body); msg != "" {
		respondError(w, http.StatusBadRequest, msg, nil)
		return
	}

	rule := body.toRule(tenantID, uuid.NewString())
	if err := s.store.Add(rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create rule", err)
		return
	}
	s.engine.Invalidate(tenantID, rule.EntityType)

	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.store.Get(tenantID, ruleID)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	var body RuleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if msg := s.checkRuleBody(body); msg != "" {
		respondError(w, http.StatusBadRequest, msg, nil)
		return
	}

	existing, err := s.store.Get(tenantID, ruleID)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	rule := body.toRule(tenantID, ruleID)
	if err := s.store.Update(rule); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, validation.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		respondError(w, status, "failed to update rule", err)
		return
	}

	// A rule can move between entity types; drop both snapshots.
	s.engine.Invalidate(tenantID, existing.EntityType)
	if rule.EntityType != existing.EntityType {
		s.engine.Invalidate(tenantID, rule.EntityType)
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.store.Get(tenantID, ruleID)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	if err := s.store.Delete(tenantID, ruleID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete rule", err)
		return
	}
	s.engine.Invalidate(tenantID, rule.EntityType)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := s.store.Get(tenantID, ruleID)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	rule.Active = req.Active
	if err := s.store.Update(rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update rule", err)
		return
	}
	s.engine.Invalidate(tenantID, rule.EntityType)

	respondJSON(w, http.StatusOK, rule)
}

// checkRuleBody rejects malformed rules before they can be persisted.
// Unparsable expressions must never reach the database: the engine skips
// them at cache-build time, so catching them here is the author's only
// feedback.
func (s *Server) checkRuleBody(body RuleBody) string {
	if body.EntityType == "" {
		return "entityType is required"
	}
	if body.RuleType == "" {
		return "ruleType is required"
	}
	if body.FieldName != "" && !validation.ValidFieldName(body.FieldName) {
		return fmt.Sprintf("invalid field name %q", body.FieldName)
	}
	switch body.Severity {
	case "", validation.SeverityError, validation.SeverityWarning, validation.SeverityInfo:
	default:
		return fmt.Sprintf("invalid severity %q", body.Severity)
	}
	if !s.engine.ValidateExpression(body.RuleType, body.Expression) {
		return "invalid rule expression"
	}
	if body.Conditions != "" && !s.engine.ValidateExpression(validation.RuleTypeExpression, body.Conditions) {
		return "invalid rule conditions"
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
