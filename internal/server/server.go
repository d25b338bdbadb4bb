// Package server exposes the compiler over HTTP: POST /compile takes AQL
// source plus a tenant-bearing bearer token and returns compiled backend
// SQL, the normalized AQL display form, and the bound placeholder values.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aql-lang/aql/aql"
	"github.com/aql-lang/aql/internal/catalog"
	"github.com/aql-lang/aql/internal/schema"
)

// Config holds server configuration.
type Config struct {
	Port        int
	JWTSecret   string
	DefaultLimit int64
	Catalog     catalog.Catalog
	LogLevel    string
}

// Server is the AQL compile server.
type Server struct {
	config *Config
	router *chi.Mux
	logger *slog.Logger
}

// New creates a new Server and wires its routes.
func New(cfg *Config) *Server {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.requireTenant)
		r.Post("/compile", s.handleCompile)
		r.Post("/check", s.handleCheck)
	})
}

// ServeHTTP lets Server satisfy http.Handler directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CompileRequest is the request body for POST /compile and POST /check.
type CompileRequest struct {
	Query                  string `json:"query"`
	PersonOnEventsOverride bool   `json:"person_on_events_override,omitempty"`
	DefaultLimit           int64  `json:"default_limit,omitempty"`
}

// CompileResponse is the response body for POST /compile.
type CompileResponse struct {
	BackendSQL  string              `json:"backend_sql,omitempty"`
	AQLSQL      string              `json:"aql_sql,omitempty"`
	BoundValues map[string]any      `json:"bound_values,omitempty"`
	Diagnostics []aql.Diagnostic    `json:"diagnostics,omitempty"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	limit := req.DefaultLimit
	if limit == 0 {
		limit = s.config.DefaultLimit
	}

	result := aql.Compile(r.Context(), req.Query, aql.Options{
		TenantID:     tenantFromContext(r.Context()),
		Catalog:      s.config.Catalog,
		Schema:       schema.Options{PersonOnEventsOverride: req.PersonOnEventsOverride},
		DefaultLimit: limit,
	})
	if result.HasErrors {
		s.respond(w, http.StatusUnprocessableEntity, CompileResponse{Diagnostics: result.Diagnostics})
		return
	}

	s.respond(w, http.StatusOK, CompileResponse{
		BackendSQL:  result.BackendSQL,
		AQLSQL:      result.AQLSQL,
		BoundValues: result.BoundValues,
		Diagnostics: result.Diagnostics,
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	result := aql.Check(r.Context(), req.Query, aql.Options{
		TenantID: tenantFromContext(r.Context()),
		Catalog:  s.config.Catalog,
		Schema:   schema.Options{PersonOnEventsOverride: req.PersonOnEventsOverride},
	})
	status := http.StatusOK
	if result.HasErrors {
		status = http.StatusUnprocessableEntity
	}
	s.respond(w, status, CompileResponse{Diagnostics: result.Diagnostics})
}

// APIError is a single error entry in an error response body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": APIError{Code: code, Message: message},
	})
}

type tenantContextKey struct{}

func tenantFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(tenantContextKey{}).(int64); ok {
		return id
	}
	return 0
}
