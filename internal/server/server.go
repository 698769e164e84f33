// Package server provides the HTTP handlers and routing for the MCP server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"record-mcp/internal/audit"
	"record-mcp/internal/auth"
	"record-mcp/internal/mcp"
	"record-mcp/internal/tools"
)

// Dispatcher answers decoded JSON-RPC requests.
type Dispatcher interface {
	Handle(ctx context.Context, req mcp.Request) (mcp.Response, bool)
}

// AuditLog lists recent tool calls.
type AuditLog interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Config contains the server's collaborators and inbound settings.
type Config struct {
	Name       string
	Version    string
	Dispatcher Dispatcher
	Tools      []tools.Descriptor
	// Verifier guards POST and /audit. Nil leaves them open.
	Verifier auth.TokenVerifier
	// Audit enables GET /audit when set.
	Audit AuditLog
	// CancelOnDisconnect binds outbound calls to the inbound request. When
	// false a client disconnect does not abort the in-flight store request.
	CancelOnDisconnect bool
	Logger             *slog.Logger
}

// Server contains the configured router and config for the MCP server.
type Server struct {
	cfg    Config
	router *chi.Mux
	logger *slog.Logger
	info   []byte
	rpc    http.Handler
}

// New constructs a Server with middleware and routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info, err := renderInfoPage(cfg.Name, cfg.Version, cfg.Tools)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		logger: logger.With("component", "http"),
		info:   info,
	}
	s.rpc = s.auth(http.HandlerFunc(s.handleRPC))

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(cors)
	s.router.Use(s.requestLogger)
	s.router.Use(s.recoverer)

	s.router.Get("/health", s.handleHealth)
	if cfg.Audit != nil {
		s.router.With(s.auth).Get("/audit", s.handleAudit)
	}
	s.router.HandleFunc("/*", s.handleRoot)

	return s, nil
}

// Router exposes the root HTTP handler for the server.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		token, err := auth.BearerToken(r)
		if err == nil {
			var subject string
			subject, err = s.cfg.Verifier.Verify(token)
			if err == nil {
				s.logger.Debug("authenticated", "subject", subject)
				next.ServeHTTP(w, r)
				return
			}
		}
		s.logger.Warn("rejected request", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRoot serves every path not claimed by a more specific route.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		s.rpc.ServeHTTP(w, r)
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(s.info)
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("reading request body", "error", err)
		writeFailure(w, err.Error())
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Error("parsing request body", "error", err)
		writeFailure(w, err.Error())
		return
	}

	ctx := r.Context()
	if !s.cfg.CancelOnDisconnect {
		ctx = context.WithoutCancel(ctx)
	}

	resp, ok := s.cfg.Dispatcher.Handle(ctx, req)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := audit.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.cfg.Audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeFailure(w, "listing audit entries failed")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFailure answers with HTTP 500 and {"error":{"message":...}}.
func writeFailure(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": map[string]string{"message": message},
	})
}
