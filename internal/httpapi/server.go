// Package httpapi is the thin HTTP adapter over internal/engine: it owns
// JSON marshaling, routing, auth, and rate limiting, and calls straight
// into Engine methods for everything else. No recall/ingest/maintenance
// logic lives here, matching the teacher's server.go shape (build a mux,
// wrap it in middleware, wire handlers) generalized from the teacher's
// dashboard routes to the memory engine's HTTP surface.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/asuman/agent-memory/internal/authkeys"
	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/engine"
	"github.com/asuman/agent-memory/internal/events"
)

// Server wires an Engine, an EventHub, and an authkeys.Store into a
// net/http handler implementing the route table.
type Server struct {
	engine  *engine.Engine
	events  *events.Hub
	keys    *authkeys.Store
	limiter *rate.Limiter
	cfg     config.Config
}

// New builds a Server. keys may be a fresh authkeys.New() (development mode:
// Configured() is false and auth is skipped).
func New(cfg config.Config, eng *engine.Engine, eventHub *events.Hub, keys *authkeys.Store) *Server {
	burst := cfg.Security.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	rps := cfg.Security.RateLimitPerSec
	if rps <= 0 {
		rps = 10
	}
	return &Server{
		engine:  eng,
		events:  eventHub,
		keys:    keys,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		cfg:     cfg,
	}
}

// Handler builds the full route table wrapped in security-header,
// rate-limit, and auth middleware, in that order from the outside in
// (security headers apply to every response including rejected ones).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/health/deep", s.handleHealthDeep)
	mux.HandleFunc("GET /v1/agents", s.handleAgents)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/metrics", s.handleMetrics)
	mux.HandleFunc("GET /v1/metrics/prometheus", s.handleMetricsPrometheus)

	mux.HandleFunc("POST /v1/recall", s.handleRecall)
	mux.HandleFunc("GET /v1/search", s.handleSearch)
	mux.HandleFunc("POST /v1/capture", s.handleCapture)
	mux.HandleFunc("POST /v1/store", s.handleStore)
	mux.HandleFunc("POST /v1/rule", s.handleRule)
	mux.HandleFunc("DELETE /v1/forget", s.handleForget)
	mux.HandleFunc("POST /v1/pin", s.handlePin)
	mux.HandleFunc("POST /v1/unpin", s.handleUnpin)

	mux.HandleFunc("POST /v1/decay", s.handleDecay)
	mux.HandleFunc("POST /v1/consolidate", s.handleConsolidate)
	mux.HandleFunc("POST /v1/compress", s.handleCompress)
	mux.HandleFunc("POST /v1/gc", s.handleGC)
	mux.HandleFunc("POST /v1/amnesia-check", s.handleAmnesiaCheck)

	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("POST /v1/import", s.handleImport)
	mux.HandleFunc("POST /v1/admin/rotate-key", s.handleRotateKey)

	mux.HandleFunc("GET /v1/events", s.handleEvents)

	handler := s.authMiddleware(mux)
	handler = s.rateLimitMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	return handler
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies one process-wide token bucket, matching
// spec §5's "rate limiting... at the external HTTP adapter... using
// golang.org/x/time/rate".
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeErrorEnvelope(w, http.StatusTooManyRequests, "rate_limit", "rate limit exceeded", true)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces per-agent API key scoping, skipped entirely when
// the key store is unconfigured (development mode). Only /v1/health is
// exempt, matching the teacher's unauthenticated /api/health;
// /v1/health/deep and /v1/events go through the key check. The key is
// checked against the agent named in the query string.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.keys.Configured() || r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}
		agent := r.URL.Query().Get("agent")
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = bearerToken(r.Header.Get("Authorization"))
		}
		if agent == "" || !s.keys.Check(agent, key) {
			writeErrorEnvelope(w, http.StatusUnauthorized, "auth", "invalid or missing API key", false)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) > len(prefix) && authHeader[:len(prefix)] == prefix {
		return authHeader[len(prefix):]
	}
	return ""
}

// errorEnvelope is the {error:{kind,message,retryable}} shape spec §7 defines.
type errorEnvelope struct {
	Error struct {
		Kind      string `json:"kind"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func writeErrorEnvelope(w http.ResponseWriter, status int, kind, message string, retryable bool) {
	var env errorEnvelope
	env.Error.Kind = kind
	env.Error.Message = message
	env.Error.Retryable = retryable
	writeJSON(w, status, env)
}

// writeEngineError maps an error returned by Engine (ideally an *engine.Error)
// to the HTTP status spec §7 assigns its kind.
func writeEngineError(w http.ResponseWriter, err error) {
	engErr, ok := err.(*engine.Error)
	if !ok {
		writeErrorEnvelope(w, http.StatusInternalServerError, "store", err.Error(), true)
		return
	}
	status := http.StatusInternalServerError
	switch engErr.Kind {
	case engine.KindValidation:
		status = http.StatusBadRequest
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindTimeout:
		status = http.StatusGatewayTimeout
	case engine.KindEmbed:
		status = http.StatusBadGateway
	case engine.KindConfig, engine.KindStore:
		status = http.StatusInternalServerError
	}
	writeErrorEnvelope(w, status, string(engErr.Kind), engErr.Error(), engErr.Retryable)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("httpapi: decoding request body: %w", err)
	}
	return nil
}

func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), timeout)
}
