package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/asuman/agent-memory/internal/authkeys"
	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/pkg/types"
)

func newTestServer(keys *authkeys.Store) *Server {
	return &Server{
		keys:    keys,
		limiter: rate.NewLimiter(rate.Inf, 1),
		cfg:     config.Config{},
	}
}

func TestBearerToken(t *testing.T) {
	if got := bearerToken("Bearer abc123"); got != "abc123" {
		t.Fatalf("got %q", got)
	}
	if got := bearerToken("abc123"); got != "" {
		t.Fatalf("expected empty for missing prefix, got %q", got)
	}
	if got := bearerToken(""); got != "" {
		t.Fatalf("expected empty for empty header, got %q", got)
	}
}

func TestAuthMiddleware_SkipsWhenUnconfigured(t *testing.T) {
	s := newTestServer(authkeys.New())
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/v1/stats?agent=a1", nil)
	rec := httptest.NewRecorder()
	s.authMiddleware(next).ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected next handler to run when key store is unconfigured")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestAuthMiddleware_HealthAlwaysExempt(t *testing.T) {
	keys := authkeys.New()
	keys.Rotate("a1")
	s := newTestServer(keys)
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	s.authMiddleware(next).ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected /v1/health to bypass auth even when configured")
	}
}

func TestAuthMiddleware_RejectsBadKey(t *testing.T) {
	keys := authkeys.New()
	keys.Rotate("a1")
	s := newTestServer(keys)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run on bad key")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats?agent=a1", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	s.authMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestAuthMiddleware_AcceptsValidKey(t *testing.T) {
	keys := authkeys.New()
	key, _ := keys.Rotate("a1")
	s := newTestServer(keys)
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/v1/stats?agent=a1", nil)
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	s.authMiddleware(next).ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected handler to run with valid key")
	}
}

func TestAuthMiddleware_AcceptsBearerToken(t *testing.T) {
	keys := authkeys.New()
	key, _ := keys.Rotate("a1")
	s := newTestServer(keys)
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/v1/stats?agent=a1", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	s.authMiddleware(next).ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected handler to run with valid bearer token")
	}
}

func TestRateLimitMiddleware_RejectsWhenExhausted(t *testing.T) {
	s := newTestServer(authkeys.New())
	s.limiter = rate.NewLimiter(0, 0)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run when rate limited")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	s.rateLimitMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	securityHeadersMiddleware(next).ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing X-Content-Type-Options")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing X-Frame-Options")
	}
}

func TestFilterByMinScore(t *testing.T) {
	results := []*types.RecallResult{
		{Score: 0.9},
		{Score: 0.2},
		{Score: 0.5},
	}
	out := filterByMinScore(results, 0.5)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
}

func TestTruncateTextApprox(t *testing.T) {
	longText := make([]byte, 100)
	for i := range longText {
		longText[i] = 'a'
	}
	results := []*types.RecallResult{
		{Memory: &types.Memory{Text: string(longText)}},
	}
	out := truncateTextApprox(results, 10)
	if len(out[0].Memory.Text) != 40 {
		t.Fatalf("expected 40 chars (10 tokens * 4), got %d", len(out[0].Memory.Text))
	}
}

func TestWriteErrorEnvelope_Shape(t *testing.T) {
	rec := httptest.NewRecorder()
	writeErrorEnvelope(rec, http.StatusBadRequest, "validation", "bad input", false)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"kind":"validation"`) || !strings.Contains(body, `"retryable":false`) {
		t.Fatalf("unexpected body: %s", body)
	}
}
