package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrRerankCircuitOpen is returned when the HTTP cross-encoder's breaker has
// tripped; callers should treat this the same as an unavailable scorer and
// fall back to the unreranked order.
var ErrRerankCircuitOpen = errors.New("rerank: circuit breaker open")

const (
	httpMaxAttempts       = 3
	httpBackoffBase       = 500 * time.Millisecond
	httpBackoffFactor     = 2
	httpCircuitMaxFailure = 5
	httpCircuitOpenFor    = 5 * time.Minute
)

// HTTPCrossEncoderConfig configures a remote scoring endpoint.
type HTTPCrossEncoderConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPCrossEncoder scores (query, doc) pairs against a remote
// OpenAI-compatible-shaped reranking endpoint. It mirrors the Embedder's
// retry/circuit-breaker plumbing in miniature, since a reranker request is
// one call per batch rather than an accumulating stream of single texts —
// there is no analogous client-side batching window to share.
type HTTPCrossEncoder struct {
	cfg     HTTPCrossEncoderConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPCrossEncoder builds an HTTPCrossEncoder against cfg.
func NewHTTPCrossEncoder(cfg HTTPCrossEncoderConfig) *HTTPCrossEncoder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCrossEncoder{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "rerank-http",
			Timeout: httpCircuitOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= httpCircuitMaxFailure
			},
		}),
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score implements CrossEncoder.
func (h *HTTPCrossEncoder) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	result, err := h.breaker.Execute(func() (interface{}, error) {
		return h.requestWithRetry(ctx, query, docs)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrRerankCircuitOpen
		}
		return nil, err
	}
	return result.([]float64), nil
}

func (h *HTTPCrossEncoder) requestWithRetry(ctx context.Context, query string, docs []string) ([]float64, error) {
	var lastErr error
	for attempt := 0; attempt < httpMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := httpSleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
		scores, retryable, err := h.doRequest(ctx, query, docs)
		if err == nil {
			return scores, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("rerank: exhausted %d attempts: %w", httpMaxAttempts, lastErr)
}

func httpSleepBackoff(ctx context.Context, attempt int) error {
	delay := httpBackoffBase
	for i := 1; i < attempt; i++ {
		delay *= httpBackoffFactor
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	select {
	case <-time.After(delay + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *HTTPCrossEncoder) doRequest(ctx context.Context, query string, docs []string) ([]float64, bool, error) {
	body, err := json.Marshal(rerankRequest{Model: h.cfg.Model, Query: query, Documents: docs})
	if err != nil {
		return nil, false, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, true, fmt.Errorf("rerank: remote returned %d: %s", resp.StatusCode, string(msg))
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("rerank: remote returned %d: %s", resp.StatusCode, string(msg))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("rerank: decode response: %w", err)
	}

	out := make([]float64, len(docs))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(out) {
			return nil, false, fmt.Errorf("rerank: response index %d out of range", r.Index)
		}
		out[r.Index] = r.RelevanceScore
	}
	return out, false, nil
}
