package httpapi

import (
	"net/http"

	"github.com/asuman/agent-memory/internal/engine"
	"github.com/asuman/agent-memory/internal/storage"
	"github.com/asuman/agent-memory/pkg/types"
)

type recallRequest struct {
	Query     string         `json:"query"`
	Limit     int            `json:"limit"`
	Agent     string         `json:"agent"`
	Namespace string         `json:"namespace,omitempty"`
	Filter    *filterRequest `json:"filter,omitempty"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	MinScore  float64        `json:"min_score,omitempty"`
}

type filterRequest struct {
	Category           types.Category `json:"category,omitempty"`
	IncludeSoftDeleted bool           `json:"include_soft_deleted,omitempty"`
	MinImportance      float64        `json:"min_importance,omitempty"`
	TimeRangeStart     *int64         `json:"time_range_start,omitempty"`
	TimeRangeEnd       *int64         `json:"time_range_end,omitempty"`
}

func (f *filterRequest) toStorageFilter() storage.Filter {
	if f == nil {
		return storage.Filter{}
	}
	return storage.Filter{
		Category:           f.Category,
		IncludeSoftDeleted: f.IncludeSoftDeleted,
		MinImportance:      f.MinImportance,
		TimeRangeStart:     f.TimeRangeStart,
		TimeRangeEnd:       f.TimeRangeEnd,
	}
}

type recallResponse struct {
	Results    []*types.RecallResult `json:"results"`
	Triggered  bool                  `json:"triggered"`
	SearchMode types.SearchMode      `json:"search_mode"`
	Degraded   bool                  `json:"degraded"`
	Cached     bool                  `json:"cached"`
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	s.recall(w, r, req, false)
}

// handleSearch is the /v1/search debug route: same pipeline as /v1/recall
// but always runs (bypasses the TriggerScorer gate) regardless of query
// shape, per spec §6.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := recallRequest{
		Query: q.Get("query"),
		Agent: q.Get("agent"),
	}
	s.recall(w, r, req, true)
}

func (s *Server) recall(w http.ResponseWriter, r *http.Request, req recallRequest, force bool) {
	outcome, err := s.engine.Recall(r.Context(), engine.RecallRequest{
		Agent:     req.Agent,
		Namespace: req.Namespace,
		Query:     req.Query,
		Limit:     req.Limit,
		Filter:    req.Filter.toStorageFilter(),
		Force:     force,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	results := outcome.Results
	if req.MinScore > 0 {
		results = filterByMinScore(results, req.MinScore)
	}
	if req.MaxTokens > 0 {
		results = truncateTextApprox(results, req.MaxTokens)
	}

	writeJSON(w, http.StatusOK, recallResponse{
		Results:    results,
		Triggered:  outcome.Triggered,
		SearchMode: outcome.SearchMode,
		Degraded:   outcome.Degraded,
		Cached:     outcome.Cached,
	})
}

func filterByMinScore(results []*types.RecallResult, minScore float64) []*types.RecallResult {
	out := make([]*types.RecallResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}
	return out
}

// truncateTextApprox clips each result's memory text to roughly maxTokens,
// using the common ~4-chars-per-token heuristic since no tokenizer is wired
// into the core (exact counts are a client-side concern).
func truncateTextApprox(results []*types.RecallResult, maxTokens int) []*types.RecallResult {
	maxChars := maxTokens * 4
	for _, r := range results {
		if r.Memory != nil && len(r.Memory.Text) > maxChars {
			truncated := *r.Memory
			truncated.Text = truncated.Text[:maxChars]
			r.Memory = &truncated
		}
	}
	return results
}
