package httpapi

import (
	"net/http"
	"strconv"

	"github.com/asuman/agent-memory/pkg/types"
)

// handleHealth is the process-level liveness probe, unauthenticated by
// authMiddleware's exemption, matching the teacher's unauthenticated
// /api/health route.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthDeep checks a specific agent's Store is reachable.
func (s *Server) handleHealthDeep(w http.ResponseWriter, r *http.Request) {
	agent := r.URL.Query().Get("agent")
	if agent == "" {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", "agent is required", false)
		return
	}
	if err := s.engine.Health(r.Context(), agent); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent": agent})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": s.engine.Agents()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	agent := q.Get("agent")
	if agent == "" {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", "agent is required", false)
		return
	}
	var filter filterRequest
	if cat := q.Get("category"); cat != "" {
		filter.Category = types.Category(cat)
	}
	if v := q.Get("min_importance"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinImportance = f
		}
	}
	stats, err := s.engine.Stats(r.Context(), agent, filter.toStorageFilter())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.MetricsSnapshot())
}

func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.engine.MetricsPrometheus()))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	agent := r.URL.Query().Get("agent")
	if agent == "" {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", "agent is required", false)
		return
	}
	records, err := s.engine.Export(r.Context(), agent, (&filterRequest{}).toStorageFilter())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

type importRequest struct {
	Agent   string          `json:"agent"`
	Records []*types.Memory `json:"records"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	n, err := s.engine.Import(r.Context(), req.Agent, req.Records)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

type rotateKeyRequest struct {
	Agent string `json:"agent"`
}

// handleRotateKey issues a fresh key for agent. Like the teacher's own
// settings routes, this is an operator action: it is reachable only when
// the caller already passes authMiddleware's check for that agent (or the
// store is unconfigured, i.e. first-time setup), never a separate
// credential tier, since the engine has no notion of an admin principal.
func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	var req rotateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	if req.Agent == "" {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", "agent is required", false)
		return
	}
	if s.keys.Configured() && r.URL.Query().Get("agent") != req.Agent {
		writeErrorEnvelope(w, http.StatusUnauthorized, "auth", "agent does not match the authenticated agent", false)
		return
	}
	key, err := s.keys.Rotate(req.Agent)
	if err != nil {
		writeErrorEnvelope(w, http.StatusInternalServerError, "store", err.Error(), true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agent": req.Agent, "key": key})
}
