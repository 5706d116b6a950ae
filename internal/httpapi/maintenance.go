package httpapi

import (
	"net/http"

	"github.com/asuman/agent-memory/internal/engine"
)

type maintenanceRequest struct {
	Agent     string `json:"agent"`
	Namespace string `json:"namespace,omitempty"`
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	report, err := s.engine.Decay(r.Context(), req.Agent)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	report, err := s.engine.Consolidate(r.Context(), req.Agent, req.Namespace)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	report, err := s.engine.Compress(r.Context(), req.Agent)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	report, err := s.engine.GC(r.Context(), req.Agent)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type amnesiaCheckRequest struct {
	Agent     string   `json:"agent"`
	Namespace string   `json:"namespace,omitempty"`
	Topics    []string `json:"topics"`
}

func (s *Server) handleAmnesiaCheck(w http.ResponseWriter, r *http.Request) {
	var req amnesiaCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	statuses, err := s.engine.AmnesiaCheck(r.Context(), req.Agent, req.Namespace, req.Topics)
	if err != nil {
		writeEngineError(w, &engine.Error{Kind: engine.KindStore, Err: err, Retryable: true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"topics": statuses})
}
