package httpapi

import (
	"net/http"

	"github.com/asuman/agent-memory/internal/engine"
	"github.com/asuman/agent-memory/internal/writemerge"
	"github.com/asuman/agent-memory/pkg/types"
)

type captureMessageRequest struct {
	Text      string         `json:"text"`
	Category  types.Category `json:"category,omitempty"`
	Session   string         `json:"session,omitempty"`
	Source    string         `json:"source,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
	IsQAPair  bool           `json:"is_qa_pair,omitempty"`
	FromCron  bool           `json:"from_cron,omitempty"`
}

type captureRequest struct {
	Agent    string                  `json:"agent"`
	Messages []captureMessageRequest `json:"messages"`
}

type captureOutcomeResponse struct {
	MemoryID string            `json:"memory_id"`
	Action   writemerge.Action `json:"action"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}

	messages := make([]engine.CaptureMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, engine.CaptureMessage{
			Text:      m.Text,
			Category:  m.Category,
			Session:   m.Session,
			Source:    m.Source,
			Namespace: m.Namespace,
			IsQAPair:  m.IsQAPair,
			FromCron:  m.FromCron,
		})
	}

	outcomes, err := s.engine.Capture(r.Context(), req.Agent, messages)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := make([]captureOutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		resp = append(resp, captureOutcomeResponse{
			MemoryID: o.Result.MemoryID,
			Action:   o.Result.Action,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": resp})
}

type storeRequest struct {
	Agent     string         `json:"agent"`
	Text      string         `json:"text"`
	Category  types.Category `json:"category,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	res, err := s.engine.StoreOne(r.Context(), req.Agent, req.Text, req.Category, req.Namespace)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, captureOutcomeResponse{MemoryID: res.MemoryID, Action: res.Action})
}

type ruleRequest struct {
	Agent     string `json:"agent"`
	Text      string `json:"text"`
	Namespace string `json:"namespace,omitempty"`
}

func (s *Server) handleRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	res, err := s.engine.Rule(r.Context(), req.Agent, req.Text, req.Namespace)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, captureOutcomeResponse{MemoryID: res.MemoryID, Action: res.Action})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	agent := r.URL.Query().Get("agent")
	id := r.URL.Query().Get("id")
	query := r.URL.Query().Get("query")
	if id == "" && query == "" {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", "forget requires id or query", false)
		return
	}
	if err := s.engine.Forget(r.Context(), agent, id, query); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pinRequest struct {
	Agent string `json:"agent"`
	ID    string `json:"id"`
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	if err := s.engine.Pin(r.Context(), req.Agent, req.ID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorEnvelope(w, http.StatusBadRequest, "validation", err.Error(), false)
		return
	}
	if err := s.engine.Unpin(r.Context(), req.Agent, req.ID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
