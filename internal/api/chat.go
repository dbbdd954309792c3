package api

import (
	"log/slog"
	"net/http"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// HandleChat answers one natural-language question about the bound
// dataset. The orchestrator never fails; every outcome is a complete
// AgentResponse.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID != "" {
		if _, ok := h.sessions.Get(req.SessionID); !ok {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
	}

	slog.Info("Chat request", "session_id", req.SessionID, "message_length", len(req.Message))

	resp := h.orchestrator.Chat(r.Context(), req.Message, req.SessionID)
	JSON(w, http.StatusOK, resp)
}
