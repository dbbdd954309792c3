package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HandleCreateSession creates a new conversation session.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metadata map[string]any `json:"metadata"`
	}
	if r.ContentLength > 0 {
		if err := decode(w, r, &req); err != nil {
			Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sess := h.sessions.Create(req.Metadata)
	JSON(w, http.StatusCreated, sess)
}

// HandleGetSession returns a session with its full history.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := h.sessions.Get(id)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, sess)
}

// HandleDeleteSession removes a session.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !h.sessions.Delete(id) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleSessionHistory returns the most recent messages of a session.
func (h *Handler) HandleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, ok := h.sessions.Get(id); !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"history":    h.sessions.History(id, limit),
	})
}

// HandleListSessions returns the ids of all live sessions.
func (h *Handler) HandleListSessions(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"sessions": h.sessions.ListIDs()})
}
