package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/datapilot-ai/datapilot/internal/agent"
	"github.com/datapilot-ai/datapilot/internal/session"
)

// WebSocketHandler relays chat messages over a WebSocket connection.
// Each inbound message is one full question; the agent's answer is
// written back as one JSON frame.
type WebSocketHandler struct {
	orchestrator  *agent.Orchestrator
	sessions      *session.Store
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(orchestrator *agent.Orchestrator, sessions *session.Store, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator:  orchestrator,
		sessions:      sessions,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsChatMessage is one inbound chat frame.
type wsChatMessage struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("WebSocket connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A session scopes conversation history across frames on this
	// connection. Create one up front so the first frame already has it.
	sess := h.sessions.Create(map[string]any{"transport": "websocket"})
	if err := h.writeJSON(ws, map[string]string{"type": "session", "session_id": sess.ID}); err != nil {
		slog.Debug("Failed to send session frame", "error", err)
		return
	}

	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sess.ID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sess.ID)
			}
			return
		}

		var msg wsChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if err := h.writeJSON(ws, map[string]string{"error": "invalid message"}); err != nil {
				return
			}
			continue
		}
		if msg.Message == "" {
			if err := h.writeJSON(ws, map[string]string{"error": "message is required"}); err != nil {
				return
			}
			continue
		}

		sessionID := sess.ID
		if msg.SessionID != "" {
			if _, ok := h.sessions.Get(msg.SessionID); !ok {
				if err := h.writeJSON(ws, map[string]string{"error": "session not found"}); err != nil {
					return
				}
				continue
			}
			sessionID = msg.SessionID
		}

		resp := h.orchestrator.Chat(ctx, msg.Message, sessionID)
		if err := h.writeJSON(ws, resp); err != nil {
			slog.Warn("WebSocket write error", "error", err, "session_id", sessionID)
			return
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
