package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts all DataPilot API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.HandleUpload)
		r.Get("/datasets", h.HandleListDatasets)

		r.Post("/chat", h.HandleChat)

		r.Route("/session", func(r chi.Router) {
			r.Post("/create", h.HandleCreateSession)
			r.Get("/{sessionID}", h.HandleGetSession)
			r.Delete("/{sessionID}", h.HandleDeleteSession)
			r.Get("/{sessionID}/history", h.HandleSessionHistory)
		})
		r.Get("/sessions", h.HandleListSessions)

		r.Route("/memory", func(r chi.Router) {
			r.Get("/", h.HandleListMemories)
			r.Post("/", h.HandleAddMemory)
			r.Get("/search", h.HandleSearchMemories)
			r.Get("/summary", h.HandleMemorySummary)
			r.Delete("/{memoryID}", h.HandleDeleteMemory)
		})
	})
}
