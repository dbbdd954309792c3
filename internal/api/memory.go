package api

import (
	"net/http"
	"strconv"

	"github.com/datapilot-ai/datapilot/internal/domain"
	"github.com/go-chi/chi/v5"
)

// HandleListMemories returns memories, optionally filtered by category.
// Query params: category, limit, sort_by (created_at | access_count |
// last_accessed).
func (h *Handler) HandleListMemories(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	sortBy := r.URL.Query().Get("sort_by")

	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}

	memories := h.memories.List(category, limit, sortBy)
	JSON(w, http.StatusOK, map[string]any{
		"memories": memories,
		"count":    len(memories),
	})
}

// HandleAddMemory stores a memory entry.
func (h *Handler) HandleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string         `json:"content"`
		Category string         `json:"category"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Category == "" {
		req.Category = domain.CategoryGeneral
	}

	id := h.memories.Add(req.Content, req.Category, req.Metadata)
	JSON(w, http.StatusCreated, map[string]string{"id": id})
}

// HandleSearchMemories searches memory content and categories.
func (h *Handler) HandleSearchMemories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		Error(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	limit, ok := queryInt(w, r, "limit", 20)
	if !ok {
		return
	}

	memories := h.memories.Search(query, limit)
	JSON(w, http.StatusOK, map[string]any{
		"memories": memories,
		"count":    len(memories),
	})
}

// HandleMemorySummary returns aggregate memory statistics.
func (h *Handler) HandleMemorySummary(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.memories.Summary())
}

// HandleDeleteMemory removes a memory entry.
func (h *Handler) HandleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memoryID")
	if !h.memories.Delete(id) {
		Error(w, http.StatusNotFound, "memory not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// queryInt parses a non-negative integer query parameter, writing a 400
// response on failure.
func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		Error(w, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return n, true
}
