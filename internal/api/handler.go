// Package api provides HTTP handlers for the DataPilot API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/datapilot-ai/datapilot/internal/agent"
	"github.com/datapilot-ai/datapilot/internal/dataset"
	"github.com/datapilot-ai/datapilot/internal/memory"
	"github.com/datapilot-ai/datapilot/internal/session"
)

// maxUploadBytes caps dataset uploads (32MB).
const maxUploadBytes = 32 << 20

// maxRequestBodySize caps JSON request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler wires the HTTP edge to the core services. It performs request
// validation only; all behavior lives in the services themselves.
type Handler struct {
	orchestrator *agent.Orchestrator
	sessions     *session.Store
	memories     *memory.Store
	registry     *dataset.Registry
	uploadDir    string
}

// NewHandler creates a Handler with its dependencies.
func NewHandler(orchestrator *agent.Orchestrator, sessions *session.Store, memories *memory.Store, registry *dataset.Registry, uploadDir string) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		sessions:     sessions,
		memories:     memories,
		registry:     registry,
		uploadDir:    uploadDir,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a bounded JSON request body.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}
