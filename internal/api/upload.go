package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datapilot-ai/datapilot/internal/dataset"
	"github.com/datapilot-ai/datapilot/internal/domain"
	"github.com/google/uuid"
)

// HandleUpload accepts a CSV dataset, registers it and binds it as the
// active dataset for subsequent chat turns.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		Error(w, http.StatusBadRequest, "only .csv files are supported")
		return
	}

	id := uuid.NewString()
	path, err := h.saveUpload(file, id)
	if err != nil {
		slog.Error("Failed to store upload", "error", err)
		Error(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	pointer, err := dataset.ReadPointer(path)
	if err != nil {
		_ = os.Remove(path)
		Error(w, http.StatusBadRequest, fmt.Sprintf("unreadable CSV: %v", err))
		return
	}
	rows, err := dataset.CountRows(path)
	if err != nil {
		_ = os.Remove(path)
		Error(w, http.StatusBadRequest, fmt.Sprintf("unreadable CSV: %v", err))
		return
	}

	ds := &domain.Dataset{
		ID:         id,
		Name:       name,
		Path:       path,
		Columns:    pointer.Columns,
		RowCount:   rows,
		UploadedAt: time.Now(),
	}
	if err := h.registry.Save(r.Context(), ds); err != nil {
		slog.Error("Failed to register dataset", "error", err)
		Error(w, http.StatusInternalServerError, "failed to register dataset")
		return
	}

	h.orchestrator.BindDataset(pointer)
	slog.Info("Dataset uploaded and bound", "dataset_id", id, "name", name, "rows", rows)

	JSON(w, http.StatusOK, ds)
}

// HandleListDatasets returns all registered datasets.
func (h *Handler) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.registry.List(r.Context())
	if err != nil {
		slog.Error("Failed to list datasets", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}
	if datasets == nil {
		datasets = []*domain.Dataset{}
	}
	JSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func (h *Handler) saveUpload(file io.Reader, id string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(h.uploadDir, id+".csv"))
	if err != nil {
		return "", fmt.Errorf("resolve upload path: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}
