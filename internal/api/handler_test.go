package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/datapilot-ai/datapilot/internal/agent"
	"github.com/datapilot-ai/datapilot/internal/dataset"
	"github.com/datapilot-ai/datapilot/internal/domain"
	"github.com/datapilot-ai/datapilot/internal/llm"
	"github.com/datapilot-ai/datapilot/internal/memory"
	"github.com/datapilot-ai/datapilot/internal/session"
)

// cannedClient answers every transcript with the same text turn.
type cannedClient struct {
	text string
}

func (c *cannedClient) Complete(context.Context, []llm.Message) (*llm.Turn, error) {
	return &llm.Turn{
		Message: llm.Message{Role: llm.RoleAssistant, Content: c.text},
		Text:    c.text,
	}, nil
}

func (c *cannedClient) Prompt(context.Context, string) (string, error) {
	return "NONE", nil
}

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, string, string, string) domain.ExecutionResult {
	return domain.ExecutionResult{Success: true, Result: "ok"}
}

type testEnv struct {
	handler      *Handler
	router       chi.Router
	sessions     *session.Store
	memories     *memory.Store
	orchestrator *agent.Orchestrator
	registry     *dataset.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	registry, err := dataset.NewRegistry(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })

	sessions := session.NewStore()
	memories := memory.NewStore()
	orchestrator := agent.New(&cannedClient{text: "canned answer"}, nopExecutor{}, agent.Options{
		Sessions: sessions,
		Memories: memories,
	})

	handler := NewHandler(orchestrator, sessions, memories, registry, filepath.Join(dir, "uploads"))
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	return &testEnv{
		handler:      handler,
		router:       router,
		sessions:     sessions,
		memories:     memories,
		orchestrator: orchestrator,
		registry:     registry,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	JSON(rec, http.StatusTeapot, map[string]string{"k": "v"})

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status 418, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"k":"v"`) {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestHandleChat_NoDataset(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.AgentResponse
	decodeBody(t, rec, &resp)
	if !strings.Contains(resp.Response, "upload a dataset first") {
		t.Fatalf("unexpected response: %q", resp.Response)
	}
}

func TestHandleChat_ValidationErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi", "session_id": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestHandleChat_AfterUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	uploadCSV(t, env, "sales.csv", "region,amount\nwest,100\n")

	sess := env.sessions.Create(nil)
	rec := env.do(t, http.MethodPost, "/api/chat", map[string]string{
		"message":    "what's the total?",
		"session_id": sess.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.AgentResponse
	decodeBody(t, rec, &resp)
	if resp.Response != "canned answer" {
		t.Fatalf("unexpected response: %q", resp.Response)
	}

	history := env.sessions.History(sess.ID, 0)
	if len(history) != 2 {
		t.Fatalf("expected chat to be recorded in session history, got %d messages", len(history))
	}
}

func uploadCSV(t *testing.T, env *testEnv, name, content string) domain.Dataset {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}
	var ds domain.Dataset
	decodeBody(t, rec, &ds)
	return ds
}

func TestHandleUpload_RegistersAndBinds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ds := uploadCSV(t, env, "sales.csv", "region,amount\nwest,100\neast,250\n")

	if ds.ID == "" || ds.Name != "sales.csv" {
		t.Fatalf("unexpected dataset: %+v", ds)
	}
	if ds.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %d", ds.RowCount)
	}
	if len(ds.Columns) != 2 {
		t.Fatalf("unexpected columns: %v", ds.Columns)
	}

	stored, err := env.registry.Get(context.Background(), ds.ID)
	if err != nil || stored == nil {
		t.Fatalf("expected dataset in registry, got %v err %v", stored, err)
	}

	// The upload bound the dataset: chat no longer asks for one.
	rec := env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	var resp domain.AgentResponse
	decodeBody(t, rec, &resp)
	if strings.Contains(resp.Response, "upload a dataset") {
		t.Fatalf("expected dataset to be bound, got %q", resp.Response)
	}
}

func TestHandleUpload_RejectsNonCSV(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "malware.exe")
	_, _ = fw.Write([]byte("MZ"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-CSV upload, got %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/session/create", map[string]any{
		"metadata": map[string]any{"origin": "test"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Session
	decodeBody(t, rec, &created)
	if created.ID == "" {
		t.Fatal("expected session id")
	}

	rec = env.do(t, http.MethodGet, "/api/session/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	env.sessions.AppendMessage(created.ID, domain.RoleUser, "one", nil)
	env.sessions.AppendMessage(created.ID, domain.RoleUser, "two", nil)

	rec = env.do(t, http.MethodGet, "/api/session/"+created.ID+"/history?limit=1", nil)
	var history struct {
		History []domain.Message `json:"history"`
	}
	decodeBody(t, rec, &history)
	if len(history.History) != 1 || history.History[0].Content != "two" {
		t.Fatalf("unexpected limited history: %+v", history.History)
	}

	rec = env.do(t, http.MethodDelete, "/api/session/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/session/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/memory/", map[string]any{
		"content":  "Sales grew 10% in Q3",
		"category": domain.CategoryInsight,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var added struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &added)
	if added.ID == "" {
		t.Fatal("expected memory id")
	}

	rec = env.do(t, http.MethodGet, "/api/memory/?category="+domain.CategoryInsight, nil)
	var listed struct {
		Memories []domain.Memory `json:"memories"`
		Count    int             `json:"count"`
	}
	decodeBody(t, rec, &listed)
	if listed.Count != 1 || listed.Memories[0].Content != "Sales grew 10% in Q3" {
		t.Fatalf("unexpected list response: %+v", listed)
	}

	rec = env.do(t, http.MethodGet, "/api/memory/search?q=sale", nil)
	decodeBody(t, rec, &listed)
	if listed.Count != 1 {
		t.Fatalf("expected 1 search hit, got %d", listed.Count)
	}

	rec = env.do(t, http.MethodGet, "/api/memory/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without query, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/memory/summary", nil)
	var summary domain.MemorySummary
	decodeBody(t, rec, &summary)
	if summary.Total != 1 {
		t.Fatalf("expected total 1, got %d", summary.Total)
	}

	rec = env.do(t, http.MethodDelete, "/api/memory/"+added.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/memory/"+added.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on double delete, got %d", rec.Code)
	}
}

func TestHandleListDatasets_EmptyIsArray(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/datasets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"datasets":[]`) {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}
}
