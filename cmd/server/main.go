// DataPilot - Conversational Data Analysis Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/datapilot-ai/datapilot/internal/agent"
	"github.com/datapilot-ai/datapilot/internal/api"
	"github.com/datapilot-ai/datapilot/internal/config"
	"github.com/datapilot-ai/datapilot/internal/dataset"
	"github.com/datapilot-ai/datapilot/internal/llm"
	"github.com/datapilot-ai/datapilot/internal/memory"
	"github.com/datapilot-ai/datapilot/internal/middleware"
	"github.com/datapilot-ai/datapilot/internal/sandbox"
	"github.com/datapilot-ai/datapilot/internal/session"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	registry, err := dataset.NewRegistry(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize dataset registry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			slog.Error("Failed to close dataset registry", "error", closeErr)
		}
	}()

	if err := registry.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("Failed to create upload directory", "error", err)
		os.Exit(1)
	}

	model, err := llm.NewOpenAIClient(cfg.Model)
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}

	runner, err := newRunner(cfg.Sandbox)
	if err != nil {
		slog.Error("Failed to initialize sandbox runner", "error", err)
		os.Exit(1)
	}
	engine := sandbox.NewEngine(runner, cfg.Sandbox.ExecTimeout)
	slog.Info("Sandbox ready", "runtime", cfg.Sandbox.Runtime, "timeout", cfg.Sandbox.ExecTimeout)

	sessions := session.NewStore()
	memories := memory.NewStore()

	conversationLogger, err := agent.NewConversationLogger(cfg.ConversationLog)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	orchestrator := agent.New(model, engine, agent.Options{
		Sessions: sessions,
		Memories: memories,
		Log:      conversationLogger,
	})

	// Rebind the most recently uploaded dataset so a restart does not
	// lose the active analysis target.
	rebindLatestDataset(orchestrator, registry)

	// Initialize handlers.
	handler := api.NewHandler(orchestrator, sessions, memories, registry, cfg.UploadDir)
	wsHandler := api.NewWebSocketHandler(orchestrator, sessions, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	handler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: agent.TurnDeadline(cfg.Sandbox.ExecTimeout),
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartTTLWorker(ctx, sessions, cfg.SessionTTL)
	slog.Info("TTL worker started", "session_ttl", cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newRunner selects the sandbox worker per configuration.
func newRunner(cfg config.SandboxConfig) (sandbox.Runner, error) {
	if cfg.Runtime == "docker" {
		return sandbox.NewDockerRunner(cfg.Image)
	}
	return sandbox.NewLocalRunner(cfg.PythonBin), nil
}

// rebindLatestDataset restores the active dataset binding from the
// registry. A missing or unreadable dataset file only logs a warning;
// the server still starts and waits for a fresh upload.
func rebindLatestDataset(orchestrator *agent.Orchestrator, registry *dataset.Registry) {
	datasets, err := registry.List(context.Background())
	if err != nil {
		slog.Warn("Failed to list datasets for rebinding", "error", err)
		return
	}
	if len(datasets) == 0 {
		return
	}

	latest := datasets[0]
	pointer, err := dataset.ReadPointer(latest.Path)
	if err != nil {
		slog.Warn("Failed to rebind dataset", "dataset_id", latest.ID, "path", latest.Path, "error", err)
		return
	}
	orchestrator.BindDataset(pointer)
	slog.Info("Rebound dataset", "dataset_id", latest.ID, "name", latest.Name)
}
