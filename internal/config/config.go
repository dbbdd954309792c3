// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	UploadDir   string
	SessionTTL  time.Duration

	Model           ModelConfig
	Sandbox         SandboxConfig
	ConversationLog ConversationLogConfig
}

// ModelConfig configures the language-model client.
type ModelConfig struct {
	APIKey      string
	BaseURL     string // empty = api.openai.com
	Name        string
	Temperature float32
	MaxTokens   int
}

// SandboxConfig configures the code execution engine.
type SandboxConfig struct {
	// Runtime selects the worker: "local" runs a python3 subprocess,
	// "docker" runs an ephemeral container per execution.
	Runtime     string
	PythonBin   string
	Image       string
	ExecTimeout time.Duration
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/datapilot.db"),
		UploadDir:   getEnv("UPLOAD_DIR", "./data/uploads"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 24*time.Hour),
		Model: ModelConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Name:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: 0.5,
			MaxTokens:   8192,
		},
		Sandbox: SandboxConfig{
			Runtime:     getEnv("SANDBOX_RUNTIME", "local"),
			PythonBin:   getEnv("SANDBOX_PYTHON", "python3"),
			Image:       getEnv("SANDBOX_IMAGE", "datapilot-sandbox:latest"),
			ExecTimeout: getEnvDuration("SANDBOX_TIMEOUT", 30*time.Second),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR cannot be empty")
	}
	if c.Sandbox.Runtime != "local" && c.Sandbox.Runtime != "docker" {
		return fmt.Errorf("SANDBOX_RUNTIME must be \"local\" or \"docker\", got %q", c.Sandbox.Runtime)
	}
	if c.Sandbox.ExecTimeout <= 0 {
		return fmt.Errorf("SANDBOX_TIMEOUT must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

// AllowedOrigins returns the CORS origin allowlist: the configured
// frontend in production, any origin in development.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
