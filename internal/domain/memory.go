package domain

import (
	"time"
)

// Well-known memory categories. Category is free-form; these are the ones
// written by the orchestrator itself.
const (
	CategoryUserPreference = "user_preference"
	CategoryInsight        = "insight"
	CategoryGeneral        = "general"
)

// Memory is a durable, categorized note extracted from conversations.
// AccessCount and LastAccessed are updated only by read operations.
type Memory struct {
	ID           string         `json:"memory_id"`
	Content      string         `json:"content"`
	Category     string         `json:"category"`
	CreatedAt    time.Time      `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	AccessCount  int            `json:"access_count"`
	LastAccessed *time.Time     `json:"last_accessed,omitempty"`
}

// MemorySummary aggregates store-wide memory statistics.
type MemorySummary struct {
	Total        int            `json:"total_memories"`
	Categories   map[string]int `json:"categories"`
	MostAccessed []MemoryDigest `json:"most_accessed"`
}

// MemoryDigest is a truncated view of a memory used in summaries.
type MemoryDigest struct {
	ID          string `json:"memory_id"`
	Content     string `json:"content"`
	Category    string `json:"category"`
	AccessCount int    `json:"access_count"`
}
