package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datapilot-ai/datapilot/internal/domain"
	"github.com/datapilot-ai/datapilot/internal/llm"
	"github.com/datapilot-ai/datapilot/internal/memory"
)

const (
	// prefSentinel is the model's "no preference found" reply.
	prefSentinel = "NONE"
	// prefMinLength filters out degenerate extraction lines.
	prefMinLength = 5
)

// PreferenceExtractor mines a conversation turn for explicit user
// preferences with a single constrained model call and writes them into
// the memory bank. It is side-effecting only: every failure is swallowed
// and logged so the enclosing turn can never be affected.
type PreferenceExtractor struct {
	model    llm.Client
	memories *memory.Store
}

// NewPreferenceExtractor creates an extractor bound to a memory bank.
func NewPreferenceExtractor(model llm.Client, memories *memory.Store) *PreferenceExtractor {
	return &PreferenceExtractor{model: model, memories: memories}
}

// Extract analyzes one (user message, agent response) pair.
func (e *PreferenceExtractor) Extract(ctx context.Context, userMessage, agentResponse string) {
	prompt := extractionPrompt(userMessage, agentResponse)

	reply, err := e.model.Prompt(ctx, prompt)
	if err != nil {
		slog.Warn("Preference extraction failed", "error", err)
		return
	}

	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		pref := strings.TrimSpace(strings.TrimPrefix(line, "- "))
		if pref == "" || pref == prefSentinel || len(pref) <= prefMinLength {
			continue
		}
		id := e.memories.Add(pref, domain.CategoryUserPreference, map[string]any{
			"source":       "auto_extracted",
			"user_message": excerpt(userMessage, 200),
		})
		slog.Info("Saved user preference", "memory_id", id, "preference", pref)
	}
}

func extractionPrompt(userMessage, agentResponse string) string {
	return fmt.Sprintf(`Analyze this conversation exchange and identify if the user expressed any personal preferences, favorites, or likes.

User message: %q
Agent response: %q

Extract ONLY clear user preferences in this format:
- If user says "X is my favorite Y", extract: "Favorite Y: X"
- If user says "I prefer X", extract: "Prefers: X"
- If user says "I like X", extract: "Likes: X"

Rules:
1. Only extract explicit preferences from the USER's message (not the agent's response)
2. Be specific (e.g., "Favorite player: Virat Kohli" not just "Likes cricket")
3. If no clear preference is expressed, respond with "NONE"
4. Return one preference per line
5. Keep it concise and factual

Extracted preferences:`, userMessage, excerpt(agentResponse, 300))
}
