// Package llm provides the language-model client used by the orchestrator.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datapilot-ai/datapilot/internal/domain"
)

// Message roles understood by the chat completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of an explicit conversation transcript. The
// orchestrator owns the transcript; the client is stateless.
type Message struct {
	Role    string
	Content string

	// Set on assistant messages that requested a tool call.
	ToolCallID string
	ToolName   string
	ToolArgs   string

	// Set on tool-response messages; Content carries the JSON payload.
}

// ToolResponseMessage wraps a JSON-safe execution result as the
// function-response turn keyed by the tool name.
func ToolResponseMessage(toolCallID, toolName string, result any) (Message, error) {
	payload, err := json.Marshal(map[string]any{toolName: result})
	if err != nil {
		return Message{}, fmt.Errorf("marshal tool response: %w", err)
	}
	return Message{
		Role:       RoleTool,
		Content:    string(payload),
		ToolCallID: toolCallID,
		ToolName:   toolName,
	}, nil
}

// Turn is the model's reply to one transcript. Exactly one of ToolCall
// and Text is meaningful; a tool call takes precedence when present.
type Turn struct {
	// Message is the assistant message to append to the transcript.
	Message Message

	Text         string
	ToolCall     *domain.ToolCall
	ToolCallID   string
	FinishReason string

	// Warning is set when the turn finished abnormally but still carried
	// usable content; processing continues.
	Warning string
}

// RejectionError reports that the model declined to continue: safety
// filtering, token limits, or recitation-style refusals.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "model rejected turn: " + e.Reason
}

// Client is the outbound model interface. Complete sends a full
// transcript and returns the next turn; Prompt issues a single-shot
// call with no tool access.
type Client interface {
	Complete(ctx context.Context, messages []Message) (*Turn, error)
	Prompt(ctx context.Context, prompt string) (string, error)
}
