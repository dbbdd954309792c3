package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/datapilot-ai/datapilot/internal/config"
	"github.com/datapilot-ai/datapilot/internal/domain"
	"github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client against an OpenAI-compatible chat
// completion API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient creates a model client from configuration.
func NewOpenAIClient(cfg config.ModelConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model API key not provided")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("Model client initialized", "model", cfg.Name, "base_url", cfg.BaseURL)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Name,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Complete sends the transcript with the code execution tool declared and
// returns the model's next turn.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (*Turn, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    encodeMessages(messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Tools:       []openai.Tool{executePythonTool()},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	finish := string(choice.FinishReason)

	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, &RejectionError{Reason: "content filtered by safety settings"}
	}

	turn := &Turn{FinishReason: finish}

	if len(choice.Message.ToolCalls) > 0 {
		// Tool calls within a turn are strictly sequential, so only the
		// first declared call is dispatched; the model re-issues the rest
		// after seeing its result.
		tc := choice.Message.ToolCalls[0]
		call, err := decodeToolCall(tc)
		if err != nil {
			return nil, err
		}
		turn.ToolCall = call
		turn.ToolCallID = tc.ID
		turn.Message = Message{
			Role:       RoleAssistant,
			ToolCallID: tc.ID,
			ToolName:   tc.Function.Name,
			ToolArgs:   tc.Function.Arguments,
		}
	} else {
		text := choice.Message.Content
		if text == "" && choice.FinishReason == openai.FinishReasonLength {
			return nil, &RejectionError{Reason: "response exceeded token limit"}
		}
		turn.Text = text
		turn.Message = Message{Role: RoleAssistant, Content: text}
	}

	if choice.FinishReason != openai.FinishReasonStop && choice.FinishReason != openai.FinishReasonToolCalls {
		turn.Warning = fmt.Sprintf("model turn finished abnormally (finish_reason: %s)", finish)
		slog.Warn("Model turn finished abnormally", "finish_reason", finish)
	}

	return turn, nil
}

// Prompt issues a single-shot completion with no tool access.
func (c *OpenAIClient) Prompt(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("prompt completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("prompt completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func encodeMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		switch {
		case m.Role == RoleAssistant && m.ToolCallID != "":
			msg.Content = ""
			msg.ToolCalls = []openai.ToolCall{{
				ID:   m.ToolCallID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      m.ToolName,
					Arguments: m.ToolArgs,
				},
			}}
		case m.Role == RoleTool:
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.ToolName
		}
		out = append(out, msg)
	}
	return out
}

func decodeToolCall(tc openai.ToolCall) (*domain.ToolCall, error) {
	var args struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Filename    string `json:"filename"`
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("decode tool call arguments: %w", err)
	}
	return &domain.ToolCall{
		Name:        tc.Function.Name,
		Code:        args.Code,
		Description: args.Description,
		Filename:    args.Filename,
	}, nil
}
