// Package agent implements the conversation orchestrator: the state
// machine that mediates between the language model and the execution
// sandbox.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/datapilot-ai/datapilot/internal/domain"
	"github.com/datapilot-ai/datapilot/internal/llm"
	"github.com/datapilot-ai/datapilot/internal/memory"
	"github.com/datapilot-ai/datapilot/internal/session"
)

const (
	// maxRetries is the extra attempts granted when the model rejects a
	// user turn. Retries reframe the message with a neutral prefix.
	maxRetries  = 2
	retryPrefix = "Analyze this dataset and provide insights: "

	// MaxToolRounds bounds the sequential tool calls in one turn.
	MaxToolRounds = 10

	noDatasetResponse = "Please upload a dataset first to start analyzing data."

	// Auto-save heuristic for insight memories. A fragile trigger, kept
	// deliberately simple.
	insightMinLength = 50
)

var insightKeywords = []string{"insight", "trend", "shows", "indicates", "analysis"}

// TurnDeadline returns an upper bound for one Chat turn: every tool
// round running to the full execution timeout, plus headroom for the
// model calls between rounds. HTTP write timeouts must exceed this.
func TurnDeadline(execTimeout time.Duration) time.Duration {
	return MaxToolRounds*execTimeout + 2*time.Minute
}

// Executor runs generated code against a dataset file.
type Executor interface {
	Execute(ctx context.Context, code, description, filename string) domain.ExecutionResult
}

// Orchestrator is the top-level conversation state machine. Its Chat
// contract never returns an error: every failure path is converted into
// a complete AgentResponse.
type Orchestrator struct {
	model    llm.Client
	engine   Executor
	sessions *session.Store
	memories *memory.Store
	prefs    *PreferenceExtractor
	log      ConversationLogger

	mu      sync.Mutex
	binding *domain.DatasetPointer
	convs   map[string]*conversation
}

// Options carries the optional collaborators of an orchestrator.
type Options struct {
	Sessions *session.Store
	Memories *memory.Store
	Log      ConversationLogger
}

// New creates an orchestrator. Sessions, memories and the conversation
// log are optional; a nil memory store disables preference extraction
// and insight auto-save.
func New(model llm.Client, engine Executor, opts Options) *Orchestrator {
	o := &Orchestrator{
		model:    model,
		engine:   engine,
		sessions: opts.Sessions,
		memories: opts.Memories,
		log:      opts.Log,
		convs:    make(map[string]*conversation),
	}
	if o.log == nil {
		o.log = NopConversationLogger{}
	}
	if opts.Memories != nil {
		o.prefs = NewPreferenceExtractor(model, opts.Memories)
	}
	return o
}

// BindDataset binds the active dataset pointer. Binding is
// last-writer-wins and resets every primed conversation to unprimed.
func (o *Orchestrator) BindDataset(pointer domain.DatasetPointer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.binding = &pointer
	o.convs = make(map[string]*conversation)
	slog.Info("Dataset bound", "filename", pointer.Filename, "columns", len(pointer.Columns))
}

// State reports the conversation state for a session id.
func (o *Orchestrator) State(sessionID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if conv, ok := o.convs[sessionID]; ok {
		return conv.state
	}
	return StateUnprimed
}

// Chat answers one user message. With a non-empty sessionID the turn is
// recorded in the session store and the conversation survives across
// calls; an empty sessionID uses a shared default conversation.
func (o *Orchestrator) Chat(ctx context.Context, message, sessionID string) domain.AgentResponse {
	// The binding is captured once per turn so a concurrent re-bind
	// cannot switch datasets mid-turn.
	o.mu.Lock()
	binding := o.binding
	o.mu.Unlock()

	if binding == nil {
		return domain.AgentResponse{
			Response:     noDatasetResponse,
			ExecutionLog: domain.NewExecutionLog(),
		}
	}

	if sessionID != "" && o.sessions != nil {
		o.sessions.AppendMessage(sessionID, domain.RoleUser, message, nil)
	}
	o.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Direction: "outbound",
		EventType: "user_message",
		Content:   message,
	})

	conv := o.conversation(sessionID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	execLog := domain.NewExecutionLog()

	if conv.state == StateUnprimed {
		if resp, ok := o.prime(ctx, conv, sessionID, *binding, execLog); !ok {
			return resp
		}
	}

	turn, resp, ok := o.sendUserMessage(ctx, conv, message, execLog)
	if !ok {
		return resp
	}

	final := o.runTurnLoop(ctx, conv, *binding, turn, execLog)
	conv.state = StateTerminal

	response := final.text
	if response == "" {
		response = "Analysis complete."
	}

	o.recordTurn(sessionID, message, response, final)

	o.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Direction: "inbound",
		EventType: "assistant_message",
		Content:   response,
		Meta: map[string]any{
			"tool_calls": len(execLog.ToolCalls),
			"has_plot":   final.plotConfig != nil,
		},
	})

	return domain.AgentResponse{
		Response:     response,
		PlotConfig:   final.plotConfig,
		Code:         final.code,
		ExecutionLog: execLog,
	}
}

// conversation returns the live conversation for a session id, creating
// an unprimed one on first use.
func (o *Orchestrator) conversation(sessionID string) *conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	conv, ok := o.convs[sessionID]
	if !ok {
		conv = &conversation{state: StateUnprimed}
		o.convs[sessionID] = conv
	}
	return conv
}

// prime sends the system instruction as the opening turn. On rejection
// the conversation is discarded so the session stays unprimed.
func (o *Orchestrator) prime(ctx context.Context, conv *conversation, sessionID string, binding domain.DatasetPointer, execLog *domain.ExecutionLog) (domain.AgentResponse, bool) {
	conv.state = StatePriming
	instruction := o.systemInstruction(binding)
	transcript := []llm.Message{{Role: llm.RoleSystem, Content: instruction}}

	slog.Info("Priming model session", "session_id", sessionID, "filename", binding.Filename)
	turn, err := o.model.Complete(ctx, transcript)
	if err != nil {
		o.discard(sessionID)

		var rejection *llm.RejectionError
		msg := "I encountered an error initializing the analysis session. Please try uploading your data again."
		if errors.As(err, &rejection) {
			execLog.Errors = append(execLog.Errors, fmt.Sprintf("rejection during priming: %s", rejection.Reason))
		} else {
			execLog.Errors = append(execLog.Errors, fmt.Sprintf("priming failed: %v", err))
		}
		slog.Error("Priming failed", "session_id", sessionID, "error", err)
		return domain.AgentResponse{Response: msg, ExecutionLog: execLog}, false
	}

	conv.transcript = append(transcript, turn.Message)
	conv.state = StateTurnLoop
	return domain.AgentResponse{}, true
}

// sendUserMessage relays the user message, retrying with a neutral
// reframing prefix when the model rejects the turn.
func (o *Orchestrator) sendUserMessage(ctx context.Context, conv *conversation, message string, execLog *domain.ExecutionLog) (*llm.Turn, domain.AgentResponse, bool) {
	var lastRejection *llm.RejectionError

	for attempt := 0; attempt <= maxRetries; attempt++ {
		content := message
		if attempt > 0 {
			content = retryPrefix + message
			slog.Info("Retrying rejected turn with reframed prompt", "attempt", attempt, "max_retries", maxRetries)
		}
		userMsg := llm.Message{Role: llm.RoleUser, Content: content}

		turn, err := o.model.Complete(ctx, append(conv.transcript, userMsg))
		if err == nil {
			if turn.Warning != "" {
				execLog.Warnings = append(execLog.Warnings, turn.Warning)
			}
			conv.transcript = append(conv.transcript, userMsg, turn.Message)
			return turn, domain.AgentResponse{}, true
		}

		var rejection *llm.RejectionError
		if errors.As(err, &rejection) {
			lastRejection = rejection
			continue
		}

		execLog.Errors = append(execLog.Errors, fmt.Sprintf("unexpected error: %v", err))
		slog.Error("Model call failed", "error", err)
		return nil, domain.AgentResponse{
			Response:     "I encountered an unexpected error. Please try again.",
			ExecutionLog: execLog,
		}, false
	}

	execLog.Errors = append(execLog.Errors,
		fmt.Sprintf("model rejected turn after %d attempts: %s", maxRetries+1, lastRejection.Reason))
	execLog.Warnings = append(execLog.Warnings, "Consider rephrasing the question")
	return nil, domain.AgentResponse{
		Response: "I'm having trouble generating a response. This might be due to content " +
			"restrictions. Please try rephrasing your question or asking about specific " +
			"aspects of the data.",
		ExecutionLog: execLog,
	}, false
}

// turnOutcome accumulates what the turn loop extracted.
type turnOutcome struct {
	text       string
	plotConfig any
	code       string
}

// runTurnLoop dispatches tool calls strictly sequentially until the model
// produces final text. Execution failures are fed back as tool responses
// so the model can regenerate code; they never abort the loop.
func (o *Orchestrator) runTurnLoop(ctx context.Context, conv *conversation, binding domain.DatasetPointer, turn *llm.Turn, execLog *domain.ExecutionLog) turnOutcome {
	var out turnOutcome

	for round := 0; ; round++ {
		if turn.ToolCall == nil {
			out.text = turn.Text
			return out
		}
		if round >= MaxToolRounds {
			execLog.Warnings = append(execLog.Warnings,
				fmt.Sprintf("tool loop stopped after %d rounds", MaxToolRounds))
			return out
		}

		result := o.dispatch(ctx, binding, turn.ToolCall, execLog)
		if turn.ToolCall.Code != "" {
			out.code = turn.ToolCall.Code
		}
		if result.Success && result.PlotConfig != nil {
			out.plotConfig = result.PlotConfig
		}

		toolMsg, err := llm.ToolResponseMessage(turn.ToolCallID, turn.ToolCall.Name, result)
		if err != nil {
			execLog.Errors = append(execLog.Errors, fmt.Sprintf("unexpected error: %v", err))
			return out
		}
		conv.transcript = append(conv.transcript, toolMsg)

		next, err := o.model.Complete(ctx, conv.transcript)
		if err != nil {
			var rejection *llm.RejectionError
			if errors.As(err, &rejection) {
				execLog.Errors = append(execLog.Errors, fmt.Sprintf("rejection during tool loop: %s", rejection.Reason))
			} else {
				execLog.Errors = append(execLog.Errors, fmt.Sprintf("unexpected error: %v", err))
			}
			slog.Error("Model call failed in tool loop", "error", err)
			return out
		}
		if next.Warning != "" {
			execLog.Warnings = append(execLog.Warnings, next.Warning)
		}
		conv.transcript = append(conv.transcript, next.Message)
		turn = next
	}
}

// dispatch routes one tool call to the execution engine and records it.
func (o *Orchestrator) dispatch(ctx context.Context, binding domain.DatasetPointer, call *domain.ToolCall, execLog *domain.ExecutionLog) domain.ExecutionResult {
	if call.Name != llm.ToolExecutePython {
		result := domain.ExecutionResult{
			Success:   false,
			Error:     fmt.Sprintf("unknown tool: %s", call.Name),
			ErrorKind: domain.ErrUnexpectedOrchestrator,
		}
		execLog.ToolCalls = append(execLog.ToolCalls, summarize(call, result))
		return result
	}

	filename := call.Filename
	if filename == "" {
		filename = binding.Filename
	}

	result := o.engine.Execute(ctx, call.Code, call.Description, filename)
	execLog.ToolCalls = append(execLog.ToolCalls, summarize(call, result))

	if result.Success && result.PlotConfig == nil {
		execLog.Warnings = append(execLog.Warnings, "Code executed successfully but no plot_config was generated")
	}
	if result.Success && result.Result == nil {
		execLog.Warnings = append(execLog.Warnings, "Code executed successfully but no result value was set")
	}
	return result
}

func summarize(call *domain.ToolCall, result domain.ExecutionResult) domain.ToolCallSummary {
	summary := domain.ToolCallSummary{
		Tool:          call.Name,
		Description:   call.Description,
		Success:       result.Success,
		HasResult:     result.Result != nil,
		HasPlotConfig: result.PlotConfig != nil,
	}
	if !result.Success {
		summary.Error = result.Error
	}
	return summary
}

// recordTurn applies the per-turn side effects: session history, insight
// auto-save and asynchronous preference extraction.
func (o *Orchestrator) recordTurn(sessionID, userMessage, response string, final turnOutcome) {
	if sessionID != "" && o.sessions != nil {
		o.sessions.AppendMessage(sessionID, domain.RoleAssistant, response, map[string]any{
			"has_plot": final.plotConfig != nil,
			"has_code": final.code != "",
		})
	}

	if o.memories != nil && sessionID != "" && looksLikeInsight(response) {
		content := response
		if len(content) > 500 {
			content = content[:500]
		}
		o.memories.Add(content, domain.CategoryInsight, map[string]any{
			"session_id":    sessionID,
			"user_question": excerpt(userMessage, 200),
		})
	}

	if o.prefs != nil {
		// Extraction is fire-and-forget; it must never delay or fail the
		// enclosing turn.
		go o.prefs.Extract(context.Background(), userMessage, response)
	}
}

// systemInstruction builds the priming turn: the dataset pointer plus any
// stored user preferences.
func (o *Orchestrator) systemInstruction(binding domain.DatasetPointer) string {
	var b strings.Builder
	b.WriteString("You are an expert Data Analytics AI Agent.\n\n")
	b.WriteString("Dataset Pointer:\n")
	b.WriteString(binding.Render())
	b.WriteString("\n")
	b.WriteString(o.renderPreferences())
	b.WriteString("\nCRITICAL INSTRUCTIONS:\n")
	b.WriteString("1. Minimal Context: You ONLY have the filename and the first row of data. You do NOT see the full dataset.\n")
	b.WriteString("2. Execute to See: To answer ANY question about the data, you MUST write and execute Python code using " + llm.ToolExecutePython + ".\n")
	b.WriteString("3. Read the File: Your Python code MUST start by reading the file: df = pd.read_csv(filename). pd (pandas) is already imported.\n")
	b.WriteString("4. ALWAYS Generate Visualizations: For EVERY question, set the plot_config variable with an interactive Plotly chart.\n")
	b.WriteString("5. Set the result variable with your computed answer.\n")
	b.WriteString("6. If the user asks about \"my favorite X\" or \"my preferred Y\", use the USER PREFERENCES section above.\n")
	return b.String()
}

func (o *Orchestrator) renderPreferences() string {
	if o.memories == nil {
		return ""
	}
	prefs := o.memories.List(domain.CategoryUserPreference, 20, memory.SortByCreatedAt)
	if len(prefs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n=== USER PREFERENCES (from memory) ===\n")
	for _, pref := range prefs {
		b.WriteString("- " + pref.Content + "\n")
	}
	b.WriteString("=== END USER PREFERENCES ===\n")
	return b.String()
}

// discard drops a conversation so its session returns to unprimed.
func (o *Orchestrator) discard(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.convs, sessionID)
}

func looksLikeInsight(response string) bool {
	if len(response) <= insightMinLength {
		return false
	}
	lower := strings.ToLower(response)
	for _, keyword := range insightKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func excerpt(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
