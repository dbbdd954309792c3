package domain

// ErrorKind classifies failures produced while answering a question.
// The kinds are mutually exclusive for a single failure.
type ErrorKind string

const (
	// ErrContentRejected means the model declined to continue
	// (safety filter, token limit, or recitation detection).
	ErrContentRejected ErrorKind = "content_rejected"
	// ErrSyntaxInGeneratedCode means the generated code failed to parse.
	ErrSyntaxInGeneratedCode ErrorKind = "syntax_in_generated_code"
	// ErrRuntimeInGeneratedCode means the generated code raised at runtime.
	ErrRuntimeInGeneratedCode ErrorKind = "runtime_in_generated_code"
	// ErrExecutionTimeout means the code exceeded the wall-clock limit.
	ErrExecutionTimeout ErrorKind = "execution_timeout"
	// ErrDatasetNotFound means the referenced dataset file does not exist.
	ErrDatasetNotFound ErrorKind = "dataset_not_found"
	// ErrUnexpectedOrchestrator covers everything else inside the orchestrator.
	ErrUnexpectedOrchestrator ErrorKind = "unexpected_orchestrator_error"
)

// ToolCall is a model-issued request to execute generated code.
type ToolCall struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
}

// ExecutionResult is the structured outcome of one sandbox execution.
// On success Result, PlotConfig and Stdout are populated; on failure
// Error and ErrorKind are.
type ExecutionResult struct {
	Success    bool      `json:"success"`
	Result     any       `json:"result,omitempty"`
	PlotConfig any       `json:"plot_config,omitempty"`
	Stdout     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
}

// ToolCallSummary is the per-call entry recorded in an execution log.
type ToolCallSummary struct {
	Tool          string `json:"tool"`
	Description   string `json:"description"`
	Success       bool   `json:"success"`
	HasResult     bool   `json:"has_result"`
	HasPlotConfig bool   `json:"has_plot_config"`
	Error         string `json:"error,omitempty"`
}

// ExecutionLog accumulates tool calls, errors and warnings for one turn.
type ExecutionLog struct {
	ToolCalls []ToolCallSummary `json:"tool_calls"`
	Errors    []string          `json:"errors"`
	Warnings  []string          `json:"warnings"`
}

// NewExecutionLog returns a log with non-nil slices so it always
// serializes as arrays, even when empty.
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{
		ToolCalls: []ToolCallSummary{},
		Errors:    []string{},
		Warnings:  []string{},
	}
}

// AgentResponse is the complete, well-formed answer returned to the
// calling layer. Every failure path still yields one of these.
type AgentResponse struct {
	Response     string        `json:"response"`
	PlotConfig   any           `json:"plot_config"`
	Code         string        `json:"code,omitempty"`
	ExecutionLog *ExecutionLog `json:"execution_log"`
}
