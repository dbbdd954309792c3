// Package sandbox runs model-generated Python code against a dataset
// under a restricted symbol table and a hard wall-clock timeout.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datapilot-ai/datapilot/internal/domain"
)

// DefaultTimeout bounds one execution when no other limit is configured.
const DefaultTimeout = 30 * time.Second

// Engine dispatches generated code to an isolated worker and classifies
// the outcome. Failures are packaged as a failed ExecutionResult, never
// returned as Go errors, so the orchestrator can feed them back to the
// model for self-correction.
type Engine struct {
	runner  Runner
	timeout time.Duration
}

// NewEngine creates an execution engine on top of a runner.
func NewEngine(runner Runner, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{runner: runner, timeout: timeout}
}

// Execute runs the generated code against the dataset file. The filename
// is checked before any code runs; the worker is killed at the deadline.
// A worker that straddles the kill may still have produced side effects,
// so callers must only trust output returned here.
func (e *Engine) Execute(ctx context.Context, code, description, filename string) domain.ExecutionResult {
	slog.Info("Executing generated code", "description", description, "filename", filename, "code_len", len(code))

	if _, err := os.Stat(filename); err != nil {
		slog.Error("Dataset file not found", "filename", filename)
		return domain.ExecutionResult{
			Success:   false,
			Error:     fmt.Sprintf("File not found: %s", filename),
			ErrorKind: domain.ErrDatasetNotFound,
		}
	}

	script, err := buildHarness(code, filename)
	if err != nil {
		return domain.ExecutionResult{
			Success:   false,
			Error:     err.Error(),
			ErrorKind: domain.ErrRuntimeInGeneratedCode,
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	output, err := e.runner.Run(execCtx, script, filepath.Dir(filename))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Error("Code execution timed out", "timeout", e.timeout)
			return domain.ExecutionResult{
				Success:   false,
				Error:     fmt.Sprintf("Code execution timed out (%ds limit)", int(e.timeout.Seconds())),
				ErrorKind: domain.ErrExecutionTimeout,
			}
		}
		slog.Error("Worker failed", "error", err)
		return domain.ExecutionResult{
			Success:   false,
			Error:     err.Error(),
			ErrorKind: domain.ErrRuntimeInGeneratedCode,
		}
	}

	return parsePayload(output)
}

// parsePayload extracts the harness payload after the last result marker
// and maps it onto the execution taxonomy.
func parsePayload(output string) domain.ExecutionResult {
	idx := strings.LastIndex(output, resultMarker)
	if idx < 0 {
		return domain.ExecutionResult{
			Success:   false,
			Error:     "worker produced no result payload",
			ErrorKind: domain.ErrRuntimeInGeneratedCode,
		}
	}
	raw := strings.TrimSpace(output[idx+len(resultMarker):])

	var payload harnessPayload
	if err := decodeJSON(raw, &payload); err != nil {
		return domain.ExecutionResult{
			Success:   false,
			Error:     fmt.Sprintf("decode worker payload: %v", err),
			ErrorKind: domain.ErrRuntimeInGeneratedCode,
		}
	}

	if !payload.OK {
		kind := domain.ErrRuntimeInGeneratedCode
		if payload.Kind == "syntax" {
			kind = domain.ErrSyntaxInGeneratedCode
		}
		return domain.ExecutionResult{
			Success:   false,
			Error:     payload.Error,
			Stdout:    payload.Stdout,
			ErrorKind: kind,
		}
	}

	return domain.ExecutionResult{
		Success:    true,
		Result:     payload.Result,
		PlotConfig: payload.Plot,
		Stdout:     payload.Stdout,
	}
}
