package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a harness script inside an isolated worker and returns
// whatever the worker wrote to stdout. When the context deadline expires
// the runner must kill the worker and return the context error.
type Runner interface {
	Run(ctx context.Context, script string, datasetDir string) (string, error)
}

// LocalRunner executes the harness as a python3 subprocess in isolated
// mode. The process is killed when the context is done, so the worker
// cannot outlive the caller's deadline by more than the kill grace.
type LocalRunner struct {
	PythonBin string
}

// NewLocalRunner creates a subprocess-backed runner.
func NewLocalRunner(pythonBin string) *LocalRunner {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &LocalRunner{PythonBin: pythonBin}
}

// Run feeds the script to the interpreter on stdin and collects stdout.
func (r *LocalRunner) Run(ctx context.Context, script string, _ string) (string, error) {
	cmd := exec.CommandContext(ctx, r.PythonBin, "-I", "-")
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The harness reports generated-code failures itself; a
			// non-zero exit means the interpreter died outside it.
			return "", fmt.Errorf("python worker exited abnormally: %s", firstLine(stderr.String()))
		}
		return "", fmt.Errorf("start python worker: %w", err)
	}
	return stdout.String(), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "no stderr output"
	}
	return s
}
