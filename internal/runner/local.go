package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const (
	// DefaultMaxOutput caps the harness output read per execution.
	DefaultMaxOutput = 1 << 20
	stderrLimit      = 8 << 10
	waitDelay        = 500 * time.Millisecond
)

// LocalConfig configures a LocalExecutor
type LocalConfig struct {
	Python    string // interpreter path, default python3
	MemoryMB  int    // address space limit applied by the harness, 0 for none
	MaxOutput int    // bytes of harness output kept, default 1 MiB
}

// LocalExecutor runs each program in a fresh python3 process on the host.
type LocalExecutor struct {
	python    string
	memoryMB  int
	maxOutput int
}

var _ Executor = (*LocalExecutor)(nil)

// NewLocalExecutor creates a new local executor
func NewLocalExecutor(cfg LocalConfig) *LocalExecutor {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = DefaultMaxOutput
	}
	return &LocalExecutor{
		python:    cfg.Python,
		memoryMB:  cfg.MemoryMB,
		maxOutput: cfg.MaxOutput,
	}
}

// Available reports whether the configured interpreter can be found
func (e *LocalExecutor) Available() error {
	if _, err := exec.LookPath(e.python); err != nil {
		return fmt.Errorf("%s not found in PATH", e.python)
	}
	return nil
}

func (e *LocalExecutor) Execute(ctx context.Context, prog Program) (*Outcome, error) {
	payload, err := encodePayload(prog, e.memoryMB)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	budget := prog.budget()
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.python, "-I", "-c", harnessSource)
	cmd.Stdin = bytes.NewReader(payload)
	stdout := newCappedBuffer(e.maxOutput)
	stderr := newCappedBuffer(stderrLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)
	killProcessGroup(cmd)

	// The caller giving up is not a learner timeout.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	term := termination{
		budget:    budget,
		timedOut:  errors.Is(runCtx.Err(), context.DeadlineExceeded),
		truncated: stdout.Truncated(),
		stderr:    stderr.String(),
	}
	if runErr != nil && !term.timedOut {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("start %s: %w", e.python, runErr)
		}
		term.exitCode = exitErr.ExitCode()
	}

	out, err := decodeOutcome(stdout.Bytes(), prog.caseCount(), term)
	if err != nil {
		return nil, err
	}
	out.Duration = duration
	return out, nil
}
