package runner

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/sandbox"
)

// execGrace is added to the in-container kill timer for docker round trips.
const execGrace = 3 * time.Second

// DockerExecutor runs programs inside a per-session sandbox container. Each
// execution is a fresh interpreter process; only the container is reused.
type DockerExecutor struct {
	sandboxes *sandbox.Manager
	cfg       sandbox.Config
	maxOutput int
}

var (
	_ Executor = (*DockerExecutor)(nil)
	_ Releaser = (*DockerExecutor)(nil)
)

// NewDockerExecutor creates an executor backed by sandbox containers
func NewDockerExecutor(manager *sandbox.Manager, cfg sandbox.Config, maxOutput int) *DockerExecutor {
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	return &DockerExecutor{sandboxes: manager, cfg: cfg, maxOutput: maxOutput}
}

func (e *DockerExecutor) Execute(ctx context.Context, prog Program) (*Outcome, error) {
	key := prog.IsolationKey
	ephemeral := key == ""
	if ephemeral {
		key = "adhoc-" + uuid.New().String()
	}

	sb, err := e.sandboxes.Acquire(ctx, key, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("acquire sandbox: %w", err)
	}
	if ephemeral {
		defer func() {
			_ = e.sandboxes.Release(context.WithoutCancel(ctx), key)
		}()
	}

	payload, err := encodePayload(prog, e.cfg.MemoryMB)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	runFile := uuid.New().String() + ".json"
	files := map[string]string{
		"harness.py": harnessSource,
		runFile:      string(payload),
	}
	if err := e.sandboxes.AttachFiles(ctx, sb.ID, files); err != nil {
		return nil, fmt.Errorf("attach files: %w", err)
	}

	budget := prog.budget()
	seconds := int(math.Ceil(budget.Seconds()))
	script := fmt.Sprintf(
		"timeout -s KILL %d python3 -I /workspace/harness.py /workspace/%s; rc=$?; rm -f /workspace/%s; exit $rc",
		seconds, runFile, runFile,
	)

	start := time.Now()
	res, err := e.sandboxes.Execute(ctx, sb.ID, sandbox.ExecSpec{
		Cmd:       []string{"sh", "-c", script},
		Timeout:   budget + execGrace,
		// one byte over so the capped buffer notices overflow
		MaxOutput: e.maxOutput + 1,
	})
	duration := time.Since(start)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("exec in sandbox: %w", err)
	}

	stdout := newCappedBuffer(e.maxOutput)
	_, _ = stdout.Write([]byte(res.Stdout))

	term := termination{
		budget:    budget,
		timedOut:  (res.ExitCode == 137 || res.ExitCode == 124) && duration >= budget,
		truncated: stdout.Truncated(),
		exitCode:  res.ExitCode,
		stderr:    res.Stderr,
	}
	out, err := decodeOutcome(stdout.Bytes(), prog.caseCount(), term)
	if err != nil {
		return nil, err
	}
	out.Duration = duration
	return out, nil
}

// Release destroys the sandbox of a finished session
func (e *DockerExecutor) Release(ctx context.Context, isolationKey string) error {
	return e.sandboxes.Release(ctx, isolationKey)
}

// Close destroys every sandbox and closes the docker client
func (e *DockerExecutor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.sandboxes.Close(ctx)
}
