package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds runner configuration
type Config struct {
	TimeBudget time.Duration
}

// DefaultConfig returns default runner configuration
func DefaultConfig() Config {
	return Config{TimeBudget: DefaultTimeBudget}
}

// Service fronts an Executor: it applies the default time budget, tracks
// in-flight executions per isolation key and can cancel or drain them.
type Service struct {
	config   Config
	executor Executor

	mu      sync.Mutex
	running map[uuid.UUID]*runState
}

type runState struct {
	key     string
	started time.Time
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

var (
	_ Executor = (*Service)(nil)
	_ Releaser = (*Service)(nil)
)

// NewService creates a new runner service
func NewService(cfg Config, executor Executor) *Service {
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = DefaultTimeBudget
	}
	return &Service{
		config:   cfg,
		executor: executor,
		running:  make(map[uuid.UUID]*runState),
	}
}

// TimeBudget returns the default budget applied to programs without one
func (s *Service) TimeBudget() time.Duration {
	return s.config.TimeBudget
}

// Execute runs a program and tracks it until it returns
func (s *Service) Execute(ctx context.Context, prog Program) (*Outcome, error) {
	if prog.TimeBudget <= 0 {
		prog.TimeBudget = s.config.TimeBudget
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.New()
	state := &runState{
		key:     prog.IsolationKey,
		started: time.Now(),
		cancel:  cancel,
		doneCh:  make(chan struct{}),
	}

	s.mu.Lock()
	s.running[id] = state
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		close(state.doneCh)
	}()

	out, err := s.executor.Execute(ctx, prog)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	slog.Debug("program executed",
		"isolation_key", prog.IsolationKey,
		"probes", len(prog.Probes),
		"setup", out.Setup.Status,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

// Cancel terminates every in-flight execution for an isolation key and
// reports how many were cancelled.
func (s *Service) Cancel(isolationKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, state := range s.running {
		if state.key == isolationKey {
			state.cancel()
			n++
		}
	}
	return n
}

// Release cancels in-flight work for a key and frees its backend resources
func (s *Service) Release(ctx context.Context, isolationKey string) error {
	s.Cancel(isolationKey)
	if r, ok := s.executor.(Releaser); ok {
		return r.Release(ctx, isolationKey)
	}
	return nil
}

// IsRunning reports whether any execution for the key is in flight
func (s *Service) IsRunning(isolationKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.running {
		if state.key == isolationKey {
			return true
		}
	}
	return false
}

// Running returns the number of in-flight executions
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Wait blocks until all in-flight executions finish or ctx is done
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	pending := make([]chan struct{}, 0, len(s.running))
	for _, state := range s.running {
		pending = append(pending, state.doneCh)
	}
	s.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close closes the underlying executor
func (s *Service) Close() error {
	if c, ok := s.executor.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
