package runner

import (
	"context"
	"io"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
)

// PoolConfig bounds how many programs execute at once
type PoolConfig struct {
	MaxConcurrent int
	MaxQueue      int
	QueueTimeout  time.Duration
}

// DefaultPoolConfig returns the default execution limits
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConcurrent: 4,
		MaxQueue:      16,
		QueueTimeout:  30 * time.Second,
	}
}

// Pool wraps an Executor with a bulkhead. The time budget of a program
// starts when it leaves the queue.
type Pool struct {
	exec     Executor
	bulkhead bulkhead.Bulkhead[*Outcome]
}

var (
	_ Executor = (*Pool)(nil)
	_ Releaser = (*Pool)(nil)
)

// NewPool creates a bounded executor
func NewPool(exec Executor, cfg PoolConfig) *Pool {
	def := DefaultPoolConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = 0
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = def.QueueTimeout
	}
	return &Pool{
		exec: exec,
		bulkhead: bulkhead.New[*Outcome](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxQueue,
			QueueTimeout:  cfg.QueueTimeout,
		}),
	}
}

func (p *Pool) Execute(ctx context.Context, prog Program) (*Outcome, error) {
	return p.bulkhead.Execute(ctx, func(ctx context.Context) (*Outcome, error) {
		return p.exec.Execute(ctx, prog)
	})
}

func (p *Pool) Release(ctx context.Context, isolationKey string) error {
	if r, ok := p.exec.(Releaser); ok {
		return r.Release(ctx, isolationKey)
	}
	return nil
}

func (p *Pool) Close() error {
	if c, ok := p.exec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
