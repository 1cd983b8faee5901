// Package app assembles the grading engine from configuration: content
// registry, executor stack, grader, session store and session service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/content"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/queue"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/runner"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/sandbox"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/storage/postgres"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/storage/redis"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/storage/sqlite"
)

// sandboxReapInterval is how often expired sandbox containers are destroyed.
const sandboxReapInterval = time.Minute

// App is a fully wired engine
type App struct {
	Config   *config.LocalConfig
	Content  *content.Registry
	Runner   *runner.Service // nil when grading is dispatched to workers
	Grader   grader.CodeGrader
	Store    session.Store
	Sessions *session.Service

	sandboxStore sandbox.Store
	owner        string
	reapOrphans  bool
	closers      []func() error
}

// Option adjusts how Build wires the engine
type Option func(*App)

// WithOwner names the process that owns its sandbox containers. Build reaps
// containers of the same owner left behind by an earlier run.
func WithOwner(name string) Option {
	return func(a *App) { a.owner = name }
}

// Build wires everything the daemon needs. Close releases it. On error every
// component opened so far is closed before Build returns.
func Build(ctx context.Context, cfg *config.LocalConfig, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, owner: "meteord", reapOrphans: true}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.wire(ctx); err != nil {
		if cerr := a.Close(); cerr != nil {
			slog.Warn("cleanup after failed build", "error", cerr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	var err error
	if a.Content, err = LoadContent(cfg); err != nil {
		return err
	}
	if err := a.openStore(ctx); err != nil {
		return err
	}

	switch cfg.Grading.Dispatch {
	case config.DispatchQueue:
		conn, err := queue.NewConnection(ctx, cfg.Grading.RabbitMQURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, conn.Close)
		client, err := queue.NewClient(conn)
		if err != nil {
			return err
		}
		a.Grader = client
	default:
		svc, err := a.buildRunner(ctx)
		if err != nil {
			return err
		}
		a.Runner = svc
		a.Grader = grader.New(svc, cfg.Runner.TimeBudget)
	}

	a.Sessions = session.NewService(session.Config{
		MaxAttempts: cfg.Session.MaxAttempts,
		ChoiceMatch: grader.MatchingFor(cfg.Session.FoldChoiceCase()),
	}, a.Store, a.Content, a.Grader)
	if a.Runner != nil {
		a.Sessions.SetReleaser(a.Runner)
	}
	if _, err := a.Sessions.Recover(ctx); err != nil {
		slog.Warn("session recovery failed", "error", err)
	}
	return nil
}

// BuildGrader wires a content registry and an in-process grader. The CLI
// and the queue worker use it.
func BuildGrader(ctx context.Context, cfg *config.LocalConfig) (*App, error) {
	a := &App{Config: cfg, owner: fmt.Sprintf("grader-%d", os.Getpid())}
	var err error
	if a.Content, err = LoadContent(cfg); err != nil {
		return nil, err
	}
	a.sandboxStore = sandbox.NewMemoryStore()
	if a.Runner, err = a.buildRunner(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Grader = grader.New(a.Runner, cfg.Runner.TimeBudget)
	return a, nil
}

// LoadContent loads the lesson bank named by the config
func LoadContent(cfg *config.LocalConfig) (*content.Registry, error) {
	path, err := cfg.ContentPath()
	if err != nil {
		return nil, err
	}
	reg, err := content.Load(path, cfg.Content.Strict)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	return reg, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	a.sandboxStore = sandbox.NewMemoryStore()

	switch cfg.Session.Store {
	case config.StoreMemory:
		a.Store = session.NewMemoryStore()

	case config.StoreFile:
		path, err := cfg.SessionPath()
		if err != nil {
			return err
		}
		store, err := session.NewFileStore(path)
		if err != nil {
			return err
		}
		a.Store = store

	case config.StoreSQLite:
		path, err := cfg.SessionPath()
		if err != nil {
			return err
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		a.Store = sqlite.NewSessionStore(db)
		a.sandboxStore = sqlite.NewSandboxStore(db)

	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.Session.DatabaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		a.Store = postgres.NewSessionStore(pool)

	case config.StoreRedis:
		rdb, err := redis.NewClient(ctx, cfg.Session.RedisAddr)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		a.Store = redis.NewStore(rdb, "meteor", cfg.Session.TTL)

	default:
		return fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}

	slog.Info("session store ready", "store", cfg.Session.Store)
	return nil
}

// buildRunner assembles executor -> bulkhead pool -> tracking service
func (a *App) buildRunner(ctx context.Context) (*runner.Service, error) {
	rc := a.Config.Runner

	var exec runner.Executor
	switch rc.Executor {
	case config.ExecutorDocker:
		backend, err := sandbox.NewDockerBackend(a.owner)
		if err != nil {
			return nil, err
		}
		manager := sandbox.NewManager(a.sandboxStore, backend, rc.Docker.MaxSandboxes)
		if n, err := manager.Cleanup(ctx); err == nil && n > 0 {
			slog.Info("reaped sandboxes from a previous run", "count", n)
		}
		if a.reapOrphans {
			if _, err := manager.ReapOrphans(ctx); err != nil {
				slog.Warn("orphan sandbox reaping failed", "error", err)
			}
		}
		reapCtx, cancel := context.WithCancel(context.Background())
		manager.StartCleanupLoop(reapCtx, sandboxReapInterval)
		a.closers = append(a.closers, func() error { cancel(); return nil })

		exec = runner.NewDockerExecutor(manager, sandbox.Config{
			Image:      rc.Docker.Image,
			MemoryMB:   rc.Docker.MemoryMB,
			CPULimit:   rc.Docker.CPULimit,
			NetworkOff: rc.Docker.NetworkOff,
			IdleTTL:    rc.Docker.IdleTTL,
		}, rc.MaxOutputKB<<10)

	default:
		local := runner.NewLocalExecutor(runner.LocalConfig{
			Python:    rc.Python,
			MemoryMB:  rc.MemoryMB,
			MaxOutput: rc.MaxOutputKB << 10,
		})
		if err := local.Available(); err != nil {
			return nil, err
		}
		exec = local
	}

	pool := runner.NewPool(exec, runner.PoolConfig{
		MaxConcurrent: rc.MaxConcurrent,
		MaxQueue:      rc.MaxQueue,
	})
	svc := runner.NewService(runner.Config{TimeBudget: rc.TimeBudget}, pool)
	a.closers = append(a.closers, svc.Close)
	return svc, nil
}

// Close shuts components down in reverse order of creation
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
