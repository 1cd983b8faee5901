package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxSandboxes limits the number of live sandboxes.
	DefaultMaxSandboxes = 32
	// DefaultIdleTTL is how long an unused sandbox survives.
	DefaultIdleTTL = 30 * time.Minute
)

// Backend is the container runtime a Manager drives.
type Backend interface {
	Create(ctx context.Context, key string, cfg Config) (containerID string, err error)
	Copy(ctx context.Context, containerID string, files map[string]string) error
	Exec(ctx context.Context, containerID string, spec ExecSpec) (*ExecResult, error)
	Destroy(ctx context.Context, containerID string) error
	// Containers lists the sandbox containers of this backend's owner,
	// including ones left behind by an earlier process.
	Containers(ctx context.Context) ([]string, error)
	Close() error
}

// Manager maps isolation keys to sandboxes and reaps idle ones.
type Manager struct {
	store   Store
	backend Backend
	max     int
	now     func() time.Time

	mu sync.Mutex
}

// NewManager creates a sandbox manager. maxSandboxes <= 0 selects
// DefaultMaxSandboxes.
func NewManager(store Store, backend Backend, maxSandboxes int) *Manager {
	if maxSandboxes <= 0 {
		maxSandboxes = DefaultMaxSandboxes
	}
	return &Manager{
		store:   store,
		backend: backend,
		max:     maxSandboxes,
		now:     time.Now,
	}
}

// Acquire returns the ready sandbox of key, creating one if needed. The
// container is created outside the manager lock; a concurrent Acquire for
// the same key sees ErrSandboxNotReady until it is up.
func (m *Manager) Acquire(ctx context.Context, key string, cfg Config) (*Sandbox, error) {
	cfg = cfg.withDefaults()

	sb, err := m.reserve(ctx, key, cfg)
	if err != nil || sb.Status == StatusReady {
		return sb, err
	}

	containerID, err := m.backend.Create(ctx, key, cfg)
	if err != nil {
		sb.Status = StatusDestroyed
		sb.UpdatedAt = m.now()
		_ = m.store.Save(sb)
		return nil, fmt.Errorf("create container: %w", err)
	}

	sb.ContainerID = containerID
	sb.Status = StatusReady
	sb.UpdatedAt = m.now()
	if err := m.store.Save(sb); err != nil {
		_ = m.backend.Destroy(context.WithoutCancel(ctx), containerID)
		return nil, fmt.Errorf("save sandbox: %w", err)
	}

	slog.Info("sandbox created",
		"sandbox_id", sb.ID,
		"key", key,
		"container_id", shortID(containerID),
		"image", cfg.Image,
	)
	return sb, nil
}

// reserve returns the existing ready sandbox of key or records a new one in
// StatusCreating, counting it against the limit.
func (m *Manager) reserve(ctx context.Context, key string, cfg Config) (*Sandbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, err := m.store.GetByKey(key); err == nil {
		switch {
		case existing.Status == StatusCreating:
			return nil, ErrSandboxNotReady
		case !existing.Expired(now):
			return existing, nil
		}
		m.destroyLocked(ctx, existing)
	}

	active, err := m.store.ListActive()
	if err != nil {
		return nil, fmt.Errorf("list active sandboxes: %w", err)
	}
	if len(active) >= m.max {
		return nil, ErrMaxSandboxes
	}

	sb := &Sandbox{
		ID:         uuid.New().String(),
		Key:        key,
		Image:      cfg.Image,
		Status:     StatusCreating,
		MemoryMB:   cfg.MemoryMB,
		CPULimit:   cfg.CPULimit,
		NetworkOff: cfg.NetworkOff,
		IdleTTL:    cfg.IdleTTL,
		ExpiresAt:  now.Add(cfg.IdleTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Save(sb); err != nil {
		return nil, fmt.Errorf("save sandbox: %w", err)
	}
	return sb, nil
}

// AttachFiles copies files into a sandbox's workspace.
func (m *Manager) AttachFiles(ctx context.Context, sandboxID string, files map[string]string) error {
	sb, err := m.usable(sandboxID)
	if err != nil {
		return err
	}
	return m.backend.Copy(ctx, sb.ContainerID, files)
}

// Execute runs spec inside the sandbox and pushes its expiry out by the
// sandbox's idle TTL.
func (m *Manager) Execute(ctx context.Context, sandboxID string, spec ExecSpec) (*ExecResult, error) {
	sb, err := m.usable(sandboxID)
	if err != nil {
		return nil, err
	}

	result, err := m.backend.Exec(ctx, sb.ContainerID, spec)

	m.mu.Lock()
	if fresh, gerr := m.store.Get(sandboxID); gerr == nil && fresh.Live() {
		fresh.touch(m.now())
		if serr := m.store.Save(fresh); serr != nil {
			slog.Warn("failed to update sandbox", "sandbox_id", sandboxID, "error", serr)
		}
	}
	m.mu.Unlock()

	return result, err
}

func (m *Manager) usable(sandboxID string) (*Sandbox, error) {
	sb, err := m.store.Get(sandboxID)
	if err != nil {
		return nil, ErrSandboxNotFound
	}
	if sb.Status != StatusReady {
		return nil, ErrSandboxNotReady
	}
	if sb.Expired(m.now()) {
		return nil, ErrSandboxExpired
	}
	return sb, nil
}

// Release destroys the sandbox owned by key, if any.
func (m *Manager) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sb, err := m.store.GetByKey(key)
	if err != nil {
		return nil
	}
	m.destroyLocked(ctx, sb)
	slog.Info("sandbox released", "sandbox_id", sb.ID, "key", key, "runs", sb.Runs)
	return nil
}

func (m *Manager) destroyLocked(ctx context.Context, sb *Sandbox) {
	if sb.ContainerID != "" {
		if err := m.backend.Destroy(ctx, sb.ContainerID); err != nil {
			slog.Warn("failed to destroy container", "container_id", shortID(sb.ContainerID), "error", err)
		}
	}
	sb.Status = StatusDestroyed
	sb.UpdatedAt = m.now()
	if err := m.store.Save(sb); err != nil {
		slog.Warn("failed to update sandbox", "sandbox_id", sb.ID, "error", err)
	}
}

// Cleanup destroys every sandbox idle past its TTL.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired, err := m.store.ListExpired(m.now())
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	cleaned := 0
	for _, sb := range expired {
		if sb.Status == StatusCreating {
			continue
		}
		m.destroyLocked(ctx, sb)
		cleaned++
	}
	if cleaned > 0 {
		slog.Info("sandbox cleanup complete", "cleaned", cleaned)
	}
	return cleaned, nil
}

// ReapOrphans removes sandbox containers that no live record owns, such as
// those of a daemon that crashed before cleaning up.
func (m *Manager) ReapOrphans(ctx context.Context) (int, error) {
	ids, err := m.backend.Containers(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.store.ListActive()
	if err != nil {
		return 0, fmt.Errorf("list active sandboxes: %w", err)
	}
	owned := make(map[string]bool, len(active))
	for _, sb := range active {
		owned[sb.ContainerID] = true
	}

	reaped := 0
	for _, id := range ids {
		if owned[id] {
			continue
		}
		if err := m.backend.Destroy(ctx, id); err != nil {
			slog.Warn("failed to reap orphan container", "container_id", shortID(id), "error", err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		slog.Info("reaped orphan sandbox containers", "count", reaped)
	}
	return reaped, nil
}

// StartCleanupLoop runs Cleanup every interval until ctx is done.
func (m *Manager) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Cleanup(ctx); err != nil {
					slog.Warn("sandbox cleanup error", "error", err)
				}
			}
		}
	}()
}

// Close destroys all live sandboxes and closes the backend.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	active, err := m.store.ListActive()
	if err != nil {
		slog.Warn("failed to list active sandboxes during shutdown", "error", err)
	}
	for _, sb := range active {
		m.destroyLocked(ctx, sb)
	}
	m.mu.Unlock()

	return m.backend.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
