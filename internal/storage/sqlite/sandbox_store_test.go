package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/sandbox"
)

type stubBackend struct {
	created   int
	destroyed []string
	leftover  []string
}

func (b *stubBackend) Create(context.Context, string, sandbox.Config) (string, error) {
	b.created++
	return fmt.Sprintf("container-%d", b.created), nil
}

func (b *stubBackend) Copy(context.Context, string, map[string]string) error { return nil }

func (b *stubBackend) Exec(context.Context, string, sandbox.ExecSpec) (*sandbox.ExecResult, error) {
	return &sandbox.ExecResult{}, nil
}

func (b *stubBackend) Destroy(_ context.Context, id string) error {
	b.destroyed = append(b.destroyed, id)
	return nil
}

func (b *stubBackend) Containers(context.Context) ([]string, error) {
	ids := append([]string(nil), b.leftover...)
	for i := 1; i <= b.created; i++ {
		ids = append(ids, fmt.Sprintf("container-%d", i))
	}
	return ids, nil
}

func (b *stubBackend) Close() error { return nil }

func testSandbox(id, key string, status sandbox.Status, expires time.Time) *sandbox.Sandbox {
	now := time.Now()
	return &sandbox.Sandbox{
		ID:          id,
		Key:         key,
		ContainerID: "c-" + id,
		Image:       "python:3.12-alpine",
		Status:      status,
		MemoryMB:    256,
		CPULimit:    0.5,
		NetworkOff:  true,
		IdleTTL:     30 * time.Minute,
		ExpiresAt:   expires,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestSandboxStore_Save_Get(t *testing.T) {
	store := NewSandboxStore(openTestDB(t))

	sb := testSandbox("sb-1", "sess-1", sandbox.StatusReady, time.Now().Add(30*time.Minute))
	if err := store.Save(sb); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get("sb-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	tests := []struct {
		field string
		got   any
		want  any
	}{
		{"Key", got.Key, "sess-1"},
		{"ContainerID", got.ContainerID, "c-sb-1"},
		{"Image", got.Image, "python:3.12-alpine"},
		{"Status", got.Status, sandbox.StatusReady},
		{"MemoryMB", got.MemoryMB, 256},
		{"NetworkOff", got.NetworkOff, true},
		{"IdleTTL", got.IdleTTL, 30 * time.Minute},
		{"Runs", got.Runs, 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v; want %v", tt.field, tt.got, tt.want)
		}
	}
	if got.LastRunAt != nil {
		t.Errorf("LastRunAt = %v; want nil", got.LastRunAt)
	}
}

func TestSandboxStore_NotFound(t *testing.T) {
	store := NewSandboxStore(openTestDB(t))

	if _, err := store.Get("nonexistent"); !errors.Is(err, sandbox.ErrSandboxNotFound) {
		t.Errorf("Get() error = %v; want ErrSandboxNotFound", err)
	}
	if _, err := store.GetByKey("nobody"); !errors.Is(err, sandbox.ErrSandboxNotFound) {
		t.Errorf("GetByKey() error = %v; want ErrSandboxNotFound", err)
	}
	if err := store.Delete("nonexistent"); !errors.Is(err, sandbox.ErrSandboxNotFound) {
		t.Errorf("Delete() error = %v; want ErrSandboxNotFound", err)
	}
}

func TestSandboxStore_GetByKey_SkipsDestroyed(t *testing.T) {
	store := NewSandboxStore(openTestDB(t))
	expires := time.Now().Add(30 * time.Minute)

	dead := testSandbox("sb-dead", "adhoc-1", sandbox.StatusDestroyed, expires)
	dead.CreatedAt = dead.CreatedAt.Add(time.Minute)
	_ = store.Save(dead)
	_ = store.Save(testSandbox("sb-live", "adhoc-1", sandbox.StatusReady, expires))

	got, err := store.GetByKey("adhoc-1")
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if got.ID != "sb-live" {
		t.Errorf("ID = %q; want sb-live", got.ID)
	}
}

func TestSandboxStore_Lists(t *testing.T) {
	store := NewSandboxStore(openTestDB(t))
	now := time.Now()

	_ = store.Save(testSandbox("sb-fresh", "s1", sandbox.StatusReady, now.Add(30*time.Minute)))
	_ = store.Save(testSandbox("sb-expired", "s2", sandbox.StatusReady, now.Add(-time.Hour)))
	_ = store.Save(testSandbox("sb-destroyed", "s3", sandbox.StatusDestroyed, now.Add(-time.Hour)))

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 2 {
		t.Errorf("ListActive() returned %d; want 2", len(active))
	}

	expired, err := store.ListExpired(now)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "sb-expired" {
		t.Errorf("ListExpired() = %v; want [sb-expired]", expired)
	}
}

func TestSandboxStore_UpdateKeepsLimits(t *testing.T) {
	store := NewSandboxStore(openTestDB(t))

	sb := testSandbox("sb-update", "s1", sandbox.StatusCreating, time.Now().Add(30*time.Minute))
	_ = store.Save(sb)

	ranAt := time.Now()
	sb.ContainerID = "new-container"
	sb.Status = sandbox.StatusReady
	sb.Runs = 3
	sb.LastRunAt = &ranAt
	sb.MemoryMB = 1024
	if err := store.Save(sb); err != nil {
		t.Fatalf("Save(update) error = %v", err)
	}

	got, err := store.Get("sb-update")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ContainerID != "new-container" || got.Status != sandbox.StatusReady {
		t.Errorf("after update = %s/%s; want new-container/ready", got.ContainerID, got.Status)
	}
	if got.Runs != 3 || got.LastRunAt == nil {
		t.Errorf("runs = %d, last run = %v; want 3 and set", got.Runs, got.LastRunAt)
	}
	if got.MemoryMB != 256 {
		t.Errorf("MemoryMB = %d; want 256 (limits are fixed at creation)", got.MemoryMB)
	}
}

func TestSandboxStore_DrivesManager(t *testing.T) {
	ctx := t.Context()
	backend := &stubBackend{leftover: []string{"crashed-run"}}
	mgr := sandbox.NewManager(NewSandboxStore(openTestDB(t)), backend, 2)

	sb, err := mgr.Acquire(ctx, "sess-1", sandbox.DefaultConfig())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	again, err := mgr.Acquire(ctx, "sess-1", sandbox.DefaultConfig())
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if again.ID != sb.ID {
		t.Errorf("second Acquire() = %s; want reuse of %s", again.ID, sb.ID)
	}

	if n, err := mgr.ReapOrphans(ctx); err != nil || n != 1 {
		t.Errorf("ReapOrphans() = %d, %v; want 1, nil", n, err)
	}

	if err := mgr.Release(ctx, "sess-1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	want := []string{"crashed-run", sb.ContainerID}
	if fmt.Sprint(backend.destroyed) != fmt.Sprint(want) {
		t.Errorf("destroyed = %v; want %v", backend.destroyed, want)
	}
}
