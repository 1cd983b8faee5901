package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/sandbox"
)

// SandboxStore keeps sandbox records next to the sessions, so a restarted
// daemon knows which containers are still its own.
type SandboxStore struct {
	db *DB
}

// NewSandboxStore creates a SQLite-backed sandbox store.
func NewSandboxStore(db *DB) *SandboxStore {
	return &SandboxStore{db: db}
}

const sandboxColumns = `id, iso_key, container_id, image, status, memory_mb,
	cpu_limit, network_off, idle_ttl_ms, runs, last_run_at, expires_at,
	created_at, updated_at`

// Save upserts a sandbox record. Limits are fixed at creation.
func (s *SandboxStore) Save(sb *sandbox.Sandbox) error {
	_, err := s.db.Exec(`
		INSERT INTO sandboxes (`+sandboxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			container_id = excluded.container_id,
			status       = excluded.status,
			runs         = excluded.runs,
			last_run_at  = excluded.last_run_at,
			expires_at   = excluded.expires_at,
			updated_at   = excluded.updated_at`,
		sb.ID, sb.Key, sb.ContainerID, sb.Image, string(sb.Status), sb.MemoryMB,
		sb.CPULimit, boolToInt(sb.NetworkOff), sb.IdleTTL.Milliseconds(), sb.Runs,
		nullTime(sb.LastRunAt), sb.ExpiresAt.UTC(), sb.CreatedAt.UTC(), sb.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert sandbox %s: %w", sb.ID, err)
	}
	return nil
}

func (s *SandboxStore) Get(id string) (*sandbox.Sandbox, error) {
	return scanSandbox(s.db.QueryRow(`SELECT `+sandboxColumns+` FROM sandboxes WHERE id = ?`, id))
}

// GetByKey returns the newest live sandbox of an isolation key.
func (s *SandboxStore) GetByKey(key string) (*sandbox.Sandbox, error) {
	return scanSandbox(s.db.QueryRow(`SELECT `+sandboxColumns+` FROM sandboxes
		WHERE iso_key = ? AND status <> ?
		ORDER BY created_at DESC LIMIT 1`, key, string(sandbox.StatusDestroyed)))
}

func (s *SandboxStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM sandboxes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sandbox %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sandbox.ErrSandboxNotFound
	}
	return nil
}

func (s *SandboxStore) ListActive() ([]*sandbox.Sandbox, error) {
	return s.query(`SELECT `+sandboxColumns+` FROM sandboxes
		WHERE status <> ? ORDER BY created_at`, string(sandbox.StatusDestroyed))
}

func (s *SandboxStore) ListExpired(now time.Time) ([]*sandbox.Sandbox, error) {
	return s.query(`SELECT `+sandboxColumns+` FROM sandboxes
		WHERE status <> ? AND expires_at < ? ORDER BY expires_at`,
		string(sandbox.StatusDestroyed), now.UTC())
}

func (s *SandboxStore) query(q string, args ...any) ([]*sandbox.Sandbox, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sandboxes: %w", err)
	}
	defer rows.Close()

	var out []*sandbox.Sandbox
	for rows.Next() {
		sb, err := scanSandbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sb)
	}
	return out, rows.Err()
}

func scanSandbox(row rowScanner) (*sandbox.Sandbox, error) {
	var (
		sb         sandbox.Sandbox
		status     string
		networkOff int
		idleTTLMS  int64
		lastRunAt  sql.NullTime
	)
	err := row.Scan(
		&sb.ID, &sb.Key, &sb.ContainerID, &sb.Image, &status, &sb.MemoryMB,
		&sb.CPULimit, &networkOff, &idleTTLMS, &sb.Runs, &lastRunAt, &sb.ExpiresAt,
		&sb.CreatedAt, &sb.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sandbox.ErrSandboxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sandbox: %w", err)
	}

	sb.Status = sandbox.Status(status)
	sb.NetworkOff = networkOff != 0
	sb.IdleTTL = time.Duration(idleTTLMS) * time.Millisecond
	if lastRunAt.Valid {
		sb.LastRunAt = &lastRunAt.Time
	}
	return &sb, nil
}
