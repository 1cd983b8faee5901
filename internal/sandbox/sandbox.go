// Package sandbox keeps one long-lived interpreter container per isolation
// key. Every grading call starts a fresh process inside it, so containers
// are reused across attempts while interpreter state never is.
package sandbox

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a sandbox record.
type Status string

const (
	StatusCreating  Status = "creating"
	StatusReady     Status = "ready"
	StatusDestroyed Status = "destroyed"
)

// DefaultMaxOutput caps each captured stream of one exec.
const DefaultMaxOutput = 1 << 20

// Sandbox is the record of one container owned by an isolation key, which
// is a session id for lesson play or a throwaway key for ad-hoc grading.
type Sandbox struct {
	ID          string        `json:"id"`
	Key         string        `json:"key"`
	ContainerID string        `json:"container_id"`
	Image       string        `json:"image"`
	Status      Status        `json:"status"`
	MemoryMB    int           `json:"memory_mb"`
	CPULimit    float64       `json:"cpu_limit"`
	NetworkOff  bool          `json:"network_off"`
	IdleTTL     time.Duration `json:"idle_ttl"`
	Runs        int           `json:"runs"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Live reports whether the record still owns (or is creating) a container.
func (s *Sandbox) Live() bool {
	return s.Status != StatusDestroyed
}

// Expired reports whether the sandbox sat idle past its TTL at now.
func (s *Sandbox) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Sandbox) touch(now time.Time) {
	s.Runs++
	s.LastRunAt = &now
	s.ExpiresAt = now.Add(s.IdleTTL)
	s.UpdatedAt = now
}

// ExecSpec is one command run inside a sandbox.
type ExecSpec struct {
	Cmd     []string
	Timeout time.Duration
	// MaxOutput caps stdout and stderr separately. Zero means DefaultMaxOutput.
	MaxOutput int
}

// ExecResult holds the captured output of one exec.
type ExecResult struct {
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Config holds container limits.
type Config struct {
	Image      string        `json:"image"`
	MemoryMB   int           `json:"memory_mb"`
	CPULimit   float64       `json:"cpu_limit"`
	NetworkOff bool          `json:"network_off"`
	IdleTTL    time.Duration `json:"idle_ttl"`
}

// DefaultConfig returns defaults for a Python sandbox.
func DefaultConfig() Config {
	return Config{
		Image:      "python:3.12-alpine",
		MemoryMB:   256,
		CPULimit:   0.5,
		NetworkOff: true,
		IdleTTL:    DefaultIdleTTL,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Image == "" {
		c.Image = def.Image
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = def.MemoryMB
	}
	if c.CPULimit <= 0 {
		c.CPULimit = def.CPULimit
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = def.IdleTTL
	}
	return c
}

var (
	ErrSandboxNotFound = errors.New("sandbox not found")
	ErrSandboxExpired  = errors.New("sandbox has expired")
	ErrSandboxNotReady = errors.New("sandbox is not ready")
	ErrMaxSandboxes    = errors.New("maximum concurrent sandboxes reached")
)
