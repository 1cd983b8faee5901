package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for the daemon, the worker and the CLI
type LocalConfig struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Content   ContentConfig   `yaml:"content"`
	Runner    RunnerConfig    `yaml:"runner"`
	Session   SessionConfig   `yaml:"session"`
	Grading   GradingConfig   `yaml:"grading"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// ContentConfig points at the lesson bank
type ContentConfig struct {
	// Path is a bank file or a directory of bank files. Empty means
	// ./content, then ~/.meteor/content.
	Path string `yaml:"path"`
	// Strict refuses to start when any lesson fails validation.
	Strict bool `yaml:"strict"`
}

// RunnerConfig holds code execution settings
type RunnerConfig struct {
	Executor      string             `yaml:"executor"`
	Python        string             `yaml:"python"`
	TimeBudget    time.Duration      `yaml:"time_budget"`
	MemoryMB      int                `yaml:"memory_mb"`
	MaxOutputKB   int                `yaml:"max_output_kb"`
	MaxConcurrent int                `yaml:"max_concurrent"`
	MaxQueue      int                `yaml:"max_queue"`
	Docker        DockerRunnerConfig `yaml:"docker"`
}

// DockerRunnerConfig holds Docker executor settings
type DockerRunnerConfig struct {
	Image        string        `yaml:"image"`
	MemoryMB     int           `yaml:"memory_mb"`
	CPULimit     float64       `yaml:"cpu_limit"`
	NetworkOff   bool          `yaml:"network_off"`
	IdleTTL      time.Duration `yaml:"idle_ttl"`
	MaxSandboxes int           `yaml:"max_sandboxes"`
}

// SessionConfig holds retry policy and persistence settings
type SessionConfig struct {
	// MaxAttempts per item; 0 means unlimited.
	MaxAttempts int    `yaml:"max_attempts"`
	Store       string `yaml:"store"`
	// Path is the directory of the file store or the sqlite database file.
	// Empty means a location under ~/.meteor.
	Path        string        `yaml:"path,omitempty"`
	DatabaseURL string        `yaml:"-"` // Loaded from secrets.yaml or env
	RedisAddr   string        `yaml:"redis_addr,omitempty"`
	TTL         time.Duration `yaml:"ttl"`
	// ChoiceMatch is exact or fold_case. Empty means exact.
	ChoiceMatch string `yaml:"choice_match,omitempty"`
}

// FoldChoiceCase reports whether choice answers match option keys
// regardless of case
func (c SessionConfig) FoldChoiceCase() bool {
	return c.ChoiceMatch == ChoiceFoldCase
}

// GradingConfig selects where write_code items are graded
type GradingConfig struct {
	Dispatch    string        `yaml:"dispatch"`
	RabbitMQURL string        `yaml:"-"` // Loaded from secrets.yaml or env
	Workers     int           `yaml:"workers"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
}

// RateLimitConfig caps answer submissions per session
type RateLimitConfig struct {
	AnswersPerMinute int `yaml:"answers_per_minute"`
	Burst            int `yaml:"burst"`
}

// SecretsConfig holds connection strings loaded from secrets.yaml
type SecretsConfig struct {
	DatabaseURL string `yaml:"database_url,omitempty"`
	RabbitMQURL string `yaml:"rabbitmq_url,omitempty"`
}

// Enumerations accepted by Validate.
const (
	ExecutorLocal  = "local"
	ExecutorDocker = "docker"

	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	DispatchInline = "inline"
	DispatchQueue  = "queue"

	ChoiceExact    = "exact"
	ChoiceFoldCase = "fold_case"
)

// MeteorDir returns the path to ~/.meteor
func MeteorDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".meteor"), nil
}

// EnsureMeteorDir creates ~/.meteor and subdirectories if they don't exist
func EnsureMeteorDir() (string, error) {
	dir, err := MeteorDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "sessions", "content"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}
	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Runner: RunnerConfig{
			Executor:      ExecutorLocal,
			Python:        "python3",
			TimeBudget:    2 * time.Second,
			MemoryMB:      256,
			MaxOutputKB:   256,
			MaxConcurrent: 4,
			MaxQueue:      16,
			Docker: DockerRunnerConfig{
				Image:        "python:3.12-alpine",
				MemoryMB:     256,
				CPULimit:     0.5,
				NetworkOff:   true,
				IdleTTL:      30 * time.Minute,
				MaxSandboxes: 32,
			},
		},
		Session: SessionConfig{
			MaxAttempts: 3,
			Store:       StoreFile,
			TTL:         24 * time.Hour,
		},
		Grading: GradingConfig{
			Dispatch:   DispatchInline,
			Workers:    3,
			JobTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			AnswersPerMinute: 30,
			Burst:            5,
		},
	}
}

// LoadLocalConfig loads ~/.meteor/config.yaml and secrets.yaml, then applies
// METEOR_* environment overrides. A missing file means defaults.
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := MeteorDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom is LoadLocalConfig rooted at dir
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// loadSecrets loads connection strings from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}
	if secrets.DatabaseURL != "" {
		cfg.Session.DatabaseURL = secrets.DatabaseURL
	}
	if secrets.RabbitMQURL != "" {
		cfg.Grading.RabbitMQURL = secrets.RabbitMQURL
	}
	return nil
}

// SaveLocalConfig saves configuration to ~/.meteor/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureMeteorDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveSecrets saves connection strings to ~/.meteor/secrets.yaml
func SaveSecrets(secrets SecretsConfig) error {
	dir, err := EnsureMeteorDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	// owner read/write only
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}

// ContentPath resolves the lesson bank location
func (c *LocalConfig) ContentPath() (string, error) {
	if c.Content.Path != "" {
		return c.Content.Path, nil
	}
	candidates := []string{"content"}
	if dir, err := MeteorDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "content"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no lesson bank found in %v; set content.path or METEOR_CONTENT", candidates)
}

// SessionPath resolves the file store directory or sqlite database file
func (c *LocalConfig) SessionPath() (string, error) {
	if c.Session.Path != "" {
		return c.Session.Path, nil
	}
	dir, err := MeteorDir()
	if err != nil {
		return "", err
	}
	if c.Session.Store == StoreSQLite {
		return filepath.Join(dir, "meteor.db"), nil
	}
	return filepath.Join(dir, "sessions"), nil
}

// Validate rejects unknown enum values and non-positive budgets
func (c *LocalConfig) Validate() error {
	var errs []error
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port %d out of range", c.Daemon.Port))
	}
	switch c.Runner.Executor {
	case ExecutorLocal, ExecutorDocker:
	default:
		errs = append(errs, fmt.Errorf("runner.executor %q: want local or docker", c.Runner.Executor))
	}
	if c.Runner.TimeBudget <= 0 {
		errs = append(errs, fmt.Errorf("runner.time_budget must be positive"))
	}
	if c.Runner.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("runner.max_concurrent must be positive"))
	}
	if c.Session.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("session.max_attempts must be 0 (unlimited) or positive"))
	}
	switch c.Session.Store {
	case StoreMemory, StoreFile, StoreSQLite:
	case StorePostgres:
		if c.Session.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("session.store postgres needs a database url"))
		}
	case StoreRedis:
		if c.Session.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("session.store redis needs session.redis_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.store %q: want memory, file, sqlite, postgres or redis", c.Session.Store))
	}
	switch c.Session.ChoiceMatch {
	case "", ChoiceExact, ChoiceFoldCase:
	default:
		errs = append(errs, fmt.Errorf("session.choice_match %q: want exact or fold_case", c.Session.ChoiceMatch))
	}
	switch c.Grading.Dispatch {
	case DispatchInline:
	case DispatchQueue:
		if c.Grading.RabbitMQURL == "" {
			errs = append(errs, fmt.Errorf("grading.dispatch queue needs a rabbitmq url"))
		}
	default:
		errs = append(errs, fmt.Errorf("grading.dispatch %q: want inline or queue", c.Grading.Dispatch))
	}
	if c.RateLimit.AnswersPerMinute < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("ratelimit values must not be negative"))
	}
	return errors.Join(errs...)
}
