package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestMeteorDir(t *testing.T) {
	dir, err := MeteorDir()
	if err != nil {
		t.Fatalf("MeteorDir() error = %v", err)
	}
	if filepath.Base(dir) != ".meteor" {
		t.Errorf("MeteorDir() = %q, want ending with .meteor", dir)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("MeteorDir() = %q, want absolute path", dir)
	}
}

func TestEnsureMeteorDir(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir, err := EnsureMeteorDir()
	if err != nil {
		t.Fatalf("EnsureMeteorDir() error = %v", err)
	}
	if want := filepath.Join(tmpHome, ".meteor"); dir != want {
		t.Errorf("EnsureMeteorDir() = %q, want %q", dir, want)
	}
	for _, subdir := range []string{"logs", "sessions", "content"} {
		if _, err := os.Stat(filepath.Join(dir, subdir)); os.IsNotExist(err) {
			t.Errorf("EnsureMeteorDir() should create %s", subdir)
		}
	}
}

func TestDefaultLocalConfig(t *testing.T) {
	cfg := DefaultLocalConfig()

	if cfg.Daemon.Port != 7433 {
		t.Errorf("Daemon.Port = %d, want 7433", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want 127.0.0.1", cfg.Daemon.Bind)
	}
	if cfg.Runner.Executor != ExecutorLocal {
		t.Errorf("Runner.Executor = %q, want local", cfg.Runner.Executor)
	}
	if cfg.Runner.TimeBudget != 2*time.Second {
		t.Errorf("Runner.TimeBudget = %v, want 2s", cfg.Runner.TimeBudget)
	}
	if cfg.Session.MaxAttempts != 3 {
		t.Errorf("Session.MaxAttempts = %d, want 3", cfg.Session.MaxAttempts)
	}
	if cfg.Session.Store != StoreFile {
		t.Errorf("Session.Store = %q, want file", cfg.Session.Store)
	}
	if cfg.Grading.Dispatch != DispatchInline {
		t.Errorf("Grading.Dispatch = %q, want inline", cfg.Grading.Dispatch)
	}
	if !cfg.Runner.Docker.NetworkOff {
		t.Error("Runner.Docker.NetworkOff = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestLoadLocalConfigFrom_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadLocalConfigFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadLocalConfigFrom() error = %v", err)
	}
	if cfg.Daemon.Port != 7433 {
		t.Errorf("Daemon.Port = %d, want default 7433", cfg.Daemon.Port)
	}
}

func TestLoadLocalConfigFrom_WithFiles(t *testing.T) {
	dir := t.TempDir()
	config := `
daemon:
  port: 8000
content:
  path: /srv/lessons
  strict: true
runner:
  executor: docker
  time_budget: 2s
session:
  max_attempts: 0
  store: sqlite
`
	secrets := "database_url: postgres://meteor:pw@db/meteor\nrabbitmq_url: amqp://meteor:pw@mq:5672/\n"
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0644)
	os.WriteFile(filepath.Join(dir, "secrets.yaml"), []byte(secrets), 0600)

	cfg, err := LoadLocalConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadLocalConfigFrom() error = %v", err)
	}
	if cfg.Daemon.Port != 8000 {
		t.Errorf("Daemon.Port = %d, want 8000", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want default kept", cfg.Daemon.Bind)
	}
	if !cfg.Content.Strict || cfg.Content.Path != "/srv/lessons" {
		t.Errorf("Content = %+v, want strict /srv/lessons", cfg.Content)
	}
	if cfg.Runner.TimeBudget != 2*time.Second {
		t.Errorf("Runner.TimeBudget = %v, want 2s", cfg.Runner.TimeBudget)
	}
	if cfg.Session.MaxAttempts != 0 {
		t.Errorf("Session.MaxAttempts = %d, want 0 (unlimited)", cfg.Session.MaxAttempts)
	}
	if cfg.Session.DatabaseURL != "postgres://meteor:pw@db/meteor" {
		t.Errorf("Session.DatabaseURL = %q, want value from secrets", cfg.Session.DatabaseURL)
	}
	if cfg.Grading.RabbitMQURL != "amqp://meteor:pw@mq:5672/" {
		t.Errorf("Grading.RabbitMQURL = %q, want value from secrets", cfg.Grading.RabbitMQURL)
	}
}

func TestLoadLocalConfigFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("daemon: [unclosed"), 0644)

	if _, err := LoadLocalConfigFrom(dir); err == nil {
		t.Error("LoadLocalConfigFrom() should fail on invalid YAML")
	}
}

func TestSaveLocalConfig_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 9999
	cfg.Session.DatabaseURL = "postgres://secret"
	if err := SaveLocalConfig(cfg); err != nil {
		t.Fatalf("SaveLocalConfig() error = %v", err)
	}

	dir, _ := MeteorDir()
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if strings.Contains(string(data), "postgres://secret") {
		t.Error("config.yaml must not contain the database url")
	}

	var loaded LocalConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Daemon.Port != 9999 {
		t.Errorf("saved Daemon.Port = %d, want 9999", loaded.Daemon.Port)
	}
	if loaded.Runner.TimeBudget != 2*time.Second {
		t.Errorf("saved Runner.TimeBudget = %v, want 2s", loaded.Runner.TimeBudget)
	}
}

func TestSaveSecrets_Permissions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := SaveSecrets(SecretsConfig{RabbitMQURL: "amqp://u:p@mq/"}); err != nil {
		t.Fatalf("SaveSecrets() error = %v", err)
	}
	dir, _ := MeteorDir()
	info, err := os.Stat(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		t.Fatalf("stat secrets: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("secrets.yaml mode = %o, want 600", perm)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LocalConfig)
		wantErr string
	}{
		{"defaults", func(*LocalConfig) {}, ""},
		{"bad port", func(c *LocalConfig) { c.Daemon.Port = 0 }, "daemon.port"},
		{"bad executor", func(c *LocalConfig) { c.Runner.Executor = "wasm" }, "runner.executor"},
		{"zero budget", func(c *LocalConfig) { c.Runner.TimeBudget = 0 }, "time_budget"},
		{"negative attempts", func(c *LocalConfig) { c.Session.MaxAttempts = -1 }, "max_attempts"},
		{"unknown store", func(c *LocalConfig) { c.Session.Store = "etcd" }, "session.store"},
		{"postgres without url", func(c *LocalConfig) { c.Session.Store = StorePostgres }, "database url"},
		{"redis without addr", func(c *LocalConfig) { c.Session.Store = StoreRedis }, "redis_addr"},
		{"queue without url", func(c *LocalConfig) { c.Grading.Dispatch = DispatchQueue }, "rabbitmq url"},
		{"unknown dispatch", func(c *LocalConfig) { c.Grading.Dispatch = "kafka" }, "grading.dispatch"},
		{"unlimited attempts", func(c *LocalConfig) { c.Session.MaxAttempts = 0 }, ""},
		{"fold case choices", func(c *LocalConfig) { c.Session.ChoiceMatch = ChoiceFoldCase }, ""},
		{"unknown choice match", func(c *LocalConfig) { c.Session.ChoiceMatch = "fuzzy" }, "choice_match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLocalConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSessionPath(t *testing.T) {
	t.Setenv("HOME", "/home/learner")

	cfg := DefaultLocalConfig()
	if got, _ := cfg.SessionPath(); got != "/home/learner/.meteor/sessions" {
		t.Errorf("SessionPath() = %q, want file store dir", got)
	}
	cfg.Session.Store = StoreSQLite
	if got, _ := cfg.SessionPath(); got != "/home/learner/.meteor/meteor.db" {
		t.Errorf("SessionPath() = %q, want sqlite file", got)
	}
	cfg.Session.Path = "/tmp/x.db"
	if got, _ := cfg.SessionPath(); got != "/tmp/x.db" {
		t.Errorf("SessionPath() = %q, want explicit path", got)
	}
}

func TestContentPath(t *testing.T) {
	cfg := DefaultLocalConfig()
	cfg.Content.Path = "/srv/lessons.json"
	if got, err := cfg.ContentPath(); err != nil || got != "/srv/lessons.json" {
		t.Errorf("ContentPath() = %q, %v; want explicit path", got, err)
	}

	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	cfg.Content.Path = ""
	if _, err := cfg.ContentPath(); err == nil {
		t.Error("ContentPath() should fail when no bank exists")
	}
}
