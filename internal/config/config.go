package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides file settings with METEOR_* environment variables.
// Unparseable values are logged and ignored.
func ApplyEnv(cfg *LocalConfig) {
	env(&cfg.Daemon.Port, "METEOR_PORT", strconv.Atoi)
	env(&cfg.Daemon.LogLevel, "METEOR_LOG_LEVEL", asString)
	env(&cfg.Content.Path, "METEOR_CONTENT", asString)
	env(&cfg.Content.Strict, "METEOR_CONTENT_STRICT", strconv.ParseBool)
	env(&cfg.Runner.Executor, "METEOR_EXECUTOR", asString)
	env(&cfg.Runner.Python, "METEOR_PYTHON", asString)
	env(&cfg.Runner.TimeBudget, "METEOR_TIME_BUDGET", parseSeconds)
	env(&cfg.Runner.Docker.CPULimit, "METEOR_CPU_LIMIT", parseFloat)
	env(&cfg.Session.Store, "METEOR_STORE", asString)
	env(&cfg.Session.MaxAttempts, "METEOR_MAX_ATTEMPTS", strconv.Atoi)
	env(&cfg.Session.DatabaseURL, "METEOR_DATABASE_URL", asString)
	env(&cfg.Session.RedisAddr, "METEOR_REDIS_ADDR", asString)
	env(&cfg.Session.ChoiceMatch, "METEOR_CHOICE_MATCH", asString)
	env(&cfg.Grading.RabbitMQURL, "METEOR_RABBITMQ_URL", asString)
	env(&cfg.Grading.Dispatch, "METEOR_DISPATCH", asString)
}

// env sets *dst from the variable key when it is set and parses.
func env[T any](dst *T, key string, parse func(string) (T, error)) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return
	}
	v, err := parse(raw)
	if err != nil {
		slog.Warn("ignoring environment override", "key", key, "value", raw, "error", err)
		return
	}
	*dst = v
}

func asString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// parseSeconds accepts Go durations ("2s") or whole seconds ("2").
func parseSeconds(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
