// Command meteorworker consumes write_code grading jobs from RabbitMQ and
// grades them on the configured executor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/app"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/logging"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/queue"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	meteorDir, err := config.EnsureMeteorDir()
	if err != nil {
		return fmt.Errorf("ensure meteor dir: %w", err)
	}
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := logging.Setup(filepath.Join(meteorDir, "logs"), "meteorworker", logging.ParseLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	if cfg.Grading.RabbitMQURL == "" {
		return errors.New("no rabbitmq url: set METEOR_RABBITMQ_URL or rabbitmq_url in secrets.yaml")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.BuildGrader(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	conn, err := queue.NewConnection(ctx, cfg.Grading.RabbitMQURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	worker := queue.NewWorker(conn, a.Content, a.Grader, queue.WorkerConfig{
		Workers:    cfg.Grading.Workers,
		JobTimeout: cfg.Grading.JobTimeout,
	})
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	slog.Info("worker running", "workers", cfg.Grading.Workers, "executor", cfg.Runner.Executor, "lessons", a.Content.Count())
	<-ctx.Done()

	slog.Info("received signal, draining")
	worker.Stop()
	return nil
}
