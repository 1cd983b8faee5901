package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/app"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/daemon"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFileName = "meteord.pid"

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
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

	logFile, err := logging.Setup(filepath.Join(meteorDir, "logs"), "meteord", logging.ParseLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logFile.Close()

	pidPath := filepath.Join(meteorDir, pidFileName)
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	daemon.Version = Version
	server, err := daemon.NewServer(daemon.ServerConfig{
		Config:   cfg,
		Registry: a.Content,
		Sessions: a.Sessions,
		Grader:   a.Grader,
		Runner:   a.Runner,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		slog.Info("received signal, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}
