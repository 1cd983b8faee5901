package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/app"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
	mcpserver "github.com/jspmic/cj11-mesmerizing-meteors/internal/mcp"
)

// cmdMCP serves the quiz tools over stdio. Stdout carries the protocol, so
// logs go to stderr.
func cmdMCP() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, app.WithOwner("meteor-mcp"))
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcpserver.NewServer(mcpserver.Config{
		Sessions: a.Sessions,
		Registry: a.Content,
		Version:  Version,
	})
	return srv.ServeStdio(ctx)
}

func checkDocker() error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH")
	}
	cmd := exec.Command("docker", "info")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker daemon not running")
	}
	return nil
}

func checkPython(python string) (string, error) {
	if python == "" {
		python = "python3"
	}
	path, err := exec.LookPath(python)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", python)
	}
	out, err := exec.Command(path, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", python, err)
	}
	return string(trimNewline(out)), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
