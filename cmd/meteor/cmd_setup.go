package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/content"
)

// cmdInit prepares ~/.meteor for first use
func cmdInit() error {
	fmt.Println("Meteor - First-Time Setup")
	fmt.Println("=========================")
	fmt.Println()

	fmt.Print("Creating ~/.meteor directory structure... ")
	meteorDir, err := config.EnsureMeteorDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(meteorDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	fmt.Print("Installing lesson bank... ")
	dest := filepath.Join(meteorDir, "content")
	if _, err := os.Stat("./content"); err == nil {
		if err := copyDir("./content", dest); err != nil {
			fmt.Printf("⚠ %v\n", err)
		} else {
			fmt.Println("✓")
		}
	} else {
		fmt.Println("⚠ no ./content directory here; set content.path in config.yaml")
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// connection strings only matter for the networked backends
	if cfg.Session.Store == config.StorePostgres || cfg.Grading.Dispatch == config.DispatchQueue {
		reader := bufio.NewReader(os.Stdin)
		var secrets config.SecretsConfig
		if cfg.Session.Store == config.StorePostgres && cfg.Session.DatabaseURL == "" {
			fmt.Print("Postgres URL (Enter to skip): ")
			secrets.DatabaseURL = readLine(reader)
		}
		if cfg.Grading.Dispatch == config.DispatchQueue && cfg.Grading.RabbitMQURL == "" {
			fmt.Print("RabbitMQ URL (Enter to skip): ")
			secrets.RabbitMQURL = readLine(reader)
		}
		if secrets.DatabaseURL != "" || secrets.RabbitMQURL != "" {
			if err := config.SaveSecrets(secrets); err != nil {
				return fmt.Errorf("save secrets: %w", err)
			}
			fmt.Println("Secrets saved ✓")
		}
	}

	fmt.Println()
	fmt.Println("Setup complete. Next steps:")
	fmt.Println("  meteor doctor      check the environment")
	fmt.Println("  meteor start       start the daemon")
	fmt.Println("  meteor play 1      play the first lesson")
	return nil
}

func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// cmdDoctor checks the grading environment
func cmdDoctor() error {
	fmt.Println("Meteor Doctor")
	fmt.Println("=============")
	fmt.Println()

	allGood := true

	fmt.Print("Directory: ")
	meteorDir, err := config.MeteorDir()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else if _, err := os.Stat(meteorDir); os.IsNotExist(err) {
		fmt.Println("✗ ~/.meteor missing (run 'meteor init')")
		allGood = false
	} else {
		fmt.Printf("✓ %s\n", meteorDir)
	}

	fmt.Print("Config:    ")
	cfg, err := config.LoadLocalConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		cfg = config.DefaultLocalConfig()
		allGood = false
	} else {
		fmt.Println("✓ loaded")
	}

	fmt.Print("Python:    ")
	if version, err := checkPython(cfg.Runner.Python); err != nil {
		fmt.Printf("✗ %v\n", err)
		if cfg.Runner.Executor == config.ExecutorLocal {
			allGood = false
		}
	} else {
		fmt.Printf("✓ %s\n", version)
	}

	fmt.Print("Docker:    ")
	if err := checkDocker(); err != nil {
		if cfg.Runner.Executor == config.ExecutorDocker {
			fmt.Printf("✗ %v\n", err)
			allGood = false
		} else {
			fmt.Printf("- %v (only needed for the docker executor)\n", err)
		}
	} else {
		fmt.Println("✓ available")
	}

	fmt.Print("Lessons:   ")
	if path, err := cfg.ContentPath(); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else if lessons, problems, err := content.LoadPath(path); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Printf("✓ %d lessons from %s\n", len(lessons), path)
		for _, p := range problems {
			fmt.Printf("           ⚠ %v\n", p)
		}
		if len(problems) > 0 && cfg.Content.Strict {
			allGood = false
		}
	}

	fmt.Print("Daemon:    ")
	if isRunning() {
		fmt.Println("✓ running")
	} else {
		fmt.Println("✗ not running (run 'meteor start')")
	}

	fmt.Println()
	if allGood {
		fmt.Println("All checks passed! ✓")
	} else {
		fmt.Println("Some checks failed. Please fix the issues above.")
	}
	return nil
}

// cmdConfig shows the effective configuration without secrets
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Meteor Configuration")

	fmt.Println("Daemon:")
	fmt.Printf("  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)

	fmt.Println("\nContent:")
	if path, err := cfg.ContentPath(); err == nil {
		fmt.Printf("  path: %s\n", path)
	} else {
		fmt.Printf("  path: (unresolved) %v\n", err)
	}
	fmt.Printf("  strict: %t\n", cfg.Content.Strict)

	fmt.Println("\nRunner:")
	fmt.Printf("  executor: %s\n", cfg.Runner.Executor)
	fmt.Printf("  time_budget: %s\n", cfg.Runner.TimeBudget)
	fmt.Printf("  max_concurrent: %d (queue %d)\n", cfg.Runner.MaxConcurrent, cfg.Runner.MaxQueue)
	if cfg.Runner.Executor == config.ExecutorDocker {
		fmt.Printf("  image: %s\n", cfg.Runner.Docker.Image)
		fmt.Printf("  memory: %dMB\n", cfg.Runner.Docker.MemoryMB)
		fmt.Printf("  network_off: %t\n", cfg.Runner.Docker.NetworkOff)
	} else {
		fmt.Printf("  python: %s\n", cfg.Runner.Python)
		fmt.Printf("  memory: %dMB\n", cfg.Runner.MemoryMB)
	}

	fmt.Println("\nSessions:")
	fmt.Printf("  store: %s\n", cfg.Session.Store)
	fmt.Printf("  max_attempts: %s\n", attemptsLabel(cfg.Session.MaxAttempts))
	switch cfg.Session.Store {
	case config.StoreFile, config.StoreSQLite:
		if path, err := cfg.SessionPath(); err == nil {
			fmt.Printf("  path: %s\n", path)
		}
	case config.StorePostgres:
		fmt.Printf("  database_url: %s\n", secretLabel(cfg.Session.DatabaseURL))
	case config.StoreRedis:
		fmt.Printf("  redis: %s (ttl %s)\n", cfg.Session.RedisAddr, cfg.Session.TTL)
	}

	fmt.Println("\nGrading:")
	fmt.Printf("  dispatch: %s\n", cfg.Grading.Dispatch)
	if cfg.Grading.Dispatch == config.DispatchQueue {
		fmt.Printf("  rabbitmq_url: %s\n", secretLabel(cfg.Grading.RabbitMQURL))
		fmt.Printf("  workers: %d\n", cfg.Grading.Workers)
	}
	fmt.Printf("  answers_per_minute: %d (burst %d)\n", cfg.RateLimit.AnswersPerMinute, cfg.RateLimit.Burst)

	meteorDir, _ := config.MeteorDir()
	fmt.Printf("\nConfig path: %s/config.yaml\n", meteorDir)
	return nil
}

func secretLabel(s string) string {
	if s == "" {
		return "✗ not set"
	}
	return "✓ set"
}
