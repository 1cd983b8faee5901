package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
)

// cmdStart starts the daemon in the background
func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	meteorDir, err := config.EnsureMeteorDir()
	if err != nil {
		return fmt.Errorf("setup meteor directory: %w", err)
	}

	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(daemonPath)
	cmd.Dir = meteorDir
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	if !waitFor(isRunning) {
		return fmt.Errorf("daemon failed to start (check logs with 'meteor logs')")
	}
	fmt.Printf("Daemon running at %s\n", daemonAddr())
	return nil
}

// waitFor polls cond for up to five seconds, printing progress dots.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if cond() {
			fmt.Println(" ✓")
			return true
		}
		fmt.Print(".")
	}
	fmt.Println(" ✗")
	return false
}

// cmdStop signals the daemon recorded in the pid file
func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	meteorDir, err := config.MeteorDir()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(meteorDir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	if !waitFor(func() bool { return !isRunning() }) {
		return fmt.Errorf("daemon did not stop within 5s (pid %d)", pid)
	}
	return nil
}

// cmdStatus shows daemon status
func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	var status struct {
		Status      string `json:"status"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime"`
		Lessons     int    `json:"lessons"`
		Executor    string `json:"executor"`
		Dispatch    string `json:"dispatch"`
		Store       string `json:"store"`
		TimeBudget  string `json:"time_budget"`
		MaxAttempts int    `json:"max_attempts"`
		Running     *int   `json:"running"`
	}
	if err := getJSON("/v1/status", &status); err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	fmt.Printf("Status:      %s\n", status.Status)
	fmt.Printf("Version:     %s\n", status.Version)
	fmt.Printf("Uptime:      %s\n", status.Uptime)
	fmt.Printf("Lessons:     %d\n", status.Lessons)
	fmt.Printf("Executor:    %s (budget %s)\n", status.Executor, status.TimeBudget)
	fmt.Printf("Grading:     %s\n", status.Dispatch)
	fmt.Printf("Store:       %s\n", status.Store)
	fmt.Printf("Attempts:    %s per item\n", attemptsLabel(status.MaxAttempts))
	if status.Running != nil {
		fmt.Printf("Running:     %d executions\n", *status.Running)
	}
	fmt.Printf("Address:     %s\n", daemonAddr())
	return nil
}

func attemptsLabel(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

// cmdLogs prints the tail of the daemon log
func cmdLogs() error {
	meteorDir, err := config.MeteorDir()
	if err != nil {
		return err
	}
	logPath := filepath.Join(meteorDir, "logs", "meteord.log")

	file, err := os.Open(logPath)
	if os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	offset := max(info.Size()-8192, 0)
	if _, err := file.Seek(offset, 0); err != nil {
		return err
	}

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}

// isRunning checks the daemon health endpoint
func isRunning() bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(daemonAddr() + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the meteord binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("meteord"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "meteord")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{"/usr/local/bin/meteord", "./meteord", "./cmd/meteord/meteord"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("meteord binary not found (build with 'go build ./cmd/meteord')")
}

// getJSON decodes a daemon GET response, surfacing the error envelope
func getJSON(path string, out any) error {
	return doJSON(http.MethodGet, path, nil, out)
}
