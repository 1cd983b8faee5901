package main

import (
	"fmt"
	"os"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "meteord.pid"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "doctor":
		err = cmdDoctor()
	case "config":
		err = cmdConfig()
	case "lessons":
		err = cmdLessons()
	case "play":
		err = cmdPlay(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "grade":
		err = cmdGrade(os.Args[2:])
	case "verify":
		err = cmdVerify(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("meteor %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Meteor - Python quiz lessons with sandboxed grading

Usage:
  meteor <command> [arguments]

Setup Commands:
  init                        Create ~/.meteor with a default config
  doctor                      Check python3, docker and the lesson bank
  config                      Show current configuration

Daemon Commands:
  start                       Start the meteor daemon
  stop                        Stop the meteor daemon
  status                      Show daemon status
  logs                        View daemon logs

Lesson Commands:
  lessons                     List lessons
  play <lesson>               Play a lesson interactively
  run <file.py>               Run a file in the playground
  grade <lesson> <item> <f>   Grade a file against an item locally
  verify [lesson...]          Grade every reference solution

Integration Commands:
  mcp                         Start MCP server on stdio

Other:
  help                        Show this help message
  version                     Show version information

Examples:
  meteor start
  meteor play 4
  meteor run scratch.py
  meteor grade 4 1 multiply.py
  meteor verify`)
}

// daemonAddr returns the base URL of the local daemon
func daemonAddr() string {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		cfg = config.DefaultLocalConfig()
	}
	host := cfg.Daemon.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Daemon.Port)
}
