package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	initLogging(stderr)

	if len(args) < 2 {
		printUsage(stderr)
		return 3
	}

	switch args[1] {
	case "run":
		return runSessionCmd(args[2:], stdout, stderr)
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 3
	}
}

func initLogging(stderr io.Writer) {
	level := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `tribunal — three-branch transaction verification

Usage:
  tribunal run     --package <id> --user <id> [--session <id>] [--out-dir <dir>]
                   [--propose-url <url>] [--execute-url <url>] [--verify-url <url>]
                   [--profile <name>] [--otlp <endpoint>]
  tribunal serve   [--addr :8080] [--profile <name>] [--otlp <endpoint>]
  tribunal verify  --report <file> [--json]
  tribunal health  [--url http://localhost:8080]

Exit codes for run: 0 consensus reached, 1 consensus failed,
2 chain invalid, 3 internal error.
Exit codes for verify: 0 pass, 2 chain invalid, 3 unreadable report.
`)
}
