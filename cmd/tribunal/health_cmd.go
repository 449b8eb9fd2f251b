package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"
)

// runHealthCmd implements `tribunal health`: probe a serving node.
func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var url string
	cmd.StringVar(&url, "url", "http://localhost:8080", "Base URL of the node to probe")

	if err := cmd.Parse(args); err != nil {
		return 3
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url + "/health")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "UNHEALTHY: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = fmt.Fprintf(stderr, "UNHEALTHY: status %d\n", resp.StatusCode)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "OK: %s\n", url)
	return 0
}
