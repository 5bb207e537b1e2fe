// Command mcp-debugd is the MCP-facing front end: it hosts the debugger
// tools as an MCP server and forwards every call over a Unix domain
// socket to a debugd daemon, auto-starting one if none is listening yet
// (spec.md §6.2).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agenttools/debugd/internal/daemonclient"
	"github.com/agenttools/debugd/internal/mcptools"
)

func main() {
	transportMode := flag.String("transport", "stdio", "transport mode: stdio or sse")
	addr := flag.String("addr", ":8080", "listen address for sse mode (host:port)")
	sockPath := flag.String("socket", defaultSocketPath(), "path to the debugd daemon's Unix domain socket")
	daemonBin := flag.String("daemon", "debugd", "debugd binary to auto-start if the socket isn't listening")
	flag.Parse()

	client, err := dialOrSpawn(*sockPath, *daemonBin)
	if err != nil {
		log.Fatalf("mcp-debugd: connecting to debugd: %v", err)
	}
	defer client.Close()

	implementation := mcp.Implementation{
		Name:    "mcp-debugd",
		Version: "v1.0.0",
	}
	server := mcp.NewServer(&implementation, nil)
	mcptools.RegisterAll(server, &daemonclient.RemoteRegistry{Client: client})

	switch *transportMode {
	case "stdio":
		ctx := context.Background()
		if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil {
			log.Fatalf("mcp-debugd: server terminated with error: %v", err)
		}
	case "sse":
		getServer := func(request *http.Request) *mcp.Server { return server }
		sseHandler := mcp.NewSSEHandler(getServer)
		log.Printf("mcp-debugd: listening on %s", *addr)
		if err := http.ListenAndServe(*addr, sseHandler); err != nil {
			log.Fatalf("mcp-debugd: server terminated with error: %v", err)
		}
	default:
		log.Fatalf("mcp-debugd: unknown transport mode %q (expected 'stdio' or 'sse')", *transportMode)
	}
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/debugd.sock"
	}
	return "/tmp/debugd.sock"
}

// dialOrSpawn tries the daemon's socket first; if nothing is listening it
// spawns daemonBin detached and retries with backoff, matching
// adapterdriver.Spawner's dialWithRetry convention.
func dialOrSpawn(sockPath, daemonBin string) (*daemonclient.Client, error) {
	if c, err := daemonclient.Dial(sockPath); err == nil {
		return c, nil
	}

	cmd := exec.Command(daemonBin, "--socket", sockPath) //nolint:gosec // G204: daemon binary path is operator-configured, not request-derived
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp-debugd: starting %s: %w", daemonBin, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		c, err := daemonclient.Dial(sockPath)
		if err == nil {
			return c, nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("mcp-debugd: daemon did not start listening on %s: %w", sockPath, errors.Join(lastErr))
}
