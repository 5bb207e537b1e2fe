package adapterdriver

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/adapterdriver/cdp"
	"github.com/agenttools/debugd/internal/adapterdriver/dap"
	"github.com/agenttools/debugd/internal/driver"
)

// Spawned is the result of Spawn: a Driver ready for Launch/Attach, plus the
// external process backing it (nil for CDP, whose driver.Launch spawns the
// debuggee itself) and the driver kind string used by internal/session.
type Spawned struct {
	Driver driver.Driver
	Kind   string // "dap" or "cdp"
	Cmd    *exec.Cmd
}

// Spawner starts (or, for CDP, defers starting) the external adapter
// process a Manifest names and returns a connected driver.Driver. It
// generalizes ctagard-dap-mcp's AdapterSpawner interface
// (DelveSpawner/DebugpySpawner/NodeSpawner) to cover both wire protocols
// this daemon supports.
type Spawner struct {
	logger *zap.Logger
}

func NewSpawner(logger *zap.Logger) *Spawner {
	return &Spawner{logger: logger}
}

// Spawn starts m's adapter (if it has one to start) and returns a Driver
// dialed against it. Callers still must call Driver.Launch/Attach
// afterwards to actually start or connect to the debuggee.
func (s *Spawner) Spawn(ctx context.Context, m Manifest) (Spawned, error) {
	if m.Adapter.Transport == "cdp" {
		return Spawned{Driver: cdp.New(s.logger), Kind: "cdp"}, nil
	}
	return s.spawnDAP(ctx, m)
}

func (s *Spawner) spawnDAP(ctx context.Context, m Manifest) (Spawned, error) {
	port, err := findAvailablePort()
	if err != nil {
		return Spawned{}, fmt.Errorf("adapterdriver: find port: %w", err)
	}

	args := make([]string, len(m.Adapter.Args))
	for i, a := range m.Adapter.Args {
		args[i] = strings.ReplaceAll(a, "{port}", strconv.Itoa(port))
	}

	//nolint:gosec // G204: intentionally spawns an operator-configured debug adapter
	cmd := exec.CommandContext(ctx, m.Adapter.Command, args...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return Spawned{}, fmt.Errorf("adapterdriver: start %s: %w", m.Adapter.Command, err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	client, err := dialWithRetry(ctx, addr, s.logger)
	if err != nil {
		_ = cmd.Process.Kill()
		return Spawned{}, err
	}

	d := dap.New(client, m.Adapter.Command, s.logger)
	return Spawned{Driver: d, Kind: "dap", Cmd: cmd}, nil
}

func dialWithRetry(ctx context.Context, addr string, logger *zap.Logger) (*dap.Client, error) {
	deadline := time.Now().Add(5 * time.Second)
	var lastErr error
	for {
		client, err := dap.Dial(ctx, addr, logger)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("adapterdriver: dial %s: %w", addr, lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// findAvailablePort binds to port 0 to let the kernel pick a free port,
// then releases it immediately (grounded in ctagard-dap-mcp's
// findAvailablePort — same race-acceptable approach: the window between
// closing the listener and the adapter binding the port is short enough in
// practice. On a lost race the adapter is not respawned; dialWithRetry keeps
// dialing the same port until its 5-second deadline and then fails).
func findAvailablePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("adapterdriver: unexpected listener address type")
	}
	return addr.Port, nil
}
