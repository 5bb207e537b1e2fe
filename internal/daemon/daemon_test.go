package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/adapterdriver"
	"github.com/agenttools/debugd/internal/session"
	"github.com/agenttools/debugd/internal/tools"
)

// startTestServer brings up a real daemon over a real Unix socket in a
// temp dir, backed by a live tools.Registry (no sessions registered), and
// returns a dialed connection plus a send/receive helper.
func startTestServer(t *testing.T) net.Conn {
	t.Helper()
	mgr := session.New(session.Config{MaxSessions: 4, IdleTimeout: time.Hour}, zap.NewNop())
	t.Cleanup(mgr.Close)

	reg := tools.New(mgr, adapterdriver.NewSpawner(zap.NewNop()), adapterdriver.DefaultManifests(), zap.NewNop())

	sock := filepath.Join(t.TempDir(), "debugd.sock")
	srv, err := Listen(sock, reg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendRequest(t *testing.T, conn net.Conn, id, method string, params any) response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	req := request{JSONRPC: jsonrpcVersion, ID: json.RawMessage(`"` + id + `"`), Method: method, Params: raw}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, writeFrame(conn, body))

	frame, err := readFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	var resp response
	require.NoError(t, json.Unmarshal(frame, &resp))
	return resp
}

func TestDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	conn := startTestServer(t)
	resp := sendRequest(t, conn, "1", "no_such_tool", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestDispatchSessionsOnEmptyRegistryReturnsEmptyList(t *testing.T) {
	conn := startTestServer(t)
	resp := sendRequest(t, conn, "2", "sessions", nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, []any{}, resp.Result)
}

func TestDispatchStopUnknownSessionReturnsSessionNotFound(t *testing.T) {
	conn := startTestServer(t)
	resp := sendRequest(t, conn, "3", "stop", map[string]any{"session_id": "bogus"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32002, resp.Error.Code)
}

func TestDispatchMalformedParamsSurfacesAsError(t *testing.T) {
	conn := startTestServer(t)
	req := request{JSONRPC: jsonrpcVersion, ID: json.RawMessage(`"4"`), Method: "launch", Params: json.RawMessage(`{"program": 123}`)}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, writeFrame(conn, body))

	frame, err := readFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	var resp response
	require.NoError(t, json.Unmarshal(frame, &resp))
	require.NotNil(t, resp.Error)
}
