package daemonclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks just enough of the framed JSON-RPC protocol to drive
// Client.Call end-to-end without a real debugd daemon.
type fakeServer struct {
	ln net.Listener
}

func startFakeServer(t *testing.T, handle func(req request) response) *fakeServer {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "debugd.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	fs := &fakeServer{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			raw, err := readFrame(reader)
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(raw, &req); err != nil {
				return
			}
			resp := handle(req)
			body, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if err := writeFrame(conn, body); err != nil {
				return
			}
		}
	}()
	return fs
}

func dialFakeServer(t *testing.T, handle func(req request) response) *Client {
	t.Helper()
	fs := startFakeServer(t, handle)
	c, err := Dial(fs.ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallRoundTripsResult(t *testing.T) {
	c := dialFakeServer(t, func(req request) response {
		assert.Equal(t, "threads", req.Method)
		result, _ := json.Marshal([]map[string]any{{"id": 1, "name": "main"}})
		return response{JSONRPC: "2.0", ID: req.ID, Result: result}
	})

	var out []map[string]any
	err := c.Call(context.Background(), "threads", map[string]string{"session_id": "session-1"}, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "main", out[0]["name"])
}

func TestCallSurfacesRPCError(t *testing.T) {
	c := dialFakeServer(t, func(req request) response {
		return response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: -32002, Message: "no session"}}
	})

	var out map[string]any
	err := c.Call(context.Background(), "stop", nil, &out)
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32002, rpcErr.Code)
}

func TestCallRespectsContextCancellation(t *testing.T) {
	// Server never responds, so Call must return once ctx is cancelled.
	c := dialFakeServer(t, func(req request) response {
		select {} // never reply
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Call(ctx, "run", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentCallsGetDistinctResponses(t *testing.T) {
	c := dialFakeServer(t, func(req request) response {
		result, _ := json.Marshal(req.Method)
		return response{JSONRPC: "2.0", ID: req.ID, Result: result}
	})

	done := make(chan error, 2)
	for _, method := range []string{"threads", "modules"} {
		method := method
		go func() {
			var out string
			err := c.Call(context.Background(), method, nil, &out)
			if err == nil && out != method {
				err = fmt.Errorf("got %q, want %q", out, method)
			}
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
}
