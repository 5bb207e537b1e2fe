package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// wsEchoServer upgrades every connection and hands each inbound frame to
// respond, writing back whatever it returns (nil to stay silent).
func wsEchoServer(t *testing.T, respond func(frame rpcFrame) *rpcFrame) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go func() {
			defer conn.Close()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var frame rpcFrame
				if err := json.Unmarshal(data, &frame); err != nil {
					return
				}
				resp := respond(frame)
				if resp == nil {
					continue
				}
				body, err := json.Marshal(resp)
				if err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestCallRoundTripsResult(t *testing.T) {
	url := wsEchoServer(t, func(frame rpcFrame) *rpcFrame {
		assert.Equal(t, "Debugger.enable", frame.Method)
		result, _ := json.Marshal(map[string]string{"debuggerId": "abc"})
		return &rpcFrame{ID: frame.ID, Result: result}
	})

	transport, err := Dial(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	defer transport.Close()

	var out struct {
		DebuggerID string `json:"debuggerId"`
	}
	err = transport.Call(context.Background(), "Debugger.enable", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.DebuggerID)
}

func TestCallSurfacesRPCError(t *testing.T) {
	url := wsEchoServer(t, func(frame rpcFrame) *rpcFrame {
		return &rpcFrame{ID: frame.ID, Error: &rpcError{Code: -32000, Message: "no such breakpoint"}}
	})

	transport, err := Dial(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	defer transport.Close()

	err = transport.Call(context.Background(), "Debugger.removeBreakpoint", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such breakpoint")
}

func TestCallRespectsContextDeadline(t *testing.T) {
	url := wsEchoServer(t, func(frame rpcFrame) *rpcFrame { return nil })

	transport, err := Dial(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = transport.Call(ctx, "Debugger.pause", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnsolicitedFramesGoToEventsChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		params, _ := json.Marshal(map[string]string{"reason": "breakpoint"})
		body, _ := json.Marshal(rpcFrame{Method: "Debugger.paused", Params: params})
		_ = conn.WriteMessage(websocket.TextMessage, body)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	transport, err := Dial(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	defer transport.Close()

	select {
	case ev := <-transport.Events:
		assert.Equal(t, "Debugger.paused", ev.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
