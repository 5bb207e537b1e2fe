package cdp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/driver"
)

// inspectorServer serves /json/list (as node --inspect does) and upgrades
// the advertised websocket URL, replying success to every Debugger/Runtime
// enable call connect() issues.
func inspectorServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	upgrader := websocket.Upgrader{}

	var wsURL string
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]inspectTarget{{Type: "node", WebSocketDebuggerURL: wsURL}})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
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
				result, _ := json.Marshal(struct{}{})
				resp, _ := json.Marshal(rpcFrame{ID: frame.ID, Result: result})
				if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
					return
				}
			}
		}()
	})

	srv := httptest.NewServer(mux)
	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	t.Cleanup(srv.Close)
	return srv
}

func TestAttachDiscoversSocketAndEnablesDebugger(t *testing.T) {
	srv := inspectorServer(t)
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	d := New(zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	handle, err := d.Attach(ctx, driver.AttachParams{Port: port})
	require.NoError(t, err)
	assert.True(t, handle.Capabilities.SupportsConfigurationDone)
	assert.True(t, handle.Capabilities.SupportsConditionalBreakpoints)
	assert.True(t, handle.Capabilities.SupportsExceptionInfo)
}

func TestCapabilitiesReturnsStoredCapSet(t *testing.T) {
	d := New(zap.NewNop())
	d.caps = driver.CapSet{SupportsStepBack: true}
	caps, err := d.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.SupportsStepBack)
}

func TestRunUnknownActionIsNotSupported(t *testing.T) {
	d := New(zap.NewNop())
	_, err := d.Run(context.Background(), driver.RunAction("bogus"), driver.RunOpts{})
	assert.ErrorIs(t, err, driver.ErrNotSupported)
}
