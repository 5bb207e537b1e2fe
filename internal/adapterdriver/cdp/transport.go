// Package cdp implements a Chrome DevTools Protocol client over a raw
// gorilla/websocket connection and wraps it as a driver.Driver, so the
// daemon can drive V8 inspector targets (Node.js, Chrome/Chromium tabs) the
// same way it drives delve or the native ptrace engine (spec §4.9 "Adapter
// Drivers"). It uses github.com/chromedp/cdproto's generated protocol types
// for request/response shapes but owns its own transport rather than
// chromedp's browser-automation executor, since the daemon attaches to an
// already-running inspector endpoint instead of launching a browser.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is one asynchronous CDP notification (Debugger.paused,
// Runtime.consoleAPICalled, Target.targetCrashed, ...).
type Event struct {
	Method string
	Params json.RawMessage
}

type rpcFrame struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Transport is a minimal CDP JSON-RPC client over one websocket connection.
type Transport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	nextID int64

	mu      sync.Mutex
	pending map[int64]chan rpcFrame
	closed  bool

	Events chan Event
}

// Dial connects to a CDP websocket endpoint (a page/target's
// webSocketDebuggerUrl, as returned by /json or /json/list on the inspector
// HTTP endpoint).
func Dial(ctx context.Context, wsURL string, logger *zap.Logger) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cdp: dial %s: %w", wsURL, err)
	}
	t := &Transport{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]chan rpcFrame),
		Events:  make(chan Event, 256),
	}
	go t.readLoop()
	return t, nil
}

func (t *Transport) readLoop() {
	defer close(t.Events)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.logger.Warn("cdp read loop terminated", zap.Error(err))
			return
		}
		var frame rpcFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.logger.Warn("cdp: malformed frame", zap.Error(err))
			continue
		}
		if frame.ID != 0 {
			t.mu.Lock()
			ch, ok := t.pending[frame.ID]
			if ok {
				delete(t.pending, frame.ID)
			}
			t.mu.Unlock()
			if ok {
				ch <- frame
			}
			continue
		}
		select {
		case t.Events <- Event{Method: frame.Method, Params: frame.Params}:
		default:
			t.logger.Warn("cdp event queue full, dropping", zap.String("method", frame.Method))
		}
	}
}

// Call sends method with params and decodes the response into out (which
// may be nil for commands with an empty result).
func (t *Transport) Call(ctx context.Context, method string, params, out any) error {
	id := atomic.AddInt64(&t.nextID, 1)

	var rawParams json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("cdp: marshal params for %s: %w", method, err)
		}
		rawParams = b
	}

	ch := make(chan rpcFrame, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("cdp: transport closed")
	}
	t.pending[id] = ch
	t.mu.Unlock()

	req := rpcFrame{ID: id, Method: method, Params: rawParams}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("cdp: marshal request: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return fmt.Errorf("cdp: write %s: %w", method, err)
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return fmt.Errorf("cdp: connection closed awaiting %s", method)
		}
		if frame.Error != nil {
			return fmt.Errorf("cdp: %s: %s", method, frame.Error.Message)
		}
		if out != nil && len(frame.Result) > 0 {
			if err := json.Unmarshal(frame.Result, out); err != nil {
				return fmt.Errorf("cdp: unmarshal %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return ctx.Err()
	case <-time.After(30 * time.Second):
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return fmt.Errorf("cdp: timed out awaiting %s", method)
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
