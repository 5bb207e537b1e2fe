package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/debugger"
	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/driver"
)

// Driver wraps a Chrome DevTools Protocol Debugger/Runtime session as a
// driver.Driver, so the daemon can debug Node.js and browser JavaScript
// targets through the same tool surface it uses for delve and the native
// ptrace engine (spec §4.9). It is grounded in the session/event
// architecture of the apex-build-platform debugging service, but replaces
// that reference's simulated CDP calls with a real websocket transport and
// the protocol shapes from github.com/chromedp/cdproto.
type Driver struct {
	t      *Transport
	logger *zap.Logger
	cmd    *exec.Cmd

	mu             sync.Mutex
	caps           driver.CapSet
	paused         bool
	frames         []*debugger.CallFrame
	pauseReason    string
	hitBreakpoints []string

	breakpoints map[int]*bpRecord
	nextID      int

	scriptURLs map[string]string
	sourceRefs map[int]string
	nextSrcRef int

	varRefs    map[int]string // variablesReference -> CDP objectId
	nextVarRef int

	events []driver.Event
}

type bpRecord struct {
	id       int
	cdpID    cdp.BreakpointID
	spec     driver.BreakpointSpec
	verified bool
}

var nextInspectPort int64 = 9228

// New constructs a Driver with no live connection; Launch or Attach must be
// called before any other method.
func New(logger *zap.Logger) *Driver {
	return &Driver{
		logger:      logger,
		breakpoints: make(map[int]*bpRecord),
		scriptURLs:  make(map[string]string),
		sourceRefs:  make(map[int]string),
		varRefs:     make(map[int]string),
	}
}

type inspectTarget struct {
	Type                 string `json:"type"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func discoverWebSocketURL(ctx context.Context, port int) (string, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/list", port)
	deadline := time.Now().Add(10 * time.Second)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := http.DefaultClient.Do(req)
			if err == nil {
				var targets []inspectTarget
				decErr := json.NewDecoder(resp.Body).Decode(&targets)
				resp.Body.Close()
				if decErr == nil {
					for _, t := range targets {
						if t.WebSocketDebuggerURL != "" {
							return t.WebSocketDebuggerURL, nil
						}
					}
				}
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("cdp: timed out discovering inspector websocket on port %d", port)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(150 * time.Millisecond):
		}
	}
}

// Launch spawns `node --inspect-brk=<port> <program> <args...>` and attaches
// to its inspector websocket (spec §4.9: CDP adapters own process spawn the
// same way the DAP adapter drives `dlv dap`).
func (d *Driver) Launch(ctx context.Context, p driver.LaunchParams) (driver.SessionHandle, error) {
	port := int(atomic.AddInt64(&nextInspectPort, 1))
	args := append([]string{fmt.Sprintf("--inspect-brk=%d", port)}, p.Program)
	args = append(args, p.Args...)
	cmd := exec.CommandContext(ctx, "node", args...)
	cmd.Dir = p.Cwd
	cmd.Env = os.Environ()
	for k, v := range p.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return driver.SessionHandle{}, fmt.Errorf("cdp: spawn node: %w", err)
	}
	d.cmd = cmd

	wsURL, err := discoverWebSocketURL(ctx, port)
	if err != nil {
		_ = cmd.Process.Kill()
		return driver.SessionHandle{}, err
	}
	if err := d.connect(ctx, wsURL); err != nil {
		return driver.SessionHandle{}, err
	}
	if !p.StopOnEntry {
		if err := d.t.Call(ctx, "Debugger.resume", struct{}{}, nil); err != nil {
			return driver.SessionHandle{}, fmt.Errorf("cdp: resume past entry pause: %w", err)
		}
	}
	return driver.SessionHandle{Capabilities: d.caps}, nil
}

// Attach connects to an already-running inspector endpoint on p.Port (spec
// §4.9: attach to a target the user started independently, e.g. `node
// --inspect` or a browser tab).
func (d *Driver) Attach(ctx context.Context, p driver.AttachParams) (driver.SessionHandle, error) {
	wsURL, err := discoverWebSocketURL(ctx, p.Port)
	if err != nil {
		return driver.SessionHandle{}, err
	}
	if err := d.connect(ctx, wsURL); err != nil {
		return driver.SessionHandle{}, err
	}
	return driver.SessionHandle{Capabilities: d.caps}, nil
}

func (d *Driver) connect(ctx context.Context, wsURL string) error {
	t, err := Dial(ctx, wsURL, d.logger)
	if err != nil {
		return err
	}
	d.t = t
	if err := d.t.Call(ctx, "Debugger.enable", struct{}{}, nil); err != nil {
		return fmt.Errorf("cdp: Debugger.enable: %w", err)
	}
	if err := d.t.Call(ctx, "Runtime.enable", struct{}{}, nil); err != nil {
		return fmt.Errorf("cdp: Runtime.enable: %w", err)
	}
	if err := d.t.Call(ctx, "Debugger.setPauseOnExceptions", map[string]string{"state": "none"}, nil); err != nil {
		return fmt.Errorf("cdp: Debugger.setPauseOnExceptions: %w", err)
	}
	d.caps = driver.CapSet{
		SupportsConfigurationDone:     true,
		SupportsConditionalBreakpoints: true,
		SupportsExceptionInfo:         true,
	}
	return nil
}

// Run dispatches action to the matching Debugger command and blocks until
// the next Debugger.paused/execution-ended notification, mirroring the
// adapterdriver/dap driver's Run/awaitStop pattern.
func (d *Driver) Run(ctx context.Context, action driver.RunAction, opts driver.RunOpts) (driver.StopContext, error) {
	var method string
	switch action {
	case driver.ActionContinue:
		method = "Debugger.resume"
	case driver.ActionStepOver:
		method = "Debugger.stepOver"
	case driver.ActionStepInto:
		method = "Debugger.stepInto"
	case driver.ActionStepOut:
		method = "Debugger.stepOut"
	case driver.ActionPause:
		method = "Debugger.pause"
	default:
		return driver.StopContext{}, fmt.Errorf("cdp: %w: run action %q", driver.ErrNotSupported, action)
	}
	if err := d.t.Call(ctx, method, struct{}{}, nil); err != nil {
		return driver.StopContext{}, fmt.Errorf("cdp: %s: %w", method, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.awaitStop(ctx)
}

func (d *Driver) Pause(ctx context.Context, threadID int) error {
	return d.t.Call(ctx, "Debugger.pause", struct{}{}, nil)
}

type pausedEventBody struct {
	CallFrames     []*debugger.CallFrame `json:"callFrames"`
	Reason         string                `json:"reason"`
	HitBreakpoints []string              `json:"hitBreakpoints"`
}

type scriptParsedBody struct {
	ScriptID string `json:"scriptId"`
	URL      string `json:"url"`
}

func (d *Driver) awaitStop(ctx context.Context) (driver.StopContext, error) {
	for {
		select {
		case ev, ok := <-d.t.Events:
			if !ok {
				d.paused = false
				return driver.StopContext{Reason: driver.StopExit, Description: "inspector connection closed"}, nil
			}
			switch ev.Method {
			case "Debugger.paused":
				var body pausedEventBody
				if err := json.Unmarshal(ev.Params, &body); err != nil {
					return driver.StopContext{}, fmt.Errorf("cdp: decode Debugger.paused: %w", err)
				}
				d.paused = true
				d.frames = body.CallFrames
				d.pauseReason = body.Reason
				d.hitBreakpoints = body.HitBreakpoints
				return d.stopContextLocked(body), nil
			case "Debugger.scriptParsed":
				var body scriptParsedBody
				if err := json.Unmarshal(ev.Params, &body); err == nil {
					d.scriptURLs[body.ScriptID] = body.URL
				}
			case "Runtime.executionContextDestroyed", "Inspector.targetCrashed":
				d.paused = false
				return driver.StopContext{Reason: driver.StopExit, Description: ev.Method}, nil
			default:
				d.bufferEvent(ev)
			}
		case <-ctx.Done():
			return driver.StopContext{}, ctx.Err()
		}
	}
}

func (d *Driver) stopContextLocked(body pausedEventBody) driver.StopContext {
	sc := driver.StopContext{Reason: driver.StopStep, ThreadID: 1}
	if len(body.HitBreakpoints) > 0 {
		sc.Reason = driver.StopBreakpoint
		for _, hb := range body.HitBreakpoints {
			sc.HitBreakpoints = append(sc.HitBreakpoints, hashBreakpointIDLocked(d, hb))
		}
	} else if body.Reason == "exception" || body.Reason == "promiseRejection" {
		sc.Reason = driver.StopException
	}
	if len(body.CallFrames) > 0 {
		top := body.CallFrames[0]
		if top.Location != nil {
			sc.File = d.scriptURLs[string(top.Location.ScriptID)]
			sc.Line = int(top.Location.LineNumber) + 1
			sc.Column = int(top.Location.ColumnNumber)
		}
	}
	return sc
}

func hashBreakpointIDLocked(d *Driver, cdpID string) int {
	for _, r := range d.breakpoints {
		if string(r.cdpID) == cdpID {
			return r.id
		}
	}
	return 0
}

func (d *Driver) bufferEvent(ev Event) {
	var body map[string]any
	_ = json.Unmarshal(ev.Params, &body)
	d.events = append(d.events, driver.Event{Kind: ev.Method, Body: body})
}

func (d *Driver) PollEvents(ctx context.Context) ([]driver.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.events
	d.events = nil
	return out, nil
}

func (d *Driver) Capabilities(ctx context.Context) (driver.CapSet, error) {
	return d.caps, nil
}

func (d *Driver) Cancel(ctx context.Context, requestID, progressID string) error {
	return driver.ErrNotSupported
}

func (d *Driver) TerminateThreads(ctx context.Context, tids []int) error {
	return driver.ErrNotSupported
}

func (d *Driver) Restart(ctx context.Context) error {
	return driver.ErrNotSupported
}

// Stop tears down the inspector connection and, for a Launch-spawned
// process, terminates it (spec §4.9 parity with the DAP driver's Stop).
func (d *Driver) Stop(ctx context.Context, detach, terminateOnly bool) error {
	if terminateOnly || !detach {
		if d.cmd != nil && d.cmd.Process != nil {
			_ = d.cmd.Process.Kill()
		}
	}
	if d.t != nil {
		return d.t.Close()
	}
	return nil
}
