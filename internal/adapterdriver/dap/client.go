// Package dap implements a Debug Adapter Protocol client and wraps it as a
// driver.Driver, letting the daemon drive any DAP-speaking adapter (delve
// dap, vscode-js-debug, debugpy) the same way it drives the native ptrace
// engine (spec §4.7, §4.9 "Adapter Drivers").
package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/go-dap"
	"go.uber.org/zap"
)

// Client is a minimal DAP client: it frames requests/responses over a
// net.Conn and correlates them by sequence number, delivering anything that
// isn't a response to a running request onto Events.
type Client struct {
	conn   net.Conn
	logger *zap.Logger

	mu      sync.Mutex
	seq     int
	pending map[int]chan dap.Message
	closed  bool

	Events chan dap.Message
}

// Dial connects to a DAP server listening at addr (host:port).
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dap: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		logger:  logger,
		seq:     1,
		pending: make(map[int]chan dap.Message),
		Events:  make(chan dap.Message, 256),
	}
	go c.readLoop()
	return c, nil
}

// NewOverConn wraps an already-established connection (used by adapters
// launched over stdio-to-socket bridges or test doubles).
func NewOverConn(conn net.Conn, logger *zap.Logger) *Client {
	c := &Client{
		conn:    conn,
		logger:  logger,
		seq:     1,
		pending: make(map[int]chan dap.Message),
		Events:  make(chan dap.Message, 256),
	}
	go c.readLoop()
	return c
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	return c.conn.Close()
}

func (c *Client) readLoop() {
	r := bufio.NewReader(c.conn)
	defer close(c.Events)
	for {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			if err != io.EOF {
				c.logger.Warn("dap read loop terminated", zap.Error(err))
			}
			return
		}
		if resp, ok := msg.(dap.ResponseMessage); ok {
			seq := resp.GetResponse().RequestSeq
			c.mu.Lock()
			ch, ok := c.pending[seq]
			if ok {
				delete(c.pending, seq)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg
				continue
			}
		}
		select {
		case c.Events <- msg:
		default:
			c.logger.Warn("dap event queue full, dropping message", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// nextSeq allocates the next outgoing request sequence number.
func (c *Client) nextSeq() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.seq
	c.seq++
	return seq
}

func (c *Client) newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.nextSeq(), Type: "request"},
		Command:         command,
	}
}

// Send writes req and blocks for its matching response (or ctx's deadline).
func (c *Client) Send(ctx context.Context, req dap.Message, seq int) (dap.Message, error) {
	ch := make(chan dap.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("dap: client closed")
	}
	c.pending[seq] = ch
	c.mu.Unlock()

	if err := dap.WriteProtocolMessage(c.conn, req); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("dap: write request: %w", err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("dap: connection closed while awaiting response to seq %d", seq)
		}
		if errResp, ok := msg.(*dap.ErrorResponse); ok {
			return nil, fmt.Errorf("dap: %s", errResp.Message)
		}
		if resp, ok := msg.(dap.ResponseMessage); ok && !resp.GetResponse().Success {
			return nil, fmt.Errorf("dap: %s", resp.GetResponse().Message)
		}
		return msg, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("dap: timed out awaiting response to seq %d", seq)
	}
}

func (c *Client) Initialize(ctx context.Context, adapterID string) (*dap.InitializeResponse, error) {
	req := &dap.InitializeRequest{
		Request: c.newRequest("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:                     "debugd",
			ClientName:                   "debugd",
			AdapterID:                    adapterID,
			PathFormat:                   "path",
			LinesStartAt1:                true,
			ColumnsStartAt1:              true,
			SupportsVariableType:         true,
			SupportsVariablePaging:       true,
			SupportsRunInTerminalRequest: false,
			SupportsMemoryReferences:     true,
			SupportsInvalidatedEvent:     true,
			SupportsProgressReporting:    true,
		},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.InitializeResponse), nil
}

func (c *Client) Launch(ctx context.Context, args []byte) error {
	req := &dap.LaunchRequest{Request: c.newRequest("launch"), Arguments: args}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) Attach(ctx context.Context, args []byte) error {
	req := &dap.AttachRequest{Request: c.newRequest("attach"), Arguments: args}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) ConfigurationDone(ctx context.Context) error {
	req := &dap.ConfigurationDoneRequest{Request: c.newRequest("configurationDone")}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) SetBreakpoints(ctx context.Context, file string, bps []dap.SourceBreakpoint) (*dap.SetBreakpointsResponse, error) {
	req := &dap.SetBreakpointsRequest{
		Request: c.newRequest("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: file},
			Breakpoints: bps,
		},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.SetBreakpointsResponse), nil
}

func (c *Client) SetFunctionBreakpoints(ctx context.Context, bps []dap.FunctionBreakpoint) (*dap.SetFunctionBreakpointsResponse, error) {
	req := &dap.SetFunctionBreakpointsRequest{
		Request:   c.newRequest("setFunctionBreakpoints"),
		Arguments: dap.SetFunctionBreakpointsArguments{Breakpoints: bps},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.SetFunctionBreakpointsResponse), nil
}

func (c *Client) SetInstructionBreakpoints(ctx context.Context, bps []dap.InstructionBreakpoint) (*dap.SetInstructionBreakpointsResponse, error) {
	req := &dap.SetInstructionBreakpointsRequest{
		Request:   c.newRequest("setInstructionBreakpoints"),
		Arguments: dap.SetInstructionBreakpointsArguments{Breakpoints: bps},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.SetInstructionBreakpointsResponse), nil
}

func (c *Client) SetDataBreakpoints(ctx context.Context, bps []dap.DataBreakpoint) (*dap.SetDataBreakpointsResponse, error) {
	req := &dap.SetDataBreakpointsRequest{
		Request:   c.newRequest("setDataBreakpoints"),
		Arguments: dap.SetDataBreakpointsArguments{Breakpoints: bps},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.SetDataBreakpointsResponse), nil
}

func (c *Client) DataBreakpointInfo(ctx context.Context, name string, variablesRef int) (*dap.DataBreakpointInfoResponse, error) {
	req := &dap.DataBreakpointInfoRequest{
		Request: c.newRequest("dataBreakpointInfo"),
		Arguments: dap.DataBreakpointInfoArguments{
			Name:               name,
			VariablesReference: variablesRef,
		},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.DataBreakpointInfoResponse), nil
}

func (c *Client) Continue(ctx context.Context, threadID int) (*dap.ContinueResponse, error) {
	req := &dap.ContinueRequest{
		Request:   c.newRequest("continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.ContinueResponse), nil
}

func (c *Client) Next(ctx context.Context, threadID int, granularity string) error {
	req := &dap.NextRequest{
		Request:   c.newRequest("next"),
		Arguments: dap.NextArguments{ThreadId: threadID, Granularity: granularity},
	}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) StepIn(ctx context.Context, threadID int, targetID int, granularity string) error {
	req := &dap.StepInRequest{
		Request: c.newRequest("stepIn"),
		Arguments: dap.StepInArguments{
			ThreadId: threadID, TargetId: targetID,
			Granularity: granularity,
		},
	}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) StepOut(ctx context.Context, threadID int, granularity string) error {
	req := &dap.StepOutRequest{
		Request:   c.newRequest("stepOut"),
		Arguments: dap.StepOutArguments{ThreadId: threadID, Granularity: granularity},
	}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) StepBack(ctx context.Context, threadID int) error {
	req := &dap.StepBackRequest{Request: c.newRequest("stepBack"), Arguments: dap.StepBackArguments{ThreadId: threadID}}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) ReverseContinue(ctx context.Context, threadID int) error {
	req := &dap.ReverseContinueRequest{Request: c.newRequest("reverseContinue"), Arguments: dap.ReverseContinueArguments{ThreadId: threadID}}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) Pause(ctx context.Context, threadID int) error {
	req := &dap.PauseRequest{Request: c.newRequest("pause"), Arguments: dap.PauseArguments{ThreadId: threadID}}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) Goto(ctx context.Context, threadID, targetID int) error {
	req := &dap.GotoRequest{Request: c.newRequest("goto"), Arguments: dap.GotoArguments{ThreadId: threadID, TargetId: targetID}}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) GotoTargets(ctx context.Context, file string, line int) (*dap.GotoTargetsResponse, error) {
	req := &dap.GotoTargetsRequest{
		Request:   c.newRequest("gotoTargets"),
		Arguments: dap.GotoTargetsArguments{Source: dap.Source{Path: file}, Line: line},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.GotoTargetsResponse), nil
}

func (c *Client) Threads(ctx context.Context) (*dap.ThreadsResponse, error) {
	req := &dap.ThreadsRequest{Request: c.newRequest("threads")}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.ThreadsResponse), nil
}

func (c *Client) StackTrace(ctx context.Context, threadID, startFrame, levels int) (*dap.StackTraceResponse, error) {
	req := &dap.StackTraceRequest{
		Request:   c.newRequest("stackTrace"),
		Arguments: dap.StackTraceArguments{ThreadId: threadID, StartFrame: startFrame, Levels: levels},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.StackTraceResponse), nil
}

func (c *Client) Scopes(ctx context.Context, frameID int) (*dap.ScopesResponse, error) {
	req := &dap.ScopesRequest{Request: c.newRequest("scopes"), Arguments: dap.ScopesArguments{FrameId: frameID}}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.ScopesResponse), nil
}

func (c *Client) Variables(ctx context.Context, variablesRef int) (*dap.VariablesResponse, error) {
	req := &dap.VariablesRequest{
		Request:   c.newRequest("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: variablesRef},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.VariablesResponse), nil
}

func (c *Client) SetVariable(ctx context.Context, variablesRef int, name, value string) (*dap.SetVariableResponse, error) {
	req := &dap.SetVariableRequest{
		Request:   c.newRequest("setVariable"),
		Arguments: dap.SetVariableArguments{VariablesReference: variablesRef, Name: name, Value: value},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.SetVariableResponse), nil
}

func (c *Client) SetExpression(ctx context.Context, frameID int, expression, value string) (*dap.SetExpressionResponse, error) {
	req := &dap.SetExpressionRequest{
		Request:   c.newRequest("setExpression"),
		Arguments: dap.SetExpressionArguments{Expression: expression, Value: value, FrameId: frameID},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.SetExpressionResponse), nil
}

func (c *Client) Evaluate(ctx context.Context, expr string, frameID int, evalCtx string) (*dap.EvaluateResponse, error) {
	req := &dap.EvaluateRequest{
		Request:   c.newRequest("evaluate"),
		Arguments: dap.EvaluateArguments{Expression: expr, FrameId: frameID, Context: evalCtx},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.EvaluateResponse), nil
}

func (c *Client) ReadMemory(ctx context.Context, memRef string, offset, count int) (*dap.ReadMemoryResponse, error) {
	req := &dap.ReadMemoryRequest{
		Request:   c.newRequest("readMemory"),
		Arguments: dap.ReadMemoryArguments{MemoryReference: memRef, Offset: offset, Count: count},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.ReadMemoryResponse), nil
}

func (c *Client) WriteMemory(ctx context.Context, memRef string, offset int, data string) (*dap.WriteMemoryResponse, error) {
	req := &dap.WriteMemoryRequest{
		Request:   c.newRequest("writeMemory"),
		Arguments: dap.WriteMemoryArguments{MemoryReference: memRef, Offset: offset, Data: data},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.WriteMemoryResponse), nil
}

func (c *Client) Disassemble(ctx context.Context, memRef string, offset, instrOffset, count int, resolveSymbols bool) (*dap.DisassembleResponse, error) {
	req := &dap.DisassembleRequest{
		Request: c.newRequest("disassemble"),
		Arguments: dap.DisassembleArguments{
			MemoryReference: memRef, Offset: offset, InstructionOffset: instrOffset,
			InstructionCount: count, ResolveSymbols: resolveSymbols,
		},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.DisassembleResponse), nil
}

func (c *Client) LoadedSources(ctx context.Context) (*dap.LoadedSourcesResponse, error) {
	req := &dap.LoadedSourcesRequest{Request: c.newRequest("loadedSources")}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.LoadedSourcesResponse), nil
}

func (c *Client) Source(ctx context.Context, ref int, path string) (*dap.SourceResponse, error) {
	req := &dap.SourceRequest{
		Request:   c.newRequest("source"),
		Arguments: dap.SourceArguments{Source: &dap.Source{Path: path, SourceReference: ref}, SourceReference: ref},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.SourceResponse), nil
}

func (c *Client) Modules(ctx context.Context) (*dap.ModulesResponse, error) {
	req := &dap.ModulesRequest{Request: c.newRequest("modules")}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.ModulesResponse), nil
}

func (c *Client) Completions(ctx context.Context, text string, column, frameID int) (*dap.CompletionsResponse, error) {
	req := &dap.CompletionsRequest{
		Request:   c.newRequest("completions"),
		Arguments: dap.CompletionsArguments{Text: text, Column: column, FrameId: frameID},
	}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.CompletionsResponse), nil
}

func (c *Client) ExceptionInfo(ctx context.Context, threadID int) (*dap.ExceptionInfoResponse, error) {
	req := &dap.ExceptionInfoRequest{Request: c.newRequest("exceptionInfo"), Arguments: dap.ExceptionInfoArguments{ThreadId: threadID}}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.ExceptionInfoResponse), nil
}

func (c *Client) StepInTargets(ctx context.Context, frameID int) (*dap.StepInTargetsResponse, error) {
	req := &dap.StepInTargetsRequest{Request: c.newRequest("stepInTargets"), Arguments: dap.StepInTargetsArguments{FrameId: frameID}}
	msg, err := c.Send(ctx, req, req.Seq)
	if err != nil {
		return nil, err
	}
	return msg.(*dap.StepInTargetsResponse), nil
}

func (c *Client) RestartFrame(ctx context.Context, frameID int) error {
	req := &dap.RestartFrameRequest{Request: c.newRequest("restartFrame"), Arguments: dap.RestartFrameArguments{FrameId: frameID}}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) Restart(ctx context.Context, args []byte) error {
	req := &dap.RestartRequest{Request: c.newRequest("restart"), Arguments: args}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) Terminate(ctx context.Context) error {
	req := &dap.TerminateRequest{Request: c.newRequest("terminate")}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) TerminateThreads(ctx context.Context, tids []int) error {
	req := &dap.TerminateThreadsRequest{Request: c.newRequest("terminateThreads"), Arguments: dap.TerminateThreadsArguments{ThreadIds: tids}}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request:   c.newRequest("disconnect"),
		Arguments: dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee},
	}
	_, err := c.Send(ctx, req, req.Seq)
	return err
}

func (c *Client) Cancel(ctx context.Context, requestID, progressID string) error {
	req := &dap.CancelRequest{Request: c.newRequest("cancel")}
	if requestID != "" {
		var id int
		fmt.Sscanf(requestID, "%d", &id)
		req.Arguments.RequestId = id
	}
	req.Arguments.ProgressId = progressID
	_, err := c.Send(ctx, req, req.Seq)
	return err
}
