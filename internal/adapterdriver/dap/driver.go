package dap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/go-dap"
	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/driver"
)

// bpRecord is our own bookkeeping for one logical breakpoint spec; DAP's
// setBreakpoints/setFunctionBreakpoints/etc. requests replace the *entire*
// list for their kind every time, so the driver must remember every spec it
// has asked for in order to re-issue "all but this one" on Remove (grounded
// in tools.go's clearBreakpoints/breakpoint pair, generalized to every kind).
type bpRecord struct {
	id     int
	kind   driver.BreakpointKind
	file   string
	spec   driver.BreakpointSpec
	adapterLine int
	verified    bool
	message     string
	adapterID   int
	dataID      string // DAP dataId, for data (watchpoint) breakpoints
	access      string
}

// Driver implements driver.Driver by forwarding every operation to a DAP
// adapter process over Client (spec §4.9 "Adapter Drivers"). It owns no
// debug information itself: anything the adapter can't answer (FindSymbol,
// VariableLocation, goroutine/thread register access) is honestly
// ErrNotSupported rather than guessed at.
type Driver struct {
	client    *Client
	logger    *zap.Logger
	adapterID string

	mu        sync.Mutex
	caps      driver.CapSet
	nextID    int
	breakpoints map[int]*bpRecord
	curThread int
	frames    []dap.StackFrame
	events    []driver.Event
}

// New wraps an already-Dial'd Client as a driver.Driver. adapterID is the
// DAP "adapterID" reported in the initialize request (e.g. "go", "pwa-node",
// "debugpy").
func New(client *Client, adapterID string, logger *zap.Logger) *Driver {
	return &Driver{
		client:      client,
		logger:      logger,
		adapterID:   adapterID,
		breakpoints: make(map[int]*bpRecord),
		nextID:      1,
	}
}

func (d *Driver) Launch(ctx context.Context, p driver.LaunchParams) (driver.SessionHandle, error) {
	initResp, err := d.client.Initialize(ctx, d.adapterID)
	if err != nil {
		return driver.SessionHandle{}, fmt.Errorf("dap: initialize: %w", err)
	}
	d.mu.Lock()
	d.caps = capsFromInitialize(initResp.Body)
	d.mu.Unlock()

	args := map[string]any{
		"program":     p.Program,
		"args":        p.Args,
		"env":         p.Env,
		"cwd":         p.Cwd,
		"stopOnEntry": p.StopOnEntry,
	}
	payload, err := marshalArgs(args)
	if err != nil {
		return driver.SessionHandle{}, err
	}
	if err := d.client.Launch(ctx, payload); err != nil {
		return driver.SessionHandle{}, fmt.Errorf("dap: launch: %w", err)
	}
	if err := d.client.ConfigurationDone(ctx); err != nil {
		return driver.SessionHandle{}, fmt.Errorf("dap: configurationDone: %w", err)
	}
	return driver.SessionHandle{Capabilities: d.caps}, nil
}

func (d *Driver) Attach(ctx context.Context, p driver.AttachParams) (driver.SessionHandle, error) {
	initResp, err := d.client.Initialize(ctx, d.adapterID)
	if err != nil {
		return driver.SessionHandle{}, fmt.Errorf("dap: initialize: %w", err)
	}
	d.mu.Lock()
	d.caps = capsFromInitialize(initResp.Body)
	d.mu.Unlock()

	args := map[string]any{"processId": p.PID, "port": p.Port}
	payload, err := marshalArgs(args)
	if err != nil {
		return driver.SessionHandle{}, err
	}
	if err := d.client.Attach(ctx, payload); err != nil {
		return driver.SessionHandle{}, fmt.Errorf("dap: attach: %w", err)
	}
	if err := d.client.ConfigurationDone(ctx); err != nil {
		return driver.SessionHandle{}, fmt.Errorf("dap: configurationDone: %w", err)
	}
	return driver.SessionHandle{Capabilities: d.caps}, nil
}

func capsFromInitialize(body dap.InitializeResponseBody) driver.CapSet {
	return driver.CapSet{
		SupportsConfigurationDone:         true,
		SupportsFunctionBreakpoints:       body.SupportsFunctionBreakpoints,
		SupportsConditionalBreakpoints:    body.SupportsConditionalBreakpoints,
		SupportsHitConditionalBreakpoints: body.SupportsHitConditionalBreakpoints,
		SupportsLogPoints:                 body.SupportsLogPoints,
		SupportsInstructionBreakpoints:    body.SupportsInstructionBreakpoints,
		SupportsDataBreakpoints:           body.SupportsDataBreakpoints,
		SupportsReadMemory:                body.SupportsReadMemoryRequest,
		SupportsWriteMemory:               body.SupportsWriteMemoryRequest,
		SupportsDisassemble:               body.SupportsDisassembleRequest,
		SupportsRegisters:                 false,
		SupportsStepBack:                  body.SupportsStepBack,
		SupportsRestartFrame:              body.SupportsRestartFrame,
		SupportsRestartRequest:            body.SupportsRestartRequest,
		SupportsGotoTargets:               body.SupportsGotoTargetsRequest,
		SupportsStepInTargets:             body.SupportsStepInTargetsRequest,
		SupportsExceptionInfo:             body.SupportsExceptionInfoRequest,
		SupportsCompletions:               body.SupportsCompletionsRequest,
		SupportsCancelRequest:             body.SupportsCancelRequest,
		SupportsTerminateThreads:          body.SupportsTerminateThreadsRequest,
		SupportsFindSymbol:                false,
		SupportsVariableLocation:          false,
	}
}

func marshalArgs(args map[string]any) ([]byte, error) {
	return json.Marshal(args)
}

// recordsByFileLocked returns the driver's live line-breakpoint records for
// one file, the grouping DAP's replace-all setBreakpoints request needs.
func (d *Driver) recordsByFileLocked(file string) []*bpRecord {
	var out []*bpRecord
	for _, r := range d.breakpoints {
		if r.kind == driver.BreakpointLine && r.file == file {
			out = append(out, r)
		}
	}
	return out
}

func (d *Driver) recordsByKindLocked(kind driver.BreakpointKind) []*bpRecord {
	var out []*bpRecord
	for _, r := range d.breakpoints {
		if r.kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func (d *Driver) SetBreakpoint(ctx context.Context, spec driver.BreakpointSpec) (driver.BreakpointInfo, error) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	rec := &bpRecord{id: id, kind: spec.Kind, file: spec.File, spec: spec}
	d.breakpoints[id] = rec
	d.mu.Unlock()

	if err := d.resyncKindLocked(ctx, spec.Kind, spec.File); err != nil {
		d.mu.Lock()
		delete(d.breakpoints, id)
		d.mu.Unlock()
		return driver.BreakpointInfo{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return bpInfo(rec), nil
}

// resyncKindLocked re-issues the replace-all request for one breakpoint kind
// (and, for line breakpoints, one file) after the in-memory record set
// changes, then folds the adapter's verification results back into our
// records by position (DAP's SetBreakpointsResponseBody.Breakpoints is
// ordered to match the request's Breakpoints slice).
func (d *Driver) resyncKindLocked(ctx context.Context, kind driver.BreakpointKind, file string) error {
	switch kind {
	case driver.BreakpointLine:
		d.mu.Lock()
		recs := d.recordsByFileLocked(file)
		args := make([]dap.SourceBreakpoint, len(recs))
		for i, r := range recs {
			args[i] = dap.SourceBreakpoint{
				Line: r.spec.Line, Column: r.spec.Column,
				Condition: r.spec.Condition, HitCondition: r.spec.HitCondition,
				LogMessage: r.spec.LogMessage,
			}
		}
		d.mu.Unlock()

		resp, err := d.client.SetBreakpoints(ctx, file, args)
		if err != nil {
			return fmt.Errorf("dap: setBreakpoints: %w", err)
		}
		d.mu.Lock()
		for i, r := range recs {
			if i < len(resp.Body.Breakpoints) {
				applyBP(r, resp.Body.Breakpoints[i])
			}
		}
		d.mu.Unlock()

	case driver.BreakpointFunction:
		d.mu.Lock()
		recs := d.recordsByKindLocked(driver.BreakpointFunction)
		args := make([]dap.FunctionBreakpoint, len(recs))
		for i, r := range recs {
			args[i] = dap.FunctionBreakpoint{Name: r.spec.FunctionName, Condition: r.spec.Condition, HitCondition: r.spec.HitCondition}
		}
		d.mu.Unlock()

		resp, err := d.client.SetFunctionBreakpoints(ctx, args)
		if err != nil {
			return fmt.Errorf("dap: setFunctionBreakpoints: %w", err)
		}
		d.mu.Lock()
		for i, r := range recs {
			if i < len(resp.Body.Breakpoints) {
				applyBP(r, resp.Body.Breakpoints[i])
			}
		}
		d.mu.Unlock()

	case driver.BreakpointInstruction:
		if !d.caps.SupportsInstructionBreakpoints {
			return driver.ErrNotSupported
		}
		d.mu.Lock()
		recs := d.recordsByKindLocked(driver.BreakpointInstruction)
		args := make([]dap.InstructionBreakpoint, len(recs))
		for i, r := range recs {
			args[i] = dap.InstructionBreakpoint{
				InstructionReference: fmt.Sprintf("0x%x", r.spec.Address),
				Condition:            r.spec.Condition, HitCondition: r.spec.HitCondition,
			}
		}
		d.mu.Unlock()

		resp, err := d.client.SetInstructionBreakpoints(ctx, args)
		if err != nil {
			return fmt.Errorf("dap: setInstructionBreakpoints: %w", err)
		}
		d.mu.Lock()
		for i, r := range recs {
			if i < len(resp.Body.Breakpoints) {
				applyBP(r, resp.Body.Breakpoints[i])
			}
		}
		d.mu.Unlock()

	case driver.BreakpointException:
		// exception breakpoints are configured through setExceptionBreakpoints,
		// which this driver issues with the Filters of every live exception
		// record; there is nothing to resync per-record since the adapter
		// doesn't echo back a per-filter Breakpoint result in the same shape as
		// the other kinds.
		d.mu.Lock()
		filters := []string{}
		for _, r := range d.recordsByKindLocked(driver.BreakpointException) {
			filters = append(filters, r.spec.Filters...)
		}
		rec := d.breakpoints[d.lastInsertedIDLocked(kind)]
		d.mu.Unlock()
		req := &dap.SetExceptionBreakpointsRequest{
			Request:   d.client.newRequest("setExceptionBreakpoints"),
			Arguments: dap.SetExceptionBreakpointsArguments{Filters: filters},
		}
		if _, err := d.client.Send(ctx, req, req.Seq); err != nil {
			return fmt.Errorf("dap: setExceptionBreakpoints: %w", err)
		}
		if rec != nil {
			rec.verified = true
		}

	case driver.BreakpointData:
		d.mu.Lock()
		recs := d.recordsByKindLocked(driver.BreakpointData)
		args := make([]dap.DataBreakpoint, len(recs))
		for i, r := range recs {
			args[i] = dap.DataBreakpoint{DataId: r.dataID, AccessType: r.access}
		}
		d.mu.Unlock()

		resp, err := d.client.SetDataBreakpoints(ctx, args)
		if err != nil {
			return fmt.Errorf("dap: setDataBreakpoints: %w", err)
		}
		d.mu.Lock()
		for i, r := range recs {
			if i < len(resp.Body.Breakpoints) {
				applyBP(r, resp.Body.Breakpoints[i])
			}
		}
		d.mu.Unlock()

	default:
		return fmt.Errorf("dap: %w: breakpoint kind %q", driver.ErrNotSupported, kind)
	}
	return nil
}

func (d *Driver) lastInsertedIDLocked(kind driver.BreakpointKind) int {
	max := 0
	for id, r := range d.breakpoints {
		if r.kind == kind && id > max {
			max = id
		}
	}
	return max
}

func applyBP(r *bpRecord, bp dap.Breakpoint) {
	r.verified = bp.Verified
	r.message = bp.Message
	r.adapterLine = bp.Line
	r.adapterID = bp.Id
}

func bpInfo(r *bpRecord) driver.BreakpointInfo {
	line := r.spec.Line
	if r.adapterLine != 0 {
		line = r.adapterLine
	}
	return driver.BreakpointInfo{
		ID: r.id, Kind: r.kind, File: r.file, Line: line,
		Address: r.spec.Address, Function: r.spec.FunctionName,
		Verified: r.verified, Message: r.message, Condition: r.spec.Condition,
	}
}

func (d *Driver) RemoveBreakpoint(ctx context.Context, id int) error {
	d.mu.Lock()
	rec, ok := d.breakpoints[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("dap: unknown breakpoint id %d", id)
	}
	delete(d.breakpoints, id)
	kind, file := rec.kind, rec.file
	d.mu.Unlock()

	return d.resyncKindLocked(ctx, kind, file)
}

func (d *Driver) ListBreakpoints(ctx context.Context) ([]driver.BreakpointInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.BreakpointInfo, 0, len(d.breakpoints))
	for _, r := range d.breakpoints {
		out = append(out, bpInfo(r))
	}
	return out, nil
}

func (d *Driver) BreakpointLocations(ctx context.Context, file string, line, endLine, column, endColumn int) ([]driver.Target, error) {
	resp, err := d.client.GotoTargets(ctx, file, line)
	if err != nil {
		return nil, fmt.Errorf("dap: %w", driver.ErrNotSupported)
	}
	out := make([]driver.Target, len(resp.Body.Targets))
	for i, t := range resp.Body.Targets {
		out[i] = driver.Target{ID: t.Id, Label: t.Label, Line: t.Line}
	}
	return out, nil
}

func (d *Driver) Watchpoint(ctx context.Context, variable string, address uint64, access driver.AccessType, frameID int) (driver.BreakpointInfo, error) {
	info, err := d.client.DataBreakpointInfo(ctx, variable, frameID)
	if err != nil {
		return driver.BreakpointInfo{}, fmt.Errorf("dap: dataBreakpointInfo: %w", err)
	}
	if info.Body.DataId == "" {
		return driver.BreakpointInfo{}, fmt.Errorf("dap: %w: variable %q is not watchable", driver.ErrNotSupported, variable)
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	rec := &bpRecord{
		id: id, kind: driver.BreakpointData,
		spec:   driver.BreakpointSpec{Kind: driver.BreakpointData},
		dataID: info.Body.DataId, access: string(access),
	}
	d.breakpoints[id] = rec
	recs := d.recordsByKindLocked(driver.BreakpointData)
	args := make([]dap.DataBreakpoint, len(recs))
	for i, r := range recs {
		args[i] = dap.DataBreakpoint{DataId: r.dataID, AccessType: r.access}
	}
	d.mu.Unlock()

	resp, err := d.client.SetDataBreakpoints(ctx, args)
	if err != nil {
		d.mu.Lock()
		delete(d.breakpoints, id)
		d.mu.Unlock()
		return driver.BreakpointInfo{}, fmt.Errorf("dap: setDataBreakpoints: %w", err)
	}
	d.mu.Lock()
	for i, r := range recs {
		if i < len(resp.Body.Breakpoints) {
			applyBP(r, resp.Body.Breakpoints[i])
		}
	}
	info2 := bpInfo(rec)
	d.mu.Unlock()
	return info2, nil
}

func (d *Driver) Run(ctx context.Context, action driver.RunAction, opts driver.RunOpts) (driver.StopContext, error) {
	switch action {
	case driver.ActionContinue:
		if _, err := d.client.Continue(ctx, opts.ThreadID); err != nil {
			return driver.StopContext{}, fmt.Errorf("dap: continue: %w", err)
		}
	case driver.ActionStepInto:
		if err := d.client.StepIn(ctx, opts.ThreadID, opts.TargetID, string(opts.Granularity)); err != nil {
			return driver.StopContext{}, fmt.Errorf("dap: stepIn: %w", err)
		}
	case driver.ActionStepOver:
		if err := d.client.Next(ctx, opts.ThreadID, string(opts.Granularity)); err != nil {
			return driver.StopContext{}, fmt.Errorf("dap: next: %w", err)
		}
	case driver.ActionStepOut:
		if err := d.client.StepOut(ctx, opts.ThreadID, string(opts.Granularity)); err != nil {
			return driver.StopContext{}, fmt.Errorf("dap: stepOut: %w", err)
		}
	case driver.ActionStepBack:
		if err := d.client.StepBack(ctx, opts.ThreadID); err != nil {
			return driver.StopContext{}, fmt.Errorf("dap: %w", driver.ErrNotSupported)
		}
	case driver.ActionReverseContinue:
		if err := d.client.ReverseContinue(ctx, opts.ThreadID); err != nil {
			return driver.StopContext{}, fmt.Errorf("dap: %w", driver.ErrNotSupported)
		}
	case driver.ActionPause:
		if err := d.client.Pause(ctx, opts.ThreadID); err != nil {
			return driver.StopContext{}, err
		}
	case driver.ActionGoto:
		targets, err := d.client.GotoTargets(ctx, opts.File, opts.Line)
		if err != nil || len(targets.Body.Targets) == 0 {
			return driver.StopContext{}, fmt.Errorf("dap: goto: no targets at %s:%d", opts.File, opts.Line)
		}
		if err := d.client.Goto(ctx, opts.ThreadID, targets.Body.Targets[0].Id); err != nil {
			return driver.StopContext{}, err
		}
	case driver.ActionRestart:
		return driver.StopContext{}, d.Restart(ctx)
	default:
		return driver.StopContext{}, fmt.Errorf("dap: %w: action %q", driver.ErrNotSupported, action)
	}

	return d.awaitStopLocked(ctx)
}

// awaitStopLocked drains the event queue until a stopped/terminated/exited
// event arrives, since every run-family DAP request is fire-and-respond
// (the ack just means "request accepted") with the real outcome delivered
// asynchronously (grounded in tools.go's continueExecution/step event loop).
func (d *Driver) awaitStopLocked(ctx context.Context) (driver.StopContext, error) {
	for {
		select {
		case msg, ok := <-d.client.Events:
			if !ok {
				return driver.StopContext{}, fmt.Errorf("dap: adapter connection closed")
			}
			switch ev := msg.(type) {
			case *dap.StoppedEvent:
				d.mu.Lock()
				d.curThread = ev.Body.ThreadId
				d.mu.Unlock()
				return d.stopContextFromEvent(ctx, ev)
			case *dap.TerminatedEvent:
				return driver.StopContext{Reason: driver.StopExit, Description: "terminated"}, nil
			case *dap.ExitedEvent:
				return driver.StopContext{Reason: driver.StopExit, Description: fmt.Sprintf("exit status %d", ev.Body.ExitCode)}, nil
			default:
				d.bufferEvent(msg)
			}
		case <-ctx.Done():
			return driver.StopContext{}, ctx.Err()
		}
	}
}

func (d *Driver) bufferEvent(msg dap.Message) {
	ev, ok := msg.(dap.EventMessage)
	if !ok {
		return
	}
	body := map[string]any{}
	if b, err := json.Marshal(msg); err == nil {
		_ = json.Unmarshal(b, &body)
	}
	d.mu.Lock()
	d.events = append(d.events, driver.Event{Kind: ev.GetEvent().Event, Body: body})
	d.mu.Unlock()
}

func (d *Driver) stopContextFromEvent(ctx context.Context, ev *dap.StoppedEvent) (driver.StopContext, error) {
	sc := driver.StopContext{
		Reason:   driver.StopReason(ev.Body.Reason),
		ThreadID: ev.Body.ThreadId,
	}
	frames, err := d.client.StackTrace(ctx, ev.Body.ThreadId, 0, 1)
	if err == nil && len(frames.Body.StackFrames) > 0 {
		top := frames.Body.StackFrames[0]
		sc.PC = uint64ForMemRef(top.InstructionPointerReference)
		if top.Source != nil {
			sc.File = top.Source.Path
		}
		sc.Line = top.Line
		sc.Column = top.Column
	}
	if len(ev.Body.HitBreakpointIds) > 0 {
		sc.HitBreakpoints = ev.Body.HitBreakpointIds
		sc.Reason = driver.StopBreakpoint
	}
	return sc, nil
}

func uint64ForMemRef(ref string) uint64 {
	var v uint64
	fmt.Sscanf(ref, "0x%x", &v)
	return v
}

func (d *Driver) Pause(ctx context.Context, threadID int) error {
	return d.client.Pause(ctx, threadID)
}

func (d *Driver) Inspect(ctx context.Context, req driver.InspectRequest) (driver.EvaluatedValue, error) {
	if req.VariableRef != 0 {
		resp, err := d.client.Variables(ctx, req.VariableRef)
		if err != nil {
			return driver.EvaluatedValue{}, err
		}
		return driver.EvaluatedValue{Children: variablesToDriver(resp.Body.Variables)}, nil
	}
	evalCtx := req.Context
	if evalCtx == "" {
		evalCtx = "repl"
	}
	resp, err := d.client.Evaluate(ctx, req.Expression, req.FrameID, evalCtx)
	if err != nil {
		return driver.EvaluatedValue{}, err
	}
	return driver.EvaluatedValue{
		Result: resp.Body.Result, Type: resp.Body.Type,
		VariablesReference: resp.Body.VariablesReference,
	}, nil
}

func variablesToDriver(vars []dap.Variable) []driver.Variable {
	out := make([]driver.Variable, len(vars))
	for i, v := range vars {
		out[i] = driver.Variable{
			Name: v.Name, Value: v.Value, Type: v.Type,
			VariablesReference: v.VariablesReference,
			IndexedVariables:    v.IndexedVariables,
			NamedVariables:      v.NamedVariables,
		}
	}
	return out
}

func (d *Driver) SetVariable(ctx context.Context, frameOrScope int, name, value string) (driver.Variable, error) {
	resp, err := d.client.SetVariable(ctx, frameOrScope, name, value)
	if err != nil {
		return driver.Variable{}, err
	}
	return driver.Variable{Name: name, Value: resp.Body.Value, Type: resp.Body.Type, VariablesReference: resp.Body.VariablesReference}, nil
}

func (d *Driver) SetExpression(ctx context.Context, frameID int, expression, value string) (driver.Variable, error) {
	resp, err := d.client.SetExpression(ctx, frameID, expression, value)
	if err != nil {
		return driver.Variable{}, err
	}
	return driver.Variable{Name: expression, Value: resp.Body.Value, Type: resp.Body.Type, VariablesReference: resp.Body.VariablesReference}, nil
}

func (d *Driver) Threads(ctx context.Context) ([]driver.Thread, error) {
	resp, err := d.client.Threads(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Thread, len(resp.Body.Threads))
	for i, t := range resp.Body.Threads {
		out[i] = driver.Thread{ID: t.Id, Name: t.Name}
	}
	return out, nil
}

func (d *Driver) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]driver.Frame, error) {
	resp, err := d.client.StackTrace(ctx, threadID, startFrame, levels)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Frame, len(resp.Body.StackFrames))
	for i, f := range resp.Body.StackFrames {
		fr := driver.Frame{ID: f.Id, Name: f.Name, Line: f.Line, Column: f.Column, Presentation: f.PresentationHint}
		if f.Source != nil {
			fr.File = f.Source.Path
		}
		fr.PC = uint64ForMemRef(f.InstructionPointerReference)
		out[i] = fr
	}
	return out, nil
}

func (d *Driver) Scopes(ctx context.Context, frameID int) ([]driver.Scope, error) {
	resp, err := d.client.Scopes(ctx, frameID)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Scope, len(resp.Body.Scopes))
	for i, s := range resp.Body.Scopes {
		out[i] = driver.Scope{Name: s.Name, VariablesReference: s.VariablesReference, Expensive: s.Expensive}
	}
	return out, nil
}

func (d *Driver) MemoryRead(ctx context.Context, addr uint64, size int, offset int) ([]byte, error) {
	if !d.caps.SupportsReadMemory {
		return nil, driver.ErrNotSupported
	}
	resp, err := d.client.ReadMemory(ctx, fmt.Sprintf("0x%x", addr), offset, size)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(resp.Body.Data)
}

func (d *Driver) MemoryWrite(ctx context.Context, addr uint64, data []byte) error {
	if !d.caps.SupportsWriteMemory {
		return driver.ErrNotSupported
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	_, err := d.client.WriteMemory(ctx, fmt.Sprintf("0x%x", addr), 0, encoded)
	return err
}

func (d *Driver) Disassemble(ctx context.Context, addr uint64, count int, resolveSymbols bool) ([]driver.Instr, error) {
	if !d.caps.SupportsDisassemble {
		return nil, driver.ErrNotSupported
	}
	resp, err := d.client.Disassemble(ctx, fmt.Sprintf("0x%x", addr), 0, 0, count, resolveSymbols)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Instr, len(resp.Body.Instructions))
	for i, instr := range resp.Body.Instructions {
		out[i] = driver.Instr{
			Address: uint64ForMemRef(instr.Address), Instruction: instr.Instruction,
			InstructionBytes: instr.InstructionBytes, Symbol: instr.Symbol,
		}
	}
	return out, nil
}

// Registers is not part of the DAP wire protocol: there is no "registers"
// request. An adapter that wants to expose registers does so through a
// synthetic "Registers" scope reachable via Scopes/Inspect instead.
func (d *Driver) Registers(ctx context.Context, threadID int) ([]driver.Register, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) WriteRegister(ctx context.Context, threadID int, name string, value uint64) error {
	return driver.ErrNotSupported
}

func (d *Driver) Capabilities(ctx context.Context) (driver.CapSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps, nil
}

func (d *Driver) Modules(ctx context.Context) ([]driver.Module, error) {
	resp, err := d.client.Modules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Module, len(resp.Body.Modules))
	for i, m := range resp.Body.Modules {
		out[i] = driver.Module{ID: fmt.Sprintf("%v", m.Id), Name: m.Name, Path: m.Path, Symbols: m.SymbolStatus != ""}
	}
	return out, nil
}

func (d *Driver) LoadedSources(ctx context.Context) ([]driver.Source, error) {
	resp, err := d.client.LoadedSources(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Source, len(resp.Body.Sources))
	for i, s := range resp.Body.Sources {
		out[i] = driver.Source{Path: s.Path, Reference: s.SourceReference}
	}
	return out, nil
}

func (d *Driver) Source(ctx context.Context, sourceReference int) (string, error) {
	resp, err := d.client.Source(ctx, sourceReference, "")
	if err != nil {
		return "", err
	}
	return resp.Body.Content, nil
}

func (d *Driver) Completions(ctx context.Context, text string, column, frameID int) ([]driver.Target, error) {
	resp, err := d.client.Completions(ctx, text, column, frameID)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Target, len(resp.Body.Targets))
	for i, t := range resp.Body.Targets {
		out[i] = driver.Target{Label: t.Label}
	}
	return out, nil
}

func (d *Driver) ExceptionInfo(ctx context.Context, threadID int) (driver.ExceptionInfo, error) {
	resp, err := d.client.ExceptionInfo(ctx, threadID)
	if err != nil {
		return driver.ExceptionInfo{}, err
	}
	return driver.ExceptionInfo{
		ExceptionID: resp.Body.ExceptionId, Description: resp.Body.Description,
		BreakMode: string(resp.Body.BreakMode),
	}, nil
}

func (d *Driver) GotoTargets(ctx context.Context, file string, line int) ([]driver.Target, error) {
	resp, err := d.client.GotoTargets(ctx, file, line)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Target, len(resp.Body.Targets))
	for i, t := range resp.Body.Targets {
		out[i] = driver.Target{ID: t.Id, Label: t.Label, Line: t.Line}
	}
	return out, nil
}

func (d *Driver) StepInTargets(ctx context.Context, frameID int) ([]driver.Target, error) {
	resp, err := d.client.StepInTargets(ctx, frameID)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Target, len(resp.Body.Targets))
	for i, t := range resp.Body.Targets {
		out[i] = driver.Target{ID: t.Id, Label: t.Label}
	}
	return out, nil
}

func (d *Driver) RestartFrame(ctx context.Context, frameID int) error {
	return d.client.RestartFrame(ctx, frameID)
}

func (d *Driver) FindSymbol(ctx context.Context, name string) ([]driver.SymbolInfo, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) VariableLocation(ctx context.Context, name string, frameID int) (driver.Location, error) {
	return driver.Location{}, driver.ErrNotSupported
}

func (d *Driver) PollEvents(ctx context.Context) ([]driver.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.events
	d.events = nil
	return out, nil
}

func (d *Driver) Cancel(ctx context.Context, requestID, progressID string) error {
	return d.client.Cancel(ctx, requestID, progressID)
}

func (d *Driver) TerminateThreads(ctx context.Context, tids []int) error {
	return d.client.TerminateThreads(ctx, tids)
}

func (d *Driver) Restart(ctx context.Context) error {
	payload, err := marshalArgs(map[string]any{})
	if err != nil {
		return err
	}
	return d.client.Restart(ctx, payload)
}

func (d *Driver) Stop(ctx context.Context, detach, terminateOnly bool) error {
	if terminateOnly {
		return d.client.Terminate(ctx)
	}
	if err := d.client.Disconnect(ctx, !detach); err != nil {
		d.logger.Warn("dap disconnect returned error", zap.Error(err))
	}
	return d.client.Close()
}
