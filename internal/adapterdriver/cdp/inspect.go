package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/debugger"
	"github.com/chromedp/cdproto/runtime"

	"github.com/agenttools/debugd/internal/driver"
)

// setBreakpointByURLParams/Returns mirror debugger.SetBreakpointByURL's wire
// shape. The generated cdproto type builds its request through chained
// With* setters and a context-bound Executor; this driver dials its own
// transport instead of using chromedp's browser-automation executor, so the
// params are constructed directly here (spec §4.9 rationale in driver.go).
type setBreakpointByURLParams struct {
	LineNumber int64  `json:"lineNumber"`
	URL        string `json:"url,omitempty"`
	Condition  string `json:"condition,omitempty"`
}

type setBreakpointByURLReturns struct {
	BreakpointID string             `json:"breakpointId"`
	Locations    []*debugger.Location `json:"locations"`
}

// SetBreakpoint installs a line or exception breakpoint (spec §4.4). CDP has
// no equivalent of function/instruction/data breakpoints in its Debugger
// domain, so those kinds are reported honestly as unsupported.
func (d *Driver) SetBreakpoint(ctx context.Context, spec driver.BreakpointSpec) (driver.BreakpointInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch spec.Kind {
	case driver.BreakpointLine:
		params := setBreakpointByURLParams{
			LineNumber: int64(spec.Line - 1),
			URL:        spec.File,
			Condition:  spec.Condition,
		}
		var ret setBreakpointByURLReturns
		if err := d.t.Call(ctx, "Debugger.setBreakpointByURL", params, &ret); err != nil {
			return driver.BreakpointInfo{}, fmt.Errorf("cdp: setBreakpointByURL: %w", err)
		}
		d.nextID++
		id := d.nextID
		rec := &bpRecord{id: id, spec: spec, verified: len(ret.Locations) > 0}
		rec.cdpID = cdp.BreakpointID(ret.BreakpointID)
		d.breakpoints[id] = rec
		return d.bpInfo(rec), nil

	case driver.BreakpointException:
		state := "uncaught"
		for _, f := range spec.Filters {
			if f == "all" {
				state = "all"
			}
		}
		if err := d.t.Call(ctx, "Debugger.setPauseOnExceptions", map[string]string{"state": state}, nil); err != nil {
			return driver.BreakpointInfo{}, fmt.Errorf("cdp: setPauseOnExceptions: %w", err)
		}
		d.nextID++
		id := d.nextID
		rec := &bpRecord{id: id, spec: spec, verified: true}
		d.breakpoints[id] = rec
		return d.bpInfo(rec), nil

	default:
		return driver.BreakpointInfo{}, fmt.Errorf("cdp: %w: breakpoint kind %q", driver.ErrNotSupported, spec.Kind)
	}
}

func (d *Driver) bpInfo(r *bpRecord) driver.BreakpointInfo {
	return driver.BreakpointInfo{
		ID: r.id, Kind: r.spec.Kind, File: r.spec.File, Line: r.spec.Line,
		Verified: r.verified, Condition: r.spec.Condition,
	}
}

func (d *Driver) RemoveBreakpoint(ctx context.Context, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.breakpoints[id]
	if !ok {
		return fmt.Errorf("cdp: no breakpoint with id %d", id)
	}
	delete(d.breakpoints, id)
	switch rec.spec.Kind {
	case driver.BreakpointLine:
		return d.t.Call(ctx, "Debugger.removeBreakpoint", map[string]string{"breakpointId": string(rec.cdpID)}, nil)
	case driver.BreakpointException:
		return d.t.Call(ctx, "Debugger.setPauseOnExceptions", map[string]string{"state": "none"}, nil)
	}
	return nil
}

func (d *Driver) ListBreakpoints(ctx context.Context) ([]driver.BreakpointInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.BreakpointInfo, 0, len(d.breakpoints))
	for _, r := range d.breakpoints {
		out = append(out, d.bpInfo(r))
	}
	return out, nil
}

// BreakpointLocations has no direct CDP equivalent that returns the same
// shape as DAP's breakpointLocations (Debugger.getPossibleBreakpoints works
// over a script range, not a line span) so this is reported as unsupported
// rather than approximated.
func (d *Driver) BreakpointLocations(ctx context.Context, file string, line, endLine, column, endColumn int) ([]driver.Target, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) Watchpoint(ctx context.Context, variable string, address uint64, access driver.AccessType, frameID int) (driver.BreakpointInfo, error) {
	return driver.BreakpointInfo{}, driver.ErrNotSupported
}

func (d *Driver) Threads(ctx context.Context) ([]driver.Thread, error) {
	return []driver.Thread{{ID: 1, Name: "main"}}, nil
}

func (d *Driver) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]driver.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if startFrame < 0 || startFrame >= len(d.frames) {
		return nil, nil
	}
	end := len(d.frames)
	if levels > 0 && startFrame+levels < end {
		end = startFrame + levels
	}
	out := make([]driver.Frame, 0, end-startFrame)
	for i := startFrame; i < end; i++ {
		cf := d.frames[i]
		f := driver.Frame{ID: i, Name: cf.FunctionName, Presentation: "normal"}
		if cf.Location != nil {
			f.File = d.scriptURLs[string(cf.Location.ScriptID)]
			f.Line = int(cf.Location.LineNumber) + 1
			f.Column = int(cf.Location.ColumnNumber)
		}
		if f.Name == "" {
			f.Name = "(anonymous)"
		}
		out = append(out, f)
	}
	return out, nil
}

func (d *Driver) Scopes(ctx context.Context, frameID int) ([]driver.Scope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if frameID < 0 || frameID >= len(d.frames) {
		return nil, fmt.Errorf("cdp: no frame with id %d", frameID)
	}
	cf := d.frames[frameID]
	out := make([]driver.Scope, 0, len(cf.ScopeChain))
	for _, sc := range cf.ScopeChain {
		if sc.Object == nil {
			continue
		}
		out = append(out, driver.Scope{
			Name:               string(sc.Type),
			VariablesReference: d.allocVarRefLocked(string(sc.Object.ObjectID)),
			Expensive:          sc.Type == "global",
		})
	}
	return out, nil
}

func (d *Driver) allocVarRefLocked(objectID string) int {
	d.nextVarRef++
	d.varRefs[d.nextVarRef] = objectID
	return d.nextVarRef
}

type getPropertiesParams struct {
	ObjectID      string `json:"objectId"`
	OwnProperties bool   `json:"ownProperties"`
}

type propertyDescriptor struct {
	Name  string               `json:"name"`
	Value *runtime.RemoteObject `json:"value"`
}

type getPropertiesReturns struct {
	Result []propertyDescriptor `json:"result"`
}

func (d *Driver) Inspect(ctx context.Context, req driver.InspectRequest) (driver.EvaluatedValue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.VariableRef != 0 {
		objectID, ok := d.varRefs[req.VariableRef]
		if !ok {
			return driver.EvaluatedValue{}, fmt.Errorf("cdp: unknown variablesReference %d", req.VariableRef)
		}
		var ret getPropertiesReturns
		if err := d.t.Call(ctx, "Runtime.getProperties", getPropertiesParams{ObjectID: objectID, OwnProperties: true}, &ret); err != nil {
			return driver.EvaluatedValue{}, fmt.Errorf("cdp: getProperties: %w", err)
		}
		children := make([]driver.Variable, 0, len(ret.Result))
		for _, p := range ret.Result {
			children = append(children, d.variableFromProperty(p))
		}
		return driver.EvaluatedValue{Result: "Object", Children: children}, nil
	}

	var result *runtime.RemoteObject
	if req.FrameID > 0 || (req.FrameID == 0 && len(d.frames) > 0) {
		if req.FrameID < 0 || req.FrameID >= len(d.frames) {
			return driver.EvaluatedValue{}, fmt.Errorf("cdp: no frame with id %d", req.FrameID)
		}
		var ret struct {
			Result *runtime.RemoteObject `json:"result"`
		}
		params := map[string]any{
			"callFrameId": string(d.frames[req.FrameID].CallFrameID),
			"expression":  req.Expression,
		}
		if err := d.t.Call(ctx, "Debugger.evaluateOnCallFrame", params, &ret); err != nil {
			return driver.EvaluatedValue{}, fmt.Errorf("cdp: evaluateOnCallFrame: %w", err)
		}
		result = ret.Result
	} else {
		var ret struct {
			Result *runtime.RemoteObject `json:"result"`
		}
		if err := d.t.Call(ctx, "Runtime.evaluate", map[string]any{"expression": req.Expression}, &ret); err != nil {
			return driver.EvaluatedValue{}, fmt.Errorf("cdp: evaluate: %w", err)
		}
		result = ret.Result
	}
	if result == nil {
		return driver.EvaluatedValue{}, fmt.Errorf("cdp: evaluate returned no result")
	}
	ev := driver.EvaluatedValue{Result: result.Description, Type: string(result.Type)}
	if result.ObjectID != "" {
		ev.VariablesReference = d.allocVarRefLocked(string(result.ObjectID))
	}
	return ev, nil
}

func (d *Driver) variableFromProperty(p propertyDescriptor) driver.Variable {
	v := driver.Variable{Name: p.Name}
	if p.Value != nil {
		v.Value = p.Value.Description
		v.Type = string(p.Value.Type)
		if p.Value.ObjectID != "" {
			v.VariablesReference = d.allocVarRefLocked(string(p.Value.ObjectID))
		}
	}
	return v
}

// SetVariable targets the first scope of the given frame; CDP's
// setVariableValue is scope-indexed rather than name-addressed across all
// scopes, and the daemon's tool surface doesn't expose a scope index, so
// this always edits scope 0 (innermost/local), which covers the common
// case of setting a local variable.
func (d *Driver) SetVariable(ctx context.Context, frameOrScope int, name, value string) (driver.Variable, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if frameOrScope < 0 || frameOrScope >= len(d.frames) {
		return driver.Variable{}, fmt.Errorf("cdp: no frame with id %d", frameOrScope)
	}
	raw, err := literalToCallArgument(value)
	if err != nil {
		return driver.Variable{}, err
	}
	params := map[string]any{
		"scopeNumber":  0,
		"variableName": name,
		"newValue":     raw,
		"callFrameId":  string(d.frames[frameOrScope].CallFrameID),
	}
	if err := d.t.Call(ctx, "Debugger.setVariableValue", params, nil); err != nil {
		return driver.Variable{}, fmt.Errorf("cdp: setVariableValue: %w", err)
	}
	return driver.Variable{Name: name, Value: value}, nil
}

func (d *Driver) SetExpression(ctx context.Context, frameID int, expression, value string) (driver.Variable, error) {
	return d.SetVariable(ctx, frameID, expression, value)
}

// literalToCallArgument builds a Runtime.CallArgument whose `value` field is
// the JSON-decoded literal, falling back to a string if it doesn't parse as
// JSON (e.g. a bare identifier expression isn't a valid replacement here).
func literalToCallArgument(value string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		v = value
	}
	return map[string]any{"value": v}, nil
}

func (d *Driver) Modules(ctx context.Context) ([]driver.Module, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.Module, 0, len(d.scriptURLs))
	for id, url := range d.scriptURLs {
		out = append(out, driver.Module{ID: id, Name: url, Path: url})
	}
	return out, nil
}

func (d *Driver) LoadedSources(ctx context.Context) ([]driver.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.Source, 0, len(d.scriptURLs))
	for id, url := range d.scriptURLs {
		d.nextSrcRef++
		d.sourceRefs[d.nextSrcRef] = id
		out = append(out, driver.Source{Path: url, Reference: d.nextSrcRef})
	}
	return out, nil
}

func (d *Driver) Source(ctx context.Context, sourceReference int) (string, error) {
	d.mu.Lock()
	scriptID, ok := d.sourceRefs[sourceReference]
	d.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("cdp: unknown sourceReference %d", sourceReference)
	}
	var ret struct {
		ScriptSource string `json:"scriptSource"`
	}
	if err := d.t.Call(ctx, "Debugger.getScriptSource", map[string]string{"scriptId": scriptID}, &ret); err != nil {
		return "", fmt.Errorf("cdp: getScriptSource: %w", err)
	}
	return ret.ScriptSource, nil
}

func (d *Driver) Completions(ctx context.Context, text string, column, frameID int) ([]driver.Target, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) ExceptionInfo(ctx context.Context, threadID int) (driver.ExceptionInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pauseReason != "exception" && d.pauseReason != "promiseRejection" {
		return driver.ExceptionInfo{}, fmt.Errorf("cdp: not stopped on an exception")
	}
	return driver.ExceptionInfo{Description: d.pauseReason, BreakMode: "unhandled"}, nil
}

func (d *Driver) GotoTargets(ctx context.Context, file string, line int) ([]driver.Target, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) StepInTargets(ctx context.Context, frameID int) ([]driver.Target, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) RestartFrame(ctx context.Context, frameID int) error {
	return driver.ErrNotSupported
}

// MemoryRead, MemoryWrite, Disassemble, Registers, WriteRegister, FindSymbol
// and VariableLocation have no JavaScript/CDP analogue: V8 exposes values
// through the Runtime object-graph, not a flat address space or register
// file, so these are honestly unsupported rather than faked.
func (d *Driver) MemoryRead(ctx context.Context, addr uint64, size int, offset int) ([]byte, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) MemoryWrite(ctx context.Context, addr uint64, data []byte) error {
	return driver.ErrNotSupported
}

func (d *Driver) Disassemble(ctx context.Context, addr uint64, count int, resolveSymbols bool) ([]driver.Instr, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) Registers(ctx context.Context, threadID int) ([]driver.Register, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) WriteRegister(ctx context.Context, threadID int, name string, value uint64) error {
	return driver.ErrNotSupported
}

func (d *Driver) FindSymbol(ctx context.Context, name string) ([]driver.SymbolInfo, error) {
	return nil, driver.ErrNotSupported
}

func (d *Driver) VariableLocation(ctx context.Context, name string, frameID int) (driver.Location, error) {
	return driver.Location{}, driver.ErrNotSupported
}

