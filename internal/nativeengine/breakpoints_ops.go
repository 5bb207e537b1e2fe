package nativeengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenttools/debugd/internal/breakpoints"
	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/procctl"
)

// SetBreakpoint resolves spec to one or more code addresses and installs (or
// joins) a trap at each, per spec §4.5.
func (e *Engine) SetBreakpoint(ctx context.Context, spec driver.BreakpointSpec) (driver.BreakpointInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dw == nil || e.bps == nil {
		return driver.BreakpointInfo{}, driver.ErrNotSupported
	}

	switch spec.Kind {
	case driver.BreakpointLine:
		addrs, err := e.dw.SourceToPC(spec.File, spec.Line)
		if err != nil {
			return driver.BreakpointInfo{}, fmt.Errorf("nativeengine: %w", err)
		}
		bp, err := e.bps.SetAtAddresses(breakpoints.KindLine, addrs, spec.Condition, spec.HitCondition, spec.LogMessage)
		if err != nil {
			return driver.BreakpointInfo{}, err
		}
		return e.bpInfoFromSpecLocked(bp, spec.File, spec.Line), nil

	case driver.BreakpointFunction:
		addrs, err := e.dw.FindFunction(spec.FunctionName)
		if err != nil {
			return driver.BreakpointInfo{}, fmt.Errorf("nativeengine: %w", err)
		}
		resolved := make([]uint64, 0, len(addrs))
		for _, a := range addrs {
			resolved = append(resolved, e.skipPrologueLocked(a))
		}
		bp, err := e.bps.SetAtAddresses(breakpoints.KindFunction, resolved, spec.Condition, spec.HitCondition, spec.LogMessage)
		if err != nil {
			return driver.BreakpointInfo{}, err
		}
		info := e.bpInfoFromSpecLocked(bp, "", 0)
		info.Function = spec.FunctionName
		return info, nil

	case driver.BreakpointInstruction:
		bp, err := e.bps.SetAtAddresses(breakpoints.KindInstruction, []uint64{spec.Address}, spec.Condition, spec.HitCondition, spec.LogMessage)
		if err != nil {
			return driver.BreakpointInfo{}, err
		}
		return e.bpInfoFromSpecLocked(bp, "", 0), nil

	case driver.BreakpointException:
		bp := e.bps.SetLogical(&breakpoints.Spec{Kind: breakpoints.KindException, ExceptionFilters: spec.Filters})
		return driver.BreakpointInfo{ID: bp.ID, Kind: spec.Kind, Verified: true}, nil

	case driver.BreakpointData:
		return e.Watchpoint(ctx, "", spec.Address, driver.AccessReadWrite, 0)

	default:
		return driver.BreakpointInfo{}, fmt.Errorf("nativeengine: unknown breakpoint kind %q", spec.Kind)
	}
}

// skipPrologueLocked returns the address of the first line-table row inside
// fn marked prologue_end when the DWARF Reader recorded one, else low_pc
// unchanged (spec §4.5 set_function).
func (e *Engine) skipPrologueLocked(lowPC uint64) uint64 {
	fn, ok := e.dw.FunctionAt(lowPC)
	if ok && fn.HasPrologue {
		return fn.PrologueEnd
	}
	return lowPC
}

func (e *Engine) bpInfoFromSpecLocked(bp *breakpoints.Spec, file string, line int) driver.BreakpointInfo {
	var addr uint64
	if len(bp.Addresses) > 0 {
		addr = bp.Addresses[0]
	}
	return driver.BreakpointInfo{
		ID: bp.ID, Kind: driver.BreakpointKind(bp.Kind), File: file, Line: line,
		Address: addr, Verified: bp.Verified, Message: bp.Message, Condition: bp.Condition,
	}
}

func (e *Engine) RemoveBreakpoint(ctx context.Context, id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bps == nil {
		return driver.ErrNotSupported
	}
	return e.bps.Remove(id)
}

func (e *Engine) ListBreakpoints(ctx context.Context) ([]driver.BreakpointInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bps == nil {
		return nil, nil
	}
	specs := e.bps.List()
	out := make([]driver.BreakpointInfo, 0, len(specs))
	for _, s := range specs {
		out = append(out, e.bpInfoFromSpecLocked(s, "", 0))
	}
	return out, nil
}

func (e *Engine) BreakpointLocations(ctx context.Context, file string, line, endLine, column, endColumn int) ([]driver.Target, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dw == nil {
		return nil, driver.ErrNotSupported
	}
	if endLine == 0 {
		endLine = line
	}
	var out []driver.Target
	for l := line; l <= endLine; l++ {
		addrs, err := e.dw.SourceToPC(file, l)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			out = append(out, driver.Target{ID: int(a), Line: l})
		}
	}
	return out, nil
}

// Watchpoint asks the process controller for a hardware watchpoint (spec
// §4.5 set_watchpoint). Every procctl controller reports ErrNotSupported for
// hardware watchpoints, so this returns driver.ErrNotSupported rather than a
// watch that can never fire.
func (e *Engine) Watchpoint(ctx context.Context, variable string, address uint64, access driver.AccessType, frameID int) (driver.BreakpointInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var wa byte
	switch access {
	case driver.AccessRead:
		wa = 0
	case driver.AccessWrite:
		wa = 1
	default:
		wa = 2
	}
	id, err := e.ctrl.SetHardwareWatchpoint(address, 8, watchAccessFromByte(wa))
	if err != nil {
		if errors.Is(err, procctl.ErrNotSupported) {
			return driver.BreakpointInfo{}, driver.ErrNotSupported
		}
		return driver.BreakpointInfo{}, err
	}
	bp := e.bps.SetLogical(&breakpoints.Spec{
		Kind: breakpoints.KindData, WatchAddr: address, WatchAccess: string(access), WatchID: id,
	})
	return driver.BreakpointInfo{ID: bp.ID, Kind: driver.BreakpointData, Address: address, Verified: true}, nil
}
