// Stepping algorithms of spec §4.6: step_into single-steps until the source
// line changes; step_out and step_over install temporary breakpoints at the
// return address and/or next line and resume, removing the temporaries
// atomically before returning.
package nativeengine

import (
	"context"
	"fmt"

	"github.com/agenttools/debugd/internal/breakpoints"
	"github.com/agenttools/debugd/internal/driver"
)

// stepIntoLocked single-steps by one instruction, looping while the stop PC
// still maps to the same source line (spec §4.6 step_into).
func (e *Engine) stepIntoLocked(ctx context.Context) (driver.StopContext, error) {
	startFile, startLine := e.stop.File, e.stop.Line

	for {
		if err := e.stepOverPendingTrapLocked(); err != nil {
			return driver.StopContext{}, err
		}
		if err := e.ctrl.SingleStep(e.curTID); err != nil {
			return driver.StopContext{}, fmt.Errorf("nativeengine: step_into: %w", err)
		}
		st, isBP, err := e.waitAndHandleLocked(ctx)
		if err != nil {
			return driver.StopContext{}, err
		}
		if isBP || st.Reason == driver.StopExit || st.Reason == driver.StopSignal {
			return st, nil
		}
		if st.File != startFile || st.Line != startLine {
			return st, nil
		}
	}
}

// stepOutLocked installs a temporary breakpoint at the return address
// recovered from the current frame, resumes, and removes it on stop (spec
// §4.6 step_out).
func (e *Engine) stepOutLocked(ctx context.Context) (driver.StopContext, error) {
	if len(e.frames) < 2 {
		return e.stepIntoLocked(ctx)
	}
	retAddr := e.frames[1].PC

	temp, err := e.bps.SetAtAddresses(breakpoints.KindInstruction, []uint64{retAddr}, "", "", "")
	if err != nil {
		return driver.StopContext{}, fmt.Errorf("nativeengine: step_out: %w", err)
	}
	defer e.bps.Remove(temp.ID)

	if err := e.stepOverPendingTrapLocked(); err != nil {
		return driver.StopContext{}, err
	}
	if err := e.ctrl.Cont(); err != nil {
		return driver.StopContext{}, fmt.Errorf("nativeengine: step_out: %w", err)
	}
	st, _, err := e.waitAndHandleLocked(ctx)
	return st, err
}

// stepOverLocked installs temporary breakpoints at both the next source
// line and the current frame's return address, resumes, and whichever
// fires first wins — the return-address trap covers the case where the
// current line calls into a function that never returns to a "next line"
// address within this function (tail calls, recursion unwinding past this
// frame) (spec §4.6 step_over). When the return-address trap fires first,
// the step continues with another step_over from that address, so the stop
// lands on the next line of the caller's frame.
func (e *Engine) stepOverLocked(ctx context.Context) (driver.StopContext, error) {
	var addrs []uint64
	if e.dw != nil {
		if next, ok := e.dw.NextRowPC(e.stop.PC); ok {
			addrs = append(addrs, next)
		}
	}
	var retAddr uint64
	if len(e.frames) > 1 {
		retAddr = e.frames[1].PC
		addrs = append(addrs, retAddr)
	}
	if len(addrs) == 0 {
		return e.stepIntoLocked(ctx)
	}

	temp, err := e.bps.SetAtAddresses(breakpoints.KindInstruction, addrs, "", "", "")
	if err != nil {
		return driver.StopContext{}, fmt.Errorf("nativeengine: step_over: %w", err)
	}
	defer e.bps.Remove(temp.ID)

	if err := e.stepOverPendingTrapLocked(); err != nil {
		return driver.StopContext{}, err
	}
	if err := e.ctrl.Cont(); err != nil {
		return driver.StopContext{}, fmt.Errorf("nativeengine: step_over: %w", err)
	}
	st, isBP, err := e.waitAndHandleLocked(ctx)
	if err == nil && isBP && retAddr != 0 && st.PC == retAddr {
		// The frame returned before reaching its next line; st sits mid-line
		// in the caller, so finish that line as well.
		return e.stepOverLocked(ctx)
	}
	return st, err
}
