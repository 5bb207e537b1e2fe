package nativeengine

import (
	"context"
	"fmt"

	"github.com/agenttools/debugd/internal/driver"
)

// trapPCAdjust is how far the trap instruction advances PC past the
// breakpoint address before the debuggee is reported stopped (x86-64's
// INT3 advances PC by its own length; AArch64's BRK does not advance PC).
func (e *Engine) trapPCAdjust() uint64 {
	if e.arch == "amd64" {
		return uint64(len(e.trapOpcode))
	}
	return 0
}

// Run dispatches the `run` tool's action argument to the matching stepping
// or resume algorithm (spec §4.6/§6).
func (e *Engine) Run(ctx context.Context, action driver.RunAction, opts driver.RunOpts) (driver.StopContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch action {
	case driver.ActionContinue:
		return e.continueLocked(ctx)
	case driver.ActionStepInto:
		return e.stepIntoLocked(ctx)
	case driver.ActionStepOver:
		return e.stepOverLocked(ctx)
	case driver.ActionStepOut:
		return e.stepOutLocked(ctx)
	case driver.ActionPause:
		if err := e.ctrl.Interrupt(); err != nil {
			return driver.StopContext{}, err
		}
		if err := e.refreshStopLocked(driver.StopPause); err != nil {
			return driver.StopContext{}, err
		}
		return e.stop, nil
	case driver.ActionRestart:
		e.mu.Unlock()
		err := e.Restart(ctx)
		e.mu.Lock()
		if err != nil {
			return driver.StopContext{}, err
		}
		return e.stop, nil
	case driver.ActionGoto:
		return e.gotoLocked(opts)
	default:
		return driver.StopContext{}, fmt.Errorf("nativeengine: %w: action %q", driver.ErrNotSupported, action)
	}
}

// gotoLocked directly sets PC to the resolved location without running any
// intervening code — a native-only capability (delve-style `goto`), gated
// through GotoTargets to pick a valid address first.
func (e *Engine) gotoLocked(opts driver.RunOpts) (driver.StopContext, error) {
	if e.dw == nil {
		return driver.StopContext{}, driver.ErrNotSupported
	}
	addrs, err := e.dw.SourceToPC(opts.File, opts.Line)
	if err != nil || len(addrs) == 0 {
		return driver.StopContext{}, fmt.Errorf("nativeengine: goto: %w", err)
	}
	regs, err := e.ctrl.ReadRegs(e.curTID)
	if err != nil {
		return driver.StopContext{}, err
	}
	regs.PC = addrs[0]
	if err := e.ctrl.WriteRegs(e.curTID, regs); err != nil {
		return driver.StopContext{}, err
	}
	if err := e.refreshStopLocked(driver.StopStep); err != nil {
		return driver.StopContext{}, err
	}
	return e.stop, nil
}

// stepOverPendingTrapLocked lazily completes the deferred half of trap hit
// handling (spec §4.5 "unless the stop is being surfaced to the client"):
// a previously-hit breakpoint's original byte was restored in memory and
// left that way so the client saw an unperturbed stop; before the debuggee
// is resumed again it must be single-stepped past that original
// instruction and the trap re-armed, or the very next resume would
// immediately re-trap at the same PC with no progress made.
func (e *Engine) stepOverPendingTrapLocked() error {
	if e.pendingRearmAddr == 0 {
		return nil
	}
	addr := e.pendingRearmAddr
	e.pendingRearmAddr = 0

	if _, ok := e.bps.TrapAt(addr); !ok {
		return nil
	}
	if err := e.ctrl.SingleStep(e.curTID); err != nil {
		return fmt.Errorf("nativeengine: step past breakpoint at 0x%x: %w", addr, err)
	}
	if _, err := e.ctrl.WaitForStop(0); err != nil {
		return fmt.Errorf("nativeengine: step past breakpoint at 0x%x: %w", addr, err)
	}
	return e.ctrl.WriteMem(addr, e.trapOpcode)
}

// waitAndHandleLocked waits for the next stop, classifies a trap as either
// an owned breakpoint hit (restoring its original byte and deferring the
// single-step-over, per stepOverPendingTrapLocked) or a plain step
// completion, and refreshes e.stop accordingly. The boolean return reports
// whether the stop was an owned breakpoint hit.
func (e *Engine) waitAndHandleLocked(ctx context.Context) (driver.StopContext, bool, error) {
	ev, err := e.ctrl.WaitForStop(0)
	if err != nil {
		return driver.StopContext{}, false, fmt.Errorf("nativeengine: wait for stop: %w", err)
	}
	if ev.Cloned {
		_ = e.ctrl.Cont()
		return e.waitAndHandleLocked(ctx)
	}

	// Drain whatever the debuggee has written so far before classifying the
	// stop: a process that prints then exits immediately must still have
	// that output delivered through poll_events (spec §9 invariant 10).
	e.drainOutputLocked()

	if ev.Exited {
		e.stop = driver.StopContext{Reason: driver.StopExit, ThreadID: ev.TID, Description: fmt.Sprintf("exit status %d", ev.ExitCode)}
		e.pushEventLocked("exited", map[string]any{"exitCode": ev.ExitCode})
		return e.stop, false, nil
	}
	if ev.Signaled {
		e.stop = driver.StopContext{Reason: driver.StopSignal, ThreadID: ev.TID, Description: ev.Signal}
		e.pushEventLocked("terminated", map[string]any{"signal": ev.Signal})
		return e.stop, false, nil
	}

	e.curTID = ev.TID
	if !ev.Trapped {
		if err := e.refreshStopLocked(driver.StopSignal); err != nil {
			return driver.StopContext{}, false, err
		}
		return e.stop, false, nil
	}

	regs, err := e.ctrl.ReadRegs(ev.TID)
	if err != nil {
		return driver.StopContext{}, false, err
	}
	correctedPC := regs.PC - e.trapPCAdjust()

	if e.bps != nil {
		if trap, ok := e.bps.TrapAt(correctedPC); ok {
			regs.PC = correctedPC
			if err := e.ctrl.WriteRegs(ev.TID, regs); err != nil {
				return driver.StopContext{}, false, err
			}
			if err := e.ctrl.WriteMem(correctedPC, trap.OriginalBytes()); err != nil {
				return driver.StopContext{}, false, err
			}
			e.pendingRearmAddr = correctedPC
			e.bps.RecordHit(correctedPC)
			if err := e.refreshStopLocked(driver.StopBreakpoint); err != nil {
				return driver.StopContext{}, false, err
			}
			return e.stop, true, nil
		}
	}

	if err := e.refreshStopLocked(driver.StopStep); err != nil {
		return driver.StopContext{}, false, err
	}
	return e.stop, false, nil
}

func (e *Engine) continueLocked(ctx context.Context) (driver.StopContext, error) {
	if err := e.stepOverPendingTrapLocked(); err != nil {
		return driver.StopContext{}, err
	}
	if err := e.ctrl.Cont(); err != nil {
		return driver.StopContext{}, fmt.Errorf("nativeengine: continue: %w", err)
	}
	st, _, err := e.waitAndHandleLocked(ctx)
	return st, err
}
