package driver

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by any Driver method that a concrete backend
// cannot fulfill. Callers map it to toolerr.NotSupported; it must never be
// swallowed into a partial/spoofed success (spec §8, invariant 9).
var ErrNotSupported = errors.New("operation not supported by this driver")

// LaunchParams is the argument to Launch.
type LaunchParams struct {
	Program     string
	Args        []string
	Env         map[string]string
	Cwd         string
	StopOnEntry bool
	Language    string
}

// AttachParams is the argument to Attach.
type AttachParams struct {
	PID      int
	Port     int
	Language string
}

// RunOpts is the argument to Run.
type RunOpts struct {
	Granularity Granularity
	File        string
	Line        int
	TargetID    int
	ThreadID    int
}

// SessionHandle is returned by Launch/Attach: an opaque identifier plus the
// driver's advertised capabilities, read once at construction.
type SessionHandle struct {
	Capabilities CapSet
}

// Driver fulfills the backend-independent contract of spec §4.7. Concrete
// implementations are internal/nativeengine.Engine,
// internal/adapterdriver/dap.Driver and internal/adapterdriver/cdp.Driver.
//
// Every method may block on a syscall or an adapter round-trip; callers pass
// a context so long waits (wait_for_stop equivalents) can be cancelled per
// spec §5's cancellation model.
type Driver interface {
	Launch(ctx context.Context, p LaunchParams) (SessionHandle, error)
	Attach(ctx context.Context, p AttachParams) (SessionHandle, error)

	SetBreakpoint(ctx context.Context, spec BreakpointSpec) (BreakpointInfo, error)
	RemoveBreakpoint(ctx context.Context, id int) error
	ListBreakpoints(ctx context.Context) ([]BreakpointInfo, error)
	BreakpointLocations(ctx context.Context, file string, line, endLine, column, endColumn int) ([]Target, error)

	Run(ctx context.Context, action RunAction, opts RunOpts) (StopContext, error)
	Pause(ctx context.Context, threadID int) error

	Inspect(ctx context.Context, req InspectRequest) (EvaluatedValue, error)
	SetVariable(ctx context.Context, frameOrScope int, name, value string) (Variable, error)
	SetExpression(ctx context.Context, frameID int, expression, value string) (Variable, error)

	Threads(ctx context.Context) ([]Thread, error)
	StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]Frame, error)
	Scopes(ctx context.Context, frameID int) ([]Scope, error)

	MemoryRead(ctx context.Context, addr uint64, size int, offset int) ([]byte, error)
	MemoryWrite(ctx context.Context, addr uint64, data []byte) error
	Disassemble(ctx context.Context, addr uint64, count int, resolveSymbols bool) ([]Instr, error)

	Registers(ctx context.Context, threadID int) ([]Register, error)
	WriteRegister(ctx context.Context, threadID int, name string, value uint64) error

	Capabilities(ctx context.Context) (CapSet, error)
	Modules(ctx context.Context) ([]Module, error)
	LoadedSources(ctx context.Context) ([]Source, error)
	Source(ctx context.Context, sourceReference int) (string, error)
	Completions(ctx context.Context, text string, column, frameID int) ([]Target, error)
	ExceptionInfo(ctx context.Context, threadID int) (ExceptionInfo, error)
	GotoTargets(ctx context.Context, file string, line int) ([]Target, error)
	StepInTargets(ctx context.Context, frameID int) ([]Target, error)
	RestartFrame(ctx context.Context, frameID int) error
	Watchpoint(ctx context.Context, variable string, address uint64, access AccessType, frameID int) (BreakpointInfo, error)

	FindSymbol(ctx context.Context, name string) ([]SymbolInfo, error)
	VariableLocation(ctx context.Context, name string, frameID int) (Location, error)

	PollEvents(ctx context.Context) ([]Event, error)
	Cancel(ctx context.Context, requestID, progressID string) error
	TerminateThreads(ctx context.Context, tids []int) error
	Restart(ctx context.Context) error
	Stop(ctx context.Context, detach, terminateOnly bool) error
}
