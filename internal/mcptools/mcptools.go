// Package mcptools exposes internal/tools.Registry's operations as MCP
// tools, following the original repo's registration pattern (one
// mcp.AddTool call per tool, a thin handler that forwards to a
// session-scoped method and renders the result as text).
package mcptools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agenttools/debugd/internal/tools"
)

// wrap adapts a Registry method of shape func(ctx, A) (R, error) into an
// MCP tool handler. Errors (including *toolerr.Error) are returned
// verbatim; the SDK renders them as tool-call failures carrying the
// error's message. Results are rendered as JSON text content — callers
// needing structured access use the JSON themselves since MCP's content
// model has no first-class struct payload.
func wrap[A any, R any](fn func(context.Context, A) (R, error)) func(context.Context, *mcp.ServerSession, *mcp.CallToolParamsFor[A]) (*mcp.CallToolResultFor[any], error) {
	return func(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[A]) (*mcp.CallToolResultFor[any], error) {
		result, err := fn(ctx, params.Arguments)
		if err != nil {
			return nil, err
		}
		body, merr := json.Marshal(result)
		if merr != nil {
			return nil, merr
		}
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		}, nil
	}
}

// NoArgs is the parameter type for tools that take none (spec.md's
// `sessions` tool).
type NoArgs struct{}

func wrapNoArgs[R any](fn func(context.Context) (R, error)) func(context.Context, *mcp.ServerSession, *mcp.CallToolParamsFor[NoArgs]) (*mcp.CallToolResultFor[any], error) {
	return func(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[NoArgs]) (*mcp.CallToolResultFor[any], error) {
		result, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		body, merr := json.Marshal(result)
		if merr != nil {
			return nil, merr
		}
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		}, nil
	}
}

// API is the set of tool operations RegisterAll wires onto an MCP server.
// internal/tools.Registry satisfies it directly (in-process use, e.g. a
// combined debugd+MCP binary); internal/daemonclient.RemoteRegistry
// satisfies it by forwarding each call over the daemon's JSON-RPC socket
// (cmd/mcp-debugd's use) — same registrations, different transport.
type API interface {
	Launch(context.Context, tools.LaunchArgs) (tools.SessionResult, error)
	Attach(context.Context, tools.AttachArgs) (tools.SessionResult, error)
	Sessions(context.Context) ([]tools.SessionListResult, error)
	Restart(context.Context, tools.SessionArgs) (tools.RestartedResult, error)
	Stop(context.Context, tools.StopArgs) (struct{}, error)
	PollEvents(context.Context, tools.PollEventsArgs) ([]tools.EventResult, error)
	Cancel(context.Context, tools.CancelArgs) (tools.CancelledResult, error)
	TerminateThreads(context.Context, tools.TerminateThreadsArgs) (tools.TerminatedResult, error)
	Capabilities(context.Context, tools.CapabilitiesArgs) (tools.CapabilitiesResult, error)

	Breakpoint(context.Context, tools.BreakpointArgs) (any, error)
	InstructionBreakpoint(context.Context, tools.InstructionBreakpointArgs) (tools.BreakpointResult, error)
	BreakpointLocations(context.Context, tools.BreakpointLocationsArgs) ([]tools.Location, error)
	Watchpoint(context.Context, tools.WatchpointArgs) (tools.BreakpointResult, error)

	Run(context.Context, tools.RunArgs) (tools.StopContextResult, error)
	Pause(context.Context, tools.SessionArgs) (tools.AckResult, error)

	Inspect(context.Context, tools.InspectArgs) (tools.InspectResult, error)
	SetVariable(context.Context, tools.SetVariableArgs) (tools.VariableResult, error)
	SetExpression(context.Context, tools.SetExpressionArgs) (tools.VariableResult, error)

	Threads(context.Context, tools.SessionArgs) ([]tools.ThreadResult, error)
	StackTrace(context.Context, tools.FrameArgs) ([]tools.FrameResult, error)
	Scopes(context.Context, tools.ScopesArgs) ([]tools.ScopeResult, error)
	Modules(context.Context, tools.SessionArgs) ([]tools.ModuleResult, error)
	LoadedSources(context.Context, tools.SessionArgs) ([]tools.SourceResult, error)
	Source(context.Context, tools.ReadSourceArgs) (string, error)
	Completions(context.Context, tools.CompletionsArgs) ([]tools.TargetResult, error)
	ExceptionInfo(context.Context, tools.ExceptionInfoArgs) (tools.ExceptionInfoResult, error)
	GotoTargets(context.Context, tools.GotoTargetsArgs) ([]tools.TargetResult, error)
	StepInTargets(context.Context, tools.ScopesArgs) ([]tools.TargetResult, error)
	RestartFrame(context.Context, tools.RestartFrameArgs) (tools.AckResult, error)

	Memory(context.Context, tools.MemoryArgs) (tools.MemoryResult, error)
	Disassemble(context.Context, tools.DisassembleArgs) ([]tools.InstrResult, error)
	Registers(context.Context, tools.RegistersArgs) ([]tools.RegisterResult, error)
	WriteRegister(context.Context, tools.WriteRegisterArgs) (tools.AckResult, error)
	FindSymbol(context.Context, tools.FindSymbolArgs) ([]tools.SymbolResult, error)
	VariableLocation(context.Context, tools.VariableLocationArgs) (tools.LocationResult, error)
}

var _ API = (*tools.Registry)(nil)

// RegisterAll registers every tool of spec.md §6.1 against reg.
func RegisterAll(server *mcp.Server, reg API) {
	// Session lifecycle
	mcp.AddTool(server, &mcp.Tool{
		Name:        "launch",
		Description: "Launch a program under a debugger session (native ptrace/DWARF or an external DAP/CDP adapter, chosen by language).",
	}, wrap(reg.Launch))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "attach",
		Description: "Attach a debugger session to an already-running process (by pid) or a listening adapter (by port).",
	}, wrap(reg.Attach))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sessions",
		Description: "List all active debugging sessions.",
	}, wrapNoArgs(reg.Sessions))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "restart",
		Description: "Restart a session's debug target in place.",
	}, wrap(reg.Restart))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "stop",
		Description: "Terminate a session, optionally detaching instead of killing the target.",
	}, wrap(reg.Stop))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "poll_events",
		Description: "Drain buffered asynchronous events (stopped, exited, output, breakpoint changes) for one session or all sessions.",
	}, wrap(reg.PollEvents))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel",
		Description: "Cancel an in-flight request or progress notification.",
	}, wrap(reg.Cancel))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "terminate_threads",
		Description: "Terminate specific threads within a session without tearing down the whole session.",
	}, wrap(reg.TerminateThreads))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "capabilities",
		Description: "Report the capability set of a session's underlying driver (DAP-style capability flags).",
	}, wrap(reg.Capabilities))

	// Breakpoints
	mcp.AddTool(server, &mcp.Tool{
		Name:        "breakpoint",
		Description: "Set (by file:line, function, or exception filter), remove, or list breakpoints. Action selects the operation.",
	}, wrap(reg.Breakpoint))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "instruction_breakpoint",
		Description: "Set a breakpoint at a raw instruction address (native targets, or adapters that support instruction breakpoints).",
	}, wrap(reg.InstructionBreakpoint))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "breakpoint_locations",
		Description: "Query valid breakpoint locations within a source range.",
	}, wrap(reg.BreakpointLocations))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "watchpoint",
		Description: "Set a data breakpoint on a variable or memory address (DAP adapters that support data breakpoints; native and CDP targets report NotSupported).",
	}, wrap(reg.Watchpoint))

	// Execution control
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run",
		Description: "Continue, step (over/in/out), or goto within a session; blocks until the next stop and returns its context.",
	}, wrap(reg.Run))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pause",
		Description: "Pause a running session out of band, interrupting an in-flight run.",
	}, wrap(reg.Pause))

	// Inspection
	mcp.AddTool(server, &mcp.Tool{
		Name:        "inspect",
		Description: "Evaluate an expression, expand a variable reference, or dump a scope.",
	}, wrap(reg.Inspect))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_variable",
		Description: "Assign a new value to a variable visible in a stack frame's scopes.",
	}, wrap(reg.SetVariable))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_expression",
		Description: "Assign a new value via an lvalue expression.",
	}, wrap(reg.SetExpression))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "threads",
		Description: "List the threads (or the synthetic single thread) of a session.",
	}, wrap(reg.Threads))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "stacktrace",
		Description: "Fetch the call stack of a thread at its current stop.",
	}, wrap(reg.StackTrace))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "scopes",
		Description: "List the variable scopes visible in a stack frame.",
	}, wrap(reg.Scopes))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "modules",
		Description: "List loaded modules/shared objects/compilation units.",
	}, wrap(reg.Modules))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "loaded_sources",
		Description: "List source files known to the debug target.",
	}, wrap(reg.LoadedSources))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "source",
		Description: "Fetch source text by reference, for sources with no on-disk path.",
	}, wrap(reg.Source))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "completions",
		Description: "Offer expression completions at a frame and cursor position.",
	}, wrap(reg.Completions))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "exception_info",
		Description: "Describe the exception that caused the current stop.",
	}, wrap(reg.ExceptionInfo))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "goto_targets",
		Description: "List valid jump targets at a file:line for the goto run action.",
	}, wrap(reg.GotoTargets))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "step_in_targets",
		Description: "List candidate call targets for a granular step-in at a frame.",
	}, wrap(reg.StepInTargets))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "restart_frame",
		Description: "Restart execution at an older stack frame, discarding newer frames (DAP adapters only).",
	}, wrap(reg.RestartFrame))

	// Low-level
	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory",
		Description: "Read or write raw process memory at an address (native targets, or adapters that support memory requests).",
	}, wrap(reg.Memory))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "disassemble",
		Description: "Disassemble instructions starting at an address (adapters that support disassembly; native targets report NotSupported).",
	}, wrap(reg.Disassemble))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "registers",
		Description: "Read the CPU register file of a thread (native targets only).",
	}, wrap(reg.Registers))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "write_register",
		Description: "Write a CPU register of a thread (native targets only).",
	}, wrap(reg.WriteRegister))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_symbol",
		Description: "Resolve a symbol name to its address and size via debug info (native targets only).",
	}, wrap(reg.FindSymbol))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "variable_location",
		Description: "Resolve where a variable lives — register, stack offset, or address (native targets only).",
	}, wrap(reg.VariableLocation))
}
