package daemonclient

import (
	"context"

	"github.com/agenttools/debugd/internal/mcptools"
	"github.com/agenttools/debugd/internal/tools"
)

var _ mcptools.API = (*RemoteRegistry)(nil)

// RemoteRegistry implements internal/mcptools.API by forwarding every call
// over a Client's socket connection to a running debugd daemon, rather
// than executing it in-process against a tools.Registry. cmd/mcp-debugd
// uses this so the MCP-facing process and the session-owning daemon can
// run as separate binaries.
type RemoteRegistry struct {
	Client *Client
}

func call[R any](c *Client, ctx context.Context, method string, params any) (R, error) {
	var out R
	err := c.Call(ctx, method, params, &out)
	return out, err
}

func (r *RemoteRegistry) Launch(ctx context.Context, args tools.LaunchArgs) (tools.SessionResult, error) {
	return call[tools.SessionResult](r.Client, ctx, "launch", args)
}

func (r *RemoteRegistry) Attach(ctx context.Context, args tools.AttachArgs) (tools.SessionResult, error) {
	return call[tools.SessionResult](r.Client, ctx, "attach", args)
}

func (r *RemoteRegistry) Sessions(ctx context.Context) ([]tools.SessionListResult, error) {
	return call[[]tools.SessionListResult](r.Client, ctx, "sessions", nil)
}

func (r *RemoteRegistry) Restart(ctx context.Context, args tools.SessionArgs) (tools.RestartedResult, error) {
	return call[tools.RestartedResult](r.Client, ctx, "restart", args)
}

func (r *RemoteRegistry) Stop(ctx context.Context, args tools.StopArgs) (struct{}, error) {
	return call[struct{}](r.Client, ctx, "stop", args)
}

func (r *RemoteRegistry) PollEvents(ctx context.Context, args tools.PollEventsArgs) ([]tools.EventResult, error) {
	return call[[]tools.EventResult](r.Client, ctx, "poll_events", args)
}

func (r *RemoteRegistry) Cancel(ctx context.Context, args tools.CancelArgs) (tools.CancelledResult, error) {
	return call[tools.CancelledResult](r.Client, ctx, "cancel", args)
}

func (r *RemoteRegistry) TerminateThreads(ctx context.Context, args tools.TerminateThreadsArgs) (tools.TerminatedResult, error) {
	return call[tools.TerminatedResult](r.Client, ctx, "terminate_threads", args)
}

func (r *RemoteRegistry) Capabilities(ctx context.Context, args tools.CapabilitiesArgs) (tools.CapabilitiesResult, error) {
	return call[tools.CapabilitiesResult](r.Client, ctx, "capabilities", args)
}

func (r *RemoteRegistry) Breakpoint(ctx context.Context, args tools.BreakpointArgs) (any, error) {
	return call[any](r.Client, ctx, "breakpoint", args)
}

func (r *RemoteRegistry) InstructionBreakpoint(ctx context.Context, args tools.InstructionBreakpointArgs) (tools.BreakpointResult, error) {
	return call[tools.BreakpointResult](r.Client, ctx, "instruction_breakpoint", args)
}

func (r *RemoteRegistry) BreakpointLocations(ctx context.Context, args tools.BreakpointLocationsArgs) ([]tools.Location, error) {
	return call[[]tools.Location](r.Client, ctx, "breakpoint_locations", args)
}

func (r *RemoteRegistry) Watchpoint(ctx context.Context, args tools.WatchpointArgs) (tools.BreakpointResult, error) {
	return call[tools.BreakpointResult](r.Client, ctx, "watchpoint", args)
}

func (r *RemoteRegistry) Run(ctx context.Context, args tools.RunArgs) (tools.StopContextResult, error) {
	return call[tools.StopContextResult](r.Client, ctx, "run", args)
}

func (r *RemoteRegistry) Pause(ctx context.Context, args tools.SessionArgs) (tools.AckResult, error) {
	return call[tools.AckResult](r.Client, ctx, "pause", args)
}

func (r *RemoteRegistry) Inspect(ctx context.Context, args tools.InspectArgs) (tools.InspectResult, error) {
	return call[tools.InspectResult](r.Client, ctx, "inspect", args)
}

func (r *RemoteRegistry) SetVariable(ctx context.Context, args tools.SetVariableArgs) (tools.VariableResult, error) {
	return call[tools.VariableResult](r.Client, ctx, "set_variable", args)
}

func (r *RemoteRegistry) SetExpression(ctx context.Context, args tools.SetExpressionArgs) (tools.VariableResult, error) {
	return call[tools.VariableResult](r.Client, ctx, "set_expression", args)
}

func (r *RemoteRegistry) Threads(ctx context.Context, args tools.SessionArgs) ([]tools.ThreadResult, error) {
	return call[[]tools.ThreadResult](r.Client, ctx, "threads", args)
}

func (r *RemoteRegistry) StackTrace(ctx context.Context, args tools.FrameArgs) ([]tools.FrameResult, error) {
	return call[[]tools.FrameResult](r.Client, ctx, "stacktrace", args)
}

func (r *RemoteRegistry) Scopes(ctx context.Context, args tools.ScopesArgs) ([]tools.ScopeResult, error) {
	return call[[]tools.ScopeResult](r.Client, ctx, "scopes", args)
}

func (r *RemoteRegistry) Modules(ctx context.Context, args tools.SessionArgs) ([]tools.ModuleResult, error) {
	return call[[]tools.ModuleResult](r.Client, ctx, "modules", args)
}

func (r *RemoteRegistry) LoadedSources(ctx context.Context, args tools.SessionArgs) ([]tools.SourceResult, error) {
	return call[[]tools.SourceResult](r.Client, ctx, "loaded_sources", args)
}

func (r *RemoteRegistry) Source(ctx context.Context, args tools.ReadSourceArgs) (string, error) {
	return call[string](r.Client, ctx, "source", args)
}

func (r *RemoteRegistry) Completions(ctx context.Context, args tools.CompletionsArgs) ([]tools.TargetResult, error) {
	return call[[]tools.TargetResult](r.Client, ctx, "completions", args)
}

func (r *RemoteRegistry) ExceptionInfo(ctx context.Context, args tools.ExceptionInfoArgs) (tools.ExceptionInfoResult, error) {
	return call[tools.ExceptionInfoResult](r.Client, ctx, "exception_info", args)
}

func (r *RemoteRegistry) GotoTargets(ctx context.Context, args tools.GotoTargetsArgs) ([]tools.TargetResult, error) {
	return call[[]tools.TargetResult](r.Client, ctx, "goto_targets", args)
}

func (r *RemoteRegistry) StepInTargets(ctx context.Context, args tools.ScopesArgs) ([]tools.TargetResult, error) {
	return call[[]tools.TargetResult](r.Client, ctx, "step_in_targets", args)
}

func (r *RemoteRegistry) RestartFrame(ctx context.Context, args tools.RestartFrameArgs) (tools.AckResult, error) {
	return call[tools.AckResult](r.Client, ctx, "restart_frame", args)
}

func (r *RemoteRegistry) Memory(ctx context.Context, args tools.MemoryArgs) (tools.MemoryResult, error) {
	return call[tools.MemoryResult](r.Client, ctx, "memory", args)
}

func (r *RemoteRegistry) Disassemble(ctx context.Context, args tools.DisassembleArgs) ([]tools.InstrResult, error) {
	return call[[]tools.InstrResult](r.Client, ctx, "disassemble", args)
}

func (r *RemoteRegistry) Registers(ctx context.Context, args tools.RegistersArgs) ([]tools.RegisterResult, error) {
	return call[[]tools.RegisterResult](r.Client, ctx, "registers", args)
}

func (r *RemoteRegistry) WriteRegister(ctx context.Context, args tools.WriteRegisterArgs) (tools.AckResult, error) {
	return call[tools.AckResult](r.Client, ctx, "write_register", args)
}

func (r *RemoteRegistry) FindSymbol(ctx context.Context, args tools.FindSymbolArgs) ([]tools.SymbolResult, error) {
	return call[[]tools.SymbolResult](r.Client, ctx, "find_symbol", args)
}

func (r *RemoteRegistry) VariableLocation(ctx context.Context, args tools.VariableLocationArgs) (tools.LocationResult, error) {
	return call[tools.LocationResult](r.Client, ctx, "variable_location", args)
}
