package daemon

import (
	"context"
	"encoding/json"

	"github.com/agenttools/debugd/internal/tools"
)

// handlerFunc unmarshals raw JSON-RPC params, invokes the matching
// Registry method, and returns its result for JSON encoding.
type handlerFunc func(ctx context.Context, reg *tools.Registry, params json.RawMessage) (any, error)

func unmarshalParams[A any](params json.RawMessage) (A, error) {
	var a A
	if len(params) == 0 {
		return a, nil
	}
	err := json.Unmarshal(params, &a)
	return a, err
}

func handler[A any, R any](fn func(*tools.Registry) func(context.Context, A) (R, error)) handlerFunc {
	return func(ctx context.Context, reg *tools.Registry, params json.RawMessage) (any, error) {
		args, err := unmarshalParams[A](params)
		if err != nil {
			return nil, err
		}
		return fn(reg)(ctx, args)
	}
}

// methods is the tool-name → handler table for every tool of spec.md §6.1.
var methods = map[string]handlerFunc{
	"launch": handler(func(r *tools.Registry) func(context.Context, tools.LaunchArgs) (tools.SessionResult, error) { return r.Launch }),
	"attach": handler(func(r *tools.Registry) func(context.Context, tools.AttachArgs) (tools.SessionResult, error) { return r.Attach }),
	"sessions": func(ctx context.Context, reg *tools.Registry, _ json.RawMessage) (any, error) {
		return reg.Sessions(ctx)
	},
	"restart":      handler(func(r *tools.Registry) func(context.Context, tools.SessionArgs) (tools.RestartedResult, error) { return r.Restart }),
	"stop":         handler(func(r *tools.Registry) func(context.Context, tools.StopArgs) (struct{}, error) { return r.Stop }),
	"poll_events":  handler(func(r *tools.Registry) func(context.Context, tools.PollEventsArgs) ([]tools.EventResult, error) { return r.PollEvents }),
	"cancel":       handler(func(r *tools.Registry) func(context.Context, tools.CancelArgs) (tools.CancelledResult, error) { return r.Cancel }),
	"terminate_threads": handler(func(r *tools.Registry) func(context.Context, tools.TerminateThreadsArgs) (tools.TerminatedResult, error) {
		return r.TerminateThreads
	}),
	"capabilities": handler(func(r *tools.Registry) func(context.Context, tools.CapabilitiesArgs) (tools.CapabilitiesResult, error) { return r.Capabilities }),

	"breakpoint":             handler(func(r *tools.Registry) func(context.Context, tools.BreakpointArgs) (any, error) { return r.Breakpoint }),
	"instruction_breakpoint": handler(func(r *tools.Registry) func(context.Context, tools.InstructionBreakpointArgs) (tools.BreakpointResult, error) { return r.InstructionBreakpoint }),
	"breakpoint_locations":   handler(func(r *tools.Registry) func(context.Context, tools.BreakpointLocationsArgs) ([]tools.Location, error) { return r.BreakpointLocations }),
	"watchpoint":             handler(func(r *tools.Registry) func(context.Context, tools.WatchpointArgs) (tools.BreakpointResult, error) { return r.Watchpoint }),

	"run":   handler(func(r *tools.Registry) func(context.Context, tools.RunArgs) (tools.StopContextResult, error) { return r.Run }),
	"pause": handler(func(r *tools.Registry) func(context.Context, tools.SessionArgs) (tools.AckResult, error) { return r.Pause }),

	"inspect":        handler(func(r *tools.Registry) func(context.Context, tools.InspectArgs) (tools.InspectResult, error) { return r.Inspect }),
	"set_variable":   handler(func(r *tools.Registry) func(context.Context, tools.SetVariableArgs) (tools.VariableResult, error) { return r.SetVariable }),
	"set_expression": handler(func(r *tools.Registry) func(context.Context, tools.SetExpressionArgs) (tools.VariableResult, error) { return r.SetExpression }),

	"threads":         handler(func(r *tools.Registry) func(context.Context, tools.SessionArgs) ([]tools.ThreadResult, error) { return r.Threads }),
	"stacktrace":      handler(func(r *tools.Registry) func(context.Context, tools.FrameArgs) ([]tools.FrameResult, error) { return r.StackTrace }),
	"scopes":          handler(func(r *tools.Registry) func(context.Context, tools.ScopesArgs) ([]tools.ScopeResult, error) { return r.Scopes }),
	"modules":         handler(func(r *tools.Registry) func(context.Context, tools.SessionArgs) ([]tools.ModuleResult, error) { return r.Modules }),
	"loaded_sources":  handler(func(r *tools.Registry) func(context.Context, tools.SessionArgs) ([]tools.SourceResult, error) { return r.LoadedSources }),
	"source":          handler(func(r *tools.Registry) func(context.Context, tools.ReadSourceArgs) (string, error) { return r.Source }),
	"completions":     handler(func(r *tools.Registry) func(context.Context, tools.CompletionsArgs) ([]tools.TargetResult, error) { return r.Completions }),
	"exception_info":  handler(func(r *tools.Registry) func(context.Context, tools.ExceptionInfoArgs) (tools.ExceptionInfoResult, error) { return r.ExceptionInfo }),
	"goto_targets":    handler(func(r *tools.Registry) func(context.Context, tools.GotoTargetsArgs) ([]tools.TargetResult, error) { return r.GotoTargets }),
	"step_in_targets": handler(func(r *tools.Registry) func(context.Context, tools.ScopesArgs) ([]tools.TargetResult, error) { return r.StepInTargets }),
	"restart_frame":   handler(func(r *tools.Registry) func(context.Context, tools.RestartFrameArgs) (tools.AckResult, error) { return r.RestartFrame }),

	"memory":            handler(func(r *tools.Registry) func(context.Context, tools.MemoryArgs) (tools.MemoryResult, error) { return r.Memory }),
	"disassemble":       handler(func(r *tools.Registry) func(context.Context, tools.DisassembleArgs) ([]tools.InstrResult, error) { return r.Disassemble }),
	"registers":         handler(func(r *tools.Registry) func(context.Context, tools.RegistersArgs) ([]tools.RegisterResult, error) { return r.Registers }),
	"write_register":    handler(func(r *tools.Registry) func(context.Context, tools.WriteRegisterArgs) (tools.AckResult, error) { return r.WriteRegister }),
	"find_symbol":       handler(func(r *tools.Registry) func(context.Context, tools.FindSymbolArgs) ([]tools.SymbolResult, error) { return r.FindSymbol }),
	"variable_location": handler(func(r *tools.Registry) func(context.Context, tools.VariableLocationArgs) (tools.LocationResult, error) { return r.VariableLocation }),
}
