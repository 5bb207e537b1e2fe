package tools

import (
	"context"
	"fmt"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/session"
	"github.com/agenttools/debugd/internal/toolerr"
)

// Breakpoint implements the `breakpoint` tool's five actions (spec.md
// §6.1's action-dispatched row).
func (r *Registry) Breakpoint(ctx context.Context, args BreakpointArgs) (any, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}

	switch args.Action {
	case "set":
		if args.File == "" || args.Line == 0 {
			return nil, toolerr.New(toolerr.InvalidParams, "breakpoint.set: file and line are required")
		}
		spec := driver.BreakpointSpec{
			Kind: driver.BreakpointLine, File: args.File, Line: args.Line,
			Condition: args.Condition, HitCondition: args.HitCondition, LogMessage: args.LogMessage,
		}
		return r.setBreakpoint(ctx, s, spec)

	case "set_function":
		if args.FunctionName == "" {
			return nil, toolerr.New(toolerr.InvalidParams, "breakpoint.set_function: function_name is required")
		}
		spec := driver.BreakpointSpec{
			Kind: driver.BreakpointFunction, FunctionName: args.FunctionName,
			Condition: args.Condition, HitCondition: args.HitCondition,
		}
		return r.setBreakpoint(ctx, s, spec)

	case "set_exception":
		spec := driver.BreakpointSpec{Kind: driver.BreakpointException, Filters: args.Filters}
		return r.setBreakpoint(ctx, s, spec)

	case "remove":
		callErr := s.Call(func() error { return s.Driver.RemoveBreakpoint(ctx, args.ID) })
		if callErr != nil {
			return nil, mapDriverErr(callErr, "breakpoint.remove")
		}
		return AckResult{OK: true}, nil

	case "list":
		var list []driver.BreakpointInfo
		callErr := s.Call(func() error {
			var e error
			list, e = s.Driver.ListBreakpoints(ctx)
			return e
		})
		if callErr != nil {
			return nil, mapDriverErr(callErr, "breakpoint.list")
		}
		out := make([]BreakpointResult, 0, len(list))
		for _, b := range list {
			out = append(out, breakpointResult(b))
		}
		return out, nil

	default:
		return nil, toolerr.New(toolerr.InvalidParams, "breakpoint: unknown action %q", args.Action)
	}
}

func (r *Registry) setBreakpoint(ctx context.Context, s *session.Session, spec driver.BreakpointSpec) (BreakpointResult, error) {
	var info driver.BreakpointInfo
	callErr := s.Call(func() error {
		var e error
		info, e = s.Driver.SetBreakpoint(ctx, spec)
		return e
	})
	if callErr != nil {
		return BreakpointResult{}, mapDriverErr(callErr, "breakpoint.set")
	}
	if !info.Verified {
		return breakpointResult(info), toolerr.New(toolerr.BreakpointUnverified, "breakpoint could not be resolved: %s", info.Message)
	}
	return breakpointResult(info), nil
}

// InstructionBreakpoint implements the `instruction_breakpoint` tool.
func (r *Registry) InstructionBreakpoint(ctx context.Context, args InstructionBreakpointArgs) (BreakpointResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return BreakpointResult{}, err
	}
	var addr uint64
	if _, serr := fmt.Sscanf(args.InstructionReference, "0x%x", &addr); serr != nil {
		return BreakpointResult{}, toolerr.New(toolerr.InvalidParams, "instruction_breakpoint: invalid instruction_reference %q", args.InstructionReference)
	}
	spec := driver.BreakpointSpec{
		Kind: driver.BreakpointInstruction, Address: addr + uint64(args.Offset),
		Condition: args.Condition, HitCondition: args.HitCondition,
	}
	return r.setBreakpoint(ctx, s, spec)
}

// BreakpointLocations implements the `breakpoint_locations` tool.
func (r *Registry) BreakpointLocations(ctx context.Context, args BreakpointLocationsArgs) ([]Location, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var targets []driver.Target
	callErr := s.Call(func() error {
		var e error
		targets, e = s.Driver.BreakpointLocations(ctx, args.Source, args.Line, args.EndLine, args.Column, args.EndColumn)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "breakpoint_locations")
	}
	out := make([]Location, 0, len(targets))
	for _, t := range targets {
		out = append(out, Location{Line: t.Line})
	}
	return out, nil
}

// Watchpoint implements the `watchpoint` tool.
func (r *Registry) Watchpoint(ctx context.Context, args WatchpointArgs) (BreakpointResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return BreakpointResult{}, err
	}
	if args.Variable == "" && args.Address == 0 {
		return BreakpointResult{}, toolerr.New(toolerr.InvalidParams, "watchpoint: variable or address is required")
	}
	access := driver.AccessType(args.AccessType)
	if access == "" {
		access = driver.AccessWrite
	}
	var info driver.BreakpointInfo
	callErr := s.Call(func() error {
		var e error
		info, e = s.Driver.Watchpoint(ctx, args.Variable, args.Address, access, args.FrameID)
		return e
	})
	if callErr != nil {
		return BreakpointResult{}, mapDriverErr(callErr, "watchpoint")
	}
	return breakpointResult(info), nil
}
