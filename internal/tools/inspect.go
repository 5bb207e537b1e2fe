package tools

import (
	"context"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/toolerr"
)

// Inspect implements the `inspect` tool: exactly one of expression,
// variable_ref, or scope must be set (spec.md §3, "exactly one of
// Expression, VariableRef, or Scope must be set").
func (r *Registry) Inspect(ctx context.Context, args InspectArgs) (InspectResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return InspectResult{}, err
	}
	set := 0
	if args.Expression != "" {
		set++
	}
	if args.VariableRef != 0 {
		set++
	}
	if args.Scope != "" {
		set++
	}
	if set != 1 {
		return InspectResult{}, toolerr.New(toolerr.InvalidParams, "inspect: exactly one of expression, variable_ref, scope is required")
	}

	req := driver.InspectRequest{
		Expression: args.Expression, VariableRef: args.VariableRef,
		Context: args.Context, FrameID: args.FrameID,
	}
	var v driver.EvaluatedValue
	callErr := s.Call(func() error {
		var e error
		v, e = s.Driver.Inspect(ctx, req)
		return e
	})
	if callErr != nil {
		return InspectResult{}, mapDriverErr(callErr, "inspect")
	}
	return inspectResult(v), nil
}

// SetVariable implements the `set_variable` tool.
func (r *Registry) SetVariable(ctx context.Context, args SetVariableArgs) (VariableResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return VariableResult{}, err
	}
	if args.Variable == "" {
		return VariableResult{}, toolerr.New(toolerr.InvalidParams, "set_variable: variable is required")
	}
	var v driver.Variable
	callErr := s.Call(func() error {
		var e error
		v, e = s.Driver.SetVariable(ctx, args.FrameID, args.Variable, args.Value)
		return e
	})
	if callErr != nil {
		return VariableResult{}, mapDriverErr(callErr, "set_variable")
	}
	return VariableResult{Name: v.Name, Value: v.Value, Type: v.Type}, nil
}

// SetExpression implements the `set_expression` tool.
func (r *Registry) SetExpression(ctx context.Context, args SetExpressionArgs) (VariableResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return VariableResult{}, err
	}
	if args.Expression == "" {
		return VariableResult{}, toolerr.New(toolerr.InvalidParams, "set_expression: expression is required")
	}
	var v driver.Variable
	callErr := s.Call(func() error {
		var e error
		v, e = s.Driver.SetExpression(ctx, args.FrameID, args.Expression, args.Value)
		return e
	})
	if callErr != nil {
		return VariableResult{}, mapDriverErr(callErr, "set_expression")
	}
	return VariableResult{Name: v.Name, Value: v.Value, Type: v.Type}, nil
}
