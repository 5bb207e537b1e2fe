package tools

import (
	"context"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/toolerr"
)

func (r *Registry) Threads(ctx context.Context, args SessionArgs) ([]ThreadResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var threads []driver.Thread
	callErr := s.Call(func() error {
		var e error
		threads, e = s.Driver.Threads(ctx)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "threads")
	}
	out := make([]ThreadResult, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadResult{ID: t.ID, Name: t.Name})
	}
	return out, nil
}

func (r *Registry) StackTrace(ctx context.Context, args FrameArgs) ([]FrameResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var frames []driver.Frame
	callErr := s.Call(func() error {
		var e error
		frames, e = s.Driver.StackTrace(ctx, args.ThreadID, args.StartFrame, args.Levels)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "stacktrace")
	}
	out := make([]FrameResult, 0, len(frames))
	for _, f := range frames {
		out = append(out, FrameResult{
			ID: f.ID, Name: f.Name, File: f.File, Line: f.Line, Column: f.Column,
			PC: f.PC, Presentation: f.Presentation,
		})
	}
	return out, nil
}

func (r *Registry) Scopes(ctx context.Context, args ScopesArgs) ([]ScopeResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var scopes []driver.Scope
	callErr := s.Call(func() error {
		var e error
		scopes, e = s.Driver.Scopes(ctx, args.FrameID)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "scopes")
	}
	out := make([]ScopeResult, 0, len(scopes))
	for _, sc := range scopes {
		out = append(out, ScopeResult{Name: sc.Name, VariablesReference: sc.VariablesReference, Expensive: sc.Expensive})
	}
	return out, nil
}

func (r *Registry) Modules(ctx context.Context, args SessionArgs) ([]ModuleResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var mods []driver.Module
	callErr := s.Call(func() error {
		var e error
		mods, e = s.Driver.Modules(ctx)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "modules")
	}
	out := make([]ModuleResult, 0, len(mods))
	for _, m := range mods {
		out = append(out, ModuleResult{ID: m.ID, Name: m.Name, Path: m.Path, Symbols: m.Symbols})
	}
	return out, nil
}

func (r *Registry) LoadedSources(ctx context.Context, args SessionArgs) ([]SourceResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var srcs []driver.Source
	callErr := s.Call(func() error {
		var e error
		srcs, e = s.Driver.LoadedSources(ctx)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "loaded_sources")
	}
	out := make([]SourceResult, 0, len(srcs))
	for _, src := range srcs {
		out = append(out, SourceResult{Path: src.Path, Reference: src.Reference})
	}
	return out, nil
}

func (r *Registry) Source(ctx context.Context, args ReadSourceArgs) (string, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return "", err
	}
	var content string
	callErr := s.Call(func() error {
		var e error
		content, e = s.Driver.Source(ctx, args.SourceReference)
		return e
	})
	if callErr != nil {
		return "", mapDriverErr(callErr, "source")
	}
	return content, nil
}

func (r *Registry) Completions(ctx context.Context, args CompletionsArgs) ([]TargetResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var targets []driver.Target
	callErr := s.Call(func() error {
		var e error
		targets, e = s.Driver.Completions(ctx, args.Text, args.Column, args.FrameID)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "completions")
	}
	return targetResults(targets), nil
}

func (r *Registry) ExceptionInfo(ctx context.Context, args ExceptionInfoArgs) (ExceptionInfoResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return ExceptionInfoResult{}, err
	}
	var info driver.ExceptionInfo
	callErr := s.Call(func() error {
		var e error
		info, e = s.Driver.ExceptionInfo(ctx, args.ThreadID)
		return e
	})
	if callErr != nil {
		return ExceptionInfoResult{}, mapDriverErr(callErr, "exception_info")
	}
	return ExceptionInfoResult{ExceptionID: info.ExceptionID, Description: info.Description, BreakMode: info.BreakMode, Details: info.Details}, nil
}

func (r *Registry) GotoTargets(ctx context.Context, args GotoTargetsArgs) ([]TargetResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	if args.File == "" {
		return nil, toolerr.New(toolerr.InvalidParams, "goto_targets: file is required")
	}
	var targets []driver.Target
	callErr := s.Call(func() error {
		var e error
		targets, e = s.Driver.GotoTargets(ctx, args.File, args.Line)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "goto_targets")
	}
	return targetResults(targets), nil
}

func (r *Registry) StepInTargets(ctx context.Context, args ScopesArgs) ([]TargetResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var targets []driver.Target
	callErr := s.Call(func() error {
		var e error
		targets, e = s.Driver.StepInTargets(ctx, args.FrameID)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "step_in_targets")
	}
	return targetResults(targets), nil
}

func (r *Registry) RestartFrame(ctx context.Context, args RestartFrameArgs) (AckResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return AckResult{}, err
	}
	callErr := s.Call(func() error { return s.Driver.RestartFrame(ctx, args.FrameID) })
	if callErr != nil {
		return AckResult{}, mapDriverErr(callErr, "restart_frame")
	}
	return AckResult{OK: true}, nil
}

func targetResults(targets []driver.Target) []TargetResult {
	out := make([]TargetResult, 0, len(targets))
	for _, t := range targets {
		out = append(out, TargetResult{ID: t.ID, Label: t.Label, Line: t.Line})
	}
	return out
}
