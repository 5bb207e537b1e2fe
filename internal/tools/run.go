package tools

import (
	"context"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/toolerr"
)

// Run implements the `run` tool: continue/step/pause/goto/reverse actions,
// blocking until the session's next stop (spec.md §5: "pause, cancel, and
// stop... may be injected out of band" — session.Session.Call still
// serializes Run itself, but Pause/Cancel/Stop bypass it by calling the
// driver directly, matching that concurrency carve-out).
func (r *Registry) Run(ctx context.Context, args RunArgs) (StopContextResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return StopContextResult{}, err
	}
	if args.Action == "" {
		return StopContextResult{}, toolerr.New(toolerr.InvalidParams, "run: action is required")
	}

	opts := driver.RunOpts{
		Granularity: driver.Granularity(args.Granularity), File: args.File, Line: args.Line,
		TargetID: args.TargetID, ThreadID: args.ThreadID,
	}

	var sc driver.StopContext
	callErr := s.Call(func() error {
		var e error
		sc, e = s.Driver.Run(ctx, driver.RunAction(args.Action), opts)
		return e
	})
	if callErr != nil {
		return StopContextResult{}, mapDriverErr(callErr, "run")
	}
	s.SetLastStop(sc)
	return stopContextResult(sc), nil
}

// Pause implements the pause half of spec.md §5's out-of-band exceptions:
// it calls Driver.Pause directly rather than through Session.Call, so it can
// interrupt a Run already in flight.
func (r *Registry) Pause(ctx context.Context, args SessionArgs) (AckResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return AckResult{}, err
	}
	if perr := s.Driver.Pause(ctx, 0); perr != nil {
		return AckResult{}, mapDriverErr(perr, "pause")
	}
	return AckResult{OK: true}, nil
}
