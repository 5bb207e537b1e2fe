package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/adapterdriver"
	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/evaluator"
	"github.com/agenttools/debugd/internal/nativeengine"
	"github.com/agenttools/debugd/internal/session"
	"github.com/agenttools/debugd/internal/toolerr"
)

// Registry implements every tool of spec.md §6.1 against a session.Manager.
// Each method validates its arguments, resolves the session, serializes the
// call through session.Session.Call (pause, cancel and stop reach the driver
// outside it), and maps driver errors to toolerr
// kinds — the single place spec.md §7's error policy is enforced.
type Registry struct {
	sessions *session.Manager
	spawner  *adapterdriver.Spawner
	manifests map[string]adapterdriver.Manifest
	logger   *zap.Logger
}

func New(sessions *session.Manager, spawner *adapterdriver.Spawner, manifests map[string]adapterdriver.Manifest, logger *zap.Logger) *Registry {
	return &Registry{sessions: sessions, spawner: spawner, manifests: manifests, logger: logger}
}

func (r *Registry) resolve(id string) (*session.Session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, toolerr.New(toolerr.SessionNotFound, "no session %q", id)
	}
	return s, nil
}

func divModeFor(language string) evaluator.DivisionMode {
	switch language {
	case "python":
		return evaluator.DivisionFloor
	case "javascript", "node", "typescript":
		return evaluator.DivisionFloat
	default:
		return evaluator.DivisionTruncating
	}
}

func (r *Registry) manifestFor(language string) adapterdriver.Manifest {
	if m, ok := r.manifests[language]; ok {
		return m
	}
	return adapterdriver.Manifest{Type: "native"}
}

// Launch implements the `launch` tool.
func (r *Registry) Launch(ctx context.Context, args LaunchArgs) (SessionResult, error) {
	if args.Program == "" {
		return SessionResult{}, toolerr.New(toolerr.InvalidParams, "launch: program is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	m := r.manifestFor(args.Language)
	d, kind, err := r.driverFor(ctx, m, args.Language)
	if err != nil {
		return SessionResult{}, toolerr.Wrap(toolerr.InternalError, err, "launch: spawn adapter")
	}

	s, err := r.sessions.Register(d, kind, args.Language, args.Program)
	if err != nil {
		return SessionResult{}, toolerr.Wrap(toolerr.InternalError, err, "launch: register session")
	}

	params := driver.LaunchParams{
		Program: args.Program, Args: args.Args, Env: args.Env, Cwd: args.Cwd,
		StopOnEntry: args.StopOnEntry, Language: args.Language,
	}
	var handle driver.SessionHandle
	callErr := s.Call(func() error {
		var lerr error
		handle, lerr = d.Launch(ctx, params)
		return lerr
	})
	if callErr != nil {
		_ = r.sessions.Terminate(ctx, s.ID, false, true)
		return SessionResult{}, toolerr.Wrap(toolerr.InternalError, callErr, "launch: adapter launch failed")
	}
	_ = handle
	s.SetStatus(session.StatusRunning)

	if args.Group != "" {
		r.sessions.Group(args.Group, []string{s.ID}, args.StopAll)
	}
	return SessionResult{SessionID: s.ID, Status: string(s.Status())}, nil
}

// Attach implements the `attach` tool.
func (r *Registry) Attach(ctx context.Context, args AttachArgs) (SessionResult, error) {
	if args.PID == 0 && args.Port == 0 {
		return SessionResult{}, toolerr.New(toolerr.InvalidParams, "attach: pid or port is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	m := r.manifestFor(args.Language)
	d, kind, err := r.driverFor(ctx, m, args.Language)
	if err != nil {
		return SessionResult{}, toolerr.Wrap(toolerr.InternalError, err, "attach: spawn adapter")
	}

	s, err := r.sessions.Register(d, kind, args.Language, "")
	if err != nil {
		return SessionResult{}, toolerr.Wrap(toolerr.InternalError, err, "attach: register session")
	}

	params := driver.AttachParams{PID: args.PID, Port: args.Port, Language: args.Language}
	callErr := s.Call(func() error {
		_, lerr := d.Attach(ctx, params)
		return lerr
	})
	if callErr != nil {
		_ = r.sessions.Terminate(ctx, s.ID, true, false)
		return SessionResult{}, toolerr.Wrap(toolerr.InternalError, callErr, "attach: adapter attach failed")
	}
	s.SetStatus(session.StatusRunning)

	if args.Group != "" {
		r.sessions.Group(args.Group, []string{s.ID}, args.StopAll)
	}
	return SessionResult{SessionID: s.ID, Status: string(s.Status())}, nil
}

func (r *Registry) driverFor(ctx context.Context, m adapterdriver.Manifest, language string) (driver.Driver, session.DriverKind, error) {
	if m.Type == "native" {
		return nativeengine.New(divModeFor(language)), session.DriverNative, nil
	}
	spawned, err := r.spawner.Spawn(ctx, m)
	if err != nil {
		return nil, "", err
	}
	return spawned.Driver, session.DriverKind(spawned.Kind), nil
}

// Sessions implements the `sessions` tool.
func (r *Registry) Sessions(ctx context.Context) ([]SessionListResult, error) {
	out := make([]SessionListResult, 0)
	for _, s := range r.sessions.List() {
		info := s.Info()
		out = append(out, SessionListResult{ID: info.ID, Status: info.Status, DriverType: info.DriverType})
	}
	return out, nil
}

// Restart implements the `restart` tool.
func (r *Registry) Restart(ctx context.Context, args SessionArgs) (RestartedResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return RestartedResult{}, err
	}
	callErr := s.Call(func() error { return s.Driver.Restart(ctx) })
	if callErr != nil {
		return RestartedResult{}, mapDriverErr(callErr, "restart")
	}
	return RestartedResult{Restarted: true}, nil
}

// Stop implements the `stop` tool.
func (r *Registry) Stop(ctx context.Context, args StopArgs) (struct{}, error) {
	if _, err := r.resolve(args.SessionID); err != nil {
		return struct{}{}, err
	}
	if err := r.sessions.Terminate(ctx, args.SessionID, args.Detach, args.TerminateOnly); err != nil {
		return struct{}{}, toolerr.Wrap(toolerr.InternalError, err, "stop")
	}
	return struct{}{}, nil
}

// PollEvents implements the `poll_events` tool. With no session_id it drains
// every session; events are tagged with their originating session id.
func (r *Registry) PollEvents(ctx context.Context, args PollEventsArgs) ([]EventResult, error) {
	var sessions []*session.Session
	if args.SessionID != "" {
		s, err := r.resolve(args.SessionID)
		if err != nil {
			return nil, err
		}
		sessions = []*session.Session{s}
	} else {
		sessions = r.sessions.List()
	}

	var out []EventResult
	for _, s := range sessions {
		var evs []driver.Event
		err := s.Call(func() error {
			var e error
			evs, e = s.Driver.PollEvents(ctx)
			return e
		})
		if err != nil {
			r.logger.Warn("poll_events failed for session", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		for _, e := range evs {
			if e.Kind == "exited" || e.Kind == "terminated" {
				s.SetLastStop(driver.StopContext{Reason: driver.StopExit})
			}
			out = append(out, EventResult{Kind: e.Kind, Body: e.Body, SessionID: s.ID, OccurredAt: e.OccurredAt.Format(time.RFC3339Nano)})
		}
	}
	return out, nil
}

// Cancel implements the `cancel` tool. It has no session scope in spec.md's
// table, so it is forwarded to every live session's driver — a no-op
// request_id is harmless for drivers that don't recognize it.
func (r *Registry) Cancel(ctx context.Context, args CancelArgs) (CancelledResult, error) {
	for _, s := range r.sessions.List() {
		_ = s.Driver.Cancel(ctx, args.RequestID, args.ProgressID)
	}
	return CancelledResult{Cancelled: true}, nil
}

// TerminateThreads implements the `terminate_threads` tool.
func (r *Registry) TerminateThreads(ctx context.Context, args TerminateThreadsArgs) (TerminatedResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return TerminatedResult{}, err
	}
	callErr := s.Call(func() error { return s.Driver.TerminateThreads(ctx, args.ThreadIDs) })
	if callErr != nil {
		return TerminatedResult{}, mapDriverErr(callErr, "terminate_threads")
	}
	return TerminatedResult{Terminated: true}, nil
}

// Capabilities implements the `capabilities` tool.
func (r *Registry) Capabilities(ctx context.Context, args CapabilitiesArgs) (CapabilitiesResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return CapabilitiesResult{}, err
	}
	var caps driver.CapSet
	callErr := s.Call(func() error {
		var e error
		caps, e = s.Driver.Capabilities(ctx)
		return e
	})
	if callErr != nil {
		return CapabilitiesResult{}, mapDriverErr(callErr, "capabilities")
	}
	return capabilitiesResult(caps), nil
}

// mapDriverErr classifies an error returned by a Driver method into the
// uniform toolerr kinds (spec.md §7): driver.ErrNotSupported becomes
// NotSupported verbatim (invariant 9 — never silently swallowed into a
// partial result), everything else becomes InternalError.
func mapDriverErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var te *toolerr.Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, driver.ErrNotSupported) {
		return toolerr.Wrap(toolerr.NotSupported, err, "%s: not supported by this driver", op)
	}
	return toolerr.Wrap(toolerr.InternalError, err, "%s failed", op)
}

func base64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
func base64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
