// Package session owns the registry of active debug sessions: one Session
// per launched/attached debuggee, each serializing its Driver calls through
// a per-session mutex (spec §5's "one session thread per active debug
// session").
// It generalizes ctagard-dap-mcp's SessionManager/CompoundSession from a
// single DAP-only client to any internal/driver.Driver backend (native,
// DAP, or CDP).
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/memrefs"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning       Status = "running"
	StatusStopped       Status = "stopped"
	StatusTerminated    Status = "terminated"
)

// DriverKind identifies which backend a Session's Driver is.
type DriverKind string

const (
	DriverNative DriverKind = "native"
	DriverDAP    DriverKind = "dap"
	DriverCDP    DriverKind = "cdp"
)

// Session is one active debug session: a Driver plus the bookkeeping the
// tool surface needs (status, last stop context, last access time, memory
// reference).
type Session struct {
	ID         string
	Driver     driver.Driver
	DriverKind DriverKind
	Language   string
	Program    string
	CreatedAt  time.Time

	mu         sync.Mutex
	status     Status
	lastStop   driver.StopContext
	lastAccess time.Time
	memoryRef  *memrefs.MemoryRef

	// callMu serializes all Driver method calls for this session (spec §5:
	// "client requests are processed serially per session"). pause/cancel/stop
	// are allowed to run concurrently with an in-flight call, which is why
	// they are issued directly against Driver rather than through Call.
	callMu sync.Mutex
}

// Call serializes fn against any other in-flight operation on this session,
// and stamps lastAccess for the idle-cleanup loop.
func (s *Session) Call(fn func() error) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	s.touch()
	return fn()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Session) LastStop() driver.StopContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStop
}

func (s *Session) SetLastStop(sc driver.StopContext) {
	s.mu.Lock()
	s.lastStop = sc
	if sc.Reason == driver.StopExit {
		s.status = StatusTerminated
	} else {
		s.status = StatusStopped
	}
	s.mu.Unlock()
}

func (s *Session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastAccess)
}

// SetMemoryRef attaches an external engram id to this session (spec.md §3's
// memory-service Non-goal leaves referencing, not implementing, in scope).
func (s *Session) SetMemoryRef(ref memrefs.MemoryRef) {
	s.mu.Lock()
	s.memoryRef = &ref
	s.mu.Unlock()
}

// MemoryRef returns the attached engram reference, if any.
func (s *Session) MemoryRef() (memrefs.MemoryRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memoryRef == nil {
		return memrefs.MemoryRef{}, false
	}
	return *s.memoryRef, true
}

// Info is the JSON-facing summary returned by the `sessions` tool.
type Info struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	DriverType string             `json:"driver_type"`
	MemoryRef  *memrefs.MemoryRef `json:"memory_ref,omitempty"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	ref := s.memoryRef
	s.mu.Unlock()
	return Info{ID: s.ID, Status: string(s.Status()), DriverType: string(s.DriverKind), MemoryRef: ref}
}

// compoundGroup tracks a named group of sessions launched together (spec
// §4's compound/grouped session expansion, grounded in
// ctagard-dap-mcp's CompoundSession).
type compoundGroup struct {
	name       string
	sessionIDs []string
	stopAll    bool
}

// Manager is the session registry. Exactly one exists per daemon process.
type Manager struct {
	logger *zap.Logger

	mu                sync.RWMutex
	sessions          map[string]*Session
	groups            map[string]*compoundGroup
	sessionToGroup    map[string]string

	nextID int64

	maxSessions    int
	idleTimeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config controls resource limits enforced by the Manager.
type Config struct {
	MaxSessions int
	IdleTimeout time.Duration
}

// New creates a Manager and starts its idle-session cleanup loop (spec
// §4 expansion: "Session idle cleanup", grounded in
// ctagard-dap-mcp's cleanupLoop/cleanupExpiredSessions).
func New(cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:         logger,
		sessions:       make(map[string]*Session),
		groups:         make(map[string]*compoundGroup),
		sessionToGroup: make(map[string]string),
		maxSessions:    cfg.MaxSessions,
		idleTimeout:    cfg.IdleTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

func (m *Manager) cleanupExpired() {
	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if s.idleFor() > m.idleTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range expired {
		m.logger.Info("terminating idle session", zap.String("session_id", id))
		if err := m.Terminate(context.Background(), id, true, false); err != nil {
			m.logger.Warn("idle session cleanup failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}

// Register allocates a session id (spec §6.2: `session-<monotonic>`) and
// stores a new Session wrapping d.
func (m *Manager) Register(d driver.Driver, kind DriverKind, language, program string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("session: maximum number of sessions (%d) reached", m.maxSessions)
	}
	id := fmt.Sprintf("session-%d", atomic.AddInt64(&m.nextID, 1))
	s := &Session{
		ID: id, Driver: d, DriverKind: kind, Language: language, Program: program,
		CreatedAt: time.Now(), status: StatusInitializing, lastAccess: time.Now(),
	}
	m.sessions[id] = s
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Group registers sessionIDs as a named compound session (spec §4
// expansion: "Compound/grouped sessions").
func (m *Manager) Group(name string, sessionIDs []string, stopAll bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[name] = &compoundGroup{name: name, sessionIDs: sessionIDs, stopAll: stopAll}
	for _, id := range sessionIDs {
		m.sessionToGroup[id] = name
	}
}

// Terminate calls Driver.Stop and removes the session from the registry. If
// the session belongs to a stopAll group, every sibling is torn down too.
func (m *Manager) Terminate(ctx context.Context, id string, detach, terminateOnly bool) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session: not found: %s", id)
	}
	var siblings []string
	if groupName, ok := m.sessionToGroup[id]; ok {
		if g, ok := m.groups[groupName]; ok && g.stopAll {
			for _, sib := range g.sessionIDs {
				if sib != id {
					siblings = append(siblings, sib)
				}
			}
			delete(m.groups, groupName)
		}
		delete(m.sessionToGroup, id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	// Stop bypasses Call so it can end an in-flight call early (spec §5).
	err := s.Driver.Stop(ctx, detach, terminateOnly)
	s.SetStatus(StatusTerminated)

	for _, sib := range siblings {
		if terr := m.Terminate(ctx, sib, detach, terminateOnly); terr != nil {
			m.logger.Warn("failed to terminate sibling session", zap.String("session_id", sib), zap.Error(terr))
		}
	}
	return err
}

// Close shuts down the cleanup loop and terminates every remaining session
// (spec §5: "Resource release" — guaranteed on daemon exit).
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
	for _, s := range m.List() {
		if err := m.Terminate(context.Background(), s.ID, false, true); err != nil {
			m.logger.Warn("failed to terminate session during shutdown", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}
