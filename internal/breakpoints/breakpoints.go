// Package breakpoints implements the native Breakpoint Manager of spec §4.5:
// a mapping from logical breakpoint IDs to specs, and a shadow mapping from
// code addresses to installed traps shared by however many logical
// breakpoints resolve to that address.
//
// Grounded on the golang-debug/demo reference's setBreakpoint/clearBreakpoint
// pair (read original byte, write 0xCC, restore on clear) and generalized
// into a refcounted owner model per spec §9's "safe ownership of debuggee
// memory addresses" row.
package breakpoints

import (
	"fmt"
	"sync"
)

// TrapWriter is the process-control primitive this package needs: reading
// and writing a single byte at a code address.
type TrapWriter interface {
	ReadMem(addr uint64, size int) ([]byte, error)
	WriteMem(addr uint64, data []byte) error
}

// TrapOpcode is the architecture's breakpoint-trap instruction byte(s).
// x86-64 uses a single INT3 byte; AArch64 uses a 4-byte BRK #0.
type TrapOpcode []byte

var (
	TrapOpcodeAMD64 = TrapOpcode{0xcc}
	TrapOpcodeARM64 = TrapOpcode{0x00, 0x00, 0x20, 0xd4}
)

// Kind mirrors driver.BreakpointKind without importing the driver package
// (this package is a dependency of nativeengine, not the other way round).
type Kind string

const (
	KindLine        Kind = "line"
	KindFunction    Kind = "function"
	KindInstruction Kind = "instruction"
	KindException   Kind = "exception"
	KindData        Kind = "data"
)

// Spec is the logical, client-facing definition of one breakpoint.
type Spec struct {
	ID           int
	Kind         Kind
	Addresses    []uint64 // resolved code addresses this logical bp owns a trap at (empty for exception bps)
	Condition    string
	HitCondition string
	LogMessage   string
	HitCount     int
	Verified     bool
	Message      string

	// Exception-filter/watchpoint-only fields; Addresses is empty in these cases.
	ExceptionFilters []string
	WatchAddr        uint64
	WatchSize        int
	WatchAccess      string
	WatchID          int // hardware watchpoint slot id, when Kind == KindData
}

// InstalledTrap is the owning handle for one patched instruction. Close
// restores the original bytes, mirroring a C++ destructor as a Go type with
// an explicit Close method (spec §9).
type InstalledTrap struct {
	mgr      *Manager
	Address  uint64
	original []byte
	owners   map[int]struct{}
}

// Close restores the original instruction byte(s) and drops this trap from
// the manager's shadow map, whatever owners it still has; the logical specs
// that owned it stay recorded. It is idempotent.
func (t *InstalledTrap) Close() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	return t.mgr.releaseLocked(t.Address)
}

// Manager owns the logical_bp_id -> Spec map and the code_address ->
// InstalledTrap shadow map (spec §4.5).
type Manager struct {
	mu sync.Mutex

	mem  TrapWriter
	trap TrapOpcode

	specs  map[int]*Spec
	traps  map[uint64]*InstalledTrap
	nextID int
}

// New constructs a Manager writing trap bytes through mem using the given
// architecture's trap opcode.
func New(mem TrapWriter, trap TrapOpcode) *Manager {
	return &Manager{
		mem:   mem,
		trap:  trap,
		specs: make(map[int]*Spec),
		traps: make(map[uint64]*InstalledTrap),
	}
}

// SetAtAddresses installs (or joins an existing) trap at each address and
// records a new logical Spec owning all of them. Used by set_line,
// set_function (after prologue-skip resolution), and set_instruction.
func (m *Manager) SetAtAddresses(kind Kind, addrs []uint64, condition, hitCondition, logMessage string) (*Spec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	spec := &Spec{
		ID: m.nextID, Kind: kind, Addresses: addrs,
		Condition: condition, HitCondition: hitCondition, LogMessage: logMessage,
		Verified: true,
	}

	for _, addr := range addrs {
		if err := m.acquireLocked(addr, spec.ID); err != nil {
			// Roll back any traps already installed for this spec before
			// reporting failure, so a partially-resolved breakpoint never
			// lingers in the shadow map.
			for _, installed := range addrs {
				if installed == addr {
					break
				}
				_ = m.releaseOwnerLocked(installed, spec.ID)
			}
			spec.Verified = false
			spec.Message = err.Error()
			m.specs[spec.ID] = spec
			return spec, fmt.Errorf("breakpoints: install trap at 0x%x: %w", addr, err)
		}
	}

	m.specs[spec.ID] = spec
	return spec, nil
}

// SetLogical records a Spec that owns no installed trap (exception filters,
// which are purely logical on native; watchpoints, which use hardware debug
// registers via the driver rather than an instruction patch).
func (m *Manager) SetLogical(spec *Spec) *Spec {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	spec.ID = m.nextID
	spec.Verified = true
	m.specs[spec.ID] = spec
	return spec
}

// acquireLocked installs a trap at addr if none exists yet, then adds
// ownerID to its owner set.
func (m *Manager) acquireLocked(addr uint64, ownerID int) error {
	if t, ok := m.traps[addr]; ok {
		t.owners[ownerID] = struct{}{}
		return nil
	}
	original, err := m.mem.ReadMem(addr, len(m.trap))
	if err != nil {
		return fmt.Errorf("read original bytes: %w", err)
	}
	if err := m.mem.WriteMem(addr, m.trap); err != nil {
		return fmt.Errorf("write trap opcode: %w", err)
	}
	m.traps[addr] = &InstalledTrap{
		mgr: m, Address: addr, original: original,
		owners: map[int]struct{}{ownerID: {}},
	}
	return nil
}

func (m *Manager) releaseOwnerLocked(addr uint64, ownerID int) error {
	t, ok := m.traps[addr]
	if !ok {
		return nil
	}
	delete(t.owners, ownerID)
	if len(t.owners) == 0 {
		return m.releaseLocked(addr)
	}
	return nil
}

// releaseLocked restores the original bytes at addr and drops it from the
// shadow map. Callers must hold m.mu.
func (m *Manager) releaseLocked(addr uint64) error {
	t, ok := m.traps[addr]
	if !ok {
		return nil
	}
	if err := m.mem.WriteMem(addr, t.original); err != nil {
		return fmt.Errorf("breakpoints: restore original bytes at 0x%x: %w", addr, err)
	}
	delete(m.traps, addr)
	return nil
}

// Remove drops id from every trap it owns, restoring original bytes for any
// trap left with zero owners.
func (m *Manager) Remove(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.specs[id]
	if !ok {
		return fmt.Errorf("breakpoints: no breakpoint with id %d", id)
	}
	for _, addr := range spec.Addresses {
		if err := m.releaseOwnerLocked(addr, id); err != nil {
			return err
		}
	}
	delete(m.specs, id)
	return nil
}

// List enumerates logical breakpoints with their verification status.
func (m *Manager) List() []*Spec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Spec, 0, len(m.specs))
	for _, s := range m.specs {
		out = append(out, s)
	}
	return out
}

// Get returns one breakpoint by id.
func (m *Manager) Get(id int) (*Spec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.specs[id]
	return s, ok
}

// TrapAt returns the installed trap at addr, if any, so the stepping/hit
// handler can look up its original byte and owners.
func (m *Manager) TrapAt(addr uint64) (*InstalledTrap, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.traps[addr]
	return t, ok
}

// OwnersAt returns the logical breakpoint IDs owning the trap at addr, for
// populating StopContext.HitBreakpoints.
func (m *Manager) OwnersAt(addr uint64) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.traps[addr]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(t.owners))
	for id := range t.owners {
		ids = append(ids, id)
	}
	return ids
}

// RecordHit increments the hit counter of every logical breakpoint owning
// the trap at addr, for hit-condition evaluation.
func (m *Manager) RecordHit(addr uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.traps[addr]
	if !ok {
		return
	}
	for id := range t.owners {
		if s, ok := m.specs[id]; ok {
			s.HitCount++
		}
	}
}

// OriginalBytes returns the bytes a trap patched over, needed by the hit
// handler to temporarily restore them for a single-step-over.
func (t *InstalledTrap) OriginalBytes() []byte { return t.original }
