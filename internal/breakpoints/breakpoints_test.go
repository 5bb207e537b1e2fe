package breakpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMem struct {
	bytes map[uint64]byte
}

func newFakeMem() *fakeMem { return &fakeMem{bytes: map[uint64]byte{0x1000: 0x55, 0x2000: 0x90}} }

func (m *fakeMem) ReadMem(addr uint64, size int) ([]byte, error) {
	return []byte{m.bytes[addr]}, nil
}

func (m *fakeMem) WriteMem(addr uint64, data []byte) error {
	m.bytes[addr] = data[0]
	return nil
}

func TestSetAndRemoveRestoresOriginalByte(t *testing.T) {
	mem := newFakeMem()
	mgr := New(mem, TrapOpcodeAMD64)

	spec, err := mgr.SetAtAddresses(KindLine, []uint64{0x1000}, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, byte(0xcc), mem.bytes[0x1000])

	require.NoError(t, mgr.Remove(spec.ID))
	assert.Equal(t, byte(0x55), mem.bytes[0x1000])
}

func TestSharedTrapKeepsTrapUntilLastOwnerReleases(t *testing.T) {
	mem := newFakeMem()
	mgr := New(mem, TrapOpcodeAMD64)

	a, err := mgr.SetAtAddresses(KindLine, []uint64{0x1000}, "", "", "")
	require.NoError(t, err)
	b, err := mgr.SetAtAddresses(KindFunction, []uint64{0x1000}, "", "", "")
	require.NoError(t, err)

	require.NoError(t, mgr.Remove(a.ID))
	assert.Equal(t, byte(0xcc), mem.bytes[0x1000], "trap must remain while b still owns it")

	require.NoError(t, mgr.Remove(b.ID))
	assert.Equal(t, byte(0x55), mem.bytes[0x1000])
}

func TestListAndGet(t *testing.T) {
	mem := newFakeMem()
	mgr := New(mem, TrapOpcodeAMD64)

	spec, err := mgr.SetAtAddresses(KindInstruction, []uint64{0x2000}, "", "", "")
	require.NoError(t, err)

	got, ok := mgr.Get(spec.ID)
	require.True(t, ok)
	assert.Equal(t, KindInstruction, got.Kind)
	assert.Len(t, mgr.List(), 1)
}

func TestOwnersAtAndRecordHit(t *testing.T) {
	mem := newFakeMem()
	mgr := New(mem, TrapOpcodeAMD64)

	spec, err := mgr.SetAtAddresses(KindLine, []uint64{0x1000}, "", "", "")
	require.NoError(t, err)

	owners := mgr.OwnersAt(0x1000)
	assert.Equal(t, []int{spec.ID}, owners)

	mgr.RecordHit(0x1000)
	got, _ := mgr.Get(spec.ID)
	assert.Equal(t, 1, got.HitCount)
}

func TestRemoveUnknownID(t *testing.T) {
	mgr := New(newFakeMem(), TrapOpcodeAMD64)
	err := mgr.Remove(999)
	assert.Error(t, err)
}
