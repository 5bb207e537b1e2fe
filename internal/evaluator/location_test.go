package evaluator

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegs struct {
	regs      map[int]uint64
	frameBase uint64
}

func (r *fakeRegs) Reg(n int) (uint64, bool) {
	v, ok := r.regs[n]
	return v, ok
}

func (r *fakeRegs) FrameBase() uint64 { return r.frameBase }

type fakeMem struct {
	data map[uint64][]byte
}

func (m *fakeMem) ReadMem(addr uint64, size int) ([]byte, error) {
	return m.data[addr][:size], nil
}

func TestEvalFbreg(t *testing.T) {
	regs := &fakeRegs{frameBase: 0x1000}
	// DW_OP_fbreg -8 => frame_base + sleb128(-8)
	expr := []byte{opFbreg, 0x78} // 0x78 = sleb128(-8)
	res, err := Eval(expr, regs, nil)
	require.NoError(t, err)
	assert.Equal(t, LocAddress, res.Kind)
	assert.Equal(t, uint64(0x1000-8), res.Address)
}

func TestEvalRegister(t *testing.T) {
	regs := &fakeRegs{regs: map[int]uint64{0: 0x42}}
	expr := []byte{opReg0}
	res, err := Eval(expr, regs, nil)
	require.NoError(t, err)
	assert.Equal(t, LocRegister, res.Kind)
	assert.Equal(t, 0, res.Reg)
}

func TestEvalBregPlusDeref(t *testing.T) {
	regs := &fakeRegs{regs: map[int]uint64{6: 0x2000}} // DW_OP_breg6 = RBP-style base register
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 0xdeadbeef)
	mem := &fakeMem{data: map[uint64][]byte{0x2008: buf}}

	// DW_OP_breg6 +8, DW_OP_deref
	expr := []byte{opBreg0 + 6, 0x08, opDeref}
	res, err := Eval(expr, regs, mem)
	require.NoError(t, err)
	assert.Equal(t, LocAddress, res.Kind)
	assert.Equal(t, uint64(0xdeadbeef), res.Address)
}

func TestEvalConstAndArith(t *testing.T) {
	regs := &fakeRegs{}
	// push 5 (lit5), push 3 (const1u), plus -> 8
	expr := []byte{opLit0 + 5, opConst1u, 3, opPlus}
	res, err := Eval(expr, regs, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), res.Address)
}

func TestEvalUnsupportedOpcode(t *testing.T) {
	regs := &fakeRegs{}
	expr := []byte{0xff}
	_, err := Eval(expr, regs, nil)
	assert.Error(t, err)
}
