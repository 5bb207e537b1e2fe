package unwind

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMem struct {
	data map[uint64][]byte
}

func (m *fakeMem) ReadMem(addr uint64, size int) ([]byte, error) {
	b, ok := m.data[addr]
	if !ok {
		return make([]byte, size), nil
	}
	return b[:size], nil
}

func put64(m map[uint64][]byte, addr, v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	m[addr] = b
}

func TestStepFPChainTerminatesAtZeroFP(t *testing.T) {
	mem := &fakeMem{data: map[uint64][]byte{}}
	cur := RegisterSet{PC: 0x1234, FP: 0, SP: 0x7000}
	_, ok := stepFPChain(cur, 8, mem)
	assert.False(t, ok)
}

func TestStepFPChainFollowsSavedFrame(t *testing.T) {
	data := map[uint64][]byte{}
	put64(data, 0x7000, 0x6000)  // [FP] -> saved FP
	put64(data, 0x7008, 0xbeef0) // [FP+8] -> return address
	mem := &fakeMem{data: data}

	cur := RegisterSet{PC: 0x1234, FP: 0x7000, SP: 0x6ff0}
	next, ok := stepFPChain(cur, 8, mem)
	require.True(t, ok)
	assert.Equal(t, uint64(0xbeef0), next.PC)
	assert.Equal(t, uint64(0x6000), next.FP)
}
