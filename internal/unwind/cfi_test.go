package unwind

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCIEandFDE assembles a minimal .debug_frame section with one CIE
// (code_align=1, data_align=-8, return_addr_reg=16) defining CFA=rbp+16,
// and one FDE covering [0x1000,0x1010) with no extra instructions.
func buildCIEandFDE(t *testing.T) []byte {
	t.Helper()
	var buf []byte

	cieBody := []byte{1} // version
	cieBody = append(cieBody, 0)                   // empty augmentation string + NUL
	cieBody = append(cieBody, uleb(1)...)           // code_alignment_factor = 1
	cieBody = append(cieBody, sleb(-8)...)          // data_alignment_factor = -8
	cieBody = append(cieBody, uleb(16)...)          // return_address_register = 16
	// initial instructions: DW_CFA_def_cfa(reg=6, offset=16); DW_CFA_offset(reg=16, factored=2 -> -16)
	cieBody = append(cieBody, 0x0c, 6, 16)
	cieBody = append(cieBody, 0x80|16, 2)

	cieLen := uint32(4 + len(cieBody)) // cie_id field + body
	buf = append(buf, le32(cieLen)...)
	buf = append(buf, le32(0)...) // CIE ID marker
	cieStart := 0
	buf = append(buf, cieBody...)

	fdeBody := []byte{}
	fdeBody = append(fdeBody, le64(0x1000)...) // initial_location
	fdeBody = append(fdeBody, le64(0x10)...)   // address_range
	// no extra instructions

	fdeLen := uint32(4 + len(fdeBody))
	buf = append(buf, le32(fdeLen)...)
	buf = append(buf, le32(uint32(cieStart))...) // CIE pointer back to offset 0
	buf = append(buf, fdeBody...)

	return buf
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func sleb(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func TestParseDebugFrameAndRowFor(t *testing.T) {
	data := buildCIEandFDE(t)
	table, err := ParseDebugFrame(data, 8)
	require.NoError(t, err)

	row, ok := table.RowFor(0x1004)
	require.True(t, ok)
	assert.Equal(t, 6, row.CFA.Register)
	assert.Equal(t, int64(16), row.CFA.Offset)

	raRule, ok := row.Regs[16]
	require.True(t, ok)
	assert.Equal(t, int64(-16), raRule.Offset)
}

func TestRowForOutsideAnyFDE(t *testing.T) {
	data := buildCIEandFDE(t)
	table, err := ParseDebugFrame(data, 8)
	require.NoError(t, err)

	_, ok := table.RowFor(0x9999)
	assert.False(t, ok)
}
