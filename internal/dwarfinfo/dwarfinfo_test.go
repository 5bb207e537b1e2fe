package dwarfinfo

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/assert"
)

func entryWithHighpc(v any) *dwarf.Entry {
	return &dwarf.Entry{Field: []dwarf.Field{{Attr: dwarf.AttrHighpc, Val: v}}}
}

func TestHighpcOffsetForm(t *testing.T) {
	// DWARF4+ permits AttrHighpc to be an offset from low_pc rather than an
	// absolute address; both forms must resolve to the same end address.
	assert.Equal(t, uint64(0x2000), highpc(entryWithHighpc(int64(0x1000)), 0x1000))
	assert.Equal(t, uint64(0x2000), highpc(entryWithHighpc(uint64(0x2000)), 0x1000))
}

func TestOpenRejectsNonBinary(t *testing.T) {
	_, err := Open("/dev/null")
	assert.Error(t, err)
}
