// Package unwind walks the call stack by Call Frame Information when
// available, falling back to the frame-pointer chain otherwise (spec §4.4).
//
// Grounded on Dparker1990-dbg's Process.parseDebugFrame /
// frame.FrameDescriptionEntries (it builds its unwinder on
// github.com/derekparker/delve/dwarf/frame); this package reimplements the
// portion of that CFI machinery needed to recover a frame's CFA and the
// caller's saved registers, rather than vendoring delve's own dwarf/frame
// package.
package unwind

import (
	"encoding/binary"
	"fmt"
)

// CFARule is how to compute the Canonical Frame Address at a given PC.
type CFARule struct {
	Register int
	Offset   int64
}

// RegRule says where a register's prior-frame value can be recovered from.
type RegRule struct {
	SameValue bool
	Offset    int64 // valid when !SameValue: value is at CFA+Offset
}

// FDERow is one row of a decoded frame description entry's unwind table:
// the rules in effect for PCs in [PC, next row's PC).
type FDERow struct {
	PC   uint64
	CFA  CFARule
	Regs map[int]RegRule
}

// FDE is one function's frame description entry: its PC range plus the
// unwind table built by executing its call-frame instructions.
type FDE struct {
	LowPC, HighPC uint64
	Rows          []FDERow
}

// CIE is a common information entry shared by one or more FDEs.
type CIE struct {
	CodeAlignment uint64
	DataAlignment int64
	ReturnAddrReg int
	InitialRules  []byte // initial call-frame instructions, executed before the FDE's own
}

// CFITable holds every decoded FDE of a .debug_frame/.eh_frame section,
// sorted by LowPC for lookup by PC.
type CFITable struct {
	fdes []*FDE
}

// ParseDebugFrame decodes a raw .debug_frame (or .eh_frame, same encoding up
// to the pointer-encoding directives eh_frame adds) section into a CFITable.
// Unsupported/malformed entries are skipped rather than aborting the whole
// parse, so a binary with partial CFI still yields what it has.
func ParseDebugFrame(data []byte, ptrSize int) (*CFITable, error) {
	t := &CFITable{}
	cies := make(map[int]*CIE)

	pos := 0
	for pos < len(data) {
		start := pos
		length, n := readU32(data[pos:])
		pos += n
		if length == 0 {
			break
		}
		end := pos + int(length)
		if end > len(data) {
			break
		}
		cieOrFdePtr, n := readU32(data[pos:])
		pos += n

		if cieOrFdePtr == 0xffffffff {
			pos = end
			continue
		}

		if cieOrFdePtr == 0 {
			cie := &CIE{ReturnAddrReg: -1}
			_ = data[pos] // version byte
			pos++
			// augmentation string, NUL-terminated; bail on non-empty (vendor extensions)
			augStart := pos
			for pos < len(data) && data[pos] != 0 {
				pos++
			}
			augmentation := string(data[augStart:pos])
			pos++ // skip NUL

			codeAlign, n := readULEB(data[pos:])
			pos += n
			cie.CodeAlignment = codeAlign

			dataAlign, n := readSLEB(data[pos:])
			pos += n
			cie.DataAlignment = dataAlign

			raReg, n := readULEB(data[pos:])
			pos += n
			cie.ReturnAddrReg = int(raReg)

			if augmentation != "" {
				// Augmented CIEs (eh_frame "zR" etc.) carry extra encoding
				// bytes this minimal parser does not interpret; skip the
				// whole FDE group rather than misparse it.
				pos = end
				cies[start] = nil
				continue
			}

			cie.InitialRules = data[pos:end]
			cies[start] = cie
			pos = end
			continue
		}

		// FDE: cieOrFdePtr is this format's CIE back-pointer (offset into
		// the section from the start of the length field, .debug_frame
		// convention).
		cie, ok := cies[int(cieOrFdePtr)]
		if !ok || cie == nil {
			pos = end
			continue
		}

		var initialLoc, rangeLen uint64
		if ptrSize == 8 {
			initialLoc = binary.LittleEndian.Uint64(data[pos:])
			pos += 8
			rangeLen = binary.LittleEndian.Uint64(data[pos:])
			pos += 8
		} else {
			initialLoc = uint64(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
			rangeLen = uint64(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
		}

		fde := &FDE{LowPC: initialLoc, HighPC: initialLoc + rangeLen}
		rows, err := execCFA(cie, data[pos:end], fde.LowPC)
		if err == nil {
			fde.Rows = rows
			t.fdes = append(t.fdes, fde)
		}
		pos = end
	}

	return t, nil
}

// RowFor returns the unwind rules in effect at pc, or ok=false when no FDE
// covers it (the unwinder falls back to FP-chain in that case).
func (t *CFITable) RowFor(pc uint64) (FDERow, bool) {
	for _, fde := range t.fdes {
		if pc >= fde.LowPC && pc < fde.HighPC {
			var best FDERow
			found := false
			for _, row := range fde.Rows {
				if row.PC <= pc {
					best = row
					found = true
				}
			}
			return best, found
		}
	}
	return FDERow{}, false
}

// execCFA interprets a CIE's initial instructions followed by an FDE's own
// instructions, producing one FDERow per DW_CFA_advance_loc boundary. Only
// the opcodes mainstream compilers actually emit for simple frame-pointer
// and CFA-register-relative unwinding are implemented; others are ignored
// rather than aborting (a conservative row is still better than none).
func execCFA(cie *CIE, instrs []byte, lowPC uint64) ([]FDERow, error) {
	row := FDERow{PC: lowPC, Regs: make(map[int]RegRule)}
	var rows []FDERow

	run := func(stream []byte) {
		pos := 0
		for pos < len(stream) {
			op := stream[pos]
			pos++
			primary := op & 0xc0
			operand := op & 0x3f

			switch primary {
			case 0x40: // DW_CFA_advance_loc
				rows = append(rows, cloneRow(row))
				row.PC += uint64(operand) * cie.CodeAlignment
			case 0x80: // DW_CFA_offset
				off, n := readULEB(stream[pos:])
				pos += n
				row.Regs[int(operand)] = RegRule{Offset: int64(off) * cie.DataAlignment}
			case 0xc0: // DW_CFA_restore
				delete(row.Regs, int(operand))
			default:
				switch op {
				case 0x00: // DW_CFA_nop
				case 0x01: // DW_CFA_set_loc
					if len(stream) >= pos+8 {
						rows = append(rows, cloneRow(row))
						row.PC = binary.LittleEndian.Uint64(stream[pos:])
						pos += 8
					}
				case 0x02: // DW_CFA_advance_loc1
					rows = append(rows, cloneRow(row))
					row.PC += uint64(stream[pos]) * cie.CodeAlignment
					pos++
				case 0x03: // DW_CFA_advance_loc2
					rows = append(rows, cloneRow(row))
					row.PC += uint64(binary.LittleEndian.Uint16(stream[pos:])) * cie.CodeAlignment
					pos += 2
				case 0x0c: // DW_CFA_def_cfa
					reg, n := readULEB(stream[pos:])
					pos += n
					off, n := readULEB(stream[pos:])
					pos += n
					row.CFA = CFARule{Register: int(reg), Offset: int64(off)}
				case 0x0e: // DW_CFA_def_cfa_offset
					off, n := readULEB(stream[pos:])
					pos += n
					row.CFA.Offset = int64(off)
				case 0x0d: // DW_CFA_def_cfa_register
					reg, n := readULEB(stream[pos:])
					pos += n
					row.CFA.Register = int(reg)
				default:
					// Unrecognized opcode: stop decoding this stream rather
					// than risk misinterpreting the remaining bytes as a
					// different instruction.
					return
				}
			}
		}
	}

	run(cie.InitialRules)
	run(instrs)
	rows = append(rows, cloneRow(row))

	if len(rows) == 0 {
		return nil, fmt.Errorf("unwind: empty CFI program")
	}
	return rows, nil
}

func cloneRow(r FDERow) FDERow {
	cp := FDERow{PC: r.PC, CFA: r.CFA, Regs: make(map[int]RegRule, len(r.Regs))}
	for k, v := range r.Regs {
		cp.Regs[k] = v
	}
	return cp
}

func readU32(b []byte) (uint64, int) {
	return uint64(binary.LittleEndian.Uint32(b)), 4
}

func readULEB(b []byte) (uint64, int) {
	var result uint64
	var shift uint
	i := 0
	for {
		v := b[i]
		result |= uint64(v&0x7f) << shift
		i++
		if v&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, i
}

func readSLEB(b []byte) (int64, int) {
	var result int64
	var shift uint
	i := 0
	var v byte
	for {
		v = b[i]
		result |= int64(v&0x7f) << shift
		shift += 7
		i++
		if v&0x80 == 0 {
			break
		}
	}
	if shift < 64 && v&0x40 != 0 {
		result |= -(1 << shift)
	}
	return result, i
}
