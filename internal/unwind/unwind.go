package unwind

import (
	"encoding/binary"

	"github.com/agenttools/debugd/internal/dwarfinfo"
)

// RegisterSet is the register snapshot Walk starts from (the innermost
// frame's live registers).
type RegisterSet struct {
	PC, SP, FP uint64
	Named      map[string]uint64
}

// MemoryReader reads target memory for chasing saved-register addresses.
type MemoryReader interface {
	ReadMem(addr uint64, size int) ([]byte, error)
}

// Frame is one unwound stack frame. Regs carries exactly this frame's
// register snapshot (PC/SP/FP at minimum) so later variable inspection of a
// non-innermost frame never reads "current" process state (spec §4.4/§9).
type Frame struct {
	Index        int
	PC           uint64
	FP           uint64
	SP           uint64
	FunctionName string
	File         string
	Line         int
	Regs         RegisterSet
}

// regValue maps the CFI/DWARF register-number space to this
// RegisterSet's generic PC/SP/FP fields for the architectures in scope
// (amd64 DWARF reg 6 = RBP, 7 = RSP; arm64 reg 29 = FP, 31 = SP).
func regValue(regs RegisterSet, dwarfRegNum int, arch string) (uint64, bool) {
	switch arch {
	case "amd64":
		switch dwarfRegNum {
		case 6:
			return regs.FP, true
		case 7:
			return regs.SP, true
		}
	case "arm64":
		switch dwarfRegNum {
		case 29:
			return regs.FP, true
		case 31:
			return regs.SP, true
		}
	}
	if v, ok := regs.Named[namedRegForDwarfNum(dwarfRegNum, arch)]; ok {
		return v, true
	}
	return 0, false
}

func namedRegForDwarfNum(n int, arch string) string {
	// Only the registers Walk actually needs resolve here; evaluator.Eval
	// covers the full register file for variable location expressions.
	return ""
}

// Walk unwinds the call stack starting at regs, preferring CFI (when cfi is
// non-nil) and falling back to the frame-pointer chain otherwise, per frame
// (spec §4.4). ptrSize is the target's pointer width, used to locate the
// saved return address at [FP+ptrSize] in the FP-chain fallback.
func Walk(regs RegisterSet, arch string, ptrSize int, cfi *CFITable, dw *dwarfinfo.Reader, mem MemoryReader, maxFrames int) []Frame {
	var frames []Frame
	cur := regs

	for i := 0; i < maxFrames; i++ {
		file, line, _, _ := dw.PCToSource(cur.PC)
		name := ""
		if fn, ok := dw.FunctionAt(cur.PC); ok {
			name = fn.Name
		}
		frames = append(frames, Frame{
			Index: i, PC: cur.PC, FP: cur.FP, SP: cur.SP,
			FunctionName: name, File: file, Line: line, Regs: cur,
		})

		next, ok := step(cur, arch, ptrSize, cfi, mem)
		if !ok || next.PC == 0 {
			break
		}
		cur = next
	}
	return frames
}

// step computes the caller's frame from the current one, trying CFI first.
func step(cur RegisterSet, arch string, ptrSize int, cfi *CFITable, mem MemoryReader) (RegisterSet, bool) {
	if cfi != nil {
		if row, ok := cfi.RowFor(cur.PC); ok {
			if next, ok := stepCFI(cur, arch, row, mem); ok {
				return next, true
			}
		}
	}
	return stepFPChain(cur, ptrSize, mem)
}

// stepCFI computes CFA from row's rule, then reads the return address and
// saved FP from CFA-relative offsets per the register rules.
func stepCFI(cur RegisterSet, arch string, row FDERow, mem MemoryReader) (RegisterSet, bool) {
	cfaBase, ok := regValue(cur, row.CFA.Register, arch)
	if !ok {
		return RegisterSet{}, false
	}
	cfa := uint64(int64(cfaBase) + row.CFA.Offset)

	raDwarfReg := 16 // amd64 DWARF return-address column is conventionally beyond GPRs; callers without an explicit rule fall through
	raRule, ok := row.Regs[raDwarfReg]
	if !ok {
		return RegisterSet{}, false
	}
	if raRule.SameValue {
		return RegisterSet{}, false
	}
	raBytes, err := mem.ReadMem(uint64(int64(cfa)+raRule.Offset), 8)
	if err != nil {
		return RegisterSet{}, false
	}
	ra := binary.LittleEndian.Uint64(raBytes)

	next := RegisterSet{PC: ra, SP: cfa, FP: cur.FP, Named: cur.Named}

	fpDwarfReg := 6
	if arch == "arm64" {
		fpDwarfReg = 29
	}
	if fpRule, ok := row.Regs[fpDwarfReg]; ok && !fpRule.SameValue {
		if fpBytes, err := mem.ReadMem(uint64(int64(cfa)+fpRule.Offset), 8); err == nil {
			next.FP = binary.LittleEndian.Uint64(fpBytes)
		}
	}
	return next, true
}

// stepFPChain walks [FP] -> next FP and [FP+ptrSize] -> return address,
// terminating when FP is 0 (spec §4.4).
func stepFPChain(cur RegisterSet, ptrSize int, mem MemoryReader) (RegisterSet, bool) {
	if cur.FP == 0 {
		return RegisterSet{}, false
	}
	savedFPBytes, err := mem.ReadMem(cur.FP, ptrSize)
	if err != nil {
		return RegisterSet{}, false
	}
	raBytes, err := mem.ReadMem(cur.FP+uint64(ptrSize), 8)
	if err != nil {
		return RegisterSet{}, false
	}

	var savedFP uint64
	if ptrSize == 8 {
		savedFP = binary.LittleEndian.Uint64(savedFPBytes)
	} else {
		savedFP = uint64(binary.LittleEndian.Uint32(savedFPBytes))
	}
	ra := binary.LittleEndian.Uint64(raBytes)
	if ra == 0 {
		return RegisterSet{}, false
	}
	return RegisterSet{PC: ra, SP: cur.FP + uint64(ptrSize) + 8, FP: savedFP, Named: cur.Named}, true
}
