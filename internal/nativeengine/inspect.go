package nativeengine

import (
	"context"
	"debug/dwarf"
	"encoding/binary"
	"fmt"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/dwarfinfo"
	"github.com/agenttools/debugd/internal/evaluator"
	"github.com/agenttools/debugd/internal/unwind"
)

// dwScope implements evaluator.Scope by resolving identifiers against one
// unwound frame's in-scope DWARF variables (spec §4.3 item 2: "parameters
// then locals then globals in the target frame").
type dwScope struct {
	e     *Engine
	frame unwind.Frame
}

func (s *dwScope) regAdapter() *frameRegisterAdapter {
	return &frameRegisterAdapter{arch: s.e.arch, named: s.frame.Regs.Named, frameBase: s.frame.FP}
}

func (s *dwScope) findVar(name string) (dwarfinfo.Variable, bool) {
	fn, ok := s.e.dw.FunctionAt(s.frame.PC)
	if !ok {
		return dwarfinfo.Variable{}, false
	}
	vars, err := s.e.dw.VariablesInScope(fn, s.frame.PC)
	if err != nil {
		return dwarfinfo.Variable{}, false
	}
	for _, v := range vars {
		if v.Name == name {
			return v, true
		}
	}
	return dwarfinfo.Variable{}, false
}

func (s *dwScope) Lookup(name string) (evaluator.Value, bool) {
	v, ok := s.findVar(name)
	if !ok {
		return evaluator.Value{}, false
	}
	val, err := s.valueFromLocation(v.LocExpr, v.TypeOffset)
	if err != nil {
		return evaluator.Value{}, false
	}
	return val, true
}

// valueFromLocation evaluates a DWARF location expression and, for
// register-class base types, reads back the byte-sized integer value so
// arithmetic in the source-expression evaluator has something to operate
// on. Struct/array/pointer types resolve to an addressable Value whose
// Number field is left at 0; Field/Index/Deref only need the address.
func (s *dwScope) valueFromLocation(locExpr []byte, typeOffset dwarf.Offset) (evaluator.Value, error) {
	loc, err := evaluator.Eval(locExpr, s.regAdapter(), s.e.mem())
	if err != nil {
		return evaluator.Value{}, err
	}

	switch loc.Kind {
	case evaluator.LocRegister:
		v, _ := s.regAdapter().Reg(loc.Reg)
		ti, _ := s.e.dw.ResolveType(typeOffset)
		typeName := ""
		if ti != nil {
			typeName = ti.Name
		}
		return evaluator.Value{Number: float64(v), TypeName: typeName, TypeOffset: uint64(typeOffset)}, nil
	case evaluator.LocAddress:
		return s.valueAt(loc.Address, typeOffset)
	default:
		return evaluator.Value{}, evaluator.ErrNotAddressable
	}
}

// valueAt resolves typeOffset and builds the Value addressed at addr,
// reading back the byte-sized integer for base/enum/pointer/typedef kinds
// the same way valueFromLocation's LocAddress case does. Field/Index reuse
// this once they have computed a member/element address of their own.
func (s *dwScope) valueAt(addr uint64, typeOffset dwarf.Offset) (evaluator.Value, error) {
	ti, _ := s.e.dw.ResolveType(typeOffset)
	typeName := ""
	if ti != nil {
		typeName = ti.Name
	}
	val := evaluator.Value{Addr: addr, TypeName: typeName, TypeOffset: uint64(typeOffset)}
	if ti == nil || ti.Kind == "base" || ti.Kind == "enum" || ti.Kind == "pointer" || ti.Kind == "typedef" {
		size := 8
		if ti != nil && ti.ByteSize > 0 && ti.ByteSize <= 8 {
			size = int(ti.ByteSize)
		}
		if b, err := s.e.mem().ReadMem(addr, size); err == nil {
			val.Number = float64(bytesToUint(b))
		}
	}
	return val, nil
}

// resolveAddressable follows typedef and pointer indirection from base's
// type until it reaches the struct/array/scalar type that member and index
// access actually operate on, returning that type's address alongside it.
// Pointer layers are dereferenced by reading the pointer's own value out of
// memory, so p.field and pp[0] both work regardless of how many typedefs or
// pointer hops sit between the identifier and the addressable payload.
func (s *dwScope) resolveAddressable(base evaluator.Value) (uint64, *dwarfinfo.TypeInfo, error) {
	ti, err := s.e.dw.ResolveType(dwarf.Offset(base.TypeOffset))
	if err != nil || ti == nil {
		return 0, nil, evaluator.ErrNotAddressable
	}
	addr := base.Addr
	for {
		switch ti.Kind {
		case "typedef":
			next, err := s.e.dw.ResolveType(ti.ElemType)
			if err != nil || next == nil {
				return 0, nil, evaluator.ErrNotAddressable
			}
			ti = next
		case "pointer":
			b, err := s.e.mem().ReadMem(addr, 8)
			if err != nil {
				return 0, nil, fmt.Errorf("nativeengine: dereference pointer: %w", err)
			}
			addr = bytesToUint(b)
			next, err := s.e.dw.ResolveType(ti.ElemType)
			if err != nil || next == nil {
				return 0, nil, evaluator.ErrNotAddressable
			}
			ti = next
		default:
			return addr, ti, nil
		}
	}
}

func bytesToUint(b []byte) uint64 {
	var padded [8]byte
	copy(padded[:], b)
	return binary.LittleEndian.Uint64(padded[:])
}

func (s *dwScope) Field(base evaluator.Value, member string) (evaluator.Value, error) {
	addr, ti, err := s.resolveAddressable(base)
	if err != nil {
		return evaluator.Value{}, err
	}
	if ti.Kind != "struct" {
		return evaluator.Value{}, fmt.Errorf("%w: %s has no field %q", evaluator.ErrTypeMismatch, ti.Name, member)
	}
	for _, m := range ti.Members {
		if m.Name == member {
			return s.valueAt(addr+uint64(m.ByteOffset), m.TypeOffset)
		}
	}
	return evaluator.Value{}, fmt.Errorf("%w: no field %q on %s", evaluator.ErrUnboundIdentifier, member, ti.Name)
}

func (s *dwScope) Index(base evaluator.Value, idx int64) (evaluator.Value, error) {
	addr, ti, err := s.resolveAddressable(base)
	if err != nil {
		return evaluator.Value{}, err
	}
	switch ti.Kind {
	case "array":
		elem, err := s.e.dw.ResolveType(ti.ArrayElem)
		if err != nil || elem == nil {
			return evaluator.Value{}, evaluator.ErrNotAddressable
		}
		if ti.ArrayCount >= 0 && (idx < 0 || idx >= ti.ArrayCount) {
			return evaluator.Value{}, fmt.Errorf("%w: index %d out of bounds (len %d)", evaluator.ErrTypeMismatch, idx, ti.ArrayCount)
		}
		return s.valueAt(addr+uint64(idx)*uint64(elem.ByteSize), ti.ArrayElem)
	default:
		if ti.ByteSize <= 0 {
			return evaluator.Value{}, fmt.Errorf("%w: %s is not indexable", evaluator.ErrTypeMismatch, ti.Name)
		}
		return s.valueAt(addr+uint64(idx)*uint64(ti.ByteSize), ti.Offset)
	}
}

func (s *dwScope) Deref(base evaluator.Value) (evaluator.Value, error) {
	if base.Addr == 0 {
		return evaluator.Value{}, evaluator.ErrNotAddressable
	}
	b, err := s.e.mem().ReadMem(base.Addr, 8)
	if err != nil {
		return evaluator.Value{}, fmt.Errorf("nativeengine: deref: %w", err)
	}
	return evaluator.Value{Number: float64(binary.LittleEndian.Uint64(b)), Addr: binary.LittleEndian.Uint64(b)}, nil
}

// Inspect evaluates req.Expression (or resolves req.VariableRef) in the
// frame req.FrameID and formats the result (spec §4.3, §6 `inspect` tool).
func (e *Engine) Inspect(ctx context.Context, req driver.InspectRequest) (driver.EvaluatedValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.VariableRef != 0 {
		return e.inspectVariableRefLocked(req.VariableRef)
	}
	if e.dw == nil {
		return driver.EvaluatedValue{}, driver.ErrNotSupported
	}

	frame, ok := e.frameByIDLocked(req.FrameID)
	if !ok {
		return driver.EvaluatedValue{}, fmt.Errorf("nativeengine: no frame with id %d", req.FrameID)
	}
	scope := &dwScope{e: e, frame: frame}
	v, err := evaluator.Eval(req.Expression, scope, e.divMode)
	if err != nil {
		return driver.EvaluatedValue{}, err
	}
	return driver.EvaluatedValue{Result: formatValue(v)}, nil
}

func formatValue(v evaluator.Value) string {
	if v.IsFloat {
		return fmt.Sprintf("%g", v.Number)
	}
	return fmt.Sprintf("%d", int64(v.Number))
}

func (e *Engine) frameByIDLocked(id int) (unwind.Frame, bool) {
	for _, f := range e.frames {
		if f.Index == id {
			return f, true
		}
	}
	return unwind.Frame{}, false
}

func (e *Engine) inspectVariableRefLocked(ref int) (driver.EvaluatedValue, error) {
	entry, ok := e.varRefs[ref]
	if !ok {
		return driver.EvaluatedValue{}, fmt.Errorf("nativeengine: unknown variablesReference %d", ref)
	}
	if entry.typ == nil {
		return driver.EvaluatedValue{}, fmt.Errorf("nativeengine: variablesReference %d has no children", ref)
	}
	var children []driver.Variable
	for _, m := range entry.typ.Members {
		children = append(children, driver.Variable{Name: m.Name, Value: "<struct>"})
	}
	return driver.EvaluatedValue{Result: entry.typ.Name, Type: entry.typ.Name, Children: children}, nil
}

func (e *Engine) SetVariable(ctx context.Context, frameOrScope int, name, value string) (driver.Variable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dw == nil {
		return driver.Variable{}, driver.ErrNotSupported
	}
	frame, ok := e.frameByIDLocked(frameOrScope)
	if !ok {
		return driver.Variable{}, fmt.Errorf("nativeengine: no frame with id %d", frameOrScope)
	}
	scope := &dwScope{e: e, frame: frame}
	v, ok := scope.findVar(name)
	if !ok {
		return driver.Variable{}, fmt.Errorf("%w: %q", evaluator.ErrUnboundIdentifier, name)
	}
	loc, err := evaluator.Eval(v.LocExpr, scope.regAdapter(), e.mem())
	if err != nil {
		return driver.Variable{}, err
	}
	if loc.Kind != evaluator.LocAddress {
		return driver.Variable{}, evaluator.ErrNotAddressable
	}

	nv, err := evaluator.Eval(value, scope, e.divMode)
	if err != nil {
		return driver.Variable{}, err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(int64(nv.Number)))
	if err := e.ctrl.WriteMem(loc.Address, buf); err != nil {
		return driver.Variable{}, fmt.Errorf("nativeengine: set_variable: %w", err)
	}
	return driver.Variable{Name: name, Value: value}, nil
}

func (e *Engine) SetExpression(ctx context.Context, frameID int, expression, value string) (driver.Variable, error) {
	// DAP's setExpression targets an arbitrary lvalue expression rather than
	// a bare identifier; this driver resolves bare identifiers only. The
	// expression is handed to SetVariable as a variable name, so a member or
	// index lvalue fails the lookup as an unbound identifier.
	return e.SetVariable(ctx, frameID, expression, value)
}

func (e *Engine) Scopes(ctx context.Context, frameID int) ([]driver.Scope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	frame, ok := e.frameByIDLocked(frameID)
	if !ok {
		return nil, fmt.Errorf("nativeengine: no frame with id %d", frameID)
	}
	return []driver.Scope{
		{Name: "Locals", VariablesReference: e.allocVarRefLocked(frame)},
		{Name: "Registers", VariablesReference: e.allocVarRefLocked(frame), Expensive: true},
	}, nil
}

func (e *Engine) allocVarRefLocked(frame unwind.Frame) int {
	e.nextVarRef++
	e.varRefs[e.nextVarRef] = varRefEntry{frame: frame}
	return e.nextVarRef
}

func (e *Engine) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]driver.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if startFrame < 0 || startFrame >= len(e.frames) {
		return nil, nil
	}
	end := len(e.frames)
	if levels > 0 && startFrame+levels < end {
		end = startFrame + levels
	}
	out := make([]driver.Frame, 0, end-startFrame)
	for _, f := range e.frames[startFrame:end] {
		out = append(out, driver.Frame{
			ID: f.Index, Name: f.FunctionName, File: f.File, Line: f.Line,
			PC: f.PC, FrameBase: f.FP, Presentation: "normal",
		})
	}
	return out, nil
}

func (e *Engine) VariableLocation(ctx context.Context, name string, frameID int) (driver.Location, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	frame, ok := e.frameByIDLocked(frameID)
	if !ok {
		return driver.Location{}, fmt.Errorf("nativeengine: no frame with id %d", frameID)
	}
	scope := &dwScope{e: e, frame: frame}
	v, ok := scope.findVar(name)
	if !ok {
		return driver.Location{}, fmt.Errorf("%w: %q", evaluator.ErrUnboundIdentifier, name)
	}
	loc, err := evaluator.Eval(v.LocExpr, scope.regAdapter(), e.mem())
	if err != nil {
		return driver.Location{}, err
	}
	switch loc.Kind {
	case evaluator.LocAddress:
		return driver.Location{Kind: "address", Address: loc.Address}, nil
	case evaluator.LocRegister:
		regName, _ := dwarfRegName(e.arch, loc.Reg)
		return driver.Location{Kind: "register", Reg: regName}, nil
	default:
		return driver.Location{Kind: "optimized-out"}, nil
	}
}
