package tools

import (
	"context"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/toolerr"
)

// Memory implements the `memory` tool's read/write actions.
func (r *Registry) Memory(ctx context.Context, args MemoryArgs) (MemoryResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return MemoryResult{}, err
	}
	switch args.Action {
	case "read":
		if args.Size == 0 {
			return MemoryResult{}, toolerr.New(toolerr.InvalidParams, "memory.read: size is required")
		}
		var data []byte
		callErr := s.Call(func() error {
			var e error
			data, e = s.Driver.MemoryRead(ctx, args.Address, args.Size, args.Offset)
			return e
		})
		if callErr != nil {
			return MemoryResult{}, mapMemoryErr(callErr, "memory.read")
		}
		return MemoryResult{Data: base64Encode(data)}, nil

	case "write":
		data, derr := base64Decode(args.Data)
		if derr != nil {
			return MemoryResult{}, toolerr.New(toolerr.InvalidParams, "memory.write: invalid base64 data: %v", derr)
		}
		callErr := s.Call(func() error { return s.Driver.MemoryWrite(ctx, args.Address, data) })
		if callErr != nil {
			return MemoryResult{}, mapMemoryErr(callErr, "memory.write")
		}
		return MemoryResult{Ack: true}, nil

	default:
		return MemoryResult{}, toolerr.New(toolerr.InvalidParams, "memory: unknown action %q", args.Action)
	}
}

// mapMemoryErr additionally distinguishes out-of-range/invalid address
// failures (spec.md §7's MemoryAccessError kind) from generic internal
// errors — drivers surface these as driver.ErrNotSupported only when the
// whole memory model is unavailable (e.g. the CDP driver); anything else
// from a driver that does support memory access is an access failure.
func mapMemoryErr(err error, op string) error {
	if err == nil {
		return nil
	}
	mapped := mapDriverErr(err, op)
	var te *toolerr.Error
	if kindOf(mapped, &te) && te.Kind == toolerr.InternalError {
		return toolerr.Wrap(toolerr.MemoryAccessError, te.Wrapped, "%s: memory access failed", op)
	}
	return mapped
}

func kindOf(err error, out **toolerr.Error) bool {
	te, ok := err.(*toolerr.Error)
	if !ok {
		return false
	}
	*out = te
	return true
}

// Disassemble implements the `disassemble` tool.
func (r *Registry) Disassemble(ctx context.Context, args DisassembleArgs) ([]InstrResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	count := args.InstructionCount
	if count == 0 {
		count = 10
	}
	var instrs []driver.Instr
	callErr := s.Call(func() error {
		var e error
		instrs, e = s.Driver.Disassemble(ctx, args.Address, count, args.ResolveSymbols)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "disassemble")
	}
	out := make([]InstrResult, 0, len(instrs))
	for _, ins := range instrs {
		out = append(out, InstrResult{
			Address: ins.Address, Instruction: ins.Instruction,
			InstructionBytes: ins.InstructionBytes, Symbol: ins.Symbol,
		})
	}
	return out, nil
}

// Registers implements the `registers` tool.
func (r *Registry) Registers(ctx context.Context, args RegistersArgs) ([]RegisterResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	var regs []driver.Register
	callErr := s.Call(func() error {
		var e error
		regs, e = s.Driver.Registers(ctx, args.ThreadID)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "registers")
	}
	out := make([]RegisterResult, 0, len(regs))
	for _, reg := range regs {
		out = append(out, RegisterResult{Name: reg.Name, Value: reg.Value})
	}
	return out, nil
}

// WriteRegister implements the `write_register` tool.
func (r *Registry) WriteRegister(ctx context.Context, args WriteRegisterArgs) (AckResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return AckResult{}, err
	}
	if args.Name == "" {
		return AckResult{}, toolerr.New(toolerr.InvalidParams, "write_register: name is required")
	}
	callErr := s.Call(func() error { return s.Driver.WriteRegister(ctx, args.ThreadID, args.Name, args.Value) })
	if callErr != nil {
		return AckResult{}, mapDriverErr(callErr, "write_register")
	}
	return AckResult{OK: true}, nil
}

// FindSymbol implements the `find_symbol` tool.
func (r *Registry) FindSymbol(ctx context.Context, args FindSymbolArgs) ([]SymbolResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return nil, err
	}
	if args.Name == "" {
		return nil, toolerr.New(toolerr.InvalidParams, "find_symbol: name is required")
	}
	var syms []driver.SymbolInfo
	callErr := s.Call(func() error {
		var e error
		syms, e = s.Driver.FindSymbol(ctx, args.Name)
		return e
	})
	if callErr != nil {
		return nil, mapDriverErr(callErr, "find_symbol")
	}
	out := make([]SymbolResult, 0, len(syms))
	for _, sym := range syms {
		out = append(out, SymbolResult{Name: sym.Name, Address: sym.Address, Size: sym.Size})
	}
	return out, nil
}

// VariableLocation implements the `variable_location` tool.
func (r *Registry) VariableLocation(ctx context.Context, args VariableLocationArgs) (LocationResult, error) {
	s, err := r.resolve(args.SessionID)
	if err != nil {
		return LocationResult{}, err
	}
	if args.Name == "" {
		return LocationResult{}, toolerr.New(toolerr.InvalidParams, "variable_location: name is required")
	}
	var loc driver.Location
	callErr := s.Call(func() error {
		var e error
		loc, e = s.Driver.VariableLocation(ctx, args.Name, args.FrameID)
		return e
	})
	if callErr != nil {
		return LocationResult{}, mapDriverErr(callErr, "variable_location")
	}
	return LocationResult{Kind: loc.Kind, Address: loc.Address, Reg: loc.Reg, Offset: loc.Offset}, nil
}
