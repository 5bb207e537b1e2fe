package nativeengine

import (
	"context"
	"fmt"

	"github.com/agenttools/debugd/internal/driver"
)

func (e *Engine) MemoryRead(ctx context.Context, addr uint64, size int, offset int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.ctrl.ReadMem(addr+uint64(offset), size)
	if err != nil {
		return nil, fmt.Errorf("nativeengine: %w", err)
	}
	return b, nil
}

func (e *Engine) MemoryWrite(ctx context.Context, addr uint64, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ctrl.WriteMem(addr, data); err != nil {
		return fmt.Errorf("nativeengine: %w", err)
	}
	return nil
}

// Disassemble is unsupported: see capsFor's rationale in engine.go.
func (e *Engine) Disassemble(ctx context.Context, addr uint64, count int, resolveSymbols bool) ([]driver.Instr, error) {
	return nil, driver.ErrNotSupported
}

func (e *Engine) Registers(ctx context.Context, threadID int) ([]driver.Register, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs, err := e.ctrl.ReadRegs(threadID)
	if err != nil {
		return nil, fmt.Errorf("nativeengine: %w", err)
	}
	out := make([]driver.Register, 0, len(regs.Named))
	for name, v := range regs.Named {
		out = append(out, driver.Register{Name: name, Value: v})
	}
	return out, nil
}

func (e *Engine) WriteRegister(ctx context.Context, threadID int, name string, value uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs, err := e.ctrl.ReadRegs(threadID)
	if err != nil {
		return fmt.Errorf("nativeengine: %w", err)
	}
	if regs.Named == nil {
		regs.Named = map[string]uint64{}
	}
	regs.Named[name] = value
	switch name {
	case "pc", "rip":
		regs.PC = value
	case "sp", "rsp":
		regs.SP = value
	case "fp", "rbp":
		regs.FP = value
	}
	if err := e.ctrl.WriteRegs(threadID, regs); err != nil {
		return fmt.Errorf("nativeengine: %w", err)
	}
	return nil
}
