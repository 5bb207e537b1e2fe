package nativeengine

import "github.com/agenttools/debugd/internal/procctl"

// dwarfRegName maps a DWARF register number to this architecture's Named
// register key in procctl.Registers, per the System V x86-64 / AArch64
// DWARF register-number conventions the rest of the toolchain (compilers,
// unwind tables) assumes.
func dwarfRegName(arch string, n int) (string, bool) {
	switch arch {
	case "amd64":
		names := map[int]string{
			0: "rax", 1: "rdx", 2: "rcx", 3: "rbx", 4: "rsi", 5: "rdi",
			6: "rbp", 7: "rsp", 8: "r8", 9: "r9", 10: "r10", 11: "r11",
			12: "r12", 13: "r13", 14: "r14", 15: "r15", 16: "rip",
		}
		name, ok := names[n]
		return name, ok
	case "arm64":
		if n >= 0 && n <= 30 {
			return regNameArm(n), true
		}
		if n == 31 {
			return "sp", true
		}
		if n == 32 {
			return "pc", true
		}
		return "", false
	}
	return "", false
}

func regNameArm(n int) string {
	names := [31]string{}
	for i := range names {
		names[i] = "x" + itoa(i)
	}
	return names[n]
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// frameRegisterAdapter implements evaluator.RegisterAdapter against one
// unwound frame's register snapshot,
// exactly the "evaluator never reads current process registers" contract
// of spec §4.2/§9.
type frameRegisterAdapter struct {
	arch      string
	named     map[string]uint64
	frameBase uint64
	cfa       uint64 // synthetic register -1, used by DW_OP_call_frame_cfa
}

func (f *frameRegisterAdapter) Reg(dwarfRegNum int) (uint64, bool) {
	if dwarfRegNum == -1 {
		return f.cfa, f.cfa != 0
	}
	name, ok := dwarfRegName(f.arch, dwarfRegNum)
	if !ok {
		return 0, false
	}
	v, ok := f.named[name]
	return v, ok
}

func (f *frameRegisterAdapter) FrameBase() uint64 { return f.frameBase }

// memReader adapts procctl.Controller to evaluator.MemoryReader and
// breakpoints.TrapWriter.
type memReader struct {
	ctrl procctl.Controller
}

func (m *memReader) ReadMem(addr uint64, size int) ([]byte, error)  { return m.ctrl.ReadMem(addr, size) }
func (m *memReader) WriteMem(addr uint64, data []byte) error        { return m.ctrl.WriteMem(addr, data) }

func watchAccessFromByte(b byte) procctl.WatchAccess {
	switch b {
	case 0:
		return procctl.WatchRead
	case 1:
		return procctl.WatchWrite
	default:
		return procctl.WatchReadWrite
	}
}
