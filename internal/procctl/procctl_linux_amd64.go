//go:build linux && amd64

package procctl

import (
	"bytes"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// linuxController drives a debuggee via ptrace(2). Every ptrace syscall must
// originate from the same OS thread that issued PTRACE_ATTACH/PTRACE_TRACEME
// (see PTRACE(2)), so all of them are funneled through a single goroutine
// locked to its OS thread via a closure channel — the same shape
// Dparker1990-dbg's Process.ptraceChan/handlePtraceFuncs uses.
type linuxController struct {
	pid int
	cmd *exec.Cmd

	ptraceChan     chan func()
	ptraceDoneChan chan struct{}

	mu      sync.Mutex
	threads map[int]ThreadInfo

	stdoutBuf bytes.Buffer
	stderrBuf bytes.Buffer
	bufMu     sync.Mutex
}

// New constructs a Linux ptrace-backed Controller.
func New() Controller {
	c := &linuxController{
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan struct{}),
		threads:        make(map[int]ThreadInfo),
	}
	go c.ptraceLoop()
	return c
}

func (c *linuxController) ptraceLoop() {
	runtime.LockOSThread()
	for fn := range c.ptraceChan {
		fn()
		c.ptraceDoneChan <- struct{}{}
	}
}

func (c *linuxController) doPtrace(fn func()) {
	c.ptraceChan <- fn
	<-c.ptraceDoneChan
}

func (c *linuxController) Spawn(program string, argv []string, env []string, cwd string, stopOnEntry bool) error {
	cmd := exec.Command(program, argv...)
	cmd.Dir = cwd
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = &unix.SysProcAttr{Ptrace: true, Pdeathsig: unix.SIGKILL}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ErrSpawnFailed{Reason: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ErrSpawnFailed{Reason: err.Error()}
	}
	go c.pump(&c.stdoutBuf, stdout)
	go c.pump(&c.stderrBuf, stderr)

	if err := cmd.Start(); err != nil {
		return &ErrSpawnFailed{Reason: err.Error()}
	}
	c.cmd = cmd
	c.pid = cmd.Process.Pid

	// The child stops itself via PTRACE_TRACEME immediately after exec;
	// reap that initial SIGTRAP here before returning control.
	var ws unix.WaitStatus
	if _, err := unix.Wait4(c.pid, &ws, 0, nil); err != nil {
		return &ErrSpawnFailed{Reason: fmt.Sprintf("initial wait: %v", err)}
	}
	c.doPtrace(func() {
		_ = unix.PtraceSetOptions(c.pid, unix.PTRACE_O_TRACECLONE|unix.PTRACE_O_TRACEEXIT)
	})
	c.mu.Lock()
	c.threads[c.pid] = ThreadInfo{TID: c.pid, Name: "main"}
	c.mu.Unlock()

	if !stopOnEntry {
		return c.Cont()
	}
	return nil
}

func (c *linuxController) pump(buf *bytes.Buffer, r interface{ Read([]byte) (int, error) }) {
	tmp := make([]byte, 4096)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			c.bufMu.Lock()
			buf.Write(tmp[:n])
			c.bufMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (c *linuxController) Attach(pid int) error {
	c.pid = pid
	var attachErr error
	c.doPtrace(func() { attachErr = unix.PtraceAttach(pid) })
	if attachErr != nil {
		if attachErr == unix.EPERM {
			return ErrPermissionDenied
		}
		return &ErrSpawnFailed{Reason: attachErr.Error()}
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return &ErrSpawnFailed{Reason: err.Error()}
	}
	c.mu.Lock()
	c.threads[pid] = ThreadInfo{TID: pid, Name: "main"}
	c.mu.Unlock()
	return nil
}

func (c *linuxController) Cont() error {
	var err error
	c.mu.Lock()
	tids := make([]int, 0, len(c.threads))
	for tid := range c.threads {
		tids = append(tids, tid)
	}
	c.mu.Unlock()
	for _, tid := range tids {
		c.doPtrace(func() {
			if e := unix.PtraceCont(tid, 0); e != nil {
				err = e
			}
		})
	}
	return err
}

func (c *linuxController) SingleStep(tid int) error {
	var err error
	c.doPtrace(func() { err = unix.PtraceSingleStep(tid) })
	return err
}

func (c *linuxController) Interrupt() error {
	c.mu.Lock()
	tids := make([]int, 0, len(c.threads))
	for tid := range c.threads {
		tids = append(tids, tid)
	}
	c.mu.Unlock()
	for _, tid := range tids {
		if err := unix.Tgkill(c.pid, tid, syscall.SIGSTOP); err != nil {
			return err
		}
	}
	return nil
}

func (c *linuxController) ReadRegs(tid int) (Registers, error) {
	var regs unix.PtraceRegs
	var err error
	c.doPtrace(func() { err = unix.PtraceGetRegs(tid, &regs) })
	if err != nil {
		return Registers{}, err
	}
	return Registers{
		PC:   regs.Rip,
		SP:   regs.Rsp,
		FP:   regs.Rbp,
		Arch: "amd64",
		Named: map[string]uint64{
			"rax": regs.Rax, "rbx": regs.Rbx, "rcx": regs.Rcx, "rdx": regs.Rdx,
			"rsi": regs.Rsi, "rdi": regs.Rdi, "rbp": regs.Rbp, "rsp": regs.Rsp,
			"rip": regs.Rip, "r8": regs.R8, "r9": regs.R9, "r10": regs.R10,
			"r11": regs.R11, "r12": regs.R12, "r13": regs.R13, "r14": regs.R14,
			"r15": regs.R15, "eflags": regs.Eflags,
		},
	}, nil
}

func (c *linuxController) WriteRegs(tid int, regs Registers) error {
	var cur unix.PtraceRegs
	var err error
	c.doPtrace(func() { err = unix.PtraceGetRegs(tid, &cur) })
	if err != nil {
		return err
	}
	for name, v := range regs.Named {
		switch name {
		case "rax":
			cur.Rax = v
		case "rbx":
			cur.Rbx = v
		case "rcx":
			cur.Rcx = v
		case "rdx":
			cur.Rdx = v
		case "rsi":
			cur.Rsi = v
		case "rdi":
			cur.Rdi = v
		case "rbp":
			cur.Rbp = v
		case "rsp":
			cur.Rsp = v
		case "rip":
			cur.Rip = v
		case "r8":
			cur.R8 = v
		case "r9":
			cur.R9 = v
		case "r10":
			cur.R10 = v
		case "r11":
			cur.R11 = v
		case "r12":
			cur.R12 = v
		case "r13":
			cur.R13 = v
		case "r14":
			cur.R14 = v
		case "r15":
			cur.R15 = v
		case "eflags":
			cur.Eflags = v
		default:
			return fmt.Errorf("%w: unknown register %q", ErrNotSupported, name)
		}
	}
	// PC/SP/FP are applied last: Named still carries the rip/rsp/rbp values
	// ReadRegs returned, which must not undo a changed PC, SP or FP.
	cur.Rip = regs.PC
	cur.Rsp = regs.SP
	cur.Rbp = regs.FP
	c.doPtrace(func() { err = unix.PtraceSetRegs(tid, &cur) })
	return err
}

func (c *linuxController) ReadMem(addr uint64, size int) ([]byte, error) {
	buf := make([]byte, size)
	var n int
	var err error
	c.doPtrace(func() { n, err = unix.PtracePeekData(c.pid, uintptr(addr), buf) })
	if err != nil || n != size {
		return nil, &ErrMemoryAccess{Addr: addr}
	}
	return buf, nil
}

func (c *linuxController) WriteMem(addr uint64, data []byte) error {
	var n int
	var err error
	c.doPtrace(func() { n, err = unix.PtracePokeData(c.pid, uintptr(addr), data) })
	if err != nil || n != len(data) {
		return &ErrMemoryAccess{Addr: addr}
	}
	return nil
}

func (c *linuxController) Threads() ([]ThreadInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ThreadInfo, 0, len(c.threads))
	for _, t := range c.threads {
		out = append(out, t)
	}
	return out, nil
}

func (c *linuxController) WaitForStop(timeout time.Duration) (StopEvent, error) {
	type result struct {
		tid int
		ws  unix.WaitStatus
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var ws unix.WaitStatus
		tid, err := unix.Wait4(-1, &ws, unix.WALL, nil)
		ch <- result{tid, ws, err}
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timeoutCh = time.After(timeout)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return StopEvent{}, r.err
		}
		return c.classifyStop(r.tid, r.ws), nil
	case <-timeoutCh:
		return StopEvent{}, fmt.Errorf("wait_for_stop: timed out after %v", timeout)
	}
}

func (c *linuxController) classifyStop(tid int, ws unix.WaitStatus) StopEvent {
	switch {
	case ws.Exited():
		c.mu.Lock()
		delete(c.threads, tid)
		c.mu.Unlock()
		return StopEvent{TID: tid, Exited: true, ExitCode: ws.ExitStatus()}
	case ws.Signaled():
		return StopEvent{TID: tid, Signaled: true, Signal: ws.Signal().String()}
	case ws.Stopped():
		if ws.TrapCause() == unix.PTRACE_EVENT_CLONE {
			var msg uint
			c.doPtrace(func() { msg, _ = unix.PtraceGetEventMsg(tid) })
			newTID := int(msg)
			c.mu.Lock()
			c.threads[newTID] = ThreadInfo{TID: newTID, Name: fmt.Sprintf("thread-%d", newTID)}
			c.mu.Unlock()
			return StopEvent{TID: tid, Cloned: true, NewTID: newTID}
		}
		return StopEvent{TID: tid, Trapped: ws.StopSignal() == unix.SIGTRAP, Signal: ws.StopSignal().String()}
	}
	return StopEvent{TID: tid}
}

// SetHardwareWatchpoint would require programming DR0-DR3/DR7 through
// PTRACE_POKEUSER at fixed offsets into struct user; without a grounded
// reference for that offset table, reporting NotSupported honestly beats
// handing back an id for a watch that can never fire (spec §8 invariant 9,
// same call as Disassemble's absent decoder).
func (c *linuxController) SetHardwareWatchpoint(addr uint64, size int, access WatchAccess) (int, error) {
	return 0, ErrNotSupported
}

func (c *linuxController) ClearHardwareWatchpoint(id int) error {
	return ErrNotSupported
}

func (c *linuxController) DrainOutput() (string, string) {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	out, errs := c.stdoutBuf.String(), c.stderrBuf.String()
	c.stdoutBuf.Reset()
	c.stderrBuf.Reset()
	return out, errs
}

func (c *linuxController) Pid() int { return c.pid }

func (c *linuxController) Close() error {
	close(c.ptraceChan)
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return nil
}
