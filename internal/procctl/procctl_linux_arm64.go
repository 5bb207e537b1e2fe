//go:build linux && arm64

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

// linuxController is the AArch64 counterpart of the amd64 build: same
// ptrace-funneling-goroutine shape, different register struct (PC/SP/X0..X30
// instead of RIP/RSP/RAX..).
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
	c.doPtrace(func() { err = unix.PtraceGetRegsArm64(tid, &regs) })
	if err != nil {
		return Registers{}, err
	}
	named := map[string]uint64{"pc": regs.Pc, "sp": regs.Sp, "pstate": regs.Pstate}
	for i, v := range regs.Regs {
		named[fmt.Sprintf("x%d", i)] = v
	}
	return Registers{PC: regs.Pc, SP: regs.Sp, FP: regs.Regs[29], Arch: "arm64", Named: named}, nil
}

func (c *linuxController) WriteRegs(tid int, regs Registers) error {
	var cur unix.PtraceRegs
	var err error
	c.doPtrace(func() { err = unix.PtraceGetRegsArm64(tid, &cur) })
	if err != nil {
		return err
	}
	cur.Pc = regs.PC
	cur.Sp = regs.SP
	cur.Regs[29] = regs.FP
	c.doPtrace(func() { err = unix.PtraceSetRegsArm64(tid, &cur) })
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

// SetHardwareWatchpoint would need NT_ARM_HW_WATCH regset writes via
// PTRACE_SETREGSET (DBGWVR/DBGWCR); without a grounded reference for that
// regset layout, report NotSupported rather than hand back an id for a
// watch that can never fire (spec §8 invariant 9).
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
