package nativeengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/evaluator"
	"github.com/agenttools/debugd/internal/procctl"
)

// fakeCtrl is a minimal procctl.Controller double: everything a test doesn't
// touch returns a zero value, since none of the tests here spawn a real
// ptrace target.
type fakeCtrl struct {
	pid int
}

func (c *fakeCtrl) Spawn(program string, argv []string, env []string, cwd string, stopOnEntry bool) error {
	return nil
}
func (c *fakeCtrl) Attach(pid int) error { return nil }
func (c *fakeCtrl) Cont() error          { return nil }
func (c *fakeCtrl) SingleStep(tid int) error { return nil }
func (c *fakeCtrl) Interrupt() error     { return nil }
func (c *fakeCtrl) ReadRegs(tid int) (procctl.Registers, error) {
	return procctl.Registers{}, nil
}
func (c *fakeCtrl) WriteRegs(tid int, regs procctl.Registers) error { return nil }
func (c *fakeCtrl) ReadMem(addr uint64, size int) ([]byte, error)  { return make([]byte, size), nil }
func (c *fakeCtrl) WriteMem(addr uint64, data []byte) error        { return nil }
func (c *fakeCtrl) Threads() ([]procctl.ThreadInfo, error)         { return nil, nil }
func (c *fakeCtrl) WaitForStop(timeout time.Duration) (procctl.StopEvent, error) {
	return procctl.StopEvent{}, nil
}
func (c *fakeCtrl) SetHardwareWatchpoint(addr uint64, size int, access procctl.WatchAccess) (int, error) {
	return 0, nil
}
func (c *fakeCtrl) ClearHardwareWatchpoint(id int) error { return nil }
func (c *fakeCtrl) DrainOutput() (string, string)        { return "", "" }
func (c *fakeCtrl) Pid() int                             { return c.pid }
func (c *fakeCtrl) Close() error                          { return nil }

func newTestEngine() *Engine {
	e := New(evaluator.DivisionTruncating)
	e.ctrl = &fakeCtrl{pid: 4242}
	e.program = "/bin/testprog"
	return e
}

func TestCapabilitiesReportsNoDisassemble(t *testing.T) {
	e := newTestEngine()
	caps, err := e.Capabilities(context.Background())
	require.NoError(t, err)
	assert.False(t, caps.SupportsDisassemble)
	assert.True(t, caps.SupportsReadMemory)
}

func TestStopUsesConfiguredDetachFlag(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.Stop(context.Background(), true, false))
	assert.True(t, e.detached)
}

func TestPollEventsDrainsAndClears(t *testing.T) {
	e := newTestEngine()
	e.pushEventLocked("output", map[string]any{"text": "hello\n"})
	e.pushEventLocked("output", map[string]any{"text": "world\n"})

	evs, err := e.PollEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	evs, err = e.PollEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestCancelIsANoOp(t *testing.T) {
	e := newTestEngine()
	assert.NoError(t, e.Cancel(context.Background(), "req-1", ""))
}

func TestTerminateThreadsNotSupported(t *testing.T) {
	e := newTestEngine()
	err := e.TerminateThreads(context.Background(), []int{1})
	assert.ErrorIs(t, err, driver.ErrNotSupported)
}

func TestUnsupportedOperationsReturnErrNotSupported(t *testing.T) {
	e := newTestEngine()

	_, err := e.LoadedSources(context.Background())
	assert.ErrorIs(t, err, driver.ErrNotSupported)

	_, err = e.Source(context.Background(), 1)
	assert.ErrorIs(t, err, driver.ErrNotSupported)

	_, err = e.Completions(context.Background(), "foo.", 4, 0)
	assert.ErrorIs(t, err, driver.ErrNotSupported)

	_, err = e.StepInTargets(context.Background(), 0)
	assert.ErrorIs(t, err, driver.ErrNotSupported)

	err = e.RestartFrame(context.Background(), 0)
	assert.ErrorIs(t, err, driver.ErrNotSupported)
}

func TestFindSymbolWithoutDWARFIsNotSupported(t *testing.T) {
	e := newTestEngine()
	_, err := e.FindSymbol(context.Background(), "main.main")
	assert.ErrorIs(t, err, driver.ErrNotSupported)
}

func TestModulesReportsProgramPath(t *testing.T) {
	e := newTestEngine()
	mods, err := e.Modules(context.Background())
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "/bin/testprog", mods[0].Path)
	assert.False(t, mods[0].Symbols)
}

func TestExceptionInfoRequiresExceptionStop(t *testing.T) {
	e := newTestEngine()
	_, err := e.ExceptionInfo(context.Background(), 1)
	assert.Error(t, err)

	e.stop.Reason = driver.StopException
	e.stop.ExceptionID = "SIGSEGV"
	got, err := e.ExceptionInfo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "SIGSEGV", got.ExceptionID)
}
