package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/memrefs"
)

// stubDriver is a minimal driver.Driver that records Stop calls and lets
// every other method panic if exercised — session tests only need to drive
// registration, serialization, and teardown, not any particular backend
// semantics.
type stubDriver struct {
	driver.Driver
	stopCalls int
	stopErr   error
}

func (d *stubDriver) Stop(ctx context.Context, detach, terminateOnly bool) error {
	d.stopCalls++
	return d.stopErr
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	m := New(Config{MaxSessions: 2, IdleTimeout: time.Hour}, zap.NewNop())
	t.Cleanup(m.Close)
	return m
}

func TestRegisterAssignsMonotonicIDs(t *testing.T) {
	m := newManager(t)
	s1, err := m.Register(&stubDriver{}, DriverNative, "go", "/bin/prog")
	require.NoError(t, err)
	s2, err := m.Register(&stubDriver{}, DriverNative, "go", "/bin/prog")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, StatusInitializing, s1.Status())
}

func TestRegisterEnforcesMaxSessions(t *testing.T) {
	m := newManager(t)
	_, err := m.Register(&stubDriver{}, DriverNative, "go", "/bin/a")
	require.NoError(t, err)
	_, err = m.Register(&stubDriver{}, DriverNative, "go", "/bin/b")
	require.NoError(t, err)
	_, err = m.Register(&stubDriver{}, DriverNative, "go", "/bin/c")
	assert.Error(t, err)
}

func TestCallSerializesAndTouches(t *testing.T) {
	m := newManager(t)
	s, err := m.Register(&stubDriver{}, DriverNative, "go", "/bin/prog")
	require.NoError(t, err)

	before := s.idleFor()
	time.Sleep(time.Millisecond)
	err = s.Call(func() error { return nil })
	require.NoError(t, err)
	assert.Less(t, s.idleFor(), before+time.Second)
}

func TestSetLastStopUpdatesStatus(t *testing.T) {
	m := newManager(t)
	s, err := m.Register(&stubDriver{}, DriverNative, "go", "/bin/prog")
	require.NoError(t, err)

	s.SetLastStop(driver.StopContext{Reason: driver.StopBreakpoint})
	assert.Equal(t, StatusStopped, s.Status())

	s.SetLastStop(driver.StopContext{Reason: driver.StopExit})
	assert.Equal(t, StatusTerminated, s.Status())
}

func TestTerminateRemovesSessionAndCallsStop(t *testing.T) {
	m := newManager(t)
	d := &stubDriver{}
	s, err := m.Register(d, DriverNative, "go", "/bin/prog")
	require.NoError(t, err)

	require.NoError(t, m.Terminate(context.Background(), s.ID, true, false))
	assert.Equal(t, 1, d.stopCalls)
	_, ok := m.Get(s.ID)
	assert.False(t, ok)
}

func TestTerminateUnknownSessionErrors(t *testing.T) {
	m := newManager(t)
	err := m.Terminate(context.Background(), "session-does-not-exist", true, false)
	assert.Error(t, err)
}

func TestGroupStopAllTerminatesSiblings(t *testing.T) {
	m := newManager(t)
	d1, d2 := &stubDriver{}, &stubDriver{}
	s1, err := m.Register(d1, DriverNative, "go", "/bin/a")
	require.NoError(t, err)
	s2, err := m.Register(d2, DriverNative, "go", "/bin/b")
	require.NoError(t, err)

	m.Group("compound-1", []string{s1.ID, s2.ID}, true)

	require.NoError(t, m.Terminate(context.Background(), s1.ID, true, false))
	assert.Equal(t, 1, d1.stopCalls)
	assert.Equal(t, 1, d2.stopCalls)
	_, ok := m.Get(s2.ID)
	assert.False(t, ok)
}

func TestSetMemoryRefSurfacesInInfo(t *testing.T) {
	m := newManager(t)
	s, err := m.Register(&stubDriver{}, DriverNative, "go", "/bin/prog")
	require.NoError(t, err)

	_, ok := s.MemoryRef()
	assert.False(t, ok)
	assert.Nil(t, s.Info().MemoryRef)

	s.SetMemoryRef(memrefs.MemoryRef{EngramID: "engram-42"})

	ref, ok := s.MemoryRef()
	require.True(t, ok)
	assert.Equal(t, "engram-42", ref.EngramID)
	require.NotNil(t, s.Info().MemoryRef)
	assert.Equal(t, "engram-42", s.Info().MemoryRef.EngramID)
}

func TestGroupWithoutStopAllLeavesSiblings(t *testing.T) {
	m := newManager(t)
	d1, d2 := &stubDriver{}, &stubDriver{}
	s1, err := m.Register(d1, DriverNative, "go", "/bin/a")
	require.NoError(t, err)
	s2, err := m.Register(d2, DriverNative, "go", "/bin/b")
	require.NoError(t, err)

	m.Group("compound-2", []string{s1.ID, s2.ID}, false)

	require.NoError(t, m.Terminate(context.Background(), s1.ID, true, false))
	assert.Equal(t, 0, d2.stopCalls)
	_, ok := m.Get(s2.ID)
	assert.True(t, ok)
}
