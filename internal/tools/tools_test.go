package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/adapterdriver"
	"github.com/agenttools/debugd/internal/driver"
	"github.com/agenttools/debugd/internal/session"
	"github.com/agenttools/debugd/internal/toolerr"
)

// stubDriver overrides only the methods a given test exercises; any other
// call would panic on the embedded nil Driver, which is fine since no test
// here reaches those paths.
type stubDriver struct {
	driver.Driver
	restartErr      error
	capabilities    driver.CapSet
	capabilitiesErr error
	cancelCalls     int
}

func (d *stubDriver) Restart(ctx context.Context) error { return d.restartErr }

func (d *stubDriver) Capabilities(ctx context.Context) (driver.CapSet, error) {
	return d.capabilities, d.capabilitiesErr
}

func (d *stubDriver) Cancel(ctx context.Context, requestID, progressID string) error {
	d.cancelCalls++
	return nil
}

func (d *stubDriver) Stop(ctx context.Context, detach, terminateOnly bool) error { return nil }

func newRegistry(t *testing.T) (*Registry, *session.Manager) {
	t.Helper()
	mgr := session.New(session.Config{MaxSessions: 4}, zap.NewNop())
	t.Cleanup(mgr.Close)
	reg := New(mgr, adapterdriver.NewSpawner(zap.NewNop()), adapterdriver.DefaultManifests(), zap.NewNop())
	return reg, mgr
}

func TestLaunchRequiresProgram(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Launch(context.Background(), LaunchArgs{})
	require.Error(t, err)
	assert.Equal(t, toolerr.InvalidParams, toolerr.KindOf(err))
}

func TestAttachRequiresPIDOrPort(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Attach(context.Background(), AttachArgs{})
	require.Error(t, err)
	assert.Equal(t, toolerr.InvalidParams, toolerr.KindOf(err))
}

func TestSessionsEmptyReturnsEmptySlice(t *testing.T) {
	reg, _ := newRegistry(t)
	out, err := reg.Sessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestStopUnknownSessionReturnsSessionNotFound(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Stop(context.Background(), StopArgs{SessionID: "session-999"})
	require.Error(t, err)
	assert.Equal(t, toolerr.SessionNotFound, toolerr.KindOf(err))
}

func TestRestartWrapsDriverError(t *testing.T) {
	reg, mgr := newRegistry(t)
	d := &stubDriver{restartErr: driver.ErrNotSupported}
	s, err := mgr.Register(d, session.DriverNative, "go", "/bin/prog")
	require.NoError(t, err)

	_, err = reg.Restart(context.Background(), SessionArgs{SessionID: s.ID})
	require.Error(t, err)
	assert.Equal(t, toolerr.NotSupported, toolerr.KindOf(err))
}

func TestCapabilitiesReturnsDriverResult(t *testing.T) {
	reg, mgr := newRegistry(t)
	d := &stubDriver{capabilities: driver.CapSet{SupportsStepBack: true}}
	s, err := mgr.Register(d, session.DriverNative, "go", "/bin/prog")
	require.NoError(t, err)

	got, err := reg.Capabilities(context.Background(), CapabilitiesArgs{SessionID: s.ID})
	require.NoError(t, err)
	assert.True(t, got.SupportsStepBack)
}

func TestCancelForwardsToEveryLiveSession(t *testing.T) {
	reg, mgr := newRegistry(t)
	d1, d2 := &stubDriver{}, &stubDriver{}
	_, err := mgr.Register(d1, session.DriverNative, "go", "/bin/a")
	require.NoError(t, err)
	_, err = mgr.Register(d2, session.DriverNative, "go", "/bin/b")
	require.NoError(t, err)

	got, err := reg.Cancel(context.Background(), CancelArgs{RequestID: "req-1"})
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
	assert.Equal(t, 1, d1.cancelCalls)
	assert.Equal(t, 1, d2.cancelCalls)
}

func TestDivModeForLanguage(t *testing.T) {
	assert.Equal(t, divModeFor("python"), divModeFor("python"))
	assert.NotEqual(t, divModeFor("python"), divModeFor("javascript"))
	assert.NotEqual(t, divModeFor("javascript"), divModeFor("go"))
}

func TestManifestForUnknownLanguageFallsBackToNative(t *testing.T) {
	reg, _ := newRegistry(t)
	m := reg.manifestFor("cobol")
	assert.Equal(t, "native", m.Type)
}
