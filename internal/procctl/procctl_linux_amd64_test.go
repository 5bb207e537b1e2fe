//go:build linux && amd64

package procctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHardwareWatchpointReportsNotSupported(t *testing.T) {
	c := New()
	defer c.Close()

	_, err := c.SetHardwareWatchpoint(0x1000, 8, WatchWrite)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestClearUnknownWatchpoint(t *testing.T) {
	c := New()
	defer c.Close()

	err := c.ClearHardwareWatchpoint(999)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestDrainOutputResetsBuffers(t *testing.T) {
	lc := New().(*linuxController)
	lc.stdoutBuf.WriteString("hello")
	lc.stderrBuf.WriteString("oops")

	out, errs := lc.DrainOutput()
	assert.Equal(t, "hello", out)
	assert.Equal(t, "oops", errs)

	out2, errs2 := lc.DrainOutput()
	assert.Empty(t, out2)
	assert.Empty(t, errs2)
}
