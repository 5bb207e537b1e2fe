package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSocketPathPrefersXDGRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/debugd.sock", defaultSocketPath())
}

func TestDefaultSocketPathFallsBackToTmp(t *testing.T) {
	require.NoError(t, os.Unsetenv("XDG_RUNTIME_DIR"))
	assert.Equal(t, "/tmp/debugd.sock", defaultSocketPath())
}

func TestDialOrSpawnFailsFastForUnknownBinary(t *testing.T) {
	sock := t.TempDir() + "/debugd.sock"
	_, err := dialOrSpawn(sock, "definitely-not-a-real-binary-xyz")
	assert.Error(t, err)
}
