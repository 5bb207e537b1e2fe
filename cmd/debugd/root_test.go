package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultSocketPathPrefersXDGRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/debugd.sock", defaultSocketPath())
}

func TestDefaultSocketPathFallsBackToTmp(t *testing.T) {
	require.NoError(t, os.Unsetenv("XDG_RUNTIME_DIR"))
	assert.Equal(t, "/tmp/debugd.sock", defaultSocketPath())
}

func TestNewLoggerMapsLevelNames(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"info":  zapcore.InfoLevel,
		"bogus": zapcore.InfoLevel,
	}
	for name, want := range cases {
		logger, err := newLogger(name)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(want), "level %q should enable %v", name, want)
		if want > zapcore.DebugLevel {
			assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), "level %q should not enable debug", name)
		}
	}
}
