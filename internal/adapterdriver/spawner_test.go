package adapterdriver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSpawnCDPTransportNeedsNoProcess(t *testing.T) {
	s := NewSpawner(zap.NewNop())
	manifest := DefaultManifests()["javascript"]

	spawned, err := s.Spawn(context.Background(), manifest)
	require.NoError(t, err)
	assert.Equal(t, "cdp", spawned.Kind)
	assert.Nil(t, spawned.Cmd)
	assert.NotNil(t, spawned.Driver)
}
