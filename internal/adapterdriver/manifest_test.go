package adapterdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultManifestsCoverEveryNativeAndAdapterLanguage(t *testing.T) {
	m := DefaultManifests()

	native := []string{"c", "cpp", "rust"}
	for _, lang := range native {
		assert.Equal(t, "native", m[lang].Type, "language %s", lang)
	}

	dapTCP := []string{"go", "python"}
	for _, lang := range dapTCP {
		assert.Equal(t, "dap", m[lang].Type, "language %s", lang)
		assert.Equal(t, "tcp", m[lang].Adapter.Transport, "language %s", lang)
		assert.NotEmpty(t, m[lang].Adapter.Command, "language %s", lang)
	}

	cdp := []string{"javascript", "node"}
	for _, lang := range cdp {
		assert.Equal(t, "cdp", m[lang].Adapter.Transport, "language %s", lang)
	}
}

func TestFindAvailablePortReturnsUsablePort(t *testing.T) {
	port, err := findAvailablePort()
	assert.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.Less(t, port, 65536)
}
