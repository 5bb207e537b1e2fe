// Package adapterdriver resolves a target language to an external debug
// adapter and spawns/dials it, producing a driver.Driver ready for
// Launch/Attach (spec.md §6.3's "Adapter Manifest"). The wire-level clients
// live in the dap and cdp subpackages; this package is the manifest
// registry plus the spawn step ctagard-dap-mcp's
// DelveSpawner/DebugpySpawner/NodeSpawner implement per-language.
package adapterdriver

// Manifest teaches the daemon how to start (or connect to) an external
// adapter for one language, per spec.md §6.3.
type Manifest struct {
	Type            string // "dap" or "native"
	Adapter         AdapterConfig
	LaunchArgs      map[string]any
	BoundaryMarkers []string
}

// AdapterConfig is the executable and transport for one adapter.
type AdapterConfig struct {
	Command   string
	Args      []string // argv, with "{port}" substituted at spawn time
	Transport string   // "tcp", "stdio", or "cdp"
}

// DefaultManifests is the built-in language -> adapter table that cmd/debugd
// hands to tools.New; no flag or config file extends or overrides it.
func DefaultManifests() map[string]Manifest {
	return map[string]Manifest{
		"go": {
			Type: "dap",
			Adapter: AdapterConfig{
				Command:   "dlv",
				Args:      []string{"dap", "--listen", "127.0.0.1:{port}"},
				Transport: "tcp",
			},
		},
		"python": {
			Type: "dap",
			Adapter: AdapterConfig{
				Command:   "python3",
				Args:      []string{"-m", "debugpy.adapter", "--host", "127.0.0.1", "--port", "{port}"},
				Transport: "tcp",
			},
		},
		"javascript": {
			Type: "dap",
			Adapter: AdapterConfig{
				Transport: "cdp",
			},
		},
		"node": {
			Type: "dap",
			Adapter: AdapterConfig{
				Transport: "cdp",
			},
		},
		"c": {Type: "native"},
		"cpp": {Type: "native"},
		"rust": {Type: "native"},
	}
}
