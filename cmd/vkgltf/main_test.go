package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "empty.gltf")
	require.NoError(t, os.WriteFile(doc, []byte(`{
  "asset": {"version": "2.0"},
  "nodes": [{"name": "root"}],
  "scenes": [{"nodes": [0]}],
  "scene": 0
}`), 0o644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no documents", args: nil, want: 2},
		{name: "loads", args: []string{"-log-level", "error", "-cache", "", doc}, want: 0},
		{name: "missing document", args: []string{"-log-level", "error", filepath.Join(dir, "missing.glb")}, want: 1},
		{name: "unknown backend", args: []string{"-log-level", "error", "-backend", "vulkan", doc}, want: 1},
		{name: "bad log level", args: []string{"-log-level", "loud", doc}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.args))
		})
	}
}
