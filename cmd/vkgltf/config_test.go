package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vkgltf.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseArgsDefaults(t *testing.T) {
	cfg, paths, err := parseArgs([]string{"a.glb", "b.gltf"})
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, []string{"a.glb", "b.gltf"}, paths)
}

func TestParseArgsConfigFileThenFlags(t *testing.T) {
	path := writeConfig(t, `
backend = "wgpu"
cache_dir = "/tmp/textures"
create_mipmaps = false
workers = 3
log_level = "debug"
`)
	cfg, _, err := parseArgs([]string{"-config", path, "-workers", "8", "model.glb"})
	require.NoError(t, err)

	assert.Equal(t, "wgpu", cfg.Backend)
	assert.Equal(t, "/tmp/textures", cfg.CacheDir)
	assert.False(t, cfg.CreateMipmaps)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Zstd)

	level, err := cfg.level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParseArgsErrors(t *testing.T) {
	_, _, err := parseArgs(nil)
	assert.Error(t, err)

	_, _, err = parseArgs([]string{"-config", writeConfig(t, "unknown_key = 1"), "x.glb"})
	assert.Error(t, err)

	cfg := defaultConfig()
	cfg.LogLevel = "loud"
	_, err = cfg.level()
	assert.Error(t, err)
}
