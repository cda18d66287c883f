package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

func newCacheTexture(t *testing.T, format gpu.Format, width, height, levels uint32) *ktx2.Texture {
	t.Helper()
	tex, err := ktx2.New(format, width, height, levels)
	require.NoError(t, err)
	return tex
}

func TestTextureCacheKey(t *testing.T) {
	c := newTextureCache("", discardLogger())
	assert.Equal(t, "helmet_3_9.ktx2", c.Key("helmet", 3, 9))
	assert.False(t, c.Writable())
}

func TestTextureCacheRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c := newTextureCache(dir, discardLogger())
	require.True(t, c.Writable())
	assert.DirExists(t, dir)

	key := c.Key("box", 0, 3)
	_, ok := c.Lookup(key, 4, 4, 3, true)
	assert.False(t, ok)

	c.Store(key, newCacheTexture(t, gpu.FormatRGBA8Srgb, 4, 4, 3))
	got, ok := c.Lookup(key, 4, 4, 3, true)
	require.True(t, ok)
	assert.Equal(t, uint32(3), got.LevelCount())
	assert.True(t, got.SRGB)
}

func TestTextureCacheStaleEntries(t *testing.T) {
	dir := t.TempDir()
	c := newTextureCache(dir, discardLogger())
	key := c.Key("box", 0, 1)
	c.Store(key, newCacheTexture(t, gpu.FormatRGBA8Unorm, 4, 4, 1))

	tests := []struct {
		name          string
		width, height uint32
		srgb          bool
	}{
		{name: "extent", width: 8, height: 4},
		{name: "color space", width: 4, height: 4, srgb: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := c.Lookup(key, tt.width, tt.height, 1, tt.srgb)
			assert.False(t, ok)
		})
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, key), []byte("garbage"), 0o644))
	_, ok := c.Lookup(key, 4, 4, 1, false)
	assert.False(t, ok)
}

func TestTextureCacheOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	c := newTextureCache(path, discardLogger())
	assert.False(t, c.Writable())
	c.Store(c.Key("x", 0, 1), newCacheTexture(t, gpu.FormatRGBA8Unorm, 1, 1, 1))
	_, ok := c.Lookup(c.Key("x", 0, 1), 1, 1, 1, false)
	assert.False(t, ok)
}

func TestTextureCacheUncreatableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	dir := filepath.Join(file, "cache")

	c := newTextureCache(dir, discardLogger())
	assert.False(t, c.Writable())
	assert.NoDirExists(t, dir)

	key := c.Key("x", 0, 1)
	c.Store(key, newCacheTexture(t, gpu.FormatRGBA8Unorm, 1, 1, 1))
	_, ok := c.Lookup(key, 1, 1, 1, false)
	assert.False(t, ok)
}
