package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

// textureCacheImpl is the implementation of the textureCache interface.
type textureCacheImpl struct {
	dir    string
	lookup bool
	write  bool
	logger *slog.Logger
}

// textureCache is the on-disk store of compressed textures: one flat KTX2 file per source image,
// keyed by document stem, image index and mip count.
// Cache I/O never fails a load; unreadable entries are misses and unwritable directories disable writes.
type textureCache interface {
	// Key returns the cache file name of an image.
	//
	// Parameters:
	//   - stem: the document stem
	//   - imageIndex: the image index in the document
	//   - mipCount: the mip level count of the compressed texture
	//
	// Returns:
	//   - string: "<stem>_<imageIndex>_<mipCount>.ktx2"
	Key(stem string, imageIndex int, mipCount uint32) string

	// Lookup reads a cached texture. Missing, corrupt and mismatching files are misses.
	//
	// Parameters:
	//   - key: the cache file name
	//   - width: the expected base level width
	//   - height: the expected base level height
	//   - mipCount: the expected level count
	//   - srgb: the expected color space
	//
	// Returns:
	//   - *ktx2.Texture: the cached texture on a hit
	//   - bool: true on a hit
	Lookup(key string, width, height, mipCount uint32, srgb bool) (*ktx2.Texture, bool)

	// Store writes a compressed texture atomically. Failures are logged.
	//
	// Parameters:
	//   - key: the cache file name
	//   - t: the compressed texture, before transcoding
	Store(key string, t *ktx2.Texture)

	// Writable reports whether Store persists anything.
	//
	// Returns:
	//   - bool: true when cache writes are enabled
	Writable() bool
}

var _ textureCache = &textureCacheImpl{}

// newTextureCache opens a cache directory. An empty dir disables the cache. A missing directory is
// created; when that fails the cache is used without persistence.
//
// Parameters:
//   - dir: the cache directory, empty to disable
//   - logger: destination of degraded-path warnings
//
// Returns:
//   - textureCache: the cache
func newTextureCache(dir string, logger *slog.Logger) textureCache {
	c := &textureCacheImpl{dir: dir, logger: logger}
	if dir == "" {
		return c
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		c.lookup, c.write = true, true
	case err == nil:
		logger.Warn("texture cache path is not a directory, caching disabled", "dir", dir)
	default:
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			logger.Warn("cannot create texture cache directory, cache writes disabled", "dir", dir, "error", mkErr)
			return c
		}
		c.lookup, c.write = true, true
	}
	return c
}

func (c *textureCacheImpl) Key(stem string, imageIndex int, mipCount uint32) string {
	return fmt.Sprintf("%s_%d_%d.ktx2", stem, imageIndex, mipCount)
}

func (c *textureCacheImpl) Writable() bool {
	return c.write
}

func (c *textureCacheImpl) Lookup(key string, width, height, mipCount uint32, srgb bool) (*ktx2.Texture, bool) {
	if !c.lookup {
		return nil, false
	}
	path := filepath.Join(c.dir, key)

	t, err := ktx2.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("unreadable texture cache entry, treating as miss", "path", path, "error", err)
		}
		return nil, false
	}
	if t.Width != width || t.Height != height || t.LevelCount() != mipCount || t.SRGB != srgb {
		c.logger.Warn("stale texture cache entry, treating as miss", "path", path,
			"extent", fmt.Sprintf("%dx%d", t.Width, t.Height), "levels", t.LevelCount(), "srgb", t.SRGB)
		return nil, false
	}
	return t, true
}

func (c *textureCacheImpl) Store(key string, t *ktx2.Texture) {
	if !c.write {
		return
	}
	path := filepath.Join(c.dir, key)
	if err := t.WriteFile(path); err != nil {
		c.logger.Warn("texture cache write failed", "path", path, "error", err)
	}
}
