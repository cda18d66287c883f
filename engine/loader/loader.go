package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/model"
	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

// LoaderBackendType identifies the asset file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// Errors returned by Load. Every failure is wrapped around one of these so callers can use errors.Is.
var (
	// ErrNoDevice is returned when a load is attempted on a Loader built without a device.
	ErrNoDevice = errors.New("loader: no GPU device")
	// ErrUnsupportedFormat is returned for files whose extension no backend handles.
	ErrUnsupportedFormat = errors.New("loader: unsupported asset format")
	// ErrInvalidDocument is returned when the document cannot be parsed or fails validation.
	ErrInvalidDocument = errors.New("loader: invalid document")
	// ErrDecodeImage is returned when an image cannot be read or decoded.
	ErrDecodeImage = errors.New("loader: image decode failed")
	// ErrCompression is returned when a texture cannot be block compressed.
	ErrCompression = errors.New("loader: texture compression failed")
	// ErrTranscode is returned when a compressed payload cannot be transcoded to the target format.
	ErrTranscode = errors.New("loader: texture transcode failed")
	// ErrGPU is returned when a GPU allocation or transfer fails.
	ErrGPU = errors.New("loader: GPU operation failed")
	// ErrReleased is returned by Load after Release.
	ErrReleased = errors.New("loader: released")
)

// LoadOptions are the per-load inputs.
type LoadOptions struct {
	// Path is the glTF or GLB document. Side-car buffers and images are resolved relative to it.
	Path string

	// CacheDir is the texture cache directory. Empty disables the cache.
	CacheDir string

	// CreateMipmaps generates a full mip chain for every image.
	CreateMipmaps bool
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	device  gpu.Device
	logger  *slog.Logger
	workers int

	supercompress bool
	encoder       ktx2.Encoder
	encoderOnce   sync.Once
	encoderErr    error

	assetCache map[string]*model.Asset
	released   bool

	backend loaderBackend
}

// Loader imports glTF documents into GPU-resident assets and keeps a registry of loaded assets by path.
// The file format is abstracted behind a backend selected by file extension.
// A Loader may be shared between goroutines; loads themselves run one transfer at a time on the calling goroutine.
type Loader interface {
	// Load imports a document and registers the result under opts.Path.
	// If an asset is already registered for the path, the registered asset is returned.
	//
	// Parameters:
	//   - opts: the document path, cache directory and mip generation flag
	//
	// Returns:
	//   - *model.Asset: the loaded asset, owned by the caller until Unload
	//   - error: error if the document is invalid or any stage fails; nothing is left allocated on error
	Load(opts LoadOptions) (*model.Asset, error)

	// Get retrieves a registered asset by path. Returns nil if not found.
	//
	// Parameters:
	//   - path: the path the asset was loaded from
	//
	// Returns:
	//   - *model.Asset: the registered asset or nil
	Get(path string) *model.Asset

	// Assets returns a copy of the registry.
	//
	// Returns:
	//   - map[string]*model.Asset: all registered assets keyed by path
	Assets() map[string]*model.Asset

	// Unload destroys a registered asset and removes it from the registry.
	//
	// Parameters:
	//   - path: the path the asset was loaded from
	//
	// Returns:
	//   - bool: true if an asset was registered for path
	Unload(path string) bool

	// Device returns the GPU device assets are created on.
	//
	// Returns:
	//   - gpu.Device: the device, nil if none was configured
	Device() gpu.Device

	// Release destroys every registered asset and stops the texture compression workers.
	// Load fails with ErrReleased afterwards. Release must not run while a Load is in progress.
	// The device is not released.
	Release()
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:            sync.RWMutex{},
		logger:        slog.Default(),
		workers:       max(runtime.NumCPU(), 1),
		supercompress: true,
		assetCache:    make(map[string]*model.Asset),
	}

	for _, option := range options {
		option(l)
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend(l)
	}
	return l
}

func (l *loader) Load(opts LoadOptions) (*model.Asset, error) {
	l.mu.RLock()
	if l.released {
		l.mu.RUnlock()
		return nil, ErrReleased
	}
	if cached, ok := l.assetCache[opts.Path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	if l.device == nil {
		return nil, ErrNoDevice
	}

	backend, err := l.resolveBackend(opts.Path)
	if err != nil {
		return nil, err
	}

	asset, err := backend.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", opts.Path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		asset.Destroy()
		return nil, ErrReleased
	}
	// Another goroutine may have registered the same path while this load ran.
	if cached, ok := l.assetCache[opts.Path]; ok {
		asset.Destroy()
		return cached, nil
	}
	l.assetCache[opts.Path] = asset
	return asset, nil
}

func (l *loader) Get(path string) *model.Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.assetCache[path]
}

func (l *loader) Assets() map[string]*model.Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*model.Asset, len(l.assetCache))
	for k, v := range l.assetCache {
		result[k] = v
	}
	return result
}

func (l *loader) Unload(path string) bool {
	l.mu.Lock()
	asset, ok := l.assetCache[path]
	delete(l.assetCache, path)
	l.mu.Unlock()

	if ok {
		asset.Destroy()
	}
	return ok
}

func (l *loader) Device() gpu.Device {
	return l.device
}

func (l *loader) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	assets := l.assetCache
	l.assetCache = make(map[string]*model.Asset)
	l.mu.Unlock()

	for _, asset := range assets {
		asset.Destroy()
	}

	l.encoderOnce.Do(func() {
		l.encoderErr = ErrReleased
	})
	if l.encoder != nil {
		l.encoder.Release()
	}
}

// textureEncoder lazily creates the encoder shared by every load of this Loader.
func (l *loader) textureEncoder() (ktx2.Encoder, error) {
	l.encoderOnce.Do(func() {
		l.encoder, l.encoderErr = ktx2.NewEncoder(
			ktx2.WithWorkers(l.workers),
			ktx2.WithSupercompression(l.supercompress),
		)
	})
	return l.encoder, l.encoderErr
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only glTF/GLB is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		return l.backend, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
