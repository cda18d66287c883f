package loader

import (
	"fmt"

	"github.com/imalexlee/vk-gltf/engine/model"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct {
	owner *loader
}

// gltfLoaderBackend is a loaderBackend implementation for glTF/GLB files.
// Each Load runs a fresh gltfImporter so no per-load state survives between loads.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Parameters:
//   - owner: the loader providing the device, logger and texture encoder
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend(owner *loader) gltfLoaderBackend {
	return &gltfLoaderBackendImpl{
		owner: owner,
	}
}

func (b *gltfLoaderBackendImpl) Load(opts LoadOptions) (*model.Asset, error) {
	encoder, err := b.owner.textureEncoder()
	if err != nil {
		return nil, fmt.Errorf("%w: create encoder: %w", ErrCompression, err)
	}
	imp := newGLTFImporter(b.owner.device, encoder, b.owner.logger)
	return imp.Import(opts)
}
