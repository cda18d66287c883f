package loader

import (
	"github.com/imalexlee/vk-gltf/engine/model"
)

// loaderBackend defines the generic interface for loading assets from files.
// Concrete implementations (e.g., gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load performs a full asset import.
	// The images, meshes and samplers of the document are created on the GPU.
	//
	// Parameters:
	//   - opts: the per-load options
	//
	// Returns:
	//   - *model.Asset: the imported asset
	//   - error: error if loading fails
	Load(opts LoadOptions) (*model.Asset, error)
}
