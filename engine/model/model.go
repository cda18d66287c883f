package model

import (
	"github.com/imalexlee/vk-gltf/common"
	"github.com/imalexlee/vk-gltf/engine/gpu"
)

// Asset is the GPU-ready result of importing one glTF document.
// It owns every GPU object it references; the caller destroys it with Destroy once no
// submitted work can still read from it.
type Asset struct {
	// Name is the document stem.
	Name string

	// SourcePath is the path the document was loaded from.
	SourcePath string

	Images    []Image
	Meshes    []Mesh
	Samplers  []Sampler
	Materials []Material
	Textures  []Texture
	Nodes     []Node
	Scenes    []Scene
	Lights    []Light

	// DefaultScene indexes Scenes.
	DefaultScene common.Optional[int]

	// Metrics are the diagnostics of the load that produced the asset.
	Metrics LoadMetrics

	destroyed bool
}

// Image is a GPU image and its view, one per glTF image.
type Image struct {
	Image     gpu.Image
	View      gpu.ImageView
	Format    gpu.Format
	Layout    gpu.ImageLayout
	Extent    gpu.Extent3D
	MipLevels uint32

	// FromCache is true when the compressed levels were read from the texture cache.
	FromCache bool
}

// Buffer is a device-local GPU buffer and its device address (0 when the device has none).
type Buffer struct {
	Buffer  gpu.Buffer
	Address uint64
	Size    uint64
}

// Sampler is a GPU sampler and the descriptor it was created from.
type Sampler struct {
	Sampler    gpu.Sampler
	Descriptor gpu.SamplerDescriptor
}

// NewAsset creates an empty Asset with the specified options applied.
//
// Parameters:
//   - options: a variadic list of AssetBuilderOption functions to configure the Asset
//
// Returns:
//   - *Asset: a new, empty Asset
func NewAsset(options ...AssetBuilderOption) *Asset {
	a := &Asset{}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Destroy releases every GPU object owned by the asset. It is safe to call more than once.
func (a *Asset) Destroy() {
	if a == nil || a.destroyed {
		return
	}
	a.destroyed = true

	for i := range a.Images {
		img := &a.Images[i]
		if img.View != nil {
			img.View.Release()
		}
		if img.Image != nil {
			img.Image.Release()
		}
	}
	for i := range a.Meshes {
		for j := range a.Meshes[i].Primitives {
			p := &a.Meshes[i].Primitives[j]
			if idx, ok := p.Index.Get(); ok && idx != nil && idx.Buffer != nil {
				idx.Buffer.Release()
			}
			if p.Vertex != nil && p.Vertex.Buffer != nil {
				p.Vertex.Buffer.Release()
			}
		}
	}
	for i := range a.Samplers {
		if a.Samplers[i].Sampler != nil {
			a.Samplers[i].Sampler.Release()
		}
	}
}

// Destroyed reports whether Destroy has been called.
//
// Returns:
//   - bool: true after Destroy
func (a *Asset) Destroyed() bool {
	return a.destroyed
}

// PrimitiveCount returns the number of primitives across all meshes.
//
// Returns:
//   - int: the primitive count
func (a *Asset) PrimitiveCount() int {
	n := 0
	for _, m := range a.Meshes {
		n += len(m.Primitives)
	}
	return n
}
