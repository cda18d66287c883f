// gltf_types.go contains the loader's internal glTF bookkeeping types: the object to index maps built
// during parsing and the per-image format selection.
package loader

import (
	"fmt"

	"github.com/qmuntal/gltf"

	"github.com/imalexlee/vk-gltf/common"
	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

// --- Index Maps ---

// gltfIndexMaps maps each document object to its flat index in the asset arrays.
// The maps are populated once by Parse; every later stage resolves references through them
// instead of deriving indices from object positions.
type gltfIndexMaps struct {
	nodes    map[*gltf.Node]int
	meshes   map[*gltf.Mesh]int
	textures map[*gltf.Texture]int
	images   map[*gltf.Image]int
	samplers map[*gltf.Sampler]int
	scenes   map[*gltf.Scene]int

	// parents holds the single parent of every node, absent for roots.
	parents []common.Optional[int]
}

// newGLTFIndexMaps builds the index maps of a validated document and checks the node graph:
// every node has at most one parent and no node is its own ancestor.
//
// Parameters:
//   - doc: the document, with references already range checked
//
// Returns:
//   - *gltfIndexMaps: the populated maps
//   - error: error if the node graph is not a forest
func newGLTFIndexMaps(doc *gltf.Document) (*gltfIndexMaps, error) {
	m := &gltfIndexMaps{
		nodes:    gltfIndexOf(doc.Nodes),
		meshes:   gltfIndexOf(doc.Meshes),
		textures: gltfIndexOf(doc.Textures),
		images:   gltfIndexOf(doc.Images),
		samplers: gltfIndexOf(doc.Samplers),
		scenes:   gltfIndexOf(doc.Scenes),
		parents:  make([]common.Optional[int], len(doc.Nodes)),
	}

	for _, node := range doc.Nodes {
		parent := m.nodes[node]
		for _, child := range node.Children {
			if child == parent {
				return nil, fmt.Errorf("node %d is its own child", parent)
			}
			if existing, ok := m.parents[child].Get(); ok {
				return nil, fmt.Errorf("node %d has two parents (%d and %d)", child, existing, parent)
			}
			m.parents[child] = common.Some(parent)
		}
	}

	// With single parents, a cycle exists exactly when walking up from some node never reaches a root.
	for start := range doc.Nodes {
		current := start
		for steps := 0; ; steps++ {
			parent, ok := m.parents[current].Get()
			if !ok {
				break
			}
			if parent == start || steps >= len(doc.Nodes) {
				return nil, fmt.Errorf("node %d has cyclic ancestry", start)
			}
			current = parent
		}
	}
	return m, nil
}

func gltfIndexOf[T any](items []*T) map[*T]int {
	out := make(map[*T]int, len(items))
	for i, item := range items {
		out[item] = i
	}
	return out
}

// Node returns the flat index of a node.
func (m *gltfIndexMaps) Node(n *gltf.Node) (int, bool) {
	i, ok := m.nodes[n]
	return i, ok
}

// Mesh returns the flat index of a mesh.
func (m *gltfIndexMaps) Mesh(mesh *gltf.Mesh) (int, bool) {
	i, ok := m.meshes[mesh]
	return i, ok
}

// Texture returns the flat index of a texture.
func (m *gltfIndexMaps) Texture(t *gltf.Texture) (int, bool) {
	i, ok := m.textures[t]
	return i, ok
}

// Image returns the flat index of an image.
func (m *gltfIndexMaps) Image(img *gltf.Image) (int, bool) {
	i, ok := m.images[img]
	return i, ok
}

// Sampler returns the flat index of a sampler.
func (m *gltfIndexMaps) Sampler(s *gltf.Sampler) (int, bool) {
	i, ok := m.samplers[s]
	return i, ok
}

// Scene returns the flat index of a scene.
func (m *gltfIndexMaps) Scene(s *gltf.Scene) (int, bool) {
	i, ok := m.scenes[s]
	return i, ok
}

// Parent returns the parent of a node, absent for roots.
func (m *gltfIndexMaps) Parent(node int) common.Optional[int] {
	return m.parents[node]
}

// Roots returns the nodes without a parent, in document order.
func (m *gltfIndexMaps) Roots() []int {
	var roots []int
	for i, p := range m.parents {
		if !p.IsPresent() {
			roots = append(roots, i)
		}
	}
	return roots
}

// --- Format Selection ---

// FormatSelection is the outcome of format resolution for one image.
type FormatSelection struct {
	// Uncompressed is the format the decoded texels are stored in before compression.
	Uncompressed gpu.Format

	// Compressed is the ideal GPU block format.
	Compressed gpu.Format

	// Transcode is the target the universal payload is transcoded to.
	Transcode ktx2.TranscodeTarget

	// SRGB is true for color data, false for linear data.
	SRGB bool
}
