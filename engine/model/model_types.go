package model

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/imalexlee/vk-gltf/common"
)

// --- Geometry Types ---

// Topology is the primitive assembly mode of a primitive.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyTriangleFan
	TopologyPointList
	TopologyLineList
	TopologyLineStrip
)

func (t Topology) String() string {
	switch t {
	case TopologyTriangleStrip:
		return "TriangleStrip"
	case TopologyTriangleFan:
		return "TriangleFan"
	case TopologyPointList:
		return "PointList"
	case TopologyLineList:
		return "LineList"
	case TopologyLineStrip:
		return "LineStrip"
	default:
		return "TriangleList"
	}
}

// IndexType is the width of the indices in an index buffer.
type IndexType int

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

// Size returns the byte size of one index.
//
// Returns:
//   - int: 2 or 4
func (t IndexType) Size() int {
	if t == IndexTypeUint32 {
		return 4
	}
	return 2
}

func (t IndexType) String() string {
	if t == IndexTypeUint32 {
		return "Uint32"
	}
	return "Uint16"
}

// Bounds is the axis-aligned bounding box and sphere of a primitive, derived from the position accessor's declared min/max.
type Bounds struct {
	// Origin is the box center, (min+max)/2.
	Origin mgl32.Vec3

	// Extent is the box half size, (max-min)/2.
	Extent mgl32.Vec3

	// SphereRadius is the length of Extent.
	SphereRadius float32
}

// BoundsFromMinMax computes Bounds from a declared min/max pair.
//
// Parameters:
//   - minV: the minimum corner
//   - maxV: the maximum corner
//
// Returns:
//   - Bounds: the derived bounds
func BoundsFromMinMax(minV, maxV mgl32.Vec3) Bounds {
	extent := maxV.Sub(minV).Mul(0.5)
	return Bounds{
		Origin:       maxV.Add(minV).Mul(0.5),
		Extent:       extent,
		SphereRadius: extent.Len(),
	}
}

// Primitive is one draw of a mesh: a vertex buffer, an optional index buffer and an optional material.
type Primitive struct {
	// Index is the index buffer. Absent for non-indexed primitives.
	Index common.Optional[*Buffer]

	// IndexType is the width of the indices in Index.
	IndexType IndexType

	// IndexCount is the number of indices, > 0 whenever Index is present.
	IndexCount uint32

	// Vertex is the interleaved Vertex buffer.
	Vertex *Buffer

	// VertexCount is the number of Vertex records in Vertex.
	VertexCount uint32

	// Material indexes Asset.Materials.
	Material common.Optional[int]

	Topology Topology
	Bounds   Bounds
}

// Mesh is a named, ordered list of primitives.
type Mesh struct {
	Name       string
	Primitives []Primitive
}

// --- Scene Types ---

// Node is a flattened scene graph node.
type Node struct {
	Name string

	// LocalTransform is the node transform relative to its parent (column-major).
	LocalTransform mgl32.Mat4

	// WorldTransform is the accumulated transform from the root of its scene (column-major).
	WorldTransform mgl32.Mat4

	// Mesh indexes Asset.Meshes.
	Mesh common.Optional[int]

	// Light indexes Asset.Lights.
	Light common.Optional[int]

	// Children index Asset.Nodes.
	Children []int
}

// Scene is a named set of root nodes.
type Scene struct {
	Name  string
	Nodes []int
}

// LightType is the kind of a punctual light.
type LightType int

const (
	LightTypeDirectional LightType = iota
	LightTypePoint
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	default:
		return "directional"
	}
}

// Light is a KHR_lights_punctual light.
type Light struct {
	Name string
	Type LightType

	// Range is the attenuation cutoff distance; 0 means unbounded.
	Range float32

	// InnerConeAngle and OuterConeAngle only apply to spot lights.
	InnerConeAngle float32
	OuterConeAngle float32

	Color     mgl32.Vec3
	Intensity float32
}

// DefaultLight returns a light with the extension defaults applied.
//
// Returns:
//   - Light: white, unit intensity, unbounded, cone angles 0 and π/4
func DefaultLight() Light {
	return Light{
		Color:          mgl32.Vec3{1, 1, 1},
		Intensity:      1,
		InnerConeAngle: 0,
		OuterConeAngle: math.Pi / 4,
	}
}

// --- Material Types ---

// AlphaMode is the alpha rendering mode of a material.
type AlphaMode int

const (
	AlphaModeOpaque AlphaMode = iota
	AlphaModeMask
	AlphaModeBlend
)

func (m AlphaMode) String() string {
	switch m {
	case AlphaModeMask:
		return "mask"
	case AlphaModeBlend:
		return "blend"
	default:
		return "opaque"
	}
}

// TextureInfo references a texture and the UV set used to sample it.
type TextureInfo struct {
	// TextureIndex indexes Asset.Textures.
	TextureIndex int

	// TexCoord selects TEXCOORD_<n>.
	TexCoord int
}

// Material holds PBR metallic-roughness parameters plus the clearcoat extension.
type Material struct {
	Name string

	BaseColorTexture          common.Optional[TextureInfo]
	MetallicRoughnessTexture  common.Optional[TextureInfo]
	NormalTexture             common.Optional[TextureInfo]
	OcclusionTexture          common.Optional[TextureInfo]
	EmissiveTexture           common.Optional[TextureInfo]
	ClearcoatTexture          common.Optional[TextureInfo]
	ClearcoatRoughnessTexture common.Optional[TextureInfo]
	ClearcoatNormalTexture    common.Optional[TextureInfo]

	BaseColorFactor   mgl32.Vec4
	EmissiveFactor    mgl32.Vec3
	MetallicFactor    float32
	RoughnessFactor   float32
	OcclusionStrength float32
	NormalScale       float32
	AlphaCutoff       float32
	DoubleSided       bool
	AlphaMode         AlphaMode

	ClearcoatFactor          float32
	ClearcoatRoughnessFactor float32
}

// DefaultMaterial returns a material with the glTF defaults applied and no textures.
//
// Returns:
//   - Material: the default material
func DefaultMaterial() Material {
	return Material{
		BaseColorFactor:   mgl32.Vec4{1, 1, 1, 1},
		MetallicFactor:    1,
		RoughnessFactor:   1,
		OcclusionStrength: 1,
		NormalScale:       1,
		AlphaCutoff:       0.5,
		AlphaMode:         AlphaModeOpaque,
	}
}

// Texture pairs an image with a sampler. Both may be absent; a texture without an image samples as white.
type Texture struct {
	// Image indexes Asset.Images.
	Image common.Optional[int]

	// Sampler indexes Asset.Samplers.
	Sampler common.Optional[int]
}

// --- Metrics ---

// Stage names used as keys of LoadMetrics.StageDurations.
const (
	StageParse     = "parse"
	StageImages    = "images"
	StageMeshes    = "meshes"
	StageSamplers  = "samplers"
	StageMaterials = "materials"
	StageTextures  = "textures"
	StageNodes     = "nodes"
	StageScenes    = "scenes"
	StageLights    = "lights"
)

// LoadMetrics are the diagnostics of a single load.
type LoadMetrics struct {
	// StageDurations is the wall time spent in each stage.
	StageDurations map[string]time.Duration

	// Total is the wall time of the whole load.
	Total time.Duration

	// BytesAllocated is the sum of every GPU buffer and image allocation made by the load, staging included.
	BytesAllocated uint64

	// StagingCapacity is the final staging buffer size.
	StagingCapacity uint64

	// HostBytesAllocated is the Go heap allocated during the load (decoded images, compressed payloads).
	HostBytesAllocated uint64

	// Transfers is the number of blocking submissions.
	Transfers int

	CacheHits   int
	CacheMisses int
}

func (m LoadMetrics) String() string {
	return fmt.Sprintf("total=%s allocated=%dB staging=%dB transfers=%d cache_hits=%d cache_misses=%d",
		m.Total, m.BytesAllocated, m.StagingCapacity, m.Transfers, m.CacheHits, m.CacheMisses)
}
