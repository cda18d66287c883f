package loader

import (
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/lightspunctual"

	"github.com/imalexlee/vk-gltf/common"
	"github.com/imalexlee/vk-gltf/engine/model"
)

// gltfSceneBuilderImpl is the implementation of the gltfSceneBuilder interface.
type gltfSceneBuilderImpl struct {
	parser gltfParser
	logger *slog.Logger
}

// gltfSceneBuilder flattens the node hierarchy, scenes and punctual lights of a parsed document.
type gltfSceneBuilder interface {
	// BuildNodes converts every node, resolving local and world transforms, appending to asset.Nodes.
	//
	// Parameters:
	//   - asset: the asset receiving the nodes
	BuildNodes(asset *model.Asset)

	// BuildScenes converts every scene and the default scene reference.
	//
	// Parameters:
	//   - asset: the asset receiving the scenes
	BuildScenes(asset *model.Asset)

	// BuildLights converts the KHR_lights_punctual lights, appending to asset.Lights.
	//
	// Parameters:
	//   - asset: the asset receiving the lights
	BuildLights(asset *model.Asset)
}

var _ gltfSceneBuilder = &gltfSceneBuilderImpl{}

// newGLTFSceneBuilder creates a new scene builder for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - logger: the stage logger
//
// Returns:
//   - gltfSceneBuilder: the scene builder
func newGLTFSceneBuilder(parser gltfParser, logger *slog.Logger) gltfSceneBuilder {
	return &gltfSceneBuilderImpl{parser: parser, logger: logger}
}

// --- Nodes ---

func (b *gltfSceneBuilderImpl) BuildNodes(asset *model.Asset) {
	doc := b.parser.Document()
	indices := b.parser.IndexMaps()

	nodes := make([]model.Node, len(doc.Nodes))
	for i, n := range doc.Nodes {
		out := model.Node{
			Name:           n.Name,
			LocalTransform: gltfLocalTransform(n),
			Light:          b.parser.NodeLight(i),
		}
		if n.Mesh != nil {
			if m, ok := indices.Mesh(doc.Meshes[*n.Mesh]); ok {
				out.Mesh = common.Some(m)
			}
		}
		for _, c := range n.Children {
			if child, ok := indices.Node(doc.Nodes[c]); ok {
				out.Children = append(out.Children, child)
			}
		}
		nodes[i] = out
	}

	// Parents are resolved before their children by walking down from the roots.
	stack := indices.Roots()
	for _, r := range stack {
		nodes[r].WorldTransform = nodes[r].LocalTransform
	}
	for len(stack) > 0 {
		parent := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range nodes[parent].Children {
			nodes[c].WorldTransform = nodes[parent].WorldTransform.Mul4(nodes[c].LocalTransform)
			stack = append(stack, c)
		}
	}

	asset.Nodes = append(asset.Nodes, nodes...)
}

// gltfLocalTransform returns the node matrix when it is not the identity, otherwise T·R·S.
//
// Parameters:
//   - n: the glTF node
//
// Returns:
//   - mgl32.Mat4: the column-major local transform
func gltfLocalTransform(n *gltf.Node) mgl32.Mat4 {
	matrix := n.MatrixOrDefault()
	if matrix != gltf.DefaultMatrix {
		return common.Mat4From(matrix[:])
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	return common.ComposeTRS(common.Vec3From(t[:]), common.Vec4From(r[:]), common.Vec3From(s[:]))
}

// --- Scenes ---

func (b *gltfSceneBuilderImpl) BuildScenes(asset *model.Asset) {
	doc := b.parser.Document()
	indices := b.parser.IndexMaps()

	for _, s := range doc.Scenes {
		out := model.Scene{Name: s.Name, Nodes: make([]int, 0, len(s.Nodes))}
		for _, n := range s.Nodes {
			if i, ok := indices.Node(doc.Nodes[n]); ok {
				out.Nodes = append(out.Nodes, i)
			}
		}
		asset.Scenes = append(asset.Scenes, out)
	}

	if doc.Scene != nil {
		if i, ok := indices.Scene(doc.Scenes[*doc.Scene]); ok {
			asset.DefaultScene = common.Some(i)
		}
	}
}

// --- Lights ---

func (b *gltfSceneBuilderImpl) BuildLights(asset *model.Asset) {
	for _, l := range b.parser.Lights() {
		asset.Lights = append(asset.Lights, gltfConvertLight(l))
	}
	if n := len(asset.Lights); n > 0 {
		b.logger.Debug("imported punctual lights", "count", n)
	}
}

// gltfConvertLight converts a KHR_lights_punctual light. An absent or infinite range is stored as 0.
//
// Parameters:
//   - l: the extension light
//
// Returns:
//   - model.Light: the converted light
func gltfConvertLight(l *lightspunctual.Light) model.Light {
	out := model.DefaultLight()
	if l == nil {
		return out
	}
	out.Name = l.Name

	switch l.Type {
	case lightspunctual.TypePoint:
		out.Type = model.LightTypePoint
	case lightspunctual.TypeSpot:
		out.Type = model.LightTypeSpot
	default:
		out.Type = model.LightTypeDirectional
	}

	color := l.ColorOrDefault()
	out.Color = common.Vec3From(color[:])
	out.Intensity = float32(l.IntensityOrDefault())
	if l.Range != nil && !math.IsInf(*l.Range, 0) {
		out.Range = float32(*l.Range)
	}
	if l.Spot != nil {
		out.InnerConeAngle = float32(l.Spot.InnerConeAngle)
		out.OuterConeAngle = float32(l.Spot.OuterConeAngleOrDefault())
	}
	return out
}
