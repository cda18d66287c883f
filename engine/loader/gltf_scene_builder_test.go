package loader

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/lightspunctual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalexlee/vk-gltf/common"
	"github.com/imalexlee/vk-gltf/engine/model"
)

func TestLocalTransform(t *testing.T) {
	trs := &gltf.Node{
		Translation: [3]float64{1, 2, 3},
		Rotation:    [4]float64{0, 0, 0, 1},
		Scale:       [3]float64{2, 2, 2},
	}
	m := gltfLocalTransform(trs)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, m.Col(3).Vec3())
	assert.Equal(t, float32(2), m.At(0, 0))

	matrix := &gltf.Node{Matrix: [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 5, 6, 7, 1}}
	assert.Equal(t, mgl32.Translate3D(5, 6, 7), gltfLocalTransform(matrix))

	// An identity matrix falls back to the TRS properties.
	both := &gltf.Node{Matrix: gltf.DefaultMatrix, Translation: [3]float64{0, 0, 4}}
	assert.Equal(t, mgl32.Translate3D(0, 0, 4), gltfLocalTransform(both))
}

func TestLoadNodeHierarchy(t *testing.T) {
	dir := t.TempDir()
	doc := newPositionOnlyDocument()
	doc.Nodes = []*gltf.Node{
		{Name: "root", Translation: [3]float64{1, 0, 0}, Children: []int{1}},
		{Name: "child", Translation: [3]float64{0, 1, 0}, Scale: [3]float64{2, 2, 2}, Children: []int{2}},
		{Name: "leaf", Translation: [3]float64{0, 0, 1}, Mesh: gltf.Index(0)},
	}
	doc.Scenes[0].Nodes = []int{0}
	path := saveGLB(t, doc, dir, "hierarchy")

	asset, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: path})
	require.NoError(t, err)
	require.Len(t, asset.Nodes, 3)

	assert.Equal(t, []int{1}, asset.Nodes[0].Children)
	assert.False(t, asset.Nodes[0].Mesh.IsPresent())
	assert.Equal(t, common.Some(0), asset.Nodes[2].Mesh)

	assert.Equal(t, mgl32.Vec3{1, 0, 0}, asset.Nodes[0].WorldTransform.Col(3).Vec3())
	assert.Equal(t, mgl32.Vec3{1, 1, 0}, asset.Nodes[1].WorldTransform.Col(3).Vec3())
	// The leaf offset is scaled by its parent.
	assert.Equal(t, mgl32.Vec3{1, 1, 2}, asset.Nodes[2].WorldTransform.Col(3).Vec3())
	assert.Equal(t, mgl32.Translate3D(0, 0, 1), asset.Nodes[2].LocalTransform)
}

func TestLoadRejectsCyclicNodes(t *testing.T) {
	dir := t.TempDir()
	doc := newPositionOnlyDocument()
	doc.Nodes = []*gltf.Node{
		{Children: []int{1}},
		{Children: []int{0}},
	}
	doc.Scenes[0].Nodes = nil
	path := saveGLB(t, doc, dir, "cyclic")

	dev := newTestDevice(t)
	_, err := newTestLoader(t, dev).Load(LoadOptions{Path: path})
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Zero(t, liveObjects(dev))
}

// lightsExtension and nodeLightExtension serialize as the KHR_lights_punctual document and node objects.
type lightsExtension struct {
	Lights lightspunctual.Lights `json:"lights"`
}

type nodeLightExtension struct {
	Light int `json:"light"`
}

func TestLoadPunctualLights(t *testing.T) {
	dir := t.TempDir()
	doc := newPositionOnlyDocument()
	intensity := 3.0
	outer := math.Pi / 3
	doc.ExtensionsUsed = append(doc.ExtensionsUsed, lightspunctual.ExtensionName)
	doc.Extensions = gltf.Extensions{
		lightspunctual.ExtensionName: lightsExtension{Lights: lightspunctual.Lights{
			{Name: "sun", Type: lightspunctual.TypeDirectional},
			{Name: "spot", Type: lightspunctual.TypeSpot, Intensity: &intensity,
				Spot: &lightspunctual.Spot{InnerConeAngle: 0.1, OuterConeAngle: &outer}},
		}},
	}
	doc.Nodes = append(doc.Nodes, &gltf.Node{
		Name:       "lamp",
		Extensions: gltf.Extensions{lightspunctual.ExtensionName: nodeLightExtension{Light: 1}},
	})
	path := saveGLB(t, doc, dir, "lights")

	asset, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: path})
	require.NoError(t, err)
	require.Len(t, asset.Lights, 2)

	sun := asset.Lights[0]
	assert.Equal(t, model.LightTypeDirectional, sun.Type)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, sun.Color)
	assert.Equal(t, float32(1), sun.Intensity)
	assert.Zero(t, sun.Range)

	spot := asset.Lights[1]
	assert.Equal(t, model.LightTypeSpot, spot.Type)
	assert.Equal(t, float32(3), spot.Intensity)
	assert.InDelta(t, 0.1, spot.InnerConeAngle, 1e-6)
	assert.InDelta(t, math.Pi/3, spot.OuterConeAngle, 1e-6)

	assert.False(t, asset.Nodes[0].Light.IsPresent())
	assert.Equal(t, common.Some(1), asset.Nodes[1].Light)
}

func TestLoadPunctualLightsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lamps.gltf")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "asset": {"version": "2.0"},
  "extensionsUsed": ["KHR_lights_punctual"],
  "extensions": {"KHR_lights_punctual": {"lights": [
    {"type": "point", "range": 5},
    {"type": "spot", "spot": {"innerConeAngle": 0.1}}
  ]}},
  "nodes": [{"name": "base"}, {"name": "lamp", "extensions": {"KHR_lights_punctual": {"light": 1}}}],
  "scenes": [{"nodes": [0, 1]}],
  "scene": 0
}`), 0o644))

	asset, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: path})
	require.NoError(t, err)
	require.Len(t, asset.Lights, 2)

	point := asset.Lights[0]
	assert.Equal(t, model.LightTypePoint, point.Type)
	assert.Equal(t, float32(5), point.Range)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, point.Color)

	spot := asset.Lights[1]
	assert.Zero(t, spot.Range)
	assert.InDelta(t, 0.1, spot.InnerConeAngle, 1e-6)
	assert.InDelta(t, math.Pi/4, spot.OuterConeAngle, 1e-6)

	assert.Equal(t, common.Some(1), asset.Nodes[1].Light)
}

func TestLoadTextGLTF(t *testing.T) {
	dir := t.TempDir()
	doc := newTriangleDocument(t, 4, 4)
	path := filepath.Join(dir, "text.gltf")
	require.NoError(t, gltf.Save(doc, path))

	asset, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: path})
	require.NoError(t, err)
	assert.Len(t, asset.Images, 1)
	assert.Equal(t, "text", asset.Name)
}
