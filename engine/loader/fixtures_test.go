package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/require"

	"github.com/imalexlee/vk-gltf/engine/gpu"
)

var trianglePositions = [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDevice(t *testing.T, options ...gpu.DeviceBuilderOption) gpu.Device {
	t.Helper()
	dev, err := gpu.NewDevice(gpu.BackendTypeSoftware, options...)
	require.NoError(t, err)
	return dev
}

func newTestLoader(t *testing.T, dev gpu.Device) Loader {
	t.Helper()
	l := NewLoader(BackendTypeGLTF,
		WithDevice(dev),
		WithLogger(discardLogger()),
		WithCompressionWorkers(2),
	)
	t.Cleanup(l.Release)
	return l
}

func liveObjects(dev gpu.Device) int {
	return dev.(gpu.Inspector).LiveObjects()
}

// encodePNG returns a width x height PNG with a horizontal gradient.
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / max(width-1, 1)), G: uint8(y * 255 / max(height-1, 1)), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newTriangleDocument builds a single indexed triangle with UVs and a material whose base color
// texture is an embedded width x height PNG.
func newTriangleDocument(t *testing.T, width, height int) *gltf.Document {
	t.Helper()
	doc := gltf.NewDocument()

	pos := modeler.WritePosition(doc, trianglePositions)
	uv := modeler.WriteTextureCoord(doc, [][2]float32{{0, 0}, {1, 0}, {0, 1}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})

	img, err := modeler.WriteImage(doc, "base", "image/png", bytes.NewReader(encodePNG(t, width, height)))
	require.NoError(t, err)

	doc.Samplers = append(doc.Samplers, &gltf.Sampler{
		MagFilter: gltf.MagNearest,
		MinFilter: gltf.MinLinearMipMapLinear,
		WrapS:     gltf.WrapClampToEdge,
		WrapT:     gltf.WrapMirroredRepeat,
	})
	doc.Textures = append(doc.Textures, &gltf.Texture{Source: gltf.Index(img), Sampler: gltf.Index(0)})
	doc.Materials = append(doc.Materials, &gltf.Material{
		Name: "base",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorTexture: &gltf.TextureInfo{Index: 0},
		},
	})
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: "triangle",
		Primitives: []*gltf.Primitive{{
			Attributes: gltf.PrimitiveAttributes{gltf.POSITION: pos, gltf.TEXCOORD_0: uv},
			Indices:    gltf.Index(idx),
			Material:   gltf.Index(0),
		}},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "triangle", Mesh: gltf.Index(0)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return doc
}

// newPositionOnlyDocument builds a non-indexed triangle with nothing but POSITION.
func newPositionOnlyDocument() *gltf.Document {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, trianglePositions)
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name:       "bare",
		Primitives: []*gltf.Primitive{{Attributes: gltf.PrimitiveAttributes{gltf.POSITION: pos}}},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: gltf.Index(0)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return doc
}

func saveGLB(t *testing.T, doc *gltf.Document, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+".glb")
	require.NoError(t, gltf.SaveBinary(doc, path))
	return path
}
