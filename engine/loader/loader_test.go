package loader

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalexlee/vk-gltf/common"
	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/model"
	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

func vertexContents(t *testing.T, p model.Primitive) []model.Vertex {
	t.Helper()
	require.NotNil(t, p.Vertex)
	return model.UnmarshalVertices(p.Vertex.Buffer.(gpu.ReadableBuffer).Contents())
}

func TestLoaderRejectsUnknownExtension(t *testing.T) {
	l := newTestLoader(t, newTestDevice(t))
	_, err := l.Load(LoadOptions{Path: "scene.obj"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoaderWithoutDevice(t *testing.T) {
	l := NewLoader(BackendTypeGLTF, WithLogger(discardLogger()))
	defer l.Release()
	_, err := l.Load(LoadOptions{Path: "scene.glb"})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestLoadTriangle(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	path := saveGLB(t, newTriangleDocument(t, 8, 8), dir, "triangle")

	dev := newTestDevice(t)
	asset, err := newTestLoader(t, dev).Load(LoadOptions{Path: path, CacheDir: cacheDir})
	require.NoError(t, err)

	assert.Equal(t, "triangle", asset.Name)
	assert.Equal(t, path, asset.SourcePath)

	require.Len(t, asset.Images, 1)
	img := asset.Images[0]
	assert.Equal(t, gpu.FormatBC7SrgbBlock, img.Format)
	assert.Equal(t, gpu.ImageLayoutShaderReadOnly, img.Layout)
	assert.Equal(t, gpu.Extent3D{Width: 8, Height: 8, Depth: 1}, img.Extent)
	assert.Equal(t, uint32(1), img.MipLevels)
	assert.False(t, img.FromCache)
	cached, err := os.ReadFile(filepath.Join(cacheDir, "triangle_0_1.ktx2"))
	require.NoError(t, err)
	// The cache entry is a plain KTX2 file: BC7 sRGB VkFormat with Zstandard supercompression.
	assert.Equal(t, uint32(146), binary.LittleEndian.Uint32(cached[12:]))
	assert.Equal(t, uint32(ktx2.SupercompressionZstandard), binary.LittleEndian.Uint32(cached[12+32:]))

	require.Len(t, asset.Meshes, 1)
	require.Len(t, asset.Meshes[0].Primitives, 1)
	prim := asset.Meshes[0].Primitives[0]
	assert.Equal(t, "triangle", asset.Meshes[0].Name)
	assert.Equal(t, model.TopologyTriangleList, prim.Topology)
	assert.Equal(t, uint32(3), prim.IndexCount)
	assert.Equal(t, model.IndexTypeUint16, prim.IndexType)
	assert.Equal(t, common.Some(0), prim.Material)
	idx := prim.Index.MustGet()
	assert.Equal(t, uint64(8), idx.Size)
	assert.Equal(t, []uint16{0, 1, 2}, common.BytesToSlice[uint16](idx.Buffer.(gpu.ReadableBuffer).Contents(), 3))

	assert.Equal(t, uint32(3), prim.VertexCount)
	assert.NotZero(t, prim.Vertex.Address)
	vertices := vertexContents(t, prim)
	require.Len(t, vertices, 3)
	for i, v := range vertices {
		assert.Equal(t, trianglePositions[i], v.Position)
		assert.Equal(t, [4]float32{1, 1, 1, 1}, v.Color)
	}
	assert.Equal(t, [2]float32{1, 0}, vertices[1].TexCoord[0])
	assert.InDelta(t, 0.5, prim.Bounds.Origin.X(), 1e-6)
	assert.InDelta(t, 0.5, prim.Bounds.Origin.Y(), 1e-6)

	require.Len(t, asset.Materials, 1)
	mat := asset.Materials[0]
	assert.Equal(t, common.Some(model.TextureInfo{TextureIndex: 0, TexCoord: 0}), mat.BaseColorTexture)
	assert.False(t, mat.NormalTexture.IsPresent())
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, mat.BaseColorFactor)

	require.Len(t, asset.Textures, 1)
	assert.Equal(t, common.Some(0), asset.Textures[0].Image)
	assert.Equal(t, common.Some(0), asset.Textures[0].Sampler)

	require.Len(t, asset.Samplers, 1)
	desc := asset.Samplers[0].Descriptor
	assert.Equal(t, gpu.FilterNearest, desc.MagFilter)
	assert.Equal(t, gpu.AddressModeClampToEdge, desc.AddressModeU)
	assert.Equal(t, gpu.AddressModeMirroredRepeat, desc.AddressModeW)

	require.Len(t, asset.Nodes, 1)
	assert.Equal(t, common.Some(0), asset.Nodes[0].Mesh)
	require.Len(t, asset.Scenes, 1)
	assert.Equal(t, []int{0}, asset.Scenes[0].Nodes)
	assert.Equal(t, common.Some(0), asset.DefaultScene)

	assert.Equal(t, 1, asset.Metrics.CacheMisses)
	assert.Zero(t, asset.Metrics.CacheHits)
	assert.Positive(t, asset.Metrics.Transfers)
	assert.Positive(t, asset.Metrics.StagingCapacity)
	assert.Contains(t, asset.Metrics.StageDurations, model.StageImages)

	asset.Destroy()
	assert.Zero(t, liveObjects(dev))
}

func TestLoadServesSecondLoadFromCache(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	path := saveGLB(t, newTriangleDocument(t, 16, 8), dir, "cached")
	opts := LoadOptions{Path: path, CacheDir: cacheDir, CreateMipmaps: true}

	dev := newTestDevice(t)
	first, err := newTestLoader(t, dev).Load(opts)
	require.NoError(t, err)
	second, err := newTestLoader(t, dev).Load(opts)
	require.NoError(t, err)

	assert.Equal(t, 0, first.Metrics.CacheHits)
	assert.Equal(t, 1, second.Metrics.CacheHits)
	assert.Equal(t, 0, second.Metrics.CacheMisses)

	a, b := first.Images[0], second.Images[0]
	assert.False(t, a.FromCache)
	assert.True(t, b.FromCache)
	assert.Equal(t, a.Format, b.Format)
	assert.Equal(t, a.Extent, b.Extent)
	assert.Equal(t, a.MipLevels, b.MipLevels)
	for level := range a.MipLevels {
		assert.Equal(t,
			a.Image.(gpu.ReadableImage).LevelContents(level),
			b.Image.(gpu.ReadableImage).LevelContents(level),
			"level %d", level)
	}

	first.Destroy()
	second.Destroy()
	assert.Zero(t, liveObjects(dev))
}

func TestLoadMipChain(t *testing.T) {
	dir := t.TempDir()
	path := saveGLB(t, newTriangleDocument(t, 16, 4), dir, "mips")
	cacheDir := filepath.Join(dir, "cache")

	gpuAsset, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: path, CreateMipmaps: true})
	require.NoError(t, err)
	cpuAsset, err := newTestLoader(t, newTestDevice(t, gpu.WithoutBlit())).
		Load(LoadOptions{Path: path, CacheDir: cacheDir, CreateMipmaps: true})
	require.NoError(t, err)

	// floor(log2(16)) + 1
	assert.Equal(t, uint32(5), gpuAsset.Images[0].MipLevels)
	assert.Equal(t, uint32(5), cpuAsset.Images[0].MipLevels)
	assert.FileExists(t, filepath.Join(cacheDir, "mips_0_5.ktx2"))

	for level := range uint32(5) {
		assert.Equal(t,
			gpuAsset.Images[0].Image.(gpu.ReadableImage).LevelContents(level),
			cpuAsset.Images[0].Image.(gpu.ReadableImage).LevelContents(level),
			"level %d", level)
	}
}

func TestLoadWithoutCacheDir(t *testing.T) {
	dir := t.TempDir()
	path := saveGLB(t, newTriangleDocument(t, 4, 4), dir, "nocache")

	asset, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, asset.Metrics.CacheMisses)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadPositionOnly(t *testing.T) {
	dir := t.TempDir()
	path := saveGLB(t, newPositionOnlyDocument(), dir, "bare")

	dev := newTestDevice(t)
	asset, err := newTestLoader(t, dev).Load(LoadOptions{Path: path, CacheDir: filepath.Join(dir, "cache")})
	require.NoError(t, err)

	assert.Empty(t, asset.Images)
	assert.Empty(t, asset.Materials)
	prim := asset.Meshes[0].Primitives[0]
	assert.False(t, prim.Index.IsPresent())
	assert.Zero(t, prim.IndexCount)
	assert.False(t, prim.Material.IsPresent())
	assert.Equal(t, uint32(3), prim.VertexCount)

	for _, v := range vertexContents(t, prim) {
		assert.Equal(t, [4]float32{1, 1, 1, 1}, v.Color)
		assert.Equal(t, [4]float32{1, 1, 1, 1}, v.Tangent)
		assert.Equal(t, [3]float32{}, v.Normal)
		assert.Equal(t, [2][2]float32{}, v.TexCoord)
	}

	asset.Destroy()
	assert.Zero(t, liveObjects(dev))
}

func TestLoadVertexColors(t *testing.T) {
	dir := t.TempDir()
	doc := newPositionOnlyDocument()
	colors := modeler.WriteColor(doc, [][4]uint8{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 0}})
	doc.Meshes[0].Primitives[0].Attributes[gltf.COLOR_0] = colors
	path := saveGLB(t, doc, dir, "colored")

	asset, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: path})
	require.NoError(t, err)

	vertices := vertexContents(t, asset.Meshes[0].Primitives[0])
	assert.Equal(t, [4]float32{1, 0, 0, 1}, vertices[0].Color)
	assert.Equal(t, [4]float32{0, 1, 0, 1}, vertices[1].Color)
	assert.Equal(t, [4]float32{0, 0, 1, 0}, vertices[2].Color)
}

func TestLoadTopology(t *testing.T) {
	dir := t.TempDir()
	doc := newPositionOnlyDocument()
	doc.Meshes[0].Primitives[0].Mode = gltf.PrimitiveLineLoop
	path := saveGLB(t, doc, dir, "lines")

	asset, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: path})
	require.NoError(t, err)
	assert.Equal(t, model.TopologyLineStrip, asset.Meshes[0].Primitives[0].Topology)
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := saveGLB(t, newPositionOnlyDocument(), dir, "registry")

	dev := newTestDevice(t)
	l := newTestLoader(t, dev)
	first, err := l.Load(LoadOptions{Path: path})
	require.NoError(t, err)
	second, err := l.Load(LoadOptions{Path: path})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, l.Get(path))
	assert.Len(t, l.Assets(), 1)

	assert.True(t, l.Unload(path))
	assert.True(t, first.Destroyed())
	assert.False(t, l.Unload(path))
	assert.Nil(t, l.Get(path))
	assert.Zero(t, liveObjects(dev))
}

func TestLoaderRelease(t *testing.T) {
	dir := t.TempDir()
	triangle := saveGLB(t, newTriangleDocument(t, 8, 8), dir, "released")
	plain := saveGLB(t, newPositionOnlyDocument(), dir, "plain")

	dev := newTestDevice(t)
	l := newTestLoader(t, dev)
	first, err := l.Load(LoadOptions{Path: triangle})
	require.NoError(t, err)
	_, err = l.Load(LoadOptions{Path: plain})
	require.NoError(t, err)
	require.Positive(t, liveObjects(dev))

	l.Release()
	assert.True(t, first.Destroyed())
	assert.Empty(t, l.Assets())
	assert.Zero(t, liveObjects(dev))

	_, err = l.Load(LoadOptions{Path: triangle})
	assert.ErrorIs(t, err, ErrReleased)
	assert.NotPanics(t, l.Release)
}

func TestLoadInvalidDocumentAllocatesNothing(t *testing.T) {
	dir := t.TempDir()
	doc := newPositionOnlyDocument()
	doc.Meshes[0].Primitives[0].Material = gltf.Index(3)
	path := saveGLB(t, doc, dir, "broken")

	dev := newTestDevice(t)
	_, err := newTestLoader(t, dev).Load(LoadOptions{Path: path})
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Zero(t, liveObjects(dev))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := newTestLoader(t, newTestDevice(t)).Load(LoadOptions{Path: filepath.Join(t.TempDir(), "missing.gltf")})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestLoadCorruptImageReleasesResources(t *testing.T) {
	dir := t.TempDir()
	doc := newTriangleDocument(t, 4, 4)
	img, err := modeler.WriteImage(doc, "junk", "image/png", bytes.NewReader([]byte("not an image")))
	require.NoError(t, err)
	doc.Textures = append(doc.Textures, &gltf.Texture{Source: gltf.Index(img)})
	path := saveGLB(t, doc, dir, "corrupt")

	dev := newTestDevice(t)
	_, err = newTestLoader(t, dev).Load(LoadOptions{Path: path})
	assert.ErrorIs(t, err, ErrDecodeImage)
	assert.Zero(t, liveObjects(dev))
}
