package loader

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/imalexlee/vk-gltf/common"
	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/model"
	"github.com/imalexlee/vk-gltf/engine/profiler"
)

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser   gltfParser
	device   gpu.Device
	staging  stagingBuffer
	transfer transferExecutor
	profiler *profiler.Profiler
	logger   *slog.Logger
}

// gltfMeshExtractor builds GPU vertex and index buffers for every primitive of the document.
type gltfMeshExtractor interface {
	// ExtractAllMeshes extracts every mesh in document order, appending to asset.Meshes as it goes
	// so that buffers created before a failure are owned by the asset.
	//
	// Parameters:
	//   - asset: the asset receiving the meshes
	//
	// Returns:
	//   - error: error if an accessor cannot be read or a GPU operation fails
	ExtractAllMeshes(asset *model.Asset) error

	// ExtractPrimitive builds the buffers of one primitive.
	//
	// Parameters:
	//   - meshIndex: the mesh index, used for labels
	//   - primIndex: the primitive index within the mesh
	//   - prim: the source primitive
	//
	// Returns:
	//   - model.Primitive: the primitive with its GPU buffers
	//   - error: error if extraction fails; nothing stays allocated on error
	ExtractPrimitive(meshIndex, primIndex int, prim *gltf.Primitive) (model.Primitive, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a new mesh extractor.
//
// Parameters:
//   - parser: the parser holding the document
//   - device: the device buffers are created on
//   - staging: the staging buffer of the load
//   - transfer: the transfer executor of the load
//   - prof: the profiler of the load
//   - logger: the stage logger
//
// Returns:
//   - gltfMeshExtractor: the mesh extractor
func newGLTFMeshExtractor(parser gltfParser, device gpu.Device, staging stagingBuffer, transfer transferExecutor,
	prof *profiler.Profiler, logger *slog.Logger) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{
		parser:   parser,
		device:   device,
		staging:  staging,
		transfer: transfer,
		profiler: prof,
		logger:   logger,
	}
}

func (e *gltfMeshExtractorImpl) ExtractAllMeshes(asset *model.Asset) error {
	doc := e.parser.Document()
	indices := e.parser.IndexMaps()

	for _, mesh := range doc.Meshes {
		meshIndex, _ := indices.Mesh(mesh)
		asset.Meshes = append(asset.Meshes, model.Mesh{
			Name:       mesh.Name,
			Primitives: make([]model.Primitive, 0, len(mesh.Primitives)),
		})
		out := &asset.Meshes[len(asset.Meshes)-1]

		for primIndex, prim := range mesh.Primitives {
			p, err := e.ExtractPrimitive(meshIndex, primIndex, prim)
			if err != nil {
				return fmt.Errorf("mesh %d (%q) primitive %d: %w", meshIndex, mesh.Name, primIndex, err)
			}
			out.Primitives = append(out.Primitives, p)
		}
	}
	return nil
}

func (e *gltfMeshExtractorImpl) ExtractPrimitive(meshIndex, primIndex int, prim *gltf.Primitive) (model.Primitive, error) {
	doc := e.parser.Document()
	out := model.Primitive{
		Topology: gltfTopology(prim.Mode),
		Material: common.FromPtr(prim.Material, func(i int) int { return i }),
	}
	label := fmt.Sprintf("%s mesh %d prim %d", e.parser.Stem(), meshIndex, primIndex)

	if prim.Indices != nil && doc.Accessors[*prim.Indices].Count > 0 {
		idx, indexType, count, err := e.uploadIndices(doc.Accessors[*prim.Indices], label)
		if err != nil {
			return model.Primitive{}, err
		}
		out.Index = common.Some(idx)
		out.IndexType = indexType
		out.IndexCount = count
	}

	vertex, count, bounds, err := e.uploadVertices(prim, label)
	if err != nil {
		if idx, ok := out.Index.Get(); ok {
			idx.Buffer.Release()
		}
		return model.Primitive{}, err
	}
	out.Vertex = vertex
	out.VertexCount = count
	out.Bounds = bounds
	return out, nil
}

// uploadIndices reads an index accessor into the staging buffer and copies it into a device-local index buffer.
// Indices are 32-bit only when the accessor declares unsigned 32-bit components; 8-bit indices are widened to 16 bits.
func (e *gltfMeshExtractorImpl) uploadIndices(acc *gltf.Accessor, label string) (*model.Buffer, model.IndexType, uint32, error) {
	doc := e.parser.Document()
	values, err := modeler.ReadIndices(doc, acc, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: read indices: %w", ErrInvalidDocument, err)
	}

	indexType := model.IndexTypeUint16
	if acc.ComponentType == gltf.ComponentUint {
		indexType = model.IndexTypeUint32
	}
	// Copy sizes must be a multiple of four bytes.
	size := common.AlignUp(uint64(len(values)*indexType.Size()), 4)

	if err := e.staging.Ensure(size); err != nil {
		return nil, 0, 0, err
	}
	mapped := e.staging.Mapped()
	if indexType == model.IndexTypeUint32 {
		copy(common.BytesToSlice[uint32](mapped, len(values)), values)
	} else {
		dst := common.BytesToSlice[uint16](mapped, len(values))
		for i, v := range values {
			dst[i] = uint16(v)
		}
	}

	buf, err := e.createAndCopy(gpu.BufferDescriptor{
		Label: label + " indices",
		Size:  size,
		Usage: gpu.BufferUsageIndex | gpu.BufferUsageTransferDst,
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return buf, indexType, uint32(len(values)), nil
}

// uploadVertices builds the interleaved vertices in the staging buffer's mapped memory and copies them
// into a device-local vertex buffer.
func (e *gltfMeshExtractorImpl) uploadVertices(prim *gltf.Primitive, label string) (*model.Buffer, uint32, model.Bounds, error) {
	doc := e.parser.Document()

	count := 0
	for _, a := range prim.Attributes {
		count = max(count, doc.Accessors[a].Count)
	}
	if count == 0 {
		return nil, 0, model.Bounds{}, fmt.Errorf("%w: primitive has no vertices", ErrInvalidDocument)
	}

	size := uint64(count) * model.VertexSize
	if err := e.staging.Ensure(size); err != nil {
		return nil, 0, model.Bounds{}, err
	}
	vertices := common.BytesToSlice[model.Vertex](e.staging.Mapped(), count)
	def := model.DefaultVertex()
	for i := range vertices {
		vertices[i] = def
	}

	bounds, err := e.writeAttributes(prim, vertices)
	if err != nil {
		return nil, 0, model.Bounds{}, err
	}

	buf, err := e.createAndCopy(gpu.BufferDescriptor{
		Label: label + " vertices",
		Size:  size,
		Usage: gpu.BufferUsageVertex | gpu.BufferUsageStorage | gpu.BufferUsageShaderDeviceAddress | gpu.BufferUsageTransferDst,
	})
	if err != nil {
		return nil, 0, model.Bounds{}, err
	}
	return buf, uint32(count), bounds, nil
}

// writeAttributes writes every supported attribute into vertices and returns the bounds declared by POSITION.
func (e *gltfMeshExtractorImpl) writeAttributes(prim *gltf.Primitive, vertices []model.Vertex) (model.Bounds, error) {
	doc := e.parser.Document()
	var bounds model.Bounds
	hasColor := false

	for name, a := range prim.Attributes {
		acc := doc.Accessors[a]
		var err error
		switch {
		case name == gltf.POSITION:
			var positions [][3]float32
			if positions, err = modeler.ReadPosition(doc, acc, nil); err == nil {
				for i, p := range positions {
					vertices[i].Position = p
				}
			}
			if len(acc.Min) >= 3 && len(acc.Max) >= 3 {
				bounds = model.BoundsFromMinMax(common.Vec3From(acc.Min), common.Vec3From(acc.Max))
			} else {
				e.logger.Debug("POSITION accessor declares no min/max, bounds left empty")
			}
		case name == gltf.NORMAL:
			var normals [][3]float32
			if normals, err = modeler.ReadNormal(doc, acc, nil); err == nil {
				for i, n := range normals {
					vertices[i].Normal = n
				}
			}
		case name == gltf.TANGENT:
			var tangents [][4]float32
			if tangents, err = modeler.ReadTangent(doc, acc, nil); err == nil {
				for i, t := range tangents {
					vertices[i].Tangent = t
				}
			}
		case name == gltf.TEXCOORD_0 || name == gltf.TEXCOORD_1:
			set := 0
			if name == gltf.TEXCOORD_1 {
				set = 1
			}
			var uvs [][2]float32
			if uvs, err = modeler.ReadTextureCoord(doc, acc, nil); err == nil {
				for i, uv := range uvs {
					vertices[i].TexCoord[set] = uv
				}
			}
		case strings.HasPrefix(name, "TEXCOORD_"):
			e.logger.Debug("ignoring texture coordinate set beyond the second", "attribute", name)
		case name == gltf.COLOR_0:
			var colors [][4]float32
			if colors, err = gltfReadColors(doc, acc); err == nil {
				for i, c := range colors {
					vertices[i].Color = c
				}
				hasColor = true
			}
		}
		if err != nil {
			return model.Bounds{}, fmt.Errorf("%w: read %s: %w", ErrInvalidDocument, name, err)
		}
	}

	// Runs after every other attribute write so nothing can overwrite it.
	if !hasColor {
		for i := range vertices {
			vertices[i].Color = [4]float32{1, 1, 1, 1}
		}
	}
	return bounds, nil
}

// createAndCopy allocates a device-local buffer, queries its device address and copies the first
// desc.Size bytes of the staging buffer into it.
func (e *gltfMeshExtractorImpl) createAndCopy(desc gpu.BufferDescriptor) (*model.Buffer, error) {
	buf, err := e.device.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGPU, desc.Label, err)
	}
	address := buf.Address()
	e.profiler.Allocated(desc.Size)

	staging := e.staging.Buffer()
	err = e.transfer.Run(func(cmd gpu.CommandRecorder) {
		cmd.CopyBuffer(staging, buf, gpu.BufferCopy{SrcOffset: 0, DstOffset: 0, Size: desc.Size})
	})
	if err != nil {
		buf.Release()
		return nil, err
	}
	return &model.Buffer{Buffer: buf, Address: address, Size: desc.Size}, nil
}

// gltfTopology maps a draw mode to a topology. Line loops degrade to line strips.
func gltfTopology(mode gltf.PrimitiveMode) model.Topology {
	switch mode {
	case gltf.PrimitivePoints:
		return model.TopologyPointList
	case gltf.PrimitiveLines:
		return model.TopologyLineList
	case gltf.PrimitiveLineLoop, gltf.PrimitiveLineStrip:
		return model.TopologyLineStrip
	case gltf.PrimitiveTriangleStrip:
		return model.TopologyTriangleStrip
	case gltf.PrimitiveTriangleFan:
		return model.TopologyTriangleFan
	default:
		return model.TopologyTriangleList
	}
}

// gltfReadColors reads a COLOR_n accessor as RGBA floats. VEC3 colors get alpha 1; normalized
// unsigned byte and short components are scaled to [0, 1].
func gltfReadColors(doc *gltf.Document, acc *gltf.Accessor) ([][4]float32, error) {
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, err
	}

	switch v := data.(type) {
	case [][4]float32:
		return v, nil
	case [][3]float32:
		out := make([][4]float32, len(v))
		for i, c := range v {
			out[i] = [4]float32{c[0], c[1], c[2], 1}
		}
		return out, nil
	case [][4]uint8:
		return gltfNormalizeColors(len(v), 4, func(i, j int) float32 { return float32(v[i][j]) / 255 }), nil
	case [][3]uint8:
		return gltfNormalizeColors(len(v), 3, func(i, j int) float32 { return float32(v[i][j]) / 255 }), nil
	case [][4]uint16:
		return gltfNormalizeColors(len(v), 4, func(i, j int) float32 { return float32(v[i][j]) / 65535 }), nil
	case [][3]uint16:
		return gltfNormalizeColors(len(v), 3, func(i, j int) float32 { return float32(v[i][j]) / 65535 }), nil
	default:
		return nil, fmt.Errorf("unsupported color accessor %s/%s", acc.Type, acc.ComponentType)
	}
}

func gltfNormalizeColors(count, components int, at func(i, j int) float32) [][4]float32 {
	out := make([][4]float32, count)
	for i := range out {
		out[i] = [4]float32{0, 0, 0, 1}
		for j := 0; j < components; j++ {
			out[i][j] = at(i, j)
		}
	}
	return out
}
