package loader

import (
	"fmt"
	"log/slog"

	"github.com/qmuntal/gltf"

	"github.com/imalexlee/vk-gltf/common"
	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/model"
)

// maxSamplerAnisotropy is the anisotropy level every imported sampler is created with.
const maxSamplerAnisotropy = 16

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser gltfParser
	device gpu.Device
	logger *slog.Logger
}

// gltfMaterialExtractor converts the sampler, material and texture tables of a parsed document.
type gltfMaterialExtractor interface {
	// ExtractAllSamplers creates one GPU sampler per document sampler, appending to asset.Samplers.
	//
	// Parameters:
	//   - asset: the asset receiving the samplers
	//
	// Returns:
	//   - error: error if sampler creation fails
	ExtractAllSamplers(asset *model.Asset) error

	// ExtractAllMaterials converts every material, appending to asset.Materials.
	//
	// Parameters:
	//   - asset: the asset receiving the materials
	ExtractAllMaterials(asset *model.Asset)

	// ExtractAllTextures converts every texture to an image/sampler pair, appending to asset.Textures.
	//
	// Parameters:
	//   - asset: the asset receiving the textures
	ExtractAllTextures(asset *model.Asset)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

// newGLTFMaterialExtractor creates a new material extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - device: the device samplers are created on
//   - logger: the stage logger
//
// Returns:
//   - gltfMaterialExtractor: the material extractor
func newGLTFMaterialExtractor(parser gltfParser, device gpu.Device, logger *slog.Logger) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{parser: parser, device: device, logger: logger}
}

// --- Samplers ---

func (e *gltfMaterialExtractorImpl) ExtractAllSamplers(asset *model.Asset) error {
	doc := e.parser.Document()
	for i, s := range doc.Samplers {
		desc := gltfSamplerDescriptor(s)
		desc.Label = fmt.Sprintf("%s sampler %d", e.parser.Stem(), i)

		sampler, err := e.device.CreateSampler(desc)
		if err != nil {
			return fmt.Errorf("%w: sampler %d: %w", ErrGPU, i, err)
		}
		asset.Samplers = append(asset.Samplers, model.Sampler{Sampler: sampler, Descriptor: desc})
	}
	return nil
}

// gltfSamplerDescriptor converts a glTF sampler to a sampler descriptor.
//
// Parameters:
//   - s: the glTF sampler
//
// Returns:
//   - gpu.SamplerDescriptor: the descriptor, without a label
func gltfSamplerDescriptor(s *gltf.Sampler) gpu.SamplerDescriptor {
	desc := gpu.SamplerDescriptor{
		MagFilter:        gpu.FilterLinear,
		AnisotropyEnable: true,
		MaxAnisotropy:    maxSamplerAnisotropy,
		BorderColor:      gpu.BorderColorFloatOpaqueBlack,
		MinLod:           0,
		MaxLod:           gpu.LodClampNone,
	}
	if s.MagFilter == gltf.MagNearest {
		desc.MagFilter = gpu.FilterNearest
	}

	switch s.MinFilter {
	case gltf.MinNearest, gltf.MinNearestMipMapNearest:
		desc.MinFilter, desc.MipmapMode = gpu.FilterNearest, gpu.MipmapModeNearest
	case gltf.MinLinear, gltf.MinLinearMipMapNearest:
		desc.MinFilter, desc.MipmapMode = gpu.FilterLinear, gpu.MipmapModeNearest
	case gltf.MinNearestMipMapLinear:
		desc.MinFilter, desc.MipmapMode = gpu.FilterNearest, gpu.MipmapModeLinear
	default:
		desc.MinFilter, desc.MipmapMode = gpu.FilterLinear, gpu.MipmapModeLinear
	}

	desc.AddressModeU = gltfAddressMode(s.WrapS)
	desc.AddressModeV = gltfAddressMode(s.WrapT)
	desc.AddressModeW = desc.AddressModeV
	return desc
}

func gltfAddressMode(mode gltf.WrappingMode) gpu.AddressMode {
	switch mode {
	case gltf.WrapClampToEdge:
		return gpu.AddressModeClampToEdge
	case gltf.WrapMirroredRepeat:
		return gpu.AddressModeMirroredRepeat
	default:
		return gpu.AddressModeRepeat
	}
}

// --- Materials ---

func (e *gltfMaterialExtractorImpl) ExtractAllMaterials(asset *model.Asset) {
	doc := e.parser.Document()
	for i, mat := range doc.Materials {
		asset.Materials = append(asset.Materials, e.extractMaterial(mat, e.parser.MaterialExtensions(i)))
	}
}

func (e *gltfMaterialExtractorImpl) extractMaterial(mat *gltf.Material, ext gltfMaterialExtensions) model.Material {
	out := model.DefaultMaterial()
	out.Name = mat.Name
	out.DoubleSided = mat.DoubleSided
	out.AlphaCutoff = float32(mat.AlphaCutoffOrDefault())
	out.EmissiveFactor = common.Vec3From(mat.EmissiveFactor[:])

	switch mat.AlphaMode {
	case gltf.AlphaMask:
		out.AlphaMode = model.AlphaModeMask
	case gltf.AlphaBlend:
		out.AlphaMode = model.AlphaModeBlend
	default:
		out.AlphaMode = model.AlphaModeOpaque
	}

	if pbr := mat.PBRMetallicRoughness; pbr != nil {
		factor := pbr.BaseColorFactorOrDefault()
		out.BaseColorFactor = common.Vec4From(factor[:])
		out.MetallicFactor = float32(pbr.MetallicFactorOrDefault())
		out.RoughnessFactor = float32(pbr.RoughnessFactorOrDefault())
		if t := pbr.BaseColorTexture; t != nil {
			out.BaseColorTexture = e.textureInfo(t.Index, t.TexCoord)
		}
		if t := pbr.MetallicRoughnessTexture; t != nil {
			out.MetallicRoughnessTexture = e.textureInfo(t.Index, t.TexCoord)
		}
	}

	if t := mat.NormalTexture; t != nil {
		out.NormalScale = float32(t.ScaleOrDefault())
		if t.Index != nil {
			out.NormalTexture = e.textureInfo(*t.Index, t.TexCoord)
		}
	}
	if t := mat.OcclusionTexture; t != nil {
		out.OcclusionStrength = float32(t.StrengthOrDefault())
		if t.Index != nil {
			out.OcclusionTexture = e.textureInfo(*t.Index, t.TexCoord)
		}
	}
	if t := mat.EmissiveTexture; t != nil {
		out.EmissiveTexture = e.textureInfo(t.Index, t.TexCoord)
	}

	if c := ext.Clearcoat; c != nil {
		out.ClearcoatFactor = float32(c.ClearcoatFactor)
		out.ClearcoatRoughnessFactor = float32(c.ClearcoatRoughnessFactor)
		out.ClearcoatTexture = e.extensionTextureInfo(c.ClearcoatTexture)
		out.ClearcoatRoughnessTexture = e.extensionTextureInfo(c.ClearcoatRoughnessTexture)
		out.ClearcoatNormalTexture = e.extensionTextureInfo(c.ClearcoatNormalTexture)
	}
	return out
}

// textureInfo resolves a document texture reference to an asset texture reference.
func (e *gltfMaterialExtractorImpl) textureInfo(index, texCoord int) common.Optional[model.TextureInfo] {
	doc := e.parser.Document()
	flat, ok := e.parser.IndexMaps().Texture(doc.Textures[index])
	if !ok {
		return common.None[model.TextureInfo]()
	}
	if texCoord > 1 {
		e.logger.Debug("texture samples a UV set that is not imported", "texture", index, "texCoord", texCoord)
	}
	return common.Some(model.TextureInfo{TextureIndex: flat, TexCoord: texCoord})
}

func (e *gltfMaterialExtractorImpl) extensionTextureInfo(info *gltfExtensionTextureInfo) common.Optional[model.TextureInfo] {
	if info == nil {
		return common.None[model.TextureInfo]()
	}
	return e.textureInfo(info.Index, info.TexCoord)
}

// --- Textures ---

func (e *gltfMaterialExtractorImpl) ExtractAllTextures(asset *model.Asset) {
	doc := e.parser.Document()
	indices := e.parser.IndexMaps()

	for _, t := range doc.Textures {
		var out model.Texture
		if t.Source != nil {
			if i, ok := indices.Image(doc.Images[*t.Source]); ok {
				out.Image = common.Some(i)
			}
		}
		if t.Sampler != nil {
			if i, ok := indices.Sampler(doc.Samplers[*t.Sampler]); ok {
				out.Sampler = common.Some(i)
			}
		}
		asset.Textures = append(asset.Textures, out)
	}
}
