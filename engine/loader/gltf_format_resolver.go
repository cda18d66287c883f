package loader

import (
	"github.com/qmuntal/gltf"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

// sourceChannels is the channel count every decoded image is expanded to.
const sourceChannels = 4

// gltfResolveFormat decides the formats of one image. An image is linear data when any material
// samples it through a non-color slot (normal, occlusion, metallic-roughness, specular-glossiness,
// clearcoat roughness or normal, transmission, sheen roughness); otherwise it is sRGB color data.
// The result only depends on the material list and is recomputed for every image.
//
// Parameters:
//   - doc: the parsed document
//   - exts: the decoded material extensions, one per material
//   - imageIndex: the image to classify
//   - channels: the channel count of the decoded texels
//
// Returns:
//   - FormatSelection: the uncompressed, compressed and transcode formats of the image
func gltfResolveFormat(doc *gltf.Document, exts []gltfMaterialExtensions, imageIndex, channels int) FormatSelection {
	srgb := true
	for i, mat := range doc.Materials {
		var ext gltfMaterialExtensions
		if i < len(exts) {
			ext = exts[i]
		}
		if gltfImageInLinearSlot(doc, mat, ext, imageIndex) {
			srgb = false
			break
		}
	}
	return formatForChannels(channels, srgb)
}

// formatForChannels maps a channel count and color space to formats.
func formatForChannels(channels int, srgb bool) FormatSelection {
	switch channels {
	case 1:
		return FormatSelection{Uncompressed: gpu.FormatR8Unorm, Compressed: gpu.FormatBC4RUnormBlock, Transcode: ktx2.TranscodeBC4R}
	case 2:
		return FormatSelection{Uncompressed: gpu.FormatRG8Unorm, Compressed: gpu.FormatBC5RGUnormBlock, Transcode: ktx2.TranscodeBC5RG}
	case 3:
		if srgb {
			return FormatSelection{Uncompressed: gpu.FormatRGB8Srgb, Compressed: gpu.FormatBC7SrgbBlock, Transcode: ktx2.TranscodeBC7RGBA, SRGB: true}
		}
		return FormatSelection{Uncompressed: gpu.FormatRGB8Unorm, Compressed: gpu.FormatBC7UnormBlock, Transcode: ktx2.TranscodeBC7RGBA}
	default:
		if srgb {
			return FormatSelection{Uncompressed: gpu.FormatRGBA8Srgb, Compressed: gpu.FormatBC7SrgbBlock, Transcode: ktx2.TranscodeBC7RGBA, SRGB: true}
		}
		return FormatSelection{Uncompressed: gpu.FormatRGBA8Unorm, Compressed: gpu.FormatBC7UnormBlock, Transcode: ktx2.TranscodeBC7RGBA}
	}
}

// gltfImageInLinearSlot reports whether a material samples imageIndex through a non-color slot.
func gltfImageInLinearSlot(doc *gltf.Document, mat *gltf.Material, ext gltfMaterialExtensions, imageIndex int) bool {
	var textures []int
	if mat.NormalTexture != nil && mat.NormalTexture.Index != nil {
		textures = append(textures, *mat.NormalTexture.Index)
	}
	if mat.OcclusionTexture != nil && mat.OcclusionTexture.Index != nil {
		textures = append(textures, *mat.OcclusionTexture.Index)
	}
	if pbr := mat.PBRMetallicRoughness; pbr != nil && pbr.MetallicRoughnessTexture != nil {
		textures = append(textures, pbr.MetallicRoughnessTexture.Index)
	}

	linearExt := []*gltfExtensionTextureInfo{}
	if sg := ext.SpecularGlossiness; sg != nil {
		linearExt = append(linearExt, sg.SpecularGlossinessTexture)
	}
	if c := ext.Clearcoat; c != nil {
		linearExt = append(linearExt, c.ClearcoatRoughnessTexture, c.ClearcoatNormalTexture)
	}
	if t := ext.Transmission; t != nil {
		linearExt = append(linearExt, t.TransmissionTexture)
	}
	if sh := ext.Sheen; sh != nil {
		linearExt = append(linearExt, sh.SheenRoughnessTexture)
	}
	for _, info := range linearExt {
		if info != nil {
			textures = append(textures, info.Index)
		}
	}

	for _, t := range textures {
		if t < 0 || t >= len(doc.Textures) {
			continue
		}
		if src := doc.Textures[t].Source; src != nil && *src == imageIndex {
			return true
		}
	}
	return false
}
