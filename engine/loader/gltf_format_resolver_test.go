package loader

import (
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

// newSlotDocument builds a document with one texture per image, textures[i] sourcing images[i].
func newSlotDocument(images int) *gltf.Document {
	doc := &gltf.Document{}
	for i := range images {
		doc.Images = append(doc.Images, &gltf.Image{})
		doc.Textures = append(doc.Textures, &gltf.Texture{Source: gltf.Index(i)})
	}
	return doc
}

func TestResolveFormatBySlot(t *testing.T) {
	doc := newSlotDocument(6)
	doc.Materials = []*gltf.Material{
		{
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorTexture:         &gltf.TextureInfo{Index: 0},
				MetallicRoughnessTexture: &gltf.TextureInfo{Index: 1},
			},
			NormalTexture:   &gltf.NormalTexture{Index: gltf.Index(2)},
			EmissiveTexture: &gltf.TextureInfo{Index: 3},
		},
		{
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureInfo{Index: 4}},
			OcclusionTexture:     &gltf.OcclusionTexture{Index: gltf.Index(4)},
		},
	}
	exts := make([]gltfMaterialExtensions, len(doc.Materials))

	tests := []struct {
		name  string
		image int
		srgb  bool
	}{
		{name: "base color", image: 0, srgb: true},
		{name: "metallic roughness", image: 1, srgb: false},
		{name: "normal", image: 2, srgb: false},
		{name: "emissive", image: 3, srgb: true},
		{name: "color and occlusion", image: 4, srgb: false},
		{name: "unreferenced", image: 5, srgb: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := gltfResolveFormat(doc, exts, tt.image, sourceChannels)
			assert.Equal(t, tt.srgb, sel.SRGB)
			assert.Equal(t, ktx2.TranscodeBC7RGBA, sel.Transcode)
			if tt.srgb {
				assert.Equal(t, gpu.FormatRGBA8Srgb, sel.Uncompressed)
				assert.Equal(t, gpu.FormatBC7SrgbBlock, sel.Compressed)
			} else {
				assert.Equal(t, gpu.FormatRGBA8Unorm, sel.Uncompressed)
				assert.Equal(t, gpu.FormatBC7UnormBlock, sel.Compressed)
			}
		})
	}
}

func TestResolveFormatExtensionSlots(t *testing.T) {
	doc := newSlotDocument(3)
	doc.Materials = []*gltf.Material{{}}
	var ext gltfMaterialExtensions
	ext.Clearcoat = &gltfClearcoat{
		ClearcoatTexture:       &gltfExtensionTextureInfo{Index: 0},
		ClearcoatNormalTexture: &gltfExtensionTextureInfo{Index: 1},
	}
	ext.Sheen = &gltfSheen{SheenRoughnessTexture: &gltfExtensionTextureInfo{Index: 2}}
	exts := []gltfMaterialExtensions{ext}

	assert.True(t, gltfResolveFormat(doc, exts, 0, sourceChannels).SRGB)
	assert.False(t, gltfResolveFormat(doc, exts, 1, sourceChannels).SRGB)
	assert.False(t, gltfResolveFormat(doc, exts, 2, sourceChannels).SRGB)
}

func TestFormatForChannels(t *testing.T) {
	tests := []struct {
		channels   int
		compressed gpu.Format
		target     ktx2.TranscodeTarget
	}{
		{channels: 1, compressed: gpu.FormatBC4RUnormBlock, target: ktx2.TranscodeBC4R},
		{channels: 2, compressed: gpu.FormatBC5RGUnormBlock, target: ktx2.TranscodeBC5RG},
		{channels: 3, compressed: gpu.FormatBC7UnormBlock, target: ktx2.TranscodeBC7RGBA},
		{channels: 4, compressed: gpu.FormatBC7UnormBlock, target: ktx2.TranscodeBC7RGBA},
	}
	for _, tt := range tests {
		sel := formatForChannels(tt.channels, false)
		assert.Equal(t, tt.compressed, sel.Compressed, "channels %d", tt.channels)
		assert.Equal(t, tt.target, sel.Transcode, "channels %d", tt.channels)
	}
}
