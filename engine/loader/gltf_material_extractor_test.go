package loader

import (
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"

	"github.com/imalexlee/vk-gltf/engine/gpu"
)

func TestSamplerDescriptorFilters(t *testing.T) {
	tests := []struct {
		name string
		min  gltf.MinFilter
		mag  gltf.MagFilter

		wantMin gpu.Filter
		wantMag gpu.Filter
		wantMip gpu.MipmapMode
	}{
		{name: "nearest", min: gltf.MinNearest, mag: gltf.MagNearest, wantMin: gpu.FilterNearest, wantMag: gpu.FilterNearest, wantMip: gpu.MipmapModeNearest},
		{name: "nearest mip nearest", min: gltf.MinNearestMipMapNearest, mag: gltf.MagLinear, wantMin: gpu.FilterNearest, wantMag: gpu.FilterLinear, wantMip: gpu.MipmapModeNearest},
		{name: "linear", min: gltf.MinLinear, mag: gltf.MagLinear, wantMin: gpu.FilterLinear, wantMag: gpu.FilterLinear, wantMip: gpu.MipmapModeNearest},
		{name: "linear mip nearest", min: gltf.MinLinearMipMapNearest, wantMin: gpu.FilterLinear, wantMag: gpu.FilterLinear, wantMip: gpu.MipmapModeNearest},
		{name: "nearest mip linear", min: gltf.MinNearestMipMapLinear, wantMin: gpu.FilterNearest, wantMag: gpu.FilterLinear, wantMip: gpu.MipmapModeLinear},
		{name: "linear mip linear", min: gltf.MinLinearMipMapLinear, wantMin: gpu.FilterLinear, wantMag: gpu.FilterLinear, wantMip: gpu.MipmapModeLinear},
		{name: "unset", wantMin: gpu.FilterLinear, wantMag: gpu.FilterLinear, wantMip: gpu.MipmapModeLinear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := gltfSamplerDescriptor(&gltf.Sampler{MinFilter: tt.min, MagFilter: tt.mag})
			assert.Equal(t, tt.wantMin, desc.MinFilter)
			assert.Equal(t, tt.wantMag, desc.MagFilter)
			assert.Equal(t, tt.wantMip, desc.MipmapMode)
		})
	}
}

func TestSamplerDescriptorAddressing(t *testing.T) {
	desc := gltfSamplerDescriptor(&gltf.Sampler{WrapS: gltf.WrapMirroredRepeat, WrapT: gltf.WrapClampToEdge})
	assert.Equal(t, gpu.AddressModeMirroredRepeat, desc.AddressModeU)
	assert.Equal(t, gpu.AddressModeClampToEdge, desc.AddressModeV)
	assert.Equal(t, gpu.AddressModeClampToEdge, desc.AddressModeW)

	desc = gltfSamplerDescriptor(&gltf.Sampler{})
	assert.Equal(t, gpu.AddressModeRepeat, desc.AddressModeU)
	assert.Equal(t, gpu.AddressModeRepeat, desc.AddressModeV)
	assert.True(t, desc.AnisotropyEnable)
	assert.Equal(t, float32(16), desc.MaxAnisotropy)
	assert.Equal(t, gpu.BorderColorFloatOpaqueBlack, desc.BorderColor)
	assert.Zero(t, desc.MinLod)
	assert.Equal(t, gpu.LodClampNone, desc.MaxLod)
}
