package gpu

import "fmt"

// Format identifies the pixel format of a GPU image.
type Format int

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRG8Unorm
	FormatRGB8Unorm
	FormatRGB8Srgb
	FormatRGBA8Unorm
	FormatRGBA8Srgb
	FormatBC4RUnormBlock
	FormatBC5RGUnormBlock
	FormatBC7UnormBlock
	FormatBC7SrgbBlock
)

// Vulkan VkFormat values, as stored in KTX2 headers.
const (
	vkFormatUndefined     uint32 = 0
	vkFormatR8Unorm       uint32 = 9
	vkFormatR8G8Unorm     uint32 = 16
	vkFormatR8G8B8Unorm   uint32 = 23
	vkFormatR8G8B8Srgb    uint32 = 29
	vkFormatR8G8B8A8Unorm uint32 = 37
	vkFormatR8G8B8A8Srgb  uint32 = 43
	vkFormatBC4UnormBlock uint32 = 139
	vkFormatBC5UnormBlock uint32 = 141
	vkFormatBC7UnormBlock uint32 = 145
	vkFormatBC7SrgbBlock  uint32 = 146
)

type formatInfo struct {
	name        string
	vk          uint32
	blockWidth  uint32
	blockHeight uint32
	blockBytes  uint32
	srgb        bool
}

var formatTable = map[Format]formatInfo{
	FormatUndefined:       {"Undefined", vkFormatUndefined, 1, 1, 0, false},
	FormatR8Unorm:         {"R8Unorm", vkFormatR8Unorm, 1, 1, 1, false},
	FormatRG8Unorm:        {"RG8Unorm", vkFormatR8G8Unorm, 1, 1, 2, false},
	FormatRGB8Unorm:       {"RGB8Unorm", vkFormatR8G8B8Unorm, 1, 1, 3, false},
	FormatRGB8Srgb:        {"RGB8Srgb", vkFormatR8G8B8Srgb, 1, 1, 3, true},
	FormatRGBA8Unorm:      {"RGBA8Unorm", vkFormatR8G8B8A8Unorm, 1, 1, 4, false},
	FormatRGBA8Srgb:       {"RGBA8Srgb", vkFormatR8G8B8A8Srgb, 1, 1, 4, true},
	FormatBC4RUnormBlock:  {"BC4RUnormBlock", vkFormatBC4UnormBlock, 4, 4, 8, false},
	FormatBC5RGUnormBlock: {"BC5RGUnormBlock", vkFormatBC5UnormBlock, 4, 4, 16, false},
	FormatBC7UnormBlock:   {"BC7UnormBlock", vkFormatBC7UnormBlock, 4, 4, 16, false},
	FormatBC7SrgbBlock:    {"BC7SrgbBlock", vkFormatBC7SrgbBlock, 4, 4, 16, true},
}

func (f Format) String() string {
	if info, ok := formatTable[f]; ok {
		return info.name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// VkFormat returns the Vulkan VkFormat value of the format.
//
// Returns:
//   - uint32: the VkFormat enum value, 0 when unknown
func (f Format) VkFormat() uint32 {
	return formatTable[f].vk
}

// IsSRGB reports whether the format applies the sRGB transfer function on sampling.
//
// Returns:
//   - bool: true for sRGB formats
func (f Format) IsSRGB() bool {
	return formatTable[f].srgb
}

// IsBlockCompressed reports whether the format stores 4x4 compressed blocks.
//
// Returns:
//   - bool: true for BC formats
func (f Format) IsBlockCompressed() bool {
	return formatTable[f].blockWidth > 1
}

// BlockBytes returns the byte size of one texel block (one texel for uncompressed formats).
//
// Returns:
//   - uint32: bytes per block
func (f Format) BlockBytes() uint32 {
	return formatTable[f].blockBytes
}

// BytesPerRow returns the tightly packed byte size of one row of blocks for the given width.
//
// Parameters:
//   - width: the row width in texels
//
// Returns:
//   - uint32: bytes per block row
func (f Format) BytesPerRow(width uint32) uint32 {
	info := formatTable[f]
	return ceilDiv(width, info.blockWidth) * info.blockBytes
}

// RowsPerImage returns the number of block rows covering the given height.
//
// Parameters:
//   - height: the image height in texels
//
// Returns:
//   - uint32: the number of block rows
func (f Format) RowsPerImage(height uint32) uint32 {
	return ceilDiv(height, formatTable[f].blockHeight)
}

// LevelSize returns the tightly packed byte size of a width x height image in this format.
//
// Parameters:
//   - width: the image width in texels
//   - height: the image height in texels
//
// Returns:
//   - uint64: the byte size
func (f Format) LevelSize(width, height uint32) uint64 {
	return uint64(f.BytesPerRow(width)) * uint64(f.RowsPerImage(height))
}

// FormatFromVk maps a Vulkan VkFormat value to a Format.
//
// Parameters:
//   - vk: the VkFormat value
//
// Returns:
//   - Format: the matching format, FormatUndefined when unknown
func FormatFromVk(vk uint32) Format {
	for f, info := range formatTable {
		if info.vk == vk {
			return f
		}
	}
	return FormatUndefined
}

// MipExtent returns the extent of a mip level, never smaller than 1x1.
//
// Parameters:
//   - width: level 0 width
//   - height: level 0 height
//   - level: the mip level
//
// Returns:
//   - uint32: the level width
//   - uint32: the level height
func MipExtent(width, height, level uint32) (uint32, uint32) {
	return max(width>>level, 1), max(height>>level, 1)
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}
