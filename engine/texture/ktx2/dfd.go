package ktx2

import (
	"encoding/binary"
	"fmt"

	"github.com/imalexlee/vk-gltf/engine/gpu"
)

// ColorModel is the Khronos data format descriptor color model.
type ColorModel uint8

const (
	ColorModelUnspecified ColorModel = 0
	ColorModelRGBSDA      ColorModel = 1
	ColorModelBC4         ColorModel = 131
	ColorModelBC5         ColorModel = 132
	ColorModelBC7         ColorModel = 134
)

const (
	dfdVersion          = 2
	dfdBasicHeaderSize  = 24
	dfdSampleSize       = 16
	dfdPrimariesBT709   = 1
	dfdTransferLinear   = 1
	dfdTransferSRGB     = 2
	dfdChannelRed       = 0
	dfdChannelGreen     = 1
	dfdChannelBlue      = 2
	dfdChannelAlpha     = 15
	dfdQualifierLinear  = 0x10
	dfdSampleUpperFull  = 0xFFFFFFFF
	dfdSampleUpperUnorm = 0xFF
)

type dfdSample struct {
	bitOffset uint16
	bitLength uint8
	channel   uint8
	upper     uint32
}

func colorModelOf(f gpu.Format) (ColorModel, bool) {
	switch f {
	case gpu.FormatR8Unorm, gpu.FormatRG8Unorm, gpu.FormatRGB8Unorm, gpu.FormatRGB8Srgb, gpu.FormatRGBA8Unorm, gpu.FormatRGBA8Srgb:
		return ColorModelRGBSDA, true
	case gpu.FormatBC4RUnormBlock:
		return ColorModelBC4, true
	case gpu.FormatBC5RGUnormBlock:
		return ColorModelBC5, true
	case gpu.FormatBC7UnormBlock, gpu.FormatBC7SrgbBlock:
		return ColorModelBC7, true
	default:
		return ColorModelUnspecified, false
	}
}

// blockFormat returns the GPU format whose block layout matches a color model.
func blockFormat(model ColorModel, srgb bool) gpu.Format {
	switch model {
	case ColorModelBC4:
		return gpu.FormatBC4RUnormBlock
	case ColorModelBC5:
		return gpu.FormatBC5RGUnormBlock
	case ColorModelBC7:
		if srgb {
			return gpu.FormatBC7SrgbBlock
		}
		return gpu.FormatBC7UnormBlock
	default:
		return gpu.FormatUndefined
	}
}

// layoutFormat returns the format describing how the stored (uncompressed) level data is laid out.
func (t *Texture) layoutFormat() gpu.Format {
	if t.Format != gpu.FormatUndefined {
		return t.Format
	}
	return blockFormat(t.ColorModel, t.SRGB)
}

func (t *Texture) dfdSamples() []dfdSample {
	switch t.ColorModel {
	case ColorModelBC4:
		return []dfdSample{{0, 63, dfdChannelRed, dfdSampleUpperFull}}
	case ColorModelBC5:
		return []dfdSample{
			{0, 63, dfdChannelRed, dfdSampleUpperFull},
			{64, 63, dfdChannelGreen, dfdSampleUpperFull},
		}
	case ColorModelBC7:
		return []dfdSample{{0, 127, dfdChannelRed, dfdSampleUpperFull}}
	}

	channels := []uint8{dfdChannelRed, dfdChannelGreen, dfdChannelBlue, dfdChannelAlpha}
	n := int(t.Format.BlockBytes())
	samples := make([]dfdSample, 0, n)
	for i := range n {
		ch := channels[i]
		if n < 4 {
			ch = uint8(i)
		}
		sample := dfdSample{bitOffset: uint16(i * 8), bitLength: 7, channel: ch, upper: dfdSampleUpperUnorm}
		// Alpha is never sRGB encoded.
		if ch == dfdChannelAlpha && t.SRGB {
			sample.channel |= dfdQualifierLinear
		}
		samples = append(samples, sample)
	}
	return samples
}

// encodeDFD serialises the data format descriptor, including its leading total size word.
func (t *Texture) encodeDFD() []byte {
	samples := t.dfdSamples()
	blockSize := dfdBasicHeaderSize + dfdSampleSize*len(samples)
	out := make([]byte, 4+blockSize)
	le := binary.LittleEndian

	le.PutUint32(out[0:], uint32(len(out)))
	b := out[4:]
	le.PutUint32(b[0:], 0)
	le.PutUint16(b[4:], dfdVersion)
	le.PutUint16(b[6:], uint16(blockSize))
	b[8] = byte(t.ColorModel)
	b[9] = dfdPrimariesBT709
	b[10] = dfdTransferLinear
	if t.SRGB {
		b[10] = dfdTransferSRGB
	}
	b[11] = 0

	layout := t.layoutFormat()
	if layout.IsBlockCompressed() {
		b[12], b[13] = 3, 3
	}
	if t.Supercompression == SupercompressionNone {
		b[16] = byte(layout.BlockBytes())
	}

	for i, s := range samples {
		sb := b[dfdBasicHeaderSize+i*dfdSampleSize:]
		le.PutUint16(sb[0:], s.bitOffset)
		sb[2] = s.bitLength
		sb[3] = s.channel
		le.PutUint32(sb[8:], 0)
		le.PutUint32(sb[12:], s.upper)
	}
	return out
}

// parseDFD reads the color model and transfer function of the first basic descriptor block.
func parseDFD(data []byte) (ColorModel, bool, error) {
	le := binary.LittleEndian
	if len(data) < 4+dfdBasicHeaderSize {
		return 0, false, fmt.Errorf("ktx2: data format descriptor of %d bytes: %w", len(data), ErrInvalidContainer)
	}
	if total := le.Uint32(data[0:]); int(total) != len(data) {
		return 0, false, fmt.Errorf("ktx2: descriptor size %d does not match %d: %w", total, len(data), ErrInvalidContainer)
	}
	b := data[4:]
	if vendorType := le.Uint32(b[0:]); vendorType != 0 {
		return 0, false, fmt.Errorf("ktx2: descriptor block %#x is not a Khronos basic block: %w", vendorType, ErrUnsupported)
	}
	if blockSize := int(le.Uint16(b[6:])); blockSize < dfdBasicHeaderSize || blockSize > len(b) {
		return 0, false, fmt.Errorf("ktx2: descriptor block size %d: %w", blockSize, ErrInvalidContainer)
	}
	return ColorModel(b[8]), b[10] == dfdTransferSRGB, nil
}
