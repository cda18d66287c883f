package ktx2

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/texture/bc7"
)

func checkerRGBA(w, h int) []byte {
	pix := make([]byte, w*h*4)
	for y := range h {
		for x := range w {
			i := (y*w + x) * 4
			v := byte(40)
			if (x/4+y/4)%2 == 0 {
				v = 220
			}
			pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v/2, 255-v, 255
		}
	}
	return pix
}

func newTestTexture(t *testing.T, format gpu.Format, w, h, levels uint32) *Texture {
	t.Helper()
	tex, err := New(format, w, h, levels)
	require.NoError(t, err)
	for level := range levels {
		lw, lh := tex.LevelExtent(level)
		require.NoError(t, tex.SetLevel(level, checkerRGBA(int(lw), int(lh))))
	}
	return tex
}

func TestNewValidates(t *testing.T) {
	_, err := New(gpu.FormatRGBA8Srgb, 8, 8, 5)
	assert.ErrorIs(t, err, ErrInvalidContainer)

	_, err = New(gpu.FormatUndefined, 8, 8, 1)
	assert.ErrorIs(t, err, ErrUnsupported)

	tex, err := New(gpu.FormatRGBA8Srgb, 8, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), tex.LevelCount())
	assert.Equal(t, uint64(8*4*4+4*2*4+2*1*4+1*1*4), tex.DataSize())
	assert.False(t, tex.NeedsTranscoding())
	assert.Error(t, tex.SetLevel(0, make([]byte, 3)))
	assert.Equal(t, uint32(4), MaxLevels(8, 4))
	assert.Equal(t, uint32(1), MaxLevels(1, 1))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tex := newTestTexture(t, gpu.FormatRGBA8Srgb, 8, 8, 4)

	data, err := tex.Encode()
	require.NoError(t, err)
	assert.Equal(t, Identifier[:], data[:12])
	assert.Equal(t, uint32(43), binary.LittleEndian.Uint32(data[12:]))

	// Level data is stored smallest level first.
	level0 := binary.LittleEndian.Uint64(data[headerSize:])
	level3 := binary.LittleEndian.Uint64(data[headerSize+3*levelIndexSize:])
	assert.Less(t, level3, level0)
	assert.Zero(t, level0%4)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, gpu.FormatRGBA8Srgb, back.Format)
	assert.Equal(t, ColorModelRGBSDA, back.ColorModel)
	assert.True(t, back.SRGB)
	assert.Equal(t, tex.Levels, back.Levels)
	assert.Equal(t, writerName, back.KeyValues[keyWriter])
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	_, err := Decode([]byte("not a texture"))
	assert.ErrorIs(t, err, ErrInvalidContainer)

	tex := newTestTexture(t, gpu.FormatRGBA8Unorm, 4, 4, 1)
	data, err := tex.Encode()
	require.NoError(t, err)

	_, err = Decode(data[:len(data)-8])
	assert.ErrorIs(t, err, ErrInvalidContainer)

	cube := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(cube[12+24:], 6)
	_, err = Decode(cube)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCompressTranscodeRoundTrip(t *testing.T) {
	for _, supercompress := range []bool{true, false} {
		enc, err := NewEncoder(WithWorkers(2), WithSupercompression(supercompress))
		require.NoError(t, err)
		t.Cleanup(enc.Release)
		assert.Equal(t, 2, enc.Workers())

		src := newTestTexture(t, gpu.FormatRGBA8Srgb, 16, 8, 5)
		base := append([]byte(nil), src.Levels[0].Data...)

		require.NoError(t, enc.Compress(src))
		assert.Equal(t, gpu.FormatBC7SrgbBlock, src.Format)
		assert.Equal(t, ColorModelBC7, src.ColorModel)
		assert.Equal(t, supercompress, src.NeedsTranscoding())
		if supercompress {
			assert.Equal(t, SupercompressionZstandard, src.Supercompression)
		} else {
			assert.Equal(t, SupercompressionNone, src.Supercompression)
		}

		path := filepath.Join(t.TempDir(), "tex_0_5.ktx2")
		require.NoError(t, src.WriteFile(path))
		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, uint32(146), binary.LittleEndian.Uint32(raw[12:]))
		assert.Equal(t, uint32(src.Supercompression), binary.LittleEndian.Uint32(raw[12+32:]))
		assert.Equal(t, byte(ColorModelBC7), raw[binary.LittleEndian.Uint32(raw[12+36:])+4+8])

		cached, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, gpu.FormatBC7SrgbBlock, cached.Format)
		assert.Equal(t, supercompress, cached.NeedsTranscoding())
		assert.True(t, cached.SRGB)
		assert.Equal(t, uint32(5), cached.LevelCount())

		require.NoError(t, enc.Transcode(cached, TranscodeBC7RGBA))
		assert.Equal(t, gpu.FormatBC7SrgbBlock, cached.Format)
		assert.Equal(t, SupercompressionNone, cached.Supercompression)
		assert.Len(t, cached.Levels[4].Data, bc7.BlockBytes)

		decoded, err := bc7.Decode(cached.Levels[0].Data, 16, 8)
		require.NoError(t, err)
		for i := range base {
			assert.InDelta(t, int(base[i]), int(decoded[i]), 8, "texel byte %d", i)
		}
	}
}

func TestTranscodeTargets(t *testing.T) {
	enc, err := NewEncoder(WithWorkers(1))
	require.NoError(t, err)
	defer enc.Release()

	tex := newTestTexture(t, gpu.FormatRGBA8Unorm, 4, 4, 1)
	// Uncompressed textures need no transcoding.
	require.NoError(t, enc.Transcode(tex, TranscodeBC4R))
	assert.Equal(t, gpu.FormatRGBA8Unorm, tex.Format)

	require.NoError(t, enc.Compress(tex))
	assert.Equal(t, gpu.FormatBC7UnormBlock, tex.Format)
	assert.ErrorIs(t, enc.Transcode(tex, TranscodeBC5RG), ErrUnsupportedTarget)
	require.NoError(t, enc.Transcode(tex, TranscodeBC7RGBA))
	assert.Equal(t, gpu.FormatBC7UnormBlock, tex.Format)
	assert.False(t, tex.NeedsTranscoding())

	assert.ErrorIs(t, enc.Compress(tex), ErrUnsupported)
}

func TestTranscodeFormatlessPayload(t *testing.T) {
	enc, err := NewEncoder(WithWorkers(1), WithSupercompression(false))
	require.NoError(t, err)
	defer enc.Release()

	tex := newTestTexture(t, gpu.FormatRGBA8Unorm, 8, 8, 1)
	require.NoError(t, enc.Compress(tex))
	// Files written without a VkFormat still decode and transcode to the color model's block format.
	tex.Format = gpu.FormatUndefined
	data, err := tex.Encode()
	require.NoError(t, err)
	assert.Zero(t, binary.LittleEndian.Uint32(data[12:]))

	back, err := Decode(data)
	require.NoError(t, err)
	require.True(t, back.NeedsTranscoding())
	require.NoError(t, enc.Transcode(back, TranscodeBC7RGBA))
	assert.Equal(t, gpu.FormatBC7UnormBlock, back.Format)
	assert.Equal(t, tex.Levels, back.Levels)
}
