// package ktx2 reads and writes KTX 2.0 texture containers and converts their payloads between
// uncompressed RGBA8, the Zstandard supercompressed BC7 files used by the texture cache, and GPU block formats.
package ktx2

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/imalexlee/vk-gltf/engine/gpu"
)

var (
	// ErrInvalidContainer is returned when bytes are not a well-formed KTX2 file.
	ErrInvalidContainer = errors.New("ktx2: invalid container")
	// ErrUnsupported is returned for containers this package cannot represent (cube maps, arrays, 3D, unknown formats).
	ErrUnsupported = errors.New("ktx2: unsupported container feature")
	// ErrUnsupportedTarget is returned by Transcode for targets the payload cannot be converted to.
	ErrUnsupportedTarget = errors.New("ktx2: unsupported transcode target")
)

// SupercompressionScheme is the KTX2 supercompression applied to level data.
type SupercompressionScheme uint32

const (
	SupercompressionNone      SupercompressionScheme = 0
	SupercompressionBasisLZ   SupercompressionScheme = 1
	SupercompressionZstandard SupercompressionScheme = 2
	SupercompressionZLIB      SupercompressionScheme = 3
)

func (s SupercompressionScheme) String() string {
	switch s {
	case SupercompressionNone:
		return "none"
	case SupercompressionBasisLZ:
		return "BasisLZ"
	case SupercompressionZstandard:
		return "Zstandard"
	case SupercompressionZLIB:
		return "ZLIB"
	default:
		return fmt.Sprintf("SupercompressionScheme(%d)", uint32(s))
	}
}

// TranscodeTarget is the GPU block format a stored payload is converted to.
type TranscodeTarget int

const (
	TranscodeBC4R TranscodeTarget = iota
	TranscodeBC5RG
	TranscodeBC7RGBA
)

func (t TranscodeTarget) String() string {
	switch t {
	case TranscodeBC4R:
		return "BC4_R"
	case TranscodeBC5RG:
		return "BC5_RG"
	case TranscodeBC7RGBA:
		return "BC7_RGBA"
	default:
		return fmt.Sprintf("TranscodeTarget(%d)", int(t))
	}
}

// Level is the stored data of one mip level.
type Level struct {
	// Data is the level bytes as stored, supercompressed when the texture is.
	Data []byte

	// UncompressedSize is the byte size of Data once supercompression is removed.
	UncompressedSize uint64
}

// Texture is an in-memory 2D KTX2 texture with a mip chain. Levels[0] is the base level.
type Texture struct {
	// Format is the GPU format of the level data. FormatUndefined only for files written without a VkFormat.
	Format gpu.Format

	// ColorModel is the data format descriptor color model of the level data.
	ColorModel ColorModel

	// SRGB is true when texel values use the sRGB transfer function.
	SRGB bool

	Width  uint32
	Height uint32

	Supercompression SupercompressionScheme
	Levels           []Level

	// KeyValues is the key/value metadata of the container.
	KeyValues map[string]string
}

// New creates a texture with levelCount zero-filled levels in an uncompressed or block format.
//
// Parameters:
//   - format: the GPU format of the level data
//   - width: base level width
//   - height: base level height
//   - levelCount: number of mip levels
//
// Returns:
//   - *Texture: the texture
//   - error: error if the format has no color model or the level count exceeds the chain length
func New(format gpu.Format, width, height, levelCount uint32) (*Texture, error) {
	model, ok := colorModelOf(format)
	if !ok {
		return nil, fmt.Errorf("ktx2: format %s: %w", format, ErrUnsupported)
	}
	if width == 0 || height == 0 || levelCount == 0 || levelCount > MaxLevels(width, height) {
		return nil, fmt.Errorf("ktx2: %dx%d with %d levels: %w", width, height, levelCount, ErrInvalidContainer)
	}

	t := &Texture{
		Format:     format,
		ColorModel: model,
		SRGB:       format.IsSRGB(),
		Width:      width,
		Height:     height,
		Levels:     make([]Level, levelCount),
		KeyValues:  map[string]string{keyWriter: writerName},
	}
	for i := range t.Levels {
		w, h := t.LevelExtent(uint32(i))
		size := format.LevelSize(w, h)
		t.Levels[i] = Level{Data: make([]byte, size), UncompressedSize: size}
	}
	return t, nil
}

// MaxLevels returns the length of a full mip chain, floor(log2(max(width, height))) + 1.
//
// Parameters:
//   - width: base level width
//   - height: base level height
//
// Returns:
//   - uint32: the number of levels down to 1x1
func MaxLevels(width, height uint32) uint32 {
	return uint32(bits.Len32(max(width, height)))
}

// LevelCount returns the number of mip levels.
//
// Returns:
//   - uint32: the level count
func (t *Texture) LevelCount() uint32 {
	return uint32(len(t.Levels))
}

// LevelExtent returns the extent of a mip level.
//
// Parameters:
//   - level: the mip level
//
// Returns:
//   - uint32: the level width
//   - uint32: the level height
func (t *Texture) LevelExtent(level uint32) (uint32, uint32) {
	return gpu.MipExtent(t.Width, t.Height, level)
}

// SetLevel replaces the data of an uncompressed, non-supercompressed level.
//
// Parameters:
//   - level: the mip level
//   - data: tightly packed level bytes in the texture format
//
// Returns:
//   - error: error if the level is out of range or data has the wrong size
func (t *Texture) SetLevel(level uint32, data []byte) error {
	if level >= t.LevelCount() {
		return fmt.Errorf("ktx2: level %d of %d", level, t.LevelCount())
	}
	if t.Supercompression != SupercompressionNone || t.Format == gpu.FormatUndefined {
		return fmt.Errorf("ktx2: set level on a %s payload: %w", t.Supercompression, ErrUnsupported)
	}
	w, h := t.LevelExtent(level)
	if want := t.Format.LevelSize(w, h); uint64(len(data)) != want {
		return fmt.Errorf("ktx2: level %d is %d bytes, want %d", level, len(data), want)
	}
	t.Levels[level] = Level{Data: append([]byte(nil), data...), UncompressedSize: uint64(len(data))}
	return nil
}

// DataSize returns the total size of the level data as stored.
//
// Returns:
//   - uint64: the summed level byte lengths
func (t *Texture) DataSize() uint64 {
	var n uint64
	for _, l := range t.Levels {
		n += uint64(len(l.Data))
	}
	return n
}

// NeedsTranscoding reports whether the level data must be transcoded before a GPU can sample it,
// either because it is still supercompressed or because it carries no VkFormat.
//
// Returns:
//   - bool: true for supercompressed or format-less payloads
func (t *Texture) NeedsTranscoding() bool {
	return t.Supercompression != SupercompressionNone || t.Format == gpu.FormatUndefined
}
