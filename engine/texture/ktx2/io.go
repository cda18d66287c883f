package ktx2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/imalexlee/vk-gltf/engine/gpu"
)

// Identifier is the 12-byte magic that starts every KTX2 file.
var Identifier = [12]byte{0xAB, 'K', 'T', 'X', ' ', '2', '0', 0xBB, '\r', '\n', 0x1A, '\n'}

const (
	headerSize     = 12 + 9*4 + 4*4 + 2*8
	levelIndexSize = 3 * 8
	keyWriter      = "KTXwriter"
	writerName     = "vk-gltf"
)

func lcm4(n uint64) uint64 {
	switch {
	case n == 0:
		return 4
	case n%4 == 0:
		return n
	case n%2 == 0:
		return n * 2
	default:
		return n * 4
	}
}

func alignTo(n, a uint64) uint64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// Encode serialises the texture as a KTX2 file. Level data is stored smallest level first.
//
// Returns:
//   - []byte: the file contents
//   - error: error if the texture cannot be described by a KTX2 header
func (t *Texture) Encode() ([]byte, error) {
	if len(t.Levels) == 0 {
		return nil, fmt.Errorf("ktx2: encode texture without levels: %w", ErrInvalidContainer)
	}
	layout := t.layoutFormat()
	if layout == gpu.FormatUndefined {
		return nil, fmt.Errorf("ktx2: encode color model %d: %w", t.ColorModel, ErrUnsupported)
	}

	le := binary.LittleEndian
	dfd := t.encodeDFD()
	kvd := t.encodeKVD()
	levelCount := len(t.Levels)

	dfdOffset := uint64(headerSize + levelIndexSize*levelCount)
	kvdOffset := dfdOffset + uint64(len(dfd))
	dataStart := kvdOffset + uint64(len(kvd))

	levelAlign := lcm4(uint64(layout.BlockBytes()))
	if t.Supercompression != SupercompressionNone {
		levelAlign = 1
	}

	offsets := make([]uint64, levelCount)
	end := dataStart
	for level := levelCount - 1; level >= 0; level-- {
		end = alignTo(end, levelAlign)
		offsets[level] = end
		end += uint64(len(t.Levels[level].Data))
	}

	out := make([]byte, end)
	copy(out, Identifier[:])
	h := out[12:]
	le.PutUint32(h[0:], t.Format.VkFormat())
	// Every supported format has 8-bit channels or is block compressed.
	le.PutUint32(h[4:], 1)
	le.PutUint32(h[8:], t.Width)
	le.PutUint32(h[12:], t.Height)
	le.PutUint32(h[16:], 0)
	le.PutUint32(h[20:], 0)
	le.PutUint32(h[24:], 1)
	le.PutUint32(h[28:], uint32(levelCount))
	le.PutUint32(h[32:], uint32(t.Supercompression))

	le.PutUint32(h[36:], uint32(dfdOffset))
	le.PutUint32(h[40:], uint32(len(dfd)))
	if len(kvd) > 0 {
		le.PutUint32(h[44:], uint32(kvdOffset))
		le.PutUint32(h[48:], uint32(len(kvd)))
	}
	le.PutUint64(h[52:], 0)
	le.PutUint64(h[60:], 0)

	for level, l := range t.Levels {
		li := out[headerSize+levelIndexSize*level:]
		le.PutUint64(li[0:], offsets[level])
		le.PutUint64(li[8:], uint64(len(l.Data)))
		le.PutUint64(li[16:], l.UncompressedSize)
		copy(out[offsets[level]:], l.Data)
	}
	copy(out[dfdOffset:], dfd)
	copy(out[kvdOffset:], kvd)
	return out, nil
}

func (t *Texture) encodeKVD() []byte {
	keys := make([]string, 0, len(t.KeyValues))
	for k := range t.KeyValues {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		entry := k + "\x00" + t.KeyValues[k] + "\x00"
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(entry)))
		buf.Write(n[:])
		buf.WriteString(entry)
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

func decodeKVD(data []byte) (map[string]string, error) {
	kv := make(map[string]string)
	for len(data) >= 4 {
		n := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if n > len(data) {
			return nil, fmt.Errorf("ktx2: key/value entry of %d bytes overruns data: %w", n, ErrInvalidContainer)
		}
		key, value, ok := strings.Cut(string(data[:n]), "\x00")
		if !ok {
			return nil, fmt.Errorf("ktx2: key/value entry without terminator: %w", ErrInvalidContainer)
		}
		kv[key] = strings.TrimSuffix(value, "\x00")
		data = data[min(int(alignTo(uint64(n), 4)), len(data)):]
	}
	return kv, nil
}

// Decode parses a KTX2 file holding a single-face, single-layer 2D texture.
//
// Parameters:
//   - data: the file contents
//
// Returns:
//   - *Texture: the decoded texture, level data as stored
//   - error: ErrInvalidContainer for malformed data, ErrUnsupported for features outside 2D textures
func Decode(data []byte) (*Texture, error) {
	le := binary.LittleEndian
	if len(data) < headerSize || !bytes.Equal(data[:12], Identifier[:]) {
		return nil, fmt.Errorf("ktx2: missing identifier: %w", ErrInvalidContainer)
	}
	h := data[12:]
	vkFormat := le.Uint32(h[0:])
	width, height, depth := le.Uint32(h[8:]), le.Uint32(h[12:]), le.Uint32(h[16:])
	layers, faces := le.Uint32(h[20:]), le.Uint32(h[24:])
	levelCount := max(le.Uint32(h[28:]), 1)
	scheme := SupercompressionScheme(le.Uint32(h[32:]))

	if width == 0 || height == 0 || depth > 1 || layers > 1 || faces != 1 {
		return nil, fmt.Errorf("ktx2: %dx%dx%d, %d layers, %d faces: %w", width, height, depth, layers, faces, ErrUnsupported)
	}
	if levelCount > MaxLevels(width, height) {
		return nil, fmt.Errorf("ktx2: %d levels for %dx%d: %w", levelCount, width, height, ErrInvalidContainer)
	}
	if scheme != SupercompressionNone && scheme != SupercompressionZstandard {
		return nil, fmt.Errorf("ktx2: supercompression %s: %w", scheme, ErrUnsupported)
	}

	format := gpu.FormatFromVk(vkFormat)
	if vkFormat != 0 && format == gpu.FormatUndefined {
		return nil, fmt.Errorf("ktx2: VkFormat %d: %w", vkFormat, ErrUnsupported)
	}

	section := func(offset, length uint64, what string) ([]byte, error) {
		if offset+length < offset || offset+length > uint64(len(data)) {
			return nil, fmt.Errorf("ktx2: %s [%d, +%d) outside %d bytes: %w", what, offset, length, len(data), ErrInvalidContainer)
		}
		return data[offset : offset+length], nil
	}

	dfd, err := section(uint64(le.Uint32(h[36:])), uint64(le.Uint32(h[40:])), "data format descriptor")
	if err != nil {
		return nil, err
	}
	model, srgb, err := parseDFD(dfd)
	if err != nil {
		return nil, err
	}
	kvdBytes, err := section(uint64(le.Uint32(h[44:])), uint64(le.Uint32(h[48:])), "key/value data")
	if err != nil {
		return nil, err
	}
	kv, err := decodeKVD(kvdBytes)
	if err != nil {
		return nil, err
	}

	t := &Texture{
		Format:           format,
		ColorModel:       model,
		SRGB:             srgb,
		Width:            width,
		Height:           height,
		Supercompression: scheme,
		Levels:           make([]Level, levelCount),
		KeyValues:        kv,
	}
	layout := t.layoutFormat()
	if layout == gpu.FormatUndefined {
		return nil, fmt.Errorf("ktx2: color model %d without a format: %w", model, ErrUnsupported)
	}

	if uint64(len(data)) < uint64(headerSize)+uint64(levelIndexSize)*uint64(levelCount) {
		return nil, fmt.Errorf("ktx2: truncated level index: %w", ErrInvalidContainer)
	}
	for level := range t.Levels {
		li := data[headerSize+levelIndexSize*level:]
		levelData, err := section(le.Uint64(li[0:]), le.Uint64(li[8:]), fmt.Sprintf("level %d", level))
		if err != nil {
			return nil, err
		}
		uncompressed := le.Uint64(li[16:])
		w, h := t.LevelExtent(uint32(level))
		if want := layout.LevelSize(w, h); uncompressed != want || (scheme == SupercompressionNone && uint64(len(levelData)) != want) {
			return nil, fmt.Errorf("ktx2: level %d holds %d bytes (%d uncompressed), want %d: %w",
				level, len(levelData), uncompressed, want, ErrInvalidContainer)
		}
		t.Levels[level] = Level{Data: append([]byte(nil), levelData...), UncompressedSize: uncompressed}
	}
	return t, nil
}

// WriteFile encodes the texture and writes it to path through a temporary file and a rename,
// so readers never observe a partially written file.
//
// Parameters:
//   - path: the destination file
//
// Returns:
//   - error: error if encoding or any file operation fails
func (t *Texture) WriteFile(path string) error {
	data, err := t.Encode()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ktx2: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ktx2: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ktx2: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("ktx2: rename to %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and decodes a KTX2 file.
//
// Parameters:
//   - path: the file to read
//
// Returns:
//   - *Texture: the decoded texture
//   - error: error if the file cannot be read or decoded
func ReadFile(path string) (*Texture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ktx2: %w", err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("ktx2: %s: %w", path, err)
	}
	return t, nil
}
