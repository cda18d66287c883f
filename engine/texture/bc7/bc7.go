// package bc7 encodes and decodes BC7 texture blocks. The encoder emits mode 6 blocks
// (one subset, 7.7.7.7 endpoints with per-endpoint p-bits, 4-bit indices); the decoder reads mode 6 only.
package bc7

import (
	"errors"
	"fmt"
)

// BlockBytes is the size of one encoded 4x4 block.
const BlockBytes = 16

// ErrUnsupportedMode is returned when decoding a block that is not mode 6.
var ErrUnsupportedMode = errors.New("bc7: unsupported block mode")

// weights4 are the BC7 interpolation weights for 4-bit indices.
var weights4 = [16]int{0, 4, 9, 13, 17, 21, 26, 30, 34, 38, 43, 47, 51, 55, 60, 64}

const mode6Bits = 1 << 6

// --- Bit Packing ---

type bitWriter struct {
	block [BlockBytes]byte
	pos   uint
}

func (w *bitWriter) write(value uint32, n uint) {
	for i := range n {
		if value&(1<<i) != 0 {
			w.block[(w.pos+i)>>3] |= 1 << ((w.pos + i) & 7)
		}
	}
	w.pos += n
}

type bitReader struct {
	block []byte
	pos   uint
}

func (r *bitReader) read(n uint) uint32 {
	var v uint32
	for i := range n {
		if r.block[(r.pos+i)>>3]&(1<<((r.pos+i)&7)) != 0 {
			v |= 1 << i
		}
	}
	r.pos += n
	return v
}

// --- Block Codec ---

func interpolate(e0, e1, w int) int {
	return ((64-w)*e0 + w*e1 + 32) >> 6
}

// quantizeEndpoint picks the 7-bit channel values and shared p-bit that best reproduce an 8-bit RGBA endpoint.
func quantizeEndpoint(ep [4]int) (c7 [4]int, p int) {
	bestErr := -1
	for pbit := range 2 {
		var q [4]int
		errSum := 0
		for ch := range 4 {
			v := (ep[ch] - pbit + 1) >> 1
			v = min(max(v, 0), 127)
			q[ch] = v
			d := (v<<1 | pbit) - ep[ch]
			errSum += d * d
		}
		if bestErr < 0 || errSum < bestErr {
			bestErr, c7, p = errSum, q, pbit
		}
	}
	return c7, p
}

// EncodeBlock encodes 16 RGBA8 texels (row-major, 4 bytes each) into a mode 6 block.
//
// Parameters:
//   - px: the 4x4 texels
//
// Returns:
//   - [16]byte: the encoded block
func EncodeBlock(px *[64]byte) [BlockBytes]byte {
	var lo, hi, mean [4]int
	for ch := range 4 {
		lo[ch], hi[ch] = 255, 0
	}
	for i := range 16 {
		for ch := range 4 {
			v := int(px[i*4+ch])
			lo[ch] = min(lo[ch], v)
			hi[ch] = max(hi[ch], v)
			mean[ch] += v
		}
	}

	// Orient each channel's span against the widest channel so anti-correlated channels
	// interpolate the right way across the box diagonal.
	ref := 0
	for ch := 1; ch < 4; ch++ {
		if hi[ch]-lo[ch] > hi[ref]-lo[ref] {
			ref = ch
		}
	}
	var cov [4]int
	for i := range 16 {
		d := int(px[i*4+ref])*16 - mean[ref]
		for ch := range 4 {
			cov[ch] += (int(px[i*4+ch])*16 - mean[ch]) * d
		}
	}
	ep0, ep1 := lo, hi
	for ch := range 4 {
		if cov[ch] < 0 {
			ep0[ch], ep1[ch] = hi[ch], lo[ch]
		}
	}

	q0, p0 := quantizeEndpoint(ep0)
	q1, p1 := quantizeEndpoint(ep1)

	var palette [16][4]int
	for w := range 16 {
		for ch := range 4 {
			palette[w][ch] = interpolate(q0[ch]<<1|p0, q1[ch]<<1|p1, weights4[w])
		}
	}

	var indices [16]int
	for i := range 16 {
		best, bestErr := 0, -1
		for w := range 16 {
			errSum := 0
			for ch := range 4 {
				d := palette[w][ch] - int(px[i*4+ch])
				errSum += d * d
			}
			if bestErr < 0 || errSum < bestErr {
				best, bestErr = w, errSum
			}
		}
		indices[i] = best
	}

	// The anchor index has an implicit zero high bit.
	if indices[0] >= 8 {
		q0, q1 = q1, q0
		p0, p1 = p1, p0
		for i := range indices {
			indices[i] = 15 - indices[i]
		}
	}

	var w bitWriter
	w.write(mode6Bits, 7)
	for ch := range 4 {
		w.write(uint32(q0[ch]), 7)
		w.write(uint32(q1[ch]), 7)
	}
	w.write(uint32(p0), 1)
	w.write(uint32(p1), 1)
	w.write(uint32(indices[0]), 3)
	for i := 1; i < 16; i++ {
		w.write(uint32(indices[i]), 4)
	}
	return w.block
}

// DecodeBlock decodes a mode 6 block into 16 RGBA8 texels.
//
// Parameters:
//   - block: the 16 encoded bytes
//   - out: destination for the 4x4 texels, row-major
//
// Returns:
//   - error: ErrUnsupportedMode if the block is not mode 6
func DecodeBlock(block []byte, out *[64]byte) error {
	if len(block) < BlockBytes {
		return fmt.Errorf("bc7: block of %d bytes", len(block))
	}
	r := bitReader{block: block}
	if mode := r.read(7); mode != mode6Bits {
		return fmt.Errorf("bc7: mode bits %#x: %w", mode, ErrUnsupportedMode)
	}

	var e0, e1 [4]int
	for ch := range 4 {
		e0[ch] = int(r.read(7))
		e1[ch] = int(r.read(7))
	}
	p0, p1 := int(r.read(1)), int(r.read(1))
	for ch := range 4 {
		e0[ch] = e0[ch]<<1 | p0
		e1[ch] = e1[ch]<<1 | p1
	}

	for i := range 16 {
		bits := uint(4)
		if i == 0 {
			bits = 3
		}
		w := weights4[r.read(bits)]
		for ch := range 4 {
			out[i*4+ch] = byte(interpolate(e0[ch], e1[ch], w))
		}
	}
	return nil
}

// --- Images ---

// BlocksAcross returns the number of 4x4 blocks covering a dimension.
//
// Parameters:
//   - n: width or height in texels
//
// Returns:
//   - int: the block count
func BlocksAcross(n int) int {
	return (n + 3) / 4
}

// EncodedSize returns the byte size of a width x height image once encoded.
//
// Parameters:
//   - width: image width in texels
//   - height: image height in texels
//
// Returns:
//   - int: the encoded size
func EncodedSize(width, height int) int {
	return BlocksAcross(width) * BlocksAcross(height) * BlockBytes
}

// EncodeRows encodes the block rows [firstRow, lastRow) of an RGBA8 image into dst.
// Blocks past the image edge replicate the last texel column and row.
// dst must hold EncodedSize(width, height) bytes; each block row writes a disjoint range of it.
//
// Parameters:
//   - pix: tightly packed RGBA8 texels
//   - width: image width in texels
//   - height: image height in texels
//   - firstRow: the first block row to encode
//   - lastRow: one past the last block row to encode
//   - dst: the encoded image
func EncodeRows(pix []byte, width, height, firstRow, lastRow int, dst []byte) {
	blocksX := BlocksAcross(width)
	var px [64]byte
	for by := firstRow; by < lastRow; by++ {
		for bx := range blocksX {
			for ty := range 4 {
				y := min(by*4+ty, height-1)
				for tx := range 4 {
					x := min(bx*4+tx, width-1)
					copy(px[(ty*4+tx)*4:(ty*4+tx)*4+4], pix[(y*width+x)*4:(y*width+x)*4+4])
				}
			}
			block := EncodeBlock(&px)
			off := (by*blocksX + bx) * BlockBytes
			copy(dst[off:off+BlockBytes], block[:])
		}
	}
}

// Encode encodes a whole RGBA8 image on the calling goroutine.
//
// Parameters:
//   - pix: tightly packed RGBA8 texels
//   - width: image width in texels
//   - height: image height in texels
//
// Returns:
//   - []byte: the encoded blocks, row-major
func Encode(pix []byte, width, height int) []byte {
	dst := make([]byte, EncodedSize(width, height))
	EncodeRows(pix, width, height, 0, BlocksAcross(height), dst)
	return dst
}

// Decode decodes mode 6 blocks into a tightly packed RGBA8 image.
//
// Parameters:
//   - data: the encoded blocks, row-major
//   - width: image width in texels
//   - height: image height in texels
//
// Returns:
//   - []byte: width*height*4 texels
//   - error: error if data is short or holds a block that is not mode 6
func Decode(data []byte, width, height int) ([]byte, error) {
	if len(data) < EncodedSize(width, height) {
		return nil, fmt.Errorf("bc7: %d bytes for a %dx%d image, need %d", len(data), width, height, EncodedSize(width, height))
	}
	blocksX := BlocksAcross(width)
	out := make([]byte, width*height*4)
	var px [64]byte
	for by := range BlocksAcross(height) {
		for bx := range blocksX {
			off := (by*blocksX + bx) * BlockBytes
			if err := DecodeBlock(data[off:off+BlockBytes], &px); err != nil {
				return nil, fmt.Errorf("bc7: block (%d, %d): %w", bx, by, err)
			}
			for ty := range 4 {
				y := by*4 + ty
				if y >= height {
					break
				}
				for tx := range 4 {
					x := bx*4 + tx
					if x >= width {
						break
					}
					copy(out[(y*width+x)*4:(y*width+x)*4+4], px[(ty*4+tx)*4:(ty*4+tx)*4+4])
				}
			}
		}
	}
	return out, nil
}
