package bc7

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxAbsDiff(a, b []byte) int {
	worst := 0
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		worst = max(worst, d)
	}
	return worst
}

func TestEncodeBlockSolid(t *testing.T) {
	var px [64]byte
	for i := range 16 {
		copy(px[i*4:], []byte{200, 100, 50, 255})
	}
	block := EncodeBlock(&px)
	assert.Equal(t, byte(mode6Bits), block[0]&0x7f)

	var out [64]byte
	require.NoError(t, DecodeBlock(block[:], &out))
	assert.LessOrEqual(t, maxAbsDiff(px[:], out[:]), 1)
}

func TestEncodeBlockAnchor(t *testing.T) {
	// The first texel is the brightest so the encoder must swap endpoints to keep the anchor index below 8.
	var px [64]byte
	for i := range 16 {
		v := byte(255 - i*16)
		copy(px[i*4:], []byte{v, v, v, 255})
	}
	block := EncodeBlock(&px)

	var out [64]byte
	require.NoError(t, DecodeBlock(block[:], &out))
	assert.LessOrEqual(t, maxAbsDiff(px[:], out[:]), 8)
}

func TestEncodeDecodeGradient(t *testing.T) {
	const w, h = 16, 8
	pix := make([]byte, w*h*4)
	for y := range h {
		for x := range w {
			i := (y*w + x) * 4
			pix[i+0] = byte(x * 17)
			pix[i+1] = 64 + byte(y*2)
			pix[i+2] = 255 - byte(x*17)
			pix[i+3] = 255
		}
	}

	enc := Encode(pix, w, h)
	require.Len(t, enc, EncodedSize(w, h))
	dec, err := Decode(enc, w, h)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxAbsDiff(pix, dec), 12)
}

func TestEncodePartialBlocks(t *testing.T) {
	const w, h = 5, 3
	pix := make([]byte, w*h*4)
	for i := range w * h {
		copy(pix[i*4:], []byte{10, 20, 30, 40})
	}
	enc := Encode(pix, w, h)
	assert.Len(t, enc, 2*BlockBytes)

	dec, err := Decode(enc, w, h)
	require.NoError(t, err)
	require.Len(t, dec, w*h*4)
	assert.LessOrEqual(t, maxAbsDiff(pix, dec), 1)
}

func TestEncodeRowsMatchesEncode(t *testing.T) {
	const w, h = 8, 12
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = byte(i * 7)
	}
	dst := make([]byte, EncodedSize(w, h))
	EncodeRows(pix, w, h, 2, 3, dst)
	EncodeRows(pix, w, h, 0, 2, dst)
	assert.Equal(t, Encode(pix, w, h), dst)
}

func TestDecodeRejectsOtherModes(t *testing.T) {
	var out [64]byte
	err := DecodeBlock(make([]byte, BlockBytes), &out)
	assert.ErrorIs(t, err, ErrUnsupportedMode)

	_, err = Decode(make([]byte, 4), 4, 4)
	assert.Error(t, err)
}
