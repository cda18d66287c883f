package model

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// VertexSize is the byte size of one interleaved Vertex record.
const VertexSize = 72

// Vertex is the interleaved vertex record written into every primitive's vertex buffer.
// Size: 72 bytes, no padding. Shaders read it through the buffer's device address.
type Vertex struct {
	Color    [4]float32    // offset  0: per-vertex RGBA color (16 bytes)
	Tangent  [4]float32    // offset 16: tangent vector (xyz) + handedness (w) (16 bytes)
	Position [3]float32    // offset 32: vertex position in model space (12 bytes)
	Normal   [3]float32    // offset 44: vertex normal (12 bytes)
	TexCoord [2][2]float32 // offset 56: TEXCOORD_0 and TEXCOORD_1 (16 bytes)
}

var _ [VertexSize - unsafe.Sizeof(Vertex{})]struct{}
var _ [unsafe.Sizeof(Vertex{}) - VertexSize]struct{}

// DefaultVertex returns the vertex every slot starts from before attributes are written:
// opaque white color, a (1, 1, 1, 1) tangent and zeroed position, normal and texture coordinates.
//
// Returns:
//   - Vertex: the default vertex
func DefaultVertex() Vertex {
	return Vertex{
		Color:   [4]float32{1, 1, 1, 1},
		Tangent: [4]float32{1, 1, 1, 1},
	}
}

// Size returns the size of the Vertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (v *Vertex) Size() int {
	return int(unsafe.Sizeof(*v))
}

// UnmarshalVertices decodes tightly packed little-endian vertex records.
//
// Parameters:
//   - data: the raw vertex buffer bytes
//
// Returns:
//   - []Vertex: one vertex per complete 72-byte record
func UnmarshalVertices(data []byte) []Vertex {
	out := make([]Vertex, len(data)/VertexSize)
	for i := range out {
		rec := data[i*VertexSize : (i+1)*VertexSize]
		f := func(n int) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(rec[n*4 : n*4+4]))
		}
		out[i] = Vertex{
			Color:    [4]float32{f(0), f(1), f(2), f(3)},
			Tangent:  [4]float32{f(4), f(5), f(6), f(7)},
			Position: [3]float32{f(8), f(9), f(10)},
			Normal:   [3]float32{f(11), f(12), f(13)},
			TexCoord: [2][2]float32{{f(14), f(15)}, {f(16), f(17)}},
		}
	}
	return out
}
