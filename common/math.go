package common

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// BytesToSlice reinterprets a byte slice as a slice of count elements of T.
// This is how records are written in place into mapped staging memory.
// The byte slice must hold at least count*sizeof(T) bytes and be suitably aligned for T.
//
// Parameters:
//   - data: the backing bytes
//   - count: the number of T elements to view
//
// Returns:
//   - []T: a view sharing memory with data, or nil if count is zero
func BytesToSlice[T any](data []byte, count int) []T {
	if count == 0 || len(data) == 0 {
		return nil
	}
	var zero T
	if need := int(unsafe.Sizeof(zero)) * count; need > len(data) {
		panic("common: BytesToSlice view exceeds backing bytes")
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), count)
}

// Vec3From converts a float slice of either precision into an mgl32.Vec3.
// Missing components are left at zero.
//
// Parameters:
//   - v: the source components
//
// Returns:
//   - mgl32.Vec3: the converted vector
func Vec3From[T ~float32 | ~float64](v []T) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := 0; i < len(v) && i < 3; i++ {
		out[i] = float32(v[i])
	}
	return out
}

// Vec4From converts a float slice of either precision into an mgl32.Vec4.
//
// Parameters:
//   - v: the source components
//
// Returns:
//   - mgl32.Vec4: the converted vector
func Vec4From[T ~float32 | ~float64](v []T) mgl32.Vec4 {
	var out mgl32.Vec4
	for i := 0; i < len(v) && i < 4; i++ {
		out[i] = float32(v[i])
	}
	return out
}

// Mat4From converts 16 column-major components of either precision into an mgl32.Mat4.
//
// Parameters:
//   - v: the source components
//
// Returns:
//   - mgl32.Mat4: the converted matrix
func Mat4From[T ~float32 | ~float64](v []T) mgl32.Mat4 {
	var out mgl32.Mat4
	for i := 0; i < len(v) && i < 16; i++ {
		out[i] = float32(v[i])
	}
	return out
}

// ComposeTRS builds a column-major model matrix from translation, rotation quaternion (x, y, z, w) and scale.
// Result: T * R * S
//
// Parameters:
//   - t: translation
//   - r: rotation quaternion in (x, y, z, w) order
//   - s: scale
//
// Returns:
//   - mgl32.Mat4: the composed matrix
func ComposeTRS(t mgl32.Vec3, r mgl32.Vec4, s mgl32.Vec3) mgl32.Mat4 {
	q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
	return mgl32.Translate3D(t[0], t[1], t[2]).
		Mul4(q.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}
