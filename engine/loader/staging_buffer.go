package loader

import (
	"fmt"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/profiler"
)

// stagingBufferImpl is the implementation of the stagingBuffer interface.
type stagingBufferImpl struct {
	device   gpu.Device
	profiler *profiler.Profiler
	buffer   gpu.Buffer
}

// stagingBuffer owns the single host-visible scratch buffer every CPU to GPU transfer of one load goes through.
// It grows on demand and never shrinks within a load.
type stagingBuffer interface {
	// Ensure grows the buffer to at least size bytes. When the current capacity is smaller the
	// old buffer is released and a new one of exactly size bytes is allocated; otherwise it is a no-op.
	// Any slice previously returned by Mapped is invalid after a call that grows the buffer.
	//
	// Parameters:
	//   - size: the required capacity in bytes
	//
	// Returns:
	//   - error: error if allocation fails
	Ensure(size uint64) error

	// Mapped returns the mapped host memory of the current buffer, nil before the first Ensure.
	//
	// Returns:
	//   - []byte: the mapped bytes, len == Capacity
	Mapped() []byte

	// Buffer returns the current GPU buffer, nil before the first Ensure.
	//
	// Returns:
	//   - gpu.Buffer: the staging buffer
	Buffer() gpu.Buffer

	// Capacity returns the current buffer size.
	//
	// Returns:
	//   - uint64: the capacity in bytes, 0 before the first Ensure
	Capacity() uint64

	// Release destroys the buffer. The manager may be reused afterwards.
	Release()
}

var _ stagingBuffer = &stagingBufferImpl{}

// newStagingBuffer creates an empty staging buffer manager.
//
// Parameters:
//   - device: the device to allocate on
//   - prof: the profiler of the current load
//
// Returns:
//   - stagingBuffer: the manager, holding no buffer yet
func newStagingBuffer(device gpu.Device, prof *profiler.Profiler) stagingBuffer {
	return &stagingBufferImpl{
		device:   device,
		profiler: prof,
	}
}

func (s *stagingBufferImpl) Ensure(size uint64) error {
	if s.Capacity() >= size {
		return nil
	}
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
	}

	buf, err := s.device.CreateBuffer(gpu.BufferDescriptor{
		Label:       "staging",
		Size:        size,
		Usage:       gpu.BufferUsageTransferSrc | gpu.BufferUsageTransferDst,
		HostVisible: true,
	})
	if err != nil {
		return fmt.Errorf("%w: staging buffer of %d bytes: %w", ErrGPU, size, err)
	}
	s.buffer = buf
	s.profiler.Allocated(size)
	s.profiler.StagingGrown(size)
	return nil
}

func (s *stagingBufferImpl) Mapped() []byte {
	if s.buffer == nil {
		return nil
	}
	return s.buffer.Mapped()
}

func (s *stagingBufferImpl) Buffer() gpu.Buffer {
	return s.buffer
}

func (s *stagingBufferImpl) Capacity() uint64 {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.Size()
}

func (s *stagingBufferImpl) Release() {
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
	}
}
