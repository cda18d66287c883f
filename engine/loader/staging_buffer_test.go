package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/profiler"
)

func TestStagingBufferGrowsNeverShrinks(t *testing.T) {
	dev := newTestDevice(t)
	prof := profiler.NewProfiler()
	s := newStagingBuffer(dev, prof)

	assert.Zero(t, s.Capacity())
	assert.Nil(t, s.Mapped())

	require.NoError(t, s.Ensure(64))
	assert.Equal(t, uint64(64), s.Capacity())
	first := s.Buffer()

	require.NoError(t, s.Ensure(16))
	assert.Equal(t, uint64(64), s.Capacity())
	assert.Same(t, first, s.Buffer())

	require.NoError(t, s.Ensure(256))
	assert.Equal(t, uint64(256), s.Capacity())
	assert.Len(t, s.Mapped(), 256)
	assert.Equal(t, 1, liveObjects(dev))

	metrics := prof.Finish()
	assert.Equal(t, uint64(256), metrics.StagingCapacity)
	assert.Equal(t, uint64(64+256), metrics.BytesAllocated)

	s.Release()
	assert.Zero(t, liveObjects(dev))
	assert.Zero(t, s.Capacity())
}

func TestTransferExecutorCountsSubmissions(t *testing.T) {
	dev := newTestDevice(t)
	prof := profiler.NewProfiler()
	s := newStagingBuffer(dev, prof)
	defer s.Release()
	require.NoError(t, s.Ensure(4))

	dst, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "dst", Size: 4, Usage: gpu.BufferUsageTransferDst})
	require.NoError(t, err)
	defer dst.Release()

	copy(s.Mapped(), []byte{9, 8, 7, 6})
	x := newTransferExecutor(dev, prof)
	require.NoError(t, x.Run(func(cmd gpu.CommandRecorder) {
		cmd.CopyBuffer(s.Buffer(), dst, gpu.BufferCopy{Size: 4})
	}))
	assert.Equal(t, []byte{9, 8, 7, 6}, dst.(gpu.ReadableBuffer).Contents())

	err = x.Run(func(cmd gpu.CommandRecorder) {
		cmd.CopyBuffer(s.Buffer(), dst, gpu.BufferCopy{Size: 8})
	})
	assert.ErrorIs(t, err, ErrGPU)
	assert.Equal(t, 1, prof.Finish().Transfers)
}
