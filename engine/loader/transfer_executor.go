package loader

import (
	"fmt"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/profiler"
)

// transferExecutorImpl is the implementation of the transferExecutor interface.
type transferExecutorImpl struct {
	device   gpu.Device
	profiler *profiler.Profiler
}

// transferExecutor runs blocking one-shot command sequences. Every GPU write of a load goes through it,
// one submission at a time, so a transfer is complete when Run returns.
type transferExecutor interface {
	// Run records commands through fn, submits them and waits for completion.
	//
	// Parameters:
	//   - fn: callback appending barriers, copies and blits
	//
	// Returns:
	//   - error: error if recording or submission fails
	Run(fn func(cmd gpu.CommandRecorder)) error
}

var _ transferExecutor = &transferExecutorImpl{}

// newTransferExecutor creates a transfer executor.
//
// Parameters:
//   - device: the device to submit to
//   - prof: the profiler counting submissions
//
// Returns:
//   - transferExecutor: the executor
func newTransferExecutor(device gpu.Device, prof *profiler.Profiler) transferExecutor {
	return &transferExecutorImpl{
		device:   device,
		profiler: prof,
	}
}

func (t *transferExecutorImpl) Run(fn func(cmd gpu.CommandRecorder)) error {
	if err := t.device.Submit(fn); err != nil {
		return fmt.Errorf("%w: transfer: %w", ErrGPU, err)
	}
	t.profiler.Transferred()
	return nil
}
