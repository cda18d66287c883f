package ktx2

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/klauspost/compress/zstd"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/texture/bc7"
)

// encoder is the implementation of the Encoder interface.
type encoder struct {
	workers       int
	supercompress bool
	pool          worker.DynamicWorkerPool
	zw            *zstd.Encoder
	zr            *zstd.Decoder
	nextTaskID    int
	mu            sync.Mutex
}

// Encoder compresses RGBA8 textures to BC7 and transcodes stored payloads for the GPU.
// It owns a worker pool that is reused across textures; one Encoder may be shared by sequential loads
// and must be released when no longer needed.
type Encoder interface {
	// Compress replaces the RGBA8 levels of t with BC7 blocks in the matching sRGB or UNORM
	// format, Zstandard supercompressed when the encoder was built with supercompression.
	//
	// Parameters:
	//   - t: an RGBA8 (sRGB or linear) texture without supercompression
	//
	// Returns:
	//   - error: error if t is not RGBA8 or supercompression fails
	Compress(t *Texture) error

	// Transcode turns a stored payload into level data a GPU can sample: supercompression is
	// inflated and a payload without a VkFormat gets the block format of its color model.
	// Textures that do not need transcoding are left unchanged.
	//
	// Parameters:
	//   - t: the texture to transcode
	//   - target: the GPU block format family to produce
	//
	// Returns:
	//   - error: ErrUnsupportedTarget if the payload cannot be converted to target
	Transcode(t *Texture, target TranscodeTarget) error

	// Workers returns the number of block encoding workers.
	//
	// Returns:
	//   - int: the worker count
	Workers() int

	// Release stops the worker pool and closes the Zstandard codecs. The Encoder must not be used afterwards.
	Release()
}

var _ Encoder = &encoder{}

// NewEncoder creates an Encoder with the specified options applied.
//
// Parameters:
//   - options: a variadic list of EncoderBuilderOption functions to configure the Encoder
//
// Returns:
//   - Encoder: the encoder
//   - error: error if the Zstandard codec cannot be created
func NewEncoder(options ...EncoderBuilderOption) (Encoder, error) {
	e := &encoder{
		workers:       max(runtime.NumCPU(), 1),
		supercompress: true,
	}
	for _, opt := range options {
		opt(e)
	}
	e.workers = max(e.workers, 1)

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("ktx2: create zstd writer: %w", err)
	}
	zr, err := zstd.NewReader(nil)
	if err != nil {
		zw.Close()
		return nil, fmt.Errorf("ktx2: create zstd reader: %w", err)
	}
	e.zw, e.zr = zw, zr

	// Queue size of 256 covers the task fan-out of one level (at most workers*4 tasks) with headroom.
	e.pool = worker.NewDynamicWorkerPool(e.workers, 256, 1*time.Second)
	return e, nil
}

// EncoderBuilderOption is a functional option for configuring an Encoder via NewEncoder.
type EncoderBuilderOption func(*encoder)

// WithWorkers sets the number of block encoding workers. Values below 1 select one worker.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - EncoderBuilderOption: a function that applies the worker option to an encoder
func WithWorkers(n int) EncoderBuilderOption {
	return func(e *encoder) {
		e.workers = n
	}
}

// WithSupercompression enables or disables Zstandard supercompression of compressed payloads.
//
// Parameters:
//   - enabled: true to supercompress
//
// Returns:
//   - EncoderBuilderOption: a function that applies the supercompression option to an encoder
func WithSupercompression(enabled bool) EncoderBuilderOption {
	return func(e *encoder) {
		e.supercompress = enabled
	}
}

func (e *encoder) Workers() int {
	return e.workers
}

func (e *encoder) Compress(t *Texture) error {
	if t.Format != gpu.FormatRGBA8Srgb && t.Format != gpu.FormatRGBA8Unorm {
		return fmt.Errorf("ktx2: compress %s texture: %w", t.Format, ErrUnsupported)
	}
	if t.Supercompression != SupercompressionNone {
		return fmt.Errorf("ktx2: compress %s supercompressed texture: %w", t.Supercompression, ErrUnsupported)
	}

	levels := make([]Level, len(t.Levels))
	for i, l := range t.Levels {
		w, h := t.LevelExtent(uint32(i))
		blocks := e.encodeLevel(l.Data, int(w), int(h))
		levels[i] = Level{Data: blocks, UncompressedSize: uint64(len(blocks))}
	}

	scheme := SupercompressionNone
	if e.supercompress {
		scheme = SupercompressionZstandard
		for i := range levels {
			levels[i].Data = e.zw.EncodeAll(levels[i].Data, make([]byte, 0, len(levels[i].Data)/2))
		}
	}

	t.Levels = levels
	t.Format = blockFormat(ColorModelBC7, t.SRGB)
	t.ColorModel = ColorModelBC7
	t.Supercompression = scheme
	return nil
}

// encodeLevel fans block rows out over the worker pool and waits for all of them.
func (e *encoder) encodeLevel(pix []byte, width, height int) []byte {
	dst := make([]byte, bc7.EncodedSize(width, height))
	rows := bc7.BlocksAcross(height)
	tasks := min(rows, e.workers*4)
	perTask := (rows + tasks - 1) / tasks

	var wg sync.WaitGroup
	for first := 0; first < rows; first += perTask {
		last := min(first+perTask, rows)
		wg.Add(1)
		e.pool.SubmitTask(worker.Task{
			ID: e.taskID(),
			Do: func() (any, error) {
				defer wg.Done()
				bc7.EncodeRows(pix, width, height, first, last, dst)
				return nil, nil
			},
		})
	}
	wg.Wait()
	return dst
}

func (e *encoder) taskID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextTaskID++
	return e.nextTaskID
}

func (e *encoder) Transcode(t *Texture, target TranscodeTarget) error {
	if !t.NeedsTranscoding() {
		return nil
	}
	if t.ColorModel != ColorModelBC7 {
		return fmt.Errorf("ktx2: transcode color model %d: %w", t.ColorModel, ErrUnsupported)
	}
	if target != TranscodeBC7RGBA {
		return fmt.Errorf("ktx2: BC7 payload to %s: %w", target, ErrUnsupportedTarget)
	}

	if t.Supercompression == SupercompressionZstandard {
		for i := range t.Levels {
			raw, err := e.zr.DecodeAll(t.Levels[i].Data, make([]byte, 0, t.Levels[i].UncompressedSize))
			if err != nil {
				return fmt.Errorf("ktx2: inflate level %d: %w", i, err)
			}
			if uint64(len(raw)) != t.Levels[i].UncompressedSize {
				return fmt.Errorf("ktx2: level %d inflated to %d bytes, want %d: %w", i, len(raw), t.Levels[i].UncompressedSize, ErrInvalidContainer)
			}
			t.Levels[i].Data = raw
		}
		t.Supercompression = SupercompressionNone
	}

	if t.Format == gpu.FormatUndefined {
		t.Format = blockFormat(ColorModelBC7, t.SRGB)
	}
	return nil
}

func (e *encoder) Release() {
	e.pool.Stop()
	e.zw.Close()
	e.zr.Close()
}
