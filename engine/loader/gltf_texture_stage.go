package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/h2non/filetype"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/model"
	"github.com/imalexlee/vk-gltf/engine/profiler"
	"github.com/imalexlee/vk-gltf/engine/texture/bc7"
	"github.com/imalexlee/vk-gltf/engine/texture/ktx2"
)

// textureState is a step of the per-image texture pipeline.
type textureState int

const (
	textureStateProbeDimensions textureState = iota
	textureStateComputeCacheKey
	textureStateCacheHit
	textureStateCacheMiss
	textureStateDecode
	textureStateBuildContainer
	textureStatePopulateMips
	textureStateCompress
	textureStateWriteCache
	textureStateTranscode
	textureStateUploadToGPU
	textureStateDone
)

func (s textureState) String() string {
	switch s {
	case textureStateProbeDimensions:
		return "ProbeDimensions"
	case textureStateComputeCacheKey:
		return "ComputeCacheKey"
	case textureStateCacheHit:
		return "CacheHit"
	case textureStateCacheMiss:
		return "CacheMiss"
	case textureStateDecode:
		return "Decode"
	case textureStateBuildContainer:
		return "BuildContainer"
	case textureStatePopulateMips:
		return "PopulateMips"
	case textureStateCompress:
		return "Compress"
	case textureStateWriteCache:
		return "WriteCache"
	case textureStateTranscode:
		return "Transcode"
	case textureStateUploadToGPU:
		return "UploadToGPU"
	default:
		return "Done"
	}
}

// textureJob carries one image through the texture pipeline.
type textureJob struct {
	state      textureState
	imageIndex int
	source     []byte
	selection  FormatSelection

	mime     string
	width    uint32
	height   uint32
	mipCount uint32
	key      string

	pixels    []byte
	container *ktx2.Texture
	cacheHit  bool

	result model.Image
}

// gltfTextureStageImpl is the implementation of the gltfTextureStage interface.
type gltfTextureStageImpl struct {
	device        gpu.Device
	staging       stagingBuffer
	transfer      transferExecutor
	encoder       ktx2.Encoder
	cache         textureCache
	profiler      *profiler.Profiler
	logger        *slog.Logger
	stem          string
	createMipmaps bool
}

// gltfTextureStage turns encoded source images into sampled GPU images, going through the
// texture cache and block compression on the way.
type gltfTextureStage interface {
	// Process runs one image through probe, cache lookup, decode, mip generation, compression,
	// cache write, transcoding and upload.
	//
	// Parameters:
	//   - imageIndex: the image index in the document, part of the cache key
	//   - source: the encoded image bytes
	//   - selection: the formats chosen by the format resolver
	//
	// Returns:
	//   - model.Image: the uploaded image in the shader-read-only layout
	//   - error: error if decoding, compression, transcoding or any GPU operation fails
	Process(imageIndex int, source []byte, selection FormatSelection) (model.Image, error)
}

var _ gltfTextureStage = &gltfTextureStageImpl{}

// newGLTFTextureStage creates the texture stage of one load.
//
// Parameters:
//   - device: the device images are created on
//   - staging: the staging buffer of the load
//   - transfer: the transfer executor of the load
//   - encoder: the shared texture encoder
//   - cache: the texture cache of the load
//   - prof: the profiler of the load
//   - logger: the stage logger
//   - stem: the document stem used in cache keys
//   - createMipmaps: true to generate full mip chains
//
// Returns:
//   - gltfTextureStage: the stage
func newGLTFTextureStage(device gpu.Device, staging stagingBuffer, transfer transferExecutor, encoder ktx2.Encoder,
	cache textureCache, prof *profiler.Profiler, logger *slog.Logger, stem string, createMipmaps bool) gltfTextureStage {
	return &gltfTextureStageImpl{
		device:        device,
		staging:       staging,
		transfer:      transfer,
		encoder:       encoder,
		cache:         cache,
		profiler:      prof,
		logger:        logger,
		stem:          stem,
		createMipmaps: createMipmaps,
	}
}

func (s *gltfTextureStageImpl) Process(imageIndex int, source []byte, selection FormatSelection) (model.Image, error) {
	job := &textureJob{
		state:      textureStateProbeDimensions,
		imageIndex: imageIndex,
		source:     source,
		selection:  selection,
	}

	for job.state != textureStateDone {
		state := job.state
		var err error
		switch state {
		case textureStateProbeDimensions:
			err = s.probeDimensions(job)
			job.state = textureStateComputeCacheKey
		case textureStateComputeCacheKey:
			job.mipCount = 1
			if s.createMipmaps {
				job.mipCount = ktx2.MaxLevels(job.width, job.height)
			}
			job.key = s.cache.Key(s.stem, job.imageIndex, job.mipCount)
			job.state = textureStateCacheMiss
			if cached, ok := s.cache.Lookup(job.key, job.width, job.height, job.mipCount, job.selection.SRGB); ok {
				job.container = cached
				job.state = textureStateCacheHit
			}
		case textureStateCacheHit:
			job.cacheHit = true
			s.profiler.CacheHit()
			job.state = textureStateTranscode
		case textureStateCacheMiss:
			s.profiler.CacheMiss()
			job.state = textureStateDecode
		case textureStateDecode:
			err = s.decode(job)
			job.state = textureStateBuildContainer
		case textureStateBuildContainer:
			job.container, err = ktx2.New(job.selection.Uncompressed, job.width, job.height, job.mipCount)
			if err != nil {
				err = fmt.Errorf("%w: %w", ErrCompression, err)
			}
			job.state = textureStatePopulateMips
		case textureStatePopulateMips:
			err = s.populateMips(job)
			job.pixels = nil
			job.state = textureStateCompress
		case textureStateCompress:
			if cerr := s.encoder.Compress(job.container); cerr != nil {
				err = fmt.Errorf("%w: %w", ErrCompression, cerr)
			}
			job.state = textureStateWriteCache
		case textureStateWriteCache:
			if s.cache.Writable() {
				s.cache.Store(job.key, job.container)
			}
			job.state = textureStateTranscode
		case textureStateTranscode:
			err = s.transcode(job)
			job.state = textureStateUploadToGPU
		case textureStateUploadToGPU:
			err = s.upload(job)
			job.container = nil
			job.state = textureStateDone
		}
		if err != nil {
			return model.Image{}, fmt.Errorf("image %d %s: %w", imageIndex, state, err)
		}
		s.logger.Debug("texture state", "image", imageIndex, "state", state)
	}
	return job.result, nil
}

// probeDimensions reads the extent of the source without decoding its texels.
func (s *gltfTextureStageImpl) probeDimensions(job *textureJob) error {
	job.mime = "unknown"
	if kind, err := filetype.Match(job.source); err == nil && kind != filetype.Unknown {
		job.mime = kind.MIME.Value
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(job.source))
	if err != nil {
		return fmt.Errorf("%w: probe %s: %w", ErrDecodeImage, job.mime, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: %s image has empty extent %dx%d", ErrDecodeImage, format, cfg.Width, cfg.Height)
	}
	job.width, job.height = uint32(cfg.Width), uint32(cfg.Height)
	return nil
}

// decode fully decodes the source into straight-alpha RGBA8, whatever its channel count.
func (s *gltfTextureStageImpl) decode(job *textureJob) error {
	src, _, err := image.Decode(bytes.NewReader(job.source))
	if err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrDecodeImage, job.mime, err)
	}
	b := src.Bounds()
	if uint32(b.Dx()) != job.width || uint32(b.Dy()) != job.height {
		return fmt.Errorf("%w: decoded extent %dx%d differs from probed %dx%d", ErrDecodeImage, b.Dx(), b.Dy(), job.width, job.height)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	job.pixels = dst.Pix
	job.source = nil
	return nil
}

// populateMips writes level 0 and, when mips are enabled, the rest of the chain into the container.
func (s *gltfTextureStageImpl) populateMips(job *textureJob) error {
	if err := job.container.SetLevel(0, job.pixels); err != nil {
		return fmt.Errorf("%w: %w", ErrCompression, err)
	}
	if job.mipCount == 1 {
		return nil
	}

	caps := s.device.Capabilities()
	if caps.Blit && caps.Readback {
		return s.generateMipsGPU(job)
	}
	s.logger.Debug("generating mips on the CPU", "image", job.imageIndex, "backend", caps.Backend)
	return s.generateMipsCPU(job)
}

// generateMipsGPU uploads level 0 into a scratch image, blits each level from the previous one
// with a linear filter and copies the whole chain back through the staging buffer.
func (s *gltfTextureStageImpl) generateMipsGPU(job *textureJob) error {
	c := job.container
	format := job.selection.Uncompressed

	offsets := make([]uint64, job.mipCount)
	var total uint64
	for level := range job.mipCount {
		offsets[level] = total
		w, h := c.LevelExtent(level)
		total += format.LevelSize(w, h)
	}

	scratch, err := s.device.CreateImage(gpu.ImageDescriptor{
		Label:     fmt.Sprintf("%s mip scratch %d", s.stem, job.imageIndex),
		Format:    format,
		Extent:    gpu.Extent3D{Width: job.width, Height: job.height, Depth: 1},
		MipLevels: job.mipCount,
		Usage:     gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst,
	})
	if err != nil {
		return fmt.Errorf("%w: mip scratch image: %w", ErrGPU, err)
	}
	defer scratch.Release()
	s.profiler.Allocated(total)

	if err := s.staging.Ensure(total); err != nil {
		return err
	}
	copy(s.staging.Mapped(), job.pixels)
	staging := s.staging.Buffer()

	err = s.transfer.Run(func(cmd gpu.CommandRecorder) {
		cmd.PipelineBarrier(gpu.ImageBarrier{
			Image: scratch, OldLayout: gpu.ImageLayoutUndefined, NewLayout: gpu.ImageLayoutTransferDst,
			BaseMipLevel: 0, LevelCount: job.mipCount,
		})
		cmd.CopyBufferToImage(staging, scratch, gpu.BufferImageCopy{
			BufferOffset: 0,
			MipLevel:     0,
			Extent:       gpu.Extent3D{Width: job.width, Height: job.height, Depth: 1},
		})

		for level := uint32(1); level < job.mipCount; level++ {
			cmd.PipelineBarrier(gpu.ImageBarrier{
				Image: scratch, OldLayout: gpu.ImageLayoutTransferDst, NewLayout: gpu.ImageLayoutTransferSrc,
				BaseMipLevel: level - 1, LevelCount: 1,
			})
			cmd.BlitImage(scratch, level-1, scratch, level, gpu.FilterLinear)
		}
		cmd.PipelineBarrier(gpu.ImageBarrier{
			Image: scratch, OldLayout: gpu.ImageLayoutTransferDst, NewLayout: gpu.ImageLayoutTransferSrc,
			BaseMipLevel: job.mipCount - 1, LevelCount: 1,
		})

		regions := make([]gpu.BufferImageCopy, 0, job.mipCount-1)
		for level := uint32(1); level < job.mipCount; level++ {
			w, h := c.LevelExtent(level)
			regions = append(regions, gpu.BufferImageCopy{
				BufferOffset: offsets[level],
				MipLevel:     level,
				Extent:       gpu.Extent3D{Width: w, Height: h, Depth: 1},
			})
		}
		cmd.CopyImageToBuffer(scratch, staging, regions...)
	})
	if err != nil {
		return err
	}

	mapped := s.staging.Mapped()
	for level := uint32(1); level < job.mipCount; level++ {
		w, h := c.LevelExtent(level)
		size := format.LevelSize(w, h)
		if err := c.SetLevel(level, mapped[offsets[level]:offsets[level]+size]); err != nil {
			return fmt.Errorf("%w: %w", ErrCompression, err)
		}
	}
	return nil
}

// generateMipsCPU builds the chain on the host with the same linear filter a blit uses.
func (s *gltfTextureStageImpl) generateMipsCPU(job *textureJob) error {
	c := job.container
	prev := job.pixels
	pw, ph := job.width, job.height
	for level := uint32(1); level < job.mipCount; level++ {
		w, h := c.LevelExtent(level)
		next := gpu.ResizeRGBA8(prev, pw, ph, w, h, gpu.FilterLinear)
		if err := c.SetLevel(level, next); err != nil {
			return fmt.Errorf("%w: %w", ErrCompression, err)
		}
		prev, pw, ph = next, w, h
	}
	return nil
}

// transcode converts a universal payload into the resolver's target and, when the device cannot
// sample BC formats, decodes the blocks back to the uncompressed format.
func (s *gltfTextureStageImpl) transcode(job *textureJob) error {
	c := job.container
	if c.NeedsTranscoding() {
		if err := s.encoder.Transcode(c, job.selection.Transcode); err != nil {
			return fmt.Errorf("%w: %w", ErrTranscode, err)
		}
	}
	if c.Format.IsBlockCompressed() && !s.device.Capabilities().TextureCompressionBC {
		return s.decompress(job)
	}
	return nil
}

// decompress replaces BC7 level data with RGBA8 texels in the selection's uncompressed format.
func (s *gltfTextureStageImpl) decompress(job *textureJob) error {
	c := job.container
	if c.Format != gpu.FormatBC7SrgbBlock && c.Format != gpu.FormatBC7UnormBlock {
		return fmt.Errorf("%w: cannot decompress %s", ErrTranscode, c.Format)
	}
	s.logger.Debug("device cannot sample BC formats, decompressing", "image", job.imageIndex)

	for level := range c.LevelCount() {
		w, h := c.LevelExtent(level)
		pix, err := bc7.Decode(c.Levels[level].Data, int(w), int(h))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTranscode, err)
		}
		c.Levels[level] = ktx2.Level{Data: pix, UncompressedSize: uint64(len(pix))}
	}
	c.Format = job.selection.Uncompressed
	return nil
}

// upload creates the sampled image, copies every level through the staging buffer in one transfer
// and leaves the image in the shader-read-only layout.
func (s *gltfTextureStageImpl) upload(job *textureJob) error {
	img, err := s.createImage(job)
	if errors.Is(err, gpu.ErrUnsupportedFormat) && job.container.Format.IsBlockCompressed() {
		if err = s.decompress(job); err == nil {
			img, err = s.createImage(job)
		}
	}
	if err != nil {
		return err
	}

	c := job.container
	view, err := s.device.CreateImageView(img, 0, c.LevelCount())
	if err != nil {
		img.Release()
		return fmt.Errorf("%w: image view: %w", ErrGPU, err)
	}

	if err := s.staging.Ensure(c.DataSize()); err != nil {
		view.Release()
		img.Release()
		return err
	}
	mapped := s.staging.Mapped()
	regions := make([]gpu.BufferImageCopy, c.LevelCount())
	var offset uint64
	for level := range c.LevelCount() {
		w, h := c.LevelExtent(level)
		copy(mapped[offset:], c.Levels[level].Data)
		regions[level] = gpu.BufferImageCopy{
			BufferOffset: offset,
			MipLevel:     level,
			Extent:       gpu.Extent3D{Width: w, Height: h, Depth: 1},
		}
		offset += uint64(len(c.Levels[level].Data))
	}
	staging := s.staging.Buffer()

	err = s.transfer.Run(func(cmd gpu.CommandRecorder) {
		cmd.PipelineBarrier(gpu.ImageBarrier{
			Image: img, OldLayout: gpu.ImageLayoutUndefined, NewLayout: gpu.ImageLayoutTransferDst,
			BaseMipLevel: 0, LevelCount: c.LevelCount(),
		})
		cmd.CopyBufferToImage(staging, img, regions...)
		cmd.PipelineBarrier(gpu.ImageBarrier{
			Image: img, OldLayout: gpu.ImageLayoutTransferDst, NewLayout: gpu.ImageLayoutShaderReadOnly,
			BaseMipLevel: 0, LevelCount: c.LevelCount(),
		})
	})
	if err != nil {
		view.Release()
		img.Release()
		return err
	}

	job.result = model.Image{
		Image:     img,
		View:      view,
		Format:    img.Format(),
		Layout:    img.Layout(),
		Extent:    img.Extent(),
		MipLevels: img.MipLevels(),
		FromCache: job.cacheHit,
	}
	return nil
}

func (s *gltfTextureStageImpl) createImage(job *textureJob) (gpu.Image, error) {
	c := job.container
	img, err := s.device.CreateImage(gpu.ImageDescriptor{
		Label:     fmt.Sprintf("%s image %d", s.stem, job.imageIndex),
		Format:    c.Format,
		Extent:    gpu.Extent3D{Width: c.Width, Height: c.Height, Depth: 1},
		MipLevels: c.LevelCount(),
		Usage:     gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: image: %w", ErrGPU, err)
	}
	s.profiler.Allocated(c.DataSize())
	return img, nil
}
