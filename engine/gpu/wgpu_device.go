package gpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/imalexlee/vk-gltf/common"
)

// wgpuDeviceImpl is a Device backed by WebGPU.
// Host-visible buffers live in host memory; transfers out of them are realised with queue writes, which
// execute in submission order, followed by an empty command buffer submission and a blocking poll.
type wgpuDeviceImpl struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	bcSupported bool
}

var _ Device = &wgpuDeviceImpl{}

func newWGPUDevice(cfg *deviceConfig) (*wgpuDeviceImpl, error) {
	w := &wgpuDeviceImpl{
		instance: wgpu.CreateInstance(nil),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("gpu: request adapter: %w", err)
	}
	w.adapter = a

	// BC formats are optional in WebGPU; ask for them first and fall back to a plain device.
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            cfg.label,
		RequiredFeatures: []wgpu.FeatureName{wgpu.FeatureNameTextureCompressionBC},
	})
	if err == nil {
		w.bcSupported = true
	} else {
		d, err = a.RequestDevice(&wgpu.DeviceDescriptor{
			Label: cfg.label,
		})
		if err != nil {
			a.Release()
			w.instance.Release()
			return nil, fmt.Errorf("gpu: request device: %w", err)
		}
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (w *wgpuDeviceImpl) Capabilities() Capabilities {
	return Capabilities{
		Backend:              "wgpu",
		Blit:                 false,
		Readback:             false,
		DeviceAddress:        false,
		TextureCompressionBC: w.bcSupported,
	}
}

func (w *wgpuDeviceImpl) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("gpu: buffer %q has zero size", desc.Label)
	}
	b := &wgpuBuffer{
		label: desc.Label,
		usage: desc.Usage,
		size:  desc.Size,
	}
	if desc.HostVisible {
		b.host = make([]byte, desc.Size)
		return b, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	buf, err := w.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             common.AlignUp(desc.Size, 4),
		Usage:            wgpuBufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q: %w", desc.Label, err)
	}
	b.buf = buf
	return b, nil
}

func (w *wgpuDeviceImpl) CreateImage(desc ImageDescriptor) (Image, error) {
	format, ok := wgpuTextureFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("gpu: image %q format %s: %w", desc.Label, desc.Format, ErrUnsupportedFormat)
	}
	if desc.Format.IsBlockCompressed() {
		if !w.bcSupported {
			return nil, fmt.Errorf("gpu: image %q format %s without BC feature: %w", desc.Label, desc.Format, ErrUnsupportedFormat)
		}
		if desc.Extent.Width%4 != 0 || desc.Extent.Height%4 != 0 {
			return nil, fmt.Errorf("gpu: image %q: block compressed extent %dx%d is not a multiple of 4: %w",
				desc.Label, desc.Extent.Width, desc.Extent.Height, ErrUnsupportedFormat)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tex, err := w.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     wgpuTextureUsage(desc.Usage),
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Extent.Width,
			Height:             desc.Extent.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        format,
		MipLevelCount: desc.MipLevels,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create texture %q: %w", desc.Label, err)
	}
	return &wgpuImage{
		desc:    desc,
		format:  format,
		tex:     tex,
		layouts: make([]ImageLayout, desc.MipLevels),
	}, nil
}

func (w *wgpuDeviceImpl) CreateImageView(img Image, baseMip, levelCount uint32) (ImageView, error) {
	wi, ok := img.(*wgpuImage)
	if !ok {
		return nil, fmt.Errorf("gpu: image %q was not created by the wgpu device", img.Label())
	}
	if levelCount == 0 || baseMip+levelCount > wi.desc.MipLevels {
		return nil, fmt.Errorf("gpu: view of %q: mip range [%d, %d) %w", wi.desc.Label, baseMip, baseMip+levelCount, ErrOutOfRange)
	}

	var desc *wgpu.TextureViewDescriptor
	if baseMip != 0 || levelCount != wi.desc.MipLevels {
		desc = &wgpu.TextureViewDescriptor{
			Label:           wi.desc.Label + " View",
			Format:          wi.format,
			Dimension:       wgpu.TextureViewDimension2D,
			BaseMipLevel:    baseMip,
			MipLevelCount:   levelCount,
			BaseArrayLayer:  0,
			ArrayLayerCount: 1,
			Aspect:          wgpu.TextureAspectAll,
		}
	}
	view, err := wi.tex.CreateView(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create view of %q: %w", wi.desc.Label, err)
	}
	return &wgpuImageView{img: wi, view: view, base: baseMip, count: levelCount}, nil
}

func (w *wgpuDeviceImpl) CreateSampler(desc SamplerDescriptor) (Sampler, error) {
	// WebGPU only allows anisotropy when every filter is linear.
	anisotropy := uint16(1)
	if desc.AnisotropyEnable && desc.MagFilter == FilterLinear && desc.MinFilter == FilterLinear && desc.MipmapMode == MipmapModeLinear {
		anisotropy = uint16(max(desc.MaxAnisotropy, 1))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	samp, err := w.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  wgpuAddressMode(desc.AddressModeU),
		AddressModeV:  wgpuAddressMode(desc.AddressModeV),
		AddressModeW:  wgpuAddressMode(desc.AddressModeW),
		MagFilter:     wgpuFilterMode(desc.MagFilter),
		MinFilter:     wgpuFilterMode(desc.MinFilter),
		MipmapFilter:  wgpuMipmapFilterMode(desc.MipmapMode),
		LodMinClamp:   desc.MinLod,
		LodMaxClamp:   common.Coalesce(desc.MaxLod, LodClampNone),
		MaxAnisotropy: anisotropy,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create sampler %q: %w", desc.Label, err)
	}
	return &wgpuSampler{desc: desc, samp: samp}, nil
}

func (w *wgpuDeviceImpl) Submit(record func(CommandRecorder)) error {
	rec := &wgpuRecorder{}
	record(rec)
	if rec.err != nil {
		return rec.err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, cmd := range rec.commands {
		if err := cmd(w.queue); err != nil {
			return err
		}
	}

	encoder, err := w.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return fmt.Errorf("gpu: finish command encoder: %w", err)
	}
	w.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	// Blocks until the queue is idle; there is no timeout.
	w.device.Poll(true, nil)

	for _, apply := range rec.layouts {
		apply()
	}
	return nil
}

func (w *wgpuDeviceImpl) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.queue != nil {
		w.queue.Release()
		w.queue = nil
	}
	if w.device != nil {
		w.device.Release()
		w.device = nil
	}
	if w.adapter != nil {
		w.adapter.Release()
		w.adapter = nil
	}
	if w.instance != nil {
		w.instance.Release()
		w.instance = nil
	}
}

// --- Objects ---

type wgpuBuffer struct {
	label string
	usage BufferUsage
	size  uint64
	buf   *wgpu.Buffer
	host  []byte
}

func (b *wgpuBuffer) Label() string      { return b.label }
func (b *wgpuBuffer) Size() uint64       { return b.size }
func (b *wgpuBuffer) Usage() BufferUsage { return b.usage }
func (b *wgpuBuffer) Mapped() []byte     { return b.host }
func (b *wgpuBuffer) Address() uint64    { return 0 }

func (b *wgpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
	b.host = nil
}

type wgpuImage struct {
	desc    ImageDescriptor
	format  wgpu.TextureFormat
	tex     *wgpu.Texture
	layouts []ImageLayout
}

func (i *wgpuImage) Label() string       { return i.desc.Label }
func (i *wgpuImage) Format() Format      { return i.desc.Format }
func (i *wgpuImage) Extent() Extent3D    { return i.desc.Extent }
func (i *wgpuImage) MipLevels() uint32   { return i.desc.MipLevels }
func (i *wgpuImage) Usage() ImageUsage   { return i.desc.Usage }
func (i *wgpuImage) Layout() ImageLayout { return i.layouts[0] }

func (i *wgpuImage) Release() {
	if i.tex != nil {
		i.tex.Release()
		i.tex = nil
	}
}

type wgpuImageView struct {
	img   *wgpuImage
	view  *wgpu.TextureView
	base  uint32
	count uint32
}

func (v *wgpuImageView) Image() Image         { return v.img }
func (v *wgpuImageView) BaseMipLevel() uint32 { return v.base }
func (v *wgpuImageView) LevelCount() uint32   { return v.count }

func (v *wgpuImageView) Release() {
	if v.view != nil {
		v.view.Release()
		v.view = nil
	}
}

type wgpuSampler struct {
	desc SamplerDescriptor
	samp *wgpu.Sampler
}

func (s *wgpuSampler) Descriptor() SamplerDescriptor { return s.desc }

func (s *wgpuSampler) Release() {
	if s.samp != nil {
		s.samp.Release()
		s.samp = nil
	}
}

// --- Command Recording ---

type wgpuRecorder struct {
	commands []func(q *wgpu.Queue) error
	layouts  []func()
	err      error
}

var _ CommandRecorder = &wgpuRecorder{}

func (r *wgpuRecorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *wgpuRecorder) PipelineBarrier(barriers ...ImageBarrier) {
	// WebGPU tracks resource usage itself; only the recorded layouts change.
	for _, b := range barriers {
		wi, ok := b.Image.(*wgpuImage)
		if !ok {
			r.fail(fmt.Errorf("gpu: image %q was not created by the wgpu device", b.Image.Label()))
			return
		}
		barrier := b
		r.layouts = append(r.layouts, func() {
			for level := barrier.BaseMipLevel; level < barrier.BaseMipLevel+barrier.LevelCount && level < uint32(len(wi.layouts)); level++ {
				wi.layouts[level] = barrier.NewLayout
			}
		})
	}
}

func (r *wgpuRecorder) CopyBuffer(src, dst Buffer, regions ...BufferCopy) {
	sb, ok1 := src.(*wgpuBuffer)
	db, ok2 := dst.(*wgpuBuffer)
	if !ok1 || !ok2 || sb.host == nil || db.buf == nil {
		r.fail(fmt.Errorf("gpu: copy %q -> %q: only host to device copies: %w", src.Label(), dst.Label(), ErrUnsupportedCommand))
		return
	}
	for _, region := range regions {
		if region.SrcOffset+region.Size > sb.size || region.DstOffset+region.Size > db.size || region.DstOffset%4 != 0 {
			r.fail(fmt.Errorf("gpu: copy %q -> %q: %w", sb.label, db.label, ErrOutOfRange))
			return
		}
	}
	r.commands = append(r.commands, func(q *wgpu.Queue) error {
		for _, region := range regions {
			data := sb.host[region.SrcOffset : region.SrcOffset+region.Size]
			if pad := common.AlignUp(region.Size, 4); pad != region.Size {
				padded := make([]byte, pad)
				copy(padded, data)
				data = padded
			}
			if err := q.WriteBuffer(db.buf, region.DstOffset, data); err != nil {
				return fmt.Errorf("gpu: write buffer %q: %w", db.label, err)
			}
		}
		return nil
	})
}

func (r *wgpuRecorder) CopyBufferToImage(src Buffer, dst Image, regions ...BufferImageCopy) {
	sb, ok1 := src.(*wgpuBuffer)
	di, ok2 := dst.(*wgpuImage)
	if !ok1 || !ok2 || sb.host == nil {
		r.fail(fmt.Errorf("gpu: copy %q -> %q: only host buffer to image copies: %w", src.Label(), dst.Label(), ErrUnsupportedCommand))
		return
	}
	format := di.desc.Format
	for _, region := range regions {
		size := format.LevelSize(region.Extent.Width, region.Extent.Height)
		if region.MipLevel >= di.desc.MipLevels || region.BufferOffset+size > sb.size {
			r.fail(fmt.Errorf("gpu: copy into %q mip %d: %w", di.desc.Label, region.MipLevel, ErrOutOfRange))
			return
		}
	}
	r.commands = append(r.commands, func(q *wgpu.Queue) error {
		for _, region := range regions {
			width, height := region.Extent.Width, region.Extent.Height
			size := format.LevelSize(width, height)
			if format.IsBlockCompressed() {
				// Compressed copies cover the physical (block aligned) size of the level.
				width, height = uint32(common.AlignUp(uint64(width), 4)), uint32(common.AlignUp(uint64(height), 4))
			}
			q.WriteTexture(
				&wgpu.ImageCopyTexture{
					Texture:  di.tex,
					MipLevel: region.MipLevel,
					Origin:   wgpu.Origin3D{},
					Aspect:   wgpu.TextureAspectAll,
				},
				sb.host[region.BufferOffset:region.BufferOffset+size],
				&wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  format.BytesPerRow(region.Extent.Width),
					RowsPerImage: format.RowsPerImage(region.Extent.Height),
				},
				&wgpu.Extent3D{
					Width:              width,
					Height:             height,
					DepthOrArrayLayers: 1,
				},
			)
		}
		return nil
	})
}

func (r *wgpuRecorder) CopyImageToBuffer(src Image, dst Buffer, regions ...BufferImageCopy) {
	r.fail(fmt.Errorf("gpu: CopyImageToBuffer on wgpu: %w", ErrUnsupportedCommand))
}

func (r *wgpuRecorder) BlitImage(src Image, srcMip uint32, dst Image, dstMip uint32, filter Filter) {
	r.fail(fmt.Errorf("gpu: BlitImage on wgpu: %w", ErrUnsupportedCommand))
}

// --- Enum Mapping ---

func wgpuTextureFormat(f Format) (wgpu.TextureFormat, bool) {
	switch f {
	case FormatR8Unorm:
		return wgpu.TextureFormatR8Unorm, true
	case FormatRG8Unorm:
		return wgpu.TextureFormatRG8Unorm, true
	case FormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm, true
	case FormatRGBA8Srgb:
		return wgpu.TextureFormatRGBA8UnormSrgb, true
	case FormatBC4RUnormBlock:
		return wgpu.TextureFormatBC4RUnorm, true
	case FormatBC5RGUnormBlock:
		return wgpu.TextureFormatBC5RGUnorm, true
	case FormatBC7UnormBlock:
		return wgpu.TextureFormatBC7RGBAUnorm, true
	case FormatBC7SrgbBlock:
		return wgpu.TextureFormatBC7RGBAUnormSrgb, true
	default:
		// WebGPU has no 3-channel 8-bit formats.
		return wgpu.TextureFormatUndefined, false
	}
}

func wgpuBufferUsage(u BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&BufferUsageTransferSrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	if u&BufferUsageTransferDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	if u&BufferUsageIndex != 0 {
		out |= wgpu.BufferUsageIndex
	}
	if u&BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	// Device address access maps onto storage binding, the WebGPU way to read a buffer from shaders.
	if u&(BufferUsageStorage|BufferUsageShaderDeviceAddress) != 0 {
		out |= wgpu.BufferUsageStorage
	}
	return out
}

func wgpuTextureUsage(u ImageUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&ImageUsageTransferSrc != 0 {
		out |= wgpu.TextureUsageCopySrc
	}
	if u&ImageUsageTransferDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	if u&ImageUsageSampled != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	return out
}

func wgpuAddressMode(m AddressMode) wgpu.AddressMode {
	switch m {
	case AddressModeMirroredRepeat:
		return wgpu.AddressModeMirrorRepeat
	case AddressModeClampToEdge:
		return wgpu.AddressModeClampToEdge
	default:
		return wgpu.AddressModeRepeat
	}
}

func wgpuFilterMode(f Filter) wgpu.FilterMode {
	if f == FilterNearest {
		return wgpu.FilterModeNearest
	}
	return wgpu.FilterModeLinear
}

func wgpuMipmapFilterMode(m MipmapMode) wgpu.MipmapFilterMode {
	if m == MipmapModeNearest {
		return wgpu.MipmapFilterModeNearest
	}
	return wgpu.MipmapFilterModeLinear
}
