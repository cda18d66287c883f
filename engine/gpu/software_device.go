package gpu

import (
	"fmt"
	"image"
	"math/bits"
	"sync"

	"github.com/anthonynsimon/bild/transform"

	"github.com/imalexlee/vk-gltf/common"
)

// softwareAddressBase is the first fake device address handed out by the software device.
const softwareAddressBase uint64 = 0x1000_0000

// Inspector exposes bookkeeping of devices that track their objects.
type Inspector interface {
	// LiveObjects returns the number of created and not yet released buffers, images, views and samplers.
	LiveObjects() int
	// Submissions returns the number of completed Submit calls.
	Submissions() int
}

// ReadableBuffer is implemented by buffers whose memory can be read back by the host regardless of memory type.
type ReadableBuffer interface {
	Contents() []byte
}

// ReadableImage is implemented by images whose mip levels can be read back by the host.
type ReadableImage interface {
	LevelContents(level uint32) []byte
	LevelLayout(level uint32) ImageLayout
}

// softwareDeviceImpl is a Device that keeps every object in host memory and executes
// recorded commands on the CPU at submission time.
type softwareDeviceImpl struct {
	mu sync.Mutex

	cfg         *deviceConfig
	nextAddress uint64
	submissions int
	live        int
}

var _ Device = &softwareDeviceImpl{}
var _ Inspector = &softwareDeviceImpl{}
var _ ReadableBuffer = &softwareBuffer{}
var _ ReadableImage = &softwareImage{}

func newSoftwareDevice(cfg *deviceConfig) *softwareDeviceImpl {
	return &softwareDeviceImpl{
		cfg:         cfg,
		nextAddress: softwareAddressBase,
	}
}

func (d *softwareDeviceImpl) Capabilities() Capabilities {
	return Capabilities{
		Backend:              "software",
		Blit:                 !d.cfg.disableBlit,
		Readback:             !d.cfg.disableReadback,
		DeviceAddress:        true,
		TextureCompressionBC: true,
	}
}

func (d *softwareDeviceImpl) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("gpu: buffer %q has zero size", desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b := &softwareBuffer{
		dev:         d,
		label:       desc.Label,
		usage:       desc.Usage,
		hostVisible: desc.HostVisible,
		data:        make([]byte, desc.Size),
	}
	if desc.Usage&BufferUsageShaderDeviceAddress != 0 {
		b.address = d.nextAddress
		d.nextAddress += common.AlignUp(desc.Size, 256)
	}
	d.live++
	return b, nil
}

func (d *softwareDeviceImpl) CreateImage(desc ImageDescriptor) (Image, error) {
	if desc.Format == FormatUndefined {
		return nil, fmt.Errorf("gpu: image %q: %w", desc.Label, ErrUnsupportedFormat)
	}
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return nil, fmt.Errorf("gpu: image %q has empty extent", desc.Label)
	}
	maxLevels := uint32(bits.Len32(max(desc.Extent.Width, desc.Extent.Height)))
	if desc.MipLevels == 0 || desc.MipLevels > maxLevels {
		return nil, fmt.Errorf("gpu: image %q: mip level count %d outside [1, %d]", desc.Label, desc.MipLevels, maxLevels)
	}

	img := &softwareImage{
		dev:     d,
		desc:    desc,
		levels:  make([][]byte, desc.MipLevels),
		layouts: make([]ImageLayout, desc.MipLevels),
	}
	for level := range desc.MipLevels {
		w, h := MipExtent(desc.Extent.Width, desc.Extent.Height, level)
		img.levels[level] = make([]byte, desc.Format.LevelSize(w, h))
	}

	d.mu.Lock()
	d.live++
	d.mu.Unlock()
	return img, nil
}

func (d *softwareDeviceImpl) CreateImageView(img Image, baseMip, levelCount uint32) (ImageView, error) {
	si, ok := img.(*softwareImage)
	if !ok {
		return nil, fmt.Errorf("gpu: image %q was not created by the software device", img.Label())
	}
	if si.released {
		return nil, fmt.Errorf("gpu: view of %q: %w", si.desc.Label, ErrReleased)
	}
	if levelCount == 0 || baseMip+levelCount > si.desc.MipLevels {
		return nil, fmt.Errorf("gpu: view of %q: mip range [%d, %d) %w", si.desc.Label, baseMip, baseMip+levelCount, ErrOutOfRange)
	}

	d.mu.Lock()
	d.live++
	d.mu.Unlock()
	return &softwareImageView{dev: d, img: si, base: baseMip, count: levelCount}, nil
}

func (d *softwareDeviceImpl) CreateSampler(desc SamplerDescriptor) (Sampler, error) {
	d.mu.Lock()
	d.live++
	d.mu.Unlock()
	return &softwareSampler{dev: d, desc: desc}, nil
}

func (d *softwareDeviceImpl) Submit(record func(CommandRecorder)) error {
	rec := &softwareRecorder{dev: d}
	record(rec)
	if rec.err != nil {
		return rec.err
	}

	// Execution happens after recording, in order, like a queue submission followed by a fence wait.
	for _, cmd := range rec.commands {
		if err := cmd(); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.submissions++
	d.mu.Unlock()
	return nil
}

func (d *softwareDeviceImpl) Release() {}

func (d *softwareDeviceImpl) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

func (d *softwareDeviceImpl) Submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions
}

func (d *softwareDeviceImpl) released() {
	d.mu.Lock()
	d.live--
	d.mu.Unlock()
}

// --- Objects ---

type softwareBuffer struct {
	dev         *softwareDeviceImpl
	label       string
	usage       BufferUsage
	hostVisible bool
	data        []byte
	address     uint64
	released    bool
}

func (b *softwareBuffer) Label() string      { return b.label }
func (b *softwareBuffer) Size() uint64       { return uint64(len(b.data)) }
func (b *softwareBuffer) Usage() BufferUsage { return b.usage }
func (b *softwareBuffer) Address() uint64    { return b.address }

func (b *softwareBuffer) Mapped() []byte {
	if !b.hostVisible || b.released {
		return nil
	}
	return b.data
}

func (b *softwareBuffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.data = nil
	b.dev.released()
}

// Contents returns a copy of the buffer bytes regardless of memory type. Used by tests to verify uploads.
func (b *softwareBuffer) Contents() []byte {
	return append([]byte(nil), b.data...)
}

type softwareImage struct {
	dev      *softwareDeviceImpl
	desc     ImageDescriptor
	levels   [][]byte
	layouts  []ImageLayout
	released bool
}

func (i *softwareImage) Label() string      { return i.desc.Label }
func (i *softwareImage) Format() Format     { return i.desc.Format }
func (i *softwareImage) Extent() Extent3D   { return i.desc.Extent }
func (i *softwareImage) MipLevels() uint32  { return i.desc.MipLevels }
func (i *softwareImage) Usage() ImageUsage  { return i.desc.Usage }
func (i *softwareImage) Layout() ImageLayout { return i.layouts[0] }

func (i *softwareImage) Release() {
	if i.released {
		return
	}
	i.released = true
	i.levels = nil
	i.dev.released()
}

// LevelLayout returns the layout of one mip level.
func (i *softwareImage) LevelLayout(level uint32) ImageLayout {
	return i.layouts[level]
}

// LevelContents returns a copy of one mip level's bytes. Used by tests to verify uploads.
func (i *softwareImage) LevelContents(level uint32) []byte {
	return append([]byte(nil), i.levels[level]...)
}

type softwareImageView struct {
	dev      *softwareDeviceImpl
	img      *softwareImage
	base     uint32
	count    uint32
	released bool
}

func (v *softwareImageView) Image() Image         { return v.img }
func (v *softwareImageView) BaseMipLevel() uint32 { return v.base }
func (v *softwareImageView) LevelCount() uint32   { return v.count }

func (v *softwareImageView) Release() {
	if v.released {
		return
	}
	v.released = true
	v.dev.released()
}

type softwareSampler struct {
	dev      *softwareDeviceImpl
	desc     SamplerDescriptor
	released bool
}

func (s *softwareSampler) Descriptor() SamplerDescriptor { return s.desc }

func (s *softwareSampler) Release() {
	if s.released {
		return
	}
	s.released = true
	s.dev.released()
}

// --- Command Recording ---

type softwareRecorder struct {
	dev      *softwareDeviceImpl
	commands []func() error
	err      error
}

var _ CommandRecorder = &softwareRecorder{}

func (r *softwareRecorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *softwareRecorder) buffer(b Buffer) *softwareBuffer {
	sb, ok := b.(*softwareBuffer)
	if !ok {
		r.fail(fmt.Errorf("gpu: buffer %q was not created by the software device", b.Label()))
		return nil
	}
	if sb.released {
		r.fail(fmt.Errorf("gpu: buffer %q: %w", sb.label, ErrReleased))
		return nil
	}
	return sb
}

func (r *softwareRecorder) image(img Image) *softwareImage {
	si, ok := img.(*softwareImage)
	if !ok {
		r.fail(fmt.Errorf("gpu: image %q was not created by the software device", img.Label()))
		return nil
	}
	if si.released {
		r.fail(fmt.Errorf("gpu: image %q: %w", si.desc.Label, ErrReleased))
		return nil
	}
	return si
}

func (r *softwareRecorder) PipelineBarrier(barriers ...ImageBarrier) {
	for _, b := range barriers {
		si := r.image(b.Image)
		if si == nil {
			return
		}
		if b.LevelCount == 0 || b.BaseMipLevel+b.LevelCount > si.desc.MipLevels {
			r.fail(fmt.Errorf("gpu: barrier on %q: mip range %w", si.desc.Label, ErrOutOfRange))
			return
		}
		barrier := b
		r.commands = append(r.commands, func() error {
			for level := barrier.BaseMipLevel; level < barrier.BaseMipLevel+barrier.LevelCount; level++ {
				// Transitions from undefined discard contents and are valid from any layout.
				if barrier.OldLayout != ImageLayoutUndefined && si.layouts[level] != barrier.OldLayout {
					return fmt.Errorf("gpu: barrier on %q level %d expects %s, found %s: %w",
						si.desc.Label, level, barrier.OldLayout, si.layouts[level], ErrInvalidLayout)
				}
				si.layouts[level] = barrier.NewLayout
			}
			return nil
		})
	}
}

func (r *softwareRecorder) CopyBuffer(src, dst Buffer, regions ...BufferCopy) {
	sb, db := r.buffer(src), r.buffer(dst)
	if sb == nil || db == nil {
		return
	}
	if sb.usage&BufferUsageTransferSrc == 0 || db.usage&BufferUsageTransferDst == 0 {
		r.fail(fmt.Errorf("gpu: copy %q -> %q without transfer usage", sb.label, db.label))
		return
	}
	for _, region := range regions {
		if region.SrcOffset+region.Size > sb.Size() || region.DstOffset+region.Size > db.Size() {
			r.fail(fmt.Errorf("gpu: copy %q -> %q: %w", sb.label, db.label, ErrOutOfRange))
			return
		}
	}
	r.commands = append(r.commands, func() error {
		for _, region := range regions {
			copy(db.data[region.DstOffset:region.DstOffset+region.Size], sb.data[region.SrcOffset:region.SrcOffset+region.Size])
		}
		return nil
	})
}

func (r *softwareRecorder) CopyBufferToImage(src Buffer, dst Image, regions ...BufferImageCopy) {
	sb, di := r.buffer(src), r.image(dst)
	if sb == nil || di == nil {
		return
	}
	if di.desc.Usage&ImageUsageTransferDst == 0 {
		r.fail(fmt.Errorf("gpu: copy into %q without transfer-dst usage", di.desc.Label))
		return
	}
	for _, region := range regions {
		if err := di.checkRegion(region, sb.Size()); err != nil {
			r.fail(err)
			return
		}
	}
	r.commands = append(r.commands, func() error {
		for _, region := range regions {
			if di.layouts[region.MipLevel] != ImageLayoutTransferDst {
				return fmt.Errorf("gpu: copy into %q level %d in %s: %w",
					di.desc.Label, region.MipLevel, di.layouts[region.MipLevel], ErrInvalidLayout)
			}
			level := di.levels[region.MipLevel]
			copy(level, sb.data[region.BufferOffset:region.BufferOffset+uint64(len(level))])
		}
		return nil
	})
}

func (r *softwareRecorder) CopyImageToBuffer(src Image, dst Buffer, regions ...BufferImageCopy) {
	if r.dev.cfg.disableReadback {
		r.fail(fmt.Errorf("gpu: CopyImageToBuffer: %w", ErrUnsupportedCommand))
		return
	}
	si, db := r.image(src), r.buffer(dst)
	if si == nil || db == nil {
		return
	}
	if si.desc.Usage&ImageUsageTransferSrc == 0 || db.usage&BufferUsageTransferDst == 0 {
		r.fail(fmt.Errorf("gpu: copy %q -> %q without transfer usage", si.desc.Label, db.label))
		return
	}
	for _, region := range regions {
		if err := si.checkRegion(region, db.Size()); err != nil {
			r.fail(err)
			return
		}
	}
	r.commands = append(r.commands, func() error {
		for _, region := range regions {
			if si.layouts[region.MipLevel] != ImageLayoutTransferSrc {
				return fmt.Errorf("gpu: copy from %q level %d in %s: %w",
					si.desc.Label, region.MipLevel, si.layouts[region.MipLevel], ErrInvalidLayout)
			}
			level := si.levels[region.MipLevel]
			copy(db.data[region.BufferOffset:region.BufferOffset+uint64(len(level))], level)
		}
		return nil
	})
}

func (r *softwareRecorder) BlitImage(src Image, srcMip uint32, dst Image, dstMip uint32, filter Filter) {
	if r.dev.cfg.disableBlit {
		r.fail(fmt.Errorf("gpu: BlitImage: %w", ErrUnsupportedCommand))
		return
	}
	si, di := r.image(src), r.image(dst)
	if si == nil || di == nil {
		return
	}
	if srcMip >= si.desc.MipLevels || dstMip >= di.desc.MipLevels {
		r.fail(fmt.Errorf("gpu: blit %q -> %q: mip %w", si.desc.Label, di.desc.Label, ErrOutOfRange))
		return
	}
	if si.desc.Format.IsBlockCompressed() || si.desc.Format.BlockBytes() != 4 || di.desc.Format.BlockBytes() != 4 || di.desc.Format.IsBlockCompressed() {
		r.fail(fmt.Errorf("gpu: blit %s -> %s: %w", si.desc.Format, di.desc.Format, ErrUnsupportedFormat))
		return
	}
	r.commands = append(r.commands, func() error {
		if si.layouts[srcMip] != ImageLayoutTransferSrc || di.layouts[dstMip] != ImageLayoutTransferDst {
			return fmt.Errorf("gpu: blit %q level %d (%s) -> %q level %d (%s): %w",
				si.desc.Label, srcMip, si.layouts[srcMip], di.desc.Label, dstMip, di.layouts[dstMip], ErrInvalidLayout)
		}
		sw, sh := MipExtent(si.desc.Extent.Width, si.desc.Extent.Height, srcMip)
		dw, dh := MipExtent(di.desc.Extent.Width, di.desc.Extent.Height, dstMip)
		copy(di.levels[dstMip], ResizeRGBA8(si.levels[srcMip], sw, sh, dw, dh, filter))
		return nil
	})
}

func (i *softwareImage) checkRegion(region BufferImageCopy, bufferSize uint64) error {
	if region.MipLevel >= i.desc.MipLevels {
		return fmt.Errorf("gpu: image %q mip %d: %w", i.desc.Label, region.MipLevel, ErrOutOfRange)
	}
	w, h := MipExtent(i.desc.Extent.Width, i.desc.Extent.Height, region.MipLevel)
	if region.Extent.Width != w || region.Extent.Height != h {
		return fmt.Errorf("gpu: image %q mip %d: region %dx%d does not cover level %dx%d",
			i.desc.Label, region.MipLevel, region.Extent.Width, region.Extent.Height, w, h)
	}
	if region.BufferOffset+uint64(len(i.levels[region.MipLevel])) > bufferSize {
		return fmt.Errorf("gpu: image %q mip %d: buffer %w", i.desc.Label, region.MipLevel, ErrOutOfRange)
	}
	return nil
}

// ResizeRGBA8 resamples tightly packed 4-byte texels channel by channel, the way a linear or nearest blit does.
//
// Parameters:
//   - pix: source texels
//   - sw, sh: source extent
//   - dw, dh: destination extent
//   - filter: the resampling filter
//
// Returns:
//   - []byte: dw*dh*4 destination texels
func ResizeRGBA8(pix []byte, sw, sh, dw, dh uint32, filter Filter) []byte {
	if sw == dw && sh == dh {
		return append([]byte(nil), pix...)
	}
	src := &image.RGBA{Pix: pix, Stride: int(sw) * 4, Rect: image.Rect(0, 0, int(sw), int(sh))}
	f := transform.Linear
	if filter == FilterNearest {
		f = transform.NearestNeighbor
	}
	return transform.Resize(src, int(dw), int(dh), f).Pix
}
