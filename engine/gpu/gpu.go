// package gpu is the narrow GPU collaborator the import pipeline talks to: buffer, image and sampler
// allocation plus a blocking "record, submit, wait" command primitive. Backends implement Device.
package gpu

import "errors"

var (
	// ErrUnsupportedCommand is returned by Submit when a recorded command is not available on the backend.
	ErrUnsupportedCommand = errors.New("gpu: command not supported by backend")
	// ErrUnsupportedFormat is returned when an image format cannot be created on the backend.
	ErrUnsupportedFormat = errors.New("gpu: format not supported by backend")
	// ErrInvalidLayout is returned when a command is recorded against an image in the wrong layout.
	ErrInvalidLayout = errors.New("gpu: image subresource in wrong layout")
	// ErrOutOfRange is returned when a copy region exceeds a buffer or image.
	ErrOutOfRange = errors.New("gpu: copy region out of range")
	// ErrReleased is returned when a released resource is used.
	ErrReleased = errors.New("gpu: resource already released")
)

// BufferUsage is a bitmask describing how a buffer is used.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageStorage
	BufferUsageShaderDeviceAddress
)

// ImageUsage is a bitmask describing how an image is used.
type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
)

// ImageLayout is the layout an image subresource is in.
type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutTransferDst
	ImageLayoutTransferSrc
	ImageLayoutShaderReadOnly
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutTransferDst:
		return "TransferDst"
	case ImageLayoutTransferSrc:
		return "TransferSrc"
	case ImageLayoutShaderReadOnly:
		return "ShaderReadOnly"
	default:
		return "Undefined"
	}
}

// Filter is a texel filtering mode.
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

// MipmapMode is the filtering mode used between mip levels.
type MipmapMode int

const (
	MipmapModeNearest MipmapMode = iota
	MipmapModeLinear
)

// AddressMode is the addressing mode for texture coordinates outside [0, 1].
type AddressMode int

const (
	AddressModeRepeat AddressMode = iota
	AddressModeMirroredRepeat
	AddressModeClampToEdge
)

// BorderColor is the color returned for clamp-to-border addressing.
type BorderColor int

const (
	BorderColorFloatTransparentBlack BorderColor = iota
	BorderColorFloatOpaqueBlack
	BorderColorFloatOpaqueWhite
)

// LodClampNone disables the maximum LOD clamp of a sampler.
const LodClampNone float32 = 1000.0

// Extent3D is the size of an image.
type Extent3D struct {
	Width, Height, Depth uint32
}

// BufferDescriptor describes a buffer to allocate.
type BufferDescriptor struct {
	// Label is a debug name.
	Label string
	// Size is the buffer size in bytes.
	Size uint64
	// Usage is the set of usages the buffer supports.
	Usage BufferUsage
	// HostVisible requests host-visible, persistently mapped memory written sequentially by the host.
	// When false the buffer is device-local.
	HostVisible bool
}

// ImageDescriptor describes a 2D image to allocate.
type ImageDescriptor struct {
	Label     string
	Format    Format
	Extent    Extent3D
	MipLevels uint32
	Usage     ImageUsage
}

// SamplerDescriptor describes a sampler to create.
type SamplerDescriptor struct {
	Label            string
	MagFilter        Filter
	MinFilter        Filter
	MipmapMode       MipmapMode
	AddressModeU     AddressMode
	AddressModeV     AddressMode
	AddressModeW     AddressMode
	AnisotropyEnable bool
	MaxAnisotropy    float32
	BorderColor      BorderColor
	MinLod           float32
	MaxLod           float32
}

// Capabilities describes optional features of a Device.
type Capabilities struct {
	// Backend is a human readable backend name.
	Backend string
	// Blit is true when BlitImage is supported.
	Blit bool
	// Readback is true when CopyImageToBuffer is supported.
	Readback bool
	// DeviceAddress is true when buffers expose shader device addresses.
	DeviceAddress bool
	// TextureCompressionBC is true when BC block formats can be sampled.
	TextureCompressionBC bool
}

// Buffer is a GPU buffer.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage

	// Mapped returns the persistently mapped host memory of a host-visible buffer, nil otherwise.
	// The slice is invalidated when the buffer is released.
	Mapped() []byte

	// Address returns the shader device address, or 0 when the buffer has none.
	Address() uint64

	Release()
}

// Image is a 2D GPU image with a mip chain.
type Image interface {
	Label() string
	Format() Format
	Extent() Extent3D
	MipLevels() uint32
	Usage() ImageUsage

	// Layout returns the layout of mip level 0 as last recorded by a submitted barrier.
	Layout() ImageLayout

	Release()
}

// ImageView is a view of a range of an image's mip levels.
type ImageView interface {
	Image() Image
	BaseMipLevel() uint32
	LevelCount() uint32
	Release()
}

// Sampler is a GPU sampler.
type Sampler interface {
	Descriptor() SamplerDescriptor
	Release()
}

// BufferCopy is a buffer to buffer copy region.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferImageCopy is a copy region between a buffer and one mip level of an image.
// Buffer data is tightly packed in the image's format.
type BufferImageCopy struct {
	BufferOffset uint64
	MipLevel     uint32
	Extent       Extent3D
}

// ImageBarrier transitions a range of mip levels between layouts.
type ImageBarrier struct {
	Image        Image
	OldLayout    ImageLayout
	NewLayout    ImageLayout
	BaseMipLevel uint32
	LevelCount   uint32
}

// CommandRecorder records transfer commands into a one-shot command buffer.
// Recording errors are sticky: the first one is returned by Device.Submit and later commands are dropped.
type CommandRecorder interface {
	PipelineBarrier(barriers ...ImageBarrier)
	CopyBuffer(src, dst Buffer, regions ...BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, regions ...BufferImageCopy)
	CopyImageToBuffer(src Image, dst Buffer, regions ...BufferImageCopy)
	BlitImage(src Image, srcMip uint32, dst Image, dstMip uint32, filter Filter)
}

// Device allocates GPU objects and runs command sequences.
type Device interface {
	// Capabilities returns the optional features of the device.
	Capabilities() Capabilities

	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the allocated buffer
	//   - error: error if allocation fails
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// CreateImage allocates a 2D image in the undefined layout.
	//
	// Parameters:
	//   - desc: the image descriptor
	//
	// Returns:
	//   - Image: the allocated image
	//   - error: error if allocation fails or the format is unsupported
	CreateImage(desc ImageDescriptor) (Image, error)

	// CreateImageView creates a view of levelCount mip levels starting at baseMip.
	//
	// Parameters:
	//   - img: the image to view
	//   - baseMip: the first mip level of the view
	//   - levelCount: the number of mip levels in the view
	//
	// Returns:
	//   - ImageView: the created view
	//   - error: error if the range is invalid
	CreateImageView(img Image, baseMip, levelCount uint32) (ImageView, error)

	// CreateSampler creates a sampler.
	//
	// Parameters:
	//   - desc: the sampler descriptor
	//
	// Returns:
	//   - Sampler: the created sampler
	//   - error: error if creation fails
	CreateSampler(desc SamplerDescriptor) (Sampler, error)

	// Submit records a one-shot command sequence through record, submits it and blocks until the
	// device has finished executing it. There is no timeout.
	//
	// Parameters:
	//   - record: callback appending commands to the recorder
	//
	// Returns:
	//   - error: the first recording error, or a submission error
	Submit(record func(CommandRecorder)) error

	// Release destroys the device. All objects created from it must be released first.
	Release()
}
