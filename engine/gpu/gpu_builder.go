package gpu

import "fmt"

// BackendType identifies the Device implementation.
type BackendType int

const (
	// BackendTypeSoftware selects the host-memory device.
	BackendTypeSoftware BackendType = iota
	// BackendTypeWGPU selects the WebGPU device.
	BackendTypeWGPU
)

func (b BackendType) String() string {
	switch b {
	case BackendTypeSoftware:
		return "software"
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return fmt.Sprintf("BackendType(%d)", int(b))
	}
}

// ParseBackendType parses a backend name as accepted by String.
//
// Parameters:
//   - name: "software" or "wgpu"
//
// Returns:
//   - BackendType: the parsed backend
//   - error: error if the name is unknown
func ParseBackendType(name string) (BackendType, error) {
	switch name {
	case "software", "":
		return BackendTypeSoftware, nil
	case "wgpu":
		return BackendTypeWGPU, nil
	default:
		return 0, fmt.Errorf("gpu: unknown backend %q", name)
	}
}

// deviceConfig collects builder options before the backend is created.
type deviceConfig struct {
	label                string
	forceFallbackAdapter bool
	disableBlit          bool
	disableReadback      bool
}

// DeviceBuilderOption is a functional option applied to a device during construction via NewDevice.
type DeviceBuilderOption func(*deviceConfig)

// WithLabel sets the debug label of the device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - DeviceBuilderOption: a function that applies the label option to a device
func WithLabel(label string) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.label = label
	}
}

// WithForceFallbackAdapter forces the WebGPU backend onto the fallback (CPU) adapter.
//
// Parameters:
//   - force: true to request the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: a function that applies the fallback option to a device
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithoutBlit makes the software device report no blit support, so callers take their CPU paths.
//
// Returns:
//   - DeviceBuilderOption: a function that disables blits on a device
func WithoutBlit() DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.disableBlit = true
	}
}

// WithoutReadback makes the software device report no image to buffer copies.
//
// Returns:
//   - DeviceBuilderOption: a function that disables readback on a device
func WithoutReadback() DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.disableReadback = true
	}
}

// NewDevice creates a Device of the given backend type with options applied.
//
// Parameters:
//   - backendType: the backend implementation to create
//   - options: a variadic list of DeviceBuilderOption functions to configure the device
//
// Returns:
//   - Device: the created device
//   - error: error if the backend could not acquire an adapter or device
func NewDevice(backendType BackendType, options ...DeviceBuilderOption) (Device, error) {
	cfg := &deviceConfig{label: "vk-gltf device"}
	for _, opt := range options {
		opt(cfg)
	}

	switch backendType {
	case BackendTypeSoftware:
		return newSoftwareDevice(cfg), nil
	case BackendTypeWGPU:
		return newWGPUDevice(cfg)
	default:
		return nil, fmt.Errorf("gpu: unsupported backend %s", backendType)
	}
}
