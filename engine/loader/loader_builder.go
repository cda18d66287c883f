package loader

import (
	"log/slog"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/model"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithDevice is an option builder that sets the GPU device assets are created on.
//
// Parameters:
//   - d: the device instance
//
// Returns:
//   - LoaderBuilderOption: a function that applies the device option to a loader
func WithDevice(d gpu.Device) LoaderBuilderOption {
	return func(l *loader) {
		l.device = d
	}
}

// WithLogger is an option builder that sets the logger used for stage and summary output.
//
// Parameters:
//   - logger: the logger, nil keeps slog.Default()
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *slog.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithCompressionWorkers sets the number of texture compression workers.
// Values below 1 select one worker.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - LoaderBuilderOption: a function that applies the worker option to a loader
func WithCompressionWorkers(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.workers = max(n, 1)
	}
}

// WithSupercompression enables or disables Zstandard supercompression of cached textures.
//
// Parameters:
//   - enabled: true to supercompress
//
// Returns:
//   - LoaderBuilderOption: a function that applies the supercompression option to a loader
func WithSupercompression(enabled bool) LoaderBuilderOption {
	return func(l *loader) {
		l.supercompress = enabled
	}
}

// WithAsset is an option builder that pre-populates the registry with an asset.
//
// Parameters:
//   - path: the registry key for the asset
//   - asset: the asset to register
//
// Returns:
//   - LoaderBuilderOption: a function that applies the asset option to a loader
func WithAsset(path string, asset *model.Asset) LoaderBuilderOption {
	return func(l *loader) {
		l.assetCache[path] = asset
	}
}
