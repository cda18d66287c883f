// Command vkgltf imports glTF/GLB documents into GPU resources and reports what each load produced.
// With -watch it keeps running and re-imports a document whenever its file changes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/imalexlee/vk-gltf/engine/gpu"
	"github.com/imalexlee/vk-gltf/engine/loader"
	"github.com/imalexlee/vk-gltf/engine/model"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command and returns the process exit code. Deferred releases run before main exits.
func run(args []string) int {
	cfg, paths, err := parseArgs(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vkgltf: %v\n", err)
		return 2
	}

	level, err := cfg.level()
	if err != nil {
		return fail(slog.Default(), "invalid config", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	backend, err := gpu.ParseBackendType(cfg.Backend)
	if err != nil {
		return fail(logger, "invalid backend", err)
	}
	device, err := gpu.NewDevice(backend)
	if err != nil {
		return fail(logger, "failed to create device", err)
	}
	defer device.Release()
	logger.Info("device ready", "backend", device.Capabilities().Backend)

	options := []loader.LoaderBuilderOption{
		loader.WithDevice(device),
		loader.WithLogger(logger),
		loader.WithSupercompression(cfg.Zstd),
	}
	if cfg.Workers > 0 {
		options = append(options, loader.WithCompressionWorkers(cfg.Workers))
	}
	l := loader.NewLoader(loader.BackendTypeGLTF, options...)
	defer l.Release()

	for _, path := range paths {
		if err := load(l, cfg, path, logger); err != nil {
			return fail(logger, "load failed", err)
		}
	}

	if cfg.Watch {
		if err := watch(l, cfg, paths, logger); err != nil {
			return fail(logger, "watch failed", err)
		}
	}
	return 0
}

// load imports one document and prints its summary.
func load(l loader.Loader, cfg config, path string, logger *slog.Logger) error {
	asset, err := l.Load(loader.LoadOptions{
		Path:          path,
		CacheDir:      cfg.CacheDir,
		CreateMipmaps: cfg.CreateMipmaps,
	})
	if err != nil {
		return err
	}
	printSummary(asset)
	logger.Debug("metrics", "asset", asset.Name, "summary", asset.Metrics.String())
	return nil
}

func printSummary(a *model.Asset) {
	fmt.Printf("%s: %d images, %d meshes (%d primitives), %d materials, %d textures, %d nodes, %d scenes, %d lights\n",
		a.Name, len(a.Images), len(a.Meshes), a.PrimitiveCount(), len(a.Materials), len(a.Textures),
		len(a.Nodes), len(a.Scenes), len(a.Lights))
	for i, img := range a.Images {
		fmt.Printf("  image %d: %dx%d %s, %d mips, cached=%t\n",
			i, img.Extent.Width, img.Extent.Height, img.Format, img.MipLevels, img.FromCache)
	}
}

// watch re-imports documents on write or create events until interrupted.
// The parent directories are watched so editors that replace files by rename are picked up.
func watch(l loader.Loader, cfg config, paths []string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	targets := make(map[string]string, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = p
		if err := w.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)
	logger.Info("watching for changes", "documents", len(targets))

	for {
		select {
		case <-interrupt:
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			path, ok := targets[abs]
			if !ok {
				continue
			}
			logger.Info("document changed, re-importing", "path", path)
			l.Unload(path)
			if err := load(l, cfg, path, logger); err != nil {
				logger.Error("re-import failed", "path", path, "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// fail logs err and returns the exit code of a failed run.
func fail(logger *slog.Logger, msg string, err error) int {
	logger.Error(msg, "error", err)
	return 1
}
