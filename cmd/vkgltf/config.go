package main

import (
	"bytes"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// config holds the CLI settings. Values come from an optional TOML file and are overridden by flags.
type config struct {
	Backend       string `toml:"backend"`
	CacheDir      string `toml:"cache_dir"`
	CreateMipmaps bool   `toml:"create_mipmaps"`
	Workers       int    `toml:"workers"`
	Zstd          bool   `toml:"zstd"`
	LogLevel      string `toml:"log_level"`
	Watch         bool   `toml:"watch"`
}

func defaultConfig() config {
	return config{
		Backend:       "software",
		CreateMipmaps: true,
		Zstd:          true,
		LogLevel:      "info",
	}
}

// loadConfigFile decodes a TOML config over cfg. Keys absent from the file keep their current values.
//
// Parameters:
//   - path: the TOML file
//   - cfg: the config to update
//
// Returns:
//   - error: error if the file cannot be read or decoded
func loadConfigFile(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// parseArgs builds the config from the command line: defaults, then the -config file, then explicitly set flags.
//
// Parameters:
//   - args: the arguments after the program name
//
// Returns:
//   - config: the resolved config
//   - []string: the documents to load
//   - error: error if flags or the config file are invalid
func parseArgs(args []string) (config, []string, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("vkgltf", flag.ContinueOnError)

	configPath := fs.String("config", "", "TOML config file")
	flags := cfg
	fs.StringVar(&flags.Backend, "backend", cfg.Backend, "GPU backend: software or wgpu")
	fs.StringVar(&flags.CacheDir, "cache", cfg.CacheDir, "texture cache directory, empty to disable")
	fs.BoolVar(&flags.CreateMipmaps, "mips", cfg.CreateMipmaps, "generate full mip chains")
	fs.IntVar(&flags.Workers, "workers", cfg.Workers, "texture compression workers, 0 for one per CPU")
	fs.BoolVar(&flags.Zstd, "zstd", cfg.Zstd, "Zstandard supercompression of cached textures")
	fs.StringVar(&flags.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&flags.Watch, "watch", cfg.Watch, "re-import documents when they change")

	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}
	if *configPath != "" {
		if err := loadConfigFile(*configPath, &cfg); err != nil {
			return cfg, nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = flags.Backend
		case "cache":
			cfg.CacheDir = flags.CacheDir
		case "mips":
			cfg.CreateMipmaps = flags.CreateMipmaps
		case "workers":
			cfg.Workers = flags.Workers
		case "zstd":
			cfg.Zstd = flags.Zstd
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		case "watch":
			cfg.Watch = flags.Watch
		}
	})

	if fs.NArg() == 0 {
		return cfg, nil, fmt.Errorf("no input documents")
	}
	return cfg, fs.Args(), nil
}

// level maps the configured log level name to a slog level.
func (c config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
