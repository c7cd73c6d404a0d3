package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/opus-provision/internal/archive"
	"github.com/oshokin/opus-provision/internal/domain/source"
	"github.com/oshokin/opus-provision/internal/hasher"
)

const (
	// DefaultConfigFilename is the settings file looked up when no path is given.
	DefaultConfigFilename = "opus-provision.yaml"

	// DefaultSourceURL is the pinned upstream archive.
	DefaultSourceURL = "https://gitlab.xiph.org/xiph/opus/-/archive/v1.3.1/opus-v1.3.1.zip"
	// DefaultSourceDigest is the SHA-256 of DefaultSourceURL.
	DefaultSourceDigest = "c3060a34a1981d4b9c03fb1e505675c89b9e8b90926504f0d2f511ee725c3d36"
	// DefaultSourceAlgorithm is the algorithm DefaultSourceDigest was computed with.
	DefaultSourceAlgorithm = hasher.SHA256

	// DefaultBindingsFilename is the generated bindings file inside the output directory.
	DefaultBindingsFilename = "opus_bindings.go"
	// DefaultSourceDirName is the unpacked source tree inside the output directory.
	DefaultSourceDirName = "opus_sources"
	// DefaultHeader is the entry header relative to the artifact root.
	DefaultHeader = "include/opus/opus.h"
	// DefaultLibrary is the static library base name.
	DefaultLibrary = "opus"
	// DefaultUnpackHash is used to compare unpacked files with archive entries.
	DefaultUnpackHash = hasher.BLAKE3
	// DefaultPackage is the Go package name of generated files.
	DefaultPackage = "opus"
	// DefaultDirectivePrefix precedes every directive printed to stdout.
	DefaultDirectivePrefix = "opus-provision:"

	// DefaultBuilderCommand is the CMake executable.
	DefaultBuilderCommand = "cmake"
	// DefaultBuildType is passed as CMAKE_BUILD_TYPE.
	DefaultBuildType = "Release"

	// OutDirEnv is consulted when neither the flag nor the settings name an output directory.
	OutDirEnv = "OUT_DIR"

	// DefaultFilePermissions is the default file permission for settings files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// ErrOutDirRequired is returned when no output directory could be resolved.
	ErrOutDirRequired = errors.New("output directory must be provided (--out-dir, out_dir or $" + OutDirEnv + ")")
	// errInvalidName is returned when a file or library name contains path separators.
	errInvalidName = errors.New("must be a plain name")
	// errNegativeParallel is returned for builder.parallel < 0.
	errNegativeParallel = errors.New("builder parallelism must not be negative")
)

// Source pins the upstream archive.
type Source struct {
	// URL is the http(s) location of the archive.
	URL string `yaml:"url"`
	// Digest is the hex-encoded expected digest.
	Digest string `yaml:"digest"`
	// Algorithm names the digest function (sha256, sha512, blake3).
	Algorithm string `yaml:"algorithm"`
}

// Builder configures the CMake native builder.
type Builder struct {
	// Command is the cmake executable name or path.
	Command string `yaml:"command"`
	// BuildType is passed as CMAKE_BUILD_TYPE and --config.
	BuildType string `yaml:"build_type"`
	// Parallel is passed as --parallel when positive.
	Parallel int `yaml:"parallel"`
	// Defines are extra -D cache entries.
	Defines map[string]string `yaml:"defines"`
}

// Bindgen configures the binding generator.
type Bindgen struct {
	// Command is the external generator argv; "{header}" is replaced by the header path.
	// When empty, a cgo preamble is generated instead.
	Command []string `yaml:"command"`
	// Package is the Go package name for the generated preamble.
	Package string `yaml:"package"`
}

// Cgo configures the optional cgo flags file.
type Cgo struct {
	// File is the output path; empty disables the file. Relative paths are resolved against the working directory.
	File string `yaml:"file"`
	// Package is the Go package name of the flags file.
	Package string `yaml:"package"`
}

// Config holds every setting of a pipeline run.
type Config struct {
	// Source is the pinned upstream archive.
	Source Source `yaml:"source"`
	// OutDir is the root of the cache archive, source tree, build and bindings.
	OutDir string `yaml:"out_dir"`
	// SourceDir is the name of the unpacked source tree inside OutDir.
	SourceDir string `yaml:"source_dir"`
	// BindingsFile is the name of the generated bindings inside OutDir.
	BindingsFile string `yaml:"bindings_file"`
	// Header is the entry header relative to the artifact root.
	Header string `yaml:"header"`
	// Library is the static library base name.
	Library string `yaml:"library"`
	// UnpackHash names the digest used to compare unpacked files.
	UnpackHash string `yaml:"unpack_hash"`
	// Builder configures the native build.
	Builder Builder `yaml:"builder"`
	// Bindgen configures binding generation.
	Bindgen Bindgen `yaml:"bindgen"`
	// Cgo configures the cgo flags file.
	Cgo Cgo `yaml:"cgo"`
	// DirectivePrefix precedes every directive printed to stdout.
	DirectivePrefix string `yaml:"directive_prefix"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns a configuration populated with the compiled-in values.
func Default() *Config {
	cfg := new(Config)
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from path and validates it.
// A missing file at the default location is not an error; defaults are returned instead.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg := Default()

		return cfg, Validate(cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks the settings.
// The output directory is not required here; see RequireOutDir.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	pinned, err := cfg.Pinned()
	if err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	if _, err = archive.DetectFormat(pinned.ArchiveName()); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	if _, err = hasher.ParseAlgorithm(cfg.UnpackHash); err != nil {
		return fmt.Errorf("invalid unpack_hash: %w", err)
	}

	for key, value := range map[string]string{
		"source_dir":    cfg.SourceDir,
		"bindings_file": cfg.BindingsFile,
		"library":       cfg.Library,
	} {
		if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
			return fmt.Errorf("%s %q: %w", key, value, errInvalidName)
		}
	}

	if cfg.Builder.Parallel < 0 {
		return errNegativeParallel
	}

	return nil
}

// Resolve returns validated settings for a run: a copy of cfg, or the file at
// path when cfg is nil. A non-empty outDir overrides out_dir, and the output
// directory is resolved with RequireOutDir.
func Resolve(path string, cfg *Config, outDir string) (*Config, error) {
	if cfg == nil {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	} else {
		copied := *cfg
		cfg = &copied
	}

	if outDir != "" {
		cfg.OutDir = outDir
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if err := cfg.RequireOutDir(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireOutDir resolves the output directory to an absolute path.
func (c *Config) RequireOutDir() error {
	if c.OutDir == "" {
		c.OutDir = os.Getenv(OutDirEnv)
	}

	if c.OutDir == "" {
		return ErrOutDirRequired
	}

	abs, err := filepath.Abs(c.OutDir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}

	c.OutDir = abs

	return nil
}

// Pinned builds the immutable pinned source from the settings.
func (c *Config) Pinned() (source.Pinned, error) {
	algorithm, err := hasher.ParseAlgorithm(c.Source.Algorithm)
	if err != nil {
		return source.Pinned{}, err
	}

	return source.New(c.Source.URL, c.Source.Digest, algorithm)
}

// UnpackAlgorithm returns the parsed unpack_hash. Call after Validate.
func (c *Config) UnpackAlgorithm() hasher.Algorithm {
	algorithm, err := hasher.ParseAlgorithm(c.UnpackHash)
	if err != nil {
		return DefaultUnpackHash
	}

	return algorithm
}

// SourcePath is the unpacked source tree.
func (c *Config) SourcePath() string {
	return filepath.Join(c.OutDir, c.SourceDir)
}

// BindingsPath is the generated bindings file.
func (c *Config) BindingsPath() string {
	return filepath.Join(c.OutDir, c.BindingsFile)
}

//nolint:cyclop // Flat list of defaults.
func applyDefaults(cfg *Config) {
	if cfg.Source.URL == "" {
		cfg.Source.URL = DefaultSourceURL

		// A digest without its URL is meaningless.
		if cfg.Source.Digest == "" {
			cfg.Source.Digest = DefaultSourceDigest
			cfg.Source.Algorithm = DefaultSourceAlgorithm.String()
		}
	}

	if cfg.Source.Algorithm == "" {
		cfg.Source.Algorithm = DefaultSourceAlgorithm.String()
	}

	if cfg.SourceDir == "" {
		cfg.SourceDir = DefaultSourceDirName
	}

	if cfg.BindingsFile == "" {
		cfg.BindingsFile = DefaultBindingsFilename
	}

	if cfg.Header == "" {
		cfg.Header = DefaultHeader
	}

	if cfg.Library == "" {
		cfg.Library = DefaultLibrary
	}

	if cfg.UnpackHash == "" {
		cfg.UnpackHash = DefaultUnpackHash.String()
	}

	if cfg.Builder.Command == "" {
		cfg.Builder.Command = DefaultBuilderCommand
	}

	if cfg.Builder.BuildType == "" {
		cfg.Builder.BuildType = DefaultBuildType
	}

	if cfg.Bindgen.Package == "" {
		cfg.Bindgen.Package = DefaultPackage
	}

	if cfg.Cgo.Package == "" {
		cfg.Cgo.Package = cfg.Bindgen.Package
	}

	if cfg.DirectivePrefix == "" {
		cfg.DirectivePrefix = DefaultDirectivePrefix
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
