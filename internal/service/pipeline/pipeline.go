package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/opus-provision/internal/config"
	"github.com/oshokin/opus-provision/internal/directive"
	"github.com/oshokin/opus-provision/internal/domain/source"
	"github.com/oshokin/opus-provision/internal/hasher"
	"github.com/oshokin/opus-provision/internal/logger"
	"github.com/oshokin/opus-provision/internal/repository/stamp"
	"github.com/oshokin/opus-provision/internal/service/bindgen"
	"github.com/oshokin/opus-provision/internal/service/builder"
	"github.com/oshokin/opus-provision/internal/service/fetcher"
	"github.com/oshokin/opus-provision/internal/service/unpacker"
	"github.com/oshokin/opus-provision/internal/version"
)

// buildDirName is the CMake build tree inside the output directory.
const buildDirName = "build"

var errUnknownLogLevel = errors.New("unknown log level")

// Options are inputs accepted by the pipeline entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Config is used instead of loading ConfigPath when set.
	Config *config.Config
	// OutDir overrides out_dir from the settings.
	OutDir string
	// LogLevel overrides log_level from the settings.
	LogLevel string
	// Stdout receives directives. Defaults to os.Stdout.
	Stdout io.Writer
	// HTTPClient is used by the fetcher. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Builder replaces the CMake builder configured in the settings.
	Builder builder.NativeBuilder
	// Generator replaces the binding generator configured in the settings.
	Generator bindgen.Generator
}

// Report summarizes a successful run.
type Report struct {
	// Fetch is the fetcher outcome.
	Fetch fetcher.Result
	// Unpack counts the unpacked entries.
	Unpack unpacker.Stats
	// Artifact is the built library location.
	Artifact builder.Artifact
	// Directives lists everything announced on stdout.
	Directives []directive.Directive
	// Stamp is the provenance record that was saved.
	Stamp *stamp.Stamp
}

// runner holds the state of a single pipeline execution.
type runner struct {
	cfg       *config.Config
	src       source.Pinned
	emitter   *directive.Emitter
	fetcher   *fetcher.Fetcher
	builder   builder.NativeBuilder
	generator bindgen.Generator
	stamps    *stamp.FileRepository
	marker    *marker
}

// Run executes every stage and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) (*Report, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "opus-provision")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return nil, err
	}

	defer r.marker.release(ctx)

	ctx = logger.WithKV(ctx, "out_dir", r.cfg.OutDir)

	report, err := r.run(ctx)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Pipeline completed",
		"artifact", report.Artifact.Root,
		"bindings", r.cfg.BindingsPath(),
		"files_written", report.Unpack.Written())

	return report, nil
}

// newRunner loads settings, prepares the output directory and takes the run marker.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	cfg, err := config.Resolve(opts.ConfigPath, opts.Config, opts.OutDir)
	if err != nil {
		return nil, err
	}

	if err = applyLogLevel(opts.LogLevel, cfg.LogLevel); err != nil {
		return nil, err
	}

	src, err := cfg.Pinned()
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	r := &runner{
		cfg:       cfg,
		src:       src,
		emitter:   directive.NewEmitter(stdout, cfg.DirectivePrefix),
		fetcher:   fetcher.New(fetcher.WithHTTPClient(opts.HTTPClient)),
		builder:   opts.Builder,
		generator: opts.Generator,
		stamps:    stamp.NewFileRepository(cfg.OutDir),
	}

	if r.builder == nil {
		r.builder = newCMake(cfg)
	}

	r.marker, err = acquireMarker(ctx, cfg.OutDir)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// run executes the stages in order; the first failure aborts the run.
func (r *runner) run(ctx context.Context) (*Report, error) {
	report := new(Report)

	// A failed run must not leave a stamp claiming the outputs are current.
	if err := r.stamps.Remove(ctx); err != nil {
		return nil, err
	}

	archivePath := filepath.Join(r.cfg.OutDir, r.src.ArchiveName())
	r.emitter.RerunIfChanged(archivePath)

	var err error

	report.Fetch, err = r.fetcher.Fetch(logger.WithName(ctx, "fetch"), r.src, archivePath)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	u := unpacker.New(
		unpacker.WithAlgorithm(r.cfg.UnpackAlgorithm()),
		unpacker.WithWatcher(r.emitter),
	)

	report.Unpack, err = u.Unpack(logger.WithName(ctx, "unpack"), archivePath, r.cfg.SourcePath())
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}

	report.Artifact, err = builder.Build(logger.WithName(ctx, "build"), r.builder, r.cfg.SourcePath())
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	generator := r.generator
	if generator == nil {
		generator = newGenerator(r.cfg, report.Artifact)
	}

	headerPath := filepath.Join(report.Artifact.Root, filepath.FromSlash(r.cfg.Header))

	bindingsSum, err := bindgen.GenerateBindings(logger.WithName(ctx, "bindgen"),
		generator, headerPath, r.cfg.BindingsPath())
	if err != nil {
		return nil, fmt.Errorf("generate bindings: %w", err)
	}

	if err = r.emit(report.Artifact); err != nil {
		return nil, fmt.Errorf("emit directives: %w", err)
	}

	report.Directives = r.emitter.Directives()

	report.Stamp, err = r.saveStamp(ctx, archivePath, report.Artifact, bindingsSum)
	if err != nil {
		return nil, err
	}

	return report, nil
}

// emit announces the artifact and writes the optional cgo flags file.
func (r *runner) emit(artifact builder.Artifact) error {
	r.emitter.Link(artifact.Root, r.cfg.Library)

	if r.cfg.Cgo.File != "" {
		flags := directive.CgoFlags{
			Package:      r.cfg.Cgo.Package,
			ArtifactRoot: artifact.Root,
			Library:      r.cfg.Library,
		}

		if err := flags.Write(r.cfg.Cgo.File); err != nil {
			return err
		}
	}

	return r.emitter.Err()
}

func (r *runner) saveStamp(ctx context.Context, archivePath string, artifact builder.Artifact, bindingsSum []byte) (*stamp.Stamp, error) {
	watched, err := stamp.Snapshot(r.emitter.Watched())
	if err != nil {
		return nil, fmt.Errorf("stamp: %w", err)
	}

	actor, err := stamp.DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Recording partial actor in stamp", "error", err)
	}

	s := &stamp.Stamp{
		Version:        version.Short(),
		SourceURL:      r.src.URL(),
		Digest:         r.src.HexDigest(),
		Algorithm:      r.src.Algorithm().String(),
		Archive:        archivePath,
		SourceDir:      r.cfg.SourcePath(),
		ArtifactRoot:   artifact.Root,
		Bindings:       r.cfg.BindingsPath(),
		BindingsSHA256: hasher.Hex(bindingsSum),
		Watched:        watched,
		Actor:          actor,
		CompletedAt:    time.Now().UTC(),
	}

	if err = r.stamps.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("stamp: %w", err)
	}

	return s, nil
}

// applyLogLevel sets the global level from the flag, falling back to the settings.
func applyLogLevel(flagLevel, configLevel string) error {
	level := flagLevel
	if level == "" {
		level = configLevel
	}

	if level == "" {
		return nil
	}

	parsed, ok := logger.ParseLogLevel(level)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, level)
	}

	logger.SetLevel(parsed)

	return nil
}

func newCMake(cfg *config.Config) *builder.CMake {
	return &builder.CMake{
		Command:    cfg.Builder.Command,
		BuildDir:   filepath.Join(cfg.OutDir, buildDirName),
		InstallDir: cfg.OutDir,
		BuildType:  cfg.Builder.BuildType,
		Parallel:   cfg.Builder.Parallel,
		Defines:    cfg.Builder.Defines,
	}
}

func newGenerator(cfg *config.Config, artifact builder.Artifact) bindgen.Generator {
	if len(cfg.Bindgen.Command) > 0 {
		return &bindgen.CommandGenerator{Args: cfg.Bindgen.Command}
	}

	return &bindgen.PreambleGenerator{
		Package:    cfg.Bindgen.Package,
		IncludeDir: artifact.IncludeDir(),
	}
}
