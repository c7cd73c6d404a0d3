package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/opus-provision/internal/config"
	"github.com/oshokin/opus-provision/internal/hasher"
	"github.com/oshokin/opus-provision/internal/logger"
	"github.com/oshokin/opus-provision/internal/repository/stamp"
)

// Options are inputs accepted by the status entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Config is used instead of loading ConfigPath when set.
	Config *config.Config
	// OutDir overrides out_dir from the settings.
	OutDir string
}

// Report is the outcome of a freshness check.
type Report struct {
	// Stamp is the last recorded run, nil when none exists.
	Stamp *stamp.Stamp
	// Reasons lists why a re-run is needed. Empty means up to date.
	Reasons []string
}

// Stale reports whether the pipeline must run again.
func (r *Report) Stale() bool {
	return len(r.Reasons) > 0
}

// Check compares the settings and the files on disk with the stamp.
func Check(ctx context.Context, opts *Options) (*Report, error) {
	ctx = logger.WithName(ctx, "status")

	cfg, err := config.Resolve(opts.ConfigPath, opts.Config, opts.OutDir)
	if err != nil {
		return nil, err
	}

	src, err := cfg.Pinned()
	if err != nil {
		return nil, err
	}

	repo := stamp.NewFileRepository(cfg.OutDir)

	s, err := repo.Load(ctx)
	if errors.Is(err, stamp.ErrNotFound) {
		return &Report{Reasons: []string{"no completed run recorded in " + cfg.OutDir}}, nil
	}

	if err != nil {
		return nil, err
	}

	report := &Report{Stamp: s}

	if s.SourceURL != src.URL() || s.Digest != src.HexDigest() || s.Algorithm != src.Algorithm().String() {
		report.Reasons = append(report.Reasons, fmt.Sprintf("pinned source changed: %s@%s -> %s@%s",
			s.SourceURL, s.Digest, src.URL(), src.HexDigest()))
	}

	if s.Bindings != cfg.BindingsPath() {
		report.Reasons = append(report.Reasons, "bindings path changed: "+s.Bindings+" -> "+cfg.BindingsPath())
	}

	for _, watched := range s.Watched {
		if err = watched.Check(); err != nil {
			report.Reasons = append(report.Reasons, err.Error())
		}
	}

	sum, err := hasher.SumFile(s.Bindings, hasher.SHA256)
	switch {
	case err != nil:
		report.Reasons = append(report.Reasons, fmt.Sprintf("bindings unreadable: %v", err))
	case hasher.Hex(sum) != s.BindingsSHA256:
		report.Reasons = append(report.Reasons, "bindings modified: "+s.Bindings)
	}

	logger.InfoKV(ctx, "Status checked", "stale", report.Stale(), "reasons", len(report.Reasons))

	return report, nil
}
