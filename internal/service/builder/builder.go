package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/opus-provision/internal/logger"
)

var (
	// ErrNoArtifact is returned when a builder reports success without a path.
	ErrNoArtifact = errors.New("builder reported no artifact path")
	// errNotADirectory is returned when the source tree path is a file.
	errNotADirectory = errors.New("not a directory")
)

// NativeBuilder turns a source tree into an installed artifact root.
type NativeBuilder interface {
	// Build compiles sourceDir and returns the directory whose lib/
	// subdirectory holds the static library.
	Build(ctx context.Context, sourceDir string) (string, error)
}

// Artifact is the builder output.
type Artifact struct {
	// Root holds include/ and lib/.
	Root string
}

// LibDir is the conventional static library directory.
func (a Artifact) LibDir() string {
	return filepath.Join(a.Root, "lib")
}

// IncludeDir is the conventional header directory.
func (a Artifact) IncludeDir() string {
	return filepath.Join(a.Root, "include")
}

// Build invokes b against sourceDir. Builder failures are returned wrapped,
// never interpreted.
func Build(ctx context.Context, b NativeBuilder, sourceDir string) (Artifact, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return Artifact{}, fmt.Errorf("source tree: %w", err)
	}

	if !info.IsDir() {
		return Artifact{}, fmt.Errorf("source tree %s: %w", sourceDir, errNotADirectory)
	}

	logger.InfoKV(ctx, "Building native library", "source", sourceDir)

	root, err := b.Build(ctx, sourceDir)
	if err != nil {
		return Artifact{}, fmt.Errorf("native builder: %w", err)
	}

	if root == "" {
		return Artifact{}, ErrNoArtifact
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return Artifact{}, fmt.Errorf("resolve artifact root: %w", err)
	}

	logger.InfoKV(ctx, "Native library built", "artifact_root", root)

	return Artifact{Root: root}, nil
}
