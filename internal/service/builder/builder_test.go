package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var errCompilerExploded = errors.New("compiler exploded")

// fakeBuilder returns canned results and records the source directory.
type fakeBuilder struct {
	root   string
	err    error
	called string
}

func (f *fakeBuilder) Build(_ context.Context, sourceDir string) (string, error) {
	f.called = sourceDir

	return f.root, f.err
}

// TestBuild_ReturnsArtifact captures the reported root.
func TestBuild_ReturnsArtifact(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	out := t.TempDir()
	fake := &fakeBuilder{root: out}

	artifact, err := Build(context.Background(), fake, src)
	require.NoError(t, err)
	require.Equal(t, src, fake.called)
	require.Equal(t, out, artifact.Root)
	require.Equal(t, filepath.Join(out, "lib"), artifact.LibDir())
	require.Equal(t, filepath.Join(out, "include"), artifact.IncludeDir())
}

// TestBuild_WrapsFailure keeps the builder error reachable.
func TestBuild_WrapsFailure(t *testing.T) {
	t.Parallel()

	_, err := Build(context.Background(), &fakeBuilder{err: errCompilerExploded}, t.TempDir())
	require.ErrorIs(t, err, errCompilerExploded)
	require.Contains(t, err.Error(), "native builder")
}

// TestBuild_Preconditions rejects missing trees and empty results.
func TestBuild_Preconditions(t *testing.T) {
	t.Parallel()

	_, err := Build(context.Background(), &fakeBuilder{root: "/x"}, filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err = Build(context.Background(), &fakeBuilder{root: "/x"}, file)
	require.ErrorIs(t, err, errNotADirectory)

	_, err = Build(context.Background(), &fakeBuilder{}, t.TempDir())
	require.ErrorIs(t, err, ErrNoArtifact)
}
