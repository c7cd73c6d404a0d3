package status

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/opus-provision/internal/config"
	"github.com/oshokin/opus-provision/internal/repository/stamp"
)

const testURL = "https://example.test/fixture-v1.zip"

var testDigest = strings.Repeat("ab", 32)

// writeRun fakes the outputs of a completed run in outDir.
func writeRun(t *testing.T, outDir string) *config.Config {
	t.Helper()

	archivePath := filepath.Join(outDir, "fixture-v1.zip")
	bindings := filepath.Join(outDir, config.DefaultBindingsFilename)
	content := []byte("package opus\n")

	require.NoError(t, os.WriteFile(archivePath, []byte("zip"), 0o600))
	require.NoError(t, os.WriteFile(bindings, content, 0o600))

	watched, err := stamp.Snapshot([]string{archivePath})
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	s := &stamp.Stamp{
		SourceURL:      testURL,
		Digest:         testDigest,
		Algorithm:      "sha256",
		Archive:        archivePath,
		Bindings:       bindings,
		BindingsSHA256: hex.EncodeToString(sum[:]),
		Watched:        watched,
		CompletedAt:    time.Now().UTC(),
	}
	require.NoError(t, stamp.NewFileRepository(outDir).Save(context.Background(), s))

	return &config.Config{
		Source: config.Source{URL: testURL, Digest: testDigest, Algorithm: "sha256"},
		OutDir: outDir,
	}
}

// TestCheck_UpToDate reports nothing after an untouched run.
func TestCheck_UpToDate(t *testing.T) {
	t.Parallel()

	cfg := writeRun(t, t.TempDir())

	report, err := Check(context.Background(), &Options{Config: cfg})
	require.NoError(t, err)
	require.False(t, report.Stale(), report.Reasons)
	require.NotNil(t, report.Stamp)
}

// TestCheck_Stale covers every reason for a re-run.
func TestCheck_Stale(t *testing.T) {
	t.Parallel()

	t.Run("no stamp", func(t *testing.T) {
		t.Parallel()

		report, err := Check(context.Background(), &Options{
			Config: &config.Config{Source: config.Source{URL: testURL, Digest: testDigest}},
			OutDir: t.TempDir(),
		})
		require.NoError(t, err)
		require.True(t, report.Stale())
		require.Nil(t, report.Stamp)
	})

	t.Run("pin changed", func(t *testing.T) {
		t.Parallel()

		cfg := writeRun(t, t.TempDir())
		cfg.Source.Digest = strings.Repeat("cd", 32)

		report, err := Check(context.Background(), &Options{Config: cfg})
		require.NoError(t, err)
		require.Len(t, report.Reasons, 1)
		require.Contains(t, report.Reasons[0], "pinned source changed")
	})

	t.Run("watched file removed", func(t *testing.T) {
		t.Parallel()

		outDir := t.TempDir()
		cfg := writeRun(t, outDir)
		require.NoError(t, os.Remove(filepath.Join(outDir, "fixture-v1.zip")))

		report, err := Check(context.Background(), &Options{Config: cfg})
		require.NoError(t, err)
		require.Len(t, report.Reasons, 1)
		require.Contains(t, report.Reasons[0], "fixture-v1.zip")
	})

	t.Run("bindings edited", func(t *testing.T) {
		t.Parallel()

		outDir := t.TempDir()
		cfg := writeRun(t, outDir)
		require.NoError(t, os.WriteFile(filepath.Join(outDir, config.DefaultBindingsFilename), []byte("package x\n"), 0o600))

		report, err := Check(context.Background(), &Options{Config: cfg})
		require.NoError(t, err)
		require.Len(t, report.Reasons, 1)
		require.Contains(t, report.Reasons[0], "bindings modified")
	})
}
