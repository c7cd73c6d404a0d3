package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/opus-provision/internal/archive"
	"github.com/oshokin/opus-provision/internal/archive/archivetest"
	"github.com/oshokin/opus-provision/internal/config"
	"github.com/oshokin/opus-provision/internal/repository/stamp"
)

var (
	errBuilderFailed   = errors.New("compiler exploded")
	errGeneratorFailed = errors.New("header unparsable")
)

// fakeBuilder installs a header and a static library under root.
type fakeBuilder struct {
	root  string
	err   error
	calls int
}

func (b *fakeBuilder) Build(_ context.Context, sourceDir string) (string, error) {
	b.calls++

	if b.err != nil {
		return "", b.err
	}

	if _, err := os.Stat(filepath.Join(sourceDir, "x.txt")); err != nil {
		return "", err
	}

	header := filepath.Join(b.root, "include", "opus", "opus.h")
	if err := os.MkdirAll(filepath.Dir(header), 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(header, []byte("int opus_ok(void);\n"), 0o600); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Join(b.root, "lib"), 0o755); err != nil {
		return "", err
	}

	return b.root, os.WriteFile(filepath.Join(b.root, "lib", "libopus.a"), []byte("!<arch>\n"), 0o600)
}

// fakeGenerator echoes a fixed source.
type fakeGenerator struct {
	err error
}

func (g *fakeGenerator) Generate(_ context.Context, headerPath string) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}

	return []byte("package opus\n\n// from " + filepath.Base(headerPath) + "\n"), nil
}

type fixture struct {
	outDir  string
	stdout  *bytes.Buffer
	builder *fakeBuilder
	opts    *Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	data, err := archivetest.Build(archive.FormatZip, []archivetest.File{
		{Name: "fixture-v1/"},
		{Name: "fixture-v1/x.txt", Body: "hello"},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	sum := sha256.Sum256(data)
	cfg := &config.Config{
		Source: config.Source{
			URL:       srv.URL + "/fixture-v1.zip",
			Digest:    hex.EncodeToString(sum[:]),
			Algorithm: "sha256",
		},
	}

	f := &fixture{
		outDir:  t.TempDir(),
		stdout:  new(bytes.Buffer),
		builder: &fakeBuilder{root: t.TempDir()},
	}

	f.opts = &Options{
		Config:     cfg,
		OutDir:     f.outDir,
		Stdout:     f.stdout,
		HTTPClient: srv.Client(),
		Builder:    f.builder,
		Generator:  new(fakeGenerator),
	}

	return f
}

// TestRun_Succeeds checks outputs, directives and the stamp of a full run.
func TestRun_Succeeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cgoFile := filepath.Join(t.TempDir(), "cgo_flags.go")
	f.opts.Config.Cgo.File = cgoFile

	report, err := Run(context.Background(), f.opts)
	require.NoError(t, err)

	archivePath := filepath.Join(f.outDir, "fixture-v1.zip")
	sourceFile := filepath.Join(f.outDir, config.DefaultSourceDirName, "x.txt")

	require.Equal(t, strings.Join([]string{
		"opus-provision:rerun-if-changed=" + archivePath,
		"opus-provision:rerun-if-changed=" + sourceFile,
		"opus-provision:link-search=native=" + filepath.Join(f.builder.root, "lib"),
		"opus-provision:link-lib=static=opus",
	}, "\n")+"\n", f.stdout.String())

	bindings, err := os.ReadFile(filepath.Join(f.outDir, config.DefaultBindingsFilename))
	require.NoError(t, err)
	require.Equal(t, "package opus\n\n// from opus.h\n", string(bindings))

	flags, err := os.ReadFile(cgoFile)
	require.NoError(t, err)
	require.Contains(t, string(flags), "-lopus")

	require.NoFileExists(t, filepath.Join(f.outDir, MarkerFilename))
	require.Equal(t, 1, report.Unpack.Created)
	require.Len(t, report.Directives, 4)

	saved, err := stamp.NewFileRepository(f.outDir).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, report.Stamp.Digest, saved.Digest)
	require.Equal(t, f.builder.root, saved.ArtifactRoot)
	require.Len(t, saved.Watched, 2)

	sum := sha256.Sum256(bindings)
	require.Equal(t, hex.EncodeToString(sum[:]), saved.BindingsSHA256)

	// The caller's configuration is not modified.
	require.Empty(t, f.opts.Config.OutDir)
}

// TestRun_StageFailures wraps each failure with its stage and leaves no stamp.
func TestRun_StageFailures(t *testing.T) {
	t.Parallel()

	t.Run("build", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.builder.err = errBuilderFailed

		_, err := Run(context.Background(), f.opts)
		require.ErrorIs(t, err, errBuilderFailed)
		require.True(t, strings.HasPrefix(err.Error(), "build: "), err.Error())
		require.NoFileExists(t, filepath.Join(f.outDir, config.DefaultBindingsFilename))
		require.NoFileExists(t, filepath.Join(f.outDir, stamp.Filename))
		require.NoFileExists(t, filepath.Join(f.outDir, MarkerFilename))
	})

	t.Run("generate bindings", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.opts.Generator = &fakeGenerator{err: errGeneratorFailed}

		_, err := Run(context.Background(), f.opts)
		require.ErrorIs(t, err, errGeneratorFailed)
		require.True(t, strings.HasPrefix(err.Error(), "generate bindings: "), err.Error())
		require.NotContains(t, f.stdout.String(), "link-lib")
	})

	t.Run("fetch", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.opts.Config.Source.Digest = strings.Repeat("0", 64)

		_, err := Run(context.Background(), f.opts)
		require.Error(t, err)
		require.True(t, strings.HasPrefix(err.Error(), "fetch: "), err.Error())
		require.Zero(t, f.builder.calls)
	})
}

// TestRun_RemovesStampOfFailedRun does not let an old stamp survive a failure.
func TestRun_RemovesStampOfFailedRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := Run(context.Background(), f.opts)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(f.outDir, stamp.Filename))

	f.builder.err = errBuilderFailed

	_, err = Run(context.Background(), f.opts)
	require.ErrorIs(t, err, errBuilderFailed)
	require.NoFileExists(t, filepath.Join(f.outDir, stamp.Filename))
}

// TestRun_UnknownLogLevel fails before touching the output directory.
func TestRun_UnknownLogLevel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.opts.LogLevel = "chatty"

	_, err := Run(context.Background(), f.opts)
	require.ErrorIs(t, err, errUnknownLogLevel)
	require.NoFileExists(t, filepath.Join(f.outDir, MarkerFilename))
}

// TestAcquireMarker refuses a live owner and clears dead ones.
func TestAcquireMarker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, MarkerFilename)

	for _, stale := range []string{
		"1073741824", // Above the Linux pid_max ceiling, so no such process exists.
		strconv.Itoa(os.Getpid()),
		"garbage",
	} {
		require.NoError(t, os.WriteFile(path, []byte(stale), 0o600))

		m, err := acquireMarker(context.Background(), dir)
		require.NoError(t, err, stale)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, strconv.Itoa(os.Getpid()), string(data))

		m.release(context.Background())
		require.NoFileExists(t, path)
	}
}

// TestAcquireMarker_LiveOwner fails while another process holds the marker.
func TestAcquireMarker_LiveOwner(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("sleep is not available on Windows")
	}

	sleeper := exec.Command("sleep", "30")
	require.NoError(t, sleeper.Start())

	t.Cleanup(func() {
		_ = sleeper.Process.Kill()
		_ = sleeper.Wait()
	})

	dir := t.TempDir()
	path := filepath.Join(dir, MarkerFilename)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(sleeper.Process.Pid)), 0o600))

	_, err := acquireMarker(context.Background(), dir)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.FileExists(t, path)
}
