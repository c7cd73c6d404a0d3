package integration

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/opus-provision/internal/archive"
	"github.com/oshokin/opus-provision/internal/archive/archivetest"
	"github.com/oshokin/opus-provision/internal/config"
	"github.com/oshokin/opus-provision/internal/service/pipeline"
)

// fixtureServer serves a swappable archive and counts requests.
type fixtureServer struct {
	*httptest.Server

	body     atomic.Value
	requests atomic.Int32
}

func startFixtureServer(t *testing.T, body []byte) *fixtureServer {
	t.Helper()

	s := new(fixtureServer)
	s.body.Store(body)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.requests.Add(1)
		_, _ = w.Write(s.body.Load().([]byte))
	}))
	t.Cleanup(s.Close)

	return s
}

// buildFixture renders a zip with a synthetic root folder and the given files.
func buildFixture(t *testing.T, files map[string]string) []byte {
	t.Helper()

	entries := []archivetest.File{{Name: "fixture-v1/"}}
	for name, body := range files {
		entries = append(entries, archivetest.File{Name: "fixture-v1/" + name, Body: body})
	}

	data, err := archivetest.Build(archive.FormatZip, entries)
	require.NoError(t, err)

	return data
}

// installBuilder stands in for CMake: it installs a header and a library.
type installBuilder struct {
	root  string
	calls atomic.Int32
}

func (b *installBuilder) Build(_ context.Context, _ string) (string, error) {
	b.calls.Add(1)

	header := filepath.Join(b.root, "include", "opus", "opus.h")
	if err := os.MkdirAll(filepath.Dir(header), 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(header, []byte("int opus_ok(void);\n"), 0o600); err != nil {
		return "", err
	}

	return b.root, os.MkdirAll(filepath.Join(b.root, "lib"), 0o755)
}

// env is one isolated pipeline setup.
type env struct {
	server  *fixtureServer
	builder *installBuilder
	outDir  string
	cfgPath string
	stdout  *bytes.Buffer
}

func newEnv(t *testing.T, fixture []byte) *env {
	t.Helper()

	e := &env{
		server:  startFixtureServer(t, fixture),
		builder: &installBuilder{root: t.TempDir()},
		outDir:  t.TempDir(),
		cfgPath: filepath.Join(t.TempDir(), config.DefaultConfigFilename),
		stdout:  new(bytes.Buffer),
	}

	sum := sha256.Sum256(fixture)

	require.NoError(t, config.Save(e.cfgPath, &config.Config{
		Source: config.Source{
			URL:       e.server.URL + "/fixture-v1.zip",
			Digest:    hex.EncodeToString(sum[:]),
			Algorithm: "sha256",
		},
		OutDir:   e.outDir,
		LogLevel: "warn",
	}))

	return e
}

func (e *env) run(ctx context.Context) (*pipeline.Report, error) {
	e.stdout.Reset()

	return pipeline.Run(ctx, &pipeline.Options{
		ConfigPath: e.cfgPath,
		Stdout:     e.stdout,
		HTTPClient: e.server.Client(),
		Builder:    e.builder,
	})
}

func (e *env) sourcePath(name string) string {
	return filepath.Join(e.outDir, config.DefaultSourceDirName, name)
}
