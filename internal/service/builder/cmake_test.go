package builder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCMake_Commands checks configure and install arguments.
func TestCMake_Commands(t *testing.T) {
	t.Parallel()

	c := &CMake{
		Command:    "cmake",
		BuildDir:   "/out/build",
		InstallDir: "/out",
		BuildType:  "Release",
		Parallel:   8,
		Defines:    map[string]string{"OPUS_BUILD_TESTING": "OFF", "BUILD_SHARED_LIBS": "OFF"},
	}

	got := c.commands("/out/opus_sources")
	require.Equal(t, [][]string{
		{
			"-S", "/out/opus_sources",
			"-B", "/out/build",
			"-DCMAKE_INSTALL_PREFIX=/out",
			"-DCMAKE_INSTALL_LIBDIR=lib",
			"-DCMAKE_BUILD_TYPE=Release",
			"-DBUILD_SHARED_LIBS=OFF",
			"-DOPUS_BUILD_TESTING=OFF",
		},
		{"--build", "/out/build", "--config", "Release", "--target", "install", "--parallel", "8"},
	}, got)
}

// writeScript installs an executable shell script standing in for cmake.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell stand-in requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "cmake")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)) //nolint:gosec // Test script must be executable.

	return path
}

// TestCMake_Build runs a stand-in that records its calls and installs a library.
//
// Tests that exec freshly written scripts stay sequential to avoid ETXTBSY.
func TestCMake_Build(t *testing.T) {
	out := t.TempDir()
	log := filepath.Join(out, "calls.log")
	script := writeScript(t, `
echo "$@" >> "`+log+`"
if [ "$1" = "--build" ]; then
  mkdir -p "`+out+`/lib" && : > "`+out+`/lib/libopus.a"
fi
`)

	c := &CMake{Command: script, BuildDir: filepath.Join(out, "build"), InstallDir: out, BuildType: "Release"}

	root, err := c.Build(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, out, root)
	require.FileExists(t, filepath.Join(out, "lib", "libopus.a"))
	require.DirExists(t, filepath.Join(out, "build"))

	calls, err := os.ReadFile(log)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(calls)), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "-S "))
	require.True(t, strings.HasPrefix(lines[1], "--build "))
}

// TestCMake_BuildFailure includes the tool output in the error.
func TestCMake_BuildFailure(t *testing.T) {
	out := t.TempDir()
	script := writeScript(t, "echo 'CMake Error: no CMakeLists.txt' >&2\nexit 1\n")

	c := &CMake{Command: script, BuildDir: filepath.Join(out, "build"), InstallDir: out, BuildType: "Release"}

	_, err := c.Build(context.Background(), t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no CMakeLists.txt")
}
