package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/oshokin/opus-provision/internal/logger"
)

// outputTail is how much tool output is kept in an error.
const outputTail = 4096

// CMake configures, builds and installs a CMake project.
type CMake struct {
	// Command is the cmake executable.
	Command string
	// BuildDir holds the CMake cache and object files.
	BuildDir string
	// InstallDir is the install prefix and the returned artifact root.
	InstallDir string
	// BuildType is CMAKE_BUILD_TYPE and the multi-config --config value.
	BuildType string
	// Parallel is passed as --parallel when positive.
	Parallel int
	// Defines are extra -D cache entries.
	Defines map[string]string
}

// Build implements NativeBuilder.
func (c *CMake) Build(ctx context.Context, sourceDir string) (string, error) {
	if err := os.MkdirAll(c.BuildDir, 0o755); err != nil {
		return "", fmt.Errorf("create build directory: %w", err)
	}

	for _, args := range c.commands(sourceDir) {
		if err := c.run(ctx, args); err != nil {
			return "", err
		}
	}

	return c.InstallDir, nil
}

// commands returns the configure and build-install invocations.
func (c *CMake) commands(sourceDir string) [][]string {
	configure := []string{
		"-S", sourceDir,
		"-B", c.BuildDir,
		"-DCMAKE_INSTALL_PREFIX=" + c.InstallDir,
		// Keep lib/ instead of lib64/ on multilib distributions.
		"-DCMAKE_INSTALL_LIBDIR=lib",
		"-DCMAKE_BUILD_TYPE=" + c.BuildType,
	}

	keys := make([]string, 0, len(c.Defines))
	for key := range c.Defines {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		configure = append(configure, "-D"+key+"="+c.Defines[key])
	}

	build := []string{"--build", c.BuildDir, "--config", c.BuildType, "--target", "install"}
	if c.Parallel > 0 {
		build = append(build, "--parallel", strconv.Itoa(c.Parallel))
	}

	return [][]string{configure, build}
}

func (c *CMake) run(ctx context.Context, args []string) error {
	logger.DebugKV(ctx, "Running builder", "command", c.Command, "args", args)

	//nolint:gosec // The command comes from the pipeline configuration.
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Dir = filepath.Dir(c.BuildDir)

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()

	if output.Len() > 0 {
		logger.Debug(ctx, output.String())
	}

	if err != nil {
		return fmt.Errorf("%s %s: %w\n%s", c.Command, args[0], err, tail(output.Bytes()))
	}

	return nil
}

func tail(b []byte) []byte {
	if len(b) <= outputTail {
		return b
	}

	return b[len(b)-outputTail:]
}
