package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/opus-provision/internal/logger"
)

// MarkerFilename is the run marker inside the output directory.
const MarkerFilename = "opus-provision.lock"

// ErrAlreadyRunning is returned when a live process holds the run marker.
var ErrAlreadyRunning = errors.New("another run is using the output directory")

// marker is the PID file held for the duration of a run.
type marker struct {
	path string
}

// acquireMarker creates the run marker, clearing one left by a dead process.
func acquireMarker(ctx context.Context, outDir string) (*marker, error) {
	path := filepath.Join(outDir, MarkerFilename)

	for range 2 {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // Path is under the output directory.
		if err == nil {
			_, err = f.WriteString(strconv.Itoa(os.Getpid()))
			if cerr := f.Close(); err == nil {
				err = cerr
			}

			if err != nil {
				_ = os.Remove(path)

				return nil, fmt.Errorf("write run marker: %w", err)
			}

			return &marker{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create run marker: %w", err)
		}

		pid, alive := markerOwner(path)
		if alive {
			return nil, fmt.Errorf("%w (pid %d, marker %s)", ErrAlreadyRunning, pid, path)
		}

		logger.InfoKV(ctx, "Removing stale run marker", "path", path, "pid", pid)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale run marker: %w", err)
		}
	}

	return nil, fmt.Errorf("%w (marker %s)", ErrAlreadyRunning, path)
}

// markerOwner reads the PID from the marker and reports whether it is alive.
// Unreadable markers and markers naming this process count as stale.
func markerOwner(path string) (int, bool) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is under the output directory.
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	// Our own PID is a leftover of a killed predecessor that had the same PID,
	// typically PID 1 in a container.
	if pid == os.Getpid() {
		return pid, false
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return pid, false
	}

	return pid, true
}

// release removes the marker.
func (m *marker) release(ctx context.Context) {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove run marker", "path", m.path, "error", err)
	}
}
