package stamp

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"
)

// Filename is the stamp file inside the output directory.
const Filename = "opus-provision-stamp.yaml"

// WatchedFile records the state of a file that triggers a re-run when it changes.
type WatchedFile struct {
	// Path is the absolute file path.
	Path string `yaml:"path"`
	// Size is the file size in bytes.
	Size int64 `yaml:"size"`
	// ModTime is the modification time at the end of the run.
	ModTime time.Time `yaml:"mod_time"`
}

// Actor identifies who performed a run.
type Actor struct {
	// Hostname is the machine name where the run was performed.
	Hostname string `yaml:"hostname"`
	// Username is the system user who started the run.
	Username string `yaml:"username"`
}

// DetectActor gathers host and user information for the provenance record.
func DetectActor() (Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Actor{}, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return Actor{Hostname: hostname}, fmt.Errorf("current user: %w", err)
	}

	return Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}

// Stamp describes the outcome of a successful run.
type Stamp struct {
	// Version is the tool version that produced the stamp.
	Version string `yaml:"version"`
	// SourceURL is the pinned archive URL.
	SourceURL string `yaml:"source_url"`
	// Digest is the pinned hex digest.
	Digest string `yaml:"digest"`
	// Algorithm names the pinned digest function.
	Algorithm string `yaml:"algorithm"`
	// Archive is the cached archive path.
	Archive string `yaml:"archive"`
	// SourceDir is the unpacked source tree.
	SourceDir string `yaml:"source_dir"`
	// ArtifactRoot is the installed library prefix.
	ArtifactRoot string `yaml:"artifact_root"`
	// Bindings is the generated bindings path.
	Bindings string `yaml:"bindings"`
	// BindingsSHA256 is the hex SHA-256 of the bindings content.
	BindingsSHA256 string `yaml:"bindings_sha256"`
	// Watched lists every file announced through rerun-if-changed.
	Watched []WatchedFile `yaml:"watched"`
	// Actor is who performed the run.
	Actor Actor `yaml:"actor"`
	// CompletedAt is when the run finished.
	CompletedAt time.Time `yaml:"completed_at"`
}

// Snapshot stats each path and returns its watch record. Missing files fail.
func Snapshot(paths []string) ([]WatchedFile, error) {
	watched := make([]WatchedFile, 0, len(paths))

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, err)
		}

		watched = append(watched, WatchedFile{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}

	return watched, nil
}

// errFileVanished and errFileChanged describe a diverged watch record.
var (
	errFileVanished = errors.New("watched file is missing")
	errFileChanged  = errors.New("watched file changed")
)

// Check compares the record against the file on disk.
func (w WatchedFile) Check() error {
	info, err := os.Stat(w.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", w.Path, errFileVanished)
		}

		return fmt.Errorf("stat %s: %w", w.Path, err)
	}

	if info.Size() != w.Size || !info.ModTime().Equal(w.ModTime) {
		return fmt.Errorf("%s: %w", w.Path, errFileChanged)
	}

	return nil
}
