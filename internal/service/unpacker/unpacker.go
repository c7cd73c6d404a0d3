package unpacker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oshokin/opus-provision/internal/archive"
	"github.com/oshokin/opus-provision/internal/hasher"
	"github.com/oshokin/opus-provision/internal/logger"
)

const (
	dirMode        os.FileMode = 0o755
	fileMode       os.FileMode = 0o644
	executableMode os.FileMode = 0o755
)

var (
	// ErrEmptyArchive is returned when the archive has no entries at all.
	ErrEmptyArchive = errors.New("archive has no entries")
	// ErrOutsideRoot is returned for entries that do not live under the root prefix.
	ErrOutsideRoot = errors.New("entry outside archive root")
	// ErrUnsafePath is returned for entries that would escape the destination.
	ErrUnsafePath = errors.New("unsafe entry path")
)

// Watcher receives every unpacked file path.
type Watcher interface {
	RerunIfChanged(path string)
}

// Stats counts what an Unpack call did.
type Stats struct {
	// Directories is the number of directory entries ensured.
	Directories int
	// Created is the number of files written where none existed.
	Created int
	// Replaced is the number of files deleted and rewritten because their content differed.
	Replaced int
	// Unchanged is the number of files whose content already matched.
	Unchanged int
	// Skipped is the number of entries that are neither files nor directories.
	Skipped int
}

// Written is the number of files whose bytes were written.
func (s Stats) Written() int {
	return s.Created + s.Replaced
}

// Unpacker extracts archives with content-hash deduplication.
type Unpacker struct {
	algorithm hasher.Algorithm
	watcher   Watcher
}

// Option configures an Unpacker.
type Option func(*Unpacker)

// WithAlgorithm sets the digest used to compare files. The default is BLAKE3.
func WithAlgorithm(a hasher.Algorithm) Option {
	return func(u *Unpacker) {
		u.algorithm = a
	}
}

// WithWatcher reports every unpacked file to w.
func WithWatcher(w Watcher) Option {
	return func(u *Unpacker) {
		u.watcher = w
	}
}

// New creates an Unpacker.
func New(opts ...Option) *Unpacker {
	u := &Unpacker{algorithm: hasher.BLAKE3}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Unpack extracts archivePath into destinationDir.
func (u *Unpacker) Unpack(ctx context.Context, archivePath, destinationDir string) (Stats, error) {
	var stats Stats

	if err := os.MkdirAll(destinationDir, dirMode); err != nil {
		return stats, fmt.Errorf("create destination: %w", err)
	}

	r, err := archive.Open(archivePath)
	if err != nil {
		return stats, err
	}

	defer func() {
		_ = r.Close()
	}()

	first, err := r.Next()
	if errors.Is(err, io.EOF) {
		return stats, fmt.Errorf("%s: %w", archivePath, ErrEmptyArchive)
	}

	if err != nil {
		return stats, err
	}

	root, err := archiveRoot(first.Name())
	if err != nil {
		return stats, fmt.Errorf("%s: first entry: %w", archivePath, err)
	}

	logger.DebugKV(ctx, "Stripping archive root", "root", root)

	entry := first

	for {
		if err = ctx.Err(); err != nil {
			return stats, err
		}

		if err = u.unpackEntry(ctx, entry, root, destinationDir, &stats); err != nil {
			return stats, err
		}

		entry, err = r.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return stats, err
		}
	}

	logger.InfoKV(ctx, "Archive unpacked",
		"destination", destinationDir,
		"created", stats.Created,
		"replaced", stats.Replaced,
		"unchanged", stats.Unchanged,
		"directories", stats.Directories)

	return stats, nil
}

func (u *Unpacker) unpackEntry(ctx context.Context, entry archive.Entry, root, destinationDir string, stats *Stats) error {
	rel, err := stripRoot(entry.Name(), root)
	if err != nil {
		return err
	}

	// The root folder itself.
	if rel == "" {
		return nil
	}

	destination := filepath.Join(destinationDir, filepath.FromSlash(rel))

	if err = os.MkdirAll(filepath.Dir(destination), dirMode); err != nil {
		return fmt.Errorf("create parent of %s: %w", destination, err)
	}

	switch {
	case entry.IsDir():
		if err = os.MkdirAll(destination, dirMode); err != nil {
			return fmt.Errorf("create directory %s: %w", destination, err)
		}

		stats.Directories++

		return nil
	case !entry.IsRegular():
		logger.DebugKV(ctx, "Skipping special archive entry", "name", entry.Name(), "mode", entry.Mode().String())

		stats.Skipped++

		return nil
	}

	replaced, err := u.removeIfStale(entry, destination)
	if err != nil {
		return err
	}

	if _, err = os.Lstat(destination); err == nil {
		stats.Unchanged++
	} else {
		if err = writeEntry(entry, destination); err != nil {
			return err
		}

		if replaced {
			logger.DebugKV(ctx, "Replaced file with differing content", "path", destination)

			stats.Replaced++
		} else {
			stats.Created++
		}
	}

	if u.watcher != nil {
		u.watcher.RerunIfChanged(destination)
	}

	return nil
}

// removeIfStale deletes destination when its digest differs from the entry's.
func (u *Unpacker) removeIfStale(entry archive.Entry, destination string) (bool, error) {
	current, err := hasher.SumFile(destination, u.algorithm)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("hash existing file: %w", err)
	}

	target, err := entryDigest(entry, u.algorithm)
	if err != nil {
		return false, err
	}

	if hasher.Equal(current, target) {
		return false, nil
	}

	if err = os.Remove(destination); err != nil {
		return false, fmt.Errorf("remove stale file: %w", err)
	}

	return true, nil
}

func entryDigest(entry archive.Entry, algorithm hasher.Algorithm) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = rc.Close()
	}()

	digest, err := hasher.Sum(rc, algorithm)
	if err != nil {
		return nil, fmt.Errorf("hash entry %s: %w", entry.Name(), err)
	}

	return digest, nil
}

func writeEntry(entry archive.Entry, destination string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}

	defer func() {
		_ = rc.Close()
	}()

	//nolint:gosec // The destination was checked to stay inside the target directory.
	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, permissions(entry.Mode()))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	buf := make([]byte, hasher.BufferSize)
	if _, err = io.CopyBuffer(out, rc, buf); err != nil {
		_ = out.Close()

		return fmt.Errorf("write %s: %w", destination, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", destination, err)
	}

	return nil
}

// archiveRoot returns the top-level segment of the first entry name. A
// leading "./", as written by tar run on ".", belongs to the root.
func archiveRoot(name string) (string, error) {
	rest, dotted := strings.CutPrefix(name, "./")
	segment, _, _ := strings.Cut(rest, "/")

	switch {
	case dotted && segment == "":
		return ".", nil
	case segment == "" || segment == "." || segment == "..":
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	case dotted:
		return "./" + segment, nil
	default:
		return segment, nil
	}
}

// stripRoot removes the root segment from name and rejects paths that escape it.
func stripRoot(name, root string) (string, error) {
	if name == root {
		return "", nil
	}

	rest, ok := strings.CutPrefix(name, root+"/")
	if !ok {
		return "", fmt.Errorf("%q not under %q: %w", name, root, ErrOutsideRoot)
	}

	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return "", nil
	}

	if !fs.ValidPath(rest) || strings.Contains(rest, `\`) || path.IsAbs(rest) {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}

	return rest, nil
}

func permissions(mode fs.FileMode) os.FileMode {
	if mode&0o111 != 0 {
		return executableMode
	}

	return fileMode
}
