package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// Format identifies an archive container and its compression.
type Format string

// Supported formats.
const (
	FormatZip    Format = "zip"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
	FormatTarXz  Format = "tar.xz"
	FormatTarLz4 Format = "tar.lz4"
	FormatTarBz2 Format = "tar.bz2"
)

var (
	// ErrUnsupportedFormat is returned for file names with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrCorrupt wraps every failure to decode the archive structure.
	ErrCorrupt = errors.New("corrupt archive")
)

// suffixes is ordered so that longer suffixes win.
//
//nolint:gochecknoglobals // Read-only lookup table.
var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar.zst", FormatTarZst},
	{".tzst", FormatTarZst},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar.lz4", FormatTarLz4},
	{".tar.bz2", FormatTarBz2},
	{".tbz2", FormatTarBz2},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

// DetectFormat picks the format from a file name.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)

	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, nil
		}
	}

	return "", fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
}

// Entry is one named member of an archive.
type Entry interface {
	// Name is the slash-separated path recorded in the archive.
	Name() string
	// IsDir reports whether the entry is a directory.
	IsDir() bool
	// IsRegular reports whether the entry is a regular file.
	IsRegular() bool
	// Mode returns the recorded permission and type bits.
	Mode() fs.FileMode
	// Open returns the entry content. It may be called more than once
	// while the entry is current.
	Open() (io.ReadCloser, error)
}

// Reader iterates over archive entries in archive order.
type Reader interface {
	// Next advances to the next entry. It returns io.EOF after the last one.
	// Entries returned earlier must not be opened afterwards.
	Next() (Entry, error)
	// Close releases the archive and any temporary data.
	Close() error
}

// Open opens the archive at path, choosing the reader from its name.
func Open(path string) (Reader, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	return OpenFormat(path, format)
}

// OpenFormat opens the archive at path as the given format.
func OpenFormat(path string, format Format) (Reader, error) {
	switch format {
	case FormatZip:
		return openZip(path)
	case FormatTar, FormatTarGz, FormatTarZst, FormatTarXz, FormatTarLz4, FormatTarBz2:
		return openTar(path, format)
	default:
		return nil, fmt.Errorf("%s: %w", format, ErrUnsupportedFormat)
	}
}

func corrupt(path string, err error) error {
	return fmt.Errorf("%s: %w: %w", path, ErrCorrupt, err)
}
