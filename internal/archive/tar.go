package archive

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

var errEntryNotCurrent = errors.New("tar entry is no longer current")

// tarReader reads a tarball sequentially. Because a tar stream cannot be
// rewound, the content of the current entry is spooled to a temporary file
// the first time it is opened, and later opens read the spool.
type tarReader struct {
	path       string
	file       *os.File
	decompress io.Closer
	tr         *tar.Reader
	current    *tarEntry
	spoolDir   string
}

func openTar(path string, format Format) (*tarReader, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	stream, closer, err := decompressor(f, format)
	if err != nil {
		_ = f.Close()

		return nil, corrupt(path, err)
	}

	return &tarReader{
		path:       path,
		file:       f,
		decompress: closer,
		tr:         tar.NewReader(stream),
	}, nil
}

func decompressor(r io.Reader, format Format) (io.Reader, io.Closer, error) {
	switch format {
	case FormatTar:
		return r, nil, nil
	case FormatTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}

		return gz, gz, nil
	case FormatTarZst:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}

		return dec, dec.IOReadCloser(), nil
	case FormatTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz: %w", err)
		}

		return xr, nil, nil
	case FormatTarLz4:
		return lz4.NewReader(r), nil, nil
	case FormatTarBz2:
		return bzip2.NewReader(r), nil, nil
	default:
		return nil, nil, fmt.Errorf("%s: %w", format, ErrUnsupportedFormat)
	}
}

func (t *tarReader) Next() (Entry, error) {
	t.release()

	for {
		hdr, err := t.tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		if err != nil {
			return nil, corrupt(t.path, err)
		}

		// PAX global headers carry metadata only (git archive writes one first).
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		t.current = &tarEntry{owner: t, header: hdr}

		return t.current, nil
	}
}

func (t *tarReader) Close() error {
	t.release()

	var errs []error

	if t.decompress != nil {
		errs = append(errs, t.decompress.Close())
	}

	errs = append(errs, t.file.Close())

	if t.spoolDir != "" {
		errs = append(errs, os.RemoveAll(t.spoolDir))
	}

	return errors.Join(errs...)
}

// release drops the spool of the current entry.
func (t *tarReader) release() {
	if t.current == nil {
		return
	}

	if t.current.spool != "" {
		_ = os.Remove(t.current.spool)
	}

	t.current.stale = true
	t.current = nil
}

func (t *tarReader) spool(e *tarEntry) error {
	if t.spoolDir == "" {
		dir, err := os.MkdirTemp("", "opus-provision-spool-")
		if err != nil {
			return err
		}

		t.spoolDir = dir
	}

	f, err := os.CreateTemp(t.spoolDir, "entry-")
	if err != nil {
		return err
	}

	if _, err = io.Copy(f, t.tr); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())

		return corrupt(t.path, err)
	}

	if err = f.Close(); err != nil {
		_ = os.Remove(f.Name())

		return err
	}

	e.spool = f.Name()

	return nil
}

type tarEntry struct {
	owner  *tarReader
	header *tar.Header
	spool  string
	stale  bool
}

func (e *tarEntry) Name() string {
	return e.header.Name
}

func (e *tarEntry) IsDir() bool {
	return e.header.Typeflag == tar.TypeDir
}

func (e *tarEntry) IsRegular() bool {
	//nolint:staticcheck // TypeRegA still appears in archives produced by old tools.
	return e.header.Typeflag == tar.TypeReg || e.header.Typeflag == tar.TypeRegA
}

func (e *tarEntry) Mode() fs.FileMode {
	return e.header.FileInfo().Mode()
}

func (e *tarEntry) Open() (io.ReadCloser, error) {
	if e.stale {
		return nil, fmt.Errorf("%s: %w", e.header.Name, errEntryNotCurrent)
	}

	if e.spool == "" {
		if err := e.owner.spool(e); err != nil {
			return nil, err
		}
	}

	return os.Open(e.spool)
}
