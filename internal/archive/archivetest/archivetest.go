// Package archivetest writes small archives for tests.
package archivetest

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/oshokin/opus-provision/internal/archive"
)

var errUnsupported = errors.New("archivetest: unsupported format")

// GlobalHeader as a File name writes a PAX global header to tarballs, with
// Body as its comment record. Zip archives omit it.
const GlobalHeader = "pax_global_header"

// File is one archive member. Names ending in "/" are directories; a
// non-empty Symlink makes the entry a symbolic link to that target.
type File struct {
	Name    string
	Body    string
	Symlink string
}

// Build renders files as an archive of the given format.
func Build(format archive.Format, files []File) ([]byte, error) {
	var buf bytes.Buffer

	var err error

	if format == archive.FormatZip {
		err = writeZip(&buf, files)
	} else {
		err = writeCompressedTar(&buf, format, files)
	}

	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Write renders files into the archive at path, picking the format from the name.
func Write(path string, files []File) ([]byte, error) {
	format, err := archive.DetectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := Build(format, files)
	if err != nil {
		return nil, err
	}

	return data, os.WriteFile(path, data, 0o600)
}

func writeZip(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)

	for _, f := range files {
		if f.Name == GlobalHeader {
			continue
		}

		hdr := &zip.FileHeader{Name: f.Name, Method: zip.Deflate}
		body := f.Body

		if f.Symlink != "" {
			hdr.SetMode(fs.ModeSymlink | 0o777)
			body = f.Symlink
		}

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		if _, err = io.WriteString(fw, body); err != nil {
			return err
		}
	}

	return zw.Close()
}

func writeCompressedTar(w io.Writer, format archive.Format, files []File) error {
	var (
		stream io.WriteCloser
		err    error
	)

	switch format {
	case archive.FormatTar:
		stream = nopWriteCloser{w}
	case archive.FormatTarGz:
		stream = gzip.NewWriter(w)
	case archive.FormatTarZst:
		stream, err = zstd.NewWriter(w)
	case archive.FormatTarXz:
		stream, err = xz.NewWriter(w)
	case archive.FormatTarLz4:
		stream = lz4.NewWriter(w)
	default:
		return fmt.Errorf("%s: %w", format, errUnsupported)
	}

	if err != nil {
		return err
	}

	if err = writeTar(stream, files); err != nil {
		return err
	}

	return stream.Close()
}

func writeTar(w io.Writer, files []File) error {
	tw := tar.NewWriter(w)

	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.Name,
			Mode:     0o644,
			Size:     int64(len(f.Body)),
			Typeflag: tar.TypeReg,
		}

		switch {
		case f.Name == GlobalHeader:
			hdr = &tar.Header{
				Typeflag:   tar.TypeXGlobalHeader,
				PAXRecords: map[string]string{"comment": f.Body},
			}
		case f.Symlink != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = f.Symlink
			hdr.Mode = 0o777
			hdr.Size = 0
		case strings.HasSuffix(f.Name, "/"):
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
			hdr.Size = 0
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, f.Body); err != nil {
				return err
			}
		}
	}

	return tw.Close()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
