package archive

import (
	"io"
	"io/fs"

	"github.com/klauspost/compress/zip"
)

type zipReader struct {
	path  string
	rc    *zip.ReadCloser
	index int
}

func openZip(path string) (*zipReader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, corrupt(path, err)
	}

	return &zipReader{path: path, rc: rc}, nil
}

func (z *zipReader) Next() (Entry, error) {
	if z.index >= len(z.rc.File) {
		return nil, io.EOF
	}

	f := z.rc.File[z.index]
	z.index++

	return &zipEntry{path: z.path, file: f}, nil
}

func (z *zipReader) Close() error {
	return z.rc.Close()
}

type zipEntry struct {
	path string
	file *zip.File
}

func (e *zipEntry) Name() string {
	return e.file.Name
}

func (e *zipEntry) IsDir() bool {
	return e.file.FileInfo().IsDir()
}

func (e *zipEntry) IsRegular() bool {
	return e.file.Mode().IsRegular()
}

func (e *zipEntry) Mode() fs.FileMode {
	return e.file.Mode()
}

func (e *zipEntry) Open() (io.ReadCloser, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, corrupt(e.path, err)
	}

	return &checkedReader{path: e.path, rc: rc}, nil
}

// checkedReader tags decode failures (bad CRC, truncated data) as corruption.
type checkedReader struct {
	path string
	rc   io.ReadCloser
}

func (r *checkedReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if err != nil && err != io.EOF { //nolint:errorlint // io.EOF is returned unwrapped by contract.
		return n, corrupt(r.path, err)
	}

	return n, err
}

func (r *checkedReader) Close() error {
	return r.rc.Close()
}
