package hasher

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// BufferSize is the chunk size used when reading a source.
const BufferSize = 4096

// Algorithm names a supported digest function.
type Algorithm string

// Supported algorithms.
const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	BLAKE3 Algorithm = "blake3"
)

// ErrUnknownAlgorithm is returned for algorithm names outside the supported set.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// ParseAlgorithm converts a config value into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case SHA256, SHA512, BLAKE3:
		return a, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownAlgorithm)
	}
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%q: %w", string(a), ErrUnknownAlgorithm)
	}
}

// Size returns the digest length in bytes, or 0 for an unknown algorithm.
func (a Algorithm) Size() int {
	switch a {
	case SHA256, BLAKE3:
		return sha256.Size
	case SHA512:
		return sha512.Size
	default:
		return 0
	}
}

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	return string(a)
}

// Sum digests everything r yields. Read errors other than io.EOF are returned as is.
func Sum(r io.Reader, a Algorithm) ([]byte, error) {
	h, err := a.New()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, BufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			// hash.Hash.Write never returns an error.
			_, _ = h.Write(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			return h.Sum(nil), nil
		}

		if err != nil {
			return nil, err
		}
	}
}

// SumFile digests the file at path. A missing file yields an error matching os.ErrNotExist.
func SumFile(path string, a Algorithm) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = f.Close()
	}()

	sum, err := Sum(f, a)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}

	return sum, nil
}

// Equal reports whether two digests are identical.
func Equal(x, y []byte) bool {
	return len(x) > 0 && bytes.Equal(x, y)
}

// Hex renders a digest the way it appears in configuration.
func Hex(digest []byte) string {
	return hex.EncodeToString(digest)
}
