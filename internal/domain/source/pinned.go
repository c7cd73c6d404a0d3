package source

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/oshokin/opus-provision/internal/hasher"
)

var (
	// ErrInvalidURL is returned when the source URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid source url")
	// ErrInvalidDigest is returned when the digest is not hex or has the wrong length.
	ErrInvalidDigest = errors.New("invalid source digest")
	// ErrNoArchiveName is returned when the URL path has no final segment.
	ErrNoArchiveName = errors.New("source url has no archive name")
)

// Pinned is an immutable (URL, digest) pair. The zero value is not valid; use New.
type Pinned struct {
	url         string
	archiveName string
	algorithm   hasher.Algorithm
	digest      []byte
}

// New validates the inputs and builds a Pinned source.
func New(rawURL, hexDigest string, algorithm hasher.Algorithm) (Pinned, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Pinned{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Pinned{}, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	if u.Host == "" {
		return Pinned{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return Pinned{}, fmt.Errorf("%s: %w", rawURL, ErrNoArchiveName)
	}

	if algorithm.Size() == 0 {
		return Pinned{}, fmt.Errorf("%w: %q", hasher.ErrUnknownAlgorithm, algorithm.String())
	}

	digest, err := hex.DecodeString(strings.TrimSpace(hexDigest))
	if err != nil {
		return Pinned{}, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
	}

	if len(digest) != algorithm.Size() {
		return Pinned{}, fmt.Errorf("%w: %s expects %d bytes, got %d",
			ErrInvalidDigest, algorithm, algorithm.Size(), len(digest))
	}

	return Pinned{
		url:         u.String(),
		archiveName: name,
		algorithm:   algorithm,
		digest:      digest,
	}, nil
}

// URL returns the download location.
func (p Pinned) URL() string {
	return p.url
}

// ArchiveName is the final path segment of the URL, used as the cache file name.
func (p Pinned) ArchiveName() string {
	return p.archiveName
}

// Algorithm returns the digest algorithm.
func (p Pinned) Algorithm() hasher.Algorithm {
	return p.algorithm
}

// Digest returns a copy of the expected digest.
func (p Pinned) Digest() []byte {
	return append([]byte(nil), p.digest...)
}

// HexDigest returns the expected digest hex-encoded.
func (p Pinned) HexDigest() string {
	return hasher.Hex(p.digest)
}

// Matches reports whether digest equals the expected one.
func (p Pinned) Matches(digest []byte) bool {
	return hasher.Equal(p.digest, digest)
}
