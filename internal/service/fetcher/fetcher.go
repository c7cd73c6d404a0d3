package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/oshokin/opus-provision/internal/domain/source"
	"github.com/oshokin/opus-provision/internal/hasher"
	"github.com/oshokin/opus-provision/internal/logger"
	"github.com/oshokin/opus-provision/internal/version"
)

const archiveFileMode os.FileMode = 0o644

var (
	// ErrIntegrity marks a downloaded archive whose digest differs from the pinned one.
	ErrIntegrity = errors.New("integrity violation")
	// errBadHTTPStatus is returned for any response other than 200 OK.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// ChecksumError describes a digest mismatch. It matches ErrIntegrity.
type ChecksumError struct {
	// URL is where the bytes came from.
	URL string
	// Path is the file that holds the rejected bytes.
	Path string
	// Expected is the pinned digest, hex-encoded.
	Expected string
	// Actual is the digest of the downloaded bytes, hex-encoded.
	Actual string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s has invalid digest %s, expected %s (downloaded from %s)",
		e.Path, e.Actual, e.Expected, e.URL)
}

// Is makes errors.Is(err, ErrIntegrity) true.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrIntegrity
}

// Result reports what Fetch did.
type Result struct {
	// CacheHit is true when the existing file was reused.
	CacheHit bool
	// Bytes is the number of bytes downloaded.
	Bytes int64
}

// Fetcher downloads pinned sources.
type Fetcher struct {
	client *http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{client: http.DefaultClient}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch makes destination hold the bytes of src, downloading them only when
// the existing file does not already match. The file that failed
// verification is left on disk; the next run re-hashes it, sees the mismatch
// and downloads again.
func (f *Fetcher) Fetch(ctx context.Context, src source.Pinned, destination string) (Result, error) {
	destination = filepath.Clean(destination)

	cached, err := f.isCached(ctx, src, destination)
	if err != nil {
		return Result{}, err
	}

	if cached {
		logger.InfoKV(ctx, "Cached archive is valid, skipping download", "path", destination)

		return Result{CacheHit: true}, nil
	}

	logger.InfoKV(ctx, "Downloading archive", "url", src.URL(), "path", destination)

	response, err := f.get(ctx, src.URL())
	if response != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}

	if err != nil {
		return Result{}, err
	}

	written, digest, err := store(src.Algorithm(), response.Body, destination)
	if err != nil {
		return Result{}, err
	}

	if !src.Matches(digest) {
		return Result{}, &ChecksumError{
			URL:      src.URL(),
			Path:     destination,
			Expected: src.HexDigest(),
			Actual:   hasher.Hex(digest),
		}
	}

	logger.InfoKV(ctx, "Archive downloaded and verified", "bytes", written, "digest", src.HexDigest())

	return Result{Bytes: written}, nil
}

// isCached reports whether destination exists and hashes to the pinned digest.
func (f *Fetcher) isCached(ctx context.Context, src source.Pinned, destination string) (bool, error) {
	digest, err := hasher.SumFile(destination, src.Algorithm())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("hash cached archive: %w", err)
	}

	if src.Matches(digest) {
		return true, nil
	}

	logger.WarnKV(ctx, "Cached archive digest mismatch, downloading again",
		"path", destination, "actual", hasher.Hex(digest), "expected", src.HexDigest())

	return false, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := f.client.Do(req)
	if err != nil {
		return response, fmt.Errorf("download %s: %w", rawURL, err)
	}

	if response.StatusCode != http.StatusOK {
		return response, fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// store truncates destination and streams body into it, hashing what was written.
func store(algorithm hasher.Algorithm, body io.Reader, destination string) (int64, []byte, error) {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return 0, nil, fmt.Errorf("create archive directory: %w", err)
	}

	//nolint:gosec // The destination is derived from the configured output directory.
	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, archiveFileMode)
	if err != nil {
		return 0, nil, fmt.Errorf("open archive for writing: %w", err)
	}

	acc, err := hasher.NewAccumulator(algorithm, out)
	if err != nil {
		_ = out.Close()

		return 0, nil, err
	}

	buf := make([]byte, hasher.BufferSize)
	if _, err = io.CopyBuffer(acc, body, buf); err != nil {
		_ = out.Close()

		return acc.Written(), nil, fmt.Errorf("write archive: %w", err)
	}

	if err = out.Close(); err != nil {
		return acc.Written(), nil, fmt.Errorf("close archive: %w", err)
	}

	return acc.Written(), acc.Sum(), nil
}
