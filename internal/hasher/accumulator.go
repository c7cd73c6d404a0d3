package hasher

import (
	"hash"
	"io"
	"sync"
)

// Accumulator writes every chunk to a destination and then folds the written
// bytes into a running digest. Only bytes the destination accepted are hashed,
// so a short write can never leave the digest ahead of the file.
//
// The lock serialises Write against Sum and Written. The HTTP body is read
// synchronously, so it is never contended.
type Accumulator struct {
	mu      sync.Mutex
	dst     io.Writer
	hash    hash.Hash
	written int64
}

// NewAccumulator creates an Accumulator over dst.
func NewAccumulator(a Algorithm, dst io.Writer) (*Accumulator, error) {
	h, err := a.New()
	if err != nil {
		return nil, err
	}

	return &Accumulator{
		dst:  dst,
		hash: h,
	}, nil
}

// Write implements io.Writer.
func (acc *Accumulator) Write(p []byte) (int, error) {
	acc.mu.Lock()
	defer acc.mu.Unlock()

	n, err := acc.dst.Write(p)
	if n > 0 {
		_, _ = acc.hash.Write(p[:n])
		acc.written += int64(n)
	}

	return n, err
}

// Sum returns the digest of everything written so far.
func (acc *Accumulator) Sum() []byte {
	acc.mu.Lock()
	defer acc.mu.Unlock()

	return acc.hash.Sum(nil)
}

// Written returns the number of bytes accepted by the destination.
func (acc *Accumulator) Written() int64 {
	acc.mu.Lock()
	defer acc.mu.Unlock()

	return acc.written
}
