// Package fetcher downloads the pinned source archive.
//
// A cached archive whose digest already matches is reused without touching
// the network. Otherwise the archive is streamed to disk while being hashed,
// and a digest mismatch fails the run with ErrIntegrity.
package fetcher
