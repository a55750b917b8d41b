// Package blobstore persists versioned JSON documents by key. Every write is a
// compare-and-swap against the version the caller last read.
package blobstore

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by Put when the stored version no longer
// matches the expected one.
var ErrVersionConflict = errors.New("blobstore: version conflict")

// Blob is a stored document. A key that was never written reads as the zero
// Blob: nil Data and Version 0.
type Blob struct {
	Data    []byte
	Version int64
}

func (b Blob) Exists() bool {
	return b.Version > 0
}

type Store interface {
	Get(ctx context.Context, key string) (Blob, error)
	// Put stores data if the current version equals expected and returns the
	// new version. expected == 0 creates the key.
	Put(ctx context.Context, key string, data []byte, expected int64) (int64, error)
}

// LatestReader is implemented by stores that may serve Get from a cache. The
// read-modify-write path uses GetLatest to see the authoritative version.
type LatestReader interface {
	GetLatest(ctx context.Context, key string) (Blob, error)
}

// ReadForUpdate reads key from the authoritative tier of s.
func ReadForUpdate(ctx context.Context, s Store, key string) (Blob, error) {
	if lr, ok := s.(LatestReader); ok {
		return lr.GetLatest(ctx, key)
	}
	return s.Get(ctx, key)
}
