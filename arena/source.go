// Package arena provides the sources a buddy allocator can draw its single backing region from.
//
// A Source is asked for exactly one region per allocator, of exactly the allocator's heap size,
// and is handed the same region back when the allocator is closed.
package arena

import "github.com/cockroachdb/errors"

//go:generate mockgen -source source.go -destination ./mocks/source.go -package mocks

// Source hands out contiguous byte regions for allocators to manage.
type Source interface {
	// Acquire returns a region of exactly capacity bytes.
	Acquire(capacity int) ([]byte, error)
	// Release returns a region previously obtained from Acquire. The region must not be
	// used afterward.
	Release(region []byte) error
}

// ErrInvalidCapacity is returned by Acquire for a non-positive capacity
var ErrInvalidCapacity = errors.New("arena capacity must be positive")

func checkCapacity(capacity int) error {
	if capacity <= 0 {
		return errors.Wrapf(ErrInvalidCapacity, "requested %d bytes", capacity)
	}
	return nil
}
