package memutils

import "github.com/cockroachdb/errors"

// ErrPowerOfTwo is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var ErrPowerOfTwo = errors.New("number must be a power of two")

var (
	// ErrInvalidConfig is returned when allocator options or an acquired arena do not fit together
	ErrInvalidConfig = errors.New("invalid allocator configuration")
	// ErrInvalidSize is returned for negative allocation sizes
	ErrInvalidSize = errors.New("invalid allocation size")
	// ErrOutOfMemory indicates that no free block was large enough for the request. Oversized
	// requests are reported the same way.
	ErrOutOfMemory = errors.New("no free block large enough")

	// ErrForeignPointer indicates that a released block does not lie within the arena
	ErrForeignPointer = errors.New("block does not belong to this arena")
	// ErrCorruptHeader indicates that the header in front of a released block is not a valid block header
	ErrCorruptHeader = errors.New("block header is corrupt")
	// ErrDoubleRelease indicates that a released block is already free
	ErrDoubleRelease = errors.New("block is already free")

	// ErrUnreleasedAllocations is returned by Close when allocations were still live
	ErrUnreleasedAllocations = errors.New("some allocations were not released before the arena was closed")
	// ErrArenaNotAcquired is returned by operations that need the arena before it has been acquired
	ErrArenaNotAcquired = errors.New("arena has not been acquired")
)
