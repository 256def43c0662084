package buddy

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddyheap/memutils"
	"golang.org/x/exp/slog"
)

// Release returns a slice obtained from Allocate to the arena, merging its block with free
// buddies. Releasing nil is a no-op.
//
// Slices that did not come from this allocator, that were already released, or whose header has
// been overwritten are rejected with an error wrapping memutils.ErrForeignPointer,
// memutils.ErrDoubleRelease or memutils.ErrCorruptHeader. A rejected release does not change the
// arena.
func (a *Allocator) Release(block []byte) error {
	if block == nil {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	dataOffset, err := a.dataOffset(block)
	if err != nil {
		return a.rejectRelease(err)
	}

	return a.releaseAt(dataOffset)
}

// ReleaseAt behaves like Release for the allocation whose payload starts dataOffset bytes into
// the arena, as returned by Offset
func (a *Allocator) ReleaseAt(dataOffset int) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.releaseAt(dataOffset)
}

func (a *Allocator) releaseAt(dataOffset int) error {
	offset, h, err := a.liveBlock(dataOffset)
	if err != nil {
		return a.rejectRelease(err)
	}

	memutils.DebugFill(a.memory[offset+HeaderSize:offset+h.size], memutils.DestroyedFillPattern)

	a.records.Delete(offset)
	a.allocCount--

	a.insertSorted(offset, h.size)
	merged, mergeCount := a.coalesce(offset, h.size)

	a.logger.Debug("Allocator::Release",
		slog.Int("Offset", dataOffset),
		slog.Int("BlockSize", h.size),
		slog.Int("Merges", mergeCount),
		slog.Int("MergedSize", merged))
	memutils.DebugValidate((*arenaValidator)(a))

	return nil
}

func (a *Allocator) rejectRelease(err error) error {
	a.logger.LogAttrs(context.Background(), slog.LevelError, "rejected release", slog.Any("error", err))
	return err
}

// coalesce merges the free block at offset with its buddy for as long as the buddy is free and
// of the same size. It returns the size of the final block and the number of merges.
func (a *Allocator) coalesce(offset, size int) (int, int) {
	var mergeCount int

	for size < a.heapSize {
		buddy := buddyOf(offset, size)
		if !a.areBuddies(offset, buddy) {
			panic(errors.AssertionFailedf("block at offset %d and its computed buddy at offset %d are not buddies", offset, buddy))
		}

		buddyHeader := a.readHeader(buddy)
		if !buddyHeader.valid || buddyHeader.status != statusFree || buddyHeader.size != size {
			break
		}

		lower, upper := offset, buddy
		if buddy < offset {
			lower, upper = buddy, offset
		}

		lowerHeader := a.readHeader(lower)
		upperHeader := a.readHeader(upper)
		if lowerHeader.link != size {
			panic(errors.AssertionFailedf("free block at offset %d does not link to its buddy at offset %d", lower, upper))
		}

		link := 0
		if upperHeader.link != 0 {
			link = size + upperHeader.link
		}

		size *= 2
		a.writeHeader(lower, size, link, statusFree)
		a.clearHeader(upper)
		a.freeCount--

		offset = lower
		mergeCount++
	}

	return size, mergeCount
}
