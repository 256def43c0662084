package buddy

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddyheap/memutils"
	"golang.org/x/exp/slog"
)

// blockSizeFor returns the size of the block that holds a size-byte payload and its header, or
// noBlock if no block in the arena could ever hold it
func (a *Allocator) blockSizeFor(size int) int {
	if size > a.heapSize-HeaderSize {
		return noBlock
	}

	return memutils.NextPow2(size+HeaderSize, a.minBlockSize)
}

// Allocate returns a size-byte slice carved out of the arena, or nil if the request is negative
// or no free block is large enough. The slice's capacity extends to the end of its block.
func (a *Allocator) Allocate(size int) []byte {
	block, err := a.TryAllocate(size)
	if err != nil {
		return nil
	}

	return block
}

// TryAllocate behaves like Allocate but reports why a request could not be served. Exhaustion
// and oversized requests return an error wrapping memutils.ErrOutOfMemory; negative sizes return
// one wrapping memutils.ErrInvalidSize. A failed arena acquisition is returned as-is.
func (a *Allocator) TryAllocate(size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}

	blockSize := a.blockSizeFor(size)
	if blockSize == noBlock {
		a.logger.Debug("    Oversized request", slog.Int("Size", size), slog.Int("HeapSize", a.heapSize))
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "%d bytes plus a %d-byte header cannot fit in a %d-byte arena", size, HeaderSize, a.heapSize)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	err := a.acquireArena()
	if err != nil {
		return nil, err
	}

	offset, prev := a.findFirstFit(blockSize)
	if offset == noBlock {
		a.logger.Debug("    Arena exhausted", slog.Int("Size", size), slog.Int("BlockSize", blockSize))
		return nil, errors.Wrapf(memutils.ErrOutOfMemory, "no free block of %d bytes", blockSize)
	}

	actualSize := a.split(offset, a.readHeader(offset).size, blockSize)
	a.unlink(prev, offset)
	a.writeHeader(offset, keep, 0, statusAllocated)

	a.allocCount++
	a.records.Put(offset, allocationRecord{requested: size})

	payload := a.memory[offset+HeaderSize : offset+HeaderSize+size : offset+actualSize]
	if a.createFlags&CreateZeroOnAllocate != 0 {
		memutils.Fill(payload, 0)
	} else {
		memutils.DebugFill(payload, memutils.CreatedFillPattern)
	}

	a.logger.Debug("Allocator::Allocate",
		slog.Int("Size", size),
		slog.Int("BlockSize", actualSize),
		slog.Int("Offset", offset+HeaderSize))
	memutils.DebugValidate((*arenaValidator)(a))

	return payload, nil
}

// split halves the free block at offset until the next halving would drop below need, leaving
// every upper half in the free list directly after the block. It returns the final block size.
func (a *Allocator) split(offset, size, need int) int {
	link := a.readHeader(offset).link

	for size/2 >= need {
		size /= 2

		upperLink := 0
		if link != 0 {
			upperLink = link - size
		}
		a.writeHeader(offset+size, size, upperLink, statusFree)

		link = size
		a.writeHeader(offset, size, link, statusKeep)
		a.freeCount++
	}

	return size
}
