package buddy

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddyheap/memutils"
)

// arenaValidator exposes the unlocked validation walk to memutils.DebugValidate, which runs while
// the allocator's lock is already held
type arenaValidator Allocator

func (v *arenaValidator) Validate() error {
	return (*Allocator)(v).validate()
}

var _ memutils.Validatable = &Allocator{}
var _ memutils.Validatable = &arenaValidator{}

// Validate walks the whole arena and returns an error describing the first inconsistency found in
// the block headers, the free list or the allocator's counters. It is intended for tests and for
// diagnosing memory overruns.
func (a *Allocator) Validate() error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.validate()
}

// visitBlocks walks the arena in address order, stopping at the first header that cannot start a
// block
func (a *Allocator) visitBlocks(visit func(offset int, h header) error) error {
	for offset := 0; offset < a.heapSize; {
		h := a.readHeader(offset)
		if !h.valid {
			return errors.Wrapf(memutils.ErrCorruptHeader, "no valid block header at offset %d", offset)
		}
		if h.size < a.minBlockSize {
			return errors.Wrapf(memutils.ErrCorruptHeader, "block at offset %d has size %d, below the minimum block size %d", offset, h.size, a.minBlockSize)
		}
		if offset&(h.size-1) != 0 {
			return errors.Wrapf(memutils.ErrCorruptHeader, "block at offset %d is not aligned to its size %d", offset, h.size)
		}
		if offset+h.size > a.heapSize {
			return errors.Wrapf(memutils.ErrCorruptHeader, "block at offset %d with size %d extends past the end of the arena", offset, h.size)
		}

		err := visit(offset, h)
		if err != nil {
			return err
		}

		offset += h.size
	}

	return nil
}

func (a *Allocator) validate() error {
	if a.memory == nil {
		if a.head != noBlock || a.allocCount != 0 || a.records.Count() != 0 {
			return errors.New("allocator has state but no arena")
		}
		return nil
	}

	var physicalFree []int
	var freeBytes, allocCount, allocBytes int

	err := a.visitBlocks(func(offset int, h header) error {
		if h.status == statusAllocated {
			if h.link != 0 {
				return errors.Errorf("allocated block at offset %d has a free list link of %d", offset, h.link)
			}
			if !a.records.Has(offset) {
				return errors.Errorf("allocated block at offset %d has no allocation record", offset)
			}

			allocCount++
			allocBytes += h.size
			return nil
		}

		if h.size < a.heapSize {
			buddy := buddyOf(offset, h.size)
			buddyHeader := a.readHeader(buddy)
			if buddy > offset && buddyHeader.valid && buddyHeader.status == statusFree && buddyHeader.size == h.size {
				return errors.Errorf("free blocks at offsets %d and %d are buddies but were not merged", offset, buddy)
			}
		}

		physicalFree = append(physicalFree, offset)
		freeBytes += h.size
		return nil
	})
	if err != nil {
		return err
	}

	if freeBytes+allocBytes != a.heapSize {
		return errors.Errorf("blocks cover %d bytes of a %d-byte arena", freeBytes+allocBytes, a.heapSize)
	}

	// The free list must visit exactly the free blocks, in address order
	listIndex := 0
	prev := noBlock
	for current := a.head; current != noBlock; {
		if listIndex >= len(physicalFree) {
			return errors.Errorf("free list is longer than the %d free blocks in the arena", len(physicalFree))
		}
		if current != physicalFree[listIndex] {
			return errors.Errorf("free list entry %d is offset %d but the next free block is at offset %d", listIndex, current, physicalFree[listIndex])
		}
		if current <= prev {
			return errors.Errorf("free list is not in ascending order at offset %d", current)
		}

		prev = current
		listIndex++
		current = nextFree(current, a.readHeader(current).link)
	}
	if listIndex != len(physicalFree) {
		return errors.Errorf("free list holds %d blocks but the arena has %d free blocks", listIndex, len(physicalFree))
	}

	if a.freeCount != len(physicalFree) {
		return errors.Errorf("free block count is %d but the arena has %d free blocks", a.freeCount, len(physicalFree))
	}
	if a.freeBytes != freeBytes {
		return errors.Errorf("free byte count is %d but the arena has %d free bytes", a.freeBytes, freeBytes)
	}
	if a.allocCount != allocCount {
		return errors.Errorf("allocation count is %d but the arena has %d allocated blocks", a.allocCount, allocCount)
	}
	if a.records.Count() != allocCount {
		return errors.Errorf("%d allocation records exist for %d allocated blocks", a.records.Count(), allocCount)
	}

	return nil
}
