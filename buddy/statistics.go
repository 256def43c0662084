package buddy

import (
	"github.com/vkngwrapper/buddyheap/memutils"
)

// VisitAllRegions calls handleBlock for every block in the arena in address order. userData is
// the value attached with SetUserData and is always nil for free blocks. Offsets passed to
// handleBlock are block offsets, header included. Before the arena is acquired, the arena is
// reported as one free block.
//
// Visiting stops at the first error returned by handleBlock, which is passed through.
func (a *Allocator) VisitAllRegions(handleBlock func(offset int, size int, userData any, free bool) error) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.visitAllRegions(handleBlock)
}

func (a *Allocator) visitAllRegions(handleBlock func(offset int, size int, userData any, free bool) error) error {
	if a.memory == nil {
		return handleBlock(0, a.heapSize, nil, true)
	}

	return a.visitBlocks(func(offset int, h header) error {
		if h.status == statusFree {
			return handleBlock(offset, h.size, nil, true)
		}

		record, _ := a.records.Get(offset)
		return handleBlock(offset, h.size, record.userData, false)
	})
}

// AddStatistics sums this allocator's arena into stats
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	stats.ArenaCount++
	stats.ArenaBytes += a.heapSize
	stats.AllocationCount += a.allocCount
	stats.AllocationBytes += a.heapSize - a.sumFreeSize()

	a.records.Iter(func(_ int, record allocationRecord) bool {
		stats.RequestedBytes += record.requested
		return false
	})
}

// AddDetailedStatistics sums this allocator's arena into stats, including per-block extremes.
// stats must have been Clear'd before its first use.
func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	stats.ArenaCount++
	stats.ArenaBytes += a.heapSize

	_ = a.visitAllRegions(func(offset int, size int, _ any, free bool) error {
		if free {
			stats.AddFreeBlock(size)
			return nil
		}

		record, _ := a.records.Get(offset)
		stats.AddAllocation(size, record.requested)
		return nil
	})
}

// AllocationCount returns the number of live allocations
func (a *Allocator) AllocationCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.allocCount
}

// FreeRegionsCount returns the number of blocks in the free list
func (a *Allocator) FreeRegionsCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.memory == nil {
		return 1
	}
	return a.freeCount
}

// SumFreeSize returns the total size of all free blocks, headers included
func (a *Allocator) SumFreeSize() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.sumFreeSize()
}

func (a *Allocator) sumFreeSize() int {
	if a.memory == nil {
		return a.heapSize
	}
	return a.freeBytes
}

// IsEmpty reports whether there are no live allocations
func (a *Allocator) IsEmpty() bool {
	return a.AllocationCount() == 0
}
