package buddy

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/buddyheap/memutils"
	"golang.org/x/exp/slog"
)

// Init acquires the arena from the allocator's source if that has not happened yet. Calling it
// is optional: Allocate acquires the arena on first use. A failed acquisition leaves the
// allocator untouched and is retried by the next call.
func (a *Allocator) Init() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.acquireArena()
}

func (a *Allocator) acquireArena() error {
	if a.memory != nil {
		return nil
	}

	region, err := a.source.Acquire(a.heapSize)
	if err != nil {
		return errors.Wrapf(err, "failed to acquire a %d-byte arena", a.heapSize)
	}
	if len(region) != a.heapSize {
		releaseErr := a.source.Release(region)
		err = errors.Wrapf(memutils.ErrInvalidConfig, "arena source returned %d bytes, expected %d", len(region), a.heapSize)
		return errors.CombineErrors(err, releaseErr)
	}

	a.memory = region[:a.heapSize:a.heapSize]
	a.base = uintptr(unsafe.Pointer(unsafe.SliceData(a.memory)))
	a.end = a.base + uintptr(a.heapSize)
	a.installFreeArena()

	a.logger.Debug("Allocator::Init",
		slog.Int("HeapSize", a.heapSize),
		slog.String("Base", formatAddress(a.base)))
	a.callbacks.Acquire(a.heapSize)

	return nil
}

// installFreeArena turns the whole arena into a single free block and drops every allocation
// record
func (a *Allocator) installFreeArena() {
	a.head = noBlock
	a.freeCount = 0
	a.freeBytes = 0
	a.allocCount = 0
	a.records = swiss.NewMap[int, allocationRecord](initialRecordCapacity)

	a.insertSorted(0, a.heapSize)
	memutils.DebugValidate((*arenaValidator)(a))
}
