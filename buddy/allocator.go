package buddy

import (
	"context"
	"io"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/buddyheap/arena"
	"github.com/vkngwrapper/buddyheap/buddy/internal/utils"
	"github.com/vkngwrapper/buddyheap/memutils"
	"golang.org/x/exp/slog"
)

const initialRecordCapacity = 64

// allocationRecord is the out-of-band state kept for each live allocation
type allocationRecord struct {
	requested int
	userData  any
}

// Allocator is a binary-buddy allocator managing one fixed-size arena.
type Allocator struct {
	logger      *slog.Logger
	mutex       *utils.OptionalRWMutex
	source      arena.Source
	callbacks   arenaCallbacks
	createFlags CreateFlags

	heapSize     int
	minBlockSize int
	maxOrder     int

	// memory is nil until the arena has been acquired
	memory []byte
	base   uintptr
	end    uintptr

	head       int
	freeCount  int
	freeBytes  int
	allocCount int

	records *swiss.Map[int, allocationRecord]

	dumpOnClose io.Writer
}

// New creates a new Allocator. The arena is not acquired from source until the first allocation
// or an explicit call to Init.
//
// logger - Receives debug traces and error reports. May be nil.
//
// source - The arena source the allocator's single region is drawn from
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, source arena.Source, options CreateOptions) (*Allocator, error) {
	if source == nil {
		return nil, errors.Wrap(memutils.ErrInvalidConfig, "an arena source is required")
	}
	if logger == nil {
		logger = discardLogger()
	}

	heapSize := options.HeapSize
	if heapSize == 0 {
		heapSize = DefaultHeapSize
	}
	minBlockSize := options.MinBlockSize
	if minBlockSize == 0 {
		minBlockSize = DefaultMinBlockSize
	}

	if err := memutils.CheckPow2(heapSize, "CreateOptions.HeapSize"); err != nil {
		return nil, err
	}
	if err := memutils.CheckPow2(minBlockSize, "CreateOptions.MinBlockSize"); err != nil {
		return nil, err
	}
	if minBlockSize < DefaultMinBlockSize {
		return nil, errors.Wrapf(memutils.ErrInvalidConfig, "CreateOptions.MinBlockSize must be at least %d, got %d", DefaultMinBlockSize, minBlockSize)
	}
	if heapSize < minBlockSize {
		return nil, errors.Wrapf(memutils.ErrInvalidConfig, "CreateOptions.HeapSize (%d) must be at least CreateOptions.MinBlockSize (%d)", heapSize, minBlockSize)
	}
	if heapSize > MaxHeapSize {
		return nil, errors.Wrapf(memutils.ErrInvalidConfig, "CreateOptions.HeapSize must be at most %d, got %d", MaxHeapSize, heapSize)
	}

	allocator := &Allocator{
		logger:      logger,
		mutex:       utils.NewOptionalRWMutex(options.Flags&CreateExternallySynchronized == 0),
		source:      source,
		createFlags: options.Flags,

		heapSize:     heapSize,
		minBlockSize: minBlockSize,
		maxOrder:     memutils.Log2(heapSize),

		head:    noBlock,
		records: swiss.NewMap[int, allocationRecord](initialRecordCapacity),

		dumpOnClose: options.DumpOnClose,
	}
	allocator.callbacks = arenaCallbacks{
		Callbacks: options.ArenaCallbacks,
		Allocator: allocator,
	}

	logger.Debug("Allocator::New",
		slog.Int("HeapSize", heapSize),
		slog.Int("MinBlockSize", minBlockSize),
		slog.String("Flags", options.Flags.String()))

	return allocator, nil
}

// HeapSize returns the size in bytes of the arena this allocator manages
func (a *Allocator) HeapSize() int { return a.heapSize }

// MinBlockSize returns the smallest block size the allocator splits down to
func (a *Allocator) MinBlockSize() int { return a.minBlockSize }

// Flags returns the flags the allocator was created with
func (a *Allocator) Flags() CreateFlags { return a.createFlags }

// Reset instantly frees all allocations. Slices previously returned by Allocate must not be used
// afterward.
func (a *Allocator) Reset() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.memory == nil {
		return
	}

	a.logger.Debug("Allocator::Reset", slog.Int("AllocationCount", a.allocCount))
	a.installFreeArena()
}

// Close tears the allocator down: the block map is written to CreateOptions.DumpOnClose if one was
// provided, unreleased allocations are logged, and the arena is returned to its source. An error
// wrapping memutils.ErrUnreleasedAllocations is returned if any allocation was still live; the
// arena is released regardless.
//
// The allocator may be used again after Close, in which case it acquires a fresh arena.
func (a *Allocator) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.memory == nil {
		return nil
	}

	var err error
	if a.dumpOnClose != nil {
		err = errors.Wrap(a.dump(a.dumpOnClose), "failed to dump the block map")
	}

	unreleased := a.allocCount
	if unreleased > 0 {
		a.logUnreleasedMemory()
		err = errors.CombineErrors(err, errors.Wrapf(memutils.ErrUnreleasedAllocations, "%d allocations still live", unreleased))
	}

	releaseErr := a.source.Release(a.memory)
	if releaseErr != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "failed to return the arena to its source", slog.Any("error", releaseErr))
		err = errors.CombineErrors(err, errors.Wrap(releaseErr, "failed to release arena"))
	}
	a.callbacks.Release(a.heapSize)

	a.memory = nil
	a.base = 0
	a.end = 0
	a.head = noBlock
	a.freeCount = 0
	a.freeBytes = 0
	a.allocCount = 0
	a.records = swiss.NewMap[int, allocationRecord](initialRecordCapacity)

	return err
}

func (a *Allocator) logUnreleasedMemory() {
	_ = a.visitBlocks(func(offset int, h header) error {
		if h.status != statusAllocated {
			return nil
		}

		record, _ := a.records.Get(offset)
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unreleased allocation",
			slog.Int("offset", offset+HeaderSize),
			slog.Int("size", h.size),
			slog.Int("requested", record.requested),
			slog.Any("userData", record.userData),
		)
		return nil
	})
}

// dataOffset converts a slice handed out by Allocate into its offset within the arena
func (a *Allocator) dataOffset(block []byte) (int, error) {
	if a.memory == nil {
		return 0, errors.Wrap(memutils.ErrForeignPointer, "the arena has not been acquired")
	}

	pointer := uintptr(unsafe.Pointer(unsafe.SliceData(block)))
	if pointer < a.base || pointer >= a.end {
		return 0, errors.Wrapf(memutils.ErrForeignPointer, "address %#x is outside the arena", pointer)
	}

	return int(pointer - a.base), nil
}

// liveBlock validates that dataOffset is the payload offset of a live allocation and returns the
// offset of its header.
func (a *Allocator) liveBlock(dataOffset int) (int, header, error) {
	offset := dataOffset - HeaderSize
	if a.memory == nil {
		return 0, header{}, errors.Wrap(memutils.ErrArenaNotAcquired, "no allocation has been made")
	}
	if offset < 0 || offset > a.heapSize-a.minBlockSize {
		return 0, header{}, errors.Wrapf(memutils.ErrForeignPointer, "data offset %d is outside the arena", dataOffset)
	}
	if offset&(a.minBlockSize-1) != 0 {
		return 0, header{}, errors.Wrapf(memutils.ErrCorruptHeader, "data offset %d is not at a block boundary", dataOffset)
	}

	if owner := a.freeBlockContaining(offset); owner != noBlock {
		return 0, header{}, errors.Wrapf(memutils.ErrDoubleRelease, "data offset %d lies in the free block at offset %d", dataOffset, owner)
	}

	h := a.readHeader(offset)
	if !h.valid {
		return 0, header{}, errors.Wrapf(memutils.ErrCorruptHeader, "no block header at offset %d", offset)
	}
	if offset&(h.size-1) != 0 || offset+h.size > a.heapSize {
		return 0, header{}, errors.Wrapf(memutils.ErrCorruptHeader, "block of %d bytes at offset %d is misaligned", h.size, offset)
	}
	if h.status != statusAllocated {
		return 0, header{}, errors.Wrapf(memutils.ErrDoubleRelease, "block at offset %d is not allocated", offset)
	}

	return offset, h, nil
}

// Offset returns the offset within the arena of a payload returned by Allocate. The value can be
// passed to ReleaseAt.
func (a *Allocator) Offset(block []byte) (int, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	dataOffset, err := a.dataOffset(block)
	if err != nil {
		return 0, err
	}
	_, _, err = a.liveBlock(dataOffset)
	if err != nil {
		return 0, err
	}

	return dataOffset, nil
}

// BlockSize returns the size of the block backing a live allocation, header included
func (a *Allocator) BlockSize(block []byte) (int, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	dataOffset, err := a.dataOffset(block)
	if err != nil {
		return 0, err
	}
	_, h, err := a.liveBlock(dataOffset)
	if err != nil {
		return 0, err
	}

	return h.size, nil
}
