package buddy_test

import (
	"bytes"
	"io"
	"math/rand"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/buddyheap/arena"
	mock_arena "github.com/vkngwrapper/buddyheap/arena/mocks"
	"github.com/vkngwrapper/buddyheap/buddy"
	"github.com/vkngwrapper/buddyheap/memutils"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

type region struct {
	Offset int
	Size   int
	Free   bool
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readyAllocator(t *testing.T, options buddy.CreateOptions) *buddy.Allocator {
	allocator, err := buddy.New(discardLogger(), arena.NewHeapSource(), options)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = allocator.Close()
	})

	return allocator
}

func regions(t *testing.T, allocator *buddy.Allocator) []region {
	var result []region
	err := allocator.VisitAllRegions(func(offset int, size int, userData any, free bool) error {
		result = append(result, region{Offset: offset, Size: size, Free: free})
		return nil
	})
	require.NoError(t, err)

	return result
}

func overlap(a, b []byte) bool {
	aStart := uintptr(unsafe.Pointer(unsafe.SliceData(a)))
	bStart := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	aEnd := aStart + uintptr(cap(a))
	bEnd := bStart + uintptr(cap(b))

	return aStart < bEnd && bStart < aEnd
}

func TestNew_InvalidOptions(t *testing.T) {
	testCases := map[string]struct {
		options  buddy.CreateOptions
		expected error
	}{
		"HeapNotPow2": {
			options:  buddy.CreateOptions{HeapSize: 1000},
			expected: memutils.ErrPowerOfTwo,
		},
		"MinBlockNotPow2": {
			options:  buddy.CreateOptions{HeapSize: 1024, MinBlockSize: 24},
			expected: memutils.ErrPowerOfTwo,
		},
		"MinBlockTooSmall": {
			options:  buddy.CreateOptions{HeapSize: 1024, MinBlockSize: 8},
			expected: memutils.ErrInvalidConfig,
		},
		"MinBlockLargerThanHeap": {
			options:  buddy.CreateOptions{HeapSize: 64, MinBlockSize: 128},
			expected: memutils.ErrInvalidConfig,
		},
		"HeapTooLarge": {
			options:  buddy.CreateOptions{HeapSize: buddy.MaxHeapSize * 2},
			expected: memutils.ErrInvalidConfig,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := buddy.New(nil, arena.NewHeapSource(), testCase.options)
			require.ErrorIs(t, err, testCase.expected)
		})
	}

	_, err := buddy.New(nil, nil, buddy.CreateOptions{})
	require.ErrorIs(t, err, memutils.ErrInvalidConfig)
}

func TestNew_Defaults(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{})

	require.Equal(t, buddy.DefaultHeapSize, allocator.HeapSize())
	require.Equal(t, buddy.DefaultMinBlockSize, allocator.MinBlockSize())
	require.Equal(t, 1, allocator.FreeRegionsCount())
	require.Equal(t, buddy.DefaultHeapSize, allocator.SumFreeSize())
	require.True(t, allocator.IsEmpty())
	require.NoError(t, allocator.Validate())
}

func TestAllocate_SplitsDownToRequest(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024, MinBlockSize: 16})

	data := allocator.Allocate(10)
	require.NotNil(t, data)
	require.Len(t, data, 10)
	require.Equal(t, 24, cap(data))

	require.Equal(t, []region{
		{Offset: 0, Size: 32},
		{Offset: 32, Size: 32, Free: true},
		{Offset: 64, Size: 64, Free: true},
		{Offset: 128, Size: 128, Free: true},
		{Offset: 256, Size: 256, Free: true},
		{Offset: 512, Size: 512, Free: true},
	}, regions(t, allocator))
	require.Equal(t, 5, allocator.FreeRegionsCount())
	require.Equal(t, 992, allocator.SumFreeSize())
	require.NoError(t, allocator.Validate())

	offset, err := allocator.Offset(data)
	require.NoError(t, err)
	require.Equal(t, buddy.HeaderSize, offset)

	blockSize, err := allocator.BlockSize(data)
	require.NoError(t, err)
	require.Equal(t, 32, blockSize)

	require.NoError(t, allocator.Release(data))
	require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, regions(t, allocator))
	require.Equal(t, 1, allocator.FreeRegionsCount())
	require.NoError(t, allocator.Validate())
}

func TestRelease_CoalescesInEitherOrder(t *testing.T) {
	testCases := map[string][]int{
		"FirstThenSecond": {0, 1},
		"SecondThenFirst": {1, 0},
	}

	for name, order := range testCases {
		t.Run(name, func(t *testing.T) {
			allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024, MinBlockSize: 16})

			blocks := [][]byte{allocator.Allocate(24), allocator.Allocate(24)}
			require.NotNil(t, blocks[0])
			require.NotNil(t, blocks[1])

			first, err := allocator.Offset(blocks[0])
			require.NoError(t, err)
			second, err := allocator.Offset(blocks[1])
			require.NoError(t, err)
			require.Equal(t, 8, first)
			require.Equal(t, 40, second)

			require.NoError(t, allocator.Release(blocks[order[0]]))
			require.NoError(t, allocator.Validate())
			require.NoError(t, allocator.Release(blocks[order[1]]))
			require.NoError(t, allocator.Validate())

			require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, regions(t, allocator))
		})
	}
}

func TestAllocate_Oversized(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mock_arena.NewMockSource(ctrl)

	allocator, err := buddy.New(discardLogger(), source, buddy.CreateOptions{HeapSize: 1024})
	require.NoError(t, err)

	require.Nil(t, allocator.Allocate(1024))
	require.Nil(t, allocator.Allocate(1024-buddy.HeaderSize+1))

	_, err = allocator.TryAllocate(4096)
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)

	// No state change and no arena was requested
	require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, regions(t, allocator))
	require.Equal(t, 0, allocator.AllocationCount())
	require.NoError(t, allocator.Close())
}

func TestAllocate_WholeArena(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})

	data := allocator.Allocate(1024 - buddy.HeaderSize)
	require.NotNil(t, data)
	require.Equal(t, 0, allocator.FreeRegionsCount())

	_, err := allocator.TryAllocate(0)
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)
	require.Nil(t, allocator.Allocate(1))

	require.NoError(t, allocator.Release(data))
	require.Equal(t, 1, allocator.FreeRegionsCount())
	require.NoError(t, allocator.Validate())
}

func TestAllocate_InvalidSize(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})

	_, err := allocator.TryAllocate(-1)
	require.ErrorIs(t, err, memutils.ErrInvalidSize)
	require.Nil(t, allocator.Allocate(-5))
}

func TestAllocate_ZeroSize(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})

	data := allocator.Allocate(0)
	require.NotNil(t, data)
	require.Len(t, data, 0)
	require.Equal(t, 8, cap(data))

	blockSize, err := allocator.BlockSize(data)
	require.NoError(t, err)
	require.Equal(t, 16, blockSize)

	require.NoError(t, allocator.Release(data))
	require.True(t, allocator.IsEmpty())
}

func TestAllocate_ZeroOnAllocate(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024, Flags: buddy.CreateZeroOnAllocate})

	data := allocator.Allocate(100)
	for i := range data {
		data[i] = 0xff
	}
	require.NoError(t, allocator.Release(data))

	data = allocator.Allocate(100)
	require.Equal(t, make([]byte, 100), data)
}

func TestAllocate_RoundTrip(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 4096})
	random := rand.New(rand.NewSource(7))

	var blocks [][]byte
	for {
		data := allocator.Allocate(random.Intn(200))
		if data == nil {
			break
		}
		blocks = append(blocks, data)
	}
	require.NotEmpty(t, blocks)
	require.Equal(t, len(blocks), allocator.AllocationCount())

	random.Shuffle(len(blocks), func(i, j int) {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	})
	for _, data := range blocks {
		require.NoError(t, allocator.Release(data))
		require.NoError(t, allocator.Validate())
	}

	require.Equal(t, []region{{Offset: 0, Size: 4096, Free: true}}, regions(t, allocator))
	require.True(t, allocator.IsEmpty())
}

func TestAllocate_RandomNoOverlap(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1 << 16, MinBlockSize: 32})
	random := rand.New(rand.NewSource(42))

	var live [][]byte
	for i := 0; i < 2000; i++ {
		if len(live) > 0 && random.Intn(3) == 0 {
			index := random.Intn(len(live))
			data := live[index]

			// Contents must have survived every other allocation and release
			for j := range data {
				require.Equal(t, byte(len(data)), data[j])
			}

			require.NoError(t, allocator.Release(data))
			live[index] = live[len(live)-1]
			live = live[:len(live)-1]
		} else {
			data := allocator.Allocate(random.Intn(1000))
			if data == nil {
				continue
			}

			for _, other := range live {
				require.False(t, overlap(data, other))
			}
			for j := range data {
				data[j] = byte(len(data))
			}
			live = append(live, data)
		}

		require.NoError(t, allocator.Validate())
	}

	require.Equal(t, len(live), allocator.AllocationCount())
	for _, data := range live {
		require.NoError(t, allocator.Release(data))
	}
	require.Equal(t, []region{{Offset: 0, Size: 1 << 16, Free: true}}, regions(t, allocator))
}

func TestRelease_Nil(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})
	require.NoError(t, allocator.Release(nil))
}

func TestRelease_DoubleRelease(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})

	first := allocator.Allocate(24)
	second := allocator.Allocate(24)
	third := allocator.Allocate(24)

	require.NoError(t, allocator.Release(third))
	err := allocator.Release(third)
	require.ErrorIs(t, err, memutils.ErrDoubleRelease)

	// After merging, the released header is gone entirely
	require.NoError(t, allocator.Release(first))
	require.NoError(t, allocator.Release(second))
	require.ErrorIs(t, allocator.Release(second), memutils.ErrDoubleRelease)
	require.ErrorIs(t, allocator.Release(first), memutils.ErrDoubleRelease)

	require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, regions(t, allocator))
	require.NoError(t, allocator.Validate())
}

func TestRelease_ForeignPointer(t *testing.T) {
	var logs bytes.Buffer
	allocator, err := buddy.New(slog.New(slog.NewTextHandler(&logs, nil)), arena.NewHeapSource(), buddy.CreateOptions{HeapSize: 1024})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Close())
	}()

	data := allocator.Allocate(10)
	before := regions(t, allocator)

	err = allocator.Release(make([]byte, 10))
	require.ErrorIs(t, err, memutils.ErrForeignPointer)
	require.ErrorIs(t, allocator.ReleaseAt(4096), memutils.ErrForeignPointer)
	require.ErrorIs(t, allocator.ReleaseAt(2), memutils.ErrForeignPointer)
	require.Contains(t, logs.String(), "rejected release")

	require.Equal(t, before, regions(t, allocator))
	require.NoError(t, allocator.Release(data))
}

func TestRelease_NotAtBlockStart(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024, Flags: buddy.CreateZeroOnAllocate})

	data := allocator.Allocate(100)
	before := regions(t, allocator)

	require.ErrorIs(t, allocator.Release(data[16:]), memutils.ErrCorruptHeader)
	require.ErrorIs(t, allocator.Release(data[3:]), memutils.ErrCorruptHeader)
	require.Equal(t, before, regions(t, allocator))

	require.NoError(t, allocator.Release(data))
}

func TestReleaseAt(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})

	require.ErrorIs(t, allocator.ReleaseAt(buddy.HeaderSize), memutils.ErrArenaNotAcquired)

	data := allocator.Allocate(50)
	offset, err := allocator.Offset(data)
	require.NoError(t, err)

	require.NoError(t, allocator.ReleaseAt(offset))
	require.ErrorIs(t, allocator.ReleaseAt(offset), memutils.ErrDoubleRelease)
	require.True(t, allocator.IsEmpty())
}

func TestUserData(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})

	data := allocator.Allocate(10)
	userData, err := allocator.UserData(data)
	require.NoError(t, err)
	require.Nil(t, userData)

	require.NoError(t, allocator.SetUserData(data, "first"))
	userData, err = allocator.UserData(data)
	require.NoError(t, err)
	require.Equal(t, "first", userData)

	var seen []any
	require.NoError(t, allocator.VisitAllRegions(func(offset int, size int, userData any, free bool) error {
		if !free {
			seen = append(seen, userData)
		}
		return nil
	}))
	require.Equal(t, []any{"first"}, seen)

	require.NoError(t, allocator.Release(data))
	_, err = allocator.UserData(data)
	require.ErrorIs(t, err, memutils.ErrDoubleRelease)
	require.ErrorIs(t, allocator.SetUserData(make([]byte, 1), 5), memutils.ErrForeignPointer)
}

func TestReset(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})

	for i := 0; i < 5; i++ {
		require.NotNil(t, allocator.Allocate(40))
	}
	require.Equal(t, 5, allocator.AllocationCount())

	allocator.Reset()
	require.True(t, allocator.IsEmpty())
	require.Equal(t, []region{{Offset: 0, Size: 1024, Free: true}}, regions(t, allocator))
	require.NoError(t, allocator.Validate())
}

func TestConcurrentAllocateRelease(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1 << 16})

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for i := 0; i < 500; i++ {
				data := allocator.Allocate(8 + (worker+i)%120)
				if data == nil {
					continue
				}
				data[0] = byte(worker)
				if data[0] != byte(worker) {
					panic("allocation shared between goroutines")
				}
				if err := allocator.Release(data); err != nil {
					panic(err)
				}
			}
		}(worker)
	}
	wg.Wait()

	require.True(t, allocator.IsEmpty())
	require.NoError(t, allocator.Validate())
	require.Equal(t, []region{{Offset: 0, Size: 1 << 16, Free: true}}, regions(t, allocator))
}

func TestCreateFlags_String(t *testing.T) {
	require.Equal(t, "None", buddy.CreateFlags(0).String())
	require.Equal(t, "CreateZeroOnAllocate", buddy.CreateZeroOnAllocate.String())
	require.Equal(t, "CreateExternallySynchronized|CreateZeroOnAllocate", (buddy.CreateExternallySynchronized | buddy.CreateZeroOnAllocate).String())
	require.Equal(t, "CreateZeroOnAllocate", (buddy.CreateZeroOnAllocate | buddy.CreateFlags(8)).String())
	require.Equal(t, "", buddy.CreateFlags(8).String())
}

func TestExternallySynchronized(t *testing.T) {
	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024, Flags: buddy.CreateExternallySynchronized})

	data := allocator.Allocate(100)
	require.NotNil(t, data)
	require.NoError(t, allocator.Validate())
	require.NoError(t, allocator.Release(data))
}

func TestAllocate_DebugFillPattern(t *testing.T) {
	if !memutils.DebugEnabled {
		t.Skip("payloads are only filled when built with the debug_mem_utils tag")
	}

	allocator := readyAllocator(t, buddy.CreateOptions{HeapSize: 1024})

	data := allocator.Allocate(40)
	for _, b := range data {
		require.Equal(t, memutils.CreatedFillPattern, b)
	}
	require.NoError(t, allocator.Release(data))
}
