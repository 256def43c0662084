// Package buddy implements a binary-buddy allocator over a single fixed-size arena.
//
// The arena is requested from an arena.Source the first time memory is allocated and is never
// grown. Every block in it, free or allocated, starts with an 8-byte header holding the block's
// size, an explicit free/allocated tag, a magic value and a link field. Free blocks form a
// singly linked list in ascending address order; each link is the distance in bytes from the
// block holding it to the next free block, and 0 marks the tail.
//
// Allocation takes the first free block large enough for the request plus its header, halving
// it until the next halving would be too small. Release puts the block back in the list at its
// address-ordered position and merges it with its buddy for as long as the buddy is free and of
// the same size.
//
// # Basic Usage
//
//	allocator, err := buddy.New(logger, arena.NewMmapSource(), buddy.CreateOptions{})
//	if err != nil {
//		return err
//	}
//	defer allocator.Close()
//
//	data := allocator.Allocate(100) // nil when the arena is exhausted
//	...
//	err = allocator.Release(data)
//
// # Thread Safety
//
// Each Allocator guards its state with one coarse lock. Consumers that already serialize access
// can pass CreateExternallySynchronized to skip it.
//
// # Memory Layout
//
// Headers live inside the arena, directly in front of each payload. A payload's capacity stops
// at the end of its block, so appending past it reallocates instead of reaching the next header.
// Writes that bypass the slice bounds can still damage headers; Validate and Release detect most
// such damage but cannot repair it.
package buddy
