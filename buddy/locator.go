package buddy

import "math/bits"

// AreBuddies reports whether the blocks starting at addresses a and b differ in exactly one
// address bit relative to the arena base. The answer only means "buddies" when both blocks are
// known to have the same size; callers must check that separately.
//
// Offsets are computed at full pointer width, so arenas anywhere in a 64-bit address space are
// handled without truncation.
func AreBuddies(base, a, b uintptr) bool {
	return areBuddyOffsets(uint64(a-base), uint64(b-base))
}

func areBuddyOffsets(a, b uint64) bool {
	return bits.OnesCount64(a^b) == 1
}

// buddyOf returns the offset of the buddy of the size-byte block at offset
func buddyOf(offset, size int) int {
	return offset ^ size
}

func (a *Allocator) areBuddies(first, second int) bool {
	return AreBuddies(a.base, a.base+uintptr(first), a.base+uintptr(second))
}
