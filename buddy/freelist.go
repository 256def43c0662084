package buddy

// nextFree follows a relative link to the next free block
func nextFree(offset, link int) int {
	if link == 0 {
		return noBlock
	}
	return offset + link
}

// setNext points from at to, recomputing the relative link. A from of noBlock rewrites the head.
func (a *Allocator) setNext(from, to int) {
	if from == noBlock {
		a.head = to
		return
	}

	link := 0
	if to != noBlock {
		link = to - from
	}
	a.writeHeader(from, keep, link, statusKeep)
}

// findFirstFit returns the first free block of at least minSize bytes in address order, along
// with its predecessor in the free list.
func (a *Allocator) findFirstFit(minSize int) (offset, prev int) {
	prev = noBlock
	offset = a.head

	for offset != noBlock {
		h := a.readHeader(offset)
		if h.size >= minSize {
			return offset, prev
		}

		prev = offset
		offset = nextFree(offset, h.link)
	}

	return noBlock, prev
}

// unlink detaches a block chosen for allocation. prev must be its predecessor as returned by
// findFirstFit.
func (a *Allocator) unlink(prev, offset int) {
	h := a.readHeader(offset)
	a.setNext(prev, nextFree(offset, h.link))

	a.freeCount--
	a.freeBytes -= h.size
}

// insertSorted marks the size-byte block at offset free and links it in at its address-ordered
// position.
func (a *Allocator) insertSorted(offset, size int) {
	prev := noBlock
	next := a.head
	for next != noBlock && next < offset {
		prev = next
		next = nextFree(next, a.readHeader(next).link)
	}

	a.writeHeader(offset, size, 0, statusFree)
	a.setNext(offset, next)
	a.setNext(prev, offset)

	a.freeCount++
	a.freeBytes += size
}

// freeBlockContaining returns the free block whose range covers offset, if any
func (a *Allocator) freeBlockContaining(offset int) int {
	for current := a.head; current != noBlock; {
		h := a.readHeader(current)
		if current > offset {
			break
		}
		if offset < current+h.size {
			return current
		}
		current = nextFree(current, h.link)
	}

	return noBlock
}
