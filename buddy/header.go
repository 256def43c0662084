package buddy

import (
	"encoding/binary"

	"github.com/vkngwrapper/buddyheap/memutils"
	"github.com/vkngwrapper/core/v2/common"
)

const (
	// HeaderSize is the number of bytes in front of every payload
	HeaderSize = 8

	headerMagic uint16 = 0xB0DD

	// keep leaves a header field untouched in writeHeader
	keep = -1
	// noBlock marks an empty free list or the absence of a neighbor
	noBlock = -1
)

type blockStatus uint32

const (
	statusKeep blockStatus = iota
	statusFree
	statusAllocated
)

var blockStatusMapping = common.NewFlagStringMapping[blockStatus]()

func (s blockStatus) Register(str string) {
	blockStatusMapping.Register(s, str)
}

func (s blockStatus) String() string {
	return blockStatusMapping.FlagsToString(s)
}

func init() {
	statusFree.Register("Free")
	statusAllocated.Register("Allocated")
}

// header layout: [0] order, [1] status, [2:4] magic, [4:8] link
type header struct {
	size   int
	link   int
	status blockStatus
	valid  bool
}

func (a *Allocator) readHeader(offset int) header {
	raw := a.memory[offset : offset+HeaderSize]

	order := raw[0]
	status := blockStatus(raw[1])
	h := header{
		link:   int(binary.LittleEndian.Uint32(raw[4:8])),
		status: status,
	}

	if binary.LittleEndian.Uint16(raw[2:4]) != headerMagic || int(order) > a.maxOrder {
		return h
	}
	if status != statusFree && status != statusAllocated {
		return h
	}

	h.size = 1 << order
	h.valid = true
	return h
}

func (a *Allocator) writeHeader(offset, size, link int, status blockStatus) {
	raw := a.memory[offset : offset+HeaderSize]

	if size != keep {
		memutils.DebugCheckPow2(size, "block size")
		raw[0] = uint8(memutils.Log2(size))
	}
	if status != statusKeep {
		raw[1] = uint8(status)
	}
	binary.LittleEndian.PutUint16(raw[2:4], headerMagic)
	if link != keep {
		binary.LittleEndian.PutUint32(raw[4:8], uint32(link))
	}
}

// clearHeader wipes a header that no longer starts a block
func (a *Allocator) clearHeader(offset int) {
	raw := a.memory[offset : offset+HeaderSize]
	for i := range raw {
		raw[i] = 0
	}
}
