package memutils

import "math"

// Statistics is a cheap summary of one or more arenas. Counters are summed by AddStatistics so
// a consumer can aggregate several allocators into one value.
type Statistics struct {
	ArenaCount      int
	ArenaBytes      int
	AllocationCount int
	// AllocationBytes counts whole blocks handed out, headers included
	AllocationBytes int
	// RequestedBytes counts the payload sizes callers asked for
	RequestedBytes int
}

func (s *Statistics) Clear() {
	s.ArenaCount = 0
	s.ArenaBytes = 0
	s.AllocationCount = 0
	s.AllocationBytes = 0
	s.RequestedBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.ArenaCount += other.ArenaCount
	s.ArenaBytes += other.ArenaBytes
	s.AllocationCount += other.AllocationCount
	s.AllocationBytes += other.AllocationBytes
	s.RequestedBytes += other.RequestedBytes
}

// FreeBytes is the number of arena bytes not covered by an allocated block
func (s *Statistics) FreeBytes() int {
	return s.ArenaBytes - s.AllocationBytes
}

// InternalFragmentation returns the share of allocated block bytes that callers did not ask
// for (headers and power-of-two rounding), from 0 to 1.
func (s *Statistics) InternalFragmentation() float64 {
	if s.AllocationBytes == 0 {
		return 0
	}
	return float64(s.AllocationBytes-s.RequestedBytes) / float64(s.AllocationBytes)
}

// DetailedStatistics extends Statistics with per-block extremes. It must be Clear'd before
// use so the minimums start at math.MaxInt.
type DetailedStatistics struct {
	Statistics
	FreeBlockCount    int
	AllocationSizeMin int
	AllocationSizeMax int
	FreeBlockSizeMin  int
	FreeBlockSizeMax  int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeBlockCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.FreeBlockSizeMin = math.MaxInt
	s.FreeBlockSizeMax = 0
}

func (s *DetailedStatistics) AddFreeBlock(size int) {
	s.FreeBlockCount++

	if size < s.FreeBlockSizeMin {
		s.FreeBlockSizeMin = size
	}

	if size > s.FreeBlockSizeMax {
		s.FreeBlockSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(blockSize, requested int) {
	s.AllocationCount++
	s.AllocationBytes += blockSize
	s.RequestedBytes += requested

	if blockSize < s.AllocationSizeMin {
		s.AllocationSizeMin = blockSize
	}

	if blockSize > s.AllocationSizeMax {
		s.AllocationSizeMax = blockSize
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeBlockCount += other.FreeBlockCount

	if other.FreeBlockSizeMin < s.FreeBlockSizeMin {
		s.FreeBlockSizeMin = other.FreeBlockSizeMin
	}

	if other.FreeBlockSizeMax > s.FreeBlockSizeMax {
		s.FreeBlockSizeMax = other.FreeBlockSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}
