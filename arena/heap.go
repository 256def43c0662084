package arena

import "github.com/bytedance/gopkg/lang/dirtmake"

// HeapSource carves arenas out of the Go heap. The contents of a new region are not zeroed;
// the allocator writes every header it reads.
type HeapSource struct{}

var _ Source = HeapSource{}

func NewHeapSource() HeapSource {
	return HeapSource{}
}

func (HeapSource) Acquire(capacity int) ([]byte, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	return dirtmake.Bytes(capacity, capacity), nil
}

// Release drops the region and leaves it to the garbage collector.
func (HeapSource) Release(region []byte) error {
	return nil
}
