package arena

import (
	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/cockroachdb/errors"
)

// PooledSource draws arenas from size-classed buffer pools, which suits programs that create and
// close many short-lived allocators of the same heap size.
type PooledSource struct{}

var _ Source = PooledSource{}

func NewPooledSource() PooledSource {
	return PooledSource{}
}

func (PooledSource) Acquire(capacity int) ([]byte, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	return mcache.Malloc(capacity), nil
}

func (PooledSource) Release(region []byte) error {
	if cap(region) == 0 {
		return errors.New("cannot release an empty region")
	}
	mcache.Free(region)
	return nil
}
