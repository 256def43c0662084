//go:build unix

package arena

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// MmapSource maps anonymous, private, read-write memory straight from the operating system,
// keeping the arena outside the Go heap.
type MmapSource struct{}

var _ Source = MmapSource{}

func NewMmapSource() MmapSource {
	return MmapSource{}
}

func (MmapSource) Acquire(capacity int) ([]byte, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}

	region, err := unix.Mmap(-1, 0, capacity, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map %d bytes", capacity)
	}
	return region, nil
}

func (MmapSource) Release(region []byte) error {
	if len(region) == 0 {
		return errors.New("cannot unmap an empty region")
	}
	return errors.Wrap(unix.Munmap(region), "failed to unmap arena")
}
