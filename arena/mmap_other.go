//go:build !unix

package arena

// MmapSource falls back to the Go heap on platforms without mmap.
type MmapSource struct {
	HeapSource
}

var _ Source = MmapSource{}

func NewMmapSource() MmapSource {
	return MmapSource{}
}
