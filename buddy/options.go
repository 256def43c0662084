package buddy

import (
	"io"

	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags uint32

const (
	// CreateExternallySynchronized ensures that the allocator will not be synchronized internally.
	// The consumer must guarantee it is used from only one goroutine at a time or is synchronized
	// by some other mechanism, but performance may improve because the internal mutex is not used.
	CreateExternallySynchronized CreateFlags = 1 << iota
	// CreateZeroOnAllocate zeroes every payload before it is returned. Arena memory is otherwise
	// handed out with whatever contents it last held.
	CreateZeroOnAllocate
)

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}

func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
	CreateZeroOnAllocate.Register("CreateZeroOnAllocate")
}

const (
	// DefaultHeapSize is the arena size used when CreateOptions.HeapSize is 0. It is equal to 1Mb.
	DefaultHeapSize int = 1024 * 1024
	// DefaultMinBlockSize is the smallest block used when CreateOptions.MinBlockSize is 0: room for a
	// header and one word of payload.
	DefaultMinBlockSize int = 2 * HeaderSize
	// MaxHeapSize is the largest supported arena. Free-list links are stored in 32 bits.
	MaxHeapSize int = 1 << 30
)

// CreateOptions contains optional settings when creating an allocator. It is valid to leave
// all the fields blank.
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags
	// HeapSize is the size in bytes of the single arena the allocator manages. It must be a
	// power of two.
	HeapSize int
	// MinBlockSize is the smallest block the allocator will split down to. It must be a power
	// of two of at least 16 bytes.
	MinBlockSize int

	// ArenaCallbacks is an optional set of callbacks that will be executed when the arena is
	// acquired from or returned to its source
	ArenaCallbacks *ArenaCallbackOptions

	// DumpOnClose, if set, receives the block map when the allocator is closed
	DumpOnClose io.Writer
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
