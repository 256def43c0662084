package buddy

type AcquireArenaCallback func(
	allocator *Allocator,
	size int,
	userData any,
)

type ReleaseArenaCallback func(
	allocator *Allocator,
	size int,
	userData any,
)

// ArenaCallbackOptions lets a consumer observe the arena's lifetime, for instance to account
// for memory drawn from the operating system.
type ArenaCallbackOptions struct {
	Acquire  AcquireArenaCallback
	Release  ReleaseArenaCallback
	UserData any
}

type arenaCallbacks struct {
	Callbacks *ArenaCallbackOptions
	Allocator *Allocator
}

func (c *arenaCallbacks) Acquire(size int) {
	if c.Callbacks != nil && c.Callbacks.Acquire != nil {
		c.Callbacks.Acquire(c.Allocator, size, c.Callbacks.UserData)
	}
}

func (c *arenaCallbacks) Release(size int) {
	if c.Callbacks != nil && c.Callbacks.Release != nil {
		c.Callbacks.Release(c.Allocator, size, c.Callbacks.UserData)
	}
}
