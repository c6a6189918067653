// Package dedup provides a bounded insertion-ordered set of processed
// event identifiers.
package dedup

const (
	// DefaultHighWater is the size at which the cache starts evicting.
	DefaultHighWater = 1000
	// DefaultLowWater is the size the cache is trimmed down to.
	DefaultLowWater = 500
)

// Cache remembers which event ids have already been dispatched. Eviction is
// FIFO by insertion order: when an insert pushes the size past the high-water
// mark, the oldest entries are dropped until only lowWater remain.
//
// Cache is not safe for concurrent use. All access must happen on the
// adapter's dispatch goroutine; MarkIfNew has no suspension point between
// the membership test and the insert, so admission is at-most-once per id.
type Cache struct {
	seen      map[string]struct{}
	order     []string
	highWater int
	lowWater  int
}

// New creates a cache with the given watermarks. Non-positive or inverted
// watermarks fall back to the defaults.
func New(highWater, lowWater int) *Cache {
	if highWater <= 0 || lowWater <= 0 || lowWater > highWater {
		highWater = DefaultHighWater
		lowWater = DefaultLowWater
	}
	return &Cache{
		seen:      make(map[string]struct{}, highWater),
		order:     make([]string, 0, highWater),
		highWater: highWater,
		lowWater:  lowWater,
	}
}

// MarkIfNew records id and reports true if it has not been seen before.
// Already-seen ids return false without mutating the cache.
func (c *Cache) MarkIfNew(id string) bool {
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.order) > c.highWater {
		cut := len(c.order) - c.lowWater
		for _, old := range c.order[:cut] {
			delete(c.seen, old)
		}
		c.order = append(c.order[:0], c.order[cut:]...)
	}
	return true
}

// Contains reports whether id has been recorded.
func (c *Cache) Contains(id string) bool {
	_, ok := c.seen[id]
	return ok
}

// Len returns the number of ids currently retained.
func (c *Cache) Len() int {
	return len(c.order)
}
