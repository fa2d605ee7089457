// Atomic value with validity timeout.
// "modified" timestamp is updated after value, without consistency.
// Usage scenario: latest sensor reading, one writer and many readers.
// All methods except `Init` are thread-safe.
package cacheval

import (
	"sync/atomic"
	"time"

	"github.com/temoto/telemeter/helpers/atomic_clock"
)

type Int32 struct {
	value   int32
	updated *atomic_clock.Clock
	valid   time.Duration
}

// Not thread-safe. `valid` duration cannot be changed later.
func (c *Int32) Init(valid time.Duration) {
	c.updated = atomic_clock.New(0)
	c.valid = valid
}

func (c *Int32) get(now int64) (int32, bool) {
	v := atomic.LoadInt32(&c.value)
	if c.updated.IsZero() {
		return v, false
	}
	age := atomic_clock.New(now).Sub(c.updated)
	return v, age >= 0 && age <= c.valid
}

// Returns current (possibly stale) value. Never set value is 0.
func (c *Int32) Get() int32 { return atomic.LoadInt32(&c.value) }

// Returns current value and true if it's fresh. Costs current timestamp lookup.
func (c *Int32) GetFresh() (int32, bool) { return c.get(atomic_clock.Source()) }

// Age since last Set, 0 if never set.
func (c *Int32) Age() time.Duration { return atomic_clock.Since(c.updated) }

// Updates value and modified timestamp.
// Both value and timestamp are updated atomically, but not consistently with each other.
func (c *Int32) Set(new int32) {
	atomic.StoreInt32(&c.value, new)
	c.updated.SetNow()
}
