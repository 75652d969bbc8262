package documents

import (
	"sync"
	"time"
)

// Clock issues version timestamps.
type Clock interface {
	// Now returns a timestamp strictly after every timestamp it returned before.
	Now() time.Time
}

// MonotonicClock derives strictly increasing UTC timestamps from the wall clock.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock creates a MonotonicClock reading time.Now.
func NewClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

// after returns a clock reading later than prev.
// Another node may have stored prev from a clock running ahead of ours.
func after(c Clock, prev *time.Time) time.Time {
	t := c.Now()
	if prev != nil && !t.After(*prev) {
		t = prev.Add(time.Nanosecond)
	}
	return t
}
