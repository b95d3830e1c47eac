package testutil

import (
	"sync"
	"time"
)

// ManualClock is a wall clock that only moves when a test moves it.
//
// Unlike engine.SystemClock, ManualClock makes trial durations and freeze
// offsets exact, so reports and golden exports are byte-identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a clock frozen at epochMs.
func NewManualClock(epochMs int64) *ManualClock {
	return &ManualClock{now: epochMs}
}

// NewManualClockAt creates a clock frozen at t.
func NewManualClockAt(t time.Time) *ManualClock {
	return NewManualClock(t.UnixMilli())
}

// NowMillis returns the current frozen time.
func (c *ManualClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by ms and returns the new time.
//
// Monotonic: negative values are ignored.
func (c *ManualClock) Advance(ms int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms > 0 {
		c.now += ms
	}
	return c.now
}

// Set moves the clock to epochMs. Used by scripted scenarios.
func (c *ManualClock) Set(epochMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epochMs
}
