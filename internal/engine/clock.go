package engine

import "time"

// Clock provides wall-clock time in epoch milliseconds.
//
// All trial timing of record is computed as Clock.NowMillis() minus the
// trial's start timestamp at read time. Nothing accumulates elapsed time
// by counting ticks.
//
// Thread-safety: implementations must be safe for concurrent use, since the
// elapsed-time ticker reads the clock from its own goroutine.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

// NewSystemClock creates a clock backed by time.Now.
func NewSystemClock() SystemClock {
	return SystemClock{}
}

// NowMillis returns the current Unix time in milliseconds.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

// NowMillis calls f.
func (f ClockFunc) NowMillis() int64 {
	return f()
}
