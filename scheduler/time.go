package scheduler

import "time"

// Ticks is the scheduler's abstract time, in milliseconds. The scheduler never
// reads a wall clock itself; it is fed time through a Clock oracle so that it
// can run under a virtual clock (harness, tests) or real time (cmd/server).
//
// Comparisons are wraparound-safe: they remain correct if the tick counter
// overflows, as long as the two instants compared are less than half the
// Ticks range apart.
type Ticks int64

// Clock returns the current time. Must be monotonic.
type Clock func() Ticks

// WallClock is the default Clock: milliseconds of wall time.
func WallClock() Ticks {
	return Ticks(time.Now().UnixNano() / int64(time.Millisecond))
}

// ticksBefore reports whether a is strictly before b.
func ticksBefore(a, b Ticks) bool {
	return a-b < 0
}

// ticksAfterEq reports whether a is at or after b.
func ticksAfterEq(a, b Ticks) bool {
	return !ticksBefore(a, b)
}

func maxTicks(a, b Ticks) Ticks {
	if ticksBefore(a, b) {
		return b
	}
	return a
}
