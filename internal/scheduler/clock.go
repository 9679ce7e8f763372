package scheduler

import "time"

// Clock abstracts time.Now()/time.Sleep() so tests can drive the scheduler's
// literal scenario timings (spec.md §8) without real waits. All timestamps
// in InternalState are read through a Clock, per DESIGN NOTES §9.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// realClock is the production Clock, backed by the monotonic wall clock.
type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
