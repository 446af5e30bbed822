package clock

import "time"

// Clock abstracts wall-clock access so time-dependent logic can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// System returns a Clock backed by time.Now.
func System() Clock {
	return ClockFunc(time.Now)
}
