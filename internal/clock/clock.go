package clock

import "time"

// Clock provides time-related functions that can be mocked for testing
type Clock interface {
	Now() time.Time
	// After waits for the duration to elapse and then sends the current time
	// on the returned channel. The wait is a timer, not a blocked thread.
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using actual system time
type RealClock struct{}

// Now returns the current system time
func (RealClock) Now() time.Time {
	return time.Now()
}

// After returns time.After(d)
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
