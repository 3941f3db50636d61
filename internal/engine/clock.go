package engine

import "time"

// Clock supplies wall-clock time for session expiry and notification rate
// limiting.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
//
// Thread-safety: SystemClock is stateless and safe for concurrent use.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
