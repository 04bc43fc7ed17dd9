package market

import "time"

// Clock supplies wall-clock time for deadline comparisons. Injecting
// it keeps anti-snipe and expiry behavior deterministic in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the system clock.
func RealClock() Clock { return realClock{} }

// FixedClock is a test clock pinned to T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
