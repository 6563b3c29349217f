package clock

import "time"

// FakeClock is a manually driven Clock for tests. Nonce expiry and billing
// period math both compare against Now, so tests move time with Advance
// instead of sleeping.
type FakeClock struct {
	current time.Time
}

// NewFakeClock pins the clock at t, normalized to UTC to match what the
// system clock hands out.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.current
}

// Advance moves the clock forward (or backward, with a negative d).
func (c *FakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
