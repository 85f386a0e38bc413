package utils

import "time"

// Clock abstracts the current time so expense date defaults are testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock reports a preset instant, for tests.
type FixedClock struct {
	Instant time.Time
}

func (c *FixedClock) Now() time.Time {
	return c.Instant
}

func (c *FixedClock) Advance(d time.Duration) {
	c.Instant = c.Instant.Add(d)
}
