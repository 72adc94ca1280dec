// Package domain holds building blocks shared across bounded contexts.
package domain

import "time"

// Clock is the injectable source of the current instant. Every
// time-dependent decision reads from it so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current instant.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant; intended for tests.
type FixedClock struct {
	Instant time.Time
}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time { return c.Instant }
