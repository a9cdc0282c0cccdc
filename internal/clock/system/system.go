// Package system provides wall-clock and fixed implementations of snapshot.Clock.
package system

import (
	"time"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

// Clock reads the wall clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}

var (
	_ snapshot.Clock = Clock{}
	_ snapshot.Clock = Fixed{}
)
