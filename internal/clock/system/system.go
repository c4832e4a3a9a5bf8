// Package system provides the wall clock used in production.
package system

import "time"

// Clock implements schedule.Clock using time.Now, always in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
