// Package system provides a real clock implementation.
package system

import "time"

// Clock implements catalog.Clock using time.Now in a fixed location. Run
// folder names are derived from it, so it defaults to local time.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting local time.
func New() *Clock {
	return &Clock{loc: time.Local}
}

// NewIn creates a Clock reporting time in loc.
func NewIn(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}
