package logic

import "time"

// Clock is the node's wall clock. Until the first Set it counts from the Unix
// epoch; afterwards it runs from the last GPS correction, which may move it
// backward as well as forward.
type Clock struct {
	mono  func() time.Time
	base  time.Time
	setAt time.Time
	set   bool
}

// NewClock creates a clock that advances with mono, the platform's
// monotonic time source.
func NewClock(mono func() time.Time) *Clock {
	return &Clock{
		mono:  mono,
		base:  time.Unix(0, 0).UTC(),
		setAt: mono(),
	}
}

// Set corrects the clock to t.
func (c *Clock) Set(t time.Time) {
	c.base = t.UTC().Truncate(time.Second)
	c.setAt = c.mono()
	c.set = true
}

// Now returns the current wall-clock time at second resolution.
func (c *Clock) Now() time.Time {
	return c.base.Add(c.mono().Sub(c.setAt)).Truncate(time.Second)
}

// IsSet reports whether a GPS time fix has ever been applied.
func (c *Clock) IsSet() bool {
	return c.set
}
