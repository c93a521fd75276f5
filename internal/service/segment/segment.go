package segment

import "sync/atomic"

// SessionCounter numbers recording sessions. Every restart of recording takes
// the next number; merged segments carry it so different recordings stay
// grouped in chronological output.
type SessionCounter struct {
	counter atomic.Int64
}

// New creates a counter whose current session is 0.
func New() *SessionCounter {
	return &SessionCounter{}
}

// Next advances to a new recording session and returns its number.
func (c *SessionCounter) Next() int {
	return int(c.counter.Add(1))
}

// Current returns the current recording session number.
func (c *SessionCounter) Current() int {
	return int(c.counter.Load())
}
