package pdfquiz

import "fmt"

// SessionClock is the countdown that gates when questions become visible.
// It is advanced by explicit Tick calls; the Controller owns the ticker.
type SessionClock struct {
	initial   int
	remaining int
	running   bool
	paused    bool
	expired   bool
}

// NewSessionClock creates a stopped clock for a limit in minutes
func NewSessionClock(minutes int) *SessionClock {
	return &SessionClock{
		initial:   minutes * 60,
		remaining: minutes * 60,
	}
}

// Start begins counting down. Starting a clock with no time expires it at once.
func (c *SessionClock) Start() {
	c.running = true
	c.paused = false
	if c.remaining <= 0 && !c.expired {
		c.remaining = 0
		c.expired = true
	}
}

// Pause stops ticks from counting until Resume.
func (c *SessionClock) Pause() {
	if c.running && !c.expired {
		c.paused = true
	}
}

// Resume continues from the paused value.
func (c *SessionClock) Resume() {
	c.paused = false
}

// Restart resets to the initial value, unpaused and running.
func (c *SessionClock) Restart() {
	c.remaining = c.initial
	c.expired = false
	c.paused = false
	c.running = false
	c.Start()
}

// Tick removes one second. It returns true only on the tick that expires the clock.
func (c *SessionClock) Tick() bool {
	if !c.running || c.paused || c.expired {
		return false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.expired = true
		return true
	}
	return false
}

// Remaining is the number of seconds left.
func (c *SessionClock) Remaining() int { return c.remaining }

// Initial is the configured limit in seconds.
func (c *SessionClock) Initial() int { return c.initial }

// Paused reports whether ticks are currently ignored.
func (c *SessionClock) Paused() bool { return c.paused }

// Expired reports whether the countdown reached zero.
func (c *SessionClock) Expired() bool { return c.expired }

// Progress is the elapsed fraction of the countdown, 0 to 1.
func (c *SessionClock) Progress() float64 {
	if c.initial <= 0 {
		return 1
	}
	return float64(c.initial-c.remaining) / float64(c.initial)
}

// Format renders the remaining time as MM:SS.
func (c *SessionClock) Format() string {
	return FormatSeconds(c.remaining)
}

// FormatSeconds renders seconds as MM:SS
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
