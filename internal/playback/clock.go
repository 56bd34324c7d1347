// Package playback tracks the composition clock for interactive preview and
// serves media and export artifacts over HTTP with range support.
package playback

import (
	"sync"
	"time"
)

// State is the clock's drive mode, an explicit tagged union rather than
// layered boolean flags.
type State int

const (
	// Stopped: the clock holds its position and nothing advances it.
	Stopped State = iota
	// InternalTimer: the clock advances autonomously via Advance ticks.
	InternalTimer
	// ExternalDriven: a collaborator (narration playback) supplies the
	// time; internal ticking is suppressed.
	ExternalDriven
	// Seeking: transient settle window after a seek, UI feedback only.
	Seeking
)

func (s State) String() string {
	switch s {
	case InternalTimer:
		return "internal"
	case ExternalDriven:
		return "external"
	case Seeking:
		return "seeking"
	default:
		return "stopped"
	}
}

// DefaultSettle is how long the clock reports Seeking after a seek.
const DefaultSettle = 150 * time.Millisecond

// Clock tracks current composition time under either an autonomous timer or
// an externally driven source. All methods are safe for concurrent use.
type Clock struct {
	mu sync.Mutex

	state  State
	resume State // state restored when the seek settle window expires

	time  float64
	total float64
	loop  bool

	settle    time.Duration
	settleEnd time.Time

	now func() time.Time
}

// NewClock returns a stopped clock over [0, total].
func NewClock(total float64) *Clock {
	if total < 0 {
		total = 0
	}
	return &Clock{
		total:  total,
		settle: DefaultSettle,
		now:    time.Now,
	}
}

// SetTotal updates the clock's range, clamping the current position into it.
func (c *Clock) SetTotal(total float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if total < 0 {
		total = 0
	}
	c.total = total
	if c.time > total {
		c.time = total
	}
}

// SetLoop controls whether reaching the end wraps to 0 or stops.
func (c *Clock) SetLoop(loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = loop
}

// Play switches to the autonomous internal timer.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveSeekLocked()
	c.state = InternalTimer
}

// Stop halts the clock, keeping its position.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Stopped
	c.resume = Stopped
}

// DriveExternal hands the clock to an external source. Internal ticking is
// suppressed until Play or Stop is called.
func (c *Clock) DriveExternal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveSeekLocked()
	c.state = ExternalDriven
}

// SetExternalTime records the time reported by the external source. Ignored
// unless the clock is externally driven.
func (c *Clock) SetExternalTime(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveSeekLocked()
	if c.state != ExternalDriven {
		return
	}
	c.time = clamp(t, 0, c.total)
}

// Advance moves the internal timer forward by dt seconds. Ignored unless the
// clock runs on the internal timer. Reaching the end wraps to 0 when looping,
// otherwise the clock stops at total.
func (c *Clock) Advance(dt float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveSeekLocked()
	if c.state != InternalTimer || dt <= 0 {
		return
	}
	c.time += dt
	if c.time >= c.total {
		if c.loop && c.total > 0 {
			c.time = 0
		} else {
			c.time = c.total
			c.state = Stopped
			c.resume = Stopped
		}
	}
}

// Seek sets the time directly, clamped to [0, total], and enters the
// transient Seeking state for a short settle window. The previous drive mode
// resumes when the window expires.
func (c *Clock) Seek(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveSeekLocked()
	c.time = clamp(t, 0, c.total)
	if c.state != Seeking {
		c.resume = c.state
	}
	c.state = Seeking
	c.settleEnd = c.now().Add(c.settle)
}

// Current returns the clock position in seconds.
func (c *Clock) Current() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// State returns the drive mode, resolving an expired seek settle window.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveSeekLocked()
	return c.state
}

// Total returns the clock's range end.
func (c *Clock) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Clock) resolveSeekLocked() {
	if c.state == Seeking && !c.now().Before(c.settleEnd) {
		c.state = c.resume
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
