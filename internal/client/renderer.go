package client

import (
	"sync"
	"time"
)

const (
	// typeStep is how many characters each animation step reveals.
	typeStep = 5
	// minTypeDelay and maxTypeDelay bound the pacing between steps. The
	// delay shrinks quadratically as the undisplayed backlog grows so the
	// animation catches up instead of lagging ever further behind.
	minTypeDelay = 1 * time.Millisecond
	maxTypeDelay = 10 * time.Millisecond
)

// Renderer paces the display of streamed text. Chunks land in full as they
// arrive; Step reveals up to typeStep characters at a time and reports how
// long to wait before the next step. The displayed prefix never shrinks.
type Renderer struct {
	mu        sync.Mutex
	full      []rune
	displayed int
	done      bool
}

// Append adds streamed text to the backlog.
func (r *Renderer) Append(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full = append(r.full, []rune(text)...)
}

// Finish marks the stream complete. The animation keeps stepping until the
// backlog is drained.
func (r *Renderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
}

// Displayed returns the currently visible prefix.
func (r *Renderer) Displayed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.full[:r.displayed])
}

// Full returns everything received so far.
func (r *Renderer) Full() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.full)
}

// Step reveals the next batch. It returns the visible text, the delay
// before the next step, and whether the animation should continue. The
// animation terminates only once the stream is done and the display has
// caught up.
func (r *Renderer) Step() (string, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := len(r.full) - r.displayed
	if remaining > 0 {
		step := typeStep
		if remaining < step {
			step = remaining
		}
		r.displayed += step
	}

	visible := string(r.full[:r.displayed])
	caughtUp := r.displayed >= len(r.full)
	if caughtUp && r.done {
		return visible, 0, false
	}
	return visible, r.delay(), true
}

// delay interpolates between the bounds on the square of the backlog
// fraction: small backlogs type slowly for effect, large backlogs rush.
func (r *Renderer) delay() time.Duration {
	left := len(r.full) - r.displayed
	switch {
	case left <= 25:
		return maxTypeDelay
	case left >= 250:
		return minTypeDelay
	}
	t := float64(left-25) / 225
	d := time.Duration(float64(maxTypeDelay) - float64(maxTypeDelay-minTypeDelay)*t*t)
	if d < minTypeDelay {
		d = minTypeDelay
	}
	if d > maxTypeDelay {
		d = maxTypeDelay
	}
	return d
}
