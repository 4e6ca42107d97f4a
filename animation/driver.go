// Package animation selects which frame of a multi-frame image is visible at
// a given playback time.
package animation

import (
	"sort"
	"time"

	"github.com/Skryldev/rasterpipe/config"
)

// Driver tracks playback position over a fixed list of frame delays.  It
// never touches pixels: CurrentFrame is an index into frames the caller
// already holds.  Driver is not safe for concurrent use; the coordinator
// serializes access.
type Driver struct {
	delays []time.Duration
	// ends[i] is the playback time at which frame i stops showing.
	ends   []time.Duration
	total  time.Duration
	policy config.LoopPolicy
	pos    time.Duration
	done   bool
}

// NewDriver returns a driver positioned at the first frame.  Negative delays
// count as zero.
func NewDriver(delays []time.Duration, policy config.LoopPolicy) *Driver {
	d := &Driver{
		delays: make([]time.Duration, len(delays)),
		ends:   make([]time.Duration, len(delays)),
		policy: policy,
	}
	for i, v := range delays {
		if v < 0 {
			v = 0
		}
		d.delays[i] = v
		d.total += v
		d.ends[i] = d.total
	}
	return d
}

// Animated reports whether ticking can change the frame.
func (d *Driver) Animated() bool { return len(d.delays) > 1 && d.total > 0 }

// FrameCount returns the number of frames.
func (d *Driver) FrameCount() int { return len(d.delays) }

// Done reports whether a play-once animation has reached its last frame.
func (d *Driver) Done() bool { return d.done }

// Position returns the playback time within the current loop.
func (d *Driver) Position() time.Duration { return d.pos }

// Tick advances playback by dt and reports whether the visible frame changed.
// Under LoopForever the position wraps; under LoopOnce it stops on the last
// frame.  Non-positive dt is ignored.
func (d *Driver) Tick(dt time.Duration) bool {
	if dt <= 0 || !d.Animated() || d.done {
		return false
	}
	before := d.CurrentFrame()
	d.pos += dt
	if d.pos >= d.total {
		if d.policy == config.LoopOnce {
			d.pos = d.total - d.delays[len(d.delays)-1]
			d.done = true
		} else {
			d.pos %= d.total
		}
	}
	return d.CurrentFrame() != before
}

// CurrentFrame returns the index of the visible frame.  It has no side effects.
func (d *Driver) CurrentFrame() int {
	if len(d.delays) == 0 {
		return 0
	}
	if d.done {
		return len(d.delays) - 1
	}
	// First frame whose end is after pos; zero-length frames are skipped.
	i := sort.Search(len(d.ends), func(i int) bool { return d.ends[i] > d.pos })
	if i >= len(d.ends) {
		return len(d.ends) - 1
	}
	return i
}

// NextDeadline returns how long until the visible frame changes.  ok is false
// for still images and finished play-once animations.
func (d *Driver) NextDeadline() (time.Duration, bool) {
	if !d.Animated() || d.done {
		return 0, false
	}
	return d.ends[d.CurrentFrame()] - d.pos, true
}

// Reset rewinds to the first frame.
func (d *Driver) Reset() {
	d.pos = 0
	d.done = false
}
