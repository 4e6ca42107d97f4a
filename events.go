package rasterpipe

import (
	"image"
	"time"

	"github.com/Skryldev/rasterpipe/core"
)

// EventKind names what a coordinator Event reports.
type EventKind string

const (
	// EventDisplayReady: a navigation finished and Image is the first frame
	// to show.  At most one is emitted per navigation.
	EventDisplayReady EventKind = "display_ready"
	// EventDecodeFailed: the newest navigation could not be decoded.  The
	// previously displayed image, if any, stays current.
	EventDecodeFailed EventKind = "decode_failed"
	// EventCacheEvicted is informational, for memory-usage displays.
	EventCacheEvicted EventKind = "cache_evicted"
	// EventEdited: the edit history moved; Image is the new visible frame.
	EventEdited EventKind = "edited"
	// EventClosed: the current image was dropped.
	EventClosed EventKind = "closed"
)

// Event is delivered to subscribers.  Image is shared and must not be modified.
type Event struct {
	Kind   EventKind
	Token  core.LoadToken
	Key    core.Fingerprint
	Source string

	Image      *image.NRGBA
	Frame      int
	FrameDelay time.Duration // zero for still images
	Meta       core.Metadata

	Err  error
	Time time.Time
}

// displaces reports whether k may push an older event out of a full buffer.
func (k EventKind) displaces() bool {
	return k == EventDisplayReady || k == EventDecodeFailed || k == EventClosed
}

type subscriber struct {
	ch chan Event
}

// send queues ev without blocking and returns the event lost to a full
// buffer, if any.
func (s *subscriber) send(ev Event) (lost Event, dropped bool) {
	for {
		select {
		case s.ch <- ev:
			return lost, dropped
		default:
		}
		if !ev.Kind.displaces() {
			return ev, true
		}
		select {
		case lost = <-s.ch:
			dropped = true
		default:
		}
	}
}

// Subscribe returns a channel receiving every subsequent event and a function
// that ends the subscription.  Delivery never blocks the pipeline.  When the
// channel's buffer is full, edited and cache_evicted events are dropped with a
// warning, while display_ready, decode_failed and closed push out the oldest
// queued event, so a slow reader always learns the outcome of the newest
// navigation.  Current is the authoritative state after any drop.  A buffer
// of 0 uses Config.EventBuffer.  The channel is closed by the cancel function
// or by Stop.
func (c *Coordinator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = c.cfg.EventBuffer
	}
	if buffer <= 0 {
		buffer = 1
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	c.subMu.Lock()
	if c.subsClosed {
		c.subMu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	c.subs[s] = struct{}{}
	c.subMu.Unlock()

	return s.ch, func() {
		c.subMu.Lock()
		if _, ok := c.subs[s]; ok {
			delete(c.subs, s)
			close(s.ch)
		}
		c.subMu.Unlock()
	}
}

func (c *Coordinator) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for s := range c.subs {
		if lost, dropped := s.send(ev); dropped {
			c.logger.Warn("coordinator.event.dropped",
				"kind", string(lost.Kind),
				"key", string(lost.Key),
				"buffer", cap(s.ch),
			)
		}
	}
}

func (c *Coordinator) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subsClosed = true
	for s := range c.subs {
		close(s.ch)
		delete(c.subs, s)
	}
}
