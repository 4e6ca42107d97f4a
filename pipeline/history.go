package pipeline

import (
	"image"
	"sync"
	"time"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// Options tunes a History.
type Options struct {
	// CoalesceWindow is how long after the previous push of the same
	// adjustable kind a new push still merges into it.  Zero disables merging.
	CoalesceWindow time.Duration
	// CoalesceMaxOps caps how many pushes merge into one entry; 0 is unlimited.
	CoalesceMaxOps int
	// Limit caps the number of entries.  On overflow the oldest entry is
	// folded into the base frames and can no longer be undone.  0 is unlimited.
	Limit int
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type entry struct {
	op     Operation
	last   time.Time // time of the most recent push merged into this entry
	merged int       // number of pushes folded into this entry
}

// result caches the output of the first cursor operations for one frame.
type result struct {
	cursor int
	img    *image.NRGBA
}

// History is the ordered, bounded stack of edits applied to a set of base
// frames.  Frames share one operation list, so animated images are edited
// uniformly.  The visible raster is computed lazily and cached per frame;
// a cached result is only trusted when its cursor equals the current one.
// History is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	opts    Options
	base    []*image.NRGBA
	entries []entry
	cursor  int
	sealed  bool // set by Undo/Redo/Revert; the next push starts a new entry
	results map[int]result
}

// NewHistory starts an empty history over frames.  The frames are treated as
// read-only.
func NewHistory(frames []*image.NRGBA, opts Options) *History {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base := make([]*image.NRGBA, len(frames))
	copy(base, frames)
	return &History{
		opts:    opts,
		base:    base,
		results: make(map[int]result),
	}
}

// Push validates op against the current raster size and appends it at the
// cursor, discarding any redo tail.  A rejected op leaves the history
// unchanged.  Consecutive pushes of the same adjustable kind inside the
// coalescing window replace the top entry instead of adding one.
func (h *History) Push(op Operation) error {
	if op == nil {
		return apperrors.Validation("edit.push", "nil operation")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.base) == 0 {
		return apperrors.New(apperrors.CategoryValidation, "edit.push", apperrors.ErrNoImage)
	}
	if err := op.Validate(h.sizeAtLocked(h.cursor)); err != nil {
		return err
	}

	now := h.opts.Now()
	if h.mergeLocked(op, now) {
		return nil
	}

	h.entries = append(h.entries[:h.cursor], entry{op: op, last: now, merged: 1})
	h.dropResultsLocked(func(c int) bool { return c > h.cursor })
	h.cursor++
	h.sealed = false

	if h.opts.Limit > 0 && len(h.entries) > h.opts.Limit {
		h.bakeOldestLocked()
	}
	return nil
}

func (h *History) mergeLocked(op Operation, now time.Time) bool {
	if h.sealed || h.cursor == 0 || h.cursor != len(h.entries) || h.opts.CoalesceWindow <= 0 {
		return false
	}
	top := &h.entries[h.cursor-1]
	adj, ok := top.op.(Adjustable)
	if !ok || top.op.Kind() != op.Kind() {
		return false
	}
	if now.Sub(top.last) > h.opts.CoalesceWindow {
		return false
	}
	if h.opts.CoalesceMaxOps > 0 && top.merged >= h.opts.CoalesceMaxOps {
		return false
	}
	merged, ok := adj.Merge(op)
	if !ok {
		return false
	}
	top.op, top.last = merged, now
	top.merged++
	h.dropResultsLocked(func(c int) bool { return c >= h.cursor })
	return true
}

// bakeOldestLocked folds entry 0 into the base frames.
func (h *History) bakeOldestLocked() {
	op := h.entries[0].op
	for i, f := range h.base {
		if r, ok := h.results[i]; ok && r.cursor == 1 {
			h.base[i] = r.img
			continue
		}
		h.base[i] = op.Apply(f)
	}
	h.entries = append(h.entries[:0:0], h.entries[1:]...)
	h.cursor--
	shifted := make(map[int]result, len(h.results))
	for i, r := range h.results {
		if r.cursor > 0 {
			shifted[i] = result{cursor: r.cursor - 1, img: r.img}
		}
	}
	h.results = shifted
}

// Undo moves the cursor back one entry.  It reports false at the start.
func (h *History) Undo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == 0 {
		return false
	}
	h.cursor--
	h.sealed = true
	return true
}

// Redo moves the cursor forward one entry.  It reports false at the end.
func (h *History) Redo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == len(h.entries) {
		return false
	}
	h.cursor++
	h.sealed = true
	return true
}

// Revert moves the cursor to the start.  The entries stay redoable.  It
// reports false when the cursor was already there.
func (h *History) Revert() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == 0 {
		return false
	}
	h.cursor = 0
	h.sealed = true
	return true
}

// Current returns frame i with every operation before the cursor applied, or
// nil if i is out of range.  The returned raster is shared; callers must not
// modify it.
func (h *History) Current(i int) *image.NRGBA {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.base) {
		return nil
	}

	r, ok := h.results[i]
	switch {
	case ok && r.cursor == h.cursor:
		return r.img
	case ok && r.cursor == h.cursor-1:
		r = result{cursor: h.cursor, img: h.entries[r.cursor].op.Apply(r.img)}
	case ok && r.cursor == h.cursor+1 && isInvertible(h.entries[h.cursor].op):
		inv := h.entries[h.cursor].op.(Invertible).Inverse()
		r = result{cursor: h.cursor, img: inv.Apply(r.img)}
	default:
		r = result{cursor: h.cursor, img: h.replayLocked(i)}
	}
	h.results[i] = r
	return r.img
}

func isInvertible(op Operation) bool {
	_, ok := op.(Invertible)
	return ok
}

func (h *History) replayLocked(i int) *image.NRGBA {
	img := h.base[i]
	for _, e := range h.entries[:h.cursor] {
		img = e.op.Apply(img)
	}
	return img
}

func (h *History) dropResultsLocked(stale func(cursor int) bool) {
	for i, r := range h.results {
		if stale(r.cursor) {
			delete(h.results, i)
		}
	}
}

func (h *History) sizeAtLocked(cursor int) image.Point {
	if len(h.base) == 0 {
		return image.Point{}
	}
	size := h.base[0].Rect.Size()
	for _, e := range h.entries[:cursor] {
		size = e.op.OutputSize(size)
	}
	return size
}

// Size returns the raster size at the cursor.
func (h *History) Size() image.Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sizeAtLocked(h.cursor)
}

// Len returns the number of entries, including redoable ones.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Cursor returns the number of applied entries.
func (h *History) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Frames returns the number of frames being edited.
func (h *History) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.base)
}

func (h *History) CanUndo() bool { return h.Cursor() > 0 }

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.entries)
}

// Ops returns a copy of every entry's operation; the first Cursor() are
// applied.
func (h *History) Ops() []Operation {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Operation, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.op
	}
	return out
}
