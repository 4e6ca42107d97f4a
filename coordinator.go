package rasterpipe

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Skryldev/rasterpipe/adapters/decoder"
	"github.com/Skryldev/rasterpipe/adapters/encoder"
	"github.com/Skryldev/rasterpipe/adapters/storage"
	"github.com/Skryldev/rasterpipe/adapters/vips"
	"github.com/Skryldev/rasterpipe/animation"
	"github.com/Skryldev/rasterpipe/cache"
	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/pipeline"
)

// Scheduler slots.  Navigation supersedes navigation; each preload has its
// own slot so preloads never cancel each other or the display job.
const (
	slotDisplay  = "display"
	slotPreload  = "preload:"
	stepEdit     = "edit"
	stepExport   = "export"
	filePerm     = 0o644
	exportOpName = "coordinator.export"
)

// current is the live image: its cache pin, edit history and playback state.
type current struct {
	src   core.ImageSource
	key   core.Fingerprint
	img   *core.DecodedImage
	hist  *pipeline.History
	anim  *animation.Driver
	token core.LoadToken
}

// Coordinator owns the single current image and serialises every operation
// on it.  Decodes run on the scheduler's worker pool; all other calls are
// short and never block on a decode.  Create with New, then Start; Stop
// releases the workers and closes subscriptions.
type Coordinator struct {
	cfg    config.Config
	reg    *core.DefaultRegistry
	store  *cache.Cache
	sched  *core.Scheduler
	disk   *storage.Local
	vips   *vips.Backend
	logger core.Logger
	hooks  []core.Hook
	now    func() time.Time

	mu      sync.Mutex
	pending core.LoadToken   // newest display navigation
	navSrc  core.ImageSource // source of the newest navigation, decoded or not
	cur     *current

	subMu      sync.RWMutex
	subs       map[*subscriber]struct{}
	subsClosed bool
}

// New validates cfg and wires the registry, frame cache, storage and
// scheduler.  Call Start before navigating.
func New(cfg config.Config, opts ...Option) (*Coordinator, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "coordinator.new", err)
	}
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = core.NopLogger{}
	}

	c := &Coordinator{
		cfg:    cfg,
		logger: logger,
		hooks:  o.hooks,
		now:    o.now,
		subs:   make(map[*subscriber]struct{}),
	}

	c.reg = core.NewRegistry()
	c.reg.SetLogger(logger)
	c.reg.SetVectorDefault(cfg.VectorDefaultWidth, cfg.VectorDefaultHeight)
	c.reg.SetDecodeDefaults(core.DecodeOptions{
		MinFrameDelay:     cfg.MinFrameDelay,
		DefaultFrameDelay: cfg.DefaultFrameDelay,
	})
	decoder.RegisterDefaults(c.reg)
	encoder.RegisterDefaults(c.reg, cfg.DefaultQuality)
	if cfg.Vips.Enabled {
		c.vips = vips.NewBackend(vips.BackendConfig{
			DefaultQuality: cfg.DefaultQuality,
			MaxCacheSize:   cfg.Vips.MaxCacheSize,
			MaxWorkers:     cfg.WorkerCount,
			ReportLeaks:    cfg.Vips.ReportLeaks,
		})
		vips.Register(c.reg, c.vips, decoder.PriorityFallback)
	}
	for _, d := range o.decoders {
		c.reg.RegisterDecoder(d.dec, d.priority)
	}
	for f, e := range o.encoders {
		c.reg.RegisterEncoder(f, e)
	}

	cacheOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithEvictFunc(c.onEvict),
	}
	if o.metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(o.metrics))
	}
	c.store = cache.New(cfg.CacheCapacityBytes, cacheOpts...)
	c.disk = storage.NewLocal(cfg.MaxImageBytes, cfg.ChunkSize, filePerm)

	c.sched = core.NewScheduler(cfg, c.reg, c.store, c.disk, c.handleResult)
	c.sched.SetLogger(logger)
	if o.metrics != nil {
		c.sched.SetMetrics(o.metrics)
	}
	for _, h := range o.hooks {
		c.sched.AddHook(h)
	}
	return c, nil
}

// Start launches the decode workers.
func (c *Coordinator) Start() { c.sched.Start() }

// Stop waits for running decodes, closes every subscription and releases
// libvips when it was enabled.  The coordinator cannot be restarted.
func (c *Coordinator) Stop() {
	c.sched.Stop()
	c.closeSubscribers()
	if c.vips != nil {
		c.vips.Shutdown()
	}
}

// ── Navigation ────────────────────────────────────────────────────────────────

// Navigate requests src as the new current image and returns immediately.
// Any earlier navigation still in flight is superseded: its result is never
// displayed.  The outcome arrives as EventDisplayReady or EventDecodeFailed.
// A full queue or a stopped coordinator is returned as a fatal error.
func (c *Coordinator) Navigate(src core.ImageSource) (core.LoadToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navigateLocked(src)
}

func (c *Coordinator) navigateLocked(src core.ImageSource) (core.LoadToken, error) {
	token, err := c.sched.Submit(slotDisplay, src)
	if err != nil {
		c.logger.Error("coordinator.navigate.failed", "source", src.Name(), "error", err.Error())
		return core.LoadToken{}, err
	}
	c.pending = token
	c.navSrc = src
	c.logger.Debug("coordinator.navigate",
		"source", src.Name(),
		"token", token.ID,
		"generation", token.Generation,
	)
	return token, nil
}

// Preload decodes src into the cache without displaying it.
func (c *Coordinator) Preload(src core.ImageSource) (core.LoadToken, error) {
	return c.sched.Submit(slotPreload+string(c.reg.CacheKey(src)), src)
}

// Next navigates to the next supported image in the current file's
// directory, wrapping around at the end.
func (c *Coordinator) Next(ctx context.Context) (core.LoadToken, error) { return c.step(ctx, 1) }

// Prev navigates to the previous supported image, wrapping around.
func (c *Coordinator) Prev(ctx context.Context) (core.LoadToken, error) { return c.step(ctx, -1) }

func (c *Coordinator) step(ctx context.Context, dir int) (core.LoadToken, error) {
	c.mu.Lock()
	from := c.navSrc
	c.mu.Unlock()
	if from.IsZero() || from.Origin() != core.OriginPath {
		return core.LoadToken{}, apperrors.New(apperrors.CategoryInput, "coordinator.step",
			fmt.Errorf("%w: current image has no directory", apperrors.ErrNoImage))
	}

	list, err := c.disk.Siblings(ctx, from.Path(), func(name string) bool {
		return c.reg.Supports(core.ParseFormat(name))
	})
	if err != nil {
		return core.LoadToken{}, err
	}
	target, ok := neighbour(list, from.Path(), dir)
	if !ok {
		return core.LoadToken{}, apperrors.New(apperrors.CategoryStorage, "coordinator.step",
			fmt.Errorf("%w: no images in %s", apperrors.ErrNotFound, filepath.Dir(from.Path())))
	}
	src, err := core.NewFileSource(target, "")
	if err != nil {
		return core.LoadToken{}, err
	}
	return c.navigateFrom(from, src)
}

// navigateFrom navigates to src unless a navigation newer than from has
// started meanwhile.  Stepping from a stale position would skip or repeat
// images, so the newer navigation's token is returned while it is pending,
// and ErrSuperseded once it has finished.
func (c *Coordinator) navigateFrom(from, src core.ImageSource) (core.LoadToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.navSrc.Fingerprint() != from.Fingerprint() {
		if !c.pending.IsZero() {
			return c.pending, nil
		}
		return core.LoadToken{}, apperrors.New(apperrors.CategorySuperseded, "coordinator.step", apperrors.ErrSuperseded)
	}
	return c.navigateLocked(src)
}

// neighbour returns the entry dir steps away from path in the sorted list,
// wrapping around.  When path is no longer listed, the position it would
// occupy is used.
func neighbour(list []string, path string, dir int) (string, bool) {
	if len(list) == 0 {
		return "", false
	}
	idx := -1
	for i, p := range list {
		if p == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		name := strings.ToLower(filepath.Base(path))
		insert := len(list)
		for i, p := range list {
			if strings.ToLower(filepath.Base(p)) > name {
				insert = i
				break
			}
		}
		if dir > 0 {
			return list[insert%len(list)], true
		}
		return list[(insert-1+len(list))%len(list)], true
	}
	n := len(list)
	return list[((idx+dir)%n+n)%n], true
}

// Reload drops the cached decode of the newest navigation and decodes it
// again.  File sources are re-fingerprinted so on-disk changes are seen.
func (c *Coordinator) Reload() (core.LoadToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.navSrc
	if src.IsZero() {
		return core.LoadToken{}, apperrors.New(apperrors.CategoryInput, "coordinator.reload", apperrors.ErrNoImage)
	}
	c.store.Invalidate(c.reg.CacheKey(src))
	if src.Origin() == core.OriginPath {
		fresh, err := core.NewFileSource(src.Path(), string(src.Hint()))
		if err != nil {
			return core.LoadToken{}, err
		}
		src = fresh.WithTarget(src.Target().X, src.Target().Y)
		c.store.Invalidate(c.reg.CacheKey(src))
	}
	return c.navigateLocked(src)
}

// Close drops the current image and its history, cancels any pending
// navigation and empties the frame cache.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending.IsZero() {
		c.sched.Cancel(c.pending)
	}
	c.pending = core.LoadToken{}
	c.navSrc = core.ImageSource{}
	c.cur = nil
	c.store.Clear()
	c.logger.Info("coordinator.closed")
	c.emit(Event{Kind: EventClosed})
}

// handleResult runs on a scheduler worker for jobs that were current when
// they finished.
func (c *Coordinator) handleResult(res core.LoadResult) {
	if res.Token.Slot != slotDisplay {
		c.logger.Debug("coordinator.preloaded", "key", string(res.Key), "error", errString(res.Err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Token != c.pending {
		c.logger.Debug("coordinator.result.stale", "token", res.Token.ID, "generation", res.Token.Generation)
		return
	}
	c.pending = core.LoadToken{}

	if res.Err != nil {
		c.logger.Warn("coordinator.decode.failed",
			"source", res.Source.Name(),
			"kind", string(apperrors.KindOf(res.Err)),
			"error", res.Err.Error(),
		)
		c.emit(Event{Kind: EventDecodeFailed, Token: res.Token, Key: res.Key, Source: res.Source.Name(), Err: res.Err})
		return
	}

	// Release the old pin first: the new key may equal the old one after a
	// Reload invalidated it.
	if prev := c.cur; prev != nil {
		c.store.Unpin(prev.key)
	}
	img := c.store.Acquire(res.Key, res.Image)

	frames := make([]*image.NRGBA, len(img.Frames))
	for i, f := range img.Frames {
		frames[i] = f.Image
	}
	policy := c.cfg.LoopPolicy
	if img.Meta.LoopCount < 0 {
		policy = config.LoopOnce
	}
	c.cur = &current{
		src: res.Source,
		key: res.Key,
		img: img,
		hist: pipeline.NewHistory(frames, pipeline.Options{
			CoalesceWindow: c.cfg.CoalesceWindow,
			CoalesceMaxOps: c.cfg.CoalesceMaxOps,
			Limit:          c.cfg.HistoryLimit,
			Now:            c.now,
		}),
		anim:  animation.NewDriver(img.Delays(), policy),
		token: res.Token,
	}

	c.logger.Info("coordinator.display",
		"source", res.Source.Name(),
		"format", string(img.Meta.Format),
		"width", img.Meta.Width,
		"height", img.Meta.Height,
		"frames", len(img.Frames),
		"cache_hit", res.CacheHit,
		"duration_ms", res.Elapsed.Milliseconds(),
	)
	ev := c.viewEventLocked(EventDisplayReady)
	ev.Token = res.Token
	c.emit(ev)
}

func (c *Coordinator) onEvict(key core.Fingerprint, _ cache.EvictReason) {
	c.emit(Event{Kind: EventCacheEvicted, Key: key})
}

// ── Editing ───────────────────────────────────────────────────────────────────

// ApplyEdit pushes op onto the current image's history.  Out-of-range
// parameters are rejected with a validation error and change nothing.
func (c *Coordinator) ApplyEdit(ctx context.Context, op pipeline.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return apperrors.New(apperrors.CategoryInput, "coordinator.edit", apperrors.ErrNoImage)
	}
	c.notifyBefore(ctx, stepEdit, c.cur.src)
	start := time.Now()
	err := c.cur.hist.Push(op)
	var out *core.DecodedImage
	if err == nil {
		out = c.editedLocked()
	}
	c.notifyAfter(ctx, stepEdit, out, time.Since(start), err)
	if err != nil {
		return err
	}
	c.emit(c.viewEventLocked(EventEdited))
	return nil
}

// Undo steps back one edit.  It reports false at the start of the history.
func (c *Coordinator) Undo() bool {
	return c.moveHistory(func(h *pipeline.History) bool { return h.Undo() })
}

// Redo re-applies the next undone edit.  It reports false at the end.
func (c *Coordinator) Redo() bool {
	return c.moveHistory(func(h *pipeline.History) bool { return h.Redo() })
}

// Revert shows the unedited image; Redo walks forward again.
func (c *Coordinator) Revert() bool {
	return c.moveHistory(func(h *pipeline.History) bool { return h.Revert() })
}

func (c *Coordinator) moveHistory(move func(*pipeline.History) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || !move(c.cur.hist) {
		return false
	}
	c.emit(c.viewEventLocked(EventEdited))
	return true
}

// editedLocked materialises the visible frame for hooks.
func (c *Coordinator) editedLocked() *core.DecodedImage {
	i := c.cur.anim.CurrentFrame()
	img := c.cur.hist.Current(i)
	meta := c.cur.img.Meta
	meta.Width, meta.Height = img.Rect.Dx(), img.Rect.Dy()
	return &core.DecodedImage{Frames: []core.Frame{{Image: img, Delay: c.cur.img.Frames[i].Delay}}, Meta: meta}
}

// ── Playback ──────────────────────────────────────────────────────────────────

// Tick advances animation playback by dt and reports whether the visible
// frame changed.  Still images never change.
func (c *Coordinator) Tick(dt time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return false
	}
	return c.cur.anim.Tick(dt)
}

// NextFrameIn returns how long until Tick would change the visible frame.
func (c *Coordinator) NextFrameIn() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return 0, false
	}
	return c.cur.anim.NextDeadline()
}

// View is a snapshot of what should be on screen.
type View struct {
	Image      *image.NRGBA // edited visible frame; shared, read-only
	Frame      int
	Frames     int
	FrameDelay time.Duration
	Meta       core.Metadata // Width/Height reflect the edits
	Source     string
	Key        core.Fingerprint
	Edits      []string
	Cursor     int
	CanUndo    bool
	CanRedo    bool
}

// Current returns the visible frame with the current edits applied.
func (c *Coordinator) Current() (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return View{}, false
	}
	return c.viewLocked(), true
}

func (c *Coordinator) viewLocked() View {
	cur := c.cur
	i := cur.anim.CurrentFrame()
	img := cur.hist.Current(i)
	meta := cur.img.Meta
	meta.Width, meta.Height = img.Rect.Dx(), img.Rect.Dy()

	ops := cur.hist.Ops()
	edits := make([]string, len(ops))
	for j, op := range ops {
		edits[j] = pipeline.Describe(op)
	}
	v := View{
		Image:   img,
		Frame:   i,
		Frames:  len(cur.img.Frames),
		Meta:    meta,
		Source:  cur.src.Name(),
		Key:     cur.key,
		Edits:   edits,
		Cursor:  cur.hist.Cursor(),
		CanUndo: cur.hist.CanUndo(),
		CanRedo: cur.hist.CanRedo(),
	}
	if cur.anim.Animated() {
		v.FrameDelay = cur.img.Frames[i].Delay
	}
	return v
}

func (c *Coordinator) viewEventLocked(kind EventKind) Event {
	v := c.viewLocked()
	return Event{
		Kind:       kind,
		Token:      c.cur.token,
		Key:        v.Key,
		Source:     v.Source,
		Image:      v.Image,
		Frame:      v.Frame,
		FrameDelay: v.FrameDelay,
		Meta:       v.Meta,
	}
}

// ── Export ────────────────────────────────────────────────────────────────────

// Export encodes the edited image as format.  Animated images exported as GIF
// keep every frame and their timing; other formats receive the visible frame.
func (c *Coordinator) Export(ctx context.Context, w io.Writer, format core.Format, opts core.EncodeOptions) error {
	enc, ok := c.reg.EncoderFor(format)
	if !ok {
		return apperrors.New(apperrors.CategoryEncode, exportOpName,
			fmt.Errorf("%w: no encoder for %s", apperrors.ErrUnsupportedFormat, format))
	}

	c.mu.Lock()
	if c.cur == nil {
		c.mu.Unlock()
		return apperrors.New(apperrors.CategoryInput, exportOpName, apperrors.ErrNoImage)
	}
	src := c.cur.src
	var frames []core.Frame
	if format == core.FormatGIF && c.cur.anim.Animated() {
		frames = make([]core.Frame, len(c.cur.img.Frames))
		for i, f := range c.cur.img.Frames {
			frames[i] = core.Frame{Image: c.cur.hist.Current(i), Delay: f.Delay}
		}
		if opts.LoopCount == 0 {
			opts.LoopCount = c.cur.img.Meta.LoopCount
		}
	} else {
		i := c.cur.anim.CurrentFrame()
		frames = []core.Frame{{Image: c.cur.hist.Current(i)}}
	}
	c.mu.Unlock()

	c.notifyBefore(ctx, stepExport, src)
	start := time.Now()
	err := enc.Encode(ctx, w, frames, opts)
	c.notifyAfter(ctx, stepExport, &core.DecodedImage{Frames: frames}, time.Since(start), err)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, exportOpName, err)
	}
	return nil
}

// ExportFile writes the edited image to path, choosing the format from its
// extension.  The file is replaced atomically.
func (c *Coordinator) ExportFile(ctx context.Context, path string, opts core.EncodeOptions) error {
	format := core.ParseFormat(path)
	if format == core.FormatUnknown {
		return apperrors.New(apperrors.CategoryInput, exportOpName,
			fmt.Errorf("%w: cannot infer format of %s", apperrors.ErrUnsupportedFormat, path))
	}
	return c.disk.WriteAtomic(ctx, path, func(w io.Writer) error {
		return c.Export(ctx, w, format, opts)
	})
}

// ── Stats ─────────────────────────────────────────────────────────────────────

// Stats is a point-in-time summary for memory-usage displays.
type Stats struct {
	Cache     cache.Stats
	Scheduler core.SchedulerStats
	Current   string
	Edits     int
	Cursor    int
}

// Stats returns cache, scheduler and history counters.
func (c *Coordinator) Stats() Stats {
	s := Stats{Cache: c.store.Stats(), Scheduler: c.sched.Stats()}
	c.mu.Lock()
	if c.cur != nil {
		s.Current = c.cur.src.Name()
		s.Edits = c.cur.hist.Len()
		s.Cursor = c.cur.hist.Cursor()
	}
	c.mu.Unlock()
	return s
}

// ── hook internals ────────────────────────────────────────────────────────────

func (c *Coordinator) notifyBefore(ctx context.Context, name string, src core.ImageSource) {
	for _, h := range c.hooks {
		h.BeforeStep(ctx, name, src)
	}
}

func (c *Coordinator) notifyAfter(ctx context.Context, name string, img *core.DecodedImage, d time.Duration, err error) {
	for _, h := range c.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
