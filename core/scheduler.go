package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/rasterpipe/config"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// LoadToken identifies one decode job.  Only the job holding the newest
// generation of its slot may publish a result.
type LoadToken struct {
	ID         string
	Slot       string
	Generation uint64
}

// IsZero reports whether t was never issued.
func (t LoadToken) IsZero() bool { return t.Generation == 0 }

// LoadResult is delivered to the ResultHandler for jobs that were still
// current when they finished.
type LoadResult struct {
	Token    LoadToken
	Source   ImageSource
	Key      Fingerprint
	Image    *DecodedImage
	Err      error
	CacheHit bool
	Elapsed  time.Duration
}

// ResultHandler receives completed, non-superseded jobs on a worker goroutine.
type ResultHandler func(LoadResult)

type loadJob struct {
	token LoadToken
	src   ImageSource
}

// SchedulerStats is a point-in-time copy of the scheduler counters.
type SchedulerStats struct {
	Submitted  int64
	Completed  int64
	Failed     int64
	Superseded int64
	Queued     int
}

// Scheduler is a bounded worker pool that decodes ImageSources into the
// frame store.  Submitting to a slot supersedes every earlier job of that
// slot; superseded jobs are skipped if not yet started and their results
// discarded if already running.  It is safe for concurrent use.
type Scheduler struct {
	cfg      config.Config
	registry Registry
	store    FrameStore
	reader   SourceReader
	handler  ResultHandler
	hooks    []Hook
	logger   Logger
	metrics  MetricsCollector

	// Supersession state.
	mu      sync.Mutex
	current map[string]uint64
	gen     uint64
	stopped bool

	// Worker pool.
	jobQueue chan loadJob
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}
	baseCtx  context.Context
	cancel   context.CancelFunc

	// Atomic counters for lightweight internal metrics.
	submitted  int64
	completed  int64
	failed     int64
	superseded int64
}

// NewScheduler creates a Scheduler.  Call Start() before submitting jobs;
// call Stop() when done.
func NewScheduler(cfg config.Config, reg Registry, store FrameStore, reader SourceReader, handler ResultHandler) *Scheduler {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		registry: reg,
		store:    store,
		reader:   reader,
		handler:  handler,
		logger:   NopLogger{},
		current:  make(map[string]uint64),
		jobQueue: make(chan loadJob, queueSize),
		shutdown: make(chan struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// SetLogger attaches a structured logger.
func (s *Scheduler) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetMetrics attaches a metrics collector.
func (s *Scheduler) SetMetrics(m MetricsCollector) { s.metrics = m }

// AddHook registers a decode observer.  Not safe to call after Start.
func (s *Scheduler) AddHook(h Hook) { s.hooks = append(s.hooks, h) }

// Start launches the worker pool.  It is idempotent.
func (s *Scheduler) Start() {
	s.once.Do(func() {
		workerCount := s.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = runtime.NumCPU()
		}
		for i := 0; i < workerCount; i++ {
			s.wg.Add(1)
			go s.worker()
		}
	})
}

// Stop shuts down all workers, waiting for running decodes to return.
// Queued jobs are dropped.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.shutdown)
		s.cancel()
		s.wg.Wait()
	})
}

// Submit enqueues a decode of src in slot and returns immediately.  The new
// job supersedes every earlier job of the same slot.  A full queue or a
// stopped scheduler is a fatal error.
func (s *Scheduler) Submit(slot string, src ImageSource) (LoadToken, error) {
	if src.IsZero() {
		return LoadToken{}, apperrors.New(apperrors.CategoryInput, "scheduler.submit", apperrors.ErrEmptyInput)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return LoadToken{}, apperrors.New(apperrors.CategoryFatal, "scheduler.submit", apperrors.ErrSchedulerStopped)
	}
	s.gen++
	token := LoadToken{ID: uuid.NewString(), Slot: slot, Generation: s.gen}
	prev, hadPrev := s.current[slot]
	s.current[slot] = token.Generation
	s.mu.Unlock()

	select {
	case s.jobQueue <- loadJob{token: token, src: src}:
		atomic.AddInt64(&s.submitted, 1)
		return token, nil
	default:
		s.mu.Lock()
		if s.current[slot] == token.Generation {
			if hadPrev {
				s.current[slot] = prev
			} else {
				delete(s.current, slot)
			}
		}
		s.mu.Unlock()
		return LoadToken{}, apperrors.New(apperrors.CategoryFatal, "scheduler.submit",
			fmt.Errorf("%w (capacity %d)", apperrors.ErrWorkerPoolFull, cap(s.jobQueue)))
	}
}

// Cancel marks token as superseded.  A running job still finishes; its result
// is dropped.
func (s *Scheduler) Cancel(token LoadToken) {
	s.mu.Lock()
	if s.current[token.Slot] == token.Generation {
		delete(s.current, token.Slot)
	}
	s.mu.Unlock()
}

// IsCurrent reports whether token is still the newest job of its slot.
func (s *Scheduler) IsCurrent(token LoadToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !token.IsZero() && s.current[token.Slot] == token.Generation
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Submitted:  atomic.LoadInt64(&s.submitted),
		Completed:  atomic.LoadInt64(&s.completed),
		Failed:     atomic.LoadInt64(&s.failed),
		Superseded: atomic.LoadInt64(&s.superseded),
		Queued:     len(s.jobQueue),
	}
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			return
		case job := <-s.jobQueue:
			s.processJob(job)
		}
	}
}

func (s *Scheduler) processJob(job loadJob) {
	if !s.IsCurrent(job.token) {
		atomic.AddInt64(&s.superseded, 1)
		s.logger.Debug("scheduler.job.skipped", "slot", job.token.Slot, "generation", job.token.Generation)
		return
	}

	ctx := s.baseCtx
	if s.cfg.DecodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DecodeTimeout)
		defer cancel()
	}

	s.notifyBefore(ctx, "decode", job.src)
	start := time.Now()
	key := s.registry.CacheKey(job.src)
	img, hit, err := s.store.GetOrInsert(key, func() (*DecodedImage, error) {
		return s.load(ctx, job.src)
	})
	elapsed := time.Since(start)
	s.notifyAfter(ctx, "decode", img, elapsed, err)

	if err != nil {
		atomic.AddInt64(&s.failed, 1)
	} else {
		atomic.AddInt64(&s.completed, 1)
	}

	if !s.IsCurrent(job.token) {
		atomic.AddInt64(&s.superseded, 1)
		s.logger.Debug("scheduler.job.superseded",
			"slot", job.token.Slot,
			"generation", job.token.Generation,
			"duration_ms", elapsed.Milliseconds(),
		)
		return
	}
	if s.handler != nil {
		s.handler(LoadResult{
			Token:    job.token,
			Source:   job.src,
			Key:      key,
			Image:    img,
			Err:      err,
			CacheHit: hit,
			Elapsed:  elapsed,
		})
	}
}

// load reads the source bytes and decodes them.
func (s *Scheduler) load(ctx context.Context, src ImageSource) (*DecodedImage, error) {
	var data []byte
	switch src.Origin() {
	case OriginPath:
		if s.reader == nil {
			return nil, apperrors.New(apperrors.CategoryStorage, "scheduler.load", apperrors.ErrStorageUnavailable)
		}
		b, err := s.reader.ReadFile(ctx, src.Path())
		if err != nil {
			return nil, err
		}
		data = b
	case OriginBytes:
		data = src.Data()
	}
	if s.metrics != nil {
		s.metrics.RecordThroughput(int64(len(data)))
	}
	return s.registry.Decode(ctx, src, data)
}

func (s *Scheduler) notifyBefore(ctx context.Context, name string, src ImageSource) {
	for _, h := range s.hooks {
		h.BeforeStep(ctx, name, src)
	}
}

func (s *Scheduler) notifyAfter(ctx context.Context, name string, img *DecodedImage, d time.Duration, err error) {
	for _, h := range s.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}
