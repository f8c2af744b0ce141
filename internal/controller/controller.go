package controller

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"framecache/internal/item"
	"framecache/internal/logging"
	"framecache/internal/playlist"
	"framecache/internal/worker"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("cache controller already started")

// RateSample is one caching-rate measurement.
type RateSample struct {
	At             time.Time     `json:"at"`
	Interval       time.Duration `json:"interval"`
	Bytes          int64         `json:"bytes"`
	BytesPerSecond float64       `json:"bytes_per_second"`
	CurrentBytes   int64         `json:"current_bytes"`
	MaxBytes       int64         `json:"max_bytes"`
	EvictedFrames  uint64        `json:"evicted_frames"`
	EvictedBytes   int64         `json:"evicted_bytes"`
}

// RateSink persists rate samples. It is called off the controller goroutine.
type RateSink interface {
	RecordRate(ctx context.Context, sample RateSample) error
}

// Options configure a Controller.
type Options struct {
	Settings     Settings
	RateInterval time.Duration
	// InteractivePriority holds pool slots at frame boundaries while an
	// interactive load runs.
	InteractivePriority bool
	Sink                RateSink
	// OnFrameLoaded runs on the controller goroutine after every
	// interactive load and must not block.
	OnFrameLoaded func(worker.Result)
	Logger        *slog.Logger
}

// Controller runs a Scheduler on its own goroutine.
type Controller struct {
	logger *slog.Logger
	source Source
	opts   Options
	meter  *worker.Meter

	calls   chan func()
	reports chan worker.Report
	results chan worker.Result
	samples chan RateSample

	mu       sync.RWMutex
	started  bool
	stopped  bool
	stopping chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}

	sched    *Scheduler
	lastTick time.Time
	evicted  Counters

	settings atomic.Pointer[Settings]
	status   atomic.Pointer[Status]
	rate     atomic.Uint64
}

// New returns a controller that plans from source. Call Start to run it.
func New(source Source, opts Options) *Controller {
	if opts.RateInterval <= 0 {
		opts.RateInterval = DefaultRateInterval
	}
	opts.Settings = opts.Settings.normalized()
	c := &Controller{
		logger:   logging.NewComponentLogger(opts.Logger, "cache-controller"),
		source:   source,
		opts:     opts,
		meter:    &worker.Meter{},
		calls:    make(chan func(), 64),
		reports:  make(chan worker.Report, 16),
		results:  make(chan worker.Result, 1),
		samples:  make(chan RateSample, 16),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	settings := opts.Settings
	c.settings.Store(&settings)
	return c
}

// Start launches the controller goroutine and the pool.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	var gate *worker.Gate
	if c.opts.InteractivePriority {
		gate = worker.NewGate()
	}
	slotOpts := worker.SlotOptions{Logger: c.opts.Logger, Meter: c.meter, Gate: gate}
	factory := func(id int) Worker {
		return worker.NewSlot(runCtx, id, c.reports, slotOpts)
	}
	loader := worker.NewLoader(runCtx, c.results, gate, c.opts.Logger)
	settings := *c.settings.Load()
	c.sched = NewScheduler(c.source, factory, loader, settings, c.opts.Logger)
	c.publish()

	var sinkDone chan struct{}
	if c.opts.Sink != nil {
		sinkDone = make(chan struct{})
		go c.drainSamples(context.WithoutCancel(ctx), sinkDone)
	}
	go c.loop(runCtx, sinkDone)
	c.logger.Info("cache controller started",
		logging.Int("workers", settings.Workers),
		logging.Int64("max_bytes", settings.MaxBytes),
		logging.Bool("interactive_priority", c.opts.InteractivePriority),
	)
	return nil
}

// Stop shuts the pool down and waits for the controller goroutine.
func (c *Controller) Stop() {
	c.mu.RLock()
	started := c.started
	cancel := c.cancel
	c.mu.RUnlock()
	if !started {
		return
	}
	cancel()
	<-c.done
}

// Done is closed once the controller goroutine has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// PlaylistChanged requests a replan after the playlist or selection changed.
func (c *Controller) PlaylistChanged() {
	c.post(func() { c.sched.Replan() })
}

// PositionChanged reports a new playback position.
func (c *Controller) PositionChanged(pos playlist.Position) {
	c.post(func() { c.sched.PositionChanged(pos) })
}

// UpdateSettings applies new runtime settings.
func (c *Controller) UpdateSettings(s Settings) {
	s = s.normalized()
	c.settings.Store(&s)
	c.post(func() { c.sched.ApplySettings(s) })
}

// Settings returns the most recently requested settings.
func (c *Controller) Settings() Settings {
	return *c.settings.Load()
}

// LoadFrame requests an interactive load without waiting for it.
func (c *Controller) LoadFrame(h item.Handle, frame int) {
	c.post(func() { c.sched.RequestFrame(h, frame) })
}

// ItemAboutToBeDeleted stops all use of h. The returned channel is closed
// once the handle has been released and the owner may free the item.
func (c *Controller) ItemAboutToBeDeleted(h item.Handle) <-chan struct{} {
	done := make(chan struct{})
	if !c.post(func() { c.sched.ItemAboutToBeDeleted(h, done) }) {
		h.Release()
		close(done)
	}
	return done
}

// Status returns the latest published snapshot.
func (c *Controller) Status() Status {
	if st := c.status.Load(); st != nil {
		return *st
	}
	settings := c.Settings()
	return Status{State: "stopped", Enabled: settings.Enabled, MaxBytes: settings.MaxBytes}
}

// CachingRate returns the most recent rate sample in bytes per second.
func (c *Controller) CachingRate() float64 {
	return math.Float64frombits(c.rate.Load())
}

func (c *Controller) post(fn func()) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started || c.stopped {
		return false
	}
	select {
	case c.calls <- fn:
		return true
	case <-c.stopping:
		return false
	}
}

func (c *Controller) loop(ctx context.Context, sinkDone chan struct{}) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.RateInterval)
	defer ticker.Stop()
	c.lastTick = time.Now()

	c.sched.Replan()
	c.publish()
	for {
		select {
		case <-ctx.Done():
			c.shutdown(sinkDone)
			return
		case fn := <-c.calls:
			fn()
		case r := <-c.reports:
			c.sched.HandleReport(r)
		case res := <-c.results:
			c.sched.HandleLoaded(res)
			if c.opts.OnFrameLoaded != nil {
				c.opts.OnFrameLoaded(res)
			}
		case now := <-ticker.C:
			c.tick(now)
		}
		c.publish()
	}
}

func (c *Controller) shutdown(sinkDone chan struct{}) {
	close(c.stopping)
	c.sched.Shutdown()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	for drained := false; !drained; {
		select {
		case fn := <-c.calls:
			fn()
		default:
			drained = true
		}
	}
	c.publish()
	close(c.samples)
	if sinkDone != nil {
		<-sinkDone
	}
	c.logger.Info("cache controller stopped")
}

func (c *Controller) tick(now time.Time) {
	elapsed := now.Sub(c.lastTick)
	c.lastTick = now
	bytes := c.meter.Take()
	var rate float64
	if elapsed > 0 {
		rate = float64(bytes) / elapsed.Seconds()
	}
	c.rate.Store(math.Float64bits(rate))

	counters := c.sched.counters
	sample := RateSample{
		At:             now,
		Interval:       elapsed,
		Bytes:          bytes,
		BytesPerSecond: rate,
		CurrentBytes:   c.sched.tracker.Current(),
		MaxBytes:       c.sched.tracker.Max(),
		EvictedFrames:  counters.FramesEvicted - c.evicted.FramesEvicted,
		EvictedBytes:   counters.BytesEvicted - c.evicted.BytesEvicted,
	}
	c.evicted = counters
	if bytes == 0 && sample.EvictedFrames == 0 {
		return
	}
	c.logger.Debug("caching rate",
		logging.Float64("bytes_per_second", rate),
		logging.Int64("bytes", bytes),
		logging.Uint64("evicted_frames", sample.EvictedFrames),
	)
	if c.opts.Sink == nil {
		return
	}
	select {
	case c.samples <- sample:
	default:
		c.logger.Debug("rate sample dropped; sink is behind")
	}
}

func (c *Controller) drainSamples(ctx context.Context, done chan struct{}) {
	defer close(done)
	for sample := range c.samples {
		if err := c.opts.Sink.RecordRate(ctx, sample); err != nil {
			logging.WarnWithContext(c.logger, "failed to record caching rate", "rate_record_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "rate history has a gap"),
			)
		}
	}
}

func (c *Controller) publish() {
	st := c.sched.Snapshot()
	st.RateBytesPerSecond = c.CachingRate()
	c.status.Store(&st)
}
