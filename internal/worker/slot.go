package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"framecache/internal/item"
	"framecache/internal/logging"
)

// SlotOptions carries the shared collaborators of pool slots.
type SlotOptions struct {
	Logger *slog.Logger
	Meter  *Meter
	Gate   *Gate
}

// Slot is one pool goroutine. Start, Interrupt and Close are called by the
// controller; the slot never blocks its caller.
type Slot struct {
	id        int
	logger    *slog.Logger
	meter     *Meter
	gate      *Gate
	reports   chan<- Report
	jobs      chan Job
	interrupt atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSlot starts a slot goroutine that posts reports to reports.
func NewSlot(ctx context.Context, id int, reports chan<- Report, opts SlotOptions) *Slot {
	slotCtx, cancel := context.WithCancel(ctx)
	s := &Slot{
		id:      id,
		logger:  logging.NewComponentLogger(opts.Logger, "cache-worker").With(logging.Worker(id)),
		meter:   opts.Meter,
		gate:    opts.Gate,
		reports: reports,
		jobs:    make(chan Job, 1),
		ctx:     slotCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// ID returns the slot number.
func (s *Slot) ID() int { return s.id }

// Start hands the idle slot a job.
func (s *Slot) Start(job Job) {
	s.interrupt.Store(false)
	select {
	case s.jobs <- job:
	case <-s.ctx.Done():
	}
}

// Interrupt asks the running job to stop after its current frame.
func (s *Slot) Interrupt() {
	s.interrupt.Store(true)
}

// Close stops the goroutine and waits for it to exit. A job in progress stops
// after its current frame; its report is dropped.
func (s *Slot) Close() {
	s.interrupt.Store(true)
	s.cancel()
	<-s.done
}

func (s *Slot) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.jobs:
			report := s.run(job)
			select {
			case s.reports <- report:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *Slot) stopRequested() bool {
	return s.interrupt.Load() || s.ctx.Err() != nil
}

func (s *Slot) run(job Job) Report {
	report := Report{
		Slot:      s.id,
		Job:       job,
		Completed: item.NewRange(job.Frames.Start, job.Frames.Start),
	}
	for frame := job.Frames.Start; frame < job.Frames.End; frame++ {
		if s.stopRequested() {
			report.Interrupted = true
			break
		}
		if err := s.gate.Wait(s.ctx); err != nil || s.stopRequested() {
			report.Interrupted = true
			break
		}
		res, err := loadFrame(s.ctx, job.Item, frame)
		if errors.Is(err, item.ErrReleased) {
			report.Stale = true
			break
		}
		report.Completed.End = frame + 1
		if err != nil {
			report.Failed = append(report.Failed, frame)
			s.logger.Debug("frame decode failed; skipping",
				logging.ItemID(uint64(job.Item.ID())),
				logging.Int("frame", frame),
				logging.Error(err),
			)
			continue
		}
		report.Cached = append(report.Cached, res)
		if res.Loaded {
			report.BytesLoaded += res.Bytes
			s.meter.Add(res.Bytes)
		}
	}
	return report
}
