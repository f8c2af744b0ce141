package controller

import (
	"log/slog"
	"slices"

	"framecache/internal/budget"
	"framecache/internal/item"
	"framecache/internal/logging"
	"framecache/internal/planner"
	"framecache/internal/playlist"
	"framecache/internal/worker"
)

// Worker is the scheduler's view of a pool slot. Start is only called on an
// idle worker; every Start is answered by exactly one report.
type Worker interface {
	Start(job worker.Job)
	Interrupt()
	Close()
}

// Loader is the scheduler's view of the interactive loader. Start is only
// called while no request is outstanding; every Start is answered by exactly
// one result.
type Loader interface {
	Start(req worker.Request)
	Close()
}

// WorkerFactory creates the pool slot with the given id.
type WorkerFactory func(id int) Worker

// Source supplies the playlist contents and the playback position.
type Source interface {
	Items() []item.Handle
	Position() playlist.Position
}

type slot struct {
	id       int
	w        Worker
	job      *worker.Job
	retiring bool
}

type deletion struct {
	handle item.Handle
	done   []chan struct{}
}

// Scheduler owns all cache state. It is not safe for concurrent use.
type Scheduler struct {
	logger   *slog.Logger
	source   Source
	factory  WorkerFactory
	loader   Loader
	settings Settings
	state    State
	tracker  *budget.Tracker

	// handles remembers a handle for every item with ledger entries so that
	// frames of items no longer in the playlist can still be evicted.
	handles   map[item.ID]item.Handle
	queue     []planner.Job
	evictions []planner.Frame
	slots     []*slot
	lastSlot  int
	active    *worker.Request
	pending   *worker.Request
	seq       uint64
	deleting  map[item.ID]*deletion
	planned   playlist.Position
	counters  Counters
	closed    bool
}

// NewScheduler builds an idle scheduler with settings.Workers slots.
func NewScheduler(source Source, factory WorkerFactory, loader Loader, settings Settings, logger *slog.Logger) *Scheduler {
	settings = settings.normalized()
	s := &Scheduler{
		logger:   logging.NewComponentLogger(logger, "cache-controller"),
		source:   source,
		factory:  factory,
		loader:   loader,
		settings: settings,
		state:    StateIdle,
		tracker:  budget.NewTracker(settings.MaxBytes),
		handles:  make(map[item.ID]item.Handle),
		deleting: make(map[item.ID]*deletion),
	}
	s.resize(settings.Workers)
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return s.state }

// Settings returns the applied settings.
func (s *Scheduler) Settings() Settings { return s.settings }

// Tracker exposes the budget ledger for inspection.
func (s *Scheduler) Tracker() *budget.Tracker { return s.tracker }

// Replan recomputes the queues. An idle pool dispatches immediately; a busy
// pool is interrupted when the plan changed and replans once every slot has
// acknowledged. Replans requested while interrupts are pending coalesce.
func (s *Scheduler) Replan() {
	if s.closed || !s.settings.Enabled {
		return
	}
	s.counters.Replans++
	switch s.state {
	case StateIdle:
		s.fire(EventReplanRequested)
		s.planAndDispatch()
	case StateRunning:
		plan, pos := s.computePlan()
		s.planned = pos
		if sameJobs(plan.Jobs, s.queue) {
			s.evictions = plan.Evictions
			s.evictToBudget()
			return
		}
		s.fire(EventReplanRequested)
		s.interruptAll()
		s.settle()
	case StateInterruptStop, StateInterruptRestart:
		s.fire(EventReplanRequested)
	}
}

// PositionChanged replans when the playhead moved far enough from the last
// planned position, switched item or changed play state. An idle pool
// always replans.
func (s *Scheduler) PositionChanged(pos playlist.Position) {
	if s.state == StateIdle || s.moved(pos) {
		s.Replan()
	}
}

func (s *Scheduler) moved(pos playlist.Position) bool {
	last := s.planned
	if pos.Item != last.Item || pos.Playing != last.Playing || pos.Reverse != last.Reverse {
		return true
	}
	d := pos.Frame - last.Frame
	if d < 0 {
		d = -d
	}
	return d >= s.settings.ReplanThreshold
}

// Stop drops the queue and interrupts every busy slot.
func (s *Scheduler) Stop() {
	s.queue = nil
	s.fire(EventStopRequested)
	if s.state == StateInterruptStop {
		s.interruptAll()
		s.settle()
	}
}

// HandleReport applies a slot's completion or interruption report.
func (s *Scheduler) HandleReport(r worker.Report) {
	sl := s.slot(r.Slot)
	if sl == nil || sl.job == nil || sl.job.Seq != r.Job.Seq {
		s.logger.Debug("ignoring report for unknown job",
			logging.Worker(r.Slot),
			logging.Uint64("job_seq", r.Job.Seq),
		)
		return
	}
	sl.job = nil
	id := r.Job.Item.ID()
	if !r.Stale && s.deleting[id] == nil && r.Job.Item.Valid() {
		s.handles[id] = r.Job.Item
		for _, fr := range r.Cached {
			if s.tracker.Add(id, fr.Index, fr.Bytes) {
				s.counters.FramesCached++
			}
		}
	}
	if len(r.Failed) > 0 {
		s.counters.FramesFailed += uint64(len(r.Failed))
		logging.WarnWithContext(s.logger, "frames failed to decode", "decode_failed",
			logging.Worker(sl.id),
			logging.ItemID(uint64(id)),
			logging.Any("frames", r.Failed),
			logging.String(logging.FieldErrorHint, "check the item source; failed frames are retried on the next plan"),
		)
	}
	s.releaseIfUnreferenced(id)
	if sl.retiring {
		s.removeSlot(sl)
	}
	if s.closed {
		return
	}
	s.startInteractive()
	s.enforceBudget()
	if s.state == StateRunning {
		s.dispatch()
	}
	s.settle()
}

// RequestFrame schedules an interactive load. While one is running, or while
// a pool slot still owns the requested frame, the request waits in a single
// pending slot and replaces any earlier waiter.
func (s *Scheduler) RequestFrame(h item.Handle, frame int) {
	if s.closed || s.loader == nil || !h.Valid() || s.deleting[h.ID()] != nil {
		s.counters.RequestsDropped++
		return
	}
	s.seq++
	req := worker.Request{Seq: s.seq, Item: h, Frame: frame}
	if s.pending != nil {
		s.counters.RequestsDropped++
		s.logger.Debug("interactive request superseded",
			logging.ItemID(uint64(s.pending.Item.ID())),
			logging.Int("frame", s.pending.Frame),
		)
	}
	s.pending = &req
	s.startInteractive()
}

// HandleLoaded applies the result of an interactive load and starts the
// pending request, if any.
func (s *Scheduler) HandleLoaded(res worker.Result) {
	if s.active == nil || s.active.Seq != res.Request.Seq {
		return
	}
	s.active = nil
	h := res.Request.Item
	id := h.ID()
	switch {
	case res.Stale:
	case res.Err != nil:
		s.counters.FramesFailed++
		logging.WarnWithContext(s.logger, "interactive frame failed to decode", "interactive_failed",
			logging.ItemID(uint64(id)),
			logging.Int("frame", res.Request.Frame),
			logging.Error(res.Err),
		)
	case h.Valid() && s.deleting[id] == nil:
		s.handles[id] = h
		if s.tracker.Add(id, res.Frame.Index, res.Frame.Bytes) {
			s.counters.FramesCached++
		}
	}
	s.releaseIfUnreferenced(id)
	s.startInteractive()
	if s.closed {
		return
	}
	if s.state == StateIdle {
		s.Replan()
	}
	s.enforceBudget()
}

// startInteractive hands the pending request to the idle loader. A frame
// inside a busy slot's job stays pending until that slot reports, so an item
// never decodes the same frame twice at once.
func (s *Scheduler) startInteractive() {
	if s.active != nil || s.pending == nil || s.loader == nil {
		return
	}
	req := *s.pending
	if !req.Item.Valid() || s.deleting[req.Item.ID()] != nil {
		s.pending = nil
		s.counters.RequestsDropped++
		return
	}
	if s.slotOwns(req.Item.ID(), req.Frame) {
		return
	}
	s.pending = nil
	s.active = &req
	s.loader.Start(req)
}

// ItemAboutToBeDeleted drops every queued reference to h and releases it once
// no slot or interactive load uses it any more; done is closed at that point.
// Only the slots working on h are interrupted.
func (s *Scheduler) ItemAboutToBeDeleted(h item.Handle, done chan struct{}) {
	id := h.ID()
	if id == 0 {
		if done != nil {
			close(done)
		}
		return
	}
	s.queue = slices.DeleteFunc(s.queue, func(j planner.Job) bool { return j.Item.ID() == id })
	s.evictions = slices.DeleteFunc(s.evictions, func(f planner.Frame) bool { return f.Item == id })
	if s.pending != nil && s.pending.Item.ID() == id {
		s.pending = nil
	}
	d := s.deleting[id]
	if d == nil {
		d = &deletion{handle: h}
		s.deleting[id] = d
	}
	if done != nil {
		d.done = append(d.done, done)
	}
	if !s.referenced(id) {
		s.release(id)
		return
	}
	for _, sl := range s.slots {
		if sl.job != nil && sl.job.Item.ID() == id {
			sl.w.Interrupt()
		}
	}
	s.logger.Debug("item release deferred until in-flight work stops",
		logging.ItemID(uint64(id)),
	)
}

// ApplySettings applies new runtime settings. A smaller budget evicts at
// once; worker changes resize the pool; disabling stops caching.
func (s *Scheduler) ApplySettings(next Settings) {
	next = next.normalized()
	prev := s.settings
	s.settings = next
	s.tracker.SetMax(next.MaxBytes)
	if s.closed {
		return
	}
	s.resize(next.Workers)
	if !next.Enabled {
		s.Stop()
		s.enforceBudget()
		return
	}
	s.enforceBudget()
	if prev != next {
		s.Replan()
	}
}

// Shutdown interrupts and joins every slot and the loader, then releases all
// deferred deletions. The scheduler ignores further work.
func (s *Scheduler) Shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	s.evictions = nil
	s.pending = nil
	for _, sl := range s.slots {
		sl.w.Interrupt()
	}
	for _, sl := range s.slots {
		sl.w.Close()
	}
	s.slots = nil
	if s.loader != nil {
		s.loader.Close()
	}
	s.active = nil
	for _, id := range s.deletingIDs() {
		s.release(id)
	}
	s.state = StateIdle
}

// Snapshot returns the current status. The rate is left for the caller.
func (s *Scheduler) Snapshot() Status {
	st := Status{
		State:              s.state.String(),
		Enabled:            s.settings.Enabled,
		CurrentBytes:       s.tracker.Current(),
		MaxBytes:           s.tracker.Max(),
		QueuedJobs:         len(s.queue),
		PendingEvictions:   len(s.evictions),
		InteractiveActive:  s.active != nil,
		InteractivePending: s.pending != nil,
		Position:           s.planned,
		Counters:           s.counters,
	}
	for _, job := range s.queue {
		st.QueuedFrames += job.Frames.Len()
	}
	st.Workers = make([]WorkerStatus, 0, len(s.slots))
	for _, sl := range s.slots {
		ws := WorkerStatus{ID: sl.id, Busy: sl.job != nil, Retiring: sl.retiring}
		if sl.job != nil {
			ws.Item = sl.job.Item.ID()
			ws.Frames = sl.job.Frames
		}
		st.Workers = append(st.Workers, ws)
	}
	seen := make(map[item.ID]bool)
	for _, h := range s.source.Items() {
		if !h.Valid() {
			continue
		}
		seen[h.ID()] = true
		st.Items = append(st.Items, s.itemStatus(h.ID(), h, true))
	}
	for _, id := range s.tracker.Items() {
		if !seen[id] {
			st.Items = append(st.Items, s.itemStatus(id, s.handles[id], false))
		}
	}
	return st
}

func (s *Scheduler) itemStatus(id item.ID, h item.Handle, inPlaylist bool) ItemStatus {
	is := ItemStatus{
		ID:           id,
		Name:         h.Name(),
		InPlaylist:   inPlaylist,
		Deleting:     s.deleting[id] != nil,
		CachedFrames: len(s.tracker.Frames(id)),
		CachedBytes:  s.tracker.ItemBytes(id),
		Ranges:       s.tracker.Ranges(id),
	}
	if dec, ok := h.Get(); ok {
		is.Frames = dec.Frames()
	}
	return is
}

func (s *Scheduler) fire(e Event) {
	next, err := Next(s.state, e)
	if err != nil {
		s.logger.Error("cache state machine rejected event",
			logging.Error(err),
			logging.Event("state_transition_invalid"),
		)
		return
	}
	if next != s.state {
		s.logger.Debug("cache state changed",
			logging.String("from", s.state.String()),
			logging.String("to", next.String()),
			logging.String("event", e.String()),
		)
	}
	s.state = next
}

// settle fires the event that follows the last busy slot becoming idle.
func (s *Scheduler) settle() {
	if s.busy() > 0 {
		return
	}
	switch s.state {
	case StateRunning:
		s.fire(EventQueueDrained)
	case StateInterruptStop:
		s.fire(EventInterruptsAcked)
	case StateInterruptRestart:
		s.planAndDispatch()
	}
}

func (s *Scheduler) planAndDispatch() {
	if !s.settings.Enabled {
		s.fire(EventPlanEmpty)
		return
	}
	plan, pos := s.computePlan()
	s.planned = pos
	s.queue = plan.Jobs
	s.evictions = plan.Evictions
	s.logger.Debug("cache plan computed",
		logging.Int("jobs", len(plan.Jobs)),
		logging.Int("frames", plan.Frames()),
		logging.Int("evictions", len(plan.Evictions)),
		logging.Int64("queued_bytes", plan.QueuedBytes),
	)
	s.evictToBudget()
	if s.dispatch() > 0 {
		s.fire(EventPlanReady)
	} else {
		s.fire(EventPlanEmpty)
	}
}

func (s *Scheduler) computePlan() (planner.Plan, playlist.Position) {
	pos := s.source.Position()
	var entries []planner.Entry
	for _, h := range s.source.Items() {
		if s.deleting[h.ID()] != nil {
			continue
		}
		dec, ok := h.Get()
		if !ok {
			continue
		}
		entries = append(entries, planner.Entry{
			Item:       h,
			Frames:     dec.Frames(),
			FrameBytes: dec.EstimateFrameBytes,
		})
	}
	ledger := make([]planner.Frame, 0, s.tracker.Len())
	for _, id := range s.tracker.Items() {
		for _, f := range s.tracker.Frames(id) {
			ledger = append(ledger, planner.Frame{Item: id, Index: f, Bytes: s.tracker.Bytes(id, f)})
		}
	}
	plan := planner.Compute(planner.Input{
		Items:        entries,
		Position:     pos,
		MaxBytes:     s.tracker.Max(),
		CurrentBytes: s.tracker.Current(),
		Cached: func(id item.ID, frame int) (int64, bool) {
			if !s.tracker.Cached(id, frame) {
				return 0, false
			}
			return s.tracker.Bytes(id, frame), true
		},
		Ledger:       ledger,
		Exclude:      s.inFlight,
		NearRadius:   s.settings.NearRadius,
		MaxJobFrames: s.settings.MaxJobFrames,
	})
	return plan, pos
}

// inFlight reports frames a slot or the interactive loader is working on.
func (s *Scheduler) inFlight(id item.ID, frame int) bool {
	if s.interactive(id, frame) {
		return true
	}
	return s.slotOwns(id, frame)
}

func (s *Scheduler) slotOwns(id item.ID, frame int) bool {
	for _, sl := range s.slots {
		if sl.job != nil && sl.job.Item.ID() == id && sl.job.Frames.Contains(frame) {
			return true
		}
	}
	return false
}

func (s *Scheduler) interactive(id item.ID, frame int) bool {
	for _, req := range []*worker.Request{s.active, s.pending} {
		if req != nil && req.Item.ID() == id && req.Frame == frame {
			return true
		}
	}
	return false
}

func (s *Scheduler) dispatch() int {
	n := 0
	for _, sl := range s.slots {
		if sl.job != nil || sl.retiring {
			continue
		}
		job, ok := s.nextJob()
		if !ok {
			break
		}
		s.evictFor(job.Bytes)
		s.assign(sl, job)
		n++
	}
	return n
}

func (s *Scheduler) nextJob() (planner.Job, bool) {
	for len(s.queue) > 0 {
		job := s.queue[0]
		s.queue = s.queue[1:]
		id := job.Item.ID()
		if !job.Item.Valid() || s.deleting[id] != nil || s.overlapsJob(id, job.Frames) {
			continue
		}
		return job, true
	}
	return planner.Job{}, false
}

func (s *Scheduler) overlapsJob(id item.ID, r item.Range) bool {
	if s.active != nil && s.active.Item.ID() == id && r.Contains(s.active.Frame) {
		return true
	}
	for _, sl := range s.slots {
		if sl.job == nil || sl.job.Item.ID() != id {
			continue
		}
		if r.Start < sl.job.Frames.End && sl.job.Frames.Start < r.End {
			return true
		}
	}
	return false
}

func (s *Scheduler) assign(sl *slot, job planner.Job) {
	s.seq++
	wj := worker.Job{Seq: s.seq, Item: job.Item, Frames: job.Frames}
	sl.job = &wj
	s.counters.JobsDispatched++
	s.logger.Debug("cache job dispatched",
		logging.Worker(sl.id),
		logging.ItemID(uint64(job.Item.ID())),
		logging.String("frames", job.Frames.String()),
	)
	sl.w.Start(wj)
}

func (s *Scheduler) interruptAll() {
	for _, sl := range s.slots {
		if sl.job != nil {
			sl.w.Interrupt()
		}
	}
}

func (s *Scheduler) busy() int {
	n := 0
	for _, sl := range s.slots {
		if sl.job != nil {
			n++
		}
	}
	return n
}

// evictFor evicts until extra bytes fit or the eviction queue is empty.
func (s *Scheduler) evictFor(extra int64) {
	for !s.tracker.Fits(extra) && s.evictOne() {
	}
}

func (s *Scheduler) evictToBudget() {
	for s.tracker.Over() > 0 && s.evictOne() {
	}
}

// enforceBudget evicts down to the budget, recomputing the eviction queue if
// the current one runs dry.
func (s *Scheduler) enforceBudget() {
	if s.tracker.Over() == 0 {
		return
	}
	s.evictToBudget()
	if s.tracker.Over() == 0 {
		return
	}
	plan, _ := s.computePlan()
	s.evictions = plan.Evictions
	s.evictToBudget()
}

// evictOne evicts the next eviction-queue entry that is still cached.
func (s *Scheduler) evictOne() bool {
	for len(s.evictions) > 0 {
		f := s.evictions[0]
		s.evictions = s.evictions[1:]
		if s.interactive(f.Item, f.Index) {
			continue
		}
		bytes, ok := s.tracker.Remove(f.Item, f.Index)
		if !ok {
			continue
		}
		if h, ok := s.handles[f.Item]; ok {
			_ = h.Use(func(dec item.Decoder) error {
				dec.EvictFrame(f.Index)
				return nil
			})
		}
		if len(s.tracker.Frames(f.Item)) == 0 {
			delete(s.handles, f.Item)
		}
		s.counters.FramesEvicted++
		s.counters.BytesEvicted += bytes
		return true
	}
	return false
}

func (s *Scheduler) referenced(id item.ID) bool {
	if s.active != nil && s.active.Item.ID() == id {
		return true
	}
	for _, sl := range s.slots {
		if sl.job != nil && sl.job.Item.ID() == id {
			return true
		}
	}
	return false
}

func (s *Scheduler) releaseIfUnreferenced(id item.ID) {
	if s.deleting[id] != nil && !s.referenced(id) {
		s.release(id)
	}
}

func (s *Scheduler) release(id item.ID) {
	d := s.deleting[id]
	if d == nil {
		return
	}
	delete(s.deleting, id)
	d.handle.Release()
	dropped := s.tracker.DropItem(id)
	delete(s.handles, id)
	for _, ch := range d.done {
		close(ch)
	}
	s.logger.Debug("item released",
		logging.ItemID(uint64(id)),
		logging.Int64("dropped_bytes", dropped),
	)
}

func (s *Scheduler) deletingIDs() []item.ID {
	ids := make([]item.ID, 0, len(s.deleting))
	for id := range s.deleting {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Scheduler) slot(id int) *slot {
	for _, sl := range s.slots {
		if sl.id == id {
			return sl
		}
	}
	return nil
}

func (s *Scheduler) activeSlots() int {
	n := 0
	for _, sl := range s.slots {
		if !sl.retiring {
			n++
		}
	}
	return n
}

// resize grows or shrinks the pool to n slots. Idle excess slots close at
// once; busy ones are retired after their report.
func (s *Scheduler) resize(n int) {
	for s.activeSlots() < n {
		if i := slices.IndexFunc(s.slots, func(sl *slot) bool { return sl.retiring }); i >= 0 {
			s.slots[i].retiring = false
			continue
		}
		s.lastSlot++
		s.slots = append(s.slots, &slot{id: s.lastSlot, w: s.factory(s.lastSlot)})
	}
	for s.activeSlots() > n {
		idle := -1
		busy := -1
		for i := len(s.slots) - 1; i >= 0; i-- {
			sl := s.slots[i]
			if sl.retiring {
				continue
			}
			if sl.job == nil && idle < 0 {
				idle = i
			}
			if sl.job != nil && busy < 0 {
				busy = i
			}
		}
		if idle >= 0 {
			s.removeSlot(s.slots[idle])
			continue
		}
		s.slots[busy].retiring = true
	}
	if s.state == StateRunning && !s.closed {
		s.dispatch()
	}
}

func (s *Scheduler) removeSlot(sl *slot) {
	sl.w.Close()
	s.slots = slices.DeleteFunc(s.slots, func(x *slot) bool { return x == sl })
}

func sameJobs(a, b []planner.Job) bool {
	return slices.EqualFunc(a, b, func(x, y planner.Job) bool {
		return x.Item.ID() == y.Item.ID() && x.Frames == y.Frames
	})
}
