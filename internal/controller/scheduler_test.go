package controller_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"framecache/internal/config"
	"framecache/internal/controller"
	"framecache/internal/item"
	"framecache/internal/logging"
	"framecache/internal/playlist"
	"framecache/internal/synthetic"
	"framecache/internal/worker"
)

const frameBytes = 10

type fakeWorker struct {
	id         int
	jobs       []worker.Job
	interrupts int
	closed     bool
}

func (w *fakeWorker) Start(job worker.Job) { w.jobs = append(w.jobs, job) }
func (w *fakeWorker) Interrupt() { w.interrupts++ }
func (w *fakeWorker) Close() { w.closed = true }

func (w *fakeWorker) current() worker.Job { return w.jobs[len(w.jobs)-1] }

type fakeLoader struct {
	reqs   []worker.Request
	closed bool
}

func (l *fakeLoader) Start(req worker.Request) { l.reqs = append(l.reqs, req) }
func (l *fakeLoader) Close() { l.closed = true }

type fakeSource struct {
	items []item.Handle
	pos   playlist.Position
}

func (s *fakeSource) Items() []item.Handle { return slices.Clone(s.items) }
func (s *fakeSource) Position() playlist.Position { return s.pos }

type harness struct {
	t       *testing.T
	reg     *item.Registry
	src     *fakeSource
	loader  *fakeLoader
	workers map[int]*fakeWorker
	decs    map[item.ID]*synthetic.Item
	sched   *controller.Scheduler
}

func newHarness(t *testing.T, lengths ...int) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		reg:     item.NewRegistry(),
		src:     &fakeSource{},
		loader:  &fakeLoader{},
		workers: make(map[int]*fakeWorker),
		decs:    make(map[item.ID]*synthetic.Item),
	}
	for i, n := range lengths {
		dec := synthetic.New(synthetic.Options{Name: string(rune('A' + i)), Frames: n, FrameBytes: frameBytes})
		handle := h.reg.Register(dec)
		h.decs[handle.ID()] = dec
		h.src.items = append(h.src.items, handle)
	}
	if len(h.src.items) > 0 {
		h.src.pos = playlist.Position{Item: h.src.items[0].ID()}
	}
	return h
}

func (h *harness) start(settings controller.Settings) *controller.Scheduler {
	h.t.Helper()
	factory := func(id int) controller.Worker {
		w := &fakeWorker{id: id}
		h.workers[id] = w
		return w
	}
	h.sched = controller.NewScheduler(h.src, factory, h.loader, settings, logging.NewNop())
	h.sched.Replan()
	return h.sched
}

func (h *harness) item(i int) item.Handle { return h.src.items[i] }

func settings(maxBytes int64, workers int) controller.Settings {
	return controller.Settings{MaxBytes: maxBytes, Workers: workers, Enabled: true, MaxJobFrames: 10}
}

// finish completes the first n frames of the slot's current job, decoding
// them into the synthetic item like a real slot would.
func (h *harness) finish(id, n int) worker.Report {
	h.t.Helper()
	w := h.workers[id]
	if w == nil || len(w.jobs) == 0 {
		h.t.Fatalf("worker %d has no job", id)
	}
	job := w.current()
	n = min(n, job.Frames.Len())
	r := worker.Report{
		Slot:        id,
		Job:         job,
		Completed:   item.NewRange(job.Frames.Start, job.Frames.Start+n),
		Interrupted: n < job.Frames.Len(),
	}
	for f := r.Completed.Start; f < r.Completed.End; f++ {
		err := job.Item.Use(func(dec item.Decoder) error {
			return dec.LoadFrame(context.Background(), f)
		})
		if errors.Is(err, item.ErrReleased) {
			r.Stale = true
			break
		}
		r.Cached = append(r.Cached, worker.FrameResult{Index: f, Bytes: frameBytes, Loaded: true})
		r.BytesLoaded += frameBytes
	}
	h.sched.HandleReport(r)
	return r
}

func (h *harness) busy() []controller.WorkerStatus {
	var out []controller.WorkerStatus
	for _, ws := range h.sched.Snapshot().Workers {
		if ws.Busy {
			out = append(out, ws)
		}
	}
	return out
}

func (h *harness) drain() {
	h.t.Helper()
	for range 1000 {
		busy := h.busy()
		if len(busy) == 0 {
			return
		}
		h.finish(busy[0].ID, busy[0].Frames.Len())
	}
	h.t.Fatalf("pool did not drain")
}

func wantState(t *testing.T, s *controller.Scheduler, want controller.State) {
	t.Helper()
	if got := s.State(); got != want {
		t.Fatalf("state: got %s want %s", got, want)
	}
}

func wantRange(t *testing.T, job worker.Job, start, end int) {
	t.Helper()
	if job.Frames != item.NewRange(start, end) {
		t.Fatalf("job frames: got %s want [%d,%d)", job.Frames, start, end)
	}
}

func TestSchedulerDispatchesAndDrains(t *testing.T) {
	h := newHarness(t, 20, 20)
	s := h.start(settings(1<<20, 2))
	wantState(t, s, controller.StateRunning)

	wantRange(t, h.workers[1].current(), 0, 10)
	wantRange(t, h.workers[2].current(), 10, 20)
	if got := s.Snapshot().QueuedJobs; got != 2 {
		t.Fatalf("queued jobs: got %d want 2", got)
	}

	h.finish(1, 10)
	if got := h.workers[1].current(); got.Item.ID() != h.item(1).ID() {
		t.Fatalf("slot 1 should move on to the second item, got item %d", got.Item.ID())
	}
	wantRange(t, h.workers[1].current(), 0, 10)
	h.drain()

	wantState(t, s, controller.StateIdle)
	if got, want := s.Tracker().Current(), int64(40*frameBytes); got != want {
		t.Fatalf("current bytes: got %d want %d", got, want)
	}
	for id, dec := range h.decs {
		if got := len(dec.CachedFrames()); got != 20 {
			t.Fatalf("item %d cached frames: got %d want 20", id, got)
		}
	}
	st := s.Snapshot()
	if st.Counters.JobsDispatched != 4 || st.Counters.FramesCached != 40 {
		t.Fatalf("counters: got %+v", st.Counters)
	}
	if got := st.FillRatio(); got <= 0 {
		t.Fatalf("fill ratio: got %v", got)
	}
}

func TestSchedulerIdleWhenEverythingCached(t *testing.T) {
	h := newHarness(t, 10)
	s := h.start(settings(1<<20, 1))
	h.drain()
	dispatched := s.Snapshot().Counters.JobsDispatched

	s.Replan()
	wantState(t, s, controller.StateIdle)
	if got := s.Snapshot().Counters.JobsDispatched; got != dispatched {
		t.Fatalf("jobs dispatched: got %d want %d", got, dispatched)
	}
}

func TestSchedulerDeferredDeletion(t *testing.T) {
	h := newHarness(t, 30, 20)
	s := h.start(settings(1<<20, 2))
	a, b := h.item(0), h.item(1)

	h.finish(2, 10) // slot 2 takes A[20,30)
	h.finish(2, 10) // slot 2 takes B[0,10)
	h.finish(2, 10) // slot 2 takes B[10,20)
	if got := h.workers[2].current(); got.Item.ID() != b.ID() {
		t.Fatalf("slot 2 should be on item B, got item %d", got.Item.ID())
	}
	wantRange(t, h.workers[2].current(), 10, 20)

	done := make(chan struct{})
	s.ItemAboutToBeDeleted(b, done)
	if h.workers[2].interrupts != 1 {
		t.Fatalf("slot on deleted item interrupts: got %d want 1", h.workers[2].interrupts)
	}
	if h.workers[1].interrupts != 0 {
		t.Fatalf("unrelated slot interrupted %d times", h.workers[1].interrupts)
	}
	select {
	case <-done:
		t.Fatalf("release must wait for the busy slot")
	default:
	}
	if !isDeleting(s.Snapshot(), b.ID()) {
		t.Fatalf("status should mark item B as deleting")
	}

	r := h.finish(2, 3)
	if !r.Interrupted {
		t.Fatalf("partial report should be interrupted")
	}
	select {
	case <-done:
	default:
		t.Fatalf("release should complete once the slot reported")
	}
	if b.Valid() {
		t.Fatalf("deleted item should be released")
	}
	if got := s.Tracker().ItemBytes(b.ID()); got != 0 {
		t.Fatalf("deleted item bytes: got %d want 0", got)
	}
	if got, want := s.Tracker().Current(), int64(20*frameBytes); got != want {
		t.Fatalf("current bytes: got %d want %d", got, want)
	}
	wantState(t, s, controller.StateRunning)
	if !a.Valid() {
		t.Fatalf("item A must stay valid")
	}

	h.finish(1, 10)
	wantState(t, s, controller.StateIdle)
}

func TestSchedulerDeletesUnreferencedItemAtOnce(t *testing.T) {
	h := newHarness(t, 10, 10)
	s := h.start(settings(1<<20, 1))
	b := h.item(1)

	done := make(chan struct{})
	s.ItemAboutToBeDeleted(b, done)
	select {
	case <-done:
	default:
		t.Fatalf("unreferenced item should be released immediately")
	}
	h.src.items = h.src.items[:1]
	h.drain()
	for _, w := range h.workers {
		for _, job := range w.jobs {
			if job.Item.ID() == b.ID() {
				t.Fatalf("deleted item was dispatched")
			}
		}
	}
}

func TestSchedulerDeletionWaitsForInteractiveLoad(t *testing.T) {
	h := newHarness(t, 10, 10)
	s := h.start(settings(1<<20, 0))
	a, b := h.item(0), h.item(1)

	s.RequestFrame(b, 3)
	s.RequestFrame(a, 4)
	done := make(chan struct{})
	s.ItemAboutToBeDeleted(b, done)
	select {
	case <-done:
		t.Fatalf("release must wait for the interactive load")
	default:
	}

	s.HandleLoaded(worker.Result{Request: h.loader.reqs[0], Frame: worker.FrameResult{Index: 3, Bytes: frameBytes, Loaded: true}})
	select {
	case <-done:
	default:
		t.Fatalf("release should complete after the load result")
	}
	if s.Tracker().Cached(b.ID(), 3) {
		t.Fatalf("frame of a deleted item must not be recorded")
	}
	if got := len(h.loader.reqs); got != 2 || h.loader.reqs[1].Item.ID() != a.ID() {
		t.Fatalf("pending request for the other item should start, got %d requests", got)
	}
}

func TestSchedulerDeletionDropsPendingRequest(t *testing.T) {
	h := newHarness(t, 10, 10)
	s := h.start(settings(1<<20, 0))
	a, b := h.item(0), h.item(1)

	s.RequestFrame(a, 5)
	s.RequestFrame(b, 3)
	done := make(chan struct{})
	s.ItemAboutToBeDeleted(b, done)
	select {
	case <-done:
	default:
		t.Fatalf("item with only a pending request should be released at once")
	}
	s.HandleLoaded(worker.Result{Request: h.loader.reqs[0], Frame: worker.FrameResult{Index: 5, Bytes: frameBytes, Loaded: true}})
	if got := len(h.loader.reqs); got != 1 {
		t.Fatalf("loader requests: got %d want 1", got)
	}
	if !s.Tracker().Cached(a.ID(), 5) {
		t.Fatalf("interactive frame should be recorded")
	}
}

func TestSchedulerInteractiveKeepsLatestPendingRequest(t *testing.T) {
	h := newHarness(t, 10)
	s := h.start(settings(1<<20, 0))
	wantState(t, s, controller.StateIdle)
	a := h.item(0)

	s.RequestFrame(a, 5)
	s.RequestFrame(a, 6)
	s.RequestFrame(a, 7)
	if got := len(h.loader.reqs); got != 1 || h.loader.reqs[0].Frame != 5 {
		t.Fatalf("loader should only run frame 5, got %+v", h.loader.reqs)
	}
	st := s.Snapshot()
	if !st.InteractiveActive || !st.InteractivePending {
		t.Fatalf("status: active=%v pending=%v", st.InteractiveActive, st.InteractivePending)
	}
	if st.Counters.RequestsDropped != 1 {
		t.Fatalf("dropped requests: got %d want 1", st.Counters.RequestsDropped)
	}

	s.HandleLoaded(worker.Result{Request: h.loader.reqs[0], Frame: worker.FrameResult{Index: 5, Bytes: frameBytes, Loaded: true}})
	if got := len(h.loader.reqs); got != 2 || h.loader.reqs[1].Frame != 7 {
		t.Fatalf("loader should continue with frame 7, got %+v", h.loader.reqs)
	}
	s.HandleLoaded(worker.Result{Request: h.loader.reqs[1], Frame: worker.FrameResult{Index: 7, Bytes: frameBytes, Loaded: true}})

	tr := s.Tracker()
	if !tr.Cached(a.ID(), 5) || tr.Cached(a.ID(), 6) || !tr.Cached(a.ID(), 7) {
		t.Fatalf("cached frames: got %v want [5 7]", tr.Frames(a.ID()))
	}
	if st := s.Snapshot(); st.InteractiveActive || st.InteractivePending {
		t.Fatalf("interactive loader should be idle")
	}
}

func TestSchedulerInteractiveWaitsForSlotOwningFrame(t *testing.T) {
	h := newHarness(t, 20)
	s := h.start(settings(1<<20, 1))
	a := h.item(0)
	wantRange(t, h.workers[1].current(), 0, 10)

	s.RequestFrame(a, 4)
	if got := len(h.loader.reqs); got != 0 {
		t.Fatalf("loader started while slot 1 owns frame 4: %+v", h.loader.reqs)
	}
	if st := s.Snapshot(); st.InteractiveActive || !st.InteractivePending {
		t.Fatalf("status: active=%v pending=%v", st.InteractiveActive, st.InteractivePending)
	}

	// Interrupted before reaching frame 4.
	h.finish(1, 2)
	if got := len(h.loader.reqs); got != 1 || h.loader.reqs[0].Frame != 4 {
		t.Fatalf("loader should start frame 4 once the slot reports, got %+v", h.loader.reqs)
	}
	wantRange(t, h.workers[1].current(), 10, 20)

	s.RequestFrame(a, 15)
	s.HandleLoaded(worker.Result{Request: h.loader.reqs[0], Frame: worker.FrameResult{Index: 4, Bytes: frameBytes, Loaded: true}})
	if got := len(h.loader.reqs); got != 1 {
		t.Fatalf("frame 15 is owned by slot 1, loader requests: got %d want 1", got)
	}
	h.finish(1, 10)
	if got := len(h.loader.reqs); got != 2 || h.loader.reqs[1].Frame != 15 {
		t.Fatalf("loader should start frame 15 after slot 1 reports, got %+v", h.loader.reqs)
	}
	if !s.Tracker().Cached(a.ID(), 4) {
		t.Fatalf("interactive frame should be recorded")
	}
}

func TestSchedulerInteractiveFailureAndStaleResult(t *testing.T) {
	h := newHarness(t, 10)
	s := h.start(settings(1<<20, 0))
	a := h.item(0)

	s.RequestFrame(a, 1)
	s.HandleLoaded(worker.Result{Request: h.loader.reqs[0], Err: synthetic.ErrDecode})
	if s.Tracker().Cached(a.ID(), 1) {
		t.Fatalf("failed frame must not be recorded")
	}
	if got := s.Snapshot().Counters.FramesFailed; got != 1 {
		t.Fatalf("failed frames: got %d want 1", got)
	}

	// A result that does not match the active request is ignored.
	s.HandleLoaded(worker.Result{Request: worker.Request{Seq: 999, Item: a, Frame: 2}, Frame: worker.FrameResult{Index: 2, Bytes: frameBytes}})
	if s.Tracker().Cached(a.ID(), 2) {
		t.Fatalf("unknown result must be ignored")
	}
}

func TestSchedulerShrinkingBudgetEvictsFarthestFrames(t *testing.T) {
	h := newHarness(t, 12)
	cfg := settings(120, 1)
	cfg.MaxJobFrames = 12
	s := h.start(cfg)
	h.drain()
	a := h.item(0)
	if got := s.Tracker().Current(); got != 120 {
		t.Fatalf("current bytes: got %d want 120", got)
	}

	cfg.MaxBytes = 100
	s.ApplySettings(cfg)
	if got := s.Tracker().Current(); got > 100 {
		t.Fatalf("current bytes: got %d want <= 100", got)
	}
	if got := s.Tracker().Frames(a.ID()); !slices.Equal(got, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Fatalf("kept frames: got %v", got)
	}
	if got := h.decs[a.ID()].CachedFrames(); len(got) != 10 {
		t.Fatalf("decoder should drop evicted frames, still holds %v", got)
	}
	evicted := s.Snapshot().Counters.FramesEvicted
	if evicted != 2 {
		t.Fatalf("evicted frames: got %d want 2", evicted)
	}

	s.ApplySettings(cfg)
	if got := s.Snapshot().Counters.FramesEvicted; got != evicted {
		t.Fatalf("reapplying the same budget evicted again: got %d want %d", got, evicted)
	}
	wantState(t, s, controller.StateIdle)
}

func TestSchedulerEvictsOrphanedFramesFirst(t *testing.T) {
	h := newHarness(t, 10, 10)
	s := h.start(settings(200, 1))
	h.drain()
	a, b := h.item(0), h.item(1)

	// B leaves the playlist without being deleted.
	h.src.items = h.src.items[:1]
	next := settings(150, 1)
	s.ApplySettings(next)

	if got := s.Tracker().Current(); got != 150 {
		t.Fatalf("current bytes: got %d want 150", got)
	}
	if got := len(s.Tracker().Frames(a.ID())); got != 10 {
		t.Fatalf("playlist item lost frames: %d left", got)
	}
	if got := s.Tracker().Frames(b.ID()); !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("orphan frames: got %v want [0 1 2 3 4]", got)
	}
	st := s.Snapshot()
	var orphan *controller.ItemStatus
	for i := range st.Items {
		if st.Items[i].ID == b.ID() {
			orphan = &st.Items[i]
		}
	}
	if orphan == nil || orphan.InPlaylist {
		t.Fatalf("orphaned item should be listed outside the playlist: %+v", orphan)
	}
}

func TestSchedulerReplanCoalescesWhileInterrupting(t *testing.T) {
	h := newHarness(t, 40)
	s := h.start(settings(1<<20, 2))
	a := h.item(0)

	h.src.pos = playlist.Position{Item: a.ID(), Frame: 30}
	s.Replan()
	wantState(t, s, controller.StateInterruptRestart)
	s.Replan()
	s.PositionChanged(h.src.pos)
	for id := 1; id <= 2; id++ {
		if got := h.workers[id].interrupts; got != 1 {
			t.Fatalf("slot %d interrupts: got %d want 1", id, got)
		}
	}

	h.finish(1, 2)
	wantState(t, s, controller.StateInterruptRestart)
	h.finish(2, 0)
	wantState(t, s, controller.StateRunning)
	if got := h.workers[1].current(); !got.Frames.Contains(30) {
		t.Fatalf("first job after replan should hold the playhead, got %s", got.Frames)
	}
	if got := s.Tracker().Frames(a.ID()); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("completed prefix should stay cached, got %v", got)
	}
}

func TestSchedulerStopThenReplanRestarts(t *testing.T) {
	h := newHarness(t, 40)
	s := h.start(settings(1<<20, 2))

	s.Stop()
	wantState(t, s, controller.StateInterruptStop)
	if got := s.Snapshot().QueuedJobs; got != 0 {
		t.Fatalf("stop should drop the queue, %d jobs left", got)
	}
	s.Replan()
	wantState(t, s, controller.StateInterruptRestart)

	h.finish(1, 0)
	h.finish(2, 0)
	wantState(t, s, controller.StateRunning)
	if got := len(h.workers[1].jobs); got != 2 {
		t.Fatalf("slot 1 jobs: got %d want 2", got)
	}
}

func TestSchedulerStopGoesIdleAfterAcks(t *testing.T) {
	h := newHarness(t, 40)
	s := h.start(settings(1<<20, 2))

	s.Stop()
	s.Stop()
	h.finish(1, 4)
	wantState(t, s, controller.StateInterruptStop)
	h.finish(2, 0)
	wantState(t, s, controller.StateIdle)
	if got := len(h.workers[1].jobs) + len(h.workers[2].jobs); got != 2 {
		t.Fatalf("no job may be dispatched after a stop, got %d", got)
	}
}

func TestSchedulerReplanThreshold(t *testing.T) {
	h := newHarness(t, 100)
	s := h.start(settings(1<<20, 1))
	a := h.item(0)

	h.src.pos = playlist.Position{Item: a.ID(), Frame: 2}
	s.PositionChanged(h.src.pos)
	if got := h.workers[1].interrupts; got != 0 {
		t.Fatalf("small move interrupted the pool %d times", got)
	}
	wantState(t, s, controller.StateRunning)

	h.src.pos = playlist.Position{Item: a.ID(), Frame: 50}
	s.PositionChanged(h.src.pos)
	if got := h.workers[1].interrupts; got != 1 {
		t.Fatalf("large move interrupts: got %d want 1", got)
	}
	wantState(t, s, controller.StateInterruptRestart)
}

func TestSchedulerUnchangedPlanKeepsWorkersRunning(t *testing.T) {
	h := newHarness(t, 100)
	s := h.start(settings(1<<20, 2))
	s.Replan()
	wantState(t, s, controller.StateRunning)
	if h.workers[1].interrupts+h.workers[2].interrupts != 0 {
		t.Fatalf("replan with an unchanged plan must not interrupt")
	}
}

func TestSchedulerResizesPool(t *testing.T) {
	h := newHarness(t, 100)
	s := h.start(settings(1<<20, 2))

	s.ApplySettings(settings(1<<20, 4))
	if got := len(s.Snapshot().Workers); got != 4 {
		t.Fatalf("workers: got %d want 4", got)
	}
	wantRange(t, h.workers[3].current(), 20, 30)
	wantRange(t, h.workers[4].current(), 30, 40)
	for id, w := range h.workers {
		if w.interrupts != 0 {
			t.Fatalf("growing the pool interrupted slot %d", id)
		}
	}

	s.ApplySettings(settings(1<<20, 1))
	st := s.Snapshot()
	retiring := 0
	for _, ws := range st.Workers {
		if ws.Retiring {
			retiring++
		}
	}
	if len(st.Workers) != 4 || retiring != 3 {
		t.Fatalf("workers: got %d (%d retiring) want 4 (3 retiring)", len(st.Workers), retiring)
	}
	for id, w := range h.workers {
		if w.closed {
			t.Fatalf("busy slot %d closed before reporting", id)
		}
	}

	h.finish(4, 10)
	if !h.workers[4].closed {
		t.Fatalf("retiring slot should close after its report")
	}
	if got := len(h.workers[4].jobs); got != 1 {
		t.Fatalf("retiring slot got new work")
	}
	h.finish(1, 10)
	if got := len(h.workers[1].jobs); got != 2 {
		t.Fatalf("remaining slot should continue, got %d jobs", got)
	}
	h.finish(2, 10)
	h.finish(3, 10)
	if got := len(s.Snapshot().Workers); got != 1 {
		t.Fatalf("workers after retirement: got %d want 1", got)
	}
}

func TestSchedulerDisableStopsCaching(t *testing.T) {
	h := newHarness(t, 40)
	s := h.start(settings(1<<20, 1))

	off := settings(1<<20, 1)
	off.Enabled = false
	s.ApplySettings(off)
	wantState(t, s, controller.StateInterruptStop)
	h.finish(1, 0)
	wantState(t, s, controller.StateIdle)

	s.Replan()
	wantState(t, s, controller.StateIdle)
	if got := len(h.workers[1].jobs); got != 1 {
		t.Fatalf("disabled cache dispatched work: %d jobs", got)
	}
	if s.Snapshot().Enabled {
		t.Fatalf("status should report caching disabled")
	}

	s.ApplySettings(settings(1<<20, 1))
	wantState(t, s, controller.StateRunning)
}

func TestSchedulerShutdownReleasesEverything(t *testing.T) {
	h := newHarness(t, 40, 10)
	s := h.start(settings(1<<20, 2))
	a := h.item(0)

	done := make(chan struct{})
	s.ItemAboutToBeDeleted(a, done)
	s.Shutdown()

	select {
	case <-done:
	default:
		t.Fatalf("shutdown should release deferred deletions")
	}
	for id, w := range h.workers {
		if !w.closed || w.interrupts == 0 {
			t.Fatalf("slot %d: closed=%v interrupts=%d", id, w.closed, w.interrupts)
		}
	}
	if !h.loader.closed {
		t.Fatalf("loader should be closed")
	}
	wantState(t, s, controller.StateIdle)

	s.Replan()
	s.RequestFrame(h.item(1), 2)
	if got := len(h.loader.reqs); got != 0 {
		t.Fatalf("closed scheduler started %d requests", got)
	}
}

func TestSchedulerNeverOverlapsInFlightWork(t *testing.T) {
	h := newHarness(t, 60, 40, 30)
	s := h.start(settings(900, 3))
	rng := rand.New(rand.NewPCG(1, 2))

	check := func(step int) {
		t.Helper()
		busy := h.busy()
		for i, x := range busy {
			for f := x.Frames.Start; f < x.Frames.End; f++ {
				if s.Tracker().Cached(x.Item, f) {
					t.Fatalf("step %d: slot %d works on cached frame %d of item %d", step, x.ID, f, x.Item)
				}
			}
			for _, y := range busy[i+1:] {
				if x.Item == y.Item && x.Frames.Start < y.Frames.End && y.Frames.Start < x.Frames.End {
					t.Fatalf("step %d: slots %d and %d overlap on item %d: %s %s", step, x.ID, y.ID, x.Item, x.Frames, y.Frames)
				}
			}
		}
		var sum int64
		for _, id := range s.Tracker().Items() {
			sum += s.Tracker().ItemBytes(id)
		}
		if sum != s.Tracker().Current() {
			t.Fatalf("step %d: ledger sum %d != current %d", step, sum, s.Tracker().Current())
		}
		if s.Tracker().Current() > s.Tracker().Max() {
			t.Fatalf("step %d: budget exceeded: %d > %d", step, s.Tracker().Current(), s.Tracker().Max())
		}
	}

	for step := range 400 {
		switch rng.IntN(4) {
		case 0:
			it := h.src.items[rng.IntN(len(h.src.items))]
			dec, _ := it.Get()
			h.src.pos = playlist.Position{Item: it.ID(), Frame: rng.IntN(dec.Frames().Len()), Playing: rng.IntN(2) == 0}
			s.PositionChanged(h.src.pos)
		case 1:
			s.Replan()
		default:
			if busy := h.busy(); len(busy) > 0 {
				ws := busy[rng.IntN(len(busy))]
				h.finish(ws.ID, rng.IntN(ws.Frames.Len()+1))
			}
		}
		check(step)
	}
	h.drain()
	check(-1)
	if st := s.State(); st != controller.StateIdle {
		t.Fatalf("pool should settle idle, got %s", st)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	got := controller.SettingsFromConfig(config.Cache{Enabled: true, MaxMiB: 3, Workers: 2})
	if got.MaxBytes != 3<<20 || got.Workers != 2 || !got.Enabled {
		t.Fatalf("settings: got %+v", got)
	}
	if got.MaxJobFrames <= 0 || got.NearRadius <= 0 || got.ReplanThreshold != controller.DefaultReplanThreshold {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func isDeleting(st controller.Status, id item.ID) bool {
	for _, is := range st.Items {
		if is.ID == id {
			return is.Deleting
		}
	}
	return false
}

func TestSchedulerPreviewDoesNotDispatch(t *testing.T) {
	h := newHarness(t, 30)
	s := h.start(settings(1<<20, 1))

	p := s.Preview()
	if len(p.Jobs) != 2 {
		t.Fatalf("preview jobs: got %d want 2", len(p.Jobs))
	}
	if p.Jobs[0].Frames != item.NewRange(10, 20) || p.Jobs[0].Name != "A" {
		t.Fatalf("first previewed job: got %+v", p.Jobs[0])
	}
	if p.QueuedBytes != 20*frameBytes || p.KeepBytes != 30*frameBytes {
		t.Fatalf("preview bytes: queued %d keep %d", p.QueuedBytes, p.KeepBytes)
	}
	if got := len(h.workers[1].jobs); got != 1 {
		t.Fatalf("preview dispatched work: %d jobs", got)
	}
}
