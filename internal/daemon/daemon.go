package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"framecache/internal/config"
	"framecache/internal/controller"
	"framecache/internal/history"
	"framecache/internal/item"
	"framecache/internal/logging"
	"framecache/internal/playlist"
	"framecache/internal/synthetic"
)

var (
	// ErrAlreadyRunning is returned by Start while the cache runtime is active.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrLocked is returned when another daemon holds the instance lock.
	ErrLocked = errors.New("another framecache daemon instance is already running")
	// ErrNotRunning is returned by operations that need the cache runtime.
	ErrNotRunning = errors.New("cache is not running")
	// ErrHistoryDisabled is returned by history queries without a store.
	ErrHistoryDisabled = errors.New("rate history is disabled")
)

const historyPruneInterval = time.Minute

// Options carries the optional collaborators of a Daemon.
type Options struct {
	SessionID string
	History   *history.Store
}

// Daemon owns the playlist, the simulated playback feed and the cache
// controller, and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	history   *history.Store
	sessionID string

	registry *item.Registry
	list     *playlist.Playlist
	player   *playlist.Player

	lockPath string
	lock     *flock.Flock

	mu       sync.RWMutex
	ctl      *controller.Controller
	settings controller.Settings
	cancel   context.CancelFunc
	group    *errgroup.Group
	running  atomic.Bool

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool              `json:"running"`
	PID         int               `json:"pid"`
	SessionID   string            `json:"session_id"`
	LockPath    string            `json:"lock_path"`
	HistoryPath string            `json:"history_path,omitempty"`
	Selected    item.ID           `json:"selected"`
	Position    playlist.Position `json:"position"`
	Cache       controller.Status `json:"cache"`
}

// New constructs a daemon and loads the configured playlist.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		history:   opts.History,
		sessionID: opts.SessionID,
		registry:  item.NewRegistry(),
		list:      playlist.New(),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
		settings:  controller.SettingsFromConfig(cfg.Cache),
		shutdown:  make(chan struct{}),
	}
	d.player = playlist.NewPlayer(d.list, cfg.Playback.FrameInterval())
	for _, it := range cfg.Playlist.Items {
		d.list.Add(d.registry.Register(synthetic.New(synthetic.Options{
			Name:        it.Name,
			Frames:      it.Frames,
			FrameBytes:  it.FrameBytes(),
			DecodeDelay: it.DecodeDelay(),
			FailEvery:   it.FailEvery,
		})))
	}

	d.list.OnChange(func() {
		if ctl := d.controller(); ctl != nil {
			ctl.PlaylistChanged()
		}
	})
	d.list.OnAboutToDelete(d.aboutToDelete)
	d.player.OnPosition(func(pos playlist.Position) {
		if ctl := d.controller(); ctl != nil {
			ctl.PositionChanged(pos)
		}
	})
	return d, nil
}

// Start acquires the instance lock and launches the cache controller, the
// playback feed and history maintenance.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.startRuntime(ctx); err != nil {
		return err
	}
	// Position listeners take d.mu, so playback starts after it is released.
	if d.cfg.Playback.Autoplay {
		d.player.Play(d.cfg.Playback.Reverse)
	}
	d.logger.Info("framecache daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("items", d.list.Len()),
		logging.Event("daemon_start"),
	)
	return nil
}

func (d *Daemon) startRuntime(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return ErrAlreadyRunning
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}

	opts := controller.Options{
		Settings:            d.settings,
		RateInterval:        d.cfg.Cache.RateInterval(),
		InteractivePriority: d.cfg.Cache.InteractivePriority,
		Logger:              d.logger,
	}
	if d.history != nil {
		opts.Sink = d.history
	}
	ctl := controller.New(controller.NewSource(d.list, d.player), opts)

	runCtx, cancel := context.WithCancel(ctx)
	if err := ctl.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start cache controller: %w", err)
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return d.player.Run(groupCtx) })
	if d.history != nil && d.cfg.History.KeepSamples > 0 {
		group.Go(func() error { return d.pruneHistory(groupCtx) })
	}

	d.ctl = ctl
	d.cancel = cancel
	d.group = group
	d.running.Store(true)
	return nil
}

// Stop stops the cache runtime and releases the instance lock. Settings
// changed at runtime survive a restart.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	ctl, cancel, group := d.ctl, d.cancel, d.group
	d.ctl = nil
	d.cancel = nil
	d.group = nil
	d.settings = ctl.Settings()
	d.running.Store(false)
	d.mu.Unlock()

	d.player.Pause()
	cancel()
	if err := group.Wait(); err != nil {
		d.logger.Warn("daemon task failed", logging.Error(err))
	}
	ctl.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("framecache daemon stopped", logging.Event("daemon_stop"))
}

// Close stops the runtime and closes the history store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// RequestShutdown asks the hosting process to exit.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdown) })
}

// ShutdownRequested is closed after RequestShutdown.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdown
}

// LogPath returns the file the daemon writes its JSON log to.
func (d *Daemon) LogPath() string {
	return d.cfg.LogPath()
}

// Running reports whether the cache runtime is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		SessionID: d.sessionID,
		LockPath:  d.lockPath,
		Position:  d.player.Position(),
	}
	if d.history != nil {
		st.HistoryPath = d.history.Path()
	}
	if sel, ok := d.list.Selected(); ok {
		st.Selected = sel.ID()
	}
	if ctl := d.controller(); ctl != nil {
		st.Cache = ctl.Status()
		return st
	}
	settings := d.Settings()
	st.Cache = controller.Status{State: "stopped", Enabled: settings.Enabled, MaxBytes: settings.MaxBytes}
	for _, h := range d.list.Items() {
		is := controller.ItemStatus{ID: h.ID(), Name: h.Name(), InPlaylist: true}
		if dec, ok := h.Get(); ok {
			is.Frames = dec.Frames()
		}
		st.Cache.Items = append(st.Cache.Items, is)
	}
	return st
}

// Settings returns the effective cache settings.
func (d *Daemon) Settings() controller.Settings {
	if ctl := d.controller(); ctl != nil {
		return ctl.Settings()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// UpdateSettings merges update into the current settings and applies them.
func (d *Daemon) UpdateSettings(update SettingsUpdate) controller.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctl != nil {
		next := update.Apply(d.ctl.Settings())
		d.ctl.UpdateSettings(next)
		return d.ctl.Settings()
	}
	d.settings = update.Apply(d.settings)
	return d.settings
}

// Seek moves the playhead to frame of the referenced item.
func (d *Daemon) Seek(ref string, frame int) (playlist.Position, error) {
	h, err := d.resolve(ref)
	if err != nil {
		return playlist.Position{}, err
	}
	return d.player.Seek(h.ID(), frame)
}

// Step moves the playhead by delta frames.
func (d *Daemon) Step(delta int) (playlist.Position, error) {
	return d.player.Step(delta)
}

// Select makes the referenced item current and moves the playhead to its
// first frame.
func (d *Daemon) Select(ref string) (playlist.Position, error) {
	h, err := d.resolve(ref)
	if err != nil {
		return playlist.Position{}, err
	}
	if err := d.list.Select(h.ID()); err != nil {
		return playlist.Position{}, err
	}
	return d.player.Seek(h.ID(), 0)
}

// Play starts the playback feed.
func (d *Daemon) Play(reverse bool) playlist.Position {
	return d.player.Play(reverse)
}

// Pause stops the playback feed.
func (d *Daemon) Pause() playlist.Position {
	return d.player.Pause()
}

// Remove deletes the referenced item once the cache released it. A playhead
// on the removed item moves to the new selection.
func (d *Daemon) Remove(ctx context.Context, ref string) (item.ID, error) {
	h, err := d.resolve(ref)
	if err != nil {
		return 0, err
	}
	id := h.ID()
	if err := d.list.Remove(ctx, id); err != nil {
		return 0, err
	}
	if d.player.Position().Item == id {
		if sel, ok := d.list.Selected(); ok {
			_, _ = d.player.Seek(sel.ID(), 0)
		} else {
			d.player.Pause()
		}
	}
	d.logger.Info("item removed",
		logging.ItemID(uint64(id)),
		logging.Event("item_removed"),
	)
	return id, nil
}

// Load requests an interactive decode of one frame.
func (d *Daemon) Load(ref string, frame int) error {
	h, err := d.resolve(ref)
	if err != nil {
		return err
	}
	dec, ok := h.Get()
	if !ok {
		return item.ErrReleased
	}
	if !dec.Frames().Contains(frame) {
		return fmt.Errorf("load %s frame %d: %w", h.Name(), frame, synthetic.ErrFrameOutOfRange)
	}
	ctl := d.controller()
	if ctl == nil {
		return ErrNotRunning
	}
	ctl.LoadFrame(h, frame)
	return nil
}

// Plan previews the plan the controller would dispatch now.
func (d *Daemon) Plan(ctx context.Context) (controller.Preview, error) {
	ctl := d.controller()
	if ctl == nil {
		return controller.Preview{}, ErrNotRunning
	}
	return ctl.Plan(ctx)
}

// History returns the newest rate samples and an aggregate over all of them.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Sample, history.Summary, error) {
	if d.history == nil {
		return nil, history.Summary{}, ErrHistoryDisabled
	}
	samples, err := d.history.Recent(ctx, limit)
	if err != nil {
		return nil, history.Summary{}, err
	}
	summary, err := d.history.Summary(ctx)
	if err != nil {
		return nil, history.Summary{}, err
	}
	return samples, summary, nil
}

func (d *Daemon) controller() *controller.Controller {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ctl
}

func (d *Daemon) aboutToDelete(h item.Handle) <-chan struct{} {
	if ctl := d.controller(); ctl != nil {
		return ctl.ItemAboutToBeDeleted(h)
	}
	h.Release()
	done := make(chan struct{})
	close(done)
	return done
}

// resolve accepts an item id or name.
func (d *Daemon) resolve(ref string) (item.Handle, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		if h, ok := d.list.Find(item.ID(id)); ok {
			return h, nil
		}
	}
	if h, ok := d.list.FindName(ref); ok {
		return h, nil
	}
	return item.Handle{}, fmt.Errorf("item %q: %w", ref, playlist.ErrUnknownItem)
}

func (d *Daemon) pruneHistory(ctx context.Context) error {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()
	for {
		removed, err := d.history.Prune(ctx, d.cfg.History.KeepSamples)
		switch {
		case err != nil && ctx.Err() == nil:
			logging.WarnWithContext(d.logger, "rate history prune failed", "history_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "history database keeps growing"),
			)
		case removed > 0:
			d.logger.Debug("rate history pruned", logging.Int64("removed", removed))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
