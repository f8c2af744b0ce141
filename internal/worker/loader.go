package worker

import (
	"context"
	"errors"
	"log/slog"

	"framecache/internal/item"
	"framecache/internal/logging"
)

// Loader is the dedicated interactive goroutine. It accepts one request at a
// time; queuing of the next request is the controller's job.
type Loader struct {
	logger  *slog.Logger
	gate    *Gate
	results chan<- Result
	reqs    chan Request

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoader starts the interactive goroutine. When gate is non-nil pool slots
// pause at frame boundaries while a request is being decoded.
func NewLoader(ctx context.Context, results chan<- Result, gate *Gate, logger *slog.Logger) *Loader {
	loaderCtx, cancel := context.WithCancel(ctx)
	l := &Loader{
		logger:  logging.NewComponentLogger(logger, "interactive-loader"),
		gate:    gate,
		results: results,
		reqs:    make(chan Request, 1),
		ctx:     loaderCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.loop()
	return l
}

// Start hands the idle loader a request.
func (l *Loader) Start(req Request) {
	select {
	case l.reqs <- req:
	case <-l.ctx.Done():
	}
}

// Close stops the goroutine and waits for it to exit.
func (l *Loader) Close() {
	l.cancel()
	<-l.done
}

func (l *Loader) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case req := <-l.reqs:
			result := l.load(req)
			select {
			case l.results <- result:
			case <-l.ctx.Done():
				return
			}
		}
	}
}

func (l *Loader) load(req Request) Result {
	l.gate.Enter()
	defer l.gate.Leave()

	res, err := loadFrame(l.ctx, req.Item, req.Frame)
	result := Result{Request: req, Frame: res}
	switch {
	case errors.Is(err, item.ErrReleased):
		result.Stale = true
	case err != nil:
		result.Err = err
		l.logger.Debug("interactive decode failed",
			logging.ItemID(uint64(req.Item.ID())),
			logging.Int("frame", req.Frame),
			logging.Error(err),
		)
	}
	return result
}
