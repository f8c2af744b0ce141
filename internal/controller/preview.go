package controller

import (
	"context"
	"errors"

	"framecache/internal/item"
	"framecache/internal/playlist"
)

// ErrStopped is returned by queries made after the controller stopped.
var ErrStopped = errors.New("cache controller stopped")

// PlannedJob is one job of a plan preview.
type PlannedJob struct {
	Item   item.ID    `json:"item"`
	Name   string     `json:"name"`
	Frames item.Range `json:"frames"`
	Bytes  int64      `json:"bytes"`
}

// Preview is a plan computed for the current playlist and position without
// dispatching it. In-flight frames are excluded like in a real replan.
type Preview struct {
	Position    playlist.Position `json:"position"`
	Jobs        []PlannedJob      `json:"jobs"`
	Evictions   int               `json:"evictions"`
	KeepBytes   int64             `json:"keep_bytes"`
	QueuedBytes int64             `json:"queued_bytes"`
}

// Preview computes the plan the scheduler would dispatch now.
func (s *Scheduler) Preview() Preview {
	plan, pos := s.computePlan()
	p := Preview{
		Position:    pos,
		Jobs:        make([]PlannedJob, 0, len(plan.Jobs)),
		Evictions:   len(plan.Evictions),
		KeepBytes:   plan.KeepBytes,
		QueuedBytes: plan.QueuedBytes,
	}
	for _, job := range plan.Jobs {
		p.Jobs = append(p.Jobs, PlannedJob{
			Item:   job.Item.ID(),
			Name:   job.Item.Name(),
			Frames: job.Frames,
			Bytes:  job.Bytes,
		})
	}
	return p
}

// Plan returns a preview computed on the controller goroutine.
func (c *Controller) Plan(ctx context.Context) (Preview, error) {
	reply := make(chan Preview, 1)
	if !c.post(func() { reply <- c.sched.Preview() }) {
		return Preview{}, ErrStopped
	}
	select {
	case p := <-reply:
		return p, nil
	case <-ctx.Done():
		return Preview{}, ctx.Err()
	}
}
