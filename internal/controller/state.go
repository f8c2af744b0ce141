package controller

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of the worker pool.
type State int

const (
	// StateIdle means no job is in flight.
	StateIdle State = iota
	// StateRunning means jobs are in flight and finished slots are fed from the queue.
	StateRunning
	// StateInterruptStop means jobs were interrupted and the pool goes idle once all acknowledge.
	StateInterruptStop
	// StateInterruptRestart means jobs were interrupted and the plan is recomputed once all acknowledge.
	StateInterruptRestart
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateInterruptStop:
		return "interrupt_requested_stop"
	case StateInterruptRestart:
		return "interrupt_requested_restart"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives state transitions.
type Event int

const (
	// EventReplanRequested fires when the playlist, playback or settings changed.
	EventReplanRequested Event = iota
	// EventStopRequested fires when caching is disabled or shutdown begins.
	EventStopRequested
	// EventPlanReady fires when a fresh plan dispatched at least one job.
	EventPlanReady
	// EventPlanEmpty fires when a fresh plan dispatched nothing.
	EventPlanEmpty
	// EventQueueDrained fires when the last busy slot finished and nothing was left to hand out.
	EventQueueDrained
	// EventInterruptsAcked fires when the last interrupted slot reported back after a stop.
	EventInterruptsAcked
)

func (e Event) String() string {
	switch e {
	case EventReplanRequested:
		return "replan_requested"
	case EventStopRequested:
		return "stop_requested"
	case EventPlanReady:
		return "plan_ready"
	case EventPlanEmpty:
		return "plan_empty"
	case EventQueueDrained:
		return "queue_drained"
	case EventInterruptsAcked:
		return "interrupts_acked"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ErrInvalidTransition is returned for (state, event) pairs outside the table.
var ErrInvalidTransition = errors.New("invalid cache state transition")

// States lists every state, in declaration order.
var States = []State{StateIdle, StateRunning, StateInterruptStop, StateInterruptRestart}

// Events lists every event, in declaration order.
var Events = []Event{
	EventReplanRequested,
	EventStopRequested,
	EventPlanReady,
	EventPlanEmpty,
	EventQueueDrained,
	EventInterruptsAcked,
}

var transitions = map[State]map[Event]State{
	StateIdle: {
		// Planning happens immediately; PlanReady/PlanEmpty follow.
		EventReplanRequested: StateIdle,
		EventStopRequested:   StateIdle,
		EventPlanReady:       StateRunning,
		EventPlanEmpty:       StateIdle,
	},
	StateRunning: {
		EventReplanRequested: StateInterruptRestart,
		EventStopRequested:   StateInterruptStop,
		EventQueueDrained:    StateIdle,
	},
	StateInterruptStop: {
		EventReplanRequested: StateInterruptRestart,
		EventStopRequested:   StateInterruptStop,
		EventInterruptsAcked: StateIdle,
	},
	StateInterruptRestart: {
		// Coalesced: one replan runs once every slot has acknowledged.
		EventReplanRequested: StateInterruptRestart,
		EventStopRequested:   StateInterruptStop,
		EventPlanReady:       StateRunning,
		EventPlanEmpty:       StateIdle,
	},
}

// Next returns the state that follows s on e.
func Next(s State, e Event) (State, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
	}
	return next, nil
}
