package controller_test

import (
	"errors"
	"testing"

	"framecache/internal/controller"
)

func TestTransitionTableIsExhaustive(t *testing.T) {
	const invalid = controller.State(-1)
	want := map[controller.State]map[controller.Event]controller.State{
		controller.StateIdle: {
			controller.EventReplanRequested: controller.StateIdle,
			controller.EventStopRequested:   controller.StateIdle,
			controller.EventPlanReady:       controller.StateRunning,
			controller.EventPlanEmpty:       controller.StateIdle,
			controller.EventQueueDrained:    invalid,
			controller.EventInterruptsAcked: invalid,
		},
		controller.StateRunning: {
			controller.EventReplanRequested: controller.StateInterruptRestart,
			controller.EventStopRequested:   controller.StateInterruptStop,
			controller.EventPlanReady:       invalid,
			controller.EventPlanEmpty:       invalid,
			controller.EventQueueDrained:    controller.StateIdle,
			controller.EventInterruptsAcked: invalid,
		},
		controller.StateInterruptStop: {
			controller.EventReplanRequested: controller.StateInterruptRestart,
			controller.EventStopRequested:   controller.StateInterruptStop,
			controller.EventPlanReady:       invalid,
			controller.EventPlanEmpty:       invalid,
			controller.EventQueueDrained:    invalid,
			controller.EventInterruptsAcked: controller.StateIdle,
		},
		controller.StateInterruptRestart: {
			controller.EventReplanRequested: controller.StateInterruptRestart,
			controller.EventStopRequested:   controller.StateInterruptStop,
			controller.EventPlanReady:       controller.StateRunning,
			controller.EventPlanEmpty:       controller.StateIdle,
			controller.EventQueueDrained:    invalid,
			controller.EventInterruptsAcked: invalid,
		},
	}

	for _, s := range controller.States {
		for _, e := range controller.Events {
			expected, ok := want[s][e]
			if !ok {
				t.Fatalf("table in test is missing %s/%s", s, e)
			}
			got, err := controller.Next(s, e)
			if expected == invalid {
				if !errors.Is(err, controller.ErrInvalidTransition) {
					t.Fatalf("%s on %s: got (%s, %v) want ErrInvalidTransition", e, s, got, err)
				}
				if got != s {
					t.Fatalf("%s on %s: rejected transition changed state to %s", e, s, got)
				}
				continue
			}
			if err != nil {
				t.Fatalf("%s on %s: unexpected error %v", e, s, err)
			}
			if got != expected {
				t.Fatalf("%s on %s: got %s want %s", e, s, got, expected)
			}
		}
	}
}

func TestStateAndEventNames(t *testing.T) {
	if got := controller.StateInterruptRestart.String(); got != "interrupt_requested_restart" {
		t.Fatalf("got %q want %q", got, "interrupt_requested_restart")
	}
	if got := controller.EventQueueDrained.String(); got != "queue_drained" {
		t.Fatalf("got %q want %q", got, "queue_drained")
	}
	if got := controller.State(42).String(); got != "state(42)" {
		t.Fatalf("got %q want %q", got, "state(42)")
	}
}
