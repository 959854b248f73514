package component

import (
	"context"
	"testing"
	"time"

	"roverd/message"
	"roverd/pubsub"
	"roverd/state"
)

func TestMockActuatorEmitsBeginAndEndMotion(t *testing.T) {
	router := pubsub.New(16)
	st := state.New()
	st.Set("pan", state.Value{Position: 0})

	events := make(chan message.Payload, 8)
	router.Subscribe([]string{"actuator", "pan_motor"}, pubsub.Options{}, func(path []string, env message.Envelope) {
		events <- env.Payload
	})

	// speedFactor 1000 collapses simulated seconds into milliseconds so
	// the test does not sleep for real motion durations.
	actuator := NewMockActuator("pan_motor", "pan", 1.0, 1000, router, st)

	err := actuator.HandleCommand(context.Background(), message.CommandPosition{
		ActuatorName: "pan_motor",
		Position:     0.5,
		CommandID:    "cmd-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var begin message.BeginMotion
	select {
	case p := <-events:
		var ok bool
		begin, ok = p.(message.BeginMotion)
		if !ok {
			t.Fatalf("expected BeginMotion first, got %T", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BeginMotion")
	}
	if begin.CommandID != "cmd-1" {
		t.Errorf("expected command id cmd-1, got %s", begin.CommandID)
	}

	select {
	case p := <-events:
		end, ok := p.(message.EndMotion)
		if !ok {
			t.Fatalf("expected EndMotion, got %T", p)
		}
		if end.Error != "" {
			t.Errorf("expected successful completion, got error %q", end.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EndMotion")
	}

	v, _ := st.Get("pan")
	if v.Position != 0.5 {
		t.Errorf("expected joint position 0.5, got %v", v.Position)
	}
}

func TestMockActuatorStopCancelsMotion(t *testing.T) {
	router := pubsub.New(16)
	st := state.New()
	st.Set("pan", state.Value{Position: 0})

	// Slow velocity limit so the motion is still in-flight when Stop runs.
	actuator := NewMockActuator("pan_motor", "pan", 0.001, 1, router, st)
	actuator.HandleCommand(context.Background(), message.CommandPosition{
		ActuatorName: "pan_motor",
		Position:     10,
		CommandID:    "cmd-2",
	})

	time.Sleep(5 * time.Millisecond)
	if err := actuator.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	v, _ := st.Get("pan")
	if v.Position != 0 {
		t.Errorf("expected cancelled motion to leave position unchanged, got %v", v.Position)
	}
}
