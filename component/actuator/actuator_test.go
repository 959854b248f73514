package actuator

import (
	"context"
	"testing"
	"time"

	"roverd/component"
	"roverd/message"
	"roverd/pubsub"
	"roverd/registry"
	"roverd/state"
)

func newRegisteredActuator(t *testing.T) (*registry.Unique, *pubsub.Router, *state.State) {
	t.Helper()
	router := pubsub.New(16)
	st := state.New()
	st.Set("pan", state.Value{Position: 0})

	act := component.NewMockActuator("pan_motor", "pan", 1.0, 1000, router, st)
	reg := registry.NewUnique()
	if err := reg.Register("pan_motor", act); err != nil {
		t.Fatalf("register actuator: %v", err)
	}
	return reg, router, st
}

func TestSendAsyncDeliversByName(t *testing.T) {
	reg, router, st := newRegisteredActuator(t)

	events := make(chan message.Payload, 8)
	router.Subscribe([]string{"actuator", "pan_motor"}, pubsub.Options{}, func(path []string, env message.Envelope) {
		events <- env.Payload
	})

	if err := SendAsync(reg, "pan_motor", message.CommandPosition{
		ActuatorName: "pan_motor",
		Position:     0.5,
		CommandID:    "cmd-async",
	}); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	select {
	case p := <-events:
		if _, ok := p.(message.BeginMotion); !ok {
			t.Fatalf("expected BeginMotion, got %T", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BeginMotion")
	}

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EndMotion")
	}

	v, _ := st.Get("pan")
	if v.Position != 0.5 {
		t.Errorf("expected joint position 0.5, got %v", v.Position)
	}
}

func TestSendAsyncUnknownName(t *testing.T) {
	reg, _, _ := newRegisteredActuator(t)

	err := SendAsync(reg, "no_such_actuator", message.CommandStop{
		ActuatorName: "no_such_actuator",
		Mode:         message.StopImmediate,
	})
	if err == nil {
		t.Fatal("expected error for unknown actuator name")
	}
}

func TestCallReturnsAcceptedReply(t *testing.T) {
	reg, _, _ := newRegisteredActuator(t)

	reply := Call(context.Background(), reg, "pan_motor", message.CommandPosition{
		ActuatorName: "pan_motor",
		Position:     0.2,
		CommandID:    "cmd-sync",
	})
	accepted, ok := reply.(message.AcceptedReply)
	if !ok {
		t.Fatalf("expected AcceptedReply, got %#v", reply)
	}
	if accepted.CommandID != "cmd-sync" {
		t.Errorf("expected command id cmd-sync, got %s", accepted.CommandID)
	}
}

func TestCallReturnsErrorReplyForUnknownName(t *testing.T) {
	reg, _, _ := newRegisteredActuator(t)

	reply := Call(context.Background(), reg, "missing", message.CommandHold{
		ActuatorName: "missing",
		CommandID:    "cmd-missing",
	})
	errReply, ok := reply.(message.ErrorReply)
	if !ok {
		t.Fatalf("expected ErrorReply, got %#v", reply)
	}
	if errReply.CommandID != "cmd-missing" {
		t.Errorf("expected command id cmd-missing, got %s", errReply.CommandID)
	}
}

func TestBroadcastPublishesOnActuatorPath(t *testing.T) {
	_, router, _ := newRegisteredActuator(t)

	received := make(chan message.Payload, 1)
	router.Subscribe([]string{"actuator", "pan_motor"}, pubsub.Options{}, func(path []string, env message.Envelope) {
		received <- env.Payload
	})

	if err := Broadcast(router, []string{"pan_motor"}, message.CommandStop{
		ActuatorName: "pan_motor",
		Mode:         message.StopImmediate,
		CommandID:    "cmd-broadcast",
	}); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	select {
	case p := <-received:
		cmd, ok := p.(message.CommandStop)
		if !ok {
			t.Fatalf("expected CommandStop, got %T", p)
		}
		if cmd.CommandID != "cmd-broadcast" {
			t.Errorf("expected command id cmd-broadcast, got %s", cmd.CommandID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}
