// Package actuator implements the three caller-facing delivery modes
// of spec.md §4.8's Actuator Command API on top of the existing
// Registry and PubSub router: Broadcast (fire a command at every
// subscriber of an actuator's path, for observability/orchestration),
// SendAsync (Registry lookup plus a one-way, lowest-latency dispatch),
// and Call (the same lookup, but synchronous, replying with
// message.AcceptedReply or message.ErrorReply).
//
// No teacher file models actuator dispatch (the teacher's "robots" are
// network devices, not in-process command targets); this package is
// new, grounded in spec.md §4.8's own description of the three modes
// and wired onto registry.Unique and pubsub.Router, the collaborators
// §4.8 names ("look up the actuator by name in the Registry").
package actuator

import (
	"context"
	"fmt"

	"roverd/errs"
	"roverd/message"
	"roverd/pubsub"
	"roverd/registry"
)

// Commander is satisfied by any component.Handle that also accepts
// actuator command payloads, such as component.MockActuator. Declared
// here rather than in component to avoid a dependency from component
// back onto registry/pubsub wiring it does not otherwise need.
type Commander interface {
	HandleCommand(ctx context.Context, payload message.Payload) error
}

// Broadcast publishes payload on [:actuator | path], per §4.8's first
// delivery mode. Any number of subscribers (loggers, dashboards, a
// bridge) may observe it; no actuator is required to be listening.
func Broadcast(router *pubsub.Router, path []string, payload message.Payload) error {
	env, err := message.NewEnvelope(commandID(payload), payload)
	if err != nil {
		return err
	}
	full := append([]string{"actuator"}, path...)
	router.Publish(full, env)
	return nil
}

// SendAsync resolves name in reg and dispatches payload to it without
// waiting for completion, per §4.8's "direct asynchronous" mode: lowest
// latency, one-way. The returned error reports only resolution
// failures (unknown name, wrong handle kind); delivery failures inside
// the actuator's own HandleCommand are not observable to the caller by
// design of this mode.
func SendAsync(reg *registry.Unique, name string, payload message.Payload) error {
	target, err := resolve(reg, name)
	if err != nil {
		return err
	}
	go target.HandleCommand(context.Background(), payload)
	return nil
}

// Call resolves name in reg and dispatches payload synchronously, per
// §4.8's third delivery mode: the caller blocks until the actuator
// accepts or rejects the command. ctx bounds how long Call waits,
// matching §5's "synchronous actuator calls... carry their own
// timeouts, enforced by the waiter".
func Call(ctx context.Context, reg *registry.Unique, name string, payload message.Payload) any {
	target, err := resolve(reg, name)
	if err != nil {
		return message.ErrorReply{CommandID: commandID(payload), Reason: err.Error()}
	}

	done := make(chan error, 1)
	go func() { done <- target.HandleCommand(ctx, payload) }()

	select {
	case err := <-done:
		if err != nil {
			return message.ErrorReply{CommandID: commandID(payload), Reason: err.Error()}
		}
		return message.AcceptedReply{CommandID: commandID(payload)}
	case <-ctx.Done():
		return message.ErrorReply{CommandID: commandID(payload), Reason: ctx.Err().Error()}
	}
}

func resolve(reg *registry.Unique, name string) (Commander, error) {
	handle, ok := reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("actuator %s: %w", name, errs.ErrNotFound)
	}
	target, ok := handle.(Commander)
	if !ok {
		return nil, fmt.Errorf("actuator %s: %w: not a command target", name, errs.ErrNotFound)
	}
	return target, nil
}

// commandID extracts the correlation token spec.md §4.8 says every
// actuator command carries, for echoing into AcceptedReply/ErrorReply
// and into a Broadcast envelope's frame id.
func commandID(payload message.Payload) string {
	switch p := payload.(type) {
	case message.CommandPosition:
		return p.CommandID
	case message.CommandVelocity:
		return p.CommandID
	case message.CommandEffort:
		return p.CommandID
	case message.CommandTrajectory:
		return p.CommandID
	case message.CommandStop:
		return p.CommandID
	case message.CommandHold:
		return p.CommandID
	default:
		return ""
	}
}
