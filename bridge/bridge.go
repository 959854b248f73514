// Package bridge implements the Bridge actor of spec.md §4.9: a
// component that mirrors the local Parameter Registry against a
// remote peer, forwarding local changes out and republishing
// subscribed remote changes on the local PubSub.
//
// Grounded on mqtt_server/mqtt_server.go's Start(ctx, ...) shape
// (a context-cancellable background loop owned by one component),
// widened from a no-op poll into the real subscribe/forward lifecycle
// spec.md §4.9 describes, and on param.Registry's already-defined
// Bridge interface (ListRemote/GetRemote/SetRemote/SubscribeRemote),
// which every concrete bridge in this package also satisfies so it
// can be registered directly via Registry.RegisterBridge.
package bridge

import (
	"context"
	"sync"

	"roverd/diag"
	"roverd/message"
	"roverd/param"
	"roverd/pubsub"
)

// Bridge is one remote-mirror actor, per spec.md §4.9. It embeds
// param.Bridge (the remote-address operations the Parameter Registry
// forwards to) and component.Handle's Name/Start/Stop shape, plus
// OnLocalChange, the one operation the Registry never calls directly:
// it fires from this package's own pubsub subscription instead, since
// a bridge's interest in local changes is not addressed by bridge
// name the way GetRemote/SetRemote are.
type Bridge interface {
	param.Bridge

	Name() string
	Start(ctx context.Context) error
	Stop() error

	// OnLocalChange is invoked for every local parameter change, per
	// spec.md §4.9's "auto-subscribed to [:param]".
	OnLocalChange(path []string, oldValue, newValue any) error
}

// Base is embeddable scaffolding shared by every concrete Bridge: it
// owns the [:param] subscription and forwards matching events to
// self.OnLocalChange, so a concrete type only has to implement the
// remote-transport half (ListRemote/GetRemote/SetRemote/
// SubscribeRemote/OnLocalChange).
type Base struct {
	name   string
	router *pubsub.Router
	self   interface {
		OnLocalChange(path []string, oldValue, newValue any) error
	}

	mu    sync.Mutex
	subID pubsub.SubID
	live  bool
}

// NewBase creates scaffolding for a bridge named name. self must be
// the concrete Bridge embedding this Base (so its OnLocalChange
// override, not Base's, is the one invoked).
func NewBase(name string, router *pubsub.Router, self interface {
	OnLocalChange(path []string, oldValue, newValue any) error
}) Base {
	return Base{name: name, router: router, self: self}
}

// Name identifies this bridge for Registry binding and diagnostics.
func (b *Base) Name() string { return b.name }

// Start subscribes to every parameter change. Concrete bridges that
// also need their own background loop (e.g. wsbridge's connection)
// should call this first and layer their own Start logic on top.
func (b *Base) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.router != nil {
		b.subID = b.router.Subscribe([]string{"param"}, pubsub.Options{
			MessageTypes: []message.Kind{message.KindParameterChanged},
		}, b.handleParamEvent)
		b.live = true
	}
	return nil
}

// Stop unsubscribes from parameter changes.
func (b *Base) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.router != nil && b.live {
		b.router.Unsubscribe(b.subID)
		b.live = false
	}
	return nil
}

func (b *Base) handleParamEvent(_ []string, env message.Envelope) {
	pc, ok := env.Payload.(message.ParameterChanged)
	if !ok {
		return
	}
	if err := b.self.OnLocalChange(pc.Path, pc.OldValue, pc.NewValue); err != nil {
		diag.Printf("bridge %s: on_local_change: %v", b.name, err)
	}
}

// Republish publishes a remote-originated value change on the local
// PubSub, per spec.md §4.9's "republish on the local PubSub (using a
// bridge-chosen path convention)". pathConvention is applied by the
// caller; Republish just stamps and sends the envelope.
func (b *Base) Republish(localPath []string, value any) {
	if b.router == nil {
		return
	}
	env, err := message.NewEnvelope(b.name, message.ParameterChanged{
		Path:     localPath,
		NewValue: value,
		Source:   "remote",
	})
	if err != nil {
		diag.Printf("bridge %s: republish: %v", b.name, err)
		return
	}
	b.router.Publish(append([]string{"param"}, localPath...), env)
}
