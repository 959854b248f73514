// Package logbridge is the diagnostic-sink reference Bridge: it logs
// every local parameter change and exposes no remote parameters of its
// own. Useful for development and for robot descriptions that declare
// a bridge slot but have no real remote peer configured yet.
//
// Grounded on diag.Printf, the module's stdlib-only diagnostic logger
// (mirrors shared/debug.go's DEBUG_MODE-gated log.Printf wrapper).
package logbridge

import (
	"context"

	"roverd/bridge"
	"roverd/diag"
	"roverd/errs"
	"roverd/pubsub"
)

// Bridge logs local parameter changes; it has no remote address space.
type Bridge struct {
	bridge.Base
}

// New creates a logbridge bound to name. router may be nil in tests.
func New(name string, router *pubsub.Router) *Bridge {
	b := &Bridge{}
	b.Base = bridge.NewBase(name, router, b)
	return b
}

func (b *Bridge) Start(ctx context.Context) error { return b.Base.Start(ctx) }
func (b *Bridge) Stop() error                     { return b.Base.Stop() }

// OnLocalChange just logs; nothing is forwarded anywhere.
func (b *Bridge) OnLocalChange(path []string, oldValue, newValue any) error {
	diag.Printf("logbridge %s: %v changed %v -> %v", b.Name(), path, oldValue, newValue)
	return nil
}

// ListRemote always reports no remote parameters.
func (b *Bridge) ListRemote() ([]string, error) { return nil, nil }

// GetRemote always fails: there is no remote address space.
func (b *Bridge) GetRemote(path []string) (any, error) {
	return nil, errs.ErrUnknownPath
}

// SetRemote always fails: there is no remote address space.
func (b *Bridge) SetRemote(path []string, value any) error {
	return errs.ErrUnknownPath
}

// SubscribeRemote always fails: there is nothing to subscribe to.
func (b *Bridge) SubscribeRemote(path []string, handler func(path []string, value any)) error {
	return errs.ErrUnknownPath
}
