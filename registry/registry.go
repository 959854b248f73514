// Package registry provides the per-robot Process Registry: name
// resolution to live actor handles, in two keyspaces (spec.md §4.1).
//
// The unique keyspace backs every named actor (sensors, actuators,
// controllers, bridges, command actors, subsystem supervisors) and
// rejects a second registration under an occupied name. The duplicate
// keyspace allows many handles to share one key; supervisor.Build uses
// it to group spawned handles (sensors, actuators, controllers, bridges).
//
// Grounded on shared/robot_manager/robot_manager.go's dual-indexed
// robotsByID/robotsByIP maps: RWMutex-guarded map, sentinel-error
// returns, copy-out snapshot reads.
package registry

import (
	"roverd/errs"
	"roverd/internal/datastructures"
)

// Handle is any live actor reference the registry stores: a command
// actor, a sensor/actuator/controller/bridge handle, or a subsystem
// supervisor. The registry treats handles opaquely.
type Handle = any

// Unique is the unique-keyspace registry: one handle per name.
type Unique struct {
	entries *datastructures.SafeMap[string, Handle]
}

// NewUnique creates an empty unique-keyspace registry.
func NewUnique() *Unique {
	return &Unique{entries: datastructures.NewSafeMap[string, Handle]()}
}

// Register binds name to handle. Returns errs.ErrNameTaken if name is
// already occupied, or errs.ErrInvalidName if name is empty.
func (u *Unique) Register(name string, handle Handle) error {
	if name == "" {
		return errs.ErrInvalidName
	}
	if !u.entries.SetIfAbsent(name, handle) {
		return errs.ErrNameTaken
	}
	return nil
}

// Unregister removes name's binding, if any; safe to call redundantly.
// Supervisors do not call it: a restarted child keeps its binding.
func (u *Unique) Unregister(name string) {
	u.entries.Delete(name)
}

// Lookup resolves name to its handle. ok is false if name is unbound.
func (u *Unique) Lookup(name string) (Handle, bool) {
	return u.entries.Get(name)
}

// Names returns a snapshot of every currently-bound name.
func (u *Unique) Names() []string {
	return u.entries.Keys()
}

// Len reports how many names are currently bound.
func (u *Unique) Len() int {
	return u.entries.Len()
}

// Duplicate is the duplicate-keyspace registry: many handles may share
// one key. supervisor.Build keys it by component group.
type Duplicate struct {
	entries *datastructures.SafeMap[string, *datastructures.SafeSet[Handle]]
}

// NewDuplicate creates an empty duplicate-keyspace registry.
func NewDuplicate() *Duplicate {
	return &Duplicate{entries: datastructures.NewSafeMap[string, *datastructures.SafeSet[Handle]]()}
}

// Add binds handle under key, alongside any other handles already bound
// there.
func (d *Duplicate) Add(key string, handle Handle) {
	set := d.entries.GetOrDefault(key, datastructures.NewSafeSet[Handle]())
	set.Add(handle)
}

// Remove unbinds handle from key. No-op if not present.
func (d *Duplicate) Remove(key string, handle Handle) {
	if set, ok := d.entries.Get(key); ok {
		set.Remove(handle)
	}
}

// Get returns a snapshot of every handle bound under key.
func (d *Duplicate) Get(key string) []Handle {
	set, ok := d.entries.Get(key)
	if !ok {
		return nil
	}
	return set.Values()
}

// Keys returns a snapshot of every key with at least one binding.
func (d *Duplicate) Keys() []string {
	return d.entries.Keys()
}
