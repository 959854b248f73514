// Package state implements Robot State (spec.md §4.5): mutable joint
// positions/velocities/efforts with snapshot semantics for readers.
// Single-writer: all writes come from the Runtime.
//
// Grounded on shared/robot_manager/robot_manager.go's pattern of one
// RWMutex-guarded map with copy-out reads, narrowed here to a single
// writer and widened to non-tearing batch writes (spec.md §4.5:
// "a snapshot observed during a write does not tear across joints in
// the same batch").
package state

import "sync"

// Value is one joint's observed state.
type Value struct {
	Position float64
	Velocity float64
	Effort   float64
}

// State holds the current value of every named joint. Construct it
// with New; the zero value's map is nil and writes to it panic.
type State struct {
	mu     sync.RWMutex
	values map[string]Value
}

// New creates an empty State.
func New() *State {
	return &State{values: make(map[string]Value)}
}

// Get returns the current value for name. ok is false if name has
// never been written.
func (s *State) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set writes a single joint's value.
func (s *State) Set(name string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = v
}

// SetMany writes every entry in updates as a single critical section,
// so a concurrent Snapshot never observes a partial batch.
func (s *State) SetMany(updates map[string]Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range updates {
		s.values[name] = v
	}
}

// Snapshot returns an immutable copy of every joint's current value.
func (s *State) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.values))
	for name, v := range s.values {
		out[name] = v
	}
	return out
}

// Names returns every joint name with a recorded value.
func (s *State) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values))
	for name := range s.values {
		out = append(out, name)
	}
	return out
}
