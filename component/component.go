// Package component scaffolds sensor, actuator, and controller actors:
// a type registry keyed by the description's declared component
// "type" strings, options-schema validation before spawn, and a
// Context capsule giving every component access to the robot-wide
// collaborators it needs (pubsub, parameters, safety, state).
//
// Grounded on shared/types.go's Robot/RobotHandler/RobotConnHandler
// interface family and robots/register.go's factory-registration-by-
// type idiom (generalized here from "robot type -> constructor" to
// "component type -> constructor"), and on
// shared/base_robot.go's BaseRobotConnHandler.Start/Stop lifecycle,
// which every component.Handle below mirrors.
package component

import (
	"context"
	"fmt"
	"sync"

	"roverd/errs"
	"roverd/param"
	"roverd/pubsub"
	"roverd/safety"
	"roverd/state"
)

// Kind distinguishes the three component roles.
type Kind string

const (
	KindSensor     Kind = "sensor"
	KindActuator   Kind = "actuator"
	KindController Kind = "controller"
)

// Context is the robot-context capsule injected into every component
// at spawn time, generalizing spec.md §4.6.2's command-actor context
// ({robot, robot_state, module, execution_id}) to every component kind.
type Context struct {
	RobotName string
	State     *state.State
	Params    *param.Registry
	Safety    *safety.Controller
	Router    *pubsub.Router
}

// Handle is a running component instance. Start is called once after
// construction, in its own goroutine; Stop requests termination and
// blocks until cleanup completes, mirroring
// BaseRobotConnHandler.Start/Stop.
type Handle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Factory constructs one component instance of a given name and
// options, already validated against the type's declared schema.
type Factory func(name string, options map[string]any, rc Context) (Handle, error)

type typeEntry struct {
	kind    Kind
	schema  map[string]param.Schema
	factory Factory
}

// TypeRegistry resolves a description's component "type" strings
// (e.g. "imu", "mock_actuator") to a Factory, the same shape as
// robots/register.go's per-robot-type constructor table.
type TypeRegistry struct {
	mu      sync.RWMutex
	entries map[string]typeEntry
}

// NewTypeRegistry creates an empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{entries: make(map[string]typeEntry)}
}

// Register binds typeName to factory, with schema validating every
// Spawn call's options before construction.
func (t *TypeRegistry) Register(typeName string, kind Kind, schema map[string]param.Schema, factory Factory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[typeName] = typeEntry{kind: kind, schema: schema, factory: factory}
}

// Spawn validates options against typeName's declared schema and, if
// valid, constructs a new Handle via the registered Factory. Returns
// errs.ErrOptionsValidation on a schema mismatch.
func (t *TypeRegistry) Spawn(typeName, name string, options map[string]any, rc Context) (Handle, error) {
	t.mu.RLock()
	entry, ok := t.entries[typeName]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("component: unknown type %q", typeName)
	}

	for key, schema := range entry.schema {
		value, present := options[key]
		if !present {
			if schema.Default == nil {
				return nil, fmt.Errorf("%w: %s: missing required option %q", errs.ErrOptionsValidation, name, key)
			}
			continue
		}
		if err := schema.Check(value); err != nil {
			return nil, fmt.Errorf("%w: %s: option %q: %v", errs.ErrOptionsValidation, name, key, err)
		}
	}

	return entry.factory(name, options, rc)
}

// Kind returns the registered kind for typeName, for the supervisor's
// group-assignment logic.
func (t *TypeRegistry) Kind(typeName string) (Kind, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entries[typeName]
	if !ok {
		return "", false
	}
	return entry.kind, true
}
