// Package mockactuator registers component.MockActuator under the
// description "type" string a joint's actuator declares, for use where
// no real actuator driver exists (simulation or bench testing).
//
// Replaces the teacher's robots/example_robot, whose two files were an
// inert copy of robots/proximity_sensor's handler-wrapper boilerplate
// with no distinguishing behavior; component.MockActuator already
// supplies the concrete behavior this package needs to register.
package mockactuator

import (
	"roverd/component"
	"roverd/param"
)

// TypeName is the description "type" string this package's factory
// answers to.
const TypeName = "mock_actuator"

// Register binds TypeName into types, so a description.ActuatorSpec
// naming it can be spawned by supervisor.Build.
func Register(types *component.TypeRegistry) {
	types.Register(TypeName, component.KindActuator, map[string]param.Schema{
		"velocity_limit": {Type: param.TypeFloat, Default: 1.0},
		"speed_factor":   {Type: param.TypeFloat, Default: 1.0},
	}, newActuator)
}

func newActuator(name string, options map[string]any, rc component.Context) (component.Handle, error) {
	velocityLimit := 1.0
	if v, ok := options["velocity_limit"].(float64); ok && v > 0 {
		velocityLimit = v
	}
	speedFactor := 1.0
	if v, ok := options["speed_factor"].(float64); ok && v > 0 {
		speedFactor = v
	}
	return component.NewMockActuator(name, jointNameFromOptions(options, name), velocityLimit, speedFactor, rc.Router, rc.State), nil
}

// jointNameFromOptions lets a description override which joint this
// actuator instance drives; absent that, it drives the joint sharing
// its own name, the common case where one actuator is declared per
// joint.
func jointNameFromOptions(options map[string]any, name string) string {
	if v, ok := options["joint"].(string); ok && v != "" {
		return v
	}
	return name
}
