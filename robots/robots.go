// Package robots aggregates every built-in component type into one
// TypeRegistry, replacing the teacher's package-level
// shared.AddRobotType init() side effects (triggered by blank-importing
// robots) with an explicit Register call cmd/roverd makes at startup.
package robots

import (
	"roverd/component"
	"roverd/robots/mockactuator"
	"roverd/robots/proximity_sensor"
)

// Register binds every built-in component type into types.
func Register(types *component.TypeRegistry) {
	proximity_sensor.Register(types)
	mockactuator.Register(types)
}
