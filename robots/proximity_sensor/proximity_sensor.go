// Package proximity_sensor is a component.Handle adaptation of the
// teacher's robot type of the same name: it no longer manages a
// network connection to a physical device, but polls (or, absent real
// hardware, synthesizes) a distance reading and publishes it on the
// robot's PubSub tree, per spec.md §4.1's sensor attachment model.
//
// Grounded on robots/proximity_sensor/robotHandler.go's
// BaseRobotHandler embedding and robots/proximity_sensor/init.go's
// type-registration-by-constant idiom, generalized from
// shared.AddRobotType to component.TypeRegistry.Register.
package proximity_sensor

import (
	"context"
	"math/rand"
	"time"

	"roverd/component"
	"roverd/message"
	"roverd/param"
)

// TypeName is the description "type" string this package's factory
// answers to.
const TypeName = "proximity_sensor"

// Register binds TypeName into types, so a description.SensorSpec
// naming it can be spawned by supervisor.Build.
func Register(types *component.TypeRegistry) {
	types.Register(TypeName, component.KindSensor, map[string]param.Schema{
		"poll_interval_ms": {Type: param.TypeInt, Default: 200},
		"max_range_m":      {Type: param.TypeFloat, Default: 2.0},
	}, newSensor)
}

func newSensor(name string, options map[string]any, rc component.Context) (component.Handle, error) {
	interval := 200 * time.Millisecond
	if v, ok := options["poll_interval_ms"]; ok {
		if ms, ok := v.(int); ok && ms > 0 {
			interval = time.Duration(ms) * time.Millisecond
		}
	}
	maxRange := 2.0
	if v, ok := options["max_range_m"]; ok {
		if f, ok := v.(float64); ok && f > 0 {
			maxRange = f
		}
	}
	return &Sensor{name: name, interval: interval, maxRange: maxRange, rc: rc}, nil
}

// Sensor polls a distance reading and publishes it under
// [:sensor|<name>] as a message.Range, per spec.md §4.8.
type Sensor struct {
	name     string
	interval time.Duration
	maxRange float64
	rc       component.Context
}

func (s *Sensor) Name() string { return s.name }

// Start polls until ctx is cancelled. Absent real hardware this
// synthesizes a plausible reading; a production build would replace
// this with an actual device read.
func (s *Sensor) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.publishReading()
		}
	}
}

func (s *Sensor) publishReading() {
	distance := rand.Float64() * s.maxRange
	env, err := message.NewEnvelope(s.name, message.Range{
		MinRange: 0,
		MaxRange: s.maxRange,
		Distance: distance,
	})
	if err != nil {
		return
	}
	if s.rc.Router != nil {
		s.rc.Router.Publish([]string{"sensor", s.name}, env)
	}
}

func (s *Sensor) Stop() error { return nil }
