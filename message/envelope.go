// Package message defines the wire-form envelope and the tagged-union
// payload types carried over pubsub and the actuator API, per spec.md
// §3/§6. It generalizes the teacher's shared/types.go Msg/DefaultMsg
// (a single free-form string "Msg" field plus an `any` payload) into an
// exhaustively-matchable Payload interface with one concrete struct per
// kind, per spec.md §9 ("tagged unions... enables exhaustive matching").
package message

import "time"

// Kind identifies a Payload's concrete type for exhaustive type
// switches without reflection.
type Kind string

const (
	KindIMU                Kind = "imu"
	KindJointState         Kind = "joint_state"
	KindLaserScan          Kind = "laser_scan"
	KindRange              Kind = "range"
	KindImage              Kind = "image"
	KindBattery            Kind = "battery"
	KindPose               Kind = "pose"
	KindTwist              Kind = "twist"
	KindWrench             Kind = "wrench"
	KindTransform          Kind = "transform"
	KindActuatorPosition   Kind = "actuator_position"
	KindActuatorVelocity   Kind = "actuator_velocity"
	KindActuatorEffort     Kind = "actuator_effort"
	KindActuatorTrajectory Kind = "actuator_trajectory"
	KindActuatorStop       Kind = "actuator_stop"
	KindActuatorHold       Kind = "actuator_hold"
	KindBeginMotion        Kind = "begin_motion"
	KindEndMotion          Kind = "end_motion"
	KindParameterChanged   Kind = "parameter_changed"
	KindTransition         Kind = "transition"
)

// Payload is the tagged-union member interface. Each concrete payload
// type below implements Kind() and Validate() (construction-time schema
// validation per spec.md §3's "each payload carries a schema").
type Payload interface {
	Kind() Kind
	Validate() error
}

// Envelope is the wire-form message: a nanosecond timestamp, a symbolic
// frame id, and a typed payload. TimestampNanos is wall-clock time since
// the Unix epoch, not a monotonic clock reading. Matches spec.md §6's bit-exact layout.
type Envelope struct {
	TimestampNanos int64
	FrameID        string
	Payload        Payload
}

// NewEnvelope stamps payload with the current wall-clock time
// (time.Now().UnixNano(), which steps with system clock adjustments)
// and the given frame id. Returns an error if payload fails its own Validate.
func NewEnvelope(frameID string, payload Payload) (Envelope, error) {
	if err := payload.Validate(); err != nil {
		return Envelope{}, err
	}
	return Envelope{
		TimestampNanos: time.Now().UnixNano(),
		FrameID:        frameID,
		Payload:        payload,
	}, nil
}
