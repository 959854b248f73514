package message

import "testing"

func TestNewEnvelopeStampsTimestamp(t *testing.T) {
	env, err := NewEnvelope("base:imu", IMU{
		Orientation:        Quaternion{W: 1},
		LinearAcceleration: Vector3{Z: 9.81},
	})
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if env.TimestampNanos == 0 {
		t.Error("expected non-zero timestamp")
	}
	if env.FrameID != "base:imu" {
		t.Errorf("unexpected frame id: %s", env.FrameID)
	}
	if env.Payload.Kind() != KindIMU {
		t.Errorf("expected KindIMU, got %s", env.Payload.Kind())
	}
}

func TestNewEnvelopeRejectsInvalidPayload(t *testing.T) {
	_, err := NewEnvelope("base:imu", IMU{
		Orientation: Quaternion{W: 0, X: 0, Y: 0, Z: 0}, // zero quaternion: invalid norm
	})
	if err == nil {
		t.Error("expected validation error for non-unit quaternion")
	}
}

func TestPayloadKindExhaustiveSwitch(t *testing.T) {
	payloads := []Payload{
		IMU{Orientation: Quaternion{W: 1}},
		JointState{JointName: "pan"},
		Range{MinRange: 0, MaxRange: 1},
		Battery{PercentRemaining: 50},
		CommandStop{ActuatorName: "pan", Mode: StopImmediate},
	}
	for _, p := range payloads {
		switch p.Kind() {
		case KindIMU, KindJointState, KindRange, KindBattery, KindActuatorStop:
			// expected
		default:
			t.Errorf("unexpected kind %s for payload %#v", p.Kind(), p)
		}
	}
}

func TestCommandTrajectoryValidation(t *testing.T) {
	valid := CommandTrajectory{
		ActuatorName: "pan",
		Waypoints:    []Waypoint{{Position: 0.5, TimeFromStart: 1.0}},
		Repeat:       Repeat{Forever: true},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	invalid := CommandTrajectory{ActuatorName: "pan"}
	if err := invalid.Validate(); err == nil {
		t.Error("expected error for trajectory with no waypoints")
	}
}
