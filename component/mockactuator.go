package component

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"roverd/message"
	"roverd/pubsub"
	"roverd/state"
)

// MockActuator is the deterministic actuator simulation spec.md §4.7
// substitutes for a real actuator in kinematic simulation mode: motion
// commands are accepted, a BeginMotion feedback message is emitted
// whose expected_arrival is computed from the joint's velocity limit,
// and after that much simulated time elapses the joint state is
// updated and an EndMotion is emitted.
//
// No teacher file models physical actuation (the teacher is a
// network-facing robot manager, not a kinematics engine); this type is
// new, grounded only in spec.md §4.7's own description of the
// required behavior.
type MockActuator struct {
	name          string
	jointName     string
	velocityLimit float64 // rad/s or m/s, must be > 0
	speedFactor   float64 // simulated-seconds-per-wall-second multiplier

	router *pubsub.Router
	st     *state.State

	mu      sync.Mutex
	running map[string]context.CancelFunc // command id -> cancel of its motion goroutine
}

// NewMockActuator creates a mock actuator for jointName. speedFactor
// scales wall-clock sleep relative to the simulated motion duration;
// pass 1.0 for real-time-like pacing, or a larger value to fast-forward
// (tests use this to avoid real sleeps).
func NewMockActuator(name, jointName string, velocityLimit, speedFactor float64, router *pubsub.Router, st *state.State) *MockActuator {
	if velocityLimit <= 0 {
		velocityLimit = 1.0
	}
	if speedFactor <= 0 {
		speedFactor = 1.0
	}
	return &MockActuator{
		name:          name,
		jointName:     jointName,
		velocityLimit: velocityLimit,
		speedFactor:   speedFactor,
		router:        router,
		st:            st,
		running:       make(map[string]context.CancelFunc),
	}
}

func (m *MockActuator) Name() string { return m.name }

// Start is a no-op: the mock has no background process of its own
// beyond the per-command motion goroutines HandleCommand spawns.
func (m *MockActuator) Start(ctx context.Context) error { return nil }

// Stop cancels every in-flight simulated motion.
func (m *MockActuator) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.running {
		cancel()
	}
	m.running = make(map[string]context.CancelFunc)
	return nil
}

// HandleCommand accepts one actuator command payload, per spec.md §4.8.
// CommandPosition drives a simulated motion to completion; CommandStop
// and CommandHold cancel the in-flight motion with the matching
// CommandID (every motion when the id is empty). Any other payload,
// including CommandVelocity, returns an error.
func (m *MockActuator) HandleCommand(ctx context.Context, payload message.Payload) error {
	switch cmd := payload.(type) {
	case message.CommandPosition:
		return m.beginMotion(ctx, cmd.CommandID, cmd.Position)
	case message.CommandStop:
		m.cancelMotion(cmd.CommandID)
		return nil
	case message.CommandHold:
		m.cancelMotion(cmd.CommandID)
		return nil
	default:
		return fmt.Errorf("mock_actuator: unsupported command %T", payload)
	}
}

func (m *MockActuator) beginMotion(parentCtx context.Context, commandID string, target float64) error {
	current, _ := m.st.Get(m.jointName)
	distance := math.Abs(target - current.Position)
	durationSeconds := distance / m.velocityLimit

	env, err := message.NewEnvelope(m.jointName, message.BeginMotion{
		ActuatorName:    m.name,
		CommandID:       commandID,
		ExpectedArrival: durationSeconds,
	})
	if err != nil {
		return err
	}
	if m.router != nil {
		m.router.Publish([]string{"actuator", m.name}, env)
	}

	motionCtx, cancel := context.WithCancel(parentCtx)
	m.mu.Lock()
	m.running[commandID] = cancel
	m.mu.Unlock()

	go m.runMotion(motionCtx, commandID, target, durationSeconds)
	return nil
}

func (m *MockActuator) runMotion(ctx context.Context, commandID string, target, durationSeconds float64) {
	defer func() {
		m.mu.Lock()
		delete(m.running, commandID)
		m.mu.Unlock()
	}()

	wallDuration := time.Duration(durationSeconds / m.speedFactor * float64(time.Second))
	var motionErr string
	select {
	case <-time.After(wallDuration):
		m.st.Set(m.jointName, state.Value{Position: target})
	case <-ctx.Done():
		motionErr = "cancelled"
	}

	env, err := message.NewEnvelope(m.jointName, message.EndMotion{
		ActuatorName: m.name,
		CommandID:    commandID,
		Error:        motionErr,
	})
	if err != nil {
		return
	}
	if m.router != nil {
		m.router.Publish([]string{"actuator", m.name}, env)
	}
}

func (m *MockActuator) cancelMotion(commandID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if commandID == "" {
		for id, cancel := range m.running {
			cancel()
			delete(m.running, id)
		}
		return
	}
	if cancel, ok := m.running[commandID]; ok {
		cancel()
		delete(m.running, commandID)
	}
}
