package supervisor

import (
	"context"
	"testing"
	"time"

	"roverd/component"
	"roverd/description"
)

func buildTreeTestRobot(t *testing.T) *description.Robot {
	t.Helper()
	robot, err := description.NewBuilder("buddy").
		AddLink(description.Link{Name: "base"}).
		AddJoint(description.Joint{Name: "shoulder", Kind: description.JointRevolute, ParentLink: "base", ChildLink: "upper_arm"}).
		AddLink(description.Link{Name: "upper_arm", ParentJoint: "shoulder"}).
		AddSensor(description.SensorSpec{Name: "imu", Type: "stub_sensor", AttachedTo: "base"}).
		AddActuator(description.ActuatorSpec{Name: "shoulder_motor", Type: "stub_actuator", AttachedTo: "shoulder"}).
		Build()
	if err != nil {
		t.Fatalf("build robot: %v", err)
	}
	return robot
}

type stubComponent struct{ name string }

func (s *stubComponent) Name() string                    { return s.name }
func (s *stubComponent) Start(ctx context.Context) error { <-ctx.Done(); return nil }
func (s *stubComponent) Stop() error                      { return nil }

func newTestTypeRegistry() *component.TypeRegistry {
	types := component.NewTypeRegistry()
	types.Register("stub_sensor", component.KindSensor, nil, func(name string, options map[string]any, rc component.Context) (component.Handle, error) {
		return &stubComponent{name: name}, nil
	})
	types.Register("stub_actuator", component.KindActuator, nil, func(name string, options map[string]any, rc component.Context) (component.Handle, error) {
		return &stubComponent{name: name}, nil
	})
	return types
}

func TestBuildConstructsTreeMirroringTopology(t *testing.T) {
	robot := buildTreeTestRobot(t)
	types := newTestTypeRegistry()

	tree, err := Build(robot, types, DefaultBuildOptions())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if _, ok := tree.Registry.Lookup("imu"); !ok {
		t.Error("expected imu sensor registered")
	}
	if _, ok := tree.Registry.Lookup("shoulder_motor"); !ok {
		t.Error("expected shoulder_motor actuator registered")
	}
	if tree.Engine == nil {
		t.Error("expected runtime engine to be constructed")
	}
	if tree.Router == nil || tree.Params == nil || tree.Safety == nil {
		t.Error("expected shared collaborators to be constructed")
	}
}

func TestTreeRunAndStop(t *testing.T) {
	robot := buildTreeTestRobot(t)
	types := newTestTypeRegistry()

	tree, err := Build(robot, types, DefaultBuildOptions())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tree shutdown")
	}

	if err := tree.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}
}
