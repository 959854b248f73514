package component

import (
	"context"
	"errors"
	"testing"

	"roverd/errs"
	"roverd/param"
)

type stubHandle struct{ name string }

func (s *stubHandle) Name() string                    { return s.name }
func (s *stubHandle) Start(ctx context.Context) error { return nil }
func (s *stubHandle) Stop() error                     { return nil }

func TestSpawnValidatesOptionsAgainstSchema(t *testing.T) {
	reg := NewTypeRegistry()
	reg.Register("imu", KindSensor, map[string]param.Schema{
		"rate_hz": {Type: param.TypeFloat, Default: 50.0},
	}, func(name string, options map[string]any, rc Context) (Handle, error) {
		return &stubHandle{name: name}, nil
	})

	h, err := reg.Spawn("imu", "base_imu", map[string]any{"rate_hz": 100.0}, Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Name() != "base_imu" {
		t.Errorf("expected name base_imu, got %s", h.Name())
	}
}

func TestSpawnRejectsInvalidOption(t *testing.T) {
	reg := NewTypeRegistry()
	reg.Register("imu", KindSensor, map[string]param.Schema{
		"rate_hz": {Type: param.TypeFloat, Default: 50.0},
	}, func(name string, options map[string]any, rc Context) (Handle, error) {
		return &stubHandle{name: name}, nil
	})

	_, err := reg.Spawn("imu", "base_imu", map[string]any{"rate_hz": "fast"}, Context{})
	if !errors.Is(err, errs.ErrOptionsValidation) {
		t.Errorf("expected ErrOptionsValidation, got %v", err)
	}
}

func TestSpawnUnknownType(t *testing.T) {
	reg := NewTypeRegistry()
	if _, err := reg.Spawn("missing", "x", nil, Context{}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestKindLookup(t *testing.T) {
	reg := NewTypeRegistry()
	reg.Register("mock_actuator", KindActuator, nil, func(name string, options map[string]any, rc Context) (Handle, error) {
		return &stubHandle{name: name}, nil
	})

	kind, ok := reg.Kind("mock_actuator")
	if !ok || kind != KindActuator {
		t.Errorf("expected KindActuator, got (%v, %v)", kind, ok)
	}
}
