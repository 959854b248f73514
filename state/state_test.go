package state

import "testing"

func TestSetAndGet(t *testing.T) {
	s := New()
	s.Set("pan", Value{Position: 1.5})

	v, ok := s.Get("pan")
	if !ok || v.Position != 1.5 {
		t.Errorf("expected (1.5, true), got (%v, %v)", v, ok)
	}
}

func TestGetUnknownJoint(t *testing.T) {
	s := New()
	if _, ok := s.Get("missing"); ok {
		t.Error("expected ok=false for unknown joint")
	}
}

func TestSetManyIsAtomicForSnapshot(t *testing.T) {
	s := New()
	s.SetMany(map[string]Value{
		"pan":  {Position: 1},
		"tilt": {Position: 2},
	})

	snap := s.Snapshot()
	if snap["pan"].Position != 1 || snap["tilt"].Position != 2 {
		t.Errorf("unexpected snapshot: %v", snap)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	s.Set("pan", Value{Position: 1})

	snap := s.Snapshot()
	snap["pan"] = Value{Position: 99}

	v, _ := s.Get("pan")
	if v.Position != 1 {
		t.Errorf("expected snapshot mutation not to affect state, got %v", v.Position)
	}
}

func TestNames(t *testing.T) {
	s := New()
	s.Set("pan", Value{})
	s.Set("tilt", Value{})

	names := s.Names()
	if len(names) != 2 {
		t.Errorf("expected 2 names, got %v", names)
	}
}
