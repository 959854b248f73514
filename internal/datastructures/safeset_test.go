package datastructures

import "testing"

func TestSafeSetAddContainsRemove(t *testing.T) {
	s := NewSafeSet[string]()
	s.Add("x")
	if !s.Contains("x") {
		t.Error("expected set to contain x")
	}
	s.Remove("x")
	if s.Contains("x") {
		t.Error("expected x to be removed")
	}
}

func TestSafeSetValuesSnapshot(t *testing.T) {
	s := NewSafeSet[int]()
	s.Add(1)
	s.Add(2)
	s.Add(3)

	vals := s.Values()
	if len(vals) != 3 {
		t.Errorf("expected 3 values, got %d", len(vals))
	}
	if s.Len() != 3 {
		t.Errorf("expected Len() == 3, got %d", s.Len())
	}
}
