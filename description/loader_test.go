package description

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
  "name": "test-arm",
  "links": [{"name": "base"}, {"name": "pan_link"}],
  "joints": [
    {"name": "pan", "kind": "revolute", "parent_link": "base", "child_link": "pan_link",
     "limits": {"lower": -1.57, "upper": 1.57}}
  ],
  "actuators": [{"name": "pan_motor", "type": "mock", "attached_to": "pan"}],
  "commands": [
    {"name": "move", "allowed_states": ["idle"],
     "arg_schema": {"position": {"type": "float", "default": 0}}}
  ]
}`

func TestLoadFileBuildsRobot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "robot.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Topology.Root != "base" {
		t.Errorf("expected root base, got %s", r.Topology.Root)
	}
	if _, ok := r.Commands["move"]; !ok {
		t.Error("expected move command to be loaded")
	}
	if r.Joints["pan"].Limits == nil || *r.Joints["pan"].Limits.Upper != 1.57 {
		t.Errorf("expected pan limits to be loaded, got %+v", r.Joints["pan"].Limits)
	}
}

func TestLoadFileMissingFile(t *testing.T) {
	if _, err := LoadFile("/nonexistent/path.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFileInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
