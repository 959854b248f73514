// Package param implements the Parameter Registry of spec.md §4.3: a
// schema-validated, path-keyed value table with atomic batch writes,
// change-event publication, and an optional durable store.
//
// Grounded on database/databases.go's DBManager coordinating a
// pluggable backend (generalized here from "the database" to "the
// optional persisted backend of one value table") and on
// robot_manager/registration.go's publish-on-state-change pattern for
// change notification.
package param

import (
	"fmt"
	"strings"
)

// ValueType names the primitive types a parameter value may hold.
type ValueType string

const (
	TypeFloat  ValueType = "float"
	TypeInt    ValueType = "int"
	TypeString ValueType = "string"
	TypeBool   ValueType = "bool"
)

// Schema describes one parameter's type, default, and optional numeric
// bounds and unit label, per spec.md §4.3's "schema-fragment".
type Schema struct {
	Type    ValueType
	Default any
	Min     *float64
	Max     *float64
	Unit    string
}

func (s Schema) validateType() error {
	switch s.Type {
	case TypeFloat, TypeInt, TypeString, TypeBool:
		return nil
	default:
		return fmt.Errorf("param: invalid schema type %q", s.Type)
	}
}

// Check validates value against the schema's type and min/max bounds.
func (s Schema) Check(value any) error {
	switch s.Type {
	case TypeFloat:
		f, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("param: expected float, got %T", value)
		}
		return s.checkBounds(f)
	case TypeInt:
		i, ok := value.(int)
		if !ok {
			return fmt.Errorf("param: expected int, got %T", value)
		}
		return s.checkBounds(float64(i))
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("param: expected string, got %T", value)
		}
		return nil
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("param: expected bool, got %T", value)
		}
		return nil
	default:
		return fmt.Errorf("param: invalid schema type %q", s.Type)
	}
}

func (s Schema) checkBounds(f float64) error {
	if s.Min != nil && f < *s.Min {
		return fmt.Errorf("param: value %v below minimum %v", f, *s.Min)
	}
	if s.Max != nil && f > *s.Max {
		return fmt.Errorf("param: value %v above maximum %v", f, *s.Max)
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// pathKey canonicalizes a path for use as an internal map key. Path
// segments themselves may not contain the separator.
func pathKey(path []string) string {
	return strings.Join(path, "\x1f")
}

func splitKey(key string) []string {
	return strings.Split(key, "\x1f")
}

// Join renders a path as a display/lookup string, for error keys and
// logs. Not used for internal storage (pathKey is).
func Join(path []string) string {
	return strings.Join(path, "/")
}

func joinPath(componentPath []string, name string) []string {
	out := make([]string, 0, len(componentPath)+1)
	out = append(out, componentPath...)
	out = append(out, name)
	return out
}
