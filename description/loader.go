package description

import (
	"encoding/json"
	"fmt"
	"os"

	"roverd/message"
	"roverd/param"
)

// The DSL front-end that compiles a human-authored robot description
// into this wire form is an external collaborator (spec.md §1);
// LoadFile consumes that compiled output, which this package treats as
// plain JSON. gopkg.in/yaml.v3 is not part of this module's dependency
// stack (see DESIGN.md), so the secondary load path uses
// encoding/json; Builder remains the primary, type-safe construction
// path for embedders.
type wireLimits struct {
	Lower    *float64 `json:"lower,omitempty"`
	Upper    *float64 `json:"upper,omitempty"`
	Effort   *float64 `json:"effort,omitempty"`
	Velocity *float64 `json:"velocity,omitempty"`
}

type wireVector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v wireVector3) toMessage() message.Vector3 {
	return message.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

type wireQuaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (q wireQuaternion) toMessage() message.Quaternion {
	if q.W == 0 && q.X == 0 && q.Y == 0 && q.Z == 0 {
		return message.Quaternion{W: 1}
	}
	return message.Quaternion{W: q.W, X: q.X, Y: q.Y, Z: q.Z}
}

type wireTransform struct {
	Translation wireVector3    `json:"translation"`
	Rotation    wireQuaternion `json:"rotation"`
}

type wireLink struct {
	Name string `json:"name"`
}

type wireJoint struct {
	Name       string        `json:"name"`
	Kind       string        `json:"kind"`
	Limits     *wireLimits   `json:"limits,omitempty"`
	Axis       wireVector3   `json:"axis"`
	ParentLink string        `json:"parent_link"`
	ChildLink  string        `json:"child_link"`
	Origin     wireTransform `json:"origin"`
}

type wireSensor struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	AttachedTo string         `json:"attached_to"`
	Options    map[string]any `json:"options,omitempty"`
}

type wireActuator struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	AttachedTo string         `json:"attached_to"`
	Options    map[string]any `json:"options,omitempty"`
}

type wireController struct {
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

type wireSchema struct {
	Type    string  `json:"type"`
	Default any     `json:"default,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Unit    string  `json:"unit,omitempty"`
}

type wireCommand struct {
	Name          string                `json:"name"`
	Category      string                `json:"category,omitempty"`
	CategoryLimit int                   `json:"category_limit,omitempty"`
	AllowedStates []string              `json:"allowed_states,omitempty"`
	CancelKind    string                `json:"cancel_kind,omitempty"`
	CancelList    []string              `json:"cancel_list,omitempty"`
	ArgSchema     map[string]wireSchema `json:"arg_schema,omitempty"`
}

type wireRobot struct {
	Name              string           `json:"name"`
	Links             []wireLink       `json:"links"`
	Joints            []wireJoint      `json:"joints"`
	Sensors           []wireSensor     `json:"sensors,omitempty"`
	Actuators         []wireActuator   `json:"actuators,omitempty"`
	Controllers       []wireController `json:"controllers,omitempty"`
	Commands          []wireCommand    `json:"commands,omitempty"`
	OperationalStates []string         `json:"operational_states,omitempty"`
}

// LoadFile reads a compiled robot description from a JSON file and
// builds a Robot from it via Builder, so every validation rule Builder
// enforces applies equally to file-loaded descriptions.
func LoadFile(path string) (*Robot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("description: reading %s: %w", path, err)
	}

	var wire wireRobot
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("description: parsing %s: %w", path, err)
	}

	b := NewBuilder(wire.Name)
	for _, l := range wire.Links {
		b.AddLink(Link{Name: l.Name})
	}
	for _, j := range wire.Joints {
		b.AddJoint(Joint{
			Name:       j.Name,
			Kind:       JointKind(j.Kind),
			Limits:     j.Limits.toDescription(),
			Axis:       j.Axis.toMessage(),
			ParentLink: j.ParentLink,
			ChildLink:  j.ChildLink,
			Origin: Transform{
				Translation: j.Origin.Translation.toMessage(),
				Rotation:    j.Origin.Rotation.toMessage(),
			},
		})
	}
	for _, s := range wire.Sensors {
		b.AddSensor(SensorSpec{Name: s.Name, Type: s.Type, AttachedTo: s.AttachedTo, Options: s.Options})
	}
	for _, a := range wire.Actuators {
		b.AddActuator(ActuatorSpec{Name: a.Name, Type: a.Type, AttachedTo: a.AttachedTo, Options: a.Options})
	}
	for _, c := range wire.Controllers {
		b.AddController(ControllerSpec{Name: c.Name, Type: c.Type, Options: c.Options})
	}
	for _, state := range wire.OperationalStates {
		b.AddOperationalState(state)
	}
	for _, c := range wire.Commands {
		argSchema := make(map[string]param.Schema, len(c.ArgSchema))
		for name, s := range c.ArgSchema {
			argSchema[name] = param.Schema{
				Type:    param.ValueType(s.Type),
				Default: s.Default,
				Min:     s.Min,
				Max:     s.Max,
				Unit:    s.Unit,
			}
		}
		cancelKind := CancelKind(c.CancelKind)
		if cancelKind == "" {
			cancelKind = CancelNone
		}
		b.AddCommand(CommandDef{
			Name:          c.Name,
			Category:      c.Category,
			CategoryLimit: c.CategoryLimit,
			AllowedStates: c.AllowedStates,
			Cancel:        CancelScope{Kind: cancelKind, Categories: c.CancelList},
			ArgSchema:     argSchema,
		})
	}

	return b.Build()
}

func (l *wireLimits) toDescription() *Limits {
	if l == nil {
		return nil
	}
	return &Limits{Lower: l.Lower, Upper: l.Upper, Effort: l.Effort, Velocity: l.Velocity}
}
