// Package description is the immutable Robot description of spec.md
// §3/§4.7: flat, name-keyed tables for links, joints, sensors,
// actuators, controllers, and commands, plus a precomputed topology.
//
// Grounded on shared/types.go's Robot interface / BaseRobot struct
// split (kept here as data-only, since the behavior side of that split
// belongs to the component package) and robots/register.go's
// factory-registration-by-type idiom, applied to joint/sensor/actuator
// kinds instead of robot types. Per spec.md §9's "Recursive topology in
// an ownership language", links and joints are stored in flat
// name-keyed maps with a secondary topology table, never pointer
// cycles.
package description

import (
	"fmt"

	"roverd/message"
	"roverd/param"
)

// JointKind enumerates the mechanical joint types of spec.md §3.
type JointKind string

const (
	JointRevolute   JointKind = "revolute"
	JointContinuous JointKind = "continuous"
	JointPrismatic  JointKind = "prismatic"
	JointFixed      JointKind = "fixed"
	JointFloating   JointKind = "floating"
	JointPlanar     JointKind = "planar"
)

func (k JointKind) valid() bool {
	switch k {
	case JointRevolute, JointContinuous, JointPrismatic, JointFixed, JointFloating, JointPlanar:
		return true
	default:
		return false
	}
}

// Limits bounds a joint's position, effort, and velocity. Nil fields
// are unbounded in that dimension.
type Limits struct {
	Lower    *float64
	Upper    *float64
	Effort   *float64
	Velocity *float64
}

// Transform is a joint-local origin: translation plus rotation. Carries
// no kinematics behavior, per spec.md §1 (external collaborator).
type Transform struct {
	Translation message.Vector3
	Rotation    message.Quaternion
}

// Joint is a constrained connection between two links.
type Joint struct {
	Name       string
	Kind       JointKind
	Limits     *Limits
	Axis       message.Vector3
	ParentLink string
	ChildLink  string
	Origin     Transform
}

// Inertial describes a link's mass properties.
type Inertial struct {
	Mass         float64
	CenterOfMass message.Vector3
	Inertia      [3][3]float64
}

// Link is a rigid body in the topology. Exactly one link in a Robot has
// an empty ParentJoint: the root.
type Link struct {
	Name        string
	Inertial    *Inertial
	ParentJoint string // "" for the root link
	ChildJoints []string
}

// SensorSpec declares one sensor attached to a link or joint, resolved
// to a concrete implementation by the component package's type
// registry at spawn time.
type SensorSpec struct {
	Name       string
	Type       string
	AttachedTo string
	Options    map[string]any
}

// ActuatorSpec declares one actuator attached to a joint.
type ActuatorSpec struct {
	Name       string
	Type       string
	AttachedTo string
	Options    map[string]any
}

// ControllerSpec declares one robot-level controller.
type ControllerSpec struct {
	Name    string
	Type    string
	Options map[string]any
}

// CancelKind selects how a command's capacity check makes room, per
// spec.md §4.6.2.
type CancelKind string

const (
	CancelNone CancelKind = "none"
	CancelList CancelKind = "list"
	CancelAll  CancelKind = "all"
)

// CancelScope is a command definition's capacity-conflict policy.
type CancelScope struct {
	Kind       CancelKind
	Categories []string // meaningful only when Kind == CancelList
}

// CommandDef declares one executable command, per spec.md §4.6.
type CommandDef struct {
	Name          string
	Category      string // "" means the default category
	CategoryLimit int    // 0 means "use the default category's limit (1)"
	AllowedStates []string
	Cancel        CancelScope
	ArgSchema     map[string]param.Schema
}

// Topology is the precomputed link/joint tree derived from a Robot's
// flat tables: a unique root, BFS traversal order, and a name-to-path
// index, per spec.md §3.
type Topology struct {
	Root           string
	TraversalOrder []string            // link names, root first, breadth-first
	PathToRoot     map[string][]string // link/joint name -> path of link names from root
}

// Robot is the immutable, fully-resolved robot description consumed by
// the Supervision Tree Builder. Construct one with Builder.
type Robot struct {
	Name              string
	Links             map[string]Link
	Joints            map[string]Joint
	Sensors           map[string]SensorSpec
	Actuators         map[string]ActuatorSpec
	Controllers       map[string]ControllerSpec
	Commands          map[string]CommandDef
	OperationalStates []string // built-in "disarmed","idle" are implicit, not listed here
	Topology          Topology
}

// JointsOf returns every joint whose parent link is linkName.
func (r *Robot) JointsOf(linkName string) []Joint {
	link, ok := r.Links[linkName]
	if !ok {
		return nil
	}
	out := make([]Joint, 0, len(link.ChildJoints))
	for _, jointName := range link.ChildJoints {
		out = append(out, r.Joints[jointName])
	}
	return out
}

// SensorsAttachedTo returns every sensor attached to the given link or
// joint name.
func (r *Robot) SensorsAttachedTo(name string) []SensorSpec {
	var out []SensorSpec
	for _, s := range r.Sensors {
		if s.AttachedTo == name {
			out = append(out, s)
		}
	}
	return out
}

// ActuatorsAttachedTo returns every actuator attached to the given
// joint name.
func (r *Robot) ActuatorsAttachedTo(name string) []ActuatorSpec {
	var out []ActuatorSpec
	for _, a := range r.Actuators {
		if a.AttachedTo == name {
			out = append(out, a)
		}
	}
	return out
}

func namesClash(r *Robot, name string) error {
	if _, ok := r.Links[name]; ok {
		return fmt.Errorf("description: name %q already used by a link", name)
	}
	if _, ok := r.Joints[name]; ok {
		return fmt.Errorf("description: name %q already used by a joint", name)
	}
	if _, ok := r.Sensors[name]; ok {
		return fmt.Errorf("description: name %q already used by a sensor", name)
	}
	if _, ok := r.Actuators[name]; ok {
		return fmt.Errorf("description: name %q already used by an actuator", name)
	}
	if _, ok := r.Controllers[name]; ok {
		return fmt.Errorf("description: name %q already used by a controller", name)
	}
	return nil
}
