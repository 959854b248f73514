package description

import (
	"fmt"
)

// Builder assembles a Robot incrementally and validates it on Build:
// the unique-name invariant across every category (spec.md §3), valid
// joint/link cross-references, and exactly one root link.
type Builder struct {
	robot *Robot
	err   error
}

// NewBuilder starts building a robot named name.
func NewBuilder(name string) *Builder {
	return &Builder{
		robot: &Robot{
			Name:        name,
			Links:       make(map[string]Link),
			Joints:      make(map[string]Joint),
			Sensors:     make(map[string]SensorSpec),
			Actuators:   make(map[string]ActuatorSpec),
			Controllers: make(map[string]ControllerSpec),
			Commands:    make(map[string]CommandDef),
		},
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AddLink adds a link. ParentJoint should be "" for the root link.
func (b *Builder) AddLink(link Link) *Builder {
	if b.err != nil {
		return b
	}
	if link.Name == "" {
		return b.fail(fmt.Errorf("description: link name required"))
	}
	if err := namesClash(b.robot, link.Name); err != nil {
		return b.fail(err)
	}
	b.robot.Links[link.Name] = link
	return b
}

// AddJoint adds a joint and wires it into its parent link's
// ChildJoints list.
func (b *Builder) AddJoint(joint Joint) *Builder {
	if b.err != nil {
		return b
	}
	if joint.Name == "" {
		return b.fail(fmt.Errorf("description: joint name required"))
	}
	if !joint.Kind.valid() {
		return b.fail(fmt.Errorf("description: joint %q: invalid kind %q", joint.Name, joint.Kind))
	}
	if err := namesClash(b.robot, joint.Name); err != nil {
		return b.fail(err)
	}
	parent, ok := b.robot.Links[joint.ParentLink]
	if !ok {
		return b.fail(fmt.Errorf("description: joint %q: parent link %q not declared (declare links before their joints)", joint.Name, joint.ParentLink))
	}
	b.robot.Joints[joint.Name] = joint
	parent.ChildJoints = append(parent.ChildJoints, joint.Name)
	b.robot.Links[joint.ParentLink] = parent
	return b
}

// AddSensor adds a sensor attached to an already-declared link or
// joint.
func (b *Builder) AddSensor(s SensorSpec) *Builder {
	if b.err != nil {
		return b
	}
	if s.Name == "" {
		return b.fail(fmt.Errorf("description: sensor name required"))
	}
	if err := namesClash(b.robot, s.Name); err != nil {
		return b.fail(err)
	}
	if !b.attachmentExists(s.AttachedTo) {
		return b.fail(fmt.Errorf("description: sensor %q: attachment point %q not declared", s.Name, s.AttachedTo))
	}
	b.robot.Sensors[s.Name] = s
	return b
}

// AddActuator adds an actuator attached to an already-declared joint.
func (b *Builder) AddActuator(a ActuatorSpec) *Builder {
	if b.err != nil {
		return b
	}
	if a.Name == "" {
		return b.fail(fmt.Errorf("description: actuator name required"))
	}
	if err := namesClash(b.robot, a.Name); err != nil {
		return b.fail(err)
	}
	if _, ok := b.robot.Joints[a.AttachedTo]; !ok {
		return b.fail(fmt.Errorf("description: actuator %q: joint %q not declared", a.Name, a.AttachedTo))
	}
	b.robot.Actuators[a.Name] = a
	return b
}

// AddController adds a robot-level controller.
func (b *Builder) AddController(c ControllerSpec) *Builder {
	if b.err != nil {
		return b
	}
	if c.Name == "" {
		return b.fail(fmt.Errorf("description: controller name required"))
	}
	if err := namesClash(b.robot, c.Name); err != nil {
		return b.fail(err)
	}
	b.robot.Controllers[c.Name] = c
	return b
}

// AddCommand declares an executable command.
func (b *Builder) AddCommand(c CommandDef) *Builder {
	if b.err != nil {
		return b
	}
	if c.Name == "" {
		return b.fail(fmt.Errorf("description: command name required"))
	}
	if _, exists := b.robot.Commands[c.Name]; exists {
		return b.fail(fmt.Errorf("description: command %q already declared", c.Name))
	}
	if c.Cancel.Kind == "" {
		c.Cancel.Kind = CancelNone
	}
	b.robot.Commands[c.Name] = c
	return b
}

// AddOperationalState declares a user-defined operational state, in
// addition to the built-in "disarmed" and "idle".
func (b *Builder) AddOperationalState(name string) *Builder {
	if b.err != nil {
		return b
	}
	if name == "disarmed" || name == "idle" {
		return b.fail(fmt.Errorf("description: %q is a built-in operational state", name))
	}
	for _, existing := range b.robot.OperationalStates {
		if existing == name {
			return b.fail(fmt.Errorf("description: operational state %q already declared", name))
		}
	}
	b.robot.OperationalStates = append(b.robot.OperationalStates, name)
	return b
}

func (b *Builder) attachmentExists(name string) bool {
	if _, ok := b.robot.Links[name]; ok {
		return true
	}
	if _, ok := b.robot.Joints[name]; ok {
		return true
	}
	return false
}

// Build validates the accumulated description and computes its
// topology. Returns the first error recorded by any Add* call, if any,
// followed by topology validation errors (exactly one root, every
// link/joint reachable from it).
func (b *Builder) Build() (*Robot, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.robot.Links) == 0 {
		return nil, fmt.Errorf("description: at least one link is required")
	}

	topology, err := computeTopology(b.robot)
	if err != nil {
		return nil, err
	}
	b.robot.Topology = topology
	return b.robot, nil
}

func computeTopology(r *Robot) (Topology, error) {
	// A link named as a joint's child takes that joint as its parent.
	for jointName, joint := range r.Joints {
		if child, ok := r.Links[joint.ChildLink]; ok && child.ParentJoint == "" {
			child.ParentJoint = jointName
			r.Links[joint.ChildLink] = child
		}
	}

	var roots []string
	for name, link := range r.Links {
		if link.ParentJoint == "" {
			roots = append(roots, name)
		}
	}
	if len(roots) != 1 {
		return Topology{}, fmt.Errorf("description: expected exactly one root link, found %d", len(roots))
	}
	root := roots[0]

	order := make([]string, 0, len(r.Links))
	pathToRoot := make(map[string][]string, len(r.Links)+len(r.Joints))
	visited := make(map[string]bool, len(r.Links))

	type queued struct {
		link string
		path []string
	}
	queue := []queued{{link: root, path: []string{root}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.link] {
			continue
		}
		visited[cur.link] = true
		order = append(order, cur.link)
		pathToRoot[cur.link] = cur.path

		link := r.Links[cur.link]
		for _, jointName := range link.ChildJoints {
			joint, ok := r.Joints[jointName]
			if !ok {
				return Topology{}, fmt.Errorf("description: link %q references undeclared joint %q", cur.link, jointName)
			}
			pathToRoot[jointName] = cur.path
			childPath := append(append([]string(nil), cur.path...), joint.ChildLink)
			queue = append(queue, queued{link: joint.ChildLink, path: childPath})
		}
	}

	if len(order) != len(r.Links) {
		return Topology{}, fmt.Errorf("description: %d link(s) unreachable from root %q", len(r.Links)-len(order), root)
	}

	return Topology{Root: root, TraversalOrder: order, PathToRoot: pathToRoot}, nil
}
