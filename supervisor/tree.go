package supervisor

import (
	"context"
	"fmt"
	"time"

	"roverd/component"
	"roverd/description"
	"roverd/diag"
	"roverd/param"
	"roverd/pubsub"
	"roverd/registry"
	"roverd/runtime"
	"roverd/safety"
	"roverd/state"
)

// BuildOptions bundles the tuning knobs and optional collaborators the
// tree needs at construction time, mirroring main.go's single shared
// config struct threaded through every component constructor.
type BuildOptions struct {
	RestartIntensity int
	RestartPeriod    time.Duration
	ResultRetention  time.Duration
	CancelTimeout    time.Duration
	PubSubMailbox    int
	ParamStore       param.Store
	Bridges          []component.Handle // pre-built bridge.Handle values; see bridge package
}

// DefaultBuildOptions returns conservative defaults suitable for a
// single-robot process.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		RestartIntensity: 3,
		RestartPeriod:    5 * time.Second,
		ResultRetention:  30 * time.Second,
		CancelTimeout:    5 * time.Second,
		PubSubMailbox:    256,
	}
}

// Tree is the fully constructed supervision tree of spec.md §4.7,
// plus the shared collaborators its root owns: Registry, PubSub,
// Robot State, Parameter Registry, Safety Controller, and the Runtime
// Engine. Run blocks until the tree shuts down or its root exhausts
// its own restart budget.
type Tree struct {
	Root *Supervisor

	Registry *registry.Unique
	Groups   *registry.Duplicate
	Router   *pubsub.Router
	State    *state.State
	Params   *param.Registry
	Safety   *safety.Controller
	Engine   *runtime.Engine
}

// Build constructs the process graph at robot-description load time,
// per spec.md §4.7: root supervisor owning the Registry/PubSub/
// Runtime/group-supervisors, then a recursive Link->Joint->Link
// builder mirroring desc.Topology. types resolves each sensor,
// actuator, and controller's declared "type" string to a concrete
// component.Handle (for simulation, register mock factories under the
// same type names real hardware would use).
func Build(desc *description.Robot, types *component.TypeRegistry, opts BuildOptions) (*Tree, error) {
	router := pubsub.New(opts.PubSubMailbox)
	uniq := registry.NewUnique()
	groups := registry.NewDuplicate()
	st := state.New()
	params := param.New(router, opts.ParamStore)
	safetyCtl := safety.New(router)

	if opts.ParamStore != nil {
		if err := params.LoadFromStore(); err != nil {
			return nil, fmt.Errorf("supervisor: loading parameter store: %w", err)
		}
	}

	engine := runtime.New(desc, st, params, safetyCtl, router, opts.ResultRetention, opts.CancelTimeout)

	rc := component.Context{
		RobotName: desc.Name,
		State:     st,
		Params:    params,
		Safety:    safetyCtl,
		Router:    router,
	}

	root := New(desc.Name, opts.RestartIntensity, opts.RestartPeriod)

	// Task supervisor: spec.md §4.7 lists a dedicated supervisor for
	// command actors, but in this module command-actor lifecycle
	// (spawn, cancel, preempt, result caching) is already owned
	// end-to-end by runtime.Engine's own goroutine-per-command model;
	// a literal child node here would have nothing to restart, since
	// a failed command is a caller-visible Result, not a crash. The
	// Engine itself is still wired into the tree below so its pubsub
	// subscriptions are live for the whole supervised lifetime.

	sensorGroup := New(desc.Name+"/sensors", opts.RestartIntensity, opts.RestartPeriod)
	for _, sensor := range robotLevelSensors(desc) {
		if err := spawnInto(sensorGroup, types, uniq, groups, "sensors", sensor.Type, sensor.Name, sensor.Options, rc); err != nil {
			return nil, err
		}
	}
	root.AddChild(sensorGroup)

	controllerGroup := New(desc.Name+"/controllers", opts.RestartIntensity, opts.RestartPeriod)
	for _, ctrl := range desc.Controllers {
		if err := spawnInto(controllerGroup, types, uniq, groups, "controllers", ctrl.Type, ctrl.Name, ctrl.Options, rc); err != nil {
			return nil, err
		}
	}
	root.AddChild(controllerGroup)

	bridgeGroup := New(desc.Name+"/bridges", opts.RestartIntensity, opts.RestartPeriod)
	for _, b := range opts.Bridges {
		if err := uniq.Register(b.Name(), b); err != nil {
			return nil, fmt.Errorf("supervisor: bridge %s: %w", b.Name(), err)
		}
		groups.Add("bridges", b)
		bridgeGroup.AddChild(b)
	}
	root.AddChild(bridgeGroup)

	if desc.Topology.Root != "" {
		linkSup, err := buildLinkSupervisor(desc, desc.Topology.Root, types, rc, uniq, groups, opts.RestartIntensity, opts.RestartPeriod)
		if err != nil {
			return nil, err
		}
		root.AddChild(linkSup)
	}

	return &Tree{
		Root:     root,
		Registry: uniq,
		Groups:   groups,
		Router:   router,
		State:    st,
		Params:   params,
		Safety:   safetyCtl,
		Engine:   engine,
	}, nil
}

// robotLevelSensors returns sensors whose AttachedTo names neither a
// link nor a joint: per spec.md §4.7's "Sensor group supervisor: one
// per robot-level sensor", as distinct from link- and joint-level
// sensors handled inside buildLinkSupervisor/buildJointSupervisor.
func robotLevelSensors(desc *description.Robot) []description.SensorSpec {
	var out []description.SensorSpec
	for _, s := range desc.Sensors {
		if _, ok := desc.Links[s.AttachedTo]; ok {
			continue
		}
		if _, ok := desc.Joints[s.AttachedTo]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

func buildLinkSupervisor(desc *description.Robot, linkName string, types *component.TypeRegistry, rc component.Context, uniq *registry.Unique, groups *registry.Duplicate, intensity int, period time.Duration) (*Supervisor, error) {
	sup := New("link:"+linkName, intensity, period)

	for _, sensor := range desc.SensorsAttachedTo(linkName) {
		if err := spawnInto(sup, types, uniq, groups, "sensors", sensor.Type, sensor.Name, sensor.Options, rc); err != nil {
			return nil, err
		}
	}

	for _, joint := range desc.JointsOf(linkName) {
		jointSup, err := buildJointSupervisor(desc, joint, types, rc, uniq, groups, intensity, period)
		if err != nil {
			return nil, err
		}
		sup.AddChild(jointSup)
	}

	return sup, nil
}

func buildJointSupervisor(desc *description.Robot, joint description.Joint, types *component.TypeRegistry, rc component.Context, uniq *registry.Unique, groups *registry.Duplicate, intensity int, period time.Duration) (*Supervisor, error) {
	sup := New("joint:"+joint.Name, intensity, period)

	for _, sensor := range desc.SensorsAttachedTo(joint.Name) {
		if err := spawnInto(sup, types, uniq, groups, "sensors", sensor.Type, sensor.Name, sensor.Options, rc); err != nil {
			return nil, err
		}
	}
	for _, act := range desc.ActuatorsAttachedTo(joint.Name) {
		if err := spawnInto(sup, types, uniq, groups, "actuators", act.Type, act.Name, act.Options, rc); err != nil {
			return nil, err
		}
	}

	childSup, err := buildLinkSupervisor(desc, joint.ChildLink, types, rc, uniq, groups, intensity, period)
	if err != nil {
		return nil, err
	}
	sup.AddChild(childSup)

	return sup, nil
}

func spawnInto(sup *Supervisor, types *component.TypeRegistry, uniq *registry.Unique, groups *registry.Duplicate, groupKey, typeName, name string, options map[string]any, rc component.Context) error {
	h, err := types.Spawn(typeName, name, options, rc)
	if err != nil {
		return fmt.Errorf("supervisor: spawning %s %q: %w", groupKey, name, err)
	}
	if err := uniq.Register(name, h); err != nil {
		return fmt.Errorf("supervisor: registering %s %q: %w", groupKey, name, err)
	}
	groups.Add(groupKey, h)
	sup.AddChild(h)
	return nil
}

// Run starts the whole tree and blocks until ctx is cancelled (clean
// shutdown) or the root subtree exhausts its restart budget. On the
// latter, per spec.md §5's failure model ("Safety-registered hardware
// is disarmed independently of actor state"), it crash-disarms before
// returning the error.
func (t *Tree) Run(ctx context.Context) error {
	err := t.Root.Start(ctx)
	if err != nil {
		diag.Printf("supervisor: root exhausted its restart budget, crash-disarming: %v", err)
		t.Safety.CrashDisarm()
	}
	return err
}

// Stop requests an orderly shutdown of every child in the tree.
func (t *Tree) Stop() error {
	return t.Root.Stop()
}
