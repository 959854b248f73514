// Package runtime implements the Runtime / Command Engine of spec.md
// §4.6: the operational-state machine, command dispatch with category
// concurrency limits and preemption, the command-actor lifecycle, and
// the termination result cache.
//
// Grounded on shared/robot_manager/robot_manager.go and registration.go's
// goroutine-pair idiom (one goroutine runs the work, a second monitors
// cancellation/disconnect and performs cleanup and deregistration),
// scaled up from "one robot connection" to "one command actor". The
// category concurrency-limit and cancel-to-make-room logic has no
// teacher analogue and is built directly from spec.md §4.6.2.
package runtime

import (
	"time"

	"roverd/param"
	"roverd/safety"
	"roverd/state"
)

// CommandHandle identifies one command execution, per spec.md §4.6.2's
// "Return the command handle to the caller."
type CommandHandle string

// StepKind is the command actor's control-flow decision after a
// callback runs.
type StepKind int

const (
	StepContinue StepKind = iota
	StepStop
)

// AfterKind selects what a continuing command actor should do before
// its next event, per spec.md §4.6.3.
type AfterKind int

const (
	AfterNone AfterKind = iota
	AfterTimeout
	AfterHibernate
	AfterContinuation
)

// After describes the wait policy accompanying a Continue step.
type After struct {
	Kind    AfterKind
	Timeout time.Duration
	Tag     string // meaningful only when Kind == AfterContinuation
}

// Step is the return value of every command-actor callback.
type Step struct {
	Kind       StepKind
	State      any
	After      After
	StopReason string // meaningful only when Kind == StepStop
}

// Continue keeps the actor running with no special wait policy; the
// actor blocks until its next message, call, cast, or safety event.
func Continue(state any) Step { return Step{Kind: StepContinue, State: state} }

// ContinueAfter keeps the actor running with the given wait policy.
func ContinueAfter(state any, after After) Step {
	return Step{Kind: StepContinue, State: state, After: after}
}

// Stop terminates the actor after this callback returns.
func Stop(reason string, state any) Step {
	return Step{Kind: StepStop, State: state, StopReason: reason}
}

// Result is a command's caller-visible outcome, produced by the
// Result callback at termination.
type Result struct {
	OK        bool
	Value     any
	NextState string // "" means no operational-state transition
	Err       error
}

// Handlers are a command definition's lifecycle callbacks. Only
// HandleCommand and Result are required; every other field may be nil,
// in which case the Engine applies the default described in spec.md
// §4.6.3 (Init wraps options into a map; HandleSafetyStateChange stops
// with reason "disarmed").
type Handlers struct {
	Init                    func(options map[string]any) any
	HandleCommand           func(goal map[string]any, ctx *CommandContext, st any) Step
	HandleMessage           func(msg any, st any) Step
	HandleCast              func(req any, st any) Step
	HandleContinue          func(tag string, st any) Step
	HandleOptions           func(newOptions map[string]any, st any) Step
	HandleSafetyStateChange func(newState safety.State, st any) Step
	Result                  func(st any) Result
	Terminate               func(reason string, st any)
}

// CommandContext is the {robot, robot_state, module, execution_id}
// capsule spec.md §4.6.2 passes to every command actor, widened with a
// back-reference to the Engine so a running command can call
// TransitionState and WatchParameter.
type CommandContext struct {
	RobotName   string
	ExecutionID CommandHandle
	State       *state.State
	Params      *param.Registry

	engine *Engine
}

// TransitionState performs an operational-state transition from inside
// a running command, per spec.md §4.6.6.
func (c *CommandContext) TransitionState(target string) error {
	return c.engine.TransitionState(c.ExecutionID, target)
}

// WatchParameter registers this command's interest in a parameter
// path: if it changes while the command is still running,
// HandleOptions is invoked with the new value, per spec.md §4.6.7.
func (c *CommandContext) WatchParameter(path []string) {
	c.engine.watchParameter(path, c.ExecutionID)
}
