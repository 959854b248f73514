package runtime

import (
	"testing"
	"time"

	"roverd/description"
	"roverd/errs"
	"roverd/param"
	"roverd/pubsub"
	"roverd/safety"
	"roverd/state"
)

func buildTestRobot(t *testing.T) *description.Robot {
	t.Helper()
	robot, err := description.NewBuilder("arm").
		AddLink(description.Link{Name: "base"}).
		AddCommand(description.CommandDef{
			Name:          "wave",
			Category:      "motion",
			CategoryLimit: 1,
			AllowedStates: []string{"idle"},
			Cancel:        description.CancelScope{Kind: description.CancelNone},
		}).
		AddCommand(description.CommandDef{
			Name:          "greet",
			Category:      "motion",
			CategoryLimit: 1,
			AllowedStates: []string{"idle"},
			Cancel:        description.CancelScope{Kind: description.CancelList, Categories: []string{"motion"}},
		}).
		AddCommand(description.CommandDef{
			Name:          "scan",
			Category:      "sensing",
			CategoryLimit: 2,
			AllowedStates: []string{"idle", "disarmed"},
		}).
		AddOperationalState("idle_custom").
		Build()
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return robot
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	robot := buildTestRobot(t)
	st := state.New()
	router := pubsub.New(16)
	params := param.New(router, nil)
	safetyCtl := safety.New(nil)
	e := New(robot, st, params, safetyCtl, router, 200*time.Millisecond, 200*time.Millisecond)
	e.operationalState = "idle"
	return e
}

func blockingHandlers(resultOK bool) Handlers {
	return Handlers{
		HandleCommand: func(goal map[string]any, ctx *CommandContext, st any) Step {
			return ContinueAfter(st, After{Kind: AfterHibernate})
		},
		Result: func(st any) Result {
			return Result{OK: resultOK}
		},
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Execute("missing", nil); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestExecuteRejectsNoHandlers(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Execute("wave", nil); err == nil {
		t.Fatal("expected error for command with no registered handlers")
	}
}

func TestExecuteRejectsDisallowedState(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterHandlers("wave", blockingHandlers(true)); err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	e.mu.Lock()
	e.operationalState = "disarmed"
	e.mu.Unlock()

	if _, err := e.Execute("wave", nil); err == nil {
		t.Fatal("expected state-not-allowed error")
	}
}

func TestExecuteAndAwaitRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	h := Handlers{
		HandleCommand: func(goal map[string]any, ctx *CommandContext, st any) Step {
			return Stop("done", st)
		},
		Result: func(st any) Result { return Result{OK: true, Value: "waved"} },
	}
	if err := e.RegisterHandlers("wave", h); err != nil {
		t.Fatalf("register handlers: %v", err)
	}

	handle, err := e.Execute("wave", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	result, err := e.Await(handle, time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !result.OK || result.Value != "waved" {
		t.Errorf("unexpected result: %+v", result)
	}

	if _, err := e.Await(handle, 0); err == nil {
		t.Error("expected ErrCommandGone on second await")
	}
}

func TestExecuteCategoryFullRejectsWhenCancelNone(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterHandlers("wave", blockingHandlers(true)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := e.Execute("wave", nil); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := e.Execute("wave", nil); err == nil {
		t.Fatal("expected category-full error")
	}
}

func TestExecuteCancelListMakesRoom(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterHandlers("wave", blockingHandlers(true)); err != nil {
		t.Fatalf("register wave: %v", err)
	}
	if err := e.RegisterHandlers("greet", blockingHandlers(true)); err != nil {
		t.Fatalf("register greet: %v", err)
	}

	first, err := e.Execute("wave", nil)
	if err != nil {
		t.Fatalf("execute wave: %v", err)
	}

	second, err := e.Execute("greet", nil)
	if err != nil {
		t.Fatalf("execute greet (should preempt wave): %v", err)
	}

	result, err := e.Await(first, time.Second)
	if err != nil {
		t.Fatalf("await preempted wave: %v", err)
	}
	if result.OK {
		t.Error("expected preempted command to report failure")
	}
	if result.Err == nil {
		t.Fatal("expected preempted command to carry an error")
	}

	if _, err := e.Await(second, time.Second); err != nil {
		t.Fatalf("await greet: %v", err)
	}
}

func TestTransitionStatePreemptsIncompatibleCommands(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterHandlers("scan", blockingHandlers(true)); err != nil {
		t.Fatalf("register scan: %v", err)
	}

	handle, err := e.Execute("scan", nil)
	if err != nil {
		t.Fatalf("execute scan: %v", err)
	}

	if err := e.TransitionState("", "idle_custom"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	result, err := e.Await(handle, time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if result.OK {
		t.Error("expected scan to be preempted by the state transition")
	}
}

func TestTransitionStateRejectsUnknownState(t *testing.T) {
	e := newTestEngine(t)
	if err := e.TransitionState("", "nonexistent"); err == nil {
		t.Fatal("expected unknown-state error")
	}
}

func TestAwaitTimesOutWhileStillRunning(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterHandlers("wave", blockingHandlers(true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	handle, err := e.Execute("wave", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := e.Await(handle, 10*time.Millisecond); err != ErrAwaitTimeout {
		t.Errorf("expected ErrAwaitTimeout, got %v", err)
	}
	e.Cancel(handle)
}

func TestYieldReturnsFalseWhileRunning(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterHandlers("wave", blockingHandlers(true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	handle, err := e.Execute("wave", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	_, done, err := e.Yield(handle, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("yield: %v", err)
	}
	if done {
		t.Error("expected yield to report not-yet-done")
	}
	e.Cancel(handle)
}

func TestCancelDistinguishesFromPreemption(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterHandlers("wave", blockingHandlers(true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	handle, err := e.Execute("wave", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := e.Cancel(handle); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	result, err := e.Await(handle, time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if result.Err != errs.ErrCancelled {
		t.Errorf("expected ErrCancelled, got %v", result.Err)
	}
}

func TestCategoryAvailabilityReportsLimitsAndUsage(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterHandlers("wave", blockingHandlers(true)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := e.Execute("wave", nil); err != nil {
		t.Fatalf("execute: %v", err)
	}

	avail := e.CategoryAvailability()
	motion, ok := avail["motion"]
	if !ok {
		t.Fatal("expected motion category in availability map")
	}
	if motion.Current != 1 || motion.Limit != 1 {
		t.Errorf("unexpected motion availability: %+v", motion)
	}
}

func TestWatchParameterReinvokesHandleOptions(t *testing.T) {
	e := newTestEngine(t)
	if err := e.params.Register([]string{}, map[string]param.Schema{"speed": {Type: param.TypeFloat, Default: 1.0}}); err != nil {
		t.Fatalf("register param: %v", err)
	}

	watching := make(chan struct{})
	optionsSeen := make(chan map[string]any, 1)
	h := Handlers{
		HandleCommand: func(goal map[string]any, ctx *CommandContext, st any) Step {
			ctx.WatchParameter([]string{"speed"})
			close(watching)
			return ContinueAfter(st, After{Kind: AfterHibernate})
		},
		HandleOptions: func(newOptions map[string]any, st any) Step {
			optionsSeen <- newOptions
			return Stop("observed", st)
		},
		Result: func(st any) Result { return Result{OK: true} },
	}
	if err := e.RegisterHandlers("wave", h); err != nil {
		t.Fatalf("register: %v", err)
	}

	handle, err := e.Execute("wave", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	select {
	case <-watching:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch registration")
	}

	if err := e.params.Set([]string{"speed"}, 2.0); err != nil {
		t.Fatalf("set param: %v", err)
	}

	select {
	case <-optionsSeen:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for HandleOptions re-invocation")
	}

	if _, err := e.Await(handle, time.Second); err != nil {
		t.Fatalf("await: %v", err)
	}
}
