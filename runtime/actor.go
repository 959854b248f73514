package runtime

import (
	"time"

	"roverd/errs"
	"roverd/safety"
)

type cancelSignal struct {
	reason string // "cancelled" or "preempted"
}

// commandActor is one running command execution: a goroutine plus the
// channels the Engine uses to deliver events to it, mirroring the
// teacher's one-goroutine-runs-the-work / one-channel-signals-shutdown
// shape from shared/robot_manager/robot_manager.go, scaled to the
// richer event set spec.md §4.6.3 requires.
type commandActor struct {
	handle      CommandHandle
	commandName string
	category    string
	handlers    Handlers
	ctx         *CommandContext

	cancelCh  chan cancelSignal
	msgCh     chan any
	castCh    chan any
	optionsCh chan map[string]any
	safetyCh  chan safety.State

	resultCh chan Result // buffered 1; written exactly once
	done     chan struct{}
}

func newCommandActor(handle CommandHandle, commandName, category string, handlers Handlers, ctx *CommandContext) *commandActor {
	return &commandActor{
		handle:      handle,
		commandName: commandName,
		category:    category,
		handlers:    handlers,
		ctx:         ctx,
		cancelCh:    make(chan cancelSignal, 1),
		msgCh:       make(chan any, 16),
		castCh:      make(chan any, 16),
		optionsCh:   make(chan map[string]any, 4),
		safetyCh:    make(chan safety.State, 1),
		resultCh:    make(chan Result, 1),
		done:        make(chan struct{}),
	}
}

func (a *commandActor) run(goal map[string]any) {
	defer close(a.done)

	var st any
	if a.handlers.Init != nil {
		st = a.handlers.Init(goal)
	} else {
		wrapped := make(map[string]any, len(goal)+1)
		for k, v := range goal {
			wrapped[k] = v
		}
		wrapped["result"] = "none"
		st = wrapped
	}

	step := a.handlers.HandleCommand(goal, a.ctx, st)
	a.loop(step)
}

func (a *commandActor) loop(step Step) {
	st := step.State
	for {
		if step.Kind == StepStop {
			a.terminate(step.StopReason, st, nil)
			return
		}

		if step.After.Kind == AfterContinuation {
			if a.handlers.HandleContinue != nil {
				step = a.handlers.HandleContinue(step.After.Tag, st)
			} else {
				step = Continue(st)
			}
			st = step.State
			continue
		}

		var timeoutCh <-chan time.Time
		if step.After.Kind == AfterTimeout {
			timer := time.NewTimer(step.After.Timeout)
			defer timer.Stop()
			timeoutCh = timer.C
		}

		select {
		case sig := <-a.cancelCh:
			a.terminate(sig.reason, st, nil)
			return

		case safetyState := <-a.safetyCh:
			if a.handlers.HandleSafetyStateChange != nil {
				step = a.handlers.HandleSafetyStateChange(safetyState, st)
			} else {
				step = Stop("disarmed", st)
			}
			st = step.State

		case msg := <-a.msgCh:
			if a.handlers.HandleMessage != nil {
				step = a.handlers.HandleMessage(msg, st)
				st = step.State
			}

		case req := <-a.castCh:
			if a.handlers.HandleCast != nil {
				step = a.handlers.HandleCast(req, st)
				st = step.State
			}

		case newOptions := <-a.optionsCh:
			if a.handlers.HandleOptions != nil {
				step = a.handlers.HandleOptions(newOptions, st)
				st = step.State
			}

		case <-timeoutCh:
			if a.handlers.HandleContinue != nil {
				step = a.handlers.HandleContinue("timeout", st)
			} else {
				step = Continue(st)
			}
			st = step.State
		}
	}
}

// terminate runs the Terminate and Result callbacks (if any) and
// writes the final Result exactly once. forcedErr, when non-nil, marks
// this termination as externally caused (cancel/preempt): the actor's
// own Result is still consulted for cleanup purposes, but the cached
// Result's Err is stamped with forcedErr so callers can distinguish
// cancellation from preemption, per the §9 decision that the two must
// not be silently merged.
func (a *commandActor) terminate(reason string, st any, forcedErr error) {
	if a.handlers.Terminate != nil {
		a.handlers.Terminate(reason, st)
	}

	if forcedErr == nil {
		switch reason {
		case "cancelled":
			forcedErr = errs.ErrCancelled
		case "preempted":
			forcedErr = errs.ErrPreempted
		}
	}

	var result Result
	if a.handlers.Result != nil {
		result = a.handlers.Result(st)
	} else {
		result = Result{OK: forcedErr == nil}
	}
	if forcedErr != nil {
		result.OK = false
		result.Err = forcedErr
	}

	a.resultCh <- result
}

// cancel sends a cooperative termination signal. Non-blocking: a
// signal already queued (or an actor that already terminated) makes
// this a no-op.
func (a *commandActor) cancel(reason string) {
	select {
	case a.cancelCh <- cancelSignal{reason: reason}:
	default:
	}
}
