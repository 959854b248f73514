// Package supervisor builds and runs the Supervision Tree of spec.md
// §4.7: a one-for-one fault-isolation hierarchy mirroring robot
// topology, where a flapping subtree consumes only its own
// restart-intensity budget before the failure bubbles to its parent.
//
// Grounded on main.go's pattern of one goroutine per top-level
// component plus a shared context.CancelFunc for shutdown fan-out, and
// on shared/robot_manager/robot_manager.go's RegisterRobot goroutine
// pair (one goroutine runs the work, a second monitors it and performs
// cleanup on exit), generalized here from "one robot connection" to
// "any component.Handle, including a nested Supervisor", and from a
// single run to a restart loop bounded by an intensity budget.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"roverd/component"
	"roverd/diag"
	"roverd/errs"
)

// Supervisor is one fault-isolation node: a named set of children
// restarted one-for-one on crash, per spec.md §4.7's rationale that "a
// flapping component only consumes its own subtree's restart budget."
// A Supervisor is itself a component.Handle, so Link/Joint supervisors
// nest inside their parent's child list exactly like a leaf sensor or
// actuator would.
type Supervisor struct {
	name      string
	intensity int
	period    time.Duration

	mu       sync.Mutex
	children []component.Handle
}

// New creates a Supervisor that tolerates up to intensity child
// crashes within any sliding window of period before it gives up on
// that child and reports this subtree as failed to its own parent.
func New(name string, intensity int, period time.Duration) *Supervisor {
	return &Supervisor{name: name, intensity: intensity, period: period}
}

// Name identifies this subtree for diagnostics and registry binding.
func (s *Supervisor) Name() string { return s.name }

// AddChild registers h to be started and supervised. Must be called
// before Start; the child set is fixed for the lifetime of one Start
// call (a crashed child is restarted, not replaced).
func (s *Supervisor) AddChild(h component.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, h)
}

// Start supervises every child until ctx is cancelled (clean shutdown,
// returns nil) or this subtree's own restart budget is exhausted
// (returns errs.ErrRestartIntensityExceeded, wrapped with the culprit
// child's name). Start blocks, so a parent Supervisor treats a child
// Supervisor exactly like any other long-running component.Handle: run
// it in its own monitored goroutine and restart it if it returns an
// error.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	children := append([]component.Handle(nil), s.children...)
	s.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatal := make(chan error, len(children))
	var wg sync.WaitGroup
	for _, child := range children {
		wg.Add(1)
		go func(child component.Handle) {
			defer wg.Done()
			s.superviseChild(subCtx, child, fatal)
		}(child)
	}

	var result error
	select {
	case <-ctx.Done():
	case result = <-fatal:
		cancel()
	}
	wg.Wait()
	return result
}

// superviseChild runs child.Start repeatedly, restarting it after
// every crash (non-nil return while ctx is still live) until either
// the subtree's restart-intensity budget is exceeded or ctx is
// cancelled. A clean return (nil error, ctx still live) is treated as
// the component having finished its setup and requiring no restart,
// matching component.Handle's "Start is called once" contract for
// leaf sensors/actuators that spawn background work and return.
func (s *Supervisor) superviseChild(ctx context.Context, child component.Handle, fatal chan<- error) {
	var crashes []time.Time
	for {
		err := s.runOnce(ctx, child)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}

		diag.Printf("supervisor %s: child %s crashed: %v", s.name, child.Name(), err)

		now := time.Now()
		crashes = append(crashes, now)
		crashes = withinWindow(crashes, now, s.period)

		if len(crashes) > s.intensity {
			wrapped := fmt.Errorf("%s: child %s: %w", s.name, child.Name(), errs.ErrRestartIntensityExceeded)
			select {
			case fatal <- wrapped:
			default:
			}
			return
		}
	}
}

func withinWindow(times []time.Time, now time.Time, period time.Duration) []time.Time {
	cutoff := now.Add(-period)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Supervisor) runOnce(ctx context.Context, child component.Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return child.Start(ctx)
}

// Stop requests every child to stop and waits for all of them,
// collecting the first error via errgroup (the teacher's plain
// WaitGroup doesn't propagate errors; errgroup does coordinated
// multi-child stop without losing that signal).
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	children := append([]component.Handle(nil), s.children...)
	s.mu.Unlock()

	var g errgroup.Group
	for _, child := range children {
		child := child
		g.Go(func() error { return child.Stop() })
	}
	return g.Wait()
}
