// Package safety implements the Safety Controller of spec.md §4.4: an
// armed/disarmed/error latch with a disarm-callback side-table that
// survives the death of the actor that registered it.
//
// Grounded on shared/robot_manager/robot_manager.go's RegisterRobot
// goroutine pair (start-and-disconnect-monitor) and shared/utils.go's
// SafeClose/SafeCloseChannel: "cleanup must run even if the owner is
// gone" is exactly the disconnect-channel idiom the teacher uses for
// every robot connection, generalized here into a standing side-table
// of callbacks instead of one per-robot channel.
package safety

import (
	"strconv"
	"sync"
	"sync/atomic"

	"roverd/diag"
	"roverd/errs"
	"roverd/message"
	"roverd/pubsub"
)

func itoa(i int) string { return strconv.Itoa(i) }

// State is the safety latch's value, per spec.md §4.4.
type State int32

const (
	StateArmed State = iota
	StateDisarmed
	StateError
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateDisarmed:
		return "disarmed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Callback is a disarm action: typically "cut power to this actuator".
// Registered callbacks live in the Controller's side-table independent
// of the owner's lifetime, so a crashed owner's hardware can still be
// disarmed.
type Callback func() error

// RegID identifies a registered callback for introspection; callbacks
// are not individually unregistered in normal operation (they fire
// exactly once per disarm and then remain registered for the next
// disarm cycle), matching spec.md's "appends a disarm callback".
type RegID string

type registration struct {
	id    RegID
	owner string
	cb    Callback
}

// FailedCallback reports one callback's failure during Disarm.
type FailedCallback struct {
	Owner string
	Err   error
}

// Controller is the per-robot Safety Controller. The current State is
// readable via a fast atomic cell from any goroutine without locking,
// per spec.md §5's "shared reads via lock-free tables where hot
// (...Safety-state latch...)".
type Controller struct {
	state atomic.Int32

	mu    sync.Mutex
	regs  []*registration
	next  int
	router *pubsub.Router
}

// New creates a Controller starting in the disarmed state (the
// Runtime's operational-state machine also starts disarmed, per
// spec.md §4.6.1; the two states are tracked independently).
func New(router *pubsub.Router) *Controller {
	c := &Controller{router: router}
	c.state.Store(int32(StateDisarmed))
	return c
}

// State returns the current latch value. Safe to call from any
// goroutine without blocking.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Armed reports whether the controller is in the armed state.
func (c *Controller) Armed() bool {
	return c.State() == StateArmed
}

// InError reports whether the controller is in the error state.
func (c *Controller) InError() bool {
	return c.State() == StateError
}

// Register appends a disarm callback for owner. The returned RegID is
// for diagnostics only; there is no Unregister, since callbacks must
// survive the owner's death to do their job.
func (c *Controller) Register(owner string, cb Callback) RegID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := RegID(owner + "#" + itoa(c.next))
	c.regs = append(c.regs, &registration{id: id, owner: owner, cb: cb})
	return id
}

// Arm transitions disarmed -> armed. Returns errs.ErrAlreadyArmed or
// errs.ErrInError if not currently disarmed.
func (c *Controller) Arm() error {
	switch c.State() {
	case StateArmed:
		return errs.ErrAlreadyArmed
	case StateError:
		return errs.ErrInError
	}
	c.setState(StateArmed)
	return nil
}

// Disarm invokes every registered callback in reverse registration
// order. If all succeed, the latch moves to disarmed; if any fails, the
// latch moves to error and the list of failures is returned.
func (c *Controller) Disarm() []FailedCallback {
	c.mu.Lock()
	regs := append([]*registration(nil), c.regs...)
	c.mu.Unlock()

	var failures []FailedCallback
	for i := len(regs) - 1; i >= 0; i-- {
		reg := regs[i]
		if err := c.invoke(reg); err != nil {
			failures = append(failures, FailedCallback{Owner: reg.owner, Err: err})
		}
	}

	if len(failures) > 0 {
		c.setState(StateError)
		return failures
	}
	c.setState(StateDisarmed)
	return nil
}

func (c *Controller) invoke(reg *registration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			diag.Printf("safety: disarm callback for %s panicked: %v", reg.owner, r)
			err = errs.ErrInError
		}
	}()
	return reg.cb()
}

// ForceDisarm unconditionally moves the latch from error to disarmed,
// for use after manual hardware inspection. Returns errs.ErrNotInError
// if the latch is not currently in the error state.
func (c *Controller) ForceDisarm() error {
	if c.State() != StateError {
		return errs.ErrNotInError
	}
	c.setState(StateDisarmed)
	return nil
}

// CrashDisarm is invoked by the root supervisor when an actor holding a
// safety registration dies unexpectedly, or the top-level supervisor
// itself terminates abnormally (spec.md §4.4's "Crash integration").
// It behaves exactly like Disarm regardless of the current latch value.
func (c *Controller) CrashDisarm() []FailedCallback {
	diag.Printf("safety: crash-triggered disarm")
	return c.Disarm()
}

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	if c.router == nil {
		return
	}
	env, err := message.NewEnvelope("safety", message.Transition{From: old.String(), To: s.String()})
	if err != nil {
		return
	}
	c.router.Publish([]string{"safety"}, env)
}
