package runtime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"roverd/description"
	"roverd/diag"
	"roverd/errs"
	"roverd/message"
	"roverd/param"
	"roverd/pubsub"
	"roverd/safety"
	"roverd/state"
)

// ErrAwaitTimeout indicates Await's deadline elapsed before the
// command terminated.
var ErrAwaitTimeout = errors.New("runtime: await timed out")

// ExecutingInfo describes one currently-running command, per
// spec.md §6's Runtime.executing.
type ExecutingInfo struct {
	Handle   CommandHandle
	Name     string
	Category string
}

// CategoryAvailability reports one category's live/limit counts, per
// spec.md §6's Runtime.category_availability.
type CategoryAvailability struct {
	Current int
	Limit   int
}

type liveEntry struct {
	actor       *commandActor
	notify      chan struct{}
	seq         int64
	commandName string
	category    string
}

type cachedResult struct {
	result Result
	expiry time.Time
}

// Engine is the per-robot Runtime / Command Engine of spec.md §4.6.
type Engine struct {
	desc     *description.Robot
	handlers map[string]Handlers

	state  *state.State
	params *param.Registry
	safety *safety.Controller
	router *pubsub.Router

	resultRetention time.Duration
	cancelTimeout   time.Duration

	// commands is desc.Commands widened with the built-in arm/disarm
	// commands (§9 decision: built-ins are ordinary CommandDef entries
	// dispatched through the same path as description-supplied commands,
	// not a special-cased code path).
	commands map[string]description.CommandDef

	mu               sync.Mutex
	operationalState string
	actors           map[CommandHandle]*liveEntry
	categoryOrder    map[string][]CommandHandle
	resultCache      map[CommandHandle]cachedResult
	paramWatchers    map[string][]CommandHandle
	nextSeq          int64
}

// New creates an Engine for desc, starting in the "disarmed"
// operational state. It subscribes to param-change and safety-state
// events on router so it can drive §4.6.7 and §4.6.3's default safety
// behavior.
func New(desc *description.Robot, st *state.State, params *param.Registry, safetyCtl *safety.Controller, router *pubsub.Router, resultRetention, cancelTimeout time.Duration) *Engine {
	e := &Engine{
		desc:             desc,
		handlers:         make(map[string]Handlers),
		state:            st,
		params:           params,
		safety:           safetyCtl,
		router:           router,
		resultRetention:  resultRetention,
		cancelTimeout:    cancelTimeout,
		operationalState: "disarmed",
		actors:           make(map[CommandHandle]*liveEntry),
		categoryOrder:    make(map[string][]CommandHandle),
		resultCache:      make(map[CommandHandle]cachedResult),
		paramWatchers:    make(map[string][]CommandHandle),
	}

	if router != nil {
		router.Subscribe([]string{"param"}, pubsub.Options{MessageTypes: []message.Kind{message.KindParameterChanged}}, e.onParameterChanged)
		router.Subscribe([]string{"safety"}, pubsub.Options{MessageTypes: []message.Kind{message.KindTransition}}, e.onSafetyTransition)
	}

	e.commands = make(map[string]description.CommandDef, len(desc.Commands)+2)
	for name, def := range desc.Commands {
		e.commands[name] = def
	}
	e.commands["arm"] = description.CommandDef{
		Name:          "arm",
		Category:      "safety",
		CategoryLimit: 1,
		AllowedStates: []string{"disarmed"},
		Cancel:        description.CancelScope{Kind: description.CancelNone},
	}
	e.commands["disarm"] = description.CommandDef{
		Name:          "disarm",
		Category:      "safety",
		CategoryLimit: 1,
		Cancel:        description.CancelScope{Kind: description.CancelAll},
	}
	e.handlers["arm"] = Handlers{
		HandleCommand: func(goal map[string]any, ctx *CommandContext, st any) Step {
			err := safetyCtl.Arm()
			return Stop("done", err)
		},
		Result: func(st any) Result {
			if err, _ := st.(error); err != nil {
				return Result{OK: false, Err: err}
			}
			return Result{OK: true, Value: "armed", NextState: "idle"}
		},
	}
	e.handlers["disarm"] = Handlers{
		HandleCommand: func(goal map[string]any, ctx *CommandContext, st any) Step {
			failed := safetyCtl.Disarm()
			return Stop("done", failed)
		},
		Result: func(st any) Result {
			if failed, _ := st.([]safety.FailedCallback); len(failed) > 0 {
				return Result{OK: false, Value: failed, Err: errs.ErrInError}
			}
			return Result{OK: true, Value: "disarmed", NextState: "disarmed"}
		},
	}
	return e
}

// RegisterHandlers wires the Go callbacks for a command declared in the
// robot description. Execute fails with errs.ErrUnknownCommand for any
// name not both declared and registered.
func (e *Engine) RegisterHandlers(commandName string, h Handlers) error {
	if _, ok := e.commands[commandName]; !ok {
		return fmt.Errorf("%w: %s", errs.ErrUnknownCommand, commandName)
	}
	if h.HandleCommand == nil || h.Result == nil {
		return fmt.Errorf("runtime: command %s: HandleCommand and Result are required", commandName)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[commandName] = h
	return nil
}

func (e *Engine) validStates() map[string]bool {
	states := map[string]bool{"disarmed": true, "idle": true}
	for _, s := range e.desc.OperationalStates {
		states[s] = true
	}
	return states
}

// OperationalState returns the current operational state.
func (e *Engine) OperationalState() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.operationalState
}

// ClassicState returns "executing" if any command is running in the
// idle state, else the operational state itself, for legacy callers
// per spec.md §6.
func (e *Engine) ClassicState() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.operationalState == "idle" && len(e.actors) > 0 {
		return "executing"
	}
	return e.operationalState
}

// Executing lists every currently-running command.
func (e *Engine) Executing() []ExecutingInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecutingInfo, 0, len(e.actors))
	for handle, entry := range e.actors {
		out = append(out, ExecutingInfo{Handle: handle, Name: entry.commandName, Category: entry.category})
	}
	return out
}

// CategoryAvailability reports current/limit for every category
// declared by the robot description's commands.
func (e *Engine) CategoryAvailability() map[string]CategoryAvailability {
	e.mu.Lock()
	defer e.mu.Unlock()

	limits := make(map[string]int)
	for _, def := range e.commands {
		cat := def.Category
		limit := def.CategoryLimit
		if limit <= 0 {
			limit = 1
		}
		if existing, ok := limits[cat]; !ok || limit > existing {
			limits[cat] = limit
		}
	}

	out := make(map[string]CategoryAvailability, len(limits))
	for cat, limit := range limits {
		out[cat] = CategoryAvailability{Current: len(e.categoryOrder[cat]), Limit: limit}
	}
	return out
}

// Execute dispatches a command by name, per spec.md §4.6.2.
func (e *Engine) Execute(name string, goal map[string]any) (CommandHandle, error) {
	e.mu.Lock()
	def, ok := e.commands[name]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", errs.ErrUnknownCommand, name)
	}
	handlers, ok := e.handlers[name]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s (no handlers registered)", errs.ErrUnknownCommand, name)
	}

	if len(def.AllowedStates) > 0 && !containsState(def.AllowedStates, e.operationalState) {
		current := e.operationalState
		e.mu.Unlock()
		return "", fmt.Errorf("%w: current=%s allowed=%v", errs.ErrStateNotAllowed, current, def.AllowedStates)
	}

	category := def.Category
	limit := def.CategoryLimit
	if limit <= 0 {
		limit = 1
	}

	if len(e.categoryOrder[category]) >= limit {
		if err := e.makeRoomLocked(def, category); err != nil {
			e.mu.Unlock()
			return "", err
		}
	}
	e.mu.Unlock()

	validatedGoal, err := validateGoal(def.ArgSchema, goal)
	if err != nil {
		return "", err
	}

	handle := CommandHandle(uuid.New().String())
	ctx := &CommandContext{RobotName: e.desc.Name, ExecutionID: handle, State: e.state, Params: e.params, engine: e}
	actor := newCommandActor(handle, name, category, handlers, ctx)

	e.mu.Lock()
	e.nextSeq++
	entry := &liveEntry{actor: actor, notify: make(chan struct{}), seq: e.nextSeq, commandName: name, category: category}
	e.actors[handle] = entry
	e.categoryOrder[category] = append(e.categoryOrder[category], handle)
	e.mu.Unlock()

	go actor.run(validatedGoal)
	go e.watchTermination(handle, entry)

	return handle, nil
}

// makeRoomLocked must be called with e.mu held. It applies def.Cancel's
// policy to free capacity in category, blocking (without the lock)
// until the cancelled commands' results are recorded.
func (e *Engine) makeRoomLocked(def description.CommandDef, category string) error {
	switch def.Cancel.Kind {
	case description.CancelNone, "":
		return fmt.Errorf("%w: %s", errs.ErrCategoryFull, category)

	case description.CancelAll:
		victims := e.allLiveHandlesLocked()
		e.mu.Unlock()
		e.preemptAndWait(victims)
		e.mu.Lock()
		return nil

	case description.CancelList:
		needed := len(e.categoryOrder[category]) - e.effectiveLimit(category) + 1
		victims := e.oldestFromCategoriesLocked(def.Cancel.Categories, needed)
		e.mu.Unlock()
		e.preemptAndWait(victims)
		e.mu.Lock()
		return nil

	default:
		return fmt.Errorf("%w: unknown cancel kind %q", errs.ErrCategoryFull, def.Cancel.Kind)
	}
}

func (e *Engine) effectiveLimit(category string) int {
	limit := 1
	for _, def := range e.commands {
		if def.Category == category && def.CategoryLimit > limit {
			limit = def.CategoryLimit
		}
	}
	return limit
}

func (e *Engine) allLiveHandlesLocked() []CommandHandle {
	out := make([]CommandHandle, 0, len(e.actors))
	for handle := range e.actors {
		out = append(out, handle)
	}
	return out
}

func (e *Engine) oldestFromCategoriesLocked(categories []string, n int) []CommandHandle {
	if n <= 0 {
		return nil
	}
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	var candidates []*liveEntry
	for _, entry := range e.actors {
		if set[entry.category] {
			candidates = append(candidates, entry)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]CommandHandle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, candidates[i].actor.handle)
	}
	return out
}

// preemptAndWait cancels each victim and blocks until its result is
// recorded (or cancelTimeout elapses), so the capacity check that
// triggered the preemption can proceed once room is actually free.
func (e *Engine) preemptAndWait(victims []CommandHandle) {
	for _, handle := range victims {
		e.mu.Lock()
		entry, ok := e.actors[handle]
		e.mu.Unlock()
		if !ok {
			continue
		}
		entry.actor.cancel("preempted")

		timeout := e.cancelTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		select {
		case <-entry.notify:
		case <-time.After(timeout):
			diag.Printf("runtime: command %s did not terminate within %s of preemption; forcing result", handle, timeout)
			e.forceResult(handle, Result{OK: false, Err: errs.ErrPreempted})
		}
	}
}

// forceResult is used when a command fails to terminate within the
// configured cancel timeout: it synthesises and caches a result so
// callers are not blocked forever, per spec.md §5's "forcibly killed
// and a synthetic cancelled result cached".
func (e *Engine) forceResult(handle CommandHandle, result Result) {
	e.mu.Lock()
	entry, ok := e.actors[handle]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.actors, handle)
	e.removeFromCategoryLocked(entry.category, handle)
	e.resultCache[handle] = cachedResult{result: result, expiry: time.Now().Add(e.resultRetention)}
	e.mu.Unlock()
	close(entry.notify)
}

func (e *Engine) removeFromCategoryLocked(category string, handle CommandHandle) {
	order := e.categoryOrder[category]
	for i, h := range order {
		if h == handle {
			e.categoryOrder[category] = append(order[:i], order[i+1:]...)
			break
		}
	}
}

func (e *Engine) watchTermination(handle CommandHandle, entry *liveEntry) {
	<-entry.actor.done
	result := <-entry.actor.resultCh

	e.mu.Lock()
	delete(e.actors, handle)
	e.removeFromCategoryLocked(entry.category, handle)
	for path, handles := range e.paramWatchers {
		e.paramWatchers[path] = removeHandle(handles, handle)
	}
	e.resultCache[handle] = cachedResult{result: result, expiry: time.Now().Add(e.resultRetention)}
	e.mu.Unlock()
	close(entry.notify)

	if result.NextState != "" {
		if err := e.TransitionState(handle, result.NextState); err != nil {
			diag.Printf("runtime: command %s's next_state %q rejected: %v", handle, result.NextState, err)
		}
	}

	retention := e.resultRetention
	time.AfterFunc(retention, func() { e.expireCache(handle) })
}

func (e *Engine) expireCache(handle CommandHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.resultCache[handle]; ok && !time.Now().Before(cached.expiry) {
		delete(e.resultCache, handle)
	}
}

// Await blocks until handle terminates or timeout elapses (timeout<=0
// means wait forever), then consumes and returns its cached result.
// A second Await/Yield on the same handle after this one returns
// errs.ErrCommandGone: the result is delivered once.
func (e *Engine) Await(handle CommandHandle, timeout time.Duration) (Result, error) {
	e.mu.Lock()
	entry, live := e.actors[handle]
	e.mu.Unlock()

	if !live {
		return e.consumeCache(handle)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-entry.notify:
		return e.consumeCache(handle)
	case <-timeoutCh:
		return Result{}, ErrAwaitTimeout
	}
}

// Yield behaves like Await but returns (zero Result, false, nil) if
// the command is still running at the deadline, instead of an error.
func (e *Engine) Yield(handle CommandHandle, timeout time.Duration) (Result, bool, error) {
	e.mu.Lock()
	entry, live := e.actors[handle]
	e.mu.Unlock()

	if !live {
		result, err := e.consumeCache(handle)
		if err != nil {
			return Result{}, false, err
		}
		return result, true, nil
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-entry.notify:
		result, err := e.consumeCache(handle)
		if err != nil {
			return Result{}, false, err
		}
		return result, true, nil
	case <-timeoutCh:
		return Result{}, false, nil
	}
}

func (e *Engine) consumeCache(handle CommandHandle) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cached, ok := e.resultCache[handle]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", errs.ErrCommandGone, handle)
	}
	delete(e.resultCache, handle)
	return cached.result, nil
}

// Cancel voluntarily terminates a running command.
func (e *Engine) Cancel(handle CommandHandle) error {
	e.mu.Lock()
	entry, ok := e.actors[handle]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrCommandGone, handle)
	}
	entry.actor.cancel("cancelled")
	return nil
}

// CancelAll voluntarily terminates every running command.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	handles := e.allLiveHandlesLocked()
	e.mu.Unlock()
	for _, h := range handles {
		e.Cancel(h)
	}
}

// TransitionState performs an operational-state transition, publishes
// it, and preempts every other running command whose allowed_states no
// longer includes the new state, per spec.md §4.6.6. callerHandle is
// excluded from preemption consideration (it is either the command
// driving this transition, or "" for a transition applied from a
// command's own next_state on termination, in which case the
// terminating command is already gone from the live set).
func (e *Engine) TransitionState(callerHandle CommandHandle, target string) error {
	e.mu.Lock()
	if !e.validStates()[target] {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", errs.ErrUnknownState, target)
	}
	old := e.operationalState
	e.operationalState = target

	var toPreempt []CommandHandle
	for handle, entry := range e.actors {
		if handle == callerHandle {
			continue
		}
		def, ok := e.commands[entry.commandName]
		if !ok || len(def.AllowedStates) == 0 {
			continue
		}
		if !containsState(def.AllowedStates, target) {
			toPreempt = append(toPreempt, handle)
		}
	}
	e.mu.Unlock()

	if e.router != nil && old != target {
		env, err := message.NewEnvelope(e.desc.Name, message.Transition{From: old, To: target})
		if err == nil {
			e.router.Publish([]string{"state_machine"}, env)
		}
	}

	for _, handle := range toPreempt {
		e.mu.Lock()
		entry, ok := e.actors[handle]
		e.mu.Unlock()
		if ok {
			entry.actor.cancel("preempted")
		}
	}
	return nil
}

func (e *Engine) watchParameter(path []string, handle CommandHandle) {
	key := strings.Join(path, "/")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paramWatchers[key] = append(e.paramWatchers[key], handle)
}

func (e *Engine) onParameterChanged(_ []string, env message.Envelope) {
	changed, ok := env.Payload.(message.ParameterChanged)
	if !ok {
		return
	}
	key := strings.Join(changed.Path, "/")

	e.mu.Lock()
	handles := append([]CommandHandle(nil), e.paramWatchers[key]...)
	var entries []*liveEntry
	for _, h := range handles {
		if entry, ok := e.actors[h]; ok {
			entries = append(entries, entry)
		}
	}
	e.mu.Unlock()

	for _, entry := range entries {
		select {
		case entry.actor.optionsCh <- map[string]any{"path": changed.Path, "value": changed.NewValue}:
		default:
		}
	}
}

func (e *Engine) onSafetyTransition(_ []string, env message.Envelope) {
	transition, ok := env.Payload.(message.Transition)
	if !ok {
		return
	}
	var newState safety.State
	switch transition.To {
	case "armed":
		newState = safety.StateArmed
	case "disarmed":
		newState = safety.StateDisarmed
	case "error":
		newState = safety.StateError
	default:
		return
	}

	e.mu.Lock()
	entries := make([]*liveEntry, 0, len(e.actors))
	for _, entry := range e.actors {
		entries = append(entries, entry)
	}
	e.mu.Unlock()

	for _, entry := range entries {
		select {
		case entry.actor.safetyCh <- newState:
		default:
		}
	}
}

func containsState(states []string, target string) bool {
	for _, s := range states {
		if s == target {
			return true
		}
	}
	return false
}

func removeHandle(handles []CommandHandle, target CommandHandle) []CommandHandle {
	out := handles[:0]
	for _, h := range handles {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

func validateGoal(schema map[string]param.Schema, goal map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(schema))
	for key, value := range goal {
		out[key] = value
	}
	for key, s := range schema {
		value, present := out[key]
		if !present {
			if s.Default == nil {
				return nil, fmt.Errorf("%w: missing required argument %q", errs.ErrGoalValidation, key)
			}
			out[key] = s.Default
			continue
		}
		if err := s.Check(value); err != nil {
			return nil, fmt.Errorf("%w: argument %q: %v", errs.ErrGoalValidation, key, err)
		}
	}
	return out, nil
}
