package param

import (
	"fmt"
	"sort"
	"sync"

	"roverd/errs"
	"roverd/message"
	"roverd/pubsub"
)

// StoredValue is one persisted {path, value} pair, as read back from a
// Store at startup.
type StoredValue struct {
	Path  []string
	Value any
}

// Store is the optional durable backend for the parameter value table,
// per spec.md §4.3's "Persistence" paragraph. Save is invoked after
// every successful write; Load is invoked once at startup and its
// results override the schema defaults.
type Store interface {
	Save(path []string, value any) error
	Load() ([]StoredValue, error)
}

// Bridge mirrors a named external parameter system, per spec.md §4.9.
// The remote mirror operations on Registry simply forward to the
// Bridge registered under the addressed name.
type Bridge interface {
	ListRemote() ([]string, error)
	GetRemote(path []string) (any, error)
	SetRemote(path []string, value any) error
	SubscribeRemote(path []string, handler func(path []string, value any)) error
}

// Entry is one row of the parameter table, returned by List.
type Entry struct {
	Path   []string
	Schema Schema
	Value  any
	Source string
}

type row struct {
	schema Schema
	value  any
	source string
}

// Registry is the Parameter Registry of spec.md §4.3: a schema-
// validated, path-keyed value table with atomic batch writes and
// change-event publication.
type Registry struct {
	mu      sync.RWMutex
	rows    map[string]*row
	store   Store
	router  *pubsub.Router
	bridges map[string]Bridge
}

// New creates an empty Registry. router may be nil, in which case
// change events are not published (useful in tests). store may be nil,
// in which case no persistence occurs.
func New(router *pubsub.Router, store Store) *Registry {
	return &Registry{
		rows:    make(map[string]*row),
		store:   store,
		router:  router,
		bridges: make(map[string]Bridge),
	}
}

// Register merges each schema entry at componentPath++entryName,
// validates the fragment itself and its default value, then sets the
// default and emits a change event with source "init". All entries are
// validated before any is applied: a single bad fragment leaves the
// whole call's entries untouched, per the same atomicity spec.md §4.3
// requires of SetMany.
func (r *Registry) Register(componentPath []string, schemas map[string]Schema) error {
	type planned struct {
		path   []string
		key    string
		schema Schema
	}

	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	plan := make([]planned, 0, len(names))
	for _, name := range names {
		schema := schemas[name]
		if err := schema.validateType(); err != nil {
			return fmt.Errorf("%w: %s: %v", errs.ErrInvalidSchema, name, err)
		}
		if schema.Min != nil && schema.Max != nil && *schema.Min > *schema.Max {
			return fmt.Errorf("%w: %s: min > max", errs.ErrInvalidSchema, name)
		}
		if schema.Default != nil {
			if err := schema.Check(schema.Default); err != nil {
				return fmt.Errorf("%w: %s: default fails schema: %v", errs.ErrInvalidSchema, name, err)
			}
		}
		path := joinPath(componentPath, name)
		plan = append(plan, planned{path: path, key: pathKey(path), schema: schema})
	}

	r.mu.Lock()
	for _, p := range plan {
		r.rows[p.key] = &row{schema: p.schema, value: p.schema.Default, source: "init"}
	}
	r.mu.Unlock()

	for _, p := range plan {
		r.publishChange(p.path, nil, p.schema.Default, "init")
	}
	return nil
}

// Get returns the current value at path. ok is false if path has no
// registered schema.
func (r *Registry) Get(path []string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[pathKey(path)]
	if !ok {
		return nil, false
	}
	return row.value, true
}

// Set validates value against the stored schema, writes it, persists it
// (if a Store is configured), and publishes a ParameterChanged event on
// [:param | path]. Returns errs.ErrUnknownPath if path has no schema,
// or errs.ErrValidation (wrapped) if value fails the schema check.
func (r *Registry) Set(path []string, value any) error {
	key := pathKey(path)

	r.mu.Lock()
	row, ok := r.rows[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", errs.ErrUnknownPath, path)
	}
	if err := row.schema.Check(value); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	old := row.value
	row.value = value
	row.source = "set"
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Save(path, value); err != nil {
			return fmt.Errorf("param: persist failed: %w", err)
		}
	}
	r.publishChange(path, old, value, "set")
	return nil
}

// Update is one path/value pair for SetMany.
type Update struct {
	Path  []string
	Value any
}

// SetMany validates every update against its schema first; if any
// fails, it returns the full map of per-path failures (keyed by
// Join(path)) and mutates nothing. Otherwise it applies every update
// and emits one change event per path, per spec.md §4.3's atomicity
// invariant.
func (r *Registry) SetMany(updates []Update) map[string]error {
	type planned struct {
		path []string
		key  string
		old  any
		new  any
	}

	r.mu.Lock()
	failures := make(map[string]error)
	plan := make([]planned, 0, len(updates))
	for _, u := range updates {
		key := pathKey(u.Path)
		display := Join(u.Path)
		row, ok := r.rows[key]
		if !ok {
			failures[display] = fmt.Errorf("%w: %v", errs.ErrUnknownPath, u.Path)
			continue
		}
		if err := row.schema.Check(u.Value); err != nil {
			failures[display] = fmt.Errorf("%w: %v", errs.ErrValidation, err)
			continue
		}
		plan = append(plan, planned{path: u.Path, key: key, old: row.value, new: u.Value})
	}

	if len(failures) > 0 {
		r.mu.Unlock()
		return failures
	}

	for _, p := range plan {
		row := r.rows[p.key]
		row.value = p.new
		row.source = "set"
	}
	r.mu.Unlock()

	for _, p := range plan {
		if r.store != nil {
			if err := r.store.Save(p.path, p.new); err != nil {
				failures[Join(p.path)] = fmt.Errorf("param: persist failed for %v: %w", p.path, err)
			}
		}
		r.publishChange(p.path, p.old, p.new, "set")
	}
	if len(failures) == 0 {
		return nil
	}
	return failures
}

// List returns every entry whose path extends prefix.
func (r *Registry) List(prefix []string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for key, row := range r.rows {
		path := splitKey(key)
		if len(path) < len(prefix) {
			continue
		}
		match := true
		for i, tok := range prefix {
			if path[i] != tok {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		out = append(out, Entry{Path: path, Schema: row.schema, Value: row.value, Source: row.source})
	}
	return out
}

// LoadFromStore overrides schema defaults with any values found in the
// configured Store, with source "persisted". Call once during startup
// after every component's Register call has run. No-op if no Store is
// configured.
func (r *Registry) LoadFromStore() error {
	if r.store == nil {
		return nil
	}
	values, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("param: load failed: %w", err)
	}

	type applied struct {
		path []string
		old  any
		new  any
	}
	var changed []applied

	r.mu.Lock()
	for _, v := range values {
		key := pathKey(v.Path)
		row, ok := r.rows[key]
		if !ok {
			continue // persisted value for a path no longer declared
		}
		old := row.value
		row.value = v.Value
		row.source = "persisted"
		changed = append(changed, applied{path: v.Path, old: old, new: v.Value})
	}
	r.mu.Unlock()

	for _, c := range changed {
		r.publishChange(c.path, c.old, c.new, "persisted")
	}
	return nil
}

// RegisterBridge attaches a named remote mirror, per spec.md §4.9.
func (r *Registry) RegisterBridge(name string, bridge Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges[name] = bridge
}

func (r *Registry) bridge(name string) (Bridge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrNoBridge, name)
	}
	return b, nil
}

// ListRemote forwards to the named bridge's ListRemote.
func (r *Registry) ListRemote(bridgeName string) ([]string, error) {
	b, err := r.bridge(bridgeName)
	if err != nil {
		return nil, err
	}
	return b.ListRemote()
}

// GetRemote forwards to the named bridge's GetRemote.
func (r *Registry) GetRemote(bridgeName string, path []string) (any, error) {
	b, err := r.bridge(bridgeName)
	if err != nil {
		return nil, err
	}
	return b.GetRemote(path)
}

// SetRemote forwards to the named bridge's SetRemote.
func (r *Registry) SetRemote(bridgeName string, path []string, value any) error {
	b, err := r.bridge(bridgeName)
	if err != nil {
		return err
	}
	return b.SetRemote(path, value)
}

// SubscribeRemote forwards to the named bridge's SubscribeRemote.
func (r *Registry) SubscribeRemote(bridgeName string, path []string, handler func(path []string, value any)) error {
	b, err := r.bridge(bridgeName)
	if err != nil {
		return err
	}
	return b.SubscribeRemote(path, handler)
}

func (r *Registry) publishChange(path []string, old, new any, source string) {
	if r.router == nil {
		return
	}
	env, err := message.NewEnvelope("param", message.ParameterChanged{
		Path:     append([]string(nil), path...),
		OldValue: old,
		NewValue: new,
		Source:   source,
	})
	if err != nil {
		return
	}
	topic := append([]string{"param"}, path...)
	r.router.Publish(topic, env)
}
