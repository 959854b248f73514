// Package pubsub implements the hierarchical path-prefix router of
// spec.md §4.2: subscribers register a path prefix plus an optional
// payload-type filter, and any publish whose path extends a matching
// prefix is delivered to that subscriber's mailbox.
//
// Grounded on shared/event_bus/event_bus.go's Subscribe/Unsubscribe/
// Publish over a SafeMap of subscriber sets, generalized from exact
// string-topic matching to path-prefix matching with a type filter, and
// from "go handler(event)" fire-and-forget to a bounded per-subscriber
// mailbox (so a slow subscriber backs up instead of spawning unbounded
// goroutines) per the DESIGN.md decision on the §9 open question about
// mailbox bounding.
package pubsub

import (
	"sync"

	"github.com/google/uuid"

	"roverd/diag"
	"roverd/errs"
	"roverd/message"
)

// Handler receives a delivered envelope on its matching path.
type Handler func(path []string, env message.Envelope)

// Options configures a subscription.
type Options struct {
	// MessageTypes restricts delivery to these payload kinds. Nil or
	// empty means all kinds are delivered.
	MessageTypes []message.Kind
}

func (o Options) admits(k message.Kind) bool {
	if len(o.MessageTypes) == 0 {
		return true
	}
	for _, t := range o.MessageTypes {
		if t == k {
			return true
		}
	}
	return false
}

// SubID identifies a subscription for later Unsubscribe.
type SubID string

type mailboxItem struct {
	path []string
	env  message.Envelope
}

type subscription struct {
	id      SubID
	prefix  []string
	opts    Options
	handler Handler

	mailbox chan mailboxItem

	mu     sync.Mutex
	closed bool

	dropped int64
}

// Router is the hierarchical pub/sub fabric for one robot. Safe for
// concurrent use by many publishers and subscribers.
type Router struct {
	mailboxSize int

	mu   sync.RWMutex
	subs map[SubID]*subscription
}

// New creates a Router whose subscriber mailboxes are bounded to
// mailboxSize entries (drop-oldest on overflow, per DESIGN.md).
func New(mailboxSize int) *Router {
	if mailboxSize <= 0 {
		mailboxSize = 256
	}
	return &Router{
		mailboxSize: mailboxSize,
		subs:        make(map[SubID]*subscription),
	}
}

// Subscribe registers handler to receive every publish whose path
// extends prefix and whose payload kind is admitted by opts. Returns a
// SubID for later Unsubscribe.
func (r *Router) Subscribe(prefix []string, opts Options, handler Handler) SubID {
	id := SubID(uuid.New().String())
	sub := &subscription{
		id:      id,
		prefix:  append([]string(nil), prefix...),
		opts:    opts,
		handler: handler,
		mailbox: make(chan mailboxItem, r.mailboxSize),
	}

	r.mu.Lock()
	r.subs[id] = sub
	r.mu.Unlock()

	go sub.run()
	return id
}

// Unsubscribe removes a subscription. Publishes racing with an
// in-flight Unsubscribe may or may not be delivered once more, per
// spec.md §5's eventual-consistency note on the pubsub table.
func (r *Router) Unsubscribe(id SubID) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	r.mu.Unlock()

	if ok {
		sub.stop()
	}
}

// Subscribers returns the SubIDs of every subscription whose prefix
// equals the given prefix exactly, for introspection. Use Publish's
// matching rules (IsPrefix) to reason about delivery, not this method.
func (r *Router) Subscribers(prefix []string) []SubID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []SubID
	for id, sub := range r.subs {
		if pathEqual(sub.prefix, prefix) {
			out = append(out, id)
		}
	}
	return out
}

// Publish delivers env to every subscription whose prefix is a prefix
// of path and whose type filter admits env.Payload.Kind(). Delivery to
// each subscriber's mailbox is non-blocking: a full mailbox drops its
// oldest entry to make room (§9 mailbox-bounding decision), and a
// publish that loses the lazy-removal race with an in-flight
// Unsubscribe is silently skipped.
func (r *Router) Publish(path []string, env message.Envelope) {
	r.mu.RLock()
	matches := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if isPrefix(sub.prefix, path) && sub.opts.admits(env.Payload.Kind()) {
			matches = append(matches, sub)
		}
	}
	r.mu.RUnlock()

	for _, sub := range matches {
		sub.deliver(path, env)
	}
}

func (s *subscription) deliver(path []string, env message.Envelope) {
	item := mailboxItem{path: path, env: env}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.mailbox <- item:
		return
	default:
	}

	// Mailbox full: drop oldest, then retry once.
	select {
	case <-s.mailbox:
		s.dropped++
	default:
	}
	select {
	case s.mailbox <- item:
	default:
		s.dropped++
	}
}

func (s *subscription) run() {
	for item := range s.mailbox {
		func() {
			defer func() {
				if r := recover(); r != nil {
					diag.Printf("pubsub: subscriber handler panicked: %v", r)
				}
			}()
			s.handler(item.path, item.env)
		}()
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.mailbox)
	s.mu.Unlock()
}

// isPrefix reports whether prefix is a token-wise prefix of path. An
// empty prefix ([]) matches every path, per spec.md §4.2.
func isPrefix(prefix, path []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i, tok := range prefix {
		if path[i] != tok {
			return false
		}
	}
	return true
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ErrUnknownSubscription re-exported for callers that want to check
// Unsubscribe idempotency explicitly; Unsubscribe itself never returns
// an error (it is a best-effort, idempotent no-op on unknown ids, as
// spec.md §4.2 implies via lazy removal).
var ErrUnknownSubscription = errs.ErrUnknownSubscription
