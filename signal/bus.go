package signal

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ensemblekit/ensemble/internal/logging"
)

// DefaultHistoryCapacity is the number of signals a Bus retains when no
// capacity is configured.
const DefaultHistoryCapacity = 1000

// Handler is a function that handles a signal.
type Handler func(Signal)

// subscription represents a registered signal handler.
type subscription struct {
	id           string
	subscriberID string
	taskID       string // non-empty restricts delivery to one task's signals
	handler      Handler
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistoryCapacity sets how many signals the bus retains.
// Values <= 0 leave the default in place.
func WithHistoryCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithLogger sets the logger used to report subscriber panics.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscription)

// WithTaskFilter restricts a subscription to signals carrying the given
// task ID. Signals for other tasks are not delivered.
func WithTaskFilter(taskID string) SubscribeOption {
	return func(s *subscription) { s.taskID = taskID }
}

// Bus is a synchronous pub-sub hub for lifecycle signals with a bounded
// history. It allows components to communicate without direct dependencies.
// All methods are safe for concurrent use.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[Type][]subscription // signal type -> subscriptions
	byID          map[string][]Type       // subscription ID -> types it covers
	history       []Signal
	capacity      int
	logger        *logging.Logger
}

// New creates a signal bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscriptions: make(map[Type][]subscription),
		byID:          make(map[string][]Type),
		capacity:      DefaultHistoryCapacity,
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for the given signal types under a
// caller-chosen subscriber label (used in panic logs). Duplicate entries in
// types are collapsed. Returns a subscription ID for Unsubscribe.
func (b *Bus) Subscribe(subscriberID string, types []Type, handler Handler, opts ...SubscribeOption) string {
	sub := subscription{
		id:           uuid.NewString(),
		subscriberID: subscriberID,
		handler:      handler,
	}
	for _, opt := range opts {
		opt(&sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[Type]struct{}, len(types))
	for _, t := range types {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		b.subscriptions[t] = append(b.subscriptions[t], sub)
		b.byID[sub.id] = append(b.byID[sub.id], t)
	}
	return sub.id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed; calling it again
// with the same ID returns false. It never panics.
func (b *Bus) Unsubscribe(subscriptionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	types, ok := b.byID[subscriptionID]
	if !ok {
		return false
	}
	delete(b.byID, subscriptionID)

	for _, t := range types {
		subs := b.subscriptions[t]
		for i, sub := range subs {
			if sub.id == subscriptionID {
				// Remove subscription by re-slicing to exclude index i
				b.subscriptions[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subscriptions[t]) == 0 {
			delete(b.subscriptions, t)
		}
	}
	return true
}

// Emit records the signal in history and dispatches it to every matching
// subscription. A subscription matches when it covers sig.Type and, if it
// carries a task filter, the filter equals sig.TaskID.
//
// The signal's ID and Time are filled in when zero. History mutation and
// subscription matching happen under the bus lock; the lock is released
// before handlers run, so a handler may call Emit, Subscribe, or
// Unsubscribe without deadlocking. Handlers run synchronously on the
// emitting goroutine in subscription order. If a handler panics, the panic
// is logged, recovered, and delivery continues to remaining handlers.
func (b *Bus) Emit(sig Signal) {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Time.IsZero() {
		sig.Time = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, sig)
	if len(b.history) > b.capacity {
		b.history = b.history[len(b.history)-b.capacity:]
	}

	subs := b.subscriptions[sig.Type]
	matched := make([]subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.taskID != "" && sub.taskID != sig.TaskID {
			continue
		}
		matched = append(matched, sub)
	}
	b.mu.Unlock()

	for _, sub := range matched {
		b.safeCall(sub, sig)
	}
}

// safeCall invokes a handler and recovers from any panics.
// Panics are logged with stack traces to aid debugging while ensuring
// one misbehaving subscriber cannot block delivery to other subscribers.
func (b *Bus) safeCall(sub subscription, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				"subscriber", sub.subscriberID,
				"signal_type", sig.Type.String(),
				"signal_id", sig.ID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	sub.handler(sig)
}

// Filter selects signals from the history. Zero values mean "no constraint".
type Filter struct {
	Type   Type   // Only signals of this type
	TaskID string // Only signals carrying this task ID
	Limit  int    // At most this many signals, the most recent ones
}

// History returns the retained signals matching the filter, oldest first.
// When Limit is positive, only the most recent Limit matches are returned
// (still oldest first).
func (b *Bus) History(f Filter) []Signal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Signal, 0, len(b.history))
	for _, sig := range b.history {
		if f.Type != "" && sig.Type != f.Type {
			continue
		}
		if f.TaskID != "" && sig.TaskID != f.TaskID {
			continue
		}
		out = append(out, sig)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Clear removes all subscriptions and drops the history.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[Type][]subscription)
	b.byID = make(map[string][]Type)
	b.history = nil
}
