// Package feed keeps a live, ordered list fresh for whatever context key is
// currently bound (an open conversation, or the signed-in user for
// notifications).
//
// A Feed is Idle until a key is bound. While Subscribed it reads the list
// immediately, re-reads it at a fixed cadence and, when configured, applies
// items arriving on a push stream straight into the cached list. Unbinding
// stops every goroutine before returning, so nothing touches the cache on
// behalf of a key that is no longer bound.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/client"
	"github.com/glasserstudy/glasser/internal/fetch"
)

// Order decides where new items go.
type Order int

const (
	// Append adds new items at the end (chat, oldest first).
	Append Order = iota
	// Prepend adds new items at the front (notifications, newest first).
	Prepend
)

// State is the lifecycle state of a Feed.
type State int

const (
	Idle State = iota
	Subscribed
)

func (s State) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "idle"
}

// Push describes the push stream for a bound key.
type Push struct {
	Operation client.Operation
	Vars      map[string]any
	// Field is the data field carrying one item.
	Field string
}

// Config describes a feed.
type Config[E cache.Entity] struct {
	// Query returns the list read for key.
	Query func(key string) fetch.Query[[]E]
	// Push returns the push stream for key. Nil, or a nil Subscriber,
	// disables push.
	Push       func(key string) Push
	Subscriber client.Subscriber
	Order      Order
	// Bound caps the list length on insert. Zero means unbounded.
	Bound        int
	PollInterval time.Duration
}

// Feed is a live list bound to at most one key.
type Feed[E cache.Entity] struct {
	fc  *fetch.Controller
	cfg Config[E]

	// bindMu serializes Bind and Close.
	bindMu sync.Mutex

	mu      sync.Mutex
	key     string
	state   State
	watch   *fetch.Watch[[]E]
	desc    cache.Descriptor
	stop    context.CancelFunc
	done    []chan struct{}
	updates chan struct{}
}

// New creates an idle feed.
func New[E cache.Entity](fc *fetch.Controller, cfg Config[E]) *Feed[E] {
	return &Feed[E]{
		fc:      fc,
		cfg:     cfg,
		updates: make(chan struct{}, 1),
	}
}

// State returns Idle or Subscribed.
func (f *Feed[E]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Key returns the bound key, or "".
func (f *Feed[E]) Key() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

// Items returns the current list for the bound key.
func (f *Feed[E]) Items() []E {
	st, ok := f.Snapshot()
	if !ok {
		return nil
	}
	return st.Data
}

// Snapshot returns the fetch state of the bound key. ok is false when Idle.
func (f *Feed[E]) Snapshot() (fetch.State[[]E], bool) {
	f.mu.Lock()
	w := f.watch
	f.mu.Unlock()
	if w == nil {
		return fetch.State[[]E]{}, false
	}
	return w.State(), true
}

// Updates signals that Items or State may have changed.
func (f *Feed[E]) Updates() <-chan struct{} { return f.updates }

// Bind moves the feed to key. An empty key unbinds. Binding the current key
// again is a no-op; binding another key tears the old binding down first.
func (f *Feed[E]) Bind(ctx context.Context, key string) {
	f.bindMu.Lock()
	defer f.bindMu.Unlock()

	if key == f.Key() && (key == "" || f.State() == Subscribed) {
		return
	}
	f.teardown()
	if key == "" {
		return
	}
	f.start(ctx, key)
}

// Unbind returns the feed to Idle. When it returns no poll or push work for
// the previous key is running.
func (f *Feed[E]) Unbind() {
	f.Bind(context.Background(), "")
}

// Close unbinds the feed.
func (f *Feed[E]) Close() {
	f.Unbind()
}

func (f *Feed[E]) start(ctx context.Context, key string) {
	ctx, stop := context.WithCancel(ctx)
	q := f.cfg.Query(key)
	w := fetch.WatchQuery(ctx, f.fc, q, fetch.Options{PollInterval: f.cfg.PollInterval})

	f.mu.Lock()
	f.key = key
	f.state = Subscribed
	f.watch = w
	f.desc = q.Descriptor()
	f.stop = stop
	f.done = nil
	f.mu.Unlock()

	f.track(func() { f.forward(w) })
	if f.cfg.Push != nil && f.cfg.Subscriber != nil {
		p := f.cfg.Push(key)
		f.track(func() { f.push(ctx, key, q.Descriptor(), p) })
	}
	glog.V(1).Infof("feed: bound %q (%s)", key, q.Descriptor())
	f.signal()
}

func (f *Feed[E]) teardown() {
	f.mu.Lock()
	key, w, stop, done := f.key, f.watch, f.stop, f.done
	f.key, f.state, f.watch, f.stop, f.done = "", Idle, nil, nil, nil
	f.mu.Unlock()

	if w == nil {
		return
	}
	stop()
	w.Close()
	for _, d := range done {
		<-d
	}
	glog.V(1).Infof("feed: unbound %q", key)
	f.signal()
}

// track runs fn in a goroutine that teardown waits for.
func (f *Feed[E]) track(fn func()) {
	d := make(chan struct{})
	f.mu.Lock()
	f.done = append(f.done, d)
	f.mu.Unlock()
	go func() {
		defer close(d)
		fn()
	}()
}

// forward turns watch snapshots into feed signals until the watch closes.
func (f *Feed[E]) forward(w *fetch.Watch[[]E]) {
	for range w.Updates() {
		f.signal()
	}
}

func (f *Feed[E]) push(ctx context.Context, key string, d cache.Descriptor, p Push) {
	events, err := f.cfg.Subscriber.Subscribe(ctx, p.Operation, p.Vars)
	if err != nil {
		if ctx.Err() == nil {
			glog.Warningf("feed: push for %q unavailable, polling only: %v", key, err)
		}
		return
	}
	for ev := range events {
		if ev.Err != nil {
			glog.Warningf("feed: push for %q ended: %v", key, ev.Err)
			continue
		}
		var data map[string]json.RawMessage
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			glog.Warningf("feed: dropping malformed push item: %v", err)
			continue
		}
		var item E
		if err := client.DecodeField(data, p.Field, &item); err != nil {
			glog.Warningf("feed: dropping push item: %v", err)
			continue
		}
		f.Insert(key, d, item)
	}
}

// Insert places item into the list cached for d, provided key is still the
// bound key. Items already present (by id) are ignored. It reports whether
// the list changed.
func (f *Feed[E]) Insert(key string, d cache.Descriptor, item E) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Holding mu keeps a concurrent teardown from rebinding between the key
	// check and the patch.
	if f.key != key || !f.desc.Equal(d) {
		glog.V(2).Infof("feed: dropped item %s for unbound key %q", item.EntityID(), key)
		return false
	}
	var p cache.Patch[[]E]
	if f.cfg.Order == Prepend {
		p = cache.Prepend(item, f.cfg.Bound)
	} else {
		p = cache.Append(item, f.cfg.Bound)
	}
	return cache.Apply(f.fc.Store(), d, p)
}

// Descriptor returns the cache identity of the bound list.
func (f *Feed[E]) Descriptor() (cache.Descriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desc, f.state == Subscribed
}

func (f *Feed[E]) signal() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}
