// Package fetch runs cached reads against the GraphQL API.
//
// A Watch keeps one read descriptor fresh: it reads immediately, optionally
// re-reads at a fixed cadence, and republishes whenever the shared cache
// entry changes (including through mutation patches). Errors never discard
// data that was already loaded.
package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/client"
)

// ErrClosed is returned by operations on a closed Watch.
var ErrClosed = errors.New("fetch: watch closed")

// Doer is the transport a Controller reads through.
type Doer interface {
	DoField(ctx context.Context, op client.Operation, vars map[string]any, field string, out any) error
	Token() string
}

// Query describes a read whose result is data[Field] decoded as T.
type Query[T any] struct {
	Operation client.Operation
	Vars      map[string]any
	Field     string
}

// Descriptor returns the cache identity of q.
func (q Query[T]) Descriptor() cache.Descriptor {
	return cache.NewDescriptor(q.Operation.Name, q.Vars)
}

// Controller binds a transport to a shared cache.
type Controller struct {
	client Doer
	store  *cache.Store
}

// New creates a controller.
func New(c Doer, store *cache.Store) *Controller {
	return &Controller{client: c, store: store}
}

// Store returns the shared cache.
func (c *Controller) Store() *cache.Store { return c.store }

// Client returns the transport.
func (c *Controller) Client() Doer { return c.client }

// skipped reports whether q cannot run without a session.
func (c *Controller) skipped(op client.Operation) bool {
	return !op.Public && c.client.Token() == ""
}

// Fetch performs one read of q and commits the result. When a newer read of
// the same descriptor has already committed, the newer cached value is
// returned instead.
func Fetch[T any](ctx context.Context, c *Controller, q Query[T]) (T, error) {
	d := q.Descriptor()
	seq := c.store.Begin(d)

	var out T
	if err := c.client.DoField(ctx, q.Operation, q.Vars, q.Field, &out); err != nil {
		var zero T
		return zero, err
	}
	if !c.store.Commit(d, seq, out) {
		if cur, ok := cache.Read[T](c.store, d); ok {
			return cur, nil
		}
	}
	return out, nil
}

// Options configure a Watch.
type Options struct {
	// PollInterval re-reads at this cadence. Zero reads once.
	PollInterval time.Duration
	// Skip suppresses all network activity.
	Skip bool
}

// State is a snapshot of a watched read.
type State[T any] struct {
	Data    T
	HasData bool
	Loading bool
	Err     error
	Skipped bool
}

// Watch keeps one query fresh.
type Watch[T any] struct {
	c *Controller
	q Query[T]
	d cache.Descriptor

	mu       sync.Mutex
	loading  bool
	err      error
	skip     bool
	closed   bool
	interval time.Duration
	updates  chan State[T]

	unwatch  func()
	ctx      context.Context
	cancel   context.CancelFunc
	loopStop context.CancelFunc
	loopDone chan struct{}
}

// WatchQuery starts watching q. The returned Watch must be closed. Without
// a session every read is skipped until a token appears, so a polling Watch
// created while signed out starts loading after sign-in.
func WatchQuery[T any](ctx context.Context, c *Controller, q Query[T], opts Options) *Watch[T] {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch[T]{
		c:        c,
		q:        q,
		d:        q.Descriptor(),
		interval: opts.PollInterval,
		skip:     opts.Skip,
		updates:  make(chan State[T], 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	w.unwatch = c.store.Watch(w.d, w.publish)

	if w.skip {
		glog.V(2).Infof("fetch: %s skipped", w.d)
		w.publish()
		return w
	}
	w.mu.Lock()
	w.startLocked(w.interval)
	w.mu.Unlock()
	return w
}

// Descriptor returns the watched cache identity.
func (w *Watch[T]) Descriptor() cache.Descriptor { return w.d }

// State returns the current snapshot.
func (w *Watch[T]) State() State[T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// Updates delivers snapshots as they change. Only the latest undelivered
// snapshot is kept. The channel is closed by Close.
func (w *Watch[T]) Updates() <-chan State[T] { return w.updates }

// Refetch reads once now, outside the polling cadence. It is a no-op while
// the Watch is skipped.
func (w *Watch[T]) Refetch(ctx context.Context) error {
	w.mu.Lock()
	closed, skip := w.closed, w.skip
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if skip {
		return nil
	}
	return w.refresh(ctx)
}

// StopPolling suspends the cadence. It returns after the poll goroutine
// has exited, so no read starts afterwards.
func (w *Watch[T]) StopPolling() {
	w.mu.Lock()
	stop, done := w.loopStop, w.loopDone
	w.loopStop, w.loopDone = nil, nil
	w.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// StartPolling (re)starts the cadence at interval.
func (w *Watch[T]) StartPolling(interval time.Duration) {
	w.StopPolling()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.skip {
		return
	}
	w.interval = interval
	w.startLocked(interval)
}

// Close stops all activity and closes Updates. It is synchronous and
// idempotent.
func (w *Watch[T]) Close() {
	w.StopPolling()
	w.cancel()
	w.unwatch()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.updates)
	}
}

func (w *Watch[T]) startLocked(interval time.Duration) {
	loopCtx, stop := context.WithCancel(w.ctx)
	done := make(chan struct{})
	w.loopStop, w.loopDone = stop, done

	go func() {
		defer close(done)
		if interval <= 0 {
			_ = w.refresh(loopCtx)
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			_ = w.refresh(loopCtx)
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (w *Watch[T]) refresh(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if w.c.skipped(w.q.Operation) {
		glog.V(2).Infof("fetch: %s skipped, no session", w.d)
		w.publish()
		return nil
	}
	w.setLoading(true, nil, false)

	_, err := Fetch(ctx, w.c, w.q)
	if err != nil && ctx.Err() != nil {
		// Cancelled mid-flight: nobody is waiting for this result.
		w.setLoading(false, nil, false)
		return ctx.Err()
	}
	if err != nil {
		glog.Warningf("fetch: %s failed: %v", w.d, err)
	}
	w.setLoading(false, err, true)
	return err
}

func (w *Watch[T]) setLoading(loading bool, err error, setErr bool) {
	w.mu.Lock()
	w.loading = loading
	if setErr {
		w.err = err
	}
	w.publishLocked()
	w.mu.Unlock()
}

func (w *Watch[T]) publish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.publishLocked()
}

func (w *Watch[T]) publishLocked() {
	if w.closed {
		return
	}
	st := w.stateLocked()
	for {
		select {
		case w.updates <- st:
			return
		default:
		}
		select {
		case <-w.updates:
		default:
		}
	}
}

func (w *Watch[T]) stateLocked() State[T] {
	if w.skip || w.c.skipped(w.q.Operation) {
		return State[T]{Skipped: true}
	}
	st := State[T]{Loading: w.loading, Err: w.err}
	st.Data, st.HasData = cache.Read[T](w.c.store, w.d)
	return st
}

// Runner is a read that can be re-run without knowing its result type.
type Runner interface {
	Descriptor() cache.Descriptor
	Run(ctx context.Context, c *Controller) error
}

// Run performs q once and commits the result.
func (q Query[T]) Run(ctx context.Context, c *Controller) error {
	_, err := Fetch(ctx, c, q)
	return err
}

// Variants returns q re-targeted at every cached descriptor of its
// operation, e.g. each search term a list was read with.
func (q Query[T]) Variants(store *cache.Store) []Runner {
	var out []Runner
	for _, d := range store.Descriptors(q.Operation.Name) {
		v := q
		v.Vars = d.Vars
		out = append(out, v)
	}
	return out
}
