// Package mutate sends writes and reconciles their results into the shared
// cache.
package mutate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/client"
	"github.com/glasserstudy/glasser/internal/fetch"
)

// ErrStaleScope marks a patch that was discarded because its view was
// rebound while the write was in flight. The write itself succeeded.
var ErrStaleScope = errors.New("mutate: scope changed before patch")

// Scope holds the key of whatever view a write was issued from, such as the
// chat currently open.
type Scope struct {
	mu  sync.Mutex
	key string
}

// NewScope creates a scope bound to key.
func NewScope(key string) *Scope {
	return &Scope{key: key}
}

// Set rebinds the scope.
func (s *Scope) Set(key string) {
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
}

// Key returns the current binding.
func (s *Scope) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Mutation describes one write.
type Mutation[R any] struct {
	Operation client.Operation
	Vars      map[string]any
	// Field is the response field holding the result.
	Field string
	// Patch reconciles the cache with the result. It runs before Dispatch
	// returns and only on success.
	Patch func(store *cache.Store, result R)
	// Scope and ScopeKey guard Patch: when Scope no longer holds ScopeKey at
	// patch time, the patch is dropped.
	Scope    *Scope
	ScopeKey string
	// Refetch re-reads these queries after the patch, when they are cached.
	Refetch []fetch.Runner
}

// Dispatcher runs mutations.
type Dispatcher struct {
	fc       *fetch.Controller
	inFlight atomic.Int64
}

// New creates a dispatcher over the controller's transport and cache.
func New(fc *fetch.Controller) *Dispatcher {
	return &Dispatcher{fc: fc}
}

// InFlight returns how many writes are awaiting a response.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Dispatch issues m exactly once. On failure the cache is untouched and the
// error is returned. Refetch failures are logged and do not fail the write.
func Dispatch[R any](ctx context.Context, d *Dispatcher, m Mutation[R]) (R, error) {
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	var result R
	if err := d.fc.Client().DoField(ctx, m.Operation, m.Vars, m.Field, &result); err != nil {
		var zero R
		return zero, err
	}

	store := d.fc.Store()
	if m.Patch != nil {
		if m.Scope != nil && m.Scope.Key() != m.ScopeKey {
			glog.V(1).Infof("mutate: %s: %v (issued for %q, now %q)", m.Operation.Name, ErrStaleScope, m.ScopeKey, m.Scope.Key())
		} else {
			m.Patch(store, result)
		}
	}

	for _, r := range m.Refetch {
		if !store.Has(r.Descriptor()) {
			continue
		}
		if err := r.Run(ctx, d.fc); err != nil {
			glog.Warningf("mutate: refetch %s after %s: %v", r.Descriptor(), m.Operation.Name, err)
		}
	}
	return result, nil
}
