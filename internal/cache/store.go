package cache

import (
	"reflect"
	"sort"
	"sync"

	"github.com/golang/glog"
)

// Store is the shared read cache. It is safe for concurrent use.
//
// Each entry remembers the newest request issued for its descriptor and the
// request whose response is currently stored, so a response that arrives
// after a newer one has already been committed is dropped.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	watchers  map[string]map[int]func()
	nextWatch int
	seq       uint64
}

type entry struct {
	desc      Descriptor
	value     any
	has       bool
	committed uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*entry),
		watchers: make(map[string]map[int]func()),
	}
}

// Begin reserves a request sequence number for a read of d.
func (s *Store) Begin(d Descriptor) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Commit stores value as the result of request seq for d. It returns false
// and leaves the entry alone when a newer request already committed.
// A seq of 0 writes unconditionally.
func (s *Store) Commit(d Descriptor, seq uint64, value any) bool {
	key := d.Key()

	s.mu.Lock()
	e := s.entryLocked(key, d)
	if seq != 0 && seq < e.committed {
		s.mu.Unlock()
		glog.V(2).Infof("cache: dropped late response %d for %s (have %d)", seq, key, e.committed)
		return false
	}
	if seq > e.committed {
		e.committed = seq
	}
	changed := !e.has || !reflect.DeepEqual(e.value, value)
	e.value = value
	e.has = true
	fns := s.watchersLocked(key)
	s.mu.Unlock()

	if changed {
		notify(fns)
	}
	return true
}

// Write stores value for d regardless of request ordering.
func (s *Store) Write(d Descriptor, value any) {
	s.Commit(d, 0, value)
}

// Has reports whether d has a cached result.
func (s *Store) Has(d Descriptor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[d.Key()]
	return ok && e.has
}

// Evict drops the cached result for d. Watchers are notified.
func (s *Store) Evict(d Descriptor) {
	key := d.Key()
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || !e.has {
		s.mu.Unlock()
		return
	}
	e.value = nil
	e.has = false
	fns := s.watchersLocked(key)
	s.mu.Unlock()
	notify(fns)
}

// Reset drops every cached result, e.g. on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	var fns []func()
	for key, e := range s.entries {
		if e.has {
			e.value = nil
			e.has = false
			fns = append(fns, s.watchersLocked(key)...)
		}
	}
	s.mu.Unlock()
	notify(fns)
}

// Descriptors returns the cached descriptors of operation, sorted by key.
func (s *Store) Descriptors(operation string) []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Descriptor
	for _, e := range s.entries {
		if e.has && e.desc.Operation == operation {
			out = append(out, e.desc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Watch registers fn to run after every change of d's result. The returned
// function unregisters it.
func (s *Store) Watch(d Descriptor, fn func()) (cancel func()) {
	key := d.Key()
	s.mu.Lock()
	s.nextWatch++
	id := s.nextWatch
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[int]func())
	}
	s.watchers[key][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers[key], id)
			if len(s.watchers[key]) == 0 {
				delete(s.watchers, key)
			}
			s.mu.Unlock()
		})
	}
}

// Read returns the cached result for d when present and of type T.
func Read[T any](s *Store, d Descriptor) (T, bool) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[d.Key()]
	if !ok || !e.has {
		return zero, false
	}
	v, ok := e.value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Apply runs p against the cached result for d and stores the outcome.
// Nothing happens when d has never been fetched or holds a value of another
// type; a patch never fabricates a result. It returns true when the stored
// result changed.
func Apply[T any](s *Store, d Descriptor, p Patch[T]) bool {
	key := d.Key()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || !e.has {
		s.mu.Unlock()
		glog.V(2).Infof("cache: patch skipped, %s not cached", key)
		return false
	}
	cur, ok := e.value.(T)
	if !ok {
		s.mu.Unlock()
		glog.Warningf("cache: patch rejected, %s holds %T", key, e.value)
		return false
	}
	next := p(cur)
	if reflect.DeepEqual(cur, next) {
		s.mu.Unlock()
		return false
	}
	e.value = next
	fns := s.watchersLocked(key)
	s.mu.Unlock()

	notify(fns)
	return true
}

// ApplyAll runs p against every cached variant of operation and returns how
// many results changed.
func ApplyAll[T any](s *Store, operation string, p Patch[T]) int {
	n := 0
	for _, d := range s.Descriptors(operation) {
		if Apply(s, d, p) {
			n++
		}
	}
	return n
}

func (s *Store) entryLocked(key string, d Descriptor) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{desc: d}
		s.entries[key] = e
	}
	return e
}

func (s *Store) watchersLocked(key string) []func() {
	ws := s.watchers[key]
	if len(ws) == 0 {
		return nil
	}
	ids := make([]int, 0, len(ws))
	for id := range ws {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, ws[id])
	}
	return fns
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
