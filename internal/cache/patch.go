package cache

// Entity is anything stored in a cached list that has a stable id.
type Entity interface {
	EntityID() string
}

// Patch computes a new read result from the current one. Patches must not
// modify their input; the Store compares input and output to detect no-ops.
type Patch[T any] func(T) T

// Upsert replaces the entity with e's id in place, or appends e when absent.
func Upsert[E Entity](e E) Patch[[]E] {
	return func(list []E) []E {
		id := e.EntityID()
		out := make([]E, len(list), len(list)+1)
		copy(out, list)
		for i := range out {
			if out[i].EntityID() == id {
				out[i] = e
				return out
			}
		}
		return append(out, e)
	}
}

// Remove deletes the entity with the given id, keeping the order of the rest.
func Remove[E Entity](id string) Patch[[]E] {
	return func(list []E) []E {
		if indexOf(list, id) < 0 {
			return list
		}
		out := make([]E, 0, len(list))
		for _, item := range list {
			if item.EntityID() != id {
				out = append(out, item)
			}
		}
		return out
	}
}

// Transform applies fn to every entity matching match. Other entities are
// carried over untouched.
func Transform[E any](match func(E) bool, fn func(E) E) Patch[[]E] {
	return func(list []E) []E {
		var out []E
		for i, item := range list {
			if !match(item) {
				continue
			}
			if out == nil {
				out = make([]E, len(list))
				copy(out, list)
			}
			out[i] = fn(item)
		}
		if out == nil {
			return list
		}
		return out
	}
}

// Append adds e at the end unless an entity with its id is already present.
// With bound > 0 the oldest entries at the front are evicted to keep at most
// bound items.
func Append[E Entity](e E, bound int) Patch[[]E] {
	return func(list []E) []E {
		if indexOf(list, e.EntityID()) >= 0 {
			return list
		}
		out := make([]E, 0, len(list)+1)
		out = append(out, list...)
		out = append(out, e)
		if bound > 0 && len(out) > bound {
			out = out[len(out)-bound:]
		}
		return out
	}
}

// Prepend adds e at the front unless an entity with its id is already
// present. With bound > 0 the oldest entries at the back are evicted.
func Prepend[E Entity](e E, bound int) Patch[[]E] {
	return func(list []E) []E {
		if indexOf(list, e.EntityID()) >= 0 {
			return list
		}
		out := make([]E, 0, len(list)+1)
		out = append(out, e)
		out = append(out, list...)
		if bound > 0 && len(out) > bound {
			out = out[:bound]
		}
		return out
	}
}

// Replace swaps a single-entity result for v.
func Replace[T any](v T) Patch[T] {
	return func(T) T { return v }
}

// ByID matches entities with the given id, for use with Transform.
func ByID[E Entity](id string) func(E) bool {
	return func(e E) bool { return e.EntityID() == id }
}

func indexOf[E Entity](list []E, id string) int {
	for i, item := range list {
		if item.EntityID() == id {
			return i
		}
	}
	return -1
}
