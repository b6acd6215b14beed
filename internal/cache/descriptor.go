// Package cache holds the shared read cache of the sync layer.
//
// A read is identified by a Descriptor: the GraphQL operation name plus its
// variables. The Store maps each descriptor to the last known result of that
// read and lets mutations and push events rewrite it through pure patches
// instead of re-fetching.
package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Descriptor identifies one parameterized read.
type Descriptor struct {
	Operation string
	Vars      map[string]any
}

// NewDescriptor returns a descriptor for operation with vars.
func NewDescriptor(operation string, vars map[string]any) Descriptor {
	return Descriptor{Operation: operation, Vars: vars}
}

// Key returns the cache key of d. Two descriptors have the same key when
// their operation names match and their variables are structurally equal.
// Nil variables are treated as absent.
func (d Descriptor) Key() string {
	vars := compactVars(d.Vars)
	if len(vars) == 0 {
		return d.Operation
	}
	// encoding/json sorts map keys, which makes the encoding canonical.
	data, err := json.Marshal(vars)
	if err != nil {
		return fmt.Sprintf("%s:%v", d.Operation, vars)
	}
	return d.Operation + ":" + string(data)
}

// Equal reports whether d and other address the same cache entry.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.Key() == other.Key()
}

func (d Descriptor) String() string { return d.Key() }

func compactVars(vars map[string]any) map[string]any {
	if len(vars) == 0 {
		return nil
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		if isNil(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
