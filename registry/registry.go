// Package registry provides a concurrent, ID-assigning store for live
// objects such as accepted connections. IDs are uint32 values handed out in
// increasing order; values are kept in a sync.Map so lookups from other
// goroutines never contend with the event loop that mutates the registry.
package registry

import (
	"sync"
	"sync/atomic"
)

// Registry stores values of type V under IDs it assigns itself. The first
// ID handed out is start+1, which lets callers reserve start (usually 0)
// as an "unassigned" marker.
//
// Registry must not be copied after first use.
type Registry[V any] struct {
	next  atomic.Uint32
	items sync.Map
	count atomic.Int64
}

// New creates an empty Registry whose first assigned ID is start+1.
//
// Parameters:
//   - start: The value the ID counter starts from
//
// Returns:
//   - A pointer to a new Registry
func New[V any](start uint32) *Registry[V] {
	r := &Registry[V]{}
	r.next.Store(start)
	return r
}

// NextID reserves and returns the next ID without storing anything.
func (r *Registry[V]) NextID() uint32 {
	return r.next.Add(1)
}

// Put stores v under an ID previously obtained from NextID. Storing over an
// existing entry replaces it without changing Len.
func (r *Registry[V]) Put(id uint32, v V) {
	if _, loaded := r.items.Swap(id, v); !loaded {
		r.count.Add(1)
	}
}

// Get returns the value stored under id.
//
// Returns:
//   - The value, or the zero value of V if absent
//   - true if the ID was present
func (r *Registry[V]) Get(id uint32) (V, bool) {
	v, ok := r.items.Load(id)
	if !ok {
		var zero V
		return zero, false
	}

	return v.(V), true
}

// Remove deletes id and returns the value that was stored, if any.
// Removing an absent ID is a no-op.
func (r *Registry[V]) Remove(id uint32) (V, bool) {
	v, ok := r.items.LoadAndDelete(id)
	if !ok {
		var zero V
		return zero, false
	}

	r.count.Add(-1)
	return v.(V), true
}

// Len returns the number of stored values in O(1).
func (r *Registry[V]) Len() int {
	return int(r.count.Load())
}

// Range calls f for each entry until f returns false. Order is unspecified.
func (r *Registry[V]) Range(f func(id uint32, v V) bool) {
	r.items.Range(func(k, v any) bool {
		return f(k.(uint32), v.(V))
	})
}
