package event

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/coccinelle/backend/internal/domain/shared"
)

// HandlerRegistry routes event types to handlers. Writers publish a new
// immutable table, so lookups on the publish path never take a lock.
type HandlerRegistry struct {
	mu    sync.Mutex
	table atomic.Pointer[routeTable]
}

type routeTable struct {
	byType   map[string][]shared.EventHandler
	wildcard []shared.EventHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	r := &HandlerRegistry{}
	r.table.Store(&routeTable{byType: map[string][]shared.EventHandler{}})
	return r
}

// update applies fn to a copy of the current table and swaps it in
func (r *HandlerRegistry) update(fn func(t *routeTable)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.table.Load()
	next := &routeTable{
		byType:   maps.Clone(cur.byType),
		wildcard: slices.Clone(cur.wildcard),
	}
	for k, hs := range next.byType {
		next.byType[k] = slices.Clone(hs)
	}
	fn(next)
	r.table.Store(next)
}

// Register subscribes handler to eventTypes, or to every event when none
// are given. Registering the same handler twice for a type is a no-op.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.update(func(t *routeTable) {
		if len(eventTypes) == 0 {
			if !slices.Contains(t.wildcard, handler) {
				t.wildcard = append(t.wildcard, handler)
			}
			return
		}
		for _, et := range eventTypes {
			if !slices.Contains(t.byType[et], handler) {
				t.byType[et] = append(t.byType[et], handler)
			}
		}
	})
}

// Unregister removes handler from every event type
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.update(func(t *routeTable) {
		isTarget := func(h shared.EventHandler) bool { return h == handler }
		t.wildcard = slices.DeleteFunc(t.wildcard, isTarget)
		for et, hs := range t.byType {
			if hs = slices.DeleteFunc(hs, isTarget); len(hs) == 0 {
				delete(t.byType, et)
			} else {
				t.byType[et] = hs
			}
		}
	})
}

// Handlers returns the handlers for eventType followed by the wildcard
// handlers, each handler at most once
func (r *HandlerRegistry) Handlers(eventType string) []shared.EventHandler {
	t := r.table.Load()
	typed := t.byType[eventType]
	out := make([]shared.EventHandler, 0, len(typed)+len(t.wildcard))
	out = append(out, typed...)
	for _, h := range t.wildcard {
		if !slices.Contains(typed, h) {
			out = append(out, h)
		}
	}
	return out
}

// Count is the number of distinct registered handlers
func (r *HandlerRegistry) Count() int {
	t := r.table.Load()
	seen := map[shared.EventHandler]struct{}{}
	for _, h := range t.wildcard {
		seen[h] = struct{}{}
	}
	for _, hs := range t.byType {
		for _, h := range hs {
			seen[h] = struct{}{}
		}
	}
	return len(seen)
}
