// Package eventbus is an in-process typed publish/subscribe bus for economy
// events.
//
// External code registers listeners to react to committed operations, and
// pre-commit hooks to veto operations before any state changes. Hooks return
// an explicit allow/deny decision instead of mutating a shared event object,
// so events stay immutable once fired.
//
// Safe to call from any goroutine. A listener registered while a Fire is in
// flight may or may not receive that particular event.
package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
)

// Listener receives committed events. Panics are recovered and logged;
// they never abort dispatch to later listeners or the publisher.
type Listener func(Event)

// Hook is consulted before a guarded operation commits. The first deny wins.
type Hook func(Event) Decision

// Decision is a pre-commit hook verdict.
type Decision struct {
	Allow  bool
	Reason string
}

// Allowed is the zero-friction verdict.
var Allowed = Decision{Allow: true}

// Deny builds a denying Decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

type entry struct {
	id uint64
	fn Listener
}

type hookEntry struct {
	id uint64
	fn Hook
}

// Bus dispatches events synchronously, in registration order, on the
// calling goroutine.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[Kind][]entry
	hooks     map[Kind][]hookEntry
}

func New() *Bus {
	return &Bus{
		listeners: make(map[Kind][]entry),
		hooks:     make(map[Kind][]hookEntry),
	}
}

// Subscription identifies a registered listener or hook.
type Subscription struct {
	bus  *Bus
	kind Kind
	id   uint64
	hook bool
}

// Register appends a listener for events of the given kind.
func (b *Bus) Register(kind Kind, l Listener) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners[kind] = append(b.listeners[kind], entry{id: b.nextID, fn: l})

	return Subscription{bus: b, kind: kind, id: b.nextID}
}

// RegisterHook appends a pre-commit hook for events of the given kind.
func (b *Bus) RegisterHook(kind Kind, h Hook) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.hooks[kind] = append(b.hooks[kind], hookEntry{id: b.nextID, fn: h})

	return Subscription{bus: b, kind: kind, id: b.nextID, hook: true}
}

// Unregister removes the listener or hook behind s. It reports whether
// anything was removed.
func (s Subscription) Unregister() bool {
	if s.bus == nil {
		return false
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.hook {
		list := s.bus.hooks[s.kind]
		for i, e := range list {
			if e.id == s.id {
				s.bus.hooks[s.kind] = append(list[:i:i], list[i+1:]...)
				return true
			}
		}

		return false
	}

	list := s.bus.listeners[s.kind]
	for i, e := range list {
		if e.id == s.id {
			s.bus.listeners[s.kind] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}

	return false
}

// UnregisterAll removes every listener and hook for the given kind.
func (b *Bus) UnregisterAll(kind Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, kind)
	delete(b.hooks, kind)
}

// ListenerCount reports how many listeners are registered for kind.
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.listeners[kind])
}

// Fire delivers ev to every listener of its kind, in registration order.
func (b *Bus) Fire(ev Event) {
	b.mu.RLock()
	list := b.listeners[ev.EventKind()]
	snapshot := make([]entry, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	for _, e := range snapshot {
		dispatch(e.fn, ev)
	}
}

func dispatch(l Listener, ev Event) {
	defer func() {
		r := recover()
		if r != nil {
			slog.Error("event listener panicked",
				"kind", ev.EventKind(), "panic", fmt.Sprint(r))
		}
	}()

	l(ev)
}

// Check runs every pre-commit hook for ev's kind and returns the first
// denying decision, or Allowed. A panicking hook is logged and skipped:
// hook failures are isolated the same way listener failures are.
func (b *Bus) Check(ev Event) Decision {
	b.mu.RLock()
	list := b.hooks[ev.EventKind()]
	snapshot := make([]hookEntry, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	for _, e := range snapshot {
		d := check(e.fn, ev)
		if !d.Allow {
			return d
		}
	}

	return Allowed
}

func check(h Hook, ev Event) (d Decision) {
	defer func() {
		r := recover()
		if r != nil {
			slog.Error("pre-commit hook panicked",
				"kind", ev.EventKind(), "panic", fmt.Sprint(r))

			d = Allowed
		}
	}()

	return h(ev)
}
