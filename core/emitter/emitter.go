package emitter

import (
	"reflect"
	"sync"
)

// RemoveListener is the event fired whenever a listener is removed via
// Off or OffAll.
const RemoveListener = "removeListener"

// Listener is a subscriber invoked with the arguments passed to Emit.
type Listener func(args ...any)

// entry pairs a listener with its subscription mode. Identity of the
// underlying function is kept as a pointer so Off can match it.
type entry struct {
	fn   Listener
	ptr  uintptr
	once bool
}

// Emitter is a named-event pub/sub hub. Listeners for a name are invoked
// in insertion order from a snapshot, so subscribing or unsubscribing from
// inside a listener never disturbs the iteration in flight.
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]*entry
}

// New creates an empty emitter.
func New() *Emitter {
	return &Emitter{
		listeners: make(map[string][]*entry),
	}
}

func fnPtr(fn Listener) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// On subscribes fn to name for every emission.
func (e *Emitter) On(name string, fn Listener) {
	e.add(name, fn, false)
}

// Once subscribes fn to name for a single emission. The entry is removed
// after fn has been invoked.
func (e *Emitter) Once(name string, fn Listener) {
	e.add(name, fn, true)
}

func (e *Emitter) add(name string, fn Listener, once bool) {
	if fn == nil {
		return
	}

	e.mu.Lock()
	e.listeners[name] = append(e.listeners[name], &entry{
		fn:   fn,
		ptr:  fnPtr(fn),
		once: once,
	})
	e.mu.Unlock()
}

// Off removes every subscription of fn under name, matching by function
// identity. RemoveListener fires once per removed entry.
func (e *Emitter) Off(name string, fn Listener) {
	if fn == nil {
		return
	}
	ptr := fnPtr(fn)

	e.mu.Lock()
	bucket := e.listeners[name]
	kept := bucket[:0]
	removed := 0
	for _, ent := range bucket {
		if ent.ptr == ptr {
			removed++
			continue
		}
		kept = append(kept, ent)
	}
	if len(kept) == 0 {
		delete(e.listeners, name)
	} else {
		e.listeners[name] = kept
	}
	e.mu.Unlock()

	for i := 0; i < removed; i++ {
		e.Emit(RemoveListener, name, fn)
	}
}

// OffAll empties the bucket for name, or every bucket when name is "".
// RemoveListener fires before the removal with the bucket name (nil for a
// full reset).
func (e *Emitter) OffAll(name string) {
	if name == "" {
		e.Emit(RemoveListener, nil)
		e.mu.Lock()
		e.listeners = make(map[string][]*entry)
		e.mu.Unlock()
		return
	}

	e.Emit(RemoveListener, name)
	e.mu.Lock()
	delete(e.listeners, name)
	e.mu.Unlock()
}

// Emit invokes every listener subscribed to name, in insertion order, with
// args. One-shot entries are dropped after their invocation returns.
// Reports whether at least one listener existed.
func (e *Emitter) Emit(name string, args ...any) bool {
	e.mu.Lock()
	bucket := e.listeners[name]
	if len(bucket) == 0 {
		e.mu.Unlock()
		return false
	}
	snapshot := make([]*entry, len(bucket))
	copy(snapshot, bucket)
	e.mu.Unlock()

	for _, ent := range snapshot {
		ent.fn(args...)
		if ent.once {
			e.remove(name, ent)
		}
	}
	return true
}

// remove drops a single entry from the live bucket by identity.
func (e *Emitter) remove(name string, target *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bucket := e.listeners[name]
	for i, ent := range bucket {
		if ent == target {
			e.listeners[name] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(e.listeners[name]) == 0 {
		delete(e.listeners, name)
	}
}

// ListenerCount returns the number of subscriptions under name.
func (e *Emitter) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[name])
}
