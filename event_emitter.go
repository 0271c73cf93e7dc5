package notifyws

import (
	"sync"
)

type callback[T any] func(T)

// Listener identifies one registration made with EventEmitterCallback.On. It is the only handle
// that can remove that registration.
type Listener[K comparable] struct {
	event K
	id    uint64
}

// Event returns the event the listener was registered for.
func (l Listener[K]) Event() K {
	return l.event
}

type slot[V any] struct {
	id uint64
	fn callback[V]
}

// EventEmitterCallback maps events (of type K) to an ordered list of callbacks receiving V.
//
// Every call to On adds an independent slot, so registering the same function twice makes it fire
// twice per Emit. Callbacks run in registration order on the emitting goroutine. A callback that
// panics is recovered and logged; the remaining callbacks of that Emit still run.
type EventEmitterCallback[K comparable, V any] struct {
	logger    logger
	listeners map[K][]slot[V]
	nextID    uint64
	lock      sync.RWMutex
}

// NewEventEmitter creates a new EventEmitterCallback and returns a pointer to it.
func NewEventEmitter[K comparable, V any](logger logger) *EventEmitterCallback[K, V] {
	return &EventEmitterCallback[K, V]{
		logger:    logger.WithField("component", "event_emitter"),
		listeners: make(map[K][]slot[V]),
	}
}

// On registers a new listener for the given event.
func (e *EventEmitterCallback[K, V]) On(event K, listener callback[V]) Listener[K] {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.nextID++
	e.listeners[event] = append(e.listeners[event], slot[V]{id: e.nextID, fn: listener})

	return Listener[K]{event: event, id: e.nextID}
}

// Off removes a single registration. Removing an unknown or already removed listener is a no-op.
func (e *EventEmitterCallback[K, V]) Off(l Listener[K]) {
	e.lock.Lock()
	defer e.lock.Unlock()

	slots := e.listeners[l.event]
	for i, s := range slots {
		if s.id != l.id {
			continue
		}
		next := make([]slot[V], 0, len(slots)-1)
		next = append(next, slots[:i]...)
		next = append(next, slots[i+1:]...)
		if len(next) == 0 {
			delete(e.listeners, l.event)
		} else {
			e.listeners[l.event] = next
		}
		return
	}
}

// Emit calls every listener registered for the event synchronously. Listeners are snapshotted
// before the first call, so a listener may register or remove listeners without deadlocking.
func (e *EventEmitterCallback[K, V]) Emit(event K, data V) {
	e.lock.RLock()
	listeners := e.listeners[event]
	e.lock.RUnlock()

	for _, listener := range listeners {
		e.call(event, listener.fn, data)
	}
}

// Count returns how many listeners are registered for the event.
func (e *EventEmitterCallback[K, V]) Count(event K) int {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return len(e.listeners[event])
}

// Close removes all listeners.
func (e *EventEmitterCallback[K, V]) Close() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = make(map[K][]slot[V])
}

func (e *EventEmitterCallback[K, V]) call(event K, fn callback[V], data V) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("listener for %v panicked: %v", event, r)
		}
	}()

	fn(data)
}
