package notifyws

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestEmitter() *EventEmitterCallback[string, int] {
	l, _ := newTestLogger()
	return NewEventEmitter[string, int](l)
}

func TestEventEmitter_SingleListener(t *testing.T) {
	emitter := newTestEmitter()
	var results []int

	emitter.On("event", func(data int) {
		results = append(results, data)
	})

	emitter.Emit("event", 42)

	assert.Equal(t, []int{42}, results)
}

func TestEventEmitter_ListenersFireInRegistrationOrder(t *testing.T) {
	emitter := newTestEmitter()
	var results []int

	for i := 0; i < 5; i++ {
		i := i
		emitter.On("event", func(data int) {
			results = append(results, data*10+i)
		})
	}

	emitter.Emit("event", 1)

	assert.Equal(t, []int{10, 11, 12, 13, 14}, results)
}

func TestEventEmitter_NoListeners(t *testing.T) {
	emitter := newTestEmitter()
	// When emitting an event with no listeners, no error or call should occur.
	emitter.Emit("nonexistentEvent", 100)
}

func TestEventEmitter_MultipleEvents(t *testing.T) {
	emitter := newTestEmitter()
	var event1Result, event2Result int

	emitter.On("event1", func(data int) {
		event1Result = data
	})
	emitter.On("event2", func(data int) {
		event2Result = data
	})

	emitter.Emit("event1", 5)
	emitter.Emit("event2", 15)

	assert.Equal(t, 5, event1Result)
	assert.Equal(t, 15, event2Result)
}

func TestEventEmitter_DuplicateRegistrationsAreIndependent(t *testing.T) {
	emitter := newTestEmitter()
	calls := 0
	listener := func(int) { calls++ }

	first := emitter.On("event", listener)
	emitter.On("event", listener)

	emitter.Emit("event", 1)
	assert.Equal(t, 2, calls, "each registration is its own slot")

	emitter.Off(first)
	emitter.Emit("event", 1)
	assert.Equal(t, 3, calls, "the remaining registration still fires")

	emitter.Off(first)
	assert.Equal(t, 1, emitter.Count("event"), "removing twice is a no-op")
}

func TestEventEmitter_OffLastListenerRemovesEvent(t *testing.T) {
	emitter := newTestEmitter()

	l := emitter.On("event", func(int) { t.Fatal("removed listener called") })
	assert.Equal(t, "event", l.Event())

	emitter.Off(l)
	emitter.Emit("event", 1)

	assert.Equal(t, 0, emitter.Count("event"))
}

func TestEventEmitter_PanickingListenerIsIsolated(t *testing.T) {
	l, hook := newTestLogger()
	emitter := NewEventEmitter[string, int](l)
	var results []int

	emitter.On("event", func(data int) { results = append(results, data) })
	emitter.On("event", func(int) { panic("boom") })
	emitter.On("event", func(data int) { results = append(results, data+1) })

	assert.NotPanics(t, func() { emitter.Emit("event", 1) })
	assert.Equal(t, []int{1, 2}, results)
	assert.True(t, hasEntry(hook, logrus.ErrorLevel, "listener for event panicked: boom"))
}

func TestEventEmitter_ListenerMayUnsubscribeDuringEmit(t *testing.T) {
	emitter := newTestEmitter()
	calls := 0

	var self Listener[string]
	self = emitter.On("event", func(int) {
		calls++
		emitter.Off(self)
	})
	emitter.On("event", func(int) { calls++ })

	emitter.Emit("event", 1)
	emitter.Emit("event", 1)

	assert.Equal(t, 3, calls)
}

func TestEventEmitter_Close(t *testing.T) {
	emitter := newTestEmitter()
	emitter.On("event", func(int) { t.Fatal("listener survived Close") })

	emitter.Close()
	emitter.Emit("event", 1)

	assert.Equal(t, 0, emitter.Count("event"))
}

func TestEventEmitter_Concurrent(t *testing.T) {
	emitter := newTestEmitter()
	var mu sync.Mutex
	var results []int
	var wg sync.WaitGroup

	// Concurrently registers 10 listeners.
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emitter.On("event", func(data int) {
				mu.Lock()
				results = append(results, data+i)
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()

	// Concurrent emission: 10 events are emitted.
	for j := 0; j < 10; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			emitter.Emit("event", j)
		}(j)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	// Expect 10 (listeners) * 10 (emissions) = 100 callbacks.
	assert.Len(t, results, 100)
}
