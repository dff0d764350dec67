// Package asyncevents provides an event emitter whose Emit waits for its listeners.
//
// Listeners may finish synchronously or hand back a *Future. Emit supports two modes:
//   - Sequential (default): each listener is awaited before the next one is invoked
//   - Parallel (key prefixed with '='): all listeners are invoked in order, then awaited together
//
// Once listeners remove themselves before their first invocation, and emitting
// "error" without listeners fails with the emitted error.
//
// Basic usage:
//
//	e := asyncevents.New()
//	e.On("user.created", asyncevents.AsyncFunc(sendMail))
//	e.On("user.created", asyncevents.SyncFunc(audit))
//	ok, err := e.Emit(ctx, "user.created", user)            // one after another
//	ok, err = e.Emit(ctx, asyncevents.Parallel("user.created"), user) // overlapping
package asyncevents

import (
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"
)

// Emitter dispatches emitted events to the listeners stored in its Registry
type Emitter struct {
	registry  Registry
	ids       IDGenerator
	log       zerolog.Logger
	observers EventBus.Bus

	observersMu sync.Mutex
	observed    map[string][]observer
	subscribed  map[string]bool

	wg       sync.WaitGroup
	errorsMu sync.Mutex
	errors   []error
}

// New creates a new Emitter
func New(opts ...Option) *Emitter {
	e := &Emitter{
		registry:   NewMemoryRegistry(),
		ids:        uuidGenerator{},
		log:        zerolog.Nop(),
		observers:  EventBus.New(),
		observed:   make(map[string][]observer),
		subscribed: make(map[string]bool),
		errors:     make([]error, 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// On appends a listener for key and returns its id
func (e *Emitter) On(key string, l Listener) string {
	return e.add(key, l, false, false)
}

// AddListener is an alias for On
func (e *Emitter) AddListener(key string, l Listener) string {
	return e.On(key, l)
}

// PrependListener registers a listener in front of the existing ones for key
func (e *Emitter) PrependListener(key string, l Listener) string {
	return e.add(key, l, true, false)
}

// Once appends a listener that is removed before it first runs
func (e *Emitter) Once(key string, l Listener) string {
	return e.add(key, l, false, true)
}

// PrependOnceListener registers a once listener in front of the existing ones
func (e *Emitter) PrependOnceListener(key string, l Listener) string {
	return e.add(key, l, true, true)
}

// Off removes the listener with the given id and reports whether it was registered
func (e *Emitter) Off(key string, id string) bool {
	removed := e.registry.Remove(key, id)
	if removed {
		e.log.Debug().Str("key", key).Str("listener", id).Msg("listener removed")
	}
	return removed
}

// RemoveListener is an alias for Off
func (e *Emitter) RemoveListener(key string, id string) bool {
	return e.Off(key, id)
}

// RemoveAllListeners removes every listener for key and returns how many were removed
func (e *Emitter) RemoveAllListeners(key string) int {
	if r, ok := e.registry.(interface{ RemoveAll(string) int }); ok {
		return r.RemoveAll(key)
	}
	n := 0
	for _, entry := range e.registry.Listeners(key) {
		if e.registry.Remove(key, entry.ID) {
			n++
		}
	}
	return n
}

// ListenerCount returns the number of listeners registered for key
func (e *Emitter) ListenerCount(key string) int {
	return len(e.registry.Listeners(key))
}

// RegisterHandler registers one or more typed handlers and returns their ids.
// If a handler implements HandlerWithOptions, its options select async execution,
// once semantics and prepending. Otherwise it is appended and runs synchronously.
func (e *Emitter) RegisterHandler(handlers ...Handler) []string {
	ids := make([]string, 0, len(handlers))
	for _, h := range handlers {
		var opts HandlerOptions
		if withOpts, ok := h.(HandlerWithOptions); ok {
			opts = withOpts.Options()
		}
		ids = append(ids, e.add(h.EventName(), handlerListener(h, opts.Async), opts.Prepend, opts.Once))
	}
	return ids
}

func (e *Emitter) add(key string, l Listener, prepend, once bool) string {
	id := e.ids.New()
	if once {
		l = wrapOnce(e.registry, key, id, l, e.log)
	}
	e.registry.Add(key, Entry{ID: id, Listener: l, Once: once}, prepend)

	e.log.Debug().
		Str("key", key).
		Str("listener", id).
		Bool("prepend", prepend).
		Bool("once", once).
		Msg("listener added")
	return id
}

// Wait blocks until all background emissions and observer deliveries have completed
func (e *Emitter) Wait() {
	e.wg.Wait()
	e.observers.WaitAsync()
}

// Errors returns the failures of background emissions.
// This method is thread-safe
func (e *Emitter) Errors() []error {
	e.errorsMu.Lock()
	defer e.errorsMu.Unlock()

	errorsCopy := make([]error, len(e.errors))
	copy(errorsCopy, e.errors)
	return errorsCopy
}

// ClearErrors clears all recorded errors
func (e *Emitter) ClearErrors() {
	e.errorsMu.Lock()
	defer e.errorsMu.Unlock()
	e.errors = make([]error, 0)
}

func (e *Emitter) recordError(err error) {
	e.errorsMu.Lock()
	defer e.errorsMu.Unlock()
	e.errors = append(e.errors, err)
}
