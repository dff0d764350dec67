package asyncevents

import (
	"github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"
)

// Option configures an Emitter.
type Option func(*Emitter)

// WithRegistry sets the registry that stores listeners.
// The default is a fresh MemoryRegistry.
func WithRegistry(r Registry) Option {
	return func(e *Emitter) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Emitter) {
		e.log = l
	}
}

// WithIDGenerator sets the source of listener ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Emitter) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithObserverBus sets the bus observers are subscribed on, which lets
// several emitters share one set of observers.
func WithObserverBus(bus EventBus.Bus) Option {
	return func(e *Emitter) {
		if bus != nil {
			e.observers = bus
		}
	}
}
