package asyncevents

import "context"

// Listener is called with the emitter it is registered on and the emitted arguments.
//
// A non-nil error is a synchronous failure. A nil *Future means the listener already
// finished; a non-nil *Future is a completion the emitter awaits.
type Listener func(ctx context.Context, e *Emitter, args ...any) (*Future, error)

// Handler is a typed listener that knows which event it handles.
// By default, handlers run synchronously
type Handler interface {
	EventName() string
	HandleEvent(ctx context.Context, e *Emitter, args ...any) error
}

// HandlerOptions configures how a handler is registered
type HandlerOptions struct {
	// Async runs HandleEvent on its own goroutine and lets the emitter await it
	Async bool
	// Once removes the handler before its first invocation
	Once bool
	// Prepend registers the handler in front of the existing ones
	Prepend bool
}

// HandlerWithOptions represents a handler with custom registration options
type HandlerWithOptions interface {
	Handler
	Options() HandlerOptions
}

// SyncFunc adapts a plain function into a Listener that completes before returning.
func SyncFunc(fn func(ctx context.Context, e *Emitter, args ...any) error) Listener {
	return func(ctx context.Context, e *Emitter, args ...any) (*Future, error) {
		return nil, fn(ctx, e, args...)
	}
}

// AsyncFunc adapts a function into a Listener whose body runs on its own goroutine.
// The emitter awaits the returned Future.
func AsyncFunc(fn func(ctx context.Context, e *Emitter, args ...any) error) Listener {
	return func(ctx context.Context, e *Emitter, args ...any) (*Future, error) {
		return Go(ctx, func(ctx context.Context) error {
			return fn(ctx, e, args...)
		}), nil
	}
}

func handlerListener(h Handler, async bool) Listener {
	if async {
		return AsyncFunc(h.HandleEvent)
	}
	return SyncFunc(h.HandleEvent)
}
