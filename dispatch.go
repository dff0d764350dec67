package asyncevents

import (
	"context"
	"runtime/debug"
	"time"
)

const (
	// ParallelMarker prefixes a key to emit it in parallel mode
	ParallelMarker = '='

	// ErrorEvent is the key whose emit fails when nobody listens to it
	ErrorEvent = "error"
)

// Parallel returns key marked for parallel emit
func Parallel(key string) string {
	return string(ParallelMarker) + key
}

// dispatch is one emit call: the unmarked key, its mode, and the listener
// snapshot taken when the call started
type dispatch struct {
	key      string
	parallel bool
	entries  []Entry
	started  time.Time
}

// pending is a listener that returned a Future in parallel mode
type pending struct {
	entry  Entry
	future *Future
}

// Emit invokes the listeners of key and waits for all of them to complete.
//
// A key starting with '=' is emitted in parallel mode: every listener is invoked in
// registration order and their futures are awaited together. Otherwise each listener
// is awaited before the next one is invoked.
//
// The boolean reports whether key had listeners. The error is the first listener
// failure wrapped in a *ListenerError, never the listener's error value itself; use
// errors.Is or errors.As to match it. Emitting "error" without listeners fails with
// args[0] itself when it is an error, and with ErrUnhandledError otherwise.
func (e *Emitter) Emit(ctx context.Context, key string, args ...any) (bool, error) {
	d := e.snapshot(key)
	handled, err := e.run(ctx, d, args)
	e.publish(d, args, handled, err)
	return handled, err
}

// EmitAsync is Emit on a background goroutine. The listener snapshot is taken before
// EmitAsync returns, so listeners registered afterwards are not called by this emit.
// Failures are also recorded on the emitter, see Errors.
func (e *Emitter) EmitAsync(ctx context.Context, key string, args ...any) *Emission {
	d := e.snapshot(key)
	em := &Emission{
		key:      d.key,
		parallel: d.parallel,
		done:     make(chan struct{}),
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		handled, err := e.run(ctx, d, args)
		if err != nil {
			e.recordError(err)
		}
		e.publish(d, args, handled, err)
		em.finish(handled, err)
	}()
	return em
}

func parseKey(key string) (string, bool) {
	if len(key) > 0 && key[0] == ParallelMarker {
		return key[1:], true
	}
	return key, false
}

func (e *Emitter) snapshot(key string) *dispatch {
	key, parallel := parseKey(key)
	return &dispatch{
		key:      key,
		parallel: parallel,
		entries:  e.registry.Listeners(key),
		started:  time.Now(),
	}
}

func (e *Emitter) run(ctx context.Context, d *dispatch, args []any) (bool, error) {
	e.log.Debug().
		Str("key", d.key).
		Bool("parallel", d.parallel).
		Int("listeners", len(d.entries)).
		Msg("emit")

	switch {
	case len(d.entries) == 0:
		if d.key == ErrorEvent {
			err := unhandledError(args)
			e.log.Debug().Err(err).Msg("unhandled error event")
			return false, err
		}
		return false, nil
	case d.parallel && len(d.entries) > 1:
		return true, e.runParallel(ctx, d, args)
	default:
		return true, e.runSequential(ctx, d, args)
	}
}

func (e *Emitter) runSequential(ctx context.Context, d *dispatch, args []any) error {
	for _, entry := range d.entries {
		future, err := e.invoke(ctx, entry, args)
		if err == nil && future != nil {
			err = future.Wait(ctx)
		}
		if err != nil {
			return e.fail(d, entry, err)
		}
	}
	return nil
}

func (e *Emitter) runParallel(ctx context.Context, d *dispatch, args []any) error {
	var (
		started []pending
		first   error
	)
	for _, entry := range d.entries {
		future, err := e.invoke(ctx, entry, args)
		if err != nil {
			// a synchronous failure stops scheduling, already started listeners still run out
			first = e.fail(d, entry, err)
			break
		}
		if future != nil {
			started = append(started, pending{entry: entry, future: future})
		}
	}

	for _, p := range started {
		if err := p.future.Wait(ctx); err != nil && first == nil {
			first = e.fail(d, p.entry, err)
		}
	}
	return first
}

// invoke calls a listener, turning a panic into a synchronous failure
func (e *Emitter) invoke(ctx context.Context, entry Entry, args []any) (future *Future, err error) {
	defer func() {
		if r := recover(); r != nil {
			future, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return entry.Listener(ctx, e, args...)
}

func (e *Emitter) fail(d *dispatch, entry Entry, err error) error {
	e.log.Debug().
		Err(err).
		Str("key", d.key).
		Str("listener", entry.ID).
		Bool("parallel", d.parallel).
		Msg("listener failed")
	return &ListenerError{Key: d.key, ListenerID: entry.ID, Err: err}
}
