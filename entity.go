package asyncevents

import (
	"context"
	"runtime/debug"
	"sync"
)

// Future is the deferred completion of a listener.
// It settles exactly once, with nil or an error.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Go runs fn on a new goroutine and returns a Future that settles with its result.
// A panic inside fn settles the Future with a *PanicError.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Future {
	f := newFuture()
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
			f.settle(err)
		}()
		err = fn(ctx)
	}()
	return f
}

// Resolved returns a Future that already succeeded
func Resolved() *Future {
	f := newFuture()
	f.settle(nil)
	return f
}

// Rejected returns a Future that already failed with err
func Rejected(err error) *Future {
	f := newFuture()
	f.settle(err)
	return f
}

// Done returns a channel that closes when the Future settles
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the settled error. It is nil while the Future is pending.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the Future settles or ctx is done.
// A Future that has already settled reports its own result even when ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	default:
	}

	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) settle(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Emission is a handle to an emit running in the background.
// It allows waiting for that specific emit and reading its outcome.
type Emission struct {
	key      string
	parallel bool
	handled  bool
	err      error
	done     chan struct{}
}

// Key returns the emitted key without the mode marker
func (em *Emission) Key() string {
	return em.key
}

// Parallel reports whether the emit ran in parallel mode
func (em *Emission) Parallel() bool {
	return em.parallel
}

// Wait blocks until every listener of this emit has completed.
// It returns whether there were listeners and the failure, if any.
func (em *Emission) Wait() (bool, error) {
	<-em.done
	return em.handled, em.err
}

// Done returns a channel that closes when the emit completes
// Useful for select statements
func (em *Emission) Done() <-chan struct{} {
	return em.done
}

// Err returns the failure of a completed emit; nil while it is still running
func (em *Emission) Err() error {
	select {
	case <-em.done:
		return em.err
	default:
		return nil
	}
}

// finish records the outcome and signals completion
func (em *Emission) finish(handled bool, err error) {
	em.handled = handled
	em.err = err
	close(em.done)
}
