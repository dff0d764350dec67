package asyncevents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	short  = 10 * time.Millisecond
	long   = 40 * time.Millisecond
	longer = 80 * time.Millisecond
)

var errBang = errors.New("!!!")

// recorder collects listener effects from concurrent goroutines
type recorder struct {
	mu sync.Mutex
	b  strings.Builder
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.b.WriteString(s)
}

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.b.String()
}

func delayed(rec *recorder, delay time.Duration, result string) Listener {
	return AsyncFunc(func(ctx context.Context, e *Emitter, args ...any) error {
		time.Sleep(delay)
		rec.add(result)
		return nil
	})
}

// emitCodes builds an emitter from one-letter listener codes, emits "t" with the
// argument "P" (twice when repeat is set) and returns the recorded effects.
//
//	A/B  append async listener (long/short)   a/b  prepend async listener
//	O/o  once / prepend-once async listener   I    sync listener
//	P    sync listener recording its argument T    sync listener checking the emitter
//	R    listener returning a rejected future X    listener failing synchronously
//	=    emit in parallel mode
func emitCodes(t *testing.T, codes string, repeat bool) (string, error) {
	t.Helper()

	rec := &recorder{}
	e := New()
	key := "t"
	for _, c := range codes {
		switch c {
		case 'A':
			e.AddListener("t", delayed(rec, long, "A"))
		case 'B':
			e.On("t", delayed(rec, short, "B"))
		case 'a':
			e.PrependListener("t", delayed(rec, long, "a"))
		case 'b':
			e.PrependListener("t", delayed(rec, short, "b"))
		case 'I':
			e.On("t", SyncFunc(func(ctx context.Context, _ *Emitter, args ...any) error {
				rec.add("I")
				return nil
			}))
		case 'O':
			e.Once("t", delayed(rec, longer, "O"))
		case 'o':
			e.PrependOnceListener("t", delayed(rec, longer, "o"))
		case 'P':
			e.On("t", SyncFunc(func(ctx context.Context, _ *Emitter, args ...any) error {
				rec.add(args[0].(string))
				return nil
			}))
		case 'R':
			e.On("t", func(ctx context.Context, _ *Emitter, args ...any) (*Future, error) {
				return Rejected(errBang), nil
			})
		case 'T':
			e.On("t", SyncFunc(func(ctx context.Context, target *Emitter, args ...any) error {
				if target == e {
					rec.add("T")
				}
				return nil
			}))
		case 'X':
			e.On("t", func(ctx context.Context, _ *Emitter, args ...any) (*Future, error) {
				return nil, errBang
			})
		case '=':
			key = Parallel("t")
		default:
			t.Fatalf("unknown listener code %q", c)
		}
	}

	ctx := context.Background()
	if _, err := e.Emit(ctx, key, "P"); err != nil {
		return rec.String(), err
	}
	if repeat {
		rec.add(":")
		if _, err := e.Emit(ctx, key, "P"); err != nil {
			return rec.String(), err
		}
	}
	return rec.String(), nil
}

func TestEmit_ReturnValue(t *testing.T) {
	for _, key := range []string{"test", Parallel("test")} {
		key := key
		t.Run(key, func(t *testing.T) {
			ctx := context.Background()

			ok, err := New().Emit(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, "no listeners")

			e := New()
			e.On("test", SyncFunc(func(context.Context, *Emitter, ...any) error { return nil }))
			ok, err = e.Emit(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok, "one listener")

			e.On("test", SyncFunc(func(context.Context, *Emitter, ...any) error { return nil }))
			ok, err = e.Emit(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok, "two listeners")
		})
	}
}

func TestEmit_ErrorEvent(t *testing.T) {
	noop := SyncFunc(func(context.Context, *Emitter, ...any) error { return nil })

	for _, key := range []string{ErrorEvent, Parallel(ErrorEvent)} {
		key := key
		t.Run(key, func(t *testing.T) {
			ctx := context.Background()

			ok, err := New().Emit(ctx, key)
			assert.False(t, ok)
			assert.ErrorIs(t, err, ErrUnhandledError)

			bang := errors.New("bang")
			_, err = New().Emit(ctx, key, bang)
			assert.Same(t, bang, err)

			_, err = New().Emit(ctx, key, "disk full")
			assert.ErrorIs(t, err, ErrUnhandledError)
			assert.Contains(t, err.Error(), "disk full")

			e := New()
			e.On(ErrorEvent, noop)
			ok, err = e.Emit(ctx, key, bang)
			require.NoError(t, err)
			assert.True(t, ok)

			e.On(ErrorEvent, noop)
			ok, err = e.Emit(ctx, key, bang)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestEmit_Sequential(t *testing.T) {
	tests := []struct {
		name   string
		codes  string
		repeat bool
		want   string
	}{
		{"waits for the listener", "A", false, "A"},
		{"waits for the listeners in order", "AB", false, "AB"},
		{"passes the emitter", "T", false, "T"},
		{"passes the arguments", "P", false, "P"},
		{"calls prepended listeners first", "Ab", false, "bA"},
		{"calls once listeners", "AO", false, "AO"},
		{"calls once listeners only once", "AO", true, "AO:A"},
		{"calls prepend-once listeners", "Ao", false, "oA"},
		{"calls prepend-once listeners only once", "Ao", true, "oA:A"},
		{"allows sync listeners", "I", false, "I"},
		{"mixes sync and async in order", "AIB", false, "AIB"},
		{"all of the above", "AIaBOPobI", true, "boaAIBOPI:baAIBPI"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := emitCodes(t, tt.codes, tt.repeat)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmit_Parallel(t *testing.T) {
	tests := []struct {
		name   string
		codes  string
		repeat bool
		want   string
	}{
		{"waits for the listener", "=A", false, "A"},
		{"waits for all listeners, fastest first", "=AB", false, "BA"},
		{"passes the emitter", "=T", false, "T"},
		{"passes the arguments", "=P", false, "P"},
		{"calls once listeners", "=AO", false, "AO"},
		{"calls once listeners only once", "=AO", true, "AO:A"},
		{"calls prepend-once listeners", "=Ao", false, "Ao"},
		{"calls prepend-once listeners only once", "=Ao", true, "Ao:A"},
		{"allows sync listeners", "=I", false, "I"},
		{"sync listeners finish first", "=AIB", false, "IBA"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := emitCodes(t, tt.codes, tt.repeat)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("all of the above", func(t *testing.T) {
		got, err := emitCodes(t, "=AIaBOPobI", true)
		require.NoError(t, err)
		// listeners with equal delays may finish in either order
		assert.Equal(t, "IPIBBAAOO:IPIBBAA", strings.ToUpper(got))
	})
}

func TestEmit_Failures(t *testing.T) {
	tests := []struct {
		name  string
		codes string
		want  string
	}{
		{"sequential rejection stops later listeners", "ARB", "A"},
		{"sequential sync failure stops later listeners", "AXB", "A"},
		{"parallel rejection lets started listeners finish", "=ARB", "BA"},
		{"parallel sync failure stops scheduling", "=AXB", "A"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := emitCodes(t, tt.codes, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, errBang)
			assert.NotSame(t, errBang, err, "failures are wrapped, not returned as is")

			var lerr *ListenerError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, "t", lerr.Key)
			assert.NotEmpty(t, lerr.ListenerID)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmit_ParallelKeepsFirstFailureByInvocationOrder(t *testing.T) {
	errFirst := errors.New("first")
	errSecond := errors.New("second")

	e := New()
	e.On("t", AsyncFunc(func(context.Context, *Emitter, ...any) error {
		time.Sleep(long)
		return errFirst
	}))
	e.On("t", AsyncFunc(func(context.Context, *Emitter, ...any) error {
		time.Sleep(short)
		return errSecond
	}))

	ok, err := e.Emit(context.Background(), Parallel("t"))
	assert.True(t, ok)
	assert.ErrorIs(t, err, errFirst)
	assert.NotErrorIs(t, err, errSecond)
}

func TestEmit_ParallelSyncFailureWinsOverRejection(t *testing.T) {
	errRejected := errors.New("rejected")
	errThrown := errors.New("thrown")

	e := New()
	e.On("t", func(context.Context, *Emitter, ...any) (*Future, error) {
		return Rejected(errRejected), nil
	})
	e.On("t", func(context.Context, *Emitter, ...any) (*Future, error) {
		return nil, errThrown
	})

	_, err := e.Emit(context.Background(), Parallel("t"))
	assert.ErrorIs(t, err, errThrown)
}

func TestEmit_Panics(t *testing.T) {
	for _, key := range []string{"t", Parallel("t")} {
		key := key
		t.Run(key, func(t *testing.T) {
			e := New()
			e.On("t", SyncFunc(func(context.Context, *Emitter, ...any) error {
				panic("sync boom")
			}))
			_, err := e.Emit(context.Background(), key)

			var perr *PanicError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "sync boom", perr.Value)
			assert.NotEmpty(t, perr.Stack)

			e = New()
			e.On("t", AsyncFunc(func(context.Context, *Emitter, ...any) error {
				panic("async boom")
			}))
			_, err = e.Emit(context.Background(), key)
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "async boom", perr.Value)
		})
	}
}

func TestEmit_SnapshotIgnoresMutations(t *testing.T) {
	rec := &recorder{}
	e := New()

	var lateID string
	e.On("t", SyncFunc(func(ctx context.Context, em *Emitter, args ...any) error {
		rec.add("1")
		em.On("t", SyncFunc(func(context.Context, *Emitter, ...any) error {
			rec.add("N")
			return nil
		}))
		em.Off("t", lateID)
		return nil
	}))
	lateID = e.On("t", SyncFunc(func(context.Context, *Emitter, ...any) error {
		rec.add("2")
		return nil
	}))

	_, err := e.Emit(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "12", rec.String(), "removed listener still runs, added one does not")

	_, err = e.Emit(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "121N", rec.String())
}

func TestEmit_OnceUnderConcurrentEmits(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	e := New()
	e.Once("t", SyncFunc(func(context.Context, *Emitter, ...any) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))
	e.On("t", SyncFunc(func(context.Context, *Emitter, ...any) error { return nil }))

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := e.Emit(context.Background(), Parallel("t"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, e.ListenerCount("t"))
}

func TestEmit_ContextCancelUnblocksStalledListener(t *testing.T) {
	for _, key := range []string{"t", Parallel("t")} {
		key := key
		t.Run(key, func(t *testing.T) {
			e := New()
			stalled := newFuture()
			e.On("t", func(context.Context, *Emitter, ...any) (*Future, error) {
				return stalled, nil
			})
			e.On("t", SyncFunc(func(context.Context, *Emitter, ...any) error { return nil }))

			ctx, cancel := context.WithTimeout(context.Background(), short)
			defer cancel()

			_, err := e.Emit(ctx, key)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestEmit_CancelledContextKeepsSettledResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, key := range []string{"t", Parallel("t")} {
		key := key
		t.Run(key, func(t *testing.T) {
			resolved := New()
			resolved.On("t", func(context.Context, *Emitter, ...any) (*Future, error) {
				return Resolved(), nil
			})
			resolved.On("t", func(context.Context, *Emitter, ...any) (*Future, error) {
				return Resolved(), nil
			})

			rejected := New()
			rejected.On("t", func(context.Context, *Emitter, ...any) (*Future, error) {
				return Resolved(), nil
			})
			rejected.On("t", func(context.Context, *Emitter, ...any) (*Future, error) {
				return Rejected(errBang), nil
			})

			for i := 0; i < 200; i++ {
				ok, err := resolved.Emit(ctx, key)
				require.NoError(t, err, "emit %d", i)
				assert.True(t, ok)

				_, err = rejected.Emit(ctx, key)
				require.ErrorIs(t, err, errBang, "emit %d", i)
				require.NotErrorIs(t, err, context.Canceled, "emit %d", i)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in       string
		key      string
		parallel bool
	}{
		{"", "", false},
		{"=", "", true},
		{"t", "t", false},
		{"=t", "t", true},
		{"==t", "=t", true},
		{"t=", "t=", false},
	}
	for _, tt := range tests {
		key, parallel := parseKey(tt.in)
		assert.Equal(t, tt.key, key, tt.in)
		assert.Equal(t, tt.parallel, parallel, tt.in)
	}
}

func BenchmarkSequentialEmit(b *testing.B) {
	e := New()
	for i := 0; i < 4; i++ {
		e.On("bench", SyncFunc(func(context.Context, *Emitter, ...any) error { return nil }))
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Emit(ctx, "bench", i)
	}
}

func BenchmarkParallelEmit(b *testing.B) {
	e := New()
	for i := 0; i < 4; i++ {
		e.On("bench", AsyncFunc(func(context.Context, *Emitter, ...any) error { return nil }))
	}
	ctx := context.Background()
	key := Parallel("bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Emit(ctx, key, i)
	}
}
