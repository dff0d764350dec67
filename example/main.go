package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openframebox/asyncevents"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// --- Handler Examples ---

// WelcomeMailer sends a welcome mail asynchronously
type WelcomeMailer struct {
	out *transcript
}

func (m *WelcomeMailer) EventName() string {
	return "user.created"
}

func (m *WelcomeMailer) HandleEvent(ctx context.Context, e *asyncevents.Emitter, args ...any) error {
	time.Sleep(100 * time.Millisecond)
	m.out.add(fmt.Sprintf("[MAIL] welcome sent to user %v", args[0]))
	return nil
}

// Options makes WelcomeMailer run on its own goroutine
func (m *WelcomeMailer) Options() asyncevents.HandlerOptions {
	return asyncevents.HandlerOptions{Async: true}
}

// AuditTrail records the event synchronously
type AuditTrail struct {
	out *transcript
}

func (a *AuditTrail) EventName() string {
	return "user.created"
}

func (a *AuditTrail) HandleEvent(ctx context.Context, e *asyncevents.Emitter, args ...any) error {
	a.out.add(fmt.Sprintf("[AUDIT] user %v created", args[0]))
	return nil
}

// transcript collects handler output so the demo can show completion order
type transcript struct {
	mu    sync.Mutex
	lines []string
}

func (t *transcript) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
}

func (t *transcript) flush() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines
	t.lines = nil
	return lines
}

type demoFlags struct {
	parallel bool
	fail     string
	users    int
	verbose  bool
}

func main() {
	flags := demoFlags{}

	cmd := &cobra.Command{
		Use:   "example",
		Short: "Emit user.created to a mix of sync, async and once handlers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
		SilenceUsage: true,
	}
	cmd.Flags().BoolVarP(&flags.parallel, "parallel", "p", false, "emit in parallel mode")
	cmd.Flags().StringVar(&flags.fail, "fail", "", "add a failing listener: sync or async")
	cmd.Flags().IntVar(&flags.users, "users", 3, "number of users created concurrently")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log emitter internals")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, flags demoFlags) error {
	level := zerolog.InfoLevel
	if flags.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	out := &transcript{}
	evt := asyncevents.New(asyncevents.WithLogger(logger))

	// - WelcomeMailer executes on its own goroutine (HandlerWithOptions)
	// - AuditTrail executes synchronously
	evt.RegisterHandler(&WelcomeMailer{out: out}, &AuditTrail{out: out})

	// A once listener greets only the first user
	evt.PrependOnceListener("user.created", asyncevents.SyncFunc(func(ctx context.Context, e *asyncevents.Emitter, args ...any) error {
		out.add(fmt.Sprintf("[ONCE] first user is %v", args[0]))
		return nil
	}))

	switch flags.fail {
	case "":
	case "sync":
		evt.On("user.created", asyncevents.SyncFunc(func(context.Context, *asyncevents.Emitter, ...any) error {
			return errors.New("quota exceeded")
		}))
	case "async":
		evt.On("user.created", asyncevents.AsyncFunc(func(context.Context, *asyncevents.Emitter, ...any) error {
			time.Sleep(20 * time.Millisecond)
			return errors.New("crm unavailable")
		}))
	default:
		return fmt.Errorf("unknown --fail value %q", flags.fail)
	}

	unobserve, err := evt.ObserveAll(func(r asyncevents.Record) {
		logger.Info().
			Str("key", r.Key).
			Bool("parallel", r.Parallel).
			Bool("handled", r.Handled).
			Dur("took", r.Duration).
			AnErr("err", r.Err).
			Msg("emit finished")
	})
	if err != nil {
		return err
	}
	defer unobserve()

	key := "user.created"
	if flags.parallel {
		key = asyncevents.Parallel(key)
	}

	// Pattern 1: awaited emit
	fmt.Println("--- Pattern 1: Awaited Emit ---")
	if _, err := evt.Emit(ctx, key, 1); err != nil {
		fmt.Printf("emit failed: %v\n", err)
	}
	fmt.Println(strings.Join(out.flush(), "\n"))

	// Pattern 2: concurrent emits
	fmt.Println("\n--- Pattern 2: Concurrent Emits ---")
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < flags.users; i++ {
		user := i + 2
		g.Go(func() error {
			_, err := evt.Emit(gctx, key, user)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("first failure: %v\n", err)
	}
	fmt.Println(strings.Join(out.flush(), "\n"))

	// Pattern 3: background emit with a handle
	fmt.Println("\n--- Pattern 3: Background Emit ---")
	handle := evt.EmitAsync(ctx, key, 99)
	select {
	case <-handle.Done():
		fmt.Println("finished immediately")
	case <-time.After(50 * time.Millisecond):
		fmt.Println("still running after 50ms...")
	}
	if _, err := handle.Wait(); err != nil {
		fmt.Printf("background emit failed: %v\n", err)
	}
	fmt.Println(strings.Join(out.flush(), "\n"))

	// Pattern 4: unhandled error event
	fmt.Println("\n--- Pattern 4: Unhandled Error Event ---")
	if _, err := evt.Emit(ctx, asyncevents.ErrorEvent, errors.New("disk full")); err != nil {
		fmt.Printf("emit(error) failed as expected: %v\n", err)
	}

	evt.Wait()
	fmt.Printf("\nbackground failures: %d\n", len(evt.Errors()))
	return nil
}
