package asyncevents

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// wrapOnce returns a listener that removes entry id from key before calling l.
// Only the first call reaches l; later calls, including ones racing the removal,
// return immediately without a result.
func wrapOnce(r Registry, key, id string, l Listener, log zerolog.Logger) Listener {
	var fired atomic.Bool
	return func(ctx context.Context, e *Emitter, args ...any) (*Future, error) {
		if !fired.CompareAndSwap(false, true) {
			return nil, nil
		}
		r.Remove(key, id)
		log.Debug().Str("key", key).Str("listener", id).Msg("once listener fired")
		return l(ctx, e, args...)
	}
}
