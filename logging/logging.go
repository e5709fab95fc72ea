// Package logging attaches a zap logger to the engine's eventbus: debug
// lines per source call, info lines per execution.
package logging

import (
	"context"

	eventbus "github.com/TimothyKlim/fetch/eventbus"
	events "github.com/TimothyKlim/fetch/events"

	"go.uber.org/zap"
)

// Attach subscribes log handlers to the global eventbus. The returned
// function detaches them.
func Attach(log *zap.Logger) (detach func()) {
	var unsubs []func()
	unsubs = append(unsubs, eventbus.Subscribe(func(_ context.Context, e events.RoundFinish) {
		fields := []zap.Field{
			zap.Int64("exec", e.ExecID),
			zap.Int("round", e.Round),
			zap.String("kind", e.Kind),
			zap.Bool("cached", e.Cached),
			zap.Int("cache_hits", e.CacheHits),
			zap.Int("fetched", e.Fetched),
			zap.Duration("duration", e.Duration),
		}
		if e.Err != nil {
			log.Warn("round failed", append(fields, zap.Error(e.Err))...)
			return
		}
		log.Debug("round complete", fields...)
	}))
	unsubs = append(unsubs, eventbus.Subscribe(func(_ context.Context, e events.SourceFetchFinish) {
		fields := []zap.Field{
			zap.Int64("exec", e.ExecID),
			zap.Int("round", e.Round),
			zap.String("source", e.Source),
			zap.Int("identities", e.Identities),
			zap.Bool("batch", e.Batch),
			zap.Duration("duration", e.Duration),
		}
		if e.Err != nil {
			log.Warn("source fetch failed", append(fields, zap.Error(e.Err))...)
			return
		}
		log.Debug("source fetch complete", fields...)
	}))
	unsubs = append(unsubs, eventbus.Subscribe(func(_ context.Context, e events.ExecFinish) {
		fields := []zap.Field{
			zap.Int64("exec", e.ExecID),
			zap.Int("rounds", e.Rounds),
			zap.Duration("duration", e.Duration),
		}
		if e.Err != nil {
			log.Error("execution failed", append(fields, zap.Error(e.Err))...)
			return
		}
		log.Info("execution complete", fields...)
	}))
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
