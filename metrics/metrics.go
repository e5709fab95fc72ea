// Package metrics exposes the engine's execution events as prometheus
// series.
package metrics

import (
	"context"

	eventbus "github.com/TimothyKlim/fetch/eventbus"
	events "github.com/TimothyKlim/fetch/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds the registered series.
type Collectors struct {
	Executions     *prometheus.CounterVec
	Rounds         *prometheus.CounterVec
	CacheHits      prometheus.Counter
	Fetched        *prometheus.CounterVec
	BatchSize      *prometheus.HistogramVec
	RoundDuration  prometheus.Histogram
	SourceDuration *prometheus.HistogramVec
}

// Register creates the collectors on reg and subscribes them to the global
// eventbus. The returned function detaches the subscriptions; collectors
// stay registered.
func Register(reg prometheus.Registerer) (*Collectors, func()) {
	f := promauto.With(reg)
	c := &Collectors{
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_executions_total",
			Help: "Completed executions by status.",
		}, []string{"status"}),
		Rounds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_rounds_total",
			Help: "Completed rounds by kind and cache servicing.",
		}, []string{"kind", "cached"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "fetch_cache_hits_total",
			Help: "Identities served from the cache.",
		}),
		Fetched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_identities_fetched_total",
			Help: "Identities requested from data sources.",
		}, []string{"source"}),
		BatchSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fetch_batch_size",
			Help:    "Identity count per source call.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"source"}),
		RoundDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fetch_round_duration_seconds",
			Help:    "Wall-clock duration of rounds.",
			Buckets: prometheus.DefBuckets,
		}),
		SourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fetch_source_duration_seconds",
			Help:    "Wall-clock duration of source calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
	}

	var unsubs []func()
	unsubs = append(unsubs, eventbus.Subscribe(func(_ context.Context, e events.ExecFinish) {
		status := "ok"
		if e.Err != nil {
			status = "error"
		}
		c.Executions.WithLabelValues(status).Inc()
	}))
	unsubs = append(unsubs, eventbus.Subscribe(func(_ context.Context, e events.RoundFinish) {
		c.RoundDuration.Observe(e.Duration.Seconds())
		if e.Err != nil {
			return
		}
		cached := "false"
		if e.Cached {
			cached = "true"
		}
		c.Rounds.WithLabelValues(e.Kind, cached).Inc()
		c.CacheHits.Add(float64(e.CacheHits))
	}))
	unsubs = append(unsubs, eventbus.Subscribe(func(_ context.Context, e events.SourceFetchFinish) {
		if e.Err == nil {
			c.Fetched.WithLabelValues(e.Source).Add(float64(e.Identities))
		}
		c.BatchSize.WithLabelValues(e.Source).Observe(float64(e.Identities))
		c.SourceDuration.WithLabelValues(e.Source).Observe(e.Duration.Seconds())
	}))

	return c, func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
