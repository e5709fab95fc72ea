// Package otel exports execution traces: one span per execution, with child
// spans for every round and every source call, stitched from the events the
// engine publishes on the eventbus.
package otel

import (
	"context"
	"sync"

	eventbus "github.com/TimothyKlim/fetch/eventbus"
	events "github.com/TimothyKlim/fetch/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches the eventbus subscriber.
// If endpoint is empty, no telemetry is configured. The eventbus must be
// installed (eventbus.Use) for events to reach the subscriber.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("fetch")}
	sub.register()

	return tp.Shutdown, nil
}

type roundKey struct {
	exec  int64
	round int
}

type sourceKey struct {
	exec   int64
	round  int
	source string
}

type subscriber struct {
	tracer      trace.Tracer
	execSpans   sync.Map // int64 -> trace.Span
	roundSpans  sync.Map // roundKey -> trace.Span
	sourceSpans sync.Map // sourceKey -> trace.Span
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.ExecStart) {
		_, span := s.tracer.Start(ctx, "fetch.execution")
		s.execSpans.Store(e.ExecID, span)
	})
	eventbus.Subscribe(func(ctx context.Context, e events.ExecFinish) {
		v, ok := s.execSpans.LoadAndDelete(e.ExecID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("fetch.rounds", e.Rounds))
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	})
	eventbus.Subscribe(func(ctx context.Context, e events.RoundStart) {
		parent := context.Background()
		if v, ok := s.execSpans.Load(e.ExecID); ok {
			parent = trace.ContextWithSpan(parent, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "fetch.round")
		span.SetAttributes(
			attribute.Int("fetch.round.index", e.Round),
			attribute.StringSlice("fetch.round.sources", e.Sources),
			attribute.Int("fetch.round.identities", e.Identities),
		)
		s.roundSpans.Store(roundKey{exec: e.ExecID, round: e.Round}, span)
	})
	eventbus.Subscribe(func(ctx context.Context, e events.RoundFinish) {
		v, ok := s.roundSpans.LoadAndDelete(roundKey{exec: e.ExecID, round: e.Round})
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.String("fetch.round.kind", e.Kind),
			attribute.Bool("fetch.round.cached", e.Cached),
			attribute.Int("fetch.round.cache_hits", e.CacheHits),
			attribute.Int("fetch.round.fetched", e.Fetched),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	})
	eventbus.Subscribe(func(ctx context.Context, e events.SourceFetchStart) {
		parent := context.Background()
		if v, ok := s.roundSpans.Load(roundKey{exec: e.ExecID, round: e.Round}); ok {
			parent = trace.ContextWithSpan(parent, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "fetch.source")
		span.SetAttributes(
			attribute.String("fetch.source.name", e.Source),
			attribute.Int("fetch.source.identities", e.Identities),
			attribute.Bool("fetch.source.batch", e.Batch),
		)
		s.sourceSpans.Store(sourceKey{exec: e.ExecID, round: e.Round, source: e.Source}, span)
	})
	eventbus.Subscribe(func(ctx context.Context, e events.SourceFetchFinish) {
		v, ok := s.sourceSpans.LoadAndDelete(sourceKey{exec: e.ExecID, round: e.Round, source: e.Source})
		if !ok {
			return
		}
		span := v.(trace.Span)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	})
}
