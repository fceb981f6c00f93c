package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/pkg/mq"
)

var tracer = otel.Tracer("github.com/you/salon-booking/services/booking-service")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Clock is swapped in tests.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// emitter publishes events best-effort: a failed publish is logged and the
// state change it describes stands.
type emitter struct {
	pub mq.EventPublisher
	log *slog.Logger
}

func newEmitter(pub mq.EventPublisher, log *slog.Logger) emitter {
	if pub == nil {
		pub = mq.Nop{}
	}
	return emitter{pub: pub, log: log}
}

func (e emitter) emit(ctx context.Context, key string, data any) {
	if err := e.pub.PublishJSON(context.WithoutCancel(ctx), key, data); err != nil {
		e.log.Warn("[events] publish failed", "key", key, "err", err)
	}
}

// invalidate runs after the store write has committed.
func invalidate(ctx context.Context, c *cache.Client, invs ...cache.Invalidation) {
	var all cache.Invalidation
	for _, inv := range invs {
		all = all.Merge(inv)
	}
	c.Invalidate(ctx, all)
}
