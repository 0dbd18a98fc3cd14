package pubsub

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// attrPrefix marks metadata entries that are copied onto spans.
	attrPrefix = "walletchat."

	// maxAttrLen bounds a single attribute value in bytes.
	maxAttrLen = 256
)

// eventSpan starts a span for one bus message. The span carries the topic,
// the room and whatever the event payload reported through Traced; the
// payload itself never enters the trace.
func eventSpan(ctx context.Context, tracer trace.Tracer, operation, topic string, msg *message.Message) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []attribute.KeyValue{
		attribute.String("messaging.system", "watermill"),
		attribute.String("messaging.operation", operation),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.message_id", msg.UUID),
		attribute.String(attrPrefix+"event", topic),
	}
	if room := msg.Metadata.Get(metaKeyRoom); room != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"room", room))
	}

	keys := make([]string, 0, len(msg.Metadata))
	for k := range msg.Metadata {
		if strings.HasPrefix(k, attrPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, clip(msg.Metadata[k], maxAttrLen)))
	}

	return tracer.Start(ctx, topic+" "+operation, trace.WithAttributes(attrs...))
}

// TracingMiddleware wraps a handler so each delivered event gets a span.
func TracingMiddleware(tracer trace.Tracer) func(message.HandlerFunc) message.HandlerFunc {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := eventSpan(msg.Context(), tracer, "process", msg.Metadata.Get(metaKeyTopic), msg)
			defer span.End()

			msg.SetContext(ctx)
			produced, err := h(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, clip(err.Error(), maxAttrLen))
			}
			return produced, err
		}
	}
}

// tracingPublisher records a publish span per message. With a blocking
// bus the span covers delivery to every subscriber.
type tracingPublisher struct {
	message.Publisher
	tracer trace.Tracer
}

// NewPublisherTracingMiddleware wraps publisher with tracing.
func NewPublisherTracingMiddleware(publisher message.Publisher, tracer trace.Tracer) message.Publisher {
	return &tracingPublisher{Publisher: publisher, tracer: tracer}
}

func (p *tracingPublisher) Publish(topic string, messages ...*message.Message) error {
	spans := make([]trace.Span, 0, len(messages))
	for _, msg := range messages {
		ctx, span := eventSpan(msg.Context(), p.tracer, "publish", topic, msg)
		msg.SetContext(ctx)
		spans = append(spans, span)
	}

	err := p.Publisher.Publish(topic, messages...)
	for _, span := range spans {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, clip(err.Error(), maxAttrLen))
		}
		span.End()
	}
	return err
}

// clip shortens s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := 0
	for n < len(s) {
		_, size := utf8.DecodeRuneInString(s[n:])
		if n+size > max {
			break
		}
		n += size
	}
	return s[:n]
}
