package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event[T] binds a topic name to its payload type.
type Event[T any] struct {
	topicName   string
	description string
}

// NewEvent creates a typed event.
func NewEvent[T any](name string, description string) Event[T] {
	return Event[T]{topicName: name, description: description}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topicName
}

// Description returns the human readable description of the event.
func (e Event[T]) Description() string {
	return e.description
}

// Traced is implemented by payloads that describe themselves on trace
// spans. Keys get the "walletchat." prefix; values must not carry message
// text.
type Traced interface {
	TraceAttributes() map[string]string
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], room string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := Message{
		Topic:   event.Name(),
		Room:    room,
		Payload: data,
	}
	if traced, ok := any(payload).(Traced); ok {
		msg.Metadata = make(map[string]string)
		for k, v := range traced.TraceAttributes() {
			msg.Metadata[attrPrefix+k] = v
		}
	}
	return p.Publish(ctx, msg)
}

// Subscribe decodes every message on the event's topic into T before
// calling handler.
func Subscribe[T any](ctx context.Context, s Subscriber, event Event[T], handler func(ctx context.Context, room string, payload T) error) error {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decoding %s payload: %w", event.Name(), err)
		}
		return handler(ctx, msg.Room, payload)
	})
}
