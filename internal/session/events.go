package session

import (
	"context"
	"strconv"

	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/pubsub"
)

// StateChanged reports a transport state change of the active room.
type StateChanged struct {
	RoomID string `json:"roomID"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

// MessageReceived carries a message that entered the active room's log.
type MessageReceived struct {
	RoomID  string         `json:"roomID"`
	Message domain.Message `json:"message"`
}

// NoticeLevel grades a Notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient user-facing message that never enters history.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// RoomsChanged carries the full room list after any registry mutation.
type RoomsChanged struct {
	Rooms []domain.Room `json:"rooms"`
}

// TraceAttributes implements pubsub.Traced.
func (e StateChanged) TraceAttributes() map[string]string {
	attrs := map[string]string{"room_id": e.RoomID, "link_state": e.State}
	if e.Error != "" {
		attrs["error"] = e.Error
	}
	return attrs
}

// TraceAttributes implements pubsub.Traced. The text stays out of traces.
func (e MessageReceived) TraceAttributes() map[string]string {
	attrs := map[string]string{"room_id": e.RoomID, "message_type": string(e.Message.Type)}
	if e.Message.ID != "" {
		attrs["message_id"] = e.Message.ID
	}
	return attrs
}

// TraceAttributes implements pubsub.Traced.
func (n Notice) TraceAttributes() map[string]string {
	return map[string]string{"notice_level": string(n.Level)}
}

// TraceAttributes implements pubsub.Traced.
func (e RoomsChanged) TraceAttributes() map[string]string {
	return map[string]string{"room_count": strconv.Itoa(len(e.Rooms))}
}

var (
	StateEvent   = pubsub.NewEvent[StateChanged]("session.state", "Transport state of the active room changed")
	MessageEvent = pubsub.NewEvent[MessageReceived]("session.message", "A message was delivered to the active room")
	NoticeEvent  = pubsub.NewEvent[Notice]("session.notice", "A transient notice for the user")
	RoomsEvent   = pubsub.NewEvent[RoomsChanged]("session.rooms", "The room list changed")
)

// outbox collects events while the controller lock is held so they can be
// published after it is released.
type outbox []func(ctx context.Context, p pubsub.Publisher) error

func queue[T any](o *outbox, event pubsub.Event[T], room string, payload T) {
	*o = append(*o, func(ctx context.Context, p pubsub.Publisher) error {
		return pubsub.Publish(ctx, p, event, room, payload)
	})
}
