package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageType distinguishes user chat lines from informational lines.
type MessageType string

const (
	MessageTypeChat   MessageType = "chat"
	MessageTypeSystem MessageType = "system"
)

const (
	// MaxMessageLength is the maximum number of runes in an outbound message.
	MaxMessageLength = 500

	// SystemSender is the sender name stamped on system messages.
	SystemSender = "System"
)

// Message is a single chat line exchanged over a room transport.
// ID is a client-generated correlation id; it is empty for messages from
// clients that do not tag their frames.
type Message struct {
	Type      MessageType `json:"type"`
	Text      string      `json:"text"`
	Sender    string      `json:"sender"`
	Timestamp int64       `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// NewChatMessage builds an outbound chat message, validating the text.
func NewChatMessage(text, sender string, at time.Time) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return Message{}, ErrMessageTooLong
	}
	return Message{
		Type:      MessageTypeChat,
		Text:      text,
		Sender:    sender,
		Timestamp: at.UnixMilli(),
	}, nil
}

// NewSystemMessage wraps arbitrary text as an informational message.
func NewSystemMessage(text string, at time.Time) Message {
	return Message{
		Type:      MessageTypeSystem,
		Text:      text,
		Sender:    SystemSender,
		Timestamp: at.UnixMilli(),
	}
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Encode returns the wire form of the message.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeFrame parses an inbound frame. Frames that are not a JSON object
// degrade to a system message carrying the raw text, so nothing the
// server sends is silently dropped. A missing type means chat; any type
// other than chat or system becomes system.
func DecodeFrame(data []byte, at time.Time) Message {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return NewSystemMessage(string(data), at)
	}
	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return NewSystemMessage(string(data), at)
	}
	switch msg.Type {
	case "":
		msg.Type = MessageTypeChat
	case MessageTypeChat, MessageTypeSystem:
	default:
		// Server events such as "join" are shown as informational lines.
		msg.Type = MessageTypeSystem
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = at.UnixMilli()
	}
	if msg.Type == MessageTypeSystem && msg.Sender == "" {
		msg.Sender = SystemSender
	}
	return msg
}
