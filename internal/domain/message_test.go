package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.UnixMilli(1_700_000_000_000)

func TestNewChatMessage(t *testing.T) {
	msg, err := NewChatMessage("hi", "alice", at)
	require.NoError(t, err)
	assert.Equal(t, Message{Type: MessageTypeChat, Text: "hi", Sender: "alice", Timestamp: at.UnixMilli()}, msg)
	assert.Equal(t, at, msg.Time())

	_, err = NewChatMessage(" \n", "alice", at)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = NewChatMessage(strings.Repeat("ü", MaxMessageLength), "alice", at)
	assert.NoError(t, err)

	_, err = NewChatMessage(strings.Repeat("ü", MaxMessageLength+1), "alice", at)
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestMessageEncode(t *testing.T) {
	msg, err := NewChatMessage("hi", "alice", at)
	require.NoError(t, err)

	data, err := msg.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat","text":"hi","sender":"alice","timestamp":1700000000000}`, string(data))
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Message
	}{
		{
			name:  "chat message",
			frame: `{"type":"chat","text":"hi","sender":"bob","timestamp":5,"id":"m1"}`,
			want:  Message{Type: MessageTypeChat, Text: "hi", Sender: "bob", Timestamp: 5, ID: "m1"},
		},
		{
			name:  "missing type and timestamp",
			frame: `{"text":"hi","sender":"bob"}`,
			want:  Message{Type: MessageTypeChat, Text: "hi", Sender: "bob", Timestamp: at.UnixMilli()},
		},
		{
			name:  "system message without sender",
			frame: `{"type":"system","text":"bob joined"}`,
			want:  Message{Type: MessageTypeSystem, Text: "bob joined", Sender: SystemSender, Timestamp: at.UnixMilli()},
		},
		{
			name:  "unknown type becomes system",
			frame: `{"type":"join","text":"bob joined","timestamp":7}`,
			want:  Message{Type: MessageTypeSystem, Text: "bob joined", Sender: SystemSender, Timestamp: 7},
		},
		{
			name:  "unknown type keeps its sender",
			frame: `{"type":"leave","text":"bye","sender":"bob","timestamp":7}`,
			want:  Message{Type: MessageTypeSystem, Text: "bye", Sender: "bob", Timestamp: 7},
		},
		{
			name:  "plain text",
			frame: "welcome to the room",
			want:  Message{Type: MessageTypeSystem, Text: "welcome to the room", Sender: SystemSender, Timestamp: at.UnixMilli()},
		},
		{
			name:  "broken json",
			frame: `{"text":`,
			want:  Message{Type: MessageTypeSystem, Text: `{"text":`, Sender: SystemSender, Timestamp: at.UnixMilli()},
		},
		{
			name:  "json array",
			frame: `[1,2]`,
			want:  Message{Type: MessageTypeSystem, Text: `[1,2]`, Sender: SystemSender, Timestamp: at.UnixMilli()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeFrame([]byte(tt.frame), at))
		})
	}
}
