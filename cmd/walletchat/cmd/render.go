package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gookit/color"

	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/session"
)

var (
	timeStyle   = color.New(color.FgGray)
	selfStyle   = color.New(color.FgGreen, color.OpBold)
	peerStyle   = color.New(color.FgCyan, color.OpBold)
	systemStyle = color.New(color.FgGray, color.OpItalic)

	noticeStyles = map[session.NoticeLevel]color.Style{
		session.NoticeInfo:    color.New(color.FgBlue),
		session.NoticeWarning: color.New(color.FgYellow),
		session.NoticeError:   color.New(color.FgRed),
	}
)

// renderer serialises everything the chat loop prints.
type renderer struct {
	mu  sync.Mutex
	out io.Writer
	// self returns the current username, used to highlight own messages.
	self func() string
}

func newRenderer(out io.Writer, self func() string) *renderer {
	return &renderer{out: out, self: self}
}

func (r *renderer) message(msg domain.Message) {
	line := formatMessage(msg, r.self())
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, line)
}

func (r *renderer) history(msgs []domain.Message) {
	self := r.self()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		fmt.Fprintln(r.out, formatMessage(msg, self))
	}
}

func (r *renderer) notice(n session.Notice) {
	style, ok := noticeStyles[n.Level]
	if !ok {
		style = noticeStyles[session.NoticeInfo]
	}
	r.printf("%s\n", style.Render("! "+n.Text))
}

func (r *renderer) state(ev session.StateChanged) {
	text := "-- " + ev.State
	if ev.Error != "" {
		text += ": " + ev.Error
	}
	r.printf("%s\n", systemStyle.Render(text))
}

func (r *renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// formatMessage renders one line: "[15:04] sender: text".
func formatMessage(msg domain.Message, self string) string {
	stamp := timeStyle.Render(msg.Time().Local().Format(time.Kitchen))
	if msg.Type == domain.MessageTypeSystem {
		return fmt.Sprintf("%s %s", stamp, systemStyle.Render("* "+msg.Text))
	}
	sender := peerStyle.Render(msg.Sender)
	if msg.Sender == self {
		sender = selfStyle.Render(msg.Sender)
	}
	return fmt.Sprintf("%s %s: %s", stamp, sender, msg.Text)
}
