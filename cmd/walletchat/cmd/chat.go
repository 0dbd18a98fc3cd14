package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/walletchat/internal/config"
	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/pubsub"
	"github.com/nfrund/walletchat/internal/rooms"
	"github.com/nfrund/walletchat/internal/session"
	"github.com/nfrund/walletchat/internal/storage"
)

const chatHelp = `Commands:
  /rooms             list rooms
  /switch <room>     change the active room (id, number or name)
  /create <name>     create a room on the server
  /join <invite> [name]  join a room from an invite URI
  /invite            print the active room's invite URI
  /leave             leave and forget the active room
  /nick <name>       change your name
  /help              show this help
  /quit              exit
Anything else is sent to the active room.`

var chatCmd = &cobra.Command{
	Use:   "chat [room]",
	Short: "Open the interactive chat",
	Long: `Open the interactive chat, optionally entering a room right away.
A room may be given by id, list number or name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		ctrl := application.Controller
		r := newRenderer(cmd.OutOrStdout(), func() string { return ctrl.View().Identity.Username })
		if err := subscribe(ctx, application.Bus, r); err != nil {
			return err
		}

		if application.Config.Storage == config.StorageFile {
			// Pick up rooms joined from another terminal while chatting.
			err := storage.WatchKey(ctx, application.Config.DataDir, rooms.StorageKey, func() {
				if err := ctrl.ReloadRooms(ctx); err != nil {
					slog.Warn("Failed to reload rooms", "error", err)
				}
			})
			if err != nil {
				slog.Warn("Room list will not follow other sessions", "error", err)
			}
		}

		c := &chat{ctrl: ctrl, r: r, out: cmd.OutOrStdout()}
		r.printf("%s\n", systemStyle.Render(fmt.Sprintf("walletchat - you are %s. Type /help for commands.", ctrl.View().Identity.Username)))
		if len(args) == 1 {
			c.switchRoom(ctx, args[0])
		}
		return c.run(ctx, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func subscribe(ctx context.Context, bus pubsub.Subscriber, r *renderer) error {
	if err := pubsub.Subscribe(ctx, bus, session.MessageEvent, func(_ context.Context, _ string, ev session.MessageReceived) error {
		r.message(ev.Message)
		return nil
	}); err != nil {
		return err
	}
	if err := pubsub.Subscribe(ctx, bus, session.NoticeEvent, func(_ context.Context, _ string, n session.Notice) error {
		r.notice(n)
		return nil
	}); err != nil {
		return err
	}
	return pubsub.Subscribe(ctx, bus, session.StateEvent, func(_ context.Context, _ string, ev session.StateChanged) error {
		r.state(ev)
		return nil
	})
}

// chat is the interactive loop's command dispatcher.
type chat struct {
	ctrl *session.Controller
	r    *renderer
	out  io.Writer
}

func (c *chat) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the loop should end.
func (c *chat) handle(ctx context.Context, line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, line)
		return false
	}

	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "/quit", "/exit":
		return true
	case "/help":
		c.r.printf("%s\n", chatHelp)
	case "/rooms":
		c.r.mu.Lock()
		printRooms(c.out, c.ctrl.View().Rooms)
		c.r.mu.Unlock()
	case "/switch":
		c.switchRoom(ctx, arg)
	case "/create":
		room, err := c.ctrl.CreateRoom(ctx, arg)
		if c.report(err) {
			c.r.printf("Created %q. Invite: %s\n", room.Name, room.InviteURI())
		}
	case "/join":
		invite, name, _ := strings.Cut(arg, " ")
		room, err := c.ctrl.JoinInvite(ctx, strings.TrimSpace(name), invite)
		if c.report(err) {
			c.r.printf("Joined %q\n", room.Name)
			c.r.history(c.ctrl.View().Messages)
		}
	case "/invite":
		if v := c.ctrl.View(); v.ActiveRoom != nil {
			c.r.printf("%s\n", v.ActiveRoom.InviteURI())
		} else {
			c.report(domain.ErrNoActiveRoom)
		}
	case "/leave":
		if c.report(c.ctrl.LeaveActiveRoom(ctx)) {
			c.r.printf("Left the room. Its history stays on this device.\n")
		}
	case "/nick":
		name, _, err := c.ctrl.RenameIdentity(ctx, arg)
		if c.report(err) {
			c.r.printf("You are now %s\n", name)
		}
	default:
		c.r.printf("Unknown command %s. Type /help for commands.\n", command)
	}
	return false
}

func (c *chat) send(ctx context.Context, text string) {
	_, err := c.ctrl.SubmitMessage(ctx, text, time.Now())
	if errors.Is(err, domain.ErrRateLimited) {
		// Already reported through a notice.
		return
	}
	c.report(err)
}

func (c *chat) switchRoom(ctx context.Context, ref string) {
	room, err := findRoom(c.ctrl.View().Rooms, ref)
	if !c.report(err) {
		return
	}
	if !c.report(c.ctrl.SetActiveRoom(ctx, room.ID)) {
		return
	}
	c.r.printf("%s\n", peerStyle.Render(fmt.Sprintf("== %s %s ==", room.Icon, room.Name)))
	c.r.history(c.ctrl.View().Messages)
}

// report prints err, if any, and reports whether the operation succeeded.
func (c *chat) report(err error) bool {
	if err == nil {
		return true
	}
	c.r.notice(session.Notice{Level: session.NoticeError, Text: err.Error()})
	return false
}
