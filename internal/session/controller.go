// Package session orchestrates the active room: it owns which room is
// active, the transport bound to it, the visible message list and the
// outbound send policy.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nfrund/walletchat/internal/api"
	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/history"
	"github.com/nfrund/walletchat/internal/identity"
	"github.com/nfrund/walletchat/internal/pubsub"
	"github.com/nfrund/walletchat/internal/ratelimit"
	"github.com/nfrund/walletchat/internal/rooms"
	"github.com/nfrund/walletchat/internal/transport"
)

// Transport is the part of transport.Manager the controller drives.
type Transport interface {
	Open(room domain.Room, h transport.Handler) uint64
	Send(ctx context.Context, payload []byte) error
	Close()
}

// RoomAPI issues credentials for new rooms.
type RoomAPI interface {
	CreateRoom(ctx context.Context) (api.Credentials, error)
}

// Dependencies holds all the services the Controller requires to operate.
type Dependencies struct {
	Rooms     *rooms.Registry
	History   *history.Store
	Identity  *identity.Store
	Limiter   *ratelimit.Limiter
	Transport Transport
	API       RoomAPI
	Publisher pubsub.Publisher
}

// Option is a function that configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used to stamp inbound frames that carry no
// timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// View is a read-only snapshot of the session for rendering.
type View struct {
	ActiveRoom *domain.Room
	State      transport.State
	LastError  error
	Messages   []domain.Message
	Pending    []domain.Message
	Rooms      []domain.Room
	Identity   domain.Identity
	LastSend   time.Time
}

// Controller is the single owner of session state. Intents and transport
// callbacks are serialised through one mutex; events are published after
// it is released.
type Controller struct {
	rooms     *rooms.Registry
	history   *history.Store
	identity  *identity.Store
	limiter   *ratelimit.Limiter
	transport Transport
	api       RoomAPI
	publisher pubsub.Publisher
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	active   *domain.Room
	link     uint64
	state    transport.State
	lastErr  error
	messages []domain.Message
	pending  []domain.Message
}

// NewController creates a controller. Call Start before anything else.
func NewController(deps Dependencies, opts ...Option) *Controller {
	c := &Controller{
		rooms:     deps.Rooms,
		history:   deps.History,
		identity:  deps.Identity,
		limiter:   deps.Limiter,
		transport: deps.Transport,
		api:       deps.API,
		publisher: deps.Publisher,
		now:       time.Now,
		logger:    slog.Default().With("component", "session"),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start loads the room list and the identity. ctx also bounds the storage
// writes made from transport callbacks.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.rooms.Load(ctx); err != nil {
		return err
	}
	if err := c.identity.Load(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	var out outbox
	queue(&out, RoomsEvent, "", RoomsChanged{Rooms: c.rooms.List()})
	c.flush(ctx, out)
	c.logger.Info("Session started", "rooms", len(c.rooms.List()), "identity", c.identity.Current().Username)
	return nil
}

// SetActiveRoom makes roomID the active room, or clears it when roomID is
// empty. The previous transport is torn down before the new one is opened
// and the visible list is rebuilt from the room's history. Selecting the
// room that is already active only reconnects it if its link has closed.
func (c *Controller) SetActiveRoom(ctx context.Context, roomID string) error {
	var out outbox
	defer func() { c.flush(ctx, out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if roomID == "" {
		c.deactivate(&out)
		return nil
	}

	room, ok := c.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if c.active != nil && c.active.ID == roomID && c.state != transport.StateClosed {
		return nil
	}

	c.deactivate(&out)

	msgs, err := c.history.Load(ctx, room.Address)
	if err != nil {
		c.logger.Error("Failed to load history", "address", room.Address, "error", err)
		queue(&out, NoticeEvent, room.Address, Notice{Level: NoticeError, Text: "Could not load room history"})
		msgs = nil
	}

	c.active = &room
	c.messages = msgs
	c.state = transport.StateConnecting
	c.link = c.transport.Open(room, c)
	c.logger.Info("Room activated", "id", room.ID, "address", room.Address, "link", c.link)
	queue(&out, StateEvent, room.Address, StateChanged{RoomID: room.ID, State: c.state.String()})
	return nil
}

// deactivate closes the transport and resets all transient state. The
// caller holds c.mu.
func (c *Controller) deactivate(out *outbox) {
	if c.active == nil && c.link == 0 {
		return
	}
	c.transport.Close()
	prev := c.active

	c.active = nil
	c.link = 0
	c.state = transport.StateIdle
	c.lastErr = nil
	c.messages = nil
	c.pending = nil
	c.limiter.Reset()

	if prev != nil {
		queue(out, StateEvent, prev.Address, StateChanged{RoomID: prev.ID, State: c.state.String()})
	}
}

// SubmitMessage sends text to the active room under the current identity.
// The message is not added to the visible list or history; it is tracked as
// pending until the server delivers it back.
func (c *Controller) SubmitMessage(ctx context.Context, text string, now time.Time) (domain.Message, error) {
	msg, err := domain.NewChatMessage(text, c.identity.Current().Username, now)
	if err != nil {
		return domain.Message{}, err
	}
	msg.ID = uuid.NewString()

	var out outbox
	defer func() { c.flush(ctx, out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return domain.Message{}, domain.ErrNoActiveRoom
	}
	if c.state != transport.StateOpen {
		return domain.Message{}, domain.ErrNotConnected
	}
	if !c.limiter.TryConsume(now) {
		wait := c.limiter.Interval()
		if last, ok := c.limiter.Last(); ok {
			wait -= now.Sub(last)
		}
		queue(&out, NoticeEvent, c.active.Address, Notice{
			Level: NoticeWarning,
			Text:  fmt.Sprintf("Slow down: wait %s before sending again", wait.Round(100*time.Millisecond)),
		})
		return domain.Message{}, domain.ErrRateLimited
	}

	payload, err := msg.Encode()
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}
	if err := c.transport.Send(ctx, payload); err != nil {
		return domain.Message{}, err
	}
	c.pending = append(c.pending, msg)
	c.logger.Debug("Message sent", "address", c.active.Address, "id", msg.ID)
	return msg, nil
}

// HandleState implements transport.Handler.
func (c *Controller) HandleState(link uint64, state transport.State, err error) {
	var out outbox
	c.mu.Lock()
	ctx := c.ctx
	if link != c.link || c.active == nil {
		c.mu.Unlock()
		return
	}
	c.state = state
	ev := StateChanged{RoomID: c.active.ID, State: state.String()}
	if err != nil {
		c.lastErr = err
		ev.Error = err.Error()
		queue(&out, NoticeEvent, c.active.Address, Notice{Level: NoticeError, Text: "Connection lost: " + err.Error()})
	}
	queue(&out, StateEvent, c.active.Address, ev)
	c.mu.Unlock()

	c.flush(ctx, out)
}

// HandleFrame implements transport.Handler. It is the only path by which a
// message enters the visible list and history.
func (c *Controller) HandleFrame(link uint64, data []byte) {
	var out outbox
	c.mu.Lock()
	ctx := c.ctx
	if link != c.link || c.active == nil {
		c.mu.Unlock()
		c.logger.Debug("Dropping frame from replaced link", "link", link)
		return
	}
	c.onInbound(ctx, data, &out)
	c.mu.Unlock()

	c.flush(ctx, out)
}

// onInbound applies one inbound frame to the active room. Frames that are
// not JSON become system messages. The caller holds c.mu and has checked
// the frame belongs to the current link.
func (c *Controller) onInbound(ctx context.Context, data []byte, out *outbox) {
	room := *c.active
	msg := domain.DecodeFrame(data, c.now())

	c.messages = append(c.messages, msg)
	if err := c.history.Append(ctx, room.Address, msg); err != nil {
		c.logger.Error("Failed to persist message", "address", room.Address, "error", err)
		queue(out, NoticeEvent, room.Address, Notice{Level: NoticeError, Text: "Could not save message to history"})
	}
	if msg.ID != "" {
		c.pending = lo.Reject(c.pending, func(p domain.Message, _ int) bool {
			return p.ID == msg.ID
		})
	}
	queue(out, MessageEvent, room.Address, MessageReceived{RoomID: room.ID, Message: msg})
}

// RenameIdentity changes the username. The bool result reports whether the
// name was clamped to the maximum length, in which case a warning notice is
// published too.
func (c *Controller) RenameIdentity(ctx context.Context, name string) (string, bool, error) {
	stored, truncated, err := c.identity.Rename(ctx, name)
	if err != nil {
		return "", false, err
	}
	if truncated {
		var out outbox
		queue(&out, NoticeEvent, "", Notice{
			Level: NoticeWarning,
			Text:  fmt.Sprintf("Name shortened to %d characters: %s", domain.MaxIdentityLength, stored),
		})
		c.flush(ctx, out)
	}
	return stored, truncated, nil
}

// LeaveActiveRoom removes the active room from the registry and closes its
// session. Its history is kept so rejoining the address restores it.
func (c *Controller) LeaveActiveRoom(ctx context.Context) error {
	var out outbox
	defer func() { c.flush(ctx, out) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return domain.ErrNoActiveRoom
	}
	id := c.active.ID
	if err := c.rooms.Remove(ctx, id); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		return err
	}
	c.deactivate(&out)
	queue(&out, RoomsEvent, "", RoomsChanged{Rooms: c.rooms.List()})
	c.logger.Info("Left room", "id", id)
	return nil
}

// RemoveRoom forgets a room by id. Removing the active room is the same as
// LeaveActiveRoom.
func (c *Controller) RemoveRoom(ctx context.Context, id string) error {
	c.mu.Lock()
	isActive := c.active != nil && c.active.ID == id
	c.mu.Unlock()
	if isActive {
		return c.LeaveActiveRoom(ctx)
	}

	if err := c.rooms.Remove(ctx, id); err != nil {
		return err
	}
	var out outbox
	queue(&out, RoomsEvent, "", RoomsChanged{Rooms: c.rooms.List()})
	c.flush(ctx, out)
	return nil
}

// CreateRoom asks the room API for new credentials and registers the room
// under name. The room is not activated. Nothing is stored when the API
// call fails.
func (c *Controller) CreateRoom(ctx context.Context, name string) (domain.Room, error) {
	name, err := domain.NormalizeRoomName(name)
	if err != nil {
		return domain.Room{}, err
	}
	creds, err := c.api.CreateRoom(ctx)
	if err != nil {
		return domain.Room{}, err
	}
	room, err := domain.NewRoom(name, creds.Address, creds.AccessKey)
	if err != nil {
		return domain.Room{}, err
	}
	if err := c.addRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// RegisterRoom stores a room from known credentials without activating it.
// An empty name defaults to domain.DefaultJoinedRoomName.
func (c *Controller) RegisterRoom(ctx context.Context, name, address, accessKey string) (domain.Room, error) {
	if strings.TrimSpace(name) == "" {
		name = domain.DefaultJoinedRoomName
	}
	room, err := domain.NewRoom(name, address, accessKey)
	if err != nil {
		return domain.Room{}, err
	}
	if err := c.addRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// JoinRoom is RegisterRoom followed by making the room active.
func (c *Controller) JoinRoom(ctx context.Context, name, address, accessKey string) (domain.Room, error) {
	room, err := c.RegisterRoom(ctx, name, address, accessKey)
	if err != nil {
		return domain.Room{}, err
	}
	if err := c.SetActiveRoom(ctx, room.ID); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// JoinInvite is JoinRoom with the credentials taken from an invite URI.
func (c *Controller) JoinInvite(ctx context.Context, name, invite string) (domain.Room, error) {
	address, key, err := domain.ParseInviteURI(invite)
	if err != nil {
		return domain.Room{}, err
	}
	return c.JoinRoom(ctx, name, address, key)
}

func (c *Controller) addRoom(ctx context.Context, room domain.Room) error {
	if err := c.rooms.Add(ctx, room); err != nil {
		return err
	}
	var out outbox
	queue(&out, RoomsEvent, "", RoomsChanged{Rooms: c.rooms.List()})
	c.flush(ctx, out)
	return nil
}

// ReloadRooms re-reads the room list from storage, picking up rooms another
// process added or removed. The active session is left alone.
func (c *Controller) ReloadRooms(ctx context.Context) error {
	if err := c.rooms.Load(ctx); err != nil {
		return err
	}
	var out outbox
	queue(&out, RoomsEvent, "", RoomsChanged{Rooms: c.rooms.List()})
	c.flush(ctx, out)
	return nil
}

// View returns a snapshot of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:     c.state,
		LastError: c.lastErr,
		Messages:  append([]domain.Message(nil), c.messages...),
		Pending:   append([]domain.Message(nil), c.pending...),
		Rooms:     c.rooms.List(),
		Identity:  c.identity.Current(),
	}
	if c.active != nil {
		room := *c.active
		v.ActiveRoom = &room
	}
	if last, ok := c.limiter.Last(); ok {
		v.LastSend = last
	}
	return v
}

// Close tears down the transport. The active room is forgotten but stays
// in the registry.
func (c *Controller) Close() {
	var out outbox
	c.mu.Lock()
	ctx := c.ctx
	c.deactivate(&out)
	c.mu.Unlock()
	c.flush(ctx, out)
}

func (c *Controller) flush(ctx context.Context, out outbox) {
	if c.publisher == nil {
		return
	}
	for _, publish := range out {
		if err := publish(ctx, c.publisher); err != nil {
			c.logger.Warn("Failed to publish session event", "error", err)
		}
	}
}
