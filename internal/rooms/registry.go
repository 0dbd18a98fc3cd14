// Package rooms keeps the durable, ordered list of rooms the user knows.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/storage"
	"github.com/samber/lo"
)

// StorageKey is the key the room list is persisted under.
const StorageKey = "rooms"

// Registry owns the known rooms. Every mutation persists the full set.
type Registry struct {
	store  storage.Store
	logger *slog.Logger

	mu    sync.RWMutex
	rooms []domain.Room
}

// NewRegistry creates an empty registry. Call Load to read persisted rooms.
func NewRegistry(store storage.Store) *Registry {
	return &Registry{
		store:  store,
		logger: slog.Default().With("component", "rooms"),
	}
}

// Load replaces the in-memory list with the persisted one.
// A registry that was never saved loads as empty.
func (r *Registry) Load(ctx context.Context) error {
	rooms, err := storage.GetJSON[[]domain.Room](ctx, r.store, StorageKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to load rooms: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = rooms
	r.logger.Debug("Rooms loaded", "count", len(rooms))
	return nil
}

// Add appends a room and persists the list. Rooms with the same address
// are kept as independent entries.
func (r *Registry) Add(ctx context.Context, room domain.Room) error {
	if err := room.Validate(); err != nil {
		return fmt.Errorf("invalid room: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.indexOf(room.ID); exists {
		return fmt.Errorf("room %s already registered", room.ID)
	}

	next := append(append([]domain.Room(nil), r.rooms...), room)
	if err := r.persist(ctx, next); err != nil {
		return err
	}
	r.rooms = next
	r.logger.Info("Room added", "id", room.ID, "address", room.Address)
	return nil
}

// Remove deletes the room with the given id and persists the list.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.indexOf(id); !exists {
		return domain.ErrRoomNotFound
	}

	next := lo.Reject(r.rooms, func(room domain.Room, _ int) bool {
		return room.ID == id
	})
	if err := r.persist(ctx, next); err != nil {
		return err
	}
	r.rooms = next
	r.logger.Info("Room removed", "id", id)
	return nil
}

// List returns the rooms in insertion order.
func (r *Registry) List() []domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Room(nil), r.rooms...)
}

// Get returns the room with the given id.
func (r *Registry) Get(id string) (domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.indexOf(id); ok {
		return r.rooms[i], true
	}
	return domain.Room{}, false
}

// FindByAddress returns every room registered for address.
func (r *Registry) FindByAddress(address string) []domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.rooms, func(room domain.Room, _ int) bool {
		return room.Address == address
	})
}

func (r *Registry) indexOf(id string) (int, bool) {
	_, i, ok := lo.FindIndexOf(r.rooms, func(room domain.Room) bool {
		return room.ID == id
	})
	return i, ok
}

func (r *Registry) persist(ctx context.Context, rooms []domain.Room) error {
	if rooms == nil {
		rooms = []domain.Room{}
	}
	if err := storage.SetJSON(ctx, r.store, StorageKey, rooms); err != nil {
		return fmt.Errorf("failed to persist rooms: %w", err)
	}
	return nil
}
