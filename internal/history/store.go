// Package history persists each room's rolling message log.
//
// Logs are keyed by room address, so two registry entries that share an
// address share history. Every load and append re-applies the retention
// filter, which keeps the log bounded without a background sweep.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/storage"
	"github.com/samber/lo"
)

// DefaultRetention is how long a message stays in local history.
const DefaultRetention = 24 * time.Hour

const keyPrefix = "history/"

// Key returns the storage key for an address's log.
func Key(address string) string {
	return keyPrefix + address
}

// Store reads and writes per-address message logs.
type Store struct {
	store     storage.Store
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
	mu        sync.Mutex
}

// Option is a function that configures a Store.
type Option func(*Store)

// WithRetention overrides the retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

// WithClock overrides the clock used to evaluate the retention window.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a history store on top of a key-value backend.
func NewStore(store storage.Store, opts ...Option) *Store {
	s := &Store{
		store:     store,
		retention: DefaultRetention,
		now:       time.Now,
		logger:    slog.Default().With("component", "history"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the retained messages for address in arrival order. When the
// retention filter drops anything, the shortened log is written back
// immediately.
func (s *Store) Load(ctx context.Context, address string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read(ctx, address)
	if err != nil {
		return nil, err
	}

	kept := s.retain(raw)
	if len(kept) < len(raw) {
		s.logger.Debug("Compacting history on load", "address", address, "dropped", len(raw)-len(kept))
		if err := s.write(ctx, address, kept); err != nil {
			return nil, err
		}
	}
	return kept, nil
}

// Append adds msg to the end of address's log, re-applies the retention
// filter and persists the result.
func (s *Store) Append(ctx context.Context, address string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read(ctx, address)
	if err != nil {
		return err
	}
	return s.write(ctx, address, s.retain(append(raw, msg)))
}

// Clear forgets address's log entirely.
func (s *Store) Clear(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, Key(address)); err != nil {
		return fmt.Errorf("failed to clear history for %s: %w", address, err)
	}
	return nil
}

// retain keeps the messages strictly newer than now minus the retention window.
func (s *Store) retain(msgs []domain.Message) []domain.Message {
	cutoff := s.now().Add(-s.retention).UnixMilli()
	return lo.Filter(msgs, func(m domain.Message, _ int) bool {
		return m.Timestamp > cutoff
	})
}

func (s *Store) read(ctx context.Context, address string) ([]domain.Message, error) {
	msgs, err := storage.GetJSON[[]domain.Message](ctx, s.store, Key(address))
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", address, err)
	}
	return msgs, nil
}

func (s *Store) write(ctx context.Context, address string, msgs []domain.Message) error {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	if err := storage.SetJSON(ctx, s.store, Key(address), msgs); err != nil {
		return fmt.Errorf("failed to persist history for %s: %w", address, err)
	}
	return nil
}
