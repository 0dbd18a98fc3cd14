// Package identity owns the process-wide username.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/storage"
)

// StorageKey is the key the username is persisted under.
const StorageKey = "identity"

// Store loads the identity at start and persists it on every change.
type Store struct {
	store  storage.Store
	logger *slog.Logger

	mu      sync.RWMutex
	current domain.Identity
}

// NewStore creates a store holding the default identity until Load runs.
func NewStore(store storage.Store) *Store {
	return &Store{
		store:   store,
		logger:  slog.Default().With("component", "identity"),
		current: domain.Identity{Username: domain.DefaultIdentity},
	}
}

// Load reads the persisted username. A missing value keeps the default.
func (s *Store) Load(ctx context.Context) error {
	name, err := storage.GetJSON[string](ctx, s.store, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	// Values written by older builds may not be normalised.
	normalized := name
	if !domain.IsNormalizedIdentity(name) {
		normalized, _, err = domain.NormalizeIdentity(name)
		if err != nil {
			s.logger.Warn("Ignoring invalid stored identity", "value", name)
			return nil
		}
	}

	s.mu.Lock()
	s.current = domain.Identity{Username: normalized}
	s.mu.Unlock()
	return nil
}

// Current returns the active identity.
func (s *Store) Current() domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Rename validates, clamps and persists a new username. It returns the
// stored name and whether the request had to be truncated.
func (s *Store) Rename(ctx context.Context, name string) (string, bool, error) {
	normalized, truncated, err := domain.NormalizeIdentity(name)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := storage.SetJSON(ctx, s.store, StorageKey, normalized); err != nil {
		return "", false, fmt.Errorf("failed to persist identity: %w", err)
	}
	s.current = domain.Identity{Username: normalized}
	s.logger.Info("Identity renamed", "username", normalized, "truncated", truncated)
	return normalized, truncated, nil
}
