package identity

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DefaultsUntilRenamed(t *testing.T) {
	store := NewStore(storage.NewAferoStore(afero.NewMemMapFs(), "/data"))
	require.NoError(t, store.Load(context.Background()))
	assert.Equal(t, domain.DefaultIdentity, store.Current().Username)
}

func TestStore_RenamePersists(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewAferoStore(afero.NewMemMapFs(), "/data")
	store := NewStore(backend)

	name, truncated, err := store.Rename(ctx, "  alice  ")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.False(t, truncated)

	reloaded := NewStore(backend)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, "alice", reloaded.Current().Username)
}

func TestStore_RenameTruncates(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewAferoStore(afero.NewMemMapFs(), "/data"))

	name, truncated, err := store.Rename(ctx, "a-13-character-name")
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "a-13-charact", name)
	assert.Equal(t, domain.MaxIdentityLength, utf8.RuneCountInString(store.Current().Username))

	// Renaming to the clamped value again is stable.
	again, truncated, err := store.Rename(ctx, name)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, name, again)
}

func TestStore_RenameRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewAferoStore(afero.NewMemMapFs(), "/data"))
	_, _, err := store.Rename(ctx, "bob")
	require.NoError(t, err)

	_, _, err = store.Rename(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyIdentity)
	assert.Equal(t, "bob", store.Current().Username, "a rejected rename leaves the identity unchanged")
}

func TestStore_ClampedNameSurvivesReload(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewAferoStore(afero.NewMemMapFs(), "/data")
	store := NewStore(backend)

	name, truncated, err := store.Rename(ctx, "abcdefghijk lmnop")
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "abcdefghijk ", name)

	reloaded := NewStore(backend)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, name, reloaded.Current().Username)
}

func TestStore_LoadNormalizesLegacyValues(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewAferoStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, storage.SetJSON(ctx, backend, StorageKey, "  bob  "))

	store := NewStore(backend)
	require.NoError(t, store.Load(ctx))
	assert.Equal(t, "bob", store.Current().Username)
}
