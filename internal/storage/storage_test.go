package storage

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behaviour every Store backend must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("Get missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Set then Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "rooms", []byte(`[1,2,3]`)))

		data, err := store.Get(ctx, "rooms")
		require.NoError(t, err)
		assert.Equal(t, `[1,2,3]`, string(data))
	})

	t.Run("Set overwrites", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "identity", []byte(`"alice"`)))
		require.NoError(t, store.Set(ctx, "identity", []byte(`"bob"`)))

		data, err := store.Get(ctx, "identity")
		require.NoError(t, err)
		assert.Equal(t, `"bob"`, string(data))
	})

	t.Run("keys with slashes", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "history/0xabc", []byte(`[]`)))

		data, err := store.Get(ctx, "history/0xabc")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(data))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "doomed", []byte(`1`)))
		require.NoError(t, store.Delete(ctx, "doomed"))

		_, err := store.Get(ctx, "doomed")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting twice is fine.
		assert.NoError(t, store.Delete(ctx, "doomed"))
	})

	t.Run("JSON helpers", func(t *testing.T) {
		type entry struct {
			Name string `json:"name"`
		}
		require.NoError(t, SetJSON(ctx, store, "entries", []entry{{Name: "a"}, {Name: "b"}}))

		got, err := GetJSON[[]entry](ctx, store, "entries")
		require.NoError(t, err)
		assert.Equal(t, []entry{{Name: "a"}, {Name: "b"}}, got)

		_, err = GetJSON[[]entry](ctx, store, "nothing-here")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("GetJSON with corrupt value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "corrupt", []byte(`{not json`)))

		_, err := GetJSON[[]string](ctx, store, "corrupt")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestAferoStore_Unit(t *testing.T) {
	// This is the core benefit of using afero for testing. No disk I/O is performed.
	memFs := afero.NewMemMapFs()
	store := NewAferoStore(memFs, "/data")
	t.Cleanup(func() { _ = store.Close() })

	storeContract(t, store)

	t.Run("one file per key", func(t *testing.T) {
		exists, err := afero.Exists(memFs, "/data/history%2F0xabc.json")
		require.NoError(t, err)
		assert.True(t, exists, "escaped key file should exist")

		tmpExists, err := afero.Exists(memFs, "/data/rooms.json.tmp")
		require.NoError(t, err)
		assert.False(t, tmpExists, "temporary file should be renamed away")
	})
}

func TestDiskStore(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storeContract(t, store)
}

func TestBadgerStore(t *testing.T) {
	store, err := OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storeContract(t, store)
}
