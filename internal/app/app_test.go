package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/walletchat/internal/config"
	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/storage"
	"github.com/nfrund/walletchat/internal/transport"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestNew_FileStorage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	_, err = a.Controller.JoinRoom(ctx, "Alpha", "0xabc", "key")
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	// A second process over the same data directory sees the room.
	b, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(ctx) })
	require.NoError(t, b.Start(ctx))

	rooms := b.Controller.View().Rooms
	require.Len(t, rooms, 1)
	assert.Equal(t, "0xabc", rooms[0].Address)
}

func TestNew_BadgerStorage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage = config.StorageBadger
	cfg.TransportDriver = config.DriverGorilla

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })
	require.NoError(t, a.Start(ctx))

	name, _, err := a.Controller.RenameIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestNew_Overrides(t *testing.T) {
	ctx := context.Background()

	e := echo.New()
	e.HideBanner = true
	e.POST("/api/contract/create", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"address": "0xnew", "access_key": "k"})
	})
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	store := storage.NewAferoStore(afero.NewMemMapFs(), "/")
	a, err := New(ctx, testConfig(t),
		WithStore(store),
		WithDialer(transport.GorillaDialer{}),
		WithResolver(config.StaticResolver{HTTP: server.URL, WS: "ws://unused"}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })
	require.NoError(t, a.Start(ctx))

	room, err := a.Controller.CreateRoom(ctx, "Fresh")
	require.NoError(t, err)
	assert.Equal(t, "0xnew", room.Address)

	saved, err := storage.GetJSON[[]domain.Room](ctx, store, "rooms")
	require.NoError(t, err)
	assert.Equal(t, []domain.Room{room}, saved)
}
