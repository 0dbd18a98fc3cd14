package history

import (
	"context"
	"testing"
	"time"

	"github.com/nfrund/walletchat/internal/domain"
	"github.com/nfrund/walletchat/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock for retention tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, storage.Store, *fakeClock) {
	t.Helper()
	backend := storage.NewAferoStore(afero.NewMemMapFs(), "/data")
	clock := &fakeClock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	return NewStore(backend, WithClock(clock.Now)), backend, clock
}

func chat(text string, at time.Time) domain.Message {
	return domain.Message{Type: domain.MessageTypeChat, Text: text, Sender: "alice", Timestamp: at.UnixMilli()}
}

func TestStore_LoadEmpty(t *testing.T) {
	store, _, _ := newTestStore(t)
	msgs, err := store.Load(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_AppendKeepsArrivalOrder(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)

	// Arrival order wins over timestamp order.
	second := chat("second", clock.Now().Add(-time.Minute))
	first := chat("first", clock.Now())
	require.NoError(t, store.Append(ctx, "0xabc", first))
	require.NoError(t, store.Append(ctx, "0xabc", second))

	msgs, err := store.Load(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{first, second}, msgs)
}

func TestStore_RetentionOnEveryAppend(t *testing.T) {
	ctx := context.Background()
	store, backend, clock := newTestStore(t)

	start := clock.Now()
	for i := 0; i < 30; i++ {
		require.NoError(t, store.Append(ctx, "0xabc", chat("tick", clock.Now())))

		// After each call, everything stored is inside the window.
		stored, err := storage.GetJSON[[]domain.Message](ctx, backend, Key("0xabc"))
		require.NoError(t, err)
		cutoff := clock.Now().Add(-DefaultRetention).UnixMilli()
		for _, m := range stored {
			assert.Greater(t, m.Timestamp, cutoff, "message older than the window survived append %d", i)
		}

		clock.Advance(2 * time.Hour)
	}

	stored, err := storage.GetJSON[[]domain.Message](ctx, backend, Key("0xabc"))
	require.NoError(t, err)
	// Messages are 2h apart, so at most 12 fit in 24h.
	assert.LessOrEqual(t, len(stored), 12)
	assert.Greater(t, stored[0].Timestamp, start.UnixMilli())
}

func TestStore_LoadCompactsEagerly(t *testing.T) {
	ctx := context.Background()
	store, backend, clock := newTestStore(t)

	old := chat("old", clock.Now().Add(-25*time.Hour))
	fresh := chat("fresh", clock.Now().Add(-time.Hour))
	// Seed the backend directly so the stale entry is present in the raw set.
	require.NoError(t, storage.SetJSON(ctx, backend, Key("0xabc"), []domain.Message{old, fresh}))

	msgs, err := store.Load(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{fresh}, msgs)

	raw, err := storage.GetJSON[[]domain.Message](ctx, backend, Key("0xabc"))
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{fresh}, raw, "load should rewrite the filtered set")
}

func TestStore_WindowBoundaryIsExclusive(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)

	exactlyOld := chat("edge", clock.Now().Add(-DefaultRetention))
	justInside := chat("inside", clock.Now().Add(-DefaultRetention+time.Millisecond))
	require.NoError(t, store.Append(ctx, "0xabc", exactlyOld))
	require.NoError(t, store.Append(ctx, "0xabc", justInside))

	msgs, err := store.Load(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{justInside}, msgs)
}

func TestStore_AddressesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)

	require.NoError(t, store.Append(ctx, "0xaaa", chat("for a", clock.Now())))
	require.NoError(t, store.Append(ctx, "0xbbb", chat("for b", clock.Now())))

	a, err := store.Load(ctx, "0xaaa")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, "for a", a[0].Text)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)

	require.NoError(t, store.Append(ctx, "0xabc", chat("bye", clock.Now())))
	require.NoError(t, store.Clear(ctx, "0xabc"))

	msgs, err := store.Load(ctx, "0xabc")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_CustomRetention(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewAferoStore(afero.NewMemMapFs(), "/data")
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewStore(backend, WithClock(clock.Now), WithRetention(time.Minute))

	require.NoError(t, store.Append(ctx, "0xabc", chat("short lived", clock.Now())))
	clock.Advance(2 * time.Minute)

	msgs, err := store.Load(ctx, "0xabc")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
