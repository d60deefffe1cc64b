package journey

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
	"github.com/roach88/travelrelay/internal/testutil"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateUser(context.Background(), store.User{ID: 1, TokenStatus: "s", TokenWebhook: "w"}))
	return s
}

func TestEngine_BreakDeletesJourney(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	eng := NewEngine(s)

	id, err := s.UpsertTrip(ctx, 1, testutil.NewStatus("A").JSON())
	require.NoError(t, err)
	require.NoError(t, s.SaveMessage(ctx, store.Message{UserID: 1, JourneyID: id, ChannelID: 7, MessageID: 1}))

	// Next morning from Graz.
	next := testutil.NewStatus("B").From("Graz Hbf", 8100173, 47.0722, 15.4164, testutil.Base+86400).Status()
	user, err := s.GetUser(ctx, 1)
	require.NoError(t, err)

	d, err := eng.Apply(ctx, user, next, status.ReasonCheckin)
	require.NoError(t, err)
	assert.True(t, d.Break)

	trips, err := s.CurrentTrips(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, trips)
	_, err = s.GetMessage(ctx, 1, id, 7)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_ForceGlueConsumed(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	eng := NewEngine(s)

	_, err := s.UpsertTrip(ctx, 1, testutil.NewStatus("A").JSON())
	require.NoError(t, err)
	require.NoError(t, s.SetBreakMode(ctx, 1, int(ForceGlue)))

	next := testutil.NewStatus("B").From("Graz Hbf", 8100173, 47.0722, 15.4164, testutil.Base+86400).Status()
	user, err := s.GetUser(ctx, 1)
	require.NoError(t, err)

	d, err := eng.Apply(ctx, user, next, status.ReasonCheckin)
	require.NoError(t, err)
	assert.False(t, d.Break)

	user, err = s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int(Natural), user.BreakMode)

	trips, err := s.CurrentTrips(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestEngine_Break(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, err := s.UpsertTrip(ctx, 1, testutil.NewStatus("A").JSON())
	require.NoError(t, err)

	require.NoError(t, NewEngine(s).Break(ctx, 1))
	trips, err := s.CurrentTrips(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, trips)
}
