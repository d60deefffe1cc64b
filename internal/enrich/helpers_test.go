package enrich

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/travelrelay/internal/store"
	"github.com/roach88/travelrelay/internal/testutil"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateUser(context.Background(), store.User{ID: 1, TokenStatus: "s", TokenWebhook: "w", Timezone: "Europe/Vienna"}))
	return s
}

// storeTrip upserts the built status for user 1 and returns its journey id.
func storeTrip(t *testing.T, s *store.Store, b *testutil.StatusBuilder) string {
	t.Helper()
	id, err := s.UpsertTrip(context.Background(), 1, b.JSON())
	require.NoError(t, err)
	return id
}

func loadTrip(t *testing.T, s *store.Store, journeyID string) *store.Trip {
	t.Helper()
	trip, err := s.GetTrip(context.Background(), 1, journeyID)
	require.NoError(t, err)
	return trip
}

// fakeTimetable serves canned stationboards and trips.
type fakeTimetable struct {
	mu       sync.Mutex
	boards   map[string]Stationboard
	trips    map[string]TripDetail
	stations map[string]int64
	err      error
	calls    int
}

func newFakeTimetable() *fakeTimetable {
	return &fakeTimetable{
		boards:   map[string]Stationboard{},
		trips:    map[string]TripDetail{},
		stations: map[string]int64{},
	}
}

func (f *fakeTimetable) board(backend string, eva int64, deps ...Departure) {
	f.boards[fmt.Sprintf("%s/%d", backend, eva)] = Stationboard{Trains: deps}
}

func (f *fakeTimetable) trip(backend string, td TripDetail) {
	if td.Raw == nil {
		td.Raw = map[string]any{"id": td.ID, "operator": td.Operator}
	}
	f.trips[backend+"/"+td.ID] = td
}

func (f *fakeTimetable) Stationboard(_ context.Context, backend string, eva, _ int64) (Stationboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Stationboard{}, f.err
	}
	sb, ok := f.boards[fmt.Sprintf("%s/%d", backend, eva)]
	if !ok {
		return Stationboard{}, ErrUnknownStation
	}
	return sb, nil
}

func (f *fakeTimetable) Trip(_ context.Context, backend, id string) (TripDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	td, ok := f.trips[backend+"/"+id]
	if !ok {
		return TripDetail{}, ErrNotFound
	}
	raw := make(map[string]any, len(td.Raw))
	for k, v := range td.Raw {
		raw[k] = v
	}
	td.Raw = raw
	return td, nil
}

func (f *fakeTimetable) FindStation(_ context.Context, _ string, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	eva, ok := f.stations[name]
	if !ok {
		return 0, ErrNotFound
	}
	return eva, nil
}

func (f *fakeTimetable) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingStrategy returns a strategy answering with res and err and
// counting its fetches.
func countingStrategy(name string, res Result, err error, calls *int) Strategy {
	return Strategy{
		Name:    name,
		Applies: func(*Context) bool { return true },
		Fetch: func(context.Context, *Context) (Result, error) {
			*calls++
			return res, err
		},
	}
}
