package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOEBBStations(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	n, err := s.ImportOEBBStations(ctx, []OEBBStation{
		{Name: " Wien Hbf ", EvaNr: 1290401},
		// decomposed "ö"
		{Name: "St. Pölten Hbf", EvaNr: 1130165},
		{Name: "", EvaNr: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	eva, err := s.LookupOEBBStation(ctx, "Wien Hbf")
	require.NoError(t, err)
	assert.Equal(t, int64(1290401), eva)

	eva, err = s.LookupOEBBStation(ctx, "St. Pölten Hbf")
	require.NoError(t, err)
	assert.Equal(t, int64(1130165), eva)

	_, err = s.LookupOEBBStation(ctx, "Graz Hbf")
	assert.ErrorIs(t, err, ErrNotFound)

	// Import replaces the table.
	_, err = s.ImportOEBBStations(ctx, []OEBBStation{{Name: "Graz Hbf", EvaNr: 1}})
	require.NoError(t, err)
	_, err = s.LookupOEBBStation(ctx, "Wien Hbf")
	assert.ErrorIs(t, err, ErrNotFound)
}
