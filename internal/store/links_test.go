package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/travelrelay/internal/testutil"
)

func TestShortenLink_DedupByLongURL(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	l1, err := s.ShortenLink(ctx, "https://example.org/a", testutil.FixedIDs("aaaa"))
	require.NoError(t, err)
	assert.Equal(t, "aaaa", l1.ShortID)

	// No id is drawn when the URL is known.
	l2, err := s.ShortenLink(ctx, "https://example.org/a", testutil.FixedIDs())
	require.NoError(t, err)
	assert.Equal(t, l1, l2)
}

func TestShortenLink_RetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.ShortenLink(ctx, "https://example.org/a", testutil.FixedIDs("aaaa"))
	require.NoError(t, err)

	l, err := s.ShortenLink(ctx, "https://example.org/b", testutil.FixedIDs("aaaa", "bbbb"))
	require.NoError(t, err)
	assert.Equal(t, "bbbb", l.ShortID)

	long, err := s.ResolveLink(ctx, "bbbb")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/b", long)
}

func TestResolveLink_Unknown(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ResolveLink(context.Background(), "zzzz")
	assert.ErrorIs(t, err, ErrNotFound)
}
