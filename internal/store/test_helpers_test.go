package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestUser registers a user with a webhook token derived from id.
func createTestUser(t *testing.T, s *Store, id int64) User {
	t.Helper()
	u := User{ID: id, TokenStatus: "status-token", TokenWebhook: "hook-" + string(rune('a'+id))}
	require.NoError(t, s.CreateUser(context.Background(), u))
	got, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	return got
}
