package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// maxLinkAttempts bounds short id generation on collisions.
const maxLinkAttempts = 8

// Link maps a short id to a long URL.
type Link struct {
	ShortID string `db:"short_id"`
	LongURL string `db:"long_url"`
}

// ShortenLink returns the link for longURL, creating one with an id from
// newID if none exists. Colliding ids are regenerated.
func (s *Store) ShortenLink(ctx context.Context, longURL string, newID func() string) (Link, error) {
	if l, err := s.linkByLong(ctx, longURL); err == nil {
		return l, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Link{}, err
	}

	for i := 0; i < maxLinkAttempts; i++ {
		l := Link{ShortID: newID(), LongURL: longURL}
		res, err := s.db.NamedExecContext(ctx, `INSERT OR IGNORE INTO links (short_id, long_url) VALUES (:short_id, :long_url)`, l)
		if err != nil {
			return Link{}, fmt.Errorf("shorten link: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return l, nil
		}
		// Either the id collided or another writer shortened the same URL.
		if existing, err := s.linkByLong(ctx, longURL); err == nil {
			return existing, nil
		}
	}
	return Link{}, fmt.Errorf("shorten link: no free id after %d attempts", maxLinkAttempts)
}

// ResolveLink returns the long URL of a short id. Returns ErrNotFound for
// unknown ids.
func (s *Store) ResolveLink(ctx context.Context, shortID string) (string, error) {
	var long string
	err := s.db.GetContext(ctx, &long, `SELECT long_url FROM links WHERE short_id = ?`, shortID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve link: %w", err)
	}
	return long, nil
}

func (s *Store) linkByLong(ctx context.Context, longURL string) (Link, error) {
	var l Link
	err := s.db.GetContext(ctx, &l, `SELECT short_id, long_url FROM links WHERE long_url = ?`, longURL)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, ErrNotFound
	}
	if err != nil {
		return Link{}, fmt.Errorf("find link: %w", err)
	}
	return l, nil
}
