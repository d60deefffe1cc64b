package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// User is a registered traveller.
type User struct {
	ID               int64          `db:"id"`
	TokenStatus      string         `db:"token_status"`
	TokenWebhook     string         `db:"token_webhook"`
	TokenTravel      sql.NullString `db:"token_travel"`
	BreakMode        int            `db:"break_mode"`
	Suggestions      string         `db:"suggestions"`
	ShowTrainNumbers bool           `db:"show_train_numbers"`
	Timezone         string         `db:"timezone"`
}

// SuggestionList splits the newline separated suggestions.
func (u User) SuggestionList() []string {
	var out []string
	for _, s := range strings.Split(u.Suggestions, "\n") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

const userColumns = `id, token_status, token_webhook, token_travel, break_mode, suggestions, show_train_numbers, timezone`

// CreateUser registers a user. Registering an existing id fails.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	if u.Timezone == "" {
		u.Timezone = "Europe/Berlin"
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :token_status, :token_webhook, :token_travel, :break_mode, :suggestions, :show_train_numbers, :timezone)
	`, u)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser loads a user by id. Returns ErrNotFound if absent.
func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByWebhookToken loads the user owning an inbound webhook token.
// Returns ErrNotFound if no user owns it.
func (s *Store) GetUserByWebhookToken(ctx context.Context, token string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE token_webhook = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by token: %w", err)
	}
	return u, nil
}

// SetBreakMode stores the user's journey break mode.
func (s *Store) SetBreakMode(ctx context.Context, userID int64, mode int) error {
	return s.updateUser(ctx, "break mode", `UPDATE users SET break_mode = ? WHERE id = ?`, mode, userID)
}

// SetShowTrainNumbers toggles train numbers in rendered journeys.
func (s *Store) SetShowTrainNumbers(ctx context.Context, userID int64, show bool) error {
	return s.updateUser(ctx, "show train numbers", `UPDATE users SET show_train_numbers = ? WHERE id = ?`, show, userID)
}

// SetTimezone stores the IANA zone used to render times.
func (s *Store) SetTimezone(ctx context.Context, userID int64, tz string) error {
	return s.updateUser(ctx, "timezone", `UPDATE users SET timezone = ? WHERE id = ?`, tz, userID)
}

// SetSuggestions replaces the user's station suggestions.
func (s *Store) SetSuggestions(ctx context.Context, userID int64, suggestions []string) error {
	return s.updateUser(ctx, "suggestions", `UPDATE users SET suggestions = ? WHERE id = ?`, strings.Join(suggestions, "\n"), userID)
}

// SetTravelToken stores or clears (empty string) the outbound import token.
func (s *Store) SetTravelToken(ctx context.Context, userID int64, token string) error {
	v := sql.NullString{String: token, Valid: token != ""}
	return s.updateUser(ctx, "travel token", `UPDATE users SET token_travel = ? WHERE id = ?`, v, userID)
}

func (s *Store) updateUser(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set %s: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Subscribe enables the user's live feed in a channel. Idempotent.
func (s *Store) Subscribe(ctx context.Context, userID, channelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, channel_id) VALUES (?, ?)
		ON CONFLICT(user_id, channel_id) DO NOTHING
	`, userID, channelID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Unsubscribe disables the user's live feed in a channel.
func (s *Store) Unsubscribe(ctx context.Context, userID, channelID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_id = ? AND channel_id = ?`, userID, channelID); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// LiveChannels returns the channels receiving the user's live feed.
func (s *Store) LiveChannels(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT channel_id FROM subscriptions WHERE user_id = ? ORDER BY channel_id`, userID); err != nil {
		return nil, fmt.Errorf("live channels: %w", err)
	}
	return ids, nil
}
