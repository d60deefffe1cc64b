package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Message is a live-feed post mirroring one trip in one channel.
type Message struct {
	Seq       int64  `db:"id"`
	UserID    int64  `db:"user_id"`
	JourneyID string `db:"journey_id"`
	ChannelID int64  `db:"channel_id"`
	MessageID int64  `db:"message_id"`
}

const messageColumns = `id, user_id, journey_id, channel_id, message_id`

// SaveMessage records the message posted for a trip in a channel,
// replacing any earlier record for the same key.
func (s *Store) SaveMessage(ctx context.Context, m Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, journey_id, channel_id, message_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, journey_id, channel_id) DO UPDATE SET message_id = excluded.message_id
	`, m.UserID, m.JourneyID, m.ChannelID, m.MessageID)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// GetMessage returns the message of a trip in a channel. Returns
// ErrNotFound if none was posted.
func (s *Store) GetMessage(ctx context.Context, userID int64, journeyID string, channelID int64) (*Message, error) {
	var m Message
	err := s.db.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM messages
		WHERE user_id = ? AND journey_id = ? AND channel_id = ?`, userID, journeyID, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

// TripMessages returns every message of a trip across channels.
func (s *Store) TripMessages(ctx context.Context, userID int64, journeyID string) ([]Message, error) {
	var ms []Message
	err := s.db.SelectContext(ctx, &ms, `SELECT `+messageColumns+` FROM messages
		WHERE user_id = ? AND journey_id = ? ORDER BY id`, userID, journeyID)
	if err != nil {
		return nil, fmt.Errorf("trip messages: %w", err)
	}
	return ms, nil
}

// DeleteMessage removes one message record.
func (s *Store) DeleteMessage(ctx context.Context, m Message) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, m.Seq); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
