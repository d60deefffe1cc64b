// Package chat abstracts the chat platform live-feed messages are posted to.
package chat

import (
	"context"
	"errors"
)

// ErrMessageGone is returned when a message no longer exists on the platform.
var ErrMessageGone = errors.New("message gone")

// Action is an interactive button attached to a message.
type Action struct {
	Label string
	Data  string
}

// Content is a rendered live-feed message.
type Content struct {
	Text    string
	Actions []Action
}

// Platform posts and maintains messages in channels.
type Platform interface {
	// Send posts c and returns the platform's message id.
	Send(ctx context.Context, channelID int64, c Content) (int64, error)

	// Edit replaces the content of a posted message.
	Edit(ctx context.Context, channelID, messageID int64, c Content) error

	// Delete removes a posted message.
	Delete(ctx context.Context, channelID, messageID int64) error

	// MessageURL returns a link that jumps to the message.
	MessageURL(channelID, messageID int64) string

	// IsVisibleMember reports whether the user is a member of the channel
	// and can read it.
	IsVisibleMember(ctx context.Context, channelID, userID int64) (bool, error)

	// MaxLength is the longest message text the platform accepts.
	MaxLength() int
}
