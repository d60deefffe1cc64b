package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/travelrelay/internal/chat"
)

// ErrChannelDown is returned for every call on a channel marked as failing.
var ErrChannelDown = errors.New("channel down")

// Posted is a message held by MemoryPlatform.
type Posted struct {
	ChannelID int64
	MessageID int64
	Content   chat.Content
}

// MemoryPlatform is an in-memory chat.Platform.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryPlatform struct {
	mu       sync.Mutex
	lastID   int64
	messages map[int64]map[int64]chat.Content
	hidden   map[[2]int64]bool
	failing  map[int64]bool
	Limit    int

	Sends, Edits, Deletes int
}

// NewMemoryPlatform creates an empty platform where every user is a
// visible member of every channel.
func NewMemoryPlatform() *MemoryPlatform {
	return &MemoryPlatform{
		messages: map[int64]map[int64]chat.Content{},
		hidden:   map[[2]int64]bool{},
		failing:  map[int64]bool{},
		Limit:    chat.TelegramMaxLength,
	}
}

// Hide makes the user invisible in a channel.
func (p *MemoryPlatform) Hide(channelID, userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hidden[[2]int64{channelID, userID}] = true
}

// Fail makes every call on the channel return ErrChannelDown.
func (p *MemoryPlatform) Fail(channelID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[channelID] = true
}

// Recover undoes Fail.
func (p *MemoryPlatform) Recover(channelID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failing, channelID)
}

// Send implements chat.Platform.
func (p *MemoryPlatform) Send(ctx context.Context, channelID int64, c chat.Content) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[channelID] {
		return 0, ErrChannelDown
	}
	p.lastID++
	id := p.lastID
	if p.messages[channelID] == nil {
		p.messages[channelID] = map[int64]chat.Content{}
	}
	p.messages[channelID][id] = c
	p.Sends++
	return id, nil
}

// Edit implements chat.Platform.
func (p *MemoryPlatform) Edit(ctx context.Context, channelID, messageID int64, c chat.Content) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[channelID] {
		return ErrChannelDown
	}
	if _, ok := p.messages[channelID][messageID]; !ok {
		return chat.ErrMessageGone
	}
	p.messages[channelID][messageID] = c
	p.Edits++
	return nil
}

// Delete implements chat.Platform.
func (p *MemoryPlatform) Delete(ctx context.Context, channelID, messageID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[channelID] {
		return ErrChannelDown
	}
	if _, ok := p.messages[channelID][messageID]; !ok {
		return chat.ErrMessageGone
	}
	delete(p.messages[channelID], messageID)
	p.Deletes++
	return nil
}

// MessageURL implements chat.Platform.
func (p *MemoryPlatform) MessageURL(channelID, messageID int64) string {
	return fmt.Sprintf("https://chat.example/%d/%d", channelID, messageID)
}

// IsVisibleMember implements chat.Platform.
func (p *MemoryPlatform) IsVisibleMember(ctx context.Context, channelID, userID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[channelID] {
		return false, ErrChannelDown
	}
	return !p.hidden[[2]int64{channelID, userID}], nil
}

// MaxLength implements chat.Platform.
func (p *MemoryPlatform) MaxLength() int {
	return p.Limit
}

// Message returns the content of a posted message.
func (p *MemoryPlatform) Message(channelID, messageID int64) (chat.Content, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.messages[channelID][messageID]
	return c, ok
}

// Count returns the number of live messages in a channel.
func (p *MemoryPlatform) Count(channelID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[channelID])
}
