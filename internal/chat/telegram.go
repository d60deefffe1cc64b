package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bluele/gcache"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramMaxLength is the longest message text Telegram accepts.
const TelegramMaxLength = 4096

// supergroupOffset converts between Bot API chat ids of supergroups and
// the ids used in t.me/c links.
const supergroupOffset = 1000000000000

// BotAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Telegram posts live-feed messages through the Telegram Bot API.
type Telegram struct {
	bot     BotAPI
	members gcache.Cache
}

// NewTelegram wraps a bot client. Membership lookups are cached for
// memberTTL.
func NewTelegram(bot BotAPI, memberTTL time.Duration) *Telegram {
	return &Telegram{
		bot: bot,
		members: gcache.New(1024).
			LRU().
			Expiration(memberTTL).
			Build(),
	}
}

func keyboard(actions []Action) *tgbotapi.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}
	var row []tgbotapi.InlineKeyboardButton
	for _, a := range actions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(row...))
	return &kb
}

// Send implements Platform.
func (t *Telegram) Send(ctx context.Context, channelID int64, c Content) (int64, error) {
	msg := tgbotapi.NewMessage(channelID, c.Text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if kb := keyboard(c.Actions); kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram send: %w", err)
	}
	return int64(sent.MessageID), nil
}

// Edit implements Platform. Removing all actions clears the keyboard.
func (t *Telegram) Edit(ctx context.Context, channelID, messageID int64, c Content) error {
	edit := tgbotapi.NewEditMessageText(channelID, int(messageID), c.Text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.DisableWebPagePreview = true
	if kb := keyboard(c.Actions); kb != nil {
		edit.ReplyMarkup = kb
	} else {
		edit.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	if _, err := t.bot.Request(edit); err != nil {
		return classify("telegram edit", err)
	}
	return nil
}

// Delete implements Platform.
func (t *Telegram) Delete(ctx context.Context, channelID, messageID int64) error {
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(channelID, int(messageID))); err != nil {
		return classify("telegram delete", err)
	}
	return nil
}

func classify(op string, err error) error {
	if strings.Contains(err.Error(), "message to edit not found") ||
		strings.Contains(err.Error(), "message to delete not found") {
		return fmt.Errorf("%s: %w", op, ErrMessageGone)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// MessageURL implements Platform.
func (t *Telegram) MessageURL(channelID, messageID int64) string {
	if channelID < -supergroupOffset {
		return fmt.Sprintf("https://t.me/c/%d/%d", -channelID-supergroupOffset, messageID)
	}
	return fmt.Sprintf("tg://openmessage?chat_id=%d&message_id=%d", channelID, messageID)
}

// IsVisibleMember implements Platform.
func (t *Telegram) IsVisibleMember(ctx context.Context, channelID, userID int64) (bool, error) {
	key := fmt.Sprintf("%d:%d", channelID, userID)
	if v, err := t.members.Get(key); err == nil {
		return v.(bool), nil
	}

	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: channelID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("telegram member: %w", err)
	}
	visible := !member.HasLeft() && !member.WasKicked()
	_ = t.members.Set(key, visible)
	return visible, nil
}

// MaxLength implements Platform.
func (t *Telegram) MaxLength() int {
	return TelegramMaxLength
}

// CallbackHandler handles a pressed action button and returns the short
// notice shown to the user who pressed it.
type CallbackHandler func(ctx context.Context, fromUserID int64, data string) (string, error)

// ServeCallbacks answers action button presses from updates until ctx is
// done or updates is closed. Other updates are dropped.
func (t *Telegram) ServeCallbacks(ctx context.Context, updates <-chan tgbotapi.Update, handle CallbackHandler) {
	for {
		var u tgbotapi.Update
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			u = upd
		}
		q := u.CallbackQuery
		if q == nil || q.From == nil {
			continue
		}

		notice, err := handle(ctx, q.From.ID, q.Data)
		if err != nil {
			slog.Warn("callback failed", "user", q.From.ID, "data", q.Data, "error", err)
			notice = "Something went wrong"
		}
		if _, err := t.bot.Request(tgbotapi.NewCallback(q.ID, notice)); err != nil {
			slog.Warn("answer callback failed", "user", q.From.ID, "error", err)
		}
	}
}
