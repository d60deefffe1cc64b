package cli

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/roach88/travelrelay/internal/chat"
	"github.com/roach88/travelrelay/internal/config"
	"github.com/roach88/travelrelay/internal/livefeed"
	"github.com/roach88/travelrelay/internal/store"
)

// memberTTL bounds how long channel membership lookups are cached.
const memberTTL = 10 * time.Minute

// app bundles what the commands operate on.
type app struct {
	cfg      config.Config
	store    *store.Store
	platform chat.Platform

	// bot is set when the platform is Telegram.
	bot *tgbotapi.BotAPI
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func setupLogging(opts *RootOptions) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	}
	slog.SetDefault(slog.New(handler))
}

// openApp loads the configuration and opens the database. With
// withPlatform the chat platform is connected too.
func openApp(opts *RootOptions, withPlatform bool) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	a := &app{cfg: cfg, store: st}
	if !withPlatform {
		return a, nil
	}

	if opts.NewPlatform != nil {
		if a.platform, err = opts.NewPlatform(cfg); err != nil {
			a.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect chat platform", err)
		}
		return a, nil
	}

	if cfg.Chat.Token == "" {
		a.Close()
		return nil, NewExitError(ExitCommandError, config.EnvBotToken+" is not set")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Chat.Token)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to connect chat platform", err)
	}
	bot.Debug = cfg.Chat.Debug
	slog.Info("connected to telegram", "bot", bot.Self.UserName)
	a.bot = bot
	a.platform = chat.NewTelegram(bot, memberTTL)
	return a, nil
}

// synchronizer builds a synchronizer without enrichment, for one-off
// commands.
func (a *app) synchronizer(opts *RootOptions) *livefeed.Synchronizer {
	return livefeed.New(a.store, a.platform, nil, livefeed.WithClock(opts.now))
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "invalid id "+strconv.Quote(s), err)
	}
	return id, nil
}
