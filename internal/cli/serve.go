package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/roach88/travelrelay/internal/chat"
	"github.com/roach88/travelrelay/internal/enrich"
	"github.com/roach88/travelrelay/internal/livefeed"
	"github.com/roach88/travelrelay/internal/render"
	"github.com/roach88/travelrelay/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and live feed",
		Long: `Run the webhook server, the enrichment workers and the chat callback
listener until interrupted.

Example:
  TRAVELRELAY_BOT_TOKEN=123:abc travelrelay serve --config travelrelay.yml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts)

	a, err := openApp(opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ec, err := a.cfg.EnrichConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid enrichment config", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var feed *livefeed.Synchronizer
	pipeline := enrich.New(a.store, ec, enrich.WithOnEnriched(func(userID int64, journeyID string) {
		if err := feed.Refresh(ctx, userID, journeyID); err != nil {
			slog.Error("refresh after enrichment failed", "user", userID, "journey", journeyID, "error", err)
		}
	}))
	feed = livefeed.New(a.store, a.platform, pipeline, livefeed.WithClock(opts.now))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.Run(ctx)
	}()

	if tg, ok := a.platform.(*chat.Telegram); ok && a.bot != nil {
		updates := a.bot.GetUpdatesChan(tgbotapi.UpdateConfig{
			Timeout:        a.cfg.Chat.PollTimeoutSec,
			AllowedUpdates: []string{"callback_query"},
		})
		defer a.bot.StopReceivingUpdates()
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.ServeCallbacks(ctx, updates, refreshCallback(pipeline))
		}()
	}

	srv := server.New(a.cfg.ServerConfig(), a.store, feed)
	fmt.Fprintf(cmd.OutOrStdout(), "travelrelay listening on %s\n", a.cfg.Server.Addr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	err = srv.Run(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("stopped gracefully", "pending_enrichment", pipeline.Pending())
	return nil
}

// refreshCallback turns refresh button presses into forced enrichment.
// The synchronizer re-renders the messages once the job is done.
func refreshCallback(q livefeed.Enqueuer) chat.CallbackHandler {
	return func(ctx context.Context, fromUserID int64, data string) (string, error) {
		userID, journeyID, ok := render.ParseRefresh(data)
		if !ok {
			return "", fmt.Errorf("unknown action %q", data)
		}
		if fromUserID != userID {
			return "Only the traveller can refresh this trip", nil
		}
		q.Enqueue(enrich.Job{UserID: userID, JourneyID: journeyID, Force: true})
		return "Refreshing…", nil
	}
}
