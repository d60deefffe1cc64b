package cli

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/travelrelay/internal/journey"
	"github.com/roach88/travelrelay/internal/store"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	StatusToken string
	Timezone    string

	// NewToken overrides the webhook token generator (for testing).
	NewToken func() string
}

// registration is the result of the register command.
type registration struct {
	UserID       int64  `json:"user_id"`
	WebhookToken string `json:"webhook_token"`
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <user-id>",
		Short: "Register a traveller and issue a webhook token",
		Long: `Register a traveller by chat user id. The printed webhook token must be
configured as the bearer token of the travel log service's webhook.

Example:
  travelrelay register 123456 --status-token abcdef`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StatusToken, "status-token", "", "status API token of the travel log account (required)")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "Europe/Berlin", "time zone journeys are shown in")
	_ = cmd.MarkFlagRequired("status-token")

	return cmd
}

func runRegister(opts *RegisterOptions, rawID string, cmd *cobra.Command) error {
	userID, err := parseID(rawID)
	if err != nil {
		return err
	}
	if _, err := time.LoadLocation(opts.Timezone); err != nil {
		return WrapExitError(ExitFailure, "invalid timezone", err)
	}

	a, err := openApp(opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer a.Close()

	newToken := opts.NewToken
	if newToken == nil {
		newToken = uuid.NewString
	}
	u := store.User{
		ID:           userID,
		TokenStatus:  opts.StatusToken,
		TokenWebhook: newToken(),
		Timezone:     opts.Timezone,
	}
	if err := a.store.CreateUser(context.Background(), u); err != nil {
		return WrapExitError(ExitCommandError, "failed to register user", err)
	}

	return opts.output(cmd).Success(
		"Registered user "+rawID+"\nWebhook token: "+u.TokenWebhook,
		registration{UserID: userID, WebhookToken: u.TokenWebhook})
}

// SubscribeOptions holds flags for the subscribe command.
type SubscribeOptions struct {
	*RootOptions
	Remove bool
}

// NewSubscribeCommand creates the subscribe command.
func NewSubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubscribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "subscribe <user-id> <channel-id>",
		Short: "Publish a traveller's live feed to a channel",
		Long: `Publish a traveller's live feed to a chat channel, or stop publishing
with --remove.

Example:
  travelrelay subscribe 123456 -- -1001234567890`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "stop publishing to the channel")

	return cmd
}

func runSubscribe(opts *SubscribeOptions, rawUser, rawChannel string, cmd *cobra.Command) error {
	userID, err := parseID(rawUser)
	if err != nil {
		return err
	}
	channelID, err := parseID(rawChannel)
	if err != nil {
		return err
	}

	a, err := openApp(opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.store.GetUser(ctx, userID); err != nil {
		return WrapExitError(ExitFailure, "unknown user", err)
	}

	verb := "Subscribed"
	if opts.Remove {
		verb = "Unsubscribed"
		err = a.store.Unsubscribe(ctx, userID, channelID)
	} else {
		err = a.store.Subscribe(ctx, userID, channelID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to update subscription", err)
	}

	channels, err := a.store.LiveChannels(ctx, userID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list channels", err)
	}
	return opts.output(cmd).Success(verb+" channel "+rawChannel, map[string]any{"user_id": userID, "channels": channels})
}

// NewBreakCommand creates the break command.
func NewBreakCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "break <user-id> <natural|break|glue|glue-latch|now>",
		Short: "Control how the next trip joins the journey",
		Long: `Set the break mode for the traveller's next trip:

  natural     decide by distance and time between trips
  break       start a new journey with the next trip
  glue        attach the next trip regardless
  glue-latch  attach every trip until the mode is changed
  now         forget the current journey immediately

Example:
  travelrelay break 123456 glue`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBreak(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runBreak(opts *RootOptions, rawUser, rawMode string, cmd *cobra.Command) error {
	userID, err := parseID(rawUser)
	if err != nil {
		return err
	}
	now := strings.EqualFold(rawMode, "now")
	var mode journey.BreakMode
	if !now {
		if mode, err = journey.ParseBreakMode(rawMode); err != nil {
			return WrapExitError(ExitFailure, "invalid break mode", err)
		}
	}

	a, err := openApp(opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	feed := a.synchronizer(opts)
	ctx := context.Background()
	if now {
		if err := feed.EndJourney(ctx, userID); err != nil {
			return WrapExitError(ExitCommandError, "failed to end journey", err)
		}
		return opts.output(cmd).Success("Journey ended", map[string]any{"user_id": userID, "ended": true})
	}

	if err := feed.SetBreakMode(ctx, userID, mode); err != nil {
		return WrapExitError(ExitCommandError, "failed to set break mode", err)
	}
	return opts.output(cmd).Success("Break mode set to "+mode.String(), map[string]any{"user_id": userID, "mode": mode.String()})
}
