package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/travelrelay/internal/journey"
	"github.com/roach88/travelrelay/internal/store"
)

// userSettings is the JSON form of a traveller's settings.
type userSettings struct {
	UserID           int64    `json:"user_id"`
	Timezone         string   `json:"timezone"`
	ShowTrainNumbers bool     `json:"show_train_numbers"`
	Suggestions      []string `json:"suggestions"`
	TravelToken      bool     `json:"travel_token"`
	BreakMode        string   `json:"break_mode"`
}

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change a traveller's settings",
	}
	cmd.AddCommand(newSettingsShowCommand(rootOpts))
	cmd.AddCommand(newSettingsTimezoneCommand(rootOpts))
	cmd.AddCommand(newSettingsTrainNumbersCommand(rootOpts))
	cmd.AddCommand(newSettingsSuggestionsCommand(rootOpts))
	cmd.AddCommand(newSettingsTravelTokenCommand(rootOpts))
	return cmd
}

func newSettingsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <user-id>",
		Short:         "Show a traveller's settings",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(rootOpts, cmd, args[0], func(ctx context.Context, s *store.Store, userID int64) (string, any, error) {
				u, err := s.GetUser(ctx, userID)
				if err != nil {
					return "", nil, err
				}
				return describeSettings(u)
			})
		},
	}
}

func newSettingsTimezoneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "timezone <user-id> <zone>",
		Short: "Set the time zone journeys and manual times use",
		Long: `Set the IANA time zone the traveller's journeys are shown in and manual
trip times are read in.

Example:
  travelrelay settings timezone 123456 Europe/Vienna`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			zone := args[1]
			if _, err := time.LoadLocation(zone); err != nil || zone == "" || zone == "Local" {
				return NewExitError(ExitFailure, fmt.Sprintf("unknown time zone %q", zone))
			}
			return withUser(rootOpts, cmd, args[0], func(ctx context.Context, s *store.Store, userID int64) (string, any, error) {
				if err := s.SetTimezone(ctx, userID, zone); err != nil {
					return "", nil, err
				}
				return "Times are now shown in " + zone, map[string]any{"user_id": userID, "timezone": zone}, nil
			})
		},
	}
}

func newSettingsTrainNumbersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train-numbers <user-id> <on|off>",
		Short: "Show train numbers next to line names",
		Long: `Show train numbers next to line names in the traveller's journeys, e.g.
"S 7 (24713)". Without them only trains without a line show their number.

Example:
  travelrelay settings train-numbers 123456 on`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			show, err := parseSwitch(args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "invalid switch", err)
			}
			return withUser(rootOpts, cmd, args[0], func(ctx context.Context, s *store.Store, userID int64) (string, any, error) {
				if err := s.SetShowTrainNumbers(ctx, userID, show); err != nil {
					return "", nil, err
				}
				text := "Train numbers are now shown on all journeys"
				if !show {
					text = "Train numbers are now shown only for trains without a line"
				}
				return text, map[string]any{"user_id": userID, "show_train_numbers": show}, nil
			})
		},
	}
}

func newSettingsSuggestionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suggestions <user-id> [station...]",
		Short: "Replace the station suggestions for manual trips",
		Long: `Replace the stations suggested when entering manual trips. Without
stations the list is cleared.

Example:
  travelrelay settings suggestions 123456 "Krems Schiffstation" Dürnstein`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var stations []string
			for _, name := range args[1:] {
				if name = store.NormalizeStationName(name); name != "" && !strings.Contains(name, "\n") {
					stations = append(stations, name)
				}
			}
			return withUser(rootOpts, cmd, args[0], func(ctx context.Context, s *store.Store, userID int64) (string, any, error) {
				if err := s.SetSuggestions(ctx, userID, stations); err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Saved %d suggestions", len(stations)),
					map[string]any{"user_id": userID, "suggestions": stations}, nil
			})
		},
	}
}

// TravelTokenOptions holds flags for the travel-token command.
type TravelTokenOptions struct {
	*RootOptions
	Disable bool
}

func newSettingsTravelTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TravelTokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "travel-token <user-id> [token]",
		Short: "Set the import token of the travel log account",
		Long: `Store the travel log service's import token so manual trips can be
uploaded there, or remove it with --disable.

Example:
  travelrelay settings travel-token 123456 abcdef`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 2 {
				token = strings.TrimSpace(args[1])
			}
			if opts.Disable == (token != "") {
				return NewExitError(ExitFailure, "give either a token or --disable")
			}
			return withUser(rootOpts, cmd, args[0], func(ctx context.Context, s *store.Store, userID int64) (string, any, error) {
				if err := s.SetTravelToken(ctx, userID, token); err != nil {
					return "", nil, err
				}
				text := "Updated the import token"
				if opts.Disable {
					text = "Deleted the import token"
				}
				return text, map[string]any{"user_id": userID, "travel_token": token != ""}, nil
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Disable, "disable", false, "delete the stored token")

	return cmd
}

// withUser runs fn against the database for an existing user and prints
// its result.
func withUser(opts *RootOptions, cmd *cobra.Command, rawUser string, fn func(context.Context, *store.Store, int64) (string, any, error)) error {
	userID, err := parseID(rawUser)
	if err != nil {
		return err
	}
	a, err := openApp(opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	text, data, err := fn(context.Background(), a.store, userID)
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitFailure, "unknown user", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to access settings", err)
	}
	return opts.output(cmd).Success(text, data)
}

func describeSettings(u store.User) (string, any, error) {
	s := userSettings{
		UserID:           u.ID,
		Timezone:         u.Timezone,
		ShowTrainNumbers: u.ShowTrainNumbers,
		Suggestions:      u.SuggestionList(),
		TravelToken:      u.TokenTravel.Valid,
		BreakMode:        journey.BreakMode(u.BreakMode).String(),
	}
	if s.Suggestions == nil {
		s.Suggestions = []string{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User:          %d\n", s.UserID)
	fmt.Fprintf(&b, "Time zone:     %s\n", s.Timezone)
	fmt.Fprintf(&b, "Train numbers: %s\n", onOff(s.ShowTrainNumbers))
	fmt.Fprintf(&b, "Break mode:    %s\n", s.BreakMode)
	fmt.Fprintf(&b, "Import token:  %s\n", onOff(s.TravelToken))
	fmt.Fprintf(&b, "Suggestions:   %s", strings.Join(s.Suggestions, ", "))
	return b.String(), s, nil
}

// parseSwitch accepts on/off besides the strconv.ParseBool forms.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
