package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/travelrelay/internal/livefeed"
	"github.com/roach88/travelrelay/internal/render"
)

// tripView is the JSON form of a journey leg.
type tripView struct {
	JourneyID string `json:"journey_id"`
	Train     string `json:"train"`
	From      string `json:"from"`
	To        string `json:"to"`
	Departure int64  `json:"departure"`
	Arrival   int64  `json:"arrival"`
	Headsign  string `json:"headsign"`
	CheckedIn bool   `json:"checked_in"`
}

// NewJourneyCommand creates the journey command.
func NewJourneyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "journey <user-id>",
		Short: "Show a traveller's current journey",
		Long: `Show the traveller's current journey as it is rendered in chat, or as a
list of trips with --format json.

Example:
  travelrelay journey 123456`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJourney(rootOpts, args[0], cmd)
		},
	}
}

func runJourney(opts *RootOptions, rawUser string, cmd *cobra.Command) error {
	userID, err := parseID(rawUser)
	if err != nil {
		return err
	}
	a, err := openApp(opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return WrapExitError(ExitFailure, "unknown user", err)
	}
	trips, err := a.store.CurrentTrips(ctx, userID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load journey", err)
	}
	if len(trips) == 0 {
		return opts.output(cmd).Success("No current journey", []tripView{})
	}

	rendered := render.FromStore(trips)
	views := make([]tripView, 0, len(rendered))
	for _, t := range rendered {
		views = append(views, tripView{
			JourneyID: t.JourneyID,
			Train:     t.Status.Display(),
			From:      t.Status.FromStation.Name,
			To:        t.Status.ToStation.Name,
			Departure: t.Status.FromStation.Time(),
			Arrival:   t.Status.ToStation.Time(),
			Headsign:  t.Headsign,
			CheckedIn: t.Status.CheckedIn,
		})
	}

	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	text := render.Text(rendered, render.Options{Location: loc, ShowTrainNumbers: user.ShowTrainNumbers})
	return opts.output(cmd).Success(text, views)
}

// ManualOptions holds flags for the manual command.
type ManualOptions struct {
	*RootOptions
	Input     livefeed.ManualInput
	Departure string
	Arrival   string
	Walk      bool
	Bike      bool
}

// NewManualCommand creates the manual command.
func NewManualCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ManualOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "manual <user-id>",
		Short: "Add a trip the travel log service does not know about",
		Long: `Add a completed trip by hand and publish it. Times are HH:MM on the
current day in the traveller's time zone, "YYYY-MM-DD HH:MM", or RFC 3339.
An arrival before the departure is taken to be on the next day. A trailing
"#<number>" in --train sets the train number. With --walk or --bike the
leg is on foot or by bike, --train optionally names it and the headsign
defaults to the destination.

Example:
  travelrelay manual 123456 --from "Krems Schiffstation" --to Dürnstein \
    --departure 11:50 --arrival 12:20 --train "Ship DDSG #3"
  travelrelay manual 123456 --from Dürnstein --to Weißenkirchen \
    --departure 13:00 --arrival 14:10 --walk`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManual(opts, args[0], cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Input.From, "from", "", "departure station (required)")
	f.StringVar(&opts.Input.To, "to", "", "arrival station (required)")
	f.StringVar(&opts.Departure, "departure", "", "departure time (required)")
	f.StringVar(&opts.Arrival, "arrival", "", "arrival time (required)")
	f.StringVar(&opts.Input.Train, "train", "", `train, e.g. "S 7 #24713" (required)`)
	f.IntVar(&opts.Input.DepartureDelay, "departure-delay", 0, "departure delay in minutes")
	f.IntVar(&opts.Input.ArrivalDelay, "arrival-delay", 0, "arrival delay in minutes")
	f.StringVar(&opts.Input.Headsign, "headsign", "", "destination shown on the train")
	f.StringVar(&opts.Input.Comment, "comment", "", "comment")
	f.StringVar(&opts.Input.Composition, "composition", "", "vehicle composition")
	f.StringVar(&opts.Input.Network, "network", "", "transport network")
	f.BoolVar(&opts.Walk, "walk", false, "the leg is on foot")
	f.BoolVar(&opts.Bike, "bike", false, "the leg is by bike")
	cmd.MarkFlagsMutuallyExclusive("walk", "bike")

	return cmd
}

// manualInput applies the --walk and --bike shortcuts.
func (o *ManualOptions) manualInput() livefeed.ManualInput {
	in := o.Input
	var mode string
	switch {
	case o.Walk:
		mode = "walk"
	case o.Bike:
		mode = "bike"
	default:
		return in
	}
	in.Train = strings.TrimSpace(mode + " " + in.Train)
	if in.Headsign == "" {
		in.Headsign = in.To
	}
	return in
}

func runManual(opts *ManualOptions, rawUser string, cmd *cobra.Command) error {
	userID, err := parseID(rawUser)
	if err != nil {
		return err
	}
	a, err := openApp(opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return WrapExitError(ExitFailure, "unknown user", err)
	}
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}

	out := opts.output(cmd)
	in := opts.manualInput()
	if in.Departure, err = parseTripTime(opts.Departure, loc, opts.now()); err != nil {
		return operationError(out, "manual trip", &livefeed.UserInputError{Field: "departure", Message: err.Error()})
	}
	if in.Arrival, err = parseTripTime(opts.Arrival, loc, opts.now()); err != nil {
		return operationError(out, "manual trip", &livefeed.UserInputError{Field: "arrival", Message: err.Error()})
	}

	res, err := a.synchronizer(opts.RootOptions).ManualTrip(ctx, userID, in)
	if err != nil {
		return operationError(out, "manual trip", err)
	}
	return out.Result(res)
}

var tripTimeLayouts = []string{"15:04", "2006-01-02 15:04", time.RFC3339}

// parseTripTime reads a time given as HH:MM on now's day in loc, as a
// local date and time, or as RFC 3339.
func parseTripTime(s string, loc *time.Location, now time.Time) (time.Time, error) {
	for i, layout := range tripTimeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if i == 0 {
			y, m, d := now.In(loc).Date()
			t = time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot read time %q", s)
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <user-id>",
		Short: "Remove the last trip of a checked out traveller",
		Long: `Remove the traveller's last trip from the journey and delete its
messages. Refused while the traveller is still checked in; undo the check-in
at the travel log service instead.

Example:
  travelrelay undo 123456`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSynchronizer(rootOpts, cmd, "undo", func(ctx context.Context, s *livefeed.Synchronizer) (livefeed.Result, error) {
				return s.Undo(ctx, userID)
			})
		},
	}
}

// DelayOptions holds flags for the delay command.
type DelayOptions struct {
	*RootOptions
	Departure int
	Arrival   int
}

// NewDelayCommand creates the delay command.
func NewDelayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DelayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delay <user-id>",
		Short: "Set the delay of the last trip",
		Long: `Override the real departure and/or arrival time of the traveller's last
trip as scheduled time plus the given minutes.

Example:
  travelrelay delay 123456 --departure 5 --arrival 12`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			var dep, arr *int
			if cmd.Flags().Changed("departure") {
				dep = &opts.Departure
			}
			if cmd.Flags().Changed("arrival") {
				arr = &opts.Arrival
			}
			return withSynchronizer(rootOpts, cmd, "delay", func(ctx context.Context, s *livefeed.Synchronizer) (livefeed.Result, error) {
				return s.Delay(ctx, userID, dep, arr)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Departure, "departure", 0, "departure delay in minutes")
	cmd.Flags().IntVar(&opts.Arrival, "arrival", 0, "arrival delay in minutes")

	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <user-id> <journey-id> <json-merge-patch>",
		Short: "Edit a trip",
		Long: `Merge a JSON merge patch into a trip and republish it. The patch is
applied on top of the data delivered by the travel log service and survives
later deliveries.

Example:
  travelrelay edit 123456 1714557600rjx640 '{"comment":"window seat"}'`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSynchronizer(rootOpts, cmd, "edit", func(ctx context.Context, s *livefeed.Synchronizer) (livefeed.Result, error) {
				return s.Edit(ctx, userID, args[1], []byte(args[2]))
			})
		},
	}
}

// withSynchronizer runs one synchronizer operation against the configured
// database and chat platform and prints its result.
func withSynchronizer(opts *RootOptions, cmd *cobra.Command, op string, fn func(context.Context, *livefeed.Synchronizer) (livefeed.Result, error)) error {
	a, err := openApp(opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	out := opts.output(cmd)
	res, err := fn(context.Background(), a.synchronizer(opts))
	if err != nil {
		return operationError(out, op, err)
	}
	return out.Result(res)
}
