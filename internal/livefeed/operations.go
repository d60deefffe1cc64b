package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/travelrelay/internal/journey"
	"github.com/roach88/travelrelay/internal/patch"
	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
)

// ManualInput describes a trip the check-in service does not know about.
type ManualInput struct {
	From      string    `validate:"required,max=200"`
	To        string    `validate:"required,max=200"`
	Departure time.Time `validate:"required"`
	Arrival   time.Time `validate:"required"`

	// Delays in minutes.
	DepartureDelay int `validate:"gte=-1440,lte=1440"`
	ArrivalDelay   int `validate:"gte=-1440,lte=1440"`

	// Train is "<type> [line...] [#number]", e.g. "S 7 #24713".
	Train string `validate:"required,max=100"`

	Headsign    string `validate:"max=200"`
	Comment     string `validate:"max=500"`
	Composition string `validate:"max=500"`
	Network     string `validate:"max=100"`
}

// parseTrain splits a manual train designation into type, line and number.
func parseTrain(s string) (typ, line, no string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", "", ""
	}
	typ, rest := fields[0], fields[1:]
	if n := len(rest); n > 0 && strings.HasPrefix(rest[n-1], "#") {
		no = strings.TrimPrefix(rest[n-1], "#")
		rest = rest[:n-1]
	}
	return typ, strings.Join(rest, " "), no
}

func (s *Synchronizer) checkInput(in ManualInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &UserInputError{
			Field:   strings.ToLower(fe.Field()),
			Message: fmt.Sprintf("failed %q check", fe.Tag()),
		}
	}
	return err
}

// ManualTrip adds a hand-entered, already completed trip to the journey and
// publishes it.
func (s *Synchronizer) ManualTrip(ctx context.Context, userID int64, in ManualInput) (Result, error) {
	if err := s.checkInput(in); err != nil {
		return Result{}, err
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("manual trip: %w", err)
	}
	loc := renderOptions(user).Location

	departure := in.Departure.Unix()
	arrival := in.Arrival.Unix()
	if arrival < departure {
		arrival += int64((24 * time.Hour).Seconds())
	}
	realDeparture := departure + int64(in.DepartureDelay)*60

	last, err := s.repo.LastTrip(ctx, userID)
	switch {
	case err == nil:
		st, err := last.Status()
		if err != nil {
			return Result{}, fmt.Errorf("manual trip: %w", err)
		}
		if st.ToStation.RealTime > realDeparture {
			return Result{}, &UserInputError{
				Field: "departure",
				Message: fmt.Sprintf("at your last check-in you arrived at %s; add check-ins in chronological order or edit the previous one first",
					time.Unix(st.ToStation.RealTime, 0).In(loc).Format("15:04")),
			}
		}
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, fmt.Errorf("manual trip: %w", err)
	}

	typ, line, no := parseTrain(in.Train)
	st := status.Status{
		CheckedIn:  false,
		ActionTime: s.now().Unix(),
		FromStation: status.Station{
			Name:          in.From,
			ScheduledTime: departure,
			RealTime:      realDeparture,
		},
		ToStation: status.Station{
			Name:          in.To,
			ScheduledTime: arrival,
			RealTime:      arrival + int64(in.ArrivalDelay)*60,
		},
		Train: status.Train{
			Type:         typ,
			Line:         line,
			No:           no,
			ID:           status.ManualPrefix + s.newTripID(),
			FakeHeadsign: in.Headsign,
		},
		Comment:     in.Comment,
		Visibility:  status.Visibility{Desc: "public", Level: 100},
		Backend:     status.Backend{Name: "manual", Type: "", ID: -1},
		Composition: in.Composition,
		Network:     in.Network,
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return Result{}, fmt.Errorf("manual trip: %w", err)
	}
	ev, err := status.NewEvent(status.ReasonCheckout, raw)
	if err != nil {
		return Result{}, fmt.Errorf("manual trip: %w", err)
	}
	return s.handle(ctx, userID, ev)
}

// Undo removes the last trip of a checked out user, as if the check-in had
// been undone upstream.
func (s *Synchronizer) Undo(ctx context.Context, userID int64) (Result, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	last, err := s.repo.LastTrip(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, &UserInputError{Message: "no trip to undo"}
	}
	if err != nil {
		return Result{}, fmt.Errorf("undo: %w", err)
	}
	st, err := last.Status()
	if err != nil {
		return Result{}, fmt.Errorf("undo: %w", err)
	}
	if st.CheckedIn {
		return Result{}, &UserInputError{Message: "still checked in; undo this check-in upstream to avoid inconsistent data"}
	}

	checkedIn, err := patch.MergePatch(last.RawStatus, []byte(`{"checkedIn":true}`))
	if err != nil {
		return Result{}, fmt.Errorf("undo: %w", err)
	}
	if _, err := s.repo.UpsertTrip(ctx, userID, checkedIn); err != nil {
		return Result{}, fmt.Errorf("undo: %w", err)
	}

	raw, err := patch.MergePatch(last.RawStatus, []byte(`{"checkedIn":false}`))
	if err != nil {
		return Result{}, fmt.Errorf("undo: %w", err)
	}
	ev, err := status.NewEvent(status.ReasonUndo, raw)
	if err != nil {
		return Result{}, fmt.Errorf("undo: %w", err)
	}
	return s.handle(ctx, userID, ev)
}

// Edit merges a user patch into a trip and republishes it.
func (s *Synchronizer) Edit(ctx context.Context, userID int64, journeyID string, p []byte) (Result, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(p, &members); err != nil || members == nil {
		return Result{}, &UserInputError{Field: "patch", Message: "must be a JSON object"}
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	if err := s.repo.ComposePatch(ctx, userID, journeyID, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, &UserInputError{Field: "journey", Message: "no such trip"}
		}
		return Result{}, fmt.Errorf("edit: %w", err)
	}
	return s.replay(ctx, userID, journeyID)
}

// Delay shifts the real departure and/or arrival of the last trip to the
// scheduled time plus the given minutes.
func (s *Synchronizer) Delay(ctx context.Context, userID int64, departure, arrival *int) (Result, error) {
	if departure == nil && arrival == nil {
		return Result{}, &UserInputError{Message: "give a departure or arrival delay"}
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	last, err := s.repo.LastTrip(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, &UserInputError{Message: "no trip to delay"}
	}
	if err != nil {
		return Result{}, fmt.Errorf("delay: %w", err)
	}
	st, err := last.Status()
	if err != nil {
		return Result{}, fmt.Errorf("delay: %w", err)
	}

	doc := map[string]any{}
	if departure != nil {
		doc["fromStation"] = map[string]any{"realTime": st.FromStation.ScheduledTime + int64(*departure)*60}
	}
	if arrival != nil {
		doc["toStation"] = map[string]any{"realTime": st.ToStation.ScheduledTime + int64(*arrival)*60}
	}
	p, err := patch.FromValue(doc)
	if err != nil {
		return Result{}, fmt.Errorf("delay: %w", err)
	}
	if err := s.repo.ComposePatch(ctx, userID, last.JourneyID, p); err != nil {
		return Result{}, fmt.Errorf("delay: %w", err)
	}
	return s.replay(ctx, userID, last.JourneyID)
}

// replay handles the stored upstream status of a trip again so that edits
// reach every channel.
func (s *Synchronizer) replay(ctx context.Context, userID int64, journeyID string) (Result, error) {
	trip, err := s.repo.GetTrip(ctx, userID, journeyID)
	if err != nil {
		return Result{}, fmt.Errorf("replay: %w", err)
	}
	st, err := trip.Status()
	if err != nil {
		return Result{}, fmt.Errorf("replay: %w", err)
	}
	reason := status.ReasonCheckout
	if st.CheckedIn {
		reason = status.ReasonUpdate
	}
	ev, err := status.NewEvent(reason, trip.RawStatus)
	if err != nil {
		return Result{}, fmt.Errorf("replay: %w", err)
	}
	return s.handle(ctx, userID, ev)
}

// Refresh re-renders the messages of a trip, e.g. after enrichment added
// data to it.
func (s *Synchronizer) Refresh(ctx context.Context, userID int64, journeyID string) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return s.refreshTrip(ctx, user, journeyID)
}

// SetBreakMode chooses how the user's next trip attaches to the journey.
func (s *Synchronizer) SetBreakMode(ctx context.Context, userID int64, mode journey.BreakMode) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.SetBreakMode(ctx, userID, int(mode)); err != nil {
		return fmt.Errorf("set break mode: %w", err)
	}
	return nil
}

// EndJourney forgets the user's journey. Posted messages stay untouched.
func (s *Synchronizer) EndJourney(ctx context.Context, userID int64) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.engine.Break(ctx, userID)
}
