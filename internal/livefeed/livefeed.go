package livefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/roach88/travelrelay/internal/chat"
	"github.com/roach88/travelrelay/internal/enrich"
	"github.com/roach88/travelrelay/internal/journey"
	"github.com/roach88/travelrelay/internal/keymutex"
	"github.com/roach88/travelrelay/internal/render"
	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
)

// Outcome classifies how a delivery was handled.
type Outcome string

const (
	OutcomeConnected   Outcome = "connected"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeRefused     Outcome = "refused"
	OutcomeUnpublished Outcome = "unpublished"
	OutcomePrivate     Outcome = "private"
	OutcomePublished   Outcome = "published"
)

// Result is the acknowledgement of a handled delivery.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Text    string  `json:"text"`

	// Channels is the number of channels whose messages were posted,
	// edited or deleted.
	Channels int `json:"channels"`
}

const undoRefusal = "Not unpublishing last check-in, you're already checked out. " +
	"To force deletion, undo your checkout, save the journey comment once and then undo your check-in."

// Repository is the storage the synchronizer works on.
type Repository interface {
	journey.Repository

	GetUser(ctx context.Context, id int64) (store.User, error)
	LiveChannels(ctx context.Context, userID int64) ([]int64, error)

	UpsertTrip(ctx context.Context, userID int64, raw []byte) (string, error)
	GetTrip(ctx context.Context, userID int64, journeyID string) (*store.Trip, error)
	LastTrip(ctx context.Context, userID int64) (*store.Trip, error)
	DeleteTrip(ctx context.Context, userID int64, journeyID string) error
	ComposePatch(ctx context.Context, userID int64, journeyID string, p []byte) error

	SaveMessage(ctx context.Context, m store.Message) error
	GetMessage(ctx context.Context, userID int64, journeyID string, channelID int64) (*store.Message, error)
	TripMessages(ctx context.Context, userID int64, journeyID string) ([]store.Message, error)
	DeleteMessage(ctx context.Context, m store.Message) error
}

// Enqueuer accepts enrichment jobs without blocking.
type Enqueuer interface {
	Enqueue(j enrich.Job) bool
}

type noEnrichment struct{}

func (noEnrichment) Enqueue(enrich.Job) bool { return false }

// Synchronizer keeps every channel's message chain consistent with the
// user's journey.
//
// Thread-safety: All methods are safe for concurrent use. Operations on the
// same user are serialized.
type Synchronizer struct {
	repo      Repository
	platform  chat.Platform
	engine    *journey.Engine
	enrich    Enqueuer
	locks     *keymutex.Registry
	validate  *validator.Validate
	now       func() time.Time
	newTripID func() string
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock sets the time source used for manual trips.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithTripIDs sets the generator for manual train ids.
func WithTripIDs(fn func() string) Option {
	return func(s *Synchronizer) { s.newTripID = fn }
}

// WithLocks shares a lock registry with other components.
func WithLocks(r *keymutex.Registry) Option {
	return func(s *Synchronizer) { s.locks = r }
}

func randomTripID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// New creates a synchronizer. A nil enqueuer disables enrichment.
func New(repo Repository, platform chat.Platform, enq Enqueuer, opts ...Option) *Synchronizer {
	if enq == nil {
		enq = noEnrichment{}
	}
	s := &Synchronizer{
		repo:      repo,
		platform:  platform,
		engine:    journey.NewEngine(repo),
		enrich:    enq,
		locks:     keymutex.New(),
		validate:  validator.New(),
		now:       time.Now,
		newTripID: randomTripID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) lock(ctx context.Context, userID int64) (func(), error) {
	return s.locks.Lock(ctx, "user/"+strconv.FormatInt(userID, 10))
}

// Handle processes one webhook delivery for the user.
//
// Deliveries the live feed does not react to yield an OutcomeIgnored result
// together with a status.ProtocolError.
func (s *Synchronizer) Handle(ctx context.Context, userID int64, ev status.Event) (Result, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()
	return s.handle(ctx, userID, ev)
}

func (s *Synchronizer) handle(ctx context.Context, userID int64, ev status.Event) (Result, error) {
	if ev.Reason == status.ReasonPing && !ev.Status.CheckedIn {
		return Result{Outcome: OutcomeConnected, Text: "travelrelay successfully connected!"}, nil
	}
	if err := ev.Validate(); err != nil {
		return Result{Outcome: OutcomeIgnored}, err
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("handle %s: %w", ev.Reason, err)
	}

	slog.Info("status delivery",
		"user", user.ID,
		"reason", ev.Reason,
		"train", ev.Status.Display(),
		"journey", ev.Status.JourneyID())

	if ev.Reason == status.ReasonUndo && !ev.Status.CheckedIn {
		return s.unpublish(ctx, user)
	}

	if ev.Status.IsPrivate() {
		if err := s.repo.DeleteTrip(ctx, user.ID, ev.Status.JourneyID()); err != nil {
			return Result{}, fmt.Errorf("handle %s: %w", ev.Reason, err)
		}
		return Result{
			Outcome: OutcomePrivate,
			Text:    fmt.Sprintf("Not publishing private %s in %s %s", ev.Reason, ev.Status.Train.Type, ev.Status.Train.No),
		}, nil
	}

	return s.publish(ctx, user, ev)
}

// record applies the delivery to the journey and stores it.
func (s *Synchronizer) record(ctx context.Context, userID int64, ev status.Event) error {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.engine.Apply(ctx, user, ev.Status, ev.Reason); err != nil {
		return err
	}
	journeyID, err := s.repo.UpsertTrip(ctx, userID, ev.Raw)
	if err != nil {
		return err
	}
	s.enrich.Enqueue(enrich.Job{UserID: userID, JourneyID: journeyID})
	return nil
}

func (s *Synchronizer) publish(ctx context.Context, user store.User, ev status.Event) (Result, error) {
	if err := s.record(ctx, user.ID, ev); err != nil {
		return Result{}, fmt.Errorf("handle %s: %w", ev.Reason, err)
	}

	channels, err := s.repo.LiveChannels(ctx, user.ID)
	if err != nil {
		return Result{}, fmt.Errorf("handle %s: %w", ev.Reason, err)
	}
	if err := s.breakOverlong(ctx, user, ev, channels); err != nil {
		return Result{}, fmt.Errorf("handle %s: %w", ev.Reason, err)
	}

	published := 0
	for _, channelID := range channels {
		ok, err := s.publishTo(ctx, user, ev, channelID)
		if err != nil {
			slog.Error("publish to channel failed",
				"user", user.ID,
				"channel", channelID,
				"journey", ev.Status.JourneyID(),
				"error", err)
			continue
		}
		if ok {
			published++
		}
	}

	return Result{
		Outcome:  OutcomePublished,
		Channels: published,
		Text: fmt.Sprintf("Successfully published %s %s %s to %d channels",
			ev.Status.Train.Type, ev.Status.Train.No, ev.Reason, published),
	}, nil
}

// breakOverlong starts a new journey with the delivered trip when it is
// about to be posted as the head of a journey too long for one message.
func (s *Synchronizer) breakOverlong(ctx context.Context, user store.User, ev status.Event, channels []int64) error {
	trips, err := s.repo.CurrentTrips(ctx, user.ID)
	if err != nil {
		return err
	}
	journeyID := ev.Status.JourneyID()
	if len(trips) < 2 || indexOf(trips, journeyID) != len(trips)-1 {
		return nil
	}
	content := render.Journey(render.FromStore(trips), renderOptions(user))
	if utf8.RuneCountInString(content.Text) <= s.platform.MaxLength() {
		return nil
	}

	posting := false
	for _, channelID := range channels {
		_, err := s.repo.GetMessage(ctx, user.ID, journeyID, channelID)
		if errors.Is(err, store.ErrNotFound) {
			posting = true
			break
		}
		if err != nil {
			return err
		}
	}
	if !posting {
		return nil
	}

	slog.Info("journey too long for one message, breaking", "user", user.ID, "trips", len(trips))
	if err := s.engine.Break(ctx, user.ID); err != nil {
		return err
	}
	return s.record(ctx, user.ID, ev)
}

// publishTo brings one channel's message chain up to date with the
// delivered trip. It reports false if the user cannot see the channel.
func (s *Synchronizer) publishTo(ctx context.Context, user store.User, ev status.Event, channelID int64) (bool, error) {
	visible, err := s.platform.IsVisibleMember(ctx, channelID, user.ID)
	if err != nil {
		return false, fmt.Errorf("membership: %w", err)
	}
	if !visible {
		slog.Debug("user not visible in channel", "user", user.ID, "channel", channelID)
		return false, nil
	}

	journeyID := ev.Status.JourneyID()
	m, err := s.repo.GetMessage(ctx, user.ID, journeyID, channelID)
	switch {
	case err == nil:
		err = s.update(ctx, user, *m)
		if !errors.Is(err, chat.ErrMessageGone) {
			return err == nil, err
		}
		slog.Warn("message gone, posting again", "user", user.ID, "channel", channelID, "message", m.MessageID)
		if err := s.repo.DeleteMessage(ctx, *m); err != nil {
			return false, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	return true, s.post(ctx, user, journeyID, channelID)
}

// content renders the message of a trip in a channel. If a later trip of
// the journey has a message there, the journey is cut after this trip and
// linked onwards.
func (s *Synchronizer) content(ctx context.Context, user store.User, trips []store.Trip, journeyID string, channelID int64) (chat.Content, error) {
	opts := renderOptions(user)
	if idx := indexOf(trips, journeyID); idx >= 0 {
		for _, later := range trips[idx+1:] {
			next, err := s.repo.GetMessage(ctx, user.ID, later.JourneyID, channelID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return chat.Content{}, err
			}
			opts.ContinueURL = s.platform.MessageURL(channelID, next.MessageID)
			trips = trips[:idx+1]
			break
		}
	}
	return render.Journey(render.FromStore(trips), opts), nil
}

// update re-renders an existing message.
func (s *Synchronizer) update(ctx context.Context, user store.User, m store.Message) error {
	trips, err := s.repo.CurrentTrips(ctx, user.ID)
	if err != nil {
		return err
	}
	c, err := s.content(ctx, user, trips, m.JourneyID, m.ChannelID)
	if err != nil {
		return err
	}
	return s.platform.Edit(ctx, m.ChannelID, m.MessageID, c)
}

// post sends a new message for a trip and shrinks the message of the
// previous trip in the same channel.
func (s *Synchronizer) post(ctx context.Context, user store.User, journeyID string, channelID int64) error {
	trips, err := s.repo.CurrentTrips(ctx, user.ID)
	if err != nil {
		return err
	}
	c, err := s.content(ctx, user, trips, journeyID, channelID)
	if err != nil {
		return err
	}

	messageID, err := s.platform.Send(ctx, channelID, c)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	m := store.Message{UserID: user.ID, JourneyID: journeyID, ChannelID: channelID, MessageID: messageID}
	if err := s.repo.SaveMessage(ctx, m); err != nil {
		return err
	}

	idx := indexOf(trips, journeyID)
	if idx < 1 {
		return nil
	}
	prev, err := s.repo.GetMessage(ctx, user.ID, trips[idx-1].JourneyID, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = s.update(ctx, user, *prev)
	if errors.Is(err, chat.ErrMessageGone) {
		return s.repo.DeleteMessage(ctx, *prev)
	}
	if err != nil {
		// The new message is out; only the shrink failed.
		slog.Warn("shrink previous message failed", "user", user.ID, "channel", channelID, "error", err)
	}
	return nil
}

// unpublish removes the last trip of a user who undid their check-in.
func (s *Synchronizer) unpublish(ctx context.Context, user store.User) (Result, error) {
	last, err := s.repo.LastTrip(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Outcome: OutcomeIgnored, Text: "Nothing to unpublish"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("unpublish: %w", err)
	}
	st, err := last.Status()
	if err != nil {
		return Result{}, fmt.Errorf("unpublish: %w", err)
	}
	if !st.CheckedIn {
		slog.Warn("undo for checked out trip refused", "user", user.ID, "journey", last.JourneyID)
		return Result{Outcome: OutcomeRefused, Text: undoRefusal}, nil
	}

	msgs, err := s.repo.TripMessages(ctx, user.ID, last.JourneyID)
	if err != nil {
		return Result{}, fmt.Errorf("unpublish: %w", err)
	}
	for _, m := range msgs {
		err := s.platform.Delete(ctx, m.ChannelID, m.MessageID)
		if err != nil && !errors.Is(err, chat.ErrMessageGone) {
			slog.Error("delete message failed", "user", user.ID, "channel", m.ChannelID, "error", err)
		}
	}
	if err := s.repo.DeleteTrip(ctx, user.ID, last.JourneyID); err != nil {
		return Result{}, fmt.Errorf("unpublish: %w", err)
	}

	trips, err := s.repo.CurrentTrips(ctx, user.ID)
	if err != nil {
		return Result{}, fmt.Errorf("unpublish: %w", err)
	}
	if len(trips) > 0 {
		if err := s.refreshTrip(ctx, user, trips[len(trips)-1].JourneyID); err != nil {
			return Result{}, fmt.Errorf("unpublish: %w", err)
		}
	}

	return Result{
		Outcome:  OutcomeUnpublished,
		Channels: len(msgs),
		Text:     fmt.Sprintf("Unpublished last checkin for %d channels", len(msgs)),
	}, nil
}

// refreshTrip re-renders every message of a trip.
func (s *Synchronizer) refreshTrip(ctx context.Context, user store.User, journeyID string) error {
	msgs, err := s.repo.TripMessages(ctx, user.ID, journeyID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		err := s.update(ctx, user, m)
		if errors.Is(err, chat.ErrMessageGone) {
			err = s.repo.DeleteMessage(ctx, m)
		}
		if err != nil {
			slog.Error("refresh message failed",
				"user", user.ID,
				"channel", m.ChannelID,
				"journey", journeyID,
				"error", err)
		}
	}
	return nil
}

func renderOptions(user store.User) render.Options {
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return render.Options{Location: loc, ShowTrainNumbers: user.ShowTrainNumbers}
}

func indexOf(trips []store.Trip, journeyID string) int {
	for i := range trips {
		if trips[i].JourneyID == journeyID {
			return i
		}
	}
	return -1
}
