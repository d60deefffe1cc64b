package journey

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
)

// Repository is the storage the engine reads and mutates.
type Repository interface {
	CurrentTrips(ctx context.Context, userID int64) ([]store.Trip, error)
	SetBreakMode(ctx context.Context, userID int64, mode int) error
	BreakJourney(ctx context.Context, userID int64) error
}

// Engine applies continuity decisions. Callers must hold the user's lock.
type Engine struct {
	repo Repository
}

// NewEngine creates an engine over repo.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// Apply evaluates incoming against the user's journey, persists the break
// mode transition and breaks the journey if needed.
func (e *Engine) Apply(ctx context.Context, user store.User, incoming status.Status, reason status.Reason) (Decision, error) {
	trips, err := e.repo.CurrentTrips(ctx, user.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("continuity: %w", err)
	}

	in := Input{Incoming: incoming, Reason: reason, Mode: BreakMode(user.BreakMode)}
	for i := range trips {
		st, err := trips[i].Status()
		if err != nil {
			return Decision{}, fmt.Errorf("continuity: %w", err)
		}
		in.Current = append(in.Current, st)
	}
	if n := len(in.Current); n > 0 {
		in.Last = &in.Current[n-1]
	}

	d := Evaluate(in)

	if d.NextMode != in.Mode {
		if err := e.repo.SetBreakMode(ctx, user.ID, int(d.NextMode)); err != nil {
			return Decision{}, fmt.Errorf("continuity: %w", err)
		}
	}
	if d.Break {
		slog.Info("breaking journey", "user", user.ID, "trips", len(trips), "mode", in.Mode)
		if err := e.repo.BreakJourney(ctx, user.ID); err != nil {
			return Decision{}, fmt.Errorf("continuity: %w", err)
		}
	}
	return d, nil
}

// Break unconditionally ends the user's journey.
func (e *Engine) Break(ctx context.Context, userID int64) error {
	if err := e.repo.BreakJourney(ctx, userID); err != nil {
		return fmt.Errorf("break journey: %w", err)
	}
	return nil
}
