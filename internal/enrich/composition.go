package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/travelrelay/internal/patch"
	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
)

// Context is what a composition strategy sees of a trip.
type Context struct {
	Status    status.Status
	HafasData []byte

	// Now is the current time in the user's zone.
	Now time.Time
}

// Operator returns the operator reported by the timetable lookup.
func (c *Context) Operator() string {
	return patch.String(c.HafasData, "operator")
}

// Result is a successful composition lookup.
type Result struct {
	// Composition is the rendered rolling stock, e.g. "2x 4024 Talent".
	// Empty means the provider answered without a composition.
	Composition string

	// Link is a page with details, shown behind a short link.
	Link string

	// Extra members are merged into the status patch, e.g. network,
	// operator or train.fakeheadsign.
	Extra map[string]any

	// Messages are informational texts appended to the timetable data.
	Messages []string
}

// Strategy is one composition provider.
type Strategy struct {
	Name    string
	Applies func(c *Context) bool
	Fetch   func(ctx context.Context, c *Context) (Result, error)
}

// groupRuns collapses consecutive equal vehicle types: A A B → "2x A", "B".
func groupRuns(types []string) []string {
	var out []string
	for i := 0; i < len(types); {
		j := i
		for j < len(types) && types[j] == types[i] {
			j++
		}
		if n := j - i; n == 1 {
			out = append(out, types[i])
		} else {
			out = append(out, fmt.Sprintf("%dx %s", n, types[i]))
		}
		i = j
	}
	return out
}

func joinUnits(units []string) string {
	trimmed := make([]string, 0, len(units))
	for _, u := range units {
		if u = strings.TrimSpace(u); u != "" {
			trimmed = append(trimmed, u)
		}
	}
	return strings.Join(trimmed, " + ")
}

func (p *Pipeline) compositionContext(ctx context.Context, trip *store.Trip, st status.Status) *Context {
	loc := p.location
	if u, err := p.repo.GetUser(ctx, trip.UserID); err == nil {
		if l, err := time.LoadLocation(u.Timezone); err == nil {
			loc = l
		}
	}
	return &Context{Status: st, HafasData: trip.HafasData, Now: p.now().In(loc)}
}

// resolveComposition asks the strategies in order until one succeeds.
// Reports whether the trip changed.
func (p *Pipeline) resolveComposition(ctx context.Context, trip *store.Trip, st status.Status) (bool, error) {
	if st.Composition != "" {
		return false, nil
	}
	c := p.compositionContext(ctx, trip, st)
	changed := false

	for _, s := range p.strategies {
		if st.ProviderFailed(s.Name) || !s.Applies(c) {
			continue
		}

		res, err := s.Fetch(ctx, c)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return changed, ctxErr
		}

		update := map[string]any{}
		for k, v := range res.Extra {
			update[k] = v
		}
		failed := err != nil || res.Composition == ""
		if failed {
			logProviderMiss(trip, s.Name, err)
			update[status.FailedCompositionPrefix+s.Name] = true
		} else {
			update["composition"] = p.linked(ctx, res.Composition, res.Link)
		}

		p2, perr := patch.FromValue(update)
		if perr != nil {
			return changed, perr
		}
		if perr := p.repo.ComposePatch(ctx, trip.UserID, trip.JourneyID, p2); perr != nil {
			return changed, perr
		}
		changed = true

		if !failed {
			if len(res.Messages) > 0 {
				if err := p.appendMessages(ctx, trip, res.Messages); err != nil {
					slog.Warn("storing provider messages failed", "journey", trip.JourneyID, "error", err)
				}
			}
			slog.Info("composition resolved", "user", trip.UserID, "journey", trip.JourneyID, "provider", s.Name)
			return true, nil
		}
	}
	return changed, nil
}

func logProviderMiss(trip *store.Trip, provider string, err error) {
	switch {
	case err == nil:
		slog.Info("composition provider answered without composition", "journey", trip.JourneyID, "provider", provider)
	case errors.Is(err, ErrNotFound):
		slog.Info("composition not found", "journey", trip.JourneyID, "provider", provider)
	default:
		slog.Warn("composition provider failed", "journey", trip.JourneyID, "provider", provider, "error", err)
	}
}

// linked renders text as a markdown link to a short URL for long.
func (p *Pipeline) linked(ctx context.Context, text, long string) string {
	if long == "" {
		return text
	}
	if p.shortenerURL == "" {
		return fmt.Sprintf("[%s](%s)", text, long)
	}
	l, err := p.repo.ShortenLink(ctx, long, p.newLinkID)
	if err != nil {
		slog.Warn("shortening link failed", "url", long, "error", err)
		return fmt.Sprintf("[%s](%s)", text, long)
	}
	return fmt.Sprintf("[%s](%s/%s)", text, p.shortenerURL, l.ShortID)
}

func (p *Pipeline) appendMessages(ctx context.Context, trip *store.Trip, texts []string) error {
	var data map[string]any
	if err := json.Unmarshal(trip.HafasData, &data); err != nil || data == nil {
		data = map[string]any{}
	}
	msgs, _ := data["messages"].([]any)
	for _, t := range texts {
		msgs = append(msgs, map[string]any{"code": "ZN", "text": t, "type": "I"})
	}
	data["messages"] = msgs

	encoded, err := patch.FromValue(data)
	if err != nil {
		return err
	}
	if err := p.repo.SaveTimetable(ctx, trip.UserID, trip.JourneyID, trip.Headsign, encoded); err != nil {
		return err
	}
	trip.HafasData = encoded
	return nil
}
