package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/travelrelay/internal/keymutex"
	"github.com/roach88/travelrelay/internal/store"
)

// Repository is the part of the store the pipeline needs.
type Repository interface {
	GetUser(ctx context.Context, id int64) (store.User, error)
	GetTrip(ctx context.Context, userID int64, journeyID string) (*store.Trip, error)
	UpsertTrip(ctx context.Context, userID int64, raw []byte) (string, error)
	SaveTimetable(ctx context.Context, userID int64, journeyID, headsign string, hafasData []byte) error
	ComposePatch(ctx context.Context, userID int64, journeyID string, p []byte) error
	ShortenLink(ctx context.Context, longURL string, newID func() string) (store.Link, error)
	LookupOEBBStation(ctx context.Context, name string) (int64, error)
}

// Endpoints are the base URLs of the composition providers. An empty URL
// disables the provider.
type Endpoints struct {
	OEBB     string
	DB       string
	NS       string
	Vagonweb string
	RTT      string
}

// DefaultEndpoints are the public provider sites. DB has no public
// endpoint and must be configured.
var DefaultEndpoints = Endpoints{
	OEBB:     "https://live.oebb.at",
	NS:       "https://vt.ns-mlab.nl",
	Vagonweb: "https://www.vagonweb.cz",
	RTT:      "https://www.realtimetrains.co.uk",
}

// Config holds pipeline settings.
type Config struct {
	Workers      int
	Timeout      time.Duration
	TimetableURL string
	ShortenerURL string
	Endpoints    Endpoints
	Location     *time.Location
}

// Pipeline resolves headsigns and compositions for trips in the
// background.
//
// Thread-safety: Enqueue and Enrich are safe for concurrent use. Jobs for
// the same trip are serialized.
type Pipeline struct {
	repo       Repository
	timetable  Timetable
	strategies []Strategy
	fetch      *Fetcher
	locks      *keymutex.Registry
	queue      *jobQueue
	onEnriched func(userID int64, journeyID string)
	newLinkID  func() string
	now        func() time.Time

	location     *time.Location
	shortenerURL string
	workers      int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimetable replaces the timetable gateway client.
func WithTimetable(t Timetable) Option {
	return func(p *Pipeline) { p.timetable = t }
}

// WithStrategies replaces the composition providers.
func WithStrategies(s ...Strategy) Option {
	return func(p *Pipeline) { p.strategies = s }
}

// WithOnEnriched sets a hook called after a job changed a trip. It runs
// after the trip lock is released.
func WithOnEnriched(fn func(userID int64, journeyID string)) Option {
	return func(p *Pipeline) { p.onEnriched = fn }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLinkIDs sets the short link id generator.
func WithLinkIDs(fn func() string) Option {
	return func(p *Pipeline) { p.newLinkID = fn }
}

func randomLinkID() string {
	return uuid.NewString()[:8]
}

// New creates a pipeline. Strategies default to the providers in
// cfg.Endpoints, queried in the order oebb, db, ns, vagonweb, rtt.
func New(repo Repository, cfg Config, opts ...Option) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	fetch := NewFetcher(cfg.Timeout)
	p := &Pipeline{
		repo:         repo,
		fetch:        fetch,
		locks:        keymutex.New(),
		queue:        newJobQueue(),
		newLinkID:    randomLinkID,
		now:          time.Now,
		location:     cfg.Location,
		shortenerURL: cfg.ShortenerURL,
		workers:      cfg.Workers,
	}
	if cfg.TimetableURL != "" {
		p.timetable = NewHTTPTimetable(fetch, cfg.TimetableURL)
	}
	p.strategies = []Strategy{
		newOEBBProvider(fetch, cfg.Endpoints.OEBB, repo, cfg.Location).strategy(),
		newDBProvider(fetch, cfg.Endpoints.DB).strategy(),
		newNSProvider(fetch, cfg.Endpoints.NS).strategy(),
		newVagonwebProvider(fetch, cfg.Endpoints.Vagonweb).strategy(),
		newRTTProvider(fetch, cfg.Endpoints.RTT).strategy(),
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func fmtKey(userID int64, journeyID string) string {
	return fmt.Sprintf("%d/%s", userID, journeyID)
}

// Enqueue schedules a job. It never blocks. Returns false once the
// pipeline is shutting down.
func (p *Pipeline) Enqueue(j Job) bool {
	return p.queue.Enqueue(j)
}

// Pending returns the number of queued jobs.
func (p *Pipeline) Pending() int {
	return p.queue.Len()
}

// Run processes jobs until ctx is cancelled. Queued jobs are dropped on
// shutdown; they are retried on the next delivery of the trip.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}

	<-ctx.Done()
	p.queue.Close()
	wg.Wait()
	slog.Info("enrichment stopped", "dropped", p.queue.Len())
}

func (p *Pipeline) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.queue.Wait():
		}
		if p.queue.Drained() {
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			j, ok := p.queue.TryDequeue()
			if !ok {
				break
			}
			if _, err := p.Enrich(ctx, j); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("enrichment failed", "user", j.UserID, "journey", j.JourneyID, "error", err)
			}
		}
	}
}

// Enrich runs one job synchronously. Reports whether the trip changed.
// Provider failures are recorded on the trip, not returned.
func (p *Pipeline) Enrich(ctx context.Context, j Job) (bool, error) {
	changed, err := p.enrichLocked(ctx, j)
	if changed && p.onEnriched != nil {
		p.onEnriched(j.UserID, j.JourneyID)
	}
	return changed, err
}

func (p *Pipeline) enrichLocked(ctx context.Context, j Job) (bool, error) {
	unlock, err := p.locks.Lock(ctx, j.key())
	if err != nil {
		return false, err
	}
	defer unlock()

	trip, err := p.repo.GetTrip(ctx, j.UserID, j.JourneyID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("enrichment skipped, trip gone", "user", j.UserID, "journey", j.JourneyID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enrich %s: %w", j.key(), err)
	}

	st, err := trip.Status()
	if err != nil {
		return false, fmt.Errorf("enrich %s: %w", j.key(), err)
	}

	changed := false
	if p.timetable != nil {
		c, err := p.resolveHeadsign(ctx, trip, st, j.Force)
		changed = changed || c
		if err != nil {
			return changed, fmt.Errorf("enrich %s: headsign: %w", j.key(), err)
		}
		if c {
			if st, err = trip.Status(); err != nil {
				return changed, fmt.Errorf("enrich %s: %w", j.key(), err)
			}
		}
	}

	if st.IsManual() {
		return changed, nil
	}
	c, err := p.resolveComposition(ctx, trip, st)
	changed = changed || c
	if err != nil {
		return changed, fmt.Errorf("enrich %s: composition: %w", j.key(), err)
	}
	return changed, nil
}
