package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/travelrelay/internal/patch"
	"github.com/roach88/travelrelay/internal/status"
)

// HeadsignUnresolved marks a trip whose headsign lookup ran and failed.
const HeadsignUnresolved = "?"

// Trip is one leg of a user's journey.
type Trip struct {
	UserID      int64   `db:"user_id"`
	JourneyID   string  `db:"journey_id"`
	RawStatus   []byte  `db:"raw_status"`
	StatusPatch []byte  `db:"status_patch"`
	Headsign    string  `db:"headsign"`
	HafasData   []byte  `db:"hafas_data"`
	FromTime    int64   `db:"from_time"`
	FromStation string  `db:"from_station"`
	FromLat     float64 `db:"from_lat"`
	FromLon     float64 `db:"from_lon"`
	ToTime      int64   `db:"to_time"`
	ToStation   string  `db:"to_station"`
	ToLat       float64 `db:"to_lat"`
	ToLon       float64 `db:"to_lon"`
}

// Effective returns the raw status with the user's patch applied.
func (t *Trip) Effective() ([]byte, error) {
	return patch.MergePatch(t.RawStatus, t.StatusPatch)
}

// Status decodes the effective status. A missing line is filled from the
// timetable data fetched during enrichment.
func (t *Trip) Status() (status.Status, error) {
	doc, err := t.Effective()
	if err != nil {
		return status.Status{}, fmt.Errorf("trip %s: %w", t.JourneyID, err)
	}
	s, err := status.Decode(doc)
	if err != nil {
		return status.Status{}, fmt.Errorf("trip %s: %w", t.JourneyID, err)
	}
	if s.Train.Line == "" {
		s.Train.Line = patch.String(t.HafasData, "line")
	}
	return s, nil
}

// Unpatched decodes the raw status without the user's edits, for replaying
// a delivery without committing the edits as upstream data.
func (t *Trip) Unpatched() (status.Status, error) {
	return status.Decode(t.RawStatus)
}

// HafasFailed reports whether the timetable lookup permanently failed.
func (t *Trip) HafasFailed() bool {
	return patch.Flag(t.HafasData, "failedhafas")
}

const tripColumns = `user_id, journey_id, raw_status, status_patch, headsign, hafas_data,
	from_time, from_station, from_lat, from_lon, to_time, to_station, to_lat, to_lon`

// UpsertTrip stores a status delivery under its journey id. An existing row
// keeps its patch, headsign and timetable data.
func (s *Store) UpsertTrip(ctx context.Context, userID int64, raw []byte) (string, error) {
	st, err := status.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("upsert trip: %w", err)
	}
	journeyID := st.JourneyID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trips
		(user_id, journey_id, raw_status, from_time, from_station, from_lat, from_lon, to_time, to_station, to_lat, to_lon)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, journey_id) DO UPDATE SET
			raw_status = excluded.raw_status,
			from_time = excluded.from_time,
			from_station = excluded.from_station,
			from_lat = excluded.from_lat,
			from_lon = excluded.from_lon,
			to_time = excluded.to_time,
			to_station = excluded.to_station,
			to_lat = excluded.to_lat,
			to_lon = excluded.to_lon
	`,
		userID,
		journeyID,
		string(raw),
		st.FromStation.RealTime,
		st.FromStation.Name,
		st.FromStation.Latitude,
		st.FromStation.Longitude,
		st.ToStation.RealTime,
		st.ToStation.Name,
		st.ToStation.Latitude,
		st.ToStation.Longitude,
	)
	if err != nil {
		return "", fmt.Errorf("upsert trip: %w", err)
	}
	return journeyID, nil
}

// GetTrip loads one trip. Returns ErrNotFound if absent.
func (s *Store) GetTrip(ctx context.Context, userID int64, journeyID string) (*Trip, error) {
	var t Trip
	err := s.db.GetContext(ctx, &t, `SELECT `+tripColumns+` FROM trips WHERE user_id = ? AND journey_id = ?`, userID, journeyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}
	return &t, nil
}

// CurrentTrips returns the user's journey: all stored trips ordered by
// effective departure time, ties broken by journey id.
func (s *Store) CurrentTrips(ctx context.Context, userID int64) ([]Trip, error) {
	var trips []Trip
	if err := s.db.SelectContext(ctx, &trips, `SELECT `+tripColumns+` FROM trips WHERE user_id = ? ORDER BY journey_id`, userID); err != nil {
		return nil, fmt.Errorf("current trips: %w", err)
	}

	departs := make(map[string]int64, len(trips))
	for i := range trips {
		st, err := trips[i].Status()
		if err != nil {
			return nil, fmt.Errorf("current trips: %w", err)
		}
		departs[trips[i].JourneyID] = st.FromStation.RealTime
	}
	sort.SliceStable(trips, func(i, j int) bool {
		return departs[trips[i].JourneyID] < departs[trips[j].JourneyID]
	})
	return trips, nil
}

// LastTrip returns the latest trip of the user's journey. Returns
// ErrNotFound if the journey is empty.
func (s *Store) LastTrip(ctx context.Context, userID int64) (*Trip, error) {
	trips, err := s.CurrentTrips(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return nil, ErrNotFound
	}
	return &trips[len(trips)-1], nil
}

// DeleteTrip removes a trip and its message records.
func (s *Store) DeleteTrip(ctx context.Context, userID int64, journeyID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ? AND journey_id = ?`, userID, journeyID); err != nil {
		return fmt.Errorf("delete trip messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE user_id = ? AND journey_id = ?`, userID, journeyID); err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	return tx.Commit()
}

// BreakJourney deletes every trip and message record of the user.
func (s *Store) BreakJourney(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("break journey: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("break journey: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("break journey: %w", err)
	}
	return tx.Commit()
}

// WritePatch replaces a trip's status patch.
func (s *Store) WritePatch(ctx context.Context, userID int64, journeyID string, p []byte) error {
	if !json.Valid(p) {
		return fmt.Errorf("write patch: invalid JSON")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE trips SET status_patch = ? WHERE user_id = ? AND journey_id = ?`, string(p), userID, journeyID)
	if err != nil {
		return fmt.Errorf("write patch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ComposePatch merges p into a trip's stored patch. The read and the write
// share one transaction so concurrent edits of a trip are not lost.
func (s *Store) ComposePatch(ctx context.Context, userID int64, journeyID string, p []byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("compose patch: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.GetContext(ctx, &current, `SELECT status_patch FROM trips WHERE user_id = ? AND journey_id = ?`, userID, journeyID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("compose patch: %w", err)
	}
	composed, err := patch.ComposePatch(current, p)
	if err != nil {
		return err
	}
	if !json.Valid(composed) {
		return fmt.Errorf("compose patch: invalid JSON")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE trips SET status_patch = ? WHERE user_id = ? AND journey_id = ?`, string(composed), userID, journeyID); err != nil {
		return fmt.Errorf("compose patch: %w", err)
	}
	return tx.Commit()
}

// SaveTimetable stores the timetable lookup result and headsign of a trip.
func (s *Store) SaveTimetable(ctx context.Context, userID int64, journeyID, headsign string, hafasData []byte) error {
	_, err := s.db.ExecContext(ctx, `UPDATE trips SET headsign = ?, hafas_data = ? WHERE user_id = ? AND journey_id = ?`,
		headsign, string(hafasData), userID, journeyID)
	if err != nil {
		return fmt.Errorf("save timetable: %w", err)
	}
	return nil
}
