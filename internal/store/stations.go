package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// OEBBStation maps an ÖBB station name to its EVA number.
type OEBBStation struct {
	Name  string `db:"name"`
	EvaNr int64  `db:"eva_nr"`
}

// NormalizeStationName trims and NFC-normalizes a station name so names
// from different sources compare equal.
func NormalizeStationName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ImportOEBBStations replaces the ÖBB station table. Returns the number of
// stations stored.
func (s *Store) ImportOEBBStations(ctx context.Context, stations []OEBBStation) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("import stations: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM oebb_stations`); err != nil {
		return 0, fmt.Errorf("import stations: %w", err)
	}
	n := 0
	for _, st := range stations {
		st.Name = NormalizeStationName(st.Name)
		if st.Name == "" {
			continue
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO oebb_stations (name, eva_nr) VALUES (:name, :eva_nr)
			ON CONFLICT(name) DO UPDATE SET eva_nr = excluded.eva_nr
		`, st); err != nil {
			return 0, fmt.Errorf("import station %q: %w", st.Name, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("import stations: %w", err)
	}
	return n, nil
}

// LookupOEBBStation returns the EVA number for a station name. Returns
// ErrNotFound for unknown names.
func (s *Store) LookupOEBBStation(ctx context.Context, name string) (int64, error) {
	var eva int64
	err := s.db.GetContext(ctx, &eva, `SELECT eva_nr FROM oebb_stations WHERE name = ?`, NormalizeStationName(name))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup station: %w", err)
	}
	return eva, nil
}
