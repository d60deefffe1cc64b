package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/travelrelay/internal/journey"
	"github.com/roach88/travelrelay/internal/patch"
	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
)

// errNoTimetable marks trips whose backend has no timetable lookup.
var errNoTimetable = errors.New("backend has no timetable lookup")

// germanLocalTypes are DBRIS train types the ÖBB timetable does not carry.
var germanLocalTypes = map[string]bool{
	"AST": true, "Bus": true, "Fähre": true, "Ruf": true, "RNV": true, "SB": true,
	"Schw-B": true, "STB": true, "STR": true, "U": true, "ZahnR": true,
}

// Karlsruhe's S2 is a tram line absent from the ÖBB timetable.
const (
	karlsruheLat      = 49.009
	karlsruheLon      = 8.417
	karlsruheRadiusKM = 15.0
)

// timetableMode decides which backend and lookup flavour serve a status.
func timetableMode(st status.Status) (mode, backend string) {
	mode, backend = st.Backend.Type, st.Backend.Name
	switch {
	case mode == "IRIS-TTS":
		return "HAFAS", "ÖBB"
	case (mode == "DBRIS" || mode == "travelcrab.friz64.de") && !germanLocalTypes[st.Train.Type] && !karlsruheS2(st):
		return "HAFAS", "ÖBB"
	case mode == "travelcrab.friz64.de":
		return "MOTIS", "transitous"
	}
	return mode, backend
}

func karlsruheS2(st status.Status) bool {
	if strings.TrimSpace(st.Train.Type+st.Train.Line) != "S2" {
		return false
	}
	d := journey.DistanceKM(st.FromStation.Latitude, st.FromStation.Longitude, karlsruheLat, karlsruheLon)
	return d < karlsruheRadiusKM
}

func journeyRef(st status.Status) string {
	if st.Train.HafasID != "" {
		return st.Train.HafasID
	}
	if strings.Contains(st.Train.ID, "|") {
		return st.Train.ID
	}
	return ""
}

// sameTrain reports whether a stationboard departure is the status' train.
func sameTrain(dep Departure, st status.Status, relayed bool) bool {
	if dep.Scheduled != st.FromStation.ScheduledTime {
		return false
	}
	if ref := journeyRef(st); ref != "" && ref == dep.ID {
		return true
	}
	if st.Train.No != "" && string(dep.Number) == st.Train.No {
		return true
	}
	lineOrNo := st.Train.Line
	if lineOrNo == "" {
		lineOrNo = st.Train.No
	}
	if dep.Type+string(dep.Line) == st.Train.Type+lineOrNo {
		return true
	}
	return relayed && st.Train.Line != "" && strings.HasSuffix(dep.Type+string(dep.Line), st.Train.Line)
}

type timetableResult struct {
	Headsign string
	Data     map[string]any
	Route    []RouteStop
}

func (p *Pipeline) lookupTimetable(ctx context.Context, st status.Status) (timetableResult, error) {
	mode, backend := timetableMode(st)
	switch mode {
	case "HAFAS":
		return p.lookupHafas(ctx, st, backend)
	case "DBRIS":
		return p.lookupDBRIS(ctx, st)
	case "MOTIS":
		return p.lookupMotis(ctx, st, backend)
	}
	return timetableResult{}, errNoTimetable
}

func (p *Pipeline) lookupHafas(ctx context.Context, st status.Status, backend string) (timetableResult, error) {
	var (
		sb  Stationboard
		err error
	)
	if uic := st.FromStation.UIC; uic > 0 {
		sb, err = p.timetable.Stationboard(ctx, backend, uic, st.FromStation.ScheduledTime)
	} else {
		err = ErrUnknownStation
	}
	if errors.Is(err, ErrUnknownStation) && backend == "ÖBB" {
		// Trips relayed from other backends may use station ids ÖBB does
		// not know; retry with a station found by name.
		eva, ferr := p.timetable.FindStation(ctx, backend, st.FromStation.Name)
		if ferr != nil {
			return timetableResult{}, fmt.Errorf("find station: %w", ferr)
		}
		slog.Debug("timetable station replaced", "station", st.FromStation.Name, "eva", eva)
		sb, err = p.timetable.Stationboard(ctx, backend, eva, st.FromStation.ScheduledTime)
	}
	if err != nil {
		return timetableResult{}, err
	}

	relayed := st.Backend.Type == "MOTIS" || st.Backend.Type == "travelcrab.friz64.de"
	for _, dep := range sb.Trains {
		if !sameTrain(dep, st, relayed) {
			continue
		}
		trip, err := p.timetable.Trip(ctx, backend, dep.ID)
		if err != nil {
			slog.Debug("timetable trip lookup failed", "backend", backend, "id", dep.ID, "error", err)
			continue
		}
		headsign := dep.Direction
		if headsign == "" && len(trip.Route) > 0 {
			headsign = trip.Route[len(trip.Route)-1].Name
		}
		trip.Raw["headsign"] = headsign
		trip.Raw["line"] = string(dep.Line)
		return timetableResult{Headsign: headsign, Data: trip.Raw, Route: trip.Route}, nil
	}
	return timetableResult{}, fmt.Errorf("%s stationboard: %w", backend, ErrNotFound)
}

func (p *Pipeline) lookupDBRIS(ctx context.Context, st status.Status) (timetableResult, error) {
	sb, err := p.timetable.Stationboard(ctx, "DBRIS", st.FromStation.UIC, st.FromStation.ScheduledTime)
	if err != nil {
		return timetableResult{}, err
	}
	for _, dep := range sb.Trains {
		if sameTrain(dep, st, false) {
			return timetableResult{
				Headsign: dep.Direction,
				Data:     map[string]any{"headsign": dep.Direction, "line": string(dep.Line)},
			}, nil
		}
	}
	return timetableResult{}, fmt.Errorf("DBRIS stationboard: %w", ErrNotFound)
}

func (p *Pipeline) lookupMotis(ctx context.Context, st status.Status, backend string) (timetableResult, error) {
	name := "MOTIS-" + backend
	trip, err := p.timetable.Trip(ctx, name, st.Train.HafasID)
	if err != nil {
		return timetableResult{}, err
	}
	res := timetableResult{Headsign: store.HeadsignUnresolved, Data: trip.Raw, Route: trip.Route}

	for _, stop := range trip.Route {
		if stop.Name != st.FromStation.Name {
			continue
		}
		sb, err := p.timetable.Stationboard(ctx, name, stop.Eva, st.FromStation.ScheduledTime)
		if err != nil {
			slog.Debug("motis stationboard failed", "station", stop.Name, "error", err)
			break
		}
		for _, dep := range sb.Trains {
			if dep.Scheduled != st.FromStation.ScheduledTime || dep.ID != st.Train.HafasID {
				continue
			}
			headsign := dep.Direction
			if headsign == "" && len(trip.Route) > 0 {
				headsign = trip.Route[len(trip.Route)-1].Name
			}
			res.Headsign = headsign
			res.Data["headsign"] = headsign
			res.Data["line"] = string(dep.Line)
			break
		}
		break
	}
	return res, nil
}

// resolveHeadsign runs the timetable lookup for a trip unless it ran
// before. Reports whether the trip changed.
func (p *Pipeline) resolveHeadsign(ctx context.Context, trip *store.Trip, st status.Status, force bool) (bool, error) {
	if st.IsManual() || st.Train.FakeHeadsign != "" {
		return false, nil
	}
	attempted := trip.Headsign != "" || patch.Has(trip.HafasData, "id") || trip.HafasFailed()
	if attempted && !force {
		return false, nil
	}

	res, err := p.lookupTimetable(ctx, st)
	if errors.Is(err, errNoTimetable) {
		return false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	var data []byte
	if err != nil {
		slog.Info("timetable lookup failed", "user", trip.UserID, "journey", trip.JourneyID, "train", st.Display(), "error", err)
		res.Headsign = store.HeadsignUnresolved
		data = []byte(`{"failedhafas":true}`)
	} else {
		if res.Headsign == "" {
			res.Headsign = store.HeadsignUnresolved
		}
		if data, err = patch.FromValue(res.Data); err != nil {
			return false, err
		}
	}

	if err := p.repo.SaveTimetable(ctx, trip.UserID, trip.JourneyID, res.Headsign, data); err != nil {
		return false, err
	}
	trip.Headsign, trip.HafasData = res.Headsign, data

	if err := p.fixArrival(ctx, trip, st, res.Route); err != nil {
		slog.Warn("arrival repair failed", "journey", trip.JourneyID, "error", err)
	}
	return true, nil
}

// fixArrival repairs a status whose arrival time is missing (zero) using
// the matching stop of the timetable route.
func (p *Pipeline) fixArrival(ctx context.Context, trip *store.Trip, st status.Status, route []RouteStop) error {
	if st.ToStation.RealTime > 0 {
		return nil
	}
	for _, stop := range route {
		sched := stop.SchedArr
		if sched == 0 {
			sched = stop.SchedDep
		}
		if stop.Eva != st.ToStation.UIC || sched < st.FromStation.ScheduledTime {
			continue
		}
		arrival := stop.RtArr
		if arrival == 0 {
			arrival = stop.SchedArr
		}
		fix, err := patch.FromValue(map[string]any{
			"toStation": map[string]any{"scheduledTime": stop.SchedArr, "realTime": arrival},
		})
		if err != nil {
			return err
		}
		raw, err := patch.MergePatch(trip.RawStatus, fix)
		if err != nil {
			return err
		}
		if _, err := p.repo.UpsertTrip(ctx, trip.UserID, raw); err != nil {
			return err
		}
		trip.RawStatus = raw
		slog.Info("repaired arrival time", "journey", trip.JourneyID, "arrival", arrival)
		return nil
	}
	return nil
}
