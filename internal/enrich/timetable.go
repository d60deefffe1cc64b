package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnknownStation is returned by Timetable.Stationboard when the backend
// does not know the station id.
var ErrUnknownStation = errors.New("station unknown to backend")

// loose decodes a JSON string, number or null into a string.
type loose string

func (l *loose) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = loose(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = loose(n.String())
	return nil
}

// Departure is one train on a stationboard.
type Departure struct {
	ID        string `json:"id"`
	Scheduled int64  `json:"scheduled"`
	Number    loose  `json:"number"`
	Type      string `json:"type"`
	Line      loose  `json:"line"`
	Direction string `json:"direction"`
}

// Stationboard lists departures at a station around a time.
type Stationboard struct {
	Trains      []Departure `json:"trains"`
	ErrorString string      `json:"error_string,omitempty"`
}

// RouteStop is a stop of a trip as reported by a timetable backend.
type RouteStop struct {
	Name     string `json:"name"`
	Eva      int64  `json:"eva"`
	SchedArr int64  `json:"sched_arr"`
	SchedDep int64  `json:"sched_dep"`
	RtArr    int64  `json:"rt_arr"`
	RtDep    int64  `json:"rt_dep"`
}

// TripDetail is a trip as reported by a timetable backend. Raw keeps every
// member so it can be stored as the trip's timetable data.
type TripDetail struct {
	ID       string         `json:"id"`
	Operator string         `json:"operator"`
	Route    []RouteStop    `json:"route"`
	Raw      map[string]any `json:"-"`
}

// Timetable looks up stationboards and trips at a backend such as "ÖBB",
// "DBRIS" or "MOTIS-transitous".
type Timetable interface {
	Stationboard(ctx context.Context, backend string, eva, when int64) (Stationboard, error)
	Trip(ctx context.Context, backend, id string) (TripDetail, error)
	FindStation(ctx context.Context, backend, name string) (int64, error)
}

// HTTPTimetable queries a JSON timetable gateway:
//
//	GET {base}/stationboard?backend=&station=&time=
//	GET {base}/trip?backend=&id=
//	GET {base}/stations?backend=&q=
type HTTPTimetable struct {
	fetch *Fetcher
	base  string
}

// NewHTTPTimetable creates a gateway client.
func NewHTTPTimetable(fetch *Fetcher, base string) *HTTPTimetable {
	return &HTTPTimetable{fetch: fetch, base: strings.TrimSuffix(base, "/")}
}

func (t *HTTPTimetable) url(path string, q url.Values) string {
	return t.base + path + "?" + q.Encode()
}

// Stationboard implements Timetable.
func (t *HTTPTimetable) Stationboard(ctx context.Context, backend string, eva, when int64) (Stationboard, error) {
	var sb Stationboard
	u := t.url("/stationboard", url.Values{
		"backend": {backend},
		"station": {strconv.FormatInt(eva, 10)},
		"time":    {strconv.FormatInt(when, 10)},
	})
	if err := t.fetch.GetJSON(ctx, backend, u, &sb); err != nil {
		return Stationboard{}, err
	}
	if strings.Contains(sb.ErrorString, "LOCATION") {
		return Stationboard{}, fmt.Errorf("%s station %d: %w", backend, eva, ErrUnknownStation)
	}
	if sb.ErrorString != "" {
		return Stationboard{}, &ProviderError{Provider: backend, Err: errors.New(sb.ErrorString)}
	}
	return sb, nil
}

// Trip implements Timetable.
func (t *HTTPTimetable) Trip(ctx context.Context, backend, id string) (TripDetail, error) {
	body, err := t.fetch.Get(ctx, backend, t.url("/trip", url.Values{"backend": {backend}, "id": {id}}), nil)
	if err != nil {
		return TripDetail{}, err
	}
	return decodeTrip(backend, body)
}

func decodeTrip(backend string, body []byte) (TripDetail, error) {
	var td TripDetail
	if err := json.Unmarshal(body, &td); err != nil {
		return TripDetail{}, &ProviderError{Provider: backend, Err: fmt.Errorf("decode trip: %w", err)}
	}
	if err := json.Unmarshal(body, &td.Raw); err != nil {
		return TripDetail{}, &ProviderError{Provider: backend, Err: fmt.Errorf("decode trip: %w", err)}
	}
	if td.Raw == nil {
		return TripDetail{}, &ProviderError{Provider: backend, Err: errors.New("empty trip")}
	}
	if msg, ok := td.Raw["error_string"].(string); ok && msg != "" {
		return TripDetail{}, &ProviderError{Provider: backend, Err: errors.New(msg)}
	}
	return td, nil
}

// FindStation implements Timetable.
func (t *HTTPTimetable) FindStation(ctx context.Context, backend, name string) (int64, error) {
	var stations []struct {
		Name string `json:"name"`
		Eva  int64  `json:"eva"`
	}
	if err := t.fetch.GetJSON(ctx, backend, t.url("/stations", url.Values{"backend": {backend}, "q": {name}}), &stations); err != nil {
		return 0, err
	}
	if len(stations) == 0 || stations[0].Eva == 0 {
		return 0, fmt.Errorf("%s station %q: %w", backend, name, ErrNotFound)
	}
	return stations[0].Eva, nil
}
