package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/travelrelay/internal/status"
)

// Base is the departure time of the first trip built by StatusBuilder.
const Base int64 = 1714557600 // 2024-05-01 10:00 UTC

// StatusBuilder builds check-in status documents for tests.
type StatusBuilder struct {
	s     status.Status
	extra map[string]any
}

// NewStatus starts a checked-in public trip from Wien Hbf to St. Pölten Hbf
// departing at Base.
func NewStatus(trainID string) *StatusBuilder {
	return &StatusBuilder{s: status.Status{
		CheckedIn:  true,
		ActionTime: Base - 600,
		FromStation: status.Station{
			Name: "Wien Hbf", UIC: 8103000, Latitude: 48.1851, Longitude: 16.3758,
			ScheduledTime: Base, RealTime: Base,
		},
		ToStation: status.Station{
			Name: "St. Pölten Hbf", UIC: 8100008, Latitude: 48.2081, Longitude: 15.6242,
			ScheduledTime: Base + 1500, RealTime: Base + 1500,
		},
		Train:      status.Train{Type: "RJX", No: "640", ID: trainID},
		Visibility: status.Visibility{Desc: "public", Level: 100},
		Backend:    status.Backend{Name: "ÖBB", Type: "HAFAS", ID: 3},
	}}
}

// From sets the departure station and time.
func (b *StatusBuilder) From(name string, uic int64, lat, lon float64, t int64) *StatusBuilder {
	b.s.FromStation = status.Station{Name: name, UIC: uic, Latitude: lat, Longitude: lon, ScheduledTime: t, RealTime: t}
	return b
}

// To sets the arrival station and time.
func (b *StatusBuilder) To(name string, uic int64, lat, lon float64, t int64) *StatusBuilder {
	b.s.ToStation = status.Station{Name: name, UIC: uic, Latitude: lat, Longitude: lon, ScheduledTime: t, RealTime: t}
	return b
}

// Train sets type, line and number.
func (b *StatusBuilder) Train(typ, line, no string) *StatusBuilder {
	b.s.Train.Type, b.s.Train.Line, b.s.Train.No = typ, line, no
	return b
}

// Backend sets the data source.
func (b *StatusBuilder) Backend(typ, name string) *StatusBuilder {
	b.s.Backend = status.Backend{Type: typ, Name: name}
	return b
}

// CheckedOut marks the user as no longer on the train.
func (b *StatusBuilder) CheckedOut() *StatusBuilder {
	b.s.CheckedIn = false
	return b
}

// Private sets private visibility.
func (b *StatusBuilder) Private() *StatusBuilder {
	b.s.Visibility = status.Visibility{Desc: "private", Level: 10}
	return b
}

// Delay shifts the real departure and arrival by minutes.
func (b *StatusBuilder) Delay(minutes int64) *StatusBuilder {
	b.s.FromStation.RealTime = b.s.FromStation.ScheduledTime + minutes*60
	b.s.ToStation.RealTime = b.s.ToStation.ScheduledTime + minutes*60
	return b
}

// With adds an arbitrary top-level member.
func (b *StatusBuilder) With(key string, value any) *StatusBuilder {
	if b.extra == nil {
		b.extra = map[string]any{}
	}
	b.extra[key] = value
	return b
}

// Status returns the typed status.
func (b *StatusBuilder) Status() status.Status {
	return b.s
}

// JSON encodes the status document.
func (b *StatusBuilder) JSON() []byte {
	data, err := json.Marshal(b.s)
	if err != nil {
		panic(fmt.Sprintf("StatusBuilder: %v", err))
	}
	if len(b.extra) == 0 {
		return data
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	for k, v := range b.extra {
		m[k] = v
	}
	data, err = json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("StatusBuilder: %v", err))
	}
	return data
}

// Event builds a webhook event for the status.
func (b *StatusBuilder) Event(reason status.Reason) status.Event {
	data := b.JSON()
	ev, err := status.NewEvent(reason, data)
	if err != nil {
		panic(fmt.Sprintf("StatusBuilder: %v", err))
	}
	return ev
}

// Body builds a webhook request body for the status.
func (b *StatusBuilder) Body(reason status.Reason) []byte {
	return []byte(fmt.Sprintf(`{"reason":%q,"status":%s}`, reason, b.JSON()))
}
