package status

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ManualPrefix marks train ids of trips that were entered by hand rather
// than delivered by the check-in service.
const ManualPrefix = "travelrelayfaked"

// FailedCompositionPrefix prefixes the permanent-failure flag a composition
// provider leaves in the status patch.
const FailedCompositionPrefix = "failedcomposition-"

// Reason is the cause of a webhook delivery.
type Reason string

const (
	ReasonCheckin  Reason = "checkin"
	ReasonUpdate   Reason = "update"
	ReasonCheckout Reason = "checkout"
	ReasonUndo     Reason = "undo"
	ReasonPing     Reason = "ping"
)

// Known reports whether r is one of the reasons the live feed reacts to.
func (r Reason) Known() bool {
	switch r {
	case ReasonCheckin, ReasonUpdate, ReasonCheckout, ReasonUndo, ReasonPing:
		return true
	}
	return false
}

// Station is a departure or arrival stop of a trip. Times are unix seconds.
type Station struct {
	Name          string  `json:"name"`
	UIC           int64   `json:"uic"`
	DS100         string  `json:"ds100,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	ScheduledTime int64   `json:"scheduledTime"`
	RealTime      int64   `json:"realTime"`
}

// Time returns the real time if known, the scheduled time otherwise.
func (s Station) Time() int64 {
	if s.RealTime != 0 {
		return s.RealTime
	}
	return s.ScheduledTime
}

// Train identifies the vehicle of a trip.
type Train struct {
	Type         string `json:"type"`
	Line         string `json:"line"`
	No           string `json:"no"`
	ID           string `json:"id"`
	HafasID      string `json:"hafasId,omitempty"`
	FakeHeadsign string `json:"fakeheadsign,omitempty"`
}

// Visibility is the user's sharing level for a check-in.
type Visibility struct {
	Desc  string `json:"desc"`
	Level int    `json:"level"`
}

// Backend names the data source the check-in service used for a trip.
type Backend struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// Status is the decoded view of a (possibly patched) check-in status.
type Status struct {
	CheckedIn   bool       `json:"checkedIn"`
	ActionTime  int64      `json:"actionTime"`
	FromStation Station    `json:"fromStation"`
	ToStation   Station    `json:"toStation"`
	Train       Train      `json:"train"`
	Comment     string     `json:"comment,omitempty"`
	Visibility  Visibility `json:"visibility"`
	Backend     Backend    `json:"backend"`

	// Fields written by enrichment or user edits via the status patch.
	Composition string `json:"composition,omitempty"`
	Network     string `json:"network,omitempty"`
	Operator    string `json:"operator,omitempty"`

	// FailedProviders lists composition providers that permanently failed
	// for this trip, from the failedcomposition-<name> keys.
	FailedProviders []string `json:"-"`
}

// UnmarshalJSON decodes the known fields and collects permanent-failure
// flags of composition providers.
func (s *Status) UnmarshalJSON(data []byte) error {
	type plain Status
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	for k, v := range keys {
		if strings.HasPrefix(k, FailedCompositionPrefix) && string(v) == "true" {
			p.FailedProviders = append(p.FailedProviders, strings.TrimPrefix(k, FailedCompositionPrefix))
		}
	}
	sort.Strings(p.FailedProviders)

	*s = Status(p)
	return nil
}

// Decode parses a status document.
func Decode(data []byte) (Status, error) {
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("decode status: %w", err)
	}
	return s, nil
}

// JourneyID returns the trip key of the status.
func (s Status) JourneyID() string {
	return fmt.Sprintf("%d%s", s.FromStation.ScheduledTime, s.Train.ID)
}

// IsManual reports whether the trip was entered by hand.
func (s Status) IsManual() bool {
	return strings.HasPrefix(s.Train.ID, ManualPrefix)
}

// IsPrivate reports whether the user chose not to share this check-in.
func (s Status) IsPrivate() bool {
	return s.Visibility.Desc == "private"
}

// ProviderFailed reports whether the named composition provider is flagged
// as permanently failed for this trip.
func (s Status) ProviderFailed(name string) bool {
	for _, p := range s.FailedProviders {
		if p == name {
			return true
		}
	}
	return false
}

// Display returns a short human name of the train, e.g. "RJX 63".
func (s Status) Display() string {
	name := s.Train.Line
	if name == "" {
		name = s.Train.No
	}
	if s.Train.Type == "" {
		return name
	}
	if name == "" {
		return s.Train.Type
	}
	return s.Train.Type + " " + name
}
