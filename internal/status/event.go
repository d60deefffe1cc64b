package status

import (
	"encoding/json"
)

// Event is one webhook delivery.
type Event struct {
	Reason Reason
	Status Status

	// Raw is the status document exactly as delivered.
	Raw json.RawMessage
}

type wireEvent struct {
	Reason Reason          `json:"reason"`
	Status json.RawMessage `json:"status"`
}

// ParseEvent decodes a webhook body. Malformed bodies yield a ProtocolError
// with code ErrCodeMalformed.
func ParseEvent(body []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, &ProtocolError{Code: ErrCodeMalformed, Message: "body is not a webhook event", Err: err}
	}
	if len(w.Status) == 0 || string(w.Status) == "null" {
		return Event{}, &ProtocolError{Code: ErrCodeMalformed, Message: "event has no status"}
	}
	s, err := Decode(w.Status)
	if err != nil {
		return Event{}, &ProtocolError{Code: ErrCodeMalformed, Message: "status is not decodable", Err: err}
	}
	return Event{Reason: w.Reason, Status: s, Raw: w.Status}, nil
}

// NewEvent builds an event from an already encoded status document.
func NewEvent(reason Reason, raw []byte) (Event, error) {
	s, err := Decode(raw)
	if err != nil {
		return Event{}, err
	}
	return Event{Reason: reason, Status: s, Raw: raw}, nil
}

// Validate checks that the event is one the live feed should process.
// Pings for users that are not checked in are valid and carry no trip.
func (e Event) Validate() error {
	if !e.Reason.Known() {
		return &ProtocolError{Code: ErrCodeUnknownReason, Message: "unhandled reason " + string(e.Reason)}
	}
	if e.Status.ToStation.Name == "" {
		return &ProtocolError{Code: ErrCodeNoDestination, Message: "status has no destination"}
	}
	return nil
}
