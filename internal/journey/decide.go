package journey

import (
	"math"
	"time"

	"github.com/roach88/travelrelay/internal/status"
)

const (
	// MaxChangeDistanceKM is the farthest a change may walk without
	// starting a new journey.
	MaxChangeDistanceKM = 2.0

	// MaxChangeDuration is the longest layover within one journey.
	MaxChangeDuration = 2 * time.Hour
)

const earthRadiusKM = 6371.0088

// DistanceKM returns the great-circle distance between two points.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// Input is everything a continuity decision depends on.
type Input struct {
	// Last is the latest trip of the journey, nil if the journey is empty.
	Last     *status.Status
	Incoming status.Status
	Reason   status.Reason
	Mode     BreakMode
	// Current holds every trip of the journey.
	Current []status.Status
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Break    bool
	NextMode BreakMode
}

// Evaluate decides whether Incoming starts a new journey.
func Evaluate(in Input) Decision {
	keep := Decision{Break: false, NextMode: in.Mode}
	if in.Last == nil {
		return keep
	}

	if in.Reason == status.ReasonCheckout {
		for _, s := range in.Current {
			if s.Train.ID == in.Incoming.Train.ID {
				return keep
			}
		}
	}

	if in.Last.Train.ID == in.Incoming.Train.ID {
		return keep
	}

	switch in.Mode {
	case ForceBreak:
		return Decision{Break: true, NextMode: Natural}
	case ForceGlue:
		return Decision{Break: false, NextMode: Natural}
	case ForceGlueLatch:
		return keep
	}

	return Decision{Break: naturalBreak(*in.Last, in.Incoming), NextMode: in.Mode}
}

// ShouldBreak is Evaluate without the mode transition.
func ShouldBreak(last *status.Status, incoming status.Status, reason status.Reason, mode BreakMode, current []status.Status) bool {
	return Evaluate(Input{Last: last, Incoming: incoming, Reason: reason, Mode: mode, Current: current}).Break
}

func naturalBreak(last, incoming status.Status) bool {
	from, to := last.ToStation, incoming.FromStation
	distance := DistanceKM(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
	manual := last.IsManual() || incoming.IsManual()
	elapsed := time.Duration(to.RealTime-from.RealTime) * time.Second

	return (distance > MaxChangeDistanceKM && !manual) || elapsed > MaxChangeDuration
}
