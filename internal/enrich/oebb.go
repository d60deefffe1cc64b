package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"github.com/roach88/travelrelay/internal/store"
)

// StationLookup resolves ÖBB station numbers by name.
type StationLookup interface {
	LookupOEBBStation(ctx context.Context, name string) (int64, error)
}

// vehicleClass describes a vehicle class by the attributes ÖBB live
// reports per wagon. A multiple unit lists one entry per coach.
type vehicleClass struct {
	Name  string
	Match []map[string]float64
}

// oebbClasses are tried in order; the first class whose coach list
// matches the next wagons (in either direction) consumes them. The final
// catch-all matches any single wagon.
var oebbClasses = []vehicleClass{
	{"1016", []map[string]float64{{"lengthOverBuffers": 19.28, "capacityFirstClass": 0, "capacitySecondClass": 0}}},
	{"1144", []map[string]float64{{"lengthOverBuffers": 16.1, "capacityFirstClass": 0, "capacitySecondClass": 0}}},
	{"1216", []map[string]float64{{"lengthOverBuffers": 19.58, "capacityFirstClass": 0, "capacitySecondClass": 0}}},
	{"4020", []map[string]float64{
		{"lengthOverBuffers": 23.3, "capacitySecondClass": 56},
		{"lengthOverBuffers": 22.8, "capacitySecondClass": 64},
		{"lengthOverBuffers": 23.3, "capacitySecondClass": 64},
	}},
	{"4023 Talent", []map[string]float64{{"lengthOverBuffers": 52.12, "capacitySecondClass": 151}}},
	{"4024 Talent", []map[string]float64{{"lengthOverBuffers": 66.87, "capacitySecondClass": 199}}},
	{"4744 Desiro ML", []map[string]float64{
		{"lengthOverBuffers": 24.53, "capacitySecondClass": 71},
		{"lengthOverBuffers": 26.1, "capacitySecondClass": 100},
		{"lengthOverBuffers": 24.53, "capacitySecondClass": 83},
	}},
	{"4746 Desiro ML", []map[string]float64{
		{"lengthOverBuffers": 24.53, "capacitySecondClass": 60},
		{"lengthOverBuffers": 26.1, "capacitySecondClass": 92},
		{"lengthOverBuffers": 24.53, "capacitySecondClass": 72},
	}},
	{"4748 Desiro ML", []map[string]float64{
		{"lengthOverBuffers": 24.53, "capacitySecondClass": 68},
		{"lengthOverBuffers": 26.1, "capacitySecondClass": 92},
		{"lengthOverBuffers": 26.1, "capacitySecondClass": 92},
		{"lengthOverBuffers": 24.53, "capacitySecondClass": 38},
	}},
	{"5022 Desiro Classic", []map[string]float64{{"lengthOverBuffers": 41.7, "capacitySecondClass": 117}}},
	{"5047", []map[string]float64{{"lengthOverBuffers": 25.4, "capacitySecondClass": 68}}},
	{"7x ÖBB Railjet 1", []map[string]float64{
		{"lengthOverBuffers": 26.5, "features": 33},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 0, "capacityFirstClass": 10, "features": 74},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 0, "capacityFirstClass": 55},
		{"lengthOverBuffers": 26.9, "capacitySecondClass": 0, "capacityFirstClass": 11, "capacityBusinessClass": 16},
	}},
	{"7x ÖBB Railjet 1b", []map[string]float64{
		{"lengthOverBuffers": 26.5, "features": 33},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 0, "capacityFirstClass": 10, "features": 74},
		{"lengthOverBuffers": 26.9, "capacitySecondClass": 0, "capacityFirstClass": 32, "capacityBusinessClass": 6},
	}},
	{"7x ČD Railjet 1", []map[string]float64{
		{"lengthOverBuffers": 26.5, "features": 33},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 80},
		{"lengthOverBuffers": 26.5, "capacitySecondClass": 0, "capacityFirstClass": 10, "features": 66},
		{"lengthOverBuffers": 26.9, "capacitySecondClass": 0, "capacityFirstClass": 32, "capacityBusinessClass": 6},
	}},
	{"411 ICE-T", []map[string]float64{
		{"lengthOverBuffers": 27.9, "capacityFirstClass": 43},
		{"lengthOverBuffers": 25.9, "capacityFirstClass": 12, "capacitySecondClass": 47},
		{"lengthOverBuffers": 25.9, "capacitySecondClass": 30, "features": 64},
		{"lengthOverBuffers": 25.9, "capacitySecondClass": 64},
		{"lengthOverBuffers": 25.9, "capacitySecondClass": 62},
		{"lengthOverBuffers": 25.9, "capacitySecondClass": 62},
		{"lengthOverBuffers": 27.9, "capacitySecondClass": 63},
	}},
	{"510 SŽ FLIRT", []map[string]float64{
		{"lengthOverBuffers": 23.38, "capacityFirstClass": 12, "capacitySecondClass": 44},
		{"lengthOverBuffers": 16.97, "capacitySecondClass": 55},
		{"lengthOverBuffers": 16.97, "capacitySecondClass": 64},
		{"lengthOverBuffers": 23.38, "capacitySecondClass": 60},
	}},
	{"4110 DB KISS", []map[string]float64{
		{"lengthOverBuffers": 25.36, "capacityFirstClass": 28, "capacitySecondClass": 32},
		{"lengthOverBuffers": 24.82, "capacitySecondClass": 85},
		{"lengthOverBuffers": 24.82, "capacitySecondClass": 79},
		{"lengthOverBuffers": 25.36, "capacitySecondClass": 71},
	}},
	{"412 ICE 4", []map[string]float64{
		{"lengthOverBuffers": 29.11, "capacityFirstClass": 50},
		{"lengthOverBuffers": 28.75, "capacityFirstClass": 21},
		{"lengthOverBuffers": 28.75, "capacitySecondClass": 42},
		{"lengthOverBuffers": 28.75, "capacitySecondClass": 92},
		{"lengthOverBuffers": 28.75, "capacitySecondClass": 88},
		{"lengthOverBuffers": 28.75, "capacitySecondClass": 92},
		{"lengthOverBuffers": 29.11, "capacitySecondClass": 59},
	}},
	{"CityShuttle Bmpz-s", []map[string]float64{{"lengthOverBuffers": 26.4, "capacitySecondClass": 44}}},
	{"CityShuttle Bmpz-l", []map[string]float64{{"lengthOverBuffers": 26.4, "capacitySecondClass": 80, "capacityBicycle": 1, "capacityWheelChair": 0}}},
	{"CityShuttle-Dosto Bmpz-dl", []map[string]float64{{"lengthOverBuffers": 26.8, "capacitySecondClass": 110}}},
	{"Wieseldosto Bmpz-dl", []map[string]float64{{"lengthOverBuffers": 26.8, "capacitySecondClass": 114}}},
	{"Wieseldosto Bbfmpz", []map[string]float64{{"lengthOverBuffers": 27.13, "capacitySecondClass": 86, "capacityBicycle": 1, "capacityWheelChair": 0}}},
	{"Amz", []map[string]float64{{"lengthOverBuffers": 26.4, "capacityFirstClass": 54}}},
	{"Bmpz70", []map[string]float64{{"lengthOverBuffers": 26.4, "capacitySecondClass": 78, "capacityBicycle": 1}}},
	{"Bmpz73", []map[string]float64{{"lengthOverBuffers": 26.4, "capacitySecondClass": 74, "capacityBicycle": 1}}},
	{"Bmz", []map[string]float64{{"lengthOverBuffers": 26.4, "capacitySecondClass": 66}}},
	{"WRmz", []map[string]float64{{"lengthOverBuffers": 26.9, "features": 64, "capacityFirstClass": 0, "capacitySecondClass": 0}}},
	{"Bbmvz", []map[string]float64{{"lengthOverBuffers": 26.4, "capacitySecondClass": 38, "features": 3}}},
	{"Wagen", []map[string]float64{{}}},
}

type oebbWagon map[string]any

func (w oebbWagon) matches(m map[string]float64) bool {
	for k, want := range m {
		got, ok := w[k].(float64)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func (c vehicleClass) matches(wagons []oebbWagon) bool {
	if len(wagons) != len(c.Match) {
		return false
	}
	forward, backward := true, true
	for i, m := range c.Match {
		forward = forward && wagons[i].matches(m)
		backward = backward && wagons[len(wagons)-1-i].matches(m)
	}
	return forward || backward
}

// classifyWagons splits a train into vehicle classes.
func classifyWagons(wagons []oebbWagon) []string {
	var classes []string
	for len(wagons) > 0 {
		matched := false
		for _, c := range oebbClasses {
			n := len(c.Match)
			if n > len(wagons) || !c.matches(wagons[:n]) {
				continue
			}
			classes = append(classes, c.Name)
			wagons = wagons[n:]
			matched = true
			break
		}
		if !matched {
			break
		}
	}
	return classes
}

// oebbUnits renders classes, listing whole trainsets ("7x ...") one by one
// and collapsing runs of single coaches.
func oebbUnits(classes []string) []string {
	var out, run []string
	flush := func() {
		out = append(out, groupRuns(run)...)
		run = nil
	}
	for _, c := range classes {
		if strings.HasPrefix(c, "7x") {
			flush()
			out = append(out, c)
			continue
		}
		run = append(run, c)
	}
	flush()
	return out
}

// oebbStationName strips suffixes the station table does not carry.
func oebbStationName(name string) string {
	name = strings.TrimSuffix(name, " Bahnhof")
	return strings.TrimSuffix(name, " Bahnhst")
}

type oebbProvider struct {
	fetch    *Fetcher
	base     string
	stations StationLookup
	cache    gcache.Cache
	loc      *time.Location
}

func newOEBBProvider(fetch *Fetcher, base string, stations StationLookup, loc *time.Location) *oebbProvider {
	return &oebbProvider{
		fetch:    fetch,
		base:     strings.TrimSuffix(base, "/"),
		stations: stations,
		cache:    gcache.New(2048).LRU().Expiration(24 * time.Hour).Build(),
		loc:      loc,
	}
}

func (o *oebbProvider) station(ctx context.Context, name string) (int64, error) {
	name = oebbStationName(name)
	if v, err := o.cache.Get(name); err == nil {
		return v.(int64), nil
	}
	eva, err := o.stations.LookupOEBBStation(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("oebb station %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	_ = o.cache.Set(name, eva)
	return eva, nil
}

func (o *oebbProvider) strategy() Strategy {
	return Strategy{
		Name: "oebb",
		Applies: func(c *Context) bool {
			return o.base != "" && c.Status.Train.No != ""
		},
		Fetch: o.compose,
	}
}

func (o *oebbProvider) compose(ctx context.Context, c *Context) (Result, error) {
	st := c.Status
	stationNo, err := o.station(ctx, st.FromStation.Name)
	if err != nil {
		return Result{}, err
	}
	dep := time.Unix(st.FromStation.ScheduledTime, 0).In(o.loc)

	u := fmt.Sprintf("%s/backend/info?%s", o.base, url.Values{
		"trainNr": {st.Train.No},
		"station": {fmt.Sprint(stationNo)},
		"date":    {dep.Format("2006-01-02")},
		"time":    {dep.Format("15:04")},
	}.Encode())

	var resp struct {
		Train *struct {
			Wagons []oebbWagon `json:"wagons"`
		} `json:"train"`
	}
	if err := o.fetch.GetJSON(ctx, "oebb", u, &resp); err != nil {
		return Result{}, err
	}
	if resp.Train == nil || len(resp.Train.Wagons) == 0 {
		return Result{}, fmt.Errorf("oebb train %s: %w", st.Train.No, ErrNotFound)
	}

	link := fmt.Sprintf("%s/train-info?%s", o.base, url.Values{
		"trainNr": {st.Train.No},
		"date":    {dep.Format("2006-01-02")},
		"station": {fmt.Sprint(st.FromStation.UIC)},
		"time":    {dep.Format("15:04")},
	}.Encode())

	return Result{
		Composition: joinUnits(oebbUnits(classifyWagons(resp.Train.Wagons))),
		Link:        link,
	}, nil
}
