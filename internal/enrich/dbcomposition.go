package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// dbReplaceClasses maps class numbers found in DB vehicle ids to the ones
// commonly used for the trainset.
var dbReplaceClasses = map[string]string{
	"812": "412",
	"811": "411",
	"815": "415",
	"808": "408",
}

// dbClassNames names multiple unit classes.
var dbClassNames = map[string]string{
	"401": "ICE 1",
	"402": "ICE 2",
	"403": "ICE 3",
	"406": "ICE 3",
	"407": "ICE 3",
	"408": "ICE 3neo",
	"411": "ICE-T",
	"412": "ICE 4",
	"415": "ICE-T",
	"427": "FLIRT",
	"428": "FLIRT",
	"429": "FLIRT",
	"462": "ICE 3",
}

type dbCarriage struct {
	UIC  string `json:"uic_id"`
	Type string `json:"type"`
}

type dbGroup struct {
	Designation string       `json:"designation"`
	Carriages   []dbCarriage `json:"carriages"`
}

func multipleUnit(cs []dbCarriage) bool {
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if len(c.UIC) < 11 || c.UIC[0] != '9' {
			return false
		}
	}
	return true
}

// describeGroup renders one group of a DB formation. Multiple units show
// class and lowest vehicle number ("412 013 ICE 4 (7 Wagen)"); loose
// carriages are listed by type.
func describeGroup(g dbGroup) []string {
	cs := g.Carriages
	if multipleUnit(cs) {
		raw := cs[0].UIC[5:8]
		class := raw
		if r, ok := dbReplaceClasses[class]; ok {
			class = r
		}
		numbers := make([]int, 0, len(cs))
		for _, c := range cs {
			if c.UIC[5:8] != raw {
				continue
			}
			if n, err := strconv.Atoi(c.UIC[8:11]); err == nil {
				numbers = append(numbers, n)
			}
		}
		sort.Ints(numbers)

		unit := class
		if len(numbers) > 0 {
			unit = fmt.Sprintf("%s %03d", class, numbers[0])
		}
		name := dbClassNames[class]
		if name == "ICE 4" || name == "ICE-T" || strings.HasPrefix(name, "FLIRT") {
			name += fmt.Sprintf(" (%d Wagen)", len(cs))
		}
		if g.Designation != "" {
			name = strings.TrimSpace(name + " " + g.Designation)
		}
		if name != "" {
			unit += " " + name
		}
		return []string{unit}
	}

	types := make([]string, 0, len(cs))
	for _, c := range cs {
		t := c.Type
		if c.UIC != "" && (c.UIC[0] == '9' || c.UIC[0] == 'L') {
			if len(c.UIC) == 12 {
				t = fmt.Sprintf("%s %s-%s", c.UIC[4:8], c.UIC[8:11], c.UIC[11:])
			} else {
				t = c.UIC
			}
		}
		types = append(types, t)
	}
	return groupRuns(types)
}

// dbProvider queries a DB carriage formation gateway:
//
//	GET {base}/composition?time=&eva=&type=&number=
type dbProvider struct {
	fetch *Fetcher
	base  string
}

func newDBProvider(fetch *Fetcher, base string) *dbProvider {
	return &dbProvider{fetch: fetch, base: strings.TrimSuffix(base, "/")}
}

func (d *dbProvider) strategy() Strategy {
	return Strategy{
		Name: "db",
		Applies: func(c *Context) bool {
			uic := c.Status.FromStation.UIC
			return d.base != "" && c.Status.Train.No != "" && uic > 8000000 && uic < 8100000
		},
		Fetch: d.compose,
	}
}

func (d *dbProvider) compose(ctx context.Context, c *Context) (Result, error) {
	st := c.Status
	u := d.base + "/composition?" + url.Values{
		"time":   {strconv.FormatInt(st.FromStation.ScheduledTime, 10)},
		"eva":    {strconv.FormatInt(st.FromStation.UIC, 10)},
		"type":   {st.Train.Type},
		"number": {st.Train.No},
	}.Encode()

	var resp struct {
		Groups      []dbGroup `json:"groups"`
		ErrorString string    `json:"error_string"`
	}
	if err := d.fetch.GetJSON(ctx, "db", u, &resp); err != nil {
		return Result{}, err
	}
	if strings.HasPrefix(resp.ErrorString, "404") {
		return Result{}, fmt.Errorf("db train %s: %w", st.Train.No, ErrNotFound)
	}
	if resp.ErrorString != "" {
		return Result{}, &ProviderError{Provider: "db", Err: errors.New(resp.ErrorString)}
	}

	var units []string
	for _, g := range resp.Groups {
		units = append(units, describeGroup(g)...)
	}

	dep := time.Unix(st.FromStation.ScheduledTime, 0).UTC()
	link := "https://dbf.finalrewind.org/carriage-formation?" + url.Values{
		"number":           {st.Train.No},
		"category":         {st.Train.Type},
		"administrationId": {"80"},
		"evaNumber":        {strconv.FormatInt(st.FromStation.UIC, 10)},
		"date":             {dep.Format("2006-01-02")},
		"time":             {dep.Format("2006-01-02T15:04:05") + "Z"},
	}.Encode()

	return Result{Composition: joinUnits(units), Link: link}, nil
}
