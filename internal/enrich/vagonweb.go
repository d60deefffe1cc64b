package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// vagonwebOperators maps timetable operator names to vagonweb codes.
var vagonwebOperators = map[string]string{
	"ARRIVA vlaky":                "ARV",
	"Regiojet a.s.":               "RJ",
	"GW Train Regio":              "GWTR",
	"Leo Express Tenders s.r.o":   "LE",
	"GySEV":                       "GySEV",
	"Dänische Staatsbahnen":       "DSB",
	"SJ":                          "SJ",
	"VR":                          "VR",
	"Koleje Mazowieckie":          "KM",
	"Koleje Slaskie":              "KŚ",
	"SKPL Cargo Sp. z o. o.":      "SKPL",
	"Polregio":                    "PREG",
	"Schweizerische Bundesbahnen": "SBB",
	"SNCB":                        "SNCB",

	"Bulgarische Staatsbahnen Balgarski Darzavni Zeleznici": "BDŽ",
}

// nahreisezugOperators maps UIC station ranges to operator codes for
// trains the timetable only reports as "Nahreisezug".
var nahreisezugOperators = []struct {
	from, to int64
	code     string
}{
	{5100000, 5200000, "PKPIC"},
	{5300000, 5400000, "CFR"},
	{5400000, 5500000, "CD"},
	{5500000, 5600000, "MÁV"},
	{5600000, 5700000, "ZSSK"},
	{7900000, 8000000, "SŽ"},
}

const vagonwebCarriagePrefix = "Züge mit Wagen:"

func vagonwebOperator(operator string, uic int64) string {
	if code, ok := vagonwebOperators[operator]; ok {
		return code
	}
	if operator != "Nahreisezug" {
		return ""
	}
	for _, r := range nahreisezugOperators {
		if uic > r.from && uic < r.to {
			return r.code
		}
	}
	return ""
}

// vagonwebCarriages extracts the planned carriage types from a train page.
func vagonwebCarriages(doc *goquery.Document) []string {
	var types []string
	doc.Find("#planovane_razeni table").First().Find("td.bunka_vozu a").Each(func(_ int, a *goquery.Selection) {
		title, ok := a.Attr("title")
		if !ok || !strings.Contains(title, vagonwebCarriagePrefix) {
			return
		}
		t := strings.TrimSpace(strings.Replace(title, vagonwebCarriagePrefix, "", 1))
		if t != "" {
			types = append(types, t)
		}
	})
	return types
}

type vagonwebProvider struct {
	fetch *Fetcher
	base  string
}

func newVagonwebProvider(fetch *Fetcher, base string) *vagonwebProvider {
	return &vagonwebProvider{fetch: fetch, base: strings.TrimSuffix(base, "/")}
}

func (v *vagonwebProvider) strategy() Strategy {
	return Strategy{
		Name: "vagonweb",
		Applies: func(c *Context) bool {
			return v.base != "" && c.Status.Train.No != "" &&
				vagonwebOperator(c.Operator(), c.Status.FromStation.UIC) != ""
		},
		Fetch: v.compose,
	}
}

func (v *vagonwebProvider) compose(ctx context.Context, c *Context) (Result, error) {
	code := vagonwebOperator(c.Operator(), c.Status.FromStation.UIC)
	u := v.base + "/razeni/vlak.php?" + url.Values{
		"zeme":  {code},
		"cislo": {c.Status.Train.No},
		"rok":   {fmt.Sprint(c.Now.Year())},
		"lang":  {"de"},
	}.Encode()

	doc, err := v.fetch.GetHTML(ctx, "vagonweb", u)
	if err != nil {
		return Result{}, err
	}
	types := vagonwebCarriages(doc)
	if len(types) == 0 {
		return Result{}, fmt.Errorf("vagonweb %s %s: %w", code, c.Status.Train.No, ErrNotFound)
	}

	res := Result{Composition: joinUnits(groupRuns(types)), Link: u}
	if name := strings.TrimSpace(doc.Find("div#cesta3 i").First().Text()); name != "" {
		res.Messages = []string{name}
	}
	return res, nil
}
