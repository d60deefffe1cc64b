package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	britishHeadcode     = regexp.MustCompile(`^[A-Z]\d{5}$`)
	britishClassNumbers = regexp.MustCompile(`(\d{3})(\d{3})`)
)

// rttProvider scrapes allocations from Realtime Trains. Besides the
// composition it reports operator, network and destination, which are
// kept even when no allocation is published.
type rttProvider struct {
	fetch *Fetcher
	base  string
}

func newRTTProvider(fetch *Fetcher, base string) *rttProvider {
	return &rttProvider{fetch: fetch, base: strings.TrimSuffix(base, "/")}
}

func (r *rttProvider) strategy() Strategy {
	return Strategy{
		Name: "rtt",
		Applies: func(c *Context) bool {
			uic := c.Status.FromStation.UIC
			return r.base != "" && uic > 7000000 && uic < 7100000 && britishHeadcode.MatchString(c.Status.Train.Line)
		},
		Fetch: r.compose,
	}
}

func (r *rttProvider) compose(ctx context.Context, c *Context) (Result, error) {
	u := fmt.Sprintf("%s/service/gb-nr:%s/%s/detailed", r.base, c.Status.Train.Line, c.Now.Format("2006-01-02"))
	doc, err := r.fetch.GetHTML(ctx, "rtt", u)
	if err != nil {
		return Result{}, err
	}

	res := Result{Extra: map[string]any{"network": "UK"}}

	header := strings.Join(strings.Fields(doc.Find("#servicetitle .header").First().Text()), " ")
	if i := strings.LastIndex(header, " to "); i >= 0 {
		if dest := strings.TrimSpace(header[i+len(" to "):]); dest != "" {
			res.Extra["train"] = map[string]any{"fakeheadsign": dest}
		}
	}
	if op := strings.TrimSpace(doc.Find("#servicetitle .toc > div").First().Text()); op != "" {
		res.Extra["operator"] = op
	}

	allocation := strings.TrimSpace(doc.Find("div.allocation").First().Text())
	if allocation == "" {
		return res, nil
	}
	allocation = britishClassNumbers.ReplaceAllString(allocation, "$1 $2")
	res.Composition = joinUnits(strings.Split(allocation, "+"))
	return res, nil
}
