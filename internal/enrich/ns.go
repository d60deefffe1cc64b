package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// nsProvider reads rolling stock from the NS virtual train API.
type nsProvider struct {
	fetch *Fetcher
	base  string
}

func newNSProvider(fetch *Fetcher, base string) *nsProvider {
	return &nsProvider{fetch: fetch, base: strings.TrimSuffix(base, "/")}
}

func (n *nsProvider) strategy() Strategy {
	return Strategy{
		Name: "ns",
		Applies: func(c *Context) bool {
			uic := c.Status.FromStation.UIC
			return n.base != "" && c.Status.Train.No != "" && uic > 8400000 && uic < 8500000
		},
		Fetch: n.compose,
	}
}

func (n *nsProvider) compose(ctx context.Context, c *Context) (Result, error) {
	no := c.Status.Train.No
	u := n.base + "/api/v1/trein?" + url.Values{"ids": {no}}.Encode()

	var trains []struct {
		Parts []struct {
			Type   string `json:"type"`
			Number loose  `json:"materieelnummer"`
		} `json:"materieeldelen"`
	}
	if err := n.fetch.GetJSON(ctx, "ns", u, &trains); err != nil {
		return Result{}, err
	}
	if len(trains) == 0 || len(trains[0].Parts) == 0 {
		return Result{}, fmt.Errorf("ns train %s: %w", no, ErrNotFound)
	}

	units := make([]string, 0, len(trains[0].Parts))
	for _, part := range trains[0].Parts {
		t := part.Type
		if t == "" {
			t = "Trein"
		}
		units = append(units, strings.TrimSpace(fmt.Sprintf("**%s** %s", t, part.Number)))
	}
	return Result{Composition: joinUnits(units)}, nil
}
