package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/travelrelay/internal/patch"
	"github.com/roach88/travelrelay/internal/store"
	"github.com/roach88/travelrelay/internal/testutil"
)

func talent(n int) string {
	out := "["
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += `{"lengthOverBuffers":66.87,"capacitySecondClass":199,"capacityFirstClass":0}`
	}
	return out + "]"
}

func TestClassifyWagons(t *testing.T) {
	w := func(kv ...any) oebbWagon {
		m := oebbWagon{}
		for i := 0; i < len(kv); i += 2 {
			m[kv[i].(string)] = kv[i+1]
		}
		return m
	}
	desiro := []oebbWagon{
		w("lengthOverBuffers", 24.53, "capacitySecondClass", 71.0),
		w("lengthOverBuffers", 26.1, "capacitySecondClass", 100.0),
		w("lengthOverBuffers", 24.53, "capacitySecondClass", 83.0),
	}
	reversed := []oebbWagon{desiro[2], desiro[1], desiro[0]}
	loco := w("lengthOverBuffers", 19.28, "capacityFirstClass", 0.0, "capacitySecondClass", 0.0)
	unknown := w("lengthOverBuffers", 12.0)

	assert.Equal(t, []string{"4744 Desiro ML"}, classifyWagons(desiro))
	assert.Equal(t, []string{"4744 Desiro ML"}, classifyWagons(reversed))
	assert.Equal(t, []string{"1016", "Wagen", "4744 Desiro ML"}, classifyWagons(append([]oebbWagon{loco, unknown}, desiro...)))
}

func TestOEBBUnits(t *testing.T) {
	got := oebbUnits([]string{"1016", "7x ÖBB Railjet 1", "7x ÖBB Railjet 1", "Bmz", "Bmz", "Amz"})
	assert.Equal(t, []string{"1016", "7x ÖBB Railjet 1", "7x ÖBB Railjet 1", "2x Bmz", "Amz"}, got)
}

func TestOEBBStationName(t *testing.T) {
	assert.Equal(t, "Linz/Donau Hbf", oebbStationName("Linz/Donau Hbf"))
	assert.Equal(t, "Gmünd NÖ", oebbStationName("Gmünd NÖ Bahnhof"))
	assert.Equal(t, "Wartberg", oebbStationName("Wartberg Bahnhst"))
}

func TestOEBBProvider(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ImportOEBBStations(context.Background(), []store.OEBBStation{{Name: "Wien Hbf", EvaNr: 1290401}})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/backend/info", r.URL.Path)
		assert.Equal(t, "640", r.URL.Query().Get("trainNr"))
		assert.Equal(t, "1290401", r.URL.Query().Get("station"))
		fmt.Fprintf(w, `{"train":{"wagons":%s}}`, talent(2))
	}))
	defer srv.Close()

	p := New(s, Config{Endpoints: Endpoints{OEBB: srv.URL}})
	id := storeTrip(t, s, testutil.NewStatus("rjx640"))

	_, err = p.Enrich(context.Background(), Job{UserID: 1, JourneyID: id})
	require.NoError(t, err)

	st, err := loadTrip(t, s, id).Status()
	require.NoError(t, err)
	assert.Contains(t, st.Composition, "[2x 4024 Talent]("+srv.URL+"/train-info?")
}

func TestOEBBProvider_UnknownStationIsMiss(t *testing.T) {
	s := createTestStore(t)
	p := New(s, Config{Endpoints: Endpoints{OEBB: "http://127.0.0.1:1"}})
	id := storeTrip(t, s, testutil.NewStatus("rjx640"))

	_, err := p.Enrich(context.Background(), Job{UserID: 1, JourneyID: id})
	require.NoError(t, err)
	assert.True(t, patch.Flag(loadTrip(t, s, id).StatusPatch, "failedcomposition-oebb"))
}

func TestDescribeGroup(t *testing.T) {
	ice4 := dbGroup{Designation: "Ulm", Carriages: []dbCarriage{
		{UIC: "938058125134"},
		{UIC: "938058120134"},
		{UIC: "938058120530"},
	}}
	assert.Equal(t, []string{"412 013 ICE 4 (3 Wagen) Ulm"}, describeGroup(ice4))

	mixed := dbGroup{Carriages: []dbCarriage{
		{Type: "Bpmz"},
		{Type: "Bpmz"},
		{UIC: "918011010010", Type: "101"},
	}}
	assert.Equal(t, []string{"2x Bpmz", "1101 001-0"}, describeGroup(mixed))
}

func dbStatus() *testutil.StatusBuilder {
	return testutil.NewStatus("ice1001").
		From("München Hbf", 8000261, 48.1402, 11.5600, testutil.Base).
		Train("ICE", "", "1001").
		Backend("DBRIS", "bahn.de")
}

func TestDBProvider(t *testing.T) {
	s := createTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/composition", r.URL.Path)
		assert.Equal(t, "8000261", r.URL.Query().Get("eva"))
		fmt.Fprint(w, `{"groups":[{"designation":"Ulm","carriages":[{"uic_id":"938058120134"},{"uic_id":"938058120530"}]}]}`)
	}))
	defer srv.Close()

	p := New(s, Config{Endpoints: Endpoints{DB: srv.URL}})
	id := storeTrip(t, s, dbStatus())

	_, err := p.Enrich(context.Background(), Job{UserID: 1, JourneyID: id})
	require.NoError(t, err)

	st, err := loadTrip(t, s, id).Status()
	require.NoError(t, err)
	assert.Contains(t, st.Composition, "[412 013 ICE 4 (2 Wagen) Ulm](https://dbf.finalrewind.org/carriage-formation?")
}

func TestDBProvider_NotFound(t *testing.T) {
	s := createTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error_string":"404 Not Found"}`)
	}))
	defer srv.Close()

	p := New(s, Config{Endpoints: Endpoints{DB: srv.URL}})
	id := storeTrip(t, s, dbStatus())

	_, err := p.Enrich(context.Background(), Job{UserID: 1, JourneyID: id})
	require.NoError(t, err)
	assert.True(t, patch.Flag(loadTrip(t, s, id).StatusPatch, "failedcomposition-db"))
}

func TestNSProvider(t *testing.T) {
	s := createTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/trein", r.URL.Path)
		assert.Equal(t, "3045", r.URL.Query().Get("ids"))
		fmt.Fprint(w, `[{"materieeldelen":[{"type":"VIRM","materieelnummer":8742},{"type":null}]}]`)
	}))
	defer srv.Close()

	p := New(s, Config{Endpoints: Endpoints{NS: srv.URL}})
	id := storeTrip(t, s, testutil.NewStatus("ic3045").
		From("Amsterdam Centraal", 8400058, 52.3789, 4.9003, testutil.Base).
		Train("IC", "", "3045"))

	_, err := p.Enrich(context.Background(), Job{UserID: 1, JourneyID: id})
	require.NoError(t, err)

	st, err := loadTrip(t, s, id).Status()
	require.NoError(t, err)
	assert.Equal(t, "**VIRM** 8742 + **Trein**", st.Composition)
}

func TestVagonwebOperator(t *testing.T) {
	assert.Equal(t, "RJ", vagonwebOperator("Regiojet a.s.", 5400001))
	assert.Equal(t, "CD", vagonwebOperator("Nahreisezug", 5457076))
	assert.Equal(t, "SŽ", vagonwebOperator("Nahreisezug", 7942300))
	assert.Empty(t, vagonwebOperator("Nahreisezug", 8100001))
	assert.Empty(t, vagonwebOperator("Österreichische Bundesbahnen", 5400001))
}

const vagonwebPage = `<html><body>
<div id="cesta3"><i>Metropolitan</i></div>
<div id="planovane_razeni"><table><tr>
<td class="bunka_vozu"><a title="Züge mit Wagen: Bmz">1</a></td>
<td class="bunka_vozu"><a title="Züge mit Wagen: Bmz">2</a></td>
<td class="bunka_vozu"><a title="Lok">3</a></td>
<td class="bunka_vozu"><a title="Züge mit Wagen: Ampz">4</a></td>
</tr></table></div>
</body></html>`

func TestVagonwebProvider(t *testing.T) {
	s := createTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/razeni/vlak.php", r.URL.Path)
		assert.Equal(t, "RJ", r.URL.Query().Get("zeme"))
		assert.Equal(t, "2024", r.URL.Query().Get("rok"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		fmt.Fprint(w, vagonwebPage)
	}))
	defer srv.Close()

	clock := testutil.NewClock(time.Unix(testutil.Base, 0))
	p := New(s, Config{Endpoints: Endpoints{Vagonweb: srv.URL}}, WithClock(clock.Now))
	id := storeTrip(t, s, testutil.NewStatus("rj1020").
		From("Praha hl.n.", 5457076, 50.0833, 14.4353, testutil.Base).
		Train("RJ", "", "1020"))
	require.NoError(t, s.SaveTimetable(context.Background(), 1, id, "?", []byte(`{"operator":"Regiojet a.s.","failedhafas":true}`)))

	_, err := p.Enrich(context.Background(), Job{UserID: 1, JourneyID: id})
	require.NoError(t, err)

	trip := loadTrip(t, s, id)
	st, err := trip.Status()
	require.NoError(t, err)
	assert.Contains(t, st.Composition, "[2x Bmz + Ampz]("+srv.URL+"/razeni/vlak.php?")
	assert.Contains(t, string(trip.HafasData), "Metropolitan")
}

const rttPage = `<html><body>
<div id="servicetitle">
  <div class="header">1A23 10:00 London Paddington to <span>Bristol Temple Meads</span></div>
  <div class="toc"><div>Great Western Railway</div></div>
</div>
<div class="allocation">800301+800302</div>
</body></html>`

func rttStatus() *testutil.StatusBuilder {
	return testutil.NewStatus("gw1a23").
		From("London Paddington", 7031510, 51.5166, -0.1769, testutil.Base).
		Train("", "C12345", "")
}

func TestRTTProvider(t *testing.T) {
	s := createTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/service/gb-nr:C12345/2024-05-01/detailed", r.URL.Path)
		fmt.Fprint(w, rttPage)
	}))
	defer srv.Close()

	clock := testutil.NewClock(time.Unix(testutil.Base, 0))
	p := New(s, Config{Endpoints: Endpoints{RTT: srv.URL}}, WithClock(clock.Now))
	id := storeTrip(t, s, rttStatus())

	_, err := p.Enrich(context.Background(), Job{UserID: 1, JourneyID: id})
	require.NoError(t, err)

	st, err := loadTrip(t, s, id).Status()
	require.NoError(t, err)
	assert.Equal(t, "800 301 + 800 302", st.Composition)
	assert.Equal(t, "UK", st.Network)
	assert.Equal(t, "Great Western Railway", st.Operator)
	assert.Equal(t, "Bristol Temple Meads", st.Train.FakeHeadsign)
}

func TestRTTProvider_NoAllocation(t *testing.T) {
	s := createTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="servicetitle"><div class="toc"><div>Southern</div></div></div></body></html>`)
	}))
	defer srv.Close()

	p := New(s, Config{Endpoints: Endpoints{RTT: srv.URL}})
	id := storeTrip(t, s, rttStatus())

	_, err := p.Enrich(context.Background(), Job{UserID: 1, JourneyID: id})
	require.NoError(t, err)

	st, err := loadTrip(t, s, id).Status()
	require.NoError(t, err)
	assert.Empty(t, st.Composition)
	assert.Equal(t, "Southern", st.Operator)
	assert.True(t, st.ProviderFailed("rtt"))
}

func TestFetcher_RetriesGatewayErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var out struct{ OK bool }
	require.NoError(t, NewFetcher(time.Second).GetJSON(context.Background(), "test", srv.URL, &out))
	assert.True(t, out.OK)
	assert.Equal(t, 2, calls)
}

func TestFetcher_ClassifiesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	_, err := f.Get(context.Background(), "test", srv.URL+"/missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Get(context.Background(), "test", srv.URL+"/broken", nil)
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.False(t, IsProviderError(fmt.Errorf("wrapped: %w", ErrNotFound)))
}

func TestHTTPTimetable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/stationboard":
			if q.Get("station") == "1" {
				fmt.Fprint(w, `{"error_string":"LOCATION: unknown"}`)
				return
			}
			fmt.Fprint(w, `{"trains":[{"id":"1|a","scheduled":100,"number":640,"type":"RJX","line":null,"direction":"Graz"}]}`)
		case "/trip":
			fmt.Fprint(w, `{"id":"1|a","operator":"ÖBB","route":[{"name":"Graz Hbf","eva":8100173}],"polyline":[]}`)
		case "/stations":
			fmt.Fprint(w, `[{"name":"Graz Hbf","eva":8100173}]`)
		}
	}))
	defer srv.Close()

	tt := NewHTTPTimetable(NewFetcher(time.Second), srv.URL+"/")
	ctx := context.Background()

	sb, err := tt.Stationboard(ctx, "ÖBB", 8103000, 100)
	require.NoError(t, err)
	require.Len(t, sb.Trains, 1)
	assert.Equal(t, loose("640"), sb.Trains[0].Number)
	assert.Equal(t, loose(""), sb.Trains[0].Line)

	_, err = tt.Stationboard(ctx, "ÖBB", 1, 100)
	assert.ErrorIs(t, err, ErrUnknownStation)

	td, err := tt.Trip(ctx, "ÖBB", "1|a")
	require.NoError(t, err)
	assert.Equal(t, "ÖBB", td.Operator)
	assert.Contains(t, td.Raw, "polyline")

	eva, err := tt.FindStation(ctx, "ÖBB", "Graz")
	require.NoError(t, err)
	assert.Equal(t, int64(8100173), eva)
}
