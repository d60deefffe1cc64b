package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStatus = `{
	"checkedIn": true,
	"actionTime": 1700000000,
	"fromStation": {"name": "Wien Hbf", "uic": 8103000, "latitude": 48.185, "longitude": 16.376, "scheduledTime": 1700001000, "realTime": 1700001060},
	"toStation": {"name": "Salzburg Hbf", "uic": 8100002, "latitude": 47.813, "longitude": 13.046, "scheduledTime": 1700010000, "realTime": 1700010000},
	"train": {"type": "RJX", "line": null, "no": "63", "id": "2|#VN#1#ST#1"},
	"visibility": {"desc": "public", "level": 100},
	"backend": {"name": "ÖBB", "type": "HAFAS", "id": 3},
	"failedcomposition-db": true,
	"failedcomposition-ns": false,
	"intermediateStops": []
}`

func TestDecode(t *testing.T) {
	s, err := Decode([]byte(sampleStatus))
	require.NoError(t, err)

	assert.True(t, s.CheckedIn)
	assert.Equal(t, "Wien Hbf", s.FromStation.Name)
	assert.Equal(t, int64(8103000), s.FromStation.UIC)
	assert.Equal(t, "", s.Train.Line)
	assert.Equal(t, "HAFAS", s.Backend.Type)
	assert.Equal(t, []string{"db"}, s.FailedProviders)
	assert.True(t, s.ProviderFailed("db"))
	assert.False(t, s.ProviderFailed("ns"))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"checkedIn": "yes"}`))
	require.Error(t, err)
}

func TestJourneyID(t *testing.T) {
	s, err := Decode([]byte(sampleStatus))
	require.NoError(t, err)
	assert.Equal(t, "17000010002|#VN#1#ST#1", s.JourneyID())
}

func TestIsManual(t *testing.T) {
	s := Status{Train: Train{ID: ManualPrefix + "1"}}
	assert.True(t, s.IsManual())

	s.Train.ID = "12345"
	assert.False(t, s.IsManual())
}

func TestStationTime(t *testing.T) {
	assert.Equal(t, int64(10), Station{ScheduledTime: 10}.Time())
	assert.Equal(t, int64(20), Station{ScheduledTime: 10, RealTime: 20}.Time())
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		name  string
		train Train
		want  string
	}{
		{"line preferred", Train{Type: "S", Line: "S1", No: "30123"}, "S S1"},
		{"number fallback", Train{Type: "ICE", No: "597"}, "ICE 597"},
		{"type only", Train{Type: "Bus"}, "Bus"},
		{"no type", Train{No: "5"}, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status{Train: tt.train}.Display())
		})
	}
}

func TestParseEvent(t *testing.T) {
	e, err := ParseEvent([]byte(`{"reason": "checkin", "status": ` + sampleStatus + `}`))
	require.NoError(t, err)
	assert.Equal(t, ReasonCheckin, e.Reason)
	assert.Equal(t, "Salzburg Hbf", e.Status.ToStation.Name)
	assert.Contains(t, string(e.Raw), "intermediateStops")
	assert.NoError(t, e.Validate())
}

func TestParseEvent_Malformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"reason": "checkin"}`, `{"reason": "checkin", "status": null}`} {
		_, err := ParseEvent([]byte(body))
		require.Error(t, err, body)
		assert.True(t, IsProtocolError(err))
		assert.False(t, IsIgnorable(err))
	}
}

func TestValidate(t *testing.T) {
	e, err := ParseEvent([]byte(`{"reason": "teleport", "status": ` + sampleStatus + `}`))
	require.NoError(t, err)
	err = e.Validate()
	require.Error(t, err)
	assert.True(t, IsIgnorable(err))

	e.Reason = ReasonUpdate
	e.Status.ToStation.Name = ""
	err = e.Validate()
	require.Error(t, err)
	assert.True(t, IsIgnorable(err))
}
