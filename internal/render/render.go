// Package render turns a journey into live-feed message text.
//
// Messages use Telegram's legacy Markdown: *bold*, _italic_ and
// [text](url) links.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/roach88/travelrelay/internal/chat"
	"github.com/roach88/travelrelay/internal/journey"
	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
)

// Line glyphs.
const (
	glyphStart       = "🚉"
	glyphRail        = "┃"
	glyphChange      = "🔄"
	glyphLeave       = "🚏"
	glyphWalk        = "🚶"
	glyphEnd         = "🏁"
	glyphComposition = "🚃"
	glyphSpeed       = "⏱"
	glyphComment     = "💬"
	glyphDestination = "🎯"
	glyphSum         = "Σ"
	glyphCompact     = "⋮"
)

// maxComment is the longest comment shown, in runes.
const maxComment = 500

// walkThresholdM is the distance between two stations from which a walk
// is drawn.
const walkThresholdM = 200.0

// RefreshPrefix starts the action data of the refresh button, followed
// by "<user id>/<journey id>".
const RefreshPrefix = "refresh:"

var typeEmoji = map[string]string{
	"ICE": "🚄", "IC": "🚄", "EC": "🚄", "ECE": "🚄", "RJ": "🚄", "RJX": "🚄",
	"TGV": "🚄", "FLX": "🚄", "NJ": "🛌", "EN": "🛌",
	"S": "🚈", "U": "🚇", "M": "🚇", "STR": "🚊", "Tram": "🚊",
	"Bus": "🚌", "O-Bus": "🚌", "Fähre": "⛴", "Schw-B": "🚟",
	"walk": "🚶", "bike": "🚲",
}

// Trip is one leg as rendered.
type Trip struct {
	UserID    int64
	JourneyID string
	Status    status.Status
	Headsign  string
}

// FromStore converts stored trips, skipping undecodable ones.
func FromStore(trips []store.Trip) []Trip {
	out := make([]Trip, 0, len(trips))
	for i := range trips {
		st, err := trips[i].Status()
		if err != nil {
			continue
		}
		out = append(out, Trip{UserID: trips[i].UserID, JourneyID: trips[i].JourneyID, Status: st, Headsign: trips[i].Headsign})
	}
	return out
}

// Options control rendering.
type Options struct {
	// Location is the zone times are shown in. Defaults to UTC.
	Location *time.Location

	// ContinueURL links to the message continuing the journey. When set,
	// all but the last trip are drawn compact and no totals are shown.
	ContinueURL string

	// ShowTrainNumbers adds the train number after the line.
	ShowTrainNumbers bool
}

// Journey renders trips, oldest first.
func Journey(trips []Trip, opts Options) chat.Content {
	if len(trips) == 0 {
		return chat.Content{}
	}
	c := chat.Content{Text: Text(trips, opts)}
	last := trips[len(trips)-1]
	if opts.ContinueURL == "" && last.Status.CheckedIn {
		c.Actions = []chat.Action{{Label: "🔄 Refresh", Data: RefreshData(last.UserID, last.JourneyID)}}
	}
	return c
}

// RefreshData encodes the refresh button of a trip.
func RefreshData(userID int64, journeyID string) string {
	return RefreshPrefix + strconv.FormatInt(userID, 10) + "/" + journeyID
}

// ParseRefresh decodes refresh button data.
func ParseRefresh(data string) (userID int64, journeyID string, ok bool) {
	rest, found := strings.CutPrefix(data, RefreshPrefix)
	if !found {
		return 0, "", false
	}
	user, journeyID, found := strings.Cut(rest, "/")
	if !found || journeyID == "" {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(user, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return userID, journeyID, true
}

// Text renders the message body.
func Text(trips []Trip, opts Options) string {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	r := &renderer{opts: opts}
	for i := range trips {
		r.trip(trips, i)
	}
	r.footer(trips)
	return strings.TrimRight(r.b.String(), "\n")
}

type renderer struct {
	b    strings.Builder
	opts Options
}

func (r *renderer) line(format string, args ...any) {
	fmt.Fprintf(&r.b, format, args...)
	r.b.WriteByte('\n')
}

func (r *renderer) clock(st status.Station) string {
	return formatTime(st.ScheduledTime, st.RealTime, r.opts.Location)
}

func (r *renderer) trip(trips []Trip, i int) {
	t := trips[i].Status
	first, last := i == 0, i == len(trips)-1

	if r.opts.ContinueURL != "" && !last {
		if first {
			r.line("%s %s %s", glyphStart, r.clock(t.FromStation), plain(t.FromStation.Name))
			r.b.WriteString(glyphCompact + " ")
		}
		r.b.WriteString(plain(r.trainName(t)))
		if i+1 < len(trips)-1 {
			r.b.WriteString(" → ")
		} else {
			r.b.WriteByte('\n')
		}
		return
	}

	switch {
	case first:
		r.line("%s %s %s", glyphStart, r.clock(t.FromStation), bold(t.FromStation.Name))
	case r.opts.ContinueURL != "":
		r.line("%s %s %s", glyphChange, r.clock(t.FromStation), bold(t.FromStation.Name))
	case !sameStop(trips[i-1].Status.ToStation, t.FromStation):
		r.line("%s %s %s", glyphStart, r.clock(t.FromStation), plain(t.FromStation.Name))
	}

	marker := ""
	if t.Comment != "" {
		marker = " ●"
	}
	r.line("%s %s %s%s", glyphRail, emoji(t.Train.Type), bold(r.trainName(t)+" » "+headsign(trips[i])), marker)

	if last {
		r.arrival(t)
		return
	}
	next := trips[i+1].Status
	if sameStop(t.ToStation, next.FromStation) {
		r.line("%s %s – %s %s", glyphChange, r.clock(t.ToStation), r.clock(next.FromStation), plain(t.ToStation.Name))
		return
	}
	r.line("%s %s %s", glyphLeave, r.clock(t.ToStation), plain(t.ToStation.Name))
	m := journey.DistanceKM(t.ToStation.Latitude, t.ToStation.Longitude, next.FromStation.Latitude, next.FromStation.Longitude) * 1000
	if m > walkThresholdM && !t.IsManual() && !next.IsManual() {
		r.line("%s _— %d m —_", glyphWalk, int(m))
	}
}

func (r *renderer) arrival(t status.Status) {
	r.line("%s %s %s", glyphEnd, r.clock(t.ToStation), bold(t.ToStation.Name))
	if t.Composition != "" {
		r.line("%s %s", glyphComposition, plain(t.Composition))
	}

	d := tripDuration(t)
	stats := glyphSpeed + " " + formatDuration(d)
	if km := tripKM(t); km > 0 {
		stats += fmt.Sprintf(" · %.1f km · %.0f km/h", km, km/d.Hours())
	}
	r.line("%s", stats)

	if t.Comment != "" {
		comment := t.Comment
		if utf8.RuneCountInString(comment) > maxComment {
			comment = string([]rune(comment)[:maxComment]) + "…"
		}
		r.line("%s %s", glyphComment, italic(comment))
	}
}

func (r *renderer) footer(trips []Trip) {
	r.b.WriteByte('\n')
	last := trips[len(trips)-1].Status
	if r.opts.ContinueURL != "" {
		r.line("%s [continue](%s)", glyphDestination, r.opts.ContinueURL)
		return
	}
	r.line("%s %s %s", glyphDestination, bold(last.ToStation.Name), r.clock(last.ToStation))

	if len(trips) < 2 {
		return
	}
	first := trips[0].Status
	total := time.Duration(last.ToStation.Time()-first.FromStation.Time()) * time.Second
	var transit time.Duration
	km := 0.0
	for _, t := range trips {
		transit += tripDuration(t.Status)
		km += tripKM(t.Status)
	}
	r.line("%s %d trips · %s (%s in transit) · %.1f km", glyphSum, len(trips), formatDuration(total), formatDuration(transit), km)
}

func (r *renderer) trainName(t status.Status) string {
	name := t.Display()
	if r.opts.ShowTrainNumbers && t.Train.Line != "" && t.Train.No != "" && t.Train.Line != t.Train.No {
		name += " (" + t.Train.No + ")"
	}
	return name
}

// plain escapes text shown outside any entity.
func plain(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// bold and italic wrap text in an entity. Entities cannot contain escapes,
// so a marker inside the text closes the entity, emits the escaped marker
// and reopens it.
func bold(s string) string { return entity("*", s) }

func italic(s string) string { return entity("_", s) }

func entity(marker, s string) string {
	parts := strings.Split(s, marker)
	for i, p := range parts {
		if p != "" {
			parts[i] = marker + p + marker
		}
	}
	return strings.Join(parts, `\`+marker)
}

func emoji(trainType string) string {
	if e, ok := typeEmoji[trainType]; ok {
		return e
	}
	return "🚆"
}

func headsign(t Trip) string {
	if t.Status.Train.FakeHeadsign != "" {
		return t.Status.Train.FakeHeadsign
	}
	if t.Headsign == "" {
		return store.HeadsignUnresolved
	}
	return t.Headsign
}

func sameStop(a, b status.Station) bool {
	return (a.UIC != 0 && a.UIC == b.UIC) || a.Name == b.Name
}

func tripDuration(t status.Status) time.Duration {
	d := time.Duration(t.ToStation.Time()-t.FromStation.Time()) * time.Second
	if d <= 0 {
		d = 30 * time.Second
	}
	return d
}

func tripKM(t status.Status) float64 {
	return journey.DistanceKM(t.FromStation.Latitude, t.FromStation.Longitude, t.ToStation.Latitude, t.ToStation.Longitude)
}

// formatTime renders the actual time and the delay, e.g. "12:05 +5′".
func formatTime(scheduled, actual int64, loc *time.Location) string {
	if actual == 0 {
		actual = scheduled
	}
	s := time.Unix(actual, 0).In(loc).Format("15:04")
	if actual > scheduled && scheduled > 0 {
		s += fmt.Sprintf(" +%d′", (actual-scheduled)/60)
	}
	return s
}

// formatDuration renders d as hours and minutes, e.g. "1:05 h".
func formatDuration(d time.Duration) string {
	m := int(d.Round(time.Minute).Minutes())
	return fmt.Sprintf("%d:%02d h", m/60, m%60)
}
