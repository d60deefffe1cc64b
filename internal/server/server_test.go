package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/travelrelay/internal/livefeed"
	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
	"github.com/roach88/travelrelay/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// stubFeed returns a canned result and records deliveries.
type stubFeed struct {
	res    livefeed.Result
	err    error
	events []status.Event
	users  []int64
}

func (f *stubFeed) Handle(ctx context.Context, userID int64, ev status.Event) (livefeed.Result, error) {
	f.users = append(f.users, userID)
	f.events = append(f.events, ev)
	return f.res, f.err
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateUser(context.Background(), store.User{ID: 7, TokenStatus: "status", TokenWebhook: "hook-token"}))
	return s
}

func post(t *testing.T, h http.Handler, auth string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/travelynx", bytes.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhook_Auth(t *testing.T) {
	s := createTestStore(t)
	feed := &stubFeed{}
	h := New(Config{}, s, feed).Handler()
	body := testutil.NewStatus("1").Body(status.ReasonCheckin)

	assert.Equal(t, http.StatusUnauthorized, post(t, h, "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, h, "Basic abc", body).Code)
	assert.Equal(t, http.StatusNotFound, post(t, h, "Bearer nope", body).Code)
	assert.Empty(t, feed.events)
}

func TestWebhook_Delivers(t *testing.T) {
	s := createTestStore(t)
	feed := &stubFeed{res: livefeed.Result{Outcome: livefeed.OutcomePublished, Text: "Successfully published RJX 640 checkin to 1 channels"}}
	h := New(Config{}, s, feed).Handler()

	w := post(t, h, "Bearer hook-token", testutil.NewStatus("1").Body(status.ReasonCheckin))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully published RJX 640 checkin to 1 channels", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	require.Len(t, feed.events, 1)
	assert.Equal(t, int64(7), feed.users[0])
	assert.Equal(t, status.ReasonCheckin, feed.events[0].Reason)
	assert.Equal(t, "Wien Hbf", feed.events[0].Status.FromStation.Name)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		err  error
		want int
	}{
		{"malformed", []byte(`{"reason":`), nil, http.StatusBadRequest},
		{"no status", []byte(`{"reason":"checkin"}`), nil, http.StatusBadRequest},
		{"ignored", testutil.NewStatus("1").Body("wave"), &status.ProtocolError{Code: status.ErrCodeUnknownReason}, http.StatusNoContent},
		{"protocol", testutil.NewStatus("1").Body(status.ReasonCheckin), &status.ProtocolError{Code: status.ErrCodeMalformed}, http.StatusBadRequest},
		{"internal", testutil.NewStatus("1").Body(status.ReasonCheckin), errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			h := New(Config{}, s, &stubFeed{err: tt.err}).Handler()

			w := post(t, h, "Bearer hook-token", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestWebhook_BodyLimit(t *testing.T) {
	s := createTestStore(t)
	feed := &stubFeed{}
	h := New(Config{MaxBody: 16}, s, feed).Handler()

	w := post(t, h, "Bearer hook-token", testutil.NewStatus("1").Body(status.ReasonCheckin))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, feed.events)
}

func TestWebhook_EndToEnd(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Subscribe(context.Background(), 7, -100))
	platform := testutil.NewMemoryPlatform()
	h := New(Config{}, s, livefeed.New(s, platform, nil)).Handler()

	w := post(t, h, "Bearer hook-token", testutil.NewStatus("1").CheckedOut().Body(status.ReasonPing))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "connected")

	w = post(t, h, "Bearer hook-token", testutil.NewStatus("1").Body(status.ReasonCheckin))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully published RJX 640 checkin to 1 channels", w.Body.String())
	assert.Equal(t, 1, platform.Count(-100))

	w = post(t, h, "Bearer hook-token", testutil.NewStatus("1").Body("wave"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestShortLink(t *testing.T) {
	s := createTestStore(t)
	link, err := s.ShortenLink(context.Background(), "https://live.oebb.at/train-info?trainNr=640", testutil.FixedIDs("abc123"))
	require.NoError(t, err)
	h := New(Config{}, s, &stubFeed{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/s/"+link.ShortID, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://live.oebb.at/train-info?trainNr=640", w.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/s/missing", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	h := New(Config{}, createTestStore(t), &stubFeed{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
