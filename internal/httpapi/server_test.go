package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PreBurstSentinel/internal/metrics"
	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/recorder"
	"PreBurstSentinel/internal/scanner"
	"PreBurstSentinel/internal/scheduler"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var next = time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC)

type fakeStatus struct{ st scheduler.Status }

func (f fakeStatus) Status() scheduler.Status { return f.st }

type fakeOpps []model.Opportunity

func (f fakeOpps) Active() []model.Opportunity { return f }

type fakeEvents struct {
	events []recorder.EventRecord
	err    error
	limit  int
}

func (f *fakeEvents) RecentEvents(limit int) ([]recorder.EventRecord, error) {
	f.limit = limit
	return f.events, f.err
}

func newTestServer(events *fakeEvents) (*Server, *metrics.Metrics) {
	wm := &model.Watermark{
		NextBoundary:  next,
		Universe:      []string{"BTCUSDT", "ETHUSDT"},
		RunState:      model.RunRunning,
		RunOwner:      "owner-1",
		Opportunities: map[string]model.Opportunity{},
	}
	st := scheduler.Status{Running: true, Owner: "owner-1", Watermark: wm, LastReport: &scanner.CycleReport{Scanned: 2}}
	opps := fakeOpps{{ID: "a", Pair: "BTCUSDT", Price: decimal.NewFromInt(64000), CCI: -130}}
	m := metrics.New()
	return NewServer(":0", fakeStatus{st}, opps, events, m), m
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndStatus(t *testing.T) {
	s, _ := newTestServer(&fakeEvents{})

	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "ok", decode(t, rec)["status"])

	body := decode(t, get(t, s, "/status"))
	assert.Equal(t, "running", body["run_state"])
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "2024-04-02T15:00:00Z", body["next_boundary"])
}

func TestUniverseAndOpportunities(t *testing.T) {
	s, _ := newTestServer(&fakeEvents{})

	body := decode(t, get(t, s, "/universe"))
	assert.Equal(t, []any{"BTCUSDT", "ETHUSDT"}, body["universe"])

	body = decode(t, get(t, s, "/opportunities"))
	require.Len(t, body["opportunities"], 1)

	rec := get(t, s, "/opportunities/BTCUSDT")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "64000", decode(t, rec)["price"])

	rec = get(t, s, "/opportunities/ADAUSDT")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents(t *testing.T) {
	events := &fakeEvents{events: []recorder.EventRecord{{OpportunityID: "a", Kind: "CREATED", Pair: "BTCUSDT"}}}
	s, _ := newTestServer(events)

	rec := get(t, s, "/events?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, events.limit)
	assert.Len(t, decode(t, rec)["events"], 1)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/events?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/events?limit=0").Code)

	events.err = errors.New("db locked")
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/events").Code)
	assert.Equal(t, 50, events.limit)

	events.err, events.events = nil, nil
	assert.Equal(t, []any{}, decode(t, get(t, s, "/events"))["events"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestServer(&fakeEvents{})
	m.ObserveCycle(time.Second, 1)

	rec := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "preburst_scan_cycles_total 1"))
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer(&fakeEvents{})
	rec := get(t, s, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode(t, rec)["error"])
}
