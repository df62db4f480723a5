package opportunity

import (
	"context"
	"math"
	"testing"
	"time"

	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/state"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 4, 2, 14, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *state.Manager) {
	t.Helper()
	m, err := state.Open(context.Background(), state.NewMemoryStore(), []string{"BTCUSDT", "ETHUSDT"}, "1h", t0)
	require.NoError(t, err)
	s := NewStore(m)
	n := 0
	s.newID = func() string {
		n++
		return "opp-" + string(rune('0'+n))
	}
	return s, m
}

func signal(pair string, cci float64) *model.Signal {
	return &model.Signal{Pair: pair, Time: t0, Price: decimal.NewFromInt(100), CCI: cci, RSI: 40, BandSpan: 0.02}
}

// replay feeds a CCI sequence; the opportunity opens at openAt and the detector stays quiet after.
func replay(t *testing.T, readings []float64, openAt int) (closedAt int) {
	t.Helper()
	s, _ := newTestStore(t)
	ctx := context.Background()
	closedAt = -1
	for i, cci := range readings {
		var sig *model.Signal
		if i == openAt {
			sig = signal("BTCUSDT", cci)
		}
		events, err := s.Reconcile(ctx, "BTCUSDT", cci, sig, t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		for _, e := range events {
			switch e.Kind {
			case model.EventCreated:
				assert.Equal(t, openAt, i)
			case model.EventClosed:
				if closedAt == -1 {
					closedAt = i
				}
				assert.Equal(t, cci, e.ExitCCI)
			}
		}
	}
	return closedAt
}

func TestReconcile_ClosesWhenOversoldCCIRecovers(t *testing.T) {
	assert.Equal(t, 3, replay(t, []float64{-150, -120, -105, -95}, 1))
}

func TestReconcile_ClosesWhenOverboughtCCIFalls(t *testing.T) {
	assert.Equal(t, 3, replay(t, []float64{150, 120, 105, 95}, 1))
}

func TestReconcile_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	events, err := s.Reconcile(ctx, "BTCUSDT", -130, signal("BTCUSDT", -130), t0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventCreated, events[0].Kind)
	id := events[0].Opportunity.ID

	for i := 1; i <= 3; i++ {
		events, err = s.Reconcile(ctx, "BTCUSDT", -125, signal("BTCUSDT", -125), t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, events)
	}

	active := s.Active()
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].ID)
	assert.Equal(t, -130.0, active[0].CCI, "creation reading is kept")
}

func TestReconcile_OneRecordPerPair(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, "BTCUSDT", -130, signal("BTCUSDT", -130), t0)
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, "ETHUSDT", 140, signal("ETHUSDT", 140), t0)
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, "BTCUSDT", -140, signal("BTCUSDT", -140), t0.Add(time.Hour))
	require.NoError(t, err)

	active := s.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "BTCUSDT", active[0].Pair)
	assert.Equal(t, "ETHUSDT", active[1].Pair)
}

func TestReconcile_CloseThenReopenSameCycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, "BTCUSDT", -130, signal("BTCUSDT", -130), t0)
	require.NoError(t, err)

	events, err := s.Reconcile(ctx, "BTCUSDT", -90, signal("BTCUSDT", -90), t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventClosed, events[0].Kind)
	assert.Equal(t, model.EventCreated, events[1].Kind)
	assert.NotEqual(t, events[0].Opportunity.ID, events[1].Opportunity.ID)
}

func TestReconcile_NoReadingKeepsOpen(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, "BTCUSDT", -130, signal("BTCUSDT", -130), t0)
	require.NoError(t, err)
	events, err := s.Reconcile(ctx, "BTCUSDT", math.NaN(), nil, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, s.Active(), 1)
}

func TestReconcile_PersistsTransitions(t *testing.T) {
	s, m := newTestStore(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, "ETHUSDT", 130, signal("ETHUSDT", 130), t0)
	require.NoError(t, err)
	assert.Contains(t, m.Snapshot().Opportunities, "ETHUSDT")

	_, err = s.Reconcile(ctx, "ETHUSDT", 99, nil, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.NotContains(t, m.Snapshot().Opportunities, "ETHUSDT")
}

func TestTransition_InsideBandNeverCloses(t *testing.T) {
	opp := &model.Opportunity{Pair: "BTCUSDT", CCI: 20}
	for _, cci := range []float64{-300, -100, 0, 100, 300} {
		next, events := Transition(opp, cci, nil, t0, func() string { return "x" })
		assert.Same(t, opp, next)
		assert.Empty(t, events)
	}
}
