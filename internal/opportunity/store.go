// Package opportunity tracks the open/closed lifecycle of pre-burst opportunities per instrument.
package opportunity

import (
	"context"
	"errors"
	"sort"
	"time"

	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/state"
	"PreBurstSentinel/internal/strategy"

	"github.com/google/uuid"
)

var errNoChange = errors.New("no change")

// Store decides create/keep/close transitions and persists them through the watermark manager.
type Store struct {
	state *state.Manager
	newID func() string
}

// NewStore creates a Store backed by m.
func NewStore(m *state.Manager) *Store {
	return &Store{state: m, newID: uuid.NewString}
}

// Reconcile applies one cycle's verdict for pair. currentCCI is the latest oscillator reading
// (NaN when unavailable) and sig the detector snapshot, nil when the condition is not met.
// Events are returned only once the new state has been persisted.
func (s *Store) Reconcile(ctx context.Context, pair string, currentCCI float64, sig *model.Signal, boundary time.Time) ([]model.Event, error) {
	var events []model.Event
	err := s.state.Update(ctx, func(w *model.Watermark) error {
		var active *model.Opportunity
		if rec, ok := w.Opportunities[pair]; ok {
			active = &rec
		}
		next, evs := Transition(active, currentCCI, sig, boundary, s.newID)
		if len(evs) == 0 {
			return errNoChange
		}
		if next == nil {
			delete(w.Opportunities, pair)
		} else {
			w.Opportunities[pair] = *next
		}
		events = evs
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Transition is the pure state machine for one instrument. The exit rule runs first and does not
// look at the detector; a record closed in this step may be replaced by a new one when sig is set.
func Transition(active *model.Opportunity, currentCCI float64, sig *model.Signal, boundary time.Time, newID func() string) (*model.Opportunity, []model.Event) {
	var events []model.Event
	if active != nil && strategy.ShouldClose(active.CCI, currentCCI) {
		events = append(events, model.Event{
			Kind:        model.EventClosed,
			Pair:        active.Pair,
			At:          boundary,
			Opportunity: *active,
			ExitCCI:     currentCCI,
		})
		active = nil
	}
	if active != nil || sig == nil {
		return active, events
	}
	opp := model.Opportunity{
		ID:         newID(),
		Pair:       sig.Pair,
		DetectedAt: sig.Time,
		Boundary:   boundary,
		Price:      sig.Price,
		CCI:        sig.CCI,
		RSI:        sig.RSI,
		BandSpan:   sig.BandSpan,
		SlopeSum:   sig.SlopeSum,
	}
	events = append(events, model.Event{
		Kind:        model.EventCreated,
		Pair:        sig.Pair,
		At:          boundary,
		Opportunity: opp,
		Signal:      sig,
	})
	return &opp, events
}

// Active returns the open opportunities ordered by pair.
func (s *Store) Active() []model.Opportunity {
	wm := s.state.Snapshot()
	out := make([]model.Opportunity, 0, len(wm.Opportunities))
	for _, o := range wm.Opportunities {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}
