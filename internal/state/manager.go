package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PreBurstSentinel/internal/model"

	"github.com/rs/zerolog/log"
)

// Manager owns the in-memory watermark and serializes every read-modify-write against the store.
type Manager struct {
	mu    sync.Mutex
	store Store
	wm    *model.Watermark
	now   func() time.Time
}

// Open loads the watermark from store, initializing a fresh one when it is missing or corrupt.
// A fresh watermark points at the first timeframe boundary strictly after serverNow.
// The configured universe replaces the persisted one; opportunities for pairs no longer in
// the universe are dropped.
func Open(ctx context.Context, store Store, universe []string, tf model.Timeframe, serverNow time.Time) (*Manager, error) {
	wm, err := store.Load(ctx)
	switch {
	case err == nil:
		log.Info().Time("next_boundary", wm.NextBoundary).Int("opportunities", len(wm.Opportunities)).
			Str("run_state", wm.RunState.String()).Msg("watermark loaded")
	case errors.Is(err, ErrNotFound):
		log.Info().Msg("no watermark found, initializing")
		wm = nil
	case errors.Is(err, ErrCorrupt):
		log.Warn().Err(err).Msg("watermark unreadable, reinitializing")
		wm = nil
	default:
		return nil, fmt.Errorf("load watermark: %w", err)
	}
	if wm == nil {
		wm = Fresh(universe, tf, serverNow)
	}

	wm.Universe = append([]string(nil), universe...)
	inUniverse := make(map[string]bool, len(universe))
	for _, p := range universe {
		inUniverse[p] = true
	}
	for pair := range wm.Opportunities {
		if !inUniverse[pair] {
			log.Warn().Str("pair", pair).Msg("dropping opportunity for pair outside universe")
			delete(wm.Opportunities, pair)
		}
	}
	if wm.NextBoundary.IsZero() {
		wm.NextBoundary = tf.NextBoundary(serverNow)
	}

	m := &Manager{store: store, now: time.Now}
	prev := wm.Revision
	if err := m.save(ctx, wm, prev); err != nil {
		return nil, err
	}
	m.wm = wm
	return m, nil
}

// Fresh returns an idle watermark with no opportunities.
func Fresh(universe []string, tf model.Timeframe, serverNow time.Time) *model.Watermark {
	return &model.Watermark{
		Version:       model.WatermarkVersion,
		NextBoundary:  tf.NextBoundary(serverNow),
		Universe:      append([]string(nil), universe...),
		RunState:      model.RunIdle,
		Opportunities: make(map[string]model.Opportunity),
	}
}

// Snapshot returns a copy of the current watermark.
func (m *Manager) Snapshot() *model.Watermark {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wm.Clone()
}

// maxConflictRetries bounds how often Update reloads after a concurrent write.
const maxConflictRetries = 5

// Update applies fn to a copy of the watermark and persists it. The in-memory state only
// changes when fn succeeds and the store accepts the new record. When another writer saved
// in between, the record is reloaded and fn runs again on the fresh copy, so fn must not
// depend on state from an earlier attempt.
func (m *Manager) Update(ctx context.Context, fn func(w *model.Watermark) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; ; attempt++ {
		next := m.wm.Clone()
		if err := fn(next); err != nil {
			return err
		}
		err := m.save(ctx, next, m.wm.Revision)
		if err == nil {
			m.wm = next
			return nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("watermark changed underneath, reloading")
		if err := m.reload(ctx); err != nil {
			return err
		}
	}
}

// Refresh replaces the in-memory watermark with the stored one.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reload(ctx)
}

func (m *Manager) reload(ctx context.Context) error {
	w, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload watermark: %w", err)
	}
	m.wm = w
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) save(ctx context.Context, w *model.Watermark, prev int64) error {
	w.Version = model.WatermarkVersion
	w.Revision = prev + 1
	w.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, w, prev); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}
