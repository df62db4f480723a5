package recorder

import (
	"time"

	"PreBurstSentinel/internal/model"
)

// CycleRecord summarizes one scan cycle.
type CycleRecord struct {
	Boundary  time.Time
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Failed    int
	Created   int
	Closed    int
}

// EventRecord is a persisted lifecycle event.
type EventRecord struct {
	OpportunityID string    `json:"opportunity_id"`
	Kind          string    `json:"kind"`
	Pair          string    `json:"pair"`
	At            time.Time `json:"at"`
	Price         string    `json:"price"`
	CCI           float64   `json:"cci"`
	RSI           float64   `json:"rsi"`
	BandSpan      float64   `json:"band_span"`
	ExitCCI       float64   `json:"exit_cci,omitempty"`
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordCycle(rec *CycleRecord) error
	RecordEvent(ev *model.Event) error
	RecentEvents(limit int) ([]EventRecord, error)
	Close() error
}
