package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the detector output for an instrument whose latest row is in pre-burst condition.
type Signal struct {
	Pair     string          `json:"pair"`
	Time     time.Time       `json:"time"`
	Price    decimal.Decimal `json:"price"`
	Close    float64         `json:"close"`
	Upper    float64         `json:"upper"`
	Lower    float64         `json:"lower"`
	CCI      float64         `json:"cci"`
	RSI      float64         `json:"rsi"`
	SlopeSum float64         `json:"slope_sum"`
	BandSpan float64         `json:"band_span"`
}

// Opportunity is an open pre-burst record. Presence in the active map means open.
type Opportunity struct {
	ID         string          `json:"id"`
	Pair       string          `json:"pair"`
	DetectedAt time.Time       `json:"detected_at"`
	Boundary   time.Time       `json:"boundary"`
	Price      decimal.Decimal `json:"price"`
	CCI        float64         `json:"cci"`
	RSI        float64         `json:"rsi"`
	BandSpan   float64         `json:"band_span"`
	SlopeSum   float64         `json:"slope_sum"`
}

// EventKind distinguishes lifecycle events.
type EventKind string

const (
	EventCreated EventKind = "CREATED"
	EventClosed  EventKind = "CLOSED"
)

// Event is a lifecycle transition emitted by the opportunity store.
type Event struct {
	Kind        EventKind
	Pair        string
	At          time.Time
	Opportunity Opportunity
	Signal      *Signal // set for EventCreated
	ExitCCI     float64 // oscillator reading that closed the record, set for EventClosed
}
