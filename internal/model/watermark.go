package model

import "time"

// WatermarkVersion is the schema version written by this build.
const WatermarkVersion = 1

// RunState is the persisted supervisor state.
type RunState int

const (
	RunIdle    RunState = 0
	RunRunning RunState = 1
)

func (s RunState) String() string {
	if s == RunRunning {
		return "running"
	}
	return "idle"
}

// Watermark is the only durable state of the scanner.
type Watermark struct {
	Version       int                    `json:"version"`
	Revision      int64                  `json:"revision"` // bumped on every save
	NextBoundary  time.Time              `json:"next_boundary"`
	Universe      []string               `json:"universe"`
	RunState      RunState               `json:"run_state"`
	RunOwner      string                 `json:"run_owner,omitempty"`
	Heartbeat     time.Time              `json:"heartbeat"`
	Opportunities map[string]Opportunity `json:"opportunities"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Clone returns a deep copy of w.
func (w *Watermark) Clone() *Watermark {
	c := *w
	c.Universe = append([]string(nil), w.Universe...)
	c.Opportunities = make(map[string]Opportunity, len(w.Opportunities))
	for k, v := range w.Opportunities {
		c.Opportunities[k] = v
	}
	return &c
}
