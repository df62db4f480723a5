package model

import "math"

// Condition is the pre-burst flag of one derived row.
type Condition int8

const (
	// ConditionInsufficient marks rows where at least one rolling window is not yet populated.
	ConditionInsufficient Condition = iota
	ConditionOff
	ConditionOn
)

func (c Condition) String() string {
	switch c {
	case ConditionOff:
		return "off"
	case ConditionOn:
		return "on"
	default:
		return "insufficient"
	}
}

// Row holds the derived indicator values for one bar. Values not yet computable are NaN.
type Row struct {
	Bar        Bar
	Close      float64
	Middle     float64
	Upper      float64
	Lower      float64
	CCI        float64
	RSI        float64
	UpperSlope float64
	LowerSlope float64
	SlopeSum   float64
	BandSpan   float64 // (upper - lower) / close
	Condition  Condition
}

// Ready reports whether every indicator of the row is populated.
func (r Row) Ready() bool {
	for _, v := range []float64{r.Upper, r.Lower, r.CCI, r.RSI, r.UpperSlope, r.LowerSlope, r.SlopeSum, r.BandSpan} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Series is the derived series of one instrument, one row per bar.
type Series struct {
	Pair string
	Rows []Row
}

// Last returns the most recent row, or false when the series is empty.
func (s *Series) Last() (Row, bool) {
	if s == nil || len(s.Rows) == 0 {
		return Row{}, false
	}
	return s.Rows[len(s.Rows)-1], true
}
