package model

import (
	"fmt"
	"time"
)

// Timeframe is an exchange kline interval such as "1h".
type Timeframe string

var timeframes = map[Timeframe]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseTimeframe validates s against the supported fixed-length intervals.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframes[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the length of one interval, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	return timeframes[tf]
}

func (tf Timeframe) String() string { return string(tf) }

// Truncate returns the open time of the interval containing t.
// time.Truncate counts from the zero time, a Monday, so weekly intervals open on Monday 00:00 UTC.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	d := tf.Duration()
	if d == 0 {
		return t
	}
	return t.UTC().Truncate(d)
}

// NextBoundary returns the first interval boundary strictly after t.
func (tf Timeframe) NextBoundary(t time.Time) time.Time {
	return tf.Truncate(t).Add(tf.Duration())
}
