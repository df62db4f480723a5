package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents a single closed candlestick as returned by the exchange.
type Bar struct {
	OpenTime            time.Time
	CloseTime           time.Time
	Open                decimal.Decimal
	High                decimal.Decimal
	Low                 decimal.Decimal
	Close               decimal.Decimal
	Volume              decimal.Decimal
	QuoteVolume         decimal.Decimal
	TradeCount          int64
	TakerBuyVolume      decimal.Decimal
	TakerBuyQuoteVolume decimal.Decimal
}

// ValidateSeries checks that bars are strictly increasing by open time and carry positive prices.
func ValidateSeries(bars []Bar) error {
	for i, b := range bars {
		if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
			return fmt.Errorf("bar %d (%s): non-positive price", i, b.OpenTime.Format(time.RFC3339))
		}
		if i > 0 && !b.OpenTime.After(bars[i-1].OpenTime) {
			return fmt.Errorf("bar %d (%s): open time not after previous bar", i, b.OpenTime.Format(time.RFC3339))
		}
	}
	return nil
}

// Closed returns the prefix of bars whose open time is strictly before boundary.
func Closed(bars []Bar, boundary time.Time) []Bar {
	n := len(bars)
	for n > 0 && !bars[n-1].OpenTime.Before(boundary) {
		n--
	}
	return bars[:n]
}
