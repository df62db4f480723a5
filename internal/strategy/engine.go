package strategy

import (
	"fmt"

	"PreBurstSentinel/internal/calculator"
	"PreBurstSentinel/internal/model"
)

// Params configures the pre-burst indicator pipeline.
type Params struct {
	BBPeriod      int
	BBMultiplier  float64
	CCIPeriod     int
	RSIPeriod     int
	SlopeWindow   int
	SpanThreshold float64
}

// DefaultParams returns the stock pre-burst settings.
func DefaultParams() Params {
	return Params{
		BBPeriod:      20,
		BBMultiplier:  2,
		CCIPeriod:     160,
		RSIPeriod:     20,
		SlopeWindow:   3,
		SpanThreshold: 0.025,
	}
}

// Lookback returns the number of bars required before every window of a row is populated.
func (p Params) Lookback() int {
	n := p.BBPeriod + 1 // two band values for a slope
	if p.CCIPeriod > n {
		n = p.CCIPeriod
	}
	if p.RSIPeriod+1 > n {
		n = p.RSIPeriod + 1
	}
	return n
}

// Validate rejects windows the calculators cannot use.
func (p Params) Validate() error {
	if p.BBPeriod <= 0 || p.CCIPeriod <= 0 || p.RSIPeriod <= 0 {
		return fmt.Errorf("indicator periods must be positive")
	}
	if p.SlopeWindow < 2 {
		return fmt.Errorf("slope window must be at least 2")
	}
	if p.BBMultiplier <= 0 {
		return fmt.Errorf("bollinger multiplier must be positive")
	}
	if p.SpanThreshold <= 0 {
		return fmt.Errorf("span threshold must be positive")
	}
	return nil
}

// Pipeline turns a bar series into a derived series.
type Pipeline func(pair string, bars []model.Bar) (*model.Series, error)

// NewPipeline returns the pre-burst pipeline bound to p.
func NewPipeline(p Params) Pipeline {
	return func(pair string, bars []model.Bar) (*model.Series, error) {
		return Compute(pair, bars, p)
	}
}

// Compute derives Bollinger bands, CCI, RSI, band slopes and band span for every bar,
// flagging the pre-burst condition where the span is at or below the threshold.
func Compute(pair string, bars []model.Bar, p Params) (*model.Series, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High.InexactFloat64()
		lows[i] = b.Low.InexactFloat64()
		closes[i] = b.Close.InexactFloat64()
	}

	bands, err := calculator.Bollinger(closes, p.BBPeriod, p.BBMultiplier)
	if err != nil {
		return nil, err
	}
	cci, err := calculator.CCI(highs, lows, closes, p.CCIPeriod)
	if err != nil {
		return nil, err
	}
	rsi, err := calculator.RSI(closes, p.RSIPeriod)
	if err != nil {
		return nil, err
	}
	upperSlope, err := calculator.RollingSlope(bands.Upper, p.SlopeWindow)
	if err != nil {
		return nil, err
	}
	lowerSlope, err := calculator.RollingSlope(bands.Lower, p.SlopeWindow)
	if err != nil {
		return nil, err
	}
	slopeSum := calculator.Add(upperSlope, lowerSlope)
	span := calculator.BandSpan(bands.Upper, bands.Lower, closes)

	series := &model.Series{Pair: pair, Rows: make([]model.Row, n)}
	for i := range bars {
		row := model.Row{
			Bar:        bars[i],
			Close:      closes[i],
			Middle:     bands.Middle[i],
			Upper:      bands.Upper[i],
			Lower:      bands.Lower[i],
			CCI:        cci[i],
			RSI:        rsi[i],
			UpperSlope: upperSlope[i],
			LowerSlope: lowerSlope[i],
			SlopeSum:   slopeSum[i],
			BandSpan:   span[i],
		}
		row.Condition = condition(row, p.SpanThreshold)
		series.Rows[i] = row
	}
	return series, nil
}

func condition(row model.Row, threshold float64) model.Condition {
	if !row.Ready() {
		return model.ConditionInsufficient
	}
	if row.BandSpan <= threshold {
		return model.ConditionOn
	}
	return model.ConditionOff
}
