package collector

import (
	"context"
	"time"

	"PreBurstSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Provider defines the interface for fetching exchange market data.
type Provider interface {
	Bars(ctx context.Context, pair string, tf model.Timeframe, limit int) ([]model.Bar, error)
	Price(ctx context.Context, pair string) (decimal.Decimal, error)
	ServerTime(ctx context.Context) (time.Time, error)
	Name() string
}
