// Package providers implements the market-data abstraction: the
// Historical/Realtime/Futures provider interfaces, a throttle profile
// built on a token-bucket limiter, per-provider health tracking, and a
// registry+factory that instantiates providers from persisted
// ProviderConfig rows.
package providers

import (
	"context"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// HistoricalProvider supplies daily OHLCV bars and derived series.
type HistoricalProvider interface {
	GetBars(ctx context.Context, symbol string, lookback int) ([]models.Bar, error)
	GetMovingAverage(ctx context.Context, symbol string, period int) (float64, error)
	GetAverageDollarVolume(ctx context.Context, symbol string, days int) (float64, error)
	Health() *Health
}

// RealtimeProvider supplies live or delayed quote snapshots.
type RealtimeProvider interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
	IsConnected() bool
	Health() *Health
}

// FuturesProvider supplies the overnight index-futures read.
type FuturesProvider interface {
	GetFuturesSnapshot(ctx context.Context) (*models.FuturesSnapshot, error)
	Health() *Health
}
