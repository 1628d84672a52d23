// Package monitor implements the Position Monitor rule engine: a
// strictly ordered chain of checkers evaluated per active position per
// cycle, each a pure function of (position, context) returning zero or
// more candidate alerts.
package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// Context is the immutable per-cycle evaluation context a checker
// reads from. It never mutates once built, and checkers share no
// state except the price histories held by the Monitor itself.
type Context struct {
	Symbol       string
	PositionID   string
	Now          time.Time

	CurrentPrice decimal.Decimal
	EntryPrice   decimal.Decimal // avg cost
	Pivot        decimal.Decimal
	Shares       decimal.Decimal
	State        float64

	PnLPct    decimal.Decimal
	PnLDollar decimal.Decimal

	MaxPrice   decimal.Decimal
	MaxGainPct decimal.Decimal

	EMA21    decimal.Decimal
	SMA50    decimal.Decimal
	SMA200   decimal.Decimal
	SMA10Wk  decimal.Decimal

	VolumeRatio decimal.Decimal // today's volume / average volume

	RSRating  int
	ADRating  string
	BaseStage int
	BaseDepth decimal.Decimal

	DaysInPosition    int
	DaysSinceBreakout int

	EightWeekHold *models.EightWeekHold

	Pyramid1Done bool
	Pyramid2Done bool
	TP1Sold      bool
	TP2Sold      bool

	DaysToEarnings int

	HealthScore  decimal.Decimal
	CANSLIMGrade string
	CANSLIMScore decimal.Decimal

	MarketRegime string
	SPYPrice     decimal.Decimal

	HardStop      decimal.Decimal
	TrailingStop  decimal.Decimal

	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	PrevClose decimal.Decimal

	// PriceHistory is the last 10 closes/quotes for symbol, oldest
	// first, used by the Reentry checker's bounce-pattern detection.
	PriceHistory []decimal.Decimal

	ConsecutiveCloseBelowEMA21 int
}

// pnl computes pnl% and pnl$ from current price against avg cost.
func pnl(current, avgCost, shares decimal.Decimal) (pct, dollar decimal.Decimal) {
	if avgCost.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	pct = current.Sub(avgCost).Div(avgCost).Mul(decimal.NewFromInt(100))
	dollar = current.Sub(avgCost).Mul(shares)
	return pct, dollar
}
