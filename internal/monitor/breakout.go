package monitor

import (
	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// BreakoutScore is the Breakout worker thread's evaluation of a single
// state-0 watchlist candidate.
// It reuses the same CANSLIM ratings snapshot the Position Monitor's
// context builder scores, applied instead to a pivot-crossing decision
// rather than an open position's health.
type BreakoutScore struct {
	Symbol       string
	Score        decimal.Decimal
	Triggered    bool
	VolumeRatio  decimal.Decimal
	PctAbovePivot decimal.Decimal
}

// minBreakoutScore is the threshold above which a pivot crossing is
// treated as a genuine breakout rather than noise.
const minBreakoutScore = 60

// EvaluateBreakout scores a watchlist candidate against its pivot: a
// close at or above pivot on volume confirmation is required before
// the CANSLIM ratings snapshot contributes to the score at all, mirroring
// the "volume confirmation mandatory" rule the Position Monitor's MA
// checker applies to breakdowns, but inverted for entries.
func EvaluateBreakout(pos *models.Position, quote models.Quote, tech Technicals) BreakoutScore {
	out := BreakoutScore{Symbol: pos.Symbol}

	if pos.Pivot.IsZero() || quote.Last.IsZero() {
		return out
	}

	out.PctAbovePivot = quote.Last.Sub(pos.Pivot).DivRound(pos.Pivot, 4).Mul(decimal.NewFromInt(100))
	if !tech.AvgVolume.IsZero() {
		out.VolumeRatio = quote.Volume.DivRound(tech.AvgVolume, 4)
	}

	if quote.Last.LessThan(pos.Pivot) {
		return out // below pivot: not a breakout candidate this cycle
	}
	if out.VolumeRatio.LessThan(decimal.NewFromFloat(1.4)) {
		return out // no volume confirmation: price alone does not count
	}

	score := decimal.Zero

	// Volume confirmation strength, capped at 30.
	volScore := out.VolumeRatio.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(20))
	if volScore.GreaterThan(decimal.NewFromInt(30)) {
		volScore = decimal.NewFromInt(30)
	}
	score = score.Add(volScore)

	// Proximity to pivot: a clean breakout close (0-3% above pivot)
	// scores higher than a chase far above it.
	switch {
	case out.PctAbovePivot.LessThanOrEqual(decimal.NewFromInt(3)):
		score = score.Add(decimal.NewFromInt(20))
	case out.PctAbovePivot.LessThanOrEqual(decimal.NewFromInt(5)):
		score = score.Add(decimal.NewFromInt(10))
	}

	// CANSLIM ratings snapshot, same weighting CanslimScore uses.
	ratingsScore, _ := CanslimScore(pos)
	score = score.Add(ratingsScore.Mul(decimal.NewFromFloat(0.5)))

	// Trend confirmation: price above 50-SMA and 50-SMA above 200-SMA.
	if !tech.SMA50.IsZero() && quote.Last.GreaterThan(tech.SMA50) {
		score = score.Add(decimal.NewFromInt(10))
	}
	if !tech.SMA200.IsZero() && tech.SMA50.GreaterThan(tech.SMA200) {
		score = score.Add(decimal.NewFromInt(10))
	}

	out.Score = score
	out.Triggered = score.GreaterThanOrEqual(decimal.NewFromInt(minBreakoutScore))
	return out
}
