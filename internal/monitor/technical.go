package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// Technicals is the per-symbol moving-average/volume snapshot the
// Position worker thread refreshes on its own cadence (cached ~4h)
// and feeds into BuildContext alongside the live quote.
type Technicals struct {
	EMA21   decimal.Decimal
	SMA50   decimal.Decimal
	SMA200  decimal.Decimal
	SMA10Wk decimal.Decimal
	AvgVolume decimal.Decimal

	ConsecutiveCloseBelowEMA21 int
}

// ComputeTechnicals derives the moving averages and volume baseline
// from ascending daily bars (and weekly-equivalent 10-week SMA from
// the same series, grouped into 5-trading-day buckets).
func ComputeTechnicals(bars []models.Bar) Technicals {
	var t Technicals
	if len(bars) == 0 {
		return t
	}

	t.EMA21 = ema(bars, 21)
	t.SMA50 = sma(bars, 50)
	t.SMA200 = sma(bars, 200)
	t.SMA10Wk = sma10Week(bars)
	t.AvgVolume = avgVolume(bars, 50)
	t.ConsecutiveCloseBelowEMA21 = consecutiveCloseBelowEMA(bars, t.EMA21)

	return t
}

func sma(bars []models.Bar, period int) decimal.Decimal {
	if len(bars) < period || period <= 0 {
		period = len(bars)
	}
	if period == 0 {
		return decimal.Zero
	}
	window := bars[len(bars)-period:]
	sum := decimal.Zero
	for _, b := range window {
		sum = sum.Add(b.Close)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(window))), 6)
}

func ema(bars []models.Bar, period int) decimal.Decimal {
	if len(bars) == 0 {
		return decimal.Zero
	}
	start := period
	if start > len(bars) {
		start = len(bars)
	}
	seed := sma(bars[:start], start)
	multiplier := decimal.NewFromInt(2).DivRound(decimal.NewFromInt(int64(period+1)), 10)

	result := seed
	for _, b := range bars[start:] {
		result = b.Close.Sub(result).Mul(multiplier).Add(result)
	}
	return result
}

// sma10Week approximates a 10-week SMA by splitting the most recent 50
// trading days into 5-day buckets, taking the last close of each
// bucket, then averaging those bucket closes — the same bar-aggregation idiom daily-bar-only feeds
// use to approximate a weekly series without a separate weekly fetch.
func sma10Week(bars []models.Bar) decimal.Decimal {
	const tradingDaysPerWeek = 5
	const weeks = 10
	needed := tradingDaysPerWeek * weeks
	window := bars
	if len(window) > needed {
		window = window[len(window)-needed:]
	}
	if len(window) == 0 {
		return decimal.Zero
	}

	var weeklyCloses []decimal.Decimal
	for i := len(window); i > 0; i -= tradingDaysPerWeek {
		start := i - tradingDaysPerWeek
		if start < 0 {
			start = 0
		}
		weeklyCloses = append(weeklyCloses, window[i-1].Close)
		_ = start
	}
	sum := decimal.Zero
	for _, c := range weeklyCloses {
		sum = sum.Add(c)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(weeklyCloses))), 6)
}

func avgVolume(bars []models.Bar, period int) decimal.Decimal {
	if len(bars) < period || period <= 0 {
		period = len(bars)
	}
	if period == 0 {
		return decimal.Zero
	}
	window := bars[len(bars)-period:]
	sum := decimal.Zero
	for _, b := range window {
		sum = sum.Add(b.Volume)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(window))), 2)
}

func consecutiveCloseBelowEMA(bars []models.Bar, ema21 decimal.Decimal) int {
	count := 0
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Close.LessThan(ema21) {
			count++
		} else {
			break
		}
	}
	return count
}

// CanslimScore derives a lightweight composite score from a position's
// ratings snapshot, used only to populate the checker context's
// CANSLIMGrade/Score fields (no independent scoring engine here; the
// ratings themselves are sourced externally).
func CanslimScore(pos *models.Position) (decimal.Decimal, string) {
	score := decimal.NewFromInt(int64(pos.RSRating)).
		Add(decimal.NewFromInt(int64(pos.CompositeRating))).
		Add(decimal.NewFromInt(int64(pos.EPSRating))).
		DivRound(decimal.NewFromInt(3), 2)

	grade := "C"
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(90)):
		grade = "A"
	case score.GreaterThanOrEqual(decimal.NewFromInt(75)):
		grade = "B"
	case score.LessThan(decimal.NewFromInt(50)):
		grade = "D"
	}
	return score, grade
}

// BuildContext assembles the immutable per-cycle Context for one
// position from its current snapshot, fresh technicals, the live
// quote, and ambient market state.
func BuildContext(pos *models.Position, tech Technicals, quote models.Quote, spyPrice decimal.Decimal, marketRegime string, daysToEarnings int, priceHistory []decimal.Decimal, now time.Time) *Context {
	pct, dollar := pnl(quote.Last, pos.AvgCost, pos.TotalShares)
	score, grade := CanslimScore(pos)

	volumeRatio := decimal.Zero
	if !tech.AvgVolume.IsZero() {
		volumeRatio = quote.Volume.DivRound(tech.AvgVolume, 4)
	}

	daysInPosition := 0
	if !pos.EntryDate.IsZero() {
		daysInPosition = int(now.Sub(pos.EntryDate).Hours() / 24)
	}
	daysSinceBreakout := 0
	if !pos.BreakoutDate.IsZero() {
		daysSinceBreakout = int(now.Sub(pos.BreakoutDate).Hours() / 24)
	}

	return &Context{
		Symbol:       pos.Symbol,
		PositionID:   pos.ID,
		Now:          now,
		CurrentPrice: quote.Last,
		EntryPrice:   pos.AvgCost,
		Pivot:        pos.Pivot,
		Shares:       pos.TotalShares,
		State:        pos.State,
		PnLPct:       pct,
		PnLDollar:    dollar,
		MaxPrice:     pos.MaxPrice,
		MaxGainPct:   pos.MaxGainPct,
		EMA21:        tech.EMA21,
		SMA50:        tech.SMA50,
		SMA200:       tech.SMA200,
		SMA10Wk:      tech.SMA10Wk,
		VolumeRatio:  volumeRatio,
		RSRating:     pos.RSRating,
		ADRating:     pos.ADRating,
		BaseStage:    pos.BaseStage,
		BaseDepth:    pos.BaseDepth,
		DaysInPosition:    daysInPosition,
		DaysSinceBreakout: daysSinceBreakout,
		EightWeekHold: pos.EightWeekHold,
		DaysToEarnings: daysToEarnings,
		HealthScore:   pos.HealthScore,
		CANSLIMGrade:  grade,
		CANSLIMScore:  score,
		MarketRegime:  marketRegime,
		SPYPrice:      spyPrice,
		HardStop:      pos.StopPrice,
		Open:          quote.Open,
		High:          quote.High,
		Low:           quote.Low,
		PrevClose:     quote.Close,
		PriceHistory:  priceHistory,
		ConsecutiveCloseBelowEMA21: tech.ConsecutiveCloseBelowEMA21,
	}
}
