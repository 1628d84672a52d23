// Package regime computes the market regime classification:
// distribution-day pressure, follow-through-day state, a composite
// score in [-1.5, +1.5], and a recommended exposure band, from daily
// bars of the major indices plus an optional overnight futures
// snapshot.
package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
	"github.com/cwbrier63/canslim-monitor/internal/providers"
)

const ddayWindow = 25

// Trend classifies the 5-day delta in a tracked metric.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendWorsening Trend = "worsening"
	TrendFlat      Trend = "flat"
)

// IndexState is the distribution-day tracker output for a single index.
type IndexState struct {
	Symbol       string
	DistribDays  int
	FiveDayDelta int
	Trend        Trend
}

// RallyState is the follow-through tracker output for a single index.
type RallyState struct {
	Symbol          string
	InRallyAttempt  bool
	RallyDay        int
	MostRecentFTD   *time.Time
	FailedRallies    int
	SuccessfulFTDs   int
	IsFollowThrough bool
	RallyInvalidated bool
}

// Snapshot is the full regime computation result for one trading day.
type Snapshot struct {
	Date            time.Time
	IndexStates     map[string]IndexState
	RallyStates     map[string]RallyState
	TotalDDays      int
	Phase           models.MarketPhase
	CompositeScore  float64
	Label           models.RegimeLabel
	ExposureMin     int
	ExposureMax     int
	Futures         *models.FuturesSnapshot
}

// Calculator holds the rolling trackers across runs and persists
// results via RegimeAlertRepository, keyed by date.
type Calculator struct {
	logger   *zap.Logger
	cfg      config.MarketRegimeConfig
	repo     *persistence.RegimeAlertRepository

	rallies map[string]*rallyTracker // keyed by index symbol
}

type rallyTracker struct {
	active        bool
	downDayLow    float64
	rallyDay      int
	mostRecentFTD *time.Time
	failedRallies int
	successfulFTDs int
}

func NewCalculator(logger *zap.Logger, cfg config.MarketRegimeConfig, repo *persistence.RegimeAlertRepository) *Calculator {
	return &Calculator{
		logger:  logger,
		cfg:     cfg,
		repo:    repo,
		rallies: make(map[string]*rallyTracker),
	}
}

// indices returns the four tracked indices in a fixed order so
// index-state maps are reproducible for tests.
func indices() []string { return []string{"SPY", "QQQ", "DIA", "IWM"} }

// Compute runs the full regime calculation for `at` given ≥250-bar
// histories for each tracked index.
// Bars must be ascending by date; the element at index len-1 is the
// day being evaluated.
func (c *Calculator) Compute(at time.Time, bars map[string][]models.Bar, futures *models.FuturesSnapshot) (*Snapshot, error) {
	snap := &Snapshot{
		Date:        truncateToDay(at),
		IndexStates: make(map[string]IndexState),
		RallyStates: make(map[string]RallyState),
		Futures:     futures,
	}

	ddayTotal := 0
	var ddayPressure, ftdScore, trendScore float64
	tracked := 0

	for _, symbol := range indices() {
		series, ok := bars[symbol]
		if !ok || len(series) < 2 {
			continue
		}
		tracked++

		idxState := c.distributionDays(symbol, series)
		snap.IndexStates[symbol] = idxState
		ddayTotal += idxState.DistribDays

		rally := c.followThrough(symbol, series)
		snap.RallyStates[symbol] = rally

		ddayPressure += ddayPressureScore(idxState)
		ftdScore += followThroughScore(rally)
		trendScore += priceVsMAScore(series)
	}

	if tracked == 0 {
		return nil, fmt.Errorf("no index bar series supplied for regime computation")
	}

	ddayPressure /= float64(tracked)
	ftdScore /= float64(tracked)
	trendScore /= float64(tracked)
	futuresScore := futuresComponent(futures)

	wFTD, wDDay, wTrend, wFutures := c.cfg.WeightFTD, c.cfg.WeightDDay, c.cfg.WeightTrend, c.cfg.WeightFutures
	if wFTD == 0 && wDDay == 0 && wTrend == 0 && wFutures == 0 {
		wFTD, wDDay, wTrend, wFutures = 0.4, 0.3, 0.2, 0.1
	}

	composite := wFTD*ftdScore + wDDay*ddayPressure + wTrend*trendScore + wFutures*futuresScore
	if composite > 1.5 {
		composite = 1.5
	}
	if composite < -1.5 {
		composite = -1.5
	}

	snap.TotalDDays = ddayTotal
	snap.CompositeScore = composite
	snap.Label = labelFor(composite)
	snap.Phase = phaseFor(snap.RallyStates)
	snap.ExposureMin, snap.ExposureMax = exposureBand(ddayTotal)

	return snap, nil
}

func labelFor(score float64) models.RegimeLabel {
	switch {
	case score > 0.5:
		return models.RegimeBullish
	case score < -0.5:
		return models.RegimeBearish
	default:
		return models.RegimeNeutral
	}
}

func phaseFor(rallies map[string]RallyState) models.MarketPhase {
	anyFTD := false
	anyInvalidated := false
	anyRally := false
	for _, r := range rallies {
		if r.IsFollowThrough {
			anyFTD = true
		}
		if r.RallyInvalidated {
			anyInvalidated = true
		}
		if r.InRallyAttempt {
			anyRally = true
		}
	}
	switch {
	case anyFTD:
		return models.PhaseConfirmedUptrend
	case anyRally && !anyInvalidated:
		return models.PhaseRallyAttempt
	case anyInvalidated:
		return models.PhaseCorrection
	default:
		return models.PhaseUptrendUnderPressure
	}
}

// exposureBand maps the total distribution-day count across tracked
// indices to a recommended long-equity exposure range.
func exposureBand(totalDDays int) (min, max int) {
	switch {
	case totalDDays <= 4:
		return 80, 100
	case totalDDays <= 6:
		return 70, 90
	case totalDDays <= 8:
		return 60, 80
	case totalDDays <= 10:
		return 40, 60
	case totalDDays <= 12:
		return 20, 40
	default:
		return 0, 20
	}
}

// distributionDays scans the trailing 25-trading-day window of series
// (the last element is "today") counting distribution days: a
// close-to-close decline of at least 0.2% on volume higher than the
// prior session.
func (c *Calculator) distributionDays(symbol string, series []models.Bar) IndexState {
	lookback := c.cfg.DDayLookbackDays
	if lookback <= 0 {
		lookback = ddayWindow
	}
	window := trailingWindow(series, lookback)
	count := countDDays(window, c.declineThreshold())
	prevWindow := trailingWindowExcludingLast(series, lookback, 5)
	prevCount := countDDays(prevWindow, c.declineThreshold())

	delta := count - prevCount
	trend := TrendFlat
	switch {
	case delta < 0:
		trend = TrendImproving
	case delta > 0:
		trend = TrendWorsening
	}

	return IndexState{Symbol: symbol, DistribDays: count, FiveDayDelta: delta, Trend: trend}
}

func countDDays(series []models.Bar, declineThreshold float64) int {
	count := 0
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		closeChange := pctChange(prev.Close, cur.Close)
		volHigher := cur.Volume.GreaterThan(prev.Volume)
		if closeChange <= -declineThreshold && volHigher {
			count++
		}
	}
	return count
}

func (c *Calculator) declineThreshold() float64 {
	if c.cfg.DDayDeclineThreshold > 0 {
		return c.cfg.DDayDeclineThreshold
	}
	return 0.2
}

func trailingWindow(series []models.Bar, n int) []models.Bar {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}

// trailingWindowExcludingLast returns the n-bar window ending `shift`
// bars before the most recent one, used to compute the prior 5-day
// delta comparison point.
func trailingWindowExcludingLast(series []models.Bar, n, shift int) []models.Bar {
	end := len(series) - shift
	if end < 2 {
		return nil
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return series[start:end]
}

// followThrough advances the rally-attempt state machine one bar at a
// time across the provided series and returns the state as of the
// final bar.
func (c *Calculator) followThrough(symbol string, series []models.Bar) RallyState {
	tr, ok := c.rallies[symbol]
	if !ok {
		tr = &rallyTracker{}
		c.rallies[symbol] = tr
	}

	threshold := c.cfg.FTDMinGainPct
	if threshold <= 0 {
		threshold = 1.25
	}

	var invalidatedToday, ftdToday bool

	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		curClose, _ := cur.Close.Float64()
		prevClose, _ := prev.Close.Float64()
		down := curClose < prevClose

		if !tr.active {
			if down {
				low, _ := cur.Low.Float64()
				tr.active = true
				tr.downDayLow = low
				tr.rallyDay = 1
			}
			invalidatedToday = false
			ftdToday = false
			continue
		}

		tr.rallyDay++
		low, _ := cur.Low.Float64()
		if low < tr.downDayLow {
			// Rally failed: a new low below the attempt's origin day.
			tr.active = false
			tr.failedRallies++
			invalidatedToday = true
			ftdToday = false
			continue
		}

		changePct := pctChange(prev.Close, cur.Close)
		volHigher := cur.Volume.GreaterThan(prev.Volume)
		if tr.rallyDay >= 4 && changePct >= threshold && volHigher {
			ftdToday = true
			invalidatedToday = false
			t := cur.Date
			tr.mostRecentFTD = &t
			tr.successfulFTDs++
			tr.active = false
		} else {
			ftdToday = false
			invalidatedToday = false
		}
	}

	return RallyState{
		Symbol:           symbol,
		InRallyAttempt:   tr.active,
		RallyDay:         tr.rallyDay,
		MostRecentFTD:    tr.mostRecentFTD,
		FailedRallies:    tr.failedRallies,
		SuccessfulFTDs:   tr.successfulFTDs,
		IsFollowThrough:  ftdToday,
		RallyInvalidated: invalidatedToday,
	}
}

func ddayPressureScore(s IndexState) float64 {
	// More D-days and a worsening trend push the score bearish;
	// normalized against the exposure table's ≥13 ceiling.
	score := 1.0 - 2.0*float64(s.DistribDays)/13.0
	switch s.Trend {
	case TrendWorsening:
		score -= 0.15
	case TrendImproving:
		score += 0.15
	}
	return clamp(score, -1.5, 1.5)
}

func followThroughScore(r RallyState) float64 {
	switch {
	case r.IsFollowThrough:
		return 1.5
	case r.RallyInvalidated:
		return -1.0
	case r.InRallyAttempt:
		return 0.25
	default:
		return -0.5
	}
}

func priceVsMAScore(series []models.Bar) float64 {
	if len(series) < 50 {
		return 0
	}
	window := series[len(series)-50:]
	sum := 0.0
	for _, b := range window {
		f, _ := b.Close.Float64()
		sum += f
	}
	ma50 := sum / float64(len(window))
	last, _ := series[len(series)-1].Close.Float64()
	if ma50 == 0 {
		return 0
	}
	pct := (last - ma50) / ma50 * 100
	return clamp(pct/5.0, -1.5, 1.5)
}

func futuresComponent(f *models.FuturesSnapshot) float64 {
	if f == nil {
		return 0
	}
	esPct, _ := f.ESPct.Float64()
	return clamp(esPct/2.0, -1.5, 1.5)
}

func pctChange(prev, cur interface{ Float64() (float64, bool) }) float64 {
	p, _ := prev.Float64()
	c, _ := cur.Float64()
	if p == 0 {
		return 0
	}
	return (c - p) / p * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Persist upserts the snapshot for its date, honoring an
// overwrite-or-skip idempotence contract: unattended callers (the
// Regime worker thread) pass overwrite=true, while an IPC-driven
// re-run can pass the user's explicit choice.
func (c *Calculator) Persist(ctx context.Context, snap *Snapshot, overwrite bool) (wrote bool, err error) {
	return c.repo.UpsertForDate(ctx, snap.Date, snapshotToModel(snap), overwrite)
}

func snapshotToModel(snap *Snapshot) *models.MarketRegimeAlert {
	spyState := snap.IndexStates["SPY"]
	qqqState := snap.IndexStates["QQQ"]
	m := &models.MarketRegimeAlert{
		Date:             snap.Date,
		DDaysSPY:         spyState.DistribDays,
		DDaysQQQ:         qqqState.DistribDays,
		DDays5DDeltaSPY:  spyState.FiveDayDelta,
		DDays5DDeltaQQQ:  qqqState.FiveDayDelta,
		TrendLabel:       string(spyState.Trend),
		MarketPhase:      snap.Phase,
		CompositeScore:   decimal.NewFromFloat(snap.CompositeScore),
		RegimeLabel:      snap.Label,
		ExposureBandLow:  snap.ExposureMin,
		ExposureBandHigh: snap.ExposureMax,
		Futures:          snap.Futures,
	}
	return m
}

// FetchIndexBars loads ≥250 daily bars for each tracked index via a
// historical provider, honoring its throttle.
func FetchIndexBars(ctx context.Context, hp providers.HistoricalProvider, lookback int) (map[string][]models.Bar, error) {
	out := make(map[string][]models.Bar, len(indices()))
	for _, symbol := range indices() {
		bars, err := hp.GetBars(ctx, symbol, lookback)
		if err != nil {
			return nil, fmt.Errorf("fetch index bars for %s: %w", symbol, err)
		}
		out[symbol] = bars
	}
	return out, nil
}
