package monitor

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// Checker is a pure function of (position, context) returning zero or
// more candidate alerts. Implementations must not mutate
// position or ctx.
type Checker func(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert

func newAlert(ctx *Context, pos *models.Position, atype models.AlertType, subtype string, priority models.Priority, message, action string) *models.Alert {
	return &models.Alert{
		Symbol:         ctx.Symbol,
		PositionID:     ctx.PositionID,
		Type:           atype,
		Subtype:        subtype,
		Priority:       priority,
		ThreadSource:   "position",
		Message:        message,
		Action:         action,
		EmittedPrice:   ctx.CurrentPrice,
		Pivot:          ctx.Pivot,
		AvgCost:        ctx.EntryPrice,
		PnLPct:         ctx.PnLPct,
		MA21:           ctx.EMA21,
		MA50:           ctx.SMA50,
		MA200:          ctx.SMA200,
		VolumeRatio:    ctx.VolumeRatio,
		HealthScore:    ctx.HealthScore,
		MarketRegime:   ctx.MarketRegime,
		StateAtAlert:   ctx.State,
		DaysInPosition: ctx.DaysInPosition,
	}
}

// StopChecker — hard stop, trailing stop, warning (approaching stop).
func StopChecker(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert {
	var alerts []*models.Alert

	if ctx.HardStop.IsPositive() && ctx.CurrentPrice.LessThanOrEqual(ctx.HardStop) {
		a := newAlert(ctx, pos, models.AlertTypeStop, "hard_stop", models.P0,
			fmt.Sprintf("%s hit hard stop %s at %s", ctx.Symbol, ctx.HardStop.String(), ctx.CurrentPrice.String()),
			"close position")
		alerts = append(alerts, a)
		return alerts // hard stop short-circuits the remaining stop checks
	}

	trailActivationPct := decimal.NewFromFloat(cfg.TrailingStop.ActivationPct)
	if trailActivationPct.IsZero() {
		trailActivationPct = decimal.NewFromInt(15)
	}
	trailPct := decimal.NewFromFloat(cfg.TrailingStop.TrailPct)
	if trailPct.IsZero() {
		trailPct = decimal.NewFromInt(8)
	}

	if ctx.MaxGainPct.GreaterThanOrEqual(trailActivationPct) {
		trailStop := ctx.MaxPrice.Mul(decimal.NewFromInt(1).Sub(trailPct.Div(decimal.NewFromInt(100))))
		if trailStop.LessThan(ctx.EntryPrice) {
			trailStop = ctx.EntryPrice
		}
		if ctx.CurrentPrice.LessThanOrEqual(trailStop) {
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeStop, "trailing_stop", models.P0,
				fmt.Sprintf("%s broke trailing stop %s (max gain %s%%)", ctx.Symbol, trailStop.String(), ctx.MaxGainPct.String()),
				"close position"))
			return alerts
		}
	}

	warningBuffer := decimal.NewFromFloat(cfg.StopLoss.WarningBufferPct)
	if warningBuffer.IsZero() {
		warningBuffer = decimal.NewFromInt(2)
	}
	if ctx.HardStop.IsPositive() {
		distancePct := ctx.CurrentPrice.Sub(ctx.HardStop).Div(ctx.HardStop).Mul(decimal.NewFromInt(100))
		if distancePct.GreaterThan(decimal.Zero) && distancePct.LessThanOrEqual(warningBuffer) {
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeStop, "warning", models.P0,
				fmt.Sprintf("%s is %s%% above hard stop", ctx.Symbol, distancePct.String()), "watch closely"))
		}
	}

	return alerts
}

// ProfitChecker — 8-week-hold activation, TP1/TP2 targets.
// A newly activated hold travels on the eight_week_hold alert's
// HoldMetadata so the caller can persist it.
func ProfitChecker(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert {
	var alerts []*models.Alert

	gainThreshold := decimal.NewFromFloat(cfg.EightWeekHold.GainThresholdPct)
	if gainThreshold.IsZero() {
		gainThreshold = decimal.NewFromInt(20)
	}
	triggerWindow := cfg.EightWeekHold.TriggerWindowDays
	if triggerWindow == 0 {
		triggerWindow = 21
	}
	holdWeeks := cfg.EightWeekHold.HoldWeeks
	if holdWeeks == 0 {
		holdWeeks = 8
	}

	holdActive := ctx.EightWeekHold != nil && ctx.EightWeekHold.Active && ctx.Now.Before(ctx.EightWeekHold.End)

	if !holdActive && ctx.DaysSinceBreakout <= triggerWindow && ctx.PnLPct.GreaterThanOrEqual(gainThreshold) {
		end := ctx.Now.AddDate(0, 0, holdWeeks*7)
		alert := newAlert(ctx, pos, models.AlertTypeProfit, "eight_week_hold", models.P1,
			fmt.Sprintf("%s power move +%s%% within %dd of breakout, holding %d weeks", ctx.Symbol, ctx.PnLPct.String(), ctx.DaysSinceBreakout, holdWeeks),
			"hold position, do not sell TP1")
		alert.HoldMetadata = &models.EightWeekHold{
			Active:        true,
			Start:         ctx.Now,
			End:           end,
			PowerMovePct:  ctx.PnLPct,
			PowerMoveWeek: holdWeeks,
		}
		alerts = append(alerts, alert)
		holdActive = true
	}

	if holdActive {
		return alerts // TP1/TP2 suppressed until the hold expires
	}

	if !ctx.TP1Sold && ctx.PnLPct.GreaterThanOrEqual(decimal.NewFromInt(20)) {
		alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeProfit, "tp1", models.P1,
			fmt.Sprintf("%s reached TP1 target (+%s%%)", ctx.Symbol, ctx.PnLPct.String()), "sell partial at TP1"))
	}
	if !ctx.TP2Sold && ctx.PnLPct.GreaterThanOrEqual(decimal.NewFromInt(25)) {
		alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeProfit, "tp2", models.P1,
			fmt.Sprintf("%s reached TP2 target (+%s%%)", ctx.Symbol, ctx.PnLPct.String()), "sell partial at TP2"))
	}

	return alerts
}

// PyramidChecker — PY1/PY2 ready/extended, pullback-to-21EMA adds.
func PyramidChecker(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert {
	var alerts []*models.Alert

	if ctx.State < 1 || ctx.State > 3 {
		return alerts
	}
	if ctx.PnLPct.LessThanOrEqual(decimal.Zero) {
		return alerts
	}
	minDays := cfg.Pyramid.MinBarsSinceEntry
	if minDays == 0 {
		minDays = 2
	}
	if ctx.DaysInPosition < minDays {
		return alerts
	}

	five := decimal.NewFromInt(5)
	ten := decimal.NewFromInt(10)

	if ctx.State == float64(models.StateEntry1) && !ctx.Pyramid1Done {
		switch {
		case ctx.PnLPct.GreaterThan(five):
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypePyramid, "p1_extended", models.P2,
				fmt.Sprintf("%s extended %s%% above entry, PY1 window narrowing", ctx.Symbol, ctx.PnLPct.String()), "consider smaller add"))
		default:
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypePyramid, "p1_ready", models.P1,
				fmt.Sprintf("%s +%s%%, PY1 add zone", ctx.Symbol, ctx.PnLPct.String()), "add PY1 tranche"))
		}
	}

	if ctx.State == float64(models.StateEntry2) && !ctx.Pyramid2Done {
		switch {
		case ctx.PnLPct.GreaterThan(ten):
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypePyramid, "p2_extended", models.P2,
				fmt.Sprintf("%s extended %s%% above entry, PY2 window narrowing", ctx.Symbol, ctx.PnLPct.String()), "consider smaller add"))
		case ctx.PnLPct.GreaterThanOrEqual(five):
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypePyramid, "p2_ready", models.P1,
				fmt.Sprintf("%s +%s%%, PY2 add zone", ctx.Symbol, ctx.PnLPct.String()), "add PY2 tranche"))
		}
	}

	tolerance := decimal.NewFromFloat(cfg.Pyramid.PullbackEMATolerance)
	if tolerance.IsZero() {
		tolerance = decimal.NewFromFloat(1)
	}
	if !ctx.EMA21.IsZero() {
		distance := ctx.CurrentPrice.Sub(ctx.EMA21).Div(ctx.EMA21).Mul(decimal.NewFromInt(100)).Abs()
		if distance.LessThanOrEqual(tolerance) {
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypePyramid, "pullback_21ema", models.P1,
				fmt.Sprintf("%s pulled back to 21-EMA (%s)", ctx.Symbol, ctx.EMA21.String()), "consider add on bounce"))
		}
	}

	return alerts
}

// MAChecker — ma_50_sell, ma_50_warning, ema_21_sell (late-stage
// breakdown), ten_week_sell, climax top.
func MAChecker(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert {
	var alerts []*models.Alert

	volConfirm := decimal.NewFromFloat(cfg.Technical.MA50VolumeConfirm)
	if volConfirm.IsZero() {
		volConfirm = decimal.NewFromFloat(1.5)
	}
	if !ctx.SMA50.IsZero() && ctx.CurrentPrice.LessThan(ctx.SMA50) && ctx.VolumeRatio.GreaterThanOrEqual(volConfirm) {
		alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeTechnical, "ma_50_sell", models.P0,
			fmt.Sprintf("%s broke 50-SMA on %sx volume", ctx.Symbol, ctx.VolumeRatio.String()), "exit or reduce"))
		return alerts // short-circuits later MA checks
	}

	warningPct := decimal.NewFromFloat(cfg.Technical.MA50WarningPct)
	if warningPct.IsZero() {
		warningPct = decimal.NewFromInt(2)
	}
	if !ctx.SMA50.IsZero() && ctx.CurrentPrice.GreaterThanOrEqual(ctx.SMA50) {
		distance := ctx.CurrentPrice.Sub(ctx.SMA50).Div(ctx.SMA50).Mul(decimal.NewFromInt(100))
		if distance.LessThanOrEqual(warningPct) {
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeTechnical, "ma_50_warning", models.P1,
				fmt.Sprintf("%s approaching 50-SMA (%s%% above)", ctx.Symbol, distance.String()), "watch for breakdown"))
		}
	}

	consecutiveDays := cfg.Technical.EMA21ConsecutiveDays
	if consecutiveDays == 0 {
		consecutiveDays = 2
	}
	if ctx.State >= 4 && ctx.ConsecutiveCloseBelowEMA21 >= consecutiveDays {
		alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeTechnical, "ema_21_sell", models.P1,
			fmt.Sprintf("%s closed below 21-EMA for %d consecutive days (late stage)", ctx.Symbol, ctx.ConsecutiveCloseBelowEMA21), "tighten stop"))
	}

	if !ctx.SMA10Wk.IsZero() && ctx.CurrentPrice.LessThan(ctx.SMA10Wk) {
		alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeTechnical, "ten_week_sell", models.P0,
			fmt.Sprintf("%s broke the 10-week SMA", ctx.Symbol), "exit position"))
	}

	alerts = append(alerts, climaxTopCheck(pos, ctx, cfg)...)

	return alerts
}

func climaxTopCheck(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert {
	minGain := decimal.NewFromFloat(cfg.ClimaxTop.MinGainPct)
	if minGain.IsZero() {
		minGain = decimal.NewFromInt(15)
	}
	if ctx.PnLPct.LessThan(minGain) {
		return nil
	}

	volThreshold := decimal.NewFromFloat(cfg.ClimaxTop.VolumeThreshold)
	if volThreshold.IsZero() {
		volThreshold = decimal.NewFromFloat(2.5)
	}
	spreadThreshold := decimal.NewFromFloat(cfg.ClimaxTop.SpreadPct)
	if spreadThreshold.IsZero() {
		spreadThreshold = decimal.NewFromInt(4)
	}
	gapThreshold := decimal.NewFromFloat(cfg.ClimaxTop.GapPct)
	if gapThreshold.IsZero() {
		gapThreshold = decimal.NewFromInt(2)
	}

	score := decimal.Zero
	if ctx.VolumeRatio.GreaterThanOrEqual(volThreshold) {
		score = score.Add(decimal.NewFromInt(30))
	}
	if !ctx.Low.IsZero() {
		spread := ctx.High.Sub(ctx.Low).Div(ctx.Low).Mul(decimal.NewFromInt(100))
		if spread.GreaterThanOrEqual(spreadThreshold) {
			score = score.Add(decimal.NewFromInt(25))
		}
	}
	if !ctx.PrevClose.IsZero() {
		gap := ctx.Open.Sub(ctx.PrevClose).Div(ctx.PrevClose).Mul(decimal.NewFromInt(100))
		if gap.GreaterThanOrEqual(gapThreshold) {
			score = score.Add(decimal.NewFromInt(25))
		}
	}
	if !ctx.High.Equal(ctx.Low) {
		rangePosition := ctx.CurrentPrice.Sub(ctx.Low).Div(ctx.High.Sub(ctx.Low))
		if rangePosition.LessThanOrEqual(decimal.NewFromFloat(0.3)) {
			score = score.Add(decimal.NewFromInt(20))
		}
	}

	minScore := decimal.NewFromFloat(cfg.ClimaxTop.MinScore)
	if minScore.IsZero() {
		minScore = decimal.NewFromInt(50)
	}
	if score.LessThan(minScore) {
		return nil
	}

	priority := models.P1
	highConviction := decimal.NewFromInt(75)
	if score.GreaterThanOrEqual(highConviction) {
		priority = models.P0
	}

	return []*models.Alert{newAlert(ctx, pos, models.AlertTypeTechnical, "climax_top", priority,
		fmt.Sprintf("%s showing climax-top signature (score %s)", ctx.Symbol, score.String()), "consider taking profit")}
}

// HealthChecker recomputes the health score and fires CRITICAL,
// EARNINGS, LATE_STAGE, EXTENDED alerts.
func HealthChecker(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert {
	var alerts []*models.Alert

	health := computeHealthScore(ctx, cfg)

	if ctx.HealthScore.GreaterThanOrEqual(decimal.NewFromInt(50)) && health.LessThan(decimal.NewFromInt(50)) {
		alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeHealth, "critical", models.P0,
			fmt.Sprintf("%s health score dropped below 50 (%s)", ctx.Symbol, health.String()), "review for exit"))
	}

	warningDays := cfg.Earnings.WarningDays
	if warningDays == 0 {
		warningDays = 5
	}
	criticalDays := cfg.Earnings.CriticalDays
	if criticalDays == 0 {
		criticalDays = 2
	}
	if ctx.DaysToEarnings >= 0 && ctx.DaysToEarnings <= warningDays {
		priority := models.P1
		if ctx.DaysToEarnings <= criticalDays {
			priority = models.P0
		}
		rec := earningsRecommendation(ctx, cfg)
		alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeHealth, "earnings", priority,
			fmt.Sprintf("%s earnings in %d days", ctx.Symbol, ctx.DaysToEarnings), rec))
	}

	if ctx.BaseStage >= 4 {
		alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeHealth, "late_stage", models.P2,
			fmt.Sprintf("%s is in a stage-%d base", ctx.Symbol, ctx.BaseStage), "watch for failure"))
	}

	warningPct := decimal.NewFromFloat(cfg.Extended.WarningPct)
	if warningPct.IsZero() {
		warningPct = decimal.NewFromInt(5)
	}
	dangerPct := decimal.NewFromFloat(cfg.Extended.DangerPct)
	if dangerPct.IsZero() {
		dangerPct = decimal.NewFromInt(10)
	}
	if !ctx.Pivot.IsZero() {
		aboveP := ctx.CurrentPrice.Sub(ctx.Pivot).Div(ctx.Pivot).Mul(decimal.NewFromInt(100))
		switch {
		case aboveP.GreaterThanOrEqual(dangerPct):
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeHealth, "extended", models.P2,
				fmt.Sprintf("%s is %s%% above pivot (extended)", ctx.Symbol, aboveP.String()), "avoid new adds"))
		case aboveP.GreaterThanOrEqual(warningPct):
			alerts = append(alerts, newAlert(ctx, pos, models.AlertTypeHealth, "extended", models.P1,
				fmt.Sprintf("%s is %s%% above pivot", ctx.Symbol, aboveP.String()), "avoid new adds"))
		}
	}

	return alerts
}

func earningsRecommendation(ctx *Context, cfg config.PositionMonitoringConfig) string {
	switch {
	case ctx.PnLPct.GreaterThanOrEqual(decimal.NewFromInt(10)):
		return "hold through earnings"
	case ctx.PnLPct.GreaterThanOrEqual(decimal.NewFromInt(-2)) && ctx.PnLPct.LessThan(decimal.NewFromInt(10)):
		return "sell near breakeven before earnings"
	default:
		return "exit before earnings"
	}
}

func computeHealthScore(ctx *Context, cfg config.PositionMonitoringConfig) decimal.Decimal {
	score := decimal.NewFromInt(100)

	if ctx.DaysInPosition > cfg.Health.TimeThresholdDays && cfg.Health.TimeThresholdDays > 0 {
		score = score.Sub(decimal.NewFromInt(15))
	}
	if !ctx.SMA50.IsZero() && ctx.CurrentPrice.LessThan(ctx.SMA50) {
		score = score.Sub(decimal.NewFromInt(20))
	}
	if !ctx.SMA200.IsZero() && ctx.CurrentPrice.LessThan(ctx.SMA200) {
		score = score.Sub(decimal.NewFromInt(25))
	}
	if ctx.ADRating == "D" || ctx.ADRating == "E" {
		score = score.Sub(decimal.NewFromInt(15))
	}
	if ctx.BaseStage >= 4 {
		score = score.Sub(decimal.NewFromInt(10))
	}
	deepBase := decimal.NewFromFloat(cfg.Health.DeepBaseThreshold)
	if deepBase.IsZero() {
		deepBase = decimal.NewFromInt(35)
	}
	if ctx.BaseDepth.GreaterThanOrEqual(deepBase) {
		score = score.Sub(decimal.NewFromInt(10))
	}

	if score.IsNegative() {
		score = decimal.Zero
	}
	return score
}

// ReentryChecker — for profitable, not-fully-sized positions: detects
// a bounce pattern from the price history ring buffer and fires an
// add-on alert (ema_21, pullback, or in_buy_zone).
func ReentryChecker(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert {
	if ctx.State < 1 || ctx.State > 3 || ctx.PnLPct.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	if ctx.Pyramid1Done && ctx.Pyramid2Done {
		return nil // already at full size
	}
	if len(ctx.PriceHistory) < 3 {
		return nil
	}

	bounce := detectBounce(ctx.PriceHistory)
	if !bounce {
		return nil
	}

	ema21Tolerance := decimal.NewFromFloat(cfg.Reentry.EMA21TolerancePct)
	if ema21Tolerance.IsZero() {
		ema21Tolerance = decimal.NewFromFloat(1)
	}
	ma50Tolerance := decimal.NewFromFloat(cfg.Reentry.MA50TolerancePct)
	if ma50Tolerance.IsZero() {
		ma50Tolerance = decimal.NewFromFloat(1)
	}
	minVolRatio := decimal.NewFromFloat(cfg.Reentry.MinVolumeRatio)
	if minVolRatio.IsZero() {
		minVolRatio = decimal.NewFromFloat(1.2)
	}

	var subtype, label string
	switch {
	case !ctx.EMA21.IsZero() && ctx.CurrentPrice.Sub(ctx.EMA21).Div(ctx.EMA21).Abs().LessThanOrEqual(ema21Tolerance.Div(decimal.NewFromInt(100))):
		subtype, label = "ema_21", "21-EMA bounce"
	case !ctx.SMA50.IsZero() && ctx.CurrentPrice.Sub(ctx.SMA50).Div(ctx.SMA50).Abs().LessThanOrEqual(ma50Tolerance.Div(decimal.NewFromInt(100))) && ctx.VolumeRatio.GreaterThanOrEqual(minVolRatio):
		subtype, label = "pullback", "50-SMA bounce with volume"
	case !ctx.Pivot.IsZero() && ctx.CurrentPrice.Sub(ctx.Pivot).Div(ctx.Pivot).Abs().LessThanOrEqual(decimal.NewFromFloat(0.01)):
		subtype, label = "in_buy_zone", "pivot retest"
	default:
		subtype, label = "in_buy_zone", "pullback to buy zone"
	}

	return []*models.Alert{newAlert(ctx, pos, models.AlertTypeAdd, subtype, models.P1,
		fmt.Sprintf("%s showing %s", ctx.Symbol, label), "consider add-on entry")}
}

// detectBounce reports whether the tail of a price-history ring buffer
// shows a decline followed by a higher low and a recovering close —
// the minimal bounce signature the checker needs upstream of which
// reentry subtype applies.
func detectBounce(history []decimal.Decimal) bool {
	n := len(history)
	if n < 3 {
		return false
	}
	last, prev, prev2 := history[n-1], history[n-2], history[n-3]
	declined := prev.LessThan(prev2)
	recovered := last.GreaterThan(prev)
	return declined && recovered
}

// WatchlistAltEntryChecker — for state-0 symbols only: while an
// extended marker is set and not yet expired, fires an alt-entry when
// price returns near an MA (ma_bounce) or pivot (pivot_retest) with
// minimum volume. An expired marker produces no alert.
func WatchlistAltEntryChecker(pos *models.Position, ctx *Context, cfg config.PositionMonitoringConfig) []*models.Alert {
	if ctx.State != 0 {
		return nil
	}
	if pos.ExtendedMarkerDate.IsZero() {
		return nil
	}

	expiryDays := cfg.AltEntry.ExpiryDays
	if expiryDays == 0 {
		expiryDays = 30
	}
	if ctx.Now.Sub(pos.ExtendedMarkerDate) > time.Duration(expiryDays)*24*time.Hour {
		return nil // marker expired, no alt-entry possible
	}

	tolerance := decimal.NewFromFloat(cfg.AltEntry.TolerancePct)
	if tolerance.IsZero() {
		tolerance = decimal.NewFromFloat(1)
	}
	minVolRatio := decimal.NewFromFloat(cfg.AltEntry.MinVolumeRatio)
	if minVolRatio.IsZero() {
		minVolRatio = decimal.NewFromFloat(1)
	}
	if ctx.VolumeRatio.LessThan(minVolRatio) {
		return nil
	}

	near := func(level decimal.Decimal) bool {
		if level.IsZero() {
			return false
		}
		return ctx.CurrentPrice.Sub(level).Div(level).Abs().LessThanOrEqual(tolerance.Div(decimal.NewFromInt(100)))
	}

	var subtype string
	switch {
	case near(ctx.EMA21) || near(ctx.SMA50):
		subtype = "ma_bounce"
	case near(ctx.Pivot):
		subtype = "pivot_retest"
	default:
		return nil
	}

	alert := newAlert(ctx, pos, models.AlertTypeAltEntry, subtype, models.P1,
		fmt.Sprintf("%s retesting entry zone (test #%d)", ctx.Symbol, pos.AltEntryTestCount+1), "consider alt entry")
	return []*models.Alert{alert}
}
