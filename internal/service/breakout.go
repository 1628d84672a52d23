package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/alerts"
	"github.com/cwbrier63/canslim-monitor/internal/calendar"
	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/monitor"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
	"github.com/cwbrier63/canslim-monitor/internal/providers"
	"github.com/cwbrier63/canslim-monitor/internal/sizing"
)

// BreakoutThread scans state-0 watchlist candidates for pivot
// breakouts, scores them, and routes a sized entry recommendation to
// the breakout alert channel — it never transitions a position's state
// itself, since acting on the recommendation (entering the trade) is
// an out-of-scope order-execution concern.
type BreakoutThread struct {
	*BaseThread

	logger    *zap.Logger
	posRepo   *persistence.PositionRepository
	regimeRepo *persistence.RegimeAlertRepository
	factory   *providers.Factory
	sizer     *sizing.Sizer
	alertSvc  *alerts.Service
	techCache *TechnicalsCache
}

func NewBreakoutThread(
	logger *zap.Logger,
	cal *calendar.Calendar,
	period time.Duration,
	posRepo *persistence.PositionRepository,
	regimeRepo *persistence.RegimeAlertRepository,
	factory *providers.Factory,
	sizingCfg config.PositionSizingConfig,
	alertSvc *alerts.Service,
	techCache *TechnicalsCache,
) *BreakoutThread {
	t := &BreakoutThread{
		logger:    logger,
		posRepo:   posRepo,
		regimeRepo: regimeRepo,
		factory:   factory,
		sizer:     sizing.NewSizer(sizingCfg),
		alertSvc:  alertSvc,
		techCache: techCache,
	}
	t.BaseThread = NewBaseThread("breakout", period, MarketHoursGate, cal, logger, t.runCycle)
	return t
}

func (t *BreakoutThread) runCycle(ctx context.Context) error {
	watchlist, err := t.posRepo.GetWatching(ctx)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}
	if len(watchlist) == 0 {
		return nil
	}

	realtime, err := t.factory.Realtime(ctx)
	if err != nil {
		return fmt.Errorf("acquire realtime provider: %w", err)
	}
	historical, err := t.factory.Historical(ctx)
	if err != nil {
		return fmt.Errorf("acquire historical provider: %w", err)
	}

	symbols := make([]string, 0, len(watchlist))
	for _, pos := range watchlist {
		symbols = append(symbols, pos.Symbol)
	}
	quotes, err := realtime.GetQuotes(ctx, symbols)
	if err != nil {
		return fmt.Errorf("fetch watchlist quotes: %w", err)
	}

	exposureMax := t.latestExposureMax(ctx)

	var candidates []*models.Alert
	for _, pos := range watchlist {
		quote, ok := quotes[pos.Symbol]
		if !ok || quote.Last.IsZero() {
			continue // missing/zero-priced symbols are omitted
		}

		tech, err := t.techCache.Get(ctx, historical, pos.Symbol)
		if err != nil {
			t.logger.Warn("technicals unavailable, skipping breakout check",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}

		score := monitor.EvaluateBreakout(pos, quote, tech)
		if !score.Triggered {
			continue
		}

		tranche, err := t.sizer.InitialEntry(quote.Last, exposureMax)
		if err != nil {
			t.logger.Warn("sizing failed for breakout candidate",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}

		candidates = append(candidates, &models.Alert{
			Symbol:       pos.Symbol,
			Type:         models.AlertTypeAdd,
			Subtype:      "breakout_trigger",
			Priority:     models.P1,
			ThreadSource: "breakout",
			Message: fmt.Sprintf("%s broke out above pivot %s at %s (score %s, vol %sx)",
				pos.Symbol, pos.Pivot.String(), quote.Last.String(), score.Score.StringFixed(0), score.VolumeRatio.StringFixed(2)),
			Action:       fmt.Sprintf("size: %s shares (~$%s)", tranche.Shares.String(), tranche.DollarAmt.StringFixed(0)),
			EmittedPrice: quote.Last,
			Pivot:        pos.Pivot,
			VolumeRatio:  score.VolumeRatio,
			StateAtAlert: pos.State,
		})
	}

	if len(candidates) == 0 {
		return nil
	}
	errs := t.alertSvc.CreateBatch(ctx, candidates)
	t.RecordMessage(int64(len(candidates) - len(errs)))
	for _, e := range errs {
		t.logger.Warn("breakout alert failed", zap.Error(e))
	}
	return nil
}

func (t *BreakoutThread) latestExposureMax(ctx context.Context) int {
	snap, err := t.regimeRepo.GetLatest(ctx)
	if err != nil || snap == nil {
		return 100 // no regime computed yet: size at full exposure
	}
	return snap.ExposureBandHigh
}
