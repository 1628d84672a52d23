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
)

// PositionThread runs the Position Monitor checker chain against every
// state>=1 position each cycle.
type PositionThread struct {
	*BaseThread

	logger     *zap.Logger
	posRepo    *persistence.PositionRepository
	regimeRepo *persistence.RegimeAlertRepository
	factory    *providers.Factory
	monitor    *monitor.Monitor
	alertSvc   *alerts.Service
	techCache  *TechnicalsCache
}

func NewPositionThread(
	logger *zap.Logger,
	cal *calendar.Calendar,
	period time.Duration,
	posRepo *persistence.PositionRepository,
	regimeRepo *persistence.RegimeAlertRepository,
	factory *providers.Factory,
	monCfg config.PositionMonitoringConfig,
	alertSvc *alerts.Service,
	techCache *TechnicalsCache,
) *PositionThread {
	t := &PositionThread{
		logger:     logger,
		posRepo:    posRepo,
		regimeRepo: regimeRepo,
		factory:    factory,
		monitor:    monitor.New(logger, monCfg, posRepo),
		alertSvc:   alertSvc,
		techCache:  techCache,
	}
	t.BaseThread = NewBaseThread("position", period, MarketHoursGate, cal, logger, t.runCycle)
	return t
}

// ApplyMonitoringConfig pushes a reloaded checker configuration into
// the underlying Monitor, for RELOAD_CONFIG to pick up without a
// restart.
func (t *PositionThread) ApplyMonitoringConfig(cfg config.PositionMonitoringConfig) {
	t.monitor.ApplyConfig(cfg)
}

func (t *PositionThread) runCycle(ctx context.Context) error {
	positions, err := t.posRepo.GetInPosition(ctx)
	if err != nil {
		return fmt.Errorf("load in-position rows: %w", err)
	}
	if len(positions) == 0 {
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

	symbols := make([]string, 0, len(positions)+1)
	for _, pos := range positions {
		symbols = append(symbols, pos.Symbol)
	}
	symbols = append(symbols, "SPY")
	quotes, err := realtime.GetQuotes(ctx, symbols)
	if err != nil {
		return fmt.Errorf("fetch position quotes: %w", err)
	}

	spyPrice := quotes["SPY"].Last
	regimeLabel := t.latestRegime(ctx)
	now := time.Now()

	var batch []monitor.PositionContext
	for _, pos := range positions {
		quote, ok := quotes[pos.Symbol]
		if !ok || quote.Last.IsZero() {
			continue
		}

		tech, err := t.techCache.Get(ctx, historical, pos.Symbol)
		if err != nil {
			t.logger.Warn("technicals unavailable, skipping position check",
				zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}

		t.monitor.RecordPrice(pos.Symbol, quote.Last)
		daysToEarnings := daysUntil(pos.EarningsDate, now)

		c := monitor.BuildContext(pos, tech, quote, spyPrice, regimeLabel, daysToEarnings, t.monitor.PriceHistory(pos.Symbol), now)
		batch = append(batch, monitor.PositionContext{Position: pos, Context: c})
	}

	result := t.monitor.RunCycle(ctx, batch)
	for _, e := range result.Errors {
		t.logger.Warn("position evaluation error", zap.Error(e))
	}

	if len(result.Alerts) > 0 {
		errs := t.alertSvc.CreateBatch(ctx, result.Alerts)
		t.RecordMessage(int64(len(result.Alerts) - len(errs)))
		for _, e := range errs {
			t.logger.Warn("position alert failed", zap.Error(e))
		}
	}

	for _, pos := range positions {
		if quote, ok := quotes[pos.Symbol]; ok && !quote.Last.IsZero() {
			if err := t.posRepo.UpdatePrice(ctx, pos, quote.Last, now); err != nil {
				t.logger.Warn("failed to persist tracking update",
					zap.String("symbol", pos.Symbol), zap.Error(err))
			}
		}
	}

	return nil
}

// latestRegime returns the market regime label the most recent
// snapshot recorded. Exposure-band sizing is the Breakout thread's
// concern (see latestExposureMax in breakout.go); the Position
// Monitor's checkers only need the label for regime-aware messaging.
func (t *PositionThread) latestRegime(ctx context.Context) string {
	snap, err := t.regimeRepo.GetLatest(ctx)
	if err != nil || snap == nil {
		return string(models.RegimeNeutral)
	}
	return string(snap.RegimeLabel)
}

func daysUntil(target, now time.Time) int {
	if target.IsZero() {
		return 9999
	}
	d := int(target.Sub(now).Hours() / 24)
	if d < 0 {
		return 9999
	}
	return d
}
