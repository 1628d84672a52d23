package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/alerts"
	"github.com/cwbrier63/canslim-monitor/internal/calendar"
	"github.com/cwbrier63/canslim-monitor/internal/events"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
	"github.com/cwbrier63/canslim-monitor/internal/providers"
	"github.com/cwbrier63/canslim-monitor/internal/regime"
)

const regimeBarsLookback = 260

// regimeWindowGate restricts the Regime thread to 08:00-18:00 ET on
// trading days.
func regimeWindowGate(cal *calendar.Calendar, now time.Time) bool {
	return cal.InWindow(now, 8, 0, 18, 0)
}

// RegimeThread recomputes the market-regime snapshot from index bars
// (and, when available, an overnight futures read) and persists it
// idempotently by date, publishing one market alert per calendar day.
type RegimeThread struct {
	*BaseThread

	logger     *zap.Logger
	calc       *regime.Calculator
	regimeRepo *persistence.RegimeAlertRepository
	factory    *providers.Factory
	alertSvc   *alerts.Service
	bus        *events.Bus

	lastPublished string // "2006-01-02" of the last day a market alert was sent
}

// SetEventBus attaches the bus each computed snapshot is published to
// for the read-only WebSocket surface. Optional.
func (t *RegimeThread) SetEventBus(bus *events.Bus) {
	t.bus = bus
}

func NewRegimeThread(
	logger *zap.Logger,
	cal *calendar.Calendar,
	period time.Duration,
	regimeRepo *persistence.RegimeAlertRepository,
	factory *providers.Factory,
	calc *regime.Calculator,
	alertSvc *alerts.Service,
) *RegimeThread {
	t := &RegimeThread{
		logger:     logger,
		calc:       calc,
		regimeRepo: regimeRepo,
		factory:    factory,
		alertSvc:   alertSvc,
	}
	t.BaseThread = NewBaseThread("regime", period, regimeWindowGate, cal, logger, t.runCycle)
	return t
}

func (t *RegimeThread) runCycle(ctx context.Context) error {
	historical, err := t.factory.Historical(ctx)
	if err != nil {
		return fmt.Errorf("acquire historical provider: %w", err)
	}

	bars, err := regime.FetchIndexBars(ctx, historical, regimeBarsLookback)
	if err != nil {
		return fmt.Errorf("fetch index bars: %w", err)
	}

	var futures *models.FuturesSnapshot
	if fp, err := t.factory.Futures(ctx); err == nil {
		snap, err := fp.GetFuturesSnapshot(ctx)
		if err != nil {
			t.logger.Warn("futures snapshot unavailable, proceeding without it", zap.Error(err))
		} else {
			futures = snap
		}
	}

	now := time.Now()
	snap, err := t.calc.Compute(now, bars, futures)
	if err != nil {
		return fmt.Errorf("compute regime: %w", err)
	}

	// Unattended runs always overwrite today's row.
	if _, err := t.calc.Persist(ctx, snap, true); err != nil {
		return fmt.Errorf("persist regime snapshot: %w", err)
	}

	if t.bus != nil {
		if persisted, err := t.regimeRepo.GetForDate(ctx, snap.Date); err == nil && persisted != nil {
			t.bus.Publish(events.NewRegimeEvent(persisted))
		}
	}

	dateKey := snap.Date.Format("2006-01-02")
	if t.lastPublished == dateKey {
		return nil
	}
	t.lastPublished = dateKey

	subtype := "regime_change"
	priority := models.P2
	for _, r := range snap.RallyStates {
		if r.IsFollowThrough {
			subtype = "follow_through_day"
			priority = models.P1
			break
		}
	}
	if subtype == "regime_change" && snap.TotalDDays > 0 {
		subtype = "distribution_day"
	}

	alert := &models.Alert{
		Symbol:       "MARKET",
		Type:         models.AlertTypeMarket,
		Subtype:      subtype,
		Priority:     priority,
		ThreadSource: "regime",
		Message: fmt.Sprintf("market regime: %s (score %.2f, phase %s, %d total D-days, exposure %d-%d%%)",
			snap.Label, snap.CompositeScore, snap.Phase, snap.TotalDDays, snap.ExposureMin, snap.ExposureMax),
		MarketRegime: string(snap.Label),
	}
	if err := t.alertSvc.CreateAlert(ctx, alert); err != nil {
		t.logger.Warn("failed to publish regime alert", zap.Error(err))
		return nil
	}
	t.RecordMessage(1)
	return nil
}
