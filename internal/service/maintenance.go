package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/calendar"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
	"github.com/cwbrier63/canslim-monitor/internal/providers"
)

// archiveAfter is how long a position may sit in the exited-watching
// state (-1.5) before the Maintenance thread auto-archives it to
// stopped (-2).
const archiveAfter = 60 * 24 * time.Hour

// staleSyncHorizon marks a position "needing sync" if its tracking
// fields haven't been refreshed in this long — covers positions the
// Position thread skipped because a quote was unavailable.
const staleSyncHorizon = 6 * time.Hour

// EarningsSource is an optional capability a HistoricalProvider may
// implement to supply next-earnings dates, mirroring the narrow
// capability-interface idiom `calendar.HolidaySource` uses rather than
// widening the core HistoricalProvider contract.
type EarningsSource interface {
	GetNextEarningsDate(ctx context.Context, symbol string) (time.Time, error)
}

// CacheTrimmer is an optional capability a HistoricalProvider may
// implement to expose its bar cache for nightly trimming, the same
// narrow-interface idiom EarningsSource uses.
type CacheTrimmer interface {
	TrimCache(maxAge time.Duration)
}

// MaintenanceThread performs off-hours housekeeping: bar-cache
// trimming, stale-position resync, and auto-archiving long-exited
// positions.
type MaintenanceThread struct {
	*BaseThread

	logger  *zap.Logger
	posRepo *persistence.PositionRepository
	factory *providers.Factory
}

func NewMaintenanceThread(
	logger *zap.Logger,
	cal *calendar.Calendar,
	period time.Duration,
	posRepo *persistence.PositionRepository,
	factory *providers.Factory,
) *MaintenanceThread {
	t := &MaintenanceThread{
		logger:  logger,
		posRepo: posRepo,
		factory: factory,
	}
	t.BaseThread = NewBaseThread("maintenance", period, OffHoursGate, cal, logger, t.runCycle)
	return t
}

func (t *MaintenanceThread) runCycle(ctx context.Context) error {
	if historical, err := t.factory.Historical(ctx); err == nil {
		if trimmer, ok := historical.(CacheTrimmer); ok {
			trimmer.TrimCache(400 * 24 * time.Hour)
		}
	}

	if err := t.refreshEarnings(ctx); err != nil {
		t.logger.Warn("earnings refresh failed", zap.Error(err))
	}

	if err := t.syncStale(ctx); err != nil {
		t.logger.Warn("stale position sync failed", zap.Error(err))
	}

	if err := t.archiveExited(ctx); err != nil {
		t.logger.Warn("auto-archive failed", zap.Error(err))
	}

	return nil
}

func (t *MaintenanceThread) refreshEarnings(ctx context.Context) error {
	historical, err := t.factory.Historical(ctx)
	if err != nil {
		return err
	}
	source, ok := historical.(EarningsSource)
	if !ok {
		return nil // configured historical provider has no earnings capability
	}

	positions, err := t.posRepo.GetAll(ctx, false)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		date, err := source.GetNextEarningsDate(ctx, pos.Symbol)
		if err != nil {
			t.logger.Debug("no earnings date available", zap.String("symbol", pos.Symbol), zap.Error(err))
			continue
		}
		if date.Equal(pos.EarningsDate) {
			continue
		}
		pos.EarningsDate = date
		if err := t.posRepo.Update(ctx, pos); err != nil {
			t.logger.Warn("failed to persist earnings date", zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}
	return nil
}

func (t *MaintenanceThread) syncStale(ctx context.Context) error {
	stale, err := t.posRepo.GetNeedingSync(ctx, time.Now().Add(-staleSyncHorizon))
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	realtime, err := t.factory.Realtime(ctx)
	if err != nil {
		return err
	}
	symbols := make([]string, 0, len(stale))
	for _, pos := range stale {
		symbols = append(symbols, pos.Symbol)
	}
	quotes, err := realtime.GetQuotes(ctx, symbols)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, pos := range stale {
		quote, ok := quotes[pos.Symbol]
		if !ok || quote.Last.IsZero() {
			continue
		}
		if err := t.posRepo.UpdatePrice(ctx, pos, quote.Last, now); err != nil {
			t.logger.Warn("failed to sync stale position", zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}
	return nil
}

func (t *MaintenanceThread) archiveExited(ctx context.Context) error {
	all, err := t.posRepo.GetAll(ctx, true)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-archiveAfter)
	for _, pos := range all {
		if pos.State != float64(models.FractionalState(-1.5)) {
			continue
		}
		if pos.LastTransitionDate.IsZero() || pos.LastTransitionDate.After(cutoff) {
			continue
		}
		pos.State = float64(models.StateStopped)
		pos.CloseReason = "auto_archived_after_60_days"
		pos.LastTransitionDate = time.Now()
		if err := t.posRepo.Update(ctx, pos); err != nil {
			t.logger.Warn("failed to auto-archive position", zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}
	return nil
}
