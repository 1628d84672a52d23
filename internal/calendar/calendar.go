// Package calendar provides a shared market-calendar instance answering
// is_market_open/is_trading_day, with a daily cron-driven holiday
// refresh from a historical data provider and a weekday-only fallback
// when that refresh has never succeeded.
package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HolidaySource fetches the list of upcoming market holidays (ISO
// dates, US Eastern) from a provider. Historical data providers
// generally expose a calendar endpoint alongside bars; this is kept as
// a narrow interface so any HistoricalProvider can optionally satisfy
// it without widening the core provider contract.
type HolidaySource interface {
	GetMarketHolidays(ctx context.Context, year int) ([]time.Time, error)
}

const (
	marketOpenHour    = 9
	marketOpenMinute  = 30
	marketCloseHour   = 16
	marketCloseMinute = 0
)

// Calendar is a process-wide singleton shared by every worker thread
// for market-hours gating.
type Calendar struct {
	mu            sync.RWMutex
	loc           *time.Location
	holidays      map[string]bool // "2006-01-02" -> true
	holidaysFresh bool
	source        HolidaySource
	logger        *zap.Logger
	cron          *cron.Cron
}

// New builds a Calendar in US/Eastern. source may be nil, in which
// case IsTradingDay falls back to weekday-only.
func New(logger *zap.Logger, source HolidaySource) (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &Calendar{
		loc:      loc,
		holidays: make(map[string]bool),
		source:   source,
		logger:   logger,
		cron:     cron.New(),
	}, nil
}

// Start schedules the nightly holiday refresh and runs one immediately.
func (c *Calendar) Start(ctx context.Context) {
	c.refresh(ctx)
	if _, err := c.cron.AddFunc("5 0 * * *", func() { c.refresh(context.Background()) }); err != nil {
		c.logger.Warn("failed to schedule holiday refresh", zap.Error(err))
		return
	}
	c.cron.Start()
}

// Stop halts the holiday-refresh schedule.
func (c *Calendar) Stop() {
	stopCtx := c.cron.Stop()
	<-stopCtx.Done()
}

func (c *Calendar) refresh(ctx context.Context) {
	if c.source == nil {
		return
	}
	year := time.Now().In(c.loc).Year()
	holidays, err := c.source.GetMarketHolidays(ctx, year)
	if err != nil {
		c.logger.Warn("holiday refresh failed, retaining weekday-only fallback", zap.Error(err))
		return
	}
	next, err := c.source.GetMarketHolidays(ctx, year+1)
	if err == nil {
		holidays = append(holidays, next...)
	}

	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		set[h.Format("2006-01-02")] = true
	}

	c.mu.Lock()
	c.holidays = set
	c.holidaysFresh = true
	c.mu.Unlock()

	c.logger.Info("market holiday calendar refreshed", zap.Int("count", len(set)))
}

// IsTradingDay reports whether t (interpreted in US/Eastern) is a
// trading day: not a weekend, and not a known holiday when the holiday
// table has been freshly populated. Absent a successful refresh it
// degrades to weekday-only.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.holidaysFresh {
		return true
	}
	return !c.holidays[local.Format("2006-01-02")]
}

// IsMarketOpen reports whether regular trading hours (9:30-16:00 ET)
// are in effect for t on a trading day.
func (c *Calendar) IsMarketOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	local := t.In(c.loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), marketOpenHour, marketOpenMinute, 0, 0, c.loc)
	closeT := time.Date(local.Year(), local.Month(), local.Day(), marketCloseHour, marketCloseMinute, 0, 0, c.loc)
	return !local.Before(open) && local.Before(closeT)
}

// InWindow reports whether t's time-of-day (ET) falls within
// [startHour:startMin, endHour:endMin), used by threads like Regime
// that run on a wider window than regular trading hours (e.g.
// 08:00-18:00 ET weekdays).
func (c *Calendar) InWindow(t time.Time, startHour, startMin, endHour, endMin int) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	local := t.In(c.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), startHour, startMin, 0, 0, c.loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), endHour, endMin, 0, 0, c.loc)
	return !local.Before(start) && local.Before(end)
}

// Now returns the current time in US/Eastern.
func (c *Calendar) Now() time.Time {
	return time.Now().In(c.loc)
}
