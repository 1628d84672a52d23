package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	cfgpkg "github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
)

// checkerOrder is fixed: earlier P0 alerts short-circuit later
// same-category checks within a single checker, and a hard_stop or
// trailing_stop alert additionally skips the MA checker for the rest
// of the cycle, since a
// hard/trailing stop on a position makes its MA-breakdown alerts
// redundant.
var checkerOrder = []struct {
	name string
	fn   Checker
}{
	{"stop", StopChecker},
	{"profit", ProfitChecker},
	{"pyramid", PyramidChecker},
	{"ma", MAChecker},
	{"health", HealthChecker},
	{"reentry", ReentryChecker},
	{"watchlist_alt_entry", WatchlistAltEntryChecker},
}

// CycleResult is the Position Monitor's per-cycle output.
type CycleResult struct {
	PositionsChecked int
	AlertsGenerated  int
	Alerts           []*models.Alert
	Errors           []error
	CycleTimeMS      int64
	Timestamp        time.Time
}

// Monitor runs the checker chain over a batch of positions each cycle
// and owns the small per-symbol state (price history ring buffers)
// that checkers read but do not own themselves.
type Monitor struct {
	logger  *zap.Logger
	posRepo *persistence.PositionRepository

	cfgMu sync.RWMutex
	cfg   cfgpkg.PositionMonitoringConfig

	priceHistory map[string][]decimal.Decimal // symbol -> last 10 prices, ring buffer
}

func New(logger *zap.Logger, cfg cfgpkg.PositionMonitoringConfig, posRepo *persistence.PositionRepository) *Monitor {
	return &Monitor{
		logger:       logger,
		cfg:          cfg,
		posRepo:      posRepo,
		priceHistory: make(map[string][]decimal.Decimal),
	}
}

// RecordPrice appends the latest price to a symbol's ring buffer,
// keeping at most the last 10 entries.
func (m *Monitor) RecordPrice(symbol string, price decimal.Decimal) {
	hist := m.priceHistory[symbol]
	hist = append(hist, price)
	if len(hist) > 10 {
		hist = hist[len(hist)-10:]
	}
	m.priceHistory[symbol] = hist
}

// PriceHistory returns the current ring buffer for symbol, for callers
// building a Context via BuildContext.
func (m *Monitor) PriceHistory(symbol string) []decimal.Decimal {
	return m.priceHistory[symbol]
}

// ApplyConfig swaps in a freshly reloaded checker configuration, so
// RELOAD_CONFIG's threshold changes apply to the cycle already in
// flight on the Position thread's own goroutine without a restart.
func (m *Monitor) ApplyConfig(cfg cfgpkg.PositionMonitoringConfig) {
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()
}

func (m *Monitor) config() cfgpkg.PositionMonitoringConfig {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// RunCycle evaluates every supplied (position, context) pair through
// the full checker chain, deduplicating same-(symbol,subtype)
// proposals within the cycle by keeping the highest priority, since
// the Position Monitor is itself a checker fan-out feeding the Alert
// Service.
func (m *Monitor) RunCycle(ctx context.Context, batch []PositionContext) *CycleResult {
	start := time.Now()
	result := &CycleResult{Timestamp: start}

	for _, pc := range batch {
		result.PositionsChecked++
		alerts, err := m.evaluateOne(ctx, pc.Position, pc.Context)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		alerts = dedupeBySubtype(alerts)
		result.Alerts = append(result.Alerts, alerts...)
	}

	result.AlertsGenerated = len(result.Alerts)
	result.CycleTimeMS = time.Since(start).Milliseconds()
	return result
}

// PositionContext pairs a position snapshot with its already-built
// immutable context, the unit of work RunCycle consumes.
type PositionContext struct {
	Position *models.Position
	Context  *Context
}

func (m *Monitor) evaluateOne(ctx context.Context, pos *models.Position, c *Context) ([]*models.Alert, error) {
	var alerts []*models.Alert
	var hardStopFired bool
	cfg := m.config()

	for _, entry := range checkerOrder {
		// A P0 hard/trailing stop already closes the position out in
		// principle, so the MA checker's breakdown alerts for the same
		// symbol in the same cycle are redundant noise on top of it.
		if entry.name == "ma" && hardStopFired {
			continue
		}

		produced := entry.fn(pos, c, cfg)
		for _, a := range produced {
			if entry.name == "stop" && (a.Subtype == "hard_stop" || a.Subtype == "trailing_stop") {
				hardStopFired = true
			}
			if a.HoldMetadata != nil {
				if err := m.posRepo.PersistHold(ctx, pos.ID, a.HoldMetadata); err != nil {
					m.logger.Warn("failed to persist 8-week hold",
						zap.String("symbol", pos.Symbol), zap.Error(err))
				}
			}
		}
		alerts = append(alerts, produced...)
	}

	return alerts, nil
}

// dedupeBySubtype keeps only the highest-priority alert per
// (symbol, subtype) pair produced within one cycle.
// Lower Priority values are more urgent (P0=0).
func dedupeBySubtype(alerts []*models.Alert) []*models.Alert {
	best := make(map[string]*models.Alert, len(alerts))
	order := make([]string, 0, len(alerts))
	for _, a := range alerts {
		key := a.DedupKey()
		if existing, ok := best[key]; !ok {
			best[key] = a
			order = append(order, key)
		} else if a.Priority < existing.Priority {
			best[key] = a
		}
	}
	out := make([]*models.Alert, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}
