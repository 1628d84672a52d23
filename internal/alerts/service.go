package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/events"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
)

// bypassCooldownSubtypes lists the subtypes that skip the cooldown
// check regardless of their priority (every P0 alert skips it too).
var bypassCooldownSubtypes = map[string]bool{
	"hard_stop":     true,
	"trailing_stop": true,
	"ma_50_sell":    true,
	"ten_week_sell": true,
	"critical":      true,
	"climax_top":    true,
}

// defaultRouting maps alert_type to a default channel, overridable by
// config.AlertsConfig.Routing.
var defaultRouting = map[models.AlertType]string{
	models.AlertTypeStop:      "position",
	models.AlertTypeProfit:    "position",
	models.AlertTypePyramid:   "position",
	models.AlertTypeAdd:       "position",
	models.AlertTypeAltEntry:  "breakout",
	models.AlertTypeTechnical: "position",
	models.AlertTypeHealth:    "position",
	models.AlertTypeMarket:    "market",
	models.AlertTypeSystem:    "system",
}

// Service is the Alert Service: the single entry point every checker,
// the breakout scanner, and the regime calculator route candidate
// alerts through before they reach storage or a chat sink.
type Service struct {
	logger   *zap.Logger
	cfg      config.AlertsConfig
	repo     *persistence.AlertRepository
	sink     *Sink
	bus      *events.Bus // optional: nil when no WS surface is running

	mu        sync.Mutex
	cooldowns map[string]time.Time // "symbol|subtype" -> last dispatch time
	suppressed map[string]bool
}

func NewService(logger *zap.Logger, cfg config.AlertsConfig, repo *persistence.AlertRepository, sink *Sink) *Service {
	suppressed := make(map[string]bool, len(cfg.Suppressed))
	for _, s := range cfg.Suppressed {
		suppressed[s] = true
	}
	return &Service{
		logger:     logger,
		cfg:        cfg,
		repo:       repo,
		sink:       sink,
		cooldowns:  make(map[string]time.Time),
		suppressed: suppressed,
	}
}

// SetEventBus attaches the bus new alerts are published to for the
// read-only WebSocket surface. Optional — a controller without
// internal/api running never calls this, and CreateAlert simply skips
// publication.
func (s *Service) SetEventBus(bus *events.Bus) {
	s.bus = bus
}

// ApplyConfig swaps in a freshly reloaded AlertsConfig, rebuilding the
// derived suppression set, so RELOAD_CONFIG's updated routing table,
// cooldown window, and suppression list take effect on the next
// candidate alert rather than only on process restart.
func (s *Service) ApplyConfig(cfg config.AlertsConfig) {
	suppressed := make(map[string]bool, len(cfg.Suppressed))
	for _, sub := range cfg.Suppressed {
		suppressed[sub] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.suppressed = suppressed
}

// CreateAlert runs one candidate alert through the full pipeline:
// suppression, cooldown, persistence, routing and dispatch.
// It always persists an accepted alert even if dispatch subsequently
// fails, since delivery failures must never block the pipeline.
func (s *Service) CreateAlert(ctx context.Context, a *models.Alert) error {
	if s.isSuppressed(a) {
		s.logger.Debug("alert suppressed by config", zap.String("subtype", a.Subtype))
		return nil
	}
	if !s.checkCooldown(a) {
		s.logger.Debug("alert suppressed by cooldown", zap.String("symbol", a.Symbol), zap.String("subtype", a.Subtype))
		return nil
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("persist alert: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(events.NewAlertEvent(a))
	}
	s.dispatch(ctx, a)
	s.updateCooldown(a)
	return nil
}

// CreateBatch runs a full cycle's worth of candidate alerts through
// the pipeline, deduplicating same-(symbol,subtype) candidates within
// the batch by keeping the highest priority before any persistence or
// dispatch happens.
func (s *Service) CreateBatch(ctx context.Context, candidates []*models.Alert) []error {
	deduped := dedupeBatch(candidates)
	var errs []error
	for _, a := range deduped {
		if err := s.CreateAlert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func dedupeBatch(alerts []*models.Alert) []*models.Alert {
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

func (s *Service) isSuppressed(a *models.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.EnableSuppression {
		return false
	}
	return s.suppressed[a.Subtype]
}

func (s *Service) checkCooldown(a *models.Alert) bool {
	if bypassCooldownSubtypes[a.Subtype] || a.Priority == models.P0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.EnableCooldown {
		return true
	}
	minutes := s.cfg.CooldownMinutes
	if minutes == 0 {
		minutes = 60
	}
	window := time.Duration(minutes) * time.Minute
	if window <= 0 {
		return true
	}

	key := a.Symbol + "|" + a.Subtype
	last, ok := s.cooldowns[key]
	if !ok {
		return true
	}
	return time.Since(last) >= window
}

func (s *Service) updateCooldown(a *models.Alert) {
	key := a.Symbol + "|" + a.Subtype
	s.mu.Lock()
	s.cooldowns[key] = time.Now()
	s.mu.Unlock()
}

func (s *Service) dispatch(ctx context.Context, a *models.Alert) {
	channel := s.routeAlert(a)
	if err := s.sink.Send(ctx, channel, a); err != nil {
		s.logger.Warn("alert dispatch failed, alert remains persisted",
			zap.String("symbol", a.Symbol), zap.String("subtype", a.Subtype), zap.Error(err))
	}
}

// subtypeRouting overrides the type-level routing table for the one
// subtype that does not share its type's usual channel: a breakout
// worker's pivot-crossing signal is an `add`-type alert (subtypes
// pullback, ema_21, in_buy_zone) but belongs on the breakout
// channel with the rest of the watchlist-scanner alerts, not the
// position channel the Position Monitor's own `add` alerts use.
var subtypeRouting = map[string]string{
	"breakout_trigger": "breakout",
}

func (s *Service) routeChannel(t models.AlertType) string {
	s.mu.Lock()
	routing := s.cfg.Routing
	s.mu.Unlock()

	if routing != nil {
		if ch, ok := routing[string(t)]; ok {
			return ch
		}
	}
	if ch, ok := defaultRouting[t]; ok {
		return ch
	}
	return "system"
}

func (s *Service) routeAlert(a *models.Alert) string {
	if ch, ok := subtypeRouting[a.Subtype]; ok {
		return ch
	}
	return s.routeChannel(a.Type)
}
