package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/alerts"
	"github.com/cwbrier63/canslim-monitor/internal/api"
	"github.com/cwbrier63/canslim-monitor/internal/calendar"
	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/events"
	"github.com/cwbrier63/canslim-monitor/internal/ipc"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
	"github.com/cwbrier63/canslim-monitor/internal/providers"
	"github.com/cwbrier63/canslim-monitor/internal/regime"
)

// shutdownJoinTimeout bounds how long the Controller waits for each
// worker thread to exit on SHUTDOWN before giving up on it.
const shutdownJoinTimeout = 5 * time.Second

// Controller wires every package into the long-running engine: it owns
// the database, the provider factory, the alert pipeline, the market
// calendar, the four worker threads, and the IPC command server.
type Controller struct {
	logger *zap.Logger
	cfgMgr *config.Manager

	db         *persistence.DB
	posRepo    *persistence.PositionRepository
	alertRepo  *persistence.AlertRepository
	regimeRepo *persistence.RegimeAlertRepository
	providerRepo *persistence.ProviderConfigRepository

	cal       *calendar.Calendar
	factory   *providers.Factory
	alertSvc  *alerts.Service
	regimeCalc *regime.Calculator
	techCache *TechnicalsCache
	eventBus  *events.Bus

	breakout    *BreakoutThread
	position    *PositionThread
	regimeThread *RegimeThread
	maintenance *MaintenanceThread

	ipcServer *ipc.Server
	apiServer *api.Server

	startedAt time.Time
	mu        sync.Mutex
	shutdown  bool
}

// NewController constructs every component but starts nothing; call Run.
func NewController(logger *zap.Logger, cfgMgr *config.Manager) (*Controller, error) {
	cfg := cfgMgr.Get()

	db, err := persistence.Open(cfg.Database.Path, persistence.Profile(cfg.Database.Profile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	posRepo := persistence.NewPositionRepository(db)
	alertRepo := persistence.NewAlertRepository(db)
	regimeRepo := persistence.NewRegimeAlertRepository(db)
	providerRepo := persistence.NewProviderConfigRepository(db)

	factory := providers.NewFactory(logger, providerRepo)

	if err := seedProviders(context.Background(), providerRepo, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed provider config: %w", err)
	}

	var holidaySource calendar.HolidaySource
	if historical, err := factory.Historical(context.Background()); err == nil {
		if hs, ok := historical.(calendar.HolidaySource); ok {
			holidaySource = hs
		}
	}
	cal, err := calendar.New(logger, holidaySource)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("construct market calendar: %w", err)
	}

	sink := alerts.NewSink(cfg.Discord)
	alertSvc := alerts.NewService(logger, cfg.Alerts, alertRepo, sink)
	regimeCalc := regime.NewCalculator(logger, cfg.MarketRegime, regimeRepo)
	techCache := NewTechnicalsCache()
	eventBus := events.NewBus(logger, events.DefaultConfig())
	alertSvc.SetEventBus(eventBus)

	breakout := NewBreakoutThread(logger, cal, cfg.Threads.BreakoutInterval, posRepo, regimeRepo, factory, cfg.PositionSizing, alertSvc, techCache)
	position := NewPositionThread(logger, cal, cfg.Threads.PositionInterval, posRepo, regimeRepo, factory, cfg.PositionMonitoring, alertSvc, techCache)
	regimeThread := NewRegimeThread(logger, cal, cfg.Threads.RegimeInterval, regimeRepo, factory, regimeCalc, alertSvc)
	regimeThread.SetEventBus(eventBus)
	maintenance := NewMaintenanceThread(logger, cal, cfg.Threads.MaintenanceInterval, posRepo, factory)

	ipcServer := ipc.NewServer(logger, cfg.IPC.SocketPath)
	apiServer := api.NewServer(logger, cfg.Server.Host, cfg.Server.Port, eventBus, posRepo, alertRepo, regimeRepo)

	c := &Controller{
		logger:       logger,
		cfgMgr:       cfgMgr,
		db:           db,
		posRepo:      posRepo,
		alertRepo:    alertRepo,
		regimeRepo:   regimeRepo,
		providerRepo: providerRepo,
		cal:          cal,
		factory:      factory,
		alertSvc:     alertSvc,
		regimeCalc:   regimeCalc,
		techCache:    techCache,
		eventBus:     eventBus,
		breakout:     breakout,
		position:     position,
		regimeThread: regimeThread,
		maintenance:  maintenance,
		ipcServer:    ipcServer,
		apiServer:    apiServer,
	}
	c.registerCommands()
	return c, nil
}

// seedProviders populates provider_config/provider_credentials from the
// YAML/env config on first run, when the table is still empty.
func seedProviders(ctx context.Context, repo *persistence.ProviderConfigRepository, cfg *config.Config) error {
	count, err := repo.CountAll(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	historical := &models.ProviderConfig{
		Name:           "massive",
		Domain:         models.DomainHistorical,
		Implementation: "massive",
		Priority:       100,
		Enabled:        cfg.MarketData.APIKey != "",
		Throttle: models.ThrottleProfile{
			CallsPerMinute: 60,
			BurstSize:      5,
		},
		Settings: map[string]any{
			"base_url":  cfg.MarketData.BaseURL,
			"cache_dir": "./data/bars",
		},
	}
	if err := repo.CreateProvider(ctx, historical); err != nil {
		return fmt.Errorf("seed historical provider: %w", err)
	}
	if cfg.MarketData.APIKey != "" {
		if err := repo.SetCredential(ctx, historical.ID, "api_key", cfg.MarketData.APIKey); err != nil {
			return fmt.Errorf("seed historical credential: %w", err)
		}
	}

	ibkrEnabled := cfg.IBKR.Host != ""
	realtime := &models.ProviderConfig{
		Name:           "ibkr",
		Domain:         models.DomainRealtime,
		Implementation: "ibkr",
		Priority:       100,
		Enabled:        ibkrEnabled,
		Settings: map[string]any{
			"host":           cfg.IBKR.Host,
			"port":           cfg.IBKR.Port,
			"client_id_base": cfg.IBKR.ClientIDBase,
		},
	}
	if err := repo.CreateProvider(ctx, realtime); err != nil {
		return fmt.Errorf("seed realtime provider: %w", err)
	}

	futures := &models.ProviderConfig{
		Name:           "ibkr-futures",
		Domain:         models.DomainFutures,
		Implementation: "ibkr",
		Priority:       100,
		Enabled:        ibkrEnabled,
		Settings: map[string]any{
			"host": cfg.IBKR.Host,
			"port": cfg.IBKR.Port,
		},
	}
	if err := repo.CreateProvider(ctx, futures); err != nil {
		return fmt.Errorf("seed futures provider: %w", err)
	}
	return nil
}

// Run starts the market calendar refresh, the four worker threads, and
// the IPC server, then blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.startedAt = time.Now()
	c.cal.Start(ctx)

	c.breakout.Start(ctx)
	c.position.Start(ctx)
	c.regimeThread.Start(ctx)
	c.maintenance.Start(ctx)

	if err := c.ipcServer.Start(ctx); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	if err := c.apiServer.Start(ctx); err != nil {
		return fmt.Errorf("start api server: %w", err)
	}

	go c.publishHeartbeats(ctx)

	<-ctx.Done()
	c.Shutdown()
	return nil
}

// Shutdown joins every worker thread with a bounded timeout, stops the
// IPC server and calendar refresh, disconnects shared provider
// connections exactly once, and closes the database.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.mu.Unlock()

	c.ipcServer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownJoinTimeout)
	defer cancel()
	if err := c.apiServer.Stop(shutdownCtx); err != nil {
		c.logger.Warn("api server shutdown error", zap.Error(err))
	}

	for _, t := range []*BaseThread{c.breakout.BaseThread, c.position.BaseThread, c.regimeThread.BaseThread, c.maintenance.BaseThread} {
		if !t.Stop(shutdownJoinTimeout) {
			c.logger.Warn("thread did not exit within timeout")
		}
	}

	c.eventBus.Stop()
	c.cal.Stop()
	c.factory.DisconnectAll()

	if err := c.db.Close(); err != nil {
		c.logger.Warn("failed to close database", zap.Error(err))
	}
}

// publishHeartbeats gives a connected dashboard a way to tell "nothing
// happened" from "the engine died" even on a quiet session with no
// alerts or regime changes.
func (c *Controller) publishHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			states := map[string]string{
				"breakout":    string(c.breakout.Stats().State),
				"position":    string(c.position.Stats().State),
				"regime":      string(c.regimeThread.Stats().State),
				"maintenance": string(c.maintenance.Stats().State),
			}
			c.eventBus.Publish(events.NewHeartbeatEvent(states))
		}
	}
}

// registerCommands wires the IPC command surface.
func (c *Controller) registerCommands() {
	c.ipcServer.Register("GET_STATUS", c.handleGetStatus)
	c.ipcServer.Register("GET_STATS", c.handleGetStats)
	c.ipcServer.Register("GET_REGIME", c.handleGetRegime)
	c.ipcServer.Register("FORCE_CHECK", c.handleForceCheck)
	c.ipcServer.Register("RELOAD_CONFIG", c.handleReloadConfig)
	c.ipcServer.Register("SHUTDOWN", c.handleShutdown)
}

type statusResponse struct {
	Uptime   string          `json:"uptime"`
	Database string          `json:"database"`
	Threads  map[string]Stats `json:"threads"`
}

func (c *Controller) handleGetStatus(ctx context.Context, req ipc.Request) (any, bool, error) {
	dbStatus := "ok"
	if err := c.db.HealthCheck(ctx); err != nil {
		dbStatus = err.Error()
	}
	return statusResponse{
		Uptime:   time.Since(c.startedAt).String(),
		Database: dbStatus,
		Threads: map[string]Stats{
			"breakout":    c.breakout.Stats(),
			"position":    c.position.Stats(),
			"regime":      c.regimeThread.Stats(),
			"maintenance": c.maintenance.Stats(),
		},
	}, false, nil
}

func (c *Controller) handleGetStats(ctx context.Context, req ipc.Request) (any, bool, error) {
	return map[string]Stats{
		"breakout":    c.breakout.Stats(),
		"position":    c.position.Stats(),
		"regime":      c.regimeThread.Stats(),
		"maintenance": c.maintenance.Stats(),
	}, false, nil
}

func (c *Controller) handleGetRegime(ctx context.Context, req ipc.Request) (any, bool, error) {
	snap, err := c.regimeRepo.GetLatest(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load latest regime snapshot: %w", err)
	}
	if snap == nil {
		return nil, false, fmt.Errorf("no regime snapshot computed yet")
	}
	return snap, false, nil
}

type forceCheckRequest struct {
	Thread string `json:"thread"`
}

// handleForceCheck runs one thread's cycle immediately, outside its
// regular schedule.
// The response is reported as queued: the cycle itself may call
// external providers and outlive the IPC round-trip's own timeout.
func (c *Controller) handleForceCheck(ctx context.Context, req ipc.Request) (any, bool, error) {
	var body forceCheckRequest
	if len(req.Data) > 0 {
		if err := decodeRequestData(req, &body); err != nil {
			return nil, false, err
		}
	}

	var target *BaseThread
	switch body.Thread {
	case "breakout":
		target = c.breakout.BaseThread
	case "position":
		target = c.position.BaseThread
	case "regime":
		target = c.regimeThread.BaseThread
	case "maintenance":
		target = c.maintenance.BaseThread
	default:
		return nil, false, fmt.Errorf("unknown thread %q, expected breakout|position|regime|maintenance", body.Thread)
	}

	go func() {
		if err := target.ForceCheck(context.Background()); err != nil {
			c.logger.Warn("forced check failed", zap.String("thread", body.Thread), zap.Error(err))
		}
	}()
	return nil, true, nil
}

// handleReloadConfig re-reads the YAML/env config and pushes the parts
// that live services cache by value — alert routing/cooldown/
// suppression, per-thread poll intervals, and checker thresholds —
// into those already-running services rather than leaving them stale
// until the next process restart.
func (c *Controller) handleReloadConfig(ctx context.Context, req ipc.Request) (any, bool, error) {
	cfg, err := c.cfgMgr.Reload()
	if err != nil {
		return nil, false, fmt.Errorf("reload config: %w", err)
	}

	c.alertSvc.ApplyConfig(cfg.Alerts)
	c.position.ApplyMonitoringConfig(cfg.PositionMonitoring)
	c.breakout.SetPeriod(cfg.Threads.BreakoutInterval)
	c.position.SetPeriod(cfg.Threads.PositionInterval)
	c.regimeThread.SetPeriod(cfg.Threads.RegimeInterval)
	c.maintenance.SetPeriod(cfg.Threads.MaintenanceInterval)

	return map[string]string{"status": "reloaded"}, false, nil
}

// handleShutdown acknowledges the request as queued and performs the
// actual shutdown on a separate goroutine, since the reply must reach
// the client before the IPC server itself stops.
func (c *Controller) handleShutdown(ctx context.Context, req ipc.Request) (any, bool, error) {
	go c.Shutdown()
	return nil, true, nil
}

func decodeRequestData(req ipc.Request, v any) error {
	if err := json.Unmarshal(req.Data, v); err != nil {
		return fmt.Errorf("decode request data: %w", err)
	}
	return nil
}
