package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/alerts"
	"github.com/cwbrier63/canslim-monitor/internal/calendar"
	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
	"github.com/cwbrier63/canslim-monitor/internal/providers"
	"github.com/cwbrier63/canslim-monitor/internal/regime"
	"github.com/cwbrier63/canslim-monitor/internal/service"
)

type fakeRealtime struct{ quotes map[string]models.Quote }

func (f *fakeRealtime) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}
func (f *fakeRealtime) IsConnected() bool      { return true }
func (f *fakeRealtime) Health() *providers.Health { return providers.NewHealth() }

// testEnv wires a real sqlite DB, provider registry entries, and an
// always-failing (network-free) alert sink, giving each service
// integration test a self-contained factory to acquire providers from.
type testEnv struct {
	db      *persistence.DB
	posRepo *persistence.PositionRepository
	regimeRepo *persistence.RegimeAlertRepository
	factory *providers.Factory
	alertSvc *alerts.Service
	alertRepo *persistence.AlertRepository
	cal     *calendar.Calendar
}

func newTestEnv(t *testing.T, hp providers.HistoricalProvider, rp providers.RealtimeProvider) *testEnv {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "svc.db"), persistence.ProfileStandard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	historicalImpl := fmt.Sprintf("fake-hist-%p", t)
	realtimeImpl := fmt.Sprintf("fake-rt-%p", t)
	providers.RegisterHistorical(historicalImpl, func(cfg *models.ProviderConfig, creds map[string]string, throttle *providers.Throttle) (providers.HistoricalProvider, error) {
		return hp, nil
	})
	providers.RegisterRealtime(realtimeImpl, func(cfg *models.ProviderConfig, creds map[string]string, throttle *providers.Throttle) (providers.RealtimeProvider, error) {
		return rp, nil
	})

	configs := persistence.NewProviderConfigRepository(db)
	ctx := context.Background()
	if err := configs.CreateProvider(ctx, &models.ProviderConfig{
		Name: "hist", Domain: models.DomainHistorical, Implementation: historicalImpl, Priority: 1, Enabled: true,
	}); err != nil {
		t.Fatalf("CreateProvider (historical): %v", err)
	}
	if err := configs.CreateProvider(ctx, &models.ProviderConfig{
		Name: "rt", Domain: models.DomainRealtime, Implementation: realtimeImpl, Priority: 1, Enabled: true,
	}); err != nil {
		t.Fatalf("CreateProvider (realtime): %v", err)
	}

	cal, err := calendar.New(zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}

	alertRepo := persistence.NewAlertRepository(db)
	sink := alerts.NewSink(config.DiscordConfig{Enabled: false})
	alertSvc := alerts.NewService(zap.NewNop(), config.AlertsConfig{}, alertRepo, sink)

	return &testEnv{
		db:         db,
		posRepo:    persistence.NewPositionRepository(db),
		regimeRepo: persistence.NewRegimeAlertRepository(db),
		factory:    providers.NewFactory(zap.NewNop(), configs),
		alertSvc:   alertSvc,
		alertRepo:  alertRepo,
		cal:        cal,
	}
}

func TestPositionThreadForceCheckGeneratesAndPersistsAlerts(t *testing.T) {
	hp := &fakeHistoricalProvider{bars: risingBars(260, 100)}
	rp := &fakeRealtime{quotes: map[string]models.Quote{
		"AAPL": {Symbol: "AAPL", Last: d(94), Volume: d(1_000_000)},
		"SPY":  {Symbol: "SPY", Last: d(450), Volume: d(1_000_000)},
	}}
	env := newTestEnv(t, hp, rp)

	pos := &models.Position{
		Symbol: "AAPL", State: 1, AvgCost: d(100), TotalShares: d(10),
		StopPrice: d(95), Pivot: d(98), EntryDate: time.Now().AddDate(0, 0, -5),
	}
	if err := env.posRepo.Create(context.Background(), pos); err != nil {
		t.Fatalf("Create: %v", err)
	}

	th := service.NewPositionThread(zap.NewNop(), env.cal, time.Hour, env.posRepo, env.regimeRepo, env.factory,
		config.PositionMonitoringConfig{}, env.alertSvc, service.NewTechnicalsCache())

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}

	got, err := env.alertRepo.GetRecent(context.Background(), "AAPL", 24, 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one persisted alert (price below hard stop)")
	}

	updated, err := env.posRepo.GetByID(context.Background(), pos.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !updated.LastPrice.Equal(d(94)) {
		t.Errorf("LastPrice = %s, want 94 (tracking update persisted)", updated.LastPrice.String())
	}
}

func TestPositionThreadForceCheckNoPositionsIsNoop(t *testing.T) {
	hp := &fakeHistoricalProvider{bars: risingBars(260, 100)}
	rp := &fakeRealtime{quotes: map[string]models.Quote{}}
	env := newTestEnv(t, hp, rp)

	th := service.NewPositionThread(zap.NewNop(), env.cal, time.Hour, env.posRepo, env.regimeRepo, env.factory,
		config.PositionMonitoringConfig{}, env.alertSvc, service.NewTechnicalsCache())

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}
}

func TestBreakoutThreadForceCheckAlertsOnTriggeredBreakout(t *testing.T) {
	hp := &fakeHistoricalProvider{bars: risingBars(260, 90)}
	rp := &fakeRealtime{quotes: map[string]models.Quote{
		"AAPL": {Symbol: "AAPL", Last: d(101), Volume: d(3_000_000)},
	}}
	env := newTestEnv(t, hp, rp)

	pos := &models.Position{
		Symbol: "AAPL", State: 0, Pivot: d(100),
		RSRating: 95, CompositeRating: 95, EPSRating: 95,
	}
	if err := env.posRepo.Create(context.Background(), pos); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sizingCfg := config.PositionSizingConfig{PortfolioValue: 100000, AccountRiskPct: 1, MaxPositionPct: 25, InitialPct: 20}
	th := service.NewBreakoutThread(zap.NewNop(), env.cal, time.Hour, env.posRepo, env.regimeRepo, env.factory,
		sizingCfg, env.alertSvc, service.NewTechnicalsCache())

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}

	got, err := env.alertRepo.GetRecent(context.Background(), "AAPL", 24, 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(got) != 1 || got[0].Subtype != "breakout_trigger" {
		t.Fatalf("alerts = %+v, want a single breakout_trigger alert", got)
	}
}

func TestBreakoutThreadForceCheckEmptyWatchlistIsNoop(t *testing.T) {
	hp := &fakeHistoricalProvider{bars: risingBars(260, 90)}
	rp := &fakeRealtime{quotes: map[string]models.Quote{}}
	env := newTestEnv(t, hp, rp)

	sizingCfg := config.PositionSizingConfig{PortfolioValue: 100000, AccountRiskPct: 1, MaxPositionPct: 25, InitialPct: 20}
	th := service.NewBreakoutThread(zap.NewNop(), env.cal, time.Hour, env.posRepo, env.regimeRepo, env.factory,
		sizingCfg, env.alertSvc, service.NewTechnicalsCache())

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}
}

func TestRegimeThreadForceCheckPersistsSnapshotAndPublishesOncePerDay(t *testing.T) {
	hp := &fakeHistoricalProvider{bars: risingBars(260, 400)}
	rp := &fakeRealtime{quotes: map[string]models.Quote{}}
	env := newTestEnv(t, hp, rp)

	calc := regime.NewCalculator(zap.NewNop(), config.MarketRegimeConfig{}, env.regimeRepo)
	th := service.NewRegimeThread(zap.NewNop(), env.cal, time.Hour, env.regimeRepo, env.factory, calc, env.alertSvc)

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck (first): %v", err)
	}
	snap, err := env.regimeRepo.GetLatest(context.Background())
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a persisted regime snapshot after ForceCheck")
	}

	firstCount, _ := env.alertRepo.GetRecent(context.Background(), "MARKET", 24, 10)

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck (second, same day): %v", err)
	}
	secondCount, _ := env.alertRepo.GetRecent(context.Background(), "MARKET", 24, 10)
	if len(secondCount) != len(firstCount) {
		t.Errorf("expected no additional market alert on the second same-day cycle, got %d vs %d", len(secondCount), len(firstCount))
	}
}
