package alerts_test

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/alerts"
	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
)

func newTestService(t *testing.T, cfg config.AlertsConfig) (*alerts.Service, *persistence.AlertRepository) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "alerts.db"), persistence.ProfileStandard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := persistence.NewAlertRepository(db)
	// a disabled sink: dispatch always fails quietly, no network calls.
	sink := alerts.NewSink(config.DiscordConfig{Enabled: false})
	return alerts.NewService(zap.NewNop(), cfg, repo, sink), repo
}

func newCandidate(symbol, subtype string, priority models.Priority) *models.Alert {
	return &models.Alert{
		Symbol: symbol, Type: models.AlertTypeStop, Subtype: subtype,
		Priority: priority, Message: "test alert",
	}
}

func TestCreateAlertPersistsAcceptedAlert(t *testing.T) {
	svc, repo := newTestService(t, config.AlertsConfig{})
	if err := svc.CreateAlert(context.Background(), newCandidate("AAPL", "hard_stop", models.P0)); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	got, err := repo.GetRecent(context.Background(), "AAPL", 24, 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 persisted alert, got %d", len(got))
	}
}

func TestCreateAlertSkipsSuppressedSubtype(t *testing.T) {
	cfg := config.AlertsConfig{EnableSuppression: true, Suppressed: []string{"hard_stop"}}
	svc, repo := newTestService(t, cfg)
	if err := svc.CreateAlert(context.Background(), newCandidate("AAPL", "hard_stop", models.P0)); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	got, _ := repo.GetRecent(context.Background(), "AAPL", 24, 10)
	if len(got) != 0 {
		t.Errorf("expected a suppressed subtype to never persist, got %d rows", len(got))
	}
}

func TestCreateAlertEnforcesCooldownOnRepeatSubtype(t *testing.T) {
	cfg := config.AlertsConfig{EnableCooldown: true, CooldownMinutes: 60}
	svc, repo := newTestService(t, cfg)

	// p2_ready is not in the bypass set and not P0, so cooldown applies.
	first := newCandidate("AAPL", "p2_ready", models.P1)
	second := newCandidate("AAPL", "p2_ready", models.P1)

	if err := svc.CreateAlert(context.Background(), first); err != nil {
		t.Fatalf("CreateAlert (first): %v", err)
	}
	if err := svc.CreateAlert(context.Background(), second); err != nil {
		t.Fatalf("CreateAlert (second): %v", err)
	}

	got, _ := repo.GetRecent(context.Background(), "AAPL", 24, 10)
	if len(got) != 1 {
		t.Errorf("expected the second alert to be suppressed by cooldown, got %d rows", len(got))
	}
}

func TestCreateAlertP0BypassesCooldown(t *testing.T) {
	cfg := config.AlertsConfig{EnableCooldown: true, CooldownMinutes: 60}
	svc, repo := newTestService(t, cfg)

	first := newCandidate("AAPL", "hard_stop", models.P0)
	second := newCandidate("AAPL", "hard_stop", models.P0)

	if err := svc.CreateAlert(context.Background(), first); err != nil {
		t.Fatalf("CreateAlert (first): %v", err)
	}
	if err := svc.CreateAlert(context.Background(), second); err != nil {
		t.Fatalf("CreateAlert (second): %v", err)
	}

	got, _ := repo.GetRecent(context.Background(), "AAPL", 24, 10)
	if len(got) != 2 {
		t.Errorf("P0 alerts should always bypass cooldown, got %d rows, want 2", len(got))
	}
}

func TestCreateBatchDedupesSameSubtypeKeepingHighestPriority(t *testing.T) {
	svc, repo := newTestService(t, config.AlertsConfig{})
	low := newCandidate("AAPL", "extended", models.P2)
	high := newCandidate("AAPL", "extended", models.P0)

	errs := svc.CreateBatch(context.Background(), []*models.Alert{low, high})
	if len(errs) != 0 {
		t.Fatalf("CreateBatch errors: %v", errs)
	}

	got, _ := repo.GetRecent(context.Background(), "AAPL", 24, 10)
	if len(got) != 1 {
		t.Fatalf("expected exactly one deduped alert, got %d", len(got))
	}
	if got[0].Priority != models.P0 {
		t.Errorf("expected the higher-priority (P0) candidate to survive dedup, got %v", got[0].Priority)
	}
}

func TestCreateAlertAcrossDifferentSymbolsNeverCooldownEachOther(t *testing.T) {
	cfg := config.AlertsConfig{EnableCooldown: true, CooldownMinutes: 60}
	svc, repo := newTestService(t, cfg)

	if err := svc.CreateAlert(context.Background(), newCandidate("AAPL", "p2_ready", models.P1)); err != nil {
		t.Fatalf("CreateAlert (AAPL): %v", err)
	}
	if err := svc.CreateAlert(context.Background(), newCandidate("MSFT", "p2_ready", models.P1)); err != nil {
		t.Fatalf("CreateAlert (MSFT): %v", err)
	}

	gotAAPL, _ := repo.GetRecent(context.Background(), "AAPL", 24, 10)
	gotMSFT, _ := repo.GetRecent(context.Background(), "MSFT", 24, 10)
	if len(gotAAPL) != 1 || len(gotMSFT) != 1 {
		t.Errorf("cooldown is keyed per-symbol; expected one alert each, got AAPL=%d MSFT=%d", len(gotAAPL), len(gotMSFT))
	}
}
