package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/calendar"
	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
	"github.com/cwbrier63/canslim-monitor/internal/providers"
	"github.com/cwbrier63/canslim-monitor/internal/service"
)

func newMaintenanceEnv(t *testing.T) (*service.MaintenanceThread, *persistence.PositionRepository) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "maint.db"), persistence.ProfileStandard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	posRepo := persistence.NewPositionRepository(db)
	configs := persistence.NewProviderConfigRepository(db)
	factory := providers.NewFactory(zap.NewNop(), configs)
	cal, err := calendar.New(zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	th := service.NewMaintenanceThread(zap.NewNop(), cal, time.Hour, posRepo, factory)
	return th, posRepo
}

func TestMaintenanceThreadArchivesExitedReentryPastCutoff(t *testing.T) {
	th, posRepo := newMaintenanceEnv(t)

	pos := &models.Position{
		Symbol: "AAPL", State: -1.5,
		LastTransitionDate: time.Now().Add(-61 * 24 * time.Hour),
	}
	if err := posRepo.Create(context.Background(), pos); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}

	got, err := posRepo.GetByID(context.Background(), pos.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.State != float64(models.StateStopped) {
		t.Errorf("State = %v, want StateStopped after archiving", got.State)
	}
	if got.CloseReason == "" {
		t.Error("expected a CloseReason to be recorded on auto-archive")
	}
}

func TestMaintenanceThreadLeavesRecentExitedReentryUntouched(t *testing.T) {
	th, posRepo := newMaintenanceEnv(t)

	pos := &models.Position{
		Symbol: "AAPL", State: -1.5,
		LastTransitionDate: time.Now().Add(-1 * time.Hour),
	}
	if err := posRepo.Create(context.Background(), pos); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}

	got, err := posRepo.GetByID(context.Background(), pos.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.State != -1.5 {
		t.Errorf("State = %v, want unchanged -1.5 (not yet past the archive horizon)", got.State)
	}
}

func TestMaintenanceThreadLeavesOpenPositionsUntouched(t *testing.T) {
	th, posRepo := newMaintenanceEnv(t)

	pos := &models.Position{Symbol: "AAPL", State: float64(models.StateEntry1)}
	if err := posRepo.Create(context.Background(), pos); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := th.ForceCheck(context.Background()); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}

	got, err := posRepo.GetByID(context.Background(), pos.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.State != float64(models.StateEntry1) {
		t.Errorf("State = %v, want unchanged (not an exited-reentry candidate)", got.State)
	}
}
