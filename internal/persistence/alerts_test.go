package persistence_test

import (
	"context"
	"testing"

	"github.com/cwbrier63/canslim-monitor/internal/models"
	"github.com/cwbrier63/canslim-monitor/internal/persistence"
)

func newTestAlert(symbol, subtype string) *models.Alert {
	return &models.Alert{
		Symbol:  symbol,
		Type:    models.AlertTypeStop,
		Subtype: subtype,
		Priority: models.P0,
		Message: "test alert",
	}
}

func TestAlertCreateAssignsIDAndTimestamp(t *testing.T) {
	db := openTestDB(t, persistence.ProfileLedger)
	repo := persistence.NewAlertRepository(db)

	a := newTestAlert("AAPL", "hard_stop")
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" {
		t.Error("Create did not assign an ID")
	}
	if a.CreatedAt.IsZero() {
		t.Error("Create did not stamp CreatedAt")
	}
	if a.Acknowledged {
		t.Error("a freshly created alert must start unacknowledged")
	}
}

func TestAlertGetRecentFiltersBySymbolAndWindow(t *testing.T) {
	db := openTestDB(t, persistence.ProfileLedger)
	repo := persistence.NewAlertRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, newTestAlert("AAPL", "hard_stop")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, newTestAlert("MSFT", "hard_stop")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	aaplOnly, err := repo.GetRecent(ctx, "AAPL", 24, 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(aaplOnly) != 1 || aaplOnly[0].Symbol != "AAPL" {
		t.Errorf("GetRecent(AAPL) = %+v, want just the AAPL alert", aaplOnly)
	}

	everything, err := repo.GetRecent(ctx, "", 24, 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(everything) != 2 {
		t.Errorf("GetRecent(\"\") returned %d alerts, want 2", len(everything))
	}

	none, err := repo.GetRecent(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("GetRecent with a zero-hour window returned %d alerts, want 0", len(none))
	}
}

func TestAlertAcknowledgeIsIdempotent(t *testing.T) {
	db := openTestDB(t, persistence.ProfileLedger)
	repo := persistence.NewAlertRepository(db)
	ctx := context.Background()

	a := newTestAlert("AAPL", "hard_stop")
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.Acknowledge(ctx, a.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	recent, err := repo.GetRecent(ctx, "AAPL", 24, 1)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if !recent[0].Acknowledged || recent[0].AcknowledgedAt == nil {
		t.Error("Acknowledge did not persist acknowledged/acknowledged_at")
	}
	firstAckTime := *recent[0].AcknowledgedAt

	// acknowledging again must be a no-op, not overwrite the timestamp
	if err := repo.Acknowledge(ctx, a.ID); err != nil {
		t.Fatalf("second Acknowledge: %v", err)
	}
	recent, err = repo.GetRecent(ctx, "AAPL", 24, 1)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if !recent[0].AcknowledgedAt.Equal(firstAckTime) {
		t.Error("re-acknowledging an already-acknowledged alert must not update its timestamp")
	}
}

func TestAlertAcknowledgeMissingIDErrors(t *testing.T) {
	db := openTestDB(t, persistence.ProfileLedger)
	repo := persistence.NewAlertRepository(db)

	if err := repo.Acknowledge(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected an error acknowledging a nonexistent alert")
	}
}

func TestAlertAcknowledgeAllMarksEveryPendingAlert(t *testing.T) {
	db := openTestDB(t, persistence.ProfileLedger)
	repo := persistence.NewAlertRepository(db)
	ctx := context.Background()

	for _, subtype := range []string{"hard_stop", "trailing_stop", "warning"} {
		if err := repo.Create(ctx, newTestAlert("AAPL", subtype)); err != nil {
			t.Fatalf("Create(%s): %v", subtype, err)
		}
	}

	if err := repo.AcknowledgeAll(ctx); err != nil {
		t.Fatalf("AcknowledgeAll: %v", err)
	}

	all, err := repo.GetRecent(ctx, "", 24, 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	for _, a := range all {
		if !a.Acknowledged {
			t.Errorf("alert %s was not acknowledged by AcknowledgeAll", a.ID)
		}
	}
}
