package persistence_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/cwbrier63/canslim-monitor/internal/persistence"
)

func openTestDB(t *testing.T, profile persistence.Profile) *persistence.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := persistence.Open(path, profile)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchemaAndIsHealthy(t *testing.T) {
	db := openTestDB(t, persistence.ProfileStandard)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestOpenDefaultsEmptyProfileToStandard(t *testing.T) {
	db := openTestDB(t, "")
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestWALCheckpointSucceeds(t *testing.T) {
	db := openTestDB(t, persistence.ProfileLedger)
	if err := db.WALCheckpoint(""); err != nil {
		t.Errorf("WALCheckpoint: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t, persistence.ProfileStandard)
	repo := persistence.NewProviderConfigRepository(db)

	wantErr := context.Canceled
	err := persistence.WithTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, execErr := tx.Exec(`INSERT INTO provider_config (id, name, domain, priority, enabled, data)
			VALUES ('x', 'x', 'historical', 1, 1, '{}')`); execErr != nil {
			t.Fatalf("exec: %v", execErr)
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("WithTx error = %v, want %v", err, wantErr)
	}

	n, countErr := repo.CountAll(context.Background())
	if countErr != nil {
		t.Fatalf("CountAll: %v", countErr)
	}
	if n != 0 {
		t.Errorf("expected no rows after a rolled-back transaction, got %d", n)
	}
}
