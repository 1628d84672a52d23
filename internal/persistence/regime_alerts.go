package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// RegimeAlertRepository is the `regime_alerts.*` persistence surface:
// exactly one row per calendar date, upserted.
type RegimeAlertRepository struct {
	db *DB
}

func NewRegimeAlertRepository(db *DB) *RegimeAlertRepository {
	return &RegimeAlertRepository{db: db}
}

// GetLatest returns the most recent regime-alert row, or nil if none exist.
func (r *RegimeAlertRepository) GetLatest(ctx context.Context) (*models.MarketRegimeAlert, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		"SELECT data FROM regime_alerts ORDER BY date DESC LIMIT 1")
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan regime alert: %w", err)
	}
	var a models.MarketRegimeAlert
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("unmarshal regime alert: %w", err)
	}
	return &a, nil
}

// GetForDate returns the row for a specific calendar date, or nil.
func (r *RegimeAlertRepository) GetForDate(ctx context.Context, date time.Time) (*models.MarketRegimeAlert, error) {
	key := date.Format("2006-01-02")
	row := r.db.Conn().QueryRowContext(ctx, "SELECT data FROM regime_alerts WHERE date = ?", key)
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan regime alert: %w", err)
	}
	var a models.MarketRegimeAlert
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("unmarshal regime alert: %w", err)
	}
	return &a, nil
}

// UpsertForDate writes (or overwrites) the one row for `date`. The
// caller (Regime worker thread / IPC handler) is responsible for the
// overwrite-or-skip prompt shown on a second run for the same day;
// unattended runs
// always pass overwrite=true.
func (r *RegimeAlertRepository) UpsertForDate(ctx context.Context, date time.Time, snapshot *models.MarketRegimeAlert, overwrite bool) (wrote bool, err error) {
	key := date.Format("2006-01-02")
	snapshot.Date = date
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}

	err = WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var existing string
		scanErr := tx.QueryRow("SELECT data FROM regime_alerts WHERE date = ?", key).Scan(&existing)
		exists := scanErr == nil
		if scanErr != nil && scanErr != sql.ErrNoRows {
			return fmt.Errorf("check existing regime alert: %w", scanErr)
		}
		if exists && !overwrite {
			wrote = false
			return nil
		}

		data, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("marshal regime alert: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO regime_alerts (date, data) VALUES (?, ?)
			ON CONFLICT(date) DO UPDATE SET data = excluded.data`,
			key, string(data))
		if err != nil {
			return fmt.Errorf("upsert regime alert: %w", err)
		}
		wrote = true
		return nil
	})
	return wrote, err
}
