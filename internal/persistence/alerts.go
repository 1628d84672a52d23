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

// AlertRepository is the `alerts.*` persistence surface. The alert
// table is append-only: rows are never updated except for the
// acknowledged/acknowledged_at columns.
type AlertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create persists a new alert with created_at = now, acknowledged = false.
func (r *AlertRepository) Create(ctx context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()
	a.Acknowledged = false
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO alerts (id, symbol, position_id, alert_type, subtype, priority, created_at, acknowledged, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			a.ID, a.Symbol, nullableString(a.PositionID), string(a.Type), a.Subtype, int(a.Priority),
			a.CreatedAt.Format(time.RFC3339Nano), string(data))
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
		return nil
	})
}

// GetRecent returns alerts within the last `hours`, optionally filtered
// by symbol, newest first, bounded by limit.
func (r *AlertRepository) GetRecent(ctx context.Context, symbol string, hours int, limit int) ([]*models.Alert, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339Nano)
	var rows *sql.Rows
	var err error
	if symbol != "" {
		rows, err = r.db.Conn().QueryContext(ctx,
			"SELECT data FROM alerts WHERE symbol = ? AND created_at >= ? ORDER BY created_at DESC LIMIT ?",
			symbol, since, limit)
	} else {
		rows, err = r.db.Conn().QueryContext(ctx,
			"SELECT data FROM alerts WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?",
			since, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		var a models.Alert
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("unmarshal alert: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Acknowledge marks a single alert acknowledged. Acknowledging an
// already-acknowledged alert is a no-op.
func (r *AlertRepository) Acknowledge(ctx context.Context, id string) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRow("SELECT data FROM alerts WHERE id = ?", id)
		var data string
		if err := row.Scan(&data); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("alert %s not found", id)
			}
			return fmt.Errorf("scan alert: %w", err)
		}
		var a models.Alert
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return fmt.Errorf("unmarshal alert: %w", err)
		}
		if a.Acknowledged {
			return nil // no-op: already acknowledged
		}
		now := time.Now()
		a.Acknowledged = true
		a.AcknowledgedAt = &now
		newData, err := json.Marshal(&a)
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		_, err = tx.Exec("UPDATE alerts SET acknowledged = 1, acknowledged_at = ?, data = ? WHERE id = ?",
			now.Format(time.RFC3339Nano), string(newData), id)
		if err != nil {
			return fmt.Errorf("update alert: %w", err)
		}
		return nil
	})
}

// AcknowledgeAll marks every unacknowledged alert acknowledged.
func (r *AlertRepository) AcknowledgeAll(ctx context.Context) error {
	now := time.Now().Format(time.RFC3339Nano)
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, data FROM alerts WHERE acknowledged = 0")
		if err != nil {
			return fmt.Errorf("query unacknowledged alerts: %w", err)
		}
		type rowData struct {
			id   string
			data string
		}
		var pending []rowData
		for rows.Next() {
			var rd rowData
			if err := rows.Scan(&rd.id, &rd.data); err != nil {
				rows.Close()
				return fmt.Errorf("scan alert: %w", err)
			}
			pending = append(pending, rd)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, rd := range pending {
			var a models.Alert
			if err := json.Unmarshal([]byte(rd.data), &a); err != nil {
				return fmt.Errorf("unmarshal alert: %w", err)
			}
			t := time.Now()
			a.Acknowledged = true
			a.AcknowledgedAt = &t
			newData, err := json.Marshal(&a)
			if err != nil {
				return fmt.Errorf("marshal alert: %w", err)
			}
			if _, err := tx.Exec("UPDATE alerts SET acknowledged = 1, acknowledged_at = ?, data = ? WHERE id = ?",
				now, string(newData), rd.id); err != nil {
				return fmt.Errorf("update alert: %w", err)
			}
		}
		return nil
	})
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
