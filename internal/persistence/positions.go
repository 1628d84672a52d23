package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// PositionRepository is the `positions.*` persistence surface.
type PositionRepository struct {
	db *DB
}

func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// GetAll returns every position, optionally including closed ones
// (state -1/-2).
func (r *PositionRepository) GetAll(ctx context.Context, includeClosed bool) ([]*models.Position, error) {
	query := "SELECT data FROM positions"
	if !includeClosed {
		query += " WHERE state > -1 OR state = 0"
	}
	rows, err := r.db.Conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// GetInPosition returns every position with state >= 1 (sized entries).
func (r *PositionRepository) GetInPosition(ctx context.Context) ([]*models.Position, error) {
	rows, err := r.db.Conn().QueryContext(ctx, "SELECT data FROM positions WHERE state >= 1")
	if err != nil {
		return nil, fmt.Errorf("query in-position rows: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// GetWatching returns every state-0 watchlist candidate.
func (r *PositionRepository) GetWatching(ctx context.Context) ([]*models.Position, error) {
	rows, err := r.db.Conn().QueryContext(ctx, "SELECT data FROM positions WHERE state = 0")
	if err != nil {
		return nil, fmt.Errorf("query watching rows: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// GetByID loads a single position by surrogate id.
func (r *PositionRepository) GetByID(ctx context.Context, id string) (*models.Position, error) {
	row := r.db.Conn().QueryRowContext(ctx, "SELECT data FROM positions WHERE id = ?", id)
	return scanPosition(row)
}

// GetBySymbol loads a position by its (symbol, portfolio) identity.
func (r *PositionRepository) GetBySymbol(ctx context.Context, symbol, portfolio string) (*models.Position, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		"SELECT data FROM positions WHERE symbol = ? AND portfolio = ?", symbol, portfolio)
	return scanPosition(row)
}

// Create inserts a new position row.
func (r *PositionRepository) Create(ctx context.Context, pos *models.Position) error {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	pos.UpdatedAt = time.Now()
	pos.Recalculate()
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return upsertPosition(tx, pos)
	})
}

// Update persists a mutated position object in its own scoped session
// (sessions are per-operation, never long-lived).
func (r *PositionRepository) Update(ctx context.Context, pos *models.Position) error {
	pos.UpdatedAt = time.Now()
	pos.Recalculate()
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return upsertPosition(tx, pos)
	})
}

// UpdatePrice writes only the last-price/max-price tracking fields,
// used by the high-frequency quote-tick path.
func (r *PositionRepository) UpdatePrice(ctx context.Context, pos *models.Position, price decimal.Decimal, ts time.Time) error {
	pos.LastPrice = price
	if price.GreaterThan(pos.MaxPrice) {
		pos.MaxPrice = price
	}
	if !pos.AvgCost.IsZero() {
		pos.MaxGainPct = pos.MaxPrice.Sub(pos.AvgCost).Div(pos.AvgCost).Mul(decimal.NewFromInt(100))
	}
	pos.UpdatedAt = ts
	return r.Update(ctx, pos)
}

// PersistHold writes only the 8-week-hold side state for a position in
// its own short-lived transaction, re-reading the row rather than
// trusting the (possibly stale, detached) position object a checker
// evaluated against.
func (r *PositionRepository) PersistHold(ctx context.Context, positionID string, hold *models.EightWeekHold) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT data FROM positions WHERE id = ?", positionID)
		pos, err := scanPosition(row)
		if err != nil {
			return err
		}
		if pos == nil {
			return fmt.Errorf("position %s not found for hold persistence", positionID)
		}
		pos.EightWeekHold = hold
		pos.UpdatedAt = time.Now()
		return upsertPosition(tx, pos)
	})
}

// GetNeedingSync returns positions whose tracking fields are stale
// relative to the given horizon (used by the Maintenance thread).
func (r *PositionRepository) GetNeedingSync(ctx context.Context, staleSince time.Time) ([]*models.Position, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		"SELECT data FROM positions WHERE updated_at < ? AND (state > -1 OR state = 0)",
		staleSince.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query stale positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// BulkImport inserts many positions in one transaction — the entry
// point a bulk-import tool (e.g. from a spreadsheet export) would use,
// supplementing the Excel-import feature that is otherwise out of scope.
func (r *PositionRepository) BulkImport(ctx context.Context, seeds []*models.Position) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, pos := range seeds {
			if pos.ID == "" {
				pos.ID = uuid.NewString()
			}
			pos.UpdatedAt = time.Now()
			pos.Recalculate()
			if err := upsertPosition(tx, pos); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertPosition(tx *sql.Tx, pos *models.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO positions (id, symbol, portfolio, state, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			portfolio = excluded.portfolio,
			state = excluded.state,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, pos.ID, pos.Symbol, pos.Portfolio, pos.State, string(data), pos.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func scanPosition(row *sql.Row) (*models.Position, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan position: %w", err)
	}
	var pos models.Position
	if err := json.Unmarshal([]byte(data), &pos); err != nil {
		return nil, fmt.Errorf("unmarshal position: %w", err)
	}
	return &pos, nil
}

func scanPositions(rows *sql.Rows) ([]*models.Position, error) {
	var out []*models.Position
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		var pos models.Position
		if err := json.Unmarshal([]byte(data), &pos); err != nil {
			return nil, fmt.Errorf("unmarshal position row: %w", err)
		}
		out = append(out, &pos)
	}
	return out, rows.Err()
}

