package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cwbrier63/canslim-monitor/internal/models"
)

// ProviderConfigRepository is the `provider_config.*` / credentials
// persistence surface.
type ProviderConfigRepository struct {
	db *DB
}

func NewProviderConfigRepository(db *DB) *ProviderConfigRepository {
	return &ProviderConfigRepository{db: db}
}

// GetPrimaryForDomain returns the highest-priority enabled provider row
// for a domain (historical|realtime|futures), the factory's selection
// rule.
func (r *ProviderConfigRepository) GetPrimaryForDomain(ctx context.Context, domain models.ProviderDomain) (*models.ProviderConfig, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT data FROM provider_config
		WHERE domain = ? AND enabled = 1
		ORDER BY priority DESC LIMIT 1`, string(domain))
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan provider config: %w", err)
	}
	var pc models.ProviderConfig
	if err := json.Unmarshal([]byte(data), &pc); err != nil {
		return nil, fmt.Errorf("unmarshal provider config: %w", err)
	}
	return &pc, nil
}

// CountAll returns the number of provider_config rows, used by the
// Service Controller to decide whether to seed providers from config
// on first run, when the provider table is still empty.
func (r *ProviderConfigRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM provider_config").Scan(&n); err != nil {
		return 0, fmt.Errorf("count provider config: %w", err)
	}
	return n, nil
}

// GetAllCredentials returns every credential row for a provider.
func (r *ProviderConfigRepository) GetAllCredentials(ctx context.Context, providerID string) ([]models.ProviderCredential, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		"SELECT provider_id, key, value FROM provider_credentials WHERE provider_id = ?", providerID)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()
	var out []models.ProviderCredential
	for rows.Next() {
		var c models.ProviderCredential
		if err := rows.Scan(&c.ProviderID, &c.Key, &c.Value); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateProvider inserts a new provider_config row.
func (r *ProviderConfigRepository) CreateProvider(ctx context.Context, pc *models.ProviderConfig) error {
	if pc.ID == "" {
		pc.ID = uuid.NewString()
	}
	data, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("marshal provider config: %w", err)
	}
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO provider_config (id, name, domain, priority, enabled, data)
			VALUES (?, ?, ?, ?, ?, ?)`,
			pc.ID, pc.Name, string(pc.Domain), pc.Priority, boolToInt(pc.Enabled), string(data))
		if err != nil {
			return fmt.Errorf("insert provider config: %w", err)
		}
		return nil
	})
}

// SetCredential upserts a single (provider_id, key) -> value credential.
func (r *ProviderConfigRepository) SetCredential(ctx context.Context, providerID, key, value string) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO provider_credentials (provider_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(provider_id, key) DO UPDATE SET value = excluded.value`,
			providerID, key, value)
		if err != nil {
			return fmt.Errorf("upsert credential: %w", err)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
