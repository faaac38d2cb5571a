package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
)

type providerRepository struct {
	BaseRepository
}

func NewProviderRepository(db *sqlx.DB) repository.ProviderRepository {
	return &providerRepository{NewBaseRepository(db)}
}

func (r *providerRepository) GetName(ctx context.Context, providerID string) (*model.ProviderName, error) {
	query := `SELECT provider_id, provider_name FROM providers WHERE provider_id = $1`

	var name model.ProviderName
	if err := r.db.GetContext(ctx, &name, query, providerID); err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", notFound(err))
	}
	return &name, nil
}

// UpsertConfig writes every item of the update, and event when non-nil, in a
// single transaction.
func (r *providerRepository) UpsertConfig(
	ctx context.Context,
	providerID string,
	update model.ProviderConfigUpdate,
	event *model.OutboxEvent,
) error {
	items := make([]model.ProviderConfigItem, 0, len(update))
	for item := range update {
		items = append(items, item)
	}
	// Concurrent updates take row locks in the same order.
	sort.Slice(items, func(a, b int) bool { return items[a] < items[b] })

	query := `
		INSERT INTO provider_config (provider_id, item, value, update_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_id, item) DO UPDATE
		SET value = EXCLUDED.value, update_time = EXCLUDED.update_time
	`
	now := time.Now().UTC()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, item := range items {
			value, err := json.Marshal(update[item])
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", item, err)
			}
			if _, err := tx.ExecContext(ctx, query, providerID, string(item), value, now); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", item, err)
			}
		}
		if event == nil {
			return nil
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *providerRepository) GetConfig(ctx context.Context, providerID string) ([]*model.ProviderConfigEntry, error) {
	query := `
		SELECT provider_id, item, value, update_time
		FROM provider_config
		WHERE provider_id = $1
		ORDER BY item
	`

	var entries []*model.ProviderConfigEntry
	if err := r.db.SelectContext(ctx, &entries, query, providerID); err != nil {
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	return entries, nil
}
