package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
)

type apiKeyRepository struct {
	BaseRepository
}

func NewAPIKeyRepository(db *sqlx.DB) repository.APIKeyRepository {
	return &apiKeyRepository{NewBaseRepository(db)}
}

func (r *apiKeyRepository) Get(ctx context.Context, keyID string) (*model.APIKey, error) {
	query := `
		SELECT key_id, provider_id, secret_hash, created_at, revoked_at
		FROM provider_api_keys
		WHERE key_id = $1
	`

	var key model.APIKey
	if err := r.db.GetContext(ctx, &key, query, keyID); err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", notFound(err))
	}
	return &key, nil
}

func (r *apiKeyRepository) Create(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO provider_api_keys (key_id, provider_id, secret_hash, created_at)
		VALUES (:key_id, :provider_id, :secret_hash, :created_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (r *apiKeyRepository) Revoke(ctx context.Context, keyID string) error {
	query := `
		UPDATE provider_api_keys
		SET revoked_at = NOW()
		WHERE key_id = $1 AND revoked_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, keyID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to revoke api key: %w", repository.ErrNotFound)
	}
	return nil
}
