package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/provider-api/migrations"
)

// Migrate applies every script in its own transaction. Scripts are written
// with IF NOT EXISTS so re-running them is harmless.
func Migrate(ctx context.Context, db *sqlx.DB, scripts []migrations.Script) error {
	base := NewBaseRepository(db)
	for _, script := range scripts {
		err := base.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, script.SQL)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", script.Name, err)
		}
	}
	return nil
}
