package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(db *sqlx.DB) repository.MessageRepository {
	return &messageRepository{NewBaseRepository(db)}
}

// messageScope builds the WHERE clause shared by List and Delete.
// Filters combine with AND on top of the provider scope.
func messageScope(providerID string, filter model.MessageFilter) (string, []interface{}) {
	conds := []string{"provider_id = $1"}
	args := []interface{}{providerID}

	if filter.MemberID != "" {
		args = append(args, filter.MemberID)
		conds = append(conds, fmt.Sprintf("member_id = $%d", len(args)))
	}
	if filter.ThreadID != "" {
		args = append(args, filter.ThreadID)
		conds = append(conds, fmt.Sprintf("thread_id = $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

func (r *messageRepository) List(ctx context.Context, providerID string, filter model.MessageFilter) ([]*model.MessageHistory, error) {
	where, args := messageScope(providerID, filter)
	query := `
		SELECT message_id, timestamp, message_text, ai_generated
		FROM messages
		WHERE ` + where + `
		ORDER BY timestamp ASC, message_id ASC
	`

	messages := []*model.MessageHistory{}
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepository) Delete(
	ctx context.Context,
	providerID string,
	filter model.MessageFilter,
	event func(deleted int64) (*model.OutboxEvent, error),
) (int64, error) {
	where, args := messageScope(providerID, filter)
	query := `DELETE FROM messages WHERE ` + where

	var rows int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}

		rows, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if event == nil {
			return nil
		}
		evt, err := event(rows)
		if err != nil || evt == nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, evt)
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}
