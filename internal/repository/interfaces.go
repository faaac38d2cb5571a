package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/provider-api/internal/model"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// MemberRepository reads members. Members are written by the ingest pipeline, not this API.
	// Lookups only match members of the given provider.
	MemberRepository interface {
		GetByID(ctx context.Context, providerID, memberID string) (*model.Member, error)
		GetByEmail(ctx context.Context, providerID, email string) (*model.Member, error)
		GetByPhone(ctx context.Context, providerID, phone string) (*model.Member, error)
		BelongsToProvider(ctx context.Context, memberID, providerID string) (bool, error)
	}

	ProviderRepository interface {
		GetName(ctx context.Context, providerID string) (*model.ProviderName, error)
		// UpsertConfig stores the update and, when event is non-nil, the
		// event describing it in one transaction.
		UpsertConfig(ctx context.Context, providerID string, update model.ProviderConfigUpdate, event *model.OutboxEvent) error
		GetConfig(ctx context.Context, providerID string) ([]*model.ProviderConfigEntry, error)
	}

	MessageRepository interface {
		List(ctx context.Context, providerID string, filter model.MessageFilter) ([]*model.MessageHistory, error)
		// Delete removes the matching messages. event, when non-nil, is called
		// with the deleted count inside the transaction; a non-nil result is
		// written to the outbox before commit.
		Delete(ctx context.Context, providerID string, filter model.MessageFilter, event func(deleted int64) (*model.OutboxEvent, error)) (int64, error)
	}

	APIKeyRepository interface {
		Get(ctx context.Context, keyID string) (*model.APIKey, error)
		Create(ctx context.Context, key *model.APIKey) error
		Revoke(ctx context.Context, keyID string) error
	}

	// OutboxRepository drains events that other repositories wrote in the
	// transaction of the change they describe.
	OutboxRepository interface {
		// ProcessPending locks up to limit due events, hands each to handle and
		// stores the returned outcome, all in one transaction. Events locked by
		// another worker are skipped.
		ProcessPending(ctx context.Context, limit int, handle func(ctx context.Context, event *model.OutboxEvent) model.OutboxOutcome) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
