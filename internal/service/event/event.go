package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/provider-api/internal/model"
)

// New builds the outbox row for a domain event. Repositories insert it in
// the transaction that makes the change, and the outbox worker delivers it
// to the broker afterwards.
func New(eventType string, payload interface{}) (*model.OutboxEvent, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type is required")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
