package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
	"github.com/jwalitptl/provider-api/pkg/logger"
	"github.com/jwalitptl/provider-api/pkg/messaging"
	"github.com/jwalitptl/provider-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	Channel      string
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts is the number of deliveries tried before an event is
	// marked failed for good.
	MaxAttempts int
	RetryDelay  time.Duration
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.Channel == "":
		return fmt.Errorf("channel is required")
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be greater than 0")
	case c.MaxAttempts <= 0:
		return fmt.Errorf("max attempts must be greater than 0")
	case c.RetryDelay <= 0:
		return fmt.Errorf("retry delay must be greater than 0")
	}
	return nil
}

// OutboxProcessor moves outbox events onto the broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  log.Named("outbox"),
		metrics: m,
		now:     time.Now,
	}, nil
}

// Start polls until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "failed to process outbox batch")
			}
		}
	}
}

// ProcessBatch delivers one batch of due events and returns how many were handled.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	defer p.metrics.ObserveOutboxBatch(p.now())

	n, err := p.repo.ProcessPending(ctx, p.config.BatchSize, p.deliver)
	if err != nil {
		return 0, fmt.Errorf("failed to process pending events: %w", err)
	}
	if n > 0 {
		p.logger.Debug("outbox batch processed", "events", n)
	}
	return n, nil
}

func (p *OutboxProcessor) deliver(ctx context.Context, event *model.OutboxEvent) model.OutboxOutcome {
	err := p.broker.Publish(ctx, p.config.Channel, messaging.Message{
		ID:         event.ID.String(),
		Type:       event.EventType,
		Payload:    event.Payload,
		OccurredAt: event.CreatedAt,
	})
	if err == nil {
		p.metrics.ObserveOutbox(event.EventType, string(model.OutboxStatusProcessed))
		return model.OutboxOutcome{Status: model.OutboxStatusProcessed}
	}

	errMsg := err.Error()
	attempt := event.Attempts + 1
	if attempt >= p.config.MaxAttempts {
		p.logger.Error(err, "outbox event failed permanently",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"attempts", attempt)
		p.metrics.ObserveOutbox(event.EventType, string(model.OutboxStatusFailed))
		return model.OutboxOutcome{Status: model.OutboxStatusFailed, ErrorMessage: &errMsg}
	}

	retryAt := p.now().UTC().Add(p.config.RetryDelay * time.Duration(attempt))
	p.logger.Warn(err, "outbox event delivery failed",
		"event_id", event.ID.String(),
		"event_type", event.EventType,
		"attempts", attempt)
	p.metrics.ObserveOutbox(event.EventType, string(model.OutboxStatusRetry))
	return model.OutboxOutcome{
		Status:       model.OutboxStatusRetry,
		ErrorMessage: &errMsg,
		RetryAt:      &retryAt,
	}
}
