package provider

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
	"github.com/jwalitptl/provider-api/internal/service/event"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
	"github.com/jwalitptl/provider-api/pkg/logger"
	"github.com/jwalitptl/provider-api/pkg/metrics"
)

const EventConfigUpdated = "provider.config_updated"

type Service struct {
	repo    repository.ProviderRepository
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewService(repo repository.ProviderRepository, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:    repo,
		metrics: m,
		log:     log.Named("provider"),
	}
}

// UpdateConfig applies a partial settings update. The update is all or
// nothing: one unknown option rejects every key.
func (s *Service) UpdateConfig(ctx context.Context, providerID string, raw map[string]interface{}) error {
	if len(raw) == 0 {
		return apperrors.BadRequest("at least one config option is required", nil)
	}

	update, err := model.ParseProviderConfigUpdate(raw)
	if err != nil {
		return apperrors.BadRequest(err.Error(), err)
	}

	items := make([]model.ProviderConfigItem, 0, len(update))
	for item := range update {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })

	evt, err := event.New(EventConfigUpdated, model.ProviderConfigUpdated{
		ProviderID: providerID,
		Items:      items,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return apperrors.Internal(err)
	}

	start := time.Now()
	err = s.repo.UpsertConfig(ctx, providerID, update, evt)
	s.metrics.ObserveStore("provider_upsert_config", start, err)
	if err != nil {
		return apperrors.Upstream(err)
	}

	s.metrics.ObserveEventRecorded(EventConfigUpdated)
	s.log.Debug("provider config updated", "provider_id", providerID, "items", len(items))
	return nil
}

// GetConfig returns the stored settings of a provider, ordered by item.
func (s *Service) GetConfig(ctx context.Context, providerID string) ([]*model.ProviderConfigEntry, error) {
	start := time.Now()
	entries, err := s.repo.GetConfig(ctx, providerID)
	s.metrics.ObserveStore("provider_get_config", start, err)
	if err != nil {
		return nil, apperrors.Upstream(err)
	}
	return entries, nil
}

func (s *Service) GetName(ctx context.Context, providerID string) (*model.ProviderName, error) {
	start := time.Now()
	name, err := s.repo.GetName(ctx, providerID)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.ObserveStore("provider_get_name", start, nil)
		return nil, apperrors.NotFound("provider", err)
	}
	s.metrics.ObserveStore("provider_get_name", start, err)
	if err != nil {
		return nil, apperrors.Upstream(err)
	}
	return name, nil
}
