package message

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
	"github.com/jwalitptl/provider-api/internal/service/event"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
	"github.com/jwalitptl/provider-api/pkg/logger"
	"github.com/jwalitptl/provider-api/pkg/metrics"
)

const EventHistoryCleared = "message_history.cleared"

// MemberOwnership reports whether a member belongs to a provider.
type MemberOwnership interface {
	OwnedBy(ctx context.Context, memberID, providerID string) error
}

type Service struct {
	repo    repository.MessageRepository
	members MemberOwnership
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewService(
	repo repository.MessageRepository,
	members MemberOwnership,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:    repo,
		members: members,
		metrics: m,
		log:     log.Named("message"),
	}
}

// History returns the provider's messages matching filter, oldest first.
func (s *Service) History(ctx context.Context, providerID string, filter model.MessageFilter) ([]*model.MessageHistory, error) {
	filter = normalize(filter)
	if filter.MemberID != "" {
		if err := s.members.OwnedBy(ctx, filter.MemberID, providerID); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	history, err := s.repo.List(ctx, providerID, filter)
	s.metrics.ObserveStore("message_list", start, err)
	if err != nil {
		return nil, apperrors.Upstream(err)
	}
	if history == nil {
		history = []*model.MessageHistory{}
	}

	sort.SliceStable(history, func(i, j int) bool {
		a, b := history[i], history[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.MessageID < b.MessageID
	})
	return history, nil
}

// Clear deletes the provider's messages matching filter and returns how many
// were removed. Clearing an already empty scope succeeds with zero and
// records no event.
func (s *Service) Clear(ctx context.Context, providerID string, filter model.MessageFilter) (int64, error) {
	filter = normalize(filter)

	start := time.Now()
	deleted, err := s.repo.Delete(ctx, providerID, filter, func(deleted int64) (*model.OutboxEvent, error) {
		if deleted == 0 {
			return nil, nil
		}
		return event.New(EventHistoryCleared, model.MessageHistoryCleared{
			ProviderID: providerID,
			MemberID:   filter.MemberID,
			ThreadID:   filter.ThreadID,
			Deleted:    deleted,
			ClearedAt:  time.Now().UTC(),
		})
	})
	s.metrics.ObserveStore("message_delete", start, err)
	if err != nil {
		return 0, apperrors.Upstream(err)
	}

	if deleted > 0 {
		s.metrics.ObserveEventRecorded(EventHistoryCleared)
	}
	s.log.Debug("message history cleared", "provider_id", providerID, "deleted", deleted)
	return deleted, nil
}

func normalize(filter model.MessageFilter) model.MessageFilter {
	return model.MessageFilter{
		MemberID: strings.TrimSpace(filter.MemberID),
		ThreadID: strings.TrimSpace(filter.ThreadID),
	}
}
