package member

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
	"github.com/jwalitptl/provider-api/pkg/metrics"
)

// Result is what /v1/member/get returns: exactly one of the fields is set.
type Result struct {
	Member   *model.Member
	Provider *model.ProviderName
}

// ProviderNames resolves a provider id to its display name.
type ProviderNames interface {
	GetName(ctx context.Context, providerID string) (*model.ProviderName, error)
}

type Service struct {
	members   repository.MemberRepository
	providers ProviderNames
	cache     *cache.Cache
	metrics   *metrics.Metrics
}

type Options struct {
	CacheTTL        time.Duration
	CleanupInterval time.Duration
	Metrics         *metrics.Metrics
}

func NewService(members repository.MemberRepository, providers ProviderNames, opts Options) *Service {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Service{
		members:   members,
		providers: providers,
		cache:     cache.New(ttl, opts.CleanupInterval),
		metrics:   opts.Metrics,
	}
}

// Lookup resolves a member of providerID or a provider name. Exactly one key
// must be set; zero or several keys are rejected rather than guessing a
// precedence. Members of other providers are reported as not found.
func (s *Service) Lookup(ctx context.Context, providerID string, q model.MemberQuery) (*Result, error) {
	keys := q.SetKeys()
	switch len(keys) {
	case 0:
		return nil, apperrors.BadRequest("one of id, email, phone_number or provider_id is required", nil)
	case 1:
	default:
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = string(k)
		}
		return nil, apperrors.BadRequest(
			fmt.Sprintf("only one lookup parameter may be supplied, got %s", strings.Join(names, ", ")), nil)
	}

	switch keys[0] {
	case model.LookupByProvider:
		provider, err := s.providerName(ctx, q.ProviderID)
		if err != nil {
			return nil, err
		}
		return &Result{Provider: provider}, nil
	case model.LookupByEmail:
		return s.member(ctx, memberKey(providerID, "email", strings.ToLower(q.Email)), "member_get_by_email", func() (*model.Member, error) {
			return s.members.GetByEmail(ctx, providerID, q.Email)
		})
	case model.LookupByPhone:
		return s.member(ctx, memberKey(providerID, "phone", q.PhoneNumber), "member_get_by_phone", func() (*model.Member, error) {
			return s.members.GetByPhone(ctx, providerID, q.PhoneNumber)
		})
	default:
		return s.member(ctx, memberKey(providerID, "id", q.ID), "member_get_by_id", func() (*model.Member, error) {
			return s.members.GetByID(ctx, providerID, q.ID)
		})
	}
}

func memberKey(providerID, kind, value string) string {
	return providerID + "|" + kind + ":" + value
}

func (s *Service) member(ctx context.Context, cacheKey, op string, fetch func() (*model.Member, error)) (*Result, error) {
	if cached, found := s.cache.Get(cacheKey); found {
		s.metrics.ObserveCache("member", true)
		return &Result{Member: cached.(*model.Member)}, nil
	}
	s.metrics.ObserveCache("member", false)

	start := time.Now()
	m, err := fetch()
	s.metrics.ObserveStore(op, start, ignoreNotFound(err))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("member", err)
		}
		return nil, apperrors.Upstream(err)
	}

	s.cache.Set(cacheKey, m, cache.DefaultExpiration)
	return &Result{Member: m}, nil
}

func (s *Service) providerName(ctx context.Context, providerID string) (*model.ProviderName, error) {
	cacheKey := "provider:" + providerID
	if cached, found := s.cache.Get(cacheKey); found {
		s.metrics.ObserveCache("member", true)
		return cached.(*model.ProviderName), nil
	}
	s.metrics.ObserveCache("member", false)

	name, err := s.providers.GetName(ctx, providerID)
	if err != nil {
		return nil, apperrors.Upstream(err)
	}

	s.cache.Set(cacheKey, name, cache.DefaultExpiration)
	return name, nil
}

// OwnedBy checks that memberID exists and belongs to providerID.
// A member of another provider is reported as not found.
func (s *Service) OwnedBy(ctx context.Context, memberID, providerID string) error {
	start := time.Now()
	ok, err := s.members.BelongsToProvider(ctx, memberID, providerID)
	s.metrics.ObserveStore("member_belongs_to_provider", start, err)
	if err != nil {
		return apperrors.Upstream(err)
	}
	if !ok {
		return apperrors.NotFound("member", nil)
	}
	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}
