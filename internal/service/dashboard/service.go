package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jwalitptl/provider-api/internal/config"
	"github.com/jwalitptl/provider-api/internal/model"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
)

// MemberOwnership reports whether a member belongs to a provider.
type MemberOwnership interface {
	OwnedBy(ctx context.Context, memberID, providerID string) error
}

type Service struct {
	members     MemberOwnership
	baseURL     string
	panelUIDs   map[string]string
	defaultFrom string
	defaultTo   string
}

func NewService(members MemberOwnership, cfg config.DashboardConfig) *Service {
	uids := make(map[string]string, len(cfg.PanelUIDs))
	for panel, uid := range cfg.PanelUIDs {
		uids[strings.ToLower(panel)] = uid
	}
	return &Service{
		members:     members,
		baseURL:     strings.TrimRight(cfg.PanelBaseURL, "/"),
		panelUIDs:   uids,
		defaultFrom: cfg.DefaultFrom,
		defaultTo:   cfg.DefaultTo,
	}
}

// Generate returns one embeddable iframe per panel for the member.
func (s *Service) Generate(ctx context.Context, providerID string, req model.DashboardRequest) (model.DashboardLinks, error) {
	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		return nil, apperrors.BadRequest("member_id is required", nil)
	}

	vitals, err := normalizeVitals(req.Vitals)
	if err != nil {
		return nil, err
	}

	if err := s.members.OwnedBy(ctx, memberID, providerID); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("var-m_id", memberID)
	query.Set("from", orDefault(req.StartTime, s.defaultFrom))
	query.Set("to", orDefault(req.EndTime, s.defaultTo))
	for _, vital := range vitals {
		query.Add("var-vitals", vital)
	}
	encoded := query.Encode() + "&kiosk"

	links := make(model.DashboardLinks, len(model.Panels))
	for _, panel := range model.Panels {
		links[panel] = fmt.Sprintf("<iframe src='%s' />", s.panelURL(panel, encoded))
	}
	return links, nil
}

func (s *Service) panelURL(panel, query string) string {
	uid, ok := s.panelUIDs[strings.ToLower(panel)]
	if !ok {
		uid = strings.ToLower(panel)
	}
	return fmt.Sprintf("%s/d/%s/%s?%s", s.baseURL, url.PathEscape(uid), url.PathEscape(panel), query)
}

func normalizeVitals(vitals []string) ([]string, error) {
	seen := make(map[string]struct{}, len(vitals))
	out := make([]string, 0, len(vitals))
	for _, v := range vitals {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, apperrors.BadRequest("vitals must not contain empty names", nil)
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

func orDefault(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	if v := strings.TrimSpace(*value); v != "" {
		return v
	}
	return fallback
}
