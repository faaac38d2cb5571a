package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/provider-api/internal/config"
	authHandler "github.com/jwalitptl/provider-api/internal/handler/auth"
	dashboardHandler "github.com/jwalitptl/provider-api/internal/handler/dashboard"
	"github.com/jwalitptl/provider-api/internal/handler/health"
	memberHandler "github.com/jwalitptl/provider-api/internal/handler/member"
	messageHandler "github.com/jwalitptl/provider-api/internal/handler/message"
	providerHandler "github.com/jwalitptl/provider-api/internal/handler/provider"
	"github.com/jwalitptl/provider-api/internal/middleware"
	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/repository"
	"github.com/jwalitptl/provider-api/internal/service/auth"
	"github.com/jwalitptl/provider-api/internal/service/dashboard"
	"github.com/jwalitptl/provider-api/internal/service/member"
	"github.com/jwalitptl/provider-api/internal/service/message"
	"github.com/jwalitptl/provider-api/internal/service/provider"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
	"github.com/jwalitptl/provider-api/pkg/metrics"
)

// staticKeys accepts a fixed set of "<key_id>.<secret>" values.
type staticKeys map[string]string

func (k staticKeys) Validate(_ context.Context, cred model.Credential) (*model.Identity, error) {
	providerID, ok := k[cred.Value]
	if !ok {
		return nil, apperrors.Unauthorized(auth.ErrInvalidCredentials)
	}
	return &model.Identity{ProviderID: providerID, Subject: "k1", Scheme: model.SchemeAPIKey}, nil
}

// store is an in-memory stand-in for every repository.
type store struct {
	mu        sync.Mutex
	members   map[string]*model.Member
	providers map[string]string
	messages  []model.Message
	config    map[string]model.ProviderConfigUpdate
	events    []*model.OutboxEvent
	failing   bool
}

func (s *store) fail() error {
	if s.failing {
		return errors.New("dial tcp 10.0.0.5:5432: connection refused")
	}
	return nil
}

func (s *store) memberWhere(match func(*model.Member) bool) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	for _, m := range s.members {
		if match(m) {
			return m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *store) GetByID(_ context.Context, providerID, id string) (*model.Member, error) {
	return s.memberWhere(func(m *model.Member) bool { return m.ProviderID == providerID && m.MemberID == id })
}

func (s *store) GetByEmail(_ context.Context, providerID, email string) (*model.Member, error) {
	return s.memberWhere(func(m *model.Member) bool { return m.ProviderID == providerID && m.Email == email })
}

func (s *store) GetByPhone(_ context.Context, providerID, phone string) (*model.Member, error) {
	return s.memberWhere(func(m *model.Member) bool { return m.ProviderID == providerID && m.PhoneNumber == phone })
}

func (s *store) BelongsToProvider(_ context.Context, memberID, providerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return false, err
	}
	m, ok := s.members[memberID]
	return ok && m.ProviderID == providerID, nil
}

func (s *store) GetName(_ context.Context, providerID string) (*model.ProviderName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	name, ok := s.providers[providerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.ProviderName{ProviderID: providerID, ProviderName: name}, nil
}

func (s *store) UpsertConfig(_ context.Context, providerID string, update model.ProviderConfigUpdate, event *model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if s.config[providerID] == nil {
		s.config[providerID] = model.ProviderConfigUpdate{}
	}
	for k, v := range update {
		s.config[providerID][k] = v
	}
	if event != nil {
		s.events = append(s.events, event)
	}
	return nil
}

func (s *store) GetConfig(_ context.Context, providerID string) ([]*model.ProviderConfigEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var entries []*model.ProviderConfigEntry
	for item, v := range s.config[providerID] {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &model.ProviderConfigEntry{ProviderID: providerID, Item: item, Value: raw})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Item < entries[j].Item })
	return entries, nil
}

func (s *store) inScope(m model.Message, providerID string, f model.MessageFilter) bool {
	return m.ProviderID == providerID &&
		(f.MemberID == "" || m.MemberID == f.MemberID) &&
		(f.ThreadID == "" || m.ThreadID == f.ThreadID)
}

func (s *store) List(_ context.Context, providerID string, f model.MessageFilter) ([]*model.MessageHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	out := []*model.MessageHistory{}
	for _, m := range s.messages {
		if s.inScope(m, providerID, f) {
			h := m.MessageHistory
			out = append(out, &h)
		}
	}
	// Deliberately unordered; the service owns ordering.
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID > out[j].MessageID })
	return out, nil
}

func (s *store) Delete(
	_ context.Context,
	providerID string,
	f model.MessageFilter,
	event func(int64) (*model.OutboxEvent, error),
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return 0, err
	}
	var kept []model.Message
	var deleted int64
	for _, m := range s.messages {
		if s.inScope(m, providerID, f) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	if event != nil {
		evt, err := event(deleted)
		if err != nil {
			return 0, err
		}
		if evt != nil {
			s.events = append(s.events, evt)
		}
	}
	s.messages = kept
	return deleted, nil
}

func (s *store) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.EventType
	}
	return types
}

func newStore() *store {
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	message := func(id, provider, memberID, thread string, offset time.Duration) model.Message {
		return model.Message{
			MessageHistory: model.MessageHistory{MessageID: id, Timestamp: t0.Add(offset), MessageText: "text " + id, AIGenerated: "false"},
			ProviderID:     provider,
			MemberID:       memberID,
			ThreadID:       thread,
		}
	}
	return &store{
		members: map[string]*model.Member{
			"m123": {MemberID: "m123", ProviderID: "p1", Email: "ann@example.com", PhoneNumber: "+15550100", FirstName: "Ann"},
			"m456": {MemberID: "m456", ProviderID: "p1", Email: "bo@example.com"},
			"m999": {MemberID: "m999", ProviderID: "p2"},
		},
		providers: map[string]string{"p1": "Acme Health", "p2": "Other Clinic"},
		messages: []model.Message{
			message("msg-3", "p1", "m123", "t1", 3*time.Minute),
			message("msg-1", "p1", "m123", "t1", time.Minute),
			message("msg-2", "p1", "m123", "t2", 2*time.Minute),
			message("msg-4", "p1", "m456", "t1", time.Minute),
			message("msg-x", "p2", "m999", "t1", 0),
		},
		config: map[string]model.ProviderConfigUpdate{},
	}
}

type testAPI struct {
	engine *gin.Engine
	store  *store
	tokens *auth.JWTValidator
}

func newTestAPI(t *testing.T, opts ...func(*RouterConfig)) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := newStore()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics("provider_api_test", registry)
	tokens := auth.NewJWTValidator("test-secret", "provider-api", time.Hour)
	validator := auth.NewChain(map[model.CredentialScheme]auth.Validator{
		model.SchemeBearer: tokens,
		model.SchemeAPIKey: staticKeys{"k1.s3cret": "p1"},
	})

	providerSvc := provider.NewService(st, m, nil)
	memberSvc := member.NewService(st, providerSvc, member.Options{Metrics: m})
	dashboardSvc := dashboard.NewService(memberSvc, config.DashboardConfig{
		PanelBaseURL: "https://panels.alyf.health",
		PanelUIDs:    map[string]string{"heart": "heart_pg", "body": "body_pg", "mind": "mind_pg"},
		DefaultFrom:  "now-7d",
		DefaultTo:    "now",
	})
	messageSvc := message.NewService(st, memberSvc, m, nil)

	routerConfig := RouterConfig{
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 16,
		CORSConfig:     middleware.DefaultCORSConfig(),
		Metrics:        m,
		Gatherer:       registry,
	}
	for _, opt := range opts {
		opt(&routerConfig)
	}

	r := NewRouter(
		middleware.NewAuthMiddleware(validator),
		health.NewHandler(map[string]health.Pinger{
			"database": health.PingFunc(func(context.Context) error { return st.fail() }),
		}),
		[]Handler{
			memberHandler.NewHandler(memberSvc),
			dashboardHandler.NewHandler(dashboardSvc),
			messageHandler.NewHandler(messageSvc),
			providerHandler.NewHandler(providerSvc),
			authHandler.NewHandler(tokens),
		},
		routerConfig,
	)
	r.Setup()

	return &testAPI{engine: r.Engine(), store: st, tokens: tokens}
}

func (a *testAPI) token(t *testing.T, providerID string) string {
	t.Helper()
	tok, err := a.tokens.Issue(providerID)
	require.NoError(t, err)
	return tok.AccessToken
}

func (a *testAPI) makeRequest(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestEveryRouteRequiresCredentials(t *testing.T) {
	api := newTestAPI(t)

	routes := []struct{ method, path string }{
		{http.MethodPost, "/v1/apc/provider/config_update"},
		{http.MethodPost, "/member_dashboards"},
		{http.MethodDelete, "/v1/apc/ask_alyf/clear_message_history"},
		{http.MethodGet, "/v1/member/get?id=m123"},
		{http.MethodGet, "/ask_alyf/get_message_history"},
		{http.MethodGet, "/v1/apc/provider/config"},
		{http.MethodPost, "/v1/auth/token"},
	}
	for _, r := range routes {
		w := api.makeRequest(t, r.method, r.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, r.path)

		w = api.makeRequest(t, r.method, r.path, nil, "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code, r.path)
	}
}

func TestMemberGet(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "p1")

	w := api.makeRequest(t, http.MethodGet, "/v1/member/get", nil, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.makeRequest(t, http.MethodGet, "/v1/member/get?id=m123&email=ann@example.com", nil, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.makeRequest(t, http.MethodGet, "/v1/member/get?email=not-an-email", nil, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.makeRequest(t, http.MethodGet, "/v1/member/get?email=ann@example.com", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[map[string]interface{}](t, w)
	assert.Equal(t, "m123", m["member_id"])
	assert.Equal(t, "Ann", m["first_name"])
	assert.Contains(t, m, "databroker_info")

	w = api.makeRequest(t, http.MethodGet, "/v1/member/get?provider_id=p1", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"provider_id":"p1","provider_name":"Acme Health"}`, w.Body.String())

	w = api.makeRequest(t, http.MethodGet, "/v1/member/get?phone_number=%2B19999999999", nil, tok)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemberGetIsScopedToCaller(t *testing.T) {
	api := newTestAPI(t)

	w := api.makeRequest(t, http.MethodGet, "/v1/member/get?id=m999", nil, api.token(t, "p1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "p2")

	w = api.makeRequest(t, http.MethodPost, "/member_dashboards", gin.H{"member_id": "m999"}, api.token(t, "p1"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.makeRequest(t, http.MethodGet, "/v1/member/get?id=m999", nil, api.token(t, "p2"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "m999", decode[map[string]interface{}](t, w)["member_id"])
}

func TestMemberDashboards(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "p1")

	w := api.makeRequest(t, http.MethodPost, "/member_dashboards", gin.H{"member_id": "m123", "vitals": []string{"heart_rate"}}, tok)
	require.Equal(t, http.StatusOK, w.Code)

	links := decode[map[string]string](t, w)
	keys := make([]string, 0, len(links))
	for k, v := range links {
		keys = append(keys, k)
		assert.NotEmpty(t, v)
		assert.Contains(t, v, "m123")
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"Body", "Heart", "Mind"}, keys)

	w = api.makeRequest(t, http.MethodPost, "/member_dashboards", gin.H{"vitals": []string{"steps"}}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.makeRequest(t, http.MethodPost, "/member_dashboards", gin.H{"member_id": "m999"}, tok)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfigUpdateIsAtomic(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "p1")

	w := api.makeRequest(t, http.MethodPost, "/v1/apc/provider/config_update",
		gin.H{"ask_alyf_enabled": true, "not_a_setting": 1}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[middleware.ErrorResponse](t, w).Message, "not_a_setting")
	assert.Empty(t, api.store.config["p1"])
	assert.Empty(t, api.store.eventTypes())

	w = api.makeRequest(t, http.MethodPost, "/v1/apc/provider/config_update", gin.H{}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.makeRequest(t, http.MethodPost, "/v1/apc/provider/config_update",
		gin.H{"ask_alyf_enabled": true, "fallback_time_zone": "America/Denver"}, tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "America/Denver", api.store.config["p1"][model.ConfigFallbackTimeZone])
	assert.Equal(t, []string{provider.EventConfigUpdated}, api.store.eventTypes())

	w = api.makeRequest(t, http.MethodGet, "/v1/apc/provider/config", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ask_alyf_enabled":true,"fallback_time_zone":"America/Denver"}`, w.Body.String())

	w = api.makeRequest(t, http.MethodGet, "/v1/apc/provider/config", nil, api.token(t, "p2"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestMessageHistoryOrderingAndClear(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "p1")

	w := api.makeRequest(t, http.MethodGet, "/ask_alyf/get_message_history", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]model.MessageHistory](t, w)
	require.Len(t, history, 4)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
	}

	w = api.makeRequest(t, http.MethodDelete, "/v1/apc/ask_alyf/clear_message_history?member_id=m123&thread_id=t1", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","data":{"deleted":2}}`, w.Body.String())

	for i := 0; i < 2; i++ {
		w = api.makeRequest(t, http.MethodGet, "/ask_alyf/get_message_history?member_id=m123&thread_id=t1", nil, tok)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())

		w = api.makeRequest(t, http.MethodDelete, "/v1/apc/ask_alyf/clear_message_history?member_id=m123&thread_id=t1", nil, tok)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"success","data":{"deleted":0}}`, w.Body.String())
	}

	w = api.makeRequest(t, http.MethodGet, "/ask_alyf/get_message_history?member_id=m123", nil, tok)
	assert.Len(t, decode[[]model.MessageHistory](t, w), 1)

	w = api.makeRequest(t, http.MethodDelete, "/v1/apc/ask_alyf/clear_message_history", nil, tok)
	assert.JSONEq(t, `{"status":"success","data":{"deleted":2}}`, w.Body.String())

	// Another provider's history is untouched.
	w = api.makeRequest(t, http.MethodGet, "/ask_alyf/get_message_history", nil, api.token(t, "p2"))
	assert.Len(t, decode[[]model.MessageHistory](t, w), 1)

	// Only the clears that removed messages recorded an event.
	assert.Equal(t, []string{message.EventHistoryCleared, message.EventHistoryCleared}, api.store.eventTypes())
}

func TestUpstreamFailureIsOpaque503(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, "p1")
	api.store.failing = true

	w := api.makeRequest(t, http.MethodGet, "/ask_alyf/get_message_history", nil, tok)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	w = api.makeRequest(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	api := newTestAPI(t)

	w := api.makeRequest(t, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.makeRequest(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	api.makeRequest(t, http.MethodGet, "/v1/member/get?id=m123", nil, api.token(t, "p1"))
	w = api.makeRequest(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "provider_api_test_requests_total")
}

func TestTokenExchange(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", nil)
	req.Header.Set("X-API-Key", "k1.s3cret")
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tok := decode[model.TokenResponse](t, w)
	require.NotEmpty(t, tok.AccessToken)

	w = api.makeRequest(t, http.MethodGet, "/v1/member/get?id=m123", nil, tok.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.makeRequest(t, http.MethodPost, "/v1/auth/token", nil, tok.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.makeRequest(t, http.MethodPost, "/v1/auth/token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFailedCredentialsAreRateLimitedPerIP(t *testing.T) {
	api := newTestAPI(t, func(c *RouterConfig) {
		c.RateLimitEnabled = true
		c.RateLimit = rate.Every(time.Hour)
		c.RateBurst = 1
		c.IPRateLimit = rate.Every(time.Hour)
		c.IPBurst = 2
	})

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/member/get?id=m123", nil)
		req.RemoteAddr = addr
		req.Header.Set("X-API-Key", "abc.wrong")
		w := httptest.NewRecorder()
		api.engine.ServeHTTP(w, req)
		return w.Code
	}

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		codes[do("203.0.113.7:4000")]++
	}
	assert.Equal(t, map[int]int{http.StatusUnauthorized: 2, http.StatusTooManyRequests: 3}, codes)

	assert.Equal(t, http.StatusUnauthorized, do("198.51.100.9:4000"))
}
