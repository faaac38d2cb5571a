package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/provider-api/internal/model"
	"github.com/jwalitptl/provider-api/internal/service/auth"
	apperrors "github.com/jwalitptl/provider-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	seen []model.Credential
}

func (s *stubValidator) Validate(_ context.Context, cred model.Credential) (*model.Identity, error) {
	s.seen = append(s.seen, cred)
	switch cred.Value {
	case "good-token", "k1.secret":
		return &model.Identity{ProviderID: "p1", Scheme: cred.Scheme}, nil
	case "store-down":
		return nil, apperrors.Unavailable(errors.New("connection refused"))
	default:
		return nil, apperrors.Unauthorized(auth.ErrInvalidCredentials)
	}
}

func newEngine(v auth.Validator) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID(), ErrorHandler())
	engine.GET("/whoami", NewAuthMiddleware(v).Authenticate(), func(c *gin.Context) {
		c.String(http.StatusOK, ProviderID(c))
	})
	return engine
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthenticateBearerAndAPIKey(t *testing.T) {
	v := &stubValidator{}
	engine := newEngine(v)

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set(HeaderAuthorization, "Bearer good-token") },
		func(r *http.Request) { r.Header.Set(HeaderAuthorization, "bearer good-token") },
		func(r *http.Request) { r.Header.Set(HeaderAPIKey, "k1.secret") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		set(req)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "p1", w.Body.String())
	}

	require.Len(t, v.seen, 3)
	assert.Equal(t, model.SchemeBearer, v.seen[0].Scheme)
	assert.Equal(t, model.SchemeAPIKey, v.seen[2].Scheme)
}

func TestAuthenticateRejects(t *testing.T) {
	engine := newEngine(&stubValidator{})

	cases := map[string]string{
		"missing":    "",
		"basic auth": "Basic dXNlcjpwYXNz",
		"bad token":  "Bearer nope",
		"no token":   "Bearer ",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set(HeaderAuthorization, header)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		body := decodeError(t, w)
		assert.Equal(t, "unauthorized", body.Message, name)
		assert.NotEmpty(t, body.TraceID, name)
	}
}

func TestAuthenticateStoreFailureIs503(t *testing.T) {
	engine := newEngine(&stubValidator{})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderAPIKey, "store-down")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestErrorHandlerClassification(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), ErrorHandler())
	engine.GET("/err/:kind", func(c *gin.Context) {
		switch c.Param("kind") {
		case "notfound":
			c.Error(apperrors.NotFound("member", nil))
		case "timeout":
			c.Error(context.DeadlineExceeded)
		case "raw":
			c.Error(errors.New("pq: relation members does not exist"))
		}
	})

	tests := []struct {
		kind    string
		status  int
		message string
	}{
		{"notfound", http.StatusNotFound, "member not found"},
		{"timeout", http.StatusServiceUnavailable, "upstream service unavailable, retry later"},
		{"raw", http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/err/"+tt.kind, nil)
		req.Header.Set(HeaderXRequestID, "req-"+tt.kind)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, tt.status, w.Code, tt.kind)
		body := decodeError(t, w)
		assert.Equal(t, tt.message, body.Message)
		assert.Equal(t, tt.status, body.Code)
		assert.Equal(t, "req-"+tt.kind, body.TraceID)
	}
}

func TestValidationErrorsAreBadRequest(t *testing.T) {
	RegisterValidation()
	engine := gin.New()
	engine.Use(ErrorHandler())
	engine.POST("/dash", func(c *gin.Context) {
		var req model.DashboardRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/dash", strings.NewReader(`{"vitals":["steps"]}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "member_id is required")
}

func TestRecoveryReturns500(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Recovery())
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decodeError(t, w).Message)
}

func TestRateLimitPerCaller(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 1})
	engine := gin.New()
	engine.GET("/r", func(c *gin.Context) {
		c.Set(ContextProviderID, c.Query("p"))
		c.Next()
	}, limiter.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(provider string) int {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/r?p="+provider, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("p1"))
	assert.Equal(t, http.StatusTooManyRequests, do("p1"))
	assert.Equal(t, http.StatusOK, do("p2"))
}

func TestSizeLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 8}))
	engine.POST("/b", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/b", strings.NewReader(`{"member_id":"m1"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/b", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS(DefaultCORSConfig()))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderAPIKey)
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}
