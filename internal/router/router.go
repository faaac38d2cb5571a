package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/provider-api/internal/handler"
	"github.com/jwalitptl/provider-api/internal/middleware"
	"github.com/jwalitptl/provider-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   Handler
	api      []Handler
	gatherer prometheus.Gatherer
	config   RouterConfig
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int

	// IPRateLimit and IPBurst bound every client address before credentials
	// are checked. Zero values reuse RateLimit and RateBurst.
	IPRateLimit rate.Limit
	IPBurst     int

	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSConfig     middleware.CORSConfig
	Compress       bool
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer

	// AuditLogger receives one access entry per protected request. Nil disables it.
	AuditLogger *zerolog.Logger
}

// NewRouter wires the middleware chain. health is mounted publicly, every
// handler in api sits behind auth.
func NewRouter(auth *middleware.AuthMiddleware, health Handler, api []Handler, config RouterConfig) *Router {
	gin.SetMode(gin.ReleaseMode)
	middleware.RegisterValidation()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   health,
		api:      api,
		gatherer: config.Gatherer,
		config:   config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(config.Metrics),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: config.MaxBodyBytes}),
	)
	if config.Compress {
		engine.Use(middleware.Compress(middleware.DefaultCompressConfig()))
	}

	return r
}

func (r *Router) Setup() {
	root := r.engine.Group("")

	if r.health != nil {
		r.health.RegisterRoutes(root)
	}
	if r.gatherer != nil {
		root.GET("/metrics", handler.MetricsHandler(r.gatherer))
	}

	protected := r.engine.Group("")
	if r.config.AuditLogger != nil {
		protected.Use(middleware.AccessAudit(*r.config.AuditLogger))
	}
	if r.config.RateLimitEnabled {
		protected.Use(r.ipLimiter().RateLimit())
	}
	protected.Use(r.auth.Authenticate())
	if r.config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
			Key:   middleware.ByProvider,
		})
		protected.Use(limiter.RateLimit())
	}

	for _, h := range r.api {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) ipLimiter() *middleware.RateLimiter {
	config := middleware.RateLimiterConfig{
		Rate:  r.config.IPRateLimit,
		Burst: r.config.IPBurst,
		Key:   middleware.ByClientIP,
	}
	if config.Rate == 0 {
		config.Rate = r.config.RateLimit
	}
	if config.Burst == 0 {
		config.Burst = r.config.RateBurst
	}
	return middleware.NewRateLimiter(config)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
