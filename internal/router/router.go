package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/physio-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine         *gin.Engine
	auth           *middleware.AuthMiddleware
	healthH        Handler
	treatmentPlanH Handler
	metrics        *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	Security         middleware.SecurityConfig
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	MetricsPrefix    string
	// Registerer receives the HTTP collectors. Defaults to the global
	// registry.
	Registerer prometheus.Registerer
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH Handler,
	treatmentPlanH Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()

	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	r := &Router{
		engine:         engine,
		auth:           auth,
		healthH:        healthH,
		treatmentPlanH: treatmentPlanH,
		metrics:        initRouterMetrics(config.Registerer, config.MetricsPrefix),
	}

	// Add core middlewares
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: config.MaxBodyBytes}),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	// Health check endpoints
	r.healthH.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.treatmentPlanH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(reg prometheus.Registerer, prefix string) *routerMetrics {
	if prefix == "" {
		prefix = "physio_api"
	}
	factory := promauto.With(reg)
	return &routerMetrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// route template, so ids do not explode the label space
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		if c.Writer.Status() >= 400 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		}
	}
}
