package main

import (
	"context"
	"net/http"
	"time"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanlanch/leadledger/config"
	"github.com/jordanlanch/leadledger/pkg/api/handlers"
	"github.com/jordanlanch/leadledger/pkg/cache"
	"github.com/jordanlanch/leadledger/pkg/database"
	"github.com/jordanlanch/leadledger/pkg/leadassignment"
	"github.com/jordanlanch/leadledger/pkg/logger"
	"github.com/jordanlanch/leadledger/pkg/metrics"
	custommiddleware "github.com/jordanlanch/leadledger/pkg/middleware"
	"github.com/jordanlanch/leadledger/pkg/workload"
)

// app bundles the process-wide dependencies the HTTP server is built from.
type app struct {
	cfg      *config.Config
	db       *database.Client
	cache    *cache.Client // nil when REDIS_URL is empty
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	log      logger.Logger
	sentry   bool
}

func newServer(ctx context.Context, a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	aggOpts := []workload.Option{
		workload.WithMetrics(a.metrics),
		workload.WithLogger(a.log.With("component", "workload")),
	}
	if a.cache != nil {
		aggOpts = append(aggOpts, workload.WithCache(a.cache, a.cfg.WorkloadCacheTTL))
	}
	agg := workload.NewAggregator(a.db, aggOpts...)

	svc := leadassignment.NewService(a.db,
		leadassignment.WithMetrics(a.metrics),
		leadassignment.WithLogger(a.log.With("component", "leadassignment")),
		leadassignment.WithInvalidator(agg),
		leadassignment.WithBulkAssignMax(a.cfg.BulkAssignMax),
	)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			a.log.Info("HTTP request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if a.sentry {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}
	e.Use(a.metrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(a.cfg.CORSAllowedOrigins)))
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.SecurityHeadersConfig{}))

	e.GET("/health", healthHandler(a))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	limiter := custommiddleware.NewRateLimiter(ctx, a.cfg.RateLimitRequestsPerMinute, a.cfg.RateLimitBurst)
	group := e.Group("/api/v1/lead-assignment",
		custommiddleware.JWTMiddleware(a.cfg.JWTSecret),
		limiter.RateLimitMiddleware(),
	)
	handlers.NewLeadAssignmentHandler(svc, agg).Register(group)

	return e
}

func healthHandler(a *app) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := a.db.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":   "unhealthy",
				"database": "down",
			})
		}

		cacheStatus := "disabled"
		if a.cache != nil {
			if err := a.cache.Ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]any{
					"status":   "unhealthy",
					"database": "up",
					"cache":    "down",
				})
			}
			cacheStatus = "up"
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":   "healthy",
			"database": "up",
			"cache":    cacheStatus,
		})
	}
}

// reportDBStats keeps the open connections gauge current until ctx ends.
func reportDBStats(ctx context.Context, db *database.Client, m *metrics.Metrics, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		m.UpdateDBConnections(db.Stats().OpenConnections)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
