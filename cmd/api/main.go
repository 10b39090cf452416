package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/physio-api/internal/config"
	"github.com/jwalitptl/physio-api/internal/handler/health"
	"github.com/jwalitptl/physio-api/internal/handler/treatmentplan"
	"github.com/jwalitptl/physio-api/internal/middleware"
	"github.com/jwalitptl/physio-api/internal/repository/postgres"
	"github.com/jwalitptl/physio-api/internal/router"
	"github.com/jwalitptl/physio-api/internal/service/audit"
	"github.com/jwalitptl/physio-api/internal/service/catalog"
	"github.com/jwalitptl/physio-api/internal/service/directory"
	"github.com/jwalitptl/physio-api/internal/service/event"
	"github.com/jwalitptl/physio-api/internal/service/identity"
	treatmentPlanService "github.com/jwalitptl/physio-api/internal/service/treatmentplan"
	"github.com/jwalitptl/physio-api/pkg/auth"
	"github.com/jwalitptl/physio-api/pkg/logger"
	"github.com/jwalitptl/physio-api/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Setup(&logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.Setup()

	ctx := context.Background()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	planRepo := postgres.NewTreatmentPlanRepository(baseRepo)
	planExerciseRepo := postgres.NewPlanExerciseRepository(baseRepo)
	exerciseRepo := postgres.NewExerciseRepository(baseRepo)
	profileRepo := postgres.NewProfileRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	auditRepo := postgres.NewAuditRepository(baseRepo)

	// Initialize services
	auditSvc := audit.NewService(auditRepo)
	eventSvc := event.NewEventService(outboxRepo, auditSvc)
	directorySvc := directory.NewService(profileRepo, cfg.Cache.ProfileTTL)
	catalogSvc := catalog.NewService(exerciseRepo, cfg.Cache.ExerciseTTL)
	planSvc := treatmentPlanService.NewService(
		baseRepo,
		planRepo,
		planExerciseRepo,
		directorySvc,
		catalogSvc,
		eventSvc,
	)

	// Initialize middleware
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc, identity.NewResolver(directorySvc))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize handlers
	healthHandler := health.NewHandler(map[string]health.Checker{
		"database": health.CheckerFunc(db.PingContext),
	}, registry)
	planHandler := treatmentplan.NewHandler(planSvc)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Security.AllowedOrigins
	}
	if len(cfg.Security.AllowedMethods) > 0 {
		corsConfig.AllowMethods = cfg.Security.AllowedMethods
	}
	if len(cfg.Security.AllowedHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.Security.AllowedHeaders
	}

	securityConfig := middleware.DefaultSecurityConfig()
	securityConfig.HSTS = !cfg.IsDevelopment()

	// Setup router
	r := router.NewRouter(
		authMiddleware,
		healthHandler,
		planHandler,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       corsConfig,
			Security:         securityConfig,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
			MetricsPrefix:    "physio_api",
			Registerer:       registry,
		},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
