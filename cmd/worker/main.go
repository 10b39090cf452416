package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/physio-api/internal/config"
	"github.com/jwalitptl/physio-api/internal/handler/health"
	"github.com/jwalitptl/physio-api/internal/middleware"
	"github.com/jwalitptl/physio-api/internal/repository/postgres"
	auditworker "github.com/jwalitptl/physio-api/internal/worker"
	"github.com/jwalitptl/physio-api/pkg/logger"
	"github.com/jwalitptl/physio-api/pkg/messaging/redis"
	"github.com/jwalitptl/physio-api/pkg/metrics"
	"github.com/jwalitptl/physio-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Setup(&logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}).
		WithFields(map[string]interface{}{"worker_id": workerID()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(registry, "physio", "outbox")

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log.Zerolog(), m)
	if err != nil {
		log.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	auditRepo := postgres.NewAuditRepository(baseRepo)

	processor := worker.NewOutboxProcessor(
		baseRepo,
		outboxRepo,
		broker,
		cfg.Outbox.ToWorkerConfig(),
		log,
		m,
	)
	auditCleanup := auditworker.NewAuditCleanupWorker(auditRepo, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval)

	healthSrv := newHealthServer(cfg.Worker.HealthPort, map[string]health.Checker{
		"database": health.CheckerFunc(db.PingContext),
		"redis":    broker,
	}, registry)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		auditCleanup.Start(ctx)
	}()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Health check server forced to shutdown")
	}
	log.Info("Worker exited")
}

func newHealthServer(port int, checks map[string]health.Checker, registry *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())
	health.NewHandler(checks, registry).RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
}
