package main

import (
	"context"

	"github.com/DSTX70/gigster-switchboard/internal/handlers"
	"github.com/DSTX70/gigster-switchboard/pkg/auth"
	"github.com/DSTX70/gigster-switchboard/pkg/config"
	"github.com/DSTX70/gigster-switchboard/pkg/database"
	"github.com/DSTX70/gigster-switchboard/pkg/logging"
	"github.com/DSTX70/gigster-switchboard/pkg/monitoring"
	"github.com/DSTX70/gigster-switchboard/pkg/server"
	"github.com/DSTX70/gigster-switchboard/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("switchboard")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Switchboard (Integrations API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("DB_AUTO_MIGRATE", true) {
		if err := database.ApplySchema(context.Background(), db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("switchboard", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("switchboard", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":  dbURL,
		"SERVICE_TOKEN": serviceToken,
	}))

	// Create custom integration metrics
	metrics := &handlers.SwitchboardMetrics{
		WebhookEvents:       metricsCollector.NewCounter("webhook_events_total", "Integration webhook events processed", []string{"source", "type", "status"}),
		QueueOperations:     metricsCollector.NewCounter("queue_operations_total", "Social queue write operations", []string{"operation", "status"}),
		MediaProbes:         metricsCollector.NewCounter("media_probes_total", "Media HEAD probe outcomes", []string{"result"}),
		AlertsFired:         metricsCollector.NewCounter("queue_alerts_total", "Queue alert threshold breaches", []string{"signal"}),
		QueueErrorRate:      metricsCollector.NewGauge("queue_error_rate_pct", "Hourly social queue error rate", nil),
		QueueMaxAgeMinutes:  metricsCollector.NewGauge("queue_max_age_minutes", "Age of the oldest queued entry", nil),
		RateLimitSaturation: metricsCollector.NewGauge("rate_limit_saturation_pct", "Per-platform rate window saturation", []string{"platform"}),
	}

	// Create database metrics
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Initialize handlers
	handlers.Init(db, logger, metrics, handlers.ConfigFromEnv())

	// Initialize and start JobManager for alert sweep and window rollover
	jobManager := handlers.NewJobManager(db, logger, handlers.ConfigFromEnv())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobManager.Start(ctx)
	defer jobManager.Stop()

	logger.Info("JobManager started - alert sweep and window rollover active")

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "switchboard", healthChecker, metricsCollector)

	// API routes (root level - nginx adds /api/integrations/ prefix)
	{
		// Webhook endpoints (signature-verified, no session auth)
		router.POST("/integrations/:partner/webhook", handlers.HandleIntegrationWebhook)
		router.GET("/integrations/status", handlers.GetIntegrationsStatus)

		// Operator endpoints (service-to-service)
		ops := router.Group("/ops")
		ops.Use(auth.ServiceAuthMiddleware(serviceToken))
		{
			ops.GET("/social-queue", handlers.ListSocialQueue)
			ops.POST("/social-queue/:id/pause", handlers.PauseQueueEntry)
			ops.POST("/social-queue/:id/resume", handlers.ResumeQueueEntry)
			ops.POST("/social-queue/:id/retry", handlers.RetryQueueEntry)
			ops.POST("/social-queue/:id/cancel", handlers.CancelQueueEntry)

			ops.GET("/rate-limits", handlers.GetRateLimits)
			ops.POST("/rate-limits", handlers.UpsertRateLimit)
			ops.POST("/rate-limits/:platform/reset", handlers.ResetRateLimit)
			ops.GET("/rate-limits/:platform/usage", handlers.GetRateLimitUsage)

			ops.GET("/audit", handlers.GetAuditLog)
		}

		// Monitoring endpoints (service-to-service)
		mon := router.Group("/monitoring")
		mon.Use(auth.ServiceAuthMiddleware(serviceToken))
		{
			mon.GET("/metrics/slo", handlers.GetSLOMetrics)
			mon.GET("/social-queue/stats", handlers.GetQueueStats)
			mon.GET("/queue-health", handlers.GetQueueHealth)
		}
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("switchboard", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
