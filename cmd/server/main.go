package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/config"
	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/eventsink"
	"github.com/tourops/dispatch-core/internal/handlers"
	"github.com/tourops/dispatch-core/internal/middleware"
	"github.com/tourops/dispatch-core/internal/repository"
	"github.com/tourops/dispatch-core/internal/services"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Tour Command Center dispatch core")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	logger.Info("Initializing repositories...")
	bookingRepo := repository.NewBookingRepository(db)
	tourRepo := repository.NewTourRepository(db)
	guideRepo := repository.NewGuideRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	pickupRepo := repository.NewPickupRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	qualificationRepo := repository.NewQualificationRepository(db)
	travelTimeRepo := repository.NewTravelTimeRepository(db)
	dispatchRepo := repository.NewDispatchRepository(db)
	warningRepo := repository.NewWarningRepository(db)

	logger.Info("Initializing services...")
	sink := eventsink.NewLogrusSink(logger)

	availabilitySvc := services.NewAvailabilityService(availabilityRepo, logger)
	travelTimeSvc := services.NewTravelTimeService(travelTimeRepo, logger)
	tourRunSvc := services.NewTourRunService(bookingRepo, tourRepo, assignmentRepo, logger)
	warningReconcilerSvc := services.NewWarningReconcilerService(warningRepo, assignmentRepo, logger)
	dispatchStoreSvc := services.NewDispatchStoreService(dispatchRepo, warningRepo, tourRunSvc, warningReconcilerSvc, logger)
	pickupSyncSvc := services.NewPickupSyncService(assignmentRepo, pickupRepo, cfg.Dispatch, logger)
	timelineSvc := services.NewTimelineService(tourRunSvc, guideRepo, assignmentRepo, pickupRepo, availabilitySvc, logger)
	optimizerSvc := services.NewOptimizerService(guideRepo, qualificationRepo, travelTimeSvc, availabilitySvc, cfg.Dispatch, logger)
	batchSvc := services.NewBatchMutationService(bookingRepo, assignmentRepo, tourRepo, guideRepo, dispatchStoreSvc, pickupSyncSvc, logger)
	warningResolverSvc := services.NewWarningResolverService(warningRepo, bookingRepo, assignmentRepo, tourRunSvc, dispatchStoreSvc, pickupSyncSvc, sink, logger)

	dispatchSvc := services.NewDispatchService(
		dispatchStoreSvc,
		tourRunSvc,
		availabilitySvc,
		timelineSvc,
		optimizerSvc,
		batchSvc,
		pickupSyncSvc,
		warningResolverSvc,
		guideRepo,
		assignmentRepo,
		bookingRepo,
		warningRepo,
		sink,
		logger,
	)
	logger.Info("Services initialized")

	reconciler := services.NewReconcilerScheduler(dispatchRepo, dispatchStoreSvc, logger)
	if err := reconciler.Start(); err != nil {
		logger.Fatalf("Failed to start reconciler sweep: %v", err)
	}
	defer reconciler.Stop()

	dispatchHandler := handlers.NewDispatchHandler(dispatchSvc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Organization-Id", "X-Actor-Id", "X-Actor-Name"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db))

	handlers.RegisterRoutes(router, dispatchHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger logs every request the way the teacher's middleware does,
// generalized from a single-user JWT claim to a tenant/actor envelope.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
		}
		if tc, ok := middleware.GetTenantContext(c); ok {
			fields["organization_id"] = tc.OrganizationID
			fields["actor_id"] = tc.ActorID
		}

		entry := logger.WithFields(fields)
		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("request failed with errors")
			return
		}
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("request completed with server error")
		case status >= 400:
			entry.Warn("request completed with client error")
		default:
			entry.Info("request completed")
		}
	}
}

func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
