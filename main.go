package main

import (
	"context"
	"os"
	"time"

	"github.com/ledgerlink/books-api/config"
	"github.com/ledgerlink/books-api/handlers"
	"github.com/ledgerlink/books-api/middleware"
	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/routes"
	"github.com/ledgerlink/books-api/services"
	"github.com/ledgerlink/books-api/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	log := config.Logger()

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	qbCfg, err := config.LoadQuickBooksConfig()
	if err != nil {
		log.WithError(err).Fatal("Invalid QuickBooks configuration")
	}

	key, err := config.EncryptionKey()
	if err != nil {
		log.WithError(err).Fatal("Invalid encryption key")
	}
	cipher, err := utils.NewCipher(key)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize credential cipher")
	}

	db, err := config.InitDB()
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	log.Info("Database connected successfully")

	if err := config.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	connections := services.NewConnectionService(db)
	tokens := services.NewTokenService(connections, cipher, qbCfg)
	quickbooks := services.NewQuickBooksService(tokens, qbCfg)
	store := services.NewReportStore(db)

	wsHandler := handlers.NewWSHandler()
	syncService := services.NewSyncService(tokens, quickbooks, store, wsHandler)

	connectHandler := handlers.NewConnectHandler(qbCfg, tokens, connections)
	syncHandler := handlers.NewSyncHandler(syncService, store)
	queryHandler := handlers.NewQueryHandler(quickbooks)
	internalHandler := &handlers.InternalHandler{
		Sync:        syncService,
		Connections: connections,
		CronSecret:  config.CronSecret(),
	}

	router := gin.New()
	router.Use(gin.Recovery())

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	corsConfig := cors.Config{
		AllowOrigins:     []string{frontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
	router.Use(cors.New(corsConfig))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Info("request completed")
	})

	router.Use(middleware.RateLimiter())

	v1 := router.Group("/api/v1")
	{
		routes.SetupCallbackRoute(v1, connectHandler)
		routes.SetupInternalRoutes(v1, internalHandler)
		routes.SetupWSRoutes(v1, wsHandler)

		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			routes.SetupConnectRoutes(protected, connectHandler)
			routes.SetupSyncRoutes(protected, syncHandler)
			routes.SetupQueryRoutes(protected, queryHandler)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	scheduler := startScheduler(syncService, connections)
	if scheduler != nil {
		defer scheduler.Stop()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.WithField("port", port).Info("Server starting")
	if err := router.Run(":" + port); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// startScheduler runs the nightly sync for all connected tenants when
// SYNC_SCHEDULE holds a cron expression. Returns nil when disabled.
func startScheduler(syncService *services.SyncService, connections *services.ConnectionService) *cron.Cron {
	log := config.Logger()

	schedule := os.Getenv("SYNC_SCHEDULE")
	if schedule == "" {
		log.Info("SYNC_SCHEDULE not set, scheduled sync disabled")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		syncAllTenants(syncService, connections)
	})
	if err != nil {
		log.WithError(err).Fatal("Invalid SYNC_SCHEDULE expression")
	}

	c.Start()
	log.WithField("schedule", schedule).Info("Scheduled sync enabled")
	return c
}

func syncAllTenants(syncService *services.SyncService, connections *services.ConnectionService) {
	log := config.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	tenantIDs, err := connections.ListConnectedTenantIDs(ctx)
	if err != nil {
		config.LogError("main", "syncAllTenants", "listing connected tenants", err)
		return
	}

	req := models.SyncRequest{Range: "3m"}
	failed := 0
	for _, tenantID := range tenantIDs {
		if _, err := syncService.SyncReports(ctx, tenantID, req); err != nil {
			failed++
			log.WithFields(map[string]interface{}{
				"tenant_id": utils.MaskID(tenantID),
				"error":     err.Error(),
			}).Warn("scheduled sync failed for tenant")
		}
	}

	log.WithFields(map[string]interface{}{
		"tenants": len(tenantIDs),
		"failed":  failed,
	}).Info("scheduled sync completed")
}
