package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/roamly/roamly-backend/internal/api/handlers"
	"github.com/roamly/roamly-backend/internal/api/middleware"
	"github.com/roamly/roamly-backend/internal/cache"
	"github.com/roamly/roamly-backend/internal/config"
	"github.com/roamly/roamly-backend/internal/cron"
	"github.com/roamly/roamly-backend/internal/db"
	"github.com/roamly/roamly-backend/internal/notification"
	"github.com/roamly/roamly-backend/internal/repository"
	"github.com/roamly/roamly-backend/internal/service"
	"github.com/roamly/roamly-backend/internal/socket"
)

func main() {
	// ============================================
	// Load environment variables
	// ============================================
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ============================================
	// Run Database Migrations
	// ============================================
	log.Println("🔄 Running database migrations...")
	migrationsPath := "./internal/db/migrations"
	if err := db.RunMigrations(cfg.DatabaseURL, migrationsPath); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	// ============================================
	// Initialize PostgreSQL
	// ============================================
	pg, err := db.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to PostgreSQL: %v", err)
	}
	defer pg.Close()

	repos := repository.NewRepositories(pg.Pool)
	log.Println("📦 Repositories initialized")

	// ============================================
	// Initialize Cache (Redis with in-process fallback)
	// ============================================
	var cacheStore cache.Store
	var redisDB *db.RedisDB
	if cfg.CacheEnabled && cfg.RedisURL != "" {
		redisDB, err = db.NewRedisDB(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (falling back to in-process cache)", err)
			cacheStore = cache.NewMemoryStore()
		} else {
			defer redisDB.Close()
			cacheStore = cache.NewRedisStore(redisDB.Client)
			log.Println("⚡ Redis cache enabled")
		}
	} else if cfg.CacheEnabled {
		cacheStore = cache.NewMemoryStore()
		log.Println("⚡ In-process cache enabled")
	} else {
		log.Println("⚠️  Cache disabled by configuration")
	}

	coordinator := cache.NewCoordinator(cacheStore, cache.Config{
		Enabled:       cfg.CacheEnabled,
		TripTTL:       cfg.TripCacheTTL,
		ListTTL:       cfg.ListCacheTTL,
		PermissionTTL: cfg.PermissionCacheTTL,
	})

	// ============================================
	// Initialize WebSocket Hub
	// ============================================
	hub := socket.NewHub()
	go hub.Run()
	broadcaster := socket.NewBroadcaster(hub)
	wsHandler := socket.NewHandler(hub, cfg.JWTSecret)
	log.Println("🔌 WebSocket hub initialized")

	notifSvc := notification.NewService()
	notifSvc.SetBroadcaster(broadcaster)

	// ============================================
	// Initialize Services and Handlers
	// ============================================
	services := service.NewServices(&service.ServiceDeps{
		Config:   cfg,
		Repos:    repos,
		Cache:    coordinator,
		NotifSvc: notifSvc,
	})
	log.Println("✨ All services initialized")

	h := handlers.NewHandlers(services)

	// ============================================
	// Initialize Cron Scheduler
	// ============================================
	scheduler := cron.NewScheduler(cfg, services)
	scheduler.Start()
	defer scheduler.Stop()

	// ============================================
	// Create Gin Router
	// ============================================
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"timestamp":  time.Now(),
			"database":   "connected",
			"cache":      getCacheStatus(coordinator),
			"websocket":  "active",
			"ws_clients": hub.GetConnectedClientsCount(),
		})
	})

	api := r.Group("/api")
	{
		// WebSocket route (self-authenticating via token query param)
		api.GET("/ws", wsHandler.HandleWebSocket)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(services.Auth))
		{
			trips := protected.Group("/trips")
			{
				trips.GET("", h.Trip.List)
				trips.POST("", h.Trip.Create)
				trips.GET("/search", h.Trip.Search)
				trips.GET("/:id", h.Trip.Get)
				trips.PUT("/:id", h.Trip.Update)
				trips.DELETE("/:id", h.Trip.Delete)

				trips.GET("/:id/permissions/:permission", h.Trip.CheckPermission)
				trips.GET("/:id/activity", h.Trip.GetActivity)

				// Collaboration
				trips.GET("/:id/collaborators", h.Collaboration.List)
				trips.POST("/:id/collaborators", h.Collaboration.Invite)
				trips.POST("/:id/collaborators/accept", h.Collaboration.Accept)
				trips.POST("/:id/collaborators/decline", h.Collaboration.Decline)
				trips.DELETE("/:id/collaborators/:userId", h.Collaboration.Remove)
				trips.PUT("/:id/collaborators/:userId/role", h.Collaboration.ChangeRole)
			}

			invitations := protected.Group("/invitations")
			{
				invitations.GET("/pending", h.Collaboration.Pending)
			}
		}
	}

	// ============================================
	// Start server with graceful shutdown
	// ============================================
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func getCacheStatus(coordinator *cache.Coordinator) string {
	if coordinator.Enabled() {
		return "enabled"
	}
	return "disabled"
}
