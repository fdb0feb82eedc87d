// Package main provides the main entry point for the Amaterasu urgency pricing service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/Amaterasu/app/handlers"
	"github.com/amirphl/Amaterasu/app/router"
	"github.com/amirphl/Amaterasu/app/scheduler"
	"github.com/amirphl/Amaterasu/app/services"
	businessflow "github.com/amirphl/Amaterasu/business_flow"
	"github.com/amirphl/Amaterasu/config"
	_ "github.com/amirphl/Amaterasu/docs"
	"github.com/amirphl/Amaterasu/models"
	"github.com/amirphl/Amaterasu/pkg/cache"
	"github.com/amirphl/Amaterasu/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Amaterasu pricing service...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.UrgencyPricing{},
		&models.MarketDemand{},
		&models.PricingEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB and password if provided in config
	opt.DB = cfg.RedisDB
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires all application components together
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize Redis (optional; the in-process tier works without it)
	redisClient, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	// Cache tiers
	memoryTier := cache.NewMemoryCache(cfg.Cache.MemoryEntries)
	var distributedTier cache.Cache
	if redisClient != nil {
		distributedTier = cache.NewRedisCache(redisClient, cfg.Cache.RedisPrefix)
	}
	tieredCache := cache.NewTieredCache(memoryTier, distributedTier, nil)

	// Calculation services
	demandConfig, err := services.DemandPreset(cfg.Pricing.DemandPreset)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve demand preset: %w", err)
	}
	validator := services.NewPricingValidator(nil)
	urgencyCalculator := services.NewUrgencyCalculator(validator, nil)
	demandCalculator := services.NewMarketDemandCalculator(demandConfig)

	// Repositories; persistence toggles disable the corresponding writes
	var pricingRepo repository.PricingRepository
	var demandRepo repository.MarketDemandRepository
	if cfg.Pricing.PersistResults {
		pricingRepo = repository.NewPricingRepository(db)
	}
	if cfg.Pricing.PersistMarketRows {
		demandRepo = repository.NewMarketDemandRepository(db)
	}
	eventRepo := repository.NewPricingEventRepository(db)

	// Business flow
	pricingFlow := businessflow.NewPricingFlow(
		validator,
		urgencyCalculator,
		demandCalculator,
		tieredCache,
		pricingRepo,
		demandRepo,
		eventRepo,
		nil,
		nil,
	)

	// Load persisted events into the demand calculator
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startupCancel()
	if loaded, err := pricingFlow.LoadEvents(startupCtx); err != nil {
		log.Printf("Failed to load pricing events: %v", err)
	} else {
		log.Printf("Loaded %d pricing events", loaded)
	}

	// Warm the cache from rows that survived the restart
	if warmed, err := pricingFlow.WarmCache(startupCtx, cfg.Scheduler.BatchSize); err != nil {
		log.Printf("Cache warm-up failed: %v", err)
	} else if warmed > 0 {
		log.Printf("Warmed cache with %d pricing entries", warmed)
	}

	// Handlers and router
	pricingHandler := handlers.NewPricingHandler(pricingFlow)
	probes := map[string]router.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	fiberRouter := router.NewFiberRouter(pricingHandler, probes)

	app := &Application{
		router: fiberRouter,
		config: cfg,
		server: fiberRouter.GetApp(),
	}

	if redisClient != nil {
		stopMonitor := startCacheHealthMonitor(context.Background(), redisClient, cfg.Cache.CleanupInterval)
		app.stopFuncs = append(app.stopFuncs, stopMonitor)
	}

	// Background recalculation
	if cfg.Scheduler.Enabled {
		recalcScheduler := scheduler.NewRecalculationScheduler(pricingFlow, cfg.Scheduler.BatchSize, nil)
		stopScheduler := recalcScheduler.Start(context.Background())
		app.stopFuncs = append(app.stopFuncs, stopScheduler)
	}

	return app, nil
}
