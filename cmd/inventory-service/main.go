package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/stockwise/stockwise-backend/internal/auth/jwt"
	"github.com/stockwise/stockwise-backend/internal/inventory/events"
	"github.com/stockwise/stockwise-backend/internal/inventory/handler"
	"github.com/stockwise/stockwise-backend/internal/inventory/repository"
	"github.com/stockwise/stockwise-backend/internal/inventory/service"
	"github.com/stockwise/stockwise-backend/pkg/calendar"
	"github.com/stockwise/stockwise-backend/pkg/config"
	"github.com/stockwise/stockwise-backend/pkg/database"
	"github.com/stockwise/stockwise-backend/pkg/httputil"
	"github.com/stockwise/stockwise-backend/pkg/idempotency"
	"github.com/stockwise/stockwise-backend/pkg/logger"
	"github.com/stockwise/stockwise-backend/pkg/messaging"
	"github.com/unrolled/secure"
)

const serviceName = "inventory-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewWithLevel(serviceName, cfg.Server.Environment, cfg.Server.LogLevel)
	log.Info().Msg("starting Inventory Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Business calendar
	loc, err := cfg.Inventory.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid inventory timezone")
	}
	cal := calendar.New(loc)

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, repository.Migrations()); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	// Connect to RabbitMQ. Without a URL events are dropped.
	var rmq *messaging.RabbitMQ
	var publisher *events.InventoryEventPublisher
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("rabbitmq url not set, inventory events are disabled")
	}

	// Connect to Redis. Without an address restocks are not deduplicated.
	var idem *idempotency.Store
	if cfg.Redis.Addr != "" {
		client, err := idempotency.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer client.Close()
		idem = idempotency.New(client, cfg.Redis.IdempotencyTTL)
	} else {
		log.Warn().Msg("redis addr not set, idempotency keys are ignored")
	}

	// Initialize repositories
	positionRepo := repository.NewPositionRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	historyRepo := repository.NewRestockHistoryRepository(db)

	// Initialize service
	inventoryService := service.NewInventoryService(service.Stores{
		Tx:        db,
		Positions: positionRepo,
		Batches:   batchRepo,
		Movements: movementRepo,
		History:   historyRepo,
	}, publisher, cal, service.ConfigFrom(cfg.Inventory), log)

	// Initialize handlers
	var idemStore handler.IdempotencyStore
	if idem != nil {
		idemStore = idem
	}
	inventoryHandler := handler.NewInventoryHandler(inventoryService, idemStore, cal, log)
	jwtManager := jwt.NewManager(&cfg.JWT)

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !cfg.Server.IsProductionLike(),
	})

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(secureMiddleware.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", handler.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		rabbit := map[string]string{"status": "disabled"}
		if rmq != nil {
			rabbit = rmq.Health()
		}
		redisHealth := map[string]string{"status": "disabled"}
		if idem != nil {
			redisHealth = idem.Health(r.Context())
		}
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"timezone": loc.String(),
			"database": db.Health(r.Context()),
			"rabbitmq": rabbit,
			"redis":    redisHealth,
		})
	})

	// API routes
	writeLimit := httprate.Limit(cfg.Server.WriteRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	r.Group(func(r chi.Router) {
		r.Use(httputil.Authenticate(jwtManager))
		r.Mount("/api/v1/inventory", inventoryHandler.Routes(writeLimit))
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
