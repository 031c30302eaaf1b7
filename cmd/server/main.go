// Package main is the entry point for the rental access control server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/activity"
	"github.com/rental-access-control/backend/internal/api"
	"github.com/rental-access-control/backend/internal/api/handlers"
	"github.com/rental-access-control/backend/internal/auth"
	"github.com/rental-access-control/backend/internal/code"
	"github.com/rental-access-control/backend/internal/config"
	"github.com/rental-access-control/backend/internal/devicesync"
	"github.com/rental-access-control/backend/internal/dispatcher"
	"github.com/rental-access-control/backend/internal/logging"
	"github.com/rental-access-control/backend/internal/provider"
	"github.com/rental-access-control/backend/internal/storage"
	"github.com/rental-access-control/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	// Local development overrides live in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	logger, err := logging.NewLogger(cfg.ServiceName)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting server", zap.String("version", version), zap.String("addr", cfg.Addr))

	// Initialize database
	dbPath := cfg.DataDir + "/access-control.db"
	db, err := storage.NewDB(dbPath)
	if err != nil {
		logger.Fatal("opening database", zap.Error(err))
	}
	defer db.Close()

	if err := storage.RunMigrations(db); err != nil {
		logger.Fatal("running migrations", zap.Error(err))
	}
	logger.Info("database migrations complete", zap.String("path", dbPath))

	// Initialize repositories
	deviceRepo := storage.NewDeviceRepository(db)
	codeRepo := storage.NewAccessCodeRepository(db)
	commandRepo := storage.NewCommandRepository(db)
	activityRepo := storage.NewActivityRepository(db)
	propertyRepo := storage.NewPropertyRepository(db)

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	broadcaster := websocket.NewEventBroadcaster(hub, logger)
	recorder := activity.NewRecorder(activityRepo)

	// Register vendor providers
	registry := provider.NewRegistry()
	for _, vendor := range cfg.Vendors {
		switch vendor {
		case "mock":
			if err := registry.Register("mock", provider.NewMock()); err != nil {
				logger.Fatal("registering mock provider", zap.Error(err))
			}
		case "webhook":
			if err := registry.Register("webhook", provider.NewWebhook(provider.DefaultWebhookConfig())); err != nil {
				logger.Fatal("registering webhook provider", zap.Error(err))
			}
		case "mqtt":
			mq, err := provider.ConnectMQTT(provider.DefaultMQTTConfig())
			if err != nil {
				logger.Fatal("connecting MQTT broker", zap.Error(err))
			}
			defer mq.Close()
			if err := registry.Register("mqtt", mq); err != nil {
				logger.Fatal("registering mqtt provider", zap.Error(err))
			}
		default:
			logger.Fatal("unknown vendor in VENDORS", zap.String("vendor", vendor))
		}
	}
	logger.Info("vendor providers registered", zap.Strings("vendors", registry.Vendors()))

	// Initialize the command dispatcher
	disp := dispatcher.New(
		deviceRepo,
		codeRepo,
		commandRepo,
		registry,
		recorder,
		broadcaster,
		logger,
		cfg.CommandTimeout,
	)

	// Start background jobs
	sweeper := code.NewSweeper(codeRepo, disp, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("starting expiry sweeper", zap.Error(err))
	}

	refresher := devicesync.NewRefresher(deviceRepo, disp, cfg.RefreshInterval, logger)
	if err := refresher.Start(); err != nil {
		logger.Fatal("starting status refresher", zap.Error(err))
	}

	deps := &handlers.Deps{
		DB:         db,
		Dispatcher: disp,
		Devices:    deviceRepo,
		Properties: propertyRepo,
		Commands:   commandRepo,
		Activity:   recorder,
		Authorizer: auth.NewOwnerAuthorizer(propertyRepo),
		Hub:        hub,
		Logger:     logger,
	}

	router := api.NewRouter(deps, cfg.JWTSecret, cfg.StaticDir)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	sweeper.Stop()
	refresher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
