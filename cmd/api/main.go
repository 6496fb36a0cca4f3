package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/events"
	"github.com/Dan9191/bank-cards/internal/handler"
	"github.com/Dan9191/bank-cards/internal/jobs"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/Dan9191/bank-cards/internal/repository/memory"
	"github.com/Dan9191/bank-cards/internal/service"
	"github.com/Dan9191/bank-cards/internal/utils"
	"github.com/Dan9191/bank-cards/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx := context.Background()

	// Initialize storage
	var store repository.Store
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		repo := repository.NewRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		store = repo
	default:
		logger.Warn("Using in-memory storage, data is lost on restart")
		store = memory.NewStore()
	}

	vault, err := utils.NewVault(cfg.EncryptionKey)
	if err != nil {
		logger.Fatalf("Failed to initialize card vault: %v", err)
	}
	policy := utils.NewPolicy(cfg.MaxTransferAmount, cfg.MaxBalance)

	// Event publishing is optional
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RedisAddr != "" {
		rdb, err := events.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb)
	}

	var notifier service.Notifier
	if cfg.SMTPHost != "" {
		notifier = email.NewSender(cfg, logger)
	}

	// Initialize layers
	authService := service.NewAuthService(store, logger, cfg.JWTSecret, cfg.JWTTTL)
	cardService := service.NewCardService(store, vault, policy, publisher, logger)
	blockRequestService := service.NewBlockRequestService(store, cardService, vault, publisher, notifier, logger)

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Fatalf("Failed to create admin user: %v", err)
		}
	}

	if cfg.ExpirySweepCron != "" {
		sweeper, err := jobs.NewExpirySweeper(cfg.ExpirySweepCron, cardService, logger)
		if err != nil {
			logger.Fatalf("Failed to schedule expiry sweep: %v", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	h := handler.NewHandler(authService, cardService, blockRequestService, logger)
	r := handler.NewRouter(h, authService)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Info("Server stopped")
}
