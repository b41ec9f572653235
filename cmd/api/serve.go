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

	"github.com/SergeiKhy/minilinks/internal/config"
	"github.com/SergeiKhy/minilinks/internal/handler"
	"github.com/SergeiKhy/minilinks/internal/middleware"
	"github.com/SergeiKhy/minilinks/internal/migrations"
	"github.com/SergeiKhy/minilinks/internal/repository"
	"github.com/SergeiKhy/minilinks/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	linkRepo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	linkService := service.NewLinkService(linkRepo, logger, nil)

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
		KeyFunc:           middleware.APIScopedIPKey,
	})
	defer rateLimiter.Stop()

	if cfg.App.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Настройка роутера
	router := handler.NewRouter(handler.RouterConfig{
		LinkService: linkService,
		RateLimiter: rateLimiter,
		Auth:        middleware.RequireAPIKey(cfg.Auth.Token, cfg.Auth.HeaderName),
		BaseURL:     cfg.App.BaseURL,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("auth_header", cfg.Auth.HeaderName),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// openStore подключает выбранное хранилище и возвращает функцию закрытия
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.LinkRepository, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if cfg.DB.AutoMigrate {
			if err := runMigrations(cfg.DB.URL(), logger, (*migrations.Migrator).Up); err != nil {
				return nil, nil, err
			}
		}

		db, err := repository.NewPostgresDB(ctx, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("Connected to PostgreSQL")
		return repository.NewLinkRepository(db), db.Close, nil

	case config.DriverSQLite:
		db, err := repository.NewSQLiteDB(ctx, cfg.SQLite.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		logger.Info("Connected to SQLite")
		return repository.NewSQLiteLinkRepository(db), func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close sqlite", zap.Error(err))
			}
		}, nil

	case config.DriverRedis:
		rdb, err := repository.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Connected to Redis")
		return repository.NewRedisLinkRepository(rdb), func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close redis", zap.Error(err))
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
