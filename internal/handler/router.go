package handler

import (
	"time"

	"github.com/SergeiKhy/minilinks/internal/middleware"
	"github.com/SergeiKhy/minilinks/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig зависимости HTTP-роутера
type RouterConfig struct {
	LinkService service.LinkService
	RateLimiter *middleware.RateLimiter // nil отключает ограничение
	Auth        gin.HandlerFunc
	BaseURL     string
	Logger      *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
	})

	// Rate limiting для всех запросов
	if cfg.RateLimiter != nil {
		router.Use(cfg.RateLimiter.Middleware())
	}

	linkHandler := NewLinkHandler(cfg.LinkService, cfg.BaseURL, logger)

	router.GET("/api/health", HealthCheck)

	api := router.Group("/api")
	{
		// Без секрета управляющие операции недоступны
		if cfg.Auth != nil {
			api.Use(cfg.Auth)
		} else {
			api.Use(middleware.RequireAPIKey("", ""))
		}

		api.GET("", linkHandler.GetLink)
		api.POST("", linkHandler.CreateLink)
		api.PATCH("", linkHandler.UpdateLink)
		api.DELETE("", linkHandler.DeleteLink)
	}

	// Редирект (корневой путь) - без проверки ключа
	router.GET("/:id", linkHandler.Redirect)

	return router
}
