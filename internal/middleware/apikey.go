package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyConfig конфигурация аутентификации по общему секрету
type APIKeyConfig struct {
	// Secret ожидаемое значение ключа; пустой секрет отклоняет все запросы
	Secret string
	// HeaderName имя заголовка для ключа (по умолчанию: X-API-Key)
	HeaderName string
}

// DefaultAPIKeyConfig конфигурация по умолчанию
var DefaultAPIKeyConfig = APIKeyConfig{
	HeaderName: "X-API-Key",
}

// APIKey middleware для аутентификации по общему секрету
type APIKey struct {
	config APIKeyConfig
}

// NewAPIKey создаёт новый API key middleware
func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = DefaultAPIKeyConfig.HeaderName
	}
	return &APIKey{config: config}
}

// Middleware возвращает Gin middleware handler; запрос не доходит до обработчика без верного ключа
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(ak.config.HeaderName)

		// Также проверяем заголовок Authorization с Bearer схемой
		if apiKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "API key required in " + ak.config.HeaderName + " header or Authorization: Bearer",
			})
			return
		}

		// constant-time сравнение
		if ak.config.Secret == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(ak.config.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Invalid API key",
			})
			return
		}

		c.Next()
	}
}

// RequireAPIKey хелпер для создания middleware с заданным секретом и заголовком
func RequireAPIKey(secret, headerName string) gin.HandlerFunc {
	return NewAPIKey(APIKeyConfig{
		Secret:     secret,
		HeaderName: headerName,
	}).Middleware()
}
