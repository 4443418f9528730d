package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"

	"arm_shn/config"
	"arm_shn/database"
)

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Requests       int                       // Количество запросов
	Window         time.Duration             // Временное окно
	SkipSuccessful bool                      // Пропускать успешные запросы
	KeyGenerator   func(*gin.Context) string // Генератор ключей
}

// DefaultKeyGenerator генерирует ключ на основе IP адреса
func DefaultKeyGenerator(c *gin.Context) string {
	return c.ClientIP()
}

// UserKeyGenerator генерирует ключ на основе работника
func UserKeyGenerator(c *gin.Context) string {
	userID := CurrentUserID(c)
	if userID == nil {
		return c.ClientIP()
	}
	return "user:" + strconv.FormatUint(uint64(*userID), 10)
}

// RateLimit создает middleware для ограничения частоты запросов.
// Без Redis ограничение не применяется.
func RateLimit(rdb *redis.Client, config RateLimitConfig) gin.HandlerFunc {
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultKeyGenerator
	}
	return func(c *gin.Context) {
		if rdb == nil || config.Requests <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := database.RateLimitKey(config.KeyGenerator(c))

		current, err := rdb.Get(ctx, key).Int()
		if err != nil && err != redis.Nil {
			// В случае ошибки Redis пропускаем запрос
			c.Next()
			return
		}

		if current >= config.Requests {
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Превышен лимит запросов",
				"message": fmt.Sprintf("Не более %d запросов за %v",
					config.Requests, config.Window),
				"retry_after": config.Window.Seconds(),
			})
			c.Abort()
			return
		}

		pipe := rdb.Pipeline()
		pipe.Incr(ctx, key)
		if current == 0 {
			// TTL только для первого запроса окна
			pipe.Expire(ctx, key, config.Window)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.Next()
			return
		}

		remaining := config.Requests - current - 1
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		c.Next()

		if config.SkipSuccessful && c.Writer.Status() < 400 {
			rdb.Decr(ctx, key)
		}
	}
}

// ModerateRateLimit общее ограничение API по настройкам безопасности
func ModerateRateLimit(rdb *redis.Client, cfg config.SecurityConfig) gin.HandlerFunc {
	return RateLimit(rdb, RateLimitConfig{
		Requests:     cfg.RateLimitRequests,
		Window:       cfg.RateLimitWindow,
		KeyGenerator: UserKeyGenerator,
	})
}

// StrictRateLimit ограничение для операций, меняющих размещение приборов
func StrictRateLimit(rdb *redis.Client) gin.HandlerFunc {
	return RateLimit(rdb, RateLimitConfig{
		Requests:     30,
		Window:       time.Minute,
		KeyGenerator: UserKeyGenerator,
	})
}
