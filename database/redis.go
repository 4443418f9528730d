package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"arm_shn/config"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// InitRedis создает клиент Redis и проверяет подключение
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConns,
		MinIdleConns: 2,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  300 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	log.Println("✅ Успешно подключено к Redis")
	return client, nil
}

// RateLimitKey формирует ключ счетчика запросов
func RateLimitKey(subject string) string {
	return "arm_shn:rate_limit:" + subject
}

// HealthCheck проверяет доступность базы данных и Redis
func HealthCheck(ctx context.Context, db *gorm.DB, rdb *redis.Client) map[string]string {
	status := map[string]string{"database": "ok"}

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		status["database"] = err.Error()
	}

	if rdb == nil {
		status["redis"] = "disabled"
	} else if err := rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
	} else {
		status["redis"] = "ok"
	}
	return status
}
