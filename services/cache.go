package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"arm_shn/logger"
)

// Константы для TTL кэша
const (
	CacheTTLShort  = time.Minute      // Для часто изменяемых данных
	CacheTTLMedium = 15 * time.Minute // Для умеренно изменяемых данных
)

const cacheKeyPrefix = "arm_shn:cache:"

// ErrCacheMiss значение отсутствует в кэше или кэш отключен
var ErrCacheMiss = errors.New("значение отсутствует в кэше")

// CacheService кэш на Redis. Без подключения все чтения промахиваются, а записи пропускаются.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService создает новый экземпляр CacheService
func NewCacheService(redisClient *redis.Client, log *zap.Logger) *CacheService {
	return &CacheService{redis: redisClient, logger: logger.OrNop(log)}
}

// GetJSON читает значение и раскладывает его в dest
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if cs == nil || cs.redis == nil {
		return ErrCacheMiss
	}
	val, err := cs.redis.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("ошибка чтения кэша %s: %w", key, err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("ошибка разбора кэша %s: %w", key, err)
	}
	return nil
}

// SetJSON сохраняет значение в кэш
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if cs == nil || cs.redis == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации кэша %s: %w", key, err)
	}
	return cs.redis.Set(ctx, cacheKeyPrefix+key, data, ttl).Err()
}

// Del удаляет значения из кэша
func (cs *CacheService) Del(ctx context.Context, keys ...string) error {
	if cs == nil || cs.redis == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, cacheKeyPrefix+k)
	}
	return cs.redis.Del(ctx, full...).Err()
}

// remember возвращает значение из кэша либо вычисляет и кэширует его.
// Ошибки кэша только логируются.
func (cs *CacheService) remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func() error) error {
	err := cs.GetJSON(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCacheMiss) && cs != nil {
		cs.logger.Warn("ошибка чтения кэша", zap.String("key", key), zap.Error(err))
	}
	if err := load(); err != nil {
		return err
	}
	if err := cs.SetJSON(ctx, key, dest, ttl); err != nil && cs != nil {
		cs.logger.Warn("ошибка записи кэша", zap.String("key", key), zap.Error(err))
	}
	return nil
}
