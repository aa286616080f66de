package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payflow/internal/pkg/config"

	"github.com/redis/go-redis/v9"
)

// ErrRedisDisabled 未配置 Redis 地址
var ErrRedisDisabled = errors.New("redis disabled")

// InitRedis 初始化 Redis 连接，连接失败时返回错误由调用方决定是否降级
func InitRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrRedisDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   1,
		DialTimeout:  time.Second * 2,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolTimeout:  time.Second * 2,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}
