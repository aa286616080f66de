// Package locker 基于 Redis 的轻量分布式锁
//
// 锁只用于削减并发重复请求，不作为正确性依据；
// Redis 不可用时调用方应继续执行，由数据库唯一索引兜底。
package locker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "lock:"
	pollInterval = 50 * time.Millisecond
)

// ErrNotObtained 等待超时仍未拿到锁
var ErrNotObtained = errors.New("lock not obtained")

// 仅当 value 匹配时删除，避免误删他人续上的锁
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Locker Redis 锁
type Locker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// Lock 已持有的锁
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Obtain 获取锁，最长等待 wait；ttl 为锁自动过期时间
func (l *Locker) Obtain(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error) {
	token := uuid.NewString()
	fullKey := keyPrefix + key
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{rdb: l.rdb, key: fullKey, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotObtained
		}

		t := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Release 释放锁，锁已过期或被他人持有时为空操作
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil {
		return nil
	}
	return releaseScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token).Err()
}
