// Package redis 并发限制 Redis 实现
package redis

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"ai-tasks/internal/shared/limiter"
)

// Store 共享存储上的并发计数器
//
// 每个用户一个键 concurrency:{userId}；所有变更都是单键原子操作。
// 递减钳制为 0：递减先于递增到达（或重复递减）不会产生负计数。
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 从现有 Redis 客户端创建限流实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) key(userID string) string {
	return limiter.KeyConcurrency + userID
}

// Check 非变更读
func (s *Store) Check(ctx context.Context, userID string, max int64) (limiter.Status, error) {
	if max <= 0 {
		max = limiter.DefaultMaxConcurrent
	}

	current, err := s.client.Get(ctx, s.key(userID)).Int64()
	if err == redis.Nil {
		current = 0
	} else if err != nil {
		return limiter.Status{}, fmt.Errorf("failed to check concurrency for %s: %w", userID, err)
	}

	if current < 0 {
		current = 0
	}

	return limiter.Status{Allowed: current < max, Current: current, Max: max}, nil
}

// Increment 原子递增并刷新 TTL
func (s *Store) Increment(ctx context.Context, userID string) (int64, error) {
	key := s.key(userID)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment concurrency for %s: %w", userID, err)
	}

	// TTL 兜底：崩溃的工作进程泄漏的名额在窗口后自动回收
	if err := s.client.Expire(ctx, key, limiter.TTLCounter).Err(); err != nil {
		log.Printf("[Redis/Limiter] Failed to refresh TTL: user=%s err=%v", userID, err)
	}

	return count, nil
}

// Decrement 原子递减，下限钳制为 0，刷新 TTL
func (s *Store) Decrement(ctx context.Context, userID string) (int64, error) {
	key := s.key(userID)

	count, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement concurrency for %s: %w", userID, err)
	}

	// 钳制下溢：递减与递增乱序时可能短暂为负
	if count < 0 {
		if err := s.client.Set(ctx, key, 0, limiter.TTLCounter).Err(); err != nil {
			log.Printf("[Redis/Limiter] Failed to clamp counter: user=%s err=%v", userID, err)
		}
		count = 0
	} else if err := s.client.Expire(ctx, key, limiter.TTLCounter).Err(); err != nil {
		log.Printf("[Redis/Limiter] Failed to refresh TTL: user=%s err=%v", userID, err)
	}

	return count, nil
}

// 确保 Store 实现了 Limiter 接口
var _ limiter.Limiter = (*Store)(nil)
