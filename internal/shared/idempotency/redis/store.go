// Package redis 幂等存储 Redis 实现
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ai-tasks/internal/shared/idempotency"
)

// Store 共享存储上的幂等记录
//
// 键 idempotency:{userId}:{key}，值为已创建的 taskId，带 TTL。
// Check 与 Set 之间存在有界概率的重复窗口（有意保留，
// 队列的 broker 级 taskId 去重作为纵深防御兜底）。
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 从现有 Redis 客户端创建幂等存储实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) key(userID, key string) string {
	return idempotency.KeyIdempotency + userID + ":" + key
}

// Check 查询键是否已被处理过
func (s *Store) Check(ctx context.Context, userID, key string) (idempotency.Result, error) {
	taskID, err := s.client.Get(ctx, s.key(userID, key)).Result()
	if err == redis.Nil {
		return idempotency.Result{Exists: false}, nil
	}
	if err != nil {
		return idempotency.Result{}, fmt.Errorf("failed to check idempotency key for %s: %w", userID, err)
	}
	return idempotency.Result{Exists: true, TaskID: taskID}, nil
}

// Set 记录键与已创建任务的对应关系（带 TTL）
func (s *Store) Set(ctx context.Context, userID, key, taskID string) error {
	if err := s.client.Set(ctx, s.key(userID, key), taskID, idempotency.TTLRecord).Err(); err != nil {
		return fmt.Errorf("failed to set idempotency key for %s: %w", userID, err)
	}
	return nil
}

// Remove 显式失效
func (s *Store) Remove(ctx context.Context, userID, key string) error {
	if err := s.client.Del(ctx, s.key(userID, key)).Err(); err != nil {
		return fmt.Errorf("failed to remove idempotency key for %s: %w", userID, err)
	}
	return nil
}

// 确保 Store 实现了 Store 接口
var _ idempotency.Store = (*Store)(nil)
