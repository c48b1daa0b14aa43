// Package redis 熔断器 Redis 实现
package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-tasks/internal/shared/breaker"
)

// Store 共享存储上的熔断器
//
// 每个提供商一个哈希键 circuit:{provider}，字段：
// state / failure_count / opened_at。所有写入都刷新 TTL。
type Store struct {
	client   *redis.Client
	settings breaker.Settings
}

// NewStoreFromClient 从现有 Redis 客户端创建熔断器实例
func NewStoreFromClient(client *redis.Client, settings breaker.Settings) *Store {
	return &Store{client: client, settings: settings}
}

func (s *Store) key(provider string) string {
	return breaker.KeyCircuit + provider
}

// read 读取提供商熔断记录（不存在返回零值，即 closed）
func (s *Store) read(ctx context.Context, provider string) (breaker.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(provider)).Result()
	if err != nil {
		return breaker.Record{}, fmt.Errorf("failed to read circuit state for %s: %w", provider, err)
	}

	var rec breaker.Record
	rec.State = breaker.State(fields["state"])
	if v, ok := fields["failure_count"]; ok {
		rec.FailureCount, _ = strconv.Atoi(v)
	}
	if v, ok := fields["opened_at"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rec.OpenedAt = t
		}
	}
	return rec, nil
}

// write 写入熔断记录并刷新 TTL
func (s *Store) write(ctx context.Context, provider string, rec breaker.Record) error {
	openedAt := ""
	if !rec.OpenedAt.IsZero() {
		openedAt = rec.OpenedAt.Format(time.RFC3339Nano)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(provider),
			"state", string(rec.State),
			"failure_count", rec.FailureCount,
			"opened_at", openedAt,
		)
		pipe.Expire(ctx, s.key(provider), s.settings.StateTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write circuit state for %s: %w", provider, err)
	}
	return nil
}

// CanExecute 当前是否允许调用该提供商
//
// open → half-open 的转移在读取时惰性完成；写回是尽力而为的
// 缓存刷新，失败只记日志（并发读者会各自算出同一结果）。
func (s *Store) CanExecute(ctx context.Context, provider string) (bool, error) {
	rec, err := s.read(ctx, provider)
	if err != nil {
		return false, err
	}

	state := breaker.Evaluate(rec, time.Now(), s.settings)
	if state != rec.State && rec.State != "" {
		refreshed := rec
		refreshed.State = state
		if err := s.write(ctx, provider, refreshed); err != nil {
			log.Printf("[Redis/Breaker] State refresh failed: provider=%s err=%v", provider, err)
		} else {
			log.Printf("[Redis/Breaker] Circuit half-open: provider=%s", provider)
		}
	}

	return state != breaker.StateOpen, nil
}

// OnSuccess 上报一次成功
func (s *Store) OnSuccess(ctx context.Context, provider string) error {
	rec, err := s.read(ctx, provider)
	if err != nil {
		return err
	}

	next := breaker.NextOnSuccess(rec)
	if err := s.write(ctx, provider, next); err != nil {
		return err
	}

	if rec.State == breaker.StateOpen || breaker.Evaluate(rec, time.Now(), s.settings) == breaker.StateHalfOpen {
		log.Printf("[Redis/Breaker] Circuit closed: provider=%s", provider)
	}
	return nil
}

// OnFailure 上报一次失败
func (s *Store) OnFailure(ctx context.Context, provider string) error {
	rec, err := s.read(ctx, provider)
	if err != nil {
		return err
	}

	next := breaker.NextOnFailure(rec, time.Now(), s.settings)
	if err := s.write(ctx, provider, next); err != nil {
		return err
	}

	if next.State == breaker.StateOpen && rec.State != breaker.StateOpen {
		log.Printf("[Redis/Breaker] Circuit opened: provider=%s failures=%d", provider, next.FailureCount)
	}
	return nil
}

// Execute 包裹一次提供商调用
//
// 熔断开启时返回 ErrCircuitOpen 快速失败；否则执行 fn，
// 并无论 fn 结果如何上报结果（上报失败不覆盖 fn 的错误）。
func (s *Store) Execute(ctx context.Context, provider string, fn func(context.Context) error) error {
	ok, err := s.CanExecute(ctx, provider)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("provider %s: %w", provider, breaker.ErrCircuitOpen)
	}

	if err := fn(ctx); err != nil {
		if repErr := s.OnFailure(ctx, provider); repErr != nil {
			log.Printf("[Redis/Breaker] Failed to report failure: provider=%s err=%v", provider, repErr)
		}
		return err
	}

	if repErr := s.OnSuccess(ctx, provider); repErr != nil {
		log.Printf("[Redis/Breaker] Failed to report success: provider=%s err=%v", provider, repErr)
	}
	return nil
}

// State 返回当前熔断记录（运维查询，惰性求值后的状态）
func (s *Store) State(ctx context.Context, provider string) (breaker.Record, error) {
	rec, err := s.read(ctx, provider)
	if err != nil {
		return breaker.Record{}, err
	}
	rec.State = breaker.Evaluate(rec, time.Now(), s.settings)
	return rec, nil
}

// Reset 清除提供商的全部熔断状态（运维逃生通道）
func (s *Store) Reset(ctx context.Context, provider string) error {
	if err := s.client.Del(ctx, s.key(provider)).Err(); err != nil {
		return fmt.Errorf("failed to reset circuit for %s: %w", provider, err)
	}
	log.Printf("[Redis/Breaker] Circuit reset: provider=%s", provider)
	return nil
}

// 确保 Store 实现了 CircuitBreaker 接口
var _ breaker.CircuitBreaker = (*Store)(nil)
