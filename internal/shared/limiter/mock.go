// Package limiter 并发限制 mock 实现
package limiter

import (
	"context"
	"sync"
)

// ============================================================================
// NoOpLimiter - 始终放行的 Limiter 实现（用于测试）
// ============================================================================

// NoOpLimiter 始终放行
type NoOpLimiter struct{}

// NewNoOpLimiter 创建 NoOpLimiter 实例
func NewNoOpLimiter() *NoOpLimiter {
	return &NoOpLimiter{}
}

func (l *NoOpLimiter) Check(ctx context.Context, userID string, max int64) (Status, error) {
	return Status{Allowed: true, Current: 0, Max: max}, nil
}

func (l *NoOpLimiter) Increment(ctx context.Context, userID string) (int64, error) {
	return 1, nil
}

func (l *NoOpLimiter) Decrement(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

// ============================================================================
// MemoryLimiter - 进程内计数实现（用于测试）
// ============================================================================

// MemoryLimiter 进程内计数器，语义与共享存储实现一致（无 TTL）
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryLimiter 创建 MemoryLimiter 实例
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counts: make(map[string]int64)}
}

func (l *MemoryLimiter) Check(ctx context.Context, userID string, max int64) (Status, error) {
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.counts[userID]
	return Status{Allowed: current < max, Current: current, Max: max}, nil
}

func (l *MemoryLimiter) Increment(ctx context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[userID]++
	return l.counts[userID], nil
}

func (l *MemoryLimiter) Decrement(ctx context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[userID] > 0 {
		l.counts[userID]--
	}
	return l.counts[userID], nil
}

// 确保 mock 实现满足接口
var (
	_ Limiter = (*NoOpLimiter)(nil)
	_ Limiter = (*MemoryLimiter)(nil)
)
