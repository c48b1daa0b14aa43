// Package idempotency 幂等存储 mock 实现
package idempotency

import (
	"context"
	"sync"
)

// ============================================================================
// NoOpStore - 空操作的 Store 实现（用于测试）
// ============================================================================

// NoOpStore 永远报告 "未处理过"
type NoOpStore struct{}

// NewNoOpStore 创建 NoOpStore 实例
func NewNoOpStore() *NoOpStore {
	return &NoOpStore{}
}

func (s *NoOpStore) Check(ctx context.Context, userID, key string) (Result, error) {
	return Result{Exists: false}, nil
}

func (s *NoOpStore) Set(ctx context.Context, userID, key, taskID string) error {
	return nil
}

func (s *NoOpStore) Remove(ctx context.Context, userID, key string) error {
	return nil
}

// ============================================================================
// MemoryStore - 进程内实现（用于测试，无 TTL）
// ============================================================================

// MemoryStore 进程内幂等存储
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]string
}

// NewMemoryStore 创建 MemoryStore 实例
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]string)}
}

func (s *MemoryStore) Check(ctx context.Context, userID, key string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if taskID, ok := s.records[userID+":"+key]; ok {
		return Result{Exists: true, TaskID: taskID}, nil
	}
	return Result{Exists: false}, nil
}

func (s *MemoryStore) Set(ctx context.Context, userID, key, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID+":"+key] = taskID
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID+":"+key)
	return nil
}

// 确保 mock 实现满足接口
var (
	_ Store = (*NoOpStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
