// Package pubsub 进度总线 mock 实现
package pubsub

import (
	"context"
	"sync"
)

// ============================================================================
// NoOpBus - 空操作的 Bus 实现（用于测试）
// ============================================================================

// NoOpBus 丢弃全部消息
type NoOpBus struct{}

// NewNoOpBus 创建 NoOpBus 实例
func NewNoOpBus() *NoOpBus {
	return &NoOpBus{}
}

func (b *NoOpBus) Publish(ctx context.Context, msg *TaskUpdateMessage) error {
	return nil
}

func (b *NoOpBus) Subscribe(ctx context.Context, userID string, onMessage func(*TaskUpdateMessage)) (func() error, error) {
	return func() error { return nil }, nil
}

func (b *NoOpBus) Close() error {
	return nil
}

// ============================================================================
// MemoryBus - 进程内总线（用于测试）
// ============================================================================

// MemoryBus 进程内进度总线，同步投递给当前进程内的订阅者
type MemoryBus struct {
	mu          sync.Mutex
	subscribers map[string]map[int]func(*TaskUpdateMessage)
	nextID      int
}

// NewMemoryBus 创建 MemoryBus 实例
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subscribers: make(map[string]map[int]func(*TaskUpdateMessage))}
}

func (b *MemoryBus) Publish(ctx context.Context, msg *TaskUpdateMessage) error {
	b.mu.Lock()
	handlers := make([]func(*TaskUpdateMessage), 0, len(b.subscribers[msg.UserID]))
	for _, h := range b.subscribers[msg.UserID] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, userID string, onMessage func(*TaskUpdateMessage)) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[userID] == nil {
		b.subscribers[userID] = make(map[int]func(*TaskUpdateMessage))
	}
	id := b.nextID
	b.nextID++
	b.subscribers[userID][id] = onMessage

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[userID], id)
		return nil
	}, nil
}

func (b *MemoryBus) Close() error {
	return nil
}

// 确保 mock 实现满足接口
var (
	_ Bus = (*NoOpBus)(nil)
	_ Bus = (*MemoryBus)(nil)
)
