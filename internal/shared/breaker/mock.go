// Package breaker 熔断器内存实现（用于测试）
package breaker

import (
	"context"
	"sync"
	"time"
)

// MemoryBreaker 进程内熔断器实现
//
// 与共享存储实现共用同一组状态机纯函数；
// 仅用于测试和无 Redis 的本地运行，不提供跨进程一致性。
type MemoryBreaker struct {
	settings Settings

	mu      sync.Mutex
	records map[string]Record

	// now 可注入的时钟（测试用）
	now func() time.Time
}

// NewMemoryBreaker 创建内存熔断器实例
func NewMemoryBreaker(settings Settings) *MemoryBreaker {
	return &MemoryBreaker{
		settings: settings,
		records:  make(map[string]Record),
		now:      time.Now,
	}
}

// SetClock 注入时钟（测试用）
func (b *MemoryBreaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func (b *MemoryBreaker) CanExecute(ctx context.Context, provider string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.records[provider]
	state := Evaluate(rec, b.now(), b.settings)
	if state != rec.State {
		rec.State = state
		b.records[provider] = rec
	}
	return state != StateOpen, nil
}

func (b *MemoryBreaker) OnSuccess(ctx context.Context, provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records[provider] = NextOnSuccess(b.records[provider])
	return nil
}

func (b *MemoryBreaker) OnFailure(ctx context.Context, provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records[provider] = NextOnFailure(b.records[provider], b.now(), b.settings)
	return nil
}

func (b *MemoryBreaker) Execute(ctx context.Context, provider string, fn func(context.Context) error) error {
	ok, err := b.CanExecute(ctx, provider)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCircuitOpen
	}

	if err := fn(ctx); err != nil {
		b.OnFailure(ctx, provider)
		return err
	}
	b.OnSuccess(ctx, provider)
	return nil
}

func (b *MemoryBreaker) State(ctx context.Context, provider string) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.records[provider]
	rec.State = Evaluate(rec, b.now(), b.settings)
	return rec, nil
}

func (b *MemoryBreaker) Reset(ctx context.Context, provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.records, provider)
	return nil
}

// 确保 MemoryBreaker 实现了 CircuitBreaker 接口
var _ CircuitBreaker = (*MemoryBreaker)(nil)
