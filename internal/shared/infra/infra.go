// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Queue：任务队列注册表（Redis）
//   - Breaker：按提供商的分布式熔断器（Redis）
//   - Limiter：按用户的并发计数（Redis）
//   - Idempotency：请求去重存储（Redis）
//   - Progress：任务进度发布/订阅（Redis Pub/Sub）
package infra

import (
	"ai-tasks/internal/shared/breaker"
	"ai-tasks/internal/shared/idempotency"
	"ai-tasks/internal/shared/limiter"
	"ai-tasks/internal/shared/pubsub"
	"ai-tasks/internal/shared/queue"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Queue 任务队列注册表
	Queue queue.Registry

	// Breaker 分布式熔断器
	Breaker breaker.CircuitBreaker

	// Limiter 用户并发限制
	Limiter limiter.Limiter

	// Idempotency 幂等存储
	Idempotency idempotency.Store

	// Progress 任务进度总线
	Progress pubsub.Bus

	// closer 底层连接回收（连接管理器）
	closer func() error
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.Queue != nil {
		if err := i.Queue.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Progress != nil {
		if err := i.Progress.Close(); err != nil {
			lastErr = err
		}
	}

	if i.closer != nil {
		if err := i.closer(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// NewNoOpInfrastructure 创建空操作的基础设施（用于测试）
func NewNoOpInfrastructure() *Infrastructure {
	return &Infrastructure{
		Queue:       queue.NewNoOpRegistry(),
		Breaker:     breaker.NewMemoryBreaker(breaker.DefaultSettings()),
		Limiter:     limiter.NewNoOpLimiter(),
		Idempotency: idempotency.NewNoOpStore(),
		Progress:    pubsub.NewNoOpBus(),
	}
}
