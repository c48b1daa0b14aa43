// Package breaker 熔断器抽象接口
package breaker

import "context"

// CircuitBreaker 按提供商标识的分布式熔断器接口
type CircuitBreaker interface {
	// CanExecute 当前是否允许调用该提供商
	//
	// 读取时惰性推进 open → half-open（时间驱动、读者触发）。
	// half-open 允许试探调用，但不保证单飞：并发调用方可能
	// 同时观察到 half-open 并同时试探，这是有意保留的宽松语义。
	CanExecute(ctx context.Context, provider string) (bool, error)

	// OnSuccess 上报一次成功：回到 closed，失败计数清零
	OnSuccess(ctx context.Context, provider string) error

	// OnFailure 上报一次失败：closed 下累计计数（达到阈值熔断），
	// half-open 下立即重开
	OnFailure(ctx context.Context, provider string) error

	// Execute 包裹一次提供商调用：熔断开启时返回 ErrCircuitOpen
	// 快速失败，否则执行 fn 并无论结果如何上报结果
	Execute(ctx context.Context, provider string, fn func(context.Context) error) error

	// State 返回当前熔断记录（运维查询）
	State(ctx context.Context, provider string) (Record, error)

	// Reset 清除提供商的全部熔断状态（运维逃生通道）
	Reset(ctx context.Context, provider string) error
}
