// Package limiter 用户并发限制抽象接口
//
// 按用户维护在途任务计数，封顶同一用户可同时排队/执行的任务数。
// 计数是跨进程共享状态：API 进程在提交时递增，工作进程在终态时
// 递减；进程崩溃最多泄漏一个名额，由 TTL 兜底回收。
package limiter

import "context"

// Status 并发检查结果
type Status struct {
	Allowed bool  `json:"allowed"`
	Current int64 `json:"current"`
	Max     int64 `json:"max"`
}

// Limiter 并发限制接口
type Limiter interface {
	// Check 非变更读：当前计数是否低于上限
	Check(ctx context.Context, userID string, max int64) (Status, error)

	// Increment 原子递增；首次递增时设置 TTL，之后每次刷新
	Increment(ctx context.Context, userID string) (int64, error)

	// Decrement 原子递减，下限钳制为 0，刷新 TTL
	Decrement(ctx context.Context, userID string) (int64, error)
}
