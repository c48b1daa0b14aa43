// Package idempotency 请求幂等去重抽象接口
//
// 以 (userId, idempotencyKey) 为键记录已创建的 taskId；
// 重复请求返回原任务标识而非重复创建。
//
// 契约：调用方必须在提交前 Check，并在持久任务记录创建后
// 立即 Set，把 "任务已创建" 与 "幂等已记录" 之间的竞争窗口
// 压到最小。本层不提供消除该窗口的强保证（见 DESIGN.md）。
package idempotency

import "context"

// Result 幂等检查结果
type Result struct {
	Exists bool   `json:"exists"`
	TaskID string `json:"taskId,omitempty"`
}

// Store 幂等存储接口
type Store interface {
	// Check 查询键是否已被处理过
	Check(ctx context.Context, userID, key string) (Result, error)

	// Set 记录键与已创建任务的对应关系（带 TTL）
	Set(ctx context.Context, userID, key, taskID string) error

	// Remove 显式失效（清理或强制重跑时使用）
	Remove(ctx context.Context, userID, key string) error
}
