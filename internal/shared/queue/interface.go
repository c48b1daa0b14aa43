// Package queue 任务队列抽象接口
//
// 提供按提供商分队列的任务提交与消费能力，当前由 Redis 实现。
package queue

import (
	"context"
	"time"
)

// ============================================================================
// 队列接口定义
// ============================================================================

// JobQueue 单个逻辑队列的操作接口
type JobQueue interface {
	// Name 返回带前缀的队列逻辑名
	Name() string

	// Submit 提交任务；taskId 同时作为 broker 级任务标识，
	// 重复提交同一 taskId 返回已有任务而不重复入队
	Submit(ctx context.Context, job *Job) (string, error)

	// Dequeue 弹出优先级最高（数值最小）的等待任务并置为 active；
	// block > 0 时阻塞等待新任务；无任务返回 (nil, nil)
	Dequeue(ctx context.Context, block time.Duration) (*JobSnapshot, error)

	// Complete / Fail 将 active 任务移入终态并应用保留策略
	Complete(ctx context.Context, taskID string, result *JobResult) error
	Fail(ctx context.Context, taskID, reason string) error

	// UpdateProgress 更新任务进度（0-100）
	UpdateProgress(ctx context.Context, taskID string, progress int) error

	// Retry 将失败任务重新入队；任务不存在返回 (false, nil)
	Retry(ctx context.Context, taskID string) (bool, error)

	// Remove 删除任意状态的任务；任务不存在返回 (false, nil)
	Remove(ctx context.Context, taskID string) (bool, error)

	// Get 获取单个任务快照；不存在返回 (nil, nil)
	Get(ctx context.Context, taskID string) (*JobSnapshot, error)

	// ListJobs 按状态分页列出任务快照
	ListJobs(ctx context.Context, states []JobState, start, end int64) ([]*JobSnapshot, error)

	// Counts 各状态任务数
	Counts(ctx context.Context) (map[JobState]int64, error)

	// Clean 清除早于宽限期的终态任务，返回清除数量
	Clean(ctx context.Context, grace time.Duration, state JobState) (int64, error)
}

// Registry 队列注册表接口
//
// 将逻辑队列名（提供商 slug 或 "default"）加环境前缀映射到
// 延迟创建的队列句柄；句柄缓存复用。
type Registry interface {
	// Get 获取或创建队列句柄；base 为提供商 slug 或 "default"
	Get(ctx context.Context, base string) (JobQueue, error)

	// Discover 扫描 broker 键空间中的队列元数据标记，
	// 返回全部逻辑队列名（租户前缀的排最前，其余按字典序）
	Discover(ctx context.Context) ([]string, error)

	Close() error
}
