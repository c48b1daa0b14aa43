// Package queue 任务队列 mock 实现
package queue

import (
	"context"
	"time"
)

// ============================================================================
// NoOpRegistry - 空操作的 Registry 实现（用于测试）
// ============================================================================

// NoOpRegistry 是一个不做任何操作的 Registry 实现
type NoOpRegistry struct{}

// NewNoOpRegistry 创建 NoOpRegistry 实例
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) Get(ctx context.Context, base string) (JobQueue, error) {
	return &NoOpQueue{name: ResolveQueueName("", base)}, nil
}

func (r *NoOpRegistry) Discover(ctx context.Context) ([]string, error) {
	return []string{}, nil
}

func (r *NoOpRegistry) Close() error {
	return nil
}

// ============================================================================
// NoOpQueue - 空操作的 JobQueue 实现（用于测试）
// ============================================================================

// NoOpQueue 是一个不做任何操作的 JobQueue 实现
type NoOpQueue struct {
	name string
}

func (q *NoOpQueue) Name() string {
	return q.name
}

func (q *NoOpQueue) Submit(ctx context.Context, job *Job) (string, error) {
	return job.TaskID, nil
}

func (q *NoOpQueue) Dequeue(ctx context.Context, block time.Duration) (*JobSnapshot, error) {
	return nil, nil
}

func (q *NoOpQueue) Complete(ctx context.Context, taskID string, result *JobResult) error {
	return nil
}

func (q *NoOpQueue) Fail(ctx context.Context, taskID, reason string) error {
	return nil
}

func (q *NoOpQueue) UpdateProgress(ctx context.Context, taskID string, progress int) error {
	return nil
}

func (q *NoOpQueue) Retry(ctx context.Context, taskID string) (bool, error) {
	return false, nil
}

func (q *NoOpQueue) Remove(ctx context.Context, taskID string) (bool, error) {
	return false, nil
}

func (q *NoOpQueue) Get(ctx context.Context, taskID string) (*JobSnapshot, error) {
	return nil, nil
}

func (q *NoOpQueue) ListJobs(ctx context.Context, states []JobState, start, end int64) ([]*JobSnapshot, error) {
	return []*JobSnapshot{}, nil
}

func (q *NoOpQueue) Counts(ctx context.Context) (map[JobState]int64, error) {
	return map[JobState]int64{}, nil
}

func (q *NoOpQueue) Clean(ctx context.Context, grace time.Duration, state JobState) (int64, error) {
	return 0, nil
}

// 确保 NoOp 实现满足接口
var (
	_ Registry = (*NoOpRegistry)(nil)
	_ JobQueue = (*NoOpQueue)(nil)
)
