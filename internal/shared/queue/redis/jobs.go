// Package redis 任务生命周期运维操作
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-tasks/internal/shared/queue"
)

// allStates 快照列表的状态遍历顺序
var allStates = []queue.JobState{
	queue.StateWaiting,
	queue.StateActive,
	queue.StateCompleted,
	queue.StateFailed,
	queue.StateDelayed,
}

// Get 获取单个任务快照；不存在返回 (nil, nil)
func (q *Queue) Get(ctx context.Context, taskID string) (*queue.JobSnapshot, error) {
	fields, err := q.client.HGetAll(ctx, queue.KeyJob(q.name, taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", taskID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return q.snapshotFromHash(taskID, fields), nil
}

// Retry 将失败任务重新入队
//
// 任务不存在（或已被并发删除/重试）返回 (false, nil)：
// "已不存在" 是重试/删除竞争下的正常结果，不作为错误。
func (q *Queue) Retry(ctx context.Context, taskID string) (bool, error) {
	removed, err := q.client.ZRem(ctx, queue.KeyState(q.name, queue.StateFailed), taskID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to retry job %s: %w", taskID, err)
	}
	if removed == 0 {
		return false, nil
	}

	jobKey := queue.KeyJob(q.name, taskID)
	priority, err := q.client.HGet(ctx, jobKey, "priority").Int()
	if err != nil {
		priority = queue.PriorityNormal
	}

	seq, err := q.client.Incr(ctx, queue.KeySeq(q.name)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to retry job %s: %w", taskID, err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey,
			"state", string(queue.StateWaiting),
			"progress", 0,
		)
		pipe.HDel(ctx, jobKey, "failed_reason", "finished_at", "result")
		pipe.ZAdd(ctx, queue.KeyState(q.name, queue.StateWaiting), redis.Z{
			Score:  queue.EncodeScore(priority, seq),
			Member: taskID,
		})
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to retry job %s: %w", taskID, err)
	}

	log.Printf("[Redis/Queue] Job retried: queue=%s task=%s", q.name, taskID)
	return true, nil
}

// Remove 删除任意状态的任务（取消原语）
//
// 任务不存在返回 (false, nil)。
func (q *Queue) Remove(ctx context.Context, taskID string) (bool, error) {
	var del *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, state := range allStates {
			pipe.ZRem(ctx, queue.KeyState(q.name, state), taskID)
		}
		del = pipe.Del(ctx, queue.KeyJob(q.name, taskID))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove job %s: %w", taskID, err)
	}

	if del.Val() == 0 {
		return false, nil
	}

	log.Printf("[Redis/Queue] Job removed: queue=%s task=%s", q.name, taskID)
	return true, nil
}

// ListJobs 按状态分页列出任务快照
//
// 分页范围在每个状态集合内独立应用；等待/延迟按消费顺序，
// 其余状态按时间倒序（最近的在前）。
func (q *Queue) ListJobs(ctx context.Context, states []queue.JobState, start, end int64) ([]*queue.JobSnapshot, error) {
	if len(states) == 0 {
		states = allStates
	}

	snapshots := []*queue.JobSnapshot{}
	for _, state := range states {
		key := queue.KeyState(q.name, state)

		var ids []string
		var err error
		switch state {
		case queue.StateWaiting, queue.StateDelayed:
			ids, err = q.client.ZRange(ctx, key, start, end).Result()
		default:
			ids, err = q.client.ZRevRange(ctx, key, start, end).Result()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s jobs: %w", state, err)
		}

		for _, taskID := range ids {
			snap, err := q.Get(ctx, taskID)
			if err != nil {
				return nil, err
			}
			if snap != nil {
				snapshots = append(snapshots, snap)
			}
		}
	}

	return snapshots, nil
}

// Counts 各状态任务数
func (q *Queue) Counts(ctx context.Context) (map[queue.JobState]int64, error) {
	cmds := make(map[queue.JobState]*redis.IntCmd, len(allStates))
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, state := range allStates {
			cmds[state] = pipe.ZCard(ctx, queue.KeyState(q.name, state))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs in %s: %w", q.name, err)
	}

	counts := make(map[queue.JobState]int64, len(allStates))
	for state, cmd := range cmds {
		counts[state] = cmd.Val()
	}
	return counts, nil
}

// Clean 清除早于宽限期的终态任务
func (q *Queue) Clean(ctx context.Context, grace time.Duration, state queue.JobState) (int64, error) {
	if state != queue.StateCompleted && state != queue.StateFailed {
		return 0, fmt.Errorf("clean supports terminal states only, got %q", state)
	}

	key := queue.KeyState(q.name, state)
	cutoff := time.Now().Add(-grace).UnixMilli()

	victims, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to clean %s jobs: %w", state, err)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, taskID := range victims {
			pipe.ZRem(ctx, key, taskID)
			pipe.Del(ctx, queue.KeyJob(q.name, taskID))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean %s jobs: %w", state, err)
	}

	log.Printf("[Redis/Queue] Cleaned jobs: queue=%s state=%s count=%d", q.name, state, len(victims))
	return int64(len(victims)), nil
}

// snapshotFromHash 从任务哈希构建快照
func (q *Queue) snapshotFromHash(taskID string, fields map[string]string) *queue.JobSnapshot {
	snap := &queue.JobSnapshot{
		TaskID: taskID,
		Queue:  q.name,
		State:  queue.JobState(fields["state"]),
	}

	if v, ok := fields["priority"]; ok {
		snap.Priority, _ = strconv.Atoi(v)
	}
	if v, ok := fields["progress"]; ok {
		snap.Progress, _ = strconv.Atoi(v)
	}
	if v, ok := fields["attempts"]; ok {
		snap.Attempts, _ = strconv.Atoi(v)
	}
	snap.FailedReason = fields["failed_reason"]

	if v, ok := fields["data"]; ok {
		var job queue.Job
		if err := json.Unmarshal([]byte(v), &job); err == nil {
			snap.Data = &job
		}
	}
	if v, ok := fields["result"]; ok {
		var result queue.JobResult
		if err := json.Unmarshal([]byte(v), &result); err == nil {
			snap.Result = &result
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, fields["submitted_at"]); err == nil {
		snap.SubmittedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["started_at"]); err == nil {
		snap.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["finished_at"]); err == nil {
		snap.FinishedAt = t
	}

	return snap
}
