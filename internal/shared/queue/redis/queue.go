// Package redis 队列提交与消费操作
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

// Queue 单个逻辑队列的 Redis 句柄
//
// 键布局（q 为带前缀的逻辑名）：
//
//	queue:{q}:meta      队列元数据标记
//	queue:{q}:seq       FIFO 序号计数
//	queue:{q}:waiting   等待集合（score = 优先级<<40 | 序号）
//	queue:{q}:delayed   延迟集合（score = 就绪时间 ms）
//	queue:{q}:active    执行中集合（score = 领取时间 ms）
//	queue:{q}:completed 完成集合（score = 结束时间 ms）
//	queue:{q}:failed    失败集合（score = 结束时间 ms）
//	queue:{q}:job:{id}  任务数据哈希
type Queue struct {
	client    *redis.Client
	name      string
	retention queue.RetentionPolicy
}

// Name 返回带前缀的队列逻辑名
func (q *Queue) Name() string {
	return q.name
}

// Submit 提交任务
//
// taskId 同时作为 broker 级任务标识：HSetNX 保证重复提交同一
// taskId 不会二次入队（与幂等存储互为纵深防御），直接返回已有任务。
func (q *Queue) Submit(ctx context.Context, job *queue.Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	jobKey := queue.KeyJob(q.name, job.TaskID)

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %s: %w", job.TaskID, err)
	}

	created, err := q.client.HSetNX(ctx, jobKey, "data", data).Result()
	if err != nil {
		return "", fmt.Errorf("failed to submit job %s: %w", job.TaskID, err)
	}
	if !created {
		log.Printf("[Redis/Queue] Duplicate submit ignored: queue=%s task=%s", q.name, job.TaskID)
		return job.TaskID, nil
	}

	now := time.Now()
	state := queue.StateWaiting
	if job.Delay > 0 {
		state = queue.StateDelayed
	}

	seq, err := q.client.Incr(ctx, queue.KeySeq(q.name)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate sequence for job %s: %w", job.TaskID, err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey,
			"state", string(state),
			"priority", job.Priority,
			"progress", 0,
			"attempts", 0,
			"submitted_at", now.Format(time.RFC3339Nano),
		)
		if state == queue.StateDelayed {
			pipe.ZAdd(ctx, queue.KeyState(q.name, queue.StateDelayed), redis.Z{
				Score:  float64(now.Add(job.Delay).UnixMilli()),
				Member: job.TaskID,
			})
		} else {
			pipe.ZAdd(ctx, queue.KeyState(q.name, queue.StateWaiting), redis.Z{
				Score:  queue.EncodeScore(job.Priority, seq),
				Member: job.TaskID,
			})
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.TaskID, err)
	}

	log.Printf("[Redis/Queue] Job submitted: queue=%s task=%s priority=%d", q.name, job.TaskID, job.Priority)
	return job.TaskID, nil
}

// Dequeue 弹出优先级最高的等待任务并置为 active
//
// block > 0 时阻塞等待新任务（队列连接无读超时，允许无限等待）。
// 无任务返回 (nil, nil)。
func (q *Queue) Dequeue(ctx context.Context, block time.Duration) (*queue.JobSnapshot, error) {
	q.promoteDelayed(ctx)

	waitingKey := queue.KeyState(q.name, queue.StateWaiting)

	var taskID string
	if block > 0 {
		res, err := q.client.BZPopMin(ctx, block, waitingKey).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to dequeue from %s: %w", q.name, err)
		}
		taskID, _ = res.Member.(string)
	} else {
		zs, err := q.client.ZPopMin(ctx, waitingKey, 1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to dequeue from %s: %w", q.name, err)
		}
		if len(zs) == 0 {
			return nil, nil
		}
		taskID, _ = zs[0].Member.(string)
	}

	now := time.Now()
	jobKey := queue.KeyJob(q.name, taskID)

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, queue.KeyState(q.name, queue.StateActive), redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: taskID,
		})
		pipe.HSet(ctx, jobKey,
			"state", string(queue.StateActive),
			"started_at", now.Format(time.RFC3339Nano),
		)
		pipe.HIncrBy(ctx, jobKey, "attempts", 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate job %s: %w", taskID, err)
	}

	snap, err := q.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		// 弹出后任务被并发删除：视为"已消失"，无新任务
		log.Printf("[Redis/Queue] Dequeued job vanished: queue=%s task=%s", q.name, taskID)
		return nil, nil
	}
	return snap, nil
}

// Complete 标记任务完成
func (q *Queue) Complete(ctx context.Context, taskID string, result *queue.JobResult) error {
	now := time.Now()
	jobKey := queue.KeyJob(q.name, taskID)

	fields := []interface{}{
		"state", string(queue.StateCompleted),
		"progress", 100,
		"finished_at", now.Format(time.RFC3339Nano),
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result for job %s: %w", taskID, err)
		}
		fields = append(fields, "result", data)
	}

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, queue.KeyState(q.name, queue.StateActive), taskID)
		pipe.ZAdd(ctx, queue.KeyState(q.name, queue.StateCompleted), redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: taskID,
		})
		pipe.HSet(ctx, jobKey, fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", taskID, err)
	}

	q.trimTerminal(ctx, queue.StateCompleted, q.retention.CompletedCount, q.retention.CompletedAge)
	return nil
}

// Fail 标记任务失败
func (q *Queue) Fail(ctx context.Context, taskID, reason string) error {
	now := time.Now()
	jobKey := queue.KeyJob(q.name, taskID)

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, queue.KeyState(q.name, queue.StateActive), taskID)
		pipe.ZAdd(ctx, queue.KeyState(q.name, queue.StateFailed), redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: taskID,
		})
		pipe.HSet(ctx, jobKey,
			"state", string(queue.StateFailed),
			"failed_reason", reason,
			"finished_at", now.Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to fail job %s: %w", taskID, err)
	}

	log.Printf("[Redis/Queue] Job failed: queue=%s task=%s reason=%s", q.name, taskID, reason)
	q.trimTerminal(ctx, queue.StateFailed, q.retention.FailedCount, q.retention.FailedAge)
	return nil
}

// UpdateProgress 更新任务进度
func (q *Queue) UpdateProgress(ctx context.Context, taskID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	jobKey := queue.KeyJob(q.name, taskID)
	exists, err := q.client.Exists(ctx, jobKey).Result()
	if err != nil {
		return fmt.Errorf("failed to update progress for job %s: %w", taskID, err)
	}
	if exists == 0 {
		return nil
	}
	return q.client.HSet(ctx, jobKey, "progress", progress).Err()
}

// promoteDelayed 将到期的延迟任务移入等待集合（出队前调用，尽力而为）
func (q *Queue) promoteDelayed(ctx context.Context) {
	delayedKey := queue.KeyState(q.name, queue.StateDelayed)
	now := time.Now().UnixMilli()

	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return
	}

	for _, taskID := range due {
		jobKey := queue.KeyJob(q.name, taskID)
		priority, err := q.client.HGet(ctx, jobKey, "priority").Int()
		if err != nil {
			priority = queue.PriorityNormal
		}
		seq, err := q.client.Incr(ctx, queue.KeySeq(q.name)).Result()
		if err != nil {
			continue
		}
		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, delayedKey, taskID)
			pipe.ZAdd(ctx, queue.KeyState(q.name, queue.StateWaiting), redis.Z{
				Score:  queue.EncodeScore(priority, seq),
				Member: taskID,
			})
			pipe.HSet(ctx, jobKey, "state", string(queue.StateWaiting))
			return nil
		})
		if err != nil {
			log.Printf("[Redis/Queue] Failed to promote delayed job: queue=%s task=%s err=%v", q.name, taskID, err)
		}
	}
}

// trimTerminal 应用终态保留策略（条数与时长取更严格者，尽力而为）
func (q *Queue) trimTerminal(ctx context.Context, state queue.JobState, keep int, age time.Duration) {
	key := queue.KeyState(q.name, state)

	var victims []string

	cutoff := time.Now().Add(-age).UnixMilli()
	aged, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err == nil {
		victims = append(victims, aged...)
	}

	total, err := q.client.ZCard(ctx, key).Result()
	if err == nil && total > int64(keep) {
		overflow, err := q.client.ZRange(ctx, key, 0, total-int64(keep)-1).Result()
		if err == nil {
			victims = append(victims, overflow...)
		}
	}

	if len(victims) == 0 {
		return
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, taskID := range victims {
			pipe.ZRem(ctx, key, taskID)
			pipe.Del(ctx, queue.KeyJob(q.name, taskID))
		}
		return nil
	})
	if err != nil {
		log.Printf("[Redis/Queue] Retention trim failed: queue=%s state=%s err=%v", q.name, state, err)
	}
}

// 确保 Queue 实现了 JobQueue 接口
var _ queue.JobQueue = (*Queue)(nil)
