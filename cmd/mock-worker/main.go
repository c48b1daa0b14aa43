// Package main Mock Worker - 模拟任务执行进程
//
// 从指定队列消费任务，用可配置的成功率模拟提供商调用，
// 演练熔断、进度推送、终态回写与并发计数递减的完整链路。
// 用于本地联调与集成演示，不用于生产。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"ai-tasks/internal/config"
	"ai-tasks/internal/shared/breaker"
	"ai-tasks/internal/shared/infra"
	"ai-tasks/internal/shared/pubsub"
	"ai-tasks/internal/shared/queue"
)

var (
	queueBase   = flag.String("queue", queue.DefaultQueue, "queue base name to consume")
	successRate = flag.Float64("success-rate", 0.8, "simulated provider success rate (0.0-1.0)")
	workMillis  = flag.Int("work-ms", 2000, "simulated processing duration in milliseconds")
)

func main() {
	flag.Parse()
	cfg := config.Load()

	workerID := uuid.NewString()[:8]
	log.Printf("Starting Mock Worker %s... [env=%s queue=%s]", workerID, cfg.Env, *queueBase)

	redisInfra, err := infra.NewRedisInfra(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisInfra.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	q, err := redisInfra.Queue.Get(ctx, *queueBase)
	if err != nil {
		log.Fatalf("Failed to open queue: %v", err)
	}
	log.Printf("Worker %s consuming queue %s", workerID, q.Name())

	for ctx.Err() == nil {
		snap, err := q.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("Dequeue error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if snap == nil {
			continue
		}
		processJob(ctx, redisInfra, q, snap)
	}

	log.Println("Worker stopped")
}

// processJob 执行单个任务：熔断包裹模拟调用，推送进度，回写终态
func processJob(ctx context.Context, inf *infra.Infrastructure, q queue.JobQueue, snap *queue.JobSnapshot) {
	job := snap.Data
	if job == nil {
		log.Printf("Task %s has no payload, marking failed", snap.TaskID)
		q.Fail(ctx, snap.TaskID, "job payload missing")
		return
	}
	log.Printf("Processing task %s (priority=%d attempts=%d)", snap.TaskID, snap.Priority, snap.Attempts)

	publish(ctx, inf, job, pubsub.StatusProcessing, 0, "task started", nil, "")

	provider := job.ToolSlug
	if provider == "" {
		provider = queue.DefaultQueue
	}

	start := time.Now()
	var output json.RawMessage

	err := inf.Breaker.Execute(ctx, provider, func(ctx context.Context) error {
		// 分段睡眠模拟处理过程，按进度节点推送
		step := time.Duration(*workMillis) * time.Millisecond / 4
		for _, progress := range []int{25, 50, 75} {
			select {
			case <-time.After(step):
			case <-ctx.Done():
				return ctx.Err()
			}
			q.UpdateProgress(ctx, snap.TaskID, progress)
			publish(ctx, inf, job, pubsub.StatusProcessing, progress, "processing", nil, "")
		}

		if rand.Float64() >= *successRate {
			return errSimulatedProvider
		}

		output, _ = json.Marshal(map[string]interface{}{
			"echo":     json.RawMessage(job.InputParams),
			"provider": provider,
		})
		return nil
	})

	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			// 熔断快速失败：任务失败但不计入提供商失败（Execute 内部已处理）
			log.Printf("Task %s rejected, circuit open for provider %s", snap.TaskID, provider)
		}
		if failErr := q.Fail(ctx, snap.TaskID, err.Error()); failErr != nil {
			log.Printf("Failed to mark task %s failed: %v", snap.TaskID, failErr)
		}
		publish(ctx, inf, job, pubsub.StatusFailed, snap.Progress, "", nil, err.Error())
	} else {
		result := &queue.JobResult{Success: true, OutputData: output, Duration: elapsed}
		if compErr := q.Complete(ctx, snap.TaskID, result); compErr != nil {
			log.Printf("Failed to mark task %s completed: %v", snap.TaskID, compErr)
		}
		publish(ctx, inf, job, pubsub.StatusSuccess, 100, "task completed", output, "")
	}

	// 终态后释放用户并发名额
	if _, decErr := inf.Limiter.Decrement(ctx, job.UserID); decErr != nil {
		log.Printf("Failed to decrement concurrency for user %s: %v", job.UserID, decErr)
	}

	log.Printf("Task %s finished in %s (err=%v)", snap.TaskID, elapsed.Round(time.Millisecond), err)
}

func publish(ctx context.Context, inf *infra.Infrastructure, job *queue.Job, status pubsub.UpdateStatus, progress int, message string, output json.RawMessage, errMsg string) {
	if err := inf.Progress.Publish(ctx, &pubsub.TaskUpdateMessage{
		TaskID:     job.TaskID,
		UserID:     job.UserID,
		Status:     status,
		Progress:   progress,
		Message:    message,
		OutputData: output,
		Error:      errMsg,
	}); err != nil {
		log.Printf("Failed to publish progress for task %s: %v", job.TaskID, err)
	}
}

// errSimulatedProvider 模拟的提供商调用失败
var errSimulatedProvider = errors.New("simulated provider error")
