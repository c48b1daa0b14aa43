package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"ai-tasks/internal/shared/queue"
)

func getTestRedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func setupTestStore(t *testing.T) *Store {
	store, err := NewStore(getTestRedisAddr(), "", 1, "test", "") // 使用 DB 1 进行测试
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return store
}

func testJob(taskID, userID string, priority int) *queue.Job {
	return &queue.Job{
		TaskID:      taskID,
		UserID:      userID,
		ToolID:      "tool-1",
		ToolSlug:    "openai",
		InputParams: json.RawMessage(`{"prompt":"hello"}`),
		Priority:    priority,
	}
}

func TestQueue_SubmitAndGet(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	// 清理测试数据
	store.client.FlushDB(ctx)

	q, err := store.Get(ctx, "openai")
	if err != nil {
		t.Fatalf("Get queue failed: %v", err)
	}
	if q.Name() != "test_openai" {
		t.Errorf("queue name = %s, want test_openai", q.Name())
	}

	taskID, err := q.Submit(ctx, testJob("task-sub-1", "user-1", queue.PriorityNormal))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if taskID != "task-sub-1" {
		t.Errorf("taskID = %s, want task-sub-1", taskID)
	}

	snap, err := q.Get(ctx, "task-sub-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if snap == nil {
		t.Fatal("Get returned nil for submitted job")
	}
	if snap.State != queue.StateWaiting {
		t.Errorf("State = %s, want waiting", snap.State)
	}
	if snap.Data == nil || snap.Data.UserID != "user-1" {
		t.Error("job payload not round-tripped")
	}

	// 不存在的任务返回 (nil, nil)
	snap, err = q.Get(ctx, "no-such-task")
	if err != nil {
		t.Fatalf("Get missing failed: %v", err)
	}
	if snap != nil {
		t.Error("Get should return nil for missing job")
	}
}

func TestQueue_DuplicateSubmit(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	first, err := q.Submit(ctx, testJob("task-dup-1", "user-1", queue.PriorityNormal))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// 同一 taskId 重复提交：返回已有任务，不重复入队
	second, err := q.Submit(ctx, testJob("task-dup-1", "user-1", queue.PriorityNormal))
	if err != nil {
		t.Fatalf("duplicate Submit failed: %v", err)
	}
	if first != second {
		t.Errorf("duplicate submit returned %s, want %s", second, first)
	}

	counts, _ := q.Counts(ctx)
	if counts[queue.StateWaiting] != 1 {
		t.Errorf("waiting count = %d, want 1", counts[queue.StateWaiting])
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	// 低优先级先到，高优先级后到
	if _, err := q.Submit(ctx, testJob("task-normal", "user-1", queue.PriorityNormal)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := q.Submit(ctx, testJob("task-urgent", "user-1", queue.PriorityUrgent)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap, err := q.Dequeue(ctx, 0)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if snap == nil || snap.TaskID != "task-urgent" {
		t.Fatalf("first dequeue = %v, want task-urgent", snap)
	}
	if snap.State != queue.StateActive {
		t.Errorf("dequeued state = %s, want active", snap.State)
	}

	snap, _ = q.Dequeue(ctx, 0)
	if snap == nil || snap.TaskID != "task-normal" {
		t.Fatalf("second dequeue = %v, want task-normal", snap)
	}

	// 队列已空
	snap, err = q.Dequeue(ctx, 0)
	if err != nil {
		t.Fatalf("Dequeue empty failed: %v", err)
	}
	if snap != nil {
		t.Errorf("Dequeue on empty queue = %v, want nil", snap)
	}
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	for _, id := range []string{"task-a", "task-b", "task-c"} {
		if _, err := q.Submit(ctx, testJob(id, "user-1", queue.PriorityHigh)); err != nil {
			t.Fatalf("Submit %s failed: %v", id, err)
		}
	}

	for _, want := range []string{"task-a", "task-b", "task-c"} {
		snap, err := q.Dequeue(ctx, 0)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if snap == nil || snap.TaskID != want {
			t.Fatalf("dequeue = %v, want %s", snap, want)
		}
	}
}

func TestQueue_CompleteAndFail(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	q.Submit(ctx, testJob("task-ok", "user-1", queue.PriorityNormal))
	q.Submit(ctx, testJob("task-bad", "user-1", queue.PriorityNormal))

	s1, _ := q.Dequeue(ctx, 0)
	s2, _ := q.Dequeue(ctx, 0)
	if s1 == nil || s2 == nil {
		t.Fatal("expected two active jobs")
	}

	result := &queue.JobResult{Success: true, OutputData: json.RawMessage(`{"url":"https://example.com/a.png"}`)}
	if err := q.Complete(ctx, "task-ok", result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := q.Fail(ctx, "task-bad", "provider timeout"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	snap, _ := q.Get(ctx, "task-ok")
	if snap.State != queue.StateCompleted {
		t.Errorf("task-ok state = %s, want completed", snap.State)
	}
	if snap.Result == nil || !snap.Result.Success {
		t.Error("completed job should carry result")
	}
	if snap.FinishedAt.IsZero() {
		t.Error("completed job should have finishedAt")
	}

	snap, _ = q.Get(ctx, "task-bad")
	if snap.State != queue.StateFailed {
		t.Errorf("task-bad state = %s, want failed", snap.State)
	}
	if snap.FailedReason != "provider timeout" {
		t.Errorf("failedReason = %s", snap.FailedReason)
	}

	counts, _ := q.Counts(ctx)
	if counts[queue.StateActive] != 0 {
		t.Errorf("active count = %d, want 0", counts[queue.StateActive])
	}
	if counts[queue.StateCompleted] != 1 || counts[queue.StateFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestQueue_Retry(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	q.Submit(ctx, testJob("task-retry", "user-1", queue.PriorityNormal))
	q.Dequeue(ctx, 0)
	q.Fail(ctx, "task-retry", "provider timeout")

	retried, err := q.Retry(ctx, "task-retry")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if !retried {
		t.Fatal("Retry should return true for failed job")
	}

	snap, _ := q.Get(ctx, "task-retry")
	if snap.State != queue.StateWaiting {
		t.Errorf("retried state = %s, want waiting", snap.State)
	}
	if snap.Progress != 0 {
		t.Errorf("retried progress = %d, want 0", snap.Progress)
	}
	if snap.FailedReason != "" {
		t.Error("retried job should clear failedReason")
	}

	// 重试后可再次消费，attempts 累计
	snap, _ = q.Dequeue(ctx, 0)
	if snap == nil || snap.TaskID != "task-retry" {
		t.Fatal("retried job should be dequeuable")
	}
	if snap.Attempts < 2 {
		t.Errorf("attempts = %d, want >= 2", snap.Attempts)
	}

	// 不在失败集合中的任务：no-op
	retried, err = q.Retry(ctx, "no-such-task")
	if err != nil {
		t.Fatalf("Retry missing failed: %v", err)
	}
	if retried {
		t.Error("Retry should return false for missing job")
	}
}

func TestQueue_Remove(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	q.Submit(ctx, testJob("task-rm", "user-1", queue.PriorityNormal))

	removed, err := q.Remove(ctx, "task-rm")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("Remove should return true")
	}

	snap, _ := q.Get(ctx, "task-rm")
	if snap != nil {
		t.Error("removed job should be gone")
	}

	removed, _ = q.Remove(ctx, "task-rm")
	if removed {
		t.Error("Remove should return false the second time")
	}
}

func TestQueue_DelayedJob(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	job := testJob("task-delayed", "user-1", queue.PriorityUrgent)
	job.Delay = 300 * time.Millisecond
	q.Submit(ctx, job)

	// 延迟期内不可消费
	snap, err := q.Dequeue(ctx, 0)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if snap != nil {
		t.Fatalf("delayed job dequeued early: %v", snap.TaskID)
	}

	counts, _ := q.Counts(ctx)
	if counts[queue.StateDelayed] != 1 {
		t.Errorf("delayed count = %d, want 1", counts[queue.StateDelayed])
	}

	// 到期后提升为 waiting 并可消费
	time.Sleep(400 * time.Millisecond)
	snap, err = q.Dequeue(ctx, 0)
	if err != nil {
		t.Fatalf("Dequeue after delay failed: %v", err)
	}
	if snap == nil || snap.TaskID != "task-delayed" {
		t.Fatalf("dequeue after delay = %v, want task-delayed", snap)
	}
}

func TestQueue_UpdateProgress(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	q.Submit(ctx, testJob("task-prog", "user-1", queue.PriorityNormal))
	q.Dequeue(ctx, 0)

	if err := q.UpdateProgress(ctx, "task-prog", 42); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	snap, _ := q.Get(ctx, "task-prog")
	if snap.Progress != 42 {
		t.Errorf("progress = %d, want 42", snap.Progress)
	}

	// 超界值钳制
	q.UpdateProgress(ctx, "task-prog", 150)
	snap, _ = q.Get(ctx, "task-prog")
	if snap.Progress != 100 {
		t.Errorf("progress = %d, want 100", snap.Progress)
	}
}

func TestQueue_ListJobs(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	q.Submit(ctx, testJob("task-l1", "user-1", queue.PriorityNormal))
	q.Submit(ctx, testJob("task-l2", "user-1", queue.PriorityNormal))
	q.Dequeue(ctx, 0)

	waiting, err := q.ListJobs(ctx, []queue.JobState{queue.StateWaiting}, 0, 49)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(waiting) != 1 || waiting[0].TaskID != "task-l2" {
		t.Errorf("waiting jobs = %v", waiting)
	}

	all, err := q.ListJobs(ctx, nil, 0, 49)
	if err != nil {
		t.Fatalf("ListJobs all failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all jobs = %d, want 2", len(all))
	}
}

func TestQueue_Clean(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	q, _ := store.Get(ctx, "openai")

	q.Submit(ctx, testJob("task-c1", "user-1", queue.PriorityNormal))
	q.Dequeue(ctx, 0)
	q.Complete(ctx, "task-c1", &queue.JobResult{Success: true})

	// 宽限期 0：立即清除
	cleaned, err := q.Clean(ctx, 0, queue.StateCompleted)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if cleaned != 1 {
		t.Errorf("cleaned = %d, want 1", cleaned)
	}

	snap, _ := q.Get(ctx, "task-c1")
	if snap != nil {
		t.Error("cleaned job should be gone")
	}

	// 非终态清理拒绝
	if _, err := q.Clean(ctx, 0, queue.StateWaiting); err == nil {
		t.Error("Clean on non-terminal state should error")
	}
}

func TestStore_Discover(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()
	store.client.FlushDB(ctx)

	// 创建队列即写入元数据标记
	store.Get(ctx, "openai")
	store.Get(ctx, "stability")
	store.Get(ctx, "default")

	names, err := store.Discover(ctx)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("discovered %d queues, want 3: %v", len(names), names)
	}

	want := []string{"test_default", "test_openai", "test_stability"}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("names[%d] = %s, want %s", i, names[i], name)
		}
	}
}
