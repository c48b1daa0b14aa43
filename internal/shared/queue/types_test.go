// Package queue 队列类型与命名规则测试
package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// 队列命名
// ============================================================================

// TestResolveQueueName 验证队列名解析是纯函数且前缀不丢失
func TestResolveQueueName(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		base   string
		want   string
	}{
		{"无前缀", "", "openai", "openai"},
		{"带前缀", "prod", "openai", "prod_openai"},
		{"空基础名回退默认队列", "prod", "", "prod_default"},
		{"无前缀空基础名", "", "", "default"},
		{"管理前缀", "admin", "default", "admin_default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveQueueName(tt.prefix, tt.base)
			assert.Equal(t, tt.want, got)
			// 纯函数：重复调用结果一致
			assert.Equal(t, got, ResolveQueueName(tt.prefix, tt.base))
		})
	}
}

// TestBaseFromResolved 验证逻辑名还原是 ResolveQueueName 的逆
func TestBaseFromResolved(t *testing.T) {
	assert.Equal(t, "openai", BaseFromResolved("prod", "prod_openai"))
	assert.Equal(t, "default", BaseFromResolved("admin", "admin_default"))

	// 不带该前缀的名称原样返回
	assert.Equal(t, "openai", BaseFromResolved("prod", "openai"))
	assert.Equal(t, "other_queue", BaseFromResolved("prod", "other_queue"))
	assert.Equal(t, "prod_openai", BaseFromResolved("", "prod_openai"))

	// 往返一致
	for _, base := range []string{"openai", "stability", "default"} {
		resolved := ResolveQueueName("prod", base)
		assert.Equal(t, base, BaseFromResolved("prod", resolved))
	}
}

// TestSortQueueNames 验证租户前缀的队列排最前，其余按字典序
func TestSortQueueNames(t *testing.T) {
	names := []string{"zeta", "default", "admin_default", "alpha", "admin_batch"}
	SortQueueNames(names, "admin")

	assert.Equal(t, []string{"admin_batch", "admin_default", "alpha", "default", "zeta"}, names)
}

// TestSortQueueNames_NoTenant 无租户前缀时纯字典序
func TestSortQueueNames_NoTenant(t *testing.T) {
	names := []string{"zeta", "default", "alpha"}
	SortQueueNames(names, "")

	assert.Equal(t, []string{"alpha", "default", "zeta"}, names)
}

// ============================================================================
// 优先级评分
// ============================================================================

// TestEncodeScore_PriorityBeatsArrival 高优先级任务先于所有低优先级任务，
// 无论到达顺序
func TestEncodeScore_PriorityBeatsArrival(t *testing.T) {
	// 低优先级先到，高优先级后到
	lowEarly := EncodeScore(PriorityNormal, 1)
	highLate := EncodeScore(PriorityUrgent, 1000000)

	assert.Less(t, highLate, lowEarly, "urgent 任务应排在 normal 任务之前")
}

// TestEncodeScore_FIFOWithinPriority 同优先级内按到达顺序
func TestEncodeScore_FIFOWithinPriority(t *testing.T) {
	first := EncodeScore(PriorityHigh, 100)
	second := EncodeScore(PriorityHigh, 101)

	assert.Less(t, first, second)
}

// TestDecodePriority 从评分还原优先级层
func TestDecodePriority(t *testing.T) {
	for _, p := range []int{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityAdmin, PriorityLow} {
		score := EncodeScore(p, 123456)
		assert.Equal(t, p, DecodePriority(score))
	}
}

// ============================================================================
// 任务校验
// ============================================================================

// TestJobValidate 提交前校验与优先级默认值
func TestJobValidate(t *testing.T) {
	valid := func() *Job {
		return &Job{
			TaskID:      "task-abc123",
			UserID:      "user-1",
			InputParams: json.RawMessage(`{"prompt":"hello"}`),
		}
	}

	t.Run("合法任务", func(t *testing.T) {
		job := valid()
		require.NoError(t, job.Validate())
		assert.Equal(t, PriorityNormal, job.Priority, "未指定优先级时应回落到 normal")
	})

	t.Run("缺少 taskId", func(t *testing.T) {
		job := valid()
		job.TaskID = ""
		assert.Error(t, job.Validate())
	})

	t.Run("缺少 userId", func(t *testing.T) {
		job := valid()
		job.UserID = ""
		assert.Error(t, job.Validate())
	})

	t.Run("缺少 inputParams", func(t *testing.T) {
		job := valid()
		job.InputParams = nil
		assert.Error(t, job.Validate())
	})

	t.Run("负优先级拒绝", func(t *testing.T) {
		job := valid()
		job.Priority = -1
		assert.Error(t, job.Validate())
	})

	t.Run("显式优先级保留", func(t *testing.T) {
		job := valid()
		job.Priority = PriorityUrgent
		require.NoError(t, job.Validate())
		assert.Equal(t, PriorityUrgent, job.Priority)
	})
}

// TestKeyBuilders 键命名规则
func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "queue:prod_openai:meta", KeyMeta("prod_openai"))

	name, ok := QueueNameFromMetaKey(KeyMeta("prod_openai"))
	require.True(t, ok)
	assert.Equal(t, "prod_openai", name)

	_, ok = QueueNameFromMetaKey("not:a:meta:key")
	assert.False(t, ok)
}

// TestDefaultRetention 默认保留策略：失败任务留得比成功任务久
func TestDefaultRetention(t *testing.T) {
	r := DefaultRetention()
	assert.Greater(t, r.FailedAge, r.CompletedAge)
	assert.Greater(t, r.FailedCount, r.CompletedCount)
}
