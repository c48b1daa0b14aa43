// Package limiter 并发限制测试
package limiter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryLimiter_CheckBoundary 到达上限的边界判定
func TestMemoryLimiter_CheckBoundary(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	// 计数 0..4：放行；计数 5：拒绝
	for i := 0; i < 5; i++ {
		status, err := l.Check(ctx, "user-1", 5)
		require.NoError(t, err)
		assert.True(t, status.Allowed, "计数 %d 应放行", i)
		assert.Equal(t, int64(i), status.Current)

		l.Increment(ctx, "user-1")
	}

	status, err := l.Check(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.False(t, status.Allowed, "计数达到上限应拒绝")
	assert.Equal(t, int64(5), status.Current)
	assert.Equal(t, int64(5), status.Max)
}

// TestMemoryLimiter_DecrementClamped 递减下限钳制为 0
func TestMemoryLimiter_DecrementClamped(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	// 从未递增过的用户递减不产生负计数
	n, err := l.Decrement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	l.Increment(ctx, "user-1")
	l.Decrement(ctx, "user-1")
	l.Decrement(ctx, "user-1")

	status, _ := l.Check(ctx, "user-1", 5)
	assert.Equal(t, int64(0), status.Current, "重复递减不应出现负计数")
}

// TestMemoryLimiter_UserIsolation 用户之间计数隔离
func TestMemoryLimiter_UserIsolation(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	l.Increment(ctx, "user-1")
	l.Increment(ctx, "user-1")

	status, _ := l.Check(ctx, "user-2", 5)
	assert.Equal(t, int64(0), status.Current)
}

// TestMemoryLimiter_DefaultMax 非法上限回落到默认值
func TestMemoryLimiter_DefaultMax(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	status, err := l.Check(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxConcurrent), status.Max)
}
