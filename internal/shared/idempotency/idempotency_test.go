// Package idempotency 幂等存储测试
package idempotency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDeriveKey_Deterministic 相同载荷派生相同键
func TestDeriveKey_Deterministic(t *testing.T) {
	payload := map[string]interface{}{"toolId": "tool-1", "prompt": "generate a cat"}

	k1 := DeriveKey(payload)
	k2 := DeriveKey(payload)

	require.NotEmpty(t, k1)
	assert.Equal(t, k1, k2)
}

// TestDeriveKey_DifferentPayloads 不同载荷派生不同键
func TestDeriveKey_DifferentPayloads(t *testing.T) {
	k1 := DeriveKey(map[string]string{"prompt": "generate a cat"})
	k2 := DeriveKey(map[string]string{"prompt": "generate a dog"})

	assert.NotEqual(t, k1, k2)
}

// TestDeriveKey_OrderSensitive 哈希对序列化字节顺序敏感
//
// map 的 JSON 序列化按键排序，字段顺序不同的等价 map 仍派生同一键；
// 但数组元素顺序不同则是不同载荷。
func TestDeriveKey_OrderSensitive(t *testing.T) {
	k1 := DeriveKey(map[string]string{"a": "1", "b": "2"})
	k2 := DeriveKey(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, k1, k2, "等价 map 应派生同一键")

	k3 := DeriveKey([]string{"a", "b"})
	k4 := DeriveKey([]string{"b", "a"})
	assert.NotEqual(t, k3, k4, "数组顺序不同是不同载荷")
}

// TestMemoryStore 检查/记录/失效全链路
func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// 未记录：不存在
	res, err := store.Check(ctx, "user-1", "key-a")
	require.NoError(t, err)
	assert.False(t, res.Exists)

	// 记录后：返回原任务
	require.NoError(t, store.Set(ctx, "user-1", "key-a", "task-123"))
	res, err = store.Check(ctx, "user-1", "key-a")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, "task-123", res.TaskID)

	// 键按用户隔离：另一个用户的同名键互不可见
	res, err = store.Check(ctx, "user-2", "key-a")
	require.NoError(t, err)
	assert.False(t, res.Exists, "幂等键应按用户隔离")

	// 失效后视为新请求
	require.NoError(t, store.Remove(ctx, "user-1", "key-a"))
	res, _ = store.Check(ctx, "user-1", "key-a")
	assert.False(t, res.Exists)
}
