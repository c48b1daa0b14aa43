// Package pubsub 进度总线测试
package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChannelFor 频道命名规则
func TestChannelFor(t *testing.T) {
	assert.Equal(t, "task_updates:user-1", ChannelFor("user-1"))
}

// TestMemoryBus_PerUserChannel 消息只投递给所属用户的订阅者
func TestMemoryBus_PerUserChannel(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	var got1, got2 []*TaskUpdateMessage
	_, err := bus.Subscribe(ctx, "user-1", func(msg *TaskUpdateMessage) { got1 = append(got1, msg) })
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "user-2", func(msg *TaskUpdateMessage) { got2 = append(got2, msg) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, &TaskUpdateMessage{
		TaskID: "task-1", UserID: "user-1", Status: StatusProcessing, Progress: 50,
	}))

	require.Len(t, got1, 1)
	assert.Equal(t, "task-1", got1[0].TaskID)
	assert.Equal(t, StatusProcessing, got1[0].Status)
	assert.Empty(t, got2, "其他用户的订阅者不应收到消息")
}

// TestMemoryBus_MultipleSubscribers 同一用户的多个订阅者都收到消息
func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	count := 0
	for i := 0; i < 3; i++ {
		_, err := bus.Subscribe(ctx, "user-1", func(msg *TaskUpdateMessage) { count++ })
		require.NoError(t, err)
	}

	bus.Publish(ctx, &TaskUpdateMessage{TaskID: "task-1", UserID: "user-1", Status: StatusPending})
	assert.Equal(t, 3, count)
}

// TestMemoryBus_Unsubscribe 取消订阅后不再收到消息
func TestMemoryBus_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	count := 0
	unsubscribe, err := bus.Subscribe(ctx, "user-1", func(msg *TaskUpdateMessage) { count++ })
	require.NoError(t, err)

	bus.Publish(ctx, &TaskUpdateMessage{TaskID: "task-1", UserID: "user-1"})
	require.NoError(t, unsubscribe())
	bus.Publish(ctx, &TaskUpdateMessage{TaskID: "task-2", UserID: "user-1"})

	assert.Equal(t, 1, count)
}

// TestMemoryBus_NoSubscribers 无订阅者时发布不报错（fire-and-forget）
func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	err := bus.Publish(context.Background(), &TaskUpdateMessage{TaskID: "task-1", UserID: "nobody"})
	assert.NoError(t, err)
}
