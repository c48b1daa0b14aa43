// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"ai-tasks/internal/config"
	"ai-tasks/internal/shared/breaker"
	breakerredis "ai-tasks/internal/shared/breaker/redis"
	"ai-tasks/internal/shared/connmgr"
	idemredis "ai-tasks/internal/shared/idempotency/redis"
	limiterredis "ai-tasks/internal/shared/limiter/redis"
	pubsubredis "ai-tasks/internal/shared/pubsub/redis"
	queueredis "ai-tasks/internal/shared/queue/redis"
)

// NewRedisInfra 按配置创建 Redis 基础设施
//
// 连接按用途拆分：队列操作、发布/订阅、通用缓存各自独立，
// 订阅连接绝不与队列连接共用。
func NewRedisInfra(cfg *config.Config) (*Infrastructure, error) {
	manager := connmgr.NewManager(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	queueClient, err := manager.Get(ctx, connmgr.PurposeQueue)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to init queue connection: %w", err)
	}

	pubsubClient, err := manager.Get(ctx, connmgr.PurposePubSub)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to init pubsub connection: %w", err)
	}

	cacheClient, err := manager.Get(ctx, connmgr.PurposeCache)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to init cache connection: %w", err)
	}

	settings := breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		StateTTL:         cfg.Breaker.StateTTL,
	}

	log.Printf("[Redis/Infra] Infrastructure ready: env=%s prefix=%q", cfg.Env, cfg.Queue.Prefix)

	return &Infrastructure{
		Queue:       queueredis.NewStoreFromClient(queueClient, cfg.Queue.Prefix, cfg.Queue.Tenant),
		Breaker:     breakerredis.NewStoreFromClient(cacheClient, settings),
		Limiter:     limiterredis.NewStoreFromClient(cacheClient),
		Idempotency: idemredis.NewStoreFromClient(cacheClient),
		Progress:    pubsubredis.NewStoreFromClient(pubsubClient),
		closer:      manager.Close,
	}, nil
}
