// Package redis 任务队列 Redis 实现
package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-tasks/internal/shared/queue"
)

// Store Redis 队列注册表
//
// 按带前缀的逻辑名缓存队列句柄；句柄延迟创建，
// 创建时写入元数据标记供队列发现扫描。
type Store struct {
	client     *redis.Client
	prefix     string
	tenant     string
	retention  queue.RetentionPolicy
	ownsClient bool

	mu     sync.Mutex
	queues map[string]*Queue
}

// NewStore 创建队列注册表
func NewStore(addr, password string, db int, prefix, tenant string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Queue] Connected to %s", addr)

	s := newStore(client, prefix, tenant)
	s.ownsClient = true
	return s, nil
}

// NewStoreFromClient 从现有 Redis 客户端创建队列注册表
func NewStoreFromClient(client *redis.Client, prefix, tenant string) *Store {
	return newStore(client, prefix, tenant)
}

func newStore(client *redis.Client, prefix, tenant string) *Store {
	return &Store{
		client:    client,
		prefix:    prefix,
		tenant:    tenant,
		retention: queue.DefaultRetention(),
		queues:    make(map[string]*Queue),
	}
}

// SetRetention 覆盖默认保留策略（对之后创建的队列句柄生效）
func (s *Store) SetRetention(p queue.RetentionPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = p
}

// Get 获取或创建队列句柄
func (s *Store) Get(ctx context.Context, base string) (queue.JobQueue, error) {
	name := queue.ResolveQueueName(s.prefix, base)

	s.mu.Lock()
	if q, ok := s.queues[name]; ok {
		s.mu.Unlock()
		return q, nil
	}
	retention := s.retention
	s.mu.Unlock()

	// 写入元数据标记（队列发现扫描此标记）
	err := s.client.HSet(ctx, queue.KeyMeta(name),
		"base", base,
		"prefix", s.prefix,
		"created_at", time.Now().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to register queue %s: %w", name, err)
	}

	q := &Queue{
		client:    s.client,
		name:      name,
		retention: retention,
	}

	s.mu.Lock()
	// 并发 Get 竞争时保留先到的句柄
	if existing, ok := s.queues[name]; ok {
		q = existing
	} else {
		s.queues[name] = q
		log.Printf("[Redis/Queue] Queue registered: %s", name)
	}
	s.mu.Unlock()

	return q, nil
}

// Discover 扫描 broker 键空间中的队列元数据标记
//
// 使用 SCAN 替代 KEYS，避免在键数量大时阻塞 Redis。
// 返回全部逻辑队列名，租户前缀的排最前，其余按字典序。
func (s *Store) Discover(ctx context.Context) ([]string, error) {
	pattern := queue.KeyQueuePrefix + "*" + queue.KeyMetaSuffix
	names := []string{}
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if name, ok := queue.QueueNameFromMetaKey(iter.Val()); ok {
			names = append(names, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to discover queues: %w", err)
	}

	queue.SortQueueNames(names, s.tenant)
	return names, nil
}

// Close 关闭注册表；仅关闭自有连接
func (s *Store) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

// 确保 Store 实现了 Registry 接口
var _ queue.Registry = (*Store)(nil)
