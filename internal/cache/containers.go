package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/andresuchdata/triggerstore/internal/config"
	"github.com/redis/go-redis/v9"
)

const containerSetKeyPrefix = "storage:containers"

// ContainerRegistry remembers which containers have already been provisioned.
// Names are compared case-insensitively.
type ContainerRegistry interface {
	Contains(ctx context.Context, name string) (bool, error)
	Add(ctx context.Context, name string) error
}

type memoryContainerRegistry struct {
	names sync.Map
}

// NewMemoryContainerRegistry returns an empty process-local registry.
func NewMemoryContainerRegistry() ContainerRegistry {
	return &memoryContainerRegistry{}
}

func (r *memoryContainerRegistry) Contains(_ context.Context, name string) (bool, error) {
	_, ok := r.names.Load(strings.ToLower(name))
	return ok, nil
}

func (r *memoryContainerRegistry) Add(_ context.Context, name string) error {
	r.names.Store(strings.ToLower(name), struct{}{})
	return nil
}

// redisContainerRegistry shares the set between gateway replicas. The local
// set is consulted first, so a name seen by this process never hits Redis again.
type redisContainerRegistry struct {
	local  *memoryContainerRegistry
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewContainerRegistry returns a Redis-backed registry for account when the
// cache is enabled, and a process-local one otherwise.
func NewContainerRegistry(cfg config.CacheConfig, account string) (ContainerRegistry, error) {
	if !cfg.Enabled {
		return NewMemoryContainerRegistry(), nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisContainerRegistry{
		local:  &memoryContainerRegistry{},
		client: client,
		key:    containerSetKey(account),
		ttl:    ttl,
	}, nil
}

func containerSetKey(account string) string {
	return fmt.Sprintf("%s:%s", containerSetKeyPrefix, strings.ToLower(account))
}

func (r *redisContainerRegistry) Contains(ctx context.Context, name string) (bool, error) {
	name = strings.ToLower(name)
	if ok, _ := r.local.Contains(ctx, name); ok {
		return true, nil
	}

	ok, err := r.client.SIsMember(ctx, r.key, name).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember failed: %w", err)
	}
	if ok {
		_ = r.local.Add(ctx, name)
	}
	return ok, nil
}

func (r *redisContainerRegistry) Add(ctx context.Context, name string) error {
	name = strings.ToLower(name)
	_ = r.local.Add(ctx, name)

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.key, name)
	pipe.Expire(ctx, r.key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis sadd failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *redisContainerRegistry) Close() error {
	return r.client.Close()
}
