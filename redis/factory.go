package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisClientFactory Redis 客户端工厂
type RedisClientFactory struct {
	clients map[string]*redis.Client
	mu      sync.RWMutex
}

// NewRedisClientFactory 创建客户端工厂
func NewRedisClientFactory() *RedisClientFactory {
	return &RedisClientFactory{
		clients: make(map[string]*redis.Client),
	}
}

// Register 注册 Redis 客户端
func (f *RedisClientFactory) Register(opts RedisClientOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.clients[opts.Name]; exists {
		return fmt.Errorf("redis client '%s' already registered", opts.Name)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
	})

	if !opts.SkipPing {
		ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	f.clients[opts.Name] = client
	return nil
}

// Get 获取指定名称的 Redis 客户端
func (f *RedisClientFactory) Get(name string) (*redis.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	client, exists := f.clients[name]
	if !exists {
		return nil, fmt.Errorf("redis client '%s' not found", name)
	}
	return client, nil
}

// Each 按名称顺序遍历所有客户端
func (f *RedisClientFactory) Each(fn func(name string, client *redis.Client)) {
	f.mu.RLock()
	names := make([]string, 0, len(f.clients))
	for name := range f.clients {
		names = append(names, name)
	}
	f.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		f.mu.RLock()
		client := f.clients[name]
		f.mu.RUnlock()
		fn(name, client)
	}
}

// Close 关闭所有 Redis 客户端
func (f *RedisClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, client := range f.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}
	f.clients = make(map[string]*redis.Client)
	return errors.Join(errs...)
}
