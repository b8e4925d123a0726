package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrOwnedElsewhere 作用域中的组件已被其他进程占用
var ErrOwnedElsewhere = errors.New("redis: component is owned by another process")

// Store 以 Redis 占用标记实现 di.Store
//
// 实例本身只保存在本进程内；Redis 中保存 <prefix>:<scopeID>:<name> -> owner 标记，
// SETNX 保证同一作用域上下文中的组件只在一个进程里创建
type Store struct {
	client redis.Cmdable
	prefix string
	owner  string
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]map[string]any
}

var _ di.Store = (*Store)(nil)

// NewStore 创建存储，owner 使用随机 uuid
func NewStore(client redis.Cmdable, prefix string, ttl time.Duration) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		owner:  uuid.New().String(),
		ttl:    ttl,
		local:  make(map[string]map[string]any),
	}
}

// Owner 本进程的占用标记值
func (s *Store) Owner() string {
	return s.owner
}

func (s *Store) key(scopeID, name string) string {
	return s.prefix + ":" + scopeID + ":" + name
}

func (s *Store) Load(_ context.Context, scopeID, name string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.local[scopeID][name]
	return inst, ok, nil
}

func (s *Store) StoreIfAbsent(ctx context.Context, scopeID, name string, instance any) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.local[scopeID][name]; ok {
		return existing, false, nil
	}

	key := s.key(scopeID, name)
	claimed, err := s.client.SetNX(ctx, key, s.owner, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	if !claimed {
		holder, err := s.client.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// 标记在两次调用之间过期，重新占用
			if claimed, err = s.client.SetNX(ctx, key, s.owner, s.ttl).Result(); err != nil {
				return nil, false, fmt.Errorf("redis: claim %s: %w", key, err)
			}
			if !claimed {
				return nil, false, fmt.Errorf("%w: %s", ErrOwnedElsewhere, key)
			}
		case err != nil:
			return nil, false, fmt.Errorf("redis: read claim %s: %w", key, err)
		case holder != s.owner:
			return nil, false, fmt.Errorf("%w: %s held by %s", ErrOwnedElsewhere, key, holder)
		}
	}

	if s.local[scopeID] == nil {
		s.local[scopeID] = make(map[string]any)
	}
	s.local[scopeID][name] = instance
	return instance, true, nil
}

// Drop 删除作用域上下文的全部占用标记和本地实例
func (s *Store) Drop(ctx context.Context, scopeID string) error {
	s.mu.Lock()
	delete(s.local, scopeID)
	s.mu.Unlock()

	pattern := s.prefix + ":" + scopeID + ":*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("redis: scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: delete claims: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Len 本进程持有实例的作用域上下文数量
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.local)
}

// NewScope 创建以该存储为后端的上下文作用域
func NewScope(name string, store *Store) *di.ContextualScope {
	return di.NewContextualScope(name, store)
}
