package di

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type scopeIDKey struct{}

// WithScopeID 将上下文作用域 id 绑定到 ctx。
func WithScopeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scopeIDKey{}, id)
}

// NewScopeContext 生成新的作用域 id 并绑定到 ctx。
func NewScopeContext(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithScopeID(ctx, id), id
}

// ScopeID 取出 ctx 上的作用域 id。
func ScopeID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scopeIDKey{}).(string)
	return id, ok && id != ""
}

// Store 上下文作用域的外部存储，key 由作用域 id 与组件名共同决定。
type Store interface {
	// Load 读取实例，不存在时返回 false。
	Load(ctx context.Context, scopeID, name string) (any, bool, error)
	// StoreIfAbsent 条件写入：已存在时返回已有实例和 false。
	StoreIfAbsent(ctx context.Context, scopeID, name string, instance any) (any, bool, error)
	// Drop 删除某个作用域 id 下的所有实例。
	Drop(ctx context.Context, scopeID string) error
}

// ContextualScope 把实例交给外部 Store，销毁由外部上下文的结束事件触发（End）。
type ContextualScope struct {
	name  string
	store Store

	mu        sync.Mutex
	callbacks map[string][]namedCallback
}

type namedCallback struct {
	name string
	fn   func() error
}

// NewContextualScope 创建上下文作用域，name 仅用于错误信息。
func NewContextualScope(name string, store Store) *ContextualScope {
	return &ContextualScope{
		name:      name,
		store:     store,
		callbacks: make(map[string][]namedCallback),
	}
}

func (s *ContextualScope) scopeID(ctx context.Context) (string, error) {
	id, ok := ScopeID(ctx)
	if !ok {
		return "", fmt.Errorf("di: scope '%s' is not active: context carries no scope id", s.name)
	}
	return id, nil
}

func (s *ContextualScope) Get(ctx context.Context, name string, factory ObjectFactory) (any, error) {
	id, err := s.scopeID(ctx)
	if err != nil {
		return nil, err
	}

	inst, ok, err := s.store.Load(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("di: scope '%s' load '%s': %w", s.name, name, err)
	}
	if ok {
		return inst, nil
	}

	created, err := factory()
	if err != nil {
		return nil, err
	}

	actual, stored, err := s.store.StoreIfAbsent(ctx, id, name, created)
	if err != nil {
		return nil, fmt.Errorf("di: scope '%s' store '%s': %w", s.name, name, err)
	}
	if !stored {
		// 并发竞争失败，调用方负责销毁 created
		return actual, nil
	}
	return created, nil
}

func (s *ContextualScope) RegisterDestructionCallback(ctx context.Context, name string, callback func() error) error {
	id, err := s.scopeID(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[id] = append(s.callbacks[id], namedCallback{name: name, fn: callback})
	return nil
}

// End 结束一个作用域上下文：按创建逆序执行销毁回调，并清空存储。
func (s *ContextualScope) End(ctx context.Context, id string) error {
	s.mu.Lock()
	callbacks := s.callbacks[id]
	delete(s.callbacks, id)
	s.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := callbacks[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("di: destroying '%s' in scope '%s': %w", callbacks[i].name, s.name, err))
		}
	}
	if err := s.store.Drop(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("di: scope '%s' drop %s: %w", s.name, id, err))
	}
	return errors.Join(errs...)
}

// Active 返回仍有销毁回调未执行的作用域 id 数量。
func (s *ContextualScope) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

// MemoryStore 进程内存储。
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

// NewMemoryStore 创建进程内存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]any)}
}

func (m *MemoryStore) Load(_ context.Context, scopeID, name string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.data[scopeID][name]
	return inst, ok, nil
}

func (m *MemoryStore) StoreIfAbsent(_ context.Context, scopeID, name string, instance any) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[scopeID]
	if !ok {
		bucket = make(map[string]any)
		m.data[scopeID] = bucket
	}
	if existing, ok := bucket[name]; ok {
		return existing, false, nil
	}
	bucket[name] = instance
	return instance, true, nil
}

func (m *MemoryStore) Drop(_ context.Context, scopeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, scopeID)
	return nil
}
