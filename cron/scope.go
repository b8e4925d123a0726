package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// RefreshScope 缓存实例直到下一次刷新；刷新按创建逆序销毁全部实例，之后的查找重新创建
type RefreshScope struct {
	name   string
	logger logging.Logger

	mu         sync.Mutex
	instances  map[string]any
	order      []string
	callbacks  map[string]func() error
	generation uint64
	listeners  []func(generation uint64)
}

var (
	_ di.Scope     = (*RefreshScope)(nil)
	_ di.Destroyer = (*RefreshScope)(nil)
)

// NewRefreshScope 创建刷新作用域
func NewRefreshScope(name string, logger logging.Logger) *RefreshScope {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RefreshScope{
		name:      name,
		logger:    logger,
		instances: make(map[string]any),
		callbacks: make(map[string]func() error),
	}
}

// Name 作用域名称
func (s *RefreshScope) Name() string {
	return s.name
}

func (s *RefreshScope) Get(_ context.Context, name string, factory di.ObjectFactory) (any, error) {
	s.mu.Lock()
	if inst, ok := s.instances[name]; ok {
		s.mu.Unlock()
		return inst, nil
	}
	s.mu.Unlock()

	// factory 可能在本作用域中解析其他组件，不能持锁调用
	created, err := factory()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.instances[name]; ok {
		// 并发创建时保留先写入的实例，容器销毁 created
		return existing, nil
	}
	s.instances[name] = created
	s.order = append(s.order, name)
	return created, nil
}

func (s *RefreshScope) RegisterDestructionCallback(_ context.Context, name string, callback func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[name] = callback
	return nil
}

// OnRefresh 刷新完成后的回调，参数为新的代数
func (s *RefreshScope) OnRefresh(fn func(generation uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Refresh 丢弃全部缓存实例
func (s *RefreshScope) Refresh() error {
	s.mu.Lock()
	order := s.order
	callbacks := s.callbacks
	s.order = nil
	s.instances = make(map[string]any)
	s.callbacks = make(map[string]func() error)
	s.generation++
	generation := s.generation
	listeners := append(([]func(uint64))(nil), s.listeners...)
	s.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		cb, ok := callbacks[order[i]]
		if !ok {
			continue
		}
		if err := cb(); err != nil {
			errs = append(errs, fmt.Errorf("cron: destroying '%s' in scope '%s': %w", order[i], s.name, err))
		}
	}

	s.logger.Info("refresh scope refreshed",
		logging.F("scope", s.name),
		logging.F("discarded", len(order)),
		logging.F("generation", generation))
	for _, fn := range listeners {
		fn(generation)
	}
	return errors.Join(errs...)
}

// DestroyAll 容器关闭时调用
func (s *RefreshScope) DestroyAll() error {
	return s.Refresh()
}

// Generation 已完成的刷新次数
func (s *RefreshScope) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Len 当前缓存的实例数量
func (s *RefreshScope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}
