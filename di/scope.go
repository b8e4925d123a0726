package di

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gocrud/ioc/logging"
)

// ObjectFactory 创建一个完整初始化的实例。
type ObjectFactory func() (any, error)

// Scope 作用域策略：决定实例的存储位置和生命周期。
type Scope interface {
	// Get 返回已存在的实例，或调用 factory 创建并按策略保存。
	Get(ctx context.Context, name string, factory ObjectFactory) (any, error)
	// RegisterDestructionCallback 登记实例销毁时执行的回调。
	RegisterDestructionCallback(ctx context.Context, name string, callback func() error) error
}

// Destroyer 由需要在容器关闭时统一销毁实例的作用域实现。
type Destroyer interface {
	DestroyAll() error
}

type singletonState int

const (
	stateCreating singletonState = iota + 1
	stateCreated
)

type singletonEntry struct {
	state singletonState
	// owner 正在创建该单例的解析链
	owner *creationChain
	// done 创建结束（成功或失败）时关闭
	done     chan struct{}
	instance any
	// early 创建期间公开的早期引用
	early *earlyRef
}

// crossChainCycle 两条解析链互相等待对方正在创建的单例。
// early 为对方链上该单例提前暴露的引用，没有时为 nil。
type crossChainCycle struct {
	name  string
	early *earlyRef
}

func (e *crossChainCycle) Error() string {
	return fmt.Sprintf("di: singleton '%s' is being created by a request that waits for this one", e.name)
}

// singletonScope 单例作用域。每个名称单独记录创建中的状态和所属解析链，
// 创建过程不持有锁：其他请求等待同一名称的创建完成，互不相关的名称并行创建。
// 创建期间由用户代码发起的不带创建上下文的查找不会被阻塞。
type singletonScope struct {
	mu         sync.Mutex
	entries    map[string]*singletonEntry
	order      []string
	callbacks  map[string]func() error
	dependents map[string]map[string]struct{}
	logger     logging.Logger
}

func newSingletonScope(logger logging.Logger) *singletonScope {
	return &singletonScope{
		entries:    make(map[string]*singletonEntry),
		callbacks:  make(map[string]func() error),
		dependents: make(map[string]map[string]struct{}),
		logger:     logger,
	}
}

func (s *singletonScope) cached(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok || e.state != stateCreated {
		return nil, false
	}
	return e.instance, true
}

func (s *singletonScope) Get(ctx context.Context, name string, factory ObjectFactory) (any, error) {
	ch := chainFrom(ctx)
	if ch == nil {
		ctx, ch = withChain(ctx)
	}

	for {
		s.mu.Lock()
		e, ok := s.entries[name]
		switch {
		case !ok:
			e = &singletonEntry{state: stateCreating, owner: ch, done: make(chan struct{})}
			s.entries[name] = e
			s.mu.Unlock()
			return s.create(name, e, factory)

		case e.state == stateCreated:
			s.mu.Unlock()
			return e.instance, nil

		case e.owner == ch:
			s.mu.Unlock()
			return nil, fmt.Errorf("di: singleton '%s' is currently in creation on this resolution chain", name)
		}

		// 另一条链正在创建：沿等待关系查找是否回到自己
		for o := e.owner; o != nil; o = o.waitingOn {
			if o == ch {
				cycle := &crossChainCycle{name: name, early: e.early}
				s.mu.Unlock()
				return nil, cycle
			}
		}
		ch.waitingOn = e.owner
		done := e.done
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
		}

		s.mu.Lock()
		ch.waitingOn = nil
		s.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// 创建成功时下一轮直接返回，失败时重新认领
	}
}

func (s *singletonScope) create(name string, e *singletonEntry, factory ObjectFactory) (any, error) {
	inst, err := factory()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(e.done)
	if err != nil {
		// 失败回到未创建，之后可以重试
		delete(s.entries, name)
		return nil, err
	}
	e.state = stateCreated
	e.owner = nil
	e.early = nil
	e.instance = inst
	s.order = append(s.order, name)
	return inst, nil
}

func (s *singletonScope) RegisterDestructionCallback(_ context.Context, name string, callback func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[name] = callback
	return nil
}

// publishEarly 公开正在创建的单例的早期引用，供其他链在循环时使用
func (s *singletonScope) publishEarly(name string, early *earlyRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok && e.state == stateCreating {
		e.early = early
	}
}

// addDependent 记录 dependent 持有 name 的实例
func (s *singletonScope) addDependent(name, dependent string) {
	if dependent == "" || dependent == name {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.dependents[name]
	if !ok {
		set = make(map[string]struct{})
		s.dependents[name] = set
	}
	set[dependent] = struct{}{}
}

func (s *singletonScope) contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return ok && e.state == stateCreated
}

// occupied 单例已创建或正在创建
func (s *singletonScope) occupied(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// creationOrder 已创建单例的名称，按创建完成顺序。
func (s *singletonScope) creationOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// evict 移除 names 以及传递持有它们的已创建单例，按创建逆序执行销毁回调。
// 返回实际移除的名称。
func (s *singletonScope) evict(names []string) ([]string, error) {
	s.mu.Lock()
	marked := make(map[string]bool)
	queue := append([]string(nil), names...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if marked[name] {
			continue
		}
		if e, ok := s.entries[name]; !ok || e.state != stateCreated {
			continue
		}
		marked[name] = true
		for dep := range s.dependents[name] {
			queue = append(queue, dep)
		}
	}

	var removed []string
	var callbacks []namedCallback
	kept := s.order[:0]
	for _, name := range s.order {
		if !marked[name] {
			kept = append(kept, name)
			continue
		}
		removed = append(removed, name)
		if cb, ok := s.callbacks[name]; ok {
			callbacks = append(callbacks, namedCallback{name: name, fn: cb})
		}
		delete(s.entries, name)
		delete(s.callbacks, name)
		delete(s.dependents, name)
	}
	s.order = kept
	s.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := callbacks[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("di: destroying '%s': %w", callbacks[i].name, err))
		}
	}
	return removed, errors.Join(errs...)
}

// DestroyAll 按创建的逆序执行销毁回调并清空缓存。
func (s *singletonScope) DestroyAll() error {
	s.mu.Lock()
	order := s.order
	callbacks := s.callbacks
	s.order = nil
	s.entries = make(map[string]*singletonEntry)
	s.callbacks = make(map[string]func() error)
	s.dependents = make(map[string]map[string]struct{})
	s.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		cb, ok := callbacks[name]
		if !ok {
			continue
		}
		if err := cb(); err != nil {
			s.logger.Error("destruction callback failed", logging.F("name", name), logging.Err(err))
			errs = append(errs, fmt.Errorf("di: destroying '%s': %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// prototypeScope 每次都调用 factory，不跟踪实例和销毁回调。
type prototypeScope struct{}

func (prototypeScope) Get(_ context.Context, _ string, factory ObjectFactory) (any, error) {
	return factory()
}

func (prototypeScope) RegisterDestructionCallback(context.Context, string, func() error) error {
	return nil
}
