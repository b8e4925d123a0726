package di

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

type containerState int32

const (
	stateOpen containerState = iota
	stateFreezing
	stateFrozen
	stateClosed
)

// Container 组件容器：注册表、作用域和生命周期事件的组合。多个容器可以在同一进程内共存。
type Container struct {
	registry     *Registry
	logger       logging.Logger
	placeholders PlaceholderResolver
	beforeInit   []Hook
	afterInit    []Hook

	scopesMu   sync.RWMutex
	scopes     map[string]Scope
	singletons *singletonScope

	events eventBus
	state  atomic.Int32

	orderMu    sync.Mutex
	orderCache map[string]cachedOrder
}

type cachedOrder struct {
	version uint64
	order   []string
}

// NewContainer 创建容器。
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{
		scopes:     make(map[string]Scope),
		orderCache: make(map[string]cachedOrder),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.placeholders == nil {
		c.placeholders = config.NewChain()
	}
	c.registry.SetLogger(c.logger)
	c.registry.instantiated = func(name string) bool {
		return c.singletons.occupied(name)
	}
	c.singletons = newSingletonScope(c.logger)
	return c
}

// Registry 返回底层注册表。
func (c *Container) Registry() *Registry {
	return c.registry
}

// Logger 返回容器日志。
func (c *Container) Logger() logging.Logger {
	return c.logger
}

// Definitions 按登记顺序返回定义。
func (c *Container) Definitions() []*Definition {
	return c.registry.Definitions()
}

// Register 登记定义。
func (c *Container) Register(def *Definition) error {
	if containerState(c.state.Load()) == stateClosed {
		return ErrClosed
	}
	return c.registry.Register(def)
}

// Provide 是 Register(NewDefinition(name, strategy, opts...)) 的简写。
func (c *Container) Provide(name string, strategy Strategy, opts ...Option) error {
	return c.Register(NewDefinition(name, strategy, opts...))
}

// AddBeforeInit 追加初始化前钩子，应在 Freeze 之前调用。
func (c *Container) AddBeforeInit(hooks ...Hook) {
	c.beforeInit = append(c.beforeInit, hooks...)
}

// AddAfterInit 追加初始化后钩子，应在 Freeze 之前调用。
func (c *Container) AddAfterInit(hooks ...Hook) {
	c.afterInit = append(c.afterInit, hooks...)
}

// RegisterScope 注册自定义作用域，singleton 与 prototype 不可替换。
func (c *Container) RegisterScope(name string, scope Scope) error {
	if name == ScopeSingleton || name == ScopePrototype {
		return fmt.Errorf("di: cannot replace built-in scope '%s'", name)
	}
	if name == "" || scope == nil {
		return fmt.Errorf("di: scope name and implementation are required")
	}
	c.scopesMu.Lock()
	defer c.scopesMu.Unlock()
	c.scopes[name] = scope
	c.logger.Debug("registered scope", logging.F("scope", name))
	return nil
}

// Scope 返回已注册的作用域。
func (c *Container) Scope(name string) (Scope, bool) {
	switch name {
	case ScopeSingleton:
		return c.singletons, true
	case ScopePrototype:
		return prototypeScope{}, true
	}
	c.scopesMu.RLock()
	defer c.scopesMu.RUnlock()
	s, ok := c.scopes[name]
	return s, ok
}

func (c *Container) scopeOf(def *Definition) (Scope, error) {
	s, ok := c.Scope(def.ScopeName())
	if !ok {
		return nil, &DefinitionError{Name: def.Name, Source: def.Source, Reason: fmt.Sprintf("scope '%s'", def.ScopeName()), Err: ErrUnknownScope}
	}
	return s, nil
}

// Freeze 校验作用域、冻结注册表、按依赖顺序预创建所有非 lazy 单例，最后广播 refreshed。
// 任一步失败都会销毁已创建的单例并返回错误。
func (c *Container) Freeze(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(stateOpen), int32(stateFreezing)) {
		switch containerState(c.state.Load()) {
		case stateClosed:
			return ErrClosed
		default:
			return nil
		}
	}
	started := time.Now()

	fail := func(err error) error {
		if derr := c.singletons.DestroyAll(); derr != nil {
			err = errors.Join(err, derr)
		}
		c.state.Store(int32(stateClosed))
		return err
	}

	defs := c.registry.Definitions()
	var roots []string
	for _, def := range defs {
		if _, err := c.scopeOf(def); err != nil {
			return fail(err)
		}
		if def.IsSingleton() && !def.Lazy {
			roots = append(roots, def.Name)
		}
	}
	c.registry.Freeze()

	order, err := c.globalOrder(roots)
	if err != nil {
		return fail(err)
	}

	eager := make(map[string]bool, len(roots))
	for _, name := range roots {
		eager[name] = true
	}
	created := 0
	for _, name := range order {
		if !eager[name] {
			continue
		}
		if _, err := c.getBean(ctx, name, false); err != nil {
			c.logger.Error("pre-instantiation failed", logging.F("name", name), logging.Err(err))
			return fail(err)
		}
		created++
	}

	c.state.Store(int32(stateFrozen))
	c.logger.Info("container frozen",
		logging.F("definitions", len(defs)),
		logging.F("singletons", created),
		logging.F("elapsed", time.Since(started).String()))

	if err := c.fireRefreshed(ctx); err != nil {
		return errors.Join(err, c.Close(ctx))
	}
	return nil
}

// Frozen 是否已完成冻结。
func (c *Container) Frozen() bool {
	return containerState(c.state.Load()) == stateFrozen
}

func (c *Container) checkLookup() error {
	switch containerState(c.state.Load()) {
	case stateOpen:
		return ErrNotFrozen
	case stateClosed:
		return ErrClosed
	}
	return nil
}

// GetByName 按名称或别名获取实例。
func (c *Container) GetByName(name string) (any, error) {
	return c.GetByNameContext(context.Background(), name)
}

// GetByNameContext 按名称获取实例，ctx 可携带上下文作用域 id。
func (c *Container) GetByNameContext(ctx context.Context, name string) (any, error) {
	if err := c.checkLookup(); err != nil {
		return nil, err
	}
	return c.getBean(ctx, name, true)
}

// GetByType 按类型获取唯一实例。
func (c *Container) GetByType(typ reflect.Type) (any, error) {
	return c.GetByTypeContext(context.Background(), typ)
}

// GetByTypeContext 按类型获取唯一实例。
func (c *Container) GetByTypeContext(ctx context.Context, typ reflect.Type) (any, error) {
	if err := c.checkLookup(); err != nil {
		return nil, err
	}
	name, _, err := c.SelectCandidate(typ, InjectionPoint{})
	if err != nil {
		return nil, err
	}
	return c.getBean(ctx, name, true)
}

// GetAllByType 按登记顺序返回所有满足类型的实例。
func (c *Container) GetAllByType(typ reflect.Type) ([]any, error) {
	return c.GetAllByTypeContext(context.Background(), typ)
}

// GetAllByTypeContext 按登记顺序返回所有满足类型的实例。
func (c *Container) GetAllByTypeContext(ctx context.Context, typ reflect.Type) ([]any, error) {
	if err := c.checkLookup(); err != nil {
		return nil, err
	}
	defs := c.registry.FindByType(typ)
	out := make([]any, 0, len(defs))
	for _, def := range defs {
		inst, err := c.getBean(ctx, def.Name, true)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// NamesForType 返回满足类型的定义名称。
func (c *Container) NamesForType(typ reflect.Type) []string {
	defs := c.registry.FindByType(typ)
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

// IsInstantiated 单例是否已创建。
func (c *Container) IsInstantiated(name string) bool {
	return c.singletons.contains(c.registry.CanonicalName(name))
}

// Instantiated 已创建单例的名称，按创建顺序。
func (c *Container) Instantiated() []string {
	return c.singletons.creationOrder()
}

// DestroyInstance 对调用方持有的实例（通常是 prototype）执行销毁回调。
func (c *Container) DestroyInstance(name string, instance any) error {
	def, err := c.registry.Lookup(name)
	if err != nil {
		return err
	}
	if cb := c.destructionCallback(def, instance); cb != nil {
		return cb()
	}
	return nil
}

// Close 广播 closing，然后按创建逆序销毁单例。重复调用返回 nil。
func (c *Container) Close(ctx context.Context) error {
	prev := containerState(c.state.Swap(int32(stateClosed)))
	if prev == stateClosed {
		return nil
	}

	var errs []error
	if prev == stateFrozen {
		if err := c.fireClosing(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	count := len(c.singletons.creationOrder())
	if err := c.singletons.DestroyAll(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.scopeNames() {
		if s, ok := c.Scope(name); ok {
			if d, ok := s.(Destroyer); ok {
				if err := d.DestroyAll(); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	c.logger.Info("container closed", logging.F("destroyed", count))
	return errors.Join(errs...)
}

func (c *Container) scopeNames() []string {
	c.scopesMu.RLock()
	defer c.scopesMu.RUnlock()
	names := make([]string, 0, len(c.scopes))
	for name := range c.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cachedOrder 缓存 ResolveOrder 的结果，注册表变更后失效。
func (c *Container) cachedOrder(name string) ([]string, error) {
	version := c.registry.Version()
	c.orderMu.Lock()
	if co, ok := c.orderCache[name]; ok && co.version == version {
		c.orderMu.Unlock()
		return co.order, nil
	}
	c.orderMu.Unlock()

	order, err := c.ResolveOrder(name)
	if err != nil {
		return nil, err
	}
	c.orderMu.Lock()
	c.orderCache[name] = cachedOrder{version: version, order: order}
	c.orderMu.Unlock()
	return order, nil
}
