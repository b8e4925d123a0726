package di

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/logging"
)

// getBean 按作用域返回实例。allowEarly 为 false 时（depends-on）不接受提前暴露的引用。
func (c *Container) getBean(ctx context.Context, name string, allowEarly bool) (any, error) {
	def, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	ctx, ch := withChain(ctx)
	top := ch.empty()

	requester := ch.current()
	if ch.creating(def.Name) {
		if allowEarly {
			if ref, ok := ch.early[def.Name]; ok {
				return ref.take(requester), nil
			}
		}
		return nil, &CircularDependencyError{Path: ch.cyclePath(def.Name)}
	}

	if def.IsSingleton() {
		if inst, ok := c.singletons.cached(def.Name); ok {
			c.singletons.addDependent(def.Name, requester)
			return inst, nil
		}
	}

	scope, err := c.scopeOf(def)
	if err != nil {
		return nil, err
	}

	if top {
		// 顶层请求先做一次静态检查，构造期环在产生任何副作用之前失败
		if _, err := c.cachedOrder(def.Name); err != nil {
			return nil, &CreationError{Name: def.Name, Source: def.Source, Err: err}
		}
	}

	var created any
	didCreate := false
	inst, err := scope.Get(ctx, def.Name, func() (any, error) {
		v, err := c.createBean(ctx, def)
		if err == nil {
			created, didCreate = v, true
		}
		return v, err
	})
	if err != nil {
		if didCreate {
			c.discard(def, created)
		}
		if cycle, ok := err.(*crossChainCycle); ok {
			if allowEarly && cycle.early != nil {
				c.singletons.addDependent(def.Name, requester)
				return cycle.early.take(requester), nil
			}
			return nil, &CircularDependencyError{Path: append(append([]string(nil), ch.stack...), def.Name)}
		}
		var ce *CreationError
		if errors.As(err, &ce) && ce.Name == def.Name {
			return nil, err
		}
		return nil, &CreationError{Name: def.Name, Source: def.Source, Err: err}
	}

	if def.IsSingleton() {
		c.singletons.addDependent(def.Name, requester)
	}
	if didCreate {
		if sameInstance(inst, created) {
			if cb := c.destructionCallback(def, inst); cb != nil {
				if err := scope.RegisterDestructionCallback(ctx, def.Name, cb); err != nil {
					return nil, &CreationError{Name: def.Name, Source: def.Source, Err: err}
				}
			}
		} else {
			// 上下文作用域的条件写入失败，保留胜出的实例
			c.discard(def, created)
		}
	}
	return inst, nil
}

// evictEarlyUsers 创建失败时移除取用过其提前引用的单例，它们持有的是被丢弃的半成品。
func (c *Container) evictEarlyUsers(def *Definition, early *earlyRef) {
	users := early.takenBy()
	if len(users) == 0 {
		return
	}
	removed, err := c.singletons.evict(users)
	if len(removed) > 0 {
		c.logger.Warn("discarded components holding a reference to a failed component",
			logging.F("name", def.Name), logging.F("discarded", removed))
	}
	if err != nil {
		c.logger.Error("destroying discarded components failed", logging.F("name", def.Name), logging.Err(err))
	}
}

func (c *Container) discard(def *Definition, inst any) {
	if cb := c.destructionCallback(def, inst); cb != nil {
		if err := cb(); err != nil {
			c.logger.Error("destroying discarded instance failed", logging.F("name", def.Name), logging.Err(err))
		}
	}
}

// createBean 执行一次完整创建：depends-on、实例化、属性填充、初始化。
func (c *Container) createBean(ctx context.Context, def *Definition) (inst any, err error) {
	ch := chainFrom(ctx)
	ch.push(def.Name)
	defer ch.pop(def.Name)

	var early *earlyRef
	defer func() {
		if err != nil {
			if early != nil {
				c.evictEarlyUsers(def, early)
			}
			inst = nil
			err = &CreationError{Name: def.Name, Source: def.Source, Err: err}
		}
	}()

	for _, dep := range def.DependsOn {
		if _, err := c.getBean(ctx, dep, false); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("creating component", logging.F("name", def.Name), logging.F("scope", def.ScopeName()))

	inst, err = c.instantiate(ctx, def)
	if err != nil {
		return nil, err
	}

	if def.IsSingleton() {
		early = &earlyRef{instance: inst}
		ch.early[def.Name] = early
		c.singletons.publishEarly(def.Name, early)
	}

	if err := c.populate(ctx, def, inst); err != nil {
		return nil, &InstantiationError{Name: def.Name, Phase: "property population", Err: err}
	}

	if aware, ok := inst.(NameAware); ok {
		aware.SetComponentName(def.Name)
	}
	if aware, ok := inst.(ContainerAware); ok {
		aware.SetContainer(c)
	}

	for _, hook := range c.beforeInit {
		next, err := hook(inst, def)
		if err != nil {
			return nil, &InstantiationError{Name: def.Name, Phase: "before-init hook", Err: err}
		}
		if next != nil {
			inst = next
		}
	}

	if err := c.initialize(def, inst); err != nil {
		return nil, &InstantiationError{Name: def.Name, Phase: "initialization", Err: err}
	}

	for _, hook := range c.afterInit {
		next, err := hook(inst, def)
		if err != nil {
			return nil, &InstantiationError{Name: def.Name, Phase: "after-init hook", Err: err}
		}
		if next != nil {
			inst = next
		}
	}

	if early != nil && early.isUsed() && !sameInstance(inst, early.instance) {
		return nil, &InstantiationError{
			Name:  def.Name,
			Phase: "after-init hook",
			Err:   errors.New("instance was replaced after its raw reference had been injected into a circular dependency"),
		}
	}

	c.logger.Debug("created component", logging.F("name", def.Name))
	return inst, nil
}

func (c *Container) instantiate(ctx context.Context, def *Definition) (any, error) {
	s := def.Strategy
	switch s.Kind {
	case StrategyStruct:
		return reflect.New(s.Type).Interface(), nil

	case StrategyConstructor:
		fn := reflect.ValueOf(s.Func)
		args, spread, err := c.resolveArgs(ctx, def, fn.Type(), s.Args)
		if err != nil {
			return nil, err
		}
		return c.invoke(def, "constructor", fn, args, spread)

	case StrategyFactoryMethod:
		bean, err := c.getBean(ctx, s.FactoryBean, true)
		if err != nil {
			return nil, err
		}
		method := reflect.ValueOf(bean).MethodByName(s.Method)
		if !method.IsValid() {
			return nil, &InstantiationError{Name: def.Name, Phase: "factory method", Err: fmt.Errorf("%T has no method %s", bean, s.Method)}
		}
		if err := checkResults(method.Type()); err != nil {
			return nil, &InstantiationError{Name: def.Name, Phase: "factory method", Err: fmt.Errorf("%s.%s: %w", s.FactoryBean, s.Method, err)}
		}
		args, spread, err := c.resolveArgs(ctx, def, method.Type(), s.Args)
		if err != nil {
			return nil, err
		}
		return c.invoke(def, "factory method", method, args, spread)

	case StrategySupplier:
		inst, err := safeSupply(s.supply)
		if err != nil {
			return nil, &InstantiationError{Name: def.Name, Phase: "supplier", Err: err}
		}
		if isNil(reflect.ValueOf(inst)) {
			return nil, &InstantiationError{Name: def.Name, Phase: "supplier", Err: errors.New("supplier returned nil")}
		}
		return inst, nil
	}
	return nil, &InstantiationError{Name: def.Name, Phase: "instantiation", Err: fmt.Errorf("unknown strategy %v", s.Kind)}
}

// resolveArgs 解析调用参数；没有显式参数时每个参数按类型装配，variadic 参数收集所有候选。
func (c *Container) resolveArgs(ctx context.Context, def *Definition, fnType reflect.Type, args []Value) ([]reflect.Value, bool, error) {
	if len(args) > 0 {
		out := make([]reflect.Value, 0, len(args))
		for i, arg := range args {
			pt := paramType(fnType, i)
			v, ok, err := c.resolveValue(ctx, def, arg, pt, "")
			if err != nil {
				return nil, false, fmt.Errorf("argument %d: %w", i, err)
			}
			if !ok {
				v = reflect.Zero(pt)
			}
			out = append(out, v)
		}
		return out, false, nil
	}

	n := fnType.NumIn()
	out := make([]reflect.Value, 0, n)
	for i := 0; i < n; i++ {
		pt := fnType.In(i)
		value := Autowire(nil)
		if fnType.IsVariadic() && i == n-1 {
			value = value.AsOptional()
		}
		v, ok, err := c.resolveValue(ctx, def, value, pt, "")
		if err != nil {
			return nil, false, fmt.Errorf("argument %d (%v): %w", i, pt, err)
		}
		if !ok {
			v = reflect.Zero(pt)
		}
		out = append(out, v)
	}
	return out, fnType.IsVariadic(), nil
}

// invoke 调用构造函数或工厂方法，panic 与返回的 error 都转换为 InstantiationError。
func (c *Container) invoke(def *Definition, phase string, fn reflect.Value, args []reflect.Value, spread bool) (inst any, err error) {
	defer func() {
		if r := recover(); r != nil {
			inst = nil
			err = &InstantiationError{Name: def.Name, Phase: phase, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	var results []reflect.Value
	if spread {
		results = fn.CallSlice(args)
	} else {
		results = fn.Call(args)
	}

	if len(results) == 2 && !results[1].IsNil() {
		return nil, &InstantiationError{Name: def.Name, Phase: phase, Err: results[1].Interface().(error)}
	}
	if isNil(results[0]) {
		return nil, &InstantiationError{Name: def.Name, Phase: phase, Err: errors.New("returned nil")}
	}
	return results[0].Interface(), nil
}

func safeSupply(fn func() (any, error)) (inst any, err error) {
	defer func() {
		if r := recover(); r != nil {
			inst = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// initialize Initializer、init 方法、init 回调依次执行。
func (c *Container) initialize(def *Definition, inst any) error {
	if initializer, ok := inst.(Initializer); ok {
		if err := initializer.AfterPropertiesSet(); err != nil {
			return err
		}
	}
	if def.InitMethod != "" {
		if err := callLifecycleMethod(inst, def.InitMethod); err != nil {
			return err
		}
	}
	if def.InitFunc != nil {
		if err := def.InitFunc(inst); err != nil {
			return err
		}
	}
	return nil
}

// destructionCallback 组合 Disposer、destroy 方法、destroy 回调，没有任何一项时返回 nil。
func (c *Container) destructionCallback(def *Definition, inst any) func() error {
	disposer, isDisposer := inst.(Disposer)
	if !isDisposer && def.DestroyMethod == "" && def.DestroyFunc == nil {
		return nil
	}
	return func() error {
		var errs []error
		if isDisposer {
			if err := disposer.Destroy(); err != nil {
				errs = append(errs, err)
			}
		}
		if def.DestroyMethod != "" {
			if err := callLifecycleMethod(inst, def.DestroyMethod); err != nil {
				errs = append(errs, err)
			}
		}
		if def.DestroyFunc != nil {
			if err := def.DestroyFunc(inst); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// callLifecycleMethod 调用无参方法，方法可返回 error。
func callLifecycleMethod(inst any, name string) (err error) {
	m := reflect.ValueOf(inst).MethodByName(name)
	if !m.IsValid() {
		return fmt.Errorf("%T has no method %s", inst, name)
	}
	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorType) {
		return fmt.Errorf("method %s must have signature func() or func() error", name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	out := m.Call(nil)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}
