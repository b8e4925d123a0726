package di

import (
	"context"
	"fmt"
	"reflect"
)

// RegisterAuto 按目标的形态推断创建策略并登记，返回组件名称。
//
// 支持的 target:
//  1. func(...) (T, error?) -> 构造函数，参数按类型装配
//  2. reflect.Type         -> 结构体策略，di 标签字段自动装配
//  3. 其他值                 -> 已有实例
//
// name 为空时取类型名并首字母小写。
func RegisterAuto(c *Container, name string, target any, opts ...Option) (string, error) {
	var strategy Strategy
	var typ reflect.Type

	switch t := target.(type) {
	case nil:
		return "", fmt.Errorf("di: cannot register nil")
	case reflect.Type:
		strategy = Struct(t)
		typ = t
	default:
		v := reflect.ValueOf(target)
		if v.Kind() == reflect.Func {
			if v.Type().NumOut() == 0 {
				return "", fmt.Errorf("di: constructor function must return at least one value")
			}
			strategy = Constructor(target)
			typ = v.Type().Out(0)
		} else {
			strategy = Instance(target)
			typ = v.Type()
		}
	}

	if name == "" {
		name = defaultName(typ)
	}
	if err := c.Register(NewDefinition(name, strategy, opts...)); err != nil {
		return "", err
	}
	return name, nil
}

func defaultName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return Decapitalize(t.Name())
}

// Register 将结构体 T 登记为组件，登记失败时 panic。
func Register[T any](c *Container, name string, opts ...Option) {
	typ := TypeOf[T]()
	if name == "" {
		name = defaultName(typ)
	}
	if err := c.Register(NewDefinition(name, Struct(typ), opts...)); err != nil {
		panic(fmt.Sprintf("di: failed to register %v: %v", typ, err))
	}
}

// Resolve 按类型 T 获取唯一实例。
func Resolve[T any](c *Container) (T, error) {
	return ResolveContext[T](context.Background(), c)
}

// ResolveContext 按类型 T 获取唯一实例，ctx 可携带上下文作用域 id。
func ResolveContext[T any](ctx context.Context, c *Container) (T, error) {
	var zero T
	typ := TypeOf[T]()
	val, err := c.GetByTypeContext(ctx, typ)
	if err != nil {
		return zero, err
	}
	return cast[T](val, typ)
}

// ResolveNamed 按名称获取实例并断言为 T。
func ResolveNamed[T any](c *Container, name string) (T, error) {
	var zero T
	val, err := c.GetByName(name)
	if err != nil {
		return zero, err
	}
	return cast[T](val, TypeOf[T]())
}

// ResolveAll 按登记顺序返回所有满足 T 的实例。
func ResolveAll[T any](c *Container) ([]T, error) {
	typ := TypeOf[T]()
	vals, err := c.GetAllByType(typ)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		t, err := cast[T](v, typ)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ResolveToken 按 Token 的名称获取实例。
func ResolveToken[T any](c *Container, token *Token[T]) (T, error) {
	return ResolveNamed[T](c, token.Name())
}

// MustResolve 获取实例，失败时 panic。
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

func cast[T any](val any, typ reflect.Type) (T, error) {
	if v, ok := val.(T); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("di: resolved value is %T, expected %v", val, typ)
}

// Inject 将实例写入 target 指向的变量：给出 name 时按名称查找，否则按变量类型。
//
//	var svc *UserService
//	c.Inject(&svc)
func (c *Container) Inject(target any, name ...string) error {
	targetVal := reflect.ValueOf(target)
	if targetVal.Kind() != reflect.Pointer {
		return fmt.Errorf("di: inject target must be a pointer, got %v", targetVal.Kind())
	}
	if targetVal.IsNil() {
		return fmt.Errorf("di: inject target pointer is nil")
	}
	elem := targetVal.Elem()

	var instance any
	var err error
	if len(name) > 0 && name[0] != "" {
		instance, err = c.GetByName(name[0])
	} else {
		instance, err = c.GetByType(elem.Type())
	}
	if err != nil {
		return fmt.Errorf("di: inject failed: %w", err)
	}

	v := reflect.ValueOf(instance)
	if !v.Type().AssignableTo(elem.Type()) {
		return fmt.Errorf("di: inject failed: %T is not assignable to %v", instance, elem.Type())
	}
	elem.Set(v)
	return nil
}

// MustInject 同 Inject，失败时 panic。
func (c *Container) MustInject(target any, name ...string) {
	if err := c.Inject(target, name...); err != nil {
		panic(err)
	}
}
