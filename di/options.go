package di

import (
	"reflect"

	"github.com/gocrud/ioc/logging"
)

// Option 配置组件定义。
type Option func(*Definition)

// WithScope 设置作用域名称。
func WithScope(scope string) Option {
	return func(d *Definition) {
		d.Scope = scope
	}
}

// WithPrototype 将作用域设置为 prototype。
func WithPrototype() Option {
	return WithScope(ScopePrototype)
}

// WithLazy 冻结时不预创建。
func WithLazy() Option {
	return func(d *Definition) {
		d.Lazy = true
	}
}

// WithPrimary 按类型查找时优先选择。
func WithPrimary() Option {
	return func(d *Definition) {
		d.Primary = true
	}
}

// WithQualifiers 添加 qualifier 标签。
func WithQualifiers(qualifiers ...string) Option {
	return func(d *Definition) {
		d.Qualifiers = append(d.Qualifiers, qualifiers...)
	}
}

// WithAliases 添加别名。
func WithAliases(aliases ...string) Option {
	return func(d *Definition) {
		d.Aliases = append(d.Aliases, aliases...)
	}
}

// WithDependsOn 声明必须先创建的组件。
func WithDependsOn(names ...string) Option {
	return func(d *Definition) {
		d.DependsOn = append(d.DependsOn, names...)
	}
}

// WithProperty 添加属性值。
func WithProperty(name string, value Value) Option {
	return func(d *Definition) {
		d.Properties = append(d.Properties, Property{Name: name, Value: value})
	}
}

// WithInitMethod 初始化时调用实例上的方法。
func WithInitMethod(method string) Option {
	return func(d *Definition) {
		d.InitMethod = method
	}
}

// WithDestroyMethod 销毁时调用实例上的方法。
func WithDestroyMethod(method string) Option {
	return func(d *Definition) {
		d.DestroyMethod = method
	}
}

// WithInitFunc 初始化回调。
func WithInitFunc(fn func(instance any) error) Option {
	return func(d *Definition) {
		d.InitFunc = fn
	}
}

// WithDestroyFunc 销毁回调。
func WithDestroyFunc(fn func(instance any) error) Option {
	return func(d *Definition) {
		d.DestroyFunc = fn
	}
}

// WithSource 记录定义来源。
func WithSource(source string) Option {
	return func(d *Definition) {
		d.Source = source
	}
}

// WithType 声明组件类型（通常是接口）。
func WithType(typ reflect.Type) Option {
	return func(d *Definition) {
		d.Type = typ
	}
}

// As 以 T 作为组件的声明类型。
func As[T any]() Option {
	return WithType(TypeOf[T]())
}

// ContainerOption 配置容器。
type ContainerOption func(*Container)

// WithRegistry 使用已有的注册表（通常由 metadata 解析得到）。
func WithRegistry(registry *Registry) ContainerOption {
	return func(c *Container) {
		c.registry = registry
	}
}

// WithLogger 设置容器日志。
func WithLogger(logger logging.Logger) ContainerOption {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithPlaceholderResolver 设置字面量中占位符的解析器。
func WithPlaceholderResolver(resolver PlaceholderResolver) ContainerOption {
	return func(c *Container) {
		c.placeholders = resolver
	}
}

// WithBeforeInit 追加初始化前钩子。
func WithBeforeInit(hooks ...Hook) ContainerOption {
	return func(c *Container) {
		c.beforeInit = append(c.beforeInit, hooks...)
	}
}

// WithAfterInit 追加初始化后钩子，钩子可返回替换后的实例。
func WithAfterInit(hooks ...Hook) ContainerOption {
	return func(c *Container) {
		c.afterInit = append(c.afterInit, hooks...)
	}
}
