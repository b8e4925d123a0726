package di

import "context"

// NameAware 创建后接收自己的组件名称。
type NameAware interface {
	SetComponentName(name string)
}

// ContainerAware 创建后接收所属容器。
type ContainerAware interface {
	SetContainer(c *Container)
}

// Initializer 属性填充完成后调用。
type Initializer interface {
	AfterPropertiesSet() error
}

// Disposer 实例销毁时调用。
type Disposer interface {
	Destroy() error
}

// RefreshedListener 单例组件实现后，在容器冻结完成时收到通知。
type RefreshedListener interface {
	OnContainerRefreshed(ctx context.Context) error
}

// ClosingListener 单例组件实现后，在容器关闭前收到通知。
type ClosingListener interface {
	OnContainerClosing(ctx context.Context) error
}

// Hook 初始化钩子，可返回替换后的实例。
type Hook func(instance any, def *Definition) (any, error)

// PlaceholderResolver 解析字面量中的 ${key:default}。
type PlaceholderResolver interface {
	ResolvePlaceholders(text string) (string, error)
}
