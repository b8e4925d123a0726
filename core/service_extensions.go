package core

import "github.com/gocrud/ioc/di"

// ServiceCollection 组件登记入口，错误记录到构建上下文
type ServiceCollection struct {
	ctx    *BuildContext
	hosted []string
}

// Add 登记组件，target 可以是构造函数、reflect.Type 或实例；name 为空时从类型推导
func (s *ServiceCollection) Add(name string, target any, opts ...di.Option) string {
	registered, err := di.RegisterAuto(s.ctx.container, name, target, opts...)
	if err != nil {
		s.ctx.Fail(err)
	}
	return registered
}

// AddHostedService 登记组件并在容器冻结后把它作为托管服务启动
func (s *ServiceCollection) AddHostedService(name string, target any, opts ...di.Option) {
	if registered := s.Add(name, target, opts...); registered != "" {
		s.hosted = append(s.hosted, registered)
	}
}

// AddSingleton 以 T 为声明类型登记单例
//
// 示例:
//
//	core.AddSingleton[UserRepository](services, "", NewSQLUserRepository)
func AddSingleton[T any](s *ServiceCollection, name string, impl any, opts ...di.Option) string {
	return s.Add(name, impl, append(opts, di.As[T]())...)
}

// AddPrototype 以 T 为声明类型登记原型组件，每次解析都创建新实例
func AddPrototype[T any](s *ServiceCollection, name string, impl any, opts ...di.Option) string {
	return s.Add(name, impl, append(opts, di.As[T](), di.WithPrototype())...)
}

// AddScoped 以 T 为声明类型登记到自定义作用域
//
// 示例:
//
//	core.AddScoped[*RequestState](services, "session", "", NewRequestState)
func AddScoped[T any](s *ServiceCollection, scope, name string, impl any, opts ...di.Option) string {
	return s.Add(name, impl, append(opts, di.As[T](), di.WithScope(scope))...)
}
