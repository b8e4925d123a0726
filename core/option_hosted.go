package core

import (
	"context"

	"github.com/gocrud/ioc/di"
)

// WorkerFunc 简单的后台任务函数，通过 ctx.Done() 判断退出
type WorkerFunc func(ctx context.Context) error

// AddWorker 将阻塞函数注册为托管服务
func (b *ApplicationBuilder) AddWorker(name string, fn WorkerFunc) *ApplicationBuilder {
	return b.AddTask(name, fn)
}

// AddHostedService 登记类型 T 的托管服务组件，target 为构造函数、reflect.Type 或实例
//
// 示例:
//
//	core.AddHostedService[*Poller](builder, "poller", NewPoller)
func AddHostedService[T HostedService](b *ApplicationBuilder, name string, target any, opts ...di.Option) *ApplicationBuilder {
	return b.ConfigureServices(func(s *ServiceCollection) {
		s.AddHostedService(name, target, append(opts, di.As[T]())...)
	})
}
