package cron

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
)

// ScopeComponentName 刷新作用域在容器中的组件名，用于手动刷新
func ScopeComponentName(scope string) string {
	return "cron.scope." + scope
}

// Configure 返回 Cron 配置器：登记刷新作用域，并把调度服务作为托管服务和特性注册
// 使用示例: builder.Configure(cron.Configure(func(b *cron.Builder) { b.AddRefreshScope("refresh", "@every 1m") }))
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder(ctx)
		if options != nil {
			options(builder)
		}

		svc, err := builder.Build(ctx.Container(), ctx.GetLogger().WithCategory("Cron"))
		if err != nil {
			ctx.Fail(err)
			return
		}
		if svc == nil {
			return
		}

		for _, scope := range svc.Scopes() {
			ctx.RegisterScope(scope.Name(), scope)
			ctx.Provide(ScopeComponentName(scope.Name()), di.Instance(scope), di.WithQualifiers(scope.Name()))
		}
		ctx.Provide("cronService", di.Instance(svc))
		ctx.AddHostedService(svc)
		ctx.Features().Set(svc)
	}
}
