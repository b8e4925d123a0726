package web

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// ComponentName 主机在容器中的组件名
const ComponentName = "webHost"

// Configure 返回 Web 配置器
// 使用示例: builder.Configure(web.Configure(func(b *web.Builder) { b.UsePort(9090).AddRequestScope("") }))
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder(ctx)
		if options != nil {
			options(builder)
		}

		logger := ctx.GetLogger().WithCategory("Web")
		host, err := builder.Build(ctx.Container(), ctx.Properties(), logger)
		if err != nil {
			ctx.Fail(err)
			return
		}

		ctx.Provide(ComponentName, di.Instance(host))
		ctx.AddHostedService(host)
		ctx.Features().Set(host)

		logger.Info("Web host configured",
			logging.F("address", host.options.Addr()),
			logging.F("basePath", host.options.BasePath))
	}
}
