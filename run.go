package ioc

import (
	"context"

	"github.com/gocrud/ioc/core"
)

// Run 用默认构建器和给定的配置器构建应用并运行，阻塞直到收到退出信号
func Run(configurators ...core.Configurator) error {
	return RunContext(context.Background(), configurators...)
}

// RunContext 与 Run 相同，ctx 取消时也会触发优雅关闭
func RunContext(ctx context.Context, configurators ...core.Configurator) error {
	app, err := NewApplicationBuilder().Configure(configurators...).Build()
	if err != nil {
		return err
	}
	return app.RunAsync(ctx)
}
