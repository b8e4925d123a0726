package etcd

import (
	"context"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// ComponentName 客户端在容器中的组件名，客户端名同时作为 qualifier
func ComponentName(client string) string {
	return "etcd." + client
}

// Configure 返回 Etcd 配置器
// 使用示例: builder.Configure(etcd.Configure(func(b *etcd.Builder) { ... }))
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder(ctx)
		if options != nil {
			options(builder)
		}

		logger := ctx.GetLogger()
		factory, err := builder.Build(logger)
		if err != nil {
			ctx.Fail(err)
			return
		}
		if factory == nil {
			return
		}

		ctx.Provide("etcdClientFactory", di.Instance(factory))
		ctx.SetCleanup("etcd", func() {
			logger.Info("Closing etcd clients")
			if err := factory.Close(); err != nil {
				logger.Error("Failed to close etcd clients", logging.Err(err))
			}
		})

		factory.Each(func(name string, client *clientv3.Client, opts EtcdClientOptions) {
			clientOpts := []di.Option{di.WithQualifiers(name)}
			if name == "default" {
				clientOpts = append(clientOpts, di.WithPrimary())
			}
			ctx.Provide(ComponentName(name), di.Instance(client), clientOpts...)

			if opts.Prefix == "" {
				return
			}
			source := NewClientSource("etcd:"+name, client, opts.Prefix, logger)
			loadCtx, cancel := context.WithTimeout(context.Background(), opts.LoadTimeout)
			err := source.Load(loadCtx)
			cancel()
			if err != nil {
				if !opts.Optional {
					ctx.Fail(err)
					return
				}
				logger.Warn("etcd properties unavailable", logging.F("client", name), logging.Err(err))
			}
			ctx.Properties().AddFirst(source)

			if opts.Watch {
				ctx.AddHostedService(hosting.Func("etcd-watch:"+name, source.Watch))
			}
		})
	}
}
