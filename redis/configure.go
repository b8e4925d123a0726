package redis

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/redis/go-redis/v9"
)

// ComponentName 客户端在容器中的组件名，客户端名同时作为 qualifier
func ComponentName(client string) string {
	return "redis." + client
}

// ScopeComponentName 作用域在容器中的组件名，用于结束作用域上下文
func ScopeComponentName(scope string) string {
	return "redis.scope." + scope
}

// Configure 返回 Redis 配置器
// 使用示例: builder.Configure(redis.Configure(func(b *redis.Builder) { ... }))
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

		ctx.Provide("redisClientFactory", di.Instance(factory))
		ctx.SetCleanup("redis", func() {
			logger.Info("Closing redis clients")
			if err := factory.Close(); err != nil {
				logger.Error("Failed to close redis clients", logging.Err(err))
			}
		})

		factory.Each(func(name string, client *redis.Client) {
			clientOpts := []di.Option{di.WithQualifiers(name)}
			if name == "default" {
				clientOpts = append(clientOpts, di.WithPrimary())
			}
			ctx.Provide(ComponentName(name), di.Instance(client), clientOpts...)
			logger.Info("Redis client registered to DI", logging.F("name", name))
		})

		for _, opts := range builder.Scopes() {
			client, err := factory.Get(opts.Client)
			if err != nil {
				ctx.Fail(err)
				continue
			}
			store := NewStore(client, opts.Prefix, opts.TTL)
			scope := NewScope(opts.Name, store)
			ctx.RegisterScope(opts.Name, scope)
			ctx.Provide(ScopeComponentName(opts.Name), di.Instance(scope), di.WithQualifiers(opts.Name))
			logger.Info("Redis scope registered",
				logging.F("scope", opts.Name),
				logging.F("prefix", opts.Prefix),
				logging.F("owner", store.Owner()))
		}
	}
}
