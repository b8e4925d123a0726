package mongodb

import (
	"context"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ComponentName 客户端在容器中的组件名，客户端名同时作为 qualifier
func ComponentName(client string) string {
	return "mongodb." + client
}

// Configure 返回 MongoDB 配置器
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

		ctx.Provide("mongoFactory", di.Instance(factory))
		ctx.SetCleanup("mongodb", func() {
			logger.Info("Closing mongo clients")
			if err := factory.Close(); err != nil {
				logger.Error("Failed to close mongo clients", logging.Err(err))
			}
		})

		factory.Each(func(name string, client *mongo.Client, opts MongoOptions) {
			clientOpts := []di.Option{di.WithQualifiers(name)}
			if name == "default" {
				clientOpts = append(clientOpts, di.WithPrimary())
			}
			ctx.Provide(ComponentName(name), di.Instance(client), clientOpts...)
			logger.Info("Mongo client registered to DI", logging.F("name", name))

			if opts.PropertyCollection == "" {
				return
			}
			coll := client.Database(opts.Database).Collection(opts.PropertyCollection)
			source := NewCollectionSource("mongodb:"+name, coll, logger)
			loadCtx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
			err := source.Reload(loadCtx)
			cancel()
			if err != nil {
				if !opts.Optional {
					ctx.Fail(err)
					return
				}
				logger.Warn("mongodb properties unavailable", logging.F("client", name), logging.Err(err))
			}
			ctx.Properties().AddFirst(source)

			if opts.ReloadInterval > 0 {
				ctx.AddHostedService(hosting.NewTimedHostedService(
					"mongodb-reload:"+name, opts.ReloadInterval, source.Reload, logger))
			}
		})
	}
}
