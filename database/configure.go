package database

import (
	"context"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
	"gorm.io/gorm"
)

// ComponentName 数据库实例在容器中的组件名，实例名同时作为 qualifier
func ComponentName(db string) string {
	return "database." + db
}

// SourceComponentName 属性层在容器中的组件名
func SourceComponentName(db string) string {
	return "database." + db + ".properties"
}

// Configure 返回数据库配置器
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

		ctx.Provide("databaseFactory", di.Instance(factory))
		ctx.SetCleanup("database", func() {
			logger.Info("Closing database connections")
			if err := factory.Close(); err != nil {
				logger.Error("Failed to close databases", logging.Err(err))
			}
		})

		factory.Each(func(name string, db *gorm.DB, opts DatabaseOptions) {
			dbOpts := []di.Option{di.WithQualifiers(name)}
			if name == "default" {
				dbOpts = append(dbOpts, di.WithPrimary())
			}
			ctx.Provide(ComponentName(name), di.Instance(db), dbOpts...)
			logger.Info("Database registered to DI", logging.F("name", name))

			if opts.PropertyTable == "" {
				return
			}
			source := NewTableSource("database:"+name, db, opts.PropertyTable, logger)
			if opts.MigrateProperties {
				if err := source.Migrate(context.Background()); err != nil {
					ctx.Fail(err)
					return
				}
			}
			if err := source.Reload(context.Background()); err != nil {
				ctx.Fail(err)
				return
			}
			ctx.Properties().AddFirst(source)
			ctx.Provide(SourceComponentName(name), di.Instance(source), di.WithQualifiers(name))

			if opts.ReloadInterval > 0 {
				ctx.AddHostedService(hosting.NewTimedHostedService(
					"database-reload:"+name, opts.ReloadInterval, source.Reload, logger))
			}
		})
	}
}
