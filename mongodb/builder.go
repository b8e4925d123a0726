package mongodb

import (
	"errors"
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/logging"
)

// Builder MongoDB 配置构建器
type Builder struct {
	core.BaseBuilder
	configs map[string]MongoOptions
	order   []string
	errors  []error
}

// NewBuilder 创建构建器，ctx 可以为 nil
func NewBuilder(ctx *core.BuildContext) *Builder {
	return &Builder{
		BaseBuilder: core.NewBaseBuilder(ctx),
		configs:     make(map[string]MongoOptions),
	}
}

// Add 添加 MongoDB 客户端配置
func (b *Builder) Add(name string, uri string, configure func(*MongoOptions)) *Builder {
	if _, exists := b.configs[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("mongo client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name, uri)
	if configure != nil {
		configure(opts)
	}

	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid mongo configuration for '%s': %w", name, err))
		return b
	}

	b.configs[name] = *opts
	b.order = append(b.order, name)
	return b
}

// Build 构建 MongoDB 工厂，没有任何配置时返回 nil
func (b *Builder) Build(logger logging.Logger) (*MongoFactory, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("mongo configuration errors: %w", errors.Join(b.errors...))
	}
	if len(b.configs) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Nop()
	}

	factory := NewMongoFactory()
	for _, name := range b.order {
		opts := b.configs[name]
		if err := factory.Register(opts); err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to register mongo client '%s': %w", opts.Name, err)
		}
		logger.Info("Mongo client registered", logging.F("name", opts.Name))
	}
	return factory, nil
}
