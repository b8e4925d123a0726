package etcd

import (
	"errors"
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/logging"
)

// Builder Etcd 客户端配置构建器
type Builder struct {
	core.BaseBuilder
	configs map[string]EtcdClientOptions
	order   []string
	errors  []error
}

// NewBuilder 创建 Etcd 构建器，ctx 可以为 nil
func NewBuilder(ctx *core.BuildContext) *Builder {
	return &Builder{
		BaseBuilder: core.NewBaseBuilder(ctx),
		configs:     make(map[string]EtcdClientOptions),
	}
}

// AddClient 添加一个 etcd 客户端配置
func (b *Builder) AddClient(name string, configure func(*EtcdClientOptions)) *Builder {
	if _, exists := b.configs[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("etcd client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}

	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid etcd configuration for '%s': %w", name, err))
		return b
	}

	b.configs[name] = *opts
	b.order = append(b.order, name)
	return b
}

// Build 构建 Etcd 客户端工厂，没有任何配置时返回 nil
func (b *Builder) Build(logger logging.Logger) (*EtcdClientFactory, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("etcd configuration errors: %w", errors.Join(b.errors...))
	}
	if len(b.configs) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Nop()
	}

	factory := NewEtcdClientFactory()
	for _, name := range b.order {
		opts := b.configs[name]
		if err := factory.Register(opts); err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to register etcd client '%s': %w", opts.Name, err)
		}
		logger.Info("etcd client registered",
			logging.F("name", opts.Name),
			logging.F("endpoints", fmt.Sprintf("%v", opts.Endpoints)))
	}
	return factory, nil
}
