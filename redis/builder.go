package redis

import (
	"errors"
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/logging"
)

// Builder Redis 客户端配置构建器
type Builder struct {
	core.BaseBuilder
	configs map[string]RedisClientOptions
	order   []string
	scopes  []ScopeOptions
	errors  []error
}

// NewBuilder 创建 Redis 构建器，ctx 可以为 nil
func NewBuilder(ctx *core.BuildContext) *Builder {
	return &Builder{
		BaseBuilder: core.NewBaseBuilder(ctx),
		configs:     make(map[string]RedisClientOptions),
	}
}

// AddClient 添加一个 Redis 客户端配置
func (b *Builder) AddClient(name string, configure func(*RedisClientOptions)) *Builder {
	if _, exists := b.configs[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("redis client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}

	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid redis configuration for '%s': %w", name, err))
		return b
	}

	b.configs[name] = *opts
	b.order = append(b.order, name)
	return b
}

// AddScope 添加一个以 Redis 为存储的上下文作用域
func (b *Builder) AddScope(name string, configure func(*ScopeOptions)) *Builder {
	opts := ScopeOptions{Name: name}
	if configure != nil {
		configure(&opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid redis scope '%s': %w", name, err))
		return b
	}
	for _, s := range b.scopes {
		if s.Name == opts.Name {
			b.errors = append(b.errors, fmt.Errorf("redis scope '%s' already configured", name))
			return b
		}
	}
	b.scopes = append(b.scopes, opts)
	return b
}

// Scopes 已配置的作用域
func (b *Builder) Scopes() []ScopeOptions {
	return append([]ScopeOptions(nil), b.scopes...)
}

// Build 构建 Redis 客户端工厂，没有任何配置时返回 nil
func (b *Builder) Build(logger logging.Logger) (*RedisClientFactory, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("redis configuration errors: %w", errors.Join(b.errors...))
	}
	for _, s := range b.scopes {
		if _, ok := b.configs[s.Client]; !ok {
			return nil, fmt.Errorf("redis scope '%s' uses unknown client '%s'", s.Name, s.Client)
		}
	}
	if len(b.configs) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Nop()
	}

	factory := NewRedisClientFactory()
	for _, name := range b.order {
		opts := b.configs[name]
		if err := factory.Register(opts); err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to register redis client '%s': %w", opts.Name, err)
		}
		logger.Info("redis client registered",
			logging.F("name", opts.Name),
			logging.F("addr", opts.Addr),
			logging.F("db", opts.DB))
	}
	return factory, nil
}
