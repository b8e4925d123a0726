package database

import (
	"errors"
	"fmt"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/logging"
	"gorm.io/gorm"
)

// Builder 数据库配置构建器
type Builder struct {
	core.BaseBuilder
	configs map[string]DatabaseOptions
	order   []string
	errors  []error
}

// NewBuilder 创建构建器，ctx 可以为 nil
func NewBuilder(ctx *core.BuildContext) *Builder {
	return &Builder{
		BaseBuilder: core.NewBaseBuilder(ctx),
		configs:     make(map[string]DatabaseOptions),
	}
}

// Add 添加数据库配置
// name: 实例名称
// dialector: GORM 驱动 (e.g. sqlite.Open(dsn))
// configure: 可选的配置函数
func (b *Builder) Add(name string, dialector gorm.Dialector, configure func(*DatabaseOptions)) *Builder {
	if _, exists := b.configs[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("database '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name, dialector)
	if configure != nil {
		configure(opts)
	}

	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid configuration for '%s': %w", name, err))
		return b
	}

	b.configs[name] = *opts
	b.order = append(b.order, name)
	return b
}

// Fail 记录配置错误，例如读取连接配置失败
func (b *Builder) Fail(err error) *Builder {
	if err != nil {
		b.errors = append(b.errors, err)
	}
	return b
}

// Build 构建数据库工厂，没有任何配置时返回 nil
func (b *Builder) Build(logger logging.Logger) (*DatabaseFactory, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("database configuration errors: %w", errors.Join(b.errors...))
	}
	if len(b.configs) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Nop()
	}

	factory := NewDatabaseFactory()
	for _, name := range b.order {
		opts := b.configs[name]
		if err := factory.Register(opts); err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to register database '%s': %w", opts.Name, err)
		}
		logger.Info("Database registered",
			logging.F("name", opts.Name),
			logging.F("dialector", opts.Dialector.Name()))
	}
	return factory, nil
}
