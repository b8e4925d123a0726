package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DatabaseOptions 数据库配置选项
type DatabaseOptions struct {
	Name         string
	Dialector    gorm.Dialector
	GormConfig   *gorm.Config
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	AutoMigrate  []any // 需要自动迁移的模型

	// PropertyTable 非空时把该表加载为属性层
	PropertyTable string
	// MigrateProperties 自动创建属性表
	MigrateProperties bool
	// ReloadInterval 大于 0 时按间隔重新加载属性表
	ReloadInterval time.Duration
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, dialector gorm.Dialector) *DatabaseOptions {
	return &DatabaseOptions{
		Name:         name,
		Dialector:    dialector,
		GormConfig:   &gorm.Config{},
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  time.Hour,
		AutoMigrate:  make([]any, 0),
	}
}

// WithProperties 把 table 作为属性层，空字符串使用 DefaultPropertyTable
func (o *DatabaseOptions) WithProperties(table string, migrate bool) *DatabaseOptions {
	if table == "" {
		table = DefaultPropertyTable
	}
	o.PropertyTable = table
	o.MigrateProperties = migrate
	return o
}

// Validate 验证配置
func (o *DatabaseOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if o.Dialector == nil {
		return fmt.Errorf("database dialector is required")
	}
	if o.ReloadInterval < 0 {
		return fmt.Errorf("database reload interval must not be negative")
	}
	if o.ReloadInterval > 0 && o.PropertyTable == "" {
		return fmt.Errorf("database reload interval requires a property table")
	}
	if o.GormConfig == nil {
		o.GormConfig = &gorm.Config{}
	}
	return nil
}
