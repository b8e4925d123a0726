package mongodb

import (
	"fmt"
	"time"
)

// MongoOptions MongoDB 客户端配置选项
type MongoOptions struct {
	Name        string
	Uri         string
	Username    string
	Password    string
	MaxPoolSize uint64
	MinPoolSize uint64
	Timeout     time.Duration

	// Database 属性集合所在的库
	Database string
	// PropertyCollection 非空时把集合中的 {key, value} 文档加载为属性层
	PropertyCollection string
	// ReloadInterval 大于 0 时按间隔重新加载属性集合
	ReloadInterval time.Duration
	// Optional 属性层首次加载失败时只记录警告
	Optional bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, uri string) *MongoOptions {
	return &MongoOptions{
		Name:        name,
		Uri:         uri,
		MaxPoolSize: 100,
		MinPoolSize: 5,
		Timeout:     10 * time.Second,
	}
}

// Validate 验证配置
func (o *MongoOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("mongo client name is required")
	}
	if o.Uri == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("mongo timeout must be positive")
	}
	if o.PropertyCollection != "" && o.Database == "" {
		return fmt.Errorf("mongo property collection requires a database")
	}
	if o.ReloadInterval > 0 && o.PropertyCollection == "" {
		return fmt.Errorf("mongo reload interval requires a property collection")
	}
	return nil
}
