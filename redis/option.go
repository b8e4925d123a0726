package redis

import (
	"fmt"
	"time"
)

// RedisClientOptions Redis 客户端配置选项
type RedisClientOptions struct {
	Name         string        // 客户端名称
	Addr         string        // Redis 服务器地址 (host:port)
	Password     string        // 密码（可选）
	DB           int           // 数据库编号
	DialTimeout  time.Duration // 连接超时时间
	ReadTimeout  time.Duration // 读取超时时间
	WriteTimeout time.Duration // 写入超时时间
	PoolSize     int           // 连接池大小
	MinIdleConns int           // 最小空闲连接数
	MaxRetries   int           // 最大重试次数
	SkipPing     bool          // 注册时不检查连接
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *RedisClientOptions {
	return &RedisClientOptions{
		Name:         name,
		Addr:         "localhost:6379",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	}
}

// Validate 验证配置
func (o *RedisClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("redis client name is required")
	}
	if o.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if o.DB < 0 {
		return fmt.Errorf("redis database number must be non-negative")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("redis dial timeout must be positive")
	}
	return nil
}

// ScopeOptions 以 Redis 为存储的上下文作用域
type ScopeOptions struct {
	Name   string        // 作用域名称，组件通过 di.WithScope(Name) 使用
	Client string        // 使用的客户端名称
	Prefix string        // key 前缀，默认 "ioc:scope:<Name>"
	TTL    time.Duration // 占用标记的过期时间，0 表示不过期
}

// Validate 验证配置
func (o *ScopeOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("redis scope name is required")
	}
	if o.Client == "" {
		o.Client = "default"
	}
	if o.Prefix == "" {
		o.Prefix = "ioc:scope:" + o.Name
	}
	if o.TTL < 0 {
		return fmt.Errorf("redis scope ttl must not be negative")
	}
	return nil
}
