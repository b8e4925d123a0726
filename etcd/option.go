package etcd

import (
	"fmt"
	"strings"
	"time"
)

// EtcdClientOptions etcd 客户端配置选项
type EtcdClientOptions struct {
	Name             string        // 客户端名称
	Endpoints        []string      // etcd 服务器地址列表
	DialTimeout      time.Duration // 连接超时时间
	Username         string        // 用户名（可选）
	Password         string        // 密码（可选）
	AutoSyncInterval time.Duration // 自动同步间隔（可选）

	// Prefix 非空时把该前缀下的 key 加载为属性层，"/app/config/server/port" 对应 "server.port"
	Prefix string
	// Watch 监听前缀下的变更并原子替换属性层
	Watch bool
	// Optional 属性层首次加载失败时只记录警告
	Optional bool
	// LoadTimeout 首次加载的超时时间
	LoadTimeout time.Duration
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *EtcdClientOptions {
	return &EtcdClientOptions{
		Name:        name,
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
		LoadTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (o *EtcdClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("etcd client name is required")
	}
	if len(o.Endpoints) == 0 {
		return fmt.Errorf("etcd endpoints are required")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("etcd dial timeout must be positive")
	}
	if o.Watch && o.Prefix == "" {
		return fmt.Errorf("etcd watch requires a prefix")
	}
	if o.Prefix != "" && !strings.HasSuffix(o.Prefix, "/") {
		o.Prefix += "/"
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = o.DialTimeout
	}
	return nil
}
