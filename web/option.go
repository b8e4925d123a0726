package web

import (
	"fmt"
	"strings"
)

// HostOptions 检查端点主机配置
type HostOptions struct {
	Host     string // 监听地址，默认所有网卡
	Port     int    // 端口，0 表示随机端口
	BasePath string // 端点前缀，默认 "/ioc"
	// MaskKeys key 中包含这些片段（不区分大小写）的属性值在 /properties 中被遮盖
	MaskKeys []string
	// Metrics 是否暴露 /metrics 并统计组件创建
	Metrics bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions() *HostOptions {
	return &HostOptions{
		Port:     8080,
		BasePath: "/ioc",
		MaskKeys: []string{"password", "secret", "token", "credential"},
		Metrics:  true,
	}
}

// Validate 验证配置
func (o *HostOptions) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("web port %d out of range", o.Port)
	}
	if o.BasePath == "" {
		o.BasePath = "/"
	}
	if !strings.HasPrefix(o.BasePath, "/") {
		o.BasePath = "/" + o.BasePath
	}
	if len(o.BasePath) > 1 {
		o.BasePath = strings.TrimSuffix(o.BasePath, "/")
	}
	return nil
}

// Addr 监听地址
func (o *HostOptions) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

func (o *HostOptions) masked(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range o.MaskKeys {
		if frag != "" && strings.Contains(lower, strings.ToLower(frag)) {
			return true
		}
	}
	return false
}
