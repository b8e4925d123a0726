package core

import "github.com/gocrud/ioc/logging"

// BaseBuilder 提供基础的构建上下文能力
// 集成模块的 Builder 嵌入此结构体；ctx 为 nil 时只能做纯配置校验
type BaseBuilder struct {
	ctx *BuildContext
}

// NewBaseBuilder 创建基础构建器
func NewBaseBuilder(ctx *BuildContext) BaseBuilder {
	return BaseBuilder{ctx: ctx}
}

// ConfigContext 获取构建上下文（受限接口）
func (b *BaseBuilder) ConfigContext() ConfigurationContext {
	if b.ctx == nil {
		return nil
	}
	return b.ctx
}

// Logger 构建上下文的日志，没有上下文时为空日志
func (b *BaseBuilder) Logger() logging.Logger {
	if b.ctx == nil {
		return logging.Nop()
	}
	return b.ctx.logger
}

// RegisterCleanup 允许 Builder 注册清理函数
func (b *BaseBuilder) RegisterCleanup(key string, cleanup func()) {
	if b.ctx != nil {
		b.ctx.SetCleanup(key, cleanup)
	}
}
