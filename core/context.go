package core

import (
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

// ConfigurationContext 提供配置期间所需的受限能力
// 仅暴露只读方法，集成模块的 Builder 通过它读取属性
type ConfigurationContext interface {
	GetProperties() *config.Chain
	GetEnvironment() Environment
	GetLogger() logging.Logger
}
