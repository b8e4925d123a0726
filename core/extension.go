package core

import (
	"fmt"

	"github.com/gocrud/ioc/metadata"
)

// Extension 定义应用程序扩展的基础接口
// 扩展模块应该实现 ServiceConfigurator、AppConfigurator 或 SourceProvider 中的至少一个
type Extension interface {
	// Name 返回扩展的名称，用于日志记录和调试
	Name() string
}

// ServiceConfigurator 负责登记组件
type ServiceConfigurator interface {
	ConfigureServices(services *ServiceCollection)
}

// AppConfigurator 负责配置构建上下文（属性层、作用域、托管服务）
type AppConfigurator interface {
	ConfigureBuilder(ctx *BuildContext)
}

// SourceProvider 提供元数据来源
type SourceProvider interface {
	Sources() []metadata.Source
}

// validateExtension 验证扩展是否实现了支持的接口
func validateExtension(ext Extension) error {
	_, isService := ext.(ServiceConfigurator)
	_, isApp := ext.(AppConfigurator)
	_, isSource := ext.(SourceProvider)

	if !isService && !isApp && !isSource {
		return fmt.Errorf("app: extension '%s' does not implement any supported interface (ServiceConfigurator, AppConfigurator, SourceProvider)", ext.Name())
	}
	return nil
}
