package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/metadata"
)

// Configurator 配置器函数类型
// 配置器在容器冻结之前执行，可以注册组件、作用域、属性源和托管服务
type Configurator func(*BuildContext)

// BuildContext 构建上下文
type BuildContext struct {
	container   *di.Container
	properties  *config.Chain
	logger      logging.Logger
	environment Environment
	lifecycle   *LifecycleEvents
	features    FeatureCollection

	mu             sync.Mutex
	sources        []metadata.Source
	hostedServices []hosting.HostedService
	cleanups       map[string]func()
	cleanupOrder   []string
	errs           []error
}

func newBuildContext(container *di.Container, properties *config.Chain, logger logging.Logger, env Environment) *BuildContext {
	return &BuildContext{
		container:   container,
		properties:  properties,
		logger:      logger,
		environment: env,
		lifecycle:   NewLifecycle(logger),
		cleanups:    make(map[string]func()),
	}
}

// Container 返回底层容器
func (c *BuildContext) Container() *di.Container {
	return c.container
}

// Properties 返回属性源链，配置器可以向其中添加属性层
func (c *BuildContext) Properties() *config.Chain {
	return c.properties
}

// GetProperties 实现 ConfigurationContext
func (c *BuildContext) GetProperties() *config.Chain {
	return c.properties
}

// GetLogger 获取日志记录器
func (c *BuildContext) GetLogger() logging.Logger {
	return c.logger
}

// GetEnvironment 获取环境信息
func (c *BuildContext) GetEnvironment() Environment {
	return c.environment
}

// Lifecycle 应用启动 / 停止钩子
func (c *BuildContext) Lifecycle() *LifecycleEvents {
	return c.lifecycle
}

// Features 构建期间在配置器之间共享的特性
func (c *BuildContext) Features() *FeatureCollection {
	return &c.features
}

// AddSource 添加元数据来源，所有配置器执行完后统一解析
func (c *BuildContext) AddSource(sources ...metadata.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, sources...)
}

// Provide 向容器登记组件，失败时记录为构建错误
func (c *BuildContext) Provide(name string, strategy di.Strategy, opts ...di.Option) {
	if err := c.container.Provide(name, strategy, opts...); err != nil {
		c.Fail(err)
	}
}

// RegisterScope 登记自定义作用域，失败时记录为构建错误
func (c *BuildContext) RegisterScope(name string, scope di.Scope) {
	if err := c.container.RegisterScope(name, scope); err != nil {
		c.Fail(err)
	}
}

// AddHostedService 添加托管服务
func (c *BuildContext) AddHostedService(services ...hosting.HostedService) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostedServices = append(c.hostedServices, services...)
}

// SetCleanup 设置资源清理函数，在容器关闭之后按登记的逆序执行。同一 key 重复设置时替换。
func (c *BuildContext) SetCleanup(key string, cleanup func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cleanups[key]; !ok {
		c.cleanupOrder = append(c.cleanupOrder, key)
	}
	c.cleanups[key] = cleanup
}

// Fail 记录构建错误，Build 会汇总返回
func (c *BuildContext) Fail(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Failf 按格式记录构建错误
func (c *BuildContext) Failf(format string, args ...any) {
	c.Fail(fmt.Errorf(format, args...))
}

func (c *BuildContext) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.errs...)
}

func (c *BuildContext) runCleanups() {
	c.mu.Lock()
	order := append([]string(nil), c.cleanupOrder...)
	cleanups := c.cleanups
	c.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		c.logger.Debug("running cleanup", logging.F("key", order[i]))
		cleanups[order[i]]()
	}
}

// ConfigureOptions 把 section 下的属性绑定为类型 T 的组件，名称为 name。
// 组件在首次使用时才绑定，绑定使用当时的属性链。
// 使用示例: core.ConfigureOptions[AppSetting](ctx, "appSetting", "app")
func ConfigureOptions[T any](ctx *BuildContext, name, section string) {
	chain := ctx.properties
	ctx.Provide(name, di.Supplier(func() (T, error) {
		return config.Load[T](chain, section)
	}))
	ctx.logger.Debug("configured options",
		logging.F("name", name),
		logging.F("type", di.TypeOf[T]().String()),
		logging.F("section", section))
}
