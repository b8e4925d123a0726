package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/metadata"
)

// Application 应用程序接口
type Application interface {
	Run() error
	RunAsync(ctx context.Context) error
	Stop(ctx context.Context) error
	Container() *di.Container
	Properties() *config.Chain
	Logger() logging.Logger
	Environment() Environment
	GetService(ptr any)
}

// ApplicationBuilder 应用程序构建器
type ApplicationBuilder struct {
	environment          string
	properties           *config.Chain
	loggingBuilder       *logging.LoggingBuilder
	containerOptions     []di.ContainerOption
	sources              []metadata.Source
	configurators        []Configurator
	serviceConfigurators []func(*ServiceCollection)
	shutdownTimeout      time.Duration
	errs                 []error
	mu                   sync.Mutex
}

// NewApplicationBuilder 创建应用程序构建器，属性链默认只有环境变量一层
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{
		environment:     "development",
		properties:      config.NewChain(config.NewEnvSource("")),
		loggingBuilder:  logging.NewLoggingBuilder(),
		shutdownTimeout: 30 * time.Second,
	}
}

// UseEnvironment 设置环境
func (b *ApplicationBuilder) UseEnvironment(env string) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.environment = env
	return b
}

// ConfigureProperties 配置属性源链
func (b *ApplicationBuilder) ConfigureProperties(configure func(*config.Chain)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		configure(b.properties)
	}
	return b
}

// AddPropertyFile 按扩展名加载 yaml / json / .env 文件作为最低优先级的属性层
func (b *ApplicationBuilder) AddPropertyFile(path string, optional bool) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		source *config.MapSource
		err    error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".yaml" || ext == ".yml":
		source, err = config.LoadYamlFile(path, optional)
	case ext == ".json":
		source, err = config.LoadJsonFile(path, optional)
	case ext == ".env" || filepath.Base(path) == ".env":
		source, err = config.LoadDotenv(path, optional)
	default:
		err = fmt.Errorf("app: unsupported property file %s", path)
	}
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.properties.AddLast(source)
	return b
}

// ConfigureLogging 配置日志系统，未添加任何提供者时使用控制台输出
func (b *ApplicationBuilder) ConfigureLogging(configure func(*logging.LoggingBuilder)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		configure(b.loggingBuilder)
	}
	return b
}

// ConfigureContainer 追加容器选项，例如实例化钩子
func (b *ApplicationBuilder) ConfigureContainer(opts ...di.ContainerOption) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.containerOptions = append(b.containerOptions, opts...)
	return b
}

// AddSource 添加元数据来源
func (b *ApplicationBuilder) AddSource(sources ...metadata.Source) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, sources...)
	return b
}

// Configure 添加配置器
func (b *ApplicationBuilder) Configure(configurators ...Configurator) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configurators = append(b.configurators, configurators...)
	return b
}

// ConfigureServices 登记组件
func (b *ApplicationBuilder) ConfigureServices(configure func(*ServiceCollection)) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if configure != nil {
		b.serviceConfigurators = append(b.serviceConfigurators, configure)
	}
	return b
}

// AddExtension 添加应用程序扩展
func (b *ApplicationBuilder) AddExtension(ext Extension) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := validateExtension(ext); err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	if sc, ok := ext.(ServiceConfigurator); ok {
		b.serviceConfigurators = append(b.serviceConfigurators, sc.ConfigureServices)
	}
	if ac, ok := ext.(AppConfigurator); ok {
		b.configurators = append(b.configurators, ac.ConfigureBuilder)
	}
	if sp, ok := ext.(SourceProvider); ok {
		b.sources = append(b.sources, sp.Sources()...)
	}
	return b
}

// AddOptions 把 section 下的属性绑定为 T 组件
// 使用示例: core.AddOptions[AppSetting](builder, "appSetting", "app")
func AddOptions[T any](b *ApplicationBuilder, name, section string) *ApplicationBuilder {
	return b.Configure(func(ctx *BuildContext) {
		ConfigureOptions[T](ctx, name, section)
	})
}

// AddTask 添加一个简单的后台任务
func (b *ApplicationBuilder) AddTask(name string, task func(ctx context.Context) error) *ApplicationBuilder {
	return b.Configure(func(ctx *BuildContext) {
		ctx.AddHostedService(hosting.Func(name, task))
	})
}

// UseShutdownTimeout 设置关闭超时
func (b *ApplicationBuilder) UseShutdownTimeout(timeout time.Duration) *ApplicationBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdownTimeout = timeout
	return b
}

// Build 构建应用程序：执行配置器，解析元数据来源，冻结容器并创建所有非延迟单例
func (b *ApplicationBuilder) Build() (Application, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	if b.loggingBuilder.ProviderCount() == 0 {
		b.loggingBuilder.AddConsole()
	}
	loggerFactory := b.loggingBuilder.Build()
	logger := loggerFactory.CreateLogger("Application")
	env := NewEnvironment(b.environment)

	logger.Info("building application", logging.F("environment", env.Name()))

	opts := []di.ContainerOption{
		di.WithLogger(loggerFactory.CreateLogger("Container")),
		di.WithPlaceholderResolver(b.properties),
	}
	container := di.NewContainer(append(opts, b.containerOptions...)...)

	ctx := newBuildContext(container, b.properties, logger, env)
	ctx.Provide("properties", di.Instance(b.properties))
	ctx.Provide("loggerFactory", di.Instance(loggerFactory), di.As[logging.LoggerFactory]())
	ctx.Provide("logger", di.Instance(logger), di.As[logging.Logger]())
	ctx.Provide("environment", di.Instance(env), di.As[Environment]())
	ctx.Provide("container", di.Instance(container))
	ctx.AddSource(b.sources...)

	for _, configurator := range b.configurators {
		configurator(ctx)
	}
	services := &ServiceCollection{ctx: ctx}
	for _, configure := range b.serviceConfigurators {
		configure(services)
	}
	if err := ctx.err(); err != nil {
		ctx.runCleanups()
		return nil, err
	}

	resolver := metadata.NewResolver(b.properties, metadata.WithLogger(loggerFactory.CreateLogger("Metadata")))
	if err := resolver.ResolveInto(container.Registry(), ctx.sources...); err != nil {
		ctx.runCleanups()
		return nil, err
	}

	if err := container.Freeze(context.Background()); err != nil {
		ctx.runCleanups()
		return nil, err
	}

	hosted := append([]hosting.HostedService(nil), ctx.hostedServices...)
	for _, name := range services.hosted {
		inst, err := container.GetByName(name)
		if err == nil {
			hs, ok := inst.(hosting.HostedService)
			if ok {
				hosted = append(hosted, hs)
				continue
			}
			err = fmt.Errorf("app: component '%s' of type %T does not implement HostedService", name, inst)
		}
		return nil, errors.Join(err, container.Close(context.Background()))
	}

	return &application{
		container:       container,
		properties:      b.properties,
		logger:          logger,
		environment:     env,
		buildContext:    ctx,
		hostedServices:  hosted,
		shutdownTimeout: b.shutdownTimeout,
		stopCh:          make(chan struct{}),
	}, nil
}

// application 应用程序实现
type application struct {
	container       *di.Container
	properties      *config.Chain
	logger          logging.Logger
	environment     Environment
	buildContext    *BuildContext
	hostedServices  []hosting.HostedService
	shutdownTimeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	running  bool
	mu       sync.Mutex
}

// Run 运行应用程序，阻塞直到收到 SIGINT / SIGTERM
func (a *application) Run() error {
	return a.RunAsync(context.Background())
}

// RunAsync 启动托管服务并阻塞，直到 ctx 取消、Stop 被调用、收到信号或托管服务失败；
// 随后停止托管服务、关闭容器并执行清理函数
func (a *application) RunAsync(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("app: application is already running")
	}
	if !a.container.Frozen() {
		a.mu.Unlock()
		return fmt.Errorf("app: %w", di.ErrClosed)
	}
	a.running = true
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info("starting application", logging.F("environment", a.environment.Name()))

	manager := hosting.NewHostedServiceManager(a.logger)
	manager.Add(a.hostedServices...)
	errCh := manager.StartAll(runCtx)

	var runErr error
	if err := a.buildContext.lifecycle.Start(runCtx); err != nil {
		a.logger.Error("start hook failed, stopping application", logging.Err(err))
		runErr = err
	} else {
		a.logger.Info("application started")
		runErr = a.wait(ctx, errCh)
	}

	a.logger.Info("shutting down application", logging.F("timeout", a.shutdownTimeout.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := manager.StopAll(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	manager.Wait()
	if err := a.buildContext.lifecycle.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := a.container.Close(shutdownCtx); err != nil {
		a.logger.Error("failed to close container", logging.Err(err))
		errs = append(errs, err)
	}
	a.buildContext.runCleanups()

	a.logger.Info("application stopped")
	return errors.Join(append([]error{runErr}, errs...)...)
}

func (a *application) wait(ctx context.Context, errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.logger.Info("received shutdown signal", logging.F("signal", sig.String()))
	case <-a.stopCh:
		a.logger.Info("application stop requested")
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	case err := <-errCh:
		a.logger.Error("hosted service failed, stopping application", logging.Err(err))
		return err
	}
	return nil
}

// Stop 请求停止，可以重复调用
func (a *application) Stop(context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	return nil
}

func (a *application) Container() *di.Container {
	return a.container
}

func (a *application) Properties() *config.Chain {
	return a.properties
}

func (a *application) Logger() logging.Logger {
	return a.logger
}

func (a *application) Environment() Environment {
	return a.environment
}

// GetService 按指针元素类型解析组件并赋值
//
// 使用示例：
//
//	var svc *UserService
//	app.GetService(&svc)
func (a *application) GetService(ptr any) {
	ptrValue := reflect.ValueOf(ptr)
	if ptrValue.Kind() != reflect.Pointer || ptrValue.IsNil() {
		panic(fmt.Sprintf("app: GetService argument must be a non-nil pointer, got %T", ptr))
	}
	elem := ptrValue.Elem()
	instance, err := a.container.GetByType(elem.Type())
	if err != nil {
		panic(fmt.Sprintf("app: failed to get service %s: %v", elem.Type(), err))
	}
	elem.Set(reflect.ValueOf(instance))
}

// Environment 环境接口
type Environment interface {
	Name() string
	IsDevelopment() bool
	IsProduction() bool
	IsStaging() bool
}

type environment struct {
	name string
}

// NewEnvironment 创建环境
func NewEnvironment(name string) Environment {
	return &environment{name: name}
}

func (e *environment) Name() string {
	return e.name
}

func (e *environment) IsDevelopment() bool {
	return e.name == "development"
}

func (e *environment) IsProduction() bool {
	return e.name == "production"
}

func (e *environment) IsStaging() bool {
	return e.name == "staging"
}
