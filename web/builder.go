package web

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// Builder 检查端点主机构建器（基于 Gin）
type Builder struct {
	core.BaseBuilder
	options      *HostOptions
	middleware   []gin.HandlerFunc
	routes       []func(gin.IRouter)
	requestScope string
}

// NewBuilder 创建 Web 构建器，ctx 可以为 nil
func NewBuilder(ctx *core.BuildContext) *Builder {
	// 设置 Gin 为发布模式（默认）
	gin.SetMode(gin.ReleaseMode)

	return &Builder{
		BaseBuilder: core.NewBaseBuilder(ctx),
		options:     NewDefaultOptions(),
	}
}

// Configure 修改主机配置
func (b *Builder) Configure(configure func(*HostOptions)) *Builder {
	configure(b.options)
	return b
}

// UsePort 设置端口
func (b *Builder) UsePort(port int) *Builder {
	b.options.Port = port
	return b
}

// UseBasePath 设置端点前缀
func (b *Builder) UseBasePath(path string) *Builder {
	b.options.BasePath = path
	return b
}

// Use 使用全局中间件
func (b *Builder) Use(middleware ...gin.HandlerFunc) *Builder {
	b.middleware = append(b.middleware, middleware...)
	return b
}

// Get 在端点前缀下追加 GET 路由
func (b *Builder) Get(path string, handlers ...gin.HandlerFunc) *Builder {
	b.routes = append(b.routes, func(r gin.IRouter) { r.GET(path, handlers...) })
	return b
}

// AddRequestScope 注册名为 name 的请求作用域，每个请求结束时销毁其中的实例
func (b *Builder) AddRequestScope(name string) *Builder {
	if name == "" {
		name = ScopeRequest
	}
	b.requestScope = name
	return b
}

// SetMode 设置 Gin 模式
func (b *Builder) SetMode(mode string) *Builder {
	gin.SetMode(mode)
	return b
}

// Options 当前配置
func (b *Builder) Options() HostOptions {
	return *b.options
}

// Build 构建主机；container 用于检查端点，properties 可以为 nil
func (b *Builder) Build(container *di.Container, properties *config.Chain, logger logging.Logger) (*Host, error) {
	if err := b.options.Validate(); err != nil {
		return nil, err
	}
	if container == nil {
		return nil, fmt.Errorf("web: container is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if properties == nil {
		properties = config.NewChain()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	h := &Host{
		options:    *b.options,
		engine:     engine,
		container:  container,
		properties: properties,
		logger:     logger,
	}

	if b.options.Metrics {
		h.metrics = NewMetrics(container)
		engine.Use(h.metrics.Middleware())
		container.AddAfterInit(h.metrics.AfterInit)
	}
	if b.requestScope != "" {
		h.requestScope = di.NewContextualScope(b.requestScope, di.NewMemoryStore())
		if err := container.RegisterScope(b.requestScope, h.requestScope); err != nil {
			return nil, err
		}
		engine.Use(RequestScope(h.requestScope, logger))
	}
	engine.Use(b.middleware...)

	group := engine.Group(b.options.BasePath)
	h.mount(group)
	for _, route := range b.routes {
		route(group)
	}

	h.server = &http.Server{
		Addr:    b.options.Addr(),
		Handler: engine,
	}
	return h, nil
}
