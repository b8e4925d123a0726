package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

const maskedValue = "******"

// ComponentView 一个组件定义的检查视图
type ComponentView struct {
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Scope        string   `json:"scope"`
	Lazy         bool     `json:"lazy,omitempty"`
	Primary      bool     `json:"primary,omitempty"`
	Aliases      []string `json:"aliases,omitempty"`
	Qualifiers   []string `json:"qualifiers,omitempty"`
	DependsOn    []string `json:"dependsOn,omitempty"`
	Source       string   `json:"source,omitempty"`
	Instantiated bool     `json:"instantiated"`
}

// PropertyView 属性视图
type PropertyView struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Host 容器检查端点主机，实现 hosting.HostedService
type Host struct {
	options      HostOptions
	engine       *gin.Engine
	server       *http.Server
	container    *di.Container
	properties   *config.Chain
	metrics      *Metrics
	requestScope *di.ContextualScope
	logger       logging.Logger

	mu   sync.Mutex
	addr string
}

// ServiceName 实现 hosting.Named
func (h *Host) ServiceName() string {
	return "web"
}

// Handler 底层 HTTP 处理器
func (h *Host) Handler() http.Handler {
	return h.engine
}

// Metrics 指标，未启用时为 nil
func (h *Host) Metrics() *Metrics {
	return h.metrics
}

// RequestScope 请求作用域，未启用时为 nil
func (h *Host) RequestScope() *di.ContextualScope {
	return h.requestScope
}

// Address 实际监听地址 (e.g., "[::]:50234")，仅在 Start 后有效
func (h *Host) Address() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// Start 监听并提供服务，阻塞直到 Stop
func (h *Host) Start(context.Context) error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", h.server.Addr, err)
	}
	h.mu.Lock()
	h.addr = ln.Addr().String()
	h.mu.Unlock()

	h.logger.Info("Web host started",
		logging.F("address", ln.Addr().String()),
		logging.F("basePath", h.options.BasePath))

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.logger.Error("Web host error", logging.Err(err))
		return err
	}
	return nil
}

// Stop 优雅关闭
func (h *Host) Stop(ctx context.Context) error {
	h.logger.Info("Stopping web host")
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Error("Failed to shutdown web host gracefully", logging.Err(err))
		return err
	}
	h.logger.Info("Web host stopped")
	return nil
}

func (h *Host) mount(r gin.IRouter) {
	r.GET("/health", h.health)
	r.GET("/components", h.listComponents)
	r.GET("/components/:name", h.getComponent)
	r.GET("/properties", h.listProperties)
	r.GET("/properties/:key", h.getProperty)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

func (h *Host) health(c *gin.Context) {
	if !h.container.Frozen() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "UP",
		"definitions":  h.container.Registry().Len(),
		"instantiated": len(h.container.Instantiated()),
	})
}

func (h *Host) view(def *di.Definition) ComponentView {
	v := ComponentView{
		Name:         def.Name,
		Scope:        def.ScopeName(),
		Lazy:         def.Lazy,
		Primary:      def.Primary,
		Aliases:      h.container.Registry().AliasesOf(def.Name),
		Qualifiers:   def.Qualifiers,
		DependsOn:    def.DependsOn,
		Source:       def.Source,
		Instantiated: h.container.IsInstantiated(def.Name),
	}
	if t := h.container.Registry().TypeOf(def.Name); t != nil {
		v.Type = t.String()
	}
	return v
}

func (h *Host) listComponents(c *gin.Context) {
	defs := h.container.Definitions()
	views := make([]ComponentView, 0, len(defs))
	for _, def := range defs {
		views = append(views, h.view(def))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	c.JSON(http.StatusOK, views)
}

func (h *Host) getComponent(c *gin.Context) {
	def, err := h.container.Registry().Lookup(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.view(def))
}

func (h *Host) value(key, raw string) string {
	if h.options.masked(key) {
		return maskedValue
	}
	return raw
}

func (h *Host) listProperties(c *gin.Context) {
	keys := h.properties.Keys()
	props := make([]PropertyView, 0, len(keys))
	for _, key := range keys {
		raw, _ := h.properties.Lookup(key)
		props = append(props, PropertyView{Key: key, Value: h.value(key, raw)})
	}
	sources := make([]string, 0)
	for _, s := range h.properties.Sources() {
		sources = append(sources, s.Name())
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "properties": props})
}

func (h *Host) getProperty(c *gin.Context) {
	key := c.Param("key")
	value, ok, err := h.properties.Resolve(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"key": key, "error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"key": key, "error": "property not found"})
		return
	}
	c.JSON(http.StatusOK, PropertyView{Key: key, Value: h.value(key, value)})
}
