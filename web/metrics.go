package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/di"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 容器相关的 Prometheus 指标，使用独立的 Registry
type Metrics struct {
	registry *prometheus.Registry
	created  *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// NewMetrics 创建指标并注册容器状态的采集函数
func NewMetrics(container *di.Container) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ioc",
			Name:      "components_created_total",
			Help:      "Number of component instances created, by scope.",
		}, []string{"scope"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ioc",
			Name:      "http_requests_total",
			Help:      "Number of inspection requests, by route and status code.",
		}, []string{"method", "route", "code"}),
	}
	m.registry.MustRegister(m.created, m.requests)
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ioc",
			Name:      "definitions",
			Help:      "Number of registered component definitions.",
		}, func() float64 { return float64(container.Registry().Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ioc",
			Name:      "singletons_instantiated",
			Help:      "Number of singleton instances currently held by the container.",
		}, func() float64 { return float64(len(container.Instantiated())) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ioc",
			Name:      "container_frozen",
			Help:      "1 when the container is frozen and serving lookups.",
		}, func() float64 {
			if container.Frozen() {
				return 1
			}
			return 0
		}),
	)
	return m
}

// Registry 底层 Prometheus Registry，可注册业务指标
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AfterInit 统计组件创建的初始化后钩子
func (m *Metrics) AfterInit(instance any, def *di.Definition) (any, error) {
	m.created.WithLabelValues(def.ScopeName()).Inc()
	return instance, nil
}

// Middleware 统计请求
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
