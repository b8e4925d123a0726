package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter struct {
	Greeting string
}

type requestLog struct {
	mu        sync.Mutex
	destroyed int
}

type requestTrace struct {
	log *requestLog
	id  int
}

func (t *requestTrace) Destroy() error {
	t.log.mu.Lock()
	defer t.log.mu.Unlock()
	t.log.destroyed++
	return nil
}

func newTestHost(t *testing.T, configure func(*Builder)) (*Host, *di.Container) {
	t.Helper()
	container := di.NewContainer()
	require.NoError(t, container.Provide("greeter", di.Instance(&greeter{Greeting: "hi"}),
		di.WithAliases("hello"), di.WithQualifiers("main")))

	properties := config.NewChain()
	properties.AddFirst(config.NewMapSource("test", map[string]any{
		"app": map[string]any{
			"name":        "demo",
			"db_password": "hunter2",
			"greeting":    "hello ${app.name}",
			"broken":      "${missing.key}",
		},
	}))

	builder := NewBuilder(nil)
	if configure != nil {
		configure(builder)
	}
	host, err := builder.Build(container, properties, nil)
	require.NoError(t, err)
	return host, container
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	host, container := newTestHost(t, nil)

	w := get(t, host.Handler(), "/ioc/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "DOWN")

	require.NoError(t, container.Freeze(context.Background()))
	w = get(t, host.Handler(), "/ioc/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "UP")
}

func TestComponents(t *testing.T) {
	host, container := newTestHost(t, nil)
	require.NoError(t, container.Freeze(context.Background()))

	w := get(t, host.Handler(), "/ioc/components")
	require.Equal(t, http.StatusOK, w.Code)

	var views []ComponentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "greeter", views[0].Name)
	assert.Equal(t, "*web.greeter", views[0].Type)
	assert.Equal(t, di.ScopeSingleton, views[0].Scope)
	assert.Equal(t, []string{"hello"}, views[0].Aliases)
	assert.Equal(t, []string{"main"}, views[0].Qualifiers)
	assert.True(t, views[0].Instantiated)

	w = get(t, host.Handler(), "/ioc/components/hello")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"greeter"`)

	w = get(t, host.Handler(), "/ioc/components/nobody")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProperties(t *testing.T) {
	host, _ := newTestHost(t, nil)

	w := get(t, host.Handler(), "/ioc/properties")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sources    []string       `json:"sources"`
		Properties []PropertyView `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"test"}, body.Sources)
	values := make(map[string]string)
	for _, p := range body.Properties {
		values[p.Key] = p.Value
	}
	assert.Equal(t, "demo", values["app.name"])
	assert.Equal(t, maskedValue, values["app.db_password"])
	assert.Equal(t, "hello ${app.name}", values["app.greeting"])

	w = get(t, host.Handler(), "/ioc/properties/app.greeting")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hello demo")

	w = get(t, host.Handler(), "/ioc/properties/app.db_password")
	assert.NotContains(t, w.Body.String(), "hunter2")

	assert.Equal(t, http.StatusNotFound, get(t, host.Handler(), "/ioc/properties/app.none").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, host.Handler(), "/ioc/properties/app.broken").Code)
}

func TestMetrics(t *testing.T) {
	host, container := newTestHost(t, nil)
	require.NotNil(t, host.Metrics())
	require.NoError(t, container.Freeze(context.Background()))
	get(t, host.Handler(), "/ioc/health")

	w := get(t, host.Handler(), "/ioc/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `ioc_components_created_total{scope="singleton"} 1`)
	assert.Contains(t, body, "ioc_definitions 1")
	assert.Contains(t, body, "ioc_container_frozen 1")
	assert.Contains(t, body, `ioc_http_requests_total{code="200",method="GET",route="/ioc/health"} 1`)

	disabled, _ := newTestHost(t, func(b *Builder) {
		b.Configure(func(o *HostOptions) { o.Metrics = false })
	})
	assert.Nil(t, disabled.Metrics())
	assert.Equal(t, http.StatusNotFound, get(t, disabled.Handler(), "/ioc/metrics").Code)
}

func TestRequestScope(t *testing.T) {
	rl := &requestLog{}
	seq := 0
	var host *Host
	var container *di.Container
	host, container = newTestHost(t, func(b *Builder) {
		b.AddRequestScope("").Get("/trace", func(c *gin.Context) {
			first, err := Resolve[*requestTrace](c, container, "trace")
			require.NoError(t, err)
			second, err := Resolve[*requestTrace](c, container, "trace")
			require.NoError(t, err)
			assert.Same(t, first, second)
			_, err = Resolve[*greeter](c, container, "trace")
			assert.Error(t, err)
			c.JSON(http.StatusOK, gin.H{"id": first.id})
		})
	})
	require.NoError(t, container.Provide("trace", di.Supplier(func() (*requestTrace, error) {
		seq++
		return &requestTrace{log: rl, id: seq}, nil
	}), di.WithScope(ScopeRequest)))
	require.NoError(t, container.Freeze(context.Background()))

	assert.JSONEq(t, `{"id":1}`, get(t, host.Handler(), "/ioc/trace").Body.String())
	assert.JSONEq(t, `{"id":2}`, get(t, host.Handler(), "/ioc/trace").Body.String())
	assert.Equal(t, 2, rl.destroyed)
	assert.Equal(t, 0, host.RequestScope().Active())
}

func TestOptionsValidate(t *testing.T) {
	o := NewDefaultOptions()
	o.BasePath = "admin/"
	require.NoError(t, o.Validate())
	assert.Equal(t, "/admin", o.BasePath)

	o.Port = 70000
	assert.Error(t, o.Validate())

	_, err := NewBuilder(nil).Build(nil, nil, nil)
	assert.Error(t, err)
}

func TestHostStartStop(t *testing.T) {
	host, container := newTestHost(t, func(b *Builder) {
		b.Configure(func(o *HostOptions) { o.Host = "127.0.0.1" }).UsePort(0)
	})
	require.NoError(t, container.Freeze(context.Background()))

	done := make(chan error, 1)
	go func() { done <- host.Start(context.Background()) }()
	require.Eventually(t, func() bool { return host.Address() != "" }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + host.Address() + "/ioc/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, host.Stop(context.Background()))
	assert.NoError(t, <-done)
	assert.True(t, strings.HasPrefix(host.Address(), "127.0.0.1:"))
}
