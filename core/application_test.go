package core

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Repository interface {
	Find(id int) string
}

type memRepository struct {
	Prefix string
}

func (r *memRepository) Find(id int) string {
	return r.Prefix + ":" + string(rune('0'+id))
}

type UserService struct {
	Repo Repository `di:""`
}

type ServerSetting struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, s)
}

func (e *events) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

type recordingService struct {
	events  *events
	started chan struct{}
}

func (s *recordingService) Start(ctx context.Context) error {
	s.events.add("service:start")
	close(s.started)
	<-ctx.Done()
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	s.events.add("service:stop")
	return nil
}

type closingBean struct {
	events *events
}

func (b *closingBean) Destroy() error {
	b.events.add("bean:destroy")
	return nil
}

func quietBuilder() *ApplicationBuilder {
	return NewApplicationBuilder().ConfigureLogging(func(lb *logging.LoggingBuilder) {
		lb.AddConsole(logging.ConsoleLoggerOptions{Output: io.Discard})
	})
}

func TestBuildWiresComponents(t *testing.T) {
	app, err := quietBuilder().
		ConfigureProperties(func(chain *config.Chain) {
			chain.AddFirst(config.NewMapSource("test", map[string]any{
				"repo":   map[string]any{"prefix": "mem"},
				"server": map[string]any{"host": "localhost", "port": 8080},
			}))
		}).
		ConfigureServices(func(s *ServiceCollection) {
			AddSingleton[Repository](s, "repo", di.TypeOf[memRepository](),
				di.WithProperty("prefix", di.Literal("${repo.prefix}")))
			s.Add("", di.TypeOf[UserService]())
		}).
		Configure(func(ctx *BuildContext) {
			ConfigureOptions[ServerSetting](ctx, "serverSetting", "server")
		}).
		Build()
	require.NoError(t, err)

	var svc *UserService
	app.GetService(&svc)
	assert.Equal(t, "mem:1", svc.Repo.Find(1))

	setting, err := di.Resolve[ServerSetting](app.Container())
	require.NoError(t, err)
	assert.Equal(t, ServerSetting{Host: "localhost", Port: 8080}, setting)

	logger, err := di.Resolve[logging.Logger](app.Container())
	require.NoError(t, err)
	assert.Same(t, app.Logger(), logger)

	chain, err := di.ResolveNamed[*config.Chain](app.Container(), "properties")
	require.NoError(t, err)
	assert.Same(t, app.Properties(), chain)
	assert.True(t, app.Environment().IsDevelopment())
}

func TestBuildResolvesMetadataSources(t *testing.T) {
	scan := metadata.NewScanner("core")
	scan.Declare(di.TypeOf[memRepository](), metadata.Repository, metadata.Named("memRepo")).
		With(di.WithProperty("prefix", di.Literal("scanned")))

	app, err := quietBuilder().AddSource(scan).Build()
	require.NoError(t, err)

	repo, err := di.ResolveNamed[Repository](app.Container(), "memRepo")
	require.NoError(t, err)
	assert.Equal(t, "scanned:2", repo.Find(2))
}

func TestBuildFailureRunsCleanups(t *testing.T) {
	cleaned := false
	_, err := quietBuilder().
		Configure(func(ctx *BuildContext) {
			ctx.SetCleanup("resource", func() { cleaned = true })
			ctx.Provide("bad", di.StructOf[memRepository](), di.WithProperty("prefix", di.Literal("${missing.key}")))
		}).
		Build()

	var unresolved *config.UnresolvedPlaceholderError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "missing.key", unresolved.Key)
	assert.True(t, cleaned)
}

func TestBuildCollectsConfiguratorErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := quietBuilder().
		Configure(func(ctx *BuildContext) {
			ctx.Fail(boom)
			ctx.RegisterScope(di.ScopeSingleton, di.NewContextualScope("singleton", di.NewMemoryStore()))
		}).
		Build()
	assert.ErrorIs(t, err, boom)
}

func TestRunLifecycle(t *testing.T) {
	ev := &events{}
	svc := &recordingService{events: ev, started: make(chan struct{})}

	app, err := quietBuilder().
		ConfigureServices(func(s *ServiceCollection) {
			s.Add("bean", &closingBean{events: ev})
		}).
		Configure(func(ctx *BuildContext) {
			ctx.AddHostedService(svc)
			ctx.Lifecycle().OnStart(func(context.Context) error {
				ev.add("hook:start")
				return nil
			})
			ctx.Lifecycle().OnStop(func(context.Context) error {
				ev.add("hook:stop")
				return nil
			})
			ctx.SetCleanup("final", func() { ev.add("cleanup") })
		}).
		Build()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.RunAsync(context.Background()) }()

	<-svc.started
	assert.Eventually(t, func() bool {
		return len(ev.snapshot()) >= 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, app.Stop(context.Background()))
	require.NoError(t, app.Stop(context.Background()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("application did not stop")
	}

	assert.ElementsMatch(t, []string{"service:start", "hook:start"}, ev.snapshot()[:2])
	assert.Equal(t, []string{"service:stop", "hook:stop", "bean:destroy", "cleanup"}, ev.snapshot()[2:])

	_, err = app.Container().GetByName("bean")
	assert.ErrorIs(t, err, di.ErrClosed)
}

func TestRunStopsOnHostedServiceFailure(t *testing.T) {
	boom := errors.New("crashed")
	app, err := quietBuilder().
		AddTask("crasher", func(context.Context) error { return boom }).
		Build()
	require.NoError(t, err)

	err = app.RunAsync(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Error(t, app.RunAsync(context.Background()))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app, err := quietBuilder().Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, app.RunAsync(ctx))
	assert.False(t, app.Container().Frozen())
}

func TestHostedServiceComponent(t *testing.T) {
	ev := &events{}
	app, err := quietBuilder().
		ConfigureServices(func(s *ServiceCollection) {
			s.AddHostedService("worker", &recordingService{events: ev, started: make(chan struct{})})
		}).
		Build()
	require.NoError(t, err)
	assert.Len(t, app.(*application).hostedServices, 1)

	_, err = quietBuilder().
		ConfigureServices(func(s *ServiceCollection) {
			s.AddHostedService("notService", &memRepository{})
		}).
		Build()
	assert.ErrorContains(t, err, "does not implement HostedService")
}

func TestAddPropertyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	b := quietBuilder().AddPropertyFile(path, false).AddPropertyFile(filepath.Join(dir, "missing.yml"), true)
	assert.Equal(t, "9090", b.properties.Get("server.port"))

	_, err := quietBuilder().AddPropertyFile(filepath.Join(dir, "app.toml"), false).Build()
	assert.ErrorContains(t, err, "unsupported property file")
}

func TestFeatures(t *testing.T) {
	ctx := newBuildContext(di.NewContainer(), config.NewChain(), logging.Nop(), NewEnvironment("test"))
	ctx.Features().Set(&ServerSetting{Port: 1})

	setting, ok := GetFeature[*ServerSetting](ctx)
	require.True(t, ok)
	assert.Equal(t, 1, setting.Port)

	_, ok = GetFeature[*memRepository](ctx)
	assert.False(t, ok)
}
