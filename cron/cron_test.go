package cron

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type token struct {
	id        int64
	destroyed *[]int64
}

func (t *token) Destroy() error {
	*t.destroyed = append(*t.destroyed, t.id)
	return nil
}

type counter struct {
	n atomic.Int64
}

func newTokenContainer(t *testing.T, scope *RefreshScope) (*di.Container, *[]int64) {
	var destroyed []int64
	var seq int64
	c := di.NewContainer()
	require.NoError(t, c.RegisterScope("refresh", scope))
	require.NoError(t, c.Provide("token", di.Supplier(func() (*token, error) {
		seq++
		return &token{id: seq, destroyed: &destroyed}, nil
	}), di.WithScope("refresh")))
	require.NoError(t, c.Freeze(context.Background()))
	return c, &destroyed
}

func TestRefreshScopeDiscardsInstances(t *testing.T) {
	scope := NewRefreshScope("refresh", nil)
	var generations []uint64
	scope.OnRefresh(func(g uint64) { generations = append(generations, g) })
	c, destroyed := newTokenContainer(t, scope)

	a, err := di.ResolveNamed[*token](c, "token")
	require.NoError(t, err)
	b, err := di.ResolveNamed[*token](c, "token")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, scope.Len())

	require.NoError(t, scope.Refresh())
	assert.Equal(t, []int64{1}, *destroyed)
	assert.Equal(t, uint64(1), scope.Generation())
	assert.Equal(t, []uint64{1}, generations)
	assert.Zero(t, scope.Len())

	fresh, err := di.ResolveNamed[*token](c, "token")
	require.NoError(t, err)
	assert.NotSame(t, a, fresh)
	assert.Equal(t, int64(2), fresh.id)

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []int64{1, 2}, *destroyed)
}

func TestRefreshScopeKeepsFirstInstanceOnRace(t *testing.T) {
	scope := NewRefreshScope("refresh", nil)
	first := &token{id: 1}
	var inner any
	got, err := scope.Get(context.Background(), "token", func() (any, error) {
		// 另一次解析在本次 factory 执行期间写入
		inner, _ = scope.Get(context.Background(), "token", func() (any, error) { return first, nil })
		return &token{id: 2}, nil
	})
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Same(t, first, inner)
}

func TestRefreshScopeJoinsDestroyErrors(t *testing.T) {
	scope := NewRefreshScope("refresh", nil)
	boom := errors.New("boom")
	_, err := scope.Get(context.Background(), "x", func() (any, error) { return &counter{}, nil })
	require.NoError(t, err)
	require.NoError(t, scope.RegisterDestructionCallback(context.Background(), "x", func() error { return boom }))

	err = scope.Refresh()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "'x' in scope 'refresh'")
}

func TestBuilderValidation(t *testing.T) {
	b := NewBuilder(nil).
		WithLocation("Mars/Olympus").
		AddJob("not a spec", "bad", func() {}).
		AddJob("@every 1m", "dup", func() {}).
		AddJob("@every 1m", "dup", func() {}).
		AddJobWithDI("@every 1m", "notFunc", 42).
		AddJobWithDI("@every 1m", "twoResults", func() (int, error) { return 0, nil }).
		AddRefreshScope("", "").
		AddRefreshScope("refresh", "@hourly").
		AddRefreshScope("refresh", "@daily")

	_, err := b.Build(nil, nil)
	require.Error(t, err)
	for _, want := range []string{
		"invalid location 'Mars/Olympus'",
		"cron job 'bad': invalid spec",
		"cron job 'dup' already configured",
		"handler must be a function",
		"must return nothing or an error",
		"refresh scope name is required",
		"refresh scope 'refresh' already configured",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestBuilderSeconds(t *testing.T) {
	svc, err := NewBuilder(nil).WithSeconds().AddJob("*/5 * * * * *", "fast", func() {}).Build(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, svc)

	_, err = NewBuilder(nil).AddJob("*/5 * * * * *", "fast", func() {}).Build(nil, nil)
	assert.Error(t, err)

	svc, err = NewBuilder(nil).Build(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, svc)
}

func TestWrapHandlerWithDI(t *testing.T) {
	cnt := &counter{}
	c := di.NewContainer()
	require.NoError(t, c.Provide("counter", di.Instance(cnt)))
	require.NoError(t, c.Freeze(context.Background()))

	var sawContext bool
	job, err := wrapHandlerWithDI(c, logging.Nop(), "count", func(ctx context.Context, k *counter) error {
		sawContext = ctx != nil
		k.n.Add(1)
		return errors.New("logged, not returned")
	})
	require.NoError(t, err)
	job()
	job()
	assert.True(t, sawContext)
	assert.Equal(t, int64(2), cnt.n.Load())

	// 无法解析的参数只记录错误
	missing, err := wrapHandlerWithDI(c, logging.Nop(), "missing", func(*token) {})
	require.NoError(t, err)
	assert.NotPanics(t, missing)

	_, err = wrapHandlerWithDI(nil, logging.Nop(), "noContainer", func() {})
	assert.Error(t, err)
}

func TestServiceJobs(t *testing.T) {
	svc := newService(nil, logging.Nop())
	require.NoError(t, svc.AddJob("@every 1h", "a", func() {}))
	assert.Error(t, svc.AddJob("@every 1h", "a", func() {}))
	assert.Error(t, svc.AddJob("bogus", "b", func() {}))
	assert.Equal(t, []string{"a"}, svc.Jobs())
	svc.RemoveJob("a")
	assert.Empty(t, svc.Jobs())
}

func TestConvertToFields(t *testing.T) {
	fields := convertToFields([]any{"now", 1, "dangling"})
	require.Len(t, fields, 1)
	assert.Equal(t, "now", fields[0].Key)
}

func TestCronApplication(t *testing.T) {
	cnt := &counter{}
	app, err := core.NewApplicationBuilder().
		ConfigureLogging(func(lb *logging.LoggingBuilder) {
			lb.AddConsole(logging.ConsoleLoggerOptions{Output: io.Discard})
		}).
		ConfigureServices(func(s *core.ServiceCollection) {
			s.Add("counter", cnt)
			core.AddScoped[*token](s, "refresh", "token", func() *token { return &token{destroyed: new([]int64)} })
		}).
		Configure(Configure(func(b *Builder) {
			b.AddRefreshScope("refresh", "")
			b.AddJobWithDI("@every 1s", "tick", func(k *counter) { k.n.Add(1) })
		})).
		Build()
	require.NoError(t, err)

	scope, err := di.ResolveNamed[*RefreshScope](app.Container(), ScopeComponentName("refresh"))
	require.NoError(t, err)
	a, err := di.ResolveNamed[*token](app.Container(), "token")
	require.NoError(t, err)
	require.NoError(t, scope.Refresh())
	b, err := di.ResolveNamed[*token](app.Container(), "token")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	done := make(chan error, 1)
	go func() { done <- app.RunAsync(context.Background()) }()
	assert.Eventually(t, func() bool { return cnt.n.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, app.Stop(context.Background()))
	assert.NoError(t, <-done)
}
