package di

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocrud/ioc/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repoSet struct {
	Repos []Repository
}

func newRepoSet(repos ...Repository) *repoSet {
	return &repoSet{Repos: repos}
}

type repoList struct {
	All []Repository `di:""`
}

type awareBean struct {
	Name      string
	Container *Container
}

func (b *awareBean) SetComponentName(name string) { b.Name = name }
func (b *awareBean) SetContainer(c *Container)    { b.Container = c }

func TestRepositoryServiceWiring(t *testing.T) {
	chain := config.NewChain(config.NewMapSource("test", map[string]any{
		"app": map[string]any{"timeout": 30},
	}))
	c := NewContainer(WithPlaceholderResolver(chain))
	require.NoError(t, c.Provide("repo", StructOf[memRepository](), WithProperty("prefix", Literal("${app.prefix:demo}"))))
	require.NoError(t, c.Provide("service", Constructor(NewUserService), WithProperty("timeout", Literal("${app.timeout}"))))
	frozen(c)

	svc, err := Resolve[*UserService](c)
	require.NoError(t, err)
	assert.Equal(t, "demo-1", svc.Repo.Find(1))
	assert.Equal(t, 30, svc.Timeout)

	repo, err := ResolveNamed[Repository](c, "repo")
	require.NoError(t, err)
	assert.Same(t, svc.Repo, repo)
}

func TestUnresolvedPlaceholderFailsCreation(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("repo", StructOf[memRepository](), WithProperty("prefix", Literal("${app.prefix}"))))

	err := c.Freeze(context.Background())
	var unresolved *config.UnresolvedPlaceholderError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "app.prefix", unresolved.Key)

	_, err = c.GetByName("repo")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLiteralConversion(t *testing.T) {
	type settings struct {
		Port    int
		Ratio   float64
		Enabled bool
		Wait    time.Duration
		Hosts   []string
		Labels  map[string]string
		Count   int64
	}
	c := NewContainer()
	require.NoError(t, c.Provide("settings", StructOf[settings](),
		WithProperty("port", Literal("8080")),
		WithProperty("ratio", Literal("0.5")),
		WithProperty("enabled", Literal("true")),
		WithProperty("wait", Literal(2*time.Second)),
		WithProperty("hosts", Literal("[a, b]")),
		WithProperty("labels", Literal("{env: prod}")),
		WithProperty("count", Literal(7)),
	))
	frozen(c)

	s, err := Resolve[*settings](c)
	require.NoError(t, err)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, 0.5, s.Ratio)
	assert.True(t, s.Enabled)
	assert.Equal(t, 2*time.Second, s.Wait)
	assert.Equal(t, []string{"a", "b"}, s.Hosts)
	assert.Equal(t, map[string]string{"env": "prod"}, s.Labels)
	assert.Equal(t, int64(7), s.Count)
}

func TestLiteralConversionFailure(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("service", Constructor(NewUserService, Ref("repo")), WithProperty("timeout", Literal("soon"))))
	require.NoError(t, c.Provide("repo", StructOf[memRepository]()))

	err := c.Freeze(context.Background())
	var ie *InstantiationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "property population", ie.Phase)
}

func TestSetterCycleResolvedWithEarlyReference(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("a", StructOf[nodeA](), WithProperty("b", Ref("b"))))
	require.NoError(t, c.Provide("b", StructOf[nodeB](), WithProperty("a", Ref("a"))))
	frozen(c)

	a, err := ResolveNamed[*nodeA](c, "a")
	require.NoError(t, err)
	b, err := ResolveNamed[*nodeB](c, "b")
	require.NoError(t, err)
	assert.Same(t, b, a.B)
	assert.Same(t, a, b.A)
}

func TestConstructorCycleFails(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("a", Constructor(newCtorA)))
	require.NoError(t, c.Provide("b", Constructor(newCtorB)))

	err := c.Freeze(context.Background())
	var cycle *CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Path)
	assert.Empty(t, c.Instantiated())
}

func TestReplacedEarlyReferenceFails(t *testing.T) {
	// 创建顺序为 b, a：a 拿到的是 b 的提前引用
	hook := func(inst any, def *Definition) (any, error) {
		if def.Name == "b" {
			return &nodeB{A: inst.(*nodeB).A}, nil
		}
		return nil, nil
	}
	c := NewContainer(WithAfterInit(hook))
	require.NoError(t, c.Provide("a", StructOf[nodeA](), WithProperty("b", Ref("b"))))
	require.NoError(t, c.Provide("b", StructOf[nodeB](), WithProperty("a", Ref("a"))))

	err := c.Freeze(context.Background())
	var ie *InstantiationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "b", ie.Name)
	assert.Equal(t, "after-init hook", ie.Phase)
}

func TestAfterInitHookReplacesInstance(t *testing.T) {
	proxy := &plainService{started: true}
	c := NewContainer()
	c.AddAfterInit(func(inst any, def *Definition) (any, error) {
		if def.Name == "svc" {
			return proxy, nil
		}
		return nil, nil
	})
	require.NoError(t, c.Provide("svc", StructOf[plainService]()))
	frozen(c)

	got, err := ResolveNamed[*plainService](c, "svc")
	require.NoError(t, err)
	assert.Same(t, proxy, got)
}

func TestBeforeInitHookError(t *testing.T) {
	c := NewContainer(WithBeforeInit(func(any, *Definition) (any, error) {
		return nil, errors.New("rejected")
	}))
	require.NoError(t, c.Provide("svc", StructOf[plainService]()))

	err := c.Freeze(context.Background())
	var ie *InstantiationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "before-init hook", ie.Phase)
}

func TestConstructorPanicBecomesInstantiationError(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("boom", Constructor(func() *plainService { panic("kaboom") })))

	err := c.Freeze(context.Background())
	var ie *InstantiationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "constructor", ie.Phase)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestConstructorReturnedError(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("broken", Constructor(func() (*plainService, error) {
		return nil, errors.New("no database")
	})))

	err := c.Freeze(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
}

func TestResolutionStack(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("service", Constructor(NewUserService)))
	require.NoError(t, c.Provide("repo", Constructor(func() (Repository, error) {
		return nil, errors.New("connection refused")
	}), WithLazy()))

	err := c.Freeze(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"service", "repo"}, ResolutionStack(err))
	assert.Contains(t, err.Error(), "service -> repo")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFactoryMethod(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("factory", Instance(&connectionFactory{URL: "db://local"})))
	require.NoError(t, c.Provide("conn", FactoryMethod("factory", "Open")))
	frozen(c)

	conn, err := Resolve[*connection](c)
	require.NoError(t, err)
	assert.Equal(t, "db://local", conn.url)
}

func TestFactoryMethodMissing(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("factory", Instance(&connectionFactory{URL: "x"})))
	require.NoError(t, c.Provide("conn", FactoryMethod("factory", "Dial")))

	err := c.Freeze(context.Background())
	var ie *InstantiationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "factory method", ie.Phase)
}

func TestSliceInjection(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("sql", StructOf[sqlRepository]()))
	require.NoError(t, c.Provide("mem", StructOf[memRepository](), WithProperty("prefix", Literal("m"))))
	require.NoError(t, c.Provide("set", Constructor(newRepoSet)))
	require.NoError(t, c.Provide("list", StructOf[repoList]()))
	frozen(c)

	set, err := Resolve[*repoSet](c)
	require.NoError(t, err)
	require.Len(t, set.Repos, 2)
	assert.Equal(t, "sql-1", set.Repos[0].Find(1))
	assert.Equal(t, "m-1", set.Repos[1].Find(1))

	list, err := Resolve[*repoList](c)
	require.NoError(t, err)
	assert.Len(t, list.All, 2)

	all, err := ResolveAll[Repository](c)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestVariadicWithoutCandidates(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("set", Constructor(newRepoSet)))
	frozen(c)

	set, err := Resolve[*repoSet](c)
	require.NoError(t, err)
	assert.Empty(t, set.Repos)
}

func TestOptionalField(t *testing.T) {
	type consumer struct {
		Conn *connection `di:"?"`
		Repo Repository  `di:""`
	}
	c := NewContainer()
	require.NoError(t, c.Provide("repo", StructOf[memRepository]()))
	require.NoError(t, c.Provide("consumer", StructOf[consumer]()))
	frozen(c)

	got, err := Resolve[*consumer](c)
	require.NoError(t, err)
	assert.Nil(t, got.Conn)
	assert.NotNil(t, got.Repo)
}

func TestUnexportedTaggedField(t *testing.T) {
	type consumer struct {
		repo Repository `di:""`
	}
	c := NewContainer()
	require.NoError(t, c.Provide("repo", StructOf[memRepository]()))
	require.NoError(t, c.Provide("consumer", StructOf[consumer]()))

	err := c.Freeze(context.Background())
	assert.ErrorContains(t, err, "not exported")
}

func TestAwareInterfaces(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("aware", StructOf[awareBean]()))
	frozen(c)

	b, err := Resolve[*awareBean](c)
	require.NoError(t, err)
	assert.Equal(t, "aware", b.Name)
	assert.Same(t, c, b.Container)
}

func TestInitAndDestroyMethods(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("svc", StructOf[plainService](), WithInitMethod("Start"), WithDestroyMethod("Stop")))
	frozen(c)

	svc, err := Resolve[*plainService](c)
	require.NoError(t, err)
	assert.True(t, svc.started)

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, svc.stopped)
}

func TestInitFailureRollsBack(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	require.NoError(t, c.Provide("ok", lifecycle(rec)))
	require.NoError(t, c.Provide("bad", Supplier(func() (*lifecycleBean, error) {
		return &lifecycleBean{rec: rec, fail: true}, nil
	})))

	err := c.Freeze(context.Background())
	var ie *InstantiationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "initialization", ie.Phase)
	assert.Equal(t, []string{"init:ok", "init:bad", "destroy:ok"}, rec.list())
}

func TestLazySingleton(t *testing.T) {
	var calls atomic.Int32
	c := NewContainer()
	require.NoError(t, c.Provide("eager", Supplier(func() (*plainService, error) {
		calls.Add(1)
		return &plainService{}, nil
	})))
	require.NoError(t, c.Provide("lazy", Supplier(func() (*connection, error) {
		calls.Add(1)
		return &connection{url: "lazy"}, nil
	}), WithLazy()))
	frozen(c)

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.IsInstantiated("eager"))
	assert.False(t, c.IsInstantiated("lazy"))

	_, err := c.GetByName("lazy")
	require.NoError(t, err)
	_, err = c.GetByName("lazy")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, c.IsInstantiated("lazy"))
}

func TestConcurrentSingletonCreatedOnce(t *testing.T) {
	var calls atomic.Int32
	c := NewContainer()
	require.NoError(t, c.Provide("slow", Supplier(func() (*connection, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &connection{url: "slow"}, nil
	}), WithLazy()))
	frozen(c)

	const goroutines = 32
	results := make([]any, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := c.GetByName("slow")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestPrototypeScope(t *testing.T) {
	var destroyed atomic.Int32
	c := NewContainer()
	require.NoError(t, c.Provide("conn", Supplier(func() (*connection, error) {
		return &connection{url: "p"}, nil
	}), WithPrototype(), WithDestroyFunc(func(any) error {
		destroyed.Add(1)
		return nil
	})))
	frozen(c)

	a, err := c.GetByName("conn")
	require.NoError(t, err)
	b, err := c.GetByName("conn")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.False(t, c.IsInstantiated("conn"))

	require.NoError(t, c.DestroyInstance("conn", a))
	assert.Equal(t, int32(1), destroyed.Load())

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, int32(1), destroyed.Load())
}

func TestDependsOnOrdering(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	require.NoError(t, c.Provide("second", lifecycle(rec), WithDependsOn("first")))
	require.NoError(t, c.Provide("first", lifecycle(rec)))
	frozen(c)

	assert.Equal(t, []string{"first", "second"}, c.Instantiated())
	assert.Equal(t, []string{"init:first", "init:second", "refreshed:first", "refreshed:second"}, rec.list())
}

// lookupBean 在初始化回调中通过容器查找协作者
type lookupBean struct {
	container *Container
	Other     *connection
}

func (b *lookupBean) SetContainer(c *Container) { b.container = c }

func (b *lookupBean) AfterPropertiesSet() error {
	other, err := ResolveNamed[*connection](b.container, "other")
	if err != nil {
		return err
	}
	b.Other = other
	return nil
}

func withinSecond(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("container lookup did not return")
	}
}

func TestLookupFromInitializationCallbacks(t *testing.T) {
	c := NewContainer()
	other := Supplier(func() (*connection, error) { return &connection{url: "other"}, nil })
	require.NoError(t, c.Provide("other", other, WithLazy()))
	require.NoError(t, c.Provide("aware", StructOf[lookupBean](), WithLazy()))
	require.NoError(t, c.Provide("eager", StructOf[lookupBean]()))
	require.NoError(t, c.Provide("viaInit", StructOf[plainService](), WithLazy(), WithInitFunc(func(any) error {
		_, err := c.GetByName("other")
		return err
	})))
	c.AddAfterInit(func(inst any, def *Definition) (any, error) {
		if def.Name == "viaInit" {
			if _, err := c.GetByName("aware"); err != nil {
				return nil, err
			}
		}
		return inst, nil
	})

	withinSecond(t, func() { assert.NoError(t, c.Freeze(context.Background())) })

	withinSecond(t, func() {
		aware, err := ResolveNamed[*lookupBean](c, "aware")
		if assert.NoError(t, err) {
			assert.Equal(t, "other", aware.Other.url)
		}
		_, err = c.GetByName("viaInit")
		assert.NoError(t, err)
	})

	eager, err := ResolveNamed[*lookupBean](c, "eager")
	require.NoError(t, err)
	otherInst, err := ResolveNamed[*connection](c, "other")
	require.NoError(t, err)
	assert.Same(t, otherInst, eager.Other)
}

func TestFailedComponentDiscardsHoldersOfItsEarlyReference(t *testing.T) {
	var attempts atomic.Int32
	var destroyed []string
	c := NewContainer()
	require.NoError(t, c.Provide("a", StructOf[nodeA](), WithLazy(), WithProperty("b", Ref("b")),
		WithInitFunc(func(any) error {
			if attempts.Add(1) == 1 {
				return errors.New("first start fails")
			}
			return nil
		})))
	require.NoError(t, c.Provide("b", StructOf[nodeB](), WithLazy(), WithProperty("a", Ref("a")),
		WithDestroyFunc(func(any) error {
			destroyed = append(destroyed, "b")
			return nil
		})))
	frozen(c)

	_, err := c.GetByName("a")
	require.Error(t, err)
	assert.False(t, c.IsInstantiated("a"))
	assert.False(t, c.IsInstantiated("b"))
	assert.Equal(t, []string{"b"}, destroyed)

	a, err := ResolveNamed[*nodeA](c, "a")
	require.NoError(t, err)
	b, err := ResolveNamed[*nodeB](c, "b")
	require.NoError(t, err)
	assert.Same(t, a, b.A)
	assert.Same(t, b, a.B)
}

func TestSetterCycleAcrossConcurrentRequests(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("a", Supplier(func() (*nodeA, error) {
		time.Sleep(20 * time.Millisecond)
		return &nodeA{}, nil
	}), WithLazy(), WithProperty("b", Ref("b"))))
	require.NoError(t, c.Provide("b", Supplier(func() (*nodeB, error) {
		time.Sleep(20 * time.Millisecond)
		return &nodeB{}, nil
	}), WithLazy(), WithProperty("a", Ref("a"))))
	frozen(c)

	var wg sync.WaitGroup
	wg.Add(2)
	withinSecond(t, func() {
		go func() {
			defer wg.Done()
			_, err := c.GetByName("a")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := c.GetByName("b")
			assert.NoError(t, err)
		}()
		wg.Wait()
	})

	a, err := ResolveNamed[*nodeA](c, "a")
	require.NoError(t, err)
	b, err := ResolveNamed[*nodeB](c, "b")
	require.NoError(t, err)
	assert.Same(t, b, a.B)
	assert.Same(t, a, b.A)
}
