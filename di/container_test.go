package di

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gocrud/ioc/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupBeforeFreeze(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("repo", StructOf[memRepository]()))

	_, err := c.GetByName("repo")
	assert.ErrorIs(t, err, ErrNotFrozen)
	_, err = Resolve[*memRepository](c)
	assert.ErrorIs(t, err, ErrNotFrozen)
}

func TestFreezeIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	c := NewContainer(WithLogger(logging.NewWriterLogger(&buf, logging.LogLevelInfo)))
	require.NoError(t, c.Provide("repo", StructOf[memRepository]()))

	require.NoError(t, c.Freeze(context.Background()))
	require.NoError(t, c.Freeze(context.Background()))
	assert.True(t, c.Frozen())
	assert.Contains(t, buf.String(), "container frozen")

	err := c.Provide("late", StructOf[memRepository]())
	assert.ErrorIs(t, err, ErrFrozen)
}

func TestOverrideLazyAfterFreeze(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("repo", StructOf[memRepository](), WithLazy(), WithProperty("prefix", Literal("old"))))
	frozen(c)

	require.NoError(t, c.Provide("repo", StructOf[memRepository](), WithLazy(), WithProperty("prefix", Literal("new"))))
	repo, err := ResolveNamed[*memRepository](c, "repo")
	require.NoError(t, err)
	assert.Equal(t, "new", repo.Prefix)

	err = c.Provide("repo", StructOf[memRepository]())
	var dup *DuplicateDefinitionError
	assert.ErrorAs(t, err, &dup)
}

func TestUnknownScope(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("session", StructOf[memRepository](), WithScope("session")))

	err := c.Freeze(context.Background())
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestRegisterScopeRejectsBuiltins(t *testing.T) {
	c := NewContainer()
	store := NewContextualScope("x", NewMemoryStore())
	assert.Error(t, c.RegisterScope(ScopeSingleton, store))
	assert.Error(t, c.RegisterScope(ScopePrototype, store))
	assert.Error(t, c.RegisterScope("", store))
	assert.NoError(t, c.RegisterScope("request", store))

	s, ok := c.Scope("request")
	assert.True(t, ok)
	assert.Same(t, store, s)
}

func TestLifecycleEventOrder(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	require.NoError(t, c.Provide("first", lifecycle(rec)))
	require.NoError(t, c.Provide("second", lifecycle(rec)))
	c.OnRefreshed(func(context.Context) error {
		rec.add("fn:refreshed")
		return nil
	})
	c.OnClosing(func(context.Context) error {
		rec.add("fn:closing:1")
		return nil
	})
	c.OnClosing(func(context.Context) error {
		rec.add("fn:closing:2")
		return nil
	})
	frozen(c)
	require.NoError(t, c.Close(context.Background()))

	assert.Equal(t, []string{
		"init:first", "init:second",
		"fn:refreshed", "refreshed:first", "refreshed:second",
		"closing:second", "closing:first",
		"fn:closing:2", "fn:closing:1",
		"destroy:second", "destroy:first",
	}, rec.list())

	// 重复关闭无副作用
	require.NoError(t, c.Close(context.Background()))
	assert.Len(t, rec.list(), 11)

	_, err := c.GetByName("first")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRefreshedListenerErrorClosesContainer(t *testing.T) {
	rec := &recorder{}
	c := NewContainer()
	require.NoError(t, c.Provide("bean", lifecycle(rec)))
	c.OnRefreshed(func(context.Context) error {
		return errors.New("not ready")
	})

	err := c.Freeze(context.Background())
	assert.ErrorContains(t, err, "not ready")
	assert.Contains(t, rec.list(), "destroy:bean")
	assert.False(t, c.Frozen())
}

func TestDestroyErrorsAreJoined(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("a", StructOf[plainService](), WithDestroyFunc(func(any) error {
		return errors.New("a failed")
	})))
	require.NoError(t, c.Provide("b", StructOf[plainService](), WithDestroyFunc(func(any) error {
		return errors.New("b failed")
	})))
	frozen(c)

	err := c.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestGetByTypeAmbiguous(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("mem", StructOf[memRepository]()))
	require.NoError(t, c.Provide("sql", StructOf[sqlRepository]()))
	frozen(c)

	_, err := Resolve[Repository](c)
	var amb *AmbiguousDependencyError
	assert.ErrorAs(t, err, &amb)

	assert.Equal(t, []string{"mem", "sql"}, c.NamesForType(TypeOf[Repository]()))
}

func TestPrimaryWinsByType(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide("mem", StructOf[memRepository]()))
	require.NoError(t, c.Provide("sql", StructOf[sqlRepository](), WithPrimary()))
	require.NoError(t, c.Provide("service", Constructor(NewUserService)))
	frozen(c)

	svc := MustResolve[*UserService](c)
	assert.Equal(t, "sql-1", svc.Repo.Find(1))
}

func TestTokenAndInject(t *testing.T) {
	token := NewToken[*memRepository]("repo")
	c := NewContainer()
	require.NoError(t, c.Provide(token.Name(), StructOf[memRepository](), WithProperty("prefix", Literal("tok"))))
	require.NoError(t, c.Provide("other", StructOf[sqlRepository]()))
	frozen(c)

	repo, err := ResolveToken(c, token)
	require.NoError(t, err)
	assert.Equal(t, "tok", repo.Prefix)

	var injected *memRepository
	require.NoError(t, c.Inject(&injected))
	assert.Same(t, repo, injected)

	var byName Repository
	require.NoError(t, c.Inject(&byName, "other"))
	assert.Equal(t, "sql-2", byName.Find(2))

	assert.Error(t, c.Inject(injected))
	assert.Panics(t, func() {
		var missing *connection
		c.MustInject(&missing)
	})
}

func TestRegisterAuto(t *testing.T) {
	c := NewContainer()
	name, err := RegisterAuto(c, "", NewUserService)
	require.NoError(t, err)
	assert.Equal(t, "userService", name)

	name, err = RegisterAuto(c, "", TypeOf[memRepository]())
	require.NoError(t, err)
	assert.Equal(t, "memRepository", name)

	name, err = RegisterAuto(c, "factory", &connectionFactory{URL: "u"})
	require.NoError(t, err)
	assert.Equal(t, "factory", name)

	_, err = RegisterAuto(c, "", nil)
	assert.Error(t, err)

	Register[plainService](c, "")
	frozen(c)

	svc, err := Resolve[*UserService](c)
	require.NoError(t, err)
	assert.Equal(t, "-3", svc.Repo.Find(3))
	assert.True(t, c.Registry().Contains("plainService"))
}

func TestMultipleContainersAreIsolated(t *testing.T) {
	a := NewContainer()
	b := NewContainer()
	require.NoError(t, a.Provide("repo", StructOf[memRepository](), WithProperty("prefix", Literal("a"))))
	require.NoError(t, b.Provide("repo", StructOf[memRepository](), WithProperty("prefix", Literal("b"))))
	frozen(a)
	frozen(b)

	ra := MustResolve[*memRepository](a)
	rb := MustResolve[*memRepository](b)
	assert.NotSame(t, ra, rb)
	assert.Equal(t, "a", ra.Prefix)
	assert.Equal(t, "b", rb.Prefix)
}

func TestOverrideRejectedWhileSingletonInCreation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := NewContainer()
	require.NoError(t, c.Provide("slow", Supplier(func() (*memRepository, error) {
		close(started)
		<-release
		return &memRepository{Prefix: "old"}, nil
	}), WithLazy()))
	frozen(c)

	done := make(chan error, 1)
	go func() {
		_, err := c.GetByName("slow")
		done <- err
	}()
	<-started

	err := c.Provide("slow", StructOf[memRepository](), WithLazy(), WithProperty("prefix", Literal("new")))
	var dup *DuplicateDefinitionError
	assert.ErrorAs(t, err, &dup)

	close(release)
	require.NoError(t, <-done)
	repo, err := ResolveNamed[*memRepository](c, "slow")
	require.NoError(t, err)
	assert.Equal(t, "old", repo.Prefix)
}
