package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type Repository interface {
	Find(id int) string
}

type memRepository struct {
	Prefix string
}

func (r *memRepository) Find(id int) string {
	return fmt.Sprintf("%s-%d", r.Prefix, id)
}

type sqlRepository struct{}

func (r *sqlRepository) Find(id int) string {
	return fmt.Sprintf("sql-%d", id)
}

type UserService struct {
	Repo    Repository
	Timeout int
}

func NewUserService(repo Repository) *UserService {
	return &UserService{Repo: repo}
}

// 属性注入环
type nodeA struct {
	B *nodeB
}

type nodeB struct {
	A *nodeA
}

// 构造环
type ctorA struct{ b *ctorB }
type ctorB struct{ a *ctorA }

func newCtorA(b *ctorB) *ctorA { return &ctorA{b: b} }
func newCtorB(a *ctorA) *ctorB { return &ctorB{a: a} }

// recorder 记录生命周期事件
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// lifecycleBean 实现全部回调接口
type lifecycleBean struct {
	name string
	rec  *recorder
	fail bool
}

func (b *lifecycleBean) SetComponentName(name string) { b.name = name }

func (b *lifecycleBean) AfterPropertiesSet() error {
	b.rec.add("init:%s", b.name)
	if b.fail {
		return errors.New("init failed")
	}
	return nil
}

func (b *lifecycleBean) Destroy() error {
	b.rec.add("destroy:%s", b.name)
	return nil
}

func (b *lifecycleBean) OnContainerRefreshed(context.Context) error {
	b.rec.add("refreshed:%s", b.name)
	return nil
}

func (b *lifecycleBean) OnContainerClosing(context.Context) error {
	b.rec.add("closing:%s", b.name)
	return nil
}

func lifecycle(rec *recorder) Strategy {
	return Supplier(func() (*lifecycleBean, error) {
		return &lifecycleBean{rec: rec}, nil
	})
}

// plainService 通过方法名声明初始化与销毁
type plainService struct {
	started bool
	stopped bool
}

func (s *plainService) Start() error {
	s.started = true
	return nil
}

func (s *plainService) Stop() {
	s.stopped = true
}

type connectionFactory struct {
	URL string
}

func (f *connectionFactory) Open() (*connection, error) {
	if f.URL == "" {
		return nil, errors.New("empty url")
	}
	return &connection{url: f.URL}, nil
}

type connection struct {
	url string
}

func frozen(c *Container) *Container {
	if err := c.Freeze(context.Background()); err != nil {
		panic(err)
	}
	return c
}
