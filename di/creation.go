package di

import (
	"context"
	"reflect"
	"sync"
)

type chainKey struct{}

// earlyRef 已构造但尚未完成初始化的单例，用于打破属性注入环。
// 其他解析链也可能取用，字段由 mu 保护。
type earlyRef struct {
	instance any

	mu    sync.Mutex
	used  bool
	users []string
}

// take 记录 requester 取用了提前暴露的引用。
func (r *earlyRef) take(requester string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used = true
	if requester != "" {
		r.users = append(r.users, requester)
	}
	return r.instance
}

func (r *earlyRef) isUsed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

// takenBy 取用过该引用的组件
func (r *earlyRef) takenBy() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

// creationChain 一次顶层解析请求内正在创建的组件，随 context 向下传递。
// 不同的顶层请求各自持有一条链，互不干扰。
type creationChain struct {
	stack      []string
	inProgress map[string]int
	early      map[string]*earlyRef
	// waitingOn 当前链正在等待哪条链完成某个单例，由 singletonScope.mu 保护
	waitingOn *creationChain
}

// withChain 取出 ctx 上的创建链，没有则新建一条。
func withChain(ctx context.Context) (context.Context, *creationChain) {
	if ch, ok := ctx.Value(chainKey{}).(*creationChain); ok {
		return ctx, ch
	}
	ch := &creationChain{
		inProgress: make(map[string]int),
		early:      make(map[string]*earlyRef),
	}
	return context.WithValue(ctx, chainKey{}, ch), ch
}

func chainFrom(ctx context.Context) *creationChain {
	ch, _ := ctx.Value(chainKey{}).(*creationChain)
	return ch
}

func (ch *creationChain) push(name string) {
	ch.inProgress[name] = len(ch.stack)
	ch.stack = append(ch.stack, name)
}

func (ch *creationChain) pop(name string) {
	delete(ch.inProgress, name)
	delete(ch.early, name)
	if n := len(ch.stack); n > 0 && ch.stack[n-1] == name {
		ch.stack = ch.stack[:n-1]
	}
}

// current 正在创建的最内层组件，没有时为空
func (ch *creationChain) current() string {
	if n := len(ch.stack); n > 0 {
		return ch.stack[n-1]
	}
	return ""
}

func (ch *creationChain) creating(name string) bool {
	_, ok := ch.inProgress[name]
	return ok
}

// cyclePath 返回从 name 首次进入到再次请求 name 的路径。
func (ch *creationChain) cyclePath(name string) []string {
	idx, ok := ch.inProgress[name]
	if !ok {
		return []string{name}
	}
	path := append([]string(nil), ch.stack[idx:]...)
	return append(path, name)
}

// empty 顶层请求结束后链应为空
func (ch *creationChain) empty() bool {
	return len(ch.stack) == 0 && len(ch.inProgress) == 0
}

// sameInstance 判断两个实例是否为同一对象，不可比较的值按底层指针比较。
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if va.Type().Comparable() {
		return a == b
	}
	return false
}
