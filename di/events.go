package di

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gocrud/ioc/logging"
)

// EventFunc 生命周期事件回调。
type EventFunc func(ctx context.Context) error

// eventBus 广播 refreshed / closing 事件。
type eventBus struct {
	mu        sync.RWMutex
	refreshed []EventFunc
	closing   []EventFunc
}

func (b *eventBus) onRefreshed(fn EventFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshed = append(b.refreshed, fn)
}

func (b *eventBus) onClosing(fn EventFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closing = append(b.closing, fn)
}

func (b *eventBus) snapshot() ([]EventFunc, []EventFunc) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]EventFunc(nil), b.refreshed...), append([]EventFunc(nil), b.closing...)
}

// OnRefreshed 订阅冻结完成事件，按订阅顺序执行。
func (c *Container) OnRefreshed(fn EventFunc) {
	c.events.onRefreshed(fn)
}

// OnClosing 订阅关闭事件，按订阅的逆序执行。
func (c *Container) OnClosing(fn EventFunc) {
	c.events.onClosing(fn)
}

// fireRefreshed 先执行订阅函数，再通知实现 RefreshedListener 的单例（按创建顺序）。
// 第一个错误即中止。
func (c *Container) fireRefreshed(ctx context.Context) error {
	refreshed, _ := c.events.snapshot()
	for _, fn := range refreshed {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("di: refreshed listener: %w", err)
		}
	}
	for _, name := range c.singletons.creationOrder() {
		inst, ok := c.singletons.cached(name)
		if !ok {
			continue
		}
		if l, ok := inst.(RefreshedListener); ok {
			if err := l.OnContainerRefreshed(ctx); err != nil {
				return fmt.Errorf("di: refreshed listener '%s': %w", name, err)
			}
		}
	}
	return nil
}

// fireClosing 先按创建逆序通知 ClosingListener 单例，再按订阅逆序执行订阅函数。
// 错误记录日志后汇总返回，不中断后续回调。
func (c *Container) fireClosing(ctx context.Context) error {
	var errs []error

	order := c.singletons.creationOrder()
	for i := len(order) - 1; i >= 0; i-- {
		inst, ok := c.singletons.cached(order[i])
		if !ok {
			continue
		}
		if l, ok := inst.(ClosingListener); ok {
			if err := l.OnContainerClosing(ctx); err != nil {
				c.logger.Error("closing listener failed", logging.F("name", order[i]), logging.Err(err))
				errs = append(errs, fmt.Errorf("di: closing listener '%s': %w", order[i], err))
			}
		}
	}

	_, closing := c.events.snapshot()
	for i := len(closing) - 1; i >= 0; i-- {
		if err := closing[i](ctx); err != nil {
			c.logger.Error("closing callback failed", logging.Err(err))
			errs = append(errs, fmt.Errorf("di: closing callback: %w", err))
		}
	}
	return errors.Join(errs...)
}
