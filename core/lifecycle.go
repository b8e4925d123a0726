package core

import (
	"context"
	"errors"
	"sync"

	"github.com/gocrud/ioc/logging"
)

// LifecycleEvents 管理应用程序启动和停止钩子
type LifecycleEvents struct {
	mu      sync.Mutex
	logger  logging.Logger
	onStart []func(context.Context) error
	onStop  []func(context.Context) error
}

// NewLifecycle 创建新的生命周期管理器
func NewLifecycle(logger logging.Logger) *LifecycleEvents {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LifecycleEvents{logger: logger}
}

// OnStart 注册启动钩子，在托管服务启动之后按注册顺序执行
func (l *LifecycleEvents) OnStart(fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStart = append(l.onStart, fn)
}

// OnStop 注册停止钩子，在托管服务停止之后按注册的逆序执行
func (l *LifecycleEvents) OnStop(fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStop = append(l.onStop, fn)
}

// Start 执行启动钩子，第一个错误即中止
func (l *LifecycleEvents) Start(ctx context.Context) error {
	l.mu.Lock()
	hooks := append([]func(context.Context) error(nil), l.onStart...)
	l.mu.Unlock()

	for _, fn := range hooks {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop 倒序执行停止钩子，错误记录后继续，最后汇总返回
func (l *LifecycleEvents) Stop(ctx context.Context) error {
	l.mu.Lock()
	hooks := append([]func(context.Context) error(nil), l.onStop...)
	l.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			l.logger.Error("stop hook failed", logging.Err(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
