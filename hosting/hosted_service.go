package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// HostedService 托管服务接口
// 框架会在独立的 goroutine 中调用 Start，用户无需自己启动 goroutine
type HostedService interface {
	// Start 启动服务。该方法可以阻塞，直到 context 被取消或发生错误。
	Start(ctx context.Context) error

	// Stop 执行优雅关闭逻辑，必须遵守 ctx 的超时。
	Stop(ctx context.Context) error
}

// Named 可选接口，提供日志中使用的服务名称
type Named interface {
	ServiceName() string
}

// NameOf 返回托管服务名称，未实现 Named 时使用类型名
func NameOf(service HostedService) string {
	if n, ok := service.(Named); ok {
		return n.ServiceName()
	}
	return fmt.Sprintf("%T", service)
}

// HostedServiceManager 托管服务管理器
type HostedServiceManager struct {
	services []HostedService
	logger   logging.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &HostedServiceManager{
		services: make([]HostedService, 0),
		logger:   logger,
	}
}

// Add 添加托管服务
func (m *HostedServiceManager) Add(services ...HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, services...)
}

// Len 已添加的服务数量
func (m *HostedServiceManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// StartAll 并发启动所有托管服务，返回的通道接收服务的非取消错误
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	services := append([]HostedService(nil), m.services...)
	m.mu.Unlock()

	errCh := make(chan error, len(services))
	m.logger.Info("starting hosted services", logging.F("count", len(services)))

	for _, service := range services {
		m.wg.Add(1)
		go func(svc HostedService) {
			defer m.wg.Done()
			name := NameOf(svc)
			m.logger.Debug("starting hosted service", logging.F("service", name))

			if err := svc.Start(runCtx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					m.logger.Debug("hosted service stopped (context done)", logging.F("service", name))
					return
				}
				m.logger.Error("hosted service failed", logging.F("service", name), logging.Err(err))
				// 通道容量等于服务数量，不会阻塞
				errCh <- fmt.Errorf("hosting: service %s: %w", name, err)
				return
			}
			m.logger.Debug("hosted service completed", logging.F("service", name))
		}(service)
	}
	return errCh
}

// StopAll 取消运行上下文并按添加的逆序依次停止服务，返回汇总的错误
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	services := append([]HostedService(nil), m.services...)
	m.mu.Unlock()

	m.logger.Info("stopping hosted services", logging.F("count", len(services)))

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		name := NameOf(services[i])
		if err := services[i].Stop(ctx); err != nil {
			m.logger.Error("failed to stop hosted service", logging.F("service", name), logging.Err(err))
			errs = append(errs, fmt.Errorf("hosting: stopping %s: %w", name, err))
			continue
		}
		m.logger.Debug("hosted service stopped", logging.F("service", name))
	}
	return errors.Join(errs...)
}

// Wait 等待所有 Start 返回
func (m *HostedServiceManager) Wait() {
	m.wg.Wait()
}

// Bind 把管理器挂到容器事件上：refreshed 时启动，closing 时停止。
// onError 接收服务运行期间的错误，可以为 nil。
func (m *HostedServiceManager) Bind(c *di.Container, onError func(error)) {
	c.OnRefreshed(func(ctx context.Context) error {
		errCh := m.StartAll(context.WithoutCancel(ctx))
		if onError != nil {
			go func() {
				for err := range errCh {
					onError(err)
				}
			}()
		}
		return nil
	})
	c.OnClosing(func(ctx context.Context) error {
		err := m.StopAll(ctx)
		m.Wait()
		return err
	})
}

// funcService 函数式托管服务
type funcService struct {
	name string
	task func(ctx context.Context) error
}

// Func 把阻塞函数包装为托管服务，停止通过取消 ctx 完成
func Func(name string, task func(ctx context.Context) error) HostedService {
	return &funcService{name: name, task: task}
}

func (f *funcService) ServiceName() string {
	return f.name
}

func (f *funcService) Start(ctx context.Context) error {
	return f.task(ctx)
}

func (f *funcService) Stop(context.Context) error {
	return nil
}

// BackgroundService 后台服务基类
type BackgroundService struct {
	name     string
	logger   logging.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
	doneOnce sync.Once
	doneCh   chan struct{}
}

// NewBackgroundService 创建后台服务
func NewBackgroundService(name string, logger logging.Logger) *BackgroundService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BackgroundService{
		name:   name,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (s *BackgroundService) ServiceName() string {
	return s.name
}

// Start 阻塞直到停止信号或上下文取消
func (s *BackgroundService) Start(ctx context.Context) error {
	defer s.Done()
	select {
	case <-s.stopCh:
	case <-ctx.Done():
	}
	return nil
}

// Stop 发出停止信号并等待 Done
func (s *BackgroundService) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		s.logger.Warn("background service stop timeout", logging.F("service", s.name))
		return ctx.Err()
	}
}

// StopChan 返回停止通道，用于在 select 中监听
func (s *BackgroundService) StopChan() <-chan struct{} {
	return s.stopCh
}

// Done 标记服务完成，可重复调用
func (s *BackgroundService) Done() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// TimedHostedService 按固定间隔执行任务的托管服务
type TimedHostedService struct {
	*BackgroundService
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewTimedHostedService 创建定时托管服务
func NewTimedHostedService(name string, interval time.Duration, task func(ctx context.Context) error, logger logging.Logger) *TimedHostedService {
	return &TimedHostedService{
		BackgroundService: NewBackgroundService(name, logger),
		interval:          interval,
		task:              task,
	}
}

// Start 按间隔执行任务，任务错误只记录日志
func (s *TimedHostedService) Start(ctx context.Context) error {
	defer s.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				s.logger.Error("timed task failed", logging.F("service", s.name), logging.Err(err))
			}
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
