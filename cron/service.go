package cron

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/robfig/cron/v3"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// jobDefinition 任务定义
type jobDefinition struct {
	spec    string
	name    string
	handler any
}

// Service Cron 定时任务托管服务，实现 hosting.HostedService
type Service struct {
	cron      *cron.Cron
	logger    logging.Logger
	container *di.Container
	mu        sync.RWMutex
	jobs      map[string]cron.EntryID // 任务名称到任务ID的映射
	jobDefs   []jobDefinition         // Start 时注册
	scopes    []*RefreshScope
}

func newService(container *di.Container, logger logging.Logger, cronOpts ...cron.Option) *Service {
	return &Service{
		cron:      cron.New(cronOpts...),
		logger:    logger,
		container: container,
		jobs:      make(map[string]cron.EntryID),
	}
}

// ServiceName 实现 hosting.Named
func (s *Service) ServiceName() string {
	return "cron"
}

// Scopes 由本服务按计划刷新的作用域
func (s *Service) Scopes() []*RefreshScope {
	return append([]*RefreshScope(nil), s.scopes...)
}

// AddJob 添加定时任务，服务启动后也可以调用
// spec: cron 表达式，如 "0 */5 * * * *" (启用秒级时每5分钟) 或 "@every 1m"
func (s *Service) AddJob(spec, name string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron job '%s' already registered", name)
	}
	entryID, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug(fmt.Sprintf("Cron job '%s' started", name))
		defer s.logger.Debug(fmt.Sprintf("Cron job '%s' completed", name))
		job()
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job '%s': %w", name, err)
	}

	s.jobs[name] = entryID
	s.logger.Info(fmt.Sprintf("Cron job '%s' registered with spec '%s'", name, spec))
	return nil
}

// RemoveJob 移除定时任务
func (s *Service) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info(fmt.Sprintf("Cron job '%s' removed", name))
	}
}

// Jobs 已注册的任务名称
func (s *Service) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start 注册待处理任务并启动调度器，不阻塞
func (s *Service) Start(context.Context) error {
	s.logger.Info(fmt.Sprintf("CronService starting with %d pending jobs", len(s.jobDefs)))

	for _, job := range s.jobDefs {
		var handlerFunc func()
		switch h := job.handler.(type) {
		case func():
			handlerFunc = h
		default:
			wrapped, err := wrapHandlerWithDI(s.container, s.logger, job.name, h)
			if err != nil {
				return fmt.Errorf("cron: failed to wrap job '%s': %w", job.name, err)
			}
			handlerFunc = wrapped
		}
		if err := s.AddJob(job.spec, job.name, handlerFunc); err != nil {
			return err
		}
	}
	s.jobDefs = nil

	s.cron.Start()
	return nil
}

// Stop 停止调度器并等待运行中的任务结束
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("CronService stopping")
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkHandler 处理函数的返回值只能为空或 error
func checkHandler(handler any) error {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("handler must be a function, got %T", handler)
	}
	if t.IsVariadic() {
		return fmt.Errorf("handler must not be variadic")
	}
	if t.NumOut() > 1 || (t.NumOut() == 1 && t.Out(0) != errorType) {
		return fmt.Errorf("handler must return nothing or an error")
	}
	return nil
}

// wrapHandlerWithDI 包装处理器，每次执行时从容器按类型解析参数；context.Context 参数传入后台上下文
func wrapHandlerWithDI(container *di.Container, logger logging.Logger, name string, handler any) (func(), error) {
	if err := checkHandler(handler); err != nil {
		return nil, err
	}
	if container == nil {
		return nil, fmt.Errorf("DI container not available")
	}
	handlerValue := reflect.ValueOf(handler)
	handlerType := handlerValue.Type()

	return func() {
		ctx := context.Background()
		args := make([]reflect.Value, handlerType.NumIn())
		for i := range args {
			paramType := handlerType.In(i)
			if paramType == contextType {
				args[i] = reflect.ValueOf(ctx)
				continue
			}
			instance, err := container.GetByTypeContext(ctx, paramType)
			if err != nil {
				logger.Error(fmt.Sprintf("Failed to resolve parameter %d (%v) for cron job", i, paramType),
					logging.F("job", name), logging.Err(err))
				return
			}
			args[i] = reflect.ValueOf(instance)
		}

		out := handlerValue.Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			logger.Error("Cron job failed", logging.F("job", name), logging.Err(out[0].Interface().(error)))
		}
	}, nil
}

// cronLogger 适配器：将框架日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Err(err))
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.F(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
