package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/robfig/cron/v3"
)

// refreshDefinition 按计划刷新的作用域
type refreshDefinition struct {
	scope string
	spec  string
}

// Builder Cron 配置构建器
type Builder struct {
	core.BaseBuilder
	enableSeconds    bool
	enableCronLogger bool
	location         string
	jobs             []jobDefinition
	refreshes        []refreshDefinition
	errors           []error
}

// NewBuilder 创建 Cron 构建器，ctx 可以为 nil
func NewBuilder(ctx *core.BuildContext) *Builder {
	return &Builder{
		BaseBuilder: core.NewBaseBuilder(ctx),
		location:    "UTC",
	}
}

// WithSeconds 启用秒级精度
func (b *Builder) WithSeconds() *Builder {
	b.enableSeconds = true
	return b
}

// WithLocation 设置时区
func (b *Builder) WithLocation(location string) *Builder {
	b.location = location
	return b
}

// EnableCronLogger 启用 cron 库的内部调度日志
func (b *Builder) EnableCronLogger() *Builder {
	b.enableCronLogger = true
	return b
}

// AddJob 添加简单任务（无依赖注入）
func (b *Builder) AddJob(spec, name string, handler func()) *Builder {
	b.jobs = append(b.jobs, jobDefinition{spec: spec, name: name, handler: handler})
	return b
}

// AddJobWithDI 添加带依赖注入的任务
// handler 可以是任何函数，参数会在每次执行时从 DI 容器解析
//
// 示例：
//
//	builder.AddJobWithDI("@every 5m", "sync-data", func(svc *DataService, logger logging.Logger) error {
//	    return svc.Sync()
//	})
func (b *Builder) AddJobWithDI(spec, name string, handler any) *Builder {
	if err := checkHandler(handler); err != nil {
		b.errors = append(b.errors, fmt.Errorf("cron job '%s': %w", name, err))
		return b
	}
	b.jobs = append(b.jobs, jobDefinition{spec: spec, name: name, handler: handler})
	return b
}

// AddRefreshScope 注册名为 scope 的刷新作用域；spec 非空时按计划刷新
func (b *Builder) AddRefreshScope(scope, spec string) *Builder {
	if scope == "" {
		b.errors = append(b.errors, fmt.Errorf("refresh scope name is required"))
		return b
	}
	for _, r := range b.refreshes {
		if r.scope == scope {
			b.errors = append(b.errors, fmt.Errorf("refresh scope '%s' already configured", scope))
			return b
		}
	}
	b.refreshes = append(b.refreshes, refreshDefinition{scope: scope, spec: spec})
	return b
}

func (b *Builder) parser() cron.Parser {
	fields := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if b.enableSeconds {
		fields |= cron.Second
	}
	return cron.NewParser(fields)
}

// Build 校验配置并创建服务；没有任务和作用域时返回 nil
func (b *Builder) Build(container *di.Container, logger logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	errs := append([]error(nil), b.errors...)

	loc, err := time.LoadLocation(b.location)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid location '%s': %w", b.location, err))
	}
	parser := b.parser()
	seen := make(map[string]bool)
	for _, job := range b.jobs {
		if seen[job.name] {
			errs = append(errs, fmt.Errorf("cron job '%s' already configured", job.name))
		}
		seen[job.name] = true
		if _, err := parser.Parse(job.spec); err != nil {
			errs = append(errs, fmt.Errorf("cron job '%s': invalid spec '%s': %w", job.name, job.spec, err))
		}
	}
	for _, r := range b.refreshes {
		if r.spec == "" {
			continue
		}
		if _, err := parser.Parse(r.spec); err != nil {
			errs = append(errs, fmt.Errorf("refresh scope '%s': invalid spec '%s': %w", r.scope, r.spec, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("cron configuration errors: %w", errors.Join(errs...))
	}
	if len(b.jobs) == 0 && len(b.refreshes) == 0 {
		return nil, nil
	}

	cronOpts := []cron.Option{
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(newCronLogger(logger))),
	}
	if b.enableCronLogger {
		cronOpts = append(cronOpts, cron.WithLogger(newCronLogger(logger)))
	}

	svc := newService(container, logger, cronOpts...)
	svc.jobDefs = append(svc.jobDefs, b.jobs...)
	for _, r := range b.refreshes {
		scope := NewRefreshScope(r.scope, logger)
		svc.scopes = append(svc.scopes, scope)
		if r.spec == "" {
			continue
		}
		svc.jobDefs = append(svc.jobDefs, jobDefinition{
			spec: r.spec,
			name: "refresh:" + r.scope,
			handler: func() {
				if err := scope.Refresh(); err != nil {
					logger.Error("refresh scope failed", logging.F("scope", scope.Name()), logging.Err(err))
				}
			},
		})
	}
	return svc, nil
}
