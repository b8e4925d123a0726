package web

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// ScopeRequest 请求作用域的默认名称
const ScopeRequest = "request"

// RequestScope 为每个请求开启一个上下文作用域，请求结束时销毁其中的实例
// 处理器通过 c.Request.Context() 解析请求作用域中的组件
func RequestScope(scope *di.ContextualScope, logger logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.Nop()
	}
	return func(c *gin.Context) {
		ctx, id := di.NewScopeContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		defer func() {
			if err := scope.End(ctx, id); err != nil {
				logger.Error("ending request scope failed", logging.F("scope", id), logging.Err(err))
			}
		}()
		c.Next()
	}
}

// Resolve 在当前请求的作用域上下文中按名称解析组件
func Resolve[T any](c *gin.Context, container *di.Container, name string) (T, error) {
	var zero T
	inst, err := container.GetByNameContext(c.Request.Context(), name)
	if err != nil {
		return zero, err
	}
	v, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("web: component '%s' is %T, not %T", name, inst, zero)
	}
	return v, nil
}
