package core

import (
	"reflect"
	"sync"
)

// FeatureCollection 是一个类型安全的特性集合
// 用于在配置器之间共享构建期对象，例如 web 模块的 Host
type FeatureCollection struct {
	features sync.Map
}

// Set 按值的动态类型登记特性
func (fc *FeatureCollection) Set(feature any) {
	fc.features.Store(reflect.TypeOf(feature), feature)
}

// Get 获取特性
func (fc *FeatureCollection) Get(typ reflect.Type) (any, bool) {
	return fc.features.Load(typ)
}

// GetFeature 泛型辅助函数，从构建上下文获取特性
func GetFeature[T any](ctx *BuildContext) (T, bool) {
	var zero T
	// T 为接口时 reflect.TypeOf(zero) 为 nil，需要从指针取元素类型
	targetType := reflect.TypeOf((*T)(nil)).Elem()
	if val, ok := ctx.features.Get(targetType); ok {
		return val.(T), true
	}
	return zero, false
}
