package metadata

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gocrud/ioc/di"
)

// DeriveName 由类型推导组件名称：去掉指针和类型参数后首字母小写。
func DeriveName(typ reflect.Type) string {
	if typ == nil {
		return ""
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	name := typ.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return di.Decapitalize(name)
}

// nameAllocator 同一来源单元内推导名称冲突时追加序号：repo、repo#1、repo#2
type nameAllocator struct {
	used map[string]map[string]bool
}

func newNameAllocator() *nameAllocator {
	return &nameAllocator{used: make(map[string]map[string]bool)}
}

func (a *nameAllocator) unit(unit string) map[string]bool {
	u, ok := a.used[unit]
	if !ok {
		u = make(map[string]bool)
		a.used[unit] = u
	}
	return u
}

// reserve 登记显式名称
func (a *nameAllocator) reserve(unit, name string) {
	a.unit(unit)[name] = true
}

func (a *nameAllocator) allocate(unit, derived string) string {
	u := a.unit(unit)
	name := derived
	for i := 1; u[name]; i++ {
		name = fmt.Sprintf("%s#%d", derived, i)
	}
	u[name] = true
	return name
}

// producedType 从策略推断产出类型，用于推导名称
func producedType(def *di.Definition) reflect.Type {
	if def.Type != nil && def.Type.Kind() != reflect.Interface {
		return def.Type
	}
	s := def.Strategy
	switch s.Kind {
	case di.StrategyStruct, di.StrategySupplier:
		if s.Type != nil {
			return s.Type
		}
	case di.StrategyConstructor:
		if fn := reflect.TypeOf(s.Func); fn != nil && fn.Kind() == reflect.Func && fn.NumOut() > 0 {
			return fn.Out(0)
		}
	}
	return def.Type
}

// derivedName 工厂方法定义取方法名，其余取产出类型名
func derivedName(def *di.Definition) string {
	if def.Strategy.Kind == di.StrategyFactoryMethod {
		return di.Decapitalize(def.Strategy.Method)
	}
	return DeriveName(producedType(def))
}
