package metadata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gocrud/ioc/di"
)

// 可识别的属性名称
const (
	AttrName      = "name"
	AttrScope     = "scope"
	AttrLazy      = "lazy"
	AttrPrimary   = "primary"
	AttrQualifier = "qualifier"
	AttrDependsOn = "depends-on"
	AttrAliases   = "aliases"
	AttrInit      = "init"
	AttrDestroy   = "destroy"
)

// ComponentKind 到达它的声明才会成为组件
const ComponentKind = "Component"

// Attributes 声明上的属性，值可以带 ${key:default} 占位符，列表用逗号分隔
type Attributes map[string]string

// Declaration 声明：一个种类、一组属性，以及它自身携带的元声明
type Declaration struct {
	Kind       string
	Attributes Attributes
	Meta       []*Declaration
}

// Compose 创建组合声明，attrs 覆盖元声明提供的同名属性
func Compose(kind string, attrs Attributes, metas ...*Declaration) *Declaration {
	cp := make(Attributes, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return &Declaration{Kind: kind, Attributes: cp, Meta: metas}
}

// With 返回带有额外属性的副本
func (d *Declaration) With(key, value string) *Declaration {
	out := Compose(d.Kind, d.Attributes, d.Meta...)
	out.Attributes[key] = value
	return out
}

func (d *Declaration) String() string {
	return d.Kind
}

var (
	// Component 基础组件声明
	Component = &Declaration{Kind: ComponentKind, Attributes: Attributes{}}
	// Service 业务服务，元声明为 Component
	Service = Compose("Service", nil, Component)
	// Repository 数据访问组件，元声明为 Component
	Repository = Compose("Repository", nil, Component)
)

func attr(kind, key, value string) *Declaration {
	return &Declaration{Kind: kind, Attributes: Attributes{key: value}}
}

// Named 显式名称
func Named(name string) *Declaration { return attr("Named", AttrName, name) }

// Scope 作用域
func Scope(scope string) *Declaration { return attr("Scope", AttrScope, scope) }

// Lazy 冻结时不预创建
func Lazy() *Declaration { return attr("Lazy", AttrLazy, "true") }

// Primary 按类型查找时优先
func Primary() *Declaration { return attr("Primary", AttrPrimary, "true") }

// Qualifier qualifier 标签
func Qualifier(q string) *Declaration { return attr("Qualifier", AttrQualifier, q) }

// DependsOn 先于本组件创建的组件
func DependsOn(names ...string) *Declaration {
	return attr("DependsOn", AttrDependsOn, strings.Join(names, ","))
}

// Aliases 别名
func Aliases(names ...string) *Declaration {
	return attr("Aliases", AttrAliases, strings.Join(names, ","))
}

// InitMethod 初始化方法名
func InitMethod(method string) *Declaration { return attr("InitMethod", AttrInit, method) }

// DestroyMethod 销毁方法名
func DestroyMethod(method string) *Declaration { return attr("DestroyMethod", AttrDestroy, method) }

// Expanded 展开后的声明
type Expanded struct {
	Attributes Attributes
	// Component 声明链是否到达 Component
	Component bool
	// Kinds 展开过程中经过的种类，按深度优先顺序
	Kinds []string
}

// Expand 传递展开声明。传入的多个声明视为同一层的兄弟：
// 兄弟之间同名属性取值不同且上层没有覆盖时返回 MetadataConflictError；元声明成环返回 DefinitionError。
func Expand(decls ...*Declaration) (Expanded, error) {
	e := &expander{}
	root := &Declaration{Kind: "", Meta: decls}
	values, component, err := e.expand(root, nil)
	if err != nil {
		return Expanded{}, err
	}
	out := Expanded{Attributes: make(Attributes, len(values)), Component: component, Kinds: e.kinds}
	for k, v := range values {
		out.Attributes[k] = v.value
	}
	return out, nil
}

type origin struct {
	value string
	from  string
}

type expander struct {
	kinds []string
}

func (e *expander) expand(d *Declaration, path []*Declaration) (map[string]origin, bool, error) {
	for _, p := range path {
		if p == d {
			names := make([]string, 0, len(path)+1)
			start := false
			for _, q := range path {
				if q == d {
					start = true
				}
				if start {
					names = append(names, q.Kind)
				}
			}
			names = append(names, d.Kind)
			return nil, false, &di.DefinitionError{Reason: fmt.Sprintf("meta-declaration cycle %s", strings.Join(names, " -> "))}
		}
	}
	path = append(path[:len(path):len(path)], d)
	if d.Kind != "" {
		e.kinds = append(e.kinds, d.Kind)
	}

	component := d.Kind == ComponentKind
	inherited := make(map[string]origin)
	conflicts := make(map[string][]string)

	for _, m := range d.Meta {
		if m == nil {
			continue
		}
		values, isComponent, err := e.expand(m, path)
		if err != nil {
			return nil, false, err
		}
		component = component || isComponent
		for k, v := range values {
			prev, ok := inherited[k]
			if !ok {
				inherited[k] = v
				continue
			}
			if prev.value != v.value {
				if len(conflicts[k]) == 0 {
					conflicts[k] = append(conflicts[k], fmt.Sprintf("%s=%q", prev.from, prev.value))
				}
				conflicts[k] = append(conflicts[k], fmt.Sprintf("%s=%q", v.from, v.value))
			}
		}
	}

	keys := make([]string, 0, len(conflicts))
	for k := range conflicts {
		if _, overridden := d.Attributes[k]; !overridden {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		owner := d.Kind
		if owner == "" {
			owner = "<candidate>"
		}
		return nil, false, &di.MetadataConflictError{Declaration: owner, Attribute: keys[0], Values: conflicts[keys[0]]}
	}

	for k, v := range d.Attributes {
		from := d.Kind
		if from == "" {
			from = "<candidate>"
		}
		inherited[k] = origin{value: v, from: from}
	}
	return inherited, component, nil
}
