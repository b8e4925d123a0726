package di

import (
	"fmt"
	"reflect"
)

const (
	// ScopeSingleton 每个容器一个实例（默认）。
	ScopeSingleton = "singleton"
	// ScopePrototype 每次请求创建新实例，容器不跟踪。
	ScopePrototype = "prototype"
)

// StrategyKind 创建策略的种类。
type StrategyKind int

const (
	// StrategyStruct 分配零值结构体，然后填充属性。
	StrategyStruct StrategyKind = iota
	// StrategyConstructor 调用构造函数。
	StrategyConstructor
	// StrategyFactoryMethod 调用另一个组件上的方法。
	StrategyFactoryMethod
	// StrategySupplier 调用闭包。
	StrategySupplier
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyStruct:
		return "struct"
	case StrategyConstructor:
		return "constructor"
	case StrategyFactoryMethod:
		return "factory method"
	case StrategySupplier:
		return "supplier"
	default:
		return "unknown"
	}
}

// Strategy 描述如何创建实例。
type Strategy struct {
	Kind StrategyKind
	// Func 构造函数，返回 T 或 (T, error)
	Func any
	// Type 结构体策略的类型，或 Supplier 的产出类型
	Type reflect.Type
	// FactoryBean/Method 工厂方法策略
	FactoryBean string
	Method      string
	// Args 显式参数，为空时构造函数参数按类型自动装配
	Args   []Value
	supply func() (any, error)
}

// Constructor 使用构造函数创建实例。
func Constructor(fn any, args ...Value) Strategy {
	return Strategy{Kind: StrategyConstructor, Func: fn, Args: args}
}

// FactoryMethod 调用组件 bean 上名为 method 的方法创建实例。
func FactoryMethod(bean, method string, args ...Value) Strategy {
	return Strategy{Kind: StrategyFactoryMethod, FactoryBean: bean, Method: method, Args: args}
}

// Supplier 使用闭包创建实例，产出类型取自 T。
func Supplier[T any](fn func() (T, error)) Strategy {
	return Strategy{
		Kind: StrategySupplier,
		Type: TypeOf[T](),
		supply: func() (any, error) {
			return fn()
		},
	}
}

// Instance 把已有对象作为组件，相当于返回固定值的 Supplier。
func Instance(v any) Strategy {
	return Strategy{
		Kind: StrategySupplier,
		Type: reflect.TypeOf(v),
		supply: func() (any, error) {
			return v, nil
		},
	}
}

// Struct 分配类型 typ（结构体或指向结构体的指针）的实例，实例总是指针。
func Struct(typ reflect.Type) Strategy {
	return Strategy{Kind: StrategyStruct, Type: typ}
}

// StructOf 是 Struct(TypeOf[T]()) 的泛型写法。
func StructOf[T any]() Strategy {
	return Struct(TypeOf[T]())
}

// ValueKind 值规格的种类。
type ValueKind int

const (
	ValueLiteral ValueKind = iota
	ValueRef
	ValueAutowire
)

// Value 构造参数或属性的值规格。
type Value struct {
	Kind ValueKind
	// Literal 字面量，字符串中的占位符在实例化时解析
	Literal any
	// Ref 引用的组件名称
	Ref string
	// Type 自动装配的类型，nil 表示取注入点的类型
	Type      reflect.Type
	Qualifier string
	Optional  bool
}

// Literal 字面量值。
func Literal(v any) Value {
	return Value{Kind: ValueLiteral, Literal: v}
}

// Ref 按名称引用另一个组件。
func Ref(name string) Value {
	return Value{Kind: ValueRef, Ref: name}
}

// Autowire 按类型装配，typ 为 nil 时使用注入点自身的类型。
func Autowire(typ reflect.Type) Value {
	return Value{Kind: ValueAutowire, Type: typ}
}

// AutowireOf 是 Autowire(TypeOf[T]()) 的泛型写法。
func AutowireOf[T any]() Value {
	return Autowire(TypeOf[T]())
}

// Qualified 按类型装配，候选需匹配 qualifier。
func Qualified(typ reflect.Type, qualifier string) Value {
	return Value{Kind: ValueAutowire, Type: typ, Qualifier: qualifier}
}

// AsOptional 找不到候选时跳过注入。
func (v Value) AsOptional() Value {
	v.Optional = true
	return v
}

func (v Value) String() string {
	switch v.Kind {
	case ValueRef:
		return fmt.Sprintf("ref(%s)", v.Ref)
	case ValueAutowire:
		if v.Qualifier != "" {
			return fmt.Sprintf("autowire(%v, %s)", v.Type, v.Qualifier)
		}
		return fmt.Sprintf("autowire(%v)", v.Type)
	default:
		return fmt.Sprintf("%v", v.Literal)
	}
}

// Property 属性值：优先调用 Set<Name> 方法，否则写导出字段。
type Property struct {
	Name  string
	Value Value
}

// Definition 描述如何构建和管理一个命名组件。
type Definition struct {
	Name    string
	Aliases []string
	// Type 声明类型，为 nil 时由策略推断
	Type       reflect.Type
	Strategy   Strategy
	Properties []Property
	Scope      string
	Lazy       bool
	Primary    bool
	Qualifiers []string
	DependsOn  []string

	InitMethod    string
	DestroyMethod string
	InitFunc      func(instance any) error
	DestroyFunc   func(instance any) error

	// Source 定义来源位置，用于诊断
	Source string
}

// NewDefinition 创建定义并应用选项。
func NewDefinition(name string, strategy Strategy, opts ...Option) *Definition {
	def := &Definition{Name: name, Strategy: strategy, Scope: ScopeSingleton}
	for _, opt := range opts {
		opt(def)
	}
	return def
}

// ScopeName 返回作用域名称，空值视为 singleton。
func (d *Definition) ScopeName() string {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}

// IsSingleton 是否单例作用域。
func (d *Definition) IsSingleton() bool {
	return d.ScopeName() == ScopeSingleton
}

// IsPrototype 是否原型作用域。
func (d *Definition) IsPrototype() bool {
	return d.ScopeName() == ScopePrototype
}

// HasQualifier 判断定义是否带有 qualifier 标签。
func (d *Definition) HasQualifier(q string) bool {
	for _, v := range d.Qualifiers {
		if v == q {
			return true
		}
	}
	return false
}

// Clone 返回浅拷贝，切片字段独立。
func (d *Definition) Clone() *Definition {
	cp := *d
	cp.Aliases = append([]string(nil), d.Aliases...)
	cp.Properties = append([]Property(nil), d.Properties...)
	cp.Qualifiers = append([]string(nil), d.Qualifiers...)
	cp.DependsOn = append([]string(nil), d.DependsOn...)
	cp.Strategy.Args = append([]Value(nil), d.Strategy.Args...)
	return &cp
}

func (d *Definition) String() string {
	if d.Source != "" {
		return fmt.Sprintf("%s[%s %v] (%s)", d.Name, d.ScopeName(), d.Type, d.Source)
	}
	return fmt.Sprintf("%s[%s %v]", d.Name, d.ScopeName(), d.Type)
}
