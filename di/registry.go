package di

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/gocrud/ioc/logging"
)

var errorType = TypeOf[error]()

// Registry 组件定义表，冻结前可追加和覆盖，冻结后只允许值覆盖。
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	order       []string
	aliases     map[string]string
	frozen      bool
	version     uint64
	logger      logging.Logger

	// instantiated 由容器设置，判断单例是否已经存在或正在创建
	instantiated func(name string) bool
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
		aliases:     make(map[string]string),
		logger:      logging.Nop(),
	}
}

// SetLogger 设置覆盖定义时使用的日志。
func (r *Registry) SetLogger(logger logging.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register 校验并登记定义。
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return &DefinitionError{Reason: "nil definition"}
	}
	d := def.Clone()
	if err := prepare(d); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if target, ok := r.aliases[d.Name]; ok {
		return &DefinitionError{Name: d.Name, Source: d.Source, Reason: fmt.Sprintf("name is already an alias of '%s'", target)}
	}
	for _, alias := range d.Aliases {
		if alias == d.Name {
			return &DefinitionError{Name: d.Name, Source: d.Source, Reason: "alias equals the definition name"}
		}
		if _, ok := r.definitions[alias]; ok {
			return &DefinitionError{Name: d.Name, Source: d.Source, Reason: fmt.Sprintf("alias '%s' shadows a definition", alias)}
		}
	}

	existing, exists := r.definitions[d.Name]

	if r.frozen {
		if !exists {
			return &DefinitionError{Name: d.Name, Source: d.Source, Reason: "new names cannot be added", Err: ErrFrozen}
		}
		for _, alias := range d.Aliases {
			if r.aliases[alias] != d.Name {
				return &DefinitionError{Name: d.Name, Source: d.Source, Reason: fmt.Sprintf("alias '%s' cannot be added", alias), Err: ErrFrozen}
			}
		}
		if r.instantiated != nil && r.instantiated(d.Name) {
			return &DuplicateDefinitionError{Name: d.Name, Source: d.Source}
		}
		r.logger.Warn("overriding definition on frozen registry",
			logging.F("name", d.Name), logging.F("old", existing.Source), logging.F("new", d.Source))
		r.definitions[d.Name] = d
		r.version++
		return nil
	}

	if exists {
		r.logger.Warn("overriding definition",
			logging.F("name", d.Name), logging.F("old", existing.Source), logging.F("new", d.Source))
	} else {
		r.order = append(r.order, d.Name)
	}
	r.definitions[d.Name] = d

	for _, alias := range d.Aliases {
		if prev, ok := r.aliases[alias]; ok && prev != d.Name {
			r.logger.Warn("overriding alias", logging.F("alias", alias), logging.F("old", prev), logging.F("new", d.Name))
		}
		r.aliases[alias] = d.Name
	}
	r.version++
	return nil
}

// Alias 为 name 登记别名，别名可以指向另一个别名。
func (r *Registry) Alias(name, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return &DefinitionError{Name: name, Reason: fmt.Sprintf("alias '%s' cannot be added", alias), Err: ErrFrozen}
	}
	if name == alias {
		return &DefinitionError{Name: name, Reason: "alias equals the definition name"}
	}
	if _, ok := r.definitions[alias]; ok {
		return &DefinitionError{Name: name, Reason: fmt.Sprintf("alias '%s' shadows a definition", alias)}
	}
	// 别名成环
	for cur, seen := name, 0; ; seen++ {
		next, ok := r.aliases[cur]
		if !ok {
			break
		}
		if next == alias || seen > len(r.aliases) {
			return &DefinitionError{Name: name, Reason: fmt.Sprintf("alias '%s' would create a cycle", alias)}
		}
		cur = next
	}
	r.aliases[alias] = name
	r.version++
	return nil
}

// CanonicalName 沿别名链解析到定义名称。
func (r *Registry) CanonicalName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonical(name)
}

func (r *Registry) canonical(name string) string {
	for i := 0; i <= len(r.aliases); i++ {
		next, ok := r.aliases[name]
		if !ok {
			return name
		}
		name = next
	}
	return name
}

// Lookup 按名称或别名查找定义。
func (r *Registry) Lookup(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[r.canonical(name)]
	if !ok {
		return nil, &NoSuchDefinitionError{Name: name}
	}
	return def, nil
}

// Contains 名称或别名是否存在。
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.definitions[r.canonical(name)]
	return ok
}

// AliasesOf 返回直接或间接指向 name 的别名，按字母序。
func (r *Registry) AliasesOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for alias := range r.aliases {
		if r.canonical(alias) == name {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// Names 按登记顺序返回定义名称。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions 按登记顺序返回定义。
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.definitions[name])
	}
	return out
}

// Len 定义数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Freeze 禁止结构性变更。
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Version 每次登记或覆盖递增。
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Frozen 是否已冻结。
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// TypeOf 返回定义产出的类型，工厂方法定义通过工厂组件的方法签名推断。
func (r *Registry) TypeOf(name string) reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[r.canonical(name)]
	if !ok {
		return nil
	}
	return r.typeOf(def, 0)
}

func (r *Registry) typeOf(def *Definition, depth int) reflect.Type {
	if def.Type != nil {
		return def.Type
	}
	if def.Strategy.Kind != StrategyFactoryMethod || depth > len(r.definitions) {
		return nil
	}
	bean, ok := r.definitions[r.canonical(def.Strategy.FactoryBean)]
	if !ok {
		return nil
	}
	beanType := r.typeOf(bean, depth+1)
	if beanType == nil {
		return nil
	}
	method, ok := beanType.MethodByName(def.Strategy.Method)
	if !ok || method.Type.NumOut() == 0 {
		return nil
	}
	return method.Type.Out(0)
}

// FindByType 按登记顺序返回类型可赋值给 typ 的定义。
func (r *Registry) FindByType(typ reflect.Type) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Definition
	for _, name := range r.order {
		def := r.definitions[name]
		if t := r.typeOf(def, 0); t != nil && t.AssignableTo(typ) {
			out = append(out, def)
		}
	}
	return out
}

// prepare 校验策略并推断类型。
func prepare(d *Definition) error {
	if d.Name == "" {
		return &DefinitionError{Source: d.Source, Reason: "definition name is empty"}
	}
	if d.Scope == "" {
		d.Scope = ScopeSingleton
	}

	invalid := func(format string, args ...any) error {
		return &DefinitionError{Name: d.Name, Source: d.Source, Reason: fmt.Sprintf(format, args...)}
	}

	var produced reflect.Type
	s := &d.Strategy
	switch s.Kind {
	case StrategyStruct:
		if s.Type == nil {
			return invalid("struct strategy without a type")
		}
		base := s.Type
		if base.Kind() == reflect.Pointer {
			base = base.Elem()
		}
		if base.Kind() != reflect.Struct {
			return invalid("type %v has no usable constructor: not a struct", s.Type)
		}
		s.Type = base
		produced = reflect.PointerTo(base)

	case StrategyConstructor:
		if s.Func == nil {
			return invalid("constructor is nil")
		}
		fnType := reflect.TypeOf(s.Func)
		if fnType.Kind() != reflect.Func {
			return invalid("constructor must be a function, got %v", fnType)
		}
		if err := checkResults(fnType); err != nil {
			return invalid("constructor %v: %v", fnType, err)
		}
		if len(s.Args) > 0 {
			if fnType.IsVariadic() {
				if len(s.Args) < fnType.NumIn()-1 {
					return invalid("constructor %v needs at least %d arguments, got %d", fnType, fnType.NumIn()-1, len(s.Args))
				}
			} else if len(s.Args) != fnType.NumIn() {
				return invalid("constructor %v needs %d arguments, got %d", fnType, fnType.NumIn(), len(s.Args))
			}
		}
		produced = fnType.Out(0)

	case StrategyFactoryMethod:
		if s.FactoryBean == "" || s.Method == "" {
			return invalid("factory method strategy needs a factory bean and a method name")
		}

	case StrategySupplier:
		if s.supply == nil || s.Type == nil {
			return invalid("supplier without a function or a type")
		}
		produced = s.Type

	default:
		return invalid("unknown strategy kind %d", s.Kind)
	}

	if d.Type != nil && produced != nil && !produced.AssignableTo(d.Type) {
		return invalid("produced type %v is not assignable to declared type %v", produced, d.Type)
	}
	if d.Type == nil {
		d.Type = produced
	}
	return nil
}

// checkResults 函数必须返回 T 或 (T, error)。
func checkResults(fnType reflect.Type) error {
	switch fnType.NumOut() {
	case 1:
		return nil
	case 2:
		if fnType.Out(1) != errorType {
			return fmt.Errorf("second result must be error")
		}
		return nil
	default:
		return fmt.Errorf("must return T or (T, error)")
	}
}
