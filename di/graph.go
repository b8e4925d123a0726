package di

import (
	"fmt"
	"reflect"
	"strings"
)

// InjectionPoint 描述一次按类型装配的请求方。
type InjectionPoint struct {
	// Requester 发起请求的组件，存在其他候选时排除自身
	Requester string
	// Name 字段名或参数名，用于按名称消歧
	Name      string
	Qualifier string
	Optional  bool
}

type edgeKind int

const (
	edgeSoft edgeKind = iota
	edgeHard
	edgeDependsOn
)

// edge 依赖边
type edge struct {
	name string
	kind edgeKind
}

// SelectCandidate 在 typ 的候选中选出一个：唯一候选；唯一 primary；qualifier 匹配；
// 注入点名称匹配；否则 AmbiguousDependencyError。没有候选且注入点可选时返回 found=false。
func (c *Container) SelectCandidate(typ reflect.Type, ip InjectionPoint) (string, bool, error) {
	defs := c.registry.FindByType(typ)
	if len(defs) > 1 && ip.Requester != "" {
		filtered := defs[:0:0]
		for _, d := range defs {
			if d.Name != ip.Requester {
				filtered = append(filtered, d)
			}
		}
		if len(filtered) > 0 {
			defs = filtered
		}
	}

	switch len(defs) {
	case 0:
		if ip.Optional {
			return "", false, nil
		}
		return "", false, &NoSuchDependencyError{Type: typ, Requester: ip.Requester}
	case 1:
		return defs[0].Name, true, nil
	}

	if name, ok := uniqueMatch(defs, func(d *Definition) bool { return d.Primary }); ok {
		return name, true, nil
	}
	if ip.Qualifier != "" {
		if name, ok := uniqueMatch(defs, func(d *Definition) bool {
			return d.HasQualifier(ip.Qualifier) || c.matchesName(d, ip.Qualifier)
		}); ok {
			return name, true, nil
		}
	}
	if ip.Name != "" {
		if name, ok := uniqueMatch(defs, func(d *Definition) bool { return c.matchesName(d, ip.Name) }); ok {
			return name, true, nil
		}
	}

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return "", false, &AmbiguousDependencyError{Type: typ, Requester: ip.Requester, Candidates: names}
}

func uniqueMatch(defs []*Definition, pred func(*Definition) bool) (string, bool) {
	found := ""
	count := 0
	for _, d := range defs {
		if pred(d) {
			found = d.Name
			count++
		}
	}
	return found, count == 1
}

func (c *Container) matchesName(d *Definition, name string) bool {
	if d.Name == name {
		return true
	}
	return c.registry.CanonicalName(name) == d.Name
}

// candidatesFor 返回注入点需要的组件名称；切片类型在没有切片本身的定义时收集所有元素候选。
func (c *Container) candidatesFor(typ reflect.Type, ip InjectionPoint) ([]string, bool, error) {
	if typ.Kind() == reflect.Slice && len(c.registry.FindByType(typ)) == 0 {
		var names []string
		for _, d := range c.registry.FindByType(typ.Elem()) {
			if d.Name != ip.Requester {
				names = append(names, d.Name)
			}
		}
		if len(names) == 0 && !ip.Optional {
			return nil, true, &NoSuchDependencyError{Type: typ.Elem(), Requester: ip.Requester}
		}
		return names, true, nil
	}

	name, found, err := c.SelectCandidate(typ, ip)
	if err != nil || !found {
		return nil, false, err
	}
	return []string{name}, false, nil
}

// instanceType 实例的具体类型，用于查找属性和 di 字段
func instanceType(def *Definition) reflect.Type {
	switch def.Strategy.Kind {
	case StrategyStruct:
		return reflect.PointerTo(def.Strategy.Type)
	case StrategyConstructor:
		return reflect.TypeOf(def.Strategy.Func).Out(0)
	default:
		return def.Type
	}
}

// edges 计算定义的依赖边。depends-on、构造参数、工厂组件为硬边；属性与 di 字段为软边。
func (c *Container) edges(def *Definition) ([]edge, error) {
	var out []edge
	for _, name := range def.DependsOn {
		out = append(out, edge{name: c.registry.CanonicalName(name), kind: edgeDependsOn})
	}

	addValue := func(v Value, target reflect.Type, hint string, kind edgeKind) error {
		switch v.Kind {
		case ValueRef:
			if !c.registry.Contains(v.Ref) {
				if v.Optional {
					return nil
				}
				return &NoSuchDefinitionError{Name: v.Ref}
			}
			out = append(out, edge{name: c.registry.CanonicalName(v.Ref), kind: kind})
		case ValueAutowire:
			typ := v.Type
			if typ == nil {
				typ = target
			}
			if typ == nil {
				return nil
			}
			names, _, err := c.candidatesFor(typ, InjectionPoint{Requester: def.Name, Name: hint, Qualifier: v.Qualifier, Optional: v.Optional})
			if err != nil {
				return err
			}
			for _, n := range names {
				out = append(out, edge{name: n, kind: kind})
			}
		}
		return nil
	}

	s := def.Strategy
	switch s.Kind {
	case StrategyConstructor:
		fnType := reflect.TypeOf(s.Func)
		if len(s.Args) == 0 {
			for i := 0; i < fnType.NumIn(); i++ {
				value := Autowire(nil)
				if fnType.IsVariadic() && i == fnType.NumIn()-1 {
					value = value.AsOptional()
				}
				if err := addValue(value, fnType.In(i), "", edgeHard); err != nil {
					return nil, err
				}
			}
		} else {
			for i, arg := range s.Args {
				if err := addValue(arg, paramType(fnType, i), "", edgeHard); err != nil {
					return nil, err
				}
			}
		}
	case StrategyFactoryMethod:
		out = append(out, edge{name: c.registry.CanonicalName(s.FactoryBean), kind: edgeHard})
		var method reflect.Type
		if bt := c.registry.TypeOf(s.FactoryBean); bt != nil {
			if m, ok := bt.MethodByName(s.Method); ok {
				method = m.Type
				if bt.Kind() != reflect.Interface {
					method = methodWithoutReceiver(m.Type)
				}
			}
		}
		for i, arg := range s.Args {
			var target reflect.Type
			if method != nil {
				target = paramType(method, i)
			}
			if err := addValue(arg, target, "", edgeHard); err != nil {
				return nil, err
			}
		}
	}

	it := instanceType(def)
	for _, p := range def.Properties {
		target, _ := propertyType(it, p.Name)
		if err := addValue(p.Value, target, Decapitalize(p.Name), edgeSoft); err != nil {
			return nil, err
		}
	}
	for _, f := range taggedFields(it) {
		v := Qualified(f.typ, f.qualifier)
		v.Optional = f.optional
		if err := addValue(v, f.typ, Decapitalize(f.name), edgeSoft); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// orderWalk 深度优先后序遍历
type orderWalk struct {
	c       *Container
	visited map[string]bool
	onPath  map[string]int
	path    []string
	kinds   []edgeKind // kinds[i] 是进入 path[i] 的边
	order   []string
}

func newOrderWalk(c *Container) *orderWalk {
	return &orderWalk{
		c:       c,
		visited: make(map[string]bool),
		onPath:  make(map[string]int),
	}
}

func (w *orderWalk) visit(name string, in edgeKind) error {
	if idx, ok := w.onPath[name]; ok {
		return w.closeCycle(idx, name, in)
	}
	if w.visited[name] {
		return nil
	}

	def, err := w.c.registry.Lookup(name)
	if err != nil {
		return err
	}
	name = def.Name

	w.onPath[name] = len(w.path)
	w.path = append(w.path, name)
	w.kinds = append(w.kinds, in)

	edges, err := w.c.edges(def)
	if err != nil {
		return fmt.Errorf("di: resolving dependencies of '%s': %w", name, err)
	}
	for _, e := range edges {
		if err := w.visit(e.name, e.kind); err != nil {
			return err
		}
	}

	w.path = w.path[:len(w.path)-1]
	w.kinds = w.kinds[:len(w.kinds)-1]
	delete(w.onPath, name)
	w.visited[name] = true
	w.order = append(w.order, name)
	return nil
}

// closeCycle 判断环能否由提前暴露的单例引用打破：环的入口必须是单例，
// 离开入口的边必须是软边（入口已构造完成），且闭合边不是 depends-on。
func (w *orderWalk) closeCycle(idx int, name string, closing edgeKind) error {
	cycle := append(append([]string(nil), w.path[idx:]...), name)

	leaving := closing
	if idx+1 < len(w.kinds) {
		leaving = w.kinds[idx+1]
	}
	def, err := w.c.registry.Lookup(name)
	if err != nil {
		return err
	}
	if leaving == edgeSoft && closing != edgeDependsOn && def.IsSingleton() {
		return nil
	}
	return &CircularDependencyError{Path: cycle}
}

// ResolveOrder 返回创建 name 之前需要依次创建的组件，最后一个是 name 本身。
func (c *Container) ResolveOrder(name string) ([]string, error) {
	w := newOrderWalk(c)
	if err := w.visit(c.registry.CanonicalName(name), edgeHard); err != nil {
		return nil, err
	}
	return w.order, nil
}

// globalOrder 对一组根名称计算合并后的创建顺序。
func (c *Container) globalOrder(roots []string) ([]string, error) {
	w := newOrderWalk(c)
	for _, name := range roots {
		if err := w.visit(name, edgeHard); err != nil {
			return nil, err
		}
	}
	return w.order, nil
}

// paramType 返回函数第 i 个参数的类型，variadic 参数返回元素类型
func paramType(fnType reflect.Type, i int) reflect.Type {
	n := fnType.NumIn()
	if fnType.IsVariadic() && i >= n-1 {
		return fnType.In(n - 1).Elem()
	}
	if i >= n {
		return nil
	}
	return fnType.In(i)
}

// methodWithoutReceiver 把方法类型转换成不带接收者的函数类型
func methodWithoutReceiver(m reflect.Type) reflect.Type {
	in := make([]reflect.Type, 0, m.NumIn()-1)
	for i := 1; i < m.NumIn(); i++ {
		in = append(in, m.In(i))
	}
	out := make([]reflect.Type, 0, m.NumOut())
	for i := 0; i < m.NumOut(); i++ {
		out = append(out, m.Out(i))
	}
	return reflect.FuncOf(in, out, m.IsVariadic())
}

// propertyType 返回属性的目标类型：Set<Name> 方法的参数或同名导出字段
func propertyType(t reflect.Type, name string) (reflect.Type, bool) {
	if t == nil {
		return nil, false
	}
	if m, ok := setterOf(t, name); ok {
		if t.Kind() == reflect.Interface {
			return m.Type.In(0), true
		}
		return m.Type.In(1), true
	}
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, false
	}
	if f, ok := fieldByName(st, name); ok {
		return f.Type, true
	}
	return nil, false
}

func setterOf(t reflect.Type, name string) (reflect.Method, bool) {
	want := "Set" + capitalize(name)
	m, ok := t.MethodByName(want)
	if !ok {
		for i := 0; i < t.NumMethod(); i++ {
			if strings.EqualFold(t.Method(i).Name, want) {
				m, ok = t.Method(i), true
				break
			}
		}
	}
	if !ok {
		return m, false
	}
	params := m.Type.NumIn()
	if t.Kind() != reflect.Interface {
		params--
	}
	return m, params == 1
}

func fieldByName(st reflect.Type, name string) (reflect.StructField, bool) {
	if f, ok := st.FieldByName(name); ok && f.IsExported() {
		return f, true
	}
	return st.FieldByNameFunc(func(n string) bool {
		return strings.EqualFold(n, name) && isExportedName(n)
	})
}

func isExportedName(n string) bool {
	return n != "" && strings.ToUpper(n[:1]) == n[:1]
}

// fieldPoint 带 di 标签的字段
type fieldPoint struct {
	index     int
	name      string
	typ       reflect.Type
	qualifier string
	optional  bool
	exported  bool
}

// taggedFields 解析 `di:"qualifier,optional"` 标签；`di:"?"` 表示可选且不带 qualifier。
func taggedFields(t reflect.Type) []fieldPoint {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var out []fieldPoint
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tagValue, hasTag := field.Tag.Lookup("di")
		if !hasTag {
			continue
		}

		parts := strings.Split(tagValue, ",")
		qualifier := strings.TrimSpace(parts[0])
		optional := false
		if qualifier == "?" || qualifier == "optional" {
			qualifier = ""
			optional = true
		}
		for _, part := range parts[1:] {
			part = strings.TrimSpace(part)
			if part == "optional" || part == "?" {
				optional = true
			}
		}
		out = append(out, fieldPoint{
			index:     i,
			name:      field.Name,
			typ:       field.Type,
			qualifier: qualifier,
			optional:  optional,
			exported:  field.IsExported(),
		})
	}
	return out
}
