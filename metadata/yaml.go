package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocrud/ioc/di"
	"gopkg.in/yaml.v3"
)

// YAMLSource 结构化外部定义。文档格式：
//
//	declarations:
//	  auditedService:
//	    meta: [Service]
//	    attributes: {scope: prototype}
//	components:
//	  - name: base
//	    abstract: true
//	    type: memRepository
//	    properties:
//	      prefix: "${app.prefix:demo}"
//	  - name: repo
//	    parent: base
//	    declarations: [Repository]
//	  - name: service
//	    constructor: newUserService
//	    args: [{ref: repo}]
//	aliases:
//	  store: repo
type YAMLSource struct {
	name    string
	data    []byte
	catalog *Catalog

	aliases []Alias
}

// FromYAML 从内存数据创建来源，name 用于错误位置和推导名称的单元
func FromYAML(name string, data []byte, catalog *Catalog) *YAMLSource {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &YAMLSource{name: name, data: data, catalog: catalog}
}

// LoadYAML 读取 YAML 定义文件
func LoadYAML(path string, catalog *Catalog) (*YAMLSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: reading %s: %w", path, err)
	}
	return FromYAML(filepath.Base(path), data, catalog), nil
}

type yamlDocument struct {
	Declarations yaml.Node   `yaml:"declarations"`
	Components   []yaml.Node `yaml:"components"`
	Aliases      yaml.Node   `yaml:"aliases"`
}

type yamlDeclaration struct {
	Meta       []string   `yaml:"meta"`
	Attributes Attributes `yaml:"attributes"`
}

type yamlComponent struct {
	Name          string      `yaml:"name"`
	Type          string      `yaml:"type"`
	Constructor   string      `yaml:"constructor"`
	FactoryBean   string      `yaml:"factory-bean"`
	FactoryMethod string      `yaml:"factory-method"`
	Parent        string      `yaml:"parent"`
	Abstract      bool        `yaml:"abstract"`
	Declarations  []string    `yaml:"declarations"`
	Scope         string      `yaml:"scope"`
	Lazy          string      `yaml:"lazy"`
	Primary       string      `yaml:"primary"`
	Qualifiers    []string    `yaml:"qualifiers"`
	DependsOn     []string    `yaml:"depends-on"`
	Aliases       []string    `yaml:"aliases"`
	Init          string      `yaml:"init"`
	Destroy       string      `yaml:"destroy"`
	Args          []yaml.Node `yaml:"args"`
	Properties    yaml.Node   `yaml:"properties"`

	source string
	props  []yamlProperty
}

type yamlProperty struct {
	name string
	node *yaml.Node
}

type yamlValue struct {
	Ref       string    `yaml:"ref"`
	Value     yaml.Node `yaml:"value"`
	Autowire  bool      `yaml:"autowire"`
	Type      string    `yaml:"type"`
	Qualifier string    `yaml:"qualifier"`
	Optional  bool      `yaml:"optional"`
}

func (s *YAMLSource) at(n *yaml.Node) string {
	return fmt.Sprintf("%s:%d", s.name, n.Line)
}

func (s *YAMLSource) invalid(n *yaml.Node, format string, args ...any) error {
	return &di.DefinitionError{Source: s.at(n), Reason: fmt.Sprintf(format, args...)}
}

// Aliases 顶层别名，在 Candidates 之后可用
func (s *YAMLSource) Aliases() []Alias {
	return s.aliases
}

func (s *YAMLSource) Candidates() ([]*Candidate, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(s.data, &root); err != nil {
		return nil, &di.DefinitionError{Source: s.name, Reason: "invalid yaml", Err: err}
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	var doc yamlDocument
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, &di.DefinitionError{Source: s.name, Reason: "invalid definition document", Err: err}
	}

	decls, err := s.declarations(&doc.Declarations)
	if err != nil {
		return nil, err
	}

	components := make([]*yamlComponent, 0, len(doc.Components))
	byName := make(map[string]*yamlComponent)
	for i := range doc.Components {
		n := &doc.Components[i]
		var c yamlComponent
		if err := n.Decode(&c); err != nil {
			return nil, &di.DefinitionError{Source: s.at(n), Reason: "invalid component", Err: err}
		}
		c.source = s.at(n)
		if c.Properties.Kind != 0 {
			if c.Properties.Kind != yaml.MappingNode {
				return nil, s.invalid(&c.Properties, "properties must be a mapping")
			}
			for j := 0; j+1 < len(c.Properties.Content); j += 2 {
				c.props = append(c.props, yamlProperty{name: c.Properties.Content[j].Value, node: c.Properties.Content[j+1]})
			}
		}
		if c.Name != "" {
			if _, dup := byName[c.Name]; dup {
				return nil, s.invalid(n, "component '%s' is declared twice", c.Name)
			}
			byName[c.Name] = &c
		}
		components = append(components, &c)
	}

	for _, c := range components {
		if err := s.inherit(c, byName, nil); err != nil {
			return nil, err
		}
	}

	var out []*Candidate
	for _, c := range components {
		if c.Abstract {
			continue
		}
		cand, err := s.candidate(c, decls)
		if err != nil {
			return nil, err
		}
		out = append(out, cand)
	}

	s.aliases = nil
	if doc.Aliases.Kind == yaml.MappingNode {
		for j := 0; j+1 < len(doc.Aliases.Content); j += 2 {
			k, v := doc.Aliases.Content[j], doc.Aliases.Content[j+1]
			s.aliases = append(s.aliases, Alias{Name: v.Value, Alias: k.Value, Source: s.at(k)})
		}
	}
	return out, nil
}

// declarations 先为每个种类创建声明再填充元声明，允许相互引用
func (s *YAMLSource) declarations(n *yaml.Node) (map[string]*Declaration, error) {
	out := make(map[string]*Declaration)
	if n.Kind == 0 {
		return out, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, s.invalid(n, "declarations must be a mapping")
	}

	specs := make(map[string]yamlDeclaration)
	keys := make(map[string]*yaml.Node)
	for j := 0; j+1 < len(n.Content); j += 2 {
		k, v := n.Content[j], n.Content[j+1]
		var spec yamlDeclaration
		if err := v.Decode(&spec); err != nil {
			return nil, &di.DefinitionError{Source: s.at(k), Reason: fmt.Sprintf("invalid declaration '%s'", k.Value), Err: err}
		}
		specs[k.Value] = spec
		keys[k.Value] = k
		out[k.Value] = Compose(k.Value, spec.Attributes)
	}
	for kind, spec := range specs {
		d := out[kind]
		for _, meta := range spec.Meta {
			m, ok := s.lookupDeclaration(meta, out)
			if !ok {
				return nil, s.invalid(keys[kind], "declaration '%s' refers to unknown meta-declaration '%s'", kind, meta)
			}
			d.Meta = append(d.Meta, m)
		}
	}
	return out, nil
}

func (s *YAMLSource) lookupDeclaration(kind string, local map[string]*Declaration) (*Declaration, bool) {
	if d, ok := local[kind]; ok {
		return d, true
	}
	return s.catalog.lookupDeclaration(kind)
}

// inherit 合并 parent 模板：子定义中未设置的字段取自父定义，属性按名称合并
func (s *YAMLSource) inherit(c *yamlComponent, byName map[string]*yamlComponent, visiting []string) error {
	if c.Parent == "" {
		return nil
	}
	for _, v := range visiting {
		if v == c.Name {
			return &di.DefinitionError{Name: c.Name, Source: c.source, Reason: fmt.Sprintf("parent cycle %s -> %s", strings.Join(visiting, " -> "), c.Name)}
		}
	}
	parent, ok := byName[c.Parent]
	if !ok {
		return &di.DefinitionError{Name: c.Name, Source: c.source, Reason: fmt.Sprintf("unknown parent '%s'", c.Parent)}
	}
	if err := s.inherit(parent, byName, append(visiting, c.Name)); err != nil {
		return err
	}

	str := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	str(&c.Type, parent.Type)
	str(&c.Constructor, parent.Constructor)
	str(&c.FactoryBean, parent.FactoryBean)
	str(&c.FactoryMethod, parent.FactoryMethod)
	str(&c.Scope, parent.Scope)
	str(&c.Lazy, parent.Lazy)
	str(&c.Primary, parent.Primary)
	str(&c.Init, parent.Init)
	str(&c.Destroy, parent.Destroy)
	if c.Declarations == nil {
		c.Declarations = parent.Declarations
	}
	if c.Qualifiers == nil {
		c.Qualifiers = parent.Qualifiers
	}
	if c.DependsOn == nil {
		c.DependsOn = parent.DependsOn
	}
	if c.Args == nil {
		c.Args = parent.Args
	}

	merged := append([]yamlProperty(nil), parent.props...)
	for _, p := range c.props {
		replaced := false
		for i := range merged {
			if merged[i].name == p.name {
				merged[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, p)
		}
	}
	c.props = merged
	c.Parent = ""
	return nil
}

func (s *YAMLSource) candidate(c *yamlComponent, local map[string]*Declaration) (*Candidate, error) {
	invalid := func(format string, args ...any) error {
		return &di.DefinitionError{Name: c.Name, Source: c.source, Reason: fmt.Sprintf(format, args...)}
	}

	args := make([]di.Value, 0, len(c.Args))
	for i := range c.Args {
		v, err := s.value(&c.Args[i])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	var opts []di.Option
	var strategy di.Strategy
	switch {
	case c.FactoryBean != "" || c.FactoryMethod != "":
		if c.FactoryBean == "" || c.FactoryMethod == "" {
			return nil, invalid("factory-bean and factory-method must be given together")
		}
		strategy = di.FactoryMethod(c.FactoryBean, c.FactoryMethod, args...)
	case c.Constructor != "":
		fn, ok := s.catalog.lookupFunc(c.Constructor)
		if !ok {
			return nil, invalid("unknown constructor '%s'", c.Constructor)
		}
		strategy = di.Constructor(fn, args...)
	case c.Type != "":
		if len(args) > 0 {
			return nil, invalid("args require a constructor or a factory method")
		}
		typ, ok := s.catalog.lookupType(c.Type)
		if !ok {
			return nil, invalid("unknown type '%s'", c.Type)
		}
		strategy = di.Struct(typ)
	default:
		return nil, invalid("component needs a type, a constructor or a factory method")
	}
	if c.Type != "" && strategy.Kind != di.StrategyStruct {
		typ, ok := s.catalog.lookupType(c.Type)
		if !ok {
			return nil, invalid("unknown type '%s'", c.Type)
		}
		opts = append(opts, di.WithType(typ))
	}

	for _, p := range c.props {
		v, err := s.value(p.node)
		if err != nil {
			return nil, err
		}
		opts = append(opts, di.WithProperty(p.name, v))
	}
	opts = append(opts, di.WithSource(c.source))

	attrs := Attributes{}
	set := func(key, value string) {
		if value != "" {
			attrs[key] = value
		}
	}
	set(AttrName, c.Name)
	set(AttrScope, c.Scope)
	set(AttrLazy, c.Lazy)
	set(AttrPrimary, c.Primary)
	set(AttrQualifier, strings.Join(c.Qualifiers, ","))
	set(AttrDependsOn, strings.Join(c.DependsOn, ","))
	set(AttrAliases, strings.Join(c.Aliases, ","))
	set(AttrInit, c.Init)
	set(AttrDestroy, c.Destroy)

	metas := make([]*Declaration, 0, len(c.Declarations))
	for _, kind := range c.Declarations {
		d, ok := s.lookupDeclaration(kind, local)
		if !ok {
			return nil, invalid("unknown declaration '%s'", kind)
		}
		metas = append(metas, d)
	}
	kind := c.Name
	if kind == "" {
		kind = "component"
	}

	return &Candidate{
		Definition:   di.NewDefinition("", strategy, opts...),
		Declarations: []*Declaration{Compose(kind, attrs, metas...)},
		Unit:         s.name,
		Implicit:     true,
	}, nil
}

// value 标量为字面量；带 ref/value/autowire/qualifier 的映射为值规格；其他结构编码为 YAML 文本字面量
func (s *YAMLSource) value(n *yaml.Node) (di.Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return di.Literal(nil), nil
		}
		return di.Literal(n.Value), nil
	case yaml.MappingNode:
		if !isValueSpec(n) {
			break
		}
		var spec yamlValue
		if err := n.Decode(&spec); err != nil {
			return di.Value{}, &di.DefinitionError{Source: s.at(n), Reason: "invalid value", Err: err}
		}
		var v di.Value
		switch {
		case spec.Ref != "":
			v = di.Ref(spec.Ref)
		case spec.Value.Kind != 0:
			lit, err := s.value(&spec.Value)
			if err != nil {
				return di.Value{}, err
			}
			v = lit
		default:
			v = di.Autowire(nil)
			if spec.Type != "" {
				typ, ok := s.catalog.lookupType(spec.Type)
				if !ok {
					return di.Value{}, s.invalid(n, "unknown type '%s'", spec.Type)
				}
				v = di.Autowire(typ)
			}
			v.Qualifier = spec.Qualifier
		}
		if spec.Optional {
			v = v.AsOptional()
		}
		return v, nil
	}

	text, err := yaml.Marshal(n)
	if err != nil {
		return di.Value{}, &di.DefinitionError{Source: s.at(n), Reason: "invalid value", Err: err}
	}
	return di.Literal(string(text)), nil
}

func isValueSpec(n *yaml.Node) bool {
	for j := 0; j < len(n.Content); j += 2 {
		switch n.Content[j].Value {
		case "ref", "value", "autowire", "qualifier":
			return true
		}
	}
	return false
}
