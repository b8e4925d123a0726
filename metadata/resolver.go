package metadata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

// structural 这些属性在解析时立即替换占位符
var structural = []string{AttrName, AttrScope, AttrLazy, AttrPrimary, AttrQualifier, AttrDependsOn, AttrAliases, AttrInit, AttrDestroy}

// Resolver 将多个来源归一化为注册表中的定义
type Resolver struct {
	properties di.PlaceholderResolver
	logger     logging.Logger
}

// ResolverOption 配置 Resolver
type ResolverOption func(*Resolver)

// WithLogger 设置日志
func WithLogger(logger logging.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver 创建解析器，properties 为 nil 时只能解析带默认值的占位符
func NewResolver(properties di.PlaceholderResolver, opts ...ResolverOption) *Resolver {
	r := &Resolver{properties: properties, logger: logging.Nop()}
	if r.properties == nil {
		r.properties = config.NewChain()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 解析来源并返回新的注册表
func (r *Resolver) Resolve(sources ...Source) (*di.Registry, error) {
	registry := di.NewRegistry()
	registry.SetLogger(r.logger)
	if err := r.ResolveInto(registry, sources...); err != nil {
		return nil, err
	}
	return registry, nil
}

// ResolveInto 解析来源并登记到已有注册表，别名在所有定义登记之后处理
func (r *Resolver) ResolveInto(registry *di.Registry, sources ...Source) error {
	names := newNameAllocator()
	var aliases []Alias

	for _, src := range sources {
		candidates, err := src.Candidates()
		if err != nil {
			return err
		}

		pending := make([]*prepared, 0, len(candidates))
		for _, c := range candidates {
			p, err := r.prepare(c)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			if p.def.Name != "" {
				names.reserve(c.Unit, p.def.Name)
			}
			pending = append(pending, p)
		}

		for _, p := range pending {
			if p.def.Name == "" {
				derived := derivedName(p.def)
				if derived == "" {
					return &di.DefinitionError{Source: p.def.Source, Reason: "cannot derive a component name"}
				}
				p.def.Name = names.allocate(p.unit, derived)
			}
			if err := registry.Register(p.def); err != nil {
				return err
			}
			r.logger.Debug("resolved definition", logging.F("name", p.def.Name), logging.F("source", p.def.Source))
		}

		if a, ok := src.(Aliaser); ok {
			aliases = append(aliases, a.Aliases()...)
		}
	}

	for _, a := range aliases {
		name, err := r.properties.ResolvePlaceholders(a.Name)
		if err != nil {
			return fmt.Errorf("metadata: alias '%s' (%s): %w", a.Alias, a.Source, err)
		}
		if err := registry.Alias(name, a.Alias); err != nil {
			var de *di.DefinitionError
			if errors.As(err, &de) && de.Source == "" {
				de.Source = a.Source
			}
			return err
		}
	}
	return nil
}

type prepared struct {
	def  *di.Definition
	unit string
}

// prepare 展开声明并应用属性；不是组件的候选返回 nil
func (r *Resolver) prepare(c *Candidate) (*prepared, error) {
	if c.Definition == nil {
		return nil, &di.DefinitionError{Reason: "candidate without a definition"}
	}
	def := c.Definition.Clone()

	exp, err := Expand(c.Declarations...)
	if err != nil {
		return nil, annotate(err, def.Source)
	}
	if !c.Implicit && !exp.Component {
		r.logger.Debug("skipping candidate without component declaration", logging.F("source", def.Source))
		return nil, nil
	}

	attrs := make(Attributes, len(exp.Attributes))
	for _, key := range structural {
		raw, ok := exp.Attributes[key]
		if !ok {
			continue
		}
		v, err := r.properties.ResolvePlaceholders(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata: attribute '%s' (%s): %w", key, def.Source, err)
		}
		attrs[key] = strings.TrimSpace(v)
	}

	if err := apply(def, attrs); err != nil {
		return nil, err
	}
	return &prepared{def: def, unit: c.Unit}, nil
}

// apply 把属性写入定义，声明上的显式值覆盖定义中已有的值
func apply(def *di.Definition, attrs Attributes) error {
	invalid := func(key, value string) error {
		return &di.DefinitionError{Name: def.Name, Source: def.Source, Reason: fmt.Sprintf("invalid value %q for attribute '%s'", value, key)}
	}

	if v, ok := attrs[AttrName]; ok && v != "" {
		def.Name = v
	}
	if v, ok := attrs[AttrScope]; ok && v != "" {
		def.Scope = v
	}
	if v, ok := attrs[AttrLazy]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return invalid(AttrLazy, v)
		}
		def.Lazy = b
	}
	if v, ok := attrs[AttrPrimary]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return invalid(AttrPrimary, v)
		}
		def.Primary = b
	}
	if v, ok := attrs[AttrQualifier]; ok {
		def.Qualifiers = appendUnique(def.Qualifiers, splitList(v)...)
	}
	if v, ok := attrs[AttrDependsOn]; ok {
		def.DependsOn = appendUnique(def.DependsOn, splitList(v)...)
	}
	if v, ok := attrs[AttrAliases]; ok {
		def.Aliases = appendUnique(def.Aliases, splitList(v)...)
	}
	if v, ok := attrs[AttrInit]; ok && v != "" {
		def.InitMethod = v
	}
	if v, ok := attrs[AttrDestroy]; ok && v != "" {
		def.DestroyMethod = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

// annotate 给元数据错误补上来源位置
func annotate(err error, source string) error {
	var de *di.DefinitionError
	if errors.As(err, &de) && de.Source == "" {
		de.Source = source
	}
	var mc *di.MetadataConflictError
	if errors.As(err, &mc) && mc.Source == "" {
		mc.Source = source
	}
	return err
}
