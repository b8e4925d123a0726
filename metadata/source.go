package metadata

import (
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"sync"

	"github.com/gocrud/ioc/di"
)

// Candidate 归一化之前的一条组件描述
type Candidate struct {
	// Definition 创建策略、属性和回调；名称可以为空，由声明或类型推导
	Definition *di.Definition
	// Declarations 附加在候选上的声明，视为同一层兄弟展开
	Declarations []*Declaration
	// Unit 来源单元，推导名称的序号在单元内计算
	Unit string
	// Implicit 来源本身即声明了组件，不要求声明链到达 Component
	Implicit bool
}

// With 向定义追加选项
func (c *Candidate) With(opts ...di.Option) *Candidate {
	for _, opt := range opts {
		opt(c.Definition)
	}
	return c
}

// Source 元数据来源
type Source interface {
	Candidates() ([]*Candidate, error)
}

// Alias 来源中声明的顶层别名
type Alias struct {
	Name   string
	Alias  string
	Source string
}

// Aliaser 由能声明顶层别名的来源实现
type Aliaser interface {
	Aliases() []Alias
}

// SourceFunc 函数形式的来源
type SourceFunc func() ([]*Candidate, error)

func (f SourceFunc) Candidates() ([]*Candidate, error) {
	return f()
}

// Definitions 显式定义来源
func Definitions(defs ...*di.Definition) Source {
	return SourceFunc(func() ([]*Candidate, error) {
		out := make([]*Candidate, 0, len(defs))
		for _, def := range defs {
			if def == nil {
				return nil, &di.DefinitionError{Reason: "nil definition"}
			}
			out = append(out, &Candidate{Definition: def.Clone(), Unit: "definitions", Implicit: true})
		}
		return out, nil
	})
}

// Scanner 收集声明在某个单元（通常是一个包）内的候选，记录声明处的文件与行号。
//
//	var Components = metadata.NewScanner("user")
//
//	func init() {
//		Components.Declare(di.TypeOf[UserRepository](), metadata.Repository)
//		Components.Declare(NewUserService, metadata.Service, metadata.Primary())
//	}
type Scanner struct {
	unit       string
	mu         sync.Mutex
	candidates []*Candidate
}

// NewScanner 创建扫描单元
func NewScanner(unit string) *Scanner {
	return &Scanner{unit: unit}
}

// Unit 单元名称
func (s *Scanner) Unit() string {
	return s.unit
}

// Declare 声明候选：reflect.Type 为结构体策略，函数为构造函数，其他值为已有实例。
// 没有声明链到达 Component 的候选在解析时被跳过。
func (s *Scanner) Declare(target any, decls ...*Declaration) *Candidate {
	source := ""
	if _, file, line, ok := runtime.Caller(1); ok {
		source = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return s.declare(target, source, decls)
}

func (s *Scanner) declare(target any, source string, decls []*Declaration) *Candidate {
	var strategy di.Strategy
	switch t := target.(type) {
	case reflect.Type:
		strategy = di.Struct(t)
	default:
		if reflect.ValueOf(target).Kind() == reflect.Func {
			strategy = di.Constructor(target)
		} else {
			strategy = di.Instance(target)
		}
	}

	c := &Candidate{
		Definition:   di.NewDefinition("", strategy, di.WithSource(source)),
		Declarations: decls,
		Unit:         s.unit,
	}
	s.mu.Lock()
	s.candidates = append(s.candidates, c)
	s.mu.Unlock()
	return c
}

// Candidates 按声明顺序返回候选
func (s *Scanner) Candidates() ([]*Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.candidates {
		if c.Definition.Strategy.Kind == di.StrategySupplier && c.Definition.Strategy.Type == nil {
			return nil, &di.DefinitionError{Source: c.Definition.Source, Reason: "cannot declare a nil instance"}
		}
	}
	return append([]*Candidate(nil), s.candidates...), nil
}
