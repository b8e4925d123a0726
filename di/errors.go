package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrFrozen 冻结后不允许结构性变更（新名称或别名）。
	ErrFrozen = errors.New("di: registry is frozen")
	// ErrClosed 容器已关闭。
	ErrClosed = errors.New("di: container is closed")
	// ErrUnknownScope 定义引用了未注册的作用域。
	ErrUnknownScope = errors.New("di: unknown scope")
	// ErrNotFrozen 容器尚未冻结，不能查找组件。
	ErrNotFrozen = errors.New("di: container is not frozen")
)

// DefinitionError 定义在结构上不合法。
type DefinitionError struct {
	Name   string
	Source string
	Reason string
	Err    error
}

func (e *DefinitionError) Error() string {
	var sb strings.Builder
	sb.WriteString("di: invalid definition")
	if e.Name != "" {
		fmt.Fprintf(&sb, " '%s'", e.Name)
	}
	if e.Source != "" {
		fmt.Fprintf(&sb, " (%s)", e.Source)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// DuplicateDefinitionError 冻结后试图覆盖已经产生或正在创建单例实例的定义。
type DuplicateDefinitionError struct {
	Name   string
	Source string
}

func (e *DuplicateDefinitionError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("di: cannot override definition '%s' (%s): its singleton instance already exists or is being created", e.Name, e.Source)
	}
	return fmt.Sprintf("di: cannot override definition '%s': its singleton instance already exists or is being created", e.Name)
}

// NoSuchDefinitionError 名称或别名没有对应的定义。
type NoSuchDefinitionError struct {
	Name string
}

func (e *NoSuchDefinitionError) Error() string {
	return fmt.Sprintf("di: no definition named '%s'", e.Name)
}

// MetadataConflictError 组合声明中两个元声明给出了相互冲突的属性值。
type MetadataConflictError struct {
	Declaration string
	Attribute   string
	Values      []string
	Source      string
}

func (e *MetadataConflictError) Error() string {
	msg := fmt.Sprintf("di: conflicting values %s for attribute '%s' in declaration '%s'",
		strings.Join(e.Values, " vs "), e.Attribute, e.Declaration)
	if e.Source != "" {
		msg += " (" + e.Source + ")"
	}
	return msg
}

// CircularDependencyError 构造期依赖成环，Path 的首尾是同一个名称。
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("di: circular dependency %s", strings.Join(e.Path, " -> "))
}

// AmbiguousDependencyError 多个候选满足同一类型，且无法消歧。
type AmbiguousDependencyError struct {
	Type       reflect.Type
	Requester  string
	Candidates []string
}

func (e *AmbiguousDependencyError) Error() string {
	msg := fmt.Sprintf("di: %d candidates for type %v: %s", len(e.Candidates), e.Type, strings.Join(e.Candidates, ", "))
	if e.Requester != "" {
		msg += fmt.Sprintf(" (required by '%s')", e.Requester)
	}
	return msg
}

// NoSuchDependencyError 没有定义满足所需类型。
type NoSuchDependencyError struct {
	Type      reflect.Type
	Requester string
}

func (e *NoSuchDependencyError) Error() string {
	if e.Requester != "" {
		return fmt.Sprintf("di: no component of type %v (required by '%s')", e.Type, e.Requester)
	}
	return fmt.Sprintf("di: no component of type %v", e.Type)
}

// InstantiationError 创建策略、属性填充或初始化回调失败。
type InstantiationError struct {
	Name  string
	Phase string
	Err   error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("di: instantiating '%s' failed during %s: %v", e.Name, e.Phase, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// CreationError 在每一层创建上包装错误，用于还原解析栈。
type CreationError struct {
	Name   string
	Source string
	Err    error
}

func (e *CreationError) Error() string {
	stack := ResolutionStack(e)
	cause := e.Err
	var inner *CreationError
	for errors.As(cause, &inner) {
		cause = inner.Err
	}

	msg := fmt.Sprintf("di: error creating '%s'", e.Name)
	if e.Source != "" {
		msg += " (" + e.Source + ")"
	}
	if len(stack) > 1 {
		msg += " [resolution stack: " + strings.Join(stack, " -> ") + "]"
	}
	return msg + ": " + cause.Error()
}

func (e *CreationError) Unwrap() error { return e.Err }

// ResolutionStack 返回错误链上从外到内的组件名称。
func ResolutionStack(err error) []string {
	var stack []string
	var ce *CreationError
	for errors.As(err, &ce) {
		stack = append(stack, ce.Name)
		err = ce.Err
	}
	return stack
}
