package di

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// Token 表示带类型的组件名称引用，用于按名称获取并保持类型安全
//
// 示例：
//
//	var Properties = di.NewToken[*config.Chain]("properties")
//
//	chain, err := di.ResolveToken(c, Properties)
type Token[T any] struct {
	name string
	typ  reflect.Type
}

// NewToken 创建一个新的 Token
func NewToken[T any](name string) *Token[T] {
	return &Token[T]{
		name: name,
		typ:  TypeOf[T](),
	}
}

// Name 返回 Token 的名称
func (t *Token[T]) Name() string {
	return t.name
}

// Type 返回 Token 的类型
func (t *Token[T]) Type() reflect.Type {
	return t.typ
}

// Ref 返回引用该组件的值规格
func (t *Token[T]) Ref() Value {
	return Ref(t.name)
}

// String 返回 Token 的字符串表示
func (t *Token[T]) String() string {
	return fmt.Sprintf("Token[%s](%s)", t.typ, t.name)
}

// TypeOf 获取类型 T 的 reflect.Type，T 可以是接口
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Decapitalize 首字母小写；前两个字母都是大写时保持原样（URLCache）
func Decapitalize(name string) string {
	if name == "" {
		return name
	}
	first, size := utf8.DecodeRuneInString(name)
	if len(name) > size {
		second, _ := utf8.DecodeRuneInString(name[size:])
		if unicode.IsUpper(first) && unicode.IsUpper(second) {
			return name
		}
	}
	return string(unicode.ToLower(first)) + name[size:]
}

// capitalize 首字母大写，用于拼接 Set<Name>
func capitalize(name string) string {
	if name == "" {
		return name
	}
	first, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(first)) + name[size:]
}
