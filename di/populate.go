package di

import (
	"context"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

// populate 写入属性值，然后装配 di 标签字段。
func (c *Container) populate(ctx context.Context, def *Definition, inst any) error {
	rv := reflect.ValueOf(inst)

	for _, p := range def.Properties {
		if err := c.setProperty(ctx, def, rv, p); err != nil {
			return fmt.Errorf("property '%s': %w", p.Name, err)
		}
	}

	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return nil
	}
	elem := rv.Elem()
	for _, f := range taggedFields(rv.Type()) {
		if !f.exported {
			return fmt.Errorf("field '%s' has a di tag but is not exported", f.name)
		}
		v := Qualified(f.typ, f.qualifier)
		v.Optional = f.optional
		val, ok, err := c.resolveValue(ctx, def, v, f.typ, Decapitalize(f.name))
		if err != nil {
			return fmt.Errorf("field '%s': %w", f.name, err)
		}
		if ok {
			elem.Field(f.index).Set(val)
		}
	}
	return nil
}

func (c *Container) setProperty(ctx context.Context, def *Definition, rv reflect.Value, p Property) error {
	if m, ok := setterOf(rv.Type(), p.Name); ok {
		method := rv.MethodByName(m.Name)
		mt := method.Type()
		val, ok, err := c.resolveValue(ctx, def, p.Value, mt.In(0), Decapitalize(p.Name))
		if err != nil || !ok {
			return err
		}
		out, err := callSetter(method, val)
		if err != nil {
			return err
		}
		if len(out) == 1 && out[0].Type() == errorType && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}

	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%v has no setter Set%s and is not a struct pointer", rv.Type(), capitalize(p.Name))
	}
	field, ok := fieldByName(rv.Elem().Type(), p.Name)
	if !ok {
		return fmt.Errorf("%v has no writable property", rv.Type())
	}
	val, ok, err := c.resolveValue(ctx, def, p.Value, field.Type, Decapitalize(p.Name))
	if err != nil || !ok {
		return err
	}
	rv.Elem().FieldByIndex(field.Index).Set(val)
	return nil
}

func callSetter(method, val reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("setter panicked: %v", r)
		}
	}()
	return method.Call([]reflect.Value{val}), nil
}

// resolveValue 将值规格解析为可赋给 target 的值；可选依赖缺失时 ok 为 false。
func (c *Container) resolveValue(ctx context.Context, def *Definition, v Value, target reflect.Type, hint string) (reflect.Value, bool, error) {
	switch v.Kind {
	case ValueLiteral:
		rv, err := c.convertLiteral(v.Literal, target)
		return rv, err == nil, err

	case ValueRef:
		if v.Optional && !c.registry.Contains(v.Ref) {
			return reflect.Value{}, false, nil
		}
		inst, err := c.getBean(ctx, v.Ref, true)
		if err != nil {
			return reflect.Value{}, false, err
		}
		rv, err := assignable(inst, target, v.Ref)
		return rv, err == nil, err

	case ValueAutowire:
		typ := v.Type
		if typ == nil {
			typ = target
		}
		if typ == nil {
			return reflect.Value{}, false, fmt.Errorf("cannot autowire without a type")
		}
		ip := InjectionPoint{Requester: def.Name, Name: hint, Qualifier: v.Qualifier, Optional: v.Optional}
		names, collect, err := c.candidatesFor(typ, ip)
		if err != nil {
			return reflect.Value{}, false, err
		}
		if collect {
			slice := reflect.MakeSlice(typ, 0, len(names))
			for _, name := range names {
				inst, err := c.getBean(ctx, name, true)
				if err != nil {
					return reflect.Value{}, false, err
				}
				ev, err := assignable(inst, typ.Elem(), name)
				if err != nil {
					return reflect.Value{}, false, err
				}
				slice = reflect.Append(slice, ev)
			}
			if target != nil && !typ.AssignableTo(target) {
				return reflect.Value{}, false, fmt.Errorf("%v is not assignable to %v", typ, target)
			}
			return slice, true, nil
		}
		if len(names) == 0 {
			return reflect.Value{}, false, nil
		}
		inst, err := c.getBean(ctx, names[0], true)
		if err != nil {
			return reflect.Value{}, false, err
		}
		rv, err := assignable(inst, target, names[0])
		return rv, err == nil, err
	}
	return reflect.Value{}, false, fmt.Errorf("unknown value kind %d", v.Kind)
}

func assignable(inst any, target reflect.Type, name string) (reflect.Value, error) {
	rv := reflect.ValueOf(inst)
	if target == nil || rv.Type().AssignableTo(target) {
		return rv, nil
	}
	return reflect.Value{}, fmt.Errorf("component '%s' of type %T is not assignable to %v", name, inst, target)
}

// convertLiteral 解析字符串中的占位符，再转换为目标类型（标量按 YAML 规则解码）。
func (c *Container) convertLiteral(lit any, target reflect.Type) (reflect.Value, error) {
	if s, ok := lit.(string); ok {
		resolved, err := c.placeholders.ResolvePlaceholders(s)
		if err != nil {
			return reflect.Value{}, err
		}
		lit = resolved
	}

	rv := reflect.ValueOf(lit)
	if target == nil {
		if !rv.IsValid() {
			return reflect.Value{}, fmt.Errorf("nil literal without a target type")
		}
		return rv, nil
	}
	if !rv.IsValid() {
		return reflect.Zero(target), nil
	}
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}
	if s, ok := lit.(string); ok {
		return decodeScalar(s, target)
	}
	// int -> string 的 Convert 会得到字符而不是数字文本
	if target.Kind() != reflect.String && rv.Type().ConvertibleTo(target) && isNumeric(rv.Kind()) && isNumeric(target.Kind()) {
		return rv.Convert(target), nil
	}
	return decodeScalar(fmt.Sprint(lit), target)
}

func decodeScalar(s string, target reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(target)
	switch target.Kind() {
	case reflect.String:
		ptr.Elem().SetString(s)
		return ptr.Elem(), nil
	case reflect.Slice, reflect.Map, reflect.Struct, reflect.Array:
		if err := yaml.Unmarshal([]byte(s), ptr.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to %v: %w", s, target, err)
		}
	default:
		node := &yaml.Node{Kind: yaml.ScalarNode, Value: s}
		if err := node.Decode(ptr.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to %v: %w", s, target, err)
		}
	}
	return ptr.Elem(), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
