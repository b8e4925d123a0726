package metadata

import (
	"reflect"
	"sync"
)

// Catalog 外部定义按名称引用的 Go 类型、构造函数和自定义声明
type Catalog struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
	funcs map[string]any
	decls map[string]*Declaration
}

// NewCatalog 创建目录，内置 Component、Service、Repository 声明
func NewCatalog() *Catalog {
	c := &Catalog{
		types: make(map[string]reflect.Type),
		funcs: make(map[string]any),
		decls: make(map[string]*Declaration),
	}
	c.Declaration(Component).Declaration(Service).Declaration(Repository)
	return c
}

// Type 登记类型
func (c *Catalog) Type(name string, typ reflect.Type) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = typ
	return c
}

// Func 登记构造函数
func (c *Catalog) Func(name string, fn any) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[name] = fn
	return c
}

// Declaration 按种类登记声明
func (c *Catalog) Declaration(d *Declaration) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decls[d.Kind] = d
	return c
}

func (c *Catalog) lookupType(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

func (c *Catalog) lookupFunc(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[name]
	return fn, ok
}

func (c *Catalog) lookupDeclaration(kind string) (*Declaration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.decls[kind]
	return d, ok
}
