package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Chain 有序属性源链，查找时第一个命中的源胜出
type Chain struct {
	sources []PropertySource
	mu      sync.RWMutex
}

// NewChain 创建属性源链，参数顺序即优先级顺序
func NewChain(sources ...PropertySource) *Chain {
	c := &Chain{}
	c.sources = append(c.sources, sources...)
	return c
}

// AddFirst 添加最高优先级的源
func (c *Chain) AddFirst(source PropertySource) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append([]PropertySource{source}, c.sources...)
	return c
}

// AddLast 添加最低优先级的源
func (c *Chain) AddLast(source PropertySource) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, source)
	return c
}

// AddBefore 将源插入到名为 relative 的源之前
func (c *Chain) AddBefore(relative string, source PropertySource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.sources {
		if s.Name() == relative {
			c.sources = append(c.sources[:i], append([]PropertySource{source}, c.sources[i:]...)...)
			return nil
		}
	}
	return fmt.Errorf("config: property source '%s' not found", relative)
}

// Remove 按名称移除源
func (c *Chain) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.sources {
		if s.Name() == name {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			return true
		}
	}
	return false
}

// Sources 返回当前源列表的副本
func (c *Chain) Sources() []PropertySource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PropertySource, len(c.sources))
	copy(out, c.sources)
	return out
}

// Lookup 返回原始值（不解析占位符）
func (c *Chain) Lookup(key string) (string, bool) {
	for _, s := range c.Sources() {
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Resolve 查找 key 并解析值中的占位符
func (c *Chain) Resolve(key string) (string, bool, error) {
	raw, ok := c.Lookup(key)
	if !ok {
		return "", false, nil
	}
	r := &placeholderResolver{source: c}
	v, err := r.resolve(raw, []string{key})
	if err != nil {
		return "", true, err
	}
	return v, true, nil
}

// ResolvePlaceholders 替换文本中所有 ${key:default}
func (c *Chain) ResolvePlaceholders(text string) (string, error) {
	r := &placeholderResolver{source: c}
	return r.resolve(text, nil)
}

// Get 获取解析后的值，不存在或解析失败时返回空字符串
func (c *Chain) Get(key string) string {
	v, _, err := c.Resolve(key)
	if err != nil {
		return ""
	}
	return v
}

// GetWithDefault 获取配置值，如果不存在则返回默认值
func (c *Chain) GetWithDefault(key, defaultValue string) string {
	v, ok, err := c.Resolve(key)
	if !ok || err != nil {
		return defaultValue
	}
	return v
}

// GetInt 获取整数配置值
func (c *Chain) GetInt(key string) (int, error) {
	v, err := c.require(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: key %s: %w", key, err)
	}
	return n, nil
}

// GetBool 获取布尔配置值
func (c *Chain) GetBool(key string) (bool, error) {
	v, err := c.require(key)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("config: key %s: %w", key, err)
	}
	return b, nil
}

// GetDuration 获取时长配置值（"5s"、"1m30s"）
func (c *Chain) GetDuration(key string) (time.Duration, error) {
	v, err := c.require(key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: key %s: %w", key, err)
	}
	return d, nil
}

func (c *Chain) require(key string) (string, error) {
	v, ok, err := c.Resolve(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("config: key %s not found", key)
	}
	return v, nil
}

// Keys 返回所有可枚举源中的 key（去重，按优先级从高到低首次出现的顺序）
func (c *Chain) Keys() []string {
	seen := make(map[string]bool)
	keys := make([]string, 0)
	for _, s := range c.Sources() {
		e, ok := s.(Enumerable)
		if !ok {
			continue
		}
		for _, k := range e.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Bind 将 prefix 下的属性绑定到结构体，字段名按 yaml 规则匹配（小写或 yaml tag）
func (c *Chain) Bind(prefix string, target any) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	found := false

	for _, key := range c.Keys() {
		rest := key
		if prefix != "" {
			if !strings.HasPrefix(key, prefix+".") {
				continue
			}
			rest = strings.TrimPrefix(key, prefix+".")
		}
		if strings.Contains(rest, "[") {
			continue
		}
		value, _, err := c.Resolve(key)
		if err != nil {
			return err
		}
		setNode(root, strings.Split(rest, "."), value)
		found = true
	}

	if !found {
		return fmt.Errorf("config: no properties under '%s'", prefix)
	}
	if err := root.Decode(target); err != nil {
		return fmt.Errorf("config: bind '%s': %w", prefix, err)
	}
	return nil
}

// setNode 在映射节点上按路径设置标量，标量不带 tag，由 yaml 隐式推断类型
func setNode(node *yaml.Node, path []string, value string) {
	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value != path[0] {
			continue
		}
		if len(path) == 1 {
			return
		}
		child := node.Content[i+1]
		if child.Kind != yaml.MappingNode {
			return
		}
		setNode(child, path[1:], value)
		return
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: path[0]}
	if len(path) == 1 {
		node.Content = append(node.Content, keyNode, &yaml.Node{Kind: yaml.ScalarNode, Value: value})
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content, keyNode, child)
	setNode(child, path[1:], value)
}
