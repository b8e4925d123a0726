package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PropertySource 属性源：按 key 查找字符串值的一层
type PropertySource interface {
	Name() string
	Lookup(key string) (string, bool)
}

// Enumerable 可以列出全部 key 的属性源，Bind 依赖它
type Enumerable interface {
	Keys() []string
}

// MapSource 内存属性源，嵌套 map 会被展开为点分 key（"server.port"），切片展开为 "hosts[0]"
type MapSource struct {
	name  string
	store *ValueStore
}

// NewMapSource 创建内存属性源
func NewMapSource(name string, data map[string]any) *MapSource {
	s := &MapSource{name: name, store: NewValueStore()}
	s.Replace(data)
	return s
}

func (s *MapSource) Name() string {
	return s.name
}

func (s *MapSource) Lookup(key string) (string, bool) {
	v, ok := s.store.Load()[key]
	return v, ok
}

func (s *MapSource) Keys() []string {
	data := s.store.Load()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Replace 原子替换整个属性集，供可重载的远程源使用
func (s *MapSource) Replace(data map[string]any) {
	s.store.Store(Flatten(data))
}

// ReplaceFlat 使用已扁平化的数据替换
func (s *MapSource) ReplaceFlat(data map[string]string) {
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	s.store.Store(cp)
}

// Snapshot 返回当前数据的副本
func (s *MapSource) Snapshot() map[string]string {
	data := s.store.Load()
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return cp
}

// Flatten 将嵌套结构展开为点分 key
func Flatten(data map[string]any) map[string]string {
	out := make(map[string]string)
	for k, v := range data {
		flattenInto(out, k, v)
	}
	return out
}

func flattenInto(out map[string]string, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			out[prefix] = ""
			return
		}
		for k, child := range v {
			flattenInto(out, joinKey(prefix, k), child)
		}
	case map[any]any:
		for k, child := range v {
			flattenInto(out, joinKey(prefix, fmt.Sprint(k)), child)
		}
	case []any:
		for i, child := range v {
			flattenInto(out, prefix+"["+strconv.Itoa(i)+"]", child)
		}
	case nil:
		out[prefix] = ""
	case string:
		out[prefix] = v
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// ParseStructured 远程存储里的值是 JSON 或 YAML 对象（或数组）时解析为结构，否则原样返回字符串
func ParseStructured(value string) any {
	var jsonValue any
	if err := json.Unmarshal([]byte(value), &jsonValue); err == nil {
		switch jsonValue.(type) {
		case map[string]any, []any:
			return jsonValue
		}
		return value
	}
	var yamlValue any
	if err := yaml.Unmarshal([]byte(value), &yamlValue); err == nil {
		switch yamlValue.(type) {
		case map[string]any, []any:
			return yamlValue
		}
	}
	return value
}

// EnvSource 环境变量属性源，支持宽松绑定：db.url 依次匹配 db.url、DB_URL
type EnvSource struct {
	Prefix string
}

// NewEnvSource 创建环境变量属性源，prefix 非空时匹配 PREFIX_DB_URL
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{Prefix: prefix}
}

func (s *EnvSource) Name() string {
	if s.Prefix == "" {
		return "env"
	}
	return fmt.Sprintf("env(%s)", s.Prefix)
}

func (s *EnvSource) Lookup(key string) (string, bool) {
	for _, candidate := range s.candidates(key) {
		if v, ok := os.LookupEnv(candidate); ok {
			return v, true
		}
	}
	return "", false
}

func (s *EnvSource) candidates(key string) []string {
	relaxed := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_", "[", "_", "]", "").Replace(key))
	if s.Prefix != "" {
		prefix := strings.TrimSuffix(strings.ToUpper(s.Prefix), "_") + "_"
		return []string{prefix + relaxed}
	}
	return []string{key, relaxed}
}

// Keys 将环境变量名转换为点分小写 key（DB_URL -> db.url）
func (s *EnvSource) Keys() []string {
	prefix := ""
	if s.Prefix != "" {
		prefix = strings.TrimSuffix(strings.ToUpper(s.Prefix), "_") + "_"
	}

	keys := make([]string, 0)
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok || name == "" {
			continue
		}
		if prefix != "" {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			name = strings.TrimPrefix(name, prefix)
		}
		keys = append(keys, strings.ToLower(strings.ReplaceAll(name, "_", ".")))
	}
	sort.Strings(keys)
	return keys
}

// LoadYamlFile 读取 YAML 文件为属性源，optional 为 true 时文件不存在返回空源
func LoadYamlFile(path string, optional bool) (*MapSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return NewMapSource(fileSourceName("yaml", path), nil), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("config: parse YAML %s: %w", path, err)
	}
	return NewMapSource(fileSourceName("yaml", path), result), nil
}

// LoadJsonFile 读取 JSON 文件为属性源
func LoadJsonFile(path string, optional bool) (*MapSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return NewMapSource(fileSourceName("json", path), nil), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("config: parse JSON %s: %w", path, err)
	}
	return NewMapSource(fileSourceName("json", path), result), nil
}

// LoadDotenv 读取 .env 文件，DB_URL 同时以原名和 db.url 两种 key 暴露
func LoadDotenv(path string, optional bool) (*MapSource, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return NewMapSource(fileSourceName("dotenv", path), nil), nil
		}
		return nil, fmt.Errorf("config: read dotenv %s: %w", path, err)
	}

	flat := make(map[string]string, len(values)*2)
	for name, v := range values {
		flat[name] = v
		flat[strings.ToLower(strings.ReplaceAll(name, "_", "."))] = v
	}
	s := &MapSource{name: fileSourceName("dotenv", path), store: NewValueStore()}
	s.store.Store(flat)
	return s, nil
}

func fileSourceName(kind, path string) string {
	return fmt.Sprintf("%s(%s)", kind, path)
}

var (
	_ Enumerable = (*MapSource)(nil)
	_ Enumerable = (*EnvSource)(nil)
)
