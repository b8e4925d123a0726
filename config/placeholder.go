package config

import (
	"strings"
)

const (
	placeholderPrefix = "${"
	placeholderSuffix = "}"
	valueSeparator    = ":"
)

// Lookuper 按 key 查找原始值
type Lookuper interface {
	Lookup(key string) (string, bool)
}

// placeholderResolver 解析 ${key:default}，支持 key 与默认值中的嵌套占位符
type placeholderResolver struct {
	source Lookuper
}

func (r *placeholderResolver) resolve(text string, visiting []string) (string, error) {
	start := strings.Index(text, placeholderPrefix)
	if start < 0 {
		return text, nil
	}

	var sb strings.Builder
	for start >= 0 {
		end := findPlaceholderEnd(text, start)
		if end < 0 {
			// 未闭合的占位符原样保留
			break
		}

		sb.WriteString(text[:start])
		content := text[start+len(placeholderPrefix) : end]

		value, err := r.resolveContent(content, text, visiting)
		if err != nil {
			return "", err
		}
		sb.WriteString(value)

		text = text[end+len(placeholderSuffix):]
		start = strings.Index(text, placeholderPrefix)
	}
	sb.WriteString(text)
	return sb.String(), nil
}

func (r *placeholderResolver) resolveContent(content, original string, visiting []string) (string, error) {
	rawKey, defaultValue, hasDefault := splitDefault(content)

	key, err := r.resolve(rawKey, visiting)
	if err != nil {
		return "", err
	}

	for _, v := range visiting {
		if v == key {
			path := append(append([]string{}, visiting...), key)
			return "", &PlaceholderCycleError{Path: path}
		}
	}

	if value, ok := r.source.Lookup(key); ok {
		// 值本身也可能包含占位符
		return r.resolve(value, append(visiting[:len(visiting):len(visiting)], key))
	}
	if hasDefault {
		return r.resolve(defaultValue, visiting)
	}
	return "", &UnresolvedPlaceholderError{Key: key, Text: original}
}

// findPlaceholderEnd 从 start 处的 "${" 开始找到与之匹配的 "}"
func findPlaceholderEnd(text string, start int) int {
	depth := 0
	for i := start + len(placeholderPrefix); i < len(text); i++ {
		switch {
		case strings.HasPrefix(text[i:], placeholderPrefix):
			depth++
			i += len(placeholderPrefix) - 1
		case strings.HasPrefix(text[i:], placeholderSuffix):
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// splitDefault 在嵌套深度为 0 的第一个 ":" 处切分 key 与默认值
func splitDefault(content string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(content); i++ {
		switch {
		case strings.HasPrefix(content[i:], placeholderPrefix):
			depth++
			i += len(placeholderPrefix) - 1
		case strings.HasPrefix(content[i:], placeholderSuffix):
			depth--
		case depth == 0 && strings.HasPrefix(content[i:], valueSeparator):
			return content[:i], content[i+len(valueSeparator):], true
		}
	}
	return content, "", false
}

// HasPlaceholder 判断文本是否包含占位符
func HasPlaceholder(text string) bool {
	start := strings.Index(text, placeholderPrefix)
	return start >= 0 && findPlaceholderEnd(text, start) >= 0
}
