package config

import (
	"fmt"
	"strings"
)

// UnresolvedPlaceholderError 占位符没有默认值，且所有属性源里都不存在该 key
type UnresolvedPlaceholderError struct {
	Key  string
	Text string
}

func (e *UnresolvedPlaceholderError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("config: could not resolve placeholder '%s'", e.Key)
	}
	return fmt.Sprintf("config: could not resolve placeholder '%s' in value %q", e.Key, e.Text)
}

// PlaceholderCycleError 占位符解析回到了正在解析的 key
type PlaceholderCycleError struct {
	Path []string
}

func (e *PlaceholderCycleError) Error() string {
	return fmt.Sprintf("config: circular placeholder reference %s", strings.Join(e.Path, " -> "))
}
