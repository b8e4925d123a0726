package config

import (
	"sync/atomic"
)

// ValueStore 使用 atomic.Value 存储扁平化的属性快照，实现无锁读取
type ValueStore struct {
	value atomic.Value // stores map[string]string
}

// NewValueStore 创建新的 ValueStore
func NewValueStore() *ValueStore {
	s := &ValueStore{}
	s.value.Store(make(map[string]string))
	return s
}

// Load 加载当前快照，调用方不得修改返回的 map
func (s *ValueStore) Load() map[string]string {
	val := s.value.Load()
	if val == nil {
		return nil
	}
	return val.(map[string]string)
}

// Store 原子替换快照
func (s *ValueStore) Store(data map[string]string) {
	s.value.Store(data)
}
