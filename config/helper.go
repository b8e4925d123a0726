package config

// Load 绑定 section 下的属性到新的 T 值
func Load[T any](chain *Chain, section string) (T, error) {
	var t T
	err := chain.Bind(section, &t)
	return t, err
}
