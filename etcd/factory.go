package etcd

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdClientFactory etcd 客户端工厂
type EtcdClientFactory struct {
	clients map[string]*clientv3.Client
	options map[string]EtcdClientOptions
	mu      sync.RWMutex
}

// NewEtcdClientFactory 创建客户端工厂
func NewEtcdClientFactory() *EtcdClientFactory {
	return &EtcdClientFactory{
		clients: make(map[string]*clientv3.Client),
		options: make(map[string]EtcdClientOptions),
	}
}

// Register 注册 etcd 客户端，连接是惰性的，这里不会访问服务器
func (f *EtcdClientFactory) Register(opts EtcdClientOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.clients[opts.Name]; exists {
		return fmt.Errorf("etcd client '%s' already registered", opts.Name)
	}

	cfg := clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
	}
	if opts.Username != "" {
		cfg.Username = opts.Username
		cfg.Password = opts.Password
	}
	if opts.AutoSyncInterval > 0 {
		cfg.AutoSyncInterval = opts.AutoSyncInterval
	}

	client, err := clientv3.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create etcd client: %w", err)
	}

	f.clients[opts.Name] = client
	f.options[opts.Name] = opts
	return nil
}

// Get 按名称获取客户端
func (f *EtcdClientFactory) Get(name string) (*clientv3.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	client, ok := f.clients[name]
	if !ok {
		return nil, fmt.Errorf("etcd client '%s' not found", name)
	}
	return client, nil
}

// Each 按名称顺序遍历所有客户端
func (f *EtcdClientFactory) Each(fn func(name string, client *clientv3.Client, opts EtcdClientOptions)) {
	f.mu.RLock()
	names := make([]string, 0, len(f.clients))
	for name := range f.clients {
		names = append(names, name)
	}
	f.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		f.mu.RLock()
		client, opts := f.clients[name], f.options[name]
		f.mu.RUnlock()
		fn(name, client, opts)
	}
}

// Close 关闭所有 etcd 客户端
func (f *EtcdClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, client := range f.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}
	f.clients = make(map[string]*clientv3.Client)
	f.options = make(map[string]EtcdClientOptions)
	return errors.Join(errs...)
}
