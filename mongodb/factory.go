package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoFactory MongoDB 客户端工厂
type MongoFactory struct {
	clients map[string]*mongo.Client
	options map[string]MongoOptions
	mu      sync.RWMutex
}

// NewMongoFactory 创建客户端工厂
func NewMongoFactory() *MongoFactory {
	return &MongoFactory{
		clients: make(map[string]*mongo.Client),
		options: make(map[string]MongoOptions),
	}
}

// Register 注册 MongoDB 客户端，驱动在首次操作时才建立连接
func (f *MongoFactory) Register(opts MongoOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.clients[opts.Name]; exists {
		return fmt.Errorf("mongo client '%s' already registered", opts.Name)
	}

	clientOpts := options.Client().ApplyURI(opts.Uri)
	if opts.Username != "" || opts.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username: opts.Username,
			Password: opts.Password,
		})
	}
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(opts.MinPoolSize)
	}
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetServerSelectionTimeout(opts.Timeout)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return fmt.Errorf("failed to create mongo client '%s': %w", opts.Name, err)
	}

	f.clients[opts.Name] = client
	f.options[opts.Name] = opts
	return nil
}

// Get 按名称获取客户端
func (f *MongoFactory) Get(name string) (*mongo.Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	client, ok := f.clients[name]
	if !ok {
		return nil, fmt.Errorf("mongo client '%s' not found", name)
	}
	return client, nil
}

// Each 按名称顺序遍历所有客户端
func (f *MongoFactory) Each(fn func(name string, client *mongo.Client, opts MongoOptions)) {
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

// Close 断开所有客户端
func (f *MongoFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	for name, client := range f.clients {
		if err := client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}
	f.clients = make(map[string]*mongo.Client)
	f.options = make(map[string]MongoOptions)
	return errors.Join(errs...)
}
