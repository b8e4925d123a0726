package database

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"
)

// DatabaseFactory 数据库客户端工厂
type DatabaseFactory struct {
	dbs     map[string]*gorm.DB
	options map[string]DatabaseOptions
	mu      sync.RWMutex
}

// NewDatabaseFactory 创建数据库工厂
func NewDatabaseFactory() *DatabaseFactory {
	return &DatabaseFactory{
		dbs:     make(map[string]*gorm.DB),
		options: make(map[string]DatabaseOptions),
	}
}

// Register 打开连接、配置连接池并执行自动迁移
func (f *DatabaseFactory) Register(opts DatabaseOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.dbs[opts.Name]; exists {
		return fmt.Errorf("database '%s' already registered", opts.Name)
	}

	db, err := gorm.Open(opts.Dialector, opts.GormConfig)
	if err != nil {
		return fmt.Errorf("failed to open database '%s': %w", opts.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for '%s': %w", opts.Name, err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)

	if len(opts.AutoMigrate) > 0 {
		if err := db.AutoMigrate(opts.AutoMigrate...); err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("auto migrate failed for '%s': %w", opts.Name, err)
		}
	}

	f.dbs[opts.Name] = db
	f.options[opts.Name] = opts
	return nil
}

// Get 按名称获取数据库实例
func (f *DatabaseFactory) Get(name string) (*gorm.DB, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	db, ok := f.dbs[name]
	if !ok {
		return nil, fmt.Errorf("database '%s' not found", name)
	}
	return db, nil
}

// Each 按名称顺序遍历所有数据库实例
func (f *DatabaseFactory) Each(fn func(name string, db *gorm.DB, opts DatabaseOptions)) {
	f.mu.RLock()
	names := make([]string, 0, len(f.dbs))
	for name := range f.dbs {
		names = append(names, name)
	}
	f.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		f.mu.RLock()
		db, opts := f.dbs[name], f.options[name]
		f.mu.RUnlock()
		fn(name, db, opts)
	}
}

// Close 关闭所有数据库连接
func (f *DatabaseFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, db := range f.dbs {
		sqlDB, err := db.DB()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to get sql.DB for '%s': %w", name, err))
			continue
		}
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database '%s': %w", name, err))
		}
	}
	f.dbs = make(map[string]*gorm.DB)
	f.options = make(map[string]DatabaseOptions)
	return errors.Join(errs...)
}
