package database

import (
	"context"
	"fmt"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPropertyTable 属性表默认表名
const DefaultPropertyTable = "properties"

// Property 属性表中的一行，Name 是点分 key
type Property struct {
	Name  string `gorm:"column:name;primaryKey;size:191"`
	Value string `gorm:"column:value;type:text"`
}

// TableSource 以数据库表为来源的属性层
type TableSource struct {
	*config.MapSource
	db     *gorm.DB
	table  string
	logger logging.Logger
}

// NewTableSource 创建属性层，调用 Reload 之前为空
func NewTableSource(name string, db *gorm.DB, table string, logger logging.Logger) *TableSource {
	if table == "" {
		table = DefaultPropertyTable
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &TableSource{
		MapSource: config.NewMapSource(name, nil),
		db:        db,
		table:     table,
		logger:    logger,
	}
}

// Table 属性表名
func (s *TableSource) Table() string {
	return s.table
}

// Migrate 创建或更新属性表结构
func (s *TableSource) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&Property{}); err != nil {
		return fmt.Errorf("database: migrate property table '%s': %w", s.table, err)
	}
	return nil
}

// Reload 读取整张表并原子替换属性层
func (s *TableSource) Reload(ctx context.Context) error {
	var rows []Property
	if err := s.db.WithContext(ctx).Table(s.table).Find(&rows).Error; err != nil {
		return fmt.Errorf("database: load property table '%s': %w", s.table, err)
	}

	data := make(map[string]any, len(rows))
	for _, row := range rows {
		data[row.Name] = config.ParseStructured(row.Value)
	}
	s.Replace(data)

	s.logger.Debug("database properties loaded",
		logging.F("table", s.table),
		logging.F("rows", len(rows)))
	return nil
}

// Put 写入或更新一个属性，生效需要等到下一次 Reload
func (s *TableSource) Put(ctx context.Context, name, value string) error {
	err := s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Property{Name: name, Value: value}).Error
	if err != nil {
		return fmt.Errorf("database: put property '%s': %w", name, err)
	}
	return nil
}

// Delete 删除一个属性
func (s *TableSource) Delete(ctx context.Context, name string) error {
	err := s.db.WithContext(ctx).Table(s.table).Where("name = ?", name).Delete(&Property{}).Error
	if err != nil {
		return fmt.Errorf("database: delete property '%s': %w", name, err)
	}
	return nil
}
