package mongodb

import (
	"context"
	"fmt"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// PropertyDocument 属性集合中的文档
// value 可以是标量、嵌套文档或数组，嵌套结构按点分 key 展开
type PropertyDocument struct {
	Key   string `bson:"key"`
	Value any    `bson:"value"`
}

type documentFinder interface {
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
}

// CollectionSource 以 MongoDB 集合为来源的属性层
type CollectionSource struct {
	*config.MapSource
	finder documentFinder
	logger logging.Logger
}

// NewCollectionSource 创建属性层，调用 Reload 之前为空
func NewCollectionSource(name string, coll *mongo.Collection, logger logging.Logger) *CollectionSource {
	return newCollectionSource(name, coll, logger)
}

func newCollectionSource(name string, finder documentFinder, logger logging.Logger) *CollectionSource {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CollectionSource{
		MapSource: config.NewMapSource(name, nil),
		finder:    finder,
		logger:    logger,
	}
}

// Reload 读取集合中的全部文档并原子替换属性层
func (s *CollectionSource) Reload(ctx context.Context) error {
	cursor, err := s.finder.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("mongodb: load properties for '%s': %w", s.Name(), err)
	}
	var docs []PropertyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return fmt.Errorf("mongodb: decode properties for '%s': %w", s.Name(), err)
	}

	data := make(map[string]any, len(docs))
	for _, doc := range docs {
		if doc.Key == "" {
			continue
		}
		data[doc.Key] = normalize(doc.Value)
	}
	s.Replace(data)

	s.logger.Debug("mongodb properties loaded",
		logging.F("source", s.Name()),
		logging.F("documents", len(docs)))
	return nil
}

// normalize 把 bson 的文档和数组类型转换为 config.Flatten 能展开的 map 和切片
func normalize(value any) any {
	switch v := value.(type) {
	case bson.D:
		m := make(map[string]any, len(v))
		for _, e := range v {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(v))
		for k, child := range v {
			m[k] = normalize(child)
		}
		return m
	case bson.A:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = normalize(child)
		}
		return out
	case string:
		return config.ParseStructured(v)
	default:
		return v
	}
}
