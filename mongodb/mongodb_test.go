package mongodb

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type fakeFinder struct {
	docs []any
	err  error
}

func (f *fakeFinder) Find(context.Context, any, ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return mongo.NewCursorFromDocuments(f.docs, nil, nil)
}

func TestCollectionSourceReload(t *testing.T) {
	finder := &fakeFinder{docs: []any{
		bson.D{{Key: "key", Value: "server.port"}, {Key: "value", Value: int32(8080)}},
		bson.D{{Key: "key", Value: "mail"}, {Key: "value", Value: bson.D{
			{Key: "host", Value: "smtp.local"},
			{Key: "tags", Value: bson.A{"a", "b"}},
		}}},
		bson.D{{Key: "key", Value: "feature"}, {Key: "value", Value: `{"enabled": true}`}},
		bson.D{{Key: "value", Value: "no key"}},
	}}
	src := newCollectionSource("mongodb:test", finder, nil)
	require.NoError(t, src.Reload(context.Background()))

	chain := config.NewChain(src)
	assert.Equal(t, "8080", chain.Get("server.port"))
	assert.Equal(t, "smtp.local", chain.Get("mail.host"))
	assert.Equal(t, "b", chain.Get("mail.tags[1]"))
	assert.Equal(t, "true", chain.Get("feature.enabled"))
	assert.Len(t, src.Keys(), 5)
}

func TestCollectionSourceFindError(t *testing.T) {
	boom := errors.New("no server")
	src := newCollectionSource("mongodb:broken", &fakeFinder{err: boom}, nil)
	err := src.Reload(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "mongodb:broken")
}

func TestNormalize(t *testing.T) {
	got := normalize(bson.M{"a": bson.A{bson.D{{Key: "b", Value: 1}}}})
	assert.Equal(t, map[string]any{"a": []any{map[string]any{"b": 1}}}, got)
	assert.Equal(t, "plain", normalize("plain"))
}

func TestMongoBuilderErrors(t *testing.T) {
	builder := NewBuilder(nil)
	builder.Add("nouri", "", nil)
	builder.Add("dup", "mongodb://localhost:27017", nil)
	builder.Add("dup", "mongodb://localhost:27017", nil)
	builder.Add("nodb", "mongodb://localhost:27017", func(o *MongoOptions) {
		o.PropertyCollection = "properties"
	})

	_, err := builder.Build(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uri is required")
	assert.Contains(t, err.Error(), "'dup' already configured")
	assert.Contains(t, err.Error(), "requires a database")
}

func TestMongoClientRegistration(t *testing.T) {
	// 驱动惰性连接，没有服务器也能注册客户端
	app, err := core.NewApplicationBuilder().
		Configure(Configure(func(b *Builder) {
			b.Add("default", "mongodb://localhost:27017", nil)
		})).
		Build()
	require.NoError(t, err)
	defer app.Container().Close(context.Background())

	client, err := di.Resolve[*mongo.Client](app.Container())
	require.NoError(t, err)
	named, err := di.ResolveNamed[*mongo.Client](app.Container(), ComponentName("default"))
	require.NoError(t, err)
	assert.Same(t, client, named)

	factory, err := di.Resolve[*MongoFactory](app.Container())
	require.NoError(t, err)
	require.NoError(t, factory.Close())
}

func TestMongoPropertyLayer(t *testing.T) {
	conn, err := net.DialTimeout("tcp", "localhost:27017", 200*time.Millisecond)
	if err != nil {
		t.Skip("mongodb server not reachable on localhost:27017")
	}
	_ = conn.Close()

	ctx := context.Background()
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://localhost:27017"))
	require.NoError(t, err)
	defer client.Disconnect(ctx)
	coll := client.Database("ioc_test").Collection("properties")
	require.NoError(t, coll.Drop(ctx))
	_, err = coll.InsertOne(ctx, PropertyDocument{Key: "greeting", Value: "hi"})
	require.NoError(t, err)

	app, err := core.NewApplicationBuilder().
		Configure(Configure(func(b *Builder) {
			b.Add("default", "mongodb://localhost:27017", func(o *MongoOptions) {
				o.Database = "ioc_test"
				o.PropertyCollection = "properties"
				o.Timeout = 2 * time.Second
			})
		})).
		Build()
	require.NoError(t, err)
	defer app.Container().Close(ctx)
	assert.Equal(t, "hi", app.Properties().Get("greeting"))
}
