package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/John-Robertt/MMC/internal/store"
)

// Database 是历史数据所在的库名；集合名即媒体类型（video / manga）。
const Database = "mediaMetadata"

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Open 连接 uri 并选择 mediaMetadata.<collection>。
func Open(ctx context.Context, uri, collection string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("连接 MongoDB 失败：%w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB 不可用：%w", err)
	}
	return &Store{client: client, coll: client.Database(Database).Collection(collection)}, nil
}

// New 包装已有集合（测试使用）。
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

func (s *Store) Find(ctx context.Context, key string) (store.Document, error) {
	var m bson.M
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return normalizeDoc(m), nil
}

func (s *Store) Insert(ctx context.Context, doc store.Document) error {
	if _, ok := store.DocID(doc); !ok {
		return store.ErrMissingID
	}
	_, err := s.coll.InsertOne(ctx, bson.M(doc))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

// Update 使用 $set 做部分更新；没有匹配文档时返回 ErrNotFound（不 upsert）。
func (s *Store) Update(ctx context.Context, key string, set store.Document) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M(set)})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var row struct {
			ID any `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		if id, ok := row.ID.(string); ok {
			keys = append(keys, id)
		}
	}
	return keys, cur.Err()
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// normalizeDoc 把驱动类型（primitive.A / DateTime / 嵌套 M）转为普通 Go 值。
func normalizeDoc(m bson.M) store.Document {
	out := make(store.Document, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch x := v.(type) {
	case primitive.A:
		xs := make([]any, len(x))
		for i, e := range x {
			xs[i] = normalize(e)
		}
		return xs
	case primitive.DateTime:
		return x.Time().UTC()
	case bson.M:
		return map[string]any(normalizeDoc(x))
	case bson.D:
		return map[string]any(normalizeDoc(x.Map()))
	default:
		return v
	}
}
