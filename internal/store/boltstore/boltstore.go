package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/John-Robertt/MMC/internal/store"
)

// Store 把每个集合存为一个 bucket，文档以 JSON 编码。
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open 打开（必要时创建）path 处的 bolt 文件，并确保集合 bucket 存在。
func Open(path, collection string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败：%w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开 bolt 数据库失败：%w", err)
	}
	s := &Store{db: db, bucket: []byte(collection)}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建 bucket %q 失败：%w", collection, err)
	}
	return s, nil
}

func (s *Store) Find(ctx context.Context, key string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc store.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(key))
		if raw == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(raw, &doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Insert(ctx context.Context, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := store.DocID(doc)
	if !ok {
		return store.ErrMissingID
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get([]byte(key)) != nil {
			return store.ErrDuplicate
		}
		return b.Put([]byte(key), raw)
	})
}

func (s *Store) Update(ctx context.Context, key string, set store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		raw := b.Get([]byte(key))
		if raw == nil {
			return store.ErrNotFound
		}
		var doc store.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		for k, v := range set {
			doc[k] = v
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), out)
	})
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("关闭 bolt 数据库失败：%w", err)
	}
	return nil
}
