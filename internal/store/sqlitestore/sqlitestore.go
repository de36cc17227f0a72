package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/John-Robertt/MMC/internal/store"
)

// Store 把所有集合放在同一张 records 表中，文档列为 JSON 文本。
type Store struct {
	db         *sql.DB
	collection string
	now        func() time.Time
}

// Open 打开 path 处的 SQLite 数据库（WAL，单写连接）并执行迁移。
func Open(path, collection string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败：%w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败：%w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接数据库失败：%w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, collection), nil
}

// New 包装已打开的连接（不执行迁移）。
func New(db *sql.DB, collection string) *Store {
	return &Store{db: db, collection: collection, now: time.Now}
}

func (s *Store) stamp() string { return s.now().UTC().Format(time.RFC3339) }

func (s *Store) Find(ctx context.Context, key string) (store.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE collection = ? AND key = ?`, s.collection, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc store.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("解析文档失败：%w", err)
	}
	return doc, nil
}

func (s *Store) Insert(ctx context.Context, doc store.Document) error {
	key, ok := store.DocID(doc)
	if !ok {
		return store.ErrMissingID
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (collection, key, doc, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, key) DO NOTHING`,
		s.collection, key, string(raw), s.stamp())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrDuplicate
	}
	return nil
}

// Update 在一个事务内读取、合并并写回文档。
func (s *Store) Update(ctx context.Context, key string, set store.Document) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM records WHERE collection = ? AND key = ?`, s.collection, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	var doc store.Document
	if err = json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("解析文档失败：%w", err)
	}
	for k, v := range set {
		doc[k] = v
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE records SET doc = ?, updated_at = ? WHERE collection = ? AND key = ?`,
		string(out), s.stamp(), s.collection, key); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM records WHERE collection = ? ORDER BY key`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
