package store

import (
	"context"
	"errors"
	"fmt"
)

// Document 是存储边界上的文档形态，与历史 MongoDB 文档（_id = title）兼容。
type Document map[string]any

var (
	ErrNotFound  = errors.New("记录不存在")
	ErrDuplicate = errors.New("记录已存在")

	ErrMissingID = errors.New("文档缺少 _id")
)

// Store 是按 key 寻址的文档存储。
//
// 约束：
// - Insert 要求 doc["_id"] 已设置；key 已存在时返回 ErrDuplicate
// - Update 只写入 set 中的字段（部分更新）；key 不存在时返回 ErrNotFound，绝不隐式插入
// - Keys 按字典序返回
type Store interface {
	Find(ctx context.Context, key string) (Document, error)
	Insert(ctx context.Context, doc Document) error
	Update(ctx context.Context, key string, set Document) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Error 是持久化阶段的可追溯错误；run 遇到它会中止。
type Error struct {
	Op  string // "find" / "insert" / "update" / "keys"
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store op=%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store op=%s key=%q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DocID 读取文档的 _id（字符串）。
func DocID(doc Document) (string, bool) {
	id, ok := doc[KeyID].(string)
	return id, ok && id != ""
}
